package limits

import "os"
import "path/filepath"
import "strings"
import "testing"

func TestDefaults(t *testing.T) {
	s := MkSysLimit()
	if err := s.Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
	if s.Policy != POLICY_AFFINITY {
		t.Fatalf("default policy %v", s.Policy)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "kernel.json")
	cfg := `{"cores": 2, "scheduler_policy": "roundrobin", "quantum": 5}`
	if err := os.WriteFile(p, []byte(cfg), 0644); err != nil {
		t.Fatal(err)
	}
	s, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if s.Cores != 2 || s.Quantum != 5 || s.Policy != POLICY_ROUNDROBIN {
		t.Fatalf("bad config %+v", s)
	}
	// untouched fields keep their defaults
	if s.Kthreads != 16 {
		t.Fatalf("kthreads %v", s.Kthreads)
	}
}

func TestLoadBad(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "kernel.json")
	if err := os.WriteFile(p, []byte(`{"scheduler_policy": "lottery"}`), 0644); err != nil {
		t.Fatal(err)
	}
	_, err := Load(p)
	if err == nil || !strings.Contains(err.Error(), "lottery") {
		t.Fatalf("expected policy error, got %v", err)
	}
	if _, err := Load(filepath.Join(dir, "nope.json")); err == nil {
		t.Fatalf("missing file loaded")
	}
}

func TestSysatomic(t *testing.T) {
	var s Sysatomic_t
	s.Given(2)
	if !s.Take() || !s.Take() {
		t.Fatalf("take failed")
	}
	if s.Take() {
		t.Fatalf("took past limit")
	}
	s.Give()
	if s.Load() != 1 {
		t.Fatalf("count %v", s.Load())
	}
}
