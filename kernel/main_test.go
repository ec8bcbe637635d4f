package main

import "bytes"
import "context"
import "os"
import "path/filepath"
import "strings"
import "testing"
import "time"

import "github.com/NomadArchitect/microkernel/klog"
import "github.com/NomadArchitect/microkernel/limits"

func quiet(t *testing.T) {
	var logs bytes.Buffer
	old := klog.Setoutput(&logs)
	t.Cleanup(func() { klog.Setoutput(old) })
}

func TestMkscript(t *testing.T) {
	if _, err := Mkscript(strings.Repeat("x", MAXSCRIPT+1)); err == nil {
		t.Fatalf("oversized program accepted")
	}
	if _, err := Mkscript("print a\x00b"); err == nil {
		t.Fatalf("NUL accepted")
	}
	img, err := Mkscript("print hi")
	if err != nil || !bytes.HasPrefix(img, []uint8("\x7fELF")) {
		t.Fatalf("bad image %v", err)
	}
}

func TestLoadimages(t *testing.T) {
	images, initial, err := loadimages(nil)
	if err != nil {
		t.Fatalf("builtin: %v", err)
	}
	if len(initial) != 1 || initial[0] != "init" || images["child"] == nil {
		t.Fatalf("builtin images %v", initial)
	}
	dir := t.TempDir()
	a := filepath.Join(dir, "first.txt")
	b := filepath.Join(dir, "second.txt")
	os.WriteFile(a, []uint8("print a\n"), 0644)
	os.WriteFile(b, []uint8("print b\n"), 0644)
	images, initial, err = loadimages([]string{a, b})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(initial) != 1 || initial[0] != "first" || images["second"] == nil {
		t.Fatalf("images %v", initial)
	}
	if _, _, err := loadimages([]string{filepath.Join(dir, "nope")}); err == nil {
		t.Fatalf("missing file loaded")
	}
}

func boot(t *testing.T, policy string) (*kernel_t, *bytes.Buffer) {
	quiet(t)
	cfg := limits.MkSysLimit()
	cfg.Policy = policy
	var out bytes.Buffer
	kn := mkkernel(cfg, true, &out)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 2)
	go func() {
		done <- kn.k.Handler(ctx)
	}()
	go func() {
		done <- kn.ticker(ctx, time.Millisecond)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		<-done
	})
	return kn, &out
}

func TestBoot(t *testing.T) {
	for _, pol := range []string{limits.POLICY_AFFINITY, limits.POLICY_ROUNDROBIN} {
		kn, out := boot(t, pol)
		images, initial, err := loadimages(nil)
		if err != nil {
			t.Fatalf("images: %v", err)
		}
		u := mkuser(kn.k, images)
		kn.pt.Userland = u.run
		if _, err := kn.pt.Create(images[initial[0]]); err != 0 {
			t.Fatalf("create init: %v", err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		kn.wait(ctx)
		cancel()
		if n := kn.pt.Count(); n != 1 {
			t.Fatalf("%v: %v processes left", pol, n)
		}
		s := out.String()
		for _, want := range []string{
			"[1] hello from init",
			"[1] void5 15",
			"[1] joined 2 threads, sum 3",
			"[2] hello from child",
			"[2] joined 1 threads, sum 1",
		} {
			if !strings.Contains(s, want) {
				t.Fatalf("%v: missing %q in:\n%v", pol, want, s)
			}
		}
		if len(kn.trace.Events()) == 0 {
			t.Fatalf("no core switches traced")
		}
	}
}

func TestSelftest(t *testing.T) {
	for _, pol := range []string{limits.POLICY_AFFINITY, limits.POLICY_ROUNDROBIN} {
		kn, _ := boot(t, pol)
		if err := kn.selftest(); err != nil {
			t.Fatalf("%v: %v", pol, err)
		}
	}
}

func TestShutdown(t *testing.T) {
	kn, _ := boot(t, limits.POLICY_AFFINITY)
	img, _ := Mkscript("print bye\nshutdown\nexit 0\n")
	ctx, halt := context.WithCancel(context.Background())
	kn.k.Onshutdown = halt
	u := mkuser(kn.k, map[string][]uint8{"init": img})
	kn.pt.Userland = u.run
	if _, err := kn.pt.Create(img); err != 0 {
		t.Fatalf("create: %v", err)
	}
	select {
	case <-ctx.Done():
	case <-time.After(10 * time.Second):
		t.Fatalf("no shutdown")
	}
}
