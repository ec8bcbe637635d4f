package klog

import "bytes"
import "strings"
import "testing"

func TestLevels(t *testing.T) {
	var buf bytes.Buffer
	old := Setoutput(&buf)
	defer Setoutput(old)
	ol := Getlevel()
	defer Setlevel(ol)

	l := Mk("pm")
	Setlevel(WARN)
	l.Info("hidden %d", 1)
	l.Warn("shown %d", 2)
	s := buf.String()
	if strings.Contains(s, "hidden") {
		t.Fatalf("info logged at warn level: %q", s)
	}
	want := "[WARN][kernel][pm] TestLevels(): shown 2\n"
	if s != want {
		t.Fatalf("got %q want %q", s, want)
	}
}

func TestParselevel(t *testing.T) {
	if l, err := Parselevel("TRACE"); err != nil || l != TRACE {
		t.Fatalf("trace: %v %v", l, err)
	}
	if _, err := Parselevel("loud"); err == nil {
		t.Fatalf("bad level accepted")
	}
}

func TestKputs(t *testing.T) {
	var buf bytes.Buffer
	old := Setoutput(&buf)
	defer Setoutput(old)
	Kputs("hello")
	if buf.String() != "hello" {
		t.Fatalf("got %q", buf.String())
	}
}
