package caller

import "strings"
import "testing"

func TestFuncname(t *testing.T) {
	if n := Funcname(0); n != "TestFuncname" {
		t.Fatalf("got %q", n)
	}
}

func hit(dc *Distinct_caller_t) bool {
	ok, _ := dc.Distinct()
	return ok
}

func TestDistinct(t *testing.T) {
	dc := &Distinct_caller_t{Enabled: true}
	first := 0
	for i := 0; i < 3; i++ {
		if hit(dc) {
			first++
		}
	}
	if first != 1 {
		t.Fatalf("same path reported %d times", first)
	}
	// a different call site is a new path
	if !hit(dc) {
		t.Fatalf("second path not distinct")
	}
	if dc.Len() != 2 {
		t.Fatalf("len %d", dc.Len())
	}
	off := &Distinct_caller_t{}
	if hit(off) {
		t.Fatalf("disabled caller reported")
	}
}

func TestCallerdump(t *testing.T) {
	s := Callerdump(1)
	if !strings.Contains(s, "caller_test.go") {
		t.Fatalf("no test frame in %q", s)
	}
}
