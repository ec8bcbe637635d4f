package accnt

import "testing"
import "time"

func TestExec(t *testing.T) {
	var a Accnt_t
	a.Exec_stop()
	if a.Fetch() != 0 {
		t.Fatalf("stop without start charged %v", a.Fetch())
	}
	a.Exec_start()
	time.Sleep(2 * time.Millisecond)
	a.Exec_stop()
	if a.Fetch() < 2*time.Millisecond {
		t.Fatalf("short exec time %v", a.Fetch())
	}
	got := a.Fetch()
	a.Exec_stop()
	if a.Fetch() != got {
		t.Fatalf("double stop charged")
	}
}

func TestAdd(t *testing.T) {
	var a, b Accnt_t
	a.Utadd(5)
	b.Systadd(7)
	a.Add(&b)
	if a.Fetch() != 12 {
		t.Fatalf("sum %v", a.Fetch())
	}
	a.Reset()
	if a.Fetch() != 0 {
		t.Fatalf("reset %v", a.Fetch())
	}
}
