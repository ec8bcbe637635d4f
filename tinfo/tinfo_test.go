package tinfo

import "sync"
import "testing"
import "time"

import "github.com/NomadArchitect/microkernel/defs"

func TestWakeBeforePark(t *testing.T) {
	n := Mknote(7)
	if n.Wake() {
		t.Fatalf("woke a running unit")
	}
	n.Prepare()
	if !n.Wake() {
		t.Fatalf("prepared unit not woken")
	}
	// the permit is waiting; Park must not block
	done := make(chan bool)
	go func() {
		n.Park()
		done <- true
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("park lost the permit")
	}
	if n.Blocked() {
		t.Fatalf("still blocked")
	}
}

func TestParkThenWake(t *testing.T) {
	n := Mknote(1)
	var hooks sync.WaitGroup
	hooks.Add(2)
	n.Onblock = func() { hooks.Done() }
	n.Onresume = func() { hooks.Done() }
	n.Prepare()
	done := make(chan bool)
	go func() {
		n.Park()
		done <- true
	}()
	for !n.Wake() {
		time.Sleep(time.Millisecond)
	}
	<-done
	hooks.Wait()
}

func TestQueueTag(t *testing.T) {
	n := Mknote(2)
	n.Setq(defs.Q_COND)
	if n.Queue() != defs.Q_COND {
		t.Fatalf("tag %v", n.Queue())
	}
	func() {
		defer func() {
			if recover() == nil {
				t.Fatalf("double queue not caught")
			}
		}()
		n.Setq(defs.Q_READY)
	}()
	n.Setq(defs.Q_NONE)
	n.Setq(defs.Q_READY)
}

func TestPreempt(t *testing.T) {
	n := Mknote(3)
	if n.Takepreempt() {
		t.Fatalf("spurious preempt")
	}
	n.Setpreempt()
	if !n.Takepreempt() || n.Takepreempt() {
		t.Fatalf("preempt not one-shot")
	}
	if n.Tid() != 3 {
		t.Fatalf("tid %v", n.Tid())
	}
}

func TestWakeUnqueued(t *testing.T) {
	n := Mknote(4)
	n.Setq(defs.Q_COND)
	n.Prepare()
	if n.Wake_unqueued() {
		t.Fatalf("woke a queued unit")
	}
	n.Setq(defs.Q_NONE)
	if !n.Blocked() || !n.Wake_unqueued() {
		t.Fatalf("unqueued unit not woken")
	}
	n.Park()
}

func TestInterrupt(t *testing.T) {
	n := Mknote(5)
	if n.Killed() {
		t.Fatalf("new unit killed")
	}
	n.Kill()
	if !n.Killed() {
		t.Fatalf("kill lost")
	}
	// waiting for a reply is not interruptible
	n.Setq(defs.Q_REPLY)
	n.Prepare()
	if n.Interrupt() {
		t.Fatalf("interrupted a reply wait")
	}
	n.Setq(defs.Q_NONE)
	n.Setq(defs.Q_COND)
	if !n.Interrupt() {
		t.Fatalf("condition wait not interrupted")
	}
	n.Park()
	if n.Interrupt() {
		t.Fatalf("interrupted a running unit")
	}
	n.Setq(defs.Q_NONE)
	n.Init(5)
	if n.Killed() {
		t.Fatalf("init kept the kill")
	}
}
