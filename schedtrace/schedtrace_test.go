package schedtrace

import "bytes"
import "image/png"
import "testing"
import "time"

import "github.com/NomadArchitect/microkernel/defs"
import "github.com/NomadArchitect/microkernel/hal"

func TestSpans(t *testing.T) {
	tr := Mktrace(2)
	tr.Record(0, 1, 0)
	tr.Record(1, 2, 5)
	tr.Record(0, 3, 10)
	tr.Record(0, defs.TID_NONE, 20)
	sp := tr.Spans(30)
	want := []Span_t{
		{Core: 0, Tid: 1, Start: 0, End: 10},
		{Core: 0, Tid: 3, Start: 10, End: 20},
		{Core: 1, Tid: 2, Start: 5, End: 30},
	}
	if len(sp) != len(want) {
		t.Fatalf("spans %v", sp)
	}
	for i := range want {
		if sp[i] != want[i] {
			t.Fatalf("span %v: %v != %v", i, sp[i], want[i])
		}
	}
}

func TestAttach(t *testing.T) {
	cores := hal.Mkcores(2)
	tr := Mktrace(2)
	tr.Attach(cores)
	cores.Claim(1, 4)
	cores.Handoff(1, 5)
	cores.Release(1)
	evs := tr.Events()
	if len(evs) != 3 || evs[0].Tid != 4 || evs[1].Tid != 5 || evs[2].Tid != defs.TID_NONE {
		t.Fatalf("events %v", evs)
	}
}

func TestRender(t *testing.T) {
	tr := Mktrace(3)
	tr.Record(0, 1, 0)
	tr.Record(2, 2, time.Microsecond)
	var b bytes.Buffer
	if err := tr.Render(&b); err != nil {
		t.Fatalf("render: %v", err)
	}
	img, err := png.Decode(&b)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if img.Bounds().Dx() != WIDTH || img.Bounds().Dy() != ROWH*4 {
		t.Fatalf("size %v", img.Bounds())
	}
}
