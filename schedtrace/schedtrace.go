package schedtrace

import "fmt"
import "image/png"
import "io"
import "time"

import "github.com/fogleman/gg"

import "github.com/NomadArchitect/microkernel/defs"
import "github.com/NomadArchitect/microkernel/hal"
import "github.com/NomadArchitect/microkernel/ksync"

// Event_t records that core switched to thread Tid at At. Tid is TID_NONE
// when the core went idle.
type Event_t struct {
	Core int
	Tid  defs.Tid_t
	At   time.Duration
}

// Span_t is one stretch of a thread on a core.
type Span_t struct {
	Core  int
	Tid   defs.Tid_t
	Start time.Duration
	End   time.Duration
}

type Trace_t struct {
	lock   ksync.Spinlock_t
	start  time.Time
	ncores int
	events []Event_t
}

func Mktrace(ncores int) *Trace_t {
	return &Trace_t{start: time.Now(), ncores: ncores}
}

// Attach records every core switch of cores.
func (tr *Trace_t) Attach(cores *hal.Cores_t) {
	cores.Onswitch = func(core int, tid defs.Tid_t) {
		tr.Record(core, tid, time.Since(tr.start))
	}
}

func (tr *Trace_t) Record(core int, tid defs.Tid_t, at time.Duration) {
	if core < 0 || core >= tr.ncores {
		panic("bad core")
	}
	tr.lock.Lock()
	tr.events = append(tr.events, Event_t{Core: core, Tid: tid, At: at})
	tr.lock.Unlock()
}

func (tr *Trace_t) Events() []Event_t {
	tr.lock.Lock()
	ret := append([]Event_t(nil), tr.events...)
	tr.lock.Unlock()
	return ret
}

// Spans turns the events into per-core spans. a core still busy at end gets
// a span up to end.
func (tr *Trace_t) Spans(end time.Duration) []Span_t {
	evs := tr.Events()
	open := make([]*Span_t, tr.ncores)
	var ret []Span_t
	closeat := func(c int, at time.Duration) {
		if s := open[c]; s != nil {
			s.End = at
			ret = append(ret, *s)
			open[c] = nil
		}
	}
	for _, e := range evs {
		closeat(e.Core, e.At)
		if e.Tid != defs.TID_NONE {
			open[e.Core] = &Span_t{Core: e.Core, Tid: e.Tid, Start: e.At}
		}
	}
	for c := range open {
		closeat(c, end)
	}
	return ret
}

var palette = [][3]float64{
	{0.90, 0.30, 0.24},
	{0.18, 0.55, 0.34},
	{0.20, 0.40, 0.75},
	{0.95, 0.61, 0.07},
	{0.56, 0.27, 0.68},
	{0.10, 0.67, 0.70},
	{0.50, 0.50, 0.50},
}

const (
	ROWH   = 28
	LABELW = 70
	WIDTH  = 900
)

// Render draws the timeline as a PNG: one row per core, one colored box per
// span, labeled with the thread id.
func (tr *Trace_t) Render(w io.Writer) error {
	end := time.Since(tr.start)
	spans := tr.Spans(end)
	if end <= 0 {
		end = 1
	}
	h := ROWH * (tr.ncores + 1)
	dc := gg.NewContext(WIDTH, h)
	dc.SetRGB(1, 1, 1)
	dc.Clear()
	scale := float64(WIDTH-LABELW-10) / float64(end)
	dc.SetRGB(0, 0, 0)
	for c := 0; c < tr.ncores; c++ {
		y := float64(ROWH*c + ROWH/2)
		dc.DrawStringAnchored(fmt.Sprintf("core %d", c), 8, y, 0, 0.5)
	}
	for _, s := range spans {
		x := LABELW + float64(s.Start)*scale
		wd := float64(s.End-s.Start) * scale
		if wd < 1 {
			wd = 1
		}
		col := palette[int(s.Tid)%len(palette)]
		dc.SetRGB(col[0], col[1], col[2])
		dc.DrawRectangle(x, float64(ROWH*s.Core+4), wd, ROWH-8)
		dc.Fill()
		if wd > 30 {
			dc.SetRGB(1, 1, 1)
			dc.DrawStringAnchored(fmt.Sprintf("%d", s.Tid), x+wd/2,
				float64(ROWH*s.Core+ROWH/2), 0.5, 0.5)
		}
	}
	dc.SetRGB(0, 0, 0)
	dc.DrawStringAnchored(fmt.Sprintf("%v", end.Round(time.Microsecond)),
		WIDTH-10, float64(h-ROWH/2), 1, 0.5)
	return png.Encode(w, dc.Image())
}
