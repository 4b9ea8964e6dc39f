package profiler

import (
	"bytes"
	"strings"
	"testing"
)

func TestOpCounterTop(t *testing.T) {
	c := NewOpCounter([]string{"Nop", "Add", "Move"})
	for i := 0; i < 5; i++ {
		c.Count(2)
	}
	c.Count(1)
	if c.Total() != 6 {
		t.Errorf("Total = %d", c.Total())
	}
	top := c.Top(10)
	if len(top) != 2 || top[0].Name != "Move" || top[0].Count != 5 {
		t.Errorf("Top = %+v", top)
	}
}

func TestCallTrackerStack(t *testing.T) {
	tr := NewCallTracker()
	tr.Enter("main")
	tr.Enter("fib")
	got := tr.Stack()
	if len(got) != 2 || got[0] != "main" || got[1] != "fib" {
		t.Errorf("Stack = %v", got)
	}
	tr.Exit()
	tr.Exit()
	tr.Exit() // unbalanced exit is ignored

	var buf bytes.Buffer
	tr.Report(&buf)
	if !strings.Contains(buf.String(), "fib") {
		t.Errorf("report:\n%s", buf.String())
	}
}

func TestHotLoopDetectorFiresOnce(t *testing.T) {
	d := NewHotLoopDetector(3)
	fired := 0
	for i := 0; i < 10; i++ {
		if d.Tick(7) {
			fired++
		}
	}
	if fired != 1 {
		t.Errorf("fired %d times", fired)
	}
	if sites := d.HotSites(); len(sites) != 1 || sites[0] != 7 {
		t.Errorf("HotSites = %v", sites)
	}
	if d.Tick(8) {
		t.Error("cold site reported hot")
	}
}

func TestFlameGraphFolded(t *testing.T) {
	f := NewFlameGraph()
	f.Sample([]string{"main", "outer", "inner"})
	f.Sample([]string{"main", "outer", "inner"})
	f.Sample([]string{"main", "outer"})
	f.Sample(nil)

	var buf bytes.Buffer
	if err := f.WriteFolded(&buf); err != nil {
		t.Fatal(err)
	}
	want := "main;outer 1\nmain;outer;inner 2\n"
	if buf.String() != want {
		t.Errorf("got:\n%s\nwant:\n%s", buf.String(), want)
	}
}

func TestAllocTracker(t *testing.T) {
	a := NewAllocTracker()
	a.Track("list", 64)
	a.Track("list", 32)
	a.Track("frame", 128)
	var buf bytes.Buffer
	a.Report(&buf)
	out := buf.String()
	if !strings.Contains(out, "list") || !strings.Contains(out, "96") {
		t.Errorf("report:\n%s", out)
	}
}

func TestNilProfilerIsInert(t *testing.T) {
	var p *Profiler
	if p.Enabled() {
		t.Error("nil profiler enabled")
	}
	p.CountOp(0)
	p.EnterCall("f")
	p.ExitCall()
	p.TrackAlloc("list", 8)
	if p.TickLoop(1) {
		t.Error("nil profiler detected a hot loop")
	}
	p.Report(&bytes.Buffer{})
	if p.Summary() != "" {
		t.Errorf("Summary = %q", p.Summary())
	}
}

func TestReportMentionsEverySection(t *testing.T) {
	p := New([]string{"Nop", "Add"}, 2)
	p.CountOp(1)
	p.EnterCall("main")
	p.ExitCall()
	p.TrackAlloc("closure", 32)
	p.TickLoop(3)
	p.TickLoop(3)

	var buf bytes.Buffer
	p.Report(&buf)
	out := buf.String()
	for _, want := range []string{"profile", "Add", "calls:", "allocations:", "hot loops: 1"} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in:\n%s", want, out)
		}
	}
}
