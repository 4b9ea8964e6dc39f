// Package profiler collects execution statistics from the interpreter:
// opcode frequencies, call timings, hot-loop detection, allocation counts
// and folded stacks for flame graph rendering. All counters are atomic so
// goroutine-spawned interpreters can share one profiler.
package profiler

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("axiom.profiler")

// OpCounter counts executed instructions per opcode.
type OpCounter struct {
	counts []atomic.Uint64
	names  []string
}

func NewOpCounter(names []string) *OpCounter {
	return &OpCounter{counts: make([]atomic.Uint64, len(names)), names: names}
}

// Count records one execution of the given opcode.
func (c *OpCounter) Count(op int) {
	c.counts[op].Add(1)
}

// Total returns the number of instructions executed.
func (c *OpCounter) Total() uint64 {
	var total uint64
	for i := range c.counts {
		total += c.counts[i].Load()
	}
	return total
}

type opCount struct {
	name  string
	count uint64
}

// Top returns the n most executed opcodes, descending.
func (c *OpCounter) Top(n int) []struct {
	Name  string
	Count uint64
} {
	all := make([]opCount, 0, len(c.counts))
	for i := range c.counts {
		if v := c.counts[i].Load(); v > 0 {
			all = append(all, opCount{c.names[i], v})
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].count > all[j].count })
	if n > len(all) {
		n = len(all)
	}
	out := make([]struct {
		Name  string
		Count uint64
	}, n)
	for i := 0; i < n; i++ {
		out[i] = struct {
			Name  string
			Count uint64
		}{all[i].name, all[i].count}
	}
	return out
}

// PrintTop writes the n hottest opcodes with their share of all executions.
func (c *OpCounter) PrintTop(w io.Writer, n int) {
	total := c.Total()
	if total == 0 {
		fmt.Fprintln(w, "no instructions executed")
		return
	}
	fmt.Fprintf(w, "top %d opcodes of %d executed:\n", n, total)
	for _, e := range c.Top(n) {
		fmt.Fprintf(w, "  %-14s %12d  %5.1f%%\n",
			e.Name, e.Count, float64(e.Count)*100/float64(total))
	}
}

// callStat is the per-function timing record of the CallTracker.
type callStat struct {
	calls uint64
	total time.Duration // including callees
	self  time.Duration // excluding callees
}

// CallTracker measures call counts and self/total time per function. Enter
// and Exit must pair; the tracker maintains the active stack per tracker,
// so each interpreter goroutine uses its own tracker stack.
type CallTracker struct {
	mu    sync.Mutex
	stats map[string]*callStat
	stack []callFrame
}

type callFrame struct {
	name     string
	start    time.Time
	children time.Duration
}

func NewCallTracker() *CallTracker {
	return &CallTracker{stats: make(map[string]*callStat)}
}

// Enter marks a call into name.
func (t *CallTracker) Enter(name string) {
	t.mu.Lock()
	t.stack = append(t.stack, callFrame{name: name, start: time.Now()})
	t.mu.Unlock()
}

// Exit marks the return from the innermost call.
func (t *CallTracker) Exit() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.stack) == 0 {
		return
	}
	fr := t.stack[len(t.stack)-1]
	t.stack = t.stack[:len(t.stack)-1]
	elapsed := time.Since(fr.start)

	st := t.stats[fr.name]
	if st == nil {
		st = &callStat{}
		t.stats[fr.name] = st
	}
	st.calls++
	st.total += elapsed
	st.self += elapsed - fr.children

	if len(t.stack) > 0 {
		t.stack[len(t.stack)-1].children += elapsed
	}
}

// Stack snapshots the active call stack, outermost first.
func (t *CallTracker) Stack() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, len(t.stack))
	for i, fr := range t.stack {
		out[i] = fr.name
	}
	return out
}

// Report writes per-function timings sorted by self time.
func (t *CallTracker) Report(w io.Writer) {
	t.mu.Lock()
	defer t.mu.Unlock()
	type row struct {
		name string
		st   *callStat
	}
	rows := make([]row, 0, len(t.stats))
	for name, st := range t.stats {
		rows = append(rows, row{name, st})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].st.self > rows[j].st.self })
	fmt.Fprintf(w, "%-24s %10s %12s %12s\n", "function", "calls", "self", "total")
	for _, r := range rows {
		fmt.Fprintf(w, "%-24s %10d %12s %12s\n",
			r.name, r.st.calls, r.st.self.Round(time.Microsecond),
			r.st.total.Round(time.Microsecond))
	}
}

// HotLoopDetector notices back-edges that execute often. Tick returns true
// exactly once per site, when its count reaches the threshold.
type HotLoopDetector struct {
	mu        sync.Mutex
	counts    map[uint64]uint64
	threshold uint64
}

func NewHotLoopDetector(threshold uint64) *HotLoopDetector {
	return &HotLoopDetector{counts: make(map[uint64]uint64), threshold: threshold}
}

// Tick records one execution of the back-edge identified by site.
func (d *HotLoopDetector) Tick(site uint64) bool {
	d.mu.Lock()
	d.counts[site]++
	hot := d.counts[site] == d.threshold
	d.mu.Unlock()
	if hot {
		log.Debugf("hot loop at site %#x (threshold %d)", site, d.threshold)
	}
	return hot
}

// HotSites returns every site that crossed the threshold.
func (d *HotLoopDetector) HotSites() []uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []uint64
	for site, n := range d.counts {
		if n >= d.threshold {
			out = append(out, site)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// AllocTracker counts allocations per object kind.
type AllocTracker struct {
	mu     sync.Mutex
	counts map[string]uint64
	bytes  map[string]uint64
}

func NewAllocTracker() *AllocTracker {
	return &AllocTracker{counts: make(map[string]uint64), bytes: make(map[string]uint64)}
}

func (a *AllocTracker) Track(kind string, size uint64) {
	a.mu.Lock()
	a.counts[kind]++
	a.bytes[kind] += size
	a.mu.Unlock()
}

func (a *AllocTracker) Report(w io.Writer) {
	a.mu.Lock()
	defer a.mu.Unlock()
	kinds := make([]string, 0, len(a.counts))
	for k := range a.counts {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return a.counts[kinds[i]] > a.counts[kinds[j]] })
	fmt.Fprintf(w, "%-12s %10s %12s\n", "kind", "count", "bytes")
	for _, k := range kinds {
		fmt.Fprintf(w, "%-12s %10d %12d\n", k, a.counts[k], a.bytes[k])
	}
}

// FlameGraph accumulates folded stack samples in the format consumed by
// flamegraph.pl and speedscope: "main;f;g 42" per line.
type FlameGraph struct {
	mu      sync.Mutex
	samples map[string]uint64
}

func NewFlameGraph() *FlameGraph {
	return &FlameGraph{samples: make(map[string]uint64)}
}

// Sample records one observation of the given stack, outermost first.
func (f *FlameGraph) Sample(stack []string) {
	if len(stack) == 0 {
		return
	}
	key := strings.Join(stack, ";")
	f.mu.Lock()
	f.samples[key]++
	f.mu.Unlock()
}

// WriteFolded writes the folded-stacks file.
func (f *FlameGraph) WriteFolded(w io.Writer) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	keys := make([]string, 0, len(f.samples))
	for k := range f.samples {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if _, err := fmt.Fprintf(w, "%s %d\n", k, f.samples[k]); err != nil {
			return err
		}
	}
	return nil
}

// Profiler bundles all collectors. A nil *Profiler is valid and disables
// every hook, so the interpreter can call through unconditionally.
type Profiler struct {
	Ops    *OpCounter
	Calls  *CallTracker
	Loops  *HotLoopDetector
	Allocs *AllocTracker
	Flame  *FlameGraph

	start time.Time
}

// New builds a profiler with every collector enabled.
func New(opNames []string, hotThreshold uint64) *Profiler {
	return &Profiler{
		Ops:    NewOpCounter(opNames),
		Calls:  NewCallTracker(),
		Loops:  NewHotLoopDetector(hotThreshold),
		Allocs: NewAllocTracker(),
		Flame:  NewFlameGraph(),
		start:  time.Now(),
	}
}

func (p *Profiler) Enabled() bool { return p != nil }

// CountOp is the per-instruction hook.
func (p *Profiler) CountOp(op int) {
	if p != nil {
		p.Ops.Count(op)
	}
}

// EnterCall / ExitCall bracket interpreted calls and feed the flame graph.
func (p *Profiler) EnterCall(name string) {
	if p == nil {
		return
	}
	p.Calls.Enter(name)
	p.Flame.Sample(p.Calls.Stack())
}

func (p *Profiler) ExitCall() {
	if p != nil {
		p.Calls.Exit()
	}
}

// TickLoop is the back-edge hook.
func (p *Profiler) TickLoop(site uint64) bool {
	if p == nil {
		return false
	}
	return p.Loops.Tick(site)
}

// TrackAlloc is the allocation hook.
func (p *Profiler) TrackAlloc(kind string, size uint64) {
	if p != nil {
		p.Allocs.Track(kind, size)
	}
}

// Report writes the full profile.
func (p *Profiler) Report(w io.Writer) {
	if p == nil {
		return
	}
	fmt.Fprintf(w, "=== profile (%s) ===\n", time.Since(p.start).Round(time.Millisecond))
	p.Ops.PrintTop(w, 10)
	fmt.Fprintln(w, "\ncalls:")
	p.Calls.Report(w)
	fmt.Fprintln(w, "\nallocations:")
	p.Allocs.Report(w)
	if hot := p.Loops.HotSites(); len(hot) > 0 {
		fmt.Fprintf(w, "\nhot loops: %d site(s)\n", len(hot))
	}
}

// Summary returns the one-line form printed after a profiled run.
func (p *Profiler) Summary() string {
	if p == nil {
		return ""
	}
	return fmt.Sprintf("profile: %d instructions, %d hot loop(s), %s elapsed",
		p.Ops.Total(), len(p.Loops.HotSites()), time.Since(p.start).Round(time.Millisecond))
}
