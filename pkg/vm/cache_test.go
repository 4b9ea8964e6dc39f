package vm

import "testing"

func TestPropCacheStateMachine(t *testing.T) {
	c := &PropCache{}
	if c.State() != CacheUninitialized {
		t.Fatalf("fresh cache state = %s", c.State())
	}

	shapes := make([]*Shape, PolyCacheSize+1)
	root := newRootShape()
	names := []string{"a", "b", "c", "d", "e"}
	for i := range shapes {
		shapes[i] = root.Transition(names[i])
	}

	c.Insert(shapes[0], 0, false)
	if c.State() != CacheMonomorphic {
		t.Errorf("after 1 shape: %s, want monomorphic", c.State())
	}
	c.Insert(shapes[1], 1, false)
	if c.State() != CachePolymorphic {
		t.Errorf("after 2 shapes: %s, want polymorphic", c.State())
	}
	c.Insert(shapes[2], 2, false)
	c.Insert(shapes[3], 3, false)
	if c.State() != CachePolymorphic {
		t.Errorf("at capacity: %s, want polymorphic", c.State())
	}
	c.Insert(shapes[4], 4, false)
	if c.State() != CacheMegamorphic {
		t.Errorf("over capacity: %s, want megamorphic", c.State())
	}
	if _, _, ok := c.Lookup(shapes[0]); ok {
		t.Errorf("megamorphic cache still returned a hit")
	}
}

func TestPropCacheMoveToFront(t *testing.T) {
	c := &PropCache{}
	root := newRootShape()
	s1 := root.Transition("x")
	s2 := root.Transition("y")
	c.Insert(s1, 0, false)
	c.Insert(s2, 0, false)

	// Hitting the second entry should promote it.
	if _, _, ok := c.Lookup(s2); !ok {
		t.Fatalf("expected hit for s2")
	}
	if c.entries[0].shape != s2 {
		t.Errorf("hit entry not moved to front")
	}

	hits, misses := c.Stats()
	if hits != 1 || misses != 0 {
		t.Errorf("stats = (%d, %d), want (1, 0)", hits, misses)
	}
	c.Lookup(root.Transition("z"))
	if _, misses := c.Stats(); misses != 1 {
		t.Errorf("miss not counted")
	}
}

func TestCallCachePinsOneCallee(t *testing.T) {
	c := &CallCache{}
	f := &ClosureObj{Proto: &Proto{Name: "f"}}
	g := &ClosureObj{Proto: &Proto{Name: "g"}}

	if c.Check(f) {
		t.Errorf("first check reported a hit")
	}
	if !c.Check(f) {
		t.Errorf("repeat check missed")
	}
	if c.Check(g) {
		t.Errorf("different callee reported a hit")
	}
	if c.State() != CacheMegamorphic {
		t.Errorf("state after mismatch = %s, want megamorphic", c.State())
	}
	if c.Check(f) {
		t.Errorf("megamorphic site reported a hit")
	}
}

func TestBinopProfileQuickensAtThreshold(t *testing.T) {
	p := &BinopProfile{}
	for i := 1; i < QuickenThreshold; i++ {
		if p.Observe(KindInt, KindInt) {
			t.Fatalf("ready after %d observations, threshold is %d", i, QuickenThreshold)
		}
	}
	if !p.Observe(KindInt, KindInt) {
		t.Fatalf("not ready at observation %d", QuickenThreshold)
	}
	if p.Observe(KindInt, KindInt) {
		t.Errorf("reported ready twice")
	}
	if l, r := p.Kinds(); l != KindInt || r != KindInt {
		t.Errorf("Kinds = (%d, %d)", l, r)
	}
}

func TestBinopProfileResetsOnTypeChange(t *testing.T) {
	p := &BinopProfile{}
	for i := 0; i < QuickenThreshold-1; i++ {
		p.Observe(KindInt, KindInt)
	}
	p.Observe(KindFloat, KindFloat) // type change restarts the count
	for i := 1; i < QuickenThreshold-1; i++ {
		if p.Observe(KindFloat, KindFloat) {
			t.Fatalf("ready too early after reset")
		}
	}
	if !p.Observe(KindFloat, KindFloat) {
		t.Errorf("never ready after reset")
	}
}

func TestBinopProfileDeoptIsPermanent(t *testing.T) {
	p := &BinopProfile{}
	p.Deopt()
	for i := 0; i < QuickenThreshold*2; i++ {
		if p.Observe(KindInt, KindInt) {
			t.Fatalf("deoptimized site became ready again")
		}
	}
}

func TestProtoSiteCachesAreLazyAndStable(t *testing.T) {
	p := &Proto{}
	if p.caches != nil {
		t.Fatalf("caches allocated eagerly")
	}
	c := p.propCache(3)
	if c != p.propCache(3) {
		t.Errorf("same ip yielded different caches")
	}
	if p.propCache(4) == c {
		t.Errorf("different ips share a cache")
	}

	st := CollectCacheStats(p)
	if st.PropSites != 2 {
		t.Errorf("PropSites = %d, want 2", st.PropSites)
	}
}
