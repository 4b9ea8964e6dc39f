package vm

// CacheState tracks the specialization level of an inline cache site.
type CacheState uint8

const (
	CacheUninitialized CacheState = iota
	CacheMonomorphic
	CachePolymorphic
	CacheMegamorphic
)

func (s CacheState) String() string {
	switch s {
	case CacheUninitialized:
		return "uninitialized"
	case CacheMonomorphic:
		return "monomorphic"
	case CachePolymorphic:
		return "polymorphic"
	default:
		return "megamorphic"
	}
}

// PolyCacheSize is how many shapes a property site tracks before it goes
// megamorphic and falls back to the generic lookup path.
const PolyCacheSize = 4

// QuickenThreshold is how many same-typed executions a binary-op site
// needs before it is rewritten to its typed form.
const QuickenThreshold = 16

type propEntry struct {
	shape  *Shape
	offset int
	method bool // cached hit is a class method, not a field slot
}

// PropCache is a per-site property cache keyed by shape. Entries are kept
// in most-recently-hit order so the common shape is checked first.
type PropCache struct {
	state   CacheState
	entries []propEntry

	hits   uint64
	misses uint64
}

// Lookup returns the cached offset for a shape, move-to-fronting the hit.
func (c *PropCache) Lookup(shape *Shape) (int, bool, bool) {
	for i, e := range c.entries {
		if e.shape == shape {
			if i > 0 {
				copy(c.entries[1:i+1], c.entries[0:i])
				c.entries[0] = e
			}
			c.hits++
			return e.offset, e.method, true
		}
	}
	c.misses++
	return 0, false, false
}

// Insert records a resolved lookup, advancing the cache state machine.
func (c *PropCache) Insert(shape *Shape, offset int, method bool) {
	switch c.state {
	case CacheUninitialized:
		c.entries = append(c.entries, propEntry{shape, offset, method})
		c.state = CacheMonomorphic
	case CacheMonomorphic, CachePolymorphic:
		if len(c.entries) >= PolyCacheSize {
			c.state = CacheMegamorphic
			c.entries = nil
			return
		}
		c.entries = append(c.entries, propEntry{shape, offset, method})
		c.state = CachePolymorphic
	case CacheMegamorphic:
		// Generic path only; nothing to record.
	}
}

func (c *PropCache) State() CacheState     { return c.state }
func (c *PropCache) Stats() (hits, misses uint64) { return c.hits, c.misses }

// CallCache is a monomorphic call-site cache: it pins the one callee seen
// at the site so repeated calls skip callee inspection.
type CallCache struct {
	state  CacheState
	callee *ClosureObj

	hits   uint64
	misses uint64
}

// Check reports whether the callee matches the cached one, updating the
// cache state on the way.
func (c *CallCache) Check(callee *ClosureObj) bool {
	switch c.state {
	case CacheUninitialized:
		c.callee = callee
		c.state = CacheMonomorphic
		c.misses++
		return false
	case CacheMonomorphic:
		if c.callee == callee {
			c.hits++
			return true
		}
		c.state = CacheMegamorphic
		c.callee = nil
		c.misses++
		return false
	default:
		c.misses++
		return false
	}
}

func (c *CallCache) State() CacheState { return c.state }

// BinopProfile counts consecutive same-typed executions of an arithmetic
// site. After QuickenThreshold stable runs it reports ready, and the
// instruction is rewritten to its typed variant.
type BinopProfile struct {
	lhs   ValueKind
	rhs   ValueKind
	count uint32
	dead  bool // deoptimized once; never quicken again
}

// Observe feeds one execution's operand kinds. Returns true when the site
// has been stable for exactly QuickenThreshold executions.
func (p *BinopProfile) Observe(lhs, rhs ValueKind) bool {
	if p.dead {
		return false
	}
	if p.count == 0 || lhs != p.lhs || rhs != p.rhs {
		p.lhs, p.rhs = lhs, rhs
		p.count = 1
		return false
	}
	p.count++
	return p.count == QuickenThreshold
}

// Kinds returns the stable operand kinds driving the rewrite.
func (p *BinopProfile) Kinds() (ValueKind, ValueKind) { return p.lhs, p.rhs }

// Deopt marks the site permanently generic after a guard failure.
func (p *BinopProfile) Deopt() { p.dead = true; p.count = 0 }

// siteCaches holds the lazily-allocated per-instruction caches of one
// proto. Maps are keyed by instruction index; most instructions never
// allocate a cache.
type siteCaches struct {
	props  map[int]*PropCache
	calls  map[int]*CallCache
	binops map[int]*BinopProfile
}

func (p *Proto) sites() *siteCaches {
	if p.caches == nil {
		p.caches = &siteCaches{}
	}
	return p.caches
}

func (p *Proto) propCache(ip int) *PropCache {
	s := p.sites()
	if s.props == nil {
		s.props = make(map[int]*PropCache)
	}
	c := s.props[ip]
	if c == nil {
		c = &PropCache{}
		s.props[ip] = c
	}
	return c
}

func (p *Proto) callCache(ip int) *CallCache {
	s := p.sites()
	if s.calls == nil {
		s.calls = make(map[int]*CallCache)
	}
	c := s.calls[ip]
	if c == nil {
		c = &CallCache{}
		s.calls[ip] = c
	}
	return c
}

func (p *Proto) binopProfile(ip int) *BinopProfile {
	s := p.sites()
	if s.binops == nil {
		s.binops = make(map[int]*BinopProfile)
	}
	c := s.binops[ip]
	if c == nil {
		c = &BinopProfile{}
		s.binops[ip] = c
	}
	return c
}

// CacheStats aggregates inline-cache statistics across a proto tree, for
// the profiler report.
type CacheStats struct {
	PropSites   int
	PropHits    uint64
	PropMisses  uint64
	Megamorphic int
}

func CollectCacheStats(p *Proto) CacheStats {
	var st CacheStats
	collectCacheStats(p, &st)
	return st
}

func collectCacheStats(p *Proto, st *CacheStats) {
	if p.caches != nil {
		for _, c := range p.caches.props {
			st.PropSites++
			h, m := c.Stats()
			st.PropHits += h
			st.PropMisses += m
			if c.State() == CacheMegamorphic {
				st.Megamorphic++
			}
		}
	}
	for _, sub := range p.Protos {
		collectCacheStats(sub, st)
	}
}
