package vm

// Shape describes the field layout of a set of instances. Instances that
// add the same fields in the same order share a shape, which is what makes
// property inline caches effective: a cache hit is one pointer compare.
//
// Shapes form a transition tree. Adding field "x" to an instance with shape
// S moves it to the child shape S.transitions["x"], creating it on first
// use. The tree is shared by every instance of the class, so two instances
// built by the same init end up with the same shape pointer.
type Shape struct {
	fields      map[string]int    // field name -> slot offset
	transitions map[string]*Shape // field name -> successor shape
	id          uint32
}

var nextShapeID uint32

func newRootShape() *Shape {
	nextShapeID++
	return &Shape{
		fields:      map[string]int{},
		transitions: map[string]*Shape{},
		id:          nextShapeID,
	}
}

// Offset returns the slot of a field in this shape.
func (s *Shape) Offset(name string) (int, bool) {
	off, ok := s.fields[name]
	return off, ok
}

// NumFields returns how many slots instances of this shape carry.
func (s *Shape) NumFields() int { return len(s.fields) }

// Transition returns the shape reached by adding one field, creating and
// memoizing it on first use. The new field's slot is the current count.
func (s *Shape) Transition(name string) *Shape {
	if next, ok := s.transitions[name]; ok {
		return next
	}
	nextShapeID++
	next := &Shape{
		fields:      make(map[string]int, len(s.fields)+1),
		transitions: map[string]*Shape{},
		id:          nextShapeID,
	}
	for k, v := range s.fields {
		next.fields[k] = v
	}
	next.fields[name] = len(s.fields)
	s.transitions[name] = next
	return next
}

// ID is a stable identifier used by cache diagnostics.
func (s *Shape) ID() uint32 { return s.id }
