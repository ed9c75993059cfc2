package particles

import (
	"fmt"

	"github.com/phil-mansfield/particles/geom"
)

// noCopy flags Particle values which are copied by assignment. go vet's
// copylocks check reports them.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// Particle is a point with an id, a location in real space, a location in
// the reference frame of the mesh cell containing it, and an optional slot
// of properties in a PropertyPool.
//
// A Particle owns its property slot. Particles must not be copied with
// assignment: doing so would let two particles release the same slot. Use
// Clone or CopyFrom to duplicate a particle (which allocates a new slot) and
// Move or MoveFrom to transfer the slot. Free releases the slot once the
// particle is no longer needed.
//
// The pool is not owned by the particle and must outlive it.
type Particle struct {
	_ noCopy

	location          geom.Point
	referenceLocation geom.Point
	id                Index

	pool   *PropertyPool
	handle Handle
}

// New returns a particle with id 0 and no pool whose locations have
// spaceDim and dim components. Both locations are set to
// geom.UninitializedValue.
func New(dim, spaceDim int) *Particle {
	return &Particle{
		location:          geom.Uninitialized(spaceDim),
		referenceLocation: geom.Uninitialized(dim),
	}
}

// NewAt returns a particle with the given locations and id and no pool. The
// points are copied.
func NewAt(location, referenceLocation geom.Point, id Index) *Particle {
	return &Particle{
		location:          location.Copy(),
		referenceLocation: referenceLocation.Copy(),
		id:                id,
	}
}

// Clone returns a copy of p. If p has properties, the copy gets a new slot in
// the same pool holding the same values, so the two particles never share
// storage.
func (p *Particle) Clone() *Particle {
	q := &Particle{}
	q.CopyFrom(p)
	return q
}

// CopyFrom makes p a copy of src, as Clone does. Any slot p held beforehand
// is released first.
func (p *Particle) CopyFrom(src *Particle) {
	if p == src { return }
	p.Free()

	p.location = src.location.Copy()
	p.referenceLocation = src.referenceLocation.Copy()
	p.id = src.id
	p.pool = src.pool

	if src.HasProperties() {
		p.handle = p.pool.RegisterParticle()
		// Registration can move records, so both views are taken afterwards.
		copy(p.pool.Properties(p.handle), src.pool.Properties(src.handle))
	}
}

// Move returns a particle which takes over the state of p, including its
// property slot and coordinates. Afterwards p has no properties and no
// coordinates, and freeing it does not touch the pool.
func (p *Particle) Move() *Particle {
	q := &Particle{}
	q.MoveFrom(p)
	return q
}

// MoveFrom transfers the state of src to p without allocating. Any slot p
// held beforehand is released first. src keeps its id and pool but is left
// without properties or coordinates, so it can only be freed, discarded or
// moved into.
func (p *Particle) MoveFrom(src *Particle) {
	if p == src { return }
	p.Free()

	p.location = src.location
	p.referenceLocation = src.referenceLocation
	p.id = src.id
	p.pool = src.pool
	p.handle = src.handle

	src.location = nil
	src.referenceLocation = nil
	src.handle = InvalidHandle
}

// Free releases p's property slot, if it has one. It is safe to call Free
// more than once and on particles that were moved from.
func (p *Particle) Free() {
	if p.pool != nil && p.handle.IsValid() {
		p.pool.DeregisterParticle(p.handle)
	}
	p.handle = InvalidHandle
}

// ID returns the global index of p.
func (p *Particle) ID() Index { return p.id }

// SetID sets the global index of p.
func (p *Particle) SetID(id Index) { p.id = id }

// Location returns the location of p in real space. The returned point
// aliases the particle.
func (p *Particle) Location() geom.Point { return p.location }

// SetLocation copies loc into the location of p. loc must have the same
// dimension as the existing location.
func (p *Particle) SetLocation(loc geom.Point) {
	if len(loc) != len(p.location) {
		internalError(
			"location has dimension %d, but was given a point with "+
				"dimension %d", len(p.location), len(loc),
		)
	}
	copy(p.location, loc)
}

// ReferenceLocation returns the location of p in the reference frame of the
// cell containing it. The returned point aliases the particle.
func (p *Particle) ReferenceLocation() geom.Point { return p.referenceLocation }

// SetReferenceLocation copies loc into the reference location of p. loc must
// have the same dimension as the existing reference location.
func (p *Particle) SetReferenceLocation(loc geom.Point) {
	if len(loc) != len(p.referenceLocation) {
		internalError(
			"reference location has dimension %d, but was given a point "+
				"with dimension %d", len(p.referenceLocation), len(loc),
		)
	}
	copy(p.referenceLocation, loc)
}

// Dim returns the dimension of the reference location of p.
func (p *Particle) Dim() int { return len(p.referenceLocation) }

// SpaceDim returns the dimension of the location of p.
func (p *Particle) SpaceDim() int { return len(p.location) }

// PropertyPool returns the pool p draws its properties from, or nil.
func (p *Particle) PropertyPool() *PropertyPool { return p.pool }

// SetPropertyPool attaches p to pool. A particle which already holds a slot
// cannot be moved to a different pool.
func (p *Particle) SetPropertyPool(pool *PropertyPool) {
	if p.handle.IsValid() && pool != p.pool {
		internalError("cannot change the pool of a particle holding %s", p.handle)
	}
	p.pool = pool
}

// HasProperties returns true if p currently holds a property slot.
func (p *Particle) HasProperties() bool {
	return p.pool != nil && p.handle.IsValid()
}

// Properties returns the property slot of p, allocating and zeroing one if p
// does not have one yet. p must have a pool. The returned slice aliases the
// pool and is invalidated by the next registration or deregistration on it.
func (p *Particle) Properties() []float64 {
	if p.pool == nil {
		internalError("particle %d has no property pool", p.id)
	}

	if !p.handle.IsValid() {
		p.handle = p.pool.RegisterParticle()
		props := p.pool.Properties(p.handle)
		for i := range props { props[i] = 0 }
		return props
	}
	return p.pool.Properties(p.handle)
}

// SetProperties copies props into the property slot of p, allocating the
// slot if needed. p must have a pool. If len(props) differs from the pool
// width a *LengthMismatchError is returned and nothing is modified.
func (p *Particle) SetProperties(props []float64) error {
	if p.pool == nil {
		internalError("particle %d has no property pool", p.id)
	}
	if n := p.pool.NPropertiesPerSlot(); len(props) != n {
		return &LengthMismatchError{Want: n, Got: len(props)}
	}

	if !p.handle.IsValid() {
		p.handle = p.pool.RegisterParticle()
	}
	copy(p.pool.Properties(p.handle), props)
	return nil
}

// Identical returns true if p and q have the same id, bit-identical
// locations, and bit-identical properties. The pools themselves need not be
// the same.
func (p *Particle) Identical(q *Particle) bool {
	if p.id != q.id || !p.location.Identical(q.location) ||
		!p.referenceLocation.Identical(q.referenceLocation) {
		return false
	}
	if p.HasProperties() != q.HasProperties() { return false }
	if !p.HasProperties() { return true }
	return geom.Point(p.pool.Properties(p.handle)).Identical(
		q.pool.Properties(q.handle),
	)
}

func (p *Particle) String() string {
	return fmt.Sprintf(
		"Particle{id: %d, location: %v, reference: %v, %s}",
		p.id, []float64(p.location), []float64(p.referenceLocation), p.handle,
	)
}
