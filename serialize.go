package particles

import (
	"github.com/phil-mansfield/particles/buffer"
	"github.com/phil-mansfield/particles/geom"
)

// SerializedSize returns the number of bytes WriteData writes for p in its
// current state. Buffers sized with it are exactly large enough.
func (p *Particle) SerializedSize() int {
	size := buffer.IndexSize +
		buffer.Float64Size*(len(p.location)+len(p.referenceLocation))
	if p.HasProperties() {
		size += buffer.Float64Size * p.pool.NPropertiesPerSlot()
	}
	return size
}

// encodedSize returns the size of a record read with the given dimensions
// into pool.
func encodedSize(dim, spaceDim int, pool *PropertyPool) int {
	size := buffer.IndexSize + buffer.Float64Size*(dim+spaceDim)
	if pool != nil {
		size += buffer.Float64Size * pool.NPropertiesPerSlot()
	}
	return size
}

// WriteData appends the binary representation of p to w. If w does not have
// room for the whole particle an error wrapping buffer.ErrOverrun is
// returned and nothing is written.
func (p *Particle) WriteData(w *buffer.Writer) error {
	if err := w.Reserve(p.SerializedSize()); err != nil { return err }

	// The reservation above guarantees that none of these fail.
	w.PutIndex(uint64(p.id))
	w.PutFloat64s(p.location)
	w.PutFloat64s(p.referenceLocation)
	if p.HasProperties() {
		w.PutFloat64s(p.pool.Properties(p.handle))
	}
	return nil
}

// DecodeParticle reads a particle with the given dimensions from r. If pool
// is non-nil, a new slot is registered in it and the particle's properties
// are read into that slot; the data must then contain exactly
// pool.NPropertiesPerSlot() properties. If r does not hold a whole particle
// an error wrapping buffer.ErrOverrun is returned, r is not advanced and
// pool is left untouched.
func DecodeParticle(
	r *buffer.Reader, dim, spaceDim int, pool *PropertyPool,
) (*Particle, error) {
	if err := r.Reserve(encodedSize(dim, spaceDim, pool)); err != nil {
		return nil, err
	}

	p := &Particle{
		location:          make(geom.Point, spaceDim),
		referenceLocation: make(geom.Point, dim),
		pool:              pool,
	}
	p.readFields(r)

	if pool != nil {
		p.handle = pool.RegisterParticle()
		r.Float64s(pool.Properties(p.handle))
	}
	return p, nil
}

// UpdateParticleData overwrites the id, locations and, if p has them, the
// properties of p with data read from r. The data must have been written by
// a particle with the same dimensions and the same property layout. No slot
// is allocated: existing properties are overwritten in place.
func (p *Particle) UpdateParticleData(r *buffer.Reader) error {
	if err := r.Reserve(p.SerializedSize()); err != nil { return err }

	p.readFields(r)
	if p.HasProperties() {
		r.Float64s(p.pool.Properties(p.handle))
	}
	return nil
}

// readFields reads the id and both locations. The caller has already checked
// that r holds enough data.
func (p *Particle) readFields(r *buffer.Reader) {
	id, _ := r.Index()
	p.id = Index(id)
	r.Float64s(p.location)
	r.Float64s(p.referenceLocation)
}
