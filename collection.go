package particles

// Collection is an unordered container of particles. It owns the particles
// inserted into it: Insert moves them in, Extract moves them out, and Remove
// and Free release their properties.
type Collection struct {
	ps []*Particle
}

// NewCollection returns an empty collection with room for n particles.
func NewCollection(n int) *Collection {
	return &Collection{make([]*Particle, 0, n)}
}

// Len returns the number of particles in the collection.
func (c *Collection) Len() int { return len(c.ps) }

// At returns the i-th particle. The particle remains owned by the
// collection, and indices change when particles are removed.
func (c *Collection) At(i int) *Particle { return c.ps[i] }

// Insert moves p into the collection. p is left without properties.
func (c *Collection) Insert(p *Particle) {
	c.ps = append(c.ps, p.Move())
}

// Find returns the index of the first particle with the given id, or -1.
func (c *Collection) Find(id Index) int {
	for i, p := range c.ps {
		if p.id == id { return i }
	}
	return -1
}

// Remove frees the i-th particle and replaces it with the last one.
func (c *Collection) Remove(i int) {
	c.ps[i].Free()
	c.swapPop(i)
}

// Extract removes every particle for which match returns true and returns
// them. Ownership of their property slots passes to the caller.
func (c *Collection) Extract(match func(p *Particle) bool) []*Particle {
	out := []*Particle{}
	for i := 0; i < len(c.ps); {
		if match(c.ps[i]) {
			out = append(out, c.ps[i])
			c.swapPop(i)
		} else {
			i++
		}
	}
	return out
}

// Free releases the properties of every particle and empties the
// collection.
func (c *Collection) Free() {
	for _, p := range c.ps { p.Free() }
	c.ps = c.ps[:0]
}

func (c *Collection) swapPop(i int) {
	last := len(c.ps) - 1
	c.ps[i] = c.ps[last]
	c.ps[last] = nil
	c.ps = c.ps[:last]
}
