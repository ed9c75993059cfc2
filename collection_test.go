package particles

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCollectionInsert(t *testing.T) {
	pool := NewPropertyPool(1)
	c := NewCollection(4)

	p := newTestParticle(t, pool, 3, 30)
	c.Insert(p)
	assert.Equal(t, 1, c.Len())
	assert.False(t, p.HasProperties(), "insert moves the particle")
	assert.Equal(t, []float64{30}, c.At(0).Properties())
	assert.Equal(t, 1, pool.Live())

	// The caller may free its moved-from particle safely.
	p.Free()
	assert.Equal(t, 1, pool.Live())
}

func TestCollectionFindRemove(t *testing.T) {
	pool := NewPropertyPool(1)
	c := NewCollection(0)
	for i := 0; i < 4; i++ {
		c.Insert(newTestParticle(t, pool, Index(i), float64(i)))
	}

	assert.Equal(t, 2, c.Find(2))
	assert.Equal(t, -1, c.Find(10))

	c.Remove(c.Find(1))
	assert.Equal(t, 3, c.Len())
	assert.Equal(t, 3, pool.Live())
	assert.Equal(t, -1, c.Find(1))

	i := c.Find(3)
	assert.Equal(t, []float64{3}, c.At(i).Properties())

	c.Free()
	assert.Equal(t, 0, c.Len())
	assert.Equal(t, 0, pool.Live())
}

func TestCollectionExtract(t *testing.T) {
	pool := NewPropertyPool(1)
	c := NewCollection(8)
	for i := 0; i < 8; i++ {
		c.Insert(newTestParticle(t, pool, Index(i), float64(i)))
	}

	odd := c.Extract(func(p *Particle) bool { return p.ID()%2 == 1 })
	assert.Len(t, odd, 4)
	assert.Equal(t, 4, c.Len())
	assert.Equal(t, 8, pool.Live(), "extracted particles keep their slots")

	for _, p := range odd {
		assert.Equal(t, Index(1), p.ID()%2)
		assert.Equal(t, float64(p.ID()), p.Properties()[0])
		p.Free()
	}
	for i := 0; i < c.Len(); i++ {
		assert.Equal(t, Index(0), c.At(i).ID()%2)
	}
	assert.Equal(t, 4, pool.Live())

	none := c.Extract(func(p *Particle) bool { return false })
	assert.Len(t, none, 0)
}
