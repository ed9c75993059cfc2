package io

import (
	"fmt"
	"math"

	"github.com/phil-mansfield/table"

	"github.com/phil-mansfield/particles"
	"github.com/phil-mansfield/particles/geom"
)

// TableColumns returns the number of columns a particle table must have:
// the id, spaceDim location components, dim reference location components
// and the properties of pool.
func TableColumns(dim, spaceDim int, pool *particles.PropertyPool) int {
	n := 1 + spaceDim + dim
	if pool != nil { n += pool.NPropertiesPerSlot() }
	return n
}

// ReadParticleTable reads the particles stored in the text table fname into
// a new Collection. If pool is non-nil, each particle is given a slot in it
// and filled with the trailing property columns.
func ReadParticleTable(
	fname string, dim, spaceDim int, pool *particles.PropertyPool,
) (*particles.Collection, error) {
	colIdxs := make([]int, TableColumns(dim, spaceDim, pool))
	for i := range colIdxs { colIdxs[i] = i }

	cols, err := table.ReadTable(fname, colIdxs, nil)
	if err != nil { return nil, err }
	return particlesFromColumns(cols, dim, spaceDim, pool)
}

// particlesFromColumns converts column-major table data into particles.
func particlesFromColumns(
	cols [][]float64, dim, spaceDim int, pool *particles.PropertyPool,
) (*particles.Collection, error) {
	if len(cols) != TableColumns(dim, spaceDim, pool) {
		return nil, fmt.Errorf(
			"Expected %d columns, but found %d.",
			TableColumns(dim, spaceDim, pool), len(cols),
		)
	}

	n := len(cols[0])
	for i := range cols {
		if len(cols[i]) != n {
			return nil, fmt.Errorf(
				"Column %d has %d rows, but column 0 has %d.", i, len(cols[i]), n,
			)
		}
	}

	ids := cols[0]
	locCols := cols[1 : 1+spaceDim]
	refCols := cols[1+spaceDim : 1+spaceDim+dim]
	propCols := cols[1+spaceDim+dim:]

	if pool != nil { pool.Reserve(pool.Live() + n) }

	c := particles.NewCollection(n)
	for i := 0; i < n; i++ {
		if ids[i] < 0 || ids[i] != math.Trunc(ids[i]) {
			c.Free()
			return nil, fmt.Errorf(
				"Row %d has id %g, which is not a non-negative integer.", i, ids[i],
			)
		}

		loc, ref := make(geom.Point, spaceDim), make(geom.Point, dim)
		for j := range loc { loc[j] = locCols[j][i] }
		for j := range ref { ref[j] = refCols[j][i] }

		p := particles.NewAt(loc, ref, particles.Index(ids[i]))
		if pool != nil {
			p.SetPropertyPool(pool)
			props := p.Properties()
			for j := range props { props[j] = propCols[j][i] }
		}
		c.Insert(p)
	}
	return c, nil
}
