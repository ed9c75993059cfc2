/*Package particles stores point-like entities which are tracked across a
distributed simulation, along with the arena which holds their floating point
properties.

A PropertyPool owns the property storage for many particles. Each Particle
holds an id, a location, a reference location and, optionally, a Handle into
a pool. Keeping the property payload out of the Particle keeps particle
containers small and avoids one allocation per particle.

Particles also know how to pack themselves into a flat, platform-native byte
layout so that they can be moved between processes:

    |-- 1 --||-- ... 2 ... --||-- ... 3 ... --||-- ... 4 ... --|

    1 - (uint64) Particle index.
    2 - ([spacedim]float64) Location.
    3 - ([dim]float64) Reference location.
    4 - ([n]float64) Properties. Only present if the particle has properties,
        in which case n is the width of its pool.
*/
package particles

import (
	"errors"
	"fmt"
)

// Index is the global identifier of a particle. Uniqueness is maintained by
// whatever code hands out indices, not by this package.
type Index uint64

var (
	// ErrInvalidHandle is carried by the panic raised when a handle which
	// was never registered, or which has already been deregistered, is used.
	ErrInvalidHandle = errors.New("particles: invalid property pool handle")
	// ErrInternal is carried by panics caused by violated preconditions,
	// such as asking a particle without a pool for its properties.
	ErrInternal = errors.New("particles: internal error")
)

// LengthMismatchError is returned when a particle is given a property vector
// whose length differs from the width of its pool.
type LengthMismatchError struct {
	Want, Got int
}

func (e *LengthMismatchError) Error() string {
	return fmt.Sprintf(
		"particles: the particle has space to store %d properties, but "+
			"%d properties were assigned", e.Want, e.Got,
	)
}

// internalError panics with an error wrapping ErrInternal.
func internalError(format string, args ...interface{}) {
	panic(fmt.Errorf("%w: %s", ErrInternal, fmt.Sprintf(format, args...)))
}
