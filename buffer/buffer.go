/*Package buffer provides cursors for packing fixed-width values into caller
owned byte slices.

The binary format written here has no padding, no length prefixes and uses
the byte order of the machine running the code. Readers are expected to
already know the layout of the data they are consuming.

Both cursors refuse to move past the end of their slice. A call which would
overrun returns an error wrapping ErrOverrun and leaves the cursor where it
was.
*/
package buffer

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

const (
	// IndexSize is the number of bytes used to store a particle index.
	IndexSize = 8
	// Float64Size is the number of bytes used to store one float64.
	Float64Size = 8
)

var (
	// ErrOverrun is returned when a read or write would go past the end of
	// the underlying slice.
	ErrOverrun = errors.New("buffer: overrun")

	order = binary.NativeEndian
)

// cursor is the position bookkeeping shared by Writer and Reader.
type cursor struct {
	buf []byte
	off int
}

// Offset returns the number of bytes the cursor has advanced.
func (c *cursor) Offset() int { return c.off }

// Remaining returns the number of bytes between the cursor and the end of
// the slice.
func (c *cursor) Remaining() int { return len(c.buf) - c.off }

// Reserve returns an error if fewer than n bytes remain. It does not move
// the cursor. Callers which write several values use it to check the total
// up front so that a failure never leaves half a record behind.
func (c *cursor) Reserve(n int) error {
	if n < 0 {
		panic(fmt.Sprintf("buffer: negative reservation of %d bytes", n))
	}
	if n > c.Remaining() {
		return fmt.Errorf(
			"%w: need %d bytes at offset %d, but only %d remain",
			ErrOverrun, n, c.off, c.Remaining(),
		)
	}
	return nil
}

// Writer writes values into a fixed slice, advancing as it goes.
type Writer struct {
	cursor
}

// NewWriter returns a Writer positioned at the start of buf. The Writer never
// grows buf; its capacity is len(buf).
func NewWriter(buf []byte) *Writer {
	return &Writer{cursor{buf: buf}}
}

// Bytes returns the portion of the slice which has been written.
func (w *Writer) Bytes() []byte { return w.buf[:w.off] }

// PutIndex writes a particle index.
func (w *Writer) PutIndex(id uint64) error {
	if err := w.Reserve(IndexSize); err != nil { return err }
	order.PutUint64(w.buf[w.off:], id)
	w.off += IndexSize
	return nil
}

// PutFloat64s writes xs in order. Values are copied bit-for-bit, so NaN
// payloads survive.
func (w *Writer) PutFloat64s(xs []float64) error {
	if err := w.Reserve(Float64Size * len(xs)); err != nil { return err }
	for _, x := range xs {
		order.PutUint64(w.buf[w.off:], math.Float64bits(x))
		w.off += Float64Size
	}
	return nil
}

// Reader reads values out of a fixed slice, advancing as it goes.
type Reader struct {
	cursor
}

// NewReader returns a Reader positioned at the start of buf.
func NewReader(buf []byte) *Reader {
	return &Reader{cursor{buf: buf}}
}

// Index reads a particle index.
func (r *Reader) Index() (uint64, error) {
	if err := r.Reserve(IndexSize); err != nil { return 0, err }
	id := order.Uint64(r.buf[r.off:])
	r.off += IndexSize
	return id, nil
}

// Float64s fills dst with the next len(dst) values.
func (r *Reader) Float64s(dst []float64) error {
	if err := r.Reserve(Float64Size * len(dst)); err != nil { return err }
	for i := range dst {
		dst[i] = math.Float64frombits(order.Uint64(r.buf[r.off:]))
		r.off += Float64Size
	}
	return nil
}
