package transfer

import (
	"io"

	"github.com/phil-mansfield/particles"
)

// ParticleBuffer collects outgoing particles and writes them to a stream as
// frames of at most bufSize particles. Particles appended to the buffer are
// moved into it, and their properties are released once they have been
// written.
type ParticleBuffer struct {
	pk  *Packer
	buf []*particles.Particle
	idx int
	w   io.Writer
}

// NewParticleBuffer creates a ParticleBuffer which packs with pk and writes
// frames to w.
func NewParticleBuffer(pk *Packer, w io.Writer, bufSize int) *ParticleBuffer {
	if bufSize <= 0 {
		panic("transfer: ParticleBuffer needs a positive buffer size")
	}
	return &ParticleBuffer{pk, make([]*particles.Particle, bufSize), 0, w}
}

// Len returns the number of particles waiting to be flushed.
func (pb *ParticleBuffer) Len() int { return pb.idx }

// Append moves p into the buffer, flushing it if it is full. p is left
// without properties.
func (pb *ParticleBuffer) Append(p *particles.Particle) error {
	if pb.idx == len(pb.buf) {
		if err := pb.Flush(); err != nil { return err }
	}
	pb.buf[pb.idx] = p.Move()
	pb.idx++
	if pb.idx == len(pb.buf) { return pb.Flush() }
	return nil
}

// Flush writes the buffered particles as a single frame and frees them. It
// is called automatically whenever the buffer fills. If packing or writing
// fails, the particles stay in the buffer.
func (pb *ParticleBuffer) Flush() error {
	if pb.idx == 0 { return nil }

	frame, err := pb.pk.Pack(pb.buf[:pb.idx])
	if err != nil { return err }
	if err := WriteFrame(pb.w, frame); err != nil { return err }

	for i := 0; i < pb.idx; i++ {
		pb.buf[i].Free()
		pb.buf[i] = nil
	}
	pb.idx = 0
	return nil
}
