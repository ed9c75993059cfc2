package transfer

import (
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/gammazero/workerpool"
	"github.com/pkg/errors"

	"github.com/phil-mansfield/particles"
	"github.com/phil-mansfield/particles/buffer"
	"github.com/phil-mansfield/particles/metrics"
)

const (
	// chunksPerWorker controls how finely Pack splits its work.
	chunksPerWorker = 4
	// minChunk is the smallest number of particles encoded by one task.
	minChunk = 256
)

// Packer converts between particles and frames for one particle layout.
//
// Pool is the pool particles draw their properties from. When packing, every
// particle must have properties in Pool; when unpacking, new particles get
// slots in Pool. A nil Pool means the particles carry no properties.
type Packer struct {
	Dim, SpaceDim int
	Pool          *particles.PropertyPool

	// Workers is the number of goroutines used to encode a frame. Values
	// below two encode on the calling goroutine.
	Workers int
	// Metrics, if non-nil, counts every packed and unpacked frame.
	Metrics *metrics.Transfer
}

// NewPacker returns a Packer for particles with the given dimensions.
func NewPacker(
	dim, spaceDim int, pool *particles.PropertyPool, workers int,
) *Packer {
	return &Packer{Dim: dim, SpaceDim: spaceDim, Pool: pool, Workers: workers}
}

func (pk *Packer) properties() int64 {
	if pk.Pool == nil { return NoProperties }
	return int64(pk.Pool.NPropertiesPerSlot())
}

// checkLayout returns an error if p cannot be packed into, or updated from,
// a frame with pk's layout.
func (pk *Packer) checkLayout(i int, p *particles.Particle) error {
	switch {
	case p.Dim() != pk.Dim || p.SpaceDim() != pk.SpaceDim:
		return errors.Wrapf(ErrLayout,
			"particle %d has dim = %d, spacedim = %d, expected %d, %d",
			i, p.Dim(), p.SpaceDim(), pk.Dim, pk.SpaceDim)
	case pk.Pool == nil && p.HasProperties():
		return errors.Wrapf(ErrLayout,
			"particle %d has properties, but the packer has no pool", i)
	case pk.Pool != nil && !p.HasProperties():
		return errors.Wrapf(ErrLayout, "particle %d has no properties", i)
	case pk.Pool != nil && p.PropertyPool() != pk.Pool:
		return errors.Wrapf(ErrLayout,
			"particle %d belongs to a different property pool", i)
	}
	return nil
}

func (pk *Packer) checkHeader(hd *FrameHeader) error {
	if hd.Dim != int64(pk.Dim) || hd.SpaceDim != int64(pk.SpaceDim) ||
		hd.Properties != pk.properties() {
		return errors.Wrapf(ErrLayout,
			"frame has (dim, spacedim, properties) = (%d, %d, %d), "+
				"but packer expects (%d, %d, %d)",
			hd.Dim, hd.SpaceDim, hd.Properties,
			pk.Dim, pk.SpaceDim, pk.properties())
	}
	return nil
}

// Pack encodes ps into a new frame. The particles are only read, so they
// may be encoded concurrently, but the caller must not register or
// deregister slots in pk.Pool until Pack returns.
func (pk *Packer) Pack(ps []*particles.Particle) ([]byte, error) {
	offsets := make([]int, len(ps)+1)
	for i, p := range ps {
		if err := pk.checkLayout(i, p); err != nil { return nil, err }
		offsets[i+1] = offsets[i] + p.SerializedSize()
	}

	payloadSize := offsets[len(ps)]
	frame := make([]byte, headerSize+payloadSize)
	payload := frame[headerSize:]

	if err := pk.encode(ps, offsets, payload); err != nil { return nil, err }

	putHeader(frame, &FrameHeader{
		Endianness:  nativeEndiannessFlag(),
		HeaderSize:  int64(headerSize),
		Dim:         int64(pk.Dim),
		SpaceDim:    int64(pk.SpaceDim),
		Properties:  pk.properties(),
		Count:       int64(len(ps)),
		PayloadSize: int64(payloadSize),
		Checksum:    xxhash.Sum64(payload),
	})

	pk.Metrics.Observe(metrics.Sent, len(ps), len(frame))
	return frame, nil
}

// encodeRange writes ps[start:end] into the part of payload reserved for
// them by offsets.
func encodeRange(
	ps []*particles.Particle, offsets []int, payload []byte, start, end int,
) error {
	w := buffer.NewWriter(payload[offsets[start]:offsets[end]])
	for i := start; i < end; i++ {
		if err := ps[i].WriteData(w); err != nil {
			return errors.Wrapf(err, "transfer: encoding particle %d", i)
		}
	}
	return nil
}

func (pk *Packer) encode(
	ps []*particles.Particle, offsets []int, payload []byte,
) error {
	n := len(ps)
	if pk.Workers < 2 || n <= minChunk {
		return encodeRange(ps, offsets, payload, 0, n)
	}

	chunk := n / (pk.Workers * chunksPerWorker)
	if chunk < minChunk { chunk = minChunk }

	wp := workerpool.New(pk.Workers)
	var (
		mu       sync.Mutex
		firstErr error
	)
	for start := 0; start < n; start += chunk {
		start, end := start, start+chunk
		if end > n { end = n }
		wp.Submit(func() {
			if err := encodeRange(ps, offsets, payload, start, end); err != nil {
				mu.Lock()
				if firstErr == nil { firstErr = err }
				mu.Unlock()
			}
		})
	}
	wp.StopWait()
	return firstErr
}

// Unpack decodes every particle in frame. Particles with properties get new
// slots in pk.Pool. If an error is returned, no slots are left registered.
func (pk *Packer) Unpack(frame []byte) ([]*particles.Particle, error) {
	hd, err := ReadHeader(frame)
	if err != nil { return nil, err }
	if err := pk.checkHeader(hd); err != nil { return nil, err }

	r := buffer.NewReader(frame[headerSize:])
	ps := make([]*particles.Particle, 0, hd.Count)
	for i := int64(0); i < hd.Count; i++ {
		p, err := particles.DecodeParticle(r, pk.Dim, pk.SpaceDim, pk.Pool)
		if err != nil {
			freeAll(ps)
			return nil, errors.Wrapf(ErrCorruptFrame,
				"decoding particle %d of %d: %v", i, hd.Count, err)
		}
		ps = append(ps, p)
	}

	if r.Remaining() != 0 {
		freeAll(ps)
		return nil, errors.Wrapf(ErrCorruptFrame,
			"%d bytes left over after %d particles", r.Remaining(), hd.Count)
	}

	pk.Metrics.Observe(metrics.Received, len(ps), len(frame))
	return ps, nil
}

// UnpackInto overwrites ps with the contents of frame without allocating
// slots. ps must contain as many particles as the frame, laid out like the
// Packer, and particles with properties keep their existing slots.
func (pk *Packer) UnpackInto(frame []byte, ps []*particles.Particle) error {
	hd, err := ReadHeader(frame)
	if err != nil { return err }
	if err := pk.checkHeader(hd); err != nil { return err }
	if hd.Count != int64(len(ps)) {
		return errors.Wrapf(ErrLayout,
			"frame holds %d particles, but %d were given", hd.Count, len(ps))
	}
	size := 0
	for i, p := range ps {
		if err := pk.checkLayout(i, p); err != nil { return err }
		size += p.SerializedSize()
	}
	if int64(size) != hd.PayloadSize {
		return errors.Wrapf(ErrCorruptFrame,
			"particles need %d bytes, but the payload has %d",
			size, hd.PayloadSize)
	}

	// Layout and payload size have been validated, so every update fits.
	r := buffer.NewReader(frame[headerSize:])
	for i, p := range ps {
		if err := p.UpdateParticleData(r); err != nil {
			return errors.Wrapf(ErrCorruptFrame,
				"updating particle %d: %v", i, err)
		}
	}

	pk.Metrics.Observe(metrics.Received, len(ps), len(frame))
	return nil
}

func freeAll(ps []*particles.Particle) {
	for _, p := range ps { p.Free() }
}
