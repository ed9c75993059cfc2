package transfer

import (
	"bytes"
	"fmt"
	"io"
	"math/rand"
	"testing"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phil-mansfield/particles"
	"github.com/phil-mansfield/particles/geom"
	"github.com/phil-mansfield/particles/metrics"
)

func makeParticles(
	gen *rand.Rand, n, dim, spaceDim int, pool *particles.PropertyPool,
) []*particles.Particle {
	ps := make([]*particles.Particle, n)
	for i := range ps {
		loc, ref := make(geom.Point, spaceDim), make(geom.Point, dim)
		for j := range loc { loc[j] = gen.Float64() }
		for j := range ref { ref[j] = gen.Float64() }
		ps[i] = particles.NewAt(loc, ref, particles.Index(i))
		if pool != nil {
			ps[i].SetPropertyPool(pool)
			props := ps[i].Properties()
			for j := range props { props[j] = gen.NormFloat64() }
		}
	}
	return ps
}

func assertIdentical(t *testing.T, want, got []*particles.Particle) {
	require.Equal(t, len(want), len(got))
	for i := range want {
		assert.True(t, want[i].Identical(got[i]), "particle %d", i)
	}
}

func TestPackUnpack(t *testing.T) {
	gen := rand.New(rand.NewSource(1))
	for _, workers := range []int{1, 4} {
		for _, n := range []int{0, 1, 10, 3000} {
			src, dst := particles.NewPropertyPool(3), particles.NewPropertyPool(3)
			ps := makeParticles(gen, n, 2, 3, src)

			frame, err := NewPacker(2, 3, src, workers).Pack(ps)
			require.NoError(t, err)

			size := HeaderSize()
			for _, p := range ps { size += p.SerializedSize() }
			assert.Equal(t, size, len(frame))

			out, err := NewPacker(2, 3, dst, 1).Unpack(frame)
			require.NoError(t, err)
			assertIdentical(t, ps, out)
			assert.Equal(t, n, dst.Live(), "workers=%d n=%d", workers, n)
		}
	}
}

func TestPackWithoutProperties(t *testing.T) {
	gen := rand.New(rand.NewSource(2))
	ps := makeParticles(gen, 5, 1, 1, nil)

	pk := NewPacker(1, 1, nil, 1)
	frame, err := pk.Pack(ps)
	require.NoError(t, err)

	hd, err := ReadHeader(frame)
	require.NoError(t, err)
	assert.Equal(t, NoProperties, hd.Properties)
	assert.Equal(t, int64(5), hd.Count)

	out, err := pk.Unpack(frame)
	require.NoError(t, err)
	assertIdentical(t, ps, out)
}

func TestPackLayoutErrors(t *testing.T) {
	gen := rand.New(rand.NewSource(3))
	pool, other := particles.NewPropertyPool(2), particles.NewPropertyPool(2)
	good := makeParticles(gen, 1, 2, 2, pool)[0]

	cases := map[string]*particles.Particle{
		"wrong dims":     makeParticles(gen, 1, 1, 2, pool)[0],
		"no properties":  makeParticles(gen, 1, 2, 2, nil)[0],
		"different pool": makeParticles(gen, 1, 2, 2, other)[0],
	}
	pk := NewPacker(2, 2, pool, 1)
	for name, p := range cases {
		_, err := pk.Pack([]*particles.Particle{good, p})
		assert.True(t, errors.Is(err, ErrLayout), name)
		assert.Equal(t, ErrLayout, errors.Cause(err), name)
	}

	_, err := NewPacker(2, 2, nil, 1).Pack([]*particles.Particle{good})
	assert.True(t, errors.Is(err, ErrLayout))
}

func TestUnpackLayoutMismatch(t *testing.T) {
	gen := rand.New(rand.NewSource(4))
	pool := particles.NewPropertyPool(2)
	frame, err := NewPacker(2, 2, pool, 1).Pack(makeParticles(gen, 3, 2, 2, pool))
	require.NoError(t, err)

	wider := particles.NewPropertyPool(3)
	_, err = NewPacker(2, 2, wider, 1).Unpack(frame)
	assert.True(t, errors.Is(err, ErrLayout))
	assert.Equal(t, 0, wider.Live())

	_, err = NewPacker(3, 3, pool, 1).Unpack(frame)
	assert.True(t, errors.Is(err, ErrLayout))
}

func TestCorruptFrames(t *testing.T) {
	gen := rand.New(rand.NewSource(5))
	src, dst := particles.NewPropertyPool(1), particles.NewPropertyPool(1)
	frame, err := NewPacker(3, 3, src, 1).Pack(makeParticles(gen, 4, 3, 3, src))
	require.NoError(t, err)
	pk := NewPacker(3, 3, dst, 1)

	flipped := append([]byte{}, frame...)
	flipped[len(flipped)-1] ^= 1
	_, err = pk.Unpack(flipped)
	assert.True(t, errors.Is(err, ErrCorruptFrame), "checksum")

	_, err = pk.Unpack(frame[:len(frame)-8])
	assert.True(t, errors.Is(err, ErrCorruptFrame), "truncated")

	_, err = pk.Unpack(frame[:10])
	assert.True(t, errors.Is(err, ErrCorruptFrame), "short header")

	badFlag := append([]byte{}, frame...)
	hd, err := ReadHeader(frame)
	require.NoError(t, err)
	hd.Endianness = 1
	putHeader(badFlag, hd)
	_, err = pk.Unpack(badFlag)
	assert.True(t, errors.Is(err, ErrCorruptFrame), "endianness")

	// A count which disagrees with the payload is caught while decoding and
	// leaves no slots behind.
	badCount := append([]byte{}, frame...)
	hd, _ = ReadHeader(frame)
	hd.Count = 5
	putHeader(badCount, hd)
	_, err = pk.Unpack(badCount)
	assert.True(t, errors.Is(err, ErrCorruptFrame), "count too large")
	hd.Count = 3
	putHeader(badCount, hd)
	_, err = pk.Unpack(badCount)
	assert.True(t, errors.Is(err, ErrCorruptFrame), "count too small")

	assert.Equal(t, 0, dst.Live())
}

func TestHeaderCountMustFillPayload(t *testing.T) {
	pool := particles.NewPropertyPool(2)
	pk := NewPacker(2, 3, pool, 1)
	empty, err := pk.Pack(nil)
	require.NoError(t, err)

	headers := map[string]FrameHeader{
		"huge count, empty payload": {Count: 1 << 60},
		"huge dimension":            {Count: 1, Dim: 1 << 62},
		"dimensions past payload":   {Count: 1, Dim: 1 << 61, SpaceDim: 1 << 61},
	}
	for name, h := range headers {
		hd, err := ReadHeader(empty)
		require.NoError(t, err)
		hd.Count, hd.Dim, hd.SpaceDim = h.Count, h.Dim, h.SpaceDim

		frame := append([]byte{}, empty...)
		putHeader(frame, hd)
		_, err = ReadHeader(frame)
		assert.True(t, errors.Is(err, ErrCorruptFrame), name)

		var out []*particles.Particle
		assert.NotPanics(t, func() { out, err = pk.Unpack(frame) }, name)
		assert.True(t, errors.Is(err, ErrCorruptFrame), name)
		assert.Nil(t, out, name)
	}

	// Payloads which are a whole number of records still need the right
	// count.
	gen := rand.New(rand.NewSource(10))
	frame, err := pk.Pack(makeParticles(gen, 2, 2, 3, pool))
	require.NoError(t, err)
	hd, err := ReadHeader(frame)
	require.NoError(t, err)
	hd.Count = 1
	putHeader(frame, hd)
	_, err = ReadHeader(frame)
	assert.True(t, errors.Is(err, ErrCorruptFrame))
	assert.Equal(t, 2, pool.Live())
}

func TestReadFrameHugePayload(t *testing.T) {
	pk := NewPacker(1, 1, nil, 1)
	frame, err := pk.Pack(nil)
	require.NoError(t, err)
	hd, err := ReadHeader(frame)
	require.NoError(t, err)

	hd.PayloadSize = 1 << 62
	head := make([]byte, HeaderSize())
	putHeader(head, hd)

	var out []byte
	assert.NotPanics(t, func() { out, err = ReadFrame(bytes.NewReader(head)) })
	assert.True(t, errors.Is(err, ErrCorruptFrame))
	assert.Nil(t, out)

	// A payload cut short by the end of the stream is corrupt, not a clean
	// end of stream.
	gen := rand.New(rand.NewSource(11))
	frame, err = pk.Pack(makeParticles(gen, 3, 1, 1, nil))
	require.NoError(t, err)
	_, err = ReadFrame(bytes.NewReader(frame[:len(frame)-1]))
	assert.True(t, errors.Is(err, ErrCorruptFrame))
	assert.NotEqual(t, io.EOF, err)
}

func TestUnpackInto(t *testing.T) {
	gen := rand.New(rand.NewSource(6))
	pool := particles.NewPropertyPool(2)
	ps := makeParticles(gen, 20, 2, 2, pool)
	pk := NewPacker(2, 2, pool, 1)
	frame, err := pk.Pack(ps)
	require.NoError(t, err)

	targets := makeParticles(gen, 20, 2, 2, pool)
	require.Equal(t, 40, pool.Live())
	require.NoError(t, pk.UnpackInto(frame, targets))
	assert.Equal(t, 40, pool.Live(), "updates must not allocate slots")
	assertIdentical(t, ps, targets)

	err = pk.UnpackInto(frame, targets[:19])
	assert.True(t, errors.Is(err, ErrLayout))

	bare := makeParticles(gen, 20, 2, 2, nil)
	err = pk.UnpackInto(frame, bare)
	assert.True(t, errors.Is(err, ErrLayout))
}

func TestFrameStream(t *testing.T) {
	gen := rand.New(rand.NewSource(7))
	pool := particles.NewPropertyPool(1)
	pk := NewPacker(1, 2, pool, 1)

	stream := &bytes.Buffer{}
	var want []*particles.Particle
	for _, n := range []int{3, 0, 7} {
		ps := makeParticles(gen, n, 1, 2, pool)
		frame, err := pk.Pack(ps)
		require.NoError(t, err)
		require.NoError(t, WriteFrame(stream, frame))
		want = append(want, ps...)
	}

	var got []*particles.Particle
	for {
		frame, err := ReadFrame(stream)
		if err == io.EOF { break }
		require.NoError(t, err)
		ps, err := pk.Unpack(frame)
		require.NoError(t, err)
		got = append(got, ps...)
	}
	assertIdentical(t, want, got)

	_, err := ReadFrame(bytes.NewReader(make([]byte, 5)))
	assert.Error(t, err)
	assert.NotEqual(t, io.EOF, err)
}

func TestParticleBuffer(t *testing.T) {
	gen := rand.New(rand.NewSource(8))
	src, dst := particles.NewPropertyPool(2), particles.NewPropertyPool(2)
	ps := makeParticles(gen, 25, 2, 2, src)

	snapshots := particles.NewPropertyPool(2)
	want := make([]*particles.Particle, len(ps))
	for i, p := range ps {
		want[i] = p.Clone()
		want[i].Free()
		want[i].SetPropertyPool(snapshots)
		require.NoError(t, want[i].SetProperties(p.Properties()))
	}

	stream := &bytes.Buffer{}
	tr := metrics.NewTransfer()
	pk := NewPacker(2, 2, src, 2)
	pk.Metrics = tr
	pb := NewParticleBuffer(pk, stream, 10)
	for _, p := range ps {
		require.NoError(t, pb.Append(p))
		assert.False(t, p.HasProperties())
	}
	assert.Equal(t, 5, pb.Len())
	assert.Equal(t, 5, src.Live(), "flushed particles are freed")

	require.NoError(t, pb.Flush())
	assert.Equal(t, 0, pb.Len())
	assert.Equal(t, 0, src.Live())
	require.NoError(t, pb.Flush())

	var got []*particles.Particle
	recv := NewPacker(2, 2, dst, 1)
	recv.Metrics = tr
	for {
		frame, err := ReadFrame(stream)
		if err == io.EOF { break }
		require.NoError(t, err)
		out, err := recv.Unpack(frame)
		require.NoError(t, err)
		got = append(got, out...)
	}
	assertIdentical(t, want, got)

	assert.Equal(t, 3.0, testutil.ToFloat64(tr.Frames.WithLabelValues(metrics.Sent)))
	assert.Equal(t, 25.0, testutil.ToFloat64(tr.Particles.WithLabelValues(metrics.Received)))

	assert.Panics(t, func() { NewParticleBuffer(pk, stream, 0) })
}

func BenchmarkPack(b *testing.B) {
	gen := rand.New(rand.NewSource(9))
	pool := particles.NewPropertyPool(4)
	ps := makeParticles(gen, 1<<14, 3, 3, pool)
	for _, workers := range []int{1, 4} {
		pk := NewPacker(3, 3, pool, workers)
		b.Run(fmt.Sprintf("workers=%d", workers), func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				pk.Pack(ps)
			}
		})
	}
}
