package main

import (
	"bytes"
	"fmt"
	"log"
	"math/rand"

	plt "github.com/phil-mansfield/pyplot"
	"github.com/pkg/errors"

	"github.com/phil-mansfield/particles"
	"github.com/phil-mansfield/particles/geom"
	"github.com/phil-mansfield/particles/io"
	"github.com/phil-mansfield/particles/metrics"
	"github.com/phil-mansfield/particles/transfer"
)

type transferSummary struct {
	Sent, Kept    int
	Frames, Bytes int
}

// transferMain splits the configured particles in two, streams one half
// into a second pool as frames, and checks that every particle arrives
// unchanged.
func transferMain(con *io.TransferConfig) (*transferSummary, error) {
	var src, dst *particles.PropertyPool
	if con.HasProperties() {
		src = particles.NewPropertyPool(con.Properties)
		dst = particles.NewPropertyPool(con.Properties)
	}

	c, err := sourceParticles(con, src)
	if err != nil { return nil, err }
	defer c.Free()

	outgoing := c.Extract(func(p *particles.Particle) bool {
		return p.Location()[0] >= con.SplitAt
	})
	log.Printf("Sending %d of %d particles.", len(outgoing), c.Len()+len(outgoing))

	snapshots := make([]*particles.Particle, len(outgoing))
	for i, p := range outgoing { snapshots[i] = p.Clone() }
	defer freeAll(snapshots)

	tr := metrics.NewTransfer()
	stream := &bytes.Buffer{}
	pk := transfer.NewPacker(con.Dim, con.SpaceDim, src, con.Workers)
	pk.Metrics = tr

	pb := transfer.NewParticleBuffer(pk, stream, con.BufferParticles)
	for _, p := range outgoing {
		if err := pb.Append(p); err != nil { return nil, err }
	}
	if err := pb.Flush(); err != nil { return nil, err }
	nBytes := stream.Len()

	received, frames, err := receive(stream, con, dst, tr)
	if err != nil { return nil, err }
	defer freeAll(received)

	if len(received) != len(snapshots) {
		return nil, fmt.Errorf(
			"Sent %d particles, but received %d.", len(snapshots), len(received),
		)
	}
	for i := range received {
		if !received[i].Identical(snapshots[i]) {
			return nil, fmt.Errorf(
				"Particle %d changed in transit: sent %s, received %s.",
				i, snapshots[i], received[i],
			)
		}
	}

	if con.MetricsFile != "" {
		pc := metrics.NewPoolCollector()
		if src != nil {
			pc.Add("source", src)
			pc.Add("destination", dst)
		}
		if err := metrics.WriteTextfile(con.MetricsFile, pc, tr); err != nil {
			return nil, err
		}
	}

	if con.PlotFile != "" { plotLocations(received, con.PlotFile) }

	return &transferSummary{
		Sent: len(received), Kept: c.Len(), Frames: frames, Bytes: nBytes,
	}, nil
}

func sourceParticles(
	con *io.TransferConfig, pool *particles.PropertyPool,
) (*particles.Collection, error) {
	if con.ValidInput() {
		c, err := io.ReadParticleTable(con.Input, con.Dim, con.SpaceDim, pool)
		return c, errors.Wrapf(err, "reading particle table %s", con.Input)
	}
	gen := rand.New(rand.NewSource(con.Seed))
	return randomParticles(gen, con.Particles, con.Dim, con.SpaceDim, pool), nil
}

// randomParticles places n particles uniformly in the unit cube with
// normally distributed properties.
func randomParticles(
	gen *rand.Rand, n, dim, spaceDim int, pool *particles.PropertyPool,
) *particles.Collection {
	if pool != nil { pool.Reserve(pool.Live() + n) }

	c := particles.NewCollection(n)
	for i := 0; i < n; i++ {
		loc, ref := make(geom.Point, spaceDim), make(geom.Point, dim)
		for j := range loc { loc[j] = gen.Float64() }
		copy(ref, loc)

		p := particles.NewAt(loc, ref, particles.Index(i))
		if pool != nil {
			p.SetPropertyPool(pool)
			props := p.Properties()
			for j := range props { props[j] = gen.NormFloat64() }
		}
		c.Insert(p)
	}
	return c
}

func receive(
	stream *bytes.Buffer, con *io.TransferConfig,
	pool *particles.PropertyPool, tr *metrics.Transfer,
) ([]*particles.Particle, int, error) {
	pk := transfer.NewPacker(con.Dim, con.SpaceDim, pool, 1)
	pk.Metrics = tr

	out, frames := []*particles.Particle{}, 0
	for stream.Len() > 0 {
		frame, err := transfer.ReadFrame(stream)
		if err != nil {
			freeAll(out)
			return nil, 0, err
		}

		ps, err := pk.Unpack(frame)
		if err != nil {
			freeAll(out)
			return nil, 0, errors.Wrapf(err, "unpacking frame %d", frames)
		}
		out = append(out, ps...)
		frames++
	}
	return out, frames, nil
}

func plotLocations(ps []*particles.Particle, fname string) {
	xs, ys := make([]float64, len(ps)), make([]float64, len(ps))
	for i, p := range ps {
		xs[i] = p.Location()[0]
		if p.SpaceDim() > 1 {
			ys[i] = p.Location()[1]
		} else {
			ys[i] = p.ReferenceLocation()[0]
		}
	}

	plt.Figure(plt.FigSize(8, 8))
	plt.Plot(xs, ys, "ok")
	plt.Title(fmt.Sprintf("%d received particles", len(ps)))
	plt.XLabel(`$X_1$`, plt.FontSize(16))
	plt.YLabel(`$X_2$`, plt.FontSize(16))
	plt.SaveFig(fname)
	plt.Execute()
}

func freeAll(ps []*particles.Particle) {
	for _, p := range ps { p.Free() }
}
