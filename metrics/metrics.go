/*Package metrics exposes property pool occupancy and particle transfer
volume as prometheus metrics.
*/
package metrics

import (
	"sort"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/phil-mansfield/particles"
)

const namespace = "particles"

// Directions used to label transfer metrics.
const (
	Sent     = "sent"
	Received = "received"
)

var (
	liveDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "property_pool", "live_slots"),
		"Number of registered property slots.",
		[]string{"pool"}, nil,
	)
	capacityDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "property_pool", "capacity_slots"),
		"Number of handle ids issued by the pool, live or recycled.",
		[]string{"pool"}, nil,
	)
	widthDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "property_pool", "properties_per_slot"),
		"Number of float64 properties stored in every slot.",
		[]string{"pool"}, nil,
	)
)

// PoolCollector reports the occupancy of a set of named property pools.
// Pools are read while metrics are gathered, so gathering must not overlap
// with registration or deregistration on any of them.
type PoolCollector struct {
	mu    sync.Mutex
	pools map[string]*particles.PropertyPool
}

// NewPoolCollector returns a collector with no pools.
func NewPoolCollector() *PoolCollector {
	return &PoolCollector{pools: map[string]*particles.PropertyPool{}}
}

// Add starts reporting pool under the given name, replacing any pool which
// previously had that name.
func (pc *PoolCollector) Add(name string, pool *particles.PropertyPool) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	pc.pools[name] = pool
}

// Remove stops reporting the named pool.
func (pc *PoolCollector) Remove(name string) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	delete(pc.pools, name)
}

// Describe implements prometheus.Collector.
func (pc *PoolCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- liveDesc
	ch <- capacityDesc
	ch <- widthDesc
}

// Collect implements prometheus.Collector.
func (pc *PoolCollector) Collect(ch chan<- prometheus.Metric) {
	pc.mu.Lock()
	defer pc.mu.Unlock()

	names := make([]string, 0, len(pc.pools))
	for name := range pc.pools { names = append(names, name) }
	sort.Strings(names)

	for _, name := range names {
		pool := pc.pools[name]
		ch <- prometheus.MustNewConstMetric(
			liveDesc, prometheus.GaugeValue, float64(pool.Live()), name,
		)
		ch <- prometheus.MustNewConstMetric(
			capacityDesc, prometheus.GaugeValue, float64(pool.Capacity()), name,
		)
		ch <- prometheus.MustNewConstMetric(
			widthDesc, prometheus.GaugeValue,
			float64(pool.NPropertiesPerSlot()), name,
		)
	}
}

// Transfer counts the frames, particles and bytes moving through a
// transfer.Packer. A nil *Transfer ignores all observations.
type Transfer struct {
	Frames    *prometheus.CounterVec
	Particles *prometheus.CounterVec
	Bytes     *prometheus.CounterVec
}

// NewTransfer returns unregistered transfer counters.
func NewTransfer() *Transfer {
	counter := func(name, help string) *prometheus.CounterVec {
		return prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transfer",
			Name:      name,
			Help:      help,
		}, []string{"direction"})
	}
	return &Transfer{
		Frames:    counter("frames_total", "Number of frames packed or unpacked."),
		Particles: counter("particles_total", "Number of particles packed or unpacked."),
		Bytes:     counter("bytes_total", "Number of frame bytes packed or unpacked."),
	}
}

// Observe records one frame of n particles and size bytes moving in the
// given direction.
func (t *Transfer) Observe(direction string, n, size int) {
	if t == nil { return }
	t.Frames.WithLabelValues(direction).Inc()
	t.Particles.WithLabelValues(direction).Add(float64(n))
	t.Bytes.WithLabelValues(direction).Add(float64(size))
}

// Describe implements prometheus.Collector.
func (t *Transfer) Describe(ch chan<- *prometheus.Desc) {
	t.Frames.Describe(ch)
	t.Particles.Describe(ch)
	t.Bytes.Describe(ch)
}

// Collect implements prometheus.Collector.
func (t *Transfer) Collect(ch chan<- prometheus.Metric) {
	t.Frames.Collect(ch)
	t.Particles.Collect(ch)
	t.Bytes.Collect(ch)
}

// WriteTextfile registers the collectors in a fresh registry and writes the
// gathered metrics to path in the text exposition format.
func WriteTextfile(path string, cs ...prometheus.Collector) error {
	reg := prometheus.NewRegistry()
	for _, c := range cs {
		if err := reg.Register(c); err != nil { return err }
	}
	return prometheus.WriteToTextfile(path, reg)
}
