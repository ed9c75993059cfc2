package particles

import (
	"fmt"
	"sync/atomic"
)

// lastPoolID is the identity most recently given to a PropertyPool.
var lastPoolID atomic.Uint64

// Handle identifies a slot in a PropertyPool. It combines a recyclable id
// with a version so that a handle kept around after its slot was released is
// recognized as stale instead of silently reading someone else's data.
//
// A handle also records the pool which issued it, and is only valid there.
// The zero Handle is InvalidHandle. Pools never return it.
type Handle struct {
	pool    uint64
	id      uint32
	version uint32
}

// InvalidHandle is the handle held by particles without properties.
var InvalidHandle = Handle{}

// IsValid returns true if h could have been issued by a pool. It does not
// check whether h is still registered; use PropertyPool.Valid for that.
func (h Handle) IsValid() bool { return h.version != 0 }

func (h Handle) String() string {
	if !h.IsValid() { return "Handle(invalid)" }
	return fmt.Sprintf("Handle(%d:%d.%d)", h.pool, h.id, h.version)
}

// slotMeta is the indirection entry for one handle id.
type slotMeta struct {
	slot    int    // position of the record in PropertyPool.data
	version uint32 // version of the live handle, or of the last one issued
	live    bool
}

// PropertyPool is an arena of fixed-width property records. Every record
// holds NPropertiesPerSlot float64 values.
//
// Records are stored contiguously. When a record is released the last record
// is moved into its place, so handles are resolved through an indirection
// table and stay valid across unrelated deregistrations. Slices returned by
// Properties, however, are only valid until the next RegisterParticle or
// DeregisterParticle call on the same pool.
//
// A PropertyPool is not safe for concurrent mutation. Concurrent calls to
// Properties for different handles are safe as long as no registration or
// deregistration is in flight.
type PropertyPool struct {
	n  int
	id uint64 // never zero

	data    []float64  // live records, slot-major
	slotIDs []uint32   // slot -> handle id
	metas   []slotMeta // handle id -> slot
	freeIDs []uint32   // stack of recycled handle ids
}

// NewPropertyPool returns an empty pool whose records hold nProperties
// values each. A width of zero is allowed; its handles address empty
// records.
func NewPropertyPool(nProperties int) *PropertyPool {
	if nProperties < 0 {
		panic(fmt.Sprintf(
			"particles: pool given a negative property count, %d", nProperties,
		))
	}
	return &PropertyPool{n: nProperties, id: lastPoolID.Add(1)}
}

// NPropertiesPerSlot returns the width of every record in the pool.
func (pool *PropertyPool) NPropertiesPerSlot() int { return pool.n }

// Live returns the number of currently registered handles.
func (pool *PropertyPool) Live() int { return len(pool.slotIDs) }

// Capacity returns the number of handle ids the pool has ever issued,
// including the ones currently waiting to be recycled.
func (pool *PropertyPool) Capacity() int { return len(pool.metas) }

// Reserve grows the pool's internal storage so that at least n records can
// be live without further allocation.
func (pool *PropertyPool) Reserve(n int) {
	if n <= cap(pool.slotIDs) { return }

	data := make([]float64, len(pool.data), n*pool.n)
	copy(data, pool.data)
	pool.data = data

	slotIDs := make([]uint32, len(pool.slotIDs), n)
	copy(slotIDs, pool.slotIDs)
	pool.slotIDs = slotIDs
}

// RegisterParticle allocates a new record and returns its handle. The
// contents of the record are not guaranteed to be zero.
func (pool *PropertyPool) RegisterParticle() Handle {
	var id uint32
	if len(pool.freeIDs) > 0 {
		id = pool.freeIDs[len(pool.freeIDs)-1]
		pool.freeIDs = pool.freeIDs[:len(pool.freeIDs)-1]
	} else {
		id = uint32(len(pool.metas))
		pool.metas = append(pool.metas, slotMeta{})
	}

	meta := &pool.metas[id]
	meta.version++
	if meta.version == 0 { meta.version = 1 } // skip InvalidHandle on wrap
	meta.live = true
	meta.slot = len(pool.slotIDs)

	pool.slotIDs = append(pool.slotIDs, id)
	if end := len(pool.data) + pool.n; end <= cap(pool.data) {
		pool.data = pool.data[:end]
	} else {
		pool.data = append(pool.data, make([]float64, pool.n)...)
	}

	return Handle{pool: pool.id, id: id, version: meta.version}
}

// DeregisterParticle releases the record identified by h. Releasing a
// handle twice, or releasing a handle from another pool, panics.
func (pool *PropertyPool) DeregisterParticle(h Handle) {
	meta := pool.lookup(h)
	slot := meta.slot
	meta.live = false

	last := len(pool.slotIDs) - 1
	if slot != last {
		moved := pool.slotIDs[last]
		copy(pool.record(slot), pool.record(last))
		pool.slotIDs[slot] = moved
		pool.metas[moved].slot = slot
	}
	pool.slotIDs = pool.slotIDs[:last]
	pool.data = pool.data[:last*pool.n]
	pool.freeIDs = append(pool.freeIDs, h.id)
}

// Properties returns the record identified by h. The returned slice aliases
// the pool's storage: writes to it are writes to the particle's properties.
// It panics if h is not currently registered with the pool.
func (pool *PropertyPool) Properties(h Handle) []float64 {
	return pool.record(pool.lookup(h).slot)
}

// Valid returns true if h is currently registered with the pool.
func (pool *PropertyPool) Valid(h Handle) bool {
	if !h.IsValid() || h.pool != pool.id || int(h.id) >= len(pool.metas) {
		return false
	}
	meta := pool.metas[h.id]
	return meta.live && meta.version == h.version
}

func (pool *PropertyPool) lookup(h Handle) *slotMeta {
	if !pool.Valid(h) {
		panic(fmt.Errorf("%w: %s", ErrInvalidHandle, h))
	}
	return &pool.metas[h.id]
}

func (pool *PropertyPool) record(slot int) []float64 {
	start, end := slot*pool.n, (slot+1)*pool.n
	return pool.data[start:end:end]
}
