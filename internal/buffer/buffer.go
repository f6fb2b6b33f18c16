// Package buffer implements the producer/consumer frame buffer: a static
// pool of slots that is never freed, an optional set of dynamic pools
// grown on demand, a FIFO queue of committed frames, and a lazy two-stage
// garbage collector that shrinks the dynamic pool set back down when the
// queue has been running well below capacity.
//
// Grounded on original_source/src/core/buffer.c. Pools and their slots
// are modelled as slices; free/collect/queue membership is tracked with
// an intrusive singly-linked list embedded directly in each Slot (a next
// pointer), rather than wrapping every frame in a separate list node —
// the same shape the original's FrameLink gives each frame, without a
// parallel heap allocation per link.
package buffer

import (
	"context"
	"sync"
	"time"

	"github.com/openskynetwork/opensky-sensor-sub000/internal/frame"
)

// Configuration mirrors the BUFFER.* options in the external
// configuration surface.
type Configuration struct {
	StaticBacklog     int // minimum 2
	DynamicBacklog    int
	DynamicIncrements int
	History           bool
	GC                bool
	GCInterval        time.Duration
	GCLevel           int
}

// DefaultConfiguration matches the defaults the original core ships.
func DefaultConfiguration() Configuration {
	return Configuration{
		StaticBacklog:     200,
		DynamicBacklog:    1000,
		DynamicIncrements: 1080,
		History:           false,
		GC:                true,
		GCInterval:        120 * time.Second,
		GCLevel:           2,
	}
}

// Statistics is a read-only snapshot of the buffer's counters.
type Statistics struct {
	DiscardedCurrent uint64
	DiscardedMax     uint64
	MaxQueueSize     int
	DynPools         int
	Uncollects       uint64
	Collects         uint64
	PoolsDestroyed   uint64
}

// Slot is one frame-sized unit of storage. It belongs to exactly one pool
// for its entire lifetime; which list currently holds it (free, queue, or
// a pool's collect list) is tracked only by the list itself via next.
type Slot struct {
	Decoded frame.Decoded
	Raw     frame.Raw

	pool *pool
	next *Slot
}

type pool struct {
	slots  []Slot
	static bool
	size   int

	collect    *Slot
	collectLen int

	next *pool
}

// Buffer is the producer/consumer frame buffer described by the spec.
type Buffer struct {
	cfg Configuration

	mu        sync.Mutex
	queueCond *sync.Cond

	staticPool *pool
	dynPools   *pool
	dynCount   int

	freeList *Slot
	freeLen  int

	queueHead, queueTail *Slot
	queueLen             int

	stats Statistics
}

// New allocates the static pool and returns a ready Buffer. Dynamic pools
// are only permitted when History is enabled, matching the original's
// "BUFFER.GC ignored because BUFFER.history is not enabled" fix-up: a
// dynamic pool that gets flushed on every reconnect is pointless.
func New(cfg Configuration) *Buffer {
	if cfg.StaticBacklog < 2 {
		cfg.StaticBacklog = 2
	}
	b := &Buffer{cfg: cfg}
	b.queueCond = sync.NewCond(&b.mu)

	b.staticPool = &pool{slots: make([]Slot, cfg.StaticBacklog), static: true, size: cfg.StaticBacklog}
	for i := range b.staticPool.slots {
		s := &b.staticPool.slots[i]
		s.pool = b.staticPool
		b.pushFree(s)
	}

	if !cfg.History {
		b.cfg.GC = false
	}
	return b
}

func (b *Buffer) pushFree(s *Slot) {
	s.next = b.freeList
	b.freeList = s
	b.freeLen++
}

func (b *Buffer) popFree() *Slot {
	s := b.freeList
	if s == nil {
		return nil
	}
	b.freeList = s.next
	s.next = nil
	b.freeLen--
	return s
}

// createDynPool allocates one more dynamic pool of DynamicBacklog slots
// and pushes all of them onto the free list. Caller holds mu.
func (b *Buffer) createDynPool() {
	p := &pool{slots: make([]Slot, b.cfg.DynamicBacklog), size: b.cfg.DynamicBacklog}
	p.next = b.dynPools
	b.dynPools = p
	b.dynCount++
	for i := range p.slots {
		s := &p.slots[i]
		s.pool = p
		b.pushFree(s)
	}
}

func (b *Buffer) dynMaxPools() int {
	if !b.cfg.History {
		return 0
	}
	if b.cfg.DynamicBacklog <= 0 {
		return 0
	}
	return b.cfg.DynamicIncrements
}

// uncollectOne reverses GC stage one for the first dynamic pool that has
// a non-empty collect list, splicing it back onto the free list. Reports
// whether it found one. Caller holds mu.
func (b *Buffer) uncollectOne() bool {
	for p := b.dynPools; p != nil; p = p.next {
		if p.collect == nil {
			continue
		}
		for p.collect != nil {
			s := p.collect
			p.collect = s.next
			b.pushFree(s)
		}
		p.collectLen = 0
		b.stats.Uncollects++
		return true
	}
	return false
}

// newFrame implements the four-branch allocation policy: take a free
// slot; failing that, uncollect one; failing that, grow a new dynamic
// pool; failing that, sacrifice the oldest queued frame. It never
// blocks and never fails — a running system always has somewhere to put
// the next frame.
func (b *Buffer) newFrame() *Slot {
	if s := b.popFree(); s != nil {
		return s
	}
	if b.uncollectOne() {
		return b.popFree()
	}
	if b.dynCount < b.dynMaxPools() {
		b.createDynPool()
		return b.popFree()
	}
	return b.sacrificeOldest()
}

// sacrificeOldest discards the oldest queued frame and returns its slot
// for immediate reuse by the caller. Caller holds mu.
func (b *Buffer) sacrificeOldest() *Slot {
	s := b.dequeueHead()
	if s == nil {
		// queue empty and no pool can grow: buffer is misconfigured
		// (static backlog 0), but StaticBacklog is floored at 2 so this
		// cannot happen in practice.
		return nil
	}
	b.stats.DiscardedCurrent++
	b.stats.DiscardedMax++
	return s
}

func (b *Buffer) dequeueHead() *Slot {
	s := b.queueHead
	if s == nil {
		return nil
	}
	b.queueHead = s.next
	if b.queueHead == nil {
		b.queueTail = nil
	}
	s.next = nil
	b.queueLen--
	return s
}

func (b *Buffer) enqueueTail(s *Slot) {
	s.next = nil
	if b.queueTail == nil {
		b.queueHead = s
		b.queueTail = s
	} else {
		b.queueTail.next = s
		b.queueTail = s
	}
	b.queueLen++
	if b.queueLen > b.stats.MaxQueueSize {
		b.stats.MaxQueueSize = b.queueLen
	}
}

func (b *Buffer) enqueueHead(s *Slot) {
	s.next = b.queueHead
	b.queueHead = s
	if b.queueTail == nil {
		b.queueTail = s
	}
	b.queueLen++
}

// NewFrame allocates a slot for the producer to fill in. It always
// succeeds.
func (b *Buffer) NewFrame() *Slot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.newFrame()
}

// CommitFrame appends a filled-in slot to the tail of the queue, waking
// any consumer blocked in GetFrame.
func (b *Buffer) CommitFrame(s *Slot) {
	b.mu.Lock()
	b.enqueueTail(s)
	b.mu.Unlock()
	b.queueCond.Signal()
}

// AbortFrame returns a producer's slot without queuing it (the frame was
// rejected by the filter, or the input failed while filling it in).
func (b *Buffer) AbortFrame(s *Slot) {
	b.mu.Lock()
	b.pushFree(s)
	b.mu.Unlock()
}

// GetFrame blocks until a frame is available or ctx is done.
func (b *Buffer) GetFrame(ctx context.Context) (*Slot, error) {
	return b.GetFrameTimeout(ctx, 0)
}

// GetFrameTimeout blocks until a frame is available, timeout elapses (a
// nil slot, nil error return means "keep-alive, nothing to send"), or ctx
// is done. timeout <= 0 means wait indefinitely.
func (b *Buffer) GetFrameTimeout(ctx context.Context, timeout time.Duration) (*Slot, error) {
	done := make(chan struct{})
	defer close(done)
	if ctx != nil {
		go func() {
			select {
			case <-ctx.Done():
				b.queueCond.Broadcast()
			case <-done:
			}
		}()
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}

	for b.queueHead == nil {
		if ctx != nil && ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if timeout > 0 {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				return nil, nil
			}
			if b.waitTimeout(remaining) {
				return nil, nil
			}
			continue
		}
		b.queueCond.Wait()
	}
	return b.dequeueHead(), nil
}

// waitTimeout waits on queueCond for at most d, returning true if it timed
// out rather than being woken. Caller holds mu.
func (b *Buffer) waitTimeout(d time.Duration) bool {
	timer := time.AfterFunc(d, func() {
		b.mu.Lock()
		b.queueCond.Broadcast()
		b.mu.Unlock()
	})
	defer timer.Stop()
	start := time.Now()
	b.queueCond.Wait()
	return time.Since(start) >= d
}

// ReleaseFrame returns a consumer's slot to the free list after a
// successful send.
func (b *Buffer) ReleaseFrame(s *Slot) {
	b.mu.Lock()
	b.pushFree(s)
	b.mu.Unlock()
}

// PutFrame returns a consumer's slot to the HEAD of the queue for retry,
// after a send failure. Per the resolved open question in SPEC_FULL.md,
// a put-back frame does not survive a subsequent Flush.
func (b *Buffer) PutFrame(s *Slot) {
	b.mu.Lock()
	b.enqueueHead(s)
	b.mu.Unlock()
	b.queueCond.Signal()
}

// Flush discards every queued frame back to the free list, unconditionally.
func (b *Buffer) Flush() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for {
		s := b.dequeueHead()
		if s == nil {
			break
		}
		b.pushFree(s)
	}
}

// FlushUnlessHistory discards the queue only when history mode is off —
// history mode exists precisely so content survives a reconnect.
func (b *Buffer) FlushUnlessHistory() {
	if b.cfg.History {
		return
	}
	b.Flush()
}

// Stats returns a snapshot of the buffer's counters.
func (b *Buffer) Stats() Statistics {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := b.stats
	s.DynPools = b.dynCount
	return s
}

// RunGC runs the GC goroutine until ctx is cancelled. It does nothing if
// GC is disabled (forced off when History is false).
func (b *Buffer) RunGC(ctx context.Context) {
	if !b.cfg.GC {
		return
	}
	ticker := time.NewTicker(b.cfg.GCInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.gcTick()
		}
	}
}

func (b *Buffer) gcTick() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.dynCount == 0 {
		return
	}
	threshold := b.dynCount * b.cfg.DynamicBacklog / maxInt(b.cfg.GCLevel, 1)
	if b.queueLen >= threshold {
		return
	}
	// Destroy pools fully collected by the PREVIOUS tick first, then mark
	// this tick's newly-idle slots as collected. That one-interval grace
	// period is what lets a burst of allocations right after a GC tick
	// uncollect a slot instead of immediately growing a new pool.
	b.destroyUnusedPools()
	b.collectPools()
}

// collectPools is GC stage one: every free-list slot that belongs to a
// dynamic (non-static) pool is moved from the free list onto its owning
// pool's collect list. Caller holds mu.
func (b *Buffer) collectPools() {
	var keep *Slot
	for b.freeList != nil {
		s := b.freeList
		b.freeList = s.next
		b.freeLen--
		if s.pool.static {
			s.next = keep
			keep = s
			continue
		}
		s.next = s.pool.collect
		s.pool.collect = s
		s.pool.collectLen++
		b.stats.Collects++
	}
	// restore static-pool slots to the free list
	for keep != nil {
		next := keep.next
		b.pushFree(keep)
		keep = next
	}
}

// destroyUnusedPools is GC stage two: any dynamic pool whose entire slot
// set is sitting in its collect list (none in use, none free) is dropped
// from the pool list, letting Go's allocator reclaim its backing array.
// Caller holds mu.
func (b *Buffer) destroyUnusedPools() {
	var prev *pool
	p := b.dynPools
	for p != nil {
		next := p.next
		if p.collectLen == p.size {
			if prev == nil {
				b.dynPools = next
			} else {
				prev.next = next
			}
			b.dynCount--
			b.stats.PoolsDestroyed++
		} else {
			prev = p
		}
		p = next
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
