package buffer

import (
	"sync"

	"github.com/neuroquantum/neuroquantumdb/internal/common"
	"github.com/neuroquantum/neuroquantumdb/internal/storage/page"
	"github.com/neuroquantum/neuroquantumdb/internal/storage/pager"
)

// MinFrames and MaxFrames bound auto-tuned pool capacity (spec §4.E).
const (
	MinFrames = 512
	MaxFrames = 32768
)

// AutoTuneCapacity picks a frame count from available RAM, reserving
// roughly 1/256th of RAM for page frames and clamping to [MinFrames,
// MaxFrames].
func AutoTuneCapacity(totalRAMBytes uint64) int {
	frames := int(totalRAMBytes / 256 / page.Size)
	if frames < MinFrames {
		return MinFrames
	}
	if frames > MaxFrames {
		return MaxFrames
	}
	return frames
}

// DefaultMaxDirtyPages returns 10% of capacity, floored at 100, the trigger
// the background flusher uses to decide it's falling behind (spec §4.E).
func DefaultMaxDirtyPages(capacity int) int {
	n := capacity / 10
	if n < 100 {
		return 100
	}
	return n
}

type frame struct {
	page     *page.Page
	pinCount int
	dirty    bool
}

// Pool is the pinned frame cache. Pages are pinned while in use by a
// caller and become eligible for eviction only once their pin count drops
// to zero.
type Pool struct {
	mu       sync.Mutex
	pager    *pager.Pager
	policy   Policy
	capacity int
	maxDirty int
	metrics  common.MetricsSink

	frames map[uint64]*frame
	hits   int64
	misses int64
}

// New creates a pool of the given frame capacity backed by pager, using
// policy for eviction ordering.
func New(p *pager.Pager, capacity int, policy Policy, metrics common.MetricsSink) *Pool {
	if metrics == nil {
		metrics = common.NoopMetrics{}
	}
	return &Pool{
		pager:    p,
		policy:   policy,
		capacity: capacity,
		maxDirty: DefaultMaxDirtyPages(capacity),
		metrics:  metrics,
		frames:   make(map[uint64]*frame),
	}
}

// FetchPage pins and returns the page, loading it from the pager on a
// cache miss and evicting an unpinned victim if the pool is at capacity.
func (p *Pool) FetchPage(id uint64) (*page.Page, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if f, ok := p.frames[id]; ok {
		f.pinCount++
		p.policy.Touch(id)
		p.hits++
		p.metrics.IncCounter("buffer_pool_hits_total", nil, 1)
		return f.page, nil
	}

	p.misses++
	p.metrics.IncCounter("buffer_pool_misses_total", nil, 1)

	if len(p.frames) >= p.capacity {
		if err := p.evictOneLocked(); err != nil {
			return nil, err
		}
	}

	pg, err := p.pager.ReadPage(id)
	if err != nil {
		return nil, err
	}
	p.frames[id] = &frame{page: pg, pinCount: 1}
	p.policy.Add(id)
	p.metrics.SetGauge("buffer_pool_resident_pages", nil, float64(len(p.frames)))
	return pg, nil
}

// AllocatePage reserves a fresh page through the underlying pager and
// registers it as a pinned, resident frame so the caller can populate it
// before unpinning — the allocation path never bypasses the pool the way a
// direct pager.AllocatePage call would.
func (p *Pool) AllocatePage(typ page.Type) (*page.Page, error) {
	pg, err := p.pager.AllocatePage(typ)
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.frames) >= p.capacity {
		if err := p.evictOneLocked(); err != nil {
			return nil, err
		}
	}
	p.frames[pg.PageID()] = &frame{page: pg, pinCount: 1}
	p.policy.Add(pg.PageID())
	p.metrics.SetGauge("buffer_pool_resident_pages", nil, float64(len(p.frames)))
	return pg, nil
}

// FreePage evicts id from the pool if resident and returns it to the
// pager's free list.
func (p *Pool) FreePage(id uint64) error {
	p.mu.Lock()
	if _, ok := p.frames[id]; ok {
		p.policy.Remove(id)
		delete(p.frames, id)
	}
	p.mu.Unlock()
	return p.pager.FreePage(id)
}

func (p *Pool) evictOneLocked() error {
	for attempts := 0; attempts < len(p.frames)+1; attempts++ {
		id, ok := p.policy.Evict()
		if !ok {
			return common.New(common.KindConcurrencyError, "buffer pool: no evictable frame (all pinned)")
		}
		f, ok := p.frames[id]
		if !ok {
			p.policy.Remove(id)
			continue
		}
		if f.pinCount > 0 {
			// Still in use. Touch ranks it as recently used, so the next
			// Evict call surfaces a different candidate instead of spinning
			// on this one hot pinned page.
			p.policy.Touch(id)
			continue
		}
		if f.dirty {
			if err := p.flushLocked(id, f); err != nil {
				return err
			}
		}
		p.policy.Remove(id)
		delete(p.frames, id)
		return nil
	}
	return common.New(common.KindConcurrencyError, "buffer pool: eviction exhausted, all frames pinned")
}

// UnpinPage decrements the pin count, optionally marking the page dirty.
func (p *Pool) UnpinPage(id uint64, dirty bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	f, ok := p.frames[id]
	if !ok {
		return common.New(common.KindInvalidInput, "buffer pool: unpin of non-resident page %d", id)
	}
	if f.pinCount == 0 {
		return common.New(common.KindInvalidInput, "buffer pool: page %d is not pinned", id)
	}
	f.pinCount--
	if dirty {
		f.dirty = true
	}
	return nil
}

// FlushPage writes a dirty page back through the pager, clearing its dirty
// flag. It is a no-op if the page is resident but clean, and an error if
// the page isn't resident.
func (p *Pool) FlushPage(id uint64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	f, ok := p.frames[id]
	if !ok {
		return common.New(common.KindInvalidInput, "buffer pool: flush of non-resident page %d", id)
	}
	if !f.dirty {
		return nil
	}
	return p.flushLocked(id, f)
}

func (p *Pool) flushLocked(id uint64, f *frame) error {
	if err := p.pager.WritePage(f.page); err != nil {
		return err
	}
	f.dirty = false
	return nil
}

// FlushAll writes back every dirty resident page.
func (p *Pool) FlushAll() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, f := range p.frames {
		if f.dirty {
			if err := p.flushLocked(id, f); err != nil {
				return err
			}
		}
	}
	return nil
}

// DirtyCount reports how many resident pages are currently dirty, the
// signal the background flusher watches against maxDirty.
func (p *Pool) DirtyCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, f := range p.frames {
		if f.dirty {
			n++
		}
	}
	return n
}

// Stats reports cache hit-rate accounting (Testable Property 9).
func (p *Pool) Stats() common.Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return common.Stats{CacheHits: p.hits, CacheMisses: p.misses, NumPages: len(p.frames)}
}
