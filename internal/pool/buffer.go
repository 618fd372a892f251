package pool

import (
	"sync"
	"sync/atomic"
)

const (
	minBufferTier = 12 // 4 KiB
	maxBufferTier = 24 // 16 MiB
)

// BufferPool reuses byte slices for binary image payloads. Buffers live in
// power-of-two tiers from 4 KiB to 16 MiB; requests outside that range are
// plain allocations. A returned buffer must no longer be referenced by its
// previous owner; the pool does not enforce that.
type BufferPool struct {
	tiers  [maxBufferTier - minBufferTier + 1]sync.Pool
	hits   atomic.Int64
	misses atomic.Int64
}

// BufferStats counts tier reuse since the pool was created.
type BufferStats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
}

func NewBufferPool() *BufferPool {
	return &BufferPool{}
}

// Get returns a buffer with len >= size. The caller must not assume the
// contents are zeroed.
func (p *BufferPool) Get(size int) []byte {
	tier, ok := tierFor(size)
	if !ok {
		p.misses.Add(1)
		return make([]byte, size)
	}

	if v := p.tiers[tier-minBufferTier].Get(); v != nil {
		p.hits.Add(1)
		return v.([]byte)[:size]
	}
	p.misses.Add(1)
	return make([]byte, size, 1<<tier)
}

// Put returns a buffer to its tier. Buffers whose capacity is not an exact
// tier size are dropped for the garbage collector.
func (p *BufferPool) Put(buf []byte) {
	c := cap(buf)
	tier, ok := tierFor(c)
	if !ok || 1<<tier != c {
		return
	}
	p.tiers[tier-minBufferTier].Put(buf[:c])
}

func (p *BufferPool) Stats() BufferStats {
	return BufferStats{Hits: p.hits.Load(), Misses: p.misses.Load()}
}

// tierFor returns the smallest power-of-two exponent whose size fits n.
func tierFor(n int) (int, bool) {
	if n <= 0 || n > 1<<maxBufferTier {
		return 0, false
	}
	tier := minBufferTier
	for 1<<tier < n {
		tier++
	}
	return tier, true
}
