// Package pool provides a generic bounded pool of reusable handles to an
// expensive resource (GPU sessions, decode contexts, upstream clients).
// Acquirers beyond the configured maximum wait in FIFO order.
package pool

import (
	"container/list"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

var (
	ErrPoolClosed     = errors.New("pool is shut down")
	ErrAcquireTimeout = errors.New("timed out waiting for a pooled resource")
)

// Factory supplies the lifecycle operations for a pooled resource.
type Factory[T any] interface {
	Create(ctx context.Context) (T, error)
	Destroy(resource T) error
	Validate(resource T) bool
}

// Config bounds the pool. Zero values fall back to defaults via Validate.
type Config struct {
	MaxSize             int
	MinSize             int
	AcquireTimeout      time.Duration
	IdleTimeout         time.Duration
	MaxLifetime         time.Duration
	HealthCheckInterval time.Duration
}

func (c *Config) Validate() error {
	if c.MaxSize <= 0 {
		c.MaxSize = 10
	}
	if c.MinSize < 0 || c.MinSize > c.MaxSize {
		return fmt.Errorf("min size %d must be within [0, %d]", c.MinSize, c.MaxSize)
	}
	if c.AcquireTimeout <= 0 {
		c.AcquireTimeout = 30 * time.Second
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 5 * time.Minute
	}
	if c.MaxLifetime <= 0 {
		c.MaxLifetime = 30 * time.Minute
	}
	if c.HealthCheckInterval <= 0 {
		c.HealthCheckInterval = time.Minute
	}
	return nil
}

// Handle is a leased pool entry. Callers own it exclusively between Acquire
// and Release and must not retain the resource afterwards.
type Handle[T any] struct {
	resource  T
	createdAt time.Time
	lastUsed  time.Time
}

// Resource returns the underlying pooled value.
func (h *Handle[T]) Resource() T { return h.resource }

// Stats is a point-in-time snapshot of pool occupancy.
type Stats struct {
	Total   int `json:"total"`
	Active  int `json:"active"`
	Idle    int `json:"idle"`
	Waiting int `json:"waiting"`
}

// Pool manages up to Config.MaxSize handles created by the factory.
type Pool[T any] struct {
	factory Factory[T]
	cfg     Config
	logger  *slog.Logger

	mu      sync.Mutex
	idle    []*Handle[T]
	leased  map[*Handle[T]]struct{}
	waiters *list.List // of chan *Handle[T], FIFO
	total   int
	closed  bool

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

func New[T any](factory Factory[T], cfg Config, logger *slog.Logger) (*Pool[T], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	p := &Pool[T]{
		factory: factory,
		cfg:     cfg,
		logger:  logger,
		leased:  make(map[*Handle[T]]struct{}),
		waiters: list.New(),
		done:    make(chan struct{}),
	}

	p.ensureMin(context.Background())

	p.wg.Add(1)
	go p.healthLoop()

	return p, nil
}

// Acquire returns an idle valid handle, creates one when below MaxSize, or
// waits in FIFO order until a release frees one. It fails with
// ErrAcquireTimeout after Config.AcquireTimeout.
func (p *Pool[T]) Acquire(ctx context.Context) (*Handle[T], error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}

	// Idle handles first, newest last-used first. Anything stale or invalid
	// is discarded on the way.
	for len(p.idle) > 0 {
		h := p.idle[len(p.idle)-1]
		p.idle = p.idle[:len(p.idle)-1]
		if p.expired(h) || !p.factory.Validate(h.resource) {
			p.total--
			p.mu.Unlock()
			p.destroy(h)
			p.mu.Lock()
			continue
		}
		p.leased[h] = struct{}{}
		p.mu.Unlock()
		return h, nil
	}

	if p.total < p.cfg.MaxSize {
		p.total++ // reserve the slot before the factory call
		p.mu.Unlock()

		resource, err := p.factory.Create(ctx)
		if err != nil {
			p.mu.Lock()
			p.total--
			p.mu.Unlock()
			return nil, fmt.Errorf("create pooled resource: %w", err)
		}

		now := time.Now()
		h := &Handle[T]{resource: resource, createdAt: now, lastUsed: now}
		p.mu.Lock()
		if p.closed {
			p.total--
			p.mu.Unlock()
			p.destroy(h)
			return nil, ErrPoolClosed
		}
		p.leased[h] = struct{}{}
		p.mu.Unlock()
		return h, nil
	}

	// At capacity: join the waiter queue.
	ready := make(chan *Handle[T], 1)
	elem := p.waiters.PushBack(ready)
	p.mu.Unlock()

	timer := time.NewTimer(p.cfg.AcquireTimeout)
	defer timer.Stop()

	select {
	case h := <-ready:
		if h == nil {
			return nil, ErrPoolClosed
		}
		return h, nil
	case <-timer.C:
		p.mu.Lock()
		p.waiters.Remove(elem)
		p.mu.Unlock()
		// A release may have handed us a handle just before the removal.
		select {
		case h := <-ready:
			if h != nil {
				return h, nil
			}
			return nil, ErrPoolClosed
		default:
		}
		return nil, ErrAcquireTimeout
	case <-ctx.Done():
		p.mu.Lock()
		p.waiters.Remove(elem)
		p.mu.Unlock()
		select {
		case h := <-ready:
			if h != nil {
				p.Release(h)
			}
		default:
		}
		return nil, ctx.Err()
	case <-p.done:
		return nil, ErrPoolClosed
	}
}

// Release returns the handle to the pool: to the oldest waiter when one is
// queued, otherwise to the idle set. Releasing after shutdown destroys the
// handle.
func (p *Pool[T]) Release(h *Handle[T]) {
	if h == nil {
		return
	}

	p.mu.Lock()
	delete(p.leased, h)
	h.lastUsed = time.Now()

	if p.closed {
		p.total--
		p.mu.Unlock()
		p.destroy(h)
		return
	}

	if elem := p.waiters.Front(); elem != nil {
		p.waiters.Remove(elem)
		ready := elem.Value.(chan *Handle[T])
		p.leased[h] = struct{}{}
		p.mu.Unlock()
		ready <- h
		return
	}

	p.idle = append(p.idle, h)
	p.mu.Unlock()
}

// Execute acquires a handle, runs fn with the resource, and releases the
// handle on every exit path, including a panic inside fn.
func (p *Pool[T]) Execute(ctx context.Context, fn func(resource T) error) error {
	h, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	defer p.Release(h)
	return fn(h.resource)
}

// Stats returns a snapshot of pool occupancy.
func (p *Pool[T]) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		Total:   p.total,
		Active:  len(p.leased),
		Idle:    len(p.idle),
		Waiting: p.waiters.Len(),
	}
}

// Shutdown rejects future acquires, wakes all waiters with ErrPoolClosed and
// destroys idle handles. Leased handles are destroyed as they are released.
// Destroy failures are logged, never returned.
func (p *Pool[T]) Shutdown() {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		close(p.done)

		for elem := p.waiters.Front(); elem != nil; elem = elem.Next() {
			close(elem.Value.(chan *Handle[T]))
		}
		p.waiters.Init()

		victims := p.idle
		p.idle = nil
		p.total -= len(victims)
		p.mu.Unlock()

		for _, h := range victims {
			p.destroy(h)
		}
	})
	p.wg.Wait()
}

func (p *Pool[T]) expired(h *Handle[T]) bool {
	return time.Since(h.createdAt) > p.cfg.MaxLifetime
}

func (p *Pool[T]) destroy(h *Handle[T]) {
	if err := p.factory.Destroy(h.resource); err != nil {
		p.logger.Warn("destroying pooled resource failed", "error", err)
	}
}

// healthLoop periodically validates idle handles and evicts the stale ones.
// Victims are collected under the lock but destroyed outside it so slow
// Destroy calls never block acquirers.
func (p *Pool[T]) healthLoop() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.cfg.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.done:
			return
		case <-ticker.C:
			p.healthCheck()
		}
	}
}

func (p *Pool[T]) healthCheck() {
	now := time.Now()

	p.mu.Lock()
	var keep []*Handle[T]
	var victims []*Handle[T]
	for _, h := range p.idle {
		switch {
		case !p.factory.Validate(h.resource):
			victims = append(victims, h)
		case now.Sub(h.createdAt) > p.cfg.MaxLifetime:
			victims = append(victims, h)
		case now.Sub(h.lastUsed) > p.cfg.IdleTimeout && p.total-len(victims) > p.cfg.MinSize:
			victims = append(victims, h)
		default:
			keep = append(keep, h)
		}
	}
	p.idle = keep
	p.total -= len(victims)
	p.mu.Unlock()

	for _, h := range victims {
		p.destroy(h)
	}

	p.ensureMin(context.Background())
}

// ensureMin tops the pool back up to MinSize warm handles. Best effort: a
// failing factory is retried on the next health cycle.
func (p *Pool[T]) ensureMin(ctx context.Context) {
	for {
		p.mu.Lock()
		if p.closed || p.total >= p.cfg.MinSize {
			p.mu.Unlock()
			return
		}
		p.total++
		p.mu.Unlock()

		resource, err := p.factory.Create(ctx)
		if err != nil {
			p.mu.Lock()
			p.total--
			p.mu.Unlock()
			p.logger.Warn("warming pooled resource failed", "error", err)
			return
		}

		now := time.Now()
		h := &Handle[T]{resource: resource, createdAt: now, lastUsed: now}
		p.mu.Lock()
		if p.closed {
			p.total--
			p.mu.Unlock()
			p.destroy(h)
			return
		}
		if elem := p.waiters.Front(); elem != nil {
			p.waiters.Remove(elem)
			ready := elem.Value.(chan *Handle[T])
			p.leased[h] = struct{}{}
			p.mu.Unlock()
			ready <- h
			continue
		}
		p.idle = append(p.idle, h)
		p.mu.Unlock()
	}
}
