package pool

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/Transit/internal/logging"
)

// ErrPoolClosed indicates a submit to a pool that has shut down.
var ErrPoolClosed = errors.New("pool: closed")

// Task is one unit of dispatch work.
type Task func()

// Config shapes a worker pool.
type Config struct {
	MinWorkers int
	MaxWorkers int
	QueueDepth int
	ShrinkIdle time.Duration
}

// Normalize fills zero fields with sane values and repairs inverted bounds.
func (c Config) Normalize() Config {
	if c.MinWorkers < 1 {
		c.MinWorkers = 1
	}
	if c.MaxWorkers < c.MinWorkers {
		c.MaxWorkers = c.MinWorkers
	}
	if c.QueueDepth < 1 {
		c.QueueDepth = 1
	}
	if c.ShrinkIdle <= 0 {
		c.ShrinkIdle = 30 * time.Second
	}
	return c
}

// Pool is a bounded, elastic worker pool.
type Pool struct {
	cfg   Config
	log   *logging.Logger
	tasks chan Task
	quit  chan struct{}

	mu     sync.Mutex
	size   int
	idle   int
	closed bool

	// onResize, when set, observes worker count deltas (metrics hook).
	onResize func(delta int)
}

// New creates a pool and starts its minimum workers.
func New(cfg Config, log *logging.Logger) *Pool {
	cfg = cfg.Normalize()
	if log == nil {
		log = logging.NewNop()
	}
	p := &Pool{
		cfg:   cfg,
		log:   log,
		tasks: make(chan Task, cfg.QueueDepth),
		quit:  make(chan struct{}),
	}
	p.mu.Lock()
	for i := 0; i < cfg.MinWorkers; i++ {
		p.spawnLocked()
	}
	p.mu.Unlock()
	return p
}

// OnResize registers an observer for worker count changes. Must be called
// before the pool sees load.
func (p *Pool) OnResize(fn func(delta int)) {
	p.mu.Lock()
	p.onResize = fn
	p.mu.Unlock()
}

// Submit enqueues a task. It blocks while the queue is full, surfacing
// exhaustion to the caller as backpressure.
func (p *Pool) Submit(t Task) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPoolClosed
	}
	// Grow while there is load and headroom.
	if p.idle == 0 && p.size < p.cfg.MaxWorkers {
		p.spawnLocked()
	}
	p.mu.Unlock()

	select {
	case p.tasks <- t:
		return nil
	case <-p.quit:
		return ErrPoolClosed
	}
}

// Tasks exposes the queue for inline servicing by a thread that is parked
// waiting on a reply. Receivers must execute what they take.
func (p *Pool) Tasks() <-chan Task { return p.tasks }

// Size returns the current worker count.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.size
}

// Idle returns the number of workers blocked waiting for work.
func (p *Pool) Idle() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.idle
}

// Close shuts the pool down and returns immediately. It never waits for a
// task already executing: that task runs arbitrary stub code, and teardown
// must not block on it. The worker exits on its own after the task returns.
// Queued tasks no worker picked up are dropped; the owning process is
// terminating anyway.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()
	close(p.quit)
}

func (p *Pool) spawnLocked() {
	p.size++
	if p.onResize != nil {
		p.onResize(1)
	}
	go p.worker()
}

func (p *Pool) worker() {
	for {
		p.mu.Lock()
		p.idle++
		p.mu.Unlock()

		select {
		case t := <-p.tasks:
			p.mu.Lock()
			p.idle--
			p.mu.Unlock()
			t()
		case <-time.After(p.cfg.ShrinkIdle):
			p.mu.Lock()
			p.idle--
			if p.size > p.cfg.MinWorkers {
				p.size--
				size := p.size
				if p.onResize != nil {
					p.onResize(-1)
				}
				p.mu.Unlock()
				p.log.Debug("pool worker retired", zap.Int("size", size))
				return
			}
			p.mu.Unlock()
		case <-p.quit:
			p.mu.Lock()
			p.idle--
			p.size--
			if p.onResize != nil {
				p.onResize(-1)
			}
			p.mu.Unlock()
			return
		}
	}
}
