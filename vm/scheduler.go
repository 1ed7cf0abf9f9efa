package vm

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Scheduler multiplexes service contexts onto a pool of worker
// goroutines. A context is queued at most once and run by at most one
// worker at a time. Without workers, Drain runs the queue on the calling
// goroutine.
type Scheduler struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []*ServiceContext
	closed bool

	group   *errgroup.Group
	cancel  context.CancelFunc
	workers int
}

func newScheduler() *Scheduler {
	s := &Scheduler{}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// schedule queues c unless it is already queued.
func (s *Scheduler) schedule(c *ServiceContext) {
	if !c.scheduled.CompareAndSwap(false, true) {
		return
	}
	s.mu.Lock()
	s.queue = append(s.queue, c)
	s.mu.Unlock()
	s.cond.Signal()
}

// next pops the next context, blocking while the queue is empty. It
// returns nil once the scheduler is closed.
func (s *Scheduler) next() *ServiceContext {
	s.mu.Lock()
	defer s.mu.Unlock()
	for len(s.queue) == 0 && !s.closed {
		s.cond.Wait()
	}
	if s.closed {
		return nil
	}
	return s.pop()
}

func (s *Scheduler) pop() *ServiceContext {
	c := s.queue[0]
	s.queue[0] = nil
	s.queue = s.queue[1:]
	return c
}

// runContext executes one scheduling slice of c.
func runContext(c *ServiceContext) {
	c.runMu.Lock()
	defer c.runMu.Unlock()
	c.scheduled.Store(false)
	c.run()
}

// Start launches n workers. They run until ctx is cancelled or Stop is
// called.
func (s *Scheduler) Start(ctx context.Context, n int) {
	if n <= 0 {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	g, ctx := errgroup.WithContext(ctx)
	s.mu.Lock()
	s.group = g
	s.cancel = cancel
	s.workers = n
	s.closed = false
	s.mu.Unlock()

	for i := 0; i < n; i++ {
		g.Go(func() error {
			for {
				c := s.next()
				if c == nil {
					return nil
				}
				runContext(c)
			}
		})
	}
	g.Go(func() error {
		<-ctx.Done()
		s.close()
		return nil
	})
	log.Infof("scheduler started with %d workers", n)
}

func (s *Scheduler) close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cond.Broadcast()
}

// Stop closes the queue and waits for the workers to exit.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	g, cancel := s.group, s.cancel
	s.group, s.cancel = nil, nil
	s.workers = 0
	s.mu.Unlock()
	if g == nil {
		return nil
	}
	cancel()
	return g.Wait()
}

// Running reports whether workers are active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.group != nil
}

// Drain runs queued contexts on the calling goroutine until the queue is
// empty. It returns the number of slices run.
func (s *Scheduler) Drain() int {
	n := 0
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.mu.Unlock()
			return n
		}
		c := s.pop()
		s.mu.Unlock()
		runContext(c)
		n++
	}
}

// Len returns the number of queued contexts.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}
