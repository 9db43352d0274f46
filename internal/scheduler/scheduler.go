// Package scheduler admits tasks under a concurrency bound and a sliding
// window rate ceiling.
//
// Tasks start in submission order. Completion order is not guaranteed.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"outreach-engine/internal/common/metrics"

	"golang.org/x/sync/semaphore"
)

var (
	ErrCancelled    = errors.New("scheduler: task cancelled before start")
	ErrClosed       = errors.New("scheduler: closed")
	ErrTaskPanicked = errors.New("scheduler: task panicked")
)

type job[T any] struct {
	task   func() T
	future *Future[T]
}

type Scheduler[T any] struct {
	cfg    Config
	opts   options
	sem    *semaphore.Weighted
	window *slidingWindow

	mu          sync.Mutex
	queue       []*job[T]
	running     int
	outstanding int
	idle        chan struct{}
	closed      bool

	wake       chan struct{}
	stop       chan struct{}
	stopCtx    context.Context
	stopCancel context.CancelFunc
	done       chan struct{}
	closeOnce  sync.Once
}

// New validates cfg and starts the dispatcher. Call Close to stop it.
func New[T any](cfg Config, opts ...Option) (*Scheduler[T], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := options{clock: realClock{}}
	for _, opt := range opts {
		opt(&o)
	}

	stopCtx, stopCancel := context.WithCancel(context.Background())
	s := &Scheduler[T]{
		cfg:        cfg,
		opts:       o,
		sem:        semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		window:     newSlidingWindow(cfg.Window, cfg.MaxStartsPerWindow),
		wake:       make(chan struct{}, 1),
		stop:       make(chan struct{}),
		stopCtx:    stopCtx,
		stopCancel: stopCancel,
		done:       make(chan struct{}),
	}
	go s.dispatch()
	return s, nil
}

func (s *Scheduler[T]) Config() Config {
	return s.cfg
}

// Submit enqueues task behind every task submitted before it.
func (s *Scheduler[T]) Submit(task func() T) (*Future[T], error) {
	if task == nil {
		return nil, fmt.Errorf("scheduler: nil task")
	}
	f := newFuture[T]()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	s.queue = append(s.queue, &job[T]{task: task, future: f})
	s.outstanding++
	depth := len(s.queue)
	s.mu.Unlock()

	s.gauge(depth, -1)
	s.notify()
	return f, nil
}

// Drain blocks until every submitted task has resolved.
func (s *Scheduler[T]) Drain(ctx context.Context) error {
	s.mu.Lock()
	if s.outstanding == 0 {
		s.mu.Unlock()
		return nil
	}
	if s.idle == nil {
		s.idle = make(chan struct{})
	}
	idle := s.idle
	s.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CancelPending resolves every task that has not started with ErrCancelled
// and returns how many were discarded. Running tasks are left alone.
func (s *Scheduler[T]) CancelPending() int {
	s.mu.Lock()
	pending := s.queue
	s.queue = nil
	s.mu.Unlock()

	var zero T
	for _, j := range pending {
		j.future.resolve(zero, ErrCancelled)
		s.finish()
	}
	s.gauge(0, -1)
	s.notify()
	return len(pending)
}

// Close cancels pending tasks and stops the dispatcher. Running tasks
// still complete; use Drain to wait for them.
func (s *Scheduler[T]) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()

		s.CancelPending()
		s.stopCancel()
		close(s.stop)
		<-s.done
	})
}

func (s *Scheduler[T]) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

func (s *Scheduler[T]) Running() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Scheduler[T]) dispatch() {
	defer close(s.done)
	for {
		if !s.awaitWork() {
			return
		}
		if err := s.sem.Acquire(s.stopCtx, 1); err != nil {
			return
		}
		if !s.admitHead() {
			return
		}
	}
}

func (s *Scheduler[T]) awaitWork() bool {
	for {
		s.mu.Lock()
		n, closed := len(s.queue), s.closed
		s.mu.Unlock()

		if closed {
			return false
		}
		if n > 0 {
			return true
		}
		select {
		case <-s.wake:
		case <-s.stop:
			return false
		}
	}
}

// admitHead holds one concurrency slot and waits for the rate window to
// admit the head of the queue. It returns false once the scheduler stops.
func (s *Scheduler[T]) admitHead() bool {
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.mu.Unlock()
			s.sem.Release(1)
			return true
		}
		now := s.opts.clock.Now()
		wait := s.window.reserve(now)
		if wait <= 0 {
			j := s.queue[0]
			s.queue[0] = nil
			s.queue = s.queue[1:]
			s.running++
			depth, running := len(s.queue), s.running
			s.mu.Unlock()

			s.gauge(depth, running)
			if s.opts.onStart != nil {
				s.opts.onStart(now)
			}
			go s.run(j)
			return true
		}
		s.mu.Unlock()

		select {
		case <-s.opts.clock.After(wait):
		case <-s.wake:
		case <-s.stop:
			s.sem.Release(1)
			return false
		}
	}
}

func (s *Scheduler[T]) run(j *job[T]) {
	var (
		value T
		err   error
	)
	defer func() {
		s.sem.Release(1)
		s.mu.Lock()
		s.running--
		running := s.running
		s.mu.Unlock()
		s.gauge(-1, running)

		j.future.resolve(value, err)
		s.finish()
	}()

	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("%w: %v", ErrTaskPanicked, r)
			}
		}()
		value = j.task()
	}()
}

func (s *Scheduler[T]) finish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outstanding--
	if s.outstanding == 0 && s.idle != nil {
		close(s.idle)
		s.idle = nil
	}
}

func (s *Scheduler[T]) notify() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// gauge publishes queue depth and in-flight counts; negative values are
// left unchanged.
func (s *Scheduler[T]) gauge(depth, running int) {
	if s.opts.name == "" {
		return
	}
	if depth >= 0 {
		metrics.SchedulerQueueDepth.WithLabelValues(s.opts.name).Set(float64(depth))
	}
	if running >= 0 {
		metrics.SchedulerInFlight.WithLabelValues(s.opts.name).Set(float64(running))
	}
}
