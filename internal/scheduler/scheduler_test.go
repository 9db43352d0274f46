package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// ==========================
// Test Helpers
// ==========================

type startRecorder struct {
	mu     sync.Mutex
	starts []time.Time
}

func (r *startRecorder) record(t time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.starts = append(r.starts, t)
}

func (r *startRecorder) snapshot() []time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]time.Time, len(r.starts))
	copy(out, r.starts)
	return out
}

func newTestScheduler[T any](t *testing.T, cfg Config, opts ...Option) *Scheduler[T] {
	t.Helper()
	s, err := New[T](cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func drain(t *testing.T, s interface{ Drain(context.Context) error }) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Drain(ctx))
}

// ==========================
// Configuration
// ==========================

func TestNew_InvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{name: "zero concurrency", cfg: Config{MaxConcurrent: 0, Window: time.Second, MaxStartsPerWindow: 1}},
		{name: "zero window", cfg: Config{MaxConcurrent: 1, Window: 0, MaxStartsPerWindow: 1}},
		{name: "zero starts", cfg: Config{MaxConcurrent: 1, Window: time.Second, MaxStartsPerWindow: 0}},
		{name: "negative starts", cfg: Config{MaxConcurrent: 1, Window: time.Second, MaxStartsPerWindow: -3}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := New[int](tt.cfg)
			assert.Error(t, err)
			assert.Nil(t, s)
		})
	}
}

// ==========================
// Admission guarantees
// ==========================

func TestScheduler_RespectsRateCeiling(t *testing.T) {
	const (
		window = 150 * time.Millisecond
		limit  = 3
		tasks  = 10
	)
	rec := &startRecorder{}
	s := newTestScheduler[int](t, Config{MaxConcurrent: tasks, Window: window, MaxStartsPerWindow: limit},
		WithStartHook(rec.record))

	for i := 0; i < tasks; i++ {
		i := i
		_, err := s.Submit(func() int { return i })
		require.NoError(t, err)
	}
	drain(t, s)

	starts := rec.snapshot()
	require.Len(t, starts, tasks)
	for i := 0; i+limit < len(starts); i++ {
		gap := starts[i+limit].Sub(starts[i])
		assert.GreaterOrEqual(t, gap, window, "starts %d and %d are %s apart", i, i+limit, gap)
	}
}

func TestScheduler_RespectsConcurrencyCeiling(t *testing.T) {
	s := newTestScheduler[int](t, Config{MaxConcurrent: 2, Window: time.Second, MaxStartsPerWindow: 100})

	var active, peak int32
	for i := 0; i < 8; i++ {
		_, err := s.Submit(func() int {
			n := atomic.AddInt32(&active, 1)
			for {
				p := atomic.LoadInt32(&peak)
				if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
					break
				}
			}
			time.Sleep(15 * time.Millisecond)
			atomic.AddInt32(&active, -1)
			return 0
		})
		require.NoError(t, err)
	}
	drain(t, s)

	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
	assert.Equal(t, 0, s.Running())
	assert.Equal(t, 0, s.Pending())
}

func TestScheduler_StartsInSubmissionOrder(t *testing.T) {
	s := newTestScheduler[int](t, Config{MaxConcurrent: 1, Window: time.Second, MaxStartsPerWindow: 100})

	var (
		mu    sync.Mutex
		order []int
	)
	for i := 0; i < 20; i++ {
		i := i
		_, err := s.Submit(func() int {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			return i
		})
		require.NoError(t, err)
	}
	drain(t, s)

	expected := make([]int, 20)
	for i := range expected {
		expected[i] = i
	}
	assert.Equal(t, expected, order)
}

// ==========================
// Isolation and results
// ==========================

func TestScheduler_PanickingTaskIsIsolated(t *testing.T) {
	s := newTestScheduler[string](t, Config{MaxConcurrent: 3, Window: time.Second, MaxStartsPerWindow: 100})

	futures := make([]*Future[string], 10)
	for i := range futures {
		i := i
		f, err := s.Submit(func() string {
			if i == 3 {
				panic("adapter exploded")
			}
			return "ok"
		})
		require.NoError(t, err)
		futures[i] = f
	}
	drain(t, s)

	failures := 0
	for i, f := range futures {
		v, err := f.Wait(context.Background())
		if i == 3 {
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrTaskPanicked))
			assert.Contains(t, err.Error(), "adapter exploded")
			failures++
			continue
		}
		assert.NoError(t, err)
		assert.Equal(t, "ok", v)
	}
	assert.Equal(t, 1, failures)
}

func TestFuture_WaitHonoursContext(t *testing.T) {
	s := newTestScheduler[int](t, Config{MaxConcurrent: 1, Window: time.Second, MaxStartsPerWindow: 10})

	release := make(chan struct{})
	f, err := s.Submit(func() int {
		<-release
		return 7
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = f.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	<-f.Done()
	v, err := f.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, v)
}

// ==========================
// Cancellation and lifecycle
// ==========================

func TestScheduler_CancelPendingLetsRunningTaskFinish(t *testing.T) {
	s := newTestScheduler[int](t, Config{MaxConcurrent: 1, Window: time.Second, MaxStartsPerWindow: 100})

	started := make(chan struct{})
	release := make(chan struct{})
	first, err := s.Submit(func() int {
		close(started)
		<-release
		return 1
	})
	require.NoError(t, err)

	var rest []*Future[int]
	for i := 0; i < 4; i++ {
		f, err := s.Submit(func() int { return 2 })
		require.NoError(t, err)
		rest = append(rest, f)
	}

	<-started
	assert.Equal(t, 4, s.CancelPending())
	close(release)
	drain(t, s)

	v, err := first.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, v)
	for _, f := range rest {
		_, err := f.Wait(context.Background())
		assert.ErrorIs(t, err, ErrCancelled)
	}
}

func TestScheduler_DrainTimesOut(t *testing.T) {
	s := newTestScheduler[int](t, Config{MaxConcurrent: 1, Window: time.Second, MaxStartsPerWindow: 10})

	release := make(chan struct{})
	_, err := s.Submit(func() int {
		<-release
		return 0
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, s.Drain(ctx), context.DeadlineExceeded)

	close(release)
	drain(t, s)
}

func TestScheduler_DrainWithNothingSubmitted(t *testing.T) {
	s := newTestScheduler[int](t, Config{MaxConcurrent: 1, Window: time.Second, MaxStartsPerWindow: 1})
	assert.NoError(t, s.Drain(context.Background()))
}

func TestScheduler_SubmitAfterClose(t *testing.T) {
	s, err := New[int](Config{MaxConcurrent: 1, Window: time.Second, MaxStartsPerWindow: 1})
	require.NoError(t, err)
	s.Close()
	s.Close()

	f, err := s.Submit(func() int { return 0 })
	assert.Nil(t, f)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestScheduler_CloseCancelsQueuedTasks(t *testing.T) {
	s, err := New[int](Config{MaxConcurrent: 1, Window: time.Hour, MaxStartsPerWindow: 1})
	require.NoError(t, err)

	first, err := s.Submit(func() int { return 1 })
	require.NoError(t, err)
	second, err := s.Submit(func() int { return 2 })
	require.NoError(t, err)

	_, err = first.Wait(context.Background())
	require.NoError(t, err)

	s.Close()
	_, err = second.Wait(context.Background())
	assert.ErrorIs(t, err, ErrCancelled)
	assert.NoError(t, s.Drain(context.Background()))
}

func TestScheduler_NilTask(t *testing.T) {
	s := newTestScheduler[int](t, Config{MaxConcurrent: 1, Window: time.Second, MaxStartsPerWindow: 1})
	_, err := s.Submit(nil)
	assert.Error(t, err)
}
