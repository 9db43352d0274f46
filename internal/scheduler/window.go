package scheduler

import "time"

// slidingWindow keeps the start times that still fall inside the window.
// It is only touched by the dispatcher while holding the scheduler lock.
type slidingWindow struct {
	size   time.Duration
	limit  int
	starts []time.Time
}

func newSlidingWindow(size time.Duration, limit int) *slidingWindow {
	return &slidingWindow{size: size, limit: limit, starts: make([]time.Time, 0, limit)}
}

// reserve records a start at now and returns 0 when the window has room.
// Otherwise nothing is recorded and the wait until the oldest start
// expires is returned.
func (w *slidingWindow) reserve(now time.Time) time.Duration {
	w.prune(now)
	if len(w.starts) < w.limit {
		w.starts = append(w.starts, now)
		return 0
	}
	return w.starts[0].Add(w.size).Sub(now)
}

func (w *slidingWindow) prune(now time.Time) {
	cutoff := now.Add(-w.size)
	i := 0
	for i < len(w.starts) && !w.starts[i].After(cutoff) {
		i++
	}
	if i == 0 {
		return
	}
	n := copy(w.starts, w.starts[i:])
	w.starts = w.starts[:n]
}
