package scheduler

import (
	"fmt"
	"time"
)

// Config is the safe-usage ceiling of one channel.
type Config struct {
	MaxConcurrent      int
	Window             time.Duration
	MaxStartsPerWindow int
}

func (c Config) Validate() error {
	if c.MaxConcurrent <= 0 {
		return fmt.Errorf("max concurrent must be positive, got %d", c.MaxConcurrent)
	}
	if c.Window <= 0 {
		return fmt.Errorf("window must be positive, got %s", c.Window)
	}
	if c.MaxStartsPerWindow <= 0 {
		return fmt.Errorf("max starts per window must be positive, got %d", c.MaxStartsPerWindow)
	}
	return nil
}

// Clock abstracts time for the admission gate.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

type options struct {
	clock   Clock
	onStart func(time.Time)
	name    string
}

type Option func(*options)

func WithClock(c Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithStartHook is called by the dispatcher with the admission time of each
// task, in start order.
func WithStartHook(fn func(time.Time)) Option {
	return func(o *options) { o.onStart = fn }
}

// WithName labels the scheduler's queue and in-flight gauges.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}
