// Package channel defines the delivery boundary between the campaign runner
// and the platforms it sends through.
package channel

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"outreach-engine/internal/models"
)

// Adapter performs one send and classifies the result. Implementations must
// not retry: pacing belongs to the scheduler and retry policy to the caller.
// Failures are reported through the outcome, never as a panic or error.
type Adapter interface {
	Send(ctx context.Context, target models.Target, subject *string, body string) models.SendOutcome
}

// AdapterFunc lets a plain function act as an Adapter.
type AdapterFunc func(ctx context.Context, target models.Target, subject *string, body string) models.SendOutcome

func (f AdapterFunc) Send(ctx context.Context, target models.Target, subject *string, body string) models.SendOutcome {
	return f(ctx, target, subject, body)
}

// Registry maps each channel to the adapter that serves it.
type Registry struct {
	mu       sync.RWMutex
	adapters map[models.Channel]Adapter
}

func NewRegistry() *Registry {
	return &Registry{adapters: make(map[models.Channel]Adapter)}
}

func (r *Registry) Register(ch models.Channel, a Adapter) error {
	if !ch.Valid() {
		return fmt.Errorf("register adapter: unknown channel %q", ch)
	}
	if a == nil {
		return fmt.Errorf("register adapter: nil adapter for %s", ch)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[ch] = a
	return nil
}

func (r *Registry) Get(ch models.Channel) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[ch]
	return a, ok
}

// Channels lists the registered channels in name order.
func (r *Registry) Channels() []models.Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.Channel, 0, len(r.adapters))
	for ch := range r.adapters {
		out = append(out, ch)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
