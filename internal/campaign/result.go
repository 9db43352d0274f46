package campaign

import (
	"sync"

	"outreach-engine/internal/models"
)

// accumulator folds per-target outcomes into a CampaignResult. Each target
// is counted at most once no matter how many paths report it.
type accumulator struct {
	mu       sync.Mutex
	result   models.CampaignResult
	recorded map[string]struct{}
}

func newAccumulator(base models.CampaignResult) *accumulator {
	base.Errors = make([]models.TargetError, 0)
	return &accumulator{
		result:   base,
		recorded: make(map[string]struct{}, base.Total),
	}
}

func (a *accumulator) claim(id string) bool {
	if _, ok := a.recorded[id]; ok {
		return false
	}
	a.recorded[id] = struct{}{}
	return true
}

func (a *accumulator) record(target models.Target, out models.SendOutcome) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.claim(target.ID) {
		return false
	}
	if out.Succeeded {
		a.result.Sent++
		return true
	}
	a.result.Failed++
	a.result.Errors = append(a.result.Errors, models.TargetError{
		TargetID:     target.ID,
		Handle:       target.Handle,
		ErrorKind:    out.ErrorKind,
		ErrorMessage: out.ErrorMessage,
	})
	return true
}

func (a *accumulator) skip(id string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.claim(id) {
		return false
	}
	a.result.Skipped++
	return true
}

func (a *accumulator) cancel(id string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.claim(id) {
		return false
	}
	a.result.Cancelled++
	return true
}

func (a *accumulator) isRecorded(id string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.recorded[id]
	return ok
}

func (a *accumulator) snapshot() models.CampaignResult {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := a.result
	out.Errors = append([]models.TargetError(nil), a.result.Errors...)
	if out.Errors == nil {
		out.Errors = []models.TargetError{}
	}
	return out
}
