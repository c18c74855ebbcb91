package server

import (
	"sync"
	"time"
)

// BackendStatus is the observed outbound dial health of one target.
// It is bookkeeping for operators only; route selection stays purely
// score-driven.
type BackendStatus struct {
	Target              string    `json:"target"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	TotalFailures       uint64    `json:"total_failures"`
	TotalConnects       uint64    `json:"total_connects"`
	LastError           string    `json:"last_error,omitempty"`
	LastFailureAt       time.Time `json:"last_failure_at"`
}

// BackendHealth tracks outbound dial outcomes per target.
type BackendHealth struct {
	mu       sync.Mutex
	statuses map[string]*BackendStatus
}

func NewBackendHealth() *BackendHealth {
	return &BackendHealth{statuses: make(map[string]*BackendStatus)}
}

func (b *BackendHealth) get(target string) *BackendStatus {
	status, ok := b.statuses[target]
	if !ok {
		status = &BackendStatus{Target: target}
		b.statuses[target] = status
	}
	return status
}

// RecordSuccess resets the consecutive failure count for target.
func (b *BackendHealth) RecordSuccess(target string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	status := b.get(target)
	status.ConsecutiveFailures = 0
	status.TotalConnects++
}

// RecordFailure notes a failed outbound dial against target.
func (b *BackendHealth) RecordFailure(target string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	status := b.get(target)
	status.ConsecutiveFailures++
	status.TotalFailures++
	status.LastFailureAt = time.Now()
	if err != nil {
		status.LastError = err.Error()
	}
}

// Snapshot returns a copy of all tracked statuses.
func (b *BackendHealth) Snapshot() []BackendStatus {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]BackendStatus, 0, len(b.statuses))
	for _, status := range b.statuses {
		out = append(out, *status)
	}
	return out
}
