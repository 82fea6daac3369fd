package testutil

import (
	"context"
	"errors"
	"sync"

	"provenance-go/internal/research"
)

// ActivityRecorder is an in-memory research.ActivityLog.
// Set Fail to make every write return an error.
type ActivityRecorder struct {
	mu      sync.Mutex
	entries []research.Activity
	Fail    bool
}

var _ research.ActivityLog = (*ActivityRecorder)(nil)

func NewActivityRecorder() *ActivityRecorder {
	return &ActivityRecorder{}
}

func (r *ActivityRecorder) RecordActivity(ctx context.Context, a *research.Activity) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Fail {
		return errors.New("activity log unavailable")
	}
	r.entries = append(r.entries, *a)
	return nil
}

// Entries returns a copy of everything recorded so far.
func (r *ActivityRecorder) Entries() []research.Activity {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]research.Activity(nil), r.entries...)
}

// Types returns the recorded activity types in order.
func (r *ActivityRecorder) Types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.entries))
	for i, e := range r.entries {
		out[i] = e.ActivityType
	}
	return out
}
