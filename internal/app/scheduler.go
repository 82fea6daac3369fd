package app

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"provenance-go/internal/research"
)

// FrozenVerifier re-verifies every frozen snapshot.
type FrozenVerifier interface {
	VerifyFrozen(ctx context.Context) ([]*research.VerifyResult, error)
}

// Scheduler runs the periodic integrity sweep of frozen snapshots.
type Scheduler struct {
	cron     *cron.Cron
	verifier FrozenVerifier
	logger   research.Logger
	timeout  time.Duration
}

// NewScheduler registers the sweep under the given cron spec.
// An empty spec yields nil: no sweep is scheduled.
func NewScheduler(spec string, verifier FrozenVerifier, logger research.Logger) (*Scheduler, error) {
	if spec == "" {
		return nil, nil
	}
	s := &Scheduler{
		cron:     cron.New(),
		verifier: verifier,
		logger:   logger,
		timeout:  30 * time.Minute,
	}
	if _, err := s.cron.AddFunc(spec, s.sweep); err != nil {
		return nil, fmt.Errorf("parsing verify schedule %q: %w", spec, err)
	}
	return s, nil
}

// Start runs the scheduler in its own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("snapshot verification scheduled", "entries", len(s.cron.Entries()))
}

// Stop stops the scheduler and waits for a running sweep until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.logger.Warn("snapshot verification still running at shutdown")
	}
}

// sweep verifies all frozen snapshots once and logs the outcome.
func (s *Scheduler) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	results, err := s.verifier.VerifyFrozen(ctx)
	if err != nil {
		s.logger.Error("snapshot verification failed", "verified", len(results), "error", err)
		return
	}
	mismatches := 0
	for _, r := range results {
		if !r.Valid {
			mismatches++
		}
	}
	s.logger.Info("snapshot verification completed", "verified", len(results), "mismatches", mismatches)
}
