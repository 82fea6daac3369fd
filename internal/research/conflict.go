package research

import (
	"context"
	"fmt"
)

// DetectConflicts returns the non-retracted assertions that share the
// target's subject and predicate but disagree on its object, most confident
// and most recently updated first. A missing target yields no conflicts.
func (s *AssertionService) DetectConflicts(ctx context.Context, assertionID int64) ([]*Assertion, error) {
	target, err := s.db.FindAssertion(ctx, assertionID)
	if err != nil {
		return nil, fmt.Errorf("finding assertion: %w", err)
	}
	if target == nil {
		return nil, nil
	}

	conflicts, err := s.db.FindConflictingAssertions(ctx, target)
	if err != nil {
		return nil, fmt.Errorf("finding conflicts: %w", err)
	}
	if len(conflicts) > 0 {
		s.logger.Debug("conflicts detected", "assertion", assertionID, "count", len(conflicts))
	}
	return conflicts, nil
}
