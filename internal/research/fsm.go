package research

// TransitionAssertion checks an assertion status change and returns the
// activity type to record for it. Every known status is reachable from every
// other, repeats included.
func TransitionAssertion(from, to AssertionStatus) (string, error) {
	switch to {
	case StatusVerified:
		return "assertion_verified", nil
	case StatusDisputed:
		return "assertion_disputed", nil
	case StatusRetracted:
		return "assertion_retracted", nil
	case StatusProposed:
		return "assertion_status_changed", nil
	}
	return "", validationError(nil, "unknown assertion status %q (from %q)", to, from)
}

// TransitionValidation checks a queue entry status change. Only pending
// entries move, and only to a terminal status.
func TransitionValidation(from, to ValidationStatus) error {
	switch to {
	case ValidationAccepted, ValidationRejected, ValidationModified:
	default:
		return validationError(nil, "unknown validation status %q", to)
	}
	if from != ValidationPending {
		return ErrNotPending
	}
	return nil
}

// CheckSnapshotMutable fails with ErrSnapshotFrozen for frozen snapshots.
func CheckSnapshotMutable(status SnapshotStatus) error {
	if status == SnapshotFrozen {
		return ErrSnapshotFrozen
	}
	return nil
}
