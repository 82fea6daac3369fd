package research

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
)

const (
	defaultQueueLimit = 25
	maxQueueLimit     = 500
)

// ReviewOutcome reports what a review decision did.
type ReviewOutcome struct {
	// Applied is false when the result had no pending entry.
	Applied bool `json:"applied"`
	// Assertion is the assertion the decision promoted, if any.
	Assertion *Assertion `json:"assertion,omitempty"`
}

// ValidationQueue is the human review step between machine-extracted facts
// and committed assertions.
type ValidationQueue struct {
	db         Database
	extraction ExtractionSource
	assertions *AssertionService
	activity   activityRecorder
	logger     Logger
	clock      Clock
}

// NewValidationQueue creates a ValidationQueue. Promoted assertions are
// announced through assertions.
func NewValidationQueue(db Database, extraction ExtractionSource, assertions *AssertionService, activity ActivityLog, logger Logger, clock Clock) *ValidationQueue {
	return &ValidationQueue{
		db:         db,
		extraction: extraction,
		assertions: assertions,
		activity:   activityRecorder{sink: activity, logger: logger, clock: clock},
		logger:     logger,
		clock:      clock,
	}
}

// Enqueue opens a pending review of an extraction result for researcherID.
func (q *ValidationQueue) Enqueue(ctx context.Context, resultID, researcherID int64) (*QueueEntry, error) {
	result, err := q.extraction.FindExtractionResult(ctx, resultID)
	if err != nil {
		return nil, fmt.Errorf("finding extraction result: %w", err)
	}
	if result == nil {
		return nil, notFound("extraction result %d not found", resultID)
	}

	entry, err := q.db.EnqueueResult(ctx, &QueueEntry{
		ResultID:     resultID,
		ResearcherID: researcherID,
		Status:       ValidationPending,
		CreatedAt:    q.clock.Now(),
	})
	if err != nil {
		return nil, fmt.Errorf("enqueueing result: %w", err)
	}
	q.logger.Debug("result enqueued", "result", resultID, "entry", entry.ID)
	return entry, nil
}

// Queue returns one page of queue items, newest first, and the total count.
func (q *ValidationQueue) Queue(ctx context.Context, query QueueQuery) (*QueuePage, error) {
	if query.Page < 1 {
		query.Page = 1
	}
	if query.Limit < 1 {
		query.Limit = defaultQueueLimit
	}
	query.Limit = min(query.Limit, maxQueueLimit)

	items, total, err := q.db.ListQueue(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing queue: %w", err)
	}
	return &QueuePage{Items: items, Total: total, Page: query.Page, Limit: query.Limit}, nil
}

// Stats counts entries by status and averages the confidence of pending results.
func (q *ValidationQueue) Stats(ctx context.Context, researcherID *int64) (*QueueStats, error) {
	stats, err := q.db.QueueStats(ctx, researcherID)
	if err != nil {
		return nil, fmt.Errorf("computing queue stats: %w", err)
	}
	if stats.AvgPendingConfidence != nil {
		avg := math.Round(*stats.AvgPendingConfidence*1e4) / 1e4
		stats.AvgPendingConfidence = &avg
	}
	return stats, nil
}

// PendingCount returns the number of pending entries.
func (q *ValidationQueue) PendingCount(ctx context.Context, researcherID *int64) (int, error) {
	stats, err := q.db.QueueStats(ctx, researcherID)
	if err != nil {
		return 0, fmt.Errorf("counting pending entries: %w", err)
	}
	return stats.Pending, nil
}

// Result returns an extraction result with its job and queue entries, or nil.
func (q *ValidationQueue) Result(ctx context.Context, resultID int64) (*ResultDetail, error) {
	result, err := q.extraction.FindExtractionResult(ctx, resultID)
	if err != nil {
		return nil, fmt.Errorf("finding extraction result: %w", err)
	}
	if result == nil {
		return nil, nil
	}
	job, err := q.extraction.FindExtractionJob(ctx, result.JobID)
	if err != nil {
		return nil, fmt.Errorf("finding extraction job: %w", err)
	}
	entries, err := q.db.ListQueueEntries(ctx, resultID)
	if err != nil {
		return nil, fmt.Errorf("listing queue entries: %w", err)
	}
	return &ResultDetail{Result: result, Job: job, Entries: entries}, nil
}

// Accept approves a pending result. Entity results become verified assertions.
func (q *ValidationQueue) Accept(ctx context.Context, resultID, reviewerID int64) (ReviewOutcome, error) {
	return q.review(ctx, Review{ResultID: resultID, To: ValidationAccepted, ReviewerID: reviewerID})
}

// Reject declines a pending result. The reason is stored verbatim, even when empty.
func (q *ValidationQueue) Reject(ctx context.Context, resultID, reviewerID int64, reason string) (ReviewOutcome, error) {
	return q.review(ctx, Review{ResultID: resultID, To: ValidationRejected, ReviewerID: reviewerID, Notes: &reason})
}

// Modify approves a pending result with corrected data. Entity results are
// promoted from the corrected data.
func (q *ValidationQueue) Modify(ctx context.Context, resultID, reviewerID int64, data json.RawMessage) (ReviewOutcome, error) {
	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err != nil {
		return ReviewOutcome{}, validationError(err, "modified data for result %d is not a JSON object", resultID)
	}
	if obj == nil {
		return ReviewOutcome{}, validationError(nil, "modified data for result %d is null", resultID)
	}
	return q.review(ctx, Review{ResultID: resultID, To: ValidationModified, ReviewerID: reviewerID, ModifiedData: data})
}

// BulkAccept accepts each result independently and returns how many were applied.
func (q *ValidationQueue) BulkAccept(ctx context.Context, resultIDs []int64, reviewerID int64) int {
	applied := 0
	for _, id := range resultIDs {
		out, err := q.Accept(ctx, id, reviewerID)
		if err != nil {
			q.logger.Warn("bulk accept failed", "result", id, "error", err)
			continue
		}
		if out.Applied {
			applied++
		}
	}
	return applied
}

// BulkReject rejects each result independently and returns how many were applied.
func (q *ValidationQueue) BulkReject(ctx context.Context, resultIDs []int64, reviewerID int64, reason string) int {
	applied := 0
	for _, id := range resultIDs {
		out, err := q.Reject(ctx, id, reviewerID, reason)
		if err != nil {
			q.logger.Warn("bulk reject failed", "result", id, "error", err)
			continue
		}
		if out.Applied {
			applied++
		}
	}
	return applied
}

func (q *ValidationQueue) review(ctx context.Context, rv Review) (ReviewOutcome, error) {
	if err := TransitionValidation(ValidationPending, rv.To); err != nil {
		return ReviewOutcome{}, err
	}

	entries, err := q.db.ListQueueEntries(ctx, rv.ResultID)
	if err != nil {
		return ReviewOutcome{}, fmt.Errorf("listing queue entries: %w", err)
	}
	pending := false
	for _, e := range entries {
		if TransitionValidation(e.Status, rv.To) == nil {
			pending = true
			break
		}
	}
	if !pending {
		q.logger.Debug("review skipped, nothing pending", "result", rv.ResultID, "to", rv.To)
		return ReviewOutcome{}, nil
	}

	result, err := q.extraction.FindExtractionResult(ctx, rv.ResultID)
	if err != nil {
		return ReviewOutcome{}, fmt.Errorf("finding extraction result: %w", err)
	}
	if result == nil {
		return ReviewOutcome{}, notFound("extraction result %d not found", rv.ResultID)
	}
	job, err := q.extraction.FindExtractionJob(ctx, result.JobID)
	if err != nil {
		return ReviewOutcome{}, fmt.Errorf("finding extraction job: %w", err)
	}

	rv.ReviewedAt = q.clock.Now()

	var promoted *Assertion
	if rv.To != ValidationRejected && result.ResultType == "entity" {
		data := result.Data
		if rv.To == ValidationModified {
			data = rv.ModifiedData
		}
		promoted = promotedAssertion(result, job, data, rv.ReviewerID, rv.ReviewedAt)
	}

	applied, created, err := q.db.ApplyReview(ctx, rv, promoted)
	if err != nil {
		return ReviewOutcome{}, fmt.Errorf("applying review: %w", err)
	}
	if !applied {
		return ReviewOutcome{}, nil
	}
	validationDecisions.WithLabelValues(string(rv.To)).Inc()

	if created != nil {
		q.assertions.recordCreated(ctx, created, "promoted")
	}
	q.recordReview(ctx, rv, job)

	return ReviewOutcome{Applied: true, Assertion: created}, nil
}

func (q *ValidationQueue) recordReview(ctx context.Context, rv Review, job *ExtractionJob) {
	a := Activity{
		ResearcherID: rv.ReviewerID,
		EntityType:   "extraction_result",
		EntityID:     rv.ResultID,
	}
	if job != nil {
		a.ResearcherID = job.ResearcherID
		a.ProjectID = job.ProjectID
	}

	switch rv.To {
	case ValidationRejected:
		a.ActivityType = "validation_rejected"
		a.Title = strPtr(fmt.Sprintf("Result #%d rejected: %s", rv.ResultID, truncateRunes(derefString(rv.Notes), 200)))
	case ValidationModified:
		a.ActivityType = "validation_accepted"
		a.Title = strPtr(fmt.Sprintf("Result #%d accepted with modifications", rv.ResultID))
	default:
		a.ActivityType = "validation_accepted"
		a.Title = strPtr(fmt.Sprintf("Result #%d accepted", rv.ResultID))
	}
	q.activity.record(ctx, a)
	q.logger.Info("result reviewed", "result", rv.ResultID, "status", rv.To, "reviewer", rv.ReviewerID)
}

// Disagreements lists the reviewed results of a job whose reviewers gave
// different verdicts or corrected the extracted data.
func (q *ValidationQueue) Disagreements(ctx context.Context, jobID int64) ([]*Disagreement, error) {
	rows, err := q.db.ListJobReviews(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("listing job reviews: %w", err)
	}

	var order []int64
	groups := make(map[int64][]*ReviewRow)
	for _, r := range rows {
		if _, seen := groups[r.ResultID]; !seen {
			order = append(order, r.ResultID)
		}
		groups[r.ResultID] = append(groups[r.ResultID], r)
	}

	out := []*Disagreement{}
	for _, id := range order {
		reviews := groups[id]
		statuses := make(map[ValidationStatus]bool)
		corrected := false
		for _, r := range reviews {
			statuses[r.Status] = true
			if r.Status == ValidationModified && len(r.ModifiedData) > 0 {
				corrected = true
			}
		}
		if len(statuses) < 2 && !corrected {
			continue
		}

		first := reviews[0]
		d := &Disagreement{
			ResultID:   id,
			ObjectID:   first.ObjectID,
			ResultType: first.ResultType,
			Data:       first.Data,
			Confidence: first.Confidence,
		}
		for _, r := range reviews {
			d.Reviews = append(d.Reviews, r.ReviewRecord)
		}
		out = append(out, d)
	}
	return out, nil
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
