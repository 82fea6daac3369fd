package research

import (
	"context"
	"time"
)

// Activity is one entry in the append-only research activity log.
type Activity struct {
	ID           int64     `json:"id"`
	ResearcherID int64     `json:"researcher_id"`
	ProjectID    *int64    `json:"project_id"`
	ActivityType string    `json:"activity_type"`
	EntityType   string    `json:"entity_type"`
	EntityID     int64     `json:"entity_id"`
	Title        *string   `json:"title"`
	SessionID    string    `json:"session_id"`
	IP           string    `json:"ip"`
	UserAgent    string    `json:"user_agent"`
	CreatedAt    time.Time `json:"created_at"`
}

// ActivityLog is the sink for activity records.
type ActivityLog interface {
	RecordActivity(ctx context.Context, a *Activity) error
}

// activityRecorder stamps activities with the request context and writes
// them without failing the caller.
type activityRecorder struct {
	sink   ActivityLog
	logger Logger
	clock  Clock
}

func (r activityRecorder) record(ctx context.Context, a Activity) {
	if r.sink == nil {
		return
	}
	if rc, ok := RequestContextFrom(ctx); ok {
		a.SessionID = rc.SessionID
		a.IP = rc.IP
		a.UserAgent = rc.UserAgent
	}
	a.CreatedAt = r.clock.Now()
	if err := r.sink.RecordActivity(ctx, &a); err != nil {
		r.logger.Warn("activity not recorded", "type", a.ActivityType, "entity", a.EntityType, "id", a.EntityID, "error", err)
	}
}

func strPtr(s string) *string { return &s }
