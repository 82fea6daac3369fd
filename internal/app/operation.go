package app

import (
	"context"
	"time"

	"provenance-go/internal/research"
)

// Operation is one invocation of prov: a CLI command or a server process.
// Its session id ties log lines and activity records together.
type Operation struct {
	SessionID string
	Name      string
	ActorID   int64
	StartedAt time.Time
}

// NewOperation starts an operation with a fresh session id.
func NewOperation(name string, actorID int64, ids research.IDGenerator, clock research.Clock) *Operation {
	return &Operation{
		SessionID: ids.New(),
		Name:      name,
		ActorID:   actorID,
		StartedAt: clock.Now(),
	}
}

// UserAgent identifies the command in activity records.
func (op *Operation) UserAgent() string {
	if op.Name == "" {
		return "prov"
	}
	return "prov/" + op.Name
}

// Context returns ctx carrying the operation's request context.
// Local operations have no client address.
func (op *Operation) Context(ctx context.Context) context.Context {
	return research.WithRequestContext(ctx, research.RequestContext{
		SessionID: op.SessionID,
		UserAgent: op.UserAgent(),
		ActorID:   op.ActorID,
	})
}
