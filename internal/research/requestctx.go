package research

import "context"

// RequestContext identifies who is acting and from where. It is attached to
// every activity record written while serving a request.
type RequestContext struct {
	SessionID string
	IP        string
	UserAgent string
	ActorID   int64
}

type requestContextKey struct{}

// WithRequestContext returns a child context carrying rc.
func WithRequestContext(ctx context.Context, rc RequestContext) context.Context {
	return context.WithValue(ctx, requestContextKey{}, rc)
}

// RequestContextFrom returns the request context stored in ctx, if any.
func RequestContextFrom(ctx context.Context) (RequestContext, bool) {
	if ctx == nil {
		return RequestContext{}, false
	}
	rc, ok := ctx.Value(requestContextKey{}).(RequestContext)
	return rc, ok
}
