package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"provenance-go/internal/research"
)

// Request headers that identify the caller.
const (
	HeaderSessionID    = "X-Session-ID"
	HeaderResearcherID = "X-Researcher-ID"
)

// requestContext attaches a research.RequestContext built from the request
// headers and client address. Requests without a session id get a new one.
func requestContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		session := c.GetHeader(HeaderSessionID)
		if session == "" {
			session = uuid.NewString()
		}
		var actor int64
		if v := c.GetHeader(HeaderResearcherID); v != "" {
			id, err := strconv.ParseInt(v, 10, 64)
			if err != nil || id <= 0 {
				c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{
					Error: "invalid " + HeaderResearcherID + " header",
					Code:  string(research.CodeValidation),
				})
				return
			}
			actor = id
		}

		rc := research.RequestContext{
			SessionID: session,
			IP:        c.ClientIP(),
			UserAgent: c.Request.UserAgent(),
			ActorID:   actor,
		}
		c.Request = c.Request.WithContext(research.WithRequestContext(c.Request.Context(), rc))
		c.Header(HeaderSessionID, session)
		c.Next()
	}
}

// requireActor rejects requests that carry no researcher id.
func requireActor() gin.HandlerFunc {
	return func(c *gin.Context) {
		if actorID(c) == 0 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{
				Error: HeaderResearcherID + " header required",
				Code:  "UNAUTHENTICATED",
			})
			return
		}
		c.Next()
	}
}

// observe records request counts and latency per matched route.
func observe() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		httpRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		httpDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}

func actorID(c *gin.Context) int64 {
	rc, _ := research.RequestContextFrom(c.Request.Context())
	return rc.ActorID
}
