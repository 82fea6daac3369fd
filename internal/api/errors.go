package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"provenance-go/internal/research"
)

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// statusFor maps domain error codes to HTTP status codes.
func statusFor(err error) (int, string) {
	var de *research.Error
	if errors.As(err, &de) {
		switch de.Code {
		case research.CodeNotFound:
			return http.StatusNotFound, string(de.Code)
		case research.CodeInvalidState:
			return http.StatusConflict, string(de.Code)
		case research.CodeValidation:
			return http.StatusBadRequest, string(de.Code)
		}
	}
	return http.StatusInternalServerError, "INTERNAL"
}

// fail writes err as an ErrorResponse. Internal errors are logged and their
// text withheld from the client.
func (h *Handlers) fail(c *gin.Context, err error) {
	status, code := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", "method", c.Request.Method, "path", c.FullPath(), "error", err)
		msg = "internal error"
	}
	c.JSON(status, ErrorResponse{Error: msg, Code: code})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: msg, Code: string(research.CodeValidation)})
}

func notFound(c *gin.Context, msg string) {
	c.JSON(http.StatusNotFound, ErrorResponse{Error: msg, Code: string(research.CodeNotFound)})
}

// idParam parses a positive integer path parameter.
func idParam(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		badRequest(c, "invalid "+name)
		return 0, false
	}
	return id, true
}

// optionalInt64 parses an integer query parameter; absent yields nil.
func optionalInt64(c *gin.Context, name string) (*int64, bool) {
	v := c.Query(name)
	if v == "" {
		return nil, true
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		badRequest(c, "invalid "+name)
		return nil, false
	}
	return &n, true
}

// optionalFloat parses a float query parameter; absent yields nil.
func optionalFloat(c *gin.Context, name string) (*float64, bool) {
	v := c.Query(name)
	if v == "" {
		return nil, true
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		badRequest(c, "invalid "+name)
		return nil, false
	}
	return &f, true
}

// intQuery parses an integer query parameter with a default.
func intQuery(c *gin.Context, name string, def int) (int, bool) {
	v := c.Query(name)
	if v == "" {
		return def, true
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		badRequest(c, "invalid "+name)
		return 0, false
	}
	return n, true
}
