package api

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"provenance-go/internal/research"
)

type enqueueRequest struct {
	ResultID int64 `json:"result_id"`
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

type modifyRequest struct {
	Data json.RawMessage `json:"data"`
}

type bulkRequest struct {
	ResultIDs []int64 `json:"result_ids"`
	Reason    string  `json:"reason"`
}

type bulkResponse struct {
	Processed int `json:"processed"`
}

func (h *Handlers) listQueue(c *gin.Context) {
	researcher, ok := optionalInt64(c, "researcher_id")
	if !ok {
		return
	}
	minConf, ok := optionalFloat(c, "min_confidence")
	if !ok {
		return
	}
	page, ok := intQuery(c, "page", 1)
	if !ok {
		return
	}
	limit, ok := intQuery(c, "limit", 0)
	if !ok {
		return
	}
	res, err := h.svc.Queue.Queue(c.Request.Context(), research.QueueQuery{
		ResearcherID:   researcher,
		Status:         research.ValidationStatus(c.Query("status")),
		ResultType:     c.Query("result_type"),
		ExtractionType: c.Query("extraction_type"),
		MinConfidence:  minConf,
		Page:           page,
		Limit:          limit,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handlers) queueStats(c *gin.Context) {
	researcher, ok := optionalInt64(c, "researcher_id")
	if !ok {
		return
	}
	stats, err := h.svc.Queue.Stats(c.Request.Context(), researcher)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *Handlers) queueResult(c *gin.Context) {
	rid, ok := idParam(c, "rid")
	if !ok {
		return
	}
	detail, err := h.svc.Queue.Result(c.Request.Context(), rid)
	if err != nil {
		h.fail(c, err)
		return
	}
	if detail == nil {
		notFound(c, "extraction result not found")
		return
	}
	c.JSON(http.StatusOK, detail)
}

func (h *Handlers) enqueue(c *gin.Context) {
	var req enqueueRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.ResultID <= 0 {
		badRequest(c, "result_id required")
		return
	}
	entry, err := h.svc.Queue.Enqueue(c.Request.Context(), req.ResultID, actorID(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, entry)
}

func (h *Handlers) acceptResult(c *gin.Context) {
	rid, ok := idParam(c, "rid")
	if !ok {
		return
	}
	out, err := h.svc.Queue.Accept(c.Request.Context(), rid, actorID(c))
	h.reviewed(c, out, err)
}

func (h *Handlers) rejectResult(c *gin.Context) {
	rid, ok := idParam(c, "rid")
	if !ok {
		return
	}
	var req rejectRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid request body")
			return
		}
	}
	out, err := h.svc.Queue.Reject(c.Request.Context(), rid, actorID(c), req.Reason)
	h.reviewed(c, out, err)
}

func (h *Handlers) modifyResult(c *gin.Context) {
	rid, ok := idParam(c, "rid")
	if !ok {
		return
	}
	var req modifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	out, err := h.svc.Queue.Modify(c.Request.Context(), rid, actorID(c), req.Data)
	h.reviewed(c, out, err)
}

// reviewed writes the outcome of a review decision.
func (h *Handlers) reviewed(c *gin.Context, out research.ReviewOutcome, err error) {
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handlers) bulkAccept(c *gin.Context) {
	var req bulkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	n := h.svc.Queue.BulkAccept(c.Request.Context(), req.ResultIDs, actorID(c))
	c.JSON(http.StatusOK, bulkResponse{Processed: n})
}

func (h *Handlers) bulkReject(c *gin.Context) {
	var req bulkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	n := h.svc.Queue.BulkReject(c.Request.Context(), req.ResultIDs, actorID(c), req.Reason)
	c.JSON(http.StatusOK, bulkResponse{Processed: n})
}

func (h *Handlers) disagreements(c *gin.Context) {
	jid, ok := idParam(c, "jid")
	if !ok {
		return
	}
	list, err := h.svc.Queue.Disagreements(c.Request.Context(), jid)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}
