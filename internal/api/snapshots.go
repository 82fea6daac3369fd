package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"provenance-go/internal/research"
)

type detailsRequest struct {
	Title       string  `json:"title"`
	Description *string `json:"description"`
}

type citationResponse struct {
	SnapshotID int64  `json:"snapshot_id"`
	CitationID string `json:"citation_id"`
}

func (h *Handlers) createSnapshot(c *gin.Context) {
	pid, ok := idParam(c, "pid")
	if !ok {
		return
	}
	var d research.SnapshotDraft
	if err := c.ShouldBindJSON(&d); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	snap, err := h.svc.Snapshots.Create(c.Request.Context(), pid, actorID(c), d)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, snap)
}

func (h *Handlers) freezeCollection(c *gin.Context) {
	pid, ok := idParam(c, "pid")
	if !ok {
		return
	}
	cid, ok := idParam(c, "cid")
	if !ok {
		return
	}
	snap, err := h.svc.Snapshots.FreezeCollection(c.Request.Context(), pid, cid, actorID(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, snap)
}

func (h *Handlers) projectSnapshots(c *gin.Context) {
	pid, ok := idParam(c, "pid")
	if !ok {
		return
	}
	list, err := h.svc.Snapshots.ProjectSnapshots(c.Request.Context(), pid)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *Handlers) getSnapshot(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	snap, err := h.svc.Snapshots.Get(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	if snap == nil {
		notFound(c, "snapshot not found")
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (h *Handlers) snapshotItems(c *gin.Context) {
	id, ok := idParam(c, "id")
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
	res, err := h.svc.Snapshots.Items(c.Request.Context(), id, page, limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handlers) addSnapshotItem(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var in research.ItemInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	item, err := h.svc.Snapshots.AddItem(c.Request.Context(), id, in)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, item)
}

func (h *Handlers) removeSnapshotItem(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	oid, ok := idParam(c, "oid")
	if !ok {
		return
	}
	if err := h.svc.Snapshots.RemoveItem(c.Request.Context(), id, oid, c.Query("object_type")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handlers) updateSnapshot(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req detailsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	if err := h.svc.Snapshots.UpdateDetails(c.Request.Context(), id, req.Title, req.Description); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handlers) freezeSnapshot(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	snap, err := h.svc.Snapshots.Freeze(c.Request.Context(), id, actorID(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (h *Handlers) archiveSnapshot(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := h.svc.Snapshots.Archive(c.Request.Context(), id); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handlers) deleteSnapshot(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := h.svc.Snapshots.Delete(c.Request.Context(), id); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handlers) verifySnapshot(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	res, err := h.svc.Snapshots.VerifyHash(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handlers) snapshotCitation(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	cid, err := h.svc.Snapshots.CitationID(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, citationResponse{SnapshotID: id, CitationID: cid})
}

// compareSnapshots serves GET /snapshots/compare?a=&b=.
func (h *Handlers) compareSnapshots(c *gin.Context) {
	a, errA := strconv.ParseInt(c.Query("a"), 10, 64)
	b, errB := strconv.ParseInt(c.Query("b"), 10, 64)
	if errA != nil || errB != nil {
		badRequest(c, "a and b snapshot ids required")
		return
	}
	cmp, err := h.svc.Snapshots.Compare(c.Request.Context(), a, b)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, cmp)
}
