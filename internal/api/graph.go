package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"provenance-go/internal/research"
)

type packResponse struct {
	Key      string `json:"key"`
	PackHash string `json:"pack_hash"`
}

func (h *Handlers) projectGraph(c *gin.Context) {
	pid, ok := idParam(c, "pid")
	if !ok {
		return
	}
	g, err := h.svc.Graphs.ProjectGraph(c.Request.Context(), pid, research.AssertionFilter{
		AssertionType: research.AssertionType(c.Query("type")),
		Status:        research.AssertionStatus(c.Query("status")),
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, g)
}

func (h *Handlers) projectGEXF(c *gin.Context) {
	pid, ok := idParam(c, "pid")
	if !ok {
		return
	}
	doc, err := h.svc.Graphs.GEXF(c.Request.Context(), pid)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.Data(http.StatusOK, "application/gexf+xml; charset=utf-8", []byte(doc))
}

func (h *Handlers) projectGraphML(c *gin.Context) {
	pid, ok := idParam(c, "pid")
	if !ok {
		return
	}
	doc, err := h.svc.Graphs.GraphML(c.Request.Context(), pid)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.Data(http.StatusOK, "application/graphml+xml; charset=utf-8", []byte(doc))
}

func (h *Handlers) entityGraph(c *gin.Context) {
	eid, ok := idParam(c, "eid")
	if !ok {
		return
	}
	g, err := h.svc.Graphs.EntityGraph(c.Request.Context(), c.Param("type"), eid)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, g)
}

func (h *Handlers) entityRelationships(c *gin.Context) {
	eid, ok := idParam(c, "eid")
	if !ok {
		return
	}
	list, err := h.svc.Graphs.EntityRelationships(c.Request.Context(), c.Param("type"), eid)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// buildPack builds a project's reproducibility pack and stores it.
func (h *Handlers) buildPack(c *gin.Context) {
	pid, ok := idParam(c, "pid")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	p, err := h.svc.Packs.Build(ctx, pid)
	if err != nil {
		h.fail(c, err)
		return
	}
	key, err := h.svc.Packs.Store(ctx, actorID(c), p)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, packResponse{Key: key, PackHash: p.PackHash})
}

func (h *Handlers) listPacks(c *gin.Context) {
	pid, ok := idParam(c, "pid")
	if !ok {
		return
	}
	keys, err := h.svc.Packs.List(c.Request.Context(), pid)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, keys)
}

// openPack returns a stored pack. Encrypted packs cannot be opened here:
// the private key never reaches the server.
func (h *Handlers) openPack(c *gin.Context) {
	key := strings.TrimPrefix(c.Param("key"), "/")
	if key == "" || strings.Contains(key, "..") {
		badRequest(c, "invalid pack key")
		return
	}
	p, err := h.svc.Packs.Open(c.Request.Context(), key, nil)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}
