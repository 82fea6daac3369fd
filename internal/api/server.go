// Package api exposes the research services over HTTP.
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"provenance-go/internal/research"
)

// Services are the research services the API serves.
type Services struct {
	Assertions *research.AssertionService
	Queue      *research.ValidationQueue
	Snapshots  *research.SnapshotEngine
	Graphs     *research.GraphService
	Packs      *research.PackBuilder
}

// Handlers serves the research routes.
type Handlers struct {
	svc    Services
	logger research.Logger
}

// NewHandlers creates handlers for the given services.
func NewHandlers(svc Services, logger research.Logger) *Handlers {
	return &Handlers{svc: svc, logger: logger}
}

// NewRouter builds the engine: health and metrics endpoints plus the
// research routes under /api/v1.
func NewRouter(svc Services, logger research.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), observe(), requestContext())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	RegisterRoutes(router.Group("/api/v1"), NewHandlers(svc, logger))
	return router
}

// RegisterRoutes adds the research routes to rg. Routes that change state
// require a researcher id.
func RegisterRoutes(rg *gin.RouterGroup, h *Handlers) {
	rg.GET("/assertions", h.subjectAssertions)
	rg.GET("/assertions/search", h.searchAssertions)
	rg.GET("/assertions/:id", h.getAssertion)
	rg.GET("/assertions/:id/conflicts", h.assertionConflicts)
	rg.GET("/assertions/:id/evidence", h.listEvidence)
	rg.GET("/projects/:pid/assertions", h.projectAssertions)

	rg.GET("/queue", h.listQueue)
	rg.GET("/queue/stats", h.queueStats)
	rg.GET("/queue/results/:rid", h.queueResult)
	rg.GET("/jobs/:jid/disagreements", h.disagreements)

	rg.GET("/projects/:pid/snapshots", h.projectSnapshots)
	rg.GET("/snapshots/compare", h.compareSnapshots)
	rg.GET("/snapshots/:id", h.getSnapshot)
	rg.GET("/snapshots/:id/items", h.snapshotItems)
	rg.GET("/snapshots/:id/verify", h.verifySnapshot)

	rg.GET("/projects/:pid/graph", h.projectGraph)
	rg.GET("/projects/:pid/graph/gexf", h.projectGEXF)
	rg.GET("/projects/:pid/graph/graphml", h.projectGraphML)
	rg.GET("/entities/:type/:eid/graph", h.entityGraph)
	rg.GET("/entities/:type/:eid/relationships", h.entityRelationships)

	rg.GET("/projects/:pid/packs", h.listPacks)
	rg.GET("/packs/*key", h.openPack)

	w := rg.Group("", requireActor())
	w.POST("/assertions", h.createAssertion)
	w.PATCH("/assertions/:id", h.updateAssertion)
	w.PUT("/assertions/:id/status", h.updateAssertionStatus)
	w.POST("/assertions/:id/evidence", h.addEvidence)
	w.DELETE("/evidence/:id", h.removeEvidence)

	w.POST("/queue", h.enqueue)
	w.POST("/queue/results/:rid/accept", h.acceptResult)
	w.POST("/queue/results/:rid/reject", h.rejectResult)
	w.POST("/queue/results/:rid/modify", h.modifyResult)
	w.POST("/queue/bulk-accept", h.bulkAccept)
	w.POST("/queue/bulk-reject", h.bulkReject)

	w.POST("/projects/:pid/snapshots", h.createSnapshot)
	w.POST("/projects/:pid/collections/:cid/freeze", h.freezeCollection)
	w.PATCH("/snapshots/:id", h.updateSnapshot)
	w.POST("/snapshots/:id/items", h.addSnapshotItem)
	w.DELETE("/snapshots/:id/items/:oid", h.removeSnapshotItem)
	w.POST("/snapshots/:id/freeze", h.freezeSnapshot)
	w.POST("/snapshots/:id/archive", h.archiveSnapshot)
	w.POST("/snapshots/:id/citation", h.snapshotCitation)
	w.DELETE("/snapshots/:id", h.deleteSnapshot)

	w.POST("/projects/:pid/packs", h.buildPack)
}
