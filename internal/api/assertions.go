package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"provenance-go/internal/research"
)

type assertionResponse struct {
	Assertion *research.Assertion  `json:"assertion"`
	Evidence  []*research.Evidence `json:"evidence"`
}

type statusRequest struct {
	Status research.AssertionStatus `json:"status"`
}

func (h *Handlers) createAssertion(c *gin.Context) {
	var claim research.Claim
	if err := c.ShouldBindJSON(&claim); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	a, err := h.svc.Assertions.Create(c.Request.Context(), actorID(c), claim)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, a)
}

func (h *Handlers) getAssertion(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	a, evidence, err := h.svc.Assertions.Get(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	if a == nil {
		notFound(c, "assertion not found")
		return
	}
	c.JSON(http.StatusOK, assertionResponse{Assertion: a, Evidence: evidence})
}

func (h *Handlers) updateAssertion(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var u research.AssertionUpdate
	if err := c.ShouldBindJSON(&u); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	a, err := h.svc.Assertions.Update(c.Request.Context(), id, u)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

func (h *Handlers) updateAssertionStatus(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	a, err := h.svc.Assertions.UpdateStatus(c.Request.Context(), id, req.Status, actorID(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

func (h *Handlers) assertionConflicts(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	list, err := h.svc.Assertions.DetectConflicts(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *Handlers) addEvidence(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var in research.EvidenceInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	e, err := h.svc.Assertions.AddEvidence(c.Request.Context(), id, actorID(c), in)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, e)
}

func (h *Handlers) listEvidence(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	list, err := h.svc.Assertions.ListEvidence(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *Handlers) removeEvidence(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := h.svc.Assertions.RemoveEvidence(c.Request.Context(), id, actorID(c)); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// subjectAssertions serves GET /assertions?subject_type=&subject_id=.
func (h *Handlers) subjectAssertions(c *gin.Context) {
	subjectType := c.Query("subject_type")
	subjectID, err := strconv.ParseInt(c.Query("subject_id"), 10, 64)
	if subjectType == "" || err != nil {
		badRequest(c, "subject_type and subject_id required")
		return
	}
	list, err := h.svc.Assertions.SubjectAssertions(c.Request.Context(), subjectType, subjectID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *Handlers) searchAssertions(c *gin.Context) {
	q := c.Query("q")
	if q == "" {
		badRequest(c, "q required")
		return
	}
	filter, ok := assertionFilter(c)
	if !ok {
		return
	}
	list, err := h.svc.Assertions.Search(c.Request.Context(), q, filter)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *Handlers) projectAssertions(c *gin.Context) {
	pid, ok := idParam(c, "pid")
	if !ok {
		return
	}
	filter, ok := assertionFilter(c)
	if !ok {
		return
	}
	list, err := h.svc.Assertions.ProjectAssertions(c.Request.Context(), pid, filter)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// assertionFilter reads the optional list filters from the query string.
func assertionFilter(c *gin.Context) (research.AssertionFilter, bool) {
	projectID, ok := optionalInt64(c, "project_id")
	if !ok {
		return research.AssertionFilter{}, false
	}
	return research.AssertionFilter{
		ProjectID:     projectID,
		AssertionType: research.AssertionType(c.Query("type")),
		Status:        research.AssertionStatus(c.Query("status")),
		SubjectType:   c.Query("subject_type"),
		Predicate:     c.Query("predicate"),
	}, true
}
