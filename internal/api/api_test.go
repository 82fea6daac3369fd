package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"provenance-go/internal/database"
	"provenance-go/internal/research"
	"provenance-go/internal/testutil"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	router *gin.Engine
	db     *database.SQLiteDatabase
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	db := testutil.NewTestDatabase(t)
	clock := testutil.TickingClock()
	logger := research.NewNopLogger()
	v := testutil.NewTestVault()

	assertions := research.NewAssertionService(db, db, logger, clock)
	svc := Services{
		Assertions: assertions,
		Queue:      research.NewValidationQueue(db, db, assertions, db, logger, clock),
		Snapshots:  research.NewSnapshotEngine(db, db, db, db, logger, clock, "en"),
		Graphs:     research.NewGraphService(db, db, clock),
		Packs:      research.NewPackBuilder(db, db, v, nil, testutil.NewStubIDGenerator(), db, logger, clock),
	}
	return &testServer{router: NewRouter(svc, logger), db: db}
}

// do sends a request as researcher 5 unless actor is empty.
func (s *testServer) do(t *testing.T, method, path, body string, actor string) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, path, nil)
	} else {
		r = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		r.Header.Set("Content-Type", "application/json")
	}
	if actor != "" {
		r.Header.Set(HeaderResearcherID, actor)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, r)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), "body: %s", w.Body.String())
	return v
}

const claimBody = `{"project_id": 1, "subject_type": "actor", "subject_id": 10, "subject_label": "Ada Lovelace",
	"predicate": "born_in", "object_value": "London", "assertion_type": "biographical", "confidence": 80}`

func TestRouter_HealthAndMetrics(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodGet, "/metrics", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "prov_http_requests_total")
}

func TestRequestContext(t *testing.T) {
	s := newTestServer(t)

	t.Run("write without researcher", func(t *testing.T) {
		w := s.do(t, http.MethodPost, "/api/v1/assertions", claimBody, "")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("malformed researcher", func(t *testing.T) {
		w := s.do(t, http.MethodGet, "/api/v1/queue/stats", "", "abc")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("session header stamps activity", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/api/v1/assertions", strings.NewReader(claimBody))
		r.Header.Set("Content-Type", "application/json")
		r.Header.Set(HeaderResearcherID, "5")
		r.Header.Set(HeaderSessionID, "sess-42")
		r.Header.Set("User-Agent", "prov-test")
		w := httptest.NewRecorder()
		s.router.ServeHTTP(w, r)
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		assert.Equal(t, "sess-42", w.Header().Get(HeaderSessionID))

		a := decode[research.Assertion](t, w)
		entries, err := s.db.ListActivity(r.Context(), "assertion", a.ID)
		require.NoError(t, err)
		require.NotEmpty(t, entries)
		assert.Equal(t, "sess-42", entries[0].SessionID)
		assert.Equal(t, "prov-test", entries[0].UserAgent)
		assert.Equal(t, int64(5), entries[0].ResearcherID)
	})

	t.Run("generated session", func(t *testing.T) {
		w := s.do(t, http.MethodGet, "/healthz", "", "")
		assert.NotEmpty(t, w.Header().Get(HeaderSessionID))
	})
}

func TestAssertionRoutes(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/v1/assertions", claimBody, "5")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[research.Assertion](t, w)
	assert.Equal(t, 1, created.Version)
	assert.Equal(t, research.StatusProposed, created.Status)

	path := "/api/v1/assertions/" + itoa(created.ID)

	t.Run("get", func(t *testing.T) {
		w := s.do(t, http.MethodGet, path, "", "")
		require.Equal(t, http.StatusOK, w.Code)
		got := decode[assertionResponse](t, w)
		assert.Equal(t, created.ID, got.Assertion.ID)
		assert.Empty(t, got.Evidence)
	})

	t.Run("get missing", func(t *testing.T) {
		w := s.do(t, http.MethodGet, "/api/v1/assertions/999", "", "")
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, "NOT_FOUND", decode[ErrorResponse](t, w).Code)
	})

	t.Run("bad id", func(t *testing.T) {
		w := s.do(t, http.MethodGet, "/api/v1/assertions/abc", "", "")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("invalid claim", func(t *testing.T) {
		w := s.do(t, http.MethodPost, "/api/v1/assertions", `{"subject_type": "actor", "subject_id": 10}`, "5")
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "VALIDATION", decode[ErrorResponse](t, w).Code)
	})

	t.Run("update then stale update", func(t *testing.T) {
		w := s.do(t, http.MethodPatch, path, `{"object_value": "Marylebone", "expected_version": 1}`, "5")
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Equal(t, 2, decode[research.Assertion](t, w).Version)

		w = s.do(t, http.MethodPatch, path, `{"object_value": "Paris", "expected_version": 1}`, "5")
		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("evidence", func(t *testing.T) {
		w := s.do(t, http.MethodPost, path+"/evidence", `{"source_type": "information_object", "source_id": 101}`, "5")
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		ev := decode[research.Evidence](t, w)

		w = s.do(t, http.MethodGet, path+"/evidence", "", "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Len(t, decode[[]*research.Evidence](t, w), 1)

		w = s.do(t, http.MethodDelete, "/api/v1/evidence/"+itoa(ev.ID), "", "5")
		assert.Equal(t, http.StatusNoContent, w.Code)
	})

	t.Run("status", func(t *testing.T) {
		w := s.do(t, http.MethodPut, path+"/status", `{"status": "verified"}`, "5")
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Equal(t, research.StatusVerified, decode[research.Assertion](t, w).Status)

		w = s.do(t, http.MethodPut, path+"/status", `{"status": "bogus"}`, "5")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("conflicts", func(t *testing.T) {
		other := strings.Replace(claimBody, `"London"`, `"Paris"`, 1)
		w := s.do(t, http.MethodPost, "/api/v1/assertions", other, "6")
		require.Equal(t, http.StatusCreated, w.Code)

		w = s.do(t, http.MethodGet, path+"/conflicts", "", "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Len(t, decode[[]*research.Assertion](t, w), 1)
	})

	t.Run("listing", func(t *testing.T) {
		w := s.do(t, http.MethodGet, "/api/v1/assertions?subject_type=actor&subject_id=10", "", "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Len(t, decode[[]*research.Assertion](t, w), 2)

		w = s.do(t, http.MethodGet, "/api/v1/assertions?subject_type=actor", "", "")
		assert.Equal(t, http.StatusBadRequest, w.Code)

		w = s.do(t, http.MethodGet, "/api/v1/assertions/search?q=Paris", "", "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Len(t, decode[[]*research.Assertion](t, w), 1)

		w = s.do(t, http.MethodGet, "/api/v1/projects/1/assertions?status=verified", "", "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Len(t, decode[[]*research.Assertion](t, w), 1)
	})
}

func TestQueueRoutes(t *testing.T) {
	s := newTestServer(t)
	job := testutil.SeedJob(t, s.db, 1, 5, "ner")
	r1 := testutil.SeedEntityResult(t, s.db, job.ID, 200, 0.9,
		map[string]any{"entity_type": "person", "entity_value": "Ada Lovelace", "entity_id": "10"})
	r2 := testutil.SeedEntityResult(t, s.db, job.ID, 201, 0.4,
		map[string]any{"entity_type": "place", "entity_value": "London"})

	for _, r := range []*research.ExtractionResult{r1, r2} {
		w := s.do(t, http.MethodPost, "/api/v1/queue", `{"result_id": `+itoa(r.ID)+`}`, "5")
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	}

	t.Run("enqueue missing result", func(t *testing.T) {
		w := s.do(t, http.MethodPost, "/api/v1/queue", `{"result_id": 999}`, "5")
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("list and stats", func(t *testing.T) {
		w := s.do(t, http.MethodGet, "/api/v1/queue?status=pending&min_confidence=0.5", "", "")
		require.Equal(t, http.StatusOK, w.Code)
		page := decode[research.QueuePage](t, w)
		assert.Equal(t, 1, page.Total)

		w = s.do(t, http.MethodGet, "/api/v1/queue/stats?researcher_id=5", "", "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, 2, decode[research.QueueStats](t, w).Pending)

		w = s.do(t, http.MethodGet, "/api/v1/queue?min_confidence=high", "", "")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("accept promotes", func(t *testing.T) {
		w := s.do(t, http.MethodPost, "/api/v1/queue/results/"+itoa(r1.ID)+"/accept", "", "7")
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		out := decode[research.ReviewOutcome](t, w)
		assert.True(t, out.Applied)
		require.NotNil(t, out.Assertion)
		assert.Equal(t, research.StatusVerified, out.Assertion.Status)

		w = s.do(t, http.MethodPost, "/api/v1/queue/results/"+itoa(r1.ID)+"/accept", "", "7")
		require.Equal(t, http.StatusOK, w.Code)
		assert.False(t, decode[research.ReviewOutcome](t, w).Applied)
	})

	t.Run("reject", func(t *testing.T) {
		w := s.do(t, http.MethodPost, "/api/v1/queue/results/"+itoa(r2.ID)+"/reject", `{"reason": "not a place"}`, "7")
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.True(t, decode[research.ReviewOutcome](t, w).Applied)
	})

	t.Run("result detail", func(t *testing.T) {
		w := s.do(t, http.MethodGet, "/api/v1/queue/results/"+itoa(r2.ID), "", "")
		require.Equal(t, http.StatusOK, w.Code)
		detail := decode[research.ResultDetail](t, w)
		require.Len(t, detail.Entries, 1)
		assert.Equal(t, research.ValidationRejected, detail.Entries[0].Status)

		w = s.do(t, http.MethodGet, "/api/v1/queue/results/999", "", "")
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("bulk on reviewed results", func(t *testing.T) {
		body := `{"result_ids": [` + itoa(r1.ID) + `, ` + itoa(r2.ID) + `]}`
		w := s.do(t, http.MethodPost, "/api/v1/queue/bulk-accept", body, "7")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, 0, decode[bulkResponse](t, w).Processed)
	})

	t.Run("disagreements", func(t *testing.T) {
		w := s.do(t, http.MethodGet, "/api/v1/jobs/"+itoa(job.ID)+"/disagreements", "", "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, decode[[]*research.Disagreement](t, w))
	})
}

func TestSnapshotRoutes(t *testing.T) {
	s := newTestServer(t)
	coll := testutil.SeedCollection(t, s.db, 1, 5, "Letters",
		testutil.Item{ObjectID: 101, Title: "Letter", Scope: "Scope", Slug: "letter-1"},
		testutil.Item{ObjectID: 102, Title: "Diary"},
	)

	w := s.do(t, http.MethodPost, "/api/v1/projects/1/collections/"+itoa(coll.ID)+"/freeze", "", "5")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	frozen := decode[research.Snapshot](t, w)
	assert.Equal(t, research.SnapshotFrozen, frozen.Status)
	assert.Equal(t, 2, frozen.ItemCount)
	frozenPath := "/api/v1/snapshots/" + itoa(frozen.ID)

	t.Run("frozen rejects changes", func(t *testing.T) {
		w := s.do(t, http.MethodPost, frozenPath+"/items", `{"object_id": 103}`, "5")
		assert.Equal(t, http.StatusConflict, w.Code)

		w = s.do(t, http.MethodDelete, frozenPath, "", "5")
		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("verify and cite", func(t *testing.T) {
		w := s.do(t, http.MethodGet, frozenPath+"/verify", "", "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.True(t, decode[research.VerifyResult](t, w).Valid)

		w = s.do(t, http.MethodPost, frozenPath+"/citation", "", "5")
		require.Equal(t, http.StatusOK, w.Code)
		assert.NotEmpty(t, decode[citationResponse](t, w).CitationID)

		w = s.do(t, http.MethodGet, "/api/v1/snapshots/999/verify", "", "")
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("active lifecycle", func(t *testing.T) {
		w := s.do(t, http.MethodPost, "/api/v1/projects/1/snapshots", `{"title": "Working set"}`, "5")
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		active := decode[research.Snapshot](t, w)
		path := "/api/v1/snapshots/" + itoa(active.ID)

		w = s.do(t, http.MethodPost, path+"/items", `{"object_id": 101}`, "5")
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

		w = s.do(t, http.MethodPatch, path, `{"title": "Working set v2"}`, "5")
		require.Equal(t, http.StatusNoContent, w.Code, w.Body.String())

		w = s.do(t, http.MethodGet, path+"/items?limit=10", "", "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, 1, decode[research.ItemsPage](t, w).Total)

		w = s.do(t, http.MethodGet, "/api/v1/snapshots/compare?a="+itoa(frozen.ID)+"&b="+itoa(active.ID), "", "")
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		w = s.do(t, http.MethodPost, path+"/freeze", "", "5")
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Equal(t, research.SnapshotFrozen, decode[research.Snapshot](t, w).Status)
	})

	t.Run("list and get", func(t *testing.T) {
		w := s.do(t, http.MethodGet, "/api/v1/projects/1/snapshots", "", "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Len(t, decode[[]*research.Snapshot](t, w), 2)

		w = s.do(t, http.MethodGet, "/api/v1/snapshots/999", "", "")
		assert.Equal(t, http.StatusNotFound, w.Code)

		w = s.do(t, http.MethodGet, "/api/v1/snapshots/compare?a=1", "", "")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestGraphAndPackRoutes(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodPost, "/api/v1/assertions", claimBody, "5")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	t.Run("project graph", func(t *testing.T) {
		w := s.do(t, http.MethodGet, "/api/v1/projects/1/graph", "", "")
		require.Equal(t, http.StatusOK, w.Code)
		g := decode[research.Graph](t, w)
		assert.Len(t, g.Nodes, 2)
		assert.Len(t, g.Edges, 1)
	})

	t.Run("exports", func(t *testing.T) {
		w := s.do(t, http.MethodGet, "/api/v1/projects/1/graph/gexf", "", "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Header().Get("Content-Type"), "gexf")
		assert.Contains(t, w.Body.String(), "Ada Lovelace")

		w = s.do(t, http.MethodGet, "/api/v1/projects/1/graph/graphml", "", "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "<graphml")
	})

	t.Run("entity", func(t *testing.T) {
		w := s.do(t, http.MethodGet, "/api/v1/entities/actor/10/relationships", "", "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Len(t, decode[[]research.Relationship](t, w), 1)

		w = s.do(t, http.MethodGet, "/api/v1/entities/actor/10/graph", "", "")
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("packs", func(t *testing.T) {
		w := s.do(t, http.MethodPost, "/api/v1/projects/1/packs", "", "5")
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		built := decode[packResponse](t, w)
		assert.Equal(t, "project-1/pack-1.json", built.Key)

		w = s.do(t, http.MethodGet, "/api/v1/projects/1/packs", "", "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, []string{built.Key}, decode[[]string](t, w))

		w = s.do(t, http.MethodGet, "/api/v1/packs/"+built.Key, "", "")
		require.Equal(t, http.StatusOK, w.Code)
		p := decode[research.Pack](t, w)
		assert.Equal(t, built.PackHash, p.PackHash)

		w = s.do(t, http.MethodGet, "/api/v1/packs/project-1/missing.json", "", "")
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func itoa(n int64) string {
	b, _ := json.Marshal(n)
	return string(b)
}
