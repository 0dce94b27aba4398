package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"civicreport/config"
	"civicreport/database"
	"civicreport/dedup"
	"civicreport/dispatch"
	"civicreport/models"
	"civicreport/pipeline"
	"civicreport/priority"
	"civicreport/service"
	"civicreport/stubclassify"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

type memoryStore struct {
	reports map[string]models.Report
}

func newMemoryStore() *memoryStore {
	return &memoryStore{reports: make(map[string]models.Report)}
}

func (m *memoryStore) Append(ctx context.Context, r models.Report) (models.Report, error) {
	if _, exists := m.reports[r.ID]; exists {
		return models.Report{}, &database.ConflictError{ID: r.ID}
	}
	m.reports[r.ID] = r
	return r, nil
}

func (m *memoryStore) QueryByKindSince(ctx context.Context, kind models.ReportKind, since time.Time) ([]models.Report, error) {
	var out []models.Report
	for _, r := range m.reports {
		if r.Kind == kind && !r.LastReported.Before(since) {
			out = append(out, r)
		}
	}
	return out, nil
}

type staticSnapshots struct {
	snapshot models.Snapshot
}

func (s *staticSnapshots) SnapshotFor(ctx context.Context, viewerID string) (models.Snapshot, error) {
	return s.snapshot, nil
}

func newTestHandlers(store *memoryStore, db *database.Database) *Handlers {
	classifier := stubclassify.NewClient()
	engine := dedup.NewEngine(store, classifier, dedup.Options{})
	scorer := priority.NewClassifier(classifier, time.Second)
	p := pipeline.New(store, engine, scorer, nil)

	cfg := &config.Config{DiffInterval: time.Minute}
	svc := service.NewService(cfg, &staticSnapshots{}, dispatch.NewDispatcher(dispatch.LogSink{}, nil, nil))

	return NewHandlers(p, db, svc)
}

func postJSON(t *testing.T, handler gin.HandlerFunc, path string, payload interface{}) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)

	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("failed to marshal payload: %v", err)
	}

	req := httptest.NewRequest("POST", path, bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = req

	handler(c)
	return w
}

func validReportArgs() ReportArgs {
	lat, lng := 38.736946, -9.142685
	return ReportArgs{
		Version: "2.0",
		Report: models.Submission{
			Kind:        models.KindIncident,
			Title:       "Streetlight out",
			Description: "The streetlight on the corner is out",
			Latitude:    &lat,
			Longitude:   &lng,
			AuthorID:    "user-1",
		},
	}
}

func TestReportValid(t *testing.T) {
	h := newTestHandlers(newMemoryStore(), nil)

	w := postJSON(t, h.Report, "/report", validReportArgs())

	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Report           models.Report `json:"report"`
		FlaggedDuplicate bool          `json:"flagged_duplicate"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	assert.NotEmpty(t, resp.Report.ID)
	assert.False(t, resp.FlaggedDuplicate)
	assert.Equal(t, models.StatusUnknown, resp.Report.Status)
}

func TestReportBadVersion(t *testing.T) {
	h := newTestHandlers(newMemoryStore(), nil)

	args := validReportArgs()
	args.Version = "1.0"
	w := postJSON(t, h.Report, "/report", args)

	assert.Equal(t, http.StatusNotAcceptable, w.Code)
}

func TestReportMissingPosition(t *testing.T) {
	h := newTestHandlers(newMemoryStore(), nil)

	args := validReportArgs()
	args.Report.Latitude = nil
	w := postJSON(t, h.Report, "/report", args)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestReportFlagsDuplicate(t *testing.T) {
	store := newMemoryStore()
	h := newTestHandlers(store, nil)

	first := postJSON(t, h.Report, "/report", validReportArgs())
	assert.Equal(t, http.StatusOK, first.Code)

	// Same spot, same kind: the stub classifier flags it.
	second := postJSON(t, h.Report, "/report", validReportArgs())
	assert.Equal(t, http.StatusOK, second.Code)

	var resp struct {
		FlaggedDuplicate bool   `json:"flagged_duplicate"`
		DuplicateOfID    string `json:"duplicate_of_id"`
	}
	if err := json.Unmarshal(second.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	assert.True(t, resp.FlaggedDuplicate)
	assert.NotEmpty(t, resp.DuplicateOfID)
	assert.Equal(t, 2, len(store.reports))
}

func TestReadReportNotFound(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer mockDB.Close()

	mock.ExpectQuery("SELECT (.+) FROM reports WHERE id = (.+)").
		WithArgs("missing").
		WillReturnError(sqlmock.ErrCancelled)

	h := newTestHandlers(newMemoryStore(), database.NewFromDB(mockDB))

	// Any non-ErrNotFound failure maps to 500.
	w := postJSON(t, h.ReadReport, "/read_report", ReadReportArgs{Version: "2.0", ID: "missing"})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestUpdateStatusRejectsUnknownStatus(t *testing.T) {
	h := newTestHandlers(newMemoryStore(), nil)

	w := postJSON(t, h.UpdateStatus, "/update_status", UpdateStatusArgs{
		Version:  "2.0",
		ID:       "id-1",
		Status:   "escalated",
		AuthorID: "mgr-1",
	})

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRunDiffCycleRequiresViewer(t *testing.T) {
	h := newTestHandlers(newMemoryStore(), nil)

	w := postJSON(t, h.RunDiffCycle, "/run_diff_cycle", RunDiffCycleArgs{Version: "2.0"})

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRunDiffCycleColdStart(t *testing.T) {
	h := newTestHandlers(newMemoryStore(), nil)

	w := postJSON(t, h.RunDiffCycle, "/run_diff_cycle", RunDiffCycleArgs{
		Version:  "2.0",
		ViewerID: "mgr-1",
	})

	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Events []models.ChangeEvent `json:"events"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	assert.NotNil(t, resp.Events)
	assert.Empty(t, resp.Events)
}

func TestHealthCheck(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := newTestHandlers(newMemoryStore(), nil)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("GET", "/healthz", nil)

	h.HealthCheck(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "healthy")
}
