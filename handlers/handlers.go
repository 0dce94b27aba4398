package handlers

import (
	"errors"
	"net/http"
	"time"

	"civicreport/database"
	"civicreport/models"
	"civicreport/pipeline"
	"civicreport/service"

	"github.com/apex/log"
	"github.com/gin-gonic/gin"
)

const apiVersion = "2.0"

// timeNow is swapped out in tests.
var timeNow = time.Now

// Handlers represents the HTTP handlers
type Handlers struct {
	pipeline *pipeline.Pipeline
	db       *database.Database
	service  *service.Service
}

// NewHandlers creates new HTTP handlers
func NewHandlers(p *pipeline.Pipeline, db *database.Database, svc *service.Service) *Handlers {
	return &Handlers{pipeline: p, db: db, service: svc}
}

// HealthCheck handles health check requests
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "civicreport",
	})
}

// ReportArgs is the submission payload of the /report endpoint.
type ReportArgs struct {
	Version string            `json:"version"` // Must be "2.0"
	Report  models.Submission `json:"report"`
}

// Report ingests a new submission.
func (h *Handlers) Report(c *gin.Context) {
	var args ReportArgs
	if err := c.BindJSON(&args); err != nil {
		log.Errorf("Failed to get the argument in /report call: %v", err)
		return
	}

	if args.Version != apiVersion {
		c.String(http.StatusNotAcceptable, "Bad API version, expecting 2.0.") // 406
		return
	}

	report, err := h.pipeline.Ingest(c.Request.Context(), args.Report)
	if err != nil {
		var verr *pipeline.ValidationError
		if errors.As(err, &verr) {
			c.JSON(http.StatusBadRequest, gin.H{"error": verr.Reason})
			return
		}
		log.Errorf("Failed to ingest report: %v", err)
		c.String(http.StatusInternalServerError, "Failed to save the report.") // 500
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"report":            report,
		"flagged_duplicate": report.PotentialDuplicateOfID != "",
		"duplicate_of_id":   report.PotentialDuplicateOfID,
	})
}

// ReadReportArgs is the payload of the /read_report endpoint.
type ReadReportArgs struct {
	Version string `json:"version"` // Must be "2.0"
	ID      string `json:"id"`
}

// ReadReport returns one report with its full update history.
func (h *Handlers) ReadReport(c *gin.Context) {
	var args ReadReportArgs
	if err := c.BindJSON(&args); err != nil {
		log.Errorf("Failed to get the argument in /read_report call: %v", err)
		return
	}

	if args.Version != apiVersion {
		c.String(http.StatusNotAcceptable, "Bad API version, expecting 2.0.") // 406
		return
	}

	report, err := h.db.GetByID(c.Request.Context(), args.ID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "report not found"})
			return
		}
		log.Errorf("Failed to read report %s: %v", args.ID, err)
		c.String(http.StatusInternalServerError, "Failed to read the report.")
		return
	}

	c.JSON(http.StatusOK, gin.H{"report": report})
}

// UpdateStatusArgs is the payload of the /update_status endpoint.
type UpdateStatusArgs struct {
	Version  string              `json:"version"` // Must be "2.0"
	ID       string              `json:"id"`
	Status   models.ReportStatus `json:"status"`
	Comment  string              `json:"comment"`
	AuthorID string              `json:"author_id"`
}

// UpdateStatus transitions a report's status, appending the explaining
// history entry. The next diff cycle picks the change up naturally.
func (h *Handlers) UpdateStatus(c *gin.Context) {
	var args UpdateStatusArgs
	if err := c.BindJSON(&args); err != nil {
		log.Errorf("Failed to get the argument in /update_status call: %v", err)
		return
	}

	if args.Version != apiVersion {
		c.String(http.StatusNotAcceptable, "Bad API version, expecting 2.0.") // 406
		return
	}

	if !args.Status.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown status"})
		return
	}

	text := args.Comment
	if text == "" {
		text = "Status changed to " + string(args.Status)
	}

	report, err := h.db.UpdateStatus(c.Request.Context(), args.ID, args.Status, models.ReportUpdate{
		Text:      text,
		AuthorID:  args.AuthorID,
		Timestamp: timeNow(),
	})
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "report not found"})
			return
		}
		log.Errorf("Failed to update status of report %s: %v", args.ID, err)
		c.String(http.StatusInternalServerError, "Failed to update the report.")
		return
	}

	c.JSON(http.StatusOK, gin.H{"report": report})
}

// RunDiffCycleArgs is the payload of the /run_diff_cycle endpoint.
type RunDiffCycleArgs struct {
	Version  string `json:"version"` // Must be "2.0"
	ViewerID string `json:"viewer_id"`
}

// RunDiffCycle triggers a diff cycle for one viewer and returns the
// change events it produced.
func (h *Handlers) RunDiffCycle(c *gin.Context) {
	var args RunDiffCycleArgs
	if err := c.BindJSON(&args); err != nil {
		log.Errorf("Failed to get the argument in /run_diff_cycle call: %v", err)
		return
	}

	if args.Version != apiVersion {
		c.String(http.StatusNotAcceptable, "Bad API version, expecting 2.0.") // 406
		return
	}

	if args.ViewerID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "viewer_id is required"})
		return
	}

	events, err := h.service.RunDiffCycle(c.Request.Context(), args.ViewerID)
	if err != nil {
		log.Errorf("Diff cycle failed for viewer %s: %v", args.ViewerID, err)
		c.String(http.StatusInternalServerError, "Failed to run the diff cycle.")
		return
	}

	if events == nil {
		events = []models.ChangeEvent{}
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}
