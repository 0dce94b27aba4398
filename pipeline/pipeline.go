package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"civicreport/database"
	"civicreport/dedup"
	"civicreport/metrics"
	"civicreport/models"
	"civicreport/priority"

	"github.com/apex/log"
	"github.com/google/uuid"
)

// ValidationError rejects a malformed submission. Nothing is persisted
// when it is returned.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid submission: " + e.Reason
}

// Store is the slice of the report store the pipeline needs.
type Store interface {
	Append(ctx context.Context, r models.Report) (models.Report, error)
}

// Publisher forwards stored reports to downstream consumers. May be nil.
type Publisher interface {
	Publish(message interface{}) error
}

// Pipeline turns a raw submission into a stored, enriched report.
// Classifier failures degrade to safe defaults; only validation and an
// exhausted id-conflict retry are surfaced to the caller.
type Pipeline struct {
	store     Store
	dedup     *dedup.Engine
	priority  *priority.Classifier
	publisher Publisher

	now   func() time.Time
	newID func() string
}

// New creates an ingestion pipeline. publisher may be nil, in which
// case ingested reports are not forwarded.
func New(store Store, dedupEngine *dedup.Engine, priorityClassifier *priority.Classifier, publisher Publisher) *Pipeline {
	return &Pipeline{
		store:     store,
		dedup:     dedupEngine,
		priority:  priorityClassifier,
		publisher: publisher,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// Ingest validates, enriches and persists one submission. Each call is
// an independent unit of work: submitting identical payloads twice
// produces two distinct reports.
func (p *Pipeline) Ingest(ctx context.Context, sub models.Submission) (models.Report, error) {
	start := p.now()

	report, err := p.buildReport(sub)
	if err != nil {
		metrics.IngestedTotal.WithLabelValues("invalid").Inc()
		return models.Report{}, err
	}

	// Both classifier stages are fail-open: a broken or slow classifier
	// must never make a submission fail.
	result := p.dedup.FindDuplicate(ctx, report)
	if result.IsDuplicate {
		report.PotentialDuplicateOfID = result.DuplicateOfID
		metrics.DuplicateFlaggedTotal.Inc()
		log.Infof("Report %s flagged as potential duplicate of %s", report.ID, result.DuplicateOfID)
	}

	report.Priority = p.priority.Classify(ctx, report.Title, report.Description)

	stored, err := p.store.Append(ctx, report)
	var conflict *database.ConflictError
	if errors.As(err, &conflict) {
		// Retry once with a fresh id. A second collision is surfaced:
		// with uuid entropy it indicates something badly wrong.
		log.Warnf("Report id %s collided, retrying with a fresh id", report.ID)
		report.ID = p.newID()
		stored, err = p.store.Append(ctx, report)
	}
	if err != nil {
		metrics.IngestedTotal.WithLabelValues("error").Inc()
		metrics.IngestDurationSeconds.WithLabelValues("error").Observe(p.now().Sub(start).Seconds())
		return models.Report{}, fmt.Errorf("failed to persist report: %w", err)
	}

	p.publishIngested(stored)

	metrics.IngestedTotal.WithLabelValues("ok").Inc()
	metrics.IngestDurationSeconds.WithLabelValues("ok").Observe(p.now().Sub(start).Seconds())
	return stored, nil
}

// buildReport validates required fields and assembles the initial
// record, including the creation entry of the update log.
func (p *Pipeline) buildReport(sub models.Submission) (models.Report, error) {
	if sub.Latitude == nil || sub.Longitude == nil {
		return models.Report{}, &ValidationError{Reason: "position is required"}
	}
	if strings.TrimSpace(sub.Description) == "" {
		return models.Report{}, &ValidationError{Reason: "description is required"}
	}
	if strings.TrimSpace(sub.AuthorID) == "" {
		return models.Report{}, &ValidationError{Reason: "author is required"}
	}

	kind := sub.Kind
	if kind == "" {
		kind = models.KindIncident
	}
	if !kind.Valid() {
		return models.Report{}, &ValidationError{Reason: fmt.Sprintf("unknown report kind %q", sub.Kind)}
	}

	now := p.now()
	return models.Report{
		ID:           p.newID(),
		Kind:         kind,
		Title:        sub.Title,
		Description:  sub.Description,
		Latitude:     *sub.Latitude,
		Longitude:    *sub.Longitude,
		Geometry:     sub.Geometry,
		AuthorID:     sub.AuthorID,
		Status:       models.StatusUnknown,
		LastReported: now,
		Updates: []models.ReportUpdate{
			{
				Text:      sub.Description,
				AuthorID:  sub.AuthorID,
				Timestamp: now,
				PhotoRef:  sub.PhotoRef,
			},
		},
	}, nil
}

// publishIngested forwards the stored report to downstream consumers.
// Publish failures only log; the report is already persisted.
func (p *Pipeline) publishIngested(report models.Report) {
	if p.publisher == nil {
		return
	}
	if err := p.publisher.Publish(report); err != nil {
		log.Errorf("Failed to publish report %s: %v", report.ID, err)
		return
	}
	log.Infof("Successfully published report %s", report.ID)
}
