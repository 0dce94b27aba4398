package dedup

import (
	"context"
	"time"

	"civicreport/classify"
	"civicreport/metrics"
	"civicreport/models"

	"github.com/apex/log"
	"github.com/golang/geo/s2"
)

// CandidateSource is the slice of the report store the engine needs.
type CandidateSource interface {
	QueryByKindSince(ctx context.Context, kind models.ReportKind, since time.Time) ([]models.Report, error)
}

// Options tune candidate pool construction.
type Options struct {
	// Window is how far back candidates are searched. Defaults to 48h.
	Window time.Duration
	// Timeout bounds the classifier call. Defaults to 5s.
	Timeout time.Duration
	// SpatialFilter restricts candidates to the s2 cell neighborhood of
	// the new report. Off by default; it narrows the pool the
	// classifier sees but never turns an empty pool into a non-empty one.
	SpatialFilter bool
	// CellLevel is the s2 level used when SpatialFilter is on.
	CellLevel int
}

// Engine builds the duplicate-candidate pool and asks the classifier
// for a verdict. All failures are absorbed: a classifier error means
// "not a duplicate" and never blocks ingestion.
type Engine struct {
	source     CandidateSource
	classifier classify.Client
	opts       Options
}

// NewEngine creates a deduplication engine.
func NewEngine(source CandidateSource, classifier classify.Client, opts Options) *Engine {
	if opts.Window <= 0 {
		opts.Window = 48 * time.Hour
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.CellLevel <= 0 {
		opts.CellLevel = 16
	}
	return &Engine{source: source, classifier: classifier, opts: opts}
}

// FindDuplicate decides whether report duplicates a recently-reported
// item of the same kind. The returned result is advisory: the report is
// stored either way.
func (e *Engine) FindDuplicate(ctx context.Context, report models.Report) classify.DuplicateResult {
	since := report.LastReported.Add(-e.opts.Window)
	candidates, err := e.source.QueryByKindSince(ctx, report.Kind, since)
	if err != nil {
		log.WithError(err).Errorf("Failed to query duplicate candidates for report %s", report.ID)
		metrics.ClassifierFailuresTotal.WithLabelValues("candidate_query").Inc()
		return classify.DuplicateResult{}
	}

	pool := make([]models.Report, 0, len(candidates))
	for _, cand := range candidates {
		if cand.ID == report.ID {
			continue
		}
		// Only earlier reports are eligible back-references.
		if !cand.LastReported.Before(report.LastReported) {
			continue
		}
		if e.opts.SpatialFilter && !inCellNeighborhood(e.opts.CellLevel, report, cand) {
			continue
		}
		pool = append(pool, cand)
	}

	// First report of its kind in the window: deterministic fast path,
	// no classifier call.
	if len(pool) == 0 {
		return classify.DuplicateResult{}
	}

	callCtx, cancel := context.WithTimeout(ctx, e.opts.Timeout)
	defer cancel()

	result, err := e.classifier.DetectDuplicate(callCtx, report, pool)
	if err != nil {
		log.WithError(err).Warnf("Duplicate detection failed for report %s, treating as not a duplicate", report.ID)
		metrics.ClassifierFailuresTotal.WithLabelValues("detect_duplicate").Inc()
		return classify.DuplicateResult{}
	}

	if !result.IsDuplicate {
		return classify.DuplicateResult{}
	}

	// Never trust an id the classifier invented outside the pool.
	for _, cand := range pool {
		if cand.ID == result.DuplicateOfID {
			return result
		}
	}
	log.Warnf("Classifier nominated id %s outside the candidate pool for report %s, ignoring",
		result.DuplicateOfID, report.ID)
	return classify.DuplicateResult{}
}

// inCellNeighborhood reports whether b falls in the same s2 cell as a
// or one of its edge neighbors at the given level.
func inCellNeighborhood(level int, a, b models.Report) bool {
	ca := s2.CellIDFromLatLng(s2.LatLngFromDegrees(a.Latitude, a.Longitude)).Parent(level)
	cb := s2.CellIDFromLatLng(s2.LatLngFromDegrees(b.Latitude, b.Longitude)).Parent(level)
	if ca == cb {
		return true
	}
	for _, n := range ca.EdgeNeighbors() {
		if n == cb {
			return true
		}
	}
	return false
}
