package classify

import (
	"context"

	"civicreport/models"
)

// DuplicateResult is the classifier's verdict on whether a new report
// duplicates one of the candidates.
type DuplicateResult struct {
	IsDuplicate   bool   `json:"is_duplicate"`
	DuplicateOfID string `json:"duplicate_of_id,omitempty"`
}

// Client abstracts the text-classification backend used by the
// ingestion pipeline. Implementations must be concurrency-safe and
// must honor context cancellation, since the pipeline bounds every
// call with a timeout.
type Client interface {
	// DetectDuplicate judges whether report duplicates one of the
	// candidates and nominates at most one candidate id.
	DetectDuplicate(ctx context.Context, report models.Report, candidates []models.Report) (DuplicateResult, error)
	// ScorePriority scores the severity of a report from its title and
	// description.
	ScorePriority(ctx context.Context, title, description string) (models.Priority, error)
	// SourceName returns a short provider label (e.g. "ChatGPT", "Stub").
	SourceName() string
}
