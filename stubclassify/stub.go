package stubclassify

import (
	"context"
	"math"
	"strings"

	"civicreport/classify"
	"civicreport/models"
)

// Positions closer than this (in degrees, roughly 50m) are considered
// the same spot by the stub.
const proximityDegrees = 0.0005

var highPriorityTerms = []string{
	"gas", "fire", "fogo", "incêndio", "collapse", "colapso",
	"flood", "inundação", "electric", "elétrico", "danger", "perigo",
	"grave", "urgent", "urgente",
}

var mediumPriorityTerms = []string{
	"leak", "fuga", "broken", "partido", "damaged", "danificado",
	"blocked", "bloqueado", "pothole", "buraco",
}

// Client is a deterministic, no-network classifier stub intended for CI
// and local end-to-end tests. It judges duplicates by raw proximity and
// priority by keyword matching, so pipeline behavior is stable per input.
type Client struct{}

func NewClient() *Client { return &Client{} }

func (c *Client) SourceName() string { return "Stub" }

func (c *Client) DetectDuplicate(ctx context.Context, report models.Report, candidates []models.Report) (classify.DuplicateResult, error) {
	if err := ctx.Err(); err != nil {
		return classify.DuplicateResult{}, err
	}

	for _, cand := range candidates {
		if math.Abs(cand.Latitude-report.Latitude) <= proximityDegrees &&
			math.Abs(cand.Longitude-report.Longitude) <= proximityDegrees {
			return classify.DuplicateResult{IsDuplicate: true, DuplicateOfID: cand.ID}, nil
		}
	}
	return classify.DuplicateResult{}, nil
}

func (c *Client) ScorePriority(ctx context.Context, title, description string) (models.Priority, error) {
	if err := ctx.Err(); err != nil {
		return models.PriorityUnset, err
	}

	text := strings.ToLower(title + " " + description)
	for _, term := range highPriorityTerms {
		if strings.Contains(text, term) {
			return models.PriorityHigh, nil
		}
	}
	for _, term := range mediumPriorityTerms {
		if strings.Contains(text, term) {
			return models.PriorityMedium, nil
		}
	}
	return models.PriorityLow, nil
}
