package priority

import (
	"context"
	"time"

	"civicreport/classify"
	"civicreport/metrics"
	"civicreport/models"

	"github.com/apex/log"
)

// Classifier scores report severity through the classifier service and
// falls back deterministically to low when the service is unavailable.
// Priority is advisory metadata: it never gates whether a report is
// stored.
type Classifier struct {
	client  classify.Client
	timeout time.Duration
}

// NewClassifier creates a priority classifier. A non-positive timeout
// defaults to 5s.
func NewClassifier(client classify.Client, timeout time.Duration) *Classifier {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Classifier{client: client, timeout: timeout}
}

// Classify returns the severity of a report. Any failure degrades to
// PriorityLow.
func (p *Classifier) Classify(ctx context.Context, title, description string) models.Priority {
	callCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	result, err := p.client.ScorePriority(callCtx, title, description)
	if err != nil {
		log.WithError(err).Warn("Priority scoring failed, defaulting to low")
		metrics.ClassifierFailuresTotal.WithLabelValues("score_priority").Inc()
		return models.PriorityLow
	}
	if !result.Valid() {
		log.Warnf("Priority scoring returned unknown value %q, defaulting to low", result)
		metrics.ClassifierFailuresTotal.WithLabelValues("score_priority").Inc()
		return models.PriorityLow
	}
	return result
}
