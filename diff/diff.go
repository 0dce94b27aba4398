// Package diff compares two report snapshots and derives the change
// events worth notifying about. The differ is pure: it keeps no state
// between calls, so the caller owns snapshot retention and must treat a
// viewer's very first cycle (no previous snapshot) as producing zero
// events.
package diff

import (
	"civicreport/models"
)

// Diff compares previous and current and returns the change events
// relevant to the given viewer, in current-snapshot order.
//
// A report present only in current is a new arrival: high-priority
// incidents among them alert the manager roles. A report present in
// both with a different status is a transition: it notifies the report
// author, and only when the viewer is that author. Reports that
// disappeared between snapshots produce no event.
func Diff(previous, current models.Snapshot, viewer models.ViewerContext) []models.ChangeEvent {
	prevByID := make(map[string]models.Report, len(previous))
	for _, r := range previous {
		prevByID[r.ID] = r
	}

	var events []models.ChangeEvent
	for _, r := range current {
		prev, seen := prevByID[r.ID]
		if !seen {
			if r.Kind == models.KindIncident && r.Priority == models.PriorityHigh {
				events = append(events, models.ChangeEvent{
					Kind:     models.EventNewHighPriority,
					ReportID: r.ID,
					Audience: models.Audience{Kind: models.AudienceManagers},
				})
			}
			continue
		}
		if prev.Status != r.Status && r.AuthorID == viewer.UserID {
			events = append(events, models.ChangeEvent{
				Kind:           models.EventStatusChanged,
				ReportID:       r.ID,
				PreviousStatus: prev.Status,
				NewStatus:      r.Status,
				Audience:       models.Audience{Kind: models.AudienceAuthor, UserID: r.AuthorID},
			})
		}
	}
	return events
}
