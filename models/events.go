package models

// Snapshot is a point-in-time view of the reports visible to a viewer,
// ordered by the store's canonical read order. It is derived state,
// recomputed for every diff cycle and never persisted.
type Snapshot []Report

// ViewerContext identifies the viewer a snapshot was computed for.
type ViewerContext struct {
	UserID string `json:"user_id"`
}

// EventKind is the kind of a change event produced by diffing two
// snapshots.
type EventKind string

const (
	EventNewHighPriority EventKind = "new_high_priority"
	EventStatusChanged   EventKind = "status_changed"
)

// AudienceKind selects who a change event should be delivered to.
type AudienceKind string

const (
	// AudienceManagers targets all users holding a manager role.
	AudienceManagers AudienceKind = "managers"
	// AudienceAuthor targets the single user referenced by UserID.
	AudienceAuthor AudienceKind = "author"
)

// Audience is the resolved delivery target of a change event.
type Audience struct {
	Kind   AudienceKind `json:"kind"`
	UserID string       `json:"user_id,omitempty"`
}

// ChangeEvent is a notification-worthy fact derived by comparing two
// snapshots. PreviousStatus and NewStatus are only set for
// EventStatusChanged.
type ChangeEvent struct {
	Kind           EventKind    `json:"kind"`
	ReportID       string       `json:"report_id"`
	PreviousStatus ReportStatus `json:"previous_status,omitempty"`
	NewStatus      ReportStatus `json:"new_status,omitempty"`
	Audience       Audience     `json:"audience"`
}
