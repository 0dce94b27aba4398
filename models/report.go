package models

import (
	"time"

	geojson "github.com/paulmach/go.geojson"
)

// ReportKind identifies what a report is about and which optional
// fields are meaningful.
type ReportKind string

const (
	KindIncident       ReportKind = "incident"
	KindConstruction   ReportKind = "construction"
	KindInfrastructure ReportKind = "infrastructure"
	KindLandPlot       ReportKind = "land_plot"
	KindAnnouncement   ReportKind = "announcement"
)

// Valid reports whether k is one of the known report kinds.
func (k ReportKind) Valid() bool {
	switch k {
	case KindIncident, KindConstruction, KindInfrastructure, KindLandPlot, KindAnnouncement:
		return true
	}
	return false
}

// ReportStatus is the workflow state of a report. The exact meaning of
// each value depends on the report kind.
type ReportStatus string

const (
	StatusUnknown    ReportStatus = "unknown"
	StatusInProgress ReportStatus = "in_progress"
	StatusResolved   ReportStatus = "resolved"
	StatusApproved   ReportStatus = "approved"
	StatusRejected   ReportStatus = "rejected"
	StatusDeleted    ReportStatus = "deleted"
)

// Valid reports whether s is one of the known statuses.
func (s ReportStatus) Valid() bool {
	switch s {
	case StatusUnknown, StatusInProgress, StatusResolved, StatusApproved, StatusRejected, StatusDeleted:
		return true
	}
	return false
}

// Priority is the advisory severity assigned by the classifier.
// The zero value means the report has not been classified yet.
type Priority string

const (
	PriorityUnset  Priority = ""
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Valid reports whether p is a classified priority value.
func (p Priority) Valid() bool {
	return p == PriorityLow || p == PriorityMedium || p == PriorityHigh
}

// ReportUpdate is one entry of a report's append-only history. The
// first entry is always the creation event.
type ReportUpdate struct {
	Text      string    `json:"text"`
	AuthorID  string    `json:"author_id"`
	Timestamp time.Time `json:"timestamp"`
	PhotoRef  string    `json:"photo_ref,omitempty"`
}

// Report is the canonical record of a submitted point or area of
// interest.
type Report struct {
	ID                     string            `json:"id"`
	Kind                   ReportKind        `json:"kind"`
	Title                  string            `json:"title"`
	Description            string            `json:"description"`
	Latitude               float64           `json:"latitude"`
	Longitude              float64           `json:"longitude"`
	Geometry               *geojson.Geometry `json:"geometry,omitempty"`
	AuthorID               string            `json:"author_id"`
	Status                 ReportStatus      `json:"status"`
	Priority               Priority          `json:"priority,omitempty"`
	PotentialDuplicateOfID string            `json:"potential_duplicate_of_id,omitempty"`
	LastReported           time.Time         `json:"last_reported"`
	Updates                []ReportUpdate    `json:"updates,omitempty"`
}

// Submission is the raw payload of a new report before ingestion.
// Latitude and longitude are pointers so a missing position can be
// told apart from (0, 0).
type Submission struct {
	Kind        ReportKind        `json:"kind"`
	Title       string            `json:"title"`
	Description string            `json:"description"`
	Latitude    *float64          `json:"latitude"`
	Longitude   *float64          `json:"longitude"`
	Geometry    *geojson.Geometry `json:"geometry,omitempty"`
	AuthorID    string            `json:"author_id"`
	PhotoRef    string            `json:"photo_ref,omitempty"`
}
