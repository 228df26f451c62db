package models

import (
	"strings"
	"time"
)

// Status is the lifecycle state of an assessment instance.
type Status string

const (
	StatusDraft     Status = "draft"     // responses still being recorded
	StatusReady     Status = "ready"     // all responses recorded, waiting to be scored
	StatusScored    Status = "scored"    // computed but not persisted, as by compute
	StatusCompleted Status = "completed" // score result persisted
)

// Scorable reports whether an instance in this status may enter the pipeline.
// Completed instances may be re-scored; the stored result is replaced.
func (s Status) Scorable() bool {
	return s == StatusReady || s == StatusCompleted
}

// Gender is the demographic stratum used for norms lookup.
type Gender string

const (
	GenderMale     Gender = "male"
	GenderFemale   Gender = "female"
	GenderCombined Gender = "combined"
)

// ParseGender normalizes free-form input. Anything unrecognized maps to combined norms.
func ParseGender(s string) Gender {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "m", "male", "boy":
		return GenderMale
	case "f", "female", "girl":
		return GenderFemale
	default:
		return GenderCombined
	}
}

// AssessmentInstance is one administration of one scale for one subject.
type AssessmentInstance struct {
	ID             string    `json:"id"`
	ScaleID        string    `json:"scale_id"`
	SubjectID      string    `json:"subject_id,omitempty"`
	AgeMonths      int       `json:"age_months"`
	Gender         Gender    `json:"gender"`
	AdministeredAt time.Time `json:"administered_at"`
	Status         Status    `json:"status"`
}

// ItemResponse is one recorded answer. Value is only meaningful when Omitted is false.
type ItemResponse struct {
	ItemID   int  `json:"item_id"`
	Value    int  `json:"value"`
	Omitted  bool `json:"omitted,omitempty"`
	Sequence int  `json:"sequence"`
}

// ResponseSet is the on-disk shape used by the CLI and MCP tools to submit an
// administration without a database.
type ResponseSet struct {
	Instance  AssessmentInstance `json:"instance"`
	Responses []ItemResponse     `json:"responses"`
}
