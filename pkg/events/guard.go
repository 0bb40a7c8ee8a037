package events

import (
	"fmt"
	"time"
)

// ValidationError reports the first rejected field of an event payload
type ValidationError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Reason)
}

// Validation reasons surfaced to clients
const (
	ReasonRequired              = "required"
	ReasonBadFormat             = "bad_format"
	ReasonPastDate              = "past_date"
	ReasonMissingCustomDuration = "missing_custom_duration"
	ReasonMissingFolderLink     = "missing_folder_link"
	ReasonEventNotEnded         = "event_not_ended"
	ReasonInvalidValue          = "invalid_value"
)

// Input is an event write payload. Pointer fields distinguish omitted
// (defaulted) from explicitly empty (rejected where required).
type Input struct {
	Name           *string  `json:"name"`
	Objective      *string  `json:"objective"`
	Venue          *string  `json:"venue"`
	MapsLink       *string  `json:"maps_link"`
	Date           *string  `json:"date"`
	Time           *string  `json:"time"`
	DurationCode   *string  `json:"duration_code"`
	CustomDuration *float64 `json:"custom_duration"`
	Capacity       *int     `json:"capacity"`
	Participants   *string  `json:"participants"`
	Stage          *string  `json:"stage"`
	Priority       *string  `json:"priority"`
	HasExecFolder  *bool    `json:"has_exec_folder"`
	ExecFolderLink *string  `json:"exec_folder_link"`
	Evidence       *string  `json:"evidence"`
	Commitments    *string  `json:"commitments"`
	Observations   *string  `json:"observations"`
}

// EvidenceOnly reports whether the payload touches nothing but the
// evidence field. Such updates take the post-completion path and skip
// the lifecycle pipeline entirely.
func (in *Input) EvidenceOnly() bool {
	return in.Evidence != nil &&
		in.Name == nil && in.Objective == nil && in.Venue == nil &&
		in.MapsLink == nil && in.Date == nil && in.Time == nil &&
		in.DurationCode == nil && in.CustomDuration == nil &&
		in.Capacity == nil && in.Participants == nil &&
		in.Stage == nil && in.Priority == nil &&
		in.HasExecFolder == nil && in.ExecFolderLink == nil &&
		in.Commitments == nil && in.Observations == nil
}

// NewEvent constructs an event with every default applied, ready to
// receive an Input.
func NewEvent(ownerID int64) *Event {
	return &Event{
		Name:         DefaultName,
		Objective:    DefaultObjective,
		Venue:        DefaultVenue,
		Time:         DefaultTime,
		DurationCode: DefaultDurationCode,
		Capacity:     DefaultCapacity,
		Stage:        StagePlanning,
		Priority:     PriorityMedium,
		OwnerID:      ownerID,
	}
}

// Apply copies the set fields of in onto e. Omitted fields keep their
// current (or default) values.
func (e *Event) Apply(in *Input) {
	if in.Name != nil {
		e.Name = *in.Name
	}
	if in.Objective != nil {
		e.Objective = *in.Objective
	}
	if in.Venue != nil {
		e.Venue = *in.Venue
	}
	if in.MapsLink != nil {
		e.MapsLink = *in.MapsLink
	}
	if in.Date != nil {
		e.Date = *in.Date
	}
	if in.Time != nil {
		e.Time = *in.Time
	}
	if in.DurationCode != nil {
		e.DurationCode = *in.DurationCode
	}
	if in.CustomDuration != nil {
		e.CustomDuration = in.CustomDuration
	}
	if in.Capacity != nil {
		e.Capacity = *in.Capacity
	}
	if in.Participants != nil {
		e.Participants = *in.Participants
	}
	if in.Stage != nil {
		e.Stage = Stage(*in.Stage)
	}
	if in.Priority != nil {
		e.Priority = Priority(*in.Priority)
	}
	if in.HasExecFolder != nil {
		e.HasExecFolder = *in.HasExecFolder
	}
	if in.ExecFolderLink != nil {
		e.ExecFolderLink = *in.ExecFolderLink
	}
	if in.Evidence != nil {
		e.Evidence = *in.Evidence
	}
	if in.Commitments != nil {
		e.Commitments = *in.Commitments
	}
	if in.Observations != nil {
		e.Observations = *in.Observations
	}
}

// Validate runs the lifecycle pipeline over a fully-applied event.
// Checks are ordered and fail fast: required fields, format parse,
// temporal guard, custom duration, executive folder. The temporal guard
// compares calendar dates against the single now passed in; callers must
// not re-read the clock between sub-checks.
func Validate(e *Event, now time.Time) *ValidationError {
	// 1. required fields
	if e.Name == "" {
		return &ValidationError{Field: "name", Reason: ReasonRequired}
	}
	if e.Date == "" {
		return &ValidationError{Field: "date", Reason: ReasonRequired}
	}
	if e.Time == "" {
		return &ValidationError{Field: "time", Reason: ReasonRequired}
	}

	// 2. format parse
	date, err := time.ParseInLocation(DateLayout, e.Date, now.Location())
	if err != nil {
		return &ValidationError{Field: "date", Reason: ReasonBadFormat}
	}
	if _, err := time.Parse(TimeLayout, e.Time); err != nil {
		return &ValidationError{Field: "time", Reason: ReasonBadFormat}
	}

	// 3. temporal guard: today or later, by calendar date
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	if date.Before(today) {
		return &ValidationError{Field: "date", Reason: ReasonPastDate}
	}

	// 4. custom duration
	if !ValidDurationCode(e.DurationCode) {
		return &ValidationError{Field: "duration_code", Reason: ReasonInvalidValue}
	}
	if e.DurationCode == DurationCustom {
		if e.CustomDuration == nil || *e.CustomDuration < MinCustomDurationHours {
			return &ValidationError{Field: "custom_duration", Reason: ReasonMissingCustomDuration}
		}
	}

	// 5. executive folder
	if e.HasExecFolder && e.ExecFolderLink == "" {
		return &ValidationError{Field: "exec_folder_link", Reason: ReasonMissingFolderLink}
	}

	// enum sanity, after the ordered pipeline
	if !e.Stage.Valid() {
		return &ValidationError{Field: "stage", Reason: ReasonInvalidValue}
	}
	if !e.Priority.Valid() {
		return &ValidationError{Field: "priority", Reason: ReasonInvalidValue}
	}
	if e.Capacity < 1 {
		return &ValidationError{Field: "capacity", Reason: ReasonInvalidValue}
	}

	return nil
}

// ValidateEvidence guards the post-completion evidence path: the event
// window must have passed.
func ValidateEvidence(e *Event, now time.Time) *ValidationError {
	if !e.HasEnded(now) {
		return &ValidationError{Field: "evidence", Reason: ReasonEventNotEnded}
	}
	return nil
}
