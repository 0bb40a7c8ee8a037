package events

import (
	"strings"
	"time"

	"github.com/mindara-hq/eventdesk/pkg/auth"
)

// Stage is the lifecycle phase of an event
type Stage string

const (
	StagePlanning  Stage = "planning"
	StageReview    Stage = "review"
	StageConfirmed Stage = "confirmed"
	StageCancelled Stage = "cancelled"
	StagePostponed Stage = "postponed"
)

// Valid reports whether s is a defined stage
func (s Stage) Valid() bool {
	switch s {
	case StagePlanning, StageReview, StageConfirmed, StageCancelled, StagePostponed:
		return true
	}
	return false
}

// Priority is the urgency of an event
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Valid reports whether p is a defined priority
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// DurationCustom is the duration code that requires an explicit hour count
const DurationCustom = "custom"

// durationHours maps the enumerated duration codes to hours
var durationHours = map[string]float64{
	"0.5": 0.5,
	"1":   1,
	"1.5": 1.5,
	"2":   2,
	"3":   3,
	"4":   4,
	"6":   6,
	"8":   8,
}

// ValidDurationCode reports whether code is enumerated or custom
func ValidDurationCode(code string) bool {
	if code == DurationCustom {
		return true
	}
	_, ok := durationHours[code]
	return ok
}

// Default field values. Kept here as explicit construction values so no
// handler carries its own copy of these strings.
const (
	DefaultName         = "Evento sin nombre"
	DefaultObjective    = "Por definir"
	DefaultVenue        = "Por definir"
	DefaultTime         = "09:00"
	DefaultDurationCode = "2"
	DefaultCapacity     = 10
)

// MinCustomDurationHours is the floor for explicit custom durations
const MinCustomDurationHours = 0.25

// DateLayout and TimeLayout are the only accepted wire formats
const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

// Event is a scheduled, owned record
type Event struct {
	ID             int64    `json:"id"`
	Name           string   `json:"name"`
	Objective      string   `json:"objective"`
	Venue          string   `json:"venue"`
	MapsLink       string   `json:"maps_link,omitempty"`
	Date           string   `json:"date"` // YYYY-MM-DD
	Time           string   `json:"time"` // HH:MM
	DurationCode   string   `json:"duration_code"`
	CustomDuration *float64 `json:"custom_duration,omitempty"`
	Capacity       int      `json:"capacity"`
	Participants   string   `json:"participants,omitempty"`
	Stage          Stage    `json:"stage"`
	Priority       Priority `json:"priority"`
	HasExecFolder  bool     `json:"has_exec_folder"`
	ExecFolderLink string   `json:"exec_folder_link,omitempty"`
	Evidence       string   `json:"evidence,omitempty"`
	Commitments    string   `json:"commitments,omitempty"`
	Observations   string   `json:"observations,omitempty"`

	OwnerID          int64     `json:"owner_id"`
	OwnerRole        auth.Role `json:"-"`
	OwnerDisplayName string    `json:"owner_display_name,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DurationHours resolves the duration code to hours. Custom durations
// fall back to the default code's hours when the explicit value is
// missing, which the guard prevents for new writes.
func (e *Event) DurationHours() float64 {
	if e.DurationCode == DurationCustom {
		if e.CustomDuration != nil {
			return *e.CustomDuration
		}
		return durationHours[DefaultDurationCode]
	}
	if h, ok := durationHours[e.DurationCode]; ok {
		return h
	}
	return durationHours[DefaultDurationCode]
}

// StartInstant combines the date and time fields in the given location
func (e *Event) StartInstant(loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(DateLayout+" "+TimeLayout, e.Date+" "+e.Time, loc)
}

// EndInstant is the start plus the resolved duration
func (e *Event) EndInstant(loc *time.Location) (time.Time, error) {
	start, err := e.StartInstant(loc)
	if err != nil {
		return time.Time{}, err
	}
	return start.Add(time.Duration(e.DurationHours() * float64(time.Hour))), nil
}

// IsInProgress reports whether now falls inside the event window
func (e *Event) IsInProgress(now time.Time) bool {
	start, err := e.StartInstant(now.Location())
	if err != nil {
		return false
	}
	end, err := e.EndInstant(now.Location())
	if err != nil {
		return false
	}
	return !now.Before(start) && !now.After(end)
}

// HasEnded reports whether the event window has passed
func (e *Event) HasEnded(now time.Time) bool {
	end, err := e.EndInstant(now.Location())
	if err != nil {
		return false
	}
	return end.Before(now)
}

// ParticipantCount counts the comma- or newline-separated names in the
// participants text.
func (e *Event) ParticipantCount() int {
	if strings.TrimSpace(e.Participants) == "" {
		return 0
	}
	count := 0
	for _, chunk := range strings.FieldsFunc(e.Participants, func(r rune) bool {
		return r == ',' || r == '\n'
	}) {
		if strings.TrimSpace(chunk) != "" {
			count++
		}
	}
	return count
}

// StatusGroup maps a list-filter keyword to the stages it covers
var StatusGroup = map[string][]Stage{
	"active":    {StagePlanning, StageReview, StageConfirmed},
	"completed": {StageConfirmed},
	"cancelled": {StageCancelled},
}
