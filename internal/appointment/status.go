package appointment

import "strings"

type Status string

const (
	StatusScheduled Status = "SCHEDULED"
	StatusDone      Status = "DONE"
	StatusCancelled Status = "CANCELLED"
)

// ParseStatus accepts any letter case.
func ParseStatus(raw string) (Status, error) {
	s := Status(strings.ToUpper(strings.TrimSpace(raw)))
	if !s.Valid() {
		return "", ErrUnknownStatus
	}
	return s, nil
}

func (s Status) Valid() bool {
	switch s {
	case StatusScheduled, StatusDone, StatusCancelled:
		return true
	}
	return false
}

// IsTerminal is true for DONE and CANCELLED; nothing leaves those states.
func (s Status) IsTerminal() bool {
	return s == StatusDone || s == StatusCancelled
}

// CanTransitionTo reports whether an update may move s to next.
// SCHEDULED -> SCHEDULED is the no-op used by field-only edits.
func (s Status) CanTransitionTo(next Status) bool {
	return s == StatusScheduled && next.Valid()
}

// BlocksSchedule reports whether an appointment in this state occupies the doctor's time.
func (s Status) BlocksSchedule() bool {
	return s != StatusCancelled
}
