package models

import (
	"fmt"
	"strings"

	dErrors "trafficwatch/pkg/domain-errors"
)

// Status is the review state of a violation record.
type Status string

const (
	StatusDetected  Status = "detected"
	StatusConfirmed Status = "confirmed"
	StatusDisputed  Status = "disputed"
	StatusDismissed Status = "dismissed"
)

// allowedTransitions is the forward-only status graph. Dismissed is terminal.
var allowedTransitions = map[Status][]Status{
	StatusDetected:  {StatusConfirmed, StatusDisputed},
	StatusConfirmed: {StatusDismissed},
	StatusDisputed:  {StatusConfirmed, StatusDismissed},
	StatusDismissed: nil,
}

// ParseStatus parses a status name, case-insensitively.
func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", dErrors.NewField("status", fmt.Sprintf("unknown status %q", s))
	}
	return st, nil
}

func (s Status) IsValid() bool {
	_, ok := allowedTransitions[s]
	return ok
}

// CanTransitionTo reports whether the status graph has an edge from s to next.
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range allowedTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s Status) String() string {
	return string(s)
}
