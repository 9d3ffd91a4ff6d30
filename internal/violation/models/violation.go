package models

import (
	"strings"
	"time"

	dErrors "trafficwatch/pkg/domain-errors"
)

// ViolationType names a registry category such as no_helmet or speeding.
type ViolationType string

func (t ViolationType) String() string {
	return string(t)
}

// ParseViolationType folds case, surrounding space and hyphens, so
// "No-Helmet" and "no_helmet" name the same registry entry.
func ParseViolationType(raw string) ViolationType {
	return ViolationType(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(raw)), "-", "_"))
}

// Violation is the aggregate root for a recorded traffic violation.
//
// Invariants:
//   - ID is assigned by the store, unique for the store's lifetime and never reused
//   - Plate is canonical (uppercase alphanumeric, 4-12 characters)
//   - FineAmount is derived from the registry entry for Type, never client-supplied
//   - Status only moves forward along the graph in allowedTransitions
//   - Records are never deleted; dismissal is the terminal status
type Violation struct {
	ID              int64         `json:"id"`
	Type            ViolationType `json:"violation_type"`
	Plate           string        `json:"plate"`
	CameraID        string        `json:"camera_id,omitempty"`
	DetectedAt      time.Time     `json:"detected_at"`
	FineAmount      int64         `json:"fine_amount"`
	RegistryVersion string        `json:"registry_version"`
	Status          Status        `json:"status"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// ApplyTransition moves the record to next.
// Must only be called after v.Status.CanTransitionTo(next) reports true.
func (v *Violation) ApplyTransition(next Status, now time.Time) {
	v.Status = next
	v.UpdatedAt = now
}

// Draft is a caller-supplied, unvalidated proposal for a new violation.
type Draft struct {
	ViolationType string
	Plate         string
	DetectedAt    string
	CameraID      string

	// FineAmount is accepted for forward compatibility and always ignored;
	// fines come from the registry.
	FineAmount *int64
}

// Filter restricts a listing by exact match. Zero fields match everything.
type Filter struct {
	Type   ViolationType
	Status Status
	Plate  string
}

// IsEmpty reports whether the filter matches every record.
func (f Filter) IsEmpty() bool {
	return f == Filter{}
}

// Matches reports whether v satisfies every set field of the filter.
func (f Filter) Matches(v Violation) bool {
	if f.Type != "" && v.Type != f.Type {
		return false
	}
	if f.Status != "" && v.Status != f.Status {
		return false
	}
	if f.Plate != "" && v.Plate != f.Plate {
		return false
	}
	return true
}

const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
)

// Page is offset+limit pagination over id-ordered results.
type Page struct {
	Offset int
	Limit  int
}

// Normalize applies the default limit and clamps it to MaxPageLimit.
func (p Page) Normalize() (Page, error) {
	if p.Offset < 0 {
		return Page{}, dErrors.NewField("offset", "offset must not be negative")
	}
	if p.Limit < 0 {
		return Page{}, dErrors.NewField("limit", "limit must not be negative")
	}
	if p.Limit == 0 {
		p.Limit = DefaultPageLimit
	}
	if p.Limit > MaxPageLimit {
		p.Limit = MaxPageLimit
	}
	return p, nil
}

// Bounds returns the [start, end) slice window for n matching items.
func (p Page) Bounds(n int) (int, int) {
	start := min(p.Offset, n)
	end := min(start+p.Limit, n)
	return start, end
}

// ListResult is a page of records plus the count of all matches.
type ListResult struct {
	Items []Violation `json:"items"`
	Total int         `json:"total"`
}
