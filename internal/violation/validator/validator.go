// Package validator admits violation drafts into the store.
//
// Rules run in a fixed order and the first failure wins: violation type,
// plate, detection time, camera id. The fine is always taken from the
// registry; a fine supplied on the draft is ignored.
package validator

import (
	"fmt"
	"strings"
	"time"

	"trafficwatch/internal/violation/models"
	"trafficwatch/internal/violation/registry"
	dErrors "trafficwatch/pkg/domain-errors"
)

// DefaultClockSkew tolerates detector clocks running slightly ahead.
const DefaultClockSkew = 2 * time.Minute

const maxCameraIDLength = 64

// localLayout accepts detector timestamps that carry no zone; they are read as UTC.
const localLayout = "2006-01-02T15:04:05"

// RegistrySource yields the active registry.
type RegistrySource interface {
	Current() *registry.Registry
}

// Validator checks drafts against the registry and domain rules.
type Validator struct {
	registry RegistrySource
	skew     time.Duration
}

type Option func(*Validator)

// WithClockSkew overrides the tolerated future offset of detected_at.
func WithClockSkew(d time.Duration) Option {
	return func(v *Validator) {
		if d >= 0 {
			v.skew = d
		}
	}
}

// New constructs a Validator reading fines from src.
func New(src RegistrySource, opts ...Option) *Validator {
	v := &Validator{registry: src, skew: DefaultClockSkew}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate checks draft as of now and returns the record to insert. The
// returned record has no id, status or store timestamps yet.
func (v *Validator) Validate(draft models.Draft, now time.Time) (models.Violation, error) {
	reg := v.registry.Current()

	vtype := models.ParseViolationType(draft.ViolationType)
	if vtype == "" {
		return models.Violation{}, dErrors.NewField("violation_type", "violation_type is required")
	}
	fine, ok := reg.Lookup(vtype)
	if !ok {
		return models.Violation{}, dErrors.NewField("violation_type",
			fmt.Sprintf("unknown violation type %q (registry %s)", vtype, reg.Version()))
	}

	plate := models.NormalizePlate(draft.Plate)
	if plate == "" {
		return models.Violation{}, dErrors.NewField("plate", "plate is required")
	}
	if !models.IsCanonicalPlate(plate) {
		return models.Violation{}, dErrors.NewField("plate", "plate must be 4-12 letters or digits")
	}

	detectedAt, err := ParseDetectedAt(draft.DetectedAt)
	if err != nil {
		return models.Violation{}, err
	}
	if detectedAt.After(now.Add(v.skew)) {
		return models.Violation{}, dErrors.NewField("detected_at", "detected_at is in the future")
	}

	cameraID := strings.TrimSpace(draft.CameraID)
	if len(cameraID) > maxCameraIDLength {
		return models.Violation{}, dErrors.NewField("camera_id",
			fmt.Sprintf("camera_id must be at most %d characters", maxCameraIDLength))
	}

	return models.Violation{
		Type:            vtype,
		Plate:           plate,
		CameraID:        cameraID,
		DetectedAt:      detectedAt.UTC(),
		FineAmount:      fine,
		RegistryVersion: reg.Version(),
	}, nil
}

// ParseDetectedAt accepts RFC 3339 timestamps and zone-less timestamps,
// which are interpreted as UTC.
func ParseDetectedAt(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, dErrors.NewField("detected_at", "detected_at is required")
	}
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation(localLayout, raw, time.UTC); err == nil {
		return t, nil
	}
	return time.Time{}, dErrors.NewField("detected_at", "detected_at must be an RFC 3339 timestamp")
}
