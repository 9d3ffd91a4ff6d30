package validator

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"trafficwatch/internal/violation/models"
	"trafficwatch/internal/violation/registry"
	dErrors "trafficwatch/pkg/domain-errors"
)

type ValidatorSuite struct {
	suite.Suite
	validator *Validator
	now       time.Time
}

func TestValidatorSuite(t *testing.T) {
	suite.Run(t, new(ValidatorSuite))
}

func (s *ValidatorSuite) SetupTest() {
	s.validator = New(registry.NewHolder(registry.Default()))
	s.now = time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
}

func (s *ValidatorSuite) validDraft() models.Draft {
	return models.Draft{
		ViolationType: "no_helmet",
		Plate:         "mh12ab1234",
		DetectedAt:    "2024-01-15T10:30:00Z",
	}
}

func (s *ValidatorSuite) requireFieldError(err error, field string) {
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation), "expected validation error, got %v", err)
	s.Equal(field, dErrors.FieldOf(err))
}

func (s *ValidatorSuite) TestValidDraft() {
	v, err := s.validator.Validate(s.validDraft(), s.now)
	s.Require().NoError(err)

	s.Equal(models.ViolationType("no_helmet"), v.Type)
	s.Equal("MH12AB1234", v.Plate)
	s.Equal(int64(1000), v.FineAmount)
	s.Equal(registry.DefaultVersion, v.RegistryVersion)
	s.Equal(time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC), v.DetectedAt)
	s.Zero(v.ID)
	s.Empty(v.Status)
}

func (s *ValidatorSuite) TestSuppliedFineIsIgnored() {
	draft := s.validDraft()
	tampered := int64(1)
	draft.FineAmount = &tampered

	v, err := s.validator.Validate(draft, s.now)
	s.Require().NoError(err)
	s.Equal(int64(1000), v.FineAmount)
}

func (s *ValidatorSuite) TestViolationType() {
	s.Run("unknown type is rejected", func() {
		draft := s.validDraft()
		draft.ViolationType = "jaywalking"
		_, err := s.validator.Validate(draft, s.now)
		s.requireFieldError(err, "violation_type")
	})

	s.Run("missing type is rejected", func() {
		draft := s.validDraft()
		draft.ViolationType = " "
		_, err := s.validator.Validate(draft, s.now)
		s.requireFieldError(err, "violation_type")
	})

	s.Run("type is case-insensitive", func() {
		draft := s.validDraft()
		draft.ViolationType = "SPEEDING"
		v, err := s.validator.Validate(draft, s.now)
		s.Require().NoError(err)
		s.Equal(models.ViolationType("speeding"), v.Type)
		s.Equal(int64(2000), v.FineAmount)
	})

	s.Run("hyphens fold to underscores", func() {
		draft := s.validDraft()
		draft.ViolationType = "no-helmet"
		v, err := s.validator.Validate(draft, s.now)
		s.Require().NoError(err)
		s.Equal(models.ViolationType("no_helmet"), v.Type)
		s.Equal(int64(1000), v.FineAmount)
	})
}

func (s *ValidatorSuite) TestPlate() {
	for name, plate := range map[string]string{
		"empty":        "",
		"too short":    "AB1",
		"too long":     "ABCDEFGHIJKLM",
		"symbols":      "MH12@B1234",
		"only spacing": " - . ",
	} {
		s.Run(name, func() {
			draft := s.validDraft()
			draft.Plate = plate
			_, err := s.validator.Validate(draft, s.now)
			s.requireFieldError(err, "plate")
		})
	}

	s.Run("separators are normalized away", func() {
		draft := s.validDraft()
		draft.Plate = "mh 12-ab 1234"
		v, err := s.validator.Validate(draft, s.now)
		s.Require().NoError(err)
		s.Equal("MH12AB1234", v.Plate)
	})
}

func (s *ValidatorSuite) TestDetectedAt() {
	s.Run("missing", func() {
		draft := s.validDraft()
		draft.DetectedAt = ""
		_, err := s.validator.Validate(draft, s.now)
		s.requireFieldError(err, "detected_at")
	})

	s.Run("unparseable", func() {
		draft := s.validDraft()
		draft.DetectedAt = "yesterday"
		_, err := s.validator.Validate(draft, s.now)
		s.requireFieldError(err, "detected_at")
	})

	s.Run("in the future beyond skew", func() {
		draft := s.validDraft()
		draft.DetectedAt = s.now.Add(DefaultClockSkew + time.Second).Format(time.RFC3339)
		_, err := s.validator.Validate(draft, s.now)
		s.requireFieldError(err, "detected_at")
	})

	s.Run("within skew tolerance", func() {
		draft := s.validDraft()
		draft.DetectedAt = s.now.Add(DefaultClockSkew).Format(time.RFC3339)
		_, err := s.validator.Validate(draft, s.now)
		s.NoError(err)
	})

	s.Run("zone-less timestamp is read as UTC", func() {
		draft := s.validDraft()
		draft.DetectedAt = "2024-01-15T10:30:00"
		v, err := s.validator.Validate(draft, s.now)
		s.Require().NoError(err)
		s.Equal(time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC), v.DetectedAt)
	})

	s.Run("offsets are converted to UTC", func() {
		draft := s.validDraft()
		draft.DetectedAt = "2024-01-15T16:00:00+05:30"
		v, err := s.validator.Validate(draft, s.now)
		s.Require().NoError(err)
		s.Equal(time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC), v.DetectedAt)
	})

	s.Run("custom skew", func() {
		strict := New(registry.NewHolder(registry.Default()), WithClockSkew(0))
		draft := s.validDraft()
		draft.DetectedAt = s.now.Add(time.Second).Format(time.RFC3339)
		_, err := strict.Validate(draft, s.now)
		s.requireFieldError(err, "detected_at")
	})
}

func (s *ValidatorSuite) TestCameraID() {
	draft := s.validDraft()
	draft.CameraID = strings.Repeat("c", maxCameraIDLength+1)
	_, err := s.validator.Validate(draft, s.now)
	s.requireFieldError(err, "camera_id")

	draft.CameraID = "  junction-4/cam-2  "
	v, err := s.validator.Validate(draft, s.now)
	s.Require().NoError(err)
	s.Equal("junction-4/cam-2", v.CameraID)
}

func (s *ValidatorSuite) TestFailFastOrder() {
	draft := models.Draft{ViolationType: "jaywalking", Plate: "x", DetectedAt: "bad"}
	_, err := s.validator.Validate(draft, s.now)
	s.requireFieldError(err, "violation_type")

	draft.ViolationType = "speeding"
	_, err = s.validator.Validate(draft, s.now)
	s.requireFieldError(err, "plate")
}
