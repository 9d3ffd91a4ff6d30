package service

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks Store,Validator,Publisher

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"trafficwatch/internal/violation/events"
	"trafficwatch/internal/violation/metrics"
	"trafficwatch/internal/violation/models"
	"trafficwatch/internal/violation/service/mocks"
	dErrors "trafficwatch/pkg/domain-errors"
	"trafficwatch/pkg/platform/sentinel"
	"trafficwatch/pkg/requestcontext"
)

type ServiceSuite struct {
	suite.Suite
	ctrl      *gomock.Controller
	store     *mocks.MockStore
	validator *mocks.MockValidator
	publisher *mocks.MockPublisher
	metrics   *metrics.Metrics
	service   *Service
	ctx       context.Context
	now       time.Time
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.store = mocks.NewMockStore(s.ctrl)
	s.validator = mocks.NewMockValidator(s.ctrl)
	s.publisher = mocks.NewMockPublisher(s.ctrl)
	s.metrics = metrics.New(prometheus.NewRegistry())
	s.service = New(s.store, s.validator, WithMetrics(s.metrics), WithPublisher(s.publisher))

	s.now = time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(requestcontext.WithRequestID(context.Background(), "req-1"), s.now)
}

func (s *ServiceSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *ServiceSuite) candidate() models.Violation {
	return models.Violation{
		Type:            "no_helmet",
		Plate:           "MH12AB1234",
		DetectedAt:      time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC),
		FineAmount:      1000,
		RegistryVersion: "2024-01",
	}
}

func (s *ServiceSuite) stored(id int64, status models.Status) models.Violation {
	v := s.candidate()
	v.ID = id
	v.Status = status
	v.CreatedAt = s.now
	v.UpdatedAt = s.now
	return v
}

func (s *ServiceSuite) TestIngest() {
	draft := models.Draft{ViolationType: "no_helmet", Plate: "mh12ab1234", DetectedAt: "2024-01-15T10:30:00Z"}

	s.Run("stores the validated record and publishes a created event", func() {
		s.validator.EXPECT().Validate(draft, s.now).Return(s.candidate(), nil)
		s.store.EXPECT().Insert(gomock.Any(), s.candidate(), s.now).Return(s.stored(1, models.StatusDetected), nil)
		s.publisher.EXPECT().Publish(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, ev events.Event) bool {
				s.Equal(events.TypeCreated, ev.Type)
				s.Equal("req-1", ev.RequestID)
				s.Equal(int64(1), ev.Violation.ID)
				return true
			})

		got, err := s.service.Ingest(s.ctx, draft)
		s.Require().NoError(err)
		s.Equal(int64(1), got.ID)
		s.Equal(models.StatusDetected, got.Status)
		s.Equal(1.0, testutil.ToFloat64(s.metrics.Ingested.WithLabelValues("no_helmet")))
	})

	s.Run("validation failure is returned unchanged and nothing is stored", func() {
		s.validator.EXPECT().Validate(draft, s.now).Return(models.Violation{}, dErrors.NewField("plate", "plate is required"))

		_, err := s.service.Ingest(s.ctx, draft)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
		s.Equal("plate", dErrors.FieldOf(err))
		s.Equal(1.0, testutil.ToFloat64(s.metrics.Rejected.WithLabelValues("plate")))
	})

	s.Run("unavailable store maps to unavailable", func() {
		s.validator.EXPECT().Validate(draft, s.now).Return(s.candidate(), nil)
		s.store.EXPECT().Insert(gomock.Any(), gomock.Any(), s.now).
			Return(models.Violation{}, fmt.Errorf("insert: %w", sentinel.ErrUnavailable))

		_, err := s.service.Ingest(s.ctx, draft)
		s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))
	})

	s.Run("unexpected store error maps to internal", func() {
		s.validator.EXPECT().Validate(draft, s.now).Return(s.candidate(), nil)
		s.store.EXPECT().Insert(gomock.Any(), gomock.Any(), s.now).Return(models.Violation{}, errors.New("disk full"))

		_, err := s.service.Ingest(s.ctx, draft)
		s.True(dErrors.HasCode(err, dErrors.CodeInternal))
	})

	s.Run("dropped event does not fail the write", func() {
		s.validator.EXPECT().Validate(draft, s.now).Return(s.candidate(), nil)
		s.store.EXPECT().Insert(gomock.Any(), gomock.Any(), s.now).Return(s.stored(2, models.StatusDetected), nil)
		s.publisher.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(false)

		got, err := s.service.Ingest(s.ctx, draft)
		s.Require().NoError(err)
		s.Equal(int64(2), got.ID)
	})
}

func (s *ServiceSuite) TestTransitionStatus() {
	s.Run("applies the transition and publishes the previous status", func() {
		updated := s.stored(3, models.StatusConfirmed)
		s.store.EXPECT().Transition(gomock.Any(), int64(3), models.StatusConfirmed, s.now).
			Return(updated, models.StatusDisputed, nil)
		s.publisher.EXPECT().Publish(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, ev events.Event) bool {
				s.Equal(events.TypeStatusChanged, ev.Type)
				s.Equal(models.StatusDisputed, ev.PreviousStatus)
				s.Equal(models.StatusConfirmed, ev.Violation.Status)
				return true
			})

		got, err := s.service.TransitionStatus(s.ctx, 3, "Confirmed")
		s.Require().NoError(err)
		s.Equal(models.StatusConfirmed, got.Status)
		s.Equal(1.0, testutil.ToFloat64(s.metrics.Transitions.WithLabelValues("confirmed", "applied")))
	})

	s.Run("unknown status is a validation error on status", func() {
		_, err := s.service.TransitionStatus(s.ctx, 3, "archived")
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
		s.Equal("status", dErrors.FieldOf(err))
	})

	s.Run("missing record is not found", func() {
		s.store.EXPECT().Transition(gomock.Any(), int64(99), models.StatusDisputed, s.now).
			Return(models.Violation{}, models.Status(""), fmt.Errorf("violation 99: %w", sentinel.ErrNotFound))

		_, err := s.service.TransitionStatus(s.ctx, 99, "disputed")
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
		s.Equal(1.0, testutil.ToFloat64(s.metrics.Transitions.WithLabelValues("disputed", "not_found")))
	})

	s.Run("forbidden move is an invalid transition", func() {
		s.store.EXPECT().Transition(gomock.Any(), int64(3), models.StatusConfirmed, s.now).
			Return(models.Violation{}, models.Status(""), fmt.Errorf("violation 3: %w", sentinel.ErrInvalidState))

		_, err := s.service.TransitionStatus(s.ctx, 3, "confirmed")
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidTransition))
		s.Equal(1.0, testutil.ToFloat64(s.metrics.Transitions.WithLabelValues("confirmed", "invalid")))
	})
}

func (s *ServiceSuite) TestNoPublisherConfigured() {
	svc := New(s.store, s.validator)
	s.validator.EXPECT().Validate(gomock.Any(), s.now).Return(s.candidate(), nil)
	s.store.EXPECT().Insert(gomock.Any(), gomock.Any(), s.now).Return(s.stored(1, models.StatusDetected), nil)

	_, err := svc.Ingest(s.ctx, models.Draft{})
	s.NoError(err)
}
