// Package service orchestrates violation ingestion, status transitions and
// queries on top of a record store.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"trafficwatch/internal/violation/events"
	"trafficwatch/internal/violation/metrics"
	"trafficwatch/internal/violation/models"
	dErrors "trafficwatch/pkg/domain-errors"
	"trafficwatch/pkg/platform/sentinel"
	"trafficwatch/pkg/requestcontext"
)

const tracerName = "trafficwatch/internal/violation/service"

// Store persists violation records. Implementations serialize writes and
// return sentinel errors for missing records and forbidden transitions.
// Transition also returns the status the record left.
type Store interface {
	Insert(ctx context.Context, v models.Violation, now time.Time) (models.Violation, error)
	Get(ctx context.Context, id int64) (models.Violation, error)
	List(ctx context.Context, filter models.Filter, page models.Page) ([]models.Violation, int, error)
	Transition(ctx context.Context, id int64, to models.Status, now time.Time) (models.Violation, models.Status, error)
}

// Validator admits drafts and prices them from the registry.
type Validator interface {
	Validate(draft models.Draft, now time.Time) (models.Violation, error)
}

// Publisher accepts lifecycle events. Publish must not block.
type Publisher interface {
	Publish(ctx context.Context, ev events.Event) bool
}

// Service handles the write side: ingestion and status transitions.
type Service struct {
	store     Store
	validator Validator
	publisher Publisher
	logger    *slog.Logger
	metrics   *metrics.Metrics
	tracer    trace.Tracer
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithPublisher enables lifecycle events for applied writes.
func WithPublisher(p Publisher) Option {
	return func(s *Service) {
		s.publisher = p
	}
}

func New(store Store, validator Validator, opts ...Option) *Service {
	s := &Service{
		store:     store,
		validator: validator,
		logger:    slog.New(slog.DiscardHandler),
		tracer:    otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ingest validates draft and stores it as a new detected violation.
func (s *Service) Ingest(ctx context.Context, draft models.Draft) (models.Violation, error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "violation.Ingest")
	defer span.End()

	now := requestcontext.Now(ctx)
	candidate, err := s.validator.Validate(draft, now)
	if err != nil {
		if s.metrics != nil {
			s.metrics.IncrementRejected(dErrors.FieldOf(err))
		}
		span.SetAttributes(attribute.String("violation.rejected_field", dErrors.FieldOf(err)))
		return models.Violation{}, err
	}

	stored, err := s.store.Insert(ctx, candidate, now)
	if err != nil {
		recordSpanError(span, err)
		return models.Violation{}, translateStoreError(err, "failed to store violation")
	}
	span.SetAttributes(
		attribute.Int64("violation.id", stored.ID),
		attribute.String("violation.type", stored.Type.String()),
	)

	if s.metrics != nil {
		s.metrics.IncrementIngested(stored.Type.String())
		s.metrics.ObserveIngest(start)
	}
	s.logger.InfoContext(ctx, "violation ingested",
		"request_id", requestcontext.RequestID(ctx),
		"violation_id", stored.ID,
		"violation_type", stored.Type,
		"fine_amount", stored.FineAmount,
	)
	s.publish(ctx, events.Created(stored, requestcontext.RequestID(ctx)))
	return stored, nil
}

// TransitionStatus moves violation id to the status named by rawStatus.
func (s *Service) TransitionStatus(ctx context.Context, id int64, rawStatus string) (models.Violation, error) {
	ctx, span := s.tracer.Start(ctx, "violation.TransitionStatus",
		trace.WithAttributes(attribute.Int64("violation.id", id)))
	defer span.End()

	to, err := models.ParseStatus(rawStatus)
	if err != nil {
		return models.Violation{}, err
	}
	span.SetAttributes(attribute.String("violation.status_to", to.String()))

	updated, previous, err := s.store.Transition(ctx, id, to, requestcontext.Now(ctx))
	switch {
	case err == nil:
	case errors.Is(err, sentinel.ErrNotFound):
		s.countTransition(to, "not_found")
		return models.Violation{}, dErrors.New(dErrors.CodeNotFound, fmt.Sprintf("violation %d not found", id))
	case errors.Is(err, sentinel.ErrInvalidState):
		s.countTransition(to, "invalid")
		return models.Violation{}, dErrors.New(dErrors.CodeInvalidTransition,
			fmt.Sprintf("violation %d cannot transition to %s", id, to))
	default:
		s.countTransition(to, "error")
		recordSpanError(span, err)
		return models.Violation{}, translateStoreError(err, "failed to update violation status")
	}

	s.countTransition(to, "applied")
	s.logger.InfoContext(ctx, "violation status changed",
		"request_id", requestcontext.RequestID(ctx),
		"violation_id", id,
		"from", previous,
		"status", to,
	)
	s.publish(ctx, events.StatusChanged(updated, previous, requestcontext.RequestID(ctx)))
	return updated, nil
}

func (s *Service) countTransition(to models.Status, outcome string) {
	if s.metrics != nil {
		s.metrics.IncrementTransition(to.String(), outcome)
	}
}

func (s *Service) publish(ctx context.Context, ev events.Event) {
	if s.publisher == nil {
		return
	}
	if !s.publisher.Publish(ctx, ev) {
		s.logger.WarnContext(ctx, "lifecycle event dropped",
			"event_type", ev.Type,
			"violation_id", ev.Violation.ID,
		)
	}
}

// translateStoreError maps infrastructure failures onto coded errors.
func translateStoreError(err error, msg string) error {
	switch {
	case errors.Is(err, sentinel.ErrUnavailable):
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "record store unavailable")
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Wrap(err, dErrors.CodeNotFound, "violation not found")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, msg)
	}
}

func recordSpanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
