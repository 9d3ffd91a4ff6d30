package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"trafficwatch/internal/violation/metrics"
	"trafficwatch/internal/violation/models"
	dErrors "trafficwatch/pkg/domain-errors"
	"trafficwatch/pkg/platform/sentinel"
)

// Filter keys accepted by ListViolations.
const (
	FilterViolationType = "violation_type"
	FilterStatus        = "status"
	FilterPlate         = "plate"
)

// Reader is the read-only slice of Store.
type Reader interface {
	Get(ctx context.Context, id int64) (models.Violation, error)
	List(ctx context.Context, filter models.Filter, page models.Page) ([]models.Violation, int, error)
}

// QueryService answers read requests. It never mutates the store.
type QueryService struct {
	store   Reader
	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
}

type QueryOption func(*QueryService)

func WithQueryLogger(logger *slog.Logger) QueryOption {
	return func(q *QueryService) {
		q.logger = logger
	}
}

func WithQueryMetrics(m *metrics.Metrics) QueryOption {
	return func(q *QueryService) {
		q.metrics = m
	}
}

func NewQueryService(store Reader, opts ...QueryOption) *QueryService {
	q := &QueryService{
		store:  store,
		logger: slog.New(slog.DiscardHandler),
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// GetViolation returns the record with id.
func (q *QueryService) GetViolation(ctx context.Context, id int64) (models.Violation, error) {
	ctx, span := q.tracer.Start(ctx, "violation.Get",
		trace.WithAttributes(attribute.Int64("violation.id", id)))
	defer span.End()

	v, err := q.store.Get(ctx, id)
	if errors.Is(err, sentinel.ErrNotFound) {
		return models.Violation{}, dErrors.New(dErrors.CodeNotFound, fmt.Sprintf("violation %d not found", id))
	}
	if err != nil {
		recordSpanError(span, err)
		return models.Violation{}, translateStoreError(err, "failed to load violation")
	}
	return v, nil
}

// ListViolations returns one page of records matching rawFilter, in id order,
// with the total number of matches. Empty filter values are ignored.
func (q *QueryService) ListViolations(ctx context.Context, rawFilter map[string]string, page models.Page) (models.ListResult, error) {
	start := time.Now()
	ctx, span := q.tracer.Start(ctx, "violation.List")
	defer span.End()

	filter, err := ParseFilter(rawFilter)
	if err != nil {
		return models.ListResult{}, err
	}
	page, err = page.Normalize()
	if err != nil {
		return models.ListResult{}, err
	}
	span.SetAttributes(
		attribute.Int("page.offset", page.Offset),
		attribute.Int("page.limit", page.Limit),
	)

	items, total, err := q.store.List(ctx, filter, page)
	if err != nil {
		recordSpanError(span, err)
		return models.ListResult{}, translateStoreError(err, "failed to list violations")
	}
	if items == nil {
		items = []models.Violation{}
	}
	if q.metrics != nil {
		q.metrics.ObserveList(start)
	}
	return models.ListResult{Items: items, Total: total}, nil
}

// ParseFilter converts raw key/value criteria into a Filter. Unknown keys are
// rejected; plate values are normalized the same way as at ingestion.
func ParseFilter(raw map[string]string) (models.Filter, error) {
	var unsupported []string
	for key := range raw {
		switch key {
		case FilterViolationType, FilterStatus, FilterPlate:
		default:
			unsupported = append(unsupported, key)
		}
	}
	if len(unsupported) > 0 {
		sort.Strings(unsupported)
		return models.Filter{}, dErrors.New(dErrors.CodeUnsupportedFilter,
			"unsupported filter: "+strings.Join(unsupported, ", "))
	}

	var f models.Filter
	f.Type = models.ParseViolationType(raw[FilterViolationType])
	if s := strings.TrimSpace(raw[FilterStatus]); s != "" {
		status, err := models.ParseStatus(s)
		if err != nil {
			return models.Filter{}, err
		}
		f.Status = status
	}
	if p := raw[FilterPlate]; strings.TrimSpace(p) != "" {
		f.Plate = models.NormalizePlate(p)
		if f.Plate == "" {
			return models.Filter{}, dErrors.NewField(FilterPlate, "plate filter has no letters or digits")
		}
	}
	return f, nil
}
