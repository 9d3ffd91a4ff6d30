package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"trafficwatch/internal/violation/events"
	"trafficwatch/internal/violation/models"
	"trafficwatch/internal/violation/registry"
	"trafficwatch/internal/violation/store"
	"trafficwatch/internal/violation/validator"
	dErrors "trafficwatch/pkg/domain-errors"
	"trafficwatch/pkg/requestcontext"
)

// ScenarioSuite runs the service against the in-memory store and the
// default registry.
type ScenarioSuite struct {
	suite.Suite
	store   *store.InMemory
	service *Service
	query   *QueryService
	ctx     context.Context
}

func TestScenarioSuite(t *testing.T) {
	suite.Run(t, new(ScenarioSuite))
}

func (s *ScenarioSuite) SetupTest() {
	s.store = store.NewInMemory()
	v := validator.New(registry.NewHolder(registry.Default()))
	s.service = New(s.store, v)
	s.query = NewQueryService(s.store)
	s.ctx = requestcontext.WithTime(context.Background(), time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC))
}

func (s *ScenarioSuite) ingest(vtype, plate string) models.Violation {
	v, err := s.service.Ingest(s.ctx, models.Draft{ViolationType: vtype, Plate: plate, DetectedAt: "2024-01-15T10:30:00Z"})
	s.Require().NoError(err)
	return v
}

func (s *ScenarioSuite) TestIngestNormalizesAndPrices() {
	tampered := int64(1)
	v, err := s.service.Ingest(s.ctx, models.Draft{
		ViolationType: "no_helmet",
		Plate:         "mh12ab1234",
		DetectedAt:    "2024-01-15T10:30:00Z",
		FineAmount:    &tampered,
	})
	s.Require().NoError(err)
	s.Equal("MH12AB1234", v.Plate)
	s.Equal(int64(1000), v.FineAmount)
	s.Equal(models.StatusDetected, v.Status)
	s.Positive(v.ID)

	got, err := s.query.GetViolation(s.ctx, v.ID)
	s.Require().NoError(err)
	s.Equal(v, got)
}

func (s *ScenarioSuite) TestLifecycle() {
	v := s.ingest("no_helmet", "MH12AB1234")

	_, err := s.service.TransitionStatus(s.ctx, v.ID, "confirmed")
	s.Require().NoError(err)
	_, err = s.service.TransitionStatus(s.ctx, v.ID, "dismissed")
	s.Require().NoError(err)

	_, err = s.service.TransitionStatus(s.ctx, v.ID, "confirmed")
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidTransition))
}

func (s *ScenarioSuite) TestFilterWithNoMatches() {
	s.ingest("no_helmet", "MH12AB1234")
	s.ingest("no_helmet", "KA01F9999")

	res, err := s.query.ListViolations(s.ctx, map[string]string{"violation_type": "speeding"}, models.Page{})
	s.Require().NoError(err)
	s.Empty(res.Items)
	s.Zero(res.Total)
}

func (s *ScenarioSuite) TestTotalIgnoresPagination() {
	for range 5 {
		s.ingest("speeding", "DL3CAB0001")
	}
	res, err := s.query.ListViolations(s.ctx, nil, models.Page{Offset: 1, Limit: 2})
	s.Require().NoError(err)
	s.Equal(5, res.Total)
	s.Require().Len(res.Items, 2)
	s.Equal(int64(2), res.Items[0].ID)
	s.Equal(int64(3), res.Items[1].ID)
}

func (s *ScenarioSuite) TestConcurrentIngestAssignsUniqueIDs() {
	const workers = 50
	ids := make(chan int64, workers)
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := s.service.Ingest(s.ctx, models.Draft{ViolationType: "wrong_lane", Plate: "GJ05XY7777", DetectedAt: "2024-01-15T10:30:00Z"})
			if err == nil {
				ids <- v.ID
			}
		}()
	}
	wg.Wait()
	close(ids)

	seen := map[int64]bool{}
	for id := range ids {
		s.False(seen[id], "id %d issued twice", id)
		seen[id] = true
	}
	s.Len(seen, workers)
}

func (s *ScenarioSuite) TestEventsFollowWrites() {
	sink := events.NewMemorySink()
	d := events.NewDispatcher(sink)
	svc := New(s.store, validator.New(registry.NewHolder(registry.Default())), WithPublisher(d))

	v, err := svc.Ingest(s.ctx, models.Draft{ViolationType: "signal_jump", Plate: "TN09BC4321", DetectedAt: "2024-01-15T10:30:00Z"})
	s.Require().NoError(err)
	_, err = svc.TransitionStatus(s.ctx, v.ID, "disputed")
	s.Require().NoError(err)

	d.Close()
	s.Require().NoError(d.Run(context.Background()))

	got := sink.Events()
	s.Require().Len(got, 2)
	s.Equal(events.TypeCreated, got[0].Type)
	s.Equal(events.TypeStatusChanged, got[1].Type)
	s.Equal(models.StatusDetected, got[1].PreviousStatus)
	s.Equal(int64(5000), got[1].Violation.FineAmount)
}
