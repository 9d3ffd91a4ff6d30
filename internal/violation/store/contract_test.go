package store

import (
	"context"
	"sync"
	"time"

	"github.com/stretchr/testify/suite"

	"trafficwatch/internal/violation/models"
	"trafficwatch/pkg/platform/sentinel"
)

// recordStore is the contract every backend satisfies.
type recordStore interface {
	Insert(ctx context.Context, v models.Violation, now time.Time) (models.Violation, error)
	Get(ctx context.Context, id int64) (models.Violation, error)
	List(ctx context.Context, filter models.Filter, page models.Page) ([]models.Violation, int, error)
	Transition(ctx context.Context, id int64, to models.Status, now time.Time) (models.Violation, models.Status, error)
	Ping(ctx context.Context) error
}

// contractSuite runs the shared store contract. Backends embed it and set
// newStore in SetupTest.
type contractSuite struct {
	suite.Suite
	ctx      context.Context
	store    recordStore
	newStore func() recordStore
	now      time.Time
}

func (s *contractSuite) SetupTest() {
	s.ctx = context.Background()
	s.now = time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)
	s.store = s.newStore()
}

func (s *contractSuite) draft(vtype models.ViolationType, plate string) models.Violation {
	return models.Violation{
		Type:            vtype,
		Plate:           plate,
		DetectedAt:      s.now.Add(-time.Minute),
		FineAmount:      1000,
		RegistryVersion: "2024-01",
	}
}

func (s *contractSuite) insert(vtype models.ViolationType, plate string) models.Violation {
	v, err := s.store.Insert(s.ctx, s.draft(vtype, plate), s.now)
	s.Require().NoError(err)
	return v
}

func (s *contractSuite) TestInsertAssignsIdentity() {
	first := s.insert("no_helmet", "MH12AB1234")
	second := s.insert("speeding", "KA01F9999")

	s.Positive(first.ID)
	s.Greater(second.ID, first.ID)
	s.Equal(models.StatusDetected, first.Status)
	s.Equal(s.now, first.CreatedAt)
	s.Equal(s.now, first.UpdatedAt)
}

func (s *contractSuite) TestInsertIgnoresCallerIdentity() {
	d := s.draft("no_helmet", "MH12AB1234")
	d.ID = 999
	d.Status = models.StatusDismissed

	v, err := s.store.Insert(s.ctx, d, s.now)
	s.Require().NoError(err)
	s.NotEqual(int64(999), v.ID)
	s.Equal(models.StatusDetected, v.Status)
}

func (s *contractSuite) TestGetRoundTrip() {
	inserted := s.insert("no_helmet", "MH12AB1234")

	got, err := s.store.Get(s.ctx, inserted.ID)
	s.Require().NoError(err)
	s.Equal(inserted.ID, got.ID)
	s.Equal(inserted.Type, got.Type)
	s.Equal(inserted.Plate, got.Plate)
	s.Equal(inserted.FineAmount, got.FineAmount)
	s.Equal(inserted.Status, got.Status)
	s.True(inserted.DetectedAt.Equal(got.DetectedAt))
	s.True(inserted.CreatedAt.Equal(got.CreatedAt))
}

// TestRoundTripKeepsSubMicrosecondClock writes with nanosecond timestamps, as
// the request clock produces, and expects reads to match the write result.
func (s *contractSuite) TestRoundTripKeepsSubMicrosecondClock() {
	now := time.Date(2024, 1, 15, 10, 30, 0, 123456789, time.UTC)
	draft := s.draft("no_helmet", "MH12AB1234")
	draft.DetectedAt = now.Add(-time.Minute + 987*time.Nanosecond)

	inserted, err := s.store.Insert(s.ctx, draft, now)
	s.Require().NoError(err)
	got, err := s.store.Get(s.ctx, inserted.ID)
	s.Require().NoError(err)
	s.Equal(inserted, got)

	later := now.Add(time.Second + 555*time.Nanosecond)
	confirmed, _, err := s.store.Transition(s.ctx, inserted.ID, models.StatusConfirmed, later)
	s.Require().NoError(err)
	got, err = s.store.Get(s.ctx, inserted.ID)
	s.Require().NoError(err)
	s.Equal(confirmed, got)
}

func (s *contractSuite) TestGetUnknown() {
	_, err := s.store.Get(s.ctx, 424242)
	s.ErrorIs(err, sentinel.ErrNotFound)

	_, err = s.store.Get(s.ctx, 0)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *contractSuite) TestListOrderingAndPagination() {
	var ids []int64
	for i := 0; i < 5; i++ {
		ids = append(ids, s.insert("no_helmet", "MH12AB1234").ID)
	}

	items, total, err := s.store.List(s.ctx, models.Filter{}, models.Page{Offset: 0, Limit: 100})
	s.Require().NoError(err)
	s.Equal(5, total)
	s.Require().Len(items, 5)
	for i, v := range items {
		s.Equal(ids[i], v.ID)
	}

	items, total, err = s.store.List(s.ctx, models.Filter{}, models.Page{Offset: 1, Limit: 2})
	s.Require().NoError(err)
	s.Equal(5, total)
	s.Require().Len(items, 2)
	s.Equal(ids[1], items[0].ID)
	s.Equal(ids[2], items[1].ID)

	items, total, err = s.store.List(s.ctx, models.Filter{}, models.Page{Offset: 10, Limit: 2})
	s.Require().NoError(err)
	s.Equal(5, total)
	s.Empty(items)
}

func (s *contractSuite) TestListFilters() {
	helmet := s.insert("no_helmet", "MH12AB1234")
	speeding := s.insert("speeding", "KA01F9999")
	s.insert("no_helmet", "KA01F9999")

	_, _, err := s.store.Transition(s.ctx, speeding.ID, models.StatusConfirmed, s.now)
	s.Require().NoError(err)

	s.Run("by type", func() {
		items, total, err := s.store.List(s.ctx, models.Filter{Type: "no_helmet"}, models.Page{Limit: 10})
		s.Require().NoError(err)
		s.Equal(2, total)
		s.Equal(helmet.ID, items[0].ID)
	})

	s.Run("by status", func() {
		items, total, err := s.store.List(s.ctx, models.Filter{Status: models.StatusConfirmed}, models.Page{Limit: 10})
		s.Require().NoError(err)
		s.Equal(1, total)
		s.Equal(speeding.ID, items[0].ID)
	})

	s.Run("by plate and type", func() {
		items, total, err := s.store.List(s.ctx, models.Filter{Type: "no_helmet", Plate: "KA01F9999"}, models.Page{Limit: 10})
		s.Require().NoError(err)
		s.Equal(1, total)
		s.Equal("KA01F9999", items[0].Plate)
	})

	s.Run("no matches", func() {
		items, total, err := s.store.List(s.ctx, models.Filter{Type: "wrong_lane"}, models.Page{Limit: 10})
		s.Require().NoError(err)
		s.Equal(0, total)
		s.Empty(items)
	})

	s.Run("total ignores truncation", func() {
		items, total, err := s.store.List(s.ctx, models.Filter{Plate: "KA01F9999"}, models.Page{Limit: 1})
		s.Require().NoError(err)
		s.Equal(2, total)
		s.Len(items, 1)
	})
}

func (s *contractSuite) TestTransitions() {
	s.Run("confirm then dismiss then confirm fails", func() {
		v := s.insert("no_helmet", "MH12AB1234")
		later := s.now.Add(time.Hour)

		confirmed, from, err := s.store.Transition(s.ctx, v.ID, models.StatusConfirmed, later)
		s.Require().NoError(err)
		s.Equal(models.StatusDetected, from)
		s.Equal(models.StatusConfirmed, confirmed.Status)
		s.True(later.Equal(confirmed.UpdatedAt))

		dismissed, _, err := s.store.Transition(s.ctx, v.ID, models.StatusDismissed, later)
		s.Require().NoError(err)
		s.Equal(models.StatusDismissed, dismissed.Status)

		_, _, err = s.store.Transition(s.ctx, v.ID, models.StatusConfirmed, later)
		s.ErrorIs(err, sentinel.ErrInvalidState)

		got, err := s.store.Get(s.ctx, v.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusDismissed, got.Status)
	})

	s.Run("disputed can be confirmed", func() {
		v := s.insert("speeding", "KA01F9999")
		_, _, err := s.store.Transition(s.ctx, v.ID, models.StatusDisputed, s.now)
		s.Require().NoError(err)
		got, from, err := s.store.Transition(s.ctx, v.ID, models.StatusConfirmed, s.now)
		s.Require().NoError(err)
		s.Equal(models.StatusConfirmed, got.Status)
		s.Equal(models.StatusDisputed, from)
	})

	s.Run("detected cannot be dismissed directly", func() {
		v := s.insert("speeding", "KA01F9999")
		_, _, err := s.store.Transition(s.ctx, v.ID, models.StatusDismissed, s.now)
		s.ErrorIs(err, sentinel.ErrInvalidState)
	})

	s.Run("unknown id", func() {
		_, _, err := s.store.Transition(s.ctx, 987654, models.StatusConfirmed, s.now)
		s.ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *contractSuite) TestDismissedRecordsRemainListed() {
	v := s.insert("no_helmet", "MH12AB1234")
	_, _, err := s.store.Transition(s.ctx, v.ID, models.StatusDisputed, s.now)
	s.Require().NoError(err)
	_, _, err = s.store.Transition(s.ctx, v.ID, models.StatusDismissed, s.now)
	s.Require().NoError(err)

	items, total, err := s.store.List(s.ctx, models.Filter{}, models.Page{Limit: 10})
	s.Require().NoError(err)
	s.Equal(1, total)
	s.Equal(models.StatusDismissed, items[0].Status)
}

func (s *contractSuite) TestConcurrentInsertsGetUniqueIDs() {
	const writers = 50

	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		ids = make(map[int64]struct{}, writers)
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := s.store.Insert(s.ctx, s.draft("no_helmet", "MH12AB1234"), s.now)
			if err != nil {
				s.T().Errorf("insert: %v", err)
				return
			}
			mu.Lock()
			ids[v.ID] = struct{}{}
			mu.Unlock()
		}()
	}
	wg.Wait()

	s.Len(ids, writers)
	_, total, err := s.store.List(s.ctx, models.Filter{}, models.Page{Limit: 1})
	s.Require().NoError(err)
	s.Equal(writers, total)
}

func (s *contractSuite) TestConcurrentTransitionsApplyOnce() {
	v := s.insert("no_helmet", "MH12AB1234")

	const racers = 20
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := s.store.Transition(s.ctx, v.ID, models.StatusConfirmed, s.now)
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	s.Equal(1, succeeded, "exactly one detected -> confirmed transition should win")
}

func (s *contractSuite) TestPing() {
	s.NoError(s.store.Ping(s.ctx))
}
