package health

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trafficwatch/pkg/testutil"
)

func up(context.Context) error { return nil }

func failing(context.Context) error { return errors.New("connection refused") }

func TestCheck(t *testing.T) {
	testutil.Given(t, "every probe answers", func(t *testing.T) {
		r := NewReporter(up, WithDependency("redis", up), WithDependency("kafka", up))
		report := r.Check(context.Background())

		assert.Equal(t, OverallHealthy, report.Status)
		assert.Equal(t, StatusUp, report.Store)
		assert.Equal(t, map[string]Status{"redis": StatusUp, "kafka": StatusUp}, report.Dependencies)
	})

	testutil.Given(t, "a dependency fails", func(t *testing.T) {
		r := NewReporter(up, WithDependency("kafka", failing))
		report := r.Check(context.Background())

		assert.Equal(t, OverallDegraded, report.Status)
		assert.True(t, report.StoreUp())
		assert.Equal(t, StatusDown, report.Dependencies["kafka"])
	})

	testutil.Given(t, "the store fails", func(t *testing.T) {
		report := NewReporter(failing).Check(context.Background())
		assert.Equal(t, OverallUnhealthy, report.Status)
		assert.Equal(t, StatusDown, report.Store)
		assert.NotNil(t, report.Dependencies)
	})

	testutil.Given(t, "no store probe", func(t *testing.T) {
		report := NewReporter(nil).Check(context.Background())
		assert.Equal(t, StatusDown, report.Store)
	})
}

func TestCheckDoesNotWaitForStuckProbe(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	stuck := func(context.Context) error {
		<-release
		return nil
	}

	r := NewReporter(stuck, WithTimeout(50*time.Millisecond), WithDependency("redis", stuck))

	start := time.Now()
	report := r.Check(context.Background())
	elapsed := time.Since(start)

	assert.Equal(t, StatusDown, report.Store)
	assert.Equal(t, StatusDown, report.Dependencies["redis"])
	assert.Less(t, elapsed, time.Second, "probes should run concurrently and be abandoned at the timeout")
}

func TestProbeSeesDeadline(t *testing.T) {
	var deadline time.Time
	var ok bool
	probe := func(ctx context.Context) error {
		deadline, ok = ctx.Deadline()
		return nil
	}
	NewReporter(probe, WithTimeout(time.Second)).Check(context.Background())
	require.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(time.Second), deadline, time.Second)
}

func TestHandler(t *testing.T) {
	testutil.When(t, "store is up", func(t *testing.T) {
		router := chi.NewRouter()
		NewHandler(NewReporter(up, WithDependency("kafka", failing))).Register(router)

		rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/api/health"))
		testutil.AssertStatusOK(t, rr)
		testutil.AssertJSONContains(t, rr, "status", OverallDegraded)
	})

	testutil.When(t, "store is down", func(t *testing.T) {
		router := chi.NewRouter()
		NewHandler(NewReporter(failing)).Register(router)

		rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/api/health"))
		testutil.AssertStatus(t, rr, http.StatusServiceUnavailable)
		testutil.AssertJSONContains(t, rr, "store", "down")
	})
}
