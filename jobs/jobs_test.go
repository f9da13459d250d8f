package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fenilmodi00/ipo-allotment/models"
	"github.com/fenilmodi00/ipo-allotment/services"
	"github.com/fenilmodi00/ipo-allotment/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingJob struct {
	runs  atomic.Int32
	panic bool
}

func (j *countingJob) Name() string {
	return "counting"
}

func (j *countingJob) Run() {
	j.runs.Add(1)
	if j.panic {
		panic("job failed")
	}
}

func TestSchedulerRunsJobs(t *testing.T) {
	scheduler := NewScheduler()
	job := &countingJob{}
	failing := &countingJob{panic: true}

	require.NoError(t, scheduler.AddJob("@every 1s", job))
	require.NoError(t, scheduler.AddJob("@every 1s", failing))
	scheduler.Start()
	defer scheduler.Stop()

	require.Eventually(t, func() bool {
		return job.runs.Load() >= 2 && failing.runs.Load() >= 2
	}, 5*time.Second, 50*time.Millisecond)
}

func TestSchedulerRejectsInvalidSchedule(t *testing.T) {
	scheduler := NewScheduler()
	assert.Error(t, scheduler.AddJob("every hour", &countingJob{}))
}

func TestSchedulerRunNowRecovers(t *testing.T) {
	scheduler := NewScheduler()
	job := &countingJob{panic: true}

	scheduler.RunNow(job)
	require.Eventually(t, func() bool { return job.runs.Load() == 1 }, time.Second, 10*time.Millisecond)
}

func TestCacheCleanupJob(t *testing.T) {
	now := time.Date(2025, 12, 28, 10, 0, 0, 0, time.UTC)
	cache := services.NewAllotmentCache(time.Hour, 0)
	cache.SetClock(func() time.Time { return now })

	cache.Set("fresh", models.AllotmentResult{Status: models.StatusAllotted, CheckedAt: now.Add(-time.Minute).UnixMilli()})
	cache.Set("stale", models.AllotmentResult{Status: models.StatusNotAllotted, CheckedAt: now.Add(-2 * time.Hour).UnixMilli()})

	NewCacheCleanupJob(cache).Run()

	assert.Equal(t, []string{"fresh"}, cache.Keys())
}

type offlineFetcher struct{}

func (offlineFetcher) Get(ctx context.Context, url string, headers map[string]string) (*shared.FetchResponse, error) {
	return nil, errors.New("offline")
}

func (offlineFetcher) Post(ctx context.Context, url, contentType string, body []byte, headers map[string]string) (*shared.FetchResponse, error) {
	return nil, errors.New("offline")
}

func TestResultReleaseCheckJobPublishesDueIPOs(t *testing.T) {
	master := services.NewIPOMasterService([]models.IPOMasterEntry{
		{ID: "due", Name: "Due Industries", Registrar: models.RegistrarBigshare, AllotmentDate: "20 Dec 2025", AllotmentStatus: models.PublicationPending},
	})
	automation := services.NewAutomationService(master, services.NewRegistrarService(), offlineFetcher{}, nil, time.Second)
	automation.SetClock(func() time.Time { return time.Date(2025, 12, 28, 10, 0, 0, 0, time.Local) })
	automation.SetSimulatedDiscoveries(map[models.RegistrarType][]string{})

	NewResultReleaseCheckJob(automation).Run()

	entry, _ := master.GetIPO("due")
	assert.Equal(t, models.PublicationPublished, entry.AllotmentStatus)
	require.NotNil(t, automation.LastReport())
	assert.Len(t, automation.LastReport().Registrars, 3)
}
