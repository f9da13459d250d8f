package jobs

import (
	"context"
	"time"

	"github.com/fenilmodi00/ipo-allotment/services"
	"github.com/sirupsen/logrus"
)

// ResultReleaseCheckJob polls registrar portals for newly published allotments
type ResultReleaseCheckJob struct {
	Automation *services.AutomationService
	Timeout    time.Duration
}

func NewResultReleaseCheckJob(automation *services.AutomationService) *ResultReleaseCheckJob {
	return &ResultReleaseCheckJob{
		Automation: automation,
		Timeout:    2 * time.Minute,
	}
}

func (j *ResultReleaseCheckJob) Name() string {
	return "result_release_check"
}

func (j *ResultReleaseCheckJob) Run() {
	logrus.Info("Starting Result Release Check Job")
	ctx, cancel := context.WithTimeout(context.Background(), j.Timeout)
	defer cancel()

	report := j.Automation.SyncAllotmentStatuses(ctx)
	if report.Skipped {
		logrus.Info("Result Release Check Job skipped, a sync is already running")
		return
	}

	published, discovered, simulated := 0, 0, 0
	for _, result := range report.Registrars {
		published += len(result.Published)
		discovered += len(result.Discovered)
		if result.Error != "" {
			simulated++
		}
	}

	logrus.WithFields(logrus.Fields{
		"published":           published,
		"discovered":          discovered,
		"registrars_degraded": simulated,
		"duration":            report.FinishedAt.Sub(report.StartedAt),
	}).Info("Result Release Check Job completed")
}
