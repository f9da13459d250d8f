package jobs

import (
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Job is a unit of background work run on a cron schedule
type Job interface {
	Name() string
	Run()
}

// Scheduler runs jobs on cron schedules. A panicking job is recovered and logged.
// Recover sits inside SkipIfStillRunning so a panic still releases the job's run slot.
type Scheduler struct {
	cron   *cron.Cron
	logger *logrus.Entry
}

func NewScheduler() *Scheduler {
	cronLogger := cron.PrintfLogger(logrus.WithField("component", "cron"))
	return &Scheduler{
		cron:   cron.New(cron.WithChain(cron.SkipIfStillRunning(cronLogger), cron.Recover(cronLogger))),
		logger: logrus.WithField("component", "Scheduler"),
	}
}

// AddJob registers job under schedule, e.g. "@every 1h" or "0 */6 * * *"
func (s *Scheduler) AddJob(schedule string, job Job) error {
	_, err := s.cron.AddFunc(schedule, func() {
		s.logger.WithField("job", job.Name()).Debug("Running job")
		job.Run()
	})
	if err != nil {
		s.logger.WithFields(logrus.Fields{
			"job":      job.Name(),
			"schedule": schedule,
		}).WithError(err).Error("Failed to schedule job")
		return err
	}

	s.logger.WithFields(logrus.Fields{
		"job":      job.Name(),
		"schedule": schedule,
	}).Info("Job registered")
	return nil
}

// RunNow executes job immediately in the background, outside its schedule
func (s *Scheduler) RunNow(job Job) {
	s.logger.WithField("job", job.Name()).Info("Running job immediately")
	go func() {
		defer func() {
			if r := recover(); r != nil {
				s.logger.WithField("job", job.Name()).Errorf("Job panicked: %v", r)
			}
		}()
		job.Run()
	}()
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.WithField("jobs", len(s.cron.Entries())).Info("Scheduler started")
}

// Stop halts scheduling and waits for running jobs to finish
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("Scheduler stopped")
}
