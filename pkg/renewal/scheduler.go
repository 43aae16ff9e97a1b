package renewal

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"

	"github.com/dwellcare/billing/pkg/pause"
)

// PauseSweeper is the slice of the pause manager the scheduler drives.
type PauseSweeper interface {
	ProcessGracePeriodExpirations(ctx context.Context) (*pause.SweepResult, error)
	ProcessAutomaticResumes(ctx context.Context) (*pause.SweepResult, error)
}

// SchedulerConfig holds the cron expressions for the periodic billing jobs.
type SchedulerConfig struct {
	RenewalSpec     string `env:"BILLING_RENEWAL_CRON" envDefault:"5 * * * *"`
	GraceSweepSpec  string `env:"BILLING_GRACE_SWEEP_CRON" envDefault:"*/15 * * * *"`
	ResumeSweepSpec string `env:"BILLING_RESUME_SWEEP_CRON" envDefault:"*/15 * * * *"`
}

// Scheduler runs the renewal job and the pause sweeps on cron schedules.
// Job errors are logged, never fatal: every job is re-entrant and the next
// tick retries whatever the failed run left behind.
type Scheduler struct {
	cron    *cron.Cron
	logger  *slog.Logger
	baseCtx context.Context
}

// NewScheduler wires the periodic billing jobs onto their schedules.
func NewScheduler(ctx context.Context, cfg SchedulerConfig, renewals *Service, sweeper PauseSweeper, logger *slog.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scheduler{
		cron:    cron.New(),
		logger:  logger,
		baseCtx: ctx,
	}

	jobs := []struct {
		name string
		spec string
		run  func(context.Context) error
	}{
		{
			name: "renewals",
			spec: cfg.RenewalSpec,
			run: func(ctx context.Context) error {
				_, err := renewals.Run(ctx)
				return err
			},
		},
		{
			name: "grace_period_expirations",
			spec: cfg.GraceSweepSpec,
			run: func(ctx context.Context) error {
				_, err := sweeper.ProcessGracePeriodExpirations(ctx)
				return err
			},
		},
		{
			name: "automatic_resumes",
			spec: cfg.ResumeSweepSpec,
			run: func(ctx context.Context) error {
				_, err := sweeper.ProcessAutomaticResumes(ctx)
				return err
			},
		},
	}

	for _, job := range jobs {
		if _, err := s.cron.AddFunc(job.spec, s.wrap(job.name, job.run)); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Scheduler) wrap(name string, run func(context.Context) error) func() {
	return func() {
		if err := run(s.baseCtx); err != nil {
			s.logger.LogAttrs(s.baseCtx, slog.LevelError, "scheduled billing job failed",
				slog.String("job", name),
				slog.String("error", err.Error()),
			)
		}
	}
}

// Start begins running the schedules in a background goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop stops the schedules and waits for in-flight jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
