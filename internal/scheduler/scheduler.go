package scheduler

import (
	"context"
	"fmt"
	"time"

	"classbook/internal/gymclass"
	"classbook/internal/logger"
	"classbook/internal/metrics"

	"github.com/robfig/cron/v3"
)

const (
	jobTimeout     = 4 * time.Minute
	queueGaugeSpec = "@every 30s"
	defaultHorizon = 14
)

type SessionGenerator interface {
	GenerateSessions(ctx context.Context, from, to time.Time, classID *int) ([]gymclass.Session, error)
}

type BalanceExpirer interface {
	ExpireBalances(ctx context.Context) (int64, error)
}

type QueueMeter interface {
	QueueLength(ctx context.Context) (int64, error)
}

type Config struct {
	// HorizonDays is how far ahead sessions are kept generated.
	HorizonDays  int
	GenerateSpec string
	ExpirySpec   string
	Location     *time.Location
}

// Scheduler runs the periodic maintenance jobs.
type Scheduler struct {
	cron     *cron.Cron
	cfg      Config
	sessions SessionGenerator
	balances BalanceExpirer
	emails   QueueMeter
	now      func() time.Time
}

func New(cfg Config, sessions SessionGenerator, balances BalanceExpirer, emails QueueMeter) (*Scheduler, error) {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.HorizonDays <= 0 {
		cfg.HorizonDays = defaultHorizon
	}

	s := &Scheduler{
		cron:     cron.New(cron.WithLocation(cfg.Location), cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger))),
		cfg:      cfg,
		sessions: sessions,
		balances: balances,
		emails:   emails,
		now:      time.Now,
	}

	jobs := []struct {
		name string
		spec string
		run  func(ctx context.Context) error
	}{
		{"generate_sessions", cfg.GenerateSpec, s.generateSessions},
		{"expire_balances", cfg.ExpirySpec, s.expireBalances},
		{"email_queue_length", queueGaugeSpec, s.recordQueueLength},
	}
	for _, j := range jobs {
		if j.spec == "" {
			continue
		}
		if _, err := s.cron.AddFunc(j.spec, s.wrap(j.name, j.run)); err != nil {
			return nil, fmt.Errorf("schedule %s %q: %w", j.name, j.spec, err)
		}
	}
	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	logger.Info("Scheduler started", "jobs", len(s.cron.Entries()))
}

// Stop stops scheduling and waits for running jobs until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		logger.Warn("Scheduler stop timed out")
	}
}

func (s *Scheduler) wrap(name string, run func(ctx context.Context) error) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
		defer cancel()

		start := time.Now()
		if err := run(ctx); err != nil {
			logger.WithError(err).Error("scheduled job failed", "job", name)
			return
		}
		logger.Debug("scheduled job finished", "job", name, "took", time.Since(start).String())
	}
}

func (s *Scheduler) generateSessions(ctx context.Context) error {
	from := s.now().In(s.cfg.Location)
	to := from.AddDate(0, 0, s.cfg.HorizonDays)

	created, err := s.sessions.GenerateSessions(ctx, from, to, nil)
	if err != nil {
		return err
	}
	logger.Info("sessions generated by scheduler", "created", len(created), "horizon_days", s.cfg.HorizonDays)
	return nil
}

func (s *Scheduler) expireBalances(ctx context.Context) error {
	_, err := s.balances.ExpireBalances(ctx)
	return err
}

func (s *Scheduler) recordQueueLength(ctx context.Context) error {
	if s.emails == nil {
		return nil
	}
	n, err := s.emails.QueueLength(ctx)
	if err != nil {
		return err
	}
	metrics.SetEmailQueueLength(n)
	return nil
}
