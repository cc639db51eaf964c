package maintenance

import (
	"context"
	"errors"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/classable/classable/internal/services"
)

// Options tunes the periodic maintenance sweep.
type Options struct {
	Schedule       string
	AuditRetention time.Duration
}

// Scheduler runs periodic housekeeping: flagging expired invites inactive
// and pruning old audit rows. Correctness never depends on it; redemption
// checks expiry directly.
type Scheduler struct {
	cron    *cron.Cron
	invites *services.InviteService
	audit   *services.AuditService
	opts    Options
	log     *zap.Logger
}

func NewScheduler(invites *services.InviteService, audit *services.AuditService, opts Options, log *zap.Logger) (*Scheduler, error) {
	if invites == nil {
		return nil, errors.New("maintenance: invite service is required")
	}
	if log == nil {
		log = zap.NewNop()
	}
	if opts.Schedule == "" {
		opts.Schedule = "@hourly"
	}

	return &Scheduler{
		cron:    cron.New(),
		invites: invites,
		audit:   audit,
		opts:    opts,
		log:     log,
	}, nil
}

// Start registers the sweep and begins the schedule.
func (s *Scheduler) Start() error {
	_, err := s.cron.AddFunc(s.opts.Schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("maintenance sweep finished with errors", zap.Error(err))
		}
	})
	if err != nil {
		return err
	}

	s.cron.Start()
	s.log.Info("maintenance scheduler started", zap.String("schedule", s.opts.Schedule))
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// RunOnce performs a single sweep. All steps run even if one fails; the
// combined error reports every failure.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	var errs error

	deactivated, err := s.invites.DeactivateExpired(ctx)
	if err != nil {
		errs = multierr.Append(errs, err)
	} else if deactivated > 0 {
		s.log.Info("deactivated expired invites", zap.Int64("count", deactivated))
	}

	if s.audit != nil && s.opts.AuditRetention > 0 {
		cutoff := time.Now().Add(-s.opts.AuditRetention)
		pruned, err := s.audit.PruneOlderThan(ctx, cutoff)
		if err != nil {
			errs = multierr.Append(errs, err)
		} else if pruned > 0 {
			s.log.Info("pruned audit logs", zap.Int64("count", pruned))
		}
	}

	return errs
}
