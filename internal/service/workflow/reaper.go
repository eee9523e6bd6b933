package workflow

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/qs-lzh/cave-sale/config"
	"github.com/qs-lzh/cave-sale/internal/service/domain"
)

// SessionReaper periodically ends every session whose time is up. It bounds the delay
// between expires_at and finalization when an expiry message is late or lost.
type SessionReaper struct {
	sessions domain.SessionService
	workflow *SessionWorkflow
	cfg      config.ReaperConfig
	logger   *zap.Logger
	cron     *cron.Cron
}

func NewSessionReaper(sessions domain.SessionService, workflow *SessionWorkflow, cfg config.ReaperConfig, logger *zap.Logger) *SessionReaper {
	return &SessionReaper{
		sessions: sessions,
		workflow: workflow,
		cfg:      cfg,
		logger:   logger,
		cron:     cron.New(cron.WithSeconds()),
	}
}

func (r *SessionReaper) Start() error {
	_, err := r.cron.AddFunc(r.cfg.Schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), r.cfg.SweepTimeout)
		defer cancel()
		if _, err := r.Sweep(ctx, time.Now()); err != nil {
			r.logger.Error("session sweep failed", zap.Error(err))
		}
	})
	if err != nil {
		return err
	}
	r.cron.Start()
	return nil
}

// Stop waits for a running sweep to finish.
func (r *SessionReaper) Stop() {
	<-r.cron.Stop().Done()
}

// Sweep ends up to one batch of expired sessions and returns how many it ended.
// Running it twice, or alongside the expiry consumer, ends nothing twice.
func (r *SessionReaper) Sweep(ctx context.Context, now time.Time) (int, error) {
	ids, err := r.sessions.ListExpired(ctx, now, r.cfg.BatchSize)
	if err != nil {
		return 0, err
	}

	ended := 0
	for _, id := range ids {
		ok, err := r.workflow.Expire(ctx, id, now)
		if err != nil {
			r.logger.Warn("failed to reap session", zap.String("session_id", id), zap.Error(err))
			continue
		}
		if ok {
			ended++
		}
	}
	if ended > 0 {
		r.logger.Info("reaped expired sessions", zap.Int("count", ended))
	}
	return ended, nil
}
