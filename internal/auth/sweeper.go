package auth

import (
	"context"
	"time"

	"github.com/schoolresults/server/internal/repo"
	"go.uber.org/zap"
)

// SessionSweeper periodically deletes expired admin sessions. It runs beside the lazy
// deletion done by SessionVerifier and is not part of any request path.
type SessionSweeper struct {
	sessions repo.SessionRepo
	interval time.Duration
	opts     options
}

// NewSessionSweeper creates a sweeper; an interval <= 0 disables it
func NewSessionSweeper(sessions repo.SessionRepo, interval time.Duration, opts ...Option) *SessionSweeper {
	return &SessionSweeper{sessions: sessions, interval: interval, opts: buildOptions(opts)}
}

// Run sweeps on every tick until ctx is cancelled
func (s *SessionSweeper) Run(ctx context.Context) {
	if s.interval <= 0 {
		return
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil && ctx.Err() == nil {
				s.opts.log.Warn("admin session sweep failed", zap.Error(err))
			}
		}
	}
}

// SweepOnce deletes every session that expired before now and returns how many were removed
func (s *SessionSweeper) SweepOnce(ctx context.Context) (int64, error) {
	n, err := s.sessions.DeleteExpired(ctx, s.opts.now())
	if err != nil {
		return 0, err
	}
	s.opts.metrics.SessionsSwept(n)
	if n > 0 {
		s.opts.log.Info("expired admin sessions swept", zap.Int64("count", n))
	}
	return n, nil
}
