package jobs

import (
	"context"
	"log/slog"
)

// TokenStore deletes expired refresh tokens.
type TokenStore interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

// SweepRecorder counts swept tokens.
type SweepRecorder interface {
	RecordSweep(deleted int64)
}

// RefreshTokenSweeper removes refresh tokens past their expiry.
type RefreshTokenSweeper struct {
	tokens   TokenStore
	recorder SweepRecorder
	logger   *slog.Logger
}

// NewRefreshTokenSweeper creates a sweeper. recorder may be nil.
func NewRefreshTokenSweeper(tokens TokenStore, recorder SweepRecorder, logger *slog.Logger) *RefreshTokenSweeper {
	return &RefreshTokenSweeper{tokens: tokens, recorder: recorder, logger: logger}
}

// Sweep deletes expired tokens once.
func (s *RefreshTokenSweeper) Sweep(ctx context.Context) error {
	deleted, err := s.tokens.DeleteExpired(ctx)
	if err != nil {
		return err
	}
	if s.recorder != nil {
		s.recorder.RecordSweep(deleted)
	}
	if deleted > 0 {
		s.logger.Info("expired refresh tokens deleted", "count", deleted)
	}
	return nil
}
