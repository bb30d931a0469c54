package worker

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Expirer est implémenté par service.AlertService.
type Expirer interface {
	ExpireDue(ctx context.Context) (int, error)
}

// ExpirySweeper archive périodiquement les alertes échues.
type ExpirySweeper struct {
	expirer  Expirer
	interval time.Duration
	logger   *zap.Logger
}

func NewExpirySweeper(expirer Expirer, interval time.Duration, logger *zap.Logger) *ExpirySweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &ExpirySweeper{expirer: expirer, interval: interval, logger: logger}
}

// Run bloque jusqu'à l'annulation du contexte.
func (s *ExpirySweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *ExpirySweeper) sweep(ctx context.Context) {
	n, err := s.expirer.ExpireDue(ctx)
	if err != nil {
		s.logger.Warn("alert expiry sweep failed", zap.Error(err))
		return
	}
	if n > 0 {
		s.logger.Info("expired alerts archived", zap.Int("count", n))
	}
}
