package cache

import (
	"context"
	"log/slog"
	"time"

	"github.com/tilinna/clock"
)

// Refreshable — представление, которое умеет пересчитать себя.
type Refreshable interface {
	Key() string
	Policy() Policy
	Refresh(ctx context.Context) error
}

// Refresher периодически пересчитывает представления с ModePush.
type Refresher struct {
	views  []Refreshable
	period time.Duration
	clock  clock.Clock
	log    *slog.Logger
}

// NewRefresher создаёт Refresher. Представления с другим Mode игнорируются.
func NewRefresher(period time.Duration, clk clock.Clock, log *slog.Logger, views ...Refreshable) *Refresher {
	if clk == nil {
		clk = clock.Realtime()
	}

	push := make([]Refreshable, 0, len(views))
	for _, view := range views {
		if view.Policy().Mode == ModePush {
			push = append(push, view)
		}
	}

	return &Refresher{
		views:  push,
		period: period,
		clock:  clk,
		log:    log,
	}
}

// Run обновляет представления сразу и затем каждые period, пока не отменён ctx.
// Ошибка одного цикла логируется и не останавливает цикл.
func (r *Refresher) Run(ctx context.Context) error {
	ticker := r.clock.NewTicker(r.period)
	defer ticker.Stop()

	r.log.Info("cache refresher started", slog.Duration("period", r.period), slog.Int("views", len(r.views)))

	r.refreshAll(ctx)

	for {
		select {
		case <-ctx.Done():
			r.log.Info("cache refresher stopped")
			return nil
		case <-ticker.C:
			r.refreshAll(ctx)
		}
	}
}

func (r *Refresher) refreshAll(ctx context.Context) {
	for _, view := range r.views {
		start := r.clock.Now()

		if err := view.Refresh(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}

			r.log.Error("cache refresh failed", slog.String("cache_key", view.Key()), slog.Any("error", err))
			continue
		}

		r.log.Debug("cache refreshed",
			slog.String("cache_key", view.Key()),
			slog.Duration("took", r.clock.Now().Sub(start)),
		)
	}
}
