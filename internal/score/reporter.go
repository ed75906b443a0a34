package score

import (
	"context"
	"log/slog"

	"github.com/victornm/millionaire/internal/domain"
	"github.com/victornm/millionaire/internal/errors"
	"github.com/victornm/millionaire/internal/event"
	"github.com/victornm/millionaire/internal/telemetry"
)

// Store is the external collaborator that keeps the score history and serves it back for aggregation.
type Store interface {
	Submit(ctx context.Context, e domain.ScoreEvent) error
	List(ctx context.Context) ([]domain.ScoreEvent, error)
}

type Config struct {
	EventBus *event.Bus
	Store    Store
}

// Reporter forwards score events from game sessions to the store. Delivery is at most once:
// failures are logged and counted, never retried, and never block gameplay.
type Reporter struct {
	store Store
}

func NewReporter(c Config) *Reporter {
	r := &Reporter{
		store: c.Store,
	}

	c.EventBus.Subscribe(domain.EventNameScoreReported, func(ctx context.Context, e event.Event) error {
		return r.Report(ctx, e.(domain.EventScoreReported))
	})

	return r
}

// Report submits a single score event.
func (r *Reporter) Report(ctx context.Context, e domain.EventScoreReported) error {
	sc := e.Score

	if err := r.store.Submit(ctx, sc); err != nil {
		telemetry.ScoreEventsTotal.WithLabelValues(string(sc.Status), "failed").Inc()
		return errors.Network(err, "submit score failed: player=%s status=%s", sc.PlayerID, sc.Status)
	}

	telemetry.ScoreEventsTotal.WithLabelValues(string(sc.Status), "ok").Inc()
	slog.DebugContext(ctx, "score: reported",
		"player_id", sc.PlayerID,
		"status", sc.Status,
		"score", sc.Score,
		"question_reached", sc.QuestionReached,
	)

	return nil
}
