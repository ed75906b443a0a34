package telemetry

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/victornm/millionaire/internal/domain"
	"github.com/victornm/millionaire/internal/event"
)

var (
	ScoreEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "millionaire",
		Name:      "score_events_total",
		Help:      "Score events submitted to the score store, by status and result.",
	}, []string{"status", "result"})

	SessionOutcomesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "millionaire",
		Name:      "session_outcomes_total",
		Help:      "Finished game sessions by outcome.",
	}, []string{"outcome"})

	SessionsStartedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "millionaire",
		Name:      "sessions_started_total",
		Help:      "Game sessions started.",
	})

	LeaderboardRefreshTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "millionaire",
		Name:      "leaderboard_refresh_total",
		Help:      "Leaderboard snapshot fetches by result.",
	}, []string{"result"})
)

// ObserveGames counts session starts and outcomes from the event bus.
func ObserveGames(eb *event.Bus) {
	eb.Subscribe(domain.EventNameScoreReported, func(_ context.Context, e event.Event) error {
		sc := e.(domain.EventScoreReported).Score
		if sc.Status == domain.StatusInProgress && sc.QuestionReached == 1 {
			SessionsStartedTotal.Inc()
		}
		return nil
	})

	eb.Subscribe(domain.EventNameSessionEnded, func(_ context.Context, e event.Event) error {
		SessionOutcomesTotal.WithLabelValues(e.(domain.EventSessionEnded).Outcome).Inc()
		return nil
	})
}
