package leaderboard

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/victornm/millionaire/internal/domain"
	"github.com/victornm/millionaire/internal/errors"
	"github.com/victornm/millionaire/internal/telemetry"
)

type Lister interface {
	List(ctx context.Context) ([]domain.ScoreEvent, error)
}

type Config struct {
	Store  Lister
	Policy Policy
	// Fallback is served when the very first fetch fails.
	Fallback []domain.ScoreEvent
	Now      func() time.Time
}

type Service struct {
	store  Lister
	policy Policy
	now    func() time.Time
	sf     singleflight.Group

	mu        sync.RWMutex
	snapshot  []domain.ScoreEvent
	fallback  []domain.ScoreEvent
	loaded    bool
	updatedAt time.Time
	lastErr   error
}

func NewService(c Config) *Service {
	if c.Policy == "" {
		c.Policy = PolicyHighestScore
	}
	if c.Now == nil {
		c.Now = time.Now
	}

	return &Service{
		store:    c.Store,
		policy:   c.Policy,
		now:      c.Now,
		fallback: Dedup(c.Fallback, c.Policy),
	}
}

// Refresh fetches a new snapshot. Concurrent callers share one fetch.
// On failure the previous snapshot is kept, or the fallback if nothing was ever fetched.
func (s *Service) Refresh(ctx context.Context) error {
	_, err, _ := s.sf.Do("refresh", func() (any, error) {
		return nil, s.refresh(ctx)
	})
	return err
}

func (s *Service) refresh(ctx context.Context) error {
	records, err := s.store.List(ctx)
	if err != nil {
		telemetry.LeaderboardRefreshTotal.WithLabelValues("error").Inc()
		slog.Warn("leaderboard: refresh failed", "error", err)

		err = errors.Network(err, "fetch leaderboard")

		s.mu.Lock()
		s.lastErr = err
		if !s.loaded && s.snapshot == nil && len(s.fallback) > 0 {
			s.snapshot = s.fallback
		}
		s.mu.Unlock()
		return err
	}

	telemetry.LeaderboardRefreshTotal.WithLabelValues("ok").Inc()
	entries := Dedup(records, s.policy)

	s.mu.Lock()
	s.snapshot = entries
	s.loaded = true
	s.updatedAt = s.now()
	s.lastErr = nil
	s.mu.Unlock()

	slog.Debug("leaderboard: refreshed", "records", len(records), "players", len(entries))
	return nil
}

// Loaded reports whether at least one fetch succeeded.
func (s *Service) Loaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loaded
}

type GetLeaderboardRequest struct {
	Filter     Filter
	Viewer     string
	ViewerTeam string
}

// GetLeaderboard builds a view over the latest snapshot, fetching first if nothing was fetched yet.
// A failed fetch does not fail the call: the view is marked stale and carries the error message.
func (s *Service) GetLeaderboard(ctx context.Context, req GetLeaderboardRequest) (*domain.Leaderboard, error) {
	if !s.Loaded() {
		_ = s.Refresh(ctx)
	}

	s.mu.RLock()
	snapshot, updatedAt, lastErr := s.snapshot, s.updatedAt, s.lastErr
	s.mu.RUnlock()

	lb, err := Build(snapshot, Query{
		Filter:     req.Filter,
		Viewer:     req.Viewer,
		ViewerTeam: req.ViewerTeam,
	})
	if err != nil {
		return nil, err
	}

	lb.UpdatedAt = updatedAt
	if lastErr != nil {
		lb.Stale = true
		lb.Error = errors.Convert(lastErr).Message
	}

	return &lb, nil
}

// ListerFunc adapts a function to Lister.
type ListerFunc func(ctx context.Context) ([]domain.ScoreEvent, error)

func (f ListerFunc) List(ctx context.Context) ([]domain.ScoreEvent, error) {
	return f(ctx)
}
