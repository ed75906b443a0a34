package session_test

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/millionaire/internal/domain"
	"github.com/victornm/millionaire/internal/errors"
	"github.com/victornm/millionaire/internal/event"
	"github.com/victornm/millionaire/internal/game"
	"github.com/victornm/millionaire/internal/question"
	"github.com/victornm/millionaire/internal/session"
	"github.com/victornm/millionaire/internal/timer"
)

func TestService_StartSession(t *testing.T) {
	eb := event.NewBus()

	var (
		mu     sync.Mutex
		scores []domain.ScoreEvent
	)
	eb.Subscribe(domain.EventNameScoreReported, func(ctx context.Context, e event.Event) error {
		mu.Lock()
		scores = append(scores, e.(domain.EventScoreReported).Score)
		mu.Unlock()
		return nil
	})

	s := makeService(t, eb)

	gs, err := s.StartSession(context.Background(), session.StartSessionRequest{
		Player: domain.Player{PlayerID: "p1", Username: "alice"},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, gs.ID())
	assert.Equal(t, game.StateAnswering, gs.State())

	got, err := s.GetSession(context.Background(), session.GetSessionRequest{PlayerID: "p1"})
	require.NoError(t, err)
	assert.Same(t, gs, got)

	eb.Stop()
	require.Len(t, scores, 1)
	assert.Equal(t, "alice", scores[0].Username)
}

func TestService_StartSessionReplacesPrevious(t *testing.T) {
	s := makeService(t, event.NewBus())

	first, err := s.StartSession(context.Background(), session.StartSessionRequest{
		Player: domain.Player{PlayerID: "p1", Username: "alice"},
	})
	require.NoError(t, err)

	second, err := s.StartSession(context.Background(), session.StartSessionRequest{
		Player: domain.Player{PlayerID: "p1", Username: "alice"},
	})
	require.NoError(t, err)
	assert.NotEqual(t, first.ID(), second.ID())

	err = first.SelectOption(0)
	assert.True(t, errors.Is(err, errors.CodeFailedPrecondition), "previous session is torn down")
	assert.NoError(t, second.SelectOption(0))
}

func TestService_StartSessionValidation(t *testing.T) {
	s := makeService(t, event.NewBus())

	tests := map[string]domain.Player{
		"missing player id": {Username: "alice"},
		"missing username":  {PlayerID: "p1"},
	}

	for name, p := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := s.StartSession(context.Background(), session.StartSessionRequest{Player: p})
			assert.True(t, errors.Is(err, errors.CodeInvalidArgument))
		})
	}
}

func TestService_EndSession(t *testing.T) {
	s := makeService(t, event.NewBus())

	gs, err := s.StartSession(context.Background(), session.StartSessionRequest{
		Player: domain.Player{PlayerID: "p1", Username: "alice"},
	})
	require.NoError(t, err)

	require.NoError(t, s.EndSession(context.Background(), session.EndSessionRequest{PlayerID: "p1"}))

	_, err = s.GetSession(context.Background(), session.GetSessionRequest{PlayerID: "p1"})
	assert.True(t, errors.Is(err, errors.CodeNotFound))

	err = s.EndSession(context.Background(), session.EndSessionRequest{PlayerID: "p1"})
	assert.True(t, errors.Is(err, errors.CodeNotFound))

	_, err = gs.UseLifeline(game.LifelineAskAudience)
	assert.True(t, errors.Is(err, errors.CodeFailedPrecondition))
}

type idleTicker struct{ ch chan time.Time }

func (i idleTicker) C() <-chan time.Time { return i.ch }
func (idleTicker) Stop()                 {}

func makeService(t *testing.T, eb *event.Bus) *session.Service {
	t.Helper()

	qs := make([]domain.Question, 0, 12)
	for i := 0; i < 12; i++ {
		qs = append(qs, domain.Question{
			ID:      fmt.Sprintf("q%d", i),
			Options: []string{"a", "b", "c", "d"},
		})
	}
	p, err := question.New(qs)
	require.NoError(t, err)

	s := session.NewService(session.Config{
		EventBus:  eb,
		Questions: p,
		NewTickerFunc: func(time.Duration) timer.Ticker {
			return idleTicker{ch: make(chan time.Time)}
		},
		NewRand: func() (*rand.Rand, error) {
			return rand.New(rand.NewSource(1)), nil
		},
	})
	t.Cleanup(s.Shutdown)

	return s
}
