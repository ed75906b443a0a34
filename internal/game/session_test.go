package game_test

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
	"github.com/victornm/millionaire/internal/timer"
)

func TestSession_Start(t *testing.T) {
	s, rec, _ := startSession(t)

	v := s.View()
	assert.Equal(t, game.StateAnswering, v.State)
	assert.Equal(t, 0, v.QuestionIndex)
	assert.Equal(t, game.QuestionsPerSession, v.TotalQuestions)
	assert.Equal(t, 60, v.SecondsLeft)
	assert.Equal(t, timer.TierCalm, v.TimerTier)
	assert.Equal(t, game.Lifelines, v.LifelinesRemaining)
	assert.Equal(t, int64(1000), v.PotentialScore)
	assert.Equal(t, int64(0), v.SecuredScore)
	require.NotNil(t, v.Question)

	scores := rec.scores()
	require.Len(t, scores, 1)
	assert.Equal(t, domain.StatusInProgress, scores[0].Status)
	assert.Equal(t, int64(0), scores[0].Score)
	assert.Equal(t, 1, scores[0].QuestionReached)
	assert.Equal(t, "alice", scores[0].Username)
	assert.Equal(t, "Red", scores[0].TeamName())
}

func TestSession_CorrectAnswerReportsSecuredPriorTier(t *testing.T) {
	s, rec, _ := startSession(t)

	require.NoError(t, s.SelectOption(0))
	ev, err := s.SubmitAnswer(context.Background())
	require.NoError(t, err)

	assert.True(t, ev.Correct)
	assert.Nil(t, ev.Result)
	assert.Equal(t, 1, s.View().QuestionIndex)

	scores := rec.scores()
	require.Len(t, scores, 2)
	last := scores[1]
	assert.Equal(t, domain.StatusInProgress, last.Status)
	assert.Equal(t, game.PrizeLadder[0], last.Score)
	assert.Equal(t, 2, last.QuestionReached)
}

func TestSession_IndexAdvancesByOne(t *testing.T) {
	s, rec, _ := startSession(t)

	for i := 0; i < game.QuestionsPerSession-1; i++ {
		require.Equal(t, i, s.View().QuestionIndex)
		answer(t, s, 0)

		v := s.View()
		require.Equal(t, i+1, v.QuestionIndex)
		require.Nil(t, v.Selected, "selection is cleared on a new question")
		require.Empty(t, v.Removed)
		require.Equal(t, 60, v.SecondsLeft, "timer restarts at the full budget")
	}

	assert.Len(t, rec.scores(), game.QuestionsPerSession, "one in_progress report per question entry")
}

func TestSession_Win(t *testing.T) {
	s, rec, _ := startSession(t)

	for i := 0; i < game.QuestionsPerSession-1; i++ {
		answer(t, s, 0)
	}

	require.NoError(t, s.SelectOption(0))
	ev, err := s.SubmitAnswer(context.Background())
	require.NoError(t, err)
	require.NotNil(t, ev.Result)

	assert.Equal(t, game.OutcomeWin, ev.Result.Outcome)
	assert.Equal(t, game.MaxPrize(), ev.Result.ScoreAwarded)
	assert.Equal(t, game.StateTerminal, s.State())

	scores := rec.scores()
	last := scores[len(scores)-1]
	assert.Equal(t, domain.StatusFinished, last.Status)
	assert.Equal(t, game.MaxPrize(), last.Score)
	assert.Equal(t, 10, last.QuestionReached)

	ended := rec.ended()
	require.Len(t, ended, 1)
	assert.Equal(t, string(game.OutcomeWin), ended[0].Outcome)
}

func TestSession_WrongAnswer(t *testing.T) {
	for _, at := range []int{0, 1, 4, 9} {
		t.Run(fmt.Sprintf("at index %d", at), func(t *testing.T) {
			s, rec, _ := startSession(t)

			for i := 0; i < at; i++ {
				answer(t, s, 0)
			}

			_, err := s.UseLifeline(game.LifelineAskAudience)
			require.NoError(t, err)

			require.NoError(t, s.SelectOption(3))
			ev, err := s.SubmitAnswer(context.Background())
			require.NoError(t, err)

			assert.False(t, ev.Correct)
			assert.Equal(t, 0, ev.CorrectOption)
			require.NotNil(t, ev.Result)
			assert.Equal(t, game.OutcomeLose, ev.Result.Outcome)
			assert.Equal(t, game.SecuredScore(at), ev.Result.ScoreAwarded)

			scores := rec.scores()
			last := scores[len(scores)-1]
			assert.Equal(t, domain.StatusGameOver, last.Status)
			assert.Equal(t, game.SecuredScore(at), last.Score)
			assert.Equal(t, at+1, last.QuestionReached)
		})
	}
}

func TestSession_SubmitWithoutSelection(t *testing.T) {
	s, rec, _ := startSession(t)

	_, err := s.SubmitAnswer(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.CodeInvalidArgument))

	assert.Equal(t, game.StateAnswering, s.State())
	assert.Len(t, rec.scores(), 1)
}

func TestSession_WalkAway(t *testing.T) {
	t.Run("rejected on the first question", func(t *testing.T) {
		s, rec, _ := startSession(t)

		_, err := s.WalkAway(context.Background())
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.CodeInvalidArgument))
		assert.Equal(t, game.StateAnswering, s.State())
		assert.Len(t, rec.scores(), 1)
	})

	t.Run("keeps the secured score", func(t *testing.T) {
		s, rec, ts := startSession(t)

		for i := 0; i < 3; i++ {
			answer(t, s, 0)
		}

		res, err := s.WalkAway(context.Background())
		require.NoError(t, err)
		assert.Equal(t, game.OutcomeWalkAway, res.Outcome)
		assert.Equal(t, game.PrizeLadder[2], res.ScoreAwarded)
		assert.Equal(t, game.StateTerminal, s.State())

		last := rec.scores()[len(rec.scores())-1]
		assert.Equal(t, domain.StatusWalkedAway, last.Status)
		assert.Equal(t, game.PrizeLadder[2], last.Score)
		assert.Equal(t, 3, last.QuestionReached)

		require.Eventually(t, ts.last().isStopped, time.Second, 5*time.Millisecond, "walking away cancels the countdown")
	})
}

func TestSession_LifelineOncePerSession(t *testing.T) {
	s, _, _ := startSession(t)

	d, err := s.UseLifeline(game.LifelinePhoneFriendA)
	require.NoError(t, err)
	require.NotNil(t, d.Answer)
	assert.Equal(t, 0, *d.Answer)

	before := s.View()
	d, err = s.UseLifeline(game.LifelinePhoneFriendA)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.CodeFailedPrecondition))
	assert.Nil(t, d)
	assert.Equal(t, before, s.View())

	answer(t, s, 0)

	_, err = s.UseLifeline(game.LifelinePhoneFriendA)
	require.Error(t, err, "consumption does not reset between questions")

	_, err = s.UseLifeline(game.LifelinePhoneFriendB)
	require.NoError(t, err)
	assert.Equal(t, []game.Lifeline{game.LifelineFiftyFifty, game.LifelineAskAudience}, s.View().LifelinesRemaining)
}

func TestSession_FiftyFifty(t *testing.T) {
	s, _, _ := startSession(t)

	d, err := s.UseLifeline(game.LifelineFiftyFifty)
	require.NoError(t, err)
	require.Len(t, d.Removed, 2)
	assert.NotContains(t, d.Removed, 0)

	v := s.View()
	assert.ElementsMatch(t, d.Removed, v.Removed)

	err = s.SelectOption(d.Removed[0])
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.CodeFailedPrecondition))
	assert.Nil(t, s.View().Selected)
}

func TestSession_FiftyFiftyClearsRemovedSelection(t *testing.T) {
	for seed := int64(0); seed < 20; seed++ {
		s, _, _ := startSession(t, withSeed(seed))

		require.NoError(t, s.SelectOption(1))
		d, err := s.UseLifeline(game.LifelineFiftyFifty)
		require.NoError(t, err)

		v := s.View()
		if contains(d.Removed, 1) {
			assert.Nil(t, v.Selected)
		} else {
			require.NotNil(t, v.Selected)
			assert.Equal(t, 1, *v.Selected)
		}
	}
}

func TestSession_SelectOutOfRange(t *testing.T) {
	s, _, _ := startSession(t)

	err := s.SelectOption(4)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.CodeInvalidArgument))
}

func TestSession_TimerTicks(t *testing.T) {
	s, _, ts := startSession(t)

	ts.last().tick()
	ts.last().tick()

	require.Eventually(t, func() bool { return s.View().SecondsLeft == 58 }, time.Second, 5*time.Millisecond)
}

func TestSession_TimeUp(t *testing.T) {
	s, rec, ts := startSession(t)

	for i := 0; i < 3; i++ {
		answer(t, s, 0)
	}

	for i := 0; i < 60; i++ {
		ts.last().tick()
	}

	require.Eventually(t, func() bool { return s.State() == game.StateTerminal }, time.Second, 5*time.Millisecond)

	v := s.View()
	require.NotNil(t, v.Result)
	assert.Equal(t, game.OutcomeTimeUp, v.Result.Outcome)
	assert.Equal(t, game.PrizeLadder[2], v.Result.ScoreAwarded)
	assert.Equal(t, 0, v.SecondsLeft)
	assert.Nil(t, v.Selected)

	scores := rec.scores()
	last := scores[len(scores)-1]
	assert.Equal(t, domain.StatusTimeUp, last.Status)
	assert.Equal(t, game.PrizeLadder[2], last.Score)
	assert.Len(t, rec.ended(), 1, "expiry fires exactly once")
}

func TestSession_TimeUpOnFirstQuestion(t *testing.T) {
	s, _, ts := startSession(t, withBudget(3))

	for i := 0; i < 3; i++ {
		ts.last().tick()
	}

	require.Eventually(t, func() bool { return s.State() == game.StateTerminal }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int64(0), s.View().Result.ScoreAwarded)
}

func TestSession_LockedSuppressesReentry(t *testing.T) {
	s, rec, ts := startSession(t, withRevealDelay(200*time.Millisecond))

	require.NoError(t, s.SelectOption(0))

	done := make(chan *game.Evaluation, 1)
	go func() {
		ev, err := s.SubmitAnswer(context.Background())
		assert.NoError(t, err)
		done <- ev
	}()

	require.Eventually(t, func() bool { return s.State() == game.StateLocked }, time.Second, time.Millisecond)
	require.Eventually(t, ts.last().isStopped, time.Second, time.Millisecond, "locking stops the countdown")

	_, err := s.SubmitAnswer(context.Background())
	assert.True(t, errors.Is(err, errors.CodeFailedPrecondition))

	_, err = s.UseLifeline(game.LifelineFiftyFifty)
	assert.True(t, errors.Is(err, errors.CodeFailedPrecondition))

	err = s.SelectOption(1)
	assert.True(t, errors.Is(err, errors.CodeFailedPrecondition))

	_, err = s.WalkAway(context.Background())
	assert.True(t, errors.Is(err, errors.CodeFailedPrecondition))

	select {
	case ev := <-done:
		assert.True(t, ev.Correct)
	case <-time.After(2 * time.Second):
		t.Fatal("submission should resolve after the reveal delay")
	}

	assert.Len(t, rec.scores(), 2)
	assert.Contains(t, s.View().LifelinesRemaining, game.LifelineFiftyFifty)
}

func TestSession_Close(t *testing.T) {
	s, rec, ts := startSession(t)

	s.Close()
	s.Close()

	require.Eventually(t, ts.last().isStopped, time.Second, 5*time.Millisecond)

	err := s.SelectOption(0)
	assert.True(t, errors.Is(err, errors.CodeFailedPrecondition))

	_, err = s.UseLifeline(game.LifelineAskAudience)
	assert.True(t, errors.Is(err, errors.CodeFailedPrecondition))

	assert.Len(t, rec.scores(), 1)
}

func TestSession_CloseDuringReveal(t *testing.T) {
	s, rec, _ := startSession(t, withRevealDelay(100*time.Millisecond))

	require.NoError(t, s.SelectOption(0))

	errc := make(chan error, 1)
	go func() {
		_, err := s.SubmitAnswer(context.Background())
		errc <- err
	}()

	require.Eventually(t, func() bool { return s.State() == game.StateLocked }, time.Second, time.Millisecond)
	s.Close()

	err := <-errc
	assert.True(t, errors.Is(err, errors.CodeFailedPrecondition))
	assert.Len(t, rec.scores(), 1, "no report after teardown")
}

func TestStart_PoolTooSmall(t *testing.T) {
	p, err := question.New(makeQuestions(5))
	require.NoError(t, err)

	_, err = game.Start(context.Background(), game.Config{
		Pool:      p,
		Rand:      rand.New(rand.NewSource(1)),
		Publisher: &recorder{},
	})
	require.Error(t, err)
}

func answer(t *testing.T, s *game.Session, option int) {
	t.Helper()

	require.NoError(t, s.SelectOption(option))
	_, err := s.SubmitAnswer(context.Background())
	require.NoError(t, err)
}

func contains(xs []int, x int) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}

// makeQuestions builds n questions whose correct answer is always option 0.
func makeQuestions(n int) []domain.Question {
	qs := make([]domain.Question, 0, n)
	for i := 0; i < n; i++ {
		qs = append(qs, domain.Question{
			ID:            fmt.Sprintf("q%02d", i),
			Prompt:        fmt.Sprintf("question %d", i),
			Options:       []string{"right", "wrong 1", "wrong 2", "wrong 3"},
			CorrectOption: 0,
			Category:      "test",
		})
	}
	return qs
}

type recorder struct {
	mu     sync.Mutex
	events []event.Event
}

func (r *recorder) Publish(_ context.Context, e event.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) scores() []domain.ScoreEvent {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []domain.ScoreEvent
	for _, e := range r.events {
		if sr, ok := e.(domain.EventScoreReported); ok {
			out = append(out, sr.Score)
		}
	}
	return out
}

func (r *recorder) ended() []domain.EventSessionEnded {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []domain.EventSessionEnded
	for _, e := range r.events {
		if se, ok := e.(domain.EventSessionEnded); ok {
			out = append(out, se)
		}
	}
	return out
}

type fakeTicker struct {
	ch      chan time.Time
	mu      sync.Mutex
	stopped bool
}

func (f *fakeTicker) C() <-chan time.Time { return f.ch }

func (f *fakeTicker) Stop() {
	f.mu.Lock()
	f.stopped = true
	f.mu.Unlock()
}

func (f *fakeTicker) isStopped() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopped
}

func (f *fakeTicker) tick() {
	f.ch <- time.Now()
}

type tickers struct {
	mu  sync.Mutex
	all []*fakeTicker
}

func (ts *tickers) newTicker(time.Duration) timer.Ticker {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	ft := &fakeTicker{ch: make(chan time.Time)}
	ts.all = append(ts.all, ft)
	return ft
}

func (ts *tickers) last() *fakeTicker {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.all[len(ts.all)-1]
}

type options func(c *game.Config)

func withSeed(seed int64) options {
	return func(c *game.Config) {
		c.Rand = rand.New(rand.NewSource(seed))
	}
}

func withRevealDelay(d time.Duration) options {
	return func(c *game.Config) {
		c.RevealDelay = d
	}
}

func withBudget(units int) options {
	return func(c *game.Config) {
		c.TimeBudget = units
	}
}

func startSession(t *testing.T, opts ...options) (*game.Session, *recorder, *tickers) {
	t.Helper()

	p, err := question.New(makeQuestions(15))
	require.NoError(t, err)

	rec, ts := &recorder{}, &tickers{}
	c := game.Config{
		SessionID: "s1",
		Player: domain.Player{
			PlayerID: "p1",
			Username: "alice",
			Team:     &domain.Team{Name: "Red", ColorHex: "#FF0000"},
		},
		Pool:          p,
		Rand:          rand.New(rand.NewSource(42)),
		Publisher:     rec,
		NewTickerFunc: ts.newTicker,
	}

	for _, opt := range opts {
		opt(&c)
	}

	s, err := game.Start(context.Background(), c)
	require.NoError(t, err)
	t.Cleanup(s.Close)

	return s, rec, ts
}
