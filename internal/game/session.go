package game

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/victornm/millionaire/internal/domain"
	"github.com/victornm/millionaire/internal/errors"
	"github.com/victornm/millionaire/internal/event"
	"github.com/victornm/millionaire/internal/question"
	"github.com/victornm/millionaire/internal/timer"
)

const (
	defaultTimeBudget = 60
	defaultTimeUnit   = time.Second
)

type State string

const (
	StateLoading   State = "loading"
	StateAnswering State = "answering"
	StateLocked    State = "locked"
	StateTerminal  State = "terminal"
)

type Outcome string

const (
	OutcomeWin      Outcome = "win"
	OutcomeLose     Outcome = "lose"
	OutcomeWalkAway Outcome = "walk_away"
	OutcomeTimeUp   Outcome = "time_up"
)

// Result is the terminal state of a session.
type Result struct {
	Outcome         Outcome `json:"outcome"`
	ScoreAwarded    int64   `json:"score_awarded"`
	QuestionReached int     `json:"question_reached"`
	Headline        string  `json:"headline"`
}

// Evaluation is returned by SubmitAnswer once the locked answer has been revealed.
type Evaluation struct {
	QuestionIndex int     `json:"question_index"`
	Selected      int     `json:"selected"`
	CorrectOption int     `json:"correct_option"`
	Correct       bool    `json:"correct"`
	Result        *Result `json:"result,omitempty"`
}

type Publisher interface {
	Publish(ctx context.Context, e event.Event)
}

type Config struct {
	SessionID string
	Player    domain.Player
	Pool      *question.Pool
	// Rand drives question shuffling and lifeline resolution.
	Rand      *rand.Rand
	Publisher Publisher

	// TimeBudget is the number of time units per question.
	TimeBudget    int
	TimeUnit      time.Duration
	NewTickerFunc timer.NewTickerFunc
	// RevealDelay paces the evaluation after an answer is locked.
	RevealDelay time.Duration
	Now         func() time.Time
}

// Session is a single player's game. All methods are safe for concurrent use; the countdown
// runs in its own goroutine and is guarded by a generation number so stale ticks are ignored.
type Session struct {
	id     string
	player domain.Player
	rnd    *rand.Rand
	pub    Publisher

	budget    int
	unit      time.Duration
	newTicker timer.NewTickerFunc
	delay     time.Duration
	now       func() time.Time

	mu          sync.Mutex
	questions   []domain.Question
	index       int
	selected    *int
	removed     map[int]struct{}
	lifelines   map[Lifeline]bool
	locked      bool
	secondsLeft int
	result      *Result
	countdown   *timer.Countdown
	gen         uint64
	closed      bool
}

// Start draws the questions, starts the countdown for the first one and reports the opening score.
func Start(ctx context.Context, c Config) (*Session, error) {
	if c.Pool == nil || c.Rand == nil || c.Publisher == nil {
		return nil, fmt.Errorf("game: pool, rand and publisher are required")
	}
	if c.TimeBudget <= 0 {
		c.TimeBudget = defaultTimeBudget
	}
	if c.TimeUnit <= 0 {
		c.TimeUnit = defaultTimeUnit
	}
	if c.NewTickerFunc == nil {
		c.NewTickerFunc = timer.NewTicker
	}
	if c.Now == nil {
		c.Now = time.Now
	}

	s := &Session{
		id:        c.SessionID,
		player:    c.Player,
		rnd:       c.Rand,
		pub:       c.Publisher,
		budget:    c.TimeBudget,
		unit:      c.TimeUnit,
		newTicker: c.NewTickerFunc,
		delay:     c.RevealDelay,
		now:       c.Now,
	}

	qs, err := c.Pool.Draw(s.rnd, QuestionsPerSession)
	if err != nil {
		return nil, fmt.Errorf("game: draw questions: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.questions = qs
	s.index = 0
	s.selected = nil
	s.removed = make(map[int]struct{})
	s.lifelines = make(map[Lifeline]bool, len(Lifelines))
	for _, l := range Lifelines {
		s.lifelines[l] = true
	}

	s.startTimerLocked()
	s.reportLocked(ctx, domain.StatusInProgress, SecuredScore(0), 1)

	return s, nil
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) Player() domain.Player {
	return s.player
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.stateLocked()
}

func (s *Session) stateLocked() State {
	switch {
	case s.result != nil:
		return StateTerminal
	case s.locked:
		return StateLocked
	case len(s.questions) == 0:
		return StateLoading
	default:
		return StateAnswering
	}
}

func (s *Session) checkAnsweringLocked(op string) error {
	if s.closed {
		return errors.IllegalState("cannot %s: session is closed", op)
	}
	if st := s.stateLocked(); st != StateAnswering {
		return errors.IllegalState("cannot %s: session is %s", op, st)
	}
	return nil
}

// SelectOption marks an option as the player's current choice.
func (s *Session) SelectOption(option int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkAnsweringLocked("select an option"); err != nil {
		return err
	}

	q := s.questions[s.index]
	if option < 0 || option >= len(q.Options) {
		return errors.Validation("option %d is out of range", option)
	}
	if _, ok := s.removed[option]; ok {
		return errors.IllegalState("option %d has been removed", option)
	}

	s.selected = &option
	return nil
}

// SubmitAnswer locks the selected option, stops the countdown and, after the reveal delay, evaluates it.
// Once locked the answer is final: a cancelled ctx only cuts the delay short.
func (s *Session) SubmitAnswer(ctx context.Context) (*Evaluation, error) {
	s.mu.Lock()
	if err := s.checkAnsweringLocked("submit"); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if s.selected == nil {
		s.mu.Unlock()
		return nil, errors.Validation("no answer selected")
	}

	s.locked = true
	s.stopTimerLocked()
	s.mu.Unlock()

	if s.delay > 0 {
		t := time.NewTimer(s.delay)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, errors.IllegalState("session closed before the answer was revealed")
	}

	return s.evaluateLocked(ctx), nil
}

func (s *Session) evaluateLocked(ctx context.Context) *Evaluation {
	q := s.questions[s.index]
	sel := *s.selected

	ev := &Evaluation{
		QuestionIndex: s.index,
		Selected:      sel,
		CorrectOption: q.CorrectOption,
		Correct:       sel == q.CorrectOption,
	}

	last := len(s.questions) - 1
	switch {
	case ev.Correct && s.index == last:
		ev.Result = s.finishLocked(ctx, OutcomeWin, PrizeLadder[last], len(s.questions), domain.StatusFinished)
	case ev.Correct:
		s.index++
		s.selected = nil
		s.removed = make(map[int]struct{})
		s.locked = false
		s.startTimerLocked()
		s.reportLocked(ctx, domain.StatusInProgress, SecuredScore(s.index), s.index+1)
	default:
		ev.Result = s.finishLocked(ctx, OutcomeLose, SecuredScore(s.index), s.index+1, domain.StatusGameOver)
	}

	return ev
}

// UseLifeline consumes a lifeline and returns what it discloses for the current question.
func (s *Session) UseLifeline(l Lifeline) (*Disclosure, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkAnsweringLocked("use a lifeline"); err != nil {
		return nil, err
	}

	available, known := s.lifelines[l]
	if !known {
		return nil, errors.Validation("unknown lifeline %q", l)
	}
	if !available {
		return nil, errors.IllegalState("lifeline %s has already been used", l)
	}

	d, err := Resolve(s.questions[s.index], l, s.rnd)
	if err != nil {
		return nil, errors.Validation("%v", err)
	}
	s.lifelines[l] = false

	if len(d.Removed) > 0 {
		s.removed = make(map[int]struct{}, len(d.Removed))
		for _, i := range d.Removed {
			s.removed[i] = struct{}{}
		}
		if s.selected != nil {
			if _, gone := s.removed[*s.selected]; gone {
				s.selected = nil
			}
		}
	}

	return &d, nil
}

// WalkAway ends the session with the secured score. The first question must be attempted.
func (s *Session) WalkAway(ctx context.Context) (*Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkAnsweringLocked("walk away"); err != nil {
		return nil, err
	}
	if s.index == 0 {
		return nil, errors.Validation("cannot walk away before answering the first question")
	}

	return s.finishLocked(ctx, OutcomeWalkAway, SecuredScore(s.index), s.index, domain.StatusWalkedAway), nil
}

// Close tears the session down. No state changes or reports happen afterwards.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	s.stopTimerLocked()
}

func (s *Session) finishLocked(ctx context.Context, o Outcome, score int64, reached int, status domain.Status) *Result {
	s.stopTimerLocked()
	s.locked = true
	s.result = &Result{
		Outcome:         o,
		ScoreAwarded:    score,
		QuestionReached: reached,
		Headline:        Headline(score),
	}

	s.reportLocked(ctx, status, score, reached)
	s.pub.Publish(ctx, domain.EventSessionEnded{
		SessionID:    s.id,
		PlayerID:     s.player.PlayerID,
		Outcome:      string(o),
		ScoreAwarded: score,
	})

	r := *s.result
	return &r
}

func (s *Session) reportLocked(ctx context.Context, status domain.Status, score int64, reached int) {
	s.pub.Publish(ctx, domain.EventScoreReported{
		Score: domain.ScoreEvent{
			PlayerID:        s.player.PlayerID,
			Username:        s.player.Username,
			AvatarRef:       s.player.AvatarRef,
			Team:            s.player.Team,
			Score:           score,
			QuestionReached: reached,
			Status:          status,
			Timestamp:       s.now(),
		},
	})
}

func (s *Session) startTimerLocked() {
	s.stopTimerLocked()

	gen := s.gen
	s.secondsLeft = s.budget
	s.countdown = timer.Start(timer.Config{
		Units:         s.budget,
		Unit:          s.unit,
		NewTickerFunc: s.newTicker,
		OnTick:        func(left int) { s.onTick(gen, left) },
		OnExpire:      func() { s.onExpire(gen) },
	})
}

func (s *Session) stopTimerLocked() {
	if s.countdown != nil {
		s.countdown.Stop()
		s.countdown = nil
	}
	s.gen++
}

func (s *Session) onTick(gen uint64, left int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || gen != s.gen || s.locked {
		return
	}
	s.secondsLeft = left
}

func (s *Session) onExpire(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || gen != s.gen || s.locked {
		return
	}

	s.secondsLeft = 0
	s.selected = nil
	s.finishLocked(context.Background(), OutcomeTimeUp, SecuredScore(s.index), s.index+1, domain.StatusTimeUp)
}

// QuestionView is a question without its answer.
type QuestionView struct {
	ID       string   `json:"id"`
	Prompt   string   `json:"prompt"`
	Options  []string `json:"options"`
	Category string   `json:"category"`
}

// View is a read-only snapshot of the session for display.
type View struct {
	SessionID          string        `json:"session_id"`
	PlayerID           string        `json:"player_id"`
	State              State         `json:"state"`
	QuestionIndex      int           `json:"question_index"`
	TotalQuestions     int           `json:"total_questions"`
	Question           *QuestionView `json:"question,omitempty"`
	PotentialScore     int64         `json:"potential_score"`
	SecuredScore       int64         `json:"secured_score"`
	SecondsLeft        int           `json:"seconds_left"`
	TimerTier          timer.Tier    `json:"timer_tier"`
	LifelinesRemaining []Lifeline    `json:"lifelines_remaining"`
	Removed            []int         `json:"removed"`
	Selected           *int          `json:"selected,omitempty"`
	Result             *Result       `json:"result,omitempty"`
}

func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := View{
		SessionID:      s.id,
		PlayerID:       s.player.PlayerID,
		State:          s.stateLocked(),
		QuestionIndex:  s.index,
		TotalQuestions: len(s.questions),
		PotentialScore: PotentialScore(s.index),
		SecuredScore:   SecuredScore(s.index),
		SecondsLeft:    s.secondsLeft,
		TimerTier:      timer.TierOf(s.secondsLeft),
		Removed:        make([]int, 0, len(s.removed)),
	}

	if s.index < len(s.questions) {
		q := s.questions[s.index]
		v.Question = &QuestionView{
			ID:       q.ID,
			Prompt:   q.Prompt,
			Options:  append([]string(nil), q.Options...),
			Category: q.Category,
		}
	}

	for _, l := range Lifelines {
		if s.lifelines[l] {
			v.LifelinesRemaining = append(v.LifelinesRemaining, l)
		}
	}

	for i := range s.removed {
		v.Removed = append(v.Removed, i)
	}
	sort.Ints(v.Removed)

	if s.selected != nil {
		sel := *s.selected
		v.Selected = &sel
	}

	if s.result != nil {
		r := *s.result
		v.Result = &r
	}

	return v
}
