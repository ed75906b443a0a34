package session

import (
	"context"
	crand "crypto/rand"
	"encoding/binary"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/victornm/millionaire/internal/domain"
	"github.com/victornm/millionaire/internal/errors"
	"github.com/victornm/millionaire/internal/event"
	"github.com/victornm/millionaire/internal/game"
	"github.com/victornm/millionaire/internal/question"
	"github.com/victornm/millionaire/internal/timer"
)

type Config struct {
	EventBus  *event.Bus
	Questions *question.Pool

	TimeBudget    int
	TimeUnit      time.Duration
	RevealDelay   time.Duration
	NewTickerFunc timer.NewTickerFunc
	// NewRand seeds the PRNG of each session. Defaults to a crypto/rand seed.
	NewRand func() (*rand.Rand, error)
}

// Service keeps the active game of every player. A player owns at most one session at a time.
type Service struct {
	eb        *event.Bus
	questions *question.Pool

	budget    int
	unit      time.Duration
	delay     time.Duration
	newTicker timer.NewTickerFunc
	newRand   func() (*rand.Rand, error)

	mu       sync.Mutex
	sessions map[string]*game.Session
}

func NewService(c Config) *Service {
	s := &Service{
		eb:        c.EventBus,
		questions: c.Questions,
		budget:    c.TimeBudget,
		unit:      c.TimeUnit,
		delay:     c.RevealDelay,
		newTicker: c.NewTickerFunc,
		newRand:   c.NewRand,
		sessions:  make(map[string]*game.Session),
	}

	if s.newRand == nil {
		s.newRand = seededRand
	}

	return s
}

// StartSessionRequest represents a request to start a new game.
type StartSessionRequest struct {
	Player domain.Player
}

// StartSession starts a fresh game for the player, tearing down the previous one if any.
func (s *Service) StartSession(ctx context.Context, req StartSessionRequest) (*game.Session, error) {
	if req.Player.PlayerID == "" {
		return nil, errors.Validation("player id is required")
	}
	if req.Player.Username == "" {
		return nil, errors.Validation("username is required")
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate session ID: %w", err)
	}

	r, err := s.newRand()
	if err != nil {
		return nil, fmt.Errorf("seed session: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.sessions[req.Player.PlayerID]; ok {
		prev.Close()
		delete(s.sessions, req.Player.PlayerID)
	}

	gs, err := game.Start(ctx, game.Config{
		SessionID:     id.String(),
		Player:        req.Player,
		Pool:          s.questions,
		Rand:          r,
		Publisher:     s.eb,
		TimeBudget:    s.budget,
		TimeUnit:      s.unit,
		NewTickerFunc: s.newTicker,
		RevealDelay:   s.delay,
	})
	if err != nil {
		return nil, err
	}

	s.sessions[req.Player.PlayerID] = gs
	slog.InfoContext(ctx, "session: started", "session_id", gs.ID(), "player_id", req.Player.PlayerID)

	return gs, nil
}

type GetSessionRequest struct {
	PlayerID string
}

func (s *Service) GetSession(_ context.Context, req GetSessionRequest) (*game.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	gs, ok := s.sessions[req.PlayerID]
	if !ok {
		return nil, errors.New(errors.CodeNotFound, errors.WithMessagef("no active game: player=%s", req.PlayerID))
	}

	return gs, nil
}

type EndSessionRequest struct {
	PlayerID string
}

// EndSession tears the player's session down.
func (s *Service) EndSession(ctx context.Context, req EndSessionRequest) error {
	s.mu.Lock()
	gs, ok := s.sessions[req.PlayerID]
	delete(s.sessions, req.PlayerID)
	s.mu.Unlock()

	if !ok {
		return errors.New(errors.CodeNotFound, errors.WithMessagef("no active game: player=%s", req.PlayerID))
	}

	gs.Close()
	slog.InfoContext(ctx, "session: ended", "session_id", gs.ID(), "player_id", req.PlayerID)

	return nil
}

// Shutdown closes every active session.
func (s *Service) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, gs := range s.sessions {
		gs.Close()
		delete(s.sessions, id)
	}
}

func seededRand() (*rand.Rand, error) {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		return nil, fmt.Errorf("read random seed: %w", err)
	}

	return rand.New(rand.NewSource(int64(binary.LittleEndian.Uint64(b[:])))), nil
}
