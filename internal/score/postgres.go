package score

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/victornm/millionaire/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS score_events (
	id               BIGSERIAL PRIMARY KEY,
	player_id        TEXT        NOT NULL,
	username         TEXT        NOT NULL,
	avatar_ref       TEXT        NOT NULL DEFAULT '',
	team_name        TEXT,
	team_color       TEXT,
	score            BIGINT      NOT NULL,
	question_reached INT         NOT NULL,
	status           TEXT        NOT NULL,
	create_time      TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS score_events_best_idx ON score_events (username, score DESC, create_time DESC);
CREATE INDEX IF NOT EXISTS score_events_latest_idx ON score_events (username, create_time DESC);`

type PostgresConfig struct {
	DB *pgxpool.Pool
}

// PostgresStore appends every score event to the score_events table.
type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(c PostgresConfig) *PostgresStore {
	return &PostgresStore{
		db: c.DB,
	}
}

// Migrate creates the table if it does not exist yet.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate score_events: %w", err)
	}
	return nil
}

func (s *PostgresStore) Submit(ctx context.Context, e domain.ScoreEvent) error {
	const stmt = `
INSERT INTO score_events (player_id, username, avatar_ref, team_name, team_color, score, question_reached, status, create_time)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9);`

	var name, color *string
	if e.Team != nil {
		name, color = &e.Team.Name, &e.Team.ColorHex
	}

	_, err := s.db.Exec(ctx, stmt, e.PlayerID, e.Username, e.AvatarRef, name, color, e.Score, e.QuestionReached, string(e.Status), e.Timestamp)
	if err != nil {
		return fmt.Errorf("insert score: %w", err)
	}

	return nil
}

const selectColumns = `player_id, username, avatar_ref, team_name, team_color, score, question_reached, status, create_time`

// List returns the best event of every player: highest score, most recent among equal scores.
func (s *PostgresStore) List(ctx context.Context) ([]domain.ScoreEvent, error) {
	return s.query(ctx, `
SELECT DISTINCT ON (username) `+selectColumns+`
FROM score_events
ORDER BY username, score DESC, create_time DESC, id DESC;`)
}

// Latest returns the most recent event of every player.
func (s *PostgresStore) Latest(ctx context.Context) ([]domain.ScoreEvent, error) {
	return s.query(ctx, `
SELECT DISTINCT ON (username) `+selectColumns+`
FROM score_events
ORDER BY username, create_time DESC, id DESC;`)
}

func (s *PostgresStore) query(ctx context.Context, stmt string) ([]domain.ScoreEvent, error) {
	rows, err := s.db.Query(ctx, stmt)
	if err != nil {
		return nil, fmt.Errorf("list scores: %w", err)
	}

	events, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (domain.ScoreEvent, error) {
		var (
			e           domain.ScoreEvent
			name, color *string
			status      string
		)
		if err := r.Scan(&e.PlayerID, &e.Username, &e.AvatarRef, &name, &color, &e.Score, &e.QuestionReached, &status, &e.Timestamp); err != nil {
			return domain.ScoreEvent{}, err
		}
		e.Status = domain.Status(status)
		if name != nil {
			e.Team = &domain.Team{Name: *name}
			if color != nil {
				e.Team.ColorHex = *color
			}
		}
		return e, nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan scores: %w", err)
	}

	return events, nil
}
