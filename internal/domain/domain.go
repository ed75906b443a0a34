package domain

import (
	"time"
)

// Question is a single multiple-choice question. It is immutable once drawn into a session.
type Question struct {
	ID            string   `json:"id"`
	Prompt        string   `json:"prompt"`
	Options       []string `json:"options"`
	CorrectOption int      `json:"correct_option"`
	Category      string   `json:"category"`
}

// Team is the roster a player plays for.
type Team struct {
	Name     string `json:"name"`
	ColorHex string `json:"color"`
}

// Player identifies who owns a game session.
type Player struct {
	PlayerID  string
	Username  string
	AvatarRef string
	Team      *Team
}

type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusFinished   Status = "finished"
	StatusGameOver   Status = "game_over"
	StatusWalkedAway Status = "walked_away"
	StatusTimeUp     Status = "time_up"
)

// ScoreEvent is a snapshot of a player's standing, emitted by a game session and stored by the score collaborator.
type ScoreEvent struct {
	PlayerID        string    `json:"player_id"`
	Username        string    `json:"username"`
	AvatarRef       string    `json:"avatar_ref,omitempty"`
	Team            *Team     `json:"team,omitempty"`
	Score           int64     `json:"score"`
	QuestionReached int       `json:"question_reached"`
	Status          Status    `json:"status"`
	Timestamp       time.Time `json:"timestamp"`
}

// TeamName returns the event's team name or "" when the player has no team.
func (e ScoreEvent) TeamName() string {
	if e.Team == nil {
		return ""
	}
	return e.Team.Name
}

type RankTier string

const (
	RankTierFirst  RankTier = "first"
	RankTierSecond RankTier = "second"
	RankTierThird  RankTier = "third"
	RankTierOther  RankTier = "other"
)

// LeaderboardEntry is the authoritative score event of one player after deduplication, placed in a view.
type LeaderboardEntry struct {
	ScoreEvent
	Rank   int      `json:"rank"`
	Tier   RankTier `json:"tier"`
	Label  string   `json:"label"`
	Status string   `json:"standing"`
}

// TeamStat is derived from the deduplicated entries on every aggregation pass.
type TeamStat struct {
	TeamName    string `json:"team_name"`
	ColorHex    string `json:"color"`
	TotalScore  int64  `json:"total_score"`
	PlayerCount int    `json:"player_count"`
	AvgScore    int64  `json:"avg_score"`
	TopScore    int64  `json:"top_score"`
}

// Leaderboard is one filtered, ranked view over the latest fetched snapshot.
type Leaderboard struct {
	Filter    string             `json:"filter"`
	Entries   []LeaderboardEntry `json:"entries"`
	Teams     []TeamStat         `json:"teams"`
	Viewer    *LeaderboardEntry  `json:"viewer,omitempty"`
	UpdatedAt time.Time          `json:"updated_at"`
	Stale     bool               `json:"stale"`
	Error     string             `json:"error,omitempty"`
}
