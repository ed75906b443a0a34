package domain

const (
	EventNameScoreReported = "score.reported"
	EventNameSessionEnded  = "session.ended"
)

// EventScoreReported is published once per session transition that changes the secured score.
type EventScoreReported struct {
	Score ScoreEvent
}

func (EventScoreReported) Name() string { return EventNameScoreReported }

// EventSessionEnded is published when a session reaches a terminal outcome.
type EventSessionEnded struct {
	SessionID    string
	PlayerID     string
	Outcome      string
	ScoreAwarded int64
}

func (EventSessionEnded) Name() string { return EventNameSessionEnded }
