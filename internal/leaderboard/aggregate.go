package leaderboard

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/victornm/millionaire/internal/domain"
	"github.com/victornm/millionaire/internal/errors"
	"github.com/victornm/millionaire/internal/game"
)

type Filter string

const (
	FilterAll       Filter = "all"
	FilterTeam      Filter = "team"
	FilterCompleted Filter = "completed"
)

func ParseFilter(s string) (Filter, error) {
	switch Filter(s) {
	case "", FilterAll:
		return FilterAll, nil
	case FilterTeam, FilterCompleted:
		return Filter(s), nil
	}
	return "", errors.Validation("unknown leaderboard filter %q", s)
}

// Policy decides which record represents a player when several exist.
type Policy string

const (
	// PolicyHighestScore keeps the highest score, the most recent one among equal scores.
	PolicyHighestScore Policy = "highest_score"
	// PolicyLatest keeps the most recent record regardless of its score.
	PolicyLatest Policy = "latest"
)

func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case "", PolicyHighestScore:
		return PolicyHighestScore, nil
	case PolicyLatest:
		return PolicyLatest, nil
	}
	return "", fmt.Errorf("unknown dedup policy %q", s)
}

// Dedup reduces the records to one per username. Records without a username are dropped.
// The result is ordered by the policy's preference, best first.
func Dedup(records []domain.ScoreEvent, p Policy) []domain.ScoreEvent {
	sorted := make([]domain.ScoreEvent, 0, len(records))
	for _, r := range records {
		if r.Username != "" {
			sorted = append(sorted, r)
		}
	}

	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if p == PolicyLatest {
			if !a.Timestamp.Equal(b.Timestamp) {
				return a.Timestamp.After(b.Timestamp)
			}
			return a.Score > b.Score
		}
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		return a.Timestamp.After(b.Timestamp)
	})

	seen := make(map[string]struct{}, len(sorted))
	out := sorted[:0]
	for _, r := range sorted {
		if _, ok := seen[r.Username]; ok {
			continue
		}
		seen[r.Username] = struct{}{}
		out = append(out, r)
	}

	return out
}

// Completed reports whether the player finished the game at the top of the ladder.
func Completed(e domain.ScoreEvent) bool {
	return e.Status == domain.StatusFinished && e.Score >= game.MaxPrize()
}

// Apply keeps the entries visible under the filter. The team filter needs the viewer's team.
func Apply(entries []domain.ScoreEvent, f Filter, viewerTeam string) ([]domain.ScoreEvent, error) {
	out := make([]domain.ScoreEvent, 0, len(entries))

	switch f {
	case FilterAll:
		out = append(out, entries...)
	case FilterTeam:
		if viewerTeam == "" {
			return nil, errors.Validation("team filter requires the viewer to have a team")
		}
		for _, e := range entries {
			if e.TeamName() == viewerTeam {
				out = append(out, e)
			}
		}
	case FilterCompleted:
		for _, e := range entries {
			if Completed(e) {
				out = append(out, e)
			}
		}
	default:
		return nil, errors.Validation("unknown leaderboard filter %q", f)
	}

	return out, nil
}

// Order sorts by score, then by how far the player got.
func Order(entries []domain.ScoreEvent) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		return entries[i].QuestionReached > entries[j].QuestionReached
	})
}

// Rank assigns 1-based ranks to already ordered entries.
func Rank(entries []domain.ScoreEvent) []domain.LeaderboardEntry {
	out := make([]domain.LeaderboardEntry, 0, len(entries))
	for i, e := range entries {
		tier, label := tierOf(i + 1)
		out = append(out, domain.LeaderboardEntry{
			ScoreEvent: e,
			Rank:       i + 1,
			Tier:       tier,
			Label:      label,
			Status:     Classify(e),
		})
	}
	return out
}

func tierOf(rank int) (domain.RankTier, string) {
	switch rank {
	case 1:
		return domain.RankTierFirst, "1st"
	case 2:
		return domain.RankTierSecond, "2nd"
	case 3:
		return domain.RankTierThird, "3rd"
	default:
		return domain.RankTierOther, fmt.Sprintf("#%d", rank)
	}
}

// Classify labels an entry for display, in priority order.
func Classify(e domain.ScoreEvent) string {
	switch {
	case Completed(e):
		return "top-tier"
	case e.Status == domain.StatusGameOver:
		return "eliminated"
	case e.Status == domain.StatusWalkedAway:
		return "walked away"
	case e.Status == domain.StatusTimeUp:
		return "timed out"
	case e.Status == domain.StatusInProgress:
		return "in progress"
	default:
		return "played"
	}
}

// TeamStats groups entries by team name. Entries without a team are ignored.
func TeamStats(entries []domain.ScoreEvent) []domain.TeamStat {
	var (
		order []string
		stats = make(map[string]*domain.TeamStat)
	)

	for _, e := range entries {
		name := e.TeamName()
		if name == "" {
			continue
		}

		st, ok := stats[name]
		if !ok {
			st = &domain.TeamStat{TeamName: name, ColorHex: e.Team.ColorHex}
			stats[name] = st
			order = append(order, name)
		}

		st.TotalScore += e.Score
		st.PlayerCount++
		if e.Score > st.TopScore {
			st.TopScore = e.Score
		}
	}

	out := make([]domain.TeamStat, 0, len(order))
	for _, name := range order {
		st := stats[name]
		st.AvgScore = decimal.NewFromInt(st.TotalScore).
			Div(decimal.NewFromInt(int64(st.PlayerCount))).
			Round(0).
			IntPart()
		out = append(out, *st)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].TotalScore > out[j].TotalScore
	})

	return out
}

type Query struct {
	Filter Filter
	// Viewer is the username of the player looking at the board, optional.
	Viewer string
	// ViewerTeam is the viewer's team name, required by FilterTeam.
	ViewerTeam string
}

// Build produces a ranked view from a deduplicated snapshot.
func Build(entries []domain.ScoreEvent, q Query) (domain.Leaderboard, error) {
	if q.Filter == "" {
		q.Filter = FilterAll
	}

	filtered, err := Apply(entries, q.Filter, q.ViewerTeam)
	if err != nil {
		return domain.Leaderboard{}, err
	}

	Order(filtered)

	lb := domain.Leaderboard{
		Filter:  string(q.Filter),
		Entries: Rank(filtered),
		Teams:   TeamStats(entries),
	}

	if q.Viewer != "" {
		for i := range lb.Entries {
			if lb.Entries[i].Username == q.Viewer {
				v := lb.Entries[i]
				lb.Viewer = &v
				break
			}
		}
	}

	return lb, nil
}
