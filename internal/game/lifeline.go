package game

import (
	"fmt"
	"math/rand"

	"github.com/victornm/millionaire/internal/domain"
	"github.com/victornm/millionaire/internal/errors"
)

type Lifeline string

const (
	LifelineFiftyFifty   Lifeline = "fifty_fifty"
	LifelinePhoneFriendA Lifeline = "phone_friend_a"
	LifelinePhoneFriendB Lifeline = "phone_friend_b"
	LifelineAskAudience  Lifeline = "ask_audience"
)

// Lifelines lists every lifeline a session starts with.
var Lifelines = []Lifeline{
	LifelineFiftyFifty,
	LifelinePhoneFriendA,
	LifelinePhoneFriendB,
	LifelineAskAudience,
}

func ParseLifeline(s string) (Lifeline, error) {
	for _, l := range Lifelines {
		if string(l) == s {
			return l, nil
		}
	}
	return "", errors.Validation("unknown lifeline %q", s)
}

// Disclosure is what a lifeline reveals to the player. Exactly one of the fields is set.
type Disclosure struct {
	Lifeline Lifeline `json:"lifeline"`
	Message  string   `json:"message"`
	Removed  []int    `json:"removed,omitempty"`
	Answer   *int     `json:"answer,omitempty"`
	Votes    []int    `json:"votes,omitempty"`
}

// Resolve computes the effect of a lifeline on a question. It has no side effects beyond consuming r.
func Resolve(q domain.Question, l Lifeline, r *rand.Rand) (Disclosure, error) {
	d := Disclosure{Lifeline: l}

	switch l {
	case LifelineFiftyFifty:
		d.Removed = FiftyFifty(q, r)
		d.Message = fmt.Sprintf("%d incorrect answers removed.", len(d.Removed))
	case LifelinePhoneFriendA, LifelinePhoneFriendB:
		a := PhoneFriend(q)
		d.Answer = &a
		d.Message = fmt.Sprintf("%s says the answer is %c (%s).", friendName(l), 'A'+a, q.Options[a])
	case LifelineAskAudience:
		d.Votes = AskAudience(q, r)
		d.Message = "The audience has voted."
	default:
		return Disclosure{}, fmt.Errorf("unknown lifeline %q", l)
	}

	return d, nil
}

func friendName(l Lifeline) string {
	if l == LifelinePhoneFriendA {
		return "Your first friend"
	}
	return "Your second friend"
}

// FiftyFifty picks min(2, incorrect) distinct incorrect options uniformly at random.
func FiftyFifty(q domain.Question, r *rand.Rand) []int {
	incorrect := make([]int, 0, len(q.Options))
	for i := range q.Options {
		if i != q.CorrectOption {
			incorrect = append(incorrect, i)
		}
	}

	removed := make([]int, 0, 2)
	for len(removed) < 2 && len(incorrect) > 0 {
		i := r.Intn(len(incorrect))
		removed = append(removed, incorrect[i])
		incorrect = append(incorrect[:i], incorrect[i+1:]...)
	}

	return removed
}

// PhoneFriend reveals the correct option.
func PhoneFriend(q domain.Question) int {
	return q.CorrectOption
}

// AskAudience simulates a poll: the correct option gets 40..60 percent, the other options share the rest
// progressively and the last one absorbs the remainder, so the result always sums to 100.
func AskAudience(q domain.Question, r *rand.Rand) []int {
	votes := make([]int, len(q.Options))
	if len(q.Options) == 0 {
		return votes
	}

	others := make([]int, 0, len(q.Options)-1)
	for i := range q.Options {
		if i != q.CorrectOption {
			others = append(others, i)
		}
	}

	if len(others) == 0 {
		votes[q.CorrectOption] = 100
		return votes
	}

	correct := 40 + r.Intn(21)
	votes[q.CorrectOption] = correct
	remaining := 100 - correct

	for k, i := range others {
		if k == len(others)-1 {
			votes[i] = remaining
			break
		}

		// Upper bound is 1.5x the fair share of what is left, which stays below the remainder
		// as long as at least two options are still to be served.
		limit := float64(remaining) / float64(len(others)-k) * 1.5
		share := int(r.Float64() * limit)
		if share > remaining {
			share = remaining
		}
		votes[i] = share
		remaining -= share
	}

	return votes
}
