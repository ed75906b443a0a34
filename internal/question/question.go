// Package question holds the static question pool and draws per-session subsets from it.
package question

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"math/rand"

	"github.com/victornm/millionaire/internal/domain"
)

//go:embed questions.json
var builtin []byte

// Pool is an immutable set of questions.
type Pool struct {
	questions []domain.Question
}

// Builtin returns the pool shipped with the binary.
func Builtin() (*Pool, error) {
	return Parse(builtin)
}

// Parse decodes a JSON array of questions and validates every record.
func Parse(data []byte) (*Pool, error) {
	var qs []domain.Question
	if err := json.Unmarshal(data, &qs); err != nil {
		return nil, fmt.Errorf("question: decode pool: %w", err)
	}

	return New(qs)
}

func New(qs []domain.Question) (*Pool, error) {
	seen := make(map[string]struct{}, len(qs))
	for _, q := range qs {
		if err := Validate(q); err != nil {
			return nil, err
		}
		if _, ok := seen[q.ID]; ok {
			return nil, fmt.Errorf("question: duplicate id %q", q.ID)
		}
		seen[q.ID] = struct{}{}
	}

	return &Pool{questions: append([]domain.Question(nil), qs...)}, nil
}

// Validate checks the shape invariants of a single question.
func Validate(q domain.Question) error {
	if q.ID == "" {
		return fmt.Errorf("question: missing id")
	}
	if len(q.Options) != 4 {
		return fmt.Errorf("question %s: want 4 options, got %d", q.ID, len(q.Options))
	}
	if q.CorrectOption < 0 || q.CorrectOption >= len(q.Options) {
		return fmt.Errorf("question %s: correct option %d out of range", q.ID, q.CorrectOption)
	}
	return nil
}

func (p *Pool) Len() int {
	return len(p.questions)
}

// Draw returns n distinct questions chosen by a uniform shuffle of the pool.
func (p *Pool) Draw(r *rand.Rand, n int) ([]domain.Question, error) {
	if n > len(p.questions) {
		return nil, fmt.Errorf("question: pool has %d questions, need %d", len(p.questions), n)
	}

	idx := r.Perm(len(p.questions))
	drawn := make([]domain.Question, 0, n)
	for _, i := range idx[:n] {
		q := p.questions[i]
		q.Options = append([]string(nil), q.Options...)
		drawn = append(drawn, q)
	}

	return drawn, nil
}
