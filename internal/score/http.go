package score

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/victornm/millionaire/internal/domain"
)

const defaultHTTPTimeout = 10 * time.Second

type HTTPConfig struct {
	BaseURL string
	Timeout time.Duration
	Client  *http.Client
}

// HTTPStore talks to a remote score service:
//
//	POST {base}/scores/update       body: ScoreEvent
//	GET  {base}/scores/leaderboard  returns: []ScoreEvent
type HTTPStore struct {
	base   string
	client *http.Client
}

func NewHTTPStore(c HTTPConfig) *HTTPStore {
	client := c.Client
	if client == nil {
		timeout := c.Timeout
		if timeout <= 0 {
			timeout = defaultHTTPTimeout
		}
		client = &http.Client{Timeout: timeout}
	}

	return &HTTPStore{
		base:   strings.TrimRight(c.BaseURL, "/"),
		client: client,
	}
}

func (s *HTTPStore) Submit(ctx context.Context, e domain.ScoreEvent) error {
	b, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal score: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.base+"/scores/update", bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("post score: %w", err)
	}
	defer resp.Body.Close()

	return checkResponse(resp)
}

func (s *HTTPStore) List(ctx context.Context) ([]domain.ScoreEvent, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.base+"/scores/leaderboard", nil)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get leaderboard: %w", err)
	}
	defer resp.Body.Close()

	if err := checkResponse(resp); err != nil {
		return nil, err
	}

	var events []domain.ScoreEvent
	if err := json.NewDecoder(resp.Body).Decode(&events); err != nil {
		return nil, fmt.Errorf("decode leaderboard: %w", err)
	}

	return events, nil
}

func checkResponse(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	var body struct {
		Message string `json:"message"`
	}
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if json.Unmarshal(b, &body) == nil && body.Message != "" {
		return fmt.Errorf("score service: %s: %s", resp.Status, body.Message)
	}

	return fmt.Errorf("score service: %s", resp.Status)
}
