package score

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/victornm/millionaire/internal/domain"
)

// submitScript appends to the history and updates the per-player records in one step.
// KEYS: history, latest, latest order, best, best order.
// ARGV: username, score, timestamp in ms, payload, negative history limit or "".
// The latest record is replaced by a newer or equal timestamp. The best record by a higher
// score, or an equal score with a newer or equal timestamp.
var submitScript = redis.NewScript(`
local user, score, at, payload = ARGV[1], tonumber(ARGV[2]), tonumber(ARGV[3]), ARGV[4]

redis.call('RPUSH', KEYS[1], payload)
if ARGV[5] ~= '' then
	redis.call('LTRIM', KEYS[1], ARGV[5], -1)
end

local seen = redis.call('HGET', KEYS[3], user)
if not seen or at >= tonumber(seen) then
	redis.call('HSET', KEYS[2], user, payload)
	redis.call('HSET', KEYS[3], user, ARGV[3])
end

local best = redis.call('HGET', KEYS[5], user)
local replace = true
if best then
	local bs, bat = string.match(best, '^(%-?%d+):(%-?%d+)$')
	bs, bat = tonumber(bs), tonumber(bat)
	replace = score > bs or (score == bs and at >= bat)
end
if replace then
	redis.call('HSET', KEYS[4], user, payload)
	redis.call('HSET', KEYS[5], user, ARGV[2] .. ':' .. ARGV[3])
end

return 1
`)

type RedisConfig struct {
	Redis  redis.UniversalClient
	Prefix string
	// HistoryLimit caps the stored history, oldest first out. Zero keeps everything.
	// The per-player records are never trimmed.
	HistoryLimit int64
}

// RedisStore keeps the history in a list, and the best and the latest event per player in hashes.
type RedisStore struct {
	redis  redis.UniversalClient
	prefix string
	limit  int64
}

func NewRedisStore(c RedisConfig) *RedisStore {
	return &RedisStore{
		redis:  c.Redis,
		prefix: c.Prefix,
		limit:  c.HistoryLimit,
	}
}

func (s *RedisStore) Submit(ctx context.Context, e domain.ScoreEvent) error {
	b, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal score: %w", err)
	}

	var trim string
	if s.limit > 0 {
		trim = strconv.FormatInt(-s.limit, 10)
	}

	keys := []string{s.key("history"), s.key("latest"), s.key("latest:at"), s.key("best"), s.key("best:rank")}
	args := []any{
		e.Username,
		strconv.FormatInt(e.Score, 10),
		strconv.FormatInt(e.Timestamp.UnixMilli(), 10),
		string(b),
		trim,
	}

	if err := submitScript.Run(ctx, s.redis, keys, args...).Err(); err != nil {
		return fmt.Errorf("store score: %w", err)
	}

	return nil
}

// List returns the best event of every player.
func (s *RedisStore) List(ctx context.Context) ([]domain.ScoreEvent, error) {
	return s.hashValues(ctx, s.key("best"))
}

// Latest returns the most recent event of every player.
func (s *RedisStore) Latest(ctx context.Context) ([]domain.ScoreEvent, error) {
	return s.hashValues(ctx, s.key("latest"))
}

// History returns the stored history in insertion order.
func (s *RedisStore) History(ctx context.Context) ([]domain.ScoreEvent, error) {
	res, err := s.redis.LRange(ctx, s.key("history"), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}

	return decodeAll(ctx, res), nil
}

func (s *RedisStore) hashValues(ctx context.Context, key string) ([]domain.ScoreEvent, error) {
	res, err := s.redis.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("list scores: %w", err)
	}

	raw := make([]string, 0, len(res))
	for _, v := range res {
		raw = append(raw, v)
	}

	return decodeAll(ctx, raw), nil
}

func decodeAll(ctx context.Context, raw []string) []domain.ScoreEvent {
	out := make([]domain.ScoreEvent, 0, len(raw))
	for _, r := range raw {
		var e domain.ScoreEvent
		if err := json.Unmarshal([]byte(r), &e); err != nil {
			slog.WarnContext(ctx, "score: skip malformed record", "error", err)
			continue
		}
		out = append(out, e)
	}
	return out
}

// key shares one hash slot so the submit script runs on a cluster too.
func (s *RedisStore) key(name string) string {
	return fmt.Sprintf("{%s}:scores:%s", s.prefix, name)
}
