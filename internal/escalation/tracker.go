package escalation

import (
	"context"
	"strconv"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/spec-kit/sla-guard/internal/domain"
)

// LevelTracker remembers the highest risk level observed per ticket. It is a
// cache for edge-triggering only and never holds ticket state.
type LevelTracker interface {
	// Raise records level and returns the highest level seen before the call.
	Raise(ctx context.Context, ticketID int64, level domain.RiskLevel) (domain.RiskLevel, error)
	Forget(ctx context.Context, ticketID int64) error
}

// raiseScript stores max(current, rank) and returns the previous rank, or -1.
var raiseScript = redis.NewScript(`
local prev = tonumber(redis.call('HGET', KEYS[1], ARGV[1]))
if prev == nil then prev = -1 end
local rank = tonumber(ARGV[2])
if rank > prev then
  redis.call('HSET', KEYS[1], ARGV[1], rank)
end
return prev
`)

// RedisLevelTracker keeps the high-water marks in one Redis hash so every
// API and worker process shares them.
type RedisLevelTracker struct {
	client *redis.Client
	key    string
}

// NewRedisLevelTracker builds a tracker storing its hash under key.
func NewRedisLevelTracker(client *redis.Client, key string) *RedisLevelTracker {
	return &RedisLevelTracker{client: client, key: key}
}

func (t *RedisLevelTracker) Raise(ctx context.Context, ticketID int64, level domain.RiskLevel) (domain.RiskLevel, error) {
	prev, err := raiseScript.Run(ctx, t.client, []string{t.key}, strconv.FormatInt(ticketID, 10), level.Rank()).Int()
	if err != nil {
		return "", err
	}
	return domain.RiskLevelForRank(prev), nil
}

func (t *RedisLevelTracker) Forget(ctx context.Context, ticketID int64) error {
	return t.client.HDel(ctx, t.key, strconv.FormatInt(ticketID, 10)).Err()
}

// MemoryLevelTracker is the single-process LevelTracker.
type MemoryLevelTracker struct {
	mu     sync.Mutex
	levels map[int64]domain.RiskLevel
}

// NewMemoryLevelTracker returns an empty tracker.
func NewMemoryLevelTracker() *MemoryLevelTracker {
	return &MemoryLevelTracker{levels: map[int64]domain.RiskLevel{}}
}

func (t *MemoryLevelTracker) Raise(_ context.Context, ticketID int64, level domain.RiskLevel) (domain.RiskLevel, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	prev := t.levels[ticketID]
	if level.Rank() > prev.Rank() {
		t.levels[ticketID] = level
	}
	return prev, nil
}

func (t *MemoryLevelTracker) Forget(_ context.Context, ticketID int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.levels, ticketID)
	return nil
}
