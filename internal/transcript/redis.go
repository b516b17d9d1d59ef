package transcript

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// KeyPrefix is the Redis key prefix for room transcripts. Each room is one
// Redis list, appended with RPUSH so LRANGE returns chronological order.
const KeyPrefix = "chatlog:"

// Redis is the production transcript store.
type Redis struct {
	rdb *redis.Client
}

// NewRedis creates a transcript store on the given Redis client.
func NewRedis(rdb *redis.Client) *Redis {
	return &Redis{rdb: rdb}
}

func (s *Redis) Append(ctx context.Context, roomID string, e Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("transcript: marshal entry: %w", err)
	}
	if err := s.rdb.RPush(ctx, KeyPrefix+roomID, data).Err(); err != nil {
		return fmt.Errorf("transcript: append room=%s: %w", roomID, err)
	}
	return nil
}

func (s *Redis) Read(ctx context.Context, roomID string) ([]Entry, error) {
	raw, err := s.rdb.LRange(ctx, KeyPrefix+roomID, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("transcript: read room=%s: %w", roomID, err)
	}

	entries := make([]Entry, 0, len(raw))
	for _, item := range raw {
		var e Entry
		if err := json.Unmarshal([]byte(item), &e); err != nil {
			return nil, fmt.Errorf("transcript: unmarshal entry room=%s: %w", roomID, err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}
