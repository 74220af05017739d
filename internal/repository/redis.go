package repository

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const (
	// keyPrefix namespaces one sorted set per game.
	keyPrefix = "lb:"

	// versionSuffix namespaces the per-game write counter.
	versionSuffix = ":ver"
)

// LeaderboardKey derives the sorted-set key for a game's score index.
func LeaderboardKey(gameID string) string {
	return keyPrefix + gameID
}

// versionKey derives the key of a game's write counter.
func versionKey(gameID string) string {
	return LeaderboardKey(gameID) + versionSuffix
}

// RedisStore implements Store on Redis sorted sets. Scores are stored as plain
// integers; Redis orders equal scores by member in lexicographic order, so
// reverse reads yield the descending-lex tie order the Store contract requires.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a new Redis-backed score store.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{
		client: client,
	}
}

// Upsert sets a user's score and bumps the game's version counter in one
// pipeline so websocket watchers see every applied write.
func (r *RedisStore) Upsert(ctx context.Context, gameID, userID string, score int64) error {
	pipe := r.client.Pipeline()

	pipe.ZAdd(ctx, LeaderboardKey(gameID), redis.Z{
		Score:  float64(score),
		Member: userID,
	})
	pipe.Incr(ctx, versionKey(gameID))

	_, err := pipe.Exec(ctx)
	return err
}

// BulkUpsert sets many scores for one game using a single pipeline.
// The version counter is bumped once for the whole batch.
func (r *RedisStore) BulkUpsert(ctx context.Context, gameID string, scores map[string]int64) error {
	if len(scores) == 0 {
		return nil
	}

	members := make([]redis.Z, 0, len(scores))
	for userID, score := range scores {
		members = append(members, redis.Z{
			Score:  float64(score),
			Member: userID,
		})
	}

	pipe := r.client.Pipeline()
	pipe.ZAdd(ctx, LeaderboardKey(gameID), members...)
	pipe.Incr(ctx, versionKey(gameID))

	_, err := pipe.Exec(ctx)
	return err
}

// GetScore retrieves a user's score from the game's sorted set.
func (r *RedisStore) GetScore(ctx context.Context, gameID, userID string) (int64, error) {
	score, err := r.client.ZScore(ctx, LeaderboardKey(gameID), userID).Result()
	if err != nil {
		if err == redis.Nil {
			return 0, ErrNotFound
		}
		return 0, err
	}
	return int64(score), nil
}

// GetReverseRank retrieves a user's zero-based descending position.
func (r *RedisStore) GetReverseRank(ctx context.Context, gameID, userID string) (int64, error) {
	rank, err := r.client.ZRevRank(ctx, LeaderboardKey(gameID), userID).Result()
	if err != nil {
		if err == redis.Nil {
			return 0, ErrNotFound
		}
		return 0, err
	}
	return rank, nil
}

// GetReverseRange retrieves entries at positions [start, stop] in descending
// score order. Redis truncates ranges running past the index end.
func (r *RedisStore) GetReverseRange(ctx context.Context, gameID string, start, stop int64) ([]Entry, error) {
	rows, err := r.client.ZRevRangeWithScores(ctx, LeaderboardKey(gameID), start, stop).Result()
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(rows))
	for _, row := range rows {
		userID, ok := row.Member.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected member type %T", row.Member)
		}
		entries = append(entries, Entry{
			UserID: userID,
			Score:  int64(row.Score),
		})
	}

	return entries, nil
}

// GetVersion returns the game's write counter, 0 when the game has never
// received a write.
func (r *RedisStore) GetVersion(ctx context.Context, gameID string) (int64, error) {
	version, err := r.client.Get(ctx, versionKey(gameID)).Int64()
	if err != nil {
		if err == redis.Nil {
			return 0, nil
		}
		return 0, err
	}
	return version, nil
}

// GetTotalUsers returns the number of entries in a game's index.
func (r *RedisStore) GetTotalUsers(ctx context.Context, gameID string) (int64, error) {
	return r.client.ZCard(ctx, LeaderboardKey(gameID)).Result()
}

// Ping checks if Redis is reachable
func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (r *RedisStore) Close() error {
	return r.client.Close()
}
