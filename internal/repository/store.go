package repository

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a user has no entry in a game's score index.
var ErrNotFound = errors.New("member not found")

// Entry is a single (user, score) pair from a reverse-range read.
type Entry struct {
	UserID string
	Score  int64
}

// Store is the ordered score index a leaderboard is built on: one descending
// sorted set per game, with a monotonic version counter bumped on every applied
// write. Implementations must order equal scores by user id in descending
// lexicographic order (the Redis ZREVRANGE rule) so that ranks are
// deterministic across repeated queries and across store implementations.
//
// Each call is individually atomic; the store offers no cross-call transactions.
type Store interface {
	// Upsert sets a user's score, creating the entry if absent.
	Upsert(ctx context.Context, gameID, userID string, score int64) error

	// BulkUpsert sets many scores for one game in a single round-trip.
	BulkUpsert(ctx context.Context, gameID string, scores map[string]int64) error

	// GetScore returns a user's current score, or ErrNotFound.
	GetScore(ctx context.Context, gameID, userID string) (int64, error)

	// GetReverseRank returns a user's zero-based descending position
	// (0 = highest score), or ErrNotFound.
	GetReverseRank(ctx context.Context, gameID, userID string) (int64, error)

	// GetReverseRange returns entries at positions [start, stop] inclusive in
	// descending score order, truncated when stop runs past the index end.
	GetReverseRange(ctx context.Context, gameID string, start, stop int64) ([]Entry, error)

	// GetVersion returns the game's write counter (0 if never written).
	GetVersion(ctx context.Context, gameID string) (int64, error)

	// Ping checks that the backing store is reachable.
	Ping(ctx context.Context) error
}
