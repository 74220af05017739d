package repository

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is an in-process Store used by tests and local development. It
// applies the same ordering rule as RedisStore: descending score, equal scores
// ordered by user id in descending lexicographic order.
type MemoryStore struct {
	mu       sync.RWMutex
	games    map[string]map[string]int64
	versions map[string]int64
}

// NewMemoryStore creates an empty in-memory score store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		games:    make(map[string]map[string]int64),
		versions: make(map[string]int64),
	}
}

// Upsert sets a user's score and bumps the game's version counter.
func (m *MemoryStore) Upsert(ctx context.Context, gameID, userID string, score int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	game, ok := m.games[gameID]
	if !ok {
		game = make(map[string]int64)
		m.games[gameID] = game
	}
	game[userID] = score
	m.versions[gameID]++
	return nil
}

// BulkUpsert sets many scores for one game, bumping the version once.
func (m *MemoryStore) BulkUpsert(ctx context.Context, gameID string, scores map[string]int64) error {
	if len(scores) == 0 {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	game, ok := m.games[gameID]
	if !ok {
		game = make(map[string]int64, len(scores))
		m.games[gameID] = game
	}
	for userID, score := range scores {
		game[userID] = score
	}
	m.versions[gameID]++
	return nil
}

// GetScore returns a user's score, or ErrNotFound.
func (m *MemoryStore) GetScore(ctx context.Context, gameID, userID string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	score, ok := m.games[gameID][userID]
	if !ok {
		return 0, ErrNotFound
	}
	return score, nil
}

// GetReverseRank returns a user's zero-based descending position, or ErrNotFound.
func (m *MemoryStore) GetReverseRank(ctx context.Context, gameID, userID string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.games[gameID][userID]; !ok {
		return 0, ErrNotFound
	}
	for i, entry := range m.sorted(gameID) {
		if entry.UserID == userID {
			return int64(i), nil
		}
	}
	return 0, ErrNotFound
}

// GetReverseRange returns entries at positions [start, stop] inclusive,
// truncated at the index end. Out-of-range windows yield an empty slice.
func (m *MemoryStore) GetReverseRange(ctx context.Context, gameID string, start, stop int64) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entries := m.sorted(gameID)
	size := int64(len(entries))

	if start < 0 {
		start = 0
	}
	if start >= size || stop < start {
		return []Entry{}, nil
	}
	if stop >= size {
		stop = size - 1
	}
	return entries[start : stop+1], nil
}

// GetVersion returns the game's write counter.
func (m *MemoryStore) GetVersion(ctx context.Context, gameID string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.versions[gameID], nil
}

// Ping always succeeds for the in-memory store.
func (m *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

// sorted materializes a game's index in reverse order. Callers hold m.mu.
func (m *MemoryStore) sorted(gameID string) []Entry {
	game := m.games[gameID]
	entries := make([]Entry, 0, len(game))
	for userID, score := range game {
		entries = append(entries, Entry{UserID: userID, Score: score})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		return entries[i].UserID > entries[j].UserID
	})
	return entries
}
