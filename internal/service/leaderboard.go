package service

import (
	"context"
	"errors"
	"fmt"
	"log"

	"leaderboard/internal/models"
	"leaderboard/internal/repository"
	"leaderboard/internal/worker"
)

// LeaderboardService is the ranking engine. It owns score submission,
// leaderboard windowing, and context-around-user queries against a per-game
// ordered score index. All shared mutable state lives in the store; the engine
// itself holds none, so it is safe for concurrent use without locking.
//
// Multi-step operations are deliberately not transactional across store calls:
// a concurrent writer may land between the write and re-read of SubmitScore, or
// between the rank lookup and range fetches of GetUserContext. Results are
// recent and self-consistent per store call, which is the accepted contract.
type LeaderboardService struct {
	store       repository.Store
	archivePool *worker.Pool
}

// NewLeaderboardService creates a ranking engine on top of a score store.
// archivePool may be nil when write-behind persistence is disabled.
func NewLeaderboardService(store repository.Store, archivePool *worker.Pool) *LeaderboardService {
	return &LeaderboardService{
		store:       store,
		archivePool: archivePool,
	}
}

// SubmitScore applies a score for (gameID, userID) and returns the post-write
// ranked entry. Mode "latest" overwrites unconditionally; mode "best" keeps the
// higher of the existing and incoming score, silently ignoring equal or lower
// submissions.
//
// The returned rank and score come from re-reading the index after the write,
// not from the locally known value, so the response reflects true index state
// even under concurrent writers. Do not optimize the re-read away.
func (s *LeaderboardService) SubmitScore(ctx context.Context, gameID, userID string, score int64, mode string) (models.RankedUser, error) {
	if mode == models.ModeLatest {
		if err := s.store.Upsert(ctx, gameID, userID, score); err != nil {
			return models.RankedUser{}, fmt.Errorf("failed to write score: %w", err)
		}
	} else {
		current, err := s.store.GetScore(ctx, gameID, userID)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return models.RankedUser{}, fmt.Errorf("failed to read current score: %w", err)
		}
		if errors.Is(err, repository.ErrNotFound) || current < score {
			if err := s.store.Upsert(ctx, gameID, userID, score); err != nil {
				return models.RankedUser{}, fmt.Errorf("failed to write score: %w", err)
			}
		}
	}

	rank, err := s.store.GetReverseRank(ctx, gameID, userID)
	if err != nil {
		return models.RankedUser{}, s.inconsistent(gameID, userID, err)
	}
	applied, err := s.store.GetScore(ctx, gameID, userID)
	if err != nil {
		return models.RankedUser{}, s.inconsistent(gameID, userID, err)
	}

	// Write-behind persistence of the applied score. Non-blocking; under
	// backpressure the write is dropped and Redis remains authoritative.
	if s.archivePool != nil {
		s.archivePool.Submit(worker.ScoreUpdateTask{
			GameID: gameID,
			UserID: userID,
			Score:  applied,
		})
	}

	// Store ranks are zero-based; the API contract is one-based.
	return models.RankedUser{
		Rank:   rank + 1,
		UserID: userID,
		Score:  applied,
	}, nil
}

// GetLeaderboard returns the page of entries at index positions
// [offset, offset+limit-1] with contiguous ranks starting at offset+1.
// A page past the end of the index is empty, not an error.
func (s *LeaderboardService) GetLeaderboard(ctx context.Context, gameID string, limit, offset int64) ([]models.RankedUser, error) {
	rows, err := s.store.GetReverseRange(ctx, gameID, offset, offset+limit-1)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch leaderboard range: %w", err)
	}

	results := make([]models.RankedUser, 0, len(rows))
	for i, row := range rows {
		results = append(results, models.RankedUser{
			Rank:   offset + int64(i) + 1,
			UserID: row.UserID,
			Score:  row.Score,
		})
	}
	return results, nil
}

// GetUserContext returns a user's ranked entry plus up to window neighbors on
// each side. A user missing from the index yields ErrUserNotFound; a user at
// the top or bottom simply gets a truncated (possibly empty) side.
func (s *LeaderboardService) GetUserContext(ctx context.Context, gameID, userID string, window int64) (models.UserContextResponse, error) {
	pos, err := s.store.GetReverseRank(ctx, gameID, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return models.UserContextResponse{}, fmt.Errorf("%w: %s", ErrUserNotFound, userID)
	}
	if err != nil {
		return models.UserContextResponse{}, fmt.Errorf("failed to look up rank: %w", err)
	}

	score, err := s.store.GetScore(ctx, gameID, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return models.UserContextResponse{}, fmt.Errorf("%w: %s", ErrUserNotFound, userID)
	}
	if err != nil {
		return models.UserContextResponse{}, fmt.Errorf("failed to look up score: %w", err)
	}

	aboveStart := pos - window
	if aboveStart < 0 {
		aboveStart = 0
	}
	aboveEnd := pos - 1

	above := []models.RankedUser{}
	if aboveEnd >= aboveStart {
		rows, err := s.store.GetReverseRange(ctx, gameID, aboveStart, aboveEnd)
		if err != nil {
			return models.UserContextResponse{}, fmt.Errorf("failed to fetch neighbors above: %w", err)
		}
		for i, row := range rows {
			above = append(above, models.RankedUser{
				Rank:   aboveStart + int64(i) + 1,
				UserID: row.UserID,
				Score:  row.Score,
			})
		}
	}

	belowStart := pos + 1
	rows, err := s.store.GetReverseRange(ctx, gameID, belowStart, pos+window)
	if err != nil {
		return models.UserContextResponse{}, fmt.Errorf("failed to fetch neighbors below: %w", err)
	}
	below := make([]models.RankedUser, 0, len(rows))
	for i, row := range rows {
		below = append(below, models.RankedUser{
			Rank:   belowStart + int64(i) + 1,
			UserID: row.UserID,
			Score:  row.Score,
		})
	}

	return models.UserContextResponse{
		User: models.RankedUser{
			Rank:   pos + 1,
			UserID: userID,
			Score:  score,
		},
		Above: above,
		Below: below,
	}, nil
}

// Ping verifies the backing score store is reachable. Used by the readiness
// probe only, never by the ranking logic.
func (s *LeaderboardService) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// SyncFromArchive rebuilds the Redis game indices from the Postgres archive.
// Useful after an index loss or on a cold start.
func (s *LeaderboardService) SyncFromArchive(ctx context.Context, archive *repository.PostgresRepository) error {
	records, err := archive.GetAllScores(ctx)
	if err != nil {
		return fmt.Errorf("failed to read score archive: %w", err)
	}

	if len(records) == 0 {
		log.Println("No archived scores to sync")
		return nil
	}

	games := make(map[string]map[string]int64)
	for _, record := range records {
		game, ok := games[record.GameID]
		if !ok {
			game = make(map[string]int64)
			games[record.GameID] = game
		}
		game[record.UserID] = record.Score
	}

	for gameID, scores := range games {
		if err := s.store.BulkUpsert(ctx, gameID, scores); err != nil {
			return fmt.Errorf("failed to sync game %s: %w", gameID, err)
		}
	}

	log.Printf("Successfully synced %d scores across %d games", len(records), len(games))
	return nil
}

// inconsistent wraps a post-write lookup failure as a fatal store fault.
func (s *LeaderboardService) inconsistent(gameID, userID string, err error) error {
	return fmt.Errorf("%w: game=%s user=%s: %v", ErrInconsistentWrite, gameID, userID, err)
}
