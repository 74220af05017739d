package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"time"

	"leaderboard/internal/config"
	"leaderboard/internal/models"
	"leaderboard/internal/repository"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const (
	defaultUsers   = 10000
	batchSize      = 500
	maxSeedScore   = 1_000_000
	usernamePrefix = "user_"
)

func main() {
	gameID := flag.String("game", "", "game id to seed (default: generated)")
	totalUsers := flag.Int("users", defaultUsers, "number of users to seed")
	flag.Parse()

	if *gameID == "" {
		// Ephemeral game ids keep repeated seed runs from colliding.
		*gameID = "seedgame_" + uuid.NewString()[:8]
	}
	if !models.IdentifierRegexp.MatchString(*gameID) {
		log.Fatalf("Invalid game id %q", *gameID)
	}

	log.Printf("Seeding game %s with %d users...", *gameID, *totalUsers)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	redisClient, err := initRedis(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	store := repository.NewRedisStore(redisClient)
	defer store.Close()
	log.Println("Connected to Redis")

	ctx := context.Background()
	scores := generateScores(*totalUsers)

	startTime := time.Now()
	if err := store.BulkUpsert(ctx, *gameID, scores); err != nil {
		log.Fatalf("Failed to seed Redis: %v", err)
	}
	duration := time.Since(startTime)
	log.Printf("Populated Redis with %d users in %v (%.0f users/sec)",
		len(scores), duration, float64(len(scores))/duration.Seconds())

	// Mirror the seed into the Postgres archive when configured.
	if cfg.Database.Enabled {
		if err := seedArchive(ctx, cfg, *gameID, scores); err != nil {
			log.Fatalf("Failed to seed PostgreSQL: %v", err)
		}
	}

	total, err := store.GetTotalUsers(ctx, *gameID)
	if err != nil {
		log.Fatalf("Failed to verify Redis: %v", err)
	}
	log.Printf("Seeding completed: %d users in index %s", total, repository.LeaderboardKey(*gameID))

	log.Println("Top 10 users:")
	top, err := store.GetReverseRange(ctx, *gameID, 0, 9)
	if err != nil {
		log.Fatalf("Failed to get top users: %v", err)
	}
	for i, entry := range top {
		log.Printf("   %d. %s - %d", i+1, entry.UserID, entry.Score)
	}
}

// generateScores creates random scores keyed by generated usernames.
func generateScores(count int) map[string]int64 {
	scores := make(map[string]int64, count)
	for i := 0; i < count; i++ {
		scores[fmt.Sprintf("%s%d", usernamePrefix, i+1)] = rand.Int63n(maxSeedScore + 1)
	}
	return scores
}

// seedArchive bulk-inserts the seeded scores into the Postgres archive.
func seedArchive(ctx context.Context, cfg *config.Config, gameID string, scores map[string]int64) error {
	db, err := gorm.Open(postgres.Open(cfg.GetDSN()), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return err
	}

	archive := repository.NewPostgresRepository(db)
	defer archive.Close()

	if err := archive.AutoMigrate(); err != nil {
		return err
	}

	records := make([]models.ScoreRecord, 0, len(scores))
	for userID, score := range scores {
		records = append(records, models.ScoreRecord{
			GameID: gameID,
			UserID: userID,
			Score:  score,
		})
	}

	startTime := time.Now()
	if err := archive.BulkInsertScores(ctx, records, batchSize); err != nil {
		return err
	}
	duration := time.Since(startTime)
	log.Printf("Archived %d records in %v (%.0f records/sec)",
		len(records), duration, float64(len(records))/duration.Seconds())

	return nil
}

// initRedis initializes Redis connection
func initRedis(cfg *config.Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.GetRedisAddr(),
		Username:     cfg.Redis.Username,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     50,
		MinIdleConns: 10,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return client, nil
}
