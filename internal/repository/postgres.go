package repository

import (
	"context"
	"fmt"

	"leaderboard/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PostgresRepository is the durable score archive. Redis stays the source of
// truth for ranking; this keeps the latest applied score per (game, user) so a
// lost index can be rebuilt.
type PostgresRepository struct {
	db *gorm.DB
}

// NewPostgresRepository creates a new Postgres repository
func NewPostgresRepository(db *gorm.DB) *PostgresRepository {
	return &PostgresRepository{
		db: db,
	}
}

// UpsertScore creates or updates the archived score for a (game, user) pair.
// Uses ON CONFLICT to handle upserts efficiently
func (r *PostgresRepository) UpsertScore(ctx context.Context, gameID, userID string, score int64) error {
	record := models.ScoreRecord{
		GameID: gameID,
		UserID: userID,
		Score:  score,
	}

	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "game_id"}, {Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"score", "updated_at"}),
	}).Create(&record).Error
}

// GetScoreRecord retrieves the archived score for a (game, user) pair.
func (r *PostgresRepository) GetScoreRecord(ctx context.Context, gameID, userID string) (*models.ScoreRecord, error) {
	var record models.ScoreRecord
	err := r.db.WithContext(ctx).
		Where("game_id = ? AND user_id = ?", gameID, userID).
		First(&record).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("score record not found")
		}
		return nil, err
	}
	return &record, nil
}

// GetAllScores retrieves every archived score (used to rebuild Redis indices).
func (r *PostgresRepository) GetAllScores(ctx context.Context) ([]models.ScoreRecord, error) {
	var records []models.ScoreRecord
	err := r.db.WithContext(ctx).Order("game_id, score DESC").Find(&records).Error
	return records, err
}

// GetGameScores retrieves the archived scores for a single game.
func (r *PostgresRepository) GetGameScores(ctx context.Context, gameID string) ([]models.ScoreRecord, error) {
	var records []models.ScoreRecord
	err := r.db.WithContext(ctx).
		Where("game_id = ?", gameID).
		Order("score DESC").
		Find(&records).Error
	return records, err
}

// BulkInsertScores efficiently inserts multiple score records
func (r *PostgresRepository) BulkInsertScores(ctx context.Context, records []models.ScoreRecord, batchSize int) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "game_id"}, {Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"score", "updated_at"}),
	}).CreateInBatches(records, batchSize).Error
}

// GetTotalScores returns the total count of archived records
func (r *PostgresRepository) GetTotalScores(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.ScoreRecord{}).Count(&count).Error
	return count, err
}

// Ping checks if database is reachable
func (r *PostgresRepository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the database connection
func (r *PostgresRepository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// AutoMigrate runs database migrations
func (r *PostgresRepository) AutoMigrate() error {
	return r.db.AutoMigrate(&models.ScoreRecord{})
}
