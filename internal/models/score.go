package models

import (
	"regexp"
	"time"
)

// IdentifierPattern constrains game and user identifiers.
const IdentifierPattern = `^[A-Za-z0-9_-]{1,64}$`

// IdentifierRegexp is the compiled form of IdentifierPattern.
var IdentifierRegexp = regexp.MustCompile(IdentifierPattern)

// Score submission bounds and defaults shared by handlers and the seeder.
const (
	MaxScore = 2_000_000_000

	ModeBest   = "best"
	ModeLatest = "latest"

	DefaultWindow = 2
	MaxWindow     = 25
)

// AllowedLimits are the only accepted leaderboard page sizes.
var AllowedLimits = map[int64]bool{10: true, 100: true}

// ScoreRecord is the durable snapshot of a (game, user) score in PostgreSQL.
// It mirrors the current applied score in Redis; it is not a score history.
type ScoreRecord struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	GameID    string    `gorm:"uniqueIndex:idx_game_user;size:64;not null" json:"game_id"`
	UserID    string    `gorm:"uniqueIndex:idx_game_user;size:64;not null" json:"user_id"`
	Score     int64     `gorm:"not null" json:"score"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for GORM
func (ScoreRecord) TableName() string {
	return "scores"
}

// ScoreSubmission represents the request payload for submitting scores.
// Score is a pointer so that an explicit 0 survives required-field validation.
type ScoreSubmission struct {
	UserID string `json:"user_id" validate:"required,identifier"`
	Score  *int64 `json:"score" validate:"required,min=0,max=2000000000"`
	Mode   string `json:"mode" validate:"omitempty,oneof=best latest"`
}

// RankedUser is a read-only projection of an index position at query time.
type RankedUser struct {
	Rank   int64  `json:"rank"`
	UserID string `json:"user_id"`
	Score  int64  `json:"score"`
}

// ScoreResult is the response for a score submission, reflecting post-write state.
type ScoreResult struct {
	GameID string `json:"game_id"`
	UserID string `json:"user_id"`
	Score  int64  `json:"score"`
	Rank   int64  `json:"rank"`
}

// LeaderboardResponse represents a leaderboard page.
type LeaderboardResponse struct {
	GameID  string       `json:"game_id"`
	Limit   int64        `json:"limit"`
	Offset  int64        `json:"offset"`
	Results []RankedUser `json:"results"`
}

// UserContextResponse is a user's neighborhood view of the leaderboard.
type UserContextResponse struct {
	User  RankedUser   `json:"user"`
	Above []RankedUser `json:"above"`
	Below []RankedUser `json:"below"`
}

// StatusResponse is returned by the health and readiness probes.
type StatusResponse struct {
	Status string `json:"status"`
}

// ErrorBody carries a machine-readable code plus a human-readable message.
type ErrorBody struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// ErrorResponse is the envelope for every user-visible failure.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// FieldError identifies a single invalid request field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}
