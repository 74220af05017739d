package handlers

import (
	"errors"
	"log"
	"strconv"

	"leaderboard/internal/models"
	"leaderboard/internal/service"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

// Error codes used in the response envelope.
const (
	CodeValidation       = "VALIDATION_ERROR"
	CodeUserNotFound     = "USER_NOT_FOUND"
	CodeRedisUnavailable = "REDIS_UNAVAILABLE"
	CodeInternal         = "INTERNAL_ERROR"
)

// LeaderboardHandler handles HTTP requests for the leaderboard
type LeaderboardHandler struct {
	service   *service.LeaderboardService
	validator *validator.Validate
}

// NewLeaderboardHandler creates a new leaderboard handler
func NewLeaderboardHandler(svc *service.LeaderboardService) *LeaderboardHandler {
	v := validator.New()
	// validator has no regex tag; register the identifier rule once.
	_ = v.RegisterValidation("identifier", func(fl validator.FieldLevel) bool {
		return models.IdentifierRegexp.MatchString(fl.Field().String())
	})

	return &LeaderboardHandler{
		service:   svc,
		validator: v,
	}
}

// SubmitScore handles POST /v1/games/:game_id/scores
func (h *LeaderboardHandler) SubmitScore(c *fiber.Ctx) error {
	gameID := c.Params("game_id")
	if !models.IdentifierRegexp.MatchString(gameID) {
		return validationError(c, []models.FieldError{
			{Field: "game_id", Message: "must match " + models.IdentifierPattern},
		})
	}

	var req models.ScoreSubmission
	if err := c.BodyParser(&req); err != nil {
		return validationError(c, []models.FieldError{
			{Field: "body", Message: "invalid request body"},
		})
	}
	if req.Mode == "" {
		req.Mode = models.ModeBest
	}

	if err := h.validator.Struct(&req); err != nil {
		return validationError(c, fieldErrors(err))
	}

	ranked, err := h.service.SubmitScore(c.Context(), gameID, req.UserID, *req.Score, req.Mode)
	if err != nil {
		// Inconsistent writes and store outages are both internal here; the
		// caller cannot correct either.
		log.Printf("Score submission failed for %s/%s: %v", gameID, req.UserID, err)
		return errorJSON(c, fiber.StatusInternalServerError, CodeInternal, "Failed to submit score", nil)
	}

	return c.Status(fiber.StatusOK).JSON(models.ScoreResult{
		GameID: gameID,
		UserID: ranked.UserID,
		Score:  ranked.Score,
		Rank:   ranked.Rank,
	})
}

// GetLeaderboard handles GET /v1/games/:game_id/leaderboard
func (h *LeaderboardHandler) GetLeaderboard(c *fiber.Ctx) error {
	gameID := c.Params("game_id")
	if !models.IdentifierRegexp.MatchString(gameID) {
		return validationError(c, []models.FieldError{
			{Field: "game_id", Message: "must match " + models.IdentifierPattern},
		})
	}

	limit, err := strconv.ParseInt(c.Query("limit", "10"), 10, 64)
	if err != nil || !models.AllowedLimits[limit] {
		return validationError(c, []models.FieldError{
			{Field: "limit", Message: "limit must be 10 or 100"},
		})
	}

	offset, err := strconv.ParseInt(c.Query("offset", "0"), 10, 64)
	if err != nil || offset < 0 {
		return validationError(c, []models.FieldError{
			{Field: "offset", Message: "offset must be a non-negative integer"},
		})
	}

	results, err := h.service.GetLeaderboard(c.Context(), gameID, limit, offset)
	if err != nil {
		log.Printf("Leaderboard fetch failed for %s: %v", gameID, err)
		return errorJSON(c, fiber.StatusInternalServerError, CodeInternal, "Failed to retrieve leaderboard", nil)
	}

	return c.Status(fiber.StatusOK).JSON(models.LeaderboardResponse{
		GameID:  gameID,
		Limit:   limit,
		Offset:  offset,
		Results: results,
	})
}

// GetUserContext handles GET /v1/games/:game_id/users/:user_id/context
func (h *LeaderboardHandler) GetUserContext(c *fiber.Ctx) error {
	gameID := c.Params("game_id")
	userID := c.Params("user_id")

	var fields []models.FieldError
	if !models.IdentifierRegexp.MatchString(gameID) {
		fields = append(fields, models.FieldError{Field: "game_id", Message: "must match " + models.IdentifierPattern})
	}
	if !models.IdentifierRegexp.MatchString(userID) {
		fields = append(fields, models.FieldError{Field: "user_id", Message: "must match " + models.IdentifierPattern})
	}
	if len(fields) > 0 {
		return validationError(c, fields)
	}

	window, err := strconv.ParseInt(c.Query("window", strconv.Itoa(models.DefaultWindow)), 10, 64)
	if err != nil || window < 0 || window > models.MaxWindow {
		return validationError(c, []models.FieldError{
			{Field: "window", Message: "window must be between 0 and 25"},
		})
	}

	context, err := h.service.GetUserContext(c.Context(), gameID, userID, window)
	if err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			// Expected miss, not a fault; no error log.
			return errorJSON(c, fiber.StatusNotFound, CodeUserNotFound, "User has no score for this game", nil)
		}
		log.Printf("Context fetch failed for %s/%s: %v", gameID, userID, err)
		return errorJSON(c, fiber.StatusInternalServerError, CodeInternal, "Failed to retrieve user context", nil)
	}

	return c.Status(fiber.StatusOK).JSON(context)
}

// Healthz handles GET /healthz (process liveness only, no dependency checks).
func (h *LeaderboardHandler) Healthz(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(models.StatusResponse{Status: "ok"})
}

// Readyz handles GET /readyz. Readiness verifies backing Redis connectivity,
// not just process liveness.
func (h *LeaderboardHandler) Readyz(c *fiber.Ctx) error {
	if err := h.service.Ping(c.Context()); err != nil {
		return errorJSON(c, fiber.StatusServiceUnavailable, CodeRedisUnavailable, "Redis readiness check failed", nil)
	}
	return c.Status(fiber.StatusOK).JSON(models.StatusResponse{Status: "ok"})
}

// errorJSON writes the structured error envelope.
func errorJSON(c *fiber.Ctx, status int, code, message string, details interface{}) error {
	return c.Status(status).JSON(models.ErrorResponse{
		Error: models.ErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	})
}

// validationError writes a 400 envelope with a structured errors list.
func validationError(c *fiber.Ctx, fields []models.FieldError) error {
	return errorJSON(c, fiber.StatusBadRequest, CodeValidation, "Request validation failed",
		fiber.Map{"errors": fields})
}

// fieldErrors flattens validator output into the envelope's errors list.
func fieldErrors(err error) []models.FieldError {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []models.FieldError{{Field: "body", Message: err.Error()}}
	}

	fields := make([]models.FieldError, 0, len(verrs))
	for _, fe := range verrs {
		var msg string
		switch fe.Tag() {
		case "identifier":
			msg = "must match " + models.IdentifierPattern
		case "required":
			msg = "is required"
		case "min", "max":
			msg = "must be an integer between 0 and 2000000000"
		case "oneof":
			msg = "must be one of: best, latest"
		default:
			msg = "invalid value"
		}
		fields = append(fields, models.FieldError{Field: fe.Field(), Message: msg})
	}
	return fields
}
