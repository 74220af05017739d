package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"leaderboard/internal/api/handlers"
	"leaderboard/internal/config"
	"leaderboard/internal/jobs"
	"leaderboard/internal/metrics"
	"leaderboard/internal/models"
	"leaderboard/internal/repository"
	"leaderboard/internal/service"
	ws "leaderboard/internal/websocket"
	"leaderboard/internal/worker"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	fiberws "github.com/gofiber/websocket/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize Redis
	redisClient, err := initRedis(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	log.Println("Connected to Redis")

	store := repository.NewRedisStore(redisClient)

	// The Postgres archive is optional; without it the service runs on the
	// score index alone.
	var archiveRepo *repository.PostgresRepository
	var archivePool *worker.Pool
	if cfg.Database.Enabled {
		db, err := initPostgres(cfg)
		if err != nil {
			log.Fatalf("Failed to connect to PostgreSQL: %v", err)
		}
		log.Println("Connected to PostgreSQL")

		archiveRepo = repository.NewPostgresRepository(db)
		if err := archiveRepo.AutoMigrate(); err != nil {
			log.Fatalf("Failed to run migrations: %v", err)
		}

		archivePool = worker.NewPool(cfg.Archive.Workers, cfg.Archive.QueueSize, archiveRepo)
		archivePool.Start()
	}

	// Initialize service
	leaderboardService := service.NewLeaderboardService(store, archivePool)

	if archiveRepo != nil && cfg.Archive.SyncOnStart {
		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		if err := leaderboardService.SyncFromArchive(ctx, archiveRepo); err != nil {
			log.Printf("Archive sync failed: %v", err)
		}
		cancel()
	}

	// Initialize WebSocket hub
	hub := ws.NewHub(store)
	hubCtx, hubCancel := context.WithCancel(context.Background())
	defer hubCancel()
	go hub.Run(hubCtx)

	// Optional score traffic simulator
	var simulator *jobs.Simulator
	if cfg.Simulator.Enabled {
		simulator = jobs.NewSimulator(leaderboardService, cfg.Simulator)
		simCtx, simCancel := context.WithCancel(context.Background())
		defer simCancel()
		if err := simulator.Start(simCtx); err != nil {
			log.Printf("Failed to start simulator: %v", err)
		}
	}

	// Initialize handlers
	leaderboardHandler := handlers.NewLeaderboardHandler(leaderboardService)

	// Create Fiber app
	app := fiber.New(fiber.Config{
		AppName:      "Leaderboard API",
		ErrorHandler: errorHandler,
	})

	// Middleware
	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format:     "${time} | ${status} | ${latency} | ${method} ${path}\n",
		TimeFormat: "2006-01-02 15:04:05",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept",
	}))
	app.Use(metrics.Middleware())

	// Routes
	v1 := app.Group("/v1")
	v1.Post("/games/:game_id/scores", leaderboardHandler.SubmitScore)
	v1.Get("/games/:game_id/leaderboard", leaderboardHandler.GetLeaderboard)
	v1.Get("/games/:game_id/users/:user_id/context", leaderboardHandler.GetUserContext)

	app.Get("/healthz", leaderboardHandler.Healthz)
	app.Get("/readyz", leaderboardHandler.Readyz)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// WebSocket route with upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if fiberws.IsWebSocketUpgrade(c) {
			gameID := c.Query("game_id")
			if !models.IdentifierRegexp.MatchString(gameID) {
				return fiber.NewError(fiber.StatusBadRequest, "game_id must match "+models.IdentifierPattern)
			}
			c.Locals("game_id", gameID)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws", fiberws.New(func(c *fiberws.Conn) {
		gameID, _ := c.Locals("game_id").(string)
		ws.ServeWS(hub, c, gameID)
	}))

	// Graceful shutdown with worker pool flushing
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit

		log.Println("Shutting down server...")

		if simulator != nil {
			simulator.Stop()
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := app.ShutdownWithContext(ctx); err != nil {
			log.Printf("Server forced to shutdown: %v", err)
		}

		if archivePool != nil {
			log.Println("Flushing archive worker pool...")
			if err := archivePool.Shutdown(30 * time.Second); err != nil {
				log.Printf("Worker pool shutdown error: %v", err)
			}
		}

		if archiveRepo != nil {
			if err := archiveRepo.Close(); err != nil {
				log.Printf("Error closing PostgreSQL: %v", err)
			}
		}
		if err := store.Close(); err != nil {
			log.Printf("Error closing Redis: %v", err)
		}

		log.Println("Server shutdown complete")
	}()

	// Start server
	log.Printf("Server starting on port %d...", cfg.Server.Port)
	if err := app.Listen(fmt.Sprintf(":%d", cfg.Server.Port)); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// initPostgres initializes PostgreSQL connection with connection pooling
func initPostgres(cfg *config.Config) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.GetDSN()), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	// Max connections should cover the archive workers to prevent blocking.
	sqlDB.SetMaxOpenConns(cfg.Archive.Workers + 10)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxLifetime(5 * time.Minute)
	sqlDB.SetConnMaxIdleTime(2 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, err
	}

	return db, nil
}

// initRedis initializes Redis connection with connection pooling
func initRedis(cfg *config.Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.GetRedisAddr(),
		Username:     cfg.Redis.Username,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     20,
		MinIdleConns: 5,
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

// errorHandler translates unhandled errors into the structured envelope.
func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal server error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	errCode := handlers.CodeInternal
	if code == fiber.StatusBadRequest {
		errCode = handlers.CodeValidation
	}

	return c.Status(code).JSON(models.ErrorResponse{
		Error: models.ErrorBody{
			Code:    errCode,
			Message: message,
		},
	})
}
