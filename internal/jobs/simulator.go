package jobs

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"leaderboard/internal/config"
	"leaderboard/internal/models"
	"leaderboard/internal/service"
)

// Simulator submits randomized score traffic to one game through the ranking
// engine. It bypasses the HTTP layer, so it exercises the engine and the store
// at full rate for demos and load checks.
type Simulator struct {
	service *service.LeaderboardService
	ticker  *time.Ticker
	stopCh  chan struct{}
	wg      sync.WaitGroup
	running atomic.Bool

	// Metrics
	totalUpdates atomic.Int64
	successCount atomic.Int64
	errorCount   atomic.Int64
	startTime    time.Time

	// Configuration
	gameID         string
	users          []string
	scores         []int64
	tickInterval   time.Duration
	updatesPerTick int
}

// NewSimulator creates a simulator from its config section.
func NewSimulator(svc *service.LeaderboardService, cfg config.SimulatorConfig) *Simulator {
	if cfg.UserCount <= 0 {
		cfg.UserCount = 100
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = 500 * time.Millisecond
	}
	if cfg.UpdatesPerTick <= 0 {
		cfg.UpdatesPerTick = 1
	}

	users := make([]string, cfg.UserCount)
	scores := make([]int64, cfg.UserCount)
	for i := range users {
		users[i] = fmt.Sprintf("sim_user_%d", i+1)
		scores[i] = rand.Int63n(5000)
	}

	return &Simulator{
		service:        svc,
		stopCh:         make(chan struct{}),
		gameID:         cfg.GameID,
		users:          users,
		scores:         scores,
		tickInterval:   cfg.TickInterval,
		updatesPerTick: cfg.UpdatesPerTick,
	}
}

// Start begins the simulation loop
func (s *Simulator) Start(ctx context.Context) error {
	if s.running.Load() {
		return fmt.Errorf("simulation already running")
	}

	s.startTime = time.Now()
	s.running.Store(true)

	log.Printf("Simulator started: game=%s users=%d tick=%v updates/tick=%d",
		s.gameID, len(s.users), s.tickInterval, s.updatesPerTick)

	s.wg.Add(1)
	go s.simulationLoop(ctx)

	s.wg.Add(1)
	go s.metricsReporter(ctx)

	return nil
}

// Stop gracefully stops the simulation
func (s *Simulator) Stop() {
	if !s.running.Load() {
		return
	}

	s.running.Store(false)
	close(s.stopCh)
	s.wg.Wait()

	elapsed := time.Since(s.startTime)
	total := s.totalUpdates.Load()
	log.Printf("Simulator stopped: %d updates (%d ok, %d errors) in %v",
		total, s.successCount.Load(), s.errorCount.Load(), elapsed.Round(time.Second))
}

// IsRunning returns whether the simulation is currently running
func (s *Simulator) IsRunning() bool {
	return s.running.Load()
}

// simulationLoop is the main event loop
func (s *Simulator) simulationLoop(ctx context.Context) {
	defer s.wg.Done()

	s.ticker = time.NewTicker(s.tickInterval)
	defer s.ticker.Stop()

	userIndex := 0

	for {
		select {
		case <-ctx.Done():
			return

		case <-s.stopCh:
			return

		case <-s.ticker.C:
			for i := 0; i < s.updatesPerTick; i++ {
				if userIndex >= len(s.users) {
					userIndex = 0
				}

				// Random walk within the valid score range.
				next := s.scores[userIndex] + rand.Int63n(101) - 50
				if next < 0 {
					next = 0
				}
				if next > models.MaxScore {
					next = models.MaxScore
				}

				s.totalUpdates.Add(1)
				_, err := s.service.SubmitScore(ctx, s.gameID, s.users[userIndex], next, models.ModeLatest)
				if err != nil {
					s.errorCount.Add(1)
					// Log only a sample of failures, not every one.
					if s.errorCount.Load()%100 == 1 {
						log.Printf("Simulator error (total: %d): %v", s.errorCount.Load(), err)
					}
				} else {
					s.successCount.Add(1)
					s.scores[userIndex] = next
				}
				userIndex++
			}
		}
	}
}

// metricsReporter logs metrics periodically
func (s *Simulator) metricsReporter(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			elapsed := time.Since(s.startTime)
			total := s.totalUpdates.Load()
			rate := float64(total) / elapsed.Seconds()
			log.Printf("Simulator: %d updates (%.1f/sec), %d ok, %d errors, uptime %v",
				total, rate, s.successCount.Load(), s.errorCount.Load(), elapsed.Round(time.Second))
		}
	}
}
