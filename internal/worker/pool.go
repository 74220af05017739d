package worker

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"leaderboard/internal/metrics"
)

// ScoreUpdateTask represents a task to persist an applied score to PostgreSQL
type ScoreUpdateTask struct {
	GameID string
	UserID string
	Score  int64
}

// Archiver persists applied scores. Satisfied by repository.PostgresRepository.
type Archiver interface {
	UpsertScore(ctx context.Context, gameID, userID string, score int64) error
}

// Pool manages a pool of workers for asynchronous database writes. Writes are
// best-effort: when the queue is full the task is dropped and counted, since
// the score index remains the source of truth.
type Pool struct {
	jobs        chan ScoreUpdateTask
	workerCount int
	archive     Archiver
	wg          sync.WaitGroup
	ctx         context.Context
	cancel      context.CancelFunc
}

// NewPool creates a new worker pool
func NewPool(workerCount, queueSize int, archive Archiver) *Pool {
	ctx, cancel := context.WithCancel(context.Background())

	return &Pool{
		jobs:        make(chan ScoreUpdateTask, queueSize),
		workerCount: workerCount,
		archive:     archive,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start initializes and starts all worker goroutines
func (p *Pool) Start() {
	log.Printf("Starting archive worker pool with %d workers and queue size %d", p.workerCount, cap(p.jobs))

	for i := 1; i <= p.workerCount; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// worker is the main worker loop that processes jobs
func (p *Pool) worker(id int) {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return

		case task, ok := <-p.jobs:
			if !ok {
				return
			}
			p.processTask(id, task)
			metrics.ArchiveQueueDepth.Set(float64(len(p.jobs)))
		}
	}
}

// processTask handles a single score update task with error recovery
func (p *Pool) processTask(workerID int, task ScoreUpdateTask) {
	// Recover from panics to prevent worker crash
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Worker #%d panic recovered: %v (game: %s, user: %s)", workerID, r, task.GameID, task.UserID)
			metrics.ArchiveTasks.WithLabelValues("failed").Inc()
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := p.archive.UpsertScore(ctx, task.GameID, task.UserID, task.Score); err != nil {
		log.Printf("Worker #%d failed to archive score for %s/%s: %v", workerID, task.GameID, task.UserID, err)
		metrics.ArchiveTasks.WithLabelValues("failed").Inc()
		return
	}

	metrics.ArchiveTasks.WithLabelValues("processed").Inc()
}

// Submit attempts to add a task to the queue with backpressure handling
func (p *Pool) Submit(task ScoreUpdateTask) error {
	select {
	case p.jobs <- task:
		metrics.ArchiveQueueDepth.Set(float64(len(p.jobs)))
		return nil

	default:
		// Queue is full - backpressure detected
		log.Printf("Backpressure: queue full, dropping archive write for %s/%s", task.GameID, task.UserID)
		metrics.ArchiveTasks.WithLabelValues("dropped").Inc()
		return fmt.Errorf("worker pool queue full (backpressure)")
	}
}

// Shutdown gracefully stops the worker pool, flushing queued tasks.
func (p *Pool) Shutdown(timeout time.Duration) error {
	// Close the job channel to signal no more jobs will be added
	close(p.jobs)

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Printf("All archive workers finished processing remaining jobs")
		return nil

	case <-time.After(timeout):
		p.cancel() // Force cancel remaining operations
		return fmt.Errorf("shutdown timeout exceeded")
	}
}

// QueueDepth returns the number of pending tasks.
func (p *Pool) QueueDepth() int {
	return len(p.jobs)
}
