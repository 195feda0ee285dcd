package waterfall

import (
	"context"
	"log"
	"time"
)

// JobProcessor drives all runnable waterfall jobs on a fixed tick. Each tick
// re-reads job state from the store and calls Advance, which expires overdue
// offers and sends the next one when its pacing allows. Because Advance is
// idempotent over persisted state, a restarted process simply resumes on its
// first tick.
type JobProcessor struct {
	scheduler *Scheduler
	store     Store
	config    *JobConfig
	done      chan struct{}
}

// JobConfig contains configuration for the tick loop
type JobConfig struct {
	TickInterval time.Duration
	BatchSize    int
}

// DefaultJobConfig returns default tick loop configuration
func DefaultJobConfig() *JobConfig {
	return &JobConfig{
		TickInterval: 30 * time.Second,
		BatchSize:    200,
	}
}

// NewJobProcessor creates a new waterfall tick processor
func NewJobProcessor(scheduler *Scheduler, store Store, config *JobConfig) *JobProcessor {
	if config == nil {
		config = DefaultJobConfig()
	}

	return &JobProcessor{
		scheduler: scheduler,
		store:     store,
		config:    config,
		done:      make(chan struct{}),
	}
}

// Start starts the tick loop. The first pass runs immediately so jobs left
// runnable by a previous process are picked up without waiting an interval.
func (jp *JobProcessor) Start(ctx context.Context) {
	log.Printf("Starting waterfall tick loop with %v interval", jp.config.TickInterval)
	go jp.run(ctx)
}

// Stop stops the tick loop
func (jp *JobProcessor) Stop() {
	close(jp.done)
	log.Println("Waterfall tick loop stopped")
}

func (jp *JobProcessor) run(ctx context.Context) {
	jp.tickAll(ctx)

	ticker := time.NewTicker(jp.config.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			jp.tickAll(ctx)
		case <-jp.done:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (jp *JobProcessor) tickAll(ctx context.Context) {
	jobs, err := jp.store.ListRunnableJobs(ctx, jp.config.BatchSize)
	if err != nil {
		log.Printf("Error listing runnable waterfall jobs: %v", err)
		return
	}

	for _, job := range jobs {
		if _, err := jp.scheduler.Advance(ctx, job.ID); err != nil {
			log.Printf("Error advancing waterfall job %s: %v", job.ID, err)
		}
	}
}
