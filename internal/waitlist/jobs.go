package waitlist

import (
	"context"
	"log"
	"time"
)

// SweepProcessor runs the background expiry sweep over waitlist entries.
// Lazy expiry at ranking time catches entries as they are considered; the
// sweep catches the rest so stale entries do not linger active.
type SweepProcessor struct {
	service Service
	config  *SweepConfig
	done    chan struct{}
}

// SweepConfig contains configuration for the expiry sweep
type SweepConfig struct {
	Interval time.Duration
}

// DefaultSweepConfig returns default sweep configuration
func DefaultSweepConfig() *SweepConfig {
	return &SweepConfig{
		Interval: 1 * time.Minute,
	}
}

// NewSweepProcessor creates a new sweep processor
func NewSweepProcessor(service Service, config *SweepConfig) *SweepProcessor {
	if config == nil {
		config = DefaultSweepConfig()
	}

	return &SweepProcessor{
		service: service,
		config:  config,
		done:    make(chan struct{}),
	}
}

// Start starts the sweep loop
func (sp *SweepProcessor) Start(ctx context.Context) {
	log.Printf("Starting waitlist expiry sweep with %v interval", sp.config.Interval)
	go sp.run(ctx)
}

// Stop stops the sweep loop
func (sp *SweepProcessor) Stop() {
	close(sp.done)
	log.Println("Waitlist expiry sweep stopped")
}

func (sp *SweepProcessor) run(ctx context.Context) {
	ticker := time.NewTicker(sp.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			expired, err := sp.service.ProcessExpiredEntries(ctx)
			if err != nil {
				log.Printf("Error sweeping expired waitlist entries: %v", err)
				continue
			}
			if expired > 0 {
				log.Printf("Expired %d overdue waitlist entries", expired)
			}
		case <-sp.done:
			return
		case <-ctx.Done():
			return
		}
	}
}
