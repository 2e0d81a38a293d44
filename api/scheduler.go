/*
scheduler.go - Automated freeze scheduler

PURPOSE:
  Periodically runs the best-effort auto-freeze pass for every known user,
  spending freeze inventory on yesterday's gaps before streaks break.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Derives "yesterday" from the server's default time zone
  - One missed day consumes at most one freeze per habit; the marker entry
    makes the slot non-empty, so repeated runs are no-ops
  - Errors are logged and never abort the sweep

CONFIGURATION:
  - CheckInterval: How often to check (default: 1 hour)
  - Enabled: Whether scheduler is active (default: true)

USAGE:
  scheduler := NewFreezeScheduler(store, svc, "UTC")
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: RunAutoFreeze endpoint (manual trigger)
  - habit/freeze.go: Freezer.ProcessAutoFreezes
*/
package api

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/ember/habit-engine/habit"
	"github.com/ember/habit-engine/store/sqlite"
)

// FreezeScheduler runs the automated freeze pass in the background.
type FreezeScheduler struct {
	Store         *sqlite.Store
	Service       *habit.Service
	TimeZone      string
	CheckInterval time.Duration
	Enabled       bool

	ticker *time.Ticker
	stop   chan bool
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewFreezeScheduler creates a new scheduler.
func NewFreezeScheduler(store *sqlite.Store, svc *habit.Service, timeZone string) *FreezeScheduler {
	if timeZone == "" {
		timeZone = "UTC"
	}
	return &FreezeScheduler{
		Store:         store,
		Service:       svc,
		TimeZone:      timeZone,
		CheckInterval: 1 * time.Hour,
		Enabled:       true,
		stop:          make(chan bool),
	}
}

// Start begins the scheduler.
func (fs *FreezeScheduler) Start() {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if !fs.Enabled {
		log.Println("[Scheduler] Disabled, not starting")
		return
	}

	fs.ticker = time.NewTicker(fs.CheckInterval)
	fs.wg.Add(1)

	go fs.run()

	log.Printf("[Scheduler] Started with check interval: %v", fs.CheckInterval)
}

// Stop stops the scheduler.
func (fs *FreezeScheduler) Stop() {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if fs.ticker != nil {
		fs.ticker.Stop()
		close(fs.stop)
		fs.wg.Wait()
		log.Println("[Scheduler] Stopped")
	}
}

func (fs *FreezeScheduler) run() {
	defer fs.wg.Done()

	// Run immediately on start
	fs.checkAndProcess()

	for {
		select {
		case <-fs.ticker.C:
			fs.checkAndProcess()
		case <-fs.stop:
			return
		}
	}
}

func (fs *FreezeScheduler) checkAndProcess() {
	ctx := context.Background()

	today, err := habit.DeriveDayKey(time.Now(), fs.TimeZone)
	if err != nil {
		log.Printf("[Scheduler] Bad time zone %q: %v", fs.TimeZone, err)
		return
	}

	log.Printf("[Scheduler] Running freeze pass for %s", today)

	userIDs, err := fs.Store.ListUserIDs(ctx)
	if err != nil {
		log.Printf("[Scheduler] Error listing users: %v", err)
		return
	}

	for _, userID := range userIDs {
		if err := fs.Service.RunAutoFreeze(ctx, userID, today); err != nil {
			log.Printf("[Scheduler] Freeze pass failed for user %s: %v", userID, err)
		}
	}

	if len(userIDs) > 0 {
		log.Printf("[Scheduler] Freeze pass completed for %d users", len(userIDs))
	}
}

// RunNow triggers an immediate check (for testing/admin).
func (fs *FreezeScheduler) RunNow() {
	fs.checkAndProcess()
}
