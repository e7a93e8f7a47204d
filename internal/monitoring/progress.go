// Package monitoring reports training progress and process health on a
// fixed interval, independent of the per-episode logging in the trainer.
package monitoring

import (
	"runtime"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// StatsFunc returns the current progress numbers to report.
type StatsFunc func() (episodes int, bestScore int, meanScore float64)

// ProgressMonitor periodically logs training throughput together with
// runtime metrics, and flags goroutine growth that looks like a leak.
type ProgressMonitor struct {
	mu            sync.Mutex
	statsFn       StatsFunc
	interval      time.Duration
	baseline      int
	peakGoroutine int
	lastEpisodes  int
	lastCheck     time.Time
	stopChan      chan struct{}
	wg            sync.WaitGroup
	logger        zerolog.Logger
}

// NewProgressMonitor creates a monitor that polls statsFn every interval.
func NewProgressMonitor(statsFn StatsFunc, interval time.Duration, logger zerolog.Logger) *ProgressMonitor {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	baseline := runtime.NumGoroutine()
	return &ProgressMonitor{
		statsFn:       statsFn,
		interval:      interval,
		baseline:      baseline,
		peakGoroutine: baseline,
		lastCheck:     time.Now(),
		stopChan:      make(chan struct{}),
		logger:        logger.With().Str("component", "monitoring").Logger(),
	}
}

// Start begins background reporting.
func (pm *ProgressMonitor) Start() {
	pm.wg.Add(1)
	go pm.loop()
	pm.logger.Info().
		Int("baseline_goroutines", pm.baseline).
		Dur("interval", pm.interval).
		Msg("Started progress monitoring")
}

// Stop halts reporting and waits for the loop to exit. Safe to call once.
func (pm *ProgressMonitor) Stop() {
	close(pm.stopChan)
	pm.wg.Wait()
}

func (pm *ProgressMonitor) loop() {
	defer pm.wg.Done()

	ticker := time.NewTicker(pm.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			pm.report()
		case <-pm.stopChan:
			return
		}
	}
}

func (pm *ProgressMonitor) report() {
	episodes, best, mean := pm.statsFn()
	goroutines := runtime.NumGoroutine()

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	pm.mu.Lock()
	elapsed := time.Since(pm.lastCheck)
	rate := float64(episodes-pm.lastEpisodes) / elapsed.Seconds()
	pm.lastEpisodes = episodes
	pm.lastCheck = time.Now()
	if goroutines > pm.peakGoroutine {
		pm.peakGoroutine = goroutines
	}
	peak := pm.peakGoroutine
	pm.mu.Unlock()

	pm.logger.Info().
		Int("episodes", episodes).
		Int("best_score", best).
		Float64("mean_score", mean).
		Float64("episodes_per_sec", rate).
		Int("goroutines", goroutines).
		Uint64("heap_mb", mem.HeapAlloc/(1024*1024)).
		Msg("Training progress")

	// Training holds a fixed set of goroutines; sustained growth over
	// the baseline means something is leaking.
	if goroutines > 4*pm.baseline && goroutines > 100 {
		pm.logger.Warn().
			Int("current", goroutines).
			Int("baseline", pm.baseline).
			Int("peak", peak).
			Msg("High goroutine count detected - possible leak")
	}
}

// Metrics is a snapshot of the monitor's counters.
type Metrics struct {
	BaselineGoroutines int `json:"baseline_goroutines"`
	PeakGoroutines     int `json:"peak_goroutines"`
}

// Snapshot returns the current monitor counters.
func (pm *ProgressMonitor) Snapshot() Metrics {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	return Metrics{
		BaselineGoroutines: pm.baseline,
		PeakGoroutines:     pm.peakGoroutine,
	}
}
