// Package scheduler drives the periodic publish cycle and guarantees a
// future run is always scheduled, no matter how the current one ends.
package scheduler

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/ezyy-cloud/newsbot/internal/backoff"
	"github.com/ezyy-cloud/newsbot/internal/logger"
	"github.com/ezyy-cloud/newsbot/internal/metrics"
	"github.com/ezyy-cloud/newsbot/internal/quota"
)

// State is the cycle lifecycle. Terminal states always lead back to
// StateScheduled.
type State int

const (
	StateIdle State = iota
	StateScheduled
	StateRunning
	StateCompleted
	StateFailed
	StateWatchdogRecovered
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateScheduled:
		return "scheduled"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateWatchdogRecovered:
		return "watchdog-recovered"
	default:
		return "unknown"
	}
}

// Runner is one full fetch-resolve-publish cycle.
type Runner func(ctx context.Context) error

type Config struct {
	BaseInterval    time.Duration // base posting cadence
	MinimumFloor    time.Duration // never schedule closer than this
	RunTimeout      time.Duration // per-run internal timeout
	WatchdogTimeout time.Duration // must exceed RunTimeout
	LivenessEvery   time.Duration // how often the global liveness check runs
	LivenessStale   time.Duration // "no run started in this long" threshold
	InitialDelayMin time.Duration // startup delay window, avoids thundering herd
	InitialDelayMax time.Duration
	PacingStep      float64 // fraction applied when quota is off the curve
}

func (c *Config) applyDefaults() {
	if c.BaseInterval <= 0 {
		c.BaseInterval = time.Hour
	}
	if c.MinimumFloor <= 0 {
		c.MinimumFloor = 2 * time.Minute
	}
	if c.RunTimeout <= 0 {
		c.RunTimeout = 4 * time.Minute
	}
	if c.WatchdogTimeout <= c.RunTimeout {
		c.WatchdogTimeout = c.RunTimeout + time.Minute
	}
	if c.LivenessEvery <= 0 {
		c.LivenessEvery = 30 * time.Minute
	}
	if c.LivenessStale <= 0 {
		c.LivenessStale = 45 * time.Minute
	}
	if c.InitialDelayMin <= 0 {
		c.InitialDelayMin = 15 * time.Second
	}
	if c.InitialDelayMax <= c.InitialDelayMin {
		c.InitialDelayMax = c.InitialDelayMin + 30*time.Second
	}
	if c.PacingStep <= 0 {
		c.PacingStep = 0.25
	}
}

// Scheduler owns the single-flight invariant: at most one cycle runs at a
// time, and a wedged cycle is force-recovered by the watchdog.
type Scheduler struct {
	cfg     Config
	run     Runner
	backoff *backoff.Controller
	quota   *quota.Tracker
	buffer  float64 // quota safety buffer, in credits

	mu             sync.Mutex
	state          State
	inFlight       bool
	cycleGen       uint64
	nextRunAt      time.Time
	lastRunStarted time.Time
	runTimer       *time.Timer
	watchdogTimer  *time.Timer
	cancelRun      context.CancelFunc
	stopped        bool

	rootCtx context.Context
	rng     *rand.Rand
	log     interface {
		Info(msg string, args ...any)
		Warn(msg string, args ...any)
		Debug(msg string, args ...any)
	}
}

func New(cfg Config, run Runner, controller *backoff.Controller, tracker *quota.Tracker, safetyBuffer int) *Scheduler {
	cfg.applyDefaults()
	return &Scheduler{
		cfg:     cfg,
		run:     run,
		backoff: controller,
		quota:   tracker,
		buffer:  float64(safetyBuffer),
		state:   StateIdle,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
		log:     logger.With("scheduler"),
	}
}

// Start arms the first run after a short jittered delay and launches the
// global liveness check. It returns immediately.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.rootCtx = ctx
	window := s.cfg.InitialDelayMax - s.cfg.InitialDelayMin
	initial := s.cfg.InitialDelayMin + time.Duration(s.rng.Int63n(int64(window)))
	s.scheduleLocked(initial)
	s.mu.Unlock()

	go s.livenessLoop(ctx)
	s.log.Info("scheduler started", "first_run_in", initial)
}

// Stop cancels timers and any in-flight run. Used on shutdown only.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	if s.runTimer != nil {
		s.runTimer.Stop()
	}
	if s.watchdogTimer != nil {
		s.watchdogTimer.Stop()
	}
	if s.cancelRun != nil {
		s.cancelRun()
	}
}

// Snapshot reports the current state for health checks.
func (s *Scheduler) Snapshot() (State, time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, s.nextRunAt, s.inFlight
}

// scheduleLocked arms the run timer. This is the only place a future run
// is created, and every terminal path goes through it.
func (s *Scheduler) scheduleLocked(delay time.Duration) {
	if s.stopped {
		return
	}
	s.state = StateScheduled
	s.nextRunAt = time.Now().Add(delay)
	if s.runTimer != nil {
		s.runTimer.Stop()
	}
	s.runTimer = time.AfterFunc(delay, s.fire)
	s.log.Debug("next run scheduled", "delay", delay)
}

// fire starts one cycle unless one is already in flight.
func (s *Scheduler) fire() {
	s.mu.Lock()
	if s.stopped || s.inFlight {
		s.mu.Unlock()
		return
	}
	s.inFlight = true
	s.state = StateRunning
	s.lastRunStarted = time.Now()
	s.cycleGen++
	gen := s.cycleGen

	ctx := s.rootCtx
	if ctx == nil {
		ctx = context.Background()
	}
	runCtx, cancel := context.WithTimeout(ctx, s.cfg.RunTimeout)
	s.cancelRun = cancel

	// The watchdog is the last line of defense: it must outlive any
	// expected cycle duration and can never be skipped.
	if s.watchdogTimer != nil {
		s.watchdogTimer.Stop()
	}
	s.watchdogTimer = time.AfterFunc(s.cfg.WatchdogTimeout, func() {
		s.watchdogRecover(gen)
	})
	s.mu.Unlock()

	go func() {
		started := time.Now()
		err := s.run(runCtx)
		cancel()
		s.finish(gen, started, err)
	}()
}

// finish handles normal cycle completion or failure. If the watchdog got
// there first this is a no-op: the cycle was already recovered.
func (s *Scheduler) finish(gen uint64, started time.Time, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.cycleGen || !s.inFlight {
		return
	}
	s.inFlight = false
	if s.watchdogTimer != nil {
		s.watchdogTimer.Stop()
	}

	duration := time.Since(started)
	metrics.Global.RecordCycleDuration(duration)

	if err != nil {
		s.state = StateFailed
		metrics.Global.IncrementCyclesFailed()
		metrics.Global.SetError(err.Error())
		s.log.Warn("cycle failed", "error", err, "duration", duration)
	} else {
		s.state = StateCompleted
		metrics.Global.IncrementCyclesCompleted()
		metrics.Global.SetLastRun()
		s.log.Info("cycle completed", "duration", duration)
	}

	s.scheduleLocked(s.nextDelayLocked())
}

// watchdogRecover force-clears a wedged cycle and reschedules. This path
// must never be skippable.
func (s *Scheduler) watchdogRecover(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.cycleGen || !s.inFlight {
		return
	}
	s.inFlight = false
	s.state = StateWatchdogRecovered
	if s.cancelRun != nil {
		s.cancelRun()
	}
	metrics.Global.IncrementWatchdogRecovered()
	s.log.Warn("watchdog recovered a wedged cycle")

	s.scheduleLocked(s.nextDelayLocked())
}

// nextDelayLocked computes max(base, floor) + backoff, with the base
// stretched or squeezed when quota usage is off the ideal daily curve.
func (s *Scheduler) nextDelayLocked() time.Duration {
	base := s.cfg.BaseInterval

	if s.quota != nil {
		ahead := s.quota.AheadOfCurve()
		if ahead > s.buffer {
			base = time.Duration(float64(base) * (1 + s.cfg.PacingStep))
		} else if ahead < -s.buffer {
			base = time.Duration(float64(base) * (1 - s.cfg.PacingStep))
		}
	}

	if base < s.cfg.MinimumFloor {
		base = s.cfg.MinimumFloor
	}
	if s.backoff != nil {
		base += s.backoff.CurrentDelay()
	}
	return base
}

// livenessLoop is independent of the per-cycle watchdog: it catches the
// scheduling chain itself dying silently.
func (s *Scheduler) livenessLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.LivenessEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			// Dead chain: nothing started recently and the armed run is
			// long overdue, meaning its timer never fired. A legitimately
			// long delay keeps nextRunAt in the future and is left alone.
			stale := !s.inFlight && !s.stopped &&
				time.Since(s.lastRunStarted) > s.cfg.LivenessStale &&
				time.Since(s.nextRunAt) > s.cfg.LivenessEvery
			s.mu.Unlock()
			if stale {
				s.log.Warn("liveness check forcing a run")
				s.fire()
			}
		}
	}
}
