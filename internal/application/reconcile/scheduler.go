package reconcile

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jbctechsolutions/docsync/internal/application/ports"
	domainErrors "github.com/jbctechsolutions/docsync/internal/domain/errors"
	"github.com/jbctechsolutions/docsync/internal/infrastructure/logging"
)

// DefaultInterval is the scheduler period when none is configured.
const DefaultInterval = 5 * time.Minute

// SchedulerConfig controls the auto-sync loop.
type SchedulerConfig struct {
	Enabled      bool
	Interval     time.Duration
	SnapshotSize int
}

func (c SchedulerConfig) normalized() SchedulerConfig {
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.SnapshotSize <= 0 {
		c.SnapshotSize = ports.SnapshotPageSize
	}
	return c
}

// TickReport describes one scheduler tick.
type TickReport struct {
	ID           string        `json:"id"`
	StartedAt    time.Time     `json:"started_at"`
	FinishedAt   time.Time     `json:"finished_at"`
	Skipped      bool          `json:"skipped,omitempty"`
	SkipReason   string        `json:"skip_reason,omitempty"`
	SnapshotSize int           `json:"snapshot_size"`
	Profiles     []BatchReport `json:"profiles,omitempty"`
	Aborted      bool          `json:"aborted,omitempty"`
	Err          error         `json:"-"`
}

// Pushed returns the number of files pushed across profiles.
func (r TickReport) Pushed() int {
	n := 0
	for _, p := range r.Profiles {
		n += p.Pushed
	}
	return n
}

// Failed returns the number of failed pushes across profiles.
func (r TickReport) Failed() int {
	n := 0
	for _, p := range r.Profiles {
		n += p.Failed
	}
	return n
}

// Scheduler reconciles every profile on an interval. Each tick takes one
// snapshot and walks the profiles in order, pushing pending files one at a time.
// A tick that finds the controller busy is dropped.
type Scheduler struct {
	deps Deps
	disp *Dispatcher

	mu          sync.Mutex
	cfg         SchedulerConfig
	running     bool
	baseCtx     context.Context
	baseCancel  context.CancelFunc
	loopCancel  context.CancelFunc
	unsubscribe func()
	lastTick    *TickReport
	onTick      func(TickReport)

	wg sync.WaitGroup
}

// NewScheduler creates a stopped scheduler.
func NewScheduler(deps Deps, cfg SchedulerConfig) *Scheduler {
	deps = deps.withDefaults()
	return &Scheduler{
		deps: deps,
		disp: NewDispatcher(deps),
		cfg:  cfg.normalized(),
	}
}

// OnTick registers a callback invoked after every tick, including skipped ones.
func (s *Scheduler) OnTick(fn func(TickReport)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onTick = fn
}

// Start arms the loop if enabled and connected, and keeps following controller
// state changes until Stop or ctx is done.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return errors.New("scheduler already running")
	}
	s.running = true
	s.baseCtx, s.baseCancel = context.WithCancel(ctx)
	s.unsubscribe = s.deps.Controller.Subscribe(s.onStateChange)
	s.arm()

	s.deps.Logger.Info("scheduler started", "enabled", s.cfg.Enabled, "interval", s.cfg.Interval.String())
	return nil
}

// Stop tears the loop down and waits for an in-flight tick to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.disarm()
	s.baseCancel()
	s.unsubscribe()
	s.mu.Unlock()

	s.wg.Wait()
	s.deps.Logger.Info("scheduler stopped")
}

// Reconfigure applies a new interval or enabled flag, re-arming the loop. An
// in-flight tick is not interrupted.
func (s *Scheduler) Reconfigure(cfg SchedulerConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cfg = cfg.normalized()
	s.disarm()
	s.arm()
	s.deps.Logger.Info("scheduler reconfigured", "enabled", s.cfg.Enabled, "interval", s.cfg.Interval.String())
}

// Config returns the current configuration.
func (s *Scheduler) Config() SchedulerConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// Armed reports whether the timer loop is active.
func (s *Scheduler) Armed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loopCancel != nil
}

// LastTick returns the report of the most recent tick.
func (s *Scheduler) LastTick() (TickReport, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastTick == nil {
		return TickReport{}, false
	}
	return *s.lastTick, true
}

func (s *Scheduler) onStateChange(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch state {
	case StateDisconnected:
		if s.loopCancel != nil {
			s.deps.Logger.Warn("scheduler disarmed: file store disconnected")
		}
		s.disarm()
	case StateConnected:
		s.arm()
	}
}

// arm starts the timer loop. Callers hold s.mu.
func (s *Scheduler) arm() {
	if !s.running || !s.cfg.Enabled || s.loopCancel != nil || !s.deps.Controller.IsConnected() {
		return
	}
	loopCtx, cancel := context.WithCancel(s.baseCtx)
	s.loopCancel = cancel

	s.wg.Add(1)
	go s.loop(loopCtx, s.baseCtx, s.cfg.Interval)
}

// disarm cancels the timer loop without waiting for it. Callers hold s.mu.
func (s *Scheduler) disarm() {
	if s.loopCancel != nil {
		s.loopCancel()
		s.loopCancel = nil
	}
}

func (s *Scheduler) loop(loopCtx, tickCtx context.Context, interval time.Duration) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-loopCtx.Done():
			return
		case <-ticker.C:
			// Each tick runs on its own goroutine so an overlapping tick reaches the
			// guard and is dropped instead of queuing behind the ticker.
			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				s.RunTick(tickCtx)
			}()
		}
	}
}

// RunTick performs one reconciliation pass over every profile.
func (s *Scheduler) RunTick(ctx context.Context) TickReport {
	cfg := s.Config()
	report := TickReport{ID: uuid.NewString(), StartedAt: time.Now()}
	ctx = logging.WithTrigger(logging.WithTickID(ctx, report.ID), "tick")

	report = s.tick(ctx, cfg, report)
	report.FinishedAt = time.Now()

	if report.Skipped {
		logging.LogTickSkipped(ctx, s.deps.Logger, report.SkipReason)
	} else {
		logging.LogTickComplete(ctx, s.deps.Logger, report.Pushed(), report.Failed(), report.Aborted, report.FinishedAt.Sub(report.StartedAt))
	}

	s.mu.Lock()
	s.lastTick = &report
	onTick := s.onTick
	s.mu.Unlock()
	if onTick != nil {
		onTick(report)
	}
	return report
}

func (s *Scheduler) tick(ctx context.Context, cfg SchedulerConfig, report TickReport) TickReport {
	release, err := s.deps.Controller.TryBegin(ctx, "tick:"+report.ID)
	if err != nil {
		report.Skipped = true
		report.SkipReason = err.Error()
		return report
	}
	defer release()

	ctx, span := s.deps.Tracer.StartTickSpan(ctx, report.ID)
	defer func() {
		span.SetInt("tick.pushed", report.Pushed())
		span.SetBool("tick.aborted", report.Aborted)
		span.EndWithError(report.Err)
	}()

	profiles := s.deps.Profiles.Profiles()
	watchSets := make([]map[string]struct{}, len(profiles))
	anyWatched := false
	for i, p := range profiles {
		w, err := s.deps.Store.Watched(ctx, p.ID)
		if err != nil {
			report.Err = err
			return report
		}
		watchSets[i] = w
		anyWatched = anyWatched || len(w) > 0
	}
	if !anyWatched {
		report.Skipped = true
		report.SkipReason = "no watched files"
		return report
	}

	files, err := s.deps.Lister.List(ctx, ports.ListQuery{PageSize: cfg.SnapshotSize})
	if err != nil {
		report.Err = err
		if domainErrors.IsAuthExpired(err) {
			report.Aborted = true
			s.deps.Controller.Disconnect()
		}
		return report
	}
	report.SnapshotSize = len(files)

	for i, p := range profiles {
		if ctx.Err() != nil {
			report.Err = ctx.Err()
			break
		}
		if len(watchSets[i]) == 0 {
			continue
		}
		if !p.HasCredentials() {
			report.Profiles = append(report.Profiles, BatchReport{ProfileID: p.ID, SkipReason: "profile has no destination credentials"})
			continue
		}

		history, err := s.deps.Store.History(ctx, p.ID)
		if err != nil {
			report.Err = err
			break
		}
		pending := PendingFiles(files, watchSets[i], history)
		if len(pending) == 0 {
			report.Profiles = append(report.Profiles, BatchReport{ProfileID: p.ID})
			continue
		}

		br := s.disp.runBatch(logging.WithProfileID(ctx, p.ID), p, pending)
		report.Profiles = append(report.Profiles, br)
		if br.Aborted {
			report.Aborted = true
			report.Err = domainErrors.AuthExpired("tick aborted at profile "+p.ID, nil)
			break
		}
	}
	return report
}
