// Package simulation schedules monster simulations over a pool of executor
// slots and aggregates their results into dungeon and slayer tier composites.
package simulation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/lawnchairsociety/combatsim/internal/combat"
	"github.com/lawnchairsociety/combatsim/internal/gamedata"
	"github.com/lawnchairsociety/combatsim/internal/logger"
)

var (
	ErrRunInProgress   = errors.New("simulation run in progress")
	ErrUnknownScope    = errors.New("unknown simulation scope")
	ErrSchedulerClosed = errors.New("scheduler not running")
)

// ReasonExecutorError marks a monster whose executor returned an error
const ReasonExecutorError = "simulation error"

// Executor runs the trials for one monster.
type Executor interface {
	Simulate(ctx context.Context, req combat.Request) (combat.Result, error)
}

// Analyzer derives extra metrics from the result table after aggregation.
type Analyzer interface {
	Analyze(table *Table, run *RunContext)
}

// RunContext is the state of one run. Executors and analyzers read the
// exported fields; the rest is owned by the coordinator goroutine.
type RunContext struct {
	ID        string
	Scope     Scope
	Options   combat.Options
	Player    combat.Player
	StartedAt time.Time

	ctx       context.Context
	cancel    context.CancelFunc
	cancelled bool
}

// Options configure a Scheduler.
type Options struct {
	Workers int // Defaults to runtime.NumCPU()
	Sim     combat.Options
	Player  combat.Player
	Filters Filters
}

type job struct {
	monsterID int
	run       *RunContext
}

type completion struct {
	slot      int
	monsterID int
	result    combat.Result
	err       error
	elapsed   time.Duration
}

type slot struct {
	id       int
	executor Executor
	jobs     chan job
	busy     bool
	selfTime time.Duration
}

// Scheduler owns the job queue, the executor slots and the result table.
// All state is owned by a single coordinator goroutine; public methods hand
// closures to it and wait for them to run.
type Scheduler struct {
	data        *gamedata.Data
	slots       []*slot
	cmds        chan func()
	completions chan completion
	done        chan struct{}
	started     atomic.Bool
	startOnce   sync.Once
	closeOnce   sync.Once
	wg          sync.WaitGroup

	hooksMu   sync.RWMutex
	listeners []Listener
	analyzers []Analyzer
	observer  Observer

	// Owned by the coordinator goroutine
	table         *Table
	queue         []int
	inQueue       map[int]bool
	pendingScope  Scope
	run           *RunContext
	lastRun       *RunContext
	inProgress    bool
	jobsStarted   int
	jobsCompleted int
	total         int
	options       combat.Options
	player        combat.Player
	filters       Filters
	testTotal     int
	testRun       int
	log           *slog.Logger
}

// NewScheduler creates a scheduler with one slot per worker. A slot whose
// executor cannot be created is skipped; it fails only when no slot exists.
func NewScheduler(data *gamedata.Data, newExecutor func(slot int) (Executor, error), opts Options) (*Scheduler, error) {
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	s := &Scheduler{
		data:         data,
		cmds:         make(chan func()),
		completions:  make(chan completion),
		done:         make(chan struct{}),
		observer:     nopObserver{},
		table:        NewTable(data),
		inQueue:      make(map[int]bool),
		pendingScope: All,
		options:      opts.Sim,
		player:       opts.Player,
		filters:      opts.Filters,
		log:          logger.With(),
	}

	for i := 0; i < workers; i++ {
		exec, err := newExecutor(i)
		if err != nil {
			logger.Error("Failed to create executor", "slot", i, "error", err)
			continue
		}
		s.slots = append(s.slots, &slot{
			id:       len(s.slots),
			executor: exec,
			jobs:     make(chan job, 1),
		})
	}
	if len(s.slots) == 0 {
		return nil, fmt.Errorf("no executor slots could be created (%d requested)", workers)
	}

	return s, nil
}

// Workers returns the number of executor slots.
func (s *Scheduler) Workers() int {
	return len(s.slots)
}

// AddListener registers a listener for run events.
func (s *Scheduler) AddListener(l Listener) {
	s.hooksMu.Lock()
	defer s.hooksMu.Unlock()
	s.listeners = append(s.listeners, l)
}

// AddAnalyzer registers an analyzer run after aggregation.
func (s *Scheduler) AddAnalyzer(a Analyzer) {
	s.hooksMu.Lock()
	defer s.hooksMu.Unlock()
	s.analyzers = append(s.analyzers, a)
}

// SetObserver installs instrumentation hooks.
func (s *Scheduler) SetObserver(o Observer) {
	s.hooksMu.Lock()
	defer s.hooksMu.Unlock()
	if o == nil {
		o = nopObserver{}
	}
	s.observer = o
}

// Start launches the coordinator and slot goroutines.
func (s *Scheduler) Start() {
	s.startOnce.Do(func() {
		for _, sl := range s.slots {
			s.wg.Add(1)
			go s.worker(sl)
		}
		s.wg.Add(1)
		go s.loop()
		s.started.Store(true)
		logger.Info("Simulation scheduler started", "workers", len(s.slots))
	})
}

// Close cancels any run in progress and stops all goroutines.
func (s *Scheduler) Close() {
	s.closeOnce.Do(func() {
		if !s.started.Load() {
			close(s.done)
			return
		}
		_ = s.exec(func() {
			if s.run != nil {
				s.run.cancel()
			}
		})
		close(s.done)
		s.wg.Wait()
		logger.Info("Simulation scheduler stopped")
	})
}

// exec runs fn on the coordinator goroutine and waits for it
func (s *Scheduler) exec(fn func()) error {
	if !s.started.Load() {
		return ErrSchedulerClosed
	}
	finished := make(chan struct{})
	select {
	case s.cmds <- func() { defer close(finished); fn() }:
	case <-s.done:
		return ErrSchedulerClosed
	}
	<-finished
	return nil
}

func (s *Scheduler) loop() {
	defer s.wg.Done()
	for {
		select {
		case fn := <-s.cmds:
			fn()
		case c := <-s.completions:
			s.onJobComplete(c)
		case <-s.done:
			return
		}
	}
}

// worker runs jobs for one slot until the scheduler closes
func (s *Scheduler) worker(sl *slot) {
	defer s.wg.Done()
	for {
		select {
		case j := <-sl.jobs:
			start := time.Now()
			result, err := s.simulate(sl, j)
			c := completion{
				slot:      sl.id,
				monsterID: j.monsterID,
				result:    result,
				err:       err,
				elapsed:   time.Since(start),
			}
			select {
			case s.completions <- c:
			case <-s.done:
				return
			}
		case <-s.done:
			return
		}
	}
}

// simulate calls the executor, turning a panic into an error
func (s *Scheduler) simulate(sl *slot, j job) (result combat.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("executor panic: %v", r)
		}
	}()
	return sl.executor.Simulate(j.run.ctx, combat.Request{
		MonsterID: j.monsterID,
		Player:    j.run.Player,
		Options:   j.run.Options,
	})
}

// Enqueue queues the monsters for a scope. Notices describe selections that
// were filtered or areas the player cannot enter.
func (s *Scheduler) Enqueue(scope Scope) ([]Notice, error) {
	var notices []Notice
	var err error
	if e := s.exec(func() { notices, err = s.enqueue(scope) }); e != nil {
		return nil, e
	}
	return notices, err
}

// Run starts simulating the queued jobs. It does nothing while a run is in progress.
func (s *Scheduler) Run() error {
	var err error
	if e := s.exec(func() { err = s.startRun() }); e != nil {
		return e
	}
	return err
}

// EnqueueAndRun enqueues a scope and starts the run in one step.
func (s *Scheduler) EnqueueAndRun(scope Scope) ([]Notice, error) {
	var notices []Notice
	var err error
	e := s.exec(func() {
		notices, err = s.enqueue(scope)
		if err == nil {
			err = s.startRun()
		}
	})
	if e != nil {
		return nil, e
	}
	return notices, err
}

// RunTest runs n consecutive full simulations of every reachable entity.
func (s *Scheduler) RunTest(n int) error {
	if n <= 0 {
		return fmt.Errorf("test run count must be positive, got %d", n)
	}
	var err error
	e := s.exec(func() {
		if s.inProgress {
			err = ErrRunInProgress
			return
		}
		s.testTotal = n
		s.testRun = 0
		err = s.startTestRun()
	})
	if e != nil {
		return e
	}
	return err
}

// Cancel stops dispatching new jobs. Jobs already running report back and
// are merged. With no job running the run completes immediately.
func (s *Scheduler) Cancel() error {
	return s.exec(s.cancel)
}

// Reset clears the queue and marks every monster as not simulated.
func (s *Scheduler) Reset() error {
	var err error
	if e := s.exec(func() {
		if s.inProgress {
			err = ErrRunInProgress
			return
		}
		s.queue = nil
		s.resetSimDone()
		s.hooks().observer.QueueLength(0)
	}); e != nil {
		return e
	}
	return err
}

// Reanalyze recomputes composites and reruns analyzers without simulating,
// e.g. after economic settings change.
func (s *Scheduler) Reanalyze() error {
	var err error
	if e := s.exec(func() {
		if s.inProgress {
			err = ErrRunInProgress
			return
		}
		run := s.lastRun
		if run == nil {
			run = s.newRunContext()
		}
		s.analyze(run)
	}); e != nil {
		return e
	}
	return err
}

// SetPlayer replaces the player snapshot used by later runs.
func (s *Scheduler) SetPlayer(p combat.Player) error {
	return s.whenIdle(func() { s.player = p })
}

// SetOptions replaces the trial options used by later runs.
func (s *Scheduler) SetOptions(o combat.Options) error {
	return s.whenIdle(func() { s.options = o })
}

// SetFilters replaces the entity filters.
func (s *Scheduler) SetFilters(f Filters) error {
	return s.whenIdle(func() { s.filters = f })
}

// Filters returns the entity filters in effect. A scheduler that is not
// running reports no filters.
func (s *Scheduler) Filters() Filters {
	var f Filters
	_ = s.exec(func() { f = s.filters })
	return f
}

func (s *Scheduler) whenIdle(fn func()) error {
	var err error
	if e := s.exec(func() {
		if s.inProgress {
			err = ErrRunInProgress
			return
		}
		fn()
	}); e != nil {
		return e
	}
	return err
}

// Result returns a copy of one entity's result.
func (s *Scheduler) Result(kind string, id int) (*combat.Result, bool) {
	var result *combat.Result
	var ok bool
	_ = s.exec(func() {
		var r *combat.Result
		if r, ok = s.table.Lookup(kind, id); ok {
			result = r.Clone()
		}
	})
	return result, ok
}

// Snapshot returns a copy of the whole result table.
func (s *Scheduler) Snapshot() *Table {
	var t *Table
	if err := s.exec(func() { t = s.table.Clone() }); err != nil {
		return nil
	}
	return t
}

// QueueLength returns the number of jobs waiting for a slot.
func (s *Scheduler) QueueLength() int {
	n := 0
	_ = s.exec(func() { n = len(s.queue) })
	return n
}

// InProgress reports whether a run is active.
func (s *Scheduler) InProgress() bool {
	busy := false
	_ = s.exec(func() { busy = s.inProgress })
	return busy
}

// Everything below runs on the coordinator goroutine.

func (s *Scheduler) newRunContext() *RunContext {
	ctx, cancel := context.WithCancel(context.Background())
	return &RunContext{
		ID:        uuid.NewString(),
		Scope:     s.pendingScope,
		Options:   s.options,
		Player:    s.player,
		StartedAt: time.Now(),
		ctx:       ctx,
		cancel:    cancel,
	}
}

func (s *Scheduler) startRun() error {
	if s.inProgress {
		return ErrRunInProgress
	}

	s.run = s.newRunContext()
	s.inProgress = true
	s.jobsStarted = 0
	s.jobsCompleted = 0
	s.total = len(s.queue)
	for _, sl := range s.slots {
		sl.selfTime = 0
	}
	s.log = logger.With("run_id", s.run.ID)
	s.log.Info("Simulation run started", "scope", s.run.Scope.String(), "jobs", s.total, "workers", len(s.slots))

	if len(s.queue) == 0 {
		s.finish()
		return nil
	}
	for _, sl := range s.slots {
		if len(s.queue) == 0 {
			break
		}
		s.dispatch(sl)
	}
	return nil
}

func (s *Scheduler) startTestRun() error {
	s.testRun++
	s.queue = nil
	s.resetSimDone()
	if _, err := s.enqueue(All); err != nil {
		return err
	}
	return s.startRun()
}

// dispatch hands the next job to an idle slot, or completes the run once
// every slot is idle and nothing more will be dispatched
func (s *Scheduler) dispatch(sl *slot) {
	if len(s.queue) > 0 && !s.run.cancelled {
		id := s.queue[0]
		s.queue = s.queue[1:]
		sl.busy = true
		sl.jobs <- job{monsterID: id, run: s.run}
		s.jobsStarted++

		s.hooks().observer.QueueLength(len(s.queue))
		s.hooks().observer.BusySlots(s.busySlots())
		s.emitProgress()
		return
	}
	if s.busySlots() == 0 {
		s.finish()
	}
}

func (s *Scheduler) onJobComplete(c completion) {
	sl := s.slots[c.slot]
	result, ok := s.table.Monsters[c.monsterID]
	if !ok {
		result = combat.NewResult()
		s.table.Monsters[c.monsterID] = result
	}

	outcome := OutcomeSuccess
	if c.err != nil {
		s.log.Error("Simulation job failed", "monster_id", c.monsterID, "slot", c.slot, "error", c.err)
		result.SimSuccess = false
		if result.Reason == "" {
			result.Reason = ReasonExecutorError
		}
		outcome = OutcomeError
	} else {
		*result = c.result
		switch {
		case result.Reason == combat.ReasonCancelled:
			outcome = OutcomeCancelled
		case !result.SimSuccess || result.TooManyActions > 0:
			outcome = OutcomeFailed
		}
	}
	result.SimulationTime = c.elapsed.Seconds()

	sl.selfTime += c.elapsed
	sl.busy = false
	s.jobsCompleted++

	s.hooks().observer.JobFinished(outcome, c.elapsed)
	s.hooks().observer.BusySlots(s.busySlots())
	s.log.Debug("Simulation job complete",
		"monster_id", c.monsterID,
		"slot", c.slot,
		"outcome", outcome,
		"elapsed", c.elapsed)
	s.emitProgress()

	s.dispatch(sl)
}

func (s *Scheduler) cancel() {
	s.testTotal = 0
	if !s.inProgress {
		// Nothing running: complete an empty, cancelled batch
		s.run = s.newRunContext()
		s.run.cancelled = true
		s.inProgress = true
		s.jobsStarted, s.jobsCompleted, s.total = 0, 0, 0
		s.log = logger.With("run_id", s.run.ID)
		s.finish()
		return
	}
	s.run.cancelled = true
	s.run.cancel()
	s.log.Info("Simulation run cancelled", "busy_slots", s.busySlots(), "queued", len(s.queue))
	if s.busySlots() == 0 {
		s.finish()
	}
}

// finish runs aggregation and analyzers, then notifies listeners
func (s *Scheduler) finish() {
	run := s.run
	run.cancel()

	s.analyze(run)

	s.inProgress = false
	s.queue = nil
	clear(s.inQueue)
	s.lastRun = run
	s.hooks().observer.QueueLength(0)
	s.hooks().observer.BusySlots(0)

	summary := Summary{
		RunID:      run.ID,
		Scope:      run.Scope,
		Jobs:       s.jobsStarted,
		Completed:  s.jobsCompleted,
		Cancelled:  run.cancelled,
		StartedAt:  run.StartedAt,
		FinishedAt: time.Now(),
		Player:     run.Player,
		Options:    run.Options,
		Table:      s.table.Clone(),
	}
	if s.testTotal > 0 {
		summary.TestRun = s.testRun
	}

	var selfTime time.Duration
	for _, sl := range s.slots {
		selfTime += sl.selfTime
	}
	s.log.Log(context.Background(), logger.LevelAlways, "Simulation run complete",
		"jobs", summary.Jobs,
		"cancelled", summary.Cancelled,
		"elapsed", summary.Duration(),
		"worker_time", selfTime)

	for _, l := range s.hooks().listeners {
		l.Complete(summary)
	}

	if s.testTotal > 0 {
		s.log.Log(context.Background(), logger.LevelAlways, "Test run complete",
			"run", s.testRun, "of", s.testTotal, "elapsed", summary.Duration())
		if s.testRun < s.testTotal && !run.cancelled {
			if err := s.startTestRun(); err != nil {
				s.log.Error("Failed to start next test run", "error", err)
				s.testTotal = 0
			}
			return
		}
		s.testTotal = 0
	}
}

// analyze computes composites then runs every analyzer
func (s *Scheduler) analyze(run *RunContext) {
	for _, dg := range s.data.Dungeons() {
		ComputeComposite(s.filters.Dungeon(dg.ID), s.table.Dungeons[dg.ID], s.table.MemberResults(dg.Monsters))
	}
	for _, tier := range s.data.SlayerTiers() {
		members := s.table.MemberResults(s.table.TierMembers[tier.ID])
		ComputeSlayerTier(s.filters.SlayerTier(tier.ID), s.table.SlayerTiers[tier.ID], members)
	}
	for _, a := range s.hooks().analyzers {
		a.Analyze(s.table, run)
	}
}

func (s *Scheduler) emitProgress() {
	p := Progress{
		RunID:     s.run.ID,
		Started:   s.jobsStarted,
		Completed: s.jobsCompleted,
		Total:     s.total,
	}
	for _, l := range s.hooks().listeners {
		l.Progress(p)
	}
}

func (s *Scheduler) busySlots() int {
	n := 0
	for _, sl := range s.slots {
		if sl.busy {
			n++
		}
	}
	return n
}

type hookSet struct {
	listeners []Listener
	analyzers []Analyzer
	observer  Observer
}

func (s *Scheduler) hooks() hookSet {
	s.hooksMu.RLock()
	defer s.hooksMu.RUnlock()
	return hookSet{listeners: s.listeners, analyzers: s.analyzers, observer: s.observer}
}

// resetSimDone marks every monster as not simulated and not queued
func (s *Scheduler) resetSimDone() {
	clear(s.inQueue)
	for _, r := range s.table.Monsters {
		r.SimSuccess = false
		r.Reason = combat.ReasonNotSimulated
	}
}
