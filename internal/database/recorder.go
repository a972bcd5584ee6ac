package database

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/lawnchairsociety/combatsim/internal/combat"
	"github.com/lawnchairsociety/combatsim/internal/export"
	"github.com/lawnchairsociety/combatsim/internal/gamedata"
	"github.com/lawnchairsociety/combatsim/internal/logger"
	"github.com/lawnchairsociety/combatsim/internal/simulation"
)

// recorderQueueSize bounds how many finished runs may wait for a write
const recorderQueueSize = 16

// RecorderOptions configure what a Recorder stores alongside each run.
type RecorderOptions struct {
	// Fingerprint identifies the configuration a run used.
	Fingerprint func() string
	// Settings returns a YAML snapshot of the run inputs. When nil the
	// player and options of the run are stored.
	Settings func() string
	// Keep prunes history to the newest Keep runs after each save. 0 keeps all.
	Keep int
}

// Recorder saves every completed run. It implements simulation.Listener and
// writes from its own goroutine so the scheduler never waits on the database.
type Recorder struct {
	db    *Database
	data  *gamedata.Data
	opts  RecorderOptions
	queue chan simulation.Summary

	closeOnce sync.Once
	done      chan struct{}
}

var _ simulation.Listener = (*Recorder)(nil)

// NewRecorder starts a recorder writing to db.
func NewRecorder(db *Database, data *gamedata.Data, opts RecorderOptions) *Recorder {
	r := &Recorder{
		db:    db,
		data:  data,
		opts:  opts,
		queue: make(chan simulation.Summary, recorderQueueSize),
		done:  make(chan struct{}),
	}
	go r.loop()
	return r
}

func (r *Recorder) Progress(simulation.Progress) {}

// Complete queues the run for saving. Runs are dropped with a warning when the
// queue is full.
func (r *Recorder) Complete(s simulation.Summary) {
	select {
	case r.queue <- s:
	default:
		logger.Warning("History queue full, dropping run", "run_id", s.RunID)
	}
}

// Close waits for queued runs to be written.
func (r *Recorder) Close() {
	r.closeOnce.Do(func() {
		close(r.queue)
		<-r.done
	})
}

func (r *Recorder) loop() {
	defer close(r.done)
	for s := range r.queue {
		if err := r.save(s); err != nil {
			logger.Error("Failed to save run history", "run_id", s.RunID, "error", err)
		}
	}
}

func (r *Recorder) save(s simulation.Summary) error {
	fingerprint := ""
	if r.opts.Fingerprint != nil {
		fingerprint = r.opts.Fingerprint()
	}
	var settings string
	if r.opts.Settings != nil {
		settings = r.opts.Settings()
	}

	run, results, err := RunFromSummary(r.data, s, fingerprint, settings)
	if err != nil {
		return err
	}
	if err := r.db.SaveRun(run, results); err != nil {
		return err
	}
	logger.Debug("Run history saved", "run_id", s.RunID, "results", len(results))

	if r.opts.Keep > 0 {
		if _, err := r.db.PruneRuns(r.opts.Keep); err != nil {
			return err
		}
	}
	return nil
}

// RunFromSummary converts a finished run into history rows. Entities never
// simulated in the run are left out.
func RunFromSummary(data *gamedata.Data, s simulation.Summary, fingerprint, settings string) (*Run, []ResultRow, error) {
	if settings == "" {
		snapshot := struct {
			Scope   string         `yaml:"scope"`
			Player  combat.Player  `yaml:"player"`
			Options combat.Options `yaml:"options"`
		}{s.Scope.String(), s.Player, s.Options}
		out, err := yaml.Marshal(snapshot)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to encode settings: %w", err)
		}
		settings = string(out)
	}

	run := &Run{
		Key:         s.RunID,
		Scope:       s.Scope.String(),
		Fingerprint: fingerprint,
		Settings:    settings,
		Jobs:        s.Jobs,
		Cancelled:   s.Cancelled,
		StartedAt:   s.StartedAt,
		FinishedAt:  s.FinishedAt,
	}
	if s.Table == nil {
		return run, nil, nil
	}

	var results []ResultRow
	add := func(kind string, id int, name string, res *combat.Result) error {
		if !res.SimSuccess && res.Reason == combat.ReasonNotSimulated {
			return nil
		}
		metrics, err := json.Marshal(export.Values(res))
		if err != nil {
			return fmt.Errorf("failed to encode %s %d: %w", kind, id, err)
		}
		results = append(results, ResultRow{
			Kind:       kind,
			EntityID:   id,
			Name:       name,
			SimSuccess: res.SimSuccess,
			Reason:     res.Reason,
			Metrics:    string(metrics),
		})
		return nil
	}

	for _, id := range sortedIDs(s.Table.Monsters) {
		if err := add(simulation.KindMonster, id, data.MonsterName(id), s.Table.Monsters[id]); err != nil {
			return nil, nil, err
		}
	}
	for _, dg := range data.Dungeons() {
		if res, ok := s.Table.Dungeons[dg.ID]; ok {
			if err := add(simulation.KindDungeon, dg.ID, dg.Name, res); err != nil {
				return nil, nil, err
			}
		}
	}
	for _, tier := range data.SlayerTiers() {
		if res, ok := s.Table.SlayerTiers[tier.ID]; ok {
			if err := add(simulation.KindSlayerTier, tier.ID, tier.Name, res); err != nil {
				return nil, nil, err
			}
		}
	}
	return run, results, nil
}

func sortedIDs(m map[int]*combat.Result) []int {
	ids := make([]int, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}
