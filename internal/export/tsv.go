package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/lawnchairsociety/combatsim/internal/combat"
	"github.com/lawnchairsociety/combatsim/internal/gamedata"
	"github.com/lawnchairsociety/combatsim/internal/simulation"
)

// NameHeader is the title of the name column.
const NameHeader = "Monster/Dungeon Name"

// Options select what goes into a tabular export.
type Options struct {
	Name            bool     `yaml:"name" json:"name"`
	Metrics         []string `yaml:"metrics" json:"metrics"` // Catalog keys, empty for all
	DungeonMonsters bool     `yaml:"dungeon_monsters" json:"dungeon_monsters"`
	SlayerTiers     bool     `yaml:"slayer_tiers" json:"slayer_tiers"`
	NonSimmed       bool     `yaml:"non_simmed" json:"non_simmed"` // Include filtered entities as zero rows
	TimeMultiplier  float64  `yaml:"time_multiplier" json:"time_multiplier"` // Seconds, -1 for per kill
	TimeUnit        string   `yaml:"time_unit" json:"time_unit"`             // Header suffix of time metrics
}

// DefaultOptions exports every metric per hour.
func DefaultOptions() Options {
	return Options{
		Name:            true,
		DungeonMonsters: true,
		SlayerTiers:     true,
		NonSimmed:       true,
		TimeMultiplier:  3600,
		TimeUnit:        "/h",
	}
}

// Columns resolves the selected metrics. Unknown keys are an error.
func (o Options) Columns() ([]Metric, error) {
	if len(o.Metrics) == 0 {
		return Catalog, nil
	}
	cols := make([]Metric, 0, len(o.Metrics))
	for _, key := range o.Metrics {
		m, ok := MetricByKey(key)
		if !ok {
			return nil, fmt.Errorf("unknown export metric %q", key)
		}
		cols = append(cols, m)
	}
	return cols, nil
}

type writer struct {
	opts    Options
	cols    []Metric
	data    *gamedata.Data
	table   *simulation.Table
	filters simulation.Filters
	out     *csv.Writer
}

// WriteTSV writes a header and one tab-separated row per entity: combat area
// monsters, wandering monsters, slayer area monsters, each dungeon followed by
// its members, then slayer tiers.
func WriteTSV(w io.Writer, data *gamedata.Data, table *simulation.Table, filters simulation.Filters, opts Options) error {
	cols, err := opts.Columns()
	if err != nil {
		return err
	}
	out := csv.NewWriter(w)
	out.Comma = '\t'
	ew := &writer{opts: opts, cols: cols, data: data, table: table, filters: filters, out: out}

	if err := ew.header(); err != nil {
		return err
	}
	for _, area := range data.CombatAreas() {
		for _, id := range area.Monsters {
			if err := ew.monster(id, filters.Monster(id), false); err != nil {
				return err
			}
		}
	}
	for _, id := range data.WanderingMonsters() {
		if err := ew.monster(id, filters.Monster(id), false); err != nil {
			return err
		}
	}
	for _, area := range data.SlayerAreas() {
		for _, id := range area.Monsters {
			if err := ew.monster(id, filters.Monster(id), false); err != nil {
				return err
			}
		}
	}
	for _, dg := range data.Dungeons() {
		allowed := filters.Dungeon(dg.ID)
		if err := ew.row(dg.Name, table.Dungeons[dg.ID], allowed, false); err != nil {
			return err
		}
		if !opts.DungeonMonsters {
			continue
		}
		for _, id := range dg.Monsters {
			if err := ew.monster(id, allowed, true); err != nil {
				return err
			}
		}
	}
	if opts.SlayerTiers {
		for _, tier := range data.SlayerTiers() {
			if err := ew.row(tier.Name, table.SlayerTiers[tier.ID], filters.SlayerTier(tier.ID), false); err != nil {
				return err
			}
		}
	}

	out.Flush()
	return out.Error()
}

func (ew *writer) header() error {
	var line []string
	if ew.opts.Name {
		line = append(line, NameHeader)
	}
	for _, m := range ew.cols {
		if m.IsTime {
			line = append(line, m.Header+ew.opts.TimeUnit)
		} else {
			line = append(line, m.Header)
		}
	}
	return ew.out.Write(line)
}

func (ew *writer) monster(id int, allowed, dungeonMember bool) error {
	return ew.row(ew.data.MonsterName(id), ew.table.Monsters[id], allowed, dungeonMember)
}

// row writes one entity. Dungeon members export regardless of their own filter
// and report no signet chance, which belongs to the dungeon.
func (ew *writer) row(name string, r *combat.Result, allowed, dungeonMember bool) error {
	if !ew.opts.NonSimmed && !allowed {
		return nil
	}
	var line []string
	if ew.opts.Name {
		line = append(line, name)
	}
	for _, m := range ew.cols {
		v := 0.0
		switch {
		case r == nil:
		case dungeonMember && m.Key == "signet_chance":
		case (allowed || dungeonMember) && r.SimSuccess:
			v = m.Value(r) * ew.scale(m, r)
		}
		line = append(line, formatValue(v))
	}
	return ew.out.Write(line)
}

func (ew *writer) scale(m Metric, r *combat.Result) float64 {
	if !m.IsTime {
		return 1
	}
	if ew.opts.TimeMultiplier == -1 {
		return r.KillTimeS
	}
	return ew.opts.TimeMultiplier
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
