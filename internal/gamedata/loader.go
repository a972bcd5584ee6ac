package gamedata

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/lawnchairsociety/combatsim/internal/logger"
	"gopkg.in/yaml.v3"
)

// SpecialDefinition holds ids that do not fit a regular table
type SpecialDefinition struct {
	SignetHalfItem    int   `yaml:"signet_half_item"`   // Item valued by the signet ring roll
	SignetRingItem    *int  `yaml:"signet_ring_item"`   // Ring that must be equipped for the roll
	WanderingMonsters []int `yaml:"wandering_monsters"` // Monsters outside any area (e.g. the bard)
}

// DataFile represents the structure of one reference data YAML file.
// Any section may be omitted; files in a directory are merged.
type DataFile struct {
	Monsters    []Monster          `yaml:"monsters"`
	Items       []Item             `yaml:"items"`
	Areas       []Area             `yaml:"areas"`
	Dungeons    []Dungeon          `yaml:"dungeons"`
	SlayerTiers []SlayerTier       `yaml:"slayer_tiers"`
	Special     *SpecialDefinition `yaml:"special"`
}

// LoadFromYAML loads one reference data file
func LoadFromYAML(filename string) (*DataFile, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read data file: %w", err)
	}

	var file DataFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse data YAML %s: %w", filename, err)
	}

	return &file, nil
}

// LoadFromDirectory loads every *.yaml / *.yml file in dir, in name order, and builds the tables
func LoadFromDirectory(dir string) (*Data, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read data directory: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml") {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	var files []*DataFile
	for _, name := range names {
		path := filepath.Join(dir, name)
		file, err := LoadFromYAML(path)
		if err != nil {
			return nil, err
		}
		logger.Info("Loaded data file", "path", path,
			"monsters", len(file.Monsters),
			"items", len(file.Items),
			"areas", len(file.Areas),
			"dungeons", len(file.Dungeons))
		files = append(files, file)
	}

	if len(files) == 0 {
		return nil, fmt.Errorf("no data files found in %s", dir)
	}

	return Build(files...)
}

// Build merges data files and validates cross references.
// Recoverable problems are corrected with a warning; dangling references are errors.
func Build(files ...*DataFile) (*Data, error) {
	d := &Data{
		monsters:    make(map[int]*Monster),
		items:       make(map[int]*Item),
		dungeonByID: make(map[int]*Dungeon),
		monsterArea: make(map[int]*Area),
		signetHalf:  -1,
		signetRing:  -1,
	}

	for _, file := range files {
		for i := range file.Monsters {
			m := file.Monsters[i]
			if _, exists := d.monsters[m.ID]; exists {
				return nil, fmt.Errorf("duplicate monster id %d", m.ID)
			}
			correctMonster(&m)
			d.monsters[m.ID] = &m
		}
		for i := range file.Items {
			it := file.Items[i]
			if _, exists := d.items[it.ID]; exists {
				return nil, fmt.Errorf("duplicate item id %d", it.ID)
			}
			d.items[it.ID] = &it
		}
		for i := range file.Areas {
			a := file.Areas[i]
			switch a.Kind {
			case AreaSlayer:
				d.slayerAreas = append(d.slayerAreas, &a)
			case AreaCombat, "":
				a.Kind = AreaCombat
				d.combatAreas = append(d.combatAreas, &a)
			default:
				return nil, fmt.Errorf("area %d has unknown kind %q", a.ID, a.Kind)
			}
		}
		for i := range file.Dungeons {
			dg := file.Dungeons[i]
			if _, exists := d.dungeonByID[dg.ID]; exists {
				return nil, fmt.Errorf("duplicate dungeon id %d", dg.ID)
			}
			d.dungeonByID[dg.ID] = &dg
		}
		for i := range file.SlayerTiers {
			tier := file.SlayerTiers[i]
			if tier.MaxLevel < -1 {
				logger.Warning("Slayer tier auto-correction applied",
					"tier", tier.Name,
					"issue", "max_level below -1",
					"action", "treat as unbounded")
				tier.MaxLevel = -1
			}
			d.slayerTiers = append(d.slayerTiers, &tier)
		}
		if file.Special != nil {
			d.signetHalf = file.Special.SignetHalfItem
			if file.Special.SignetRingItem != nil {
				d.signetRing = *file.Special.SignetRingItem
			}
			d.wandering = append(d.wandering, file.Special.WanderingMonsters...)
		}
	}

	if err := d.index(); err != nil {
		return nil, err
	}
	return d, nil
}

// correctMonster fixes values that would break the valuation math
func correctMonster(m *Monster) {
	if m.LootChance != nil && (*m.LootChance < 0 || *m.LootChance > 100) {
		clamped := min(max(*m.LootChance, 0), 100)
		logger.Warning("Monster auto-correction applied",
			"monster_id", m.ID,
			"monster_name", m.Name,
			"issue", "loot_chance outside 0-100",
			"action", fmt.Sprintf("clamped to %.0f", clamped))
		m.LootChance = &clamped
	}
	if m.DropCoins.Min > m.DropCoins.Max {
		logger.Warning("Monster auto-correction applied",
			"monster_id", m.ID,
			"monster_name", m.Name,
			"issue", "drop_coins min greater than max",
			"action", "swapped")
		m.DropCoins.Min, m.DropCoins.Max = m.DropCoins.Max, m.DropCoins.Min
	}
	if m.MaxHit < 0 {
		logger.Warning("Monster auto-correction applied",
			"monster_id", m.ID,
			"monster_name", m.Name,
			"issue", "negative max_hit",
			"action", "set to 0")
		m.MaxHit = 0
	}
	for i := range m.LootTable {
		if m.LootTable[i].MaxQty < 1 {
			m.LootTable[i].MaxQty = 1
		}
	}
}

// index resolves references and builds lookup tables
func (d *Data) index() error {
	d.monsterIDs = sortedKeys(d.monsters)

	for _, areas := range [][]*Area{d.combatAreas, d.slayerAreas} {
		for _, a := range areas {
			for _, id := range a.Monsters {
				if _, ok := d.monsters[id]; !ok {
					return fmt.Errorf("area %q references unknown monster %d", a.Name, id)
				}
				if _, seen := d.monsterArea[id]; !seen {
					d.monsterArea[id] = a
				}
			}
		}
	}

	for _, id := range sortedKeys(d.dungeonByID) {
		dg := d.dungeonByID[id]
		if len(dg.Monsters) == 0 {
			return fmt.Errorf("dungeon %q has no monsters", dg.Name)
		}
		for _, mid := range dg.Monsters {
			if _, ok := d.monsters[mid]; !ok {
				return fmt.Errorf("dungeon %q references unknown monster %d", dg.Name, mid)
			}
		}
		for _, reward := range dg.Rewards {
			if _, ok := d.items[reward]; !ok {
				return fmt.Errorf("dungeon %q rewards unknown item %d", dg.Name, reward)
			}
		}
		d.dungeons = append(d.dungeons, dg)
	}

	sort.SliceStable(d.slayerTiers, func(i, j int) bool {
		return d.slayerTiers[i].ID < d.slayerTiers[j].ID
	})

	for _, id := range d.wandering {
		if _, ok := d.monsters[id]; !ok {
			return fmt.Errorf("wandering monster %d is unknown", id)
		}
	}
	if d.signetRing >= 0 {
		if _, ok := d.items[d.signetRing]; !ok {
			return fmt.Errorf("signet ring item %d is unknown", d.signetRing)
		}
	}

	for _, m := range d.monsters {
		for _, entry := range m.LootTable {
			if _, ok := d.items[entry.ItemID]; !ok {
				return fmt.Errorf("monster %q drops unknown item %d", m.Name, entry.ItemID)
			}
		}
		if m.Bones != nil {
			if _, ok := d.items[*m.Bones]; !ok {
				return fmt.Errorf("monster %q drops unknown bones %d", m.Name, *m.Bones)
			}
		}
	}

	for _, it := range d.items {
		if it.CanOpen && len(it.DropTable) == 0 {
			logger.Warning("Item auto-correction applied",
				"item_id", it.ID,
				"item_name", it.Name,
				"issue", "can_open without drop_table",
				"action", "set can_open=false")
			it.CanOpen = false
		}
		for _, entry := range it.DropTable {
			if _, ok := d.items[entry.ItemID]; !ok {
				return fmt.Errorf("item %q contains unknown item %d", it.Name, entry.ItemID)
			}
		}
	}

	return nil
}
