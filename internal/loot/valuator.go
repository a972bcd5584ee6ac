// Package loot derives economic metrics from simulation results: gold per
// second, drop chance of a selected item, signet ring chance, pet chance and
// slayer rewards.
package loot

import (
	"sync"

	"github.com/lawnchairsociety/combatsim/internal/combat"
	"github.com/lawnchairsociety/combatsim/internal/gamedata"
	"github.com/lawnchairsociety/combatsim/internal/simulation"
)

// NoDropSelected disables drop chance tracking
const NoDropSelected = -1

// Settings are the economic options applied on top of simulation results.
type Settings struct {
	SellBones         bool    `yaml:"sell_bones" json:"sell_bones"`
	BonesAutoBury     bool    `yaml:"bones_auto_bury" json:"bones_auto_bury"`
	ConvertShards     bool    `yaml:"convert_shards" json:"convert_shards"`
	GPBonus           float64 `yaml:"gp_bonus" json:"gp_bonus"`         // Multiplier on coin drops
	IncreasedGP       float64 `yaml:"increased_gp" json:"increased_gp"` // Flat coins added per kill
	LootBonus         float64 `yaml:"loot_bonus" json:"loot_bonus"`     // Multiplier on item drops
	HerbConvertChance float64 `yaml:"herb_convert_chance" json:"herb_convert_chance"`
	SignetFarmHours   float64 `yaml:"signet_farm_hours" json:"signet_farm_hours"`
	DropSelected      int     `yaml:"drop_selected" json:"drop_selected"`
	SlayerCoinBonus   float64 `yaml:"slayer_coin_bonus" json:"slayer_coin_bonus"` // Percent
	PetSkill          string  `yaml:"pet_skill" json:"pet_skill"`
	TimeMultiplier    float64 `yaml:"time_multiplier" json:"time_multiplier"` // Seconds, -1 for one kill
}

// DefaultSettings returns neutral multipliers with nothing tracked.
func DefaultSettings() Settings {
	return Settings{
		GPBonus:         1,
		LootBonus:       1,
		SignetFarmHours: 1,
		DropSelected:    NoDropSelected,
		PetSkill:        "Hitpoints",
		TimeMultiplier:  -1,
	}
}

// Valuator implements simulation.Analyzer. It reads and writes only the result
// table handed to Analyze.
type Valuator struct {
	data *gamedata.Data

	mu       sync.RWMutex
	settings Settings
}

// NewValuator creates a valuator over the reference data.
func NewValuator(data *gamedata.Data, settings Settings) *Valuator {
	return &Valuator{data: data, settings: settings}
}

// Settings returns the current economic settings.
func (v *Valuator) Settings() Settings {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.settings
}

// SetSettings replaces the economic settings. Call Scheduler.Reanalyze to apply
// them to existing results.
func (v *Valuator) SetSettings(s Settings) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.settings = s
}

// valuation is one Analyze pass with a fixed settings snapshot
type valuation struct {
	data     *gamedata.Data
	settings Settings
	player   *combat.Player
	table    *simulation.Table
	signet   bool // Signet ring equipped
}

// Analyze recomputes every loot metric in the table.
func (v *Valuator) Analyze(table *simulation.Table, run *simulation.RunContext) {
	val := &valuation{
		data:     v.data,
		settings: v.Settings(),
		player:   &run.Player,
		table:    table,
		signet:   v.data.SignetRingEquipped(run.Player.Equipment),
	}
	val.updateGP()
	val.updateSignetChance()
	val.updateDropChance()
	val.updateSlayerXP()
	val.updateSlayerCoins()
	val.updatePetChance()
}

// tierMembers returns the member results of a slayer tier
func (val *valuation) tierMembers(tierID int) []*combat.Result {
	return val.table.MemberResults(val.table.TierMembers[tierID])
}

func (val *valuation) dungeonMembers(dg *gamedata.Dungeon) []*combat.Result {
	return val.table.MemberResults(dg.Monsters)
}

var (
	gpField          simulation.Field = func(r *combat.Result) *float64 { return &r.GPPerSecond }
	dropField        simulation.Field = func(r *combat.Result) *float64 { return &r.DropChance }
	slayerXPField    simulation.Field = func(r *combat.Result) *float64 { return &r.SlayerXPPerSecond }
	slayerCoinsField simulation.Field = func(r *combat.Result) *float64 { return &r.SlayerCoinsPerSecond }
)

func (val *valuation) updateGP() {
	for id, r := range val.table.Monsters {
		m, ok := val.data.Monster(id)
		if !ok {
			continue
		}
		r.GPPerSecond = r.GPFromDamagePerSecond
		if r.SimSuccess && r.TooManyActions == 0 && r.KillTimeS > 0 {
			r.GPPerSecond += val.monsterValue(m) / r.KillTimeS
		}
	}
	for _, dg := range val.data.Dungeons() {
		r := val.table.Dungeons[dg.ID]
		if r.SimSuccess && r.KillTimeS > 0 {
			r.GPPerSecond = r.GPFromDamagePerSecond + val.dungeonValue(dg)/r.KillTimeS
		}
	}
	for _, tier := range val.data.SlayerTiers() {
		r := val.table.SlayerTiers[tier.ID]
		r.GPPerSecond = simulation.TimeWeightedMean(val.tierMembers(tier.ID), gpField)
	}
}

func (val *valuation) updateSlayerXP() {
	for id, r := range val.table.Monsters {
		m, ok := val.data.Monster(id)
		if !ok {
			continue
		}
		r.SlayerXPPerSecond = 0
		if !r.SimSuccess || r.KillTimeS <= 0 {
			continue
		}
		xp := float64(m.SlayerXP)
		if val.player.IsSlayerTask {
			xp += float64(m.Hitpoints)
		}
		r.SlayerXPPerSecond = xp * (1 + val.player.SlayerXPBonus/100) / r.KillTimeS
	}
	for _, dg := range val.data.Dungeons() {
		if r := val.table.Dungeons[dg.ID]; r.SimSuccess {
			r.SlayerXPPerSecond = simulation.TimeWeightedMean(val.dungeonMembers(dg), slayerXPField)
		}
	}
	for _, tier := range val.data.SlayerTiers() {
		r := val.table.SlayerTiers[tier.ID]
		r.SlayerXPPerSecond = simulation.TimeWeightedMean(val.tierMembers(tier.ID), slayerXPField)
	}
}

func (val *valuation) updateSlayerCoins() {
	for id, r := range val.table.Monsters {
		if m, ok := val.data.Monster(id); ok {
			val.setSlayerCoins(m, r)
		}
	}
	for _, dg := range val.data.Dungeons() {
		boss, _ := val.data.Monster(dg.Boss())
		val.setSlayerCoins(boss, val.table.Dungeons[dg.ID])
	}
	for _, tier := range val.data.SlayerTiers() {
		r := val.table.SlayerTiers[tier.ID]
		r.SlayerCoinsPerSecond = simulation.TimeWeightedMean(val.tierMembers(tier.ID), slayerCoinsField)
	}
}

// setSlayerCoins sets coins earned per second when killing m at r's kill rate
func (val *valuation) setSlayerCoins(m *gamedata.Monster, r *combat.Result) {
	r.SlayerCoinsPerSecond = r.SCGainedPerSecond
	if !val.player.IsSlayerTask || !r.SimSuccess || r.KillTimeS <= 0 {
		return
	}
	coins := float64(m.Hitpoints) * (1 + val.settings.SlayerCoinBonus/100)
	r.SlayerCoinsPerSecond += coins / r.KillTimeS
}
