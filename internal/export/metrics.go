// Package export renders simulation results as spreadsheet-ready rows and as
// JSON-safe metric maps.
package export

import (
	"math"

	"github.com/lawnchairsociety/combatsim/internal/combat"
)

// Metric is one exportable result column.
type Metric struct {
	Key    string // Stable identifier used in config and JSON
	Header string // Column title
	IsTime bool   // Per-second rate, scaled by the time multiplier
	Value  func(*combat.Result) float64
}

// Catalog lists every exportable metric in column order.
var Catalog = []Metric{
	{"xp_per_second", "XP", true, func(r *combat.Result) float64 { return r.XPPerSecond }},
	{"hp_xp_per_second", "HP XP", true, func(r *combat.Result) float64 { return r.HPXPPerSecond }},
	{"prayer_xp_per_second", "Prayer XP", true, func(r *combat.Result) float64 { return r.PrayerXPPerSecond }},
	{"slayer_xp_per_second", "Slayer XP", true, func(r *combat.Result) float64 { return r.SlayerXPPerSecond }},
	{"summoning_xp_per_second", "Summoning XP", true, func(r *combat.Result) float64 { return r.SummoningXPPerSecond }},
	{"xp_per_hit", "XP per attack", false, func(r *combat.Result) float64 { return r.XPPerHit }},
	{"hp_per_second", "HP Loss", true, func(r *combat.Result) float64 { return r.HPPerSecond }},
	{"pp_consumed_per_second", "Prayer Points", true, func(r *combat.Result) float64 { return r.PPConsumedPerSecond }},
	{"dmg_per_second", "Damage", true, func(r *combat.Result) float64 { return r.DmgPerSecond }},
	{"avg_hit_dmg", "Average Hit Damage", false, func(r *combat.Result) float64 { return r.AvgHitDmg }},
	{"kill_time_s", "Kill Time(s)", false, func(r *combat.Result) float64 { return r.KillTimeS }},
	{"kills_per_second", "Kills", true, func(r *combat.Result) float64 { return r.KillsPerSecond }},
	{"death_rate", "Death Rate", false, func(r *combat.Result) float64 { return r.DeathRate }},
	{"highest_damage_taken", "Highest Hit Taken", false, func(r *combat.Result) float64 { return r.HighestDamageTaken }},
	{"lowest_hitpoints", "Lowest Hitpoints", false, func(r *combat.Result) float64 { return r.LowestHitpoints }},
	{"ate_per_second", "Food eaten", true, func(r *combat.Result) float64 { return r.AtePerSecond }},
	{"attacks_taken_per_second", "Attacks Taken", true, func(r *combat.Result) float64 { return r.AttacksTakenPerSecond }},
	{"attacks_made_per_second", "Attacks Made", true, func(r *combat.Result) float64 { return r.AttacksMadePerSecond }},
	{"ammo_used_per_second", "Ammo per", true, func(r *combat.Result) float64 { return r.AmmoUsedPerSecond }},
	{"runes_used_per_second", "Runes per", true, func(r *combat.Result) float64 { return r.RunesUsedPerSecond }},
	{"combination_runes_used_per_second", "Combination Runes per", true, func(r *combat.Result) float64 { return r.CombinationRunesUsedPerSecond }},
	{"potions_used_per_second", "Potions per", true, func(r *combat.Result) float64 { return r.PotionsUsedPerSecond }},
	{"tablets_used_per_second", "Tablets per", true, func(r *combat.Result) float64 { return r.TabletsUsedPerSecond }},
	{"gp_per_second", "GP", true, func(r *combat.Result) float64 { return r.GPPerSecond }},
	{"drop_chance", "Drops", true, func(r *combat.Result) float64 { return r.DropChance }},
	{"signet_chance", "Signet Ring Chance (%)", false, func(r *combat.Result) float64 { return r.SignetChance }},
	{"pet_chance", "Pet Chance (%)", false, func(r *combat.Result) float64 { return r.PetChance }},
	{"slayer_coins_per_second", "Slayer Coins", true, func(r *combat.Result) float64 { return r.SlayerCoinsPerSecond }},
	{"simulation_time", "Simulation Time", false, func(r *combat.Result) float64 { return r.SimulationTime }},
}

// MetricByKey returns the catalog entry with the given key.
func MetricByKey(key string) (Metric, bool) {
	for _, m := range Catalog {
		if m.Key == key {
			return m, true
		}
	}
	return Metric{}, false
}

// Values returns every catalog metric of r keyed by Key. Non-finite values map
// to nil so the result always encodes as JSON.
func Values(r *combat.Result) map[string]*float64 {
	values := make(map[string]*float64, len(Catalog))
	for _, m := range Catalog {
		v := m.Value(r)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			values[m.Key] = nil
			continue
		}
		values[m.Key] = &v
	}
	return values
}

// View is a JSON-safe rendering of a single result.
type View struct {
	Kind           string              `json:"kind"`
	ID             int                 `json:"id"`
	Name           string              `json:"name"`
	SimSuccess     bool                `json:"sim_success"`
	Reason         string              `json:"reason,omitempty"`
	TooManyActions int                 `json:"too_many_actions"`
	Metrics        map[string]*float64 `json:"metrics"`
}

// NewView renders r for an entity.
func NewView(kind string, id int, name string, r *combat.Result) View {
	return View{
		Kind:           kind,
		ID:             id,
		Name:           name,
		SimSuccess:     r.SimSuccess,
		Reason:         r.Reason,
		TooManyActions: r.TooManyActions,
		Metrics:        Values(r),
	}
}
