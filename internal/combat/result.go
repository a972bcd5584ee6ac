package combat

import "math"

// Failure reasons set on results that did not simulate
const (
	ReasonNotSimulated = "entity not simulated"
	ReasonCancelled    = "simulation cancelled"
	ReasonNoKills      = "no kills within action limit"
)

// Options control one trial batch.
type Options struct {
	Trials       int  `yaml:"trials" json:"trials"`
	MaxActions   int  `yaml:"max_actions" json:"max_actions"`
	ForceFullSim bool `yaml:"force_full_sim" json:"force_full_sim"`
}

// Request is one job handed to an executor.
type Request struct {
	MonsterID int     `json:"monster_id"`
	Player    Player  `json:"player"`
	Options   Options `json:"options"`
}

// PetRoll is a group of pet rolls sharing the same action speed.
type PetRoll struct {
	Speed          float64 `json:"speed"` // Milliseconds per action
	RollsPerSecond float64 `json:"rolls_per_second"`
}

// Result holds the per-second outcomes of fighting one monster, or of a
// dungeon or slayer tier composite.
type Result struct {
	SimSuccess     bool   `json:"sim_success"`
	Reason         string `json:"reason"`
	TooManyActions int    `json:"too_many_actions"`

	XPPerSecond          float64 `json:"xp_per_second"`
	HPXPPerSecond        float64 `json:"hp_xp_per_second"`
	SlayerXPPerSecond    float64 `json:"slayer_xp_per_second"`
	PrayerXPPerSecond    float64 `json:"prayer_xp_per_second"`
	SummoningXPPerSecond float64 `json:"summoning_xp_per_second"`

	DmgPerSecond          float64 `json:"dmg_per_second"`
	AttacksMadePerSecond  float64 `json:"attacks_made_per_second"`
	AttacksTakenPerSecond float64 `json:"attacks_taken_per_second"`
	KillsPerSecond        float64 `json:"kills_per_second"`

	AtePerSecond                  float64 `json:"ate_per_second"`
	AmmoUsedPerSecond             float64 `json:"ammo_used_per_second"`
	RunesUsedPerSecond            float64 `json:"runes_used_per_second"`
	CombinationRunesUsedPerSecond float64 `json:"combination_runes_used_per_second"`
	PotionsUsedPerSecond          float64 `json:"potions_used_per_second"`
	TabletsUsedPerSecond          float64 `json:"tablets_used_per_second"`
	PPConsumedPerSecond           float64 `json:"pp_consumed_per_second"`

	KillTimeS          float64 `json:"kill_time_s"`
	DeathRate          float64 `json:"death_rate"`
	HighestDamageTaken float64 `json:"highest_damage_taken"`
	LowestHitpoints    float64 `json:"lowest_hitpoints"`

	GPPerSecond           float64 `json:"gp_per_second"`
	GPFromDamagePerSecond float64 `json:"gp_from_damage_per_second"`
	SlayerCoinsPerSecond  float64 `json:"slayer_coins_per_second"`
	SCGainedPerSecond     float64 `json:"sc_gained_per_second"`

	DropChance   float64 `json:"drop_chance"`
	SignetChance float64 `json:"signet_chance"`
	PetChance    float64 `json:"pet_chance"`

	SimulationTime float64 `json:"simulation_time"` // Seconds spent in the executor

	PetRolls map[string][]PetRoll `json:"pet_rolls,omitempty"`

	XPPerHit            float64 `json:"xp_per_hit"`
	HPPerSecond         float64 `json:"hp_per_second"`
	AvgHitDmg           float64 `json:"avg_hit_dmg"`
	SpellCastsPerSecond float64 `json:"spell_casts_per_second"`
	CurseCastsPerSecond float64 `json:"curse_casts_per_second"`
}

// NewResult returns a result for an entity that has not been simulated.
func NewResult() *Result {
	return &Result{
		Reason:          ReasonNotSimulated,
		LowestHitpoints: math.Inf(1),
	}
}

// Clone returns a deep copy of r.
func (r *Result) Clone() *Result {
	c := *r
	if r.PetRolls != nil {
		c.PetRolls = make(map[string][]PetRoll, len(r.PetRolls))
		for skill, rolls := range r.PetRolls {
			c.PetRolls[skill] = append([]PetRoll(nil), rolls...)
		}
	}
	return &c
}
