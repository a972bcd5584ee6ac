package combat

import (
	"slices"

	"github.com/lawnchairsociety/combatsim/internal/gamedata"
)

// Attack types
const (
	AttackMelee  = "melee"
	AttackRanged = "ranged"
	AttackMagic  = "magic"
)

// Potion kinds with special charge usage; anything else uses one charge per attack made
const (
	PotionRegen           = "regen"
	PotionDamageReduction = "damage_reduction"
	PotionLuckyHerb       = "lucky_herb"
)

// RuneCost is the number of runes of one kind used per cast.
type RuneCost struct {
	ItemID int     `yaml:"item" json:"item"`
	Qty    float64 `yaml:"qty" json:"qty"`
}

// Potion describes the potion kept active during combat.
type Potion struct {
	Kind         string  `yaml:"kind" json:"kind"`
	Charges      int     `yaml:"charges" json:"charges"`           // Charges per potion
	Preservation float64 `yaml:"preservation" json:"preservation"` // Percent chance to keep a charge
}

// Player is the immutable player snapshot sent with every job.
type Player struct {
	// Levels maps skill names (Attack, Strength, Defence, Hitpoints, Ranged,
	// Magic, Prayer, Slayer) to levels.
	Levels map[string]int `yaml:"levels" json:"levels"`

	AttackType      string  `yaml:"attack_type" json:"attack_type"`
	AttackStyle     int     `yaml:"attack_style" json:"attack_style"`
	AttackInterval  int     `yaml:"attack_interval" json:"attack_interval"` // Milliseconds
	MaxHit          int     `yaml:"max_hit" json:"max_hit"`
	Accuracy        int     `yaml:"accuracy" json:"accuracy"`
	Evasion         int     `yaml:"evasion" json:"evasion"`
	DamageReduction float64 `yaml:"damage_reduction" json:"damage_reduction"` // Percent

	// Auto-eat: eat when hitpoints drop below this fraction of max
	AutoEatThreshold float64 `yaml:"auto_eat_threshold" json:"auto_eat_threshold"`
	FoodHealing      int     `yaml:"food_healing" json:"food_healing"`

	GPPerDamage float64 `yaml:"gp_per_damage" json:"gp_per_damage"` // Percent of damage dealt paid as gold

	Equipment          []int       `yaml:"equipment" json:"equipment"`
	DungeonCompletions map[int]int `yaml:"dungeon_completions" json:"dungeon_completions"`

	IsSlayerTask  bool    `yaml:"slayer_task" json:"slayer_task"`
	SlayerXPBonus float64 `yaml:"slayer_xp_bonus" json:"slayer_xp_bonus"` // Percent

	PrayerPointsPerAttack      float64 `yaml:"prayer_points_per_attack" json:"prayer_points_per_attack"`
	PrayerPointsPerEnemyAttack float64 `yaml:"prayer_points_per_enemy_attack" json:"prayer_points_per_enemy_attack"`

	AmmoPreservation float64    `yaml:"ammo_preservation" json:"ammo_preservation"`
	RunePreservation float64    `yaml:"rune_preservation" json:"rune_preservation"`
	SpellRunes       []RuneCost `yaml:"spell_runes" json:"spell_runes"`
	CurseRunes       []RuneCost `yaml:"curse_runes" json:"curse_runes"`

	Potion           *Potion `yaml:"potion" json:"potion,omitempty"`
	SummoningTablets bool    `yaml:"summoning_tablets" json:"summoning_tablets"`
}

// Level returns the player's level in a skill, 1 if unset.
func (p *Player) Level(skill string) int {
	if lvl, ok := p.Levels[skill]; ok && lvl > 0 {
		return lvl
	}
	return 1
}

// MaxHitpoints returns the player's hitpoint pool.
func (p *Player) MaxHitpoints() int {
	return p.Level("Hitpoints") * 10
}

// CheckRequirements reports whether the player meets every requirement.
// Unknown requirement types fail closed.
func (p *Player) CheckRequirements(reqs []gamedata.Requirement) bool {
	for _, req := range reqs {
		switch req.Type {
		case gamedata.RequireSkillLevel:
			if p.Level(req.Skill) < req.Level {
				return false
			}
		case gamedata.RequireItemEquipped:
			if !slices.Contains(p.Equipment, req.ItemID) {
				return false
			}
		case gamedata.RequireDungeonCompletion:
			count := req.Count
			if count < 1 {
				count = 1
			}
			if p.DungeonCompletions[req.DungeonID] < count {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// PetSkills returns the skills that earn experience, and therefore pet rolls,
// with the player's current attack type and style.
func (p *Player) PetSkills() []string {
	skills := []string{"Hitpoints", "Prayer"}
	if p.IsSlayerTask {
		skills = append(skills, "Slayer")
	}
	switch p.AttackType {
	case AttackMelee:
		switch p.AttackStyle {
		case 0:
			skills = append(skills, "Attack")
		case 1:
			skills = append(skills, "Strength")
		case 2:
			skills = append(skills, "Defence")
		}
	case AttackRanged:
		skills = append(skills, "Ranged")
		if p.AttackStyle == 2 {
			skills = append(skills, "Defence")
		}
	case AttackMagic:
		skills = append(skills, "Magic")
		if p.AttackStyle == 1 {
			skills = append(skills, "Defence")
		}
	}
	return skills
}
