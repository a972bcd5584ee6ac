package simulation

import (
	"math"
	"strings"

	"github.com/lawnchairsociety/combatsim/internal/combat"
)

// Composite failure reasons
const (
	ReasonFiltered         = "entity filtered"
	ReasonNoEligible       = "no eligible monsters"
	ReasonTooManyActions   = "too many actions"
	ReasonCannotAccessArea = "cannot access area"
)

// Field addresses one float metric of a result.
type Field func(r *combat.Result) *float64

// TimeWeightedFields are averaged over members weighted by kill time.
var TimeWeightedFields = []Field{
	// xp rates
	func(r *combat.Result) *float64 { return &r.XPPerSecond },
	func(r *combat.Result) *float64 { return &r.HPXPPerSecond },
	func(r *combat.Result) *float64 { return &r.SlayerXPPerSecond },
	func(r *combat.Result) *float64 { return &r.PrayerXPPerSecond },
	func(r *combat.Result) *float64 { return &r.SummoningXPPerSecond },
	// consumables
	func(r *combat.Result) *float64 { return &r.PPConsumedPerSecond },
	func(r *combat.Result) *float64 { return &r.AmmoUsedPerSecond },
	func(r *combat.Result) *float64 { return &r.RunesUsedPerSecond },
	func(r *combat.Result) *float64 { return &r.CombinationRunesUsedPerSecond },
	func(r *combat.Result) *float64 { return &r.PotionsUsedPerSecond },
	func(r *combat.Result) *float64 { return &r.TabletsUsedPerSecond },
	func(r *combat.Result) *float64 { return &r.AtePerSecond },
	// loot
	func(r *combat.Result) *float64 { return &r.GPPerSecond },
	func(r *combat.Result) *float64 { return &r.DropChance },
	func(r *combat.Result) *float64 { return &r.SignetChance },
	func(r *combat.Result) *float64 { return &r.PetChance },
	func(r *combat.Result) *float64 { return &r.SlayerCoinsPerSecond },
	// combat
	func(r *combat.Result) *float64 { return &r.DmgPerSecond },
	func(r *combat.Result) *float64 { return &r.AttacksMadePerSecond },
	func(r *combat.Result) *float64 { return &r.AttacksTakenPerSecond },
}

// ComputeComposite derives a dungeon result from its member monsters.
// A filtered or failed composite keeps its previous derived values.
func ComputeComposite(filter bool, data *combat.Result, members []*combat.Result) {
	if !filter {
		data.SimSuccess = false
		data.Reason = ReasonFiltered
		return
	}
	if len(members) == 0 {
		data.SimSuccess = false
		data.Reason = ReasonNoEligible
		return
	}
	if reason, failed := combineReasons(members); failed {
		data.SimSuccess = false
		data.Reason = reason
		return
	}

	data.SimSuccess = true
	data.Reason = ""
	data.TooManyActions = 0
	data.PetRolls = nil

	survive := 1.0
	data.HighestDamageTaken = 0
	data.LowestHitpoints = math.Inf(1)
	data.KillTimeS = 0
	data.SimulationTime = 0
	for _, m := range members {
		survive *= 1 - m.DeathRate
		data.HighestDamageTaken = math.Max(data.HighestDamageTaken, m.HighestDamageTaken)
		data.LowestHitpoints = math.Min(data.LowestHitpoints, m.LowestHitpoints)
		data.KillTimeS += m.KillTimeS
		data.SimulationTime += m.SimulationTime
	}
	data.DeathRate = 1 - survive
	data.KillsPerSecond = 1 / data.KillTimeS

	for _, field := range TimeWeightedFields {
		*field(data) = weightedSum(members, field) / data.KillTimeS
	}
}

// ComputeSlayerTier derives a slayer tier result: the time-weighted composite
// of its members, with kill time and kill rate describing one average kill.
func ComputeSlayerTier(filter bool, data *combat.Result, members []*combat.Result) {
	ComputeComposite(filter, data, members)
	if !data.SimSuccess {
		return
	}
	n := float64(len(members))
	data.KillsPerSecond *= n
	data.KillTimeS /= n
}

// TimeWeightedMean returns Σ(field·killTime)/Σ(killTime) over the members.
func TimeWeightedMean(members []*combat.Result, field Field) float64 {
	total := 0.0
	for _, m := range members {
		total += m.KillTimeS
	}
	if total == 0 {
		return 0
	}
	return weightedSum(members, field) / total
}

func weightedSum(members []*combat.Result, field Field) float64 {
	sum := 0.0
	for _, m := range members {
		sum += *field(m) * m.KillTimeS
	}
	return sum
}

// combineReasons reports whether any member failed, with the distinct member
// reasons joined in first-seen order
func combineReasons(members []*combat.Result) (string, bool) {
	failed := false
	var reasons []string
	seen := make(map[string]bool)
	for _, m := range members {
		if !m.SimSuccess || m.TooManyActions > 0 {
			failed = true
		}
		if m.Reason != "" && !seen[m.Reason] {
			seen[m.Reason] = true
			reasons = append(reasons, m.Reason)
		}
	}
	if len(reasons) > 0 {
		return strings.Join(reasons, ", "), true
	}
	if failed {
		return ReasonTooManyActions, true
	}
	return "", false
}
