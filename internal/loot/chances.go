package loot

import (
	"math"
	"slices"

	"github.com/lawnchairsociety/combatsim/internal/combat"
	"github.com/lawnchairsociety/combatsim/internal/gamedata"
	"github.com/lawnchairsociety/combatsim/internal/simulation"
)

// petRollDivisor scales action speed and skill level into a per-roll pet chance
const petRollDivisor = 25e9

func (val *valuation) updateDropChance() {
	target := val.settings.DropSelected
	for id, r := range val.table.Monsters {
		m, ok := val.data.Monster(id)
		if !ok {
			continue
		}
		r.DropChance = val.dropRate(m, r.KillTimeS, target)
	}
	for _, dg := range val.data.Dungeons() {
		r := val.table.Dungeons[dg.ID]
		if dg.GodDungeon {
			r.DropChance = simulation.TimeWeightedMean(val.dungeonMembers(dg), dropField)
			continue
		}
		boss, _ := val.data.Monster(dg.Boss())
		r.DropChance = val.dropRate(boss, r.KillTimeS, target)
	}
	for _, tier := range val.data.SlayerTiers() {
		r := val.table.SlayerTiers[tier.ID]
		r.DropChance = simulation.TimeWeightedMean(val.tierMembers(tier.ID), dropField)
	}
}

// dropRate returns the expected number of target items per second
func (val *valuation) dropRate(m *gamedata.Monster, killTime float64, target int) float64 {
	if target == NoDropSelected || killTime <= 0 {
		return 0
	}
	perKill := val.regularDropAmount(m, target) + val.boneDropAmount(m, target)
	return perKill * val.settings.LootBonus / killTime
}

// chestLoot returns the chance and amount of target from opening chestAmt chests
// that drop with chestChance weight
func (val *valuation) chestLoot(chestID int, chestChance, chestAmt float64, target int) (float64, float64) {
	chest, ok := val.data.Item(chestID)
	if !ok || len(chest.DropTable) == 0 {
		return 0, 0
	}
	chestSum := 0.0
	for _, entry := range chest.DropTable {
		chestSum += float64(entry.Weight)
	}
	if chestSum == 0 {
		return 0, 0
	}

	chance, amt := 0.0, 0.0
	for i, entry := range chest.DropTable {
		if entry.ItemID != target {
			continue
		}
		chance += chestAmt * chestChance * float64(entry.Weight) / chestSum
		if i < len(chest.DropQty) {
			amt += float64(chest.DropQty[i])
		} else {
			amt++
		}
	}
	return chance, amt
}

// regularDropAmount returns the expected number of target items per kill from
// the loot table, including items inside dropped chests
func (val *valuation) regularDropAmount(m *gamedata.Monster, target int) float64 {
	if len(m.LootTable) == 0 {
		return 0
	}
	total, selectedChance, selectedAmt := 0.0, 0.0, 0.0
	for _, entry := range m.LootTable {
		weight := float64(entry.Weight)
		total += weight
		if entry.ItemID == target {
			selectedChance += weight
			selectedAmt += float64(entry.MaxQty)
		}
		chance, amt := val.chestLoot(entry.ItemID, weight, float64(entry.MaxQty), target)
		selectedChance += chance
		selectedAmt += amt
	}
	if total == 0 {
		return 0
	}
	dropRate := m.LootChanceFraction() * selectedChance / total
	// An item dropping up to n at a time drops (n+1)/2 on average
	return dropRate * math.Max((selectedAmt+1)/2, 1)
}

// boneDropAmount returns the expected number of target items per kill from
// bones, their upgrade, or the upgrade's chest contents
func (val *valuation) boneDropAmount(m *gamedata.Monster, target int) float64 {
	if !m.HasBones() {
		return 0
	}
	boneID := *m.Bones
	amt := float64(m.BoneQuantity())
	if boneID == target {
		return amt
	}

	bone, ok := val.data.Item(boneID)
	if !ok || bone.TrimmedItemID == nil {
		return 0
	}
	upgradeID := *bone.TrimmedItemID
	upgrade, ok := val.data.Item(upgradeID)
	if !ok {
		return 0
	}
	cost, ok := upgrade.RequiredQty(boneID)
	if !ok || cost <= 0 {
		return 0
	}
	if upgradeID == target {
		return amt / float64(cost)
	}

	chance, chestAmt := val.chestLoot(upgradeID, 1, amt, target)
	return chance / float64(cost) * math.Max((chestAmt+1)/2, 1)
}

// signetRate returns the chance of a signet half on one kill
func (val *valuation) signetRate(m *gamedata.Monster) float64 {
	return float64(gamedata.CombatLevel(m)) * m.LootChanceFraction() / signetDivisor
}

// signetChance returns the percent chance of at least one signet half over the
// configured farm time
func (val *valuation) signetChance(rate, killTime float64) float64 {
	if killTime <= 0 {
		return 0
	}
	kills := math.Floor(val.settings.SignetFarmHours * 3600 / killTime)
	return (1 - math.Pow(1-rate, kills)) * 100
}

func (val *valuation) updateSignetChance() {
	enabled := val.signet
	for id, r := range val.table.Monsters {
		m, ok := val.data.Monster(id)
		if !ok || !enabled || !r.SimSuccess {
			r.SignetChance = 0
			continue
		}
		r.SignetChance = val.signetChance(val.signetRate(m), r.KillTimeS)
	}
	for _, dg := range val.data.Dungeons() {
		r := val.table.Dungeons[dg.ID]
		boss, ok := val.data.Monster(dg.Boss())
		if !ok || !enabled || !r.SimSuccess {
			r.SignetChance = 0
			continue
		}
		r.SignetChance = val.signetChance(val.signetRate(boss), r.KillTimeS)
	}
	// A slayer task kill is a kill of an average member
	for _, tier := range val.data.SlayerTiers() {
		r := val.table.SlayerTiers[tier.ID]
		ids := val.table.TierMembers[tier.ID]
		if !enabled || !r.SimSuccess || len(ids) == 0 {
			r.SignetChance = 0
			continue
		}
		rate := 0.0
		for _, id := range ids {
			m, _ := val.data.Monster(id)
			rate += val.signetRate(m)
		}
		r.SignetChance = val.signetChance(rate/float64(len(ids)), r.KillTimeS)
	}
}

func (val *valuation) updatePetChance() {
	skill := val.settings.PetSkill
	if !slices.Contains(val.player.PetSkills(), skill) {
		for _, r := range val.table.Monsters {
			r.PetChance = 0
		}
		for _, r := range val.table.Dungeons {
			r.PetChance = 0
		}
		for _, r := range val.table.SlayerTiers {
			r.PetChance = 0
		}
		return
	}

	level := float64(val.player.Level(skill) + 1)
	for _, r := range val.table.Monsters {
		if !r.SimSuccess {
			r.PetChance = 0
			continue
		}
		r.PetChance = (1 - val.missChance(r, level, val.period(r), 1)) * 100
	}

	for _, dg := range val.data.Dungeons() {
		r := val.table.Dungeons[dg.ID]
		if !r.SimSuccess || skill == "Slayer" {
			r.PetChance = 0
			continue
		}
		r.PetChance = val.compositePetChance(r, val.dungeonMembers(dg), r.KillTimeS, level)
	}

	for _, tier := range val.data.SlayerTiers() {
		r := val.table.SlayerTiers[tier.ID]
		members := val.tierMembers(tier.ID)
		if !r.SimSuccess || len(members) == 0 {
			r.PetChance = 0
			continue
		}
		totalKillTime := 0.0
		for _, m := range members {
			totalKillTime += m.KillTimeS
		}
		r.PetChance = val.compositePetChance(r, members, totalKillTime, level)
	}
}

// compositePetChance combines member pet rolls, each member getting its share
// of the period by kill time
func (val *valuation) compositePetChance(r *combat.Result, members []*combat.Result, totalKillTime, level float64) float64 {
	if totalKillTime <= 0 {
		return 0
	}
	period := val.period(r)
	miss := 1.0
	for _, m := range members {
		miss *= val.missChance(m, level, period, m.KillTimeS/totalKillTime)
	}
	return (1 - miss) * 100
}

// missChance returns the chance of no pet from r's rolls over period·share seconds
func (val *valuation) missChance(r *combat.Result, level, period, share float64) float64 {
	rolls, ok := r.PetRolls[val.settings.PetSkill]
	if !ok {
		rolls = r.PetRolls["other"]
	}
	miss := 1.0
	for _, roll := range rolls {
		miss *= math.Pow(1-roll.Speed*level/petRollDivisor, period*share*roll.RollsPerSecond)
	}
	return miss
}

// period returns the seconds over which chances are reported
func (val *valuation) period(r *combat.Result) float64 {
	if val.settings.TimeMultiplier == -1 {
		return r.KillTimeS
	}
	return val.settings.TimeMultiplier
}
