package loot

import (
	"math"

	"github.com/lawnchairsociety/combatsim/internal/gamedata"
)

// signetDivisor scales combat level into the per-kill signet half chance
const signetDivisor = 500000.0

// averageCoins returns the expected coins per kill after bonuses
func (val *valuation) averageCoins(m *gamedata.Monster) float64 {
	coins := math.Max(0, float64(m.DropCoins.Max+m.DropCoins.Min-1)/2)
	coins += val.settings.IncreasedGP
	return coins * val.settings.GPBonus
}

// dropTableValue returns the expected sell value of one loot table roll
func (val *valuation) dropTableValue(m *gamedata.Monster) float64 {
	if len(m.LootTable) == 0 {
		return 0
	}
	herbChance := val.settings.HerbConvertChance
	gpWeight, totalWeight := 0.0, 0.0
	for _, entry := range m.LootTable {
		item, ok := val.data.Item(entry.ItemID)
		if !ok {
			continue
		}
		weight := float64(entry.Weight)
		avgQty := float64(entry.MaxQty+1) / 2
		switch {
		case item.CanOpen:
			// Chest values are already weight-averaged
			gpWeight += val.chestValue(item) * avgQty
		case herbChance > 0 && item.IsHerbSeed():
			avgQty += 3
			value := item.SellsFor * (1 - herbChance)
			if grown, ok := val.data.Item(*item.GrownItemID); ok {
				value += grown.SellsFor * herbChance
			}
			gpWeight += value * weight * avgQty
		default:
			gpWeight += item.SellsFor * weight * avgQty
		}
		totalWeight += weight
	}
	if totalWeight == 0 {
		return 0
	}
	return gpWeight / totalWeight * val.settings.LootBonus
}

// chestValue returns the expected sell value of opening one chest
func (val *valuation) chestValue(chest *gamedata.Item) float64 {
	gpWeight, totalWeight := 0.0, 0.0
	for i, entry := range chest.DropTable {
		avgQty := 1.0
		if i < len(chest.DropQty) {
			avgQty = float64(chest.DropQty[i]+1) / 2
		}
		weight := float64(entry.Weight)
		if item, ok := val.data.Item(entry.ItemID); ok {
			gpWeight += avgQty * item.SellsFor * weight
		}
		totalWeight += weight
	}
	if totalWeight == 0 {
		return 0
	}
	return gpWeight / totalWeight
}

// signetValue returns the expected value of signet half drops per kill
func (val *valuation) signetValue(m *gamedata.Monster) float64 {
	if !val.signet {
		return 0
	}
	signet, ok := val.data.SignetHalf()
	if !ok {
		return 0
	}
	return signet.SellsFor * float64(gamedata.CombatLevel(m)) / signetDivisor
}

// monsterValue returns the expected gold earned per kill
func (val *valuation) monsterValue(m *gamedata.Monster) float64 {
	// Loot and signet are subject to the loot chance; coins and bones are not
	value := (val.dropTableValue(m) + val.signetValue(m)) * m.LootChanceFraction()
	value += val.averageCoins(m)
	if val.settings.SellBones && !val.settings.BonesAutoBury && m.HasBones() {
		if bones, ok := val.data.Item(*m.Bones); ok {
			value += bones.SellsFor * val.settings.LootBonus * float64(m.BoneQuantity())
		}
	}
	return value
}

// dungeonValue returns the expected gold earned per dungeon completion
func (val *valuation) dungeonValue(dg *gamedata.Dungeon) float64 {
	value := 0.0
	for _, reward := range dg.Rewards {
		item, ok := val.data.Item(reward)
		if !ok {
			continue
		}
		if item.CanOpen {
			value += val.chestValue(item) * val.settings.LootBonus
		} else {
			value += item.SellsFor
		}
	}

	if dg.GodDungeon {
		value += val.shardValue(dg)
	}

	boss, ok := val.data.Monster(dg.Boss())
	if !ok {
		return value
	}
	value += val.signetValue(boss)
	value += val.averageCoins(boss)
	return value
}

// shardValue returns the value of the shards dropped over one god dungeon,
// either sold or converted into their upgrade chest
func (val *valuation) shardValue(dg *gamedata.Dungeon) float64 {
	first, ok := val.data.Monster(dg.Monsters[0])
	if !ok || !first.HasBones() {
		return 0
	}
	shard, ok := val.data.Item(*first.Bones)
	if !ok {
		return 0
	}

	count := 0.0
	for _, id := range dg.Monsters {
		if m, ok := val.data.Monster(id); ok {
			count += float64(m.BoneQuantity())
		}
	}
	count *= val.settings.LootBonus

	if val.settings.ConvertShards && shard.TrimmedItemID != nil {
		if chest, ok := val.data.Item(*shard.TrimmedItemID); ok {
			if cost, ok := chest.RequiredQty(shard.ID); ok && cost > 0 {
				return count / float64(cost) * val.chestValue(chest)
			}
		}
	}
	return count * shard.SellsFor
}
