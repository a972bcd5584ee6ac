package loot

import (
	"math"
	"testing"

	"github.com/lawnchairsociety/combatsim/internal/combat"
	"github.com/lawnchairsociety/combatsim/internal/gamedata"
	"github.com/lawnchairsociety/combatsim/internal/simulation"
)

func intPtr(v int) *int { return &v }

func floatPtr(v float64) *float64 { return &v }

// signetRing is the item that enables signet half drops in lootTestData
const signetRing = 60

func lootTestData(t *testing.T) *gamedata.Data {
	t.Helper()
	data, err := gamedata.Build(&gamedata.DataFile{
		Monsters: []gamedata.Monster{
			{ID: 1, Name: "Goblin", Hitpoints: 20, SlayerXP: 10, CanSlayer: true,
				LootTable: []gamedata.LootEntry{{ItemID: 10, Weight: 1, MaxQty: 1}}},
			{ID: 2, Name: "Dragon", Levels: gamedata.Levels{Hitpoints: 400000}}, // combat level 100000
			{ID: 3, Name: "Banker", DropCoins: gamedata.CoinRange{Min: 1, Max: 10}},
			{ID: 4, Name: "Acolyte", Bones: intPtr(30), BoneQty: 2},
			{ID: 5, Name: "Skeleton", Bones: intPtr(40),
				LootTable: []gamedata.LootEntry{{ItemID: 20, Weight: 1, MaxQty: 1}}},
			{ID: 6, Name: "Farmer", LootChance: floatPtr(50), Bones: intPtr(40),
				DropCoins: gamedata.CoinRange{Min: 1, Max: 4},
				LootTable: []gamedata.LootEntry{{ItemID: 70, Weight: 1, MaxQty: 1}}},
			{ID: 7, Name: "Farmhand", Bones: intPtr(40),
				DropCoins: gamedata.CoinRange{Min: 1, Max: 4},
				LootTable: []gamedata.LootEntry{{ItemID: 70, Weight: 1, MaxQty: 1}}},
		},
		Items: []gamedata.Item{
			{ID: 10, Name: "Gem", SellsFor: 4},
			{ID: 20, Name: "Chest", CanOpen: true,
				DropTable: []gamedata.DropEntry{{ItemID: 21, Weight: 1}, {ItemID: 22, Weight: 3}},
				DropQty:   []int{3, 1}},
			{ID: 21, Name: "Ruby", SellsFor: 10},
			{ID: 22, Name: "Copper", SellsFor: 2},
			{ID: 30, Name: "Shard", SellsFor: 5, TrimmedItemID: intPtr(31)},
			{ID: 31, Name: "Shard Chest", CanOpen: true,
				DropTable:     []gamedata.DropEntry{{ItemID: 21, Weight: 1}},
				ItemsRequired: []gamedata.ItemQuantity{{ItemID: 30, Qty: 10}}},
			{ID: 40, Name: "Bones", SellsFor: 1},
			{ID: 50, Name: "Signet Half", SellsFor: 500000},
			{ID: 60, Name: "Topaz Ring", SellsFor: 900},
			{ID: 70, Name: "Herb Seed", Type: "Seeds", Tier: "Herb", SellsFor: 2, GrownItemID: intPtr(71)},
			{ID: 71, Name: "Herb", SellsFor: 10},
		},
		Dungeons: []gamedata.Dungeon{
			{ID: 0, Name: "Crypt", Monsters: []int{1, 3}},
			{ID: 1, Name: "Temple", Monsters: []int{4, 4}, GodDungeon: true},
		},
		SlayerTiers: []gamedata.SlayerTier{{ID: 0, Name: "Any", MinLevel: 0, MaxLevel: -1}},
		Special:     &gamedata.SpecialDefinition{SignetHalfItem: 50, SignetRingItem: intPtr(signetRing)},
	})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	return data
}

func success(killTime float64) *combat.Result {
	return &combat.Result{SimSuccess: true, KillTimeS: killTime, KillsPerSecond: 1 / killTime}
}

func analyze(t *testing.T, data *gamedata.Data, settings Settings, player combat.Player, fill func(*simulation.Table)) *simulation.Table {
	t.Helper()
	table := simulation.NewTable(data)
	fill(table)
	NewValuator(data, settings).Analyze(table, &simulation.RunContext{Player: player})
	return table
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestDropChanceSingleEntryTable(t *testing.T) {
	data := lootTestData(t)
	settings := DefaultSettings()
	settings.DropSelected = 10

	table := analyze(t, data, settings, combat.Player{}, func(tb *simulation.Table) {
		tb.Monsters[1] = success(10)
	})

	if got := table.Monsters[1].DropChance; !almostEqual(got, 0.1) {
		t.Errorf("DropChance = %v, want 0.1 per second", got)
	}
	// Non-god dungeon uses its boss, which does not drop gems
	if got := table.Dungeons[0].DropChance; got != 0 {
		t.Errorf("dungeon DropChance = %v, want 0", got)
	}
}

func TestDropChanceChestAndBones(t *testing.T) {
	data := lootTestData(t)
	settings := DefaultSettings()

	tests := []struct {
		name   string
		target int
		want   float64
	}{
		// Chest drops every kill; ruby is 1/4 of the chest table, up to 3 per chest
		{"chest content", 21, 0.25 * 2 / 5},
		{"bones", 40, 1.0 / 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			settings.DropSelected = tt.target
			table := analyze(t, data, settings, combat.Player{}, func(tb *simulation.Table) {
				tb.Monsters[5] = success(5)
			})
			if got := table.Monsters[5].DropChance; !almostEqual(got, tt.want) {
				t.Errorf("DropChance = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSignetChance(t *testing.T) {
	data := lootTestData(t)
	settings := DefaultSettings()
	settings.SignetFarmHours = 1
	fill := func(tb *simulation.Table) {
		// 5 kills in an hour
		tb.Monsters[2] = success(720)
		tb.Monsters[3] = &combat.Result{Reason: "failed", KillTimeS: 720}
	}

	table := analyze(t, data, settings, combat.Player{Equipment: []int{signetRing}}, fill)

	// p = 100000 / 500000 = 0.2 per kill; 1 - 0.8^5 = 0.67232
	if got := table.Monsters[2].SignetChance; !almostEqual(got, 67.232) {
		t.Errorf("SignetChance = %v, want 67.232", got)
	}
	if got := table.Monsters[3].SignetChance; got != 0 {
		t.Errorf("failed monster SignetChance = %v, want 0", got)
	}

	// Without the ring nothing rolls, whatever the settings
	table = analyze(t, data, settings, combat.Player{Equipment: []int{10}}, fill)
	if got := table.Monsters[2].SignetChance; got != 0 {
		t.Errorf("SignetChance without ring = %v, want 0", got)
	}
}

func TestSignetValueNeedsRing(t *testing.T) {
	data := lootTestData(t)
	dragon, _ := data.Monster(2)

	tests := []struct {
		name      string
		equipment []int
		want      float64
	}{
		// 500000 * 100000 / 500000
		{"ring equipped", []int{10, signetRing}, 100000},
		{"ring missing", []int{10}, 0},
		{"nothing equipped", nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			val := &valuation{
				data:     data,
				settings: DefaultSettings(),
				signet:   data.SignetRingEquipped(tt.equipment),
			}
			if got := val.signetValue(dragon); !almostEqual(got, tt.want) {
				t.Errorf("signetValue = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSlayerTierSignetChance(t *testing.T) {
	data := lootTestData(t)
	settings := DefaultSettings()
	fill := func(tb *simulation.Table) {
		tb.Monsters[1] = success(720)
		tb.Monsters[2] = success(720)
		tb.TierMembers[0] = []int{1, 2}
		simulation.ComputeSlayerTier(true, tb.SlayerTiers[0], tb.MemberResults([]int{1, 2}))
	}

	table := analyze(t, data, settings, combat.Player{Equipment: []int{signetRing}}, fill)

	// One task kill is an average member: mean rate over 5 kills in an hour
	goblin, _ := data.Monster(1)
	dragon, _ := data.Monster(2)
	rate := float64(gamedata.CombatLevel(goblin)+gamedata.CombatLevel(dragon)) / 2 / signetDivisor
	want := (1 - math.Pow(1-rate, 5)) * 100
	if got := table.SlayerTiers[0].SignetChance; !almostEqual(got, want) {
		t.Errorf("tier SignetChance = %v, want %v", got, want)
	}

	table = analyze(t, data, settings, combat.Player{}, fill)
	if got := table.SlayerTiers[0].SignetChance; got != 0 {
		t.Errorf("tier SignetChance without ring = %v, want 0", got)
	}
}

func TestMonsterGoldPerSecond(t *testing.T) {
	data := lootTestData(t)
	settings := DefaultSettings()
	settings.IncreasedGP = 1
	settings.GPBonus = 2

	table := analyze(t, data, settings, combat.Player{}, func(tb *simulation.Table) {
		r := success(4)
		r.GPFromDamagePerSecond = 0.5
		tb.Monsters[3] = r

		flagged := success(4)
		flagged.TooManyActions = 1
		flagged.GPFromDamagePerSecond = 0.5
		tb.Monsters[1] = flagged
	})

	// Coins: ((10+1-1)/2 + 1) * 2 = 12 per kill over 4s, plus damage gold
	if got := table.Monsters[3].GPPerSecond; !almostEqual(got, 3.5) {
		t.Errorf("GPPerSecond = %v, want 3.5", got)
	}
	if got := table.Monsters[1].GPPerSecond; got != 0.5 {
		t.Errorf("flagged GPPerSecond = %v, want damage gold only", got)
	}
}

func TestMonsterValue(t *testing.T) {
	data := lootTestData(t)

	tests := []struct {
		name      string
		monster   int
		herb      float64
		sellBones bool
		autoBury  bool
		lootBonus float64
		want      float64
	}{
		// One seed worth 2 per roll; coins: (4+1-1)/2 = 2
		{"seeds at full loot chance", 7, 0, false, false, 1, 2 + 2},
		// Loot chance halves the table but not the coins
		{"seeds at half loot chance", 6, 0, false, false, 1, 1 + 2},
		// Planting adds 3 to the quantity: 4 * (2*0.5 + 10*0.5) = 24
		{"herb blend", 6, 0.5, false, false, 1, 12 + 2},
		{"all seeds grown", 6, 1, false, false, 1, 20 + 2},
		// Bones ignore the loot chance
		{"sold bones", 6, 0.5, true, false, 1, 12 + 2 + 1},
		{"buried bones", 6, 0.5, true, true, 1, 12 + 2},
		// Loot bonus scales table and bones, never coins
		{"loot bonus", 6, 0, true, false, 2, 2 + 2 + 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			settings := DefaultSettings()
			settings.HerbConvertChance = tt.herb
			settings.SellBones = tt.sellBones
			settings.BonesAutoBury = tt.autoBury
			settings.LootBonus = tt.lootBonus
			val := &valuation{data: data, settings: settings}

			m, _ := data.Monster(tt.monster)
			if got := val.monsterValue(m); !almostEqual(got, tt.want) {
				t.Errorf("monsterValue = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGoldPerSecondHalfLootChance(t *testing.T) {
	data := lootTestData(t)
	settings := DefaultSettings()
	settings.HerbConvertChance = 0.5
	settings.SellBones = true

	table := analyze(t, data, settings, combat.Player{}, func(tb *simulation.Table) {
		tb.Monsters[6] = success(2)
	})

	// (24 * 0.5 + 2 coins + 1 bone) per kill over 2s
	if got := table.Monsters[6].GPPerSecond; !almostEqual(got, 7.5) {
		t.Errorf("GPPerSecond = %v, want 7.5", got)
	}
}

func TestChestValue(t *testing.T) {
	data := lootTestData(t)
	val := &valuation{data: data, settings: DefaultSettings()}
	chest, _ := data.Item(20)

	// (2*10*1 + 1*2*3) / 4
	if got := val.chestValue(chest); !almostEqual(got, 6.5) {
		t.Errorf("chestValue = %v, want 6.5", got)
	}

	skeleton, _ := data.Monster(5)
	// One chest per roll, averaging (1+1)/2 chests
	if got := val.dropTableValue(skeleton); !almostEqual(got, 6.5) {
		t.Errorf("dropTableValue = %v, want 6.5", got)
	}
}

func TestGodDungeonShards(t *testing.T) {
	data := lootTestData(t)
	temple, _ := data.Dungeon(1)

	settings := DefaultSettings()
	val := &valuation{data: data, settings: settings}
	// Two acolytes with two shards each
	if got := val.dungeonValue(temple); !almostEqual(got, 20) {
		t.Errorf("sold shards value = %v, want 20", got)
	}

	settings.ConvertShards = true
	val.settings = settings
	// 4 shards / 10 per chest * 10 gold chest
	if got := val.dungeonValue(temple); !almostEqual(got, 4) {
		t.Errorf("converted shards value = %v, want 4", got)
	}
}

func TestSlayerRewards(t *testing.T) {
	data := lootTestData(t)
	settings := DefaultSettings()
	settings.SlayerCoinBonus = 100
	player := combat.Player{IsSlayerTask: true, SlayerXPBonus: 50}

	table := analyze(t, data, settings, player, func(tb *simulation.Table) {
		tb.Monsters[1] = success(5)
	})

	// (10 + 20 hitpoints) * 1.5 / 5
	if got := table.Monsters[1].SlayerXPPerSecond; !almostEqual(got, 9) {
		t.Errorf("SlayerXPPerSecond = %v, want 9", got)
	}
	// 20 * 2 / 5
	if got := table.Monsters[1].SlayerCoinsPerSecond; !almostEqual(got, 8) {
		t.Errorf("SlayerCoinsPerSecond = %v, want 8", got)
	}
}

func TestPetChance(t *testing.T) {
	data := lootTestData(t)
	player := combat.Player{Levels: map[string]int{"Hitpoints": 99}, AttackType: combat.AttackMelee}
	fill := func(tb *simulation.Table) {
		r := success(10)
		r.PetRolls = map[string][]combat.PetRoll{"other": {{Speed: 2000, RollsPerSecond: 1}}}
		tb.Monsters[1] = r
	}

	settings := DefaultSettings()
	settings.PetSkill = "Hitpoints"
	table := analyze(t, data, settings, player, fill)

	want := (1 - math.Pow(1-2000*100/25e9, 10)) * 100
	if got := table.Monsters[1].PetChance; !almostEqual(got, want) {
		t.Errorf("PetChance = %v, want %v", got, want)
	}

	settings.PetSkill = "Woodcutting"
	table = analyze(t, data, settings, player, fill)
	if got := table.Monsters[1].PetChance; got != 0 {
		t.Errorf("PetChance for non-combat skill = %v, want 0", got)
	}
}

func TestCompositePetChance(t *testing.T) {
	data := lootTestData(t)
	player := combat.Player{Levels: map[string]int{"Hitpoints": 99}, AttackType: combat.AttackMelee}
	rolls := map[int]combat.PetRoll{
		1: {Speed: 2000, RollsPerSecond: 1},
		3: {Speed: 3000, RollsPerSecond: 0.5},
	}
	killTimes := map[int]float64{1: 4, 3: 6}
	fill := func(tb *simulation.Table) {
		for id, roll := range rolls {
			r := success(killTimes[id])
			r.PetRolls = map[string][]combat.PetRoll{"other": {roll}}
			tb.Monsters[id] = r
		}
		simulation.ComputeComposite(true, tb.Dungeons[0], tb.MemberResults([]int{1, 3}))
		tb.TierMembers[0] = []int{1, 3}
		simulation.ComputeSlayerTier(true, tb.SlayerTiers[0], tb.MemberResults([]int{1, 3}))
	}
	// Each member rolls for its share of the period: 4/10 and 6/10
	miss := func(period float64) float64 {
		goblin := math.Pow(1-2000*100/petRollDivisor, period*0.4*1)
		banker := math.Pow(1-3000*100/petRollDivisor, period*0.6*0.5)
		return goblin * banker
	}

	tests := []struct {
		name       string
		multiplier float64
		result     func(*simulation.Table) *combat.Result
		want       float64
	}{
		{"dungeon per completion", -1, func(tb *simulation.Table) *combat.Result { return tb.Dungeons[0] }, (1 - miss(10)) * 100},
		{"dungeon per hour", 3600, func(tb *simulation.Table) *combat.Result { return tb.Dungeons[0] }, (1 - miss(3600)) * 100},
		// A task kill averages 5s over the two members
		{"slayer tier per kill", -1, func(tb *simulation.Table) *combat.Result { return tb.SlayerTiers[0] }, (1 - miss(5)) * 100},
		{"slayer tier per hour", 3600, func(tb *simulation.Table) *combat.Result { return tb.SlayerTiers[0] }, (1 - miss(3600)) * 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			settings := DefaultSettings()
			settings.PetSkill = "Hitpoints"
			settings.TimeMultiplier = tt.multiplier

			table := analyze(t, data, settings, player, fill)
			if got := tt.result(table).PetChance; !almostEqual(got, tt.want) {
				t.Errorf("PetChance = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDungeonPetChanceSlayerSkill(t *testing.T) {
	data := lootTestData(t)
	player := combat.Player{IsSlayerTask: true, AttackType: combat.AttackMelee}
	settings := DefaultSettings()
	settings.PetSkill = "Slayer"

	table := analyze(t, data, settings, player, func(tb *simulation.Table) {
		for _, id := range []int{1, 3} {
			r := success(5)
			r.PetRolls = map[string][]combat.PetRoll{"Slayer": {{Speed: 5000, RollsPerSecond: 0.2}}}
			tb.Monsters[id] = r
		}
		simulation.ComputeComposite(true, tb.Dungeons[0], tb.MemberResults([]int{1, 3}))
	})

	if got := table.Dungeons[0].PetChance; got != 0 {
		t.Errorf("dungeon Slayer PetChance = %v, want 0", got)
	}
	if got := table.Monsters[1].PetChance; got <= 0 {
		t.Errorf("monster Slayer PetChance = %v, want > 0", got)
	}
}

func TestValuatorSettings(t *testing.T) {
	v := NewValuator(lootTestData(t), DefaultSettings())
	s := v.Settings()
	s.LootBonus = 2
	v.SetSettings(s)
	if got := v.Settings().LootBonus; got != 2 {
		t.Errorf("LootBonus = %v, want 2", got)
	}
}
