// Package gamedata holds the read-only reference tables the simulator works from:
// monsters, items, combat and slayer areas, dungeons and slayer task tiers.
package gamedata

import (
	"math"
	"slices"
	"sort"
)

// UnboundedSlayerLevel replaces a slayer tier max level of -1.
const UnboundedSlayerLevel = 6969

// Area kinds
const (
	AreaCombat = "combat"
	AreaSlayer = "slayer"
)

// Requirement types understood by entry requirement checks
const (
	RequireSkillLevel        = "skill_level"
	RequireItemEquipped      = "item_equipped"
	RequireDungeonCompletion = "dungeon_completion"
)

// Levels are the combat skill levels of a monster or player.
type Levels struct {
	Hitpoints int `yaml:"hitpoints" json:"hitpoints"`
	Attack    int `yaml:"attack" json:"attack"`
	Strength  int `yaml:"strength" json:"strength"`
	Defence   int `yaml:"defence" json:"defence"`
	Ranged    int `yaml:"ranged" json:"ranged"`
	Magic     int `yaml:"magic" json:"magic"`
}

// LootEntry is one row of a monster drop table.
type LootEntry struct {
	ItemID int `yaml:"item"`
	Weight int `yaml:"weight"`
	MaxQty int `yaml:"max_qty"`
}

// DropEntry is one row of an openable item's (chest) drop table.
type DropEntry struct {
	ItemID int `yaml:"item"`
	Weight int `yaml:"weight"`
}

// ItemQuantity pairs an item with an amount, used for upgrade costs.
type ItemQuantity struct {
	ItemID int `yaml:"item"`
	Qty    int `yaml:"qty"`
}

// CoinRange is the gold dropped by a monster on death.
type CoinRange struct {
	Min int `yaml:"min"`
	Max int `yaml:"max"`
}

// Monster is a monster record.
type Monster struct {
	ID          int         `yaml:"id"`
	Name        string      `yaml:"name"`
	Levels      Levels      `yaml:"levels"`
	Hitpoints   int         `yaml:"hitpoints"`    // Max hitpoints
	AttackType  string      `yaml:"attack_type"`  // melee, ranged, magic
	AttackSpeed int         `yaml:"attack_speed"` // Milliseconds between attacks
	MaxHit      int         `yaml:"max_hit"`
	Accuracy    int         `yaml:"accuracy"`
	Evasion     int         `yaml:"evasion"`
	LootChance  *float64    `yaml:"loot_chance"` // Percentage, nil means always
	LootTable   []LootEntry `yaml:"loot_table"`
	DropCoins   CoinRange   `yaml:"drop_coins"`
	Bones       *int        `yaml:"bones"` // Bone or shard item dropped on every kill
	BoneQty     int         `yaml:"bone_qty"`
	SlayerXP    int         `yaml:"slayer_xp"`
	CanSlayer   bool        `yaml:"can_slayer"`
}

// LootChanceFraction returns the chance, in [0,1], that the monster rolls its loot table.
func (m *Monster) LootChanceFraction() float64 {
	if m.LootChance == nil {
		return 1
	}
	return *m.LootChance / 100
}

// BoneQuantity returns the number of bones dropped per kill.
func (m *Monster) BoneQuantity() int {
	if m.BoneQty <= 0 {
		return 1
	}
	return m.BoneQty
}

// HasBones reports whether the monster drops bones or shards.
func (m *Monster) HasBones() bool {
	return m.Bones != nil
}

// Item is an item record.
type Item struct {
	ID            int            `yaml:"id"`
	Name          string         `yaml:"name"`
	SellsFor      float64        `yaml:"sells_for"`
	Type          string         `yaml:"type"`
	Tier          string         `yaml:"tier"`
	CanOpen       bool           `yaml:"can_open"`
	DropTable     []DropEntry    `yaml:"drop_table"`
	DropQty       []int          `yaml:"drop_qty"`
	GrownItemID   *int           `yaml:"grown_item"`
	TrimmedItemID *int           `yaml:"trimmed_item"` // Upgrade target
	ItemsRequired []ItemQuantity `yaml:"items_required"`
	ProvidesRune  []int          `yaml:"provides_rune"`
	PotionCharges int            `yaml:"potion_charges"`
}

// IsHerbSeed reports whether the item is a seed that grows into a herb.
func (i *Item) IsHerbSeed() bool {
	return i.Tier == "Herb" && i.Type == "Seeds" && i.GrownItemID != nil
}

// IsCombinationRune reports whether the item counts as more than one rune type.
func (i *Item) IsCombinationRune() bool {
	return len(i.ProvidesRune) > 1
}

// RequiredQty returns how many of itemID the upgrade into this item costs.
func (i *Item) RequiredQty(itemID int) (int, bool) {
	for _, req := range i.ItemsRequired {
		if req.ItemID == itemID {
			return req.Qty, true
		}
	}
	return 0, false
}

// Requirement is an area entry requirement.
type Requirement struct {
	Type      string `yaml:"type"`
	Skill     string `yaml:"skill,omitempty"`
	Level     int    `yaml:"level,omitempty"`
	ItemID    int    `yaml:"item,omitempty"`
	DungeonID int    `yaml:"dungeon,omitempty"`
	Count     int    `yaml:"count,omitempty"`
}

// Area is a combat or slayer area.
type Area struct {
	ID                int           `yaml:"id"`
	Name              string        `yaml:"name"`
	Kind              string        `yaml:"kind"`
	Monsters          []int         `yaml:"monsters"`
	EntryRequirements []Requirement `yaml:"entry_requirements"`
}

// Dungeon is an ordered chain of monsters ending with its boss.
type Dungeon struct {
	ID         int    `yaml:"id"`
	Name       string `yaml:"name"`
	Monsters   []int  `yaml:"monsters"`
	Rewards    []int  `yaml:"rewards"`
	GodDungeon bool   `yaml:"god_dungeon"`
}

// Boss returns the id of the last monster in the dungeon.
func (d *Dungeon) Boss() int {
	return d.Monsters[len(d.Monsters)-1]
}

// SlayerTier is a slayer task tier, selecting monsters by combat level.
type SlayerTier struct {
	ID       int    `yaml:"id"`
	Name     string `yaml:"name"`
	MinLevel int    `yaml:"min_level"`
	MaxLevel int    `yaml:"max_level"` // -1 means unbounded
}

// Bounds returns the inclusive combat level range of the tier.
func (t *SlayerTier) Bounds() (int, int) {
	if t.MaxLevel == -1 {
		return t.MinLevel, UnboundedSlayerLevel
	}
	return t.MinLevel, t.MaxLevel
}

// CombatLevel returns the derived combat rating of a monster.
func CombatLevel(m *Monster) int {
	lv := m.Levels
	base := 0.25 * float64(lv.Defence+lv.Hitpoints)
	melee := 0.325 * float64(lv.Attack+lv.Strength)
	ranged := 0.325 * math.Floor(1.5*float64(lv.Ranged))
	magic := 0.325 * math.Floor(1.5*float64(lv.Magic))
	return int(math.Floor(base + math.Max(melee, math.Max(ranged, magic))))
}

// Data is the loaded reference data. It is never mutated after Build.
type Data struct {
	monsters    map[int]*Monster
	items       map[int]*Item
	combatAreas []*Area
	slayerAreas []*Area
	dungeons    []*Dungeon
	dungeonByID map[int]*Dungeon
	slayerTiers []*SlayerTier
	wandering   []int
	signetHalf  int
	signetRing  int
	monsterArea map[int]*Area
	monsterIDs  []int
}

// Monster returns the monster with the given id.
func (d *Data) Monster(id int) (*Monster, bool) {
	m, ok := d.monsters[id]
	return m, ok
}

// Item returns the item with the given id.
func (d *Data) Item(id int) (*Item, bool) {
	it, ok := d.items[id]
	return it, ok
}

// MonsterIDs returns every monster id in ascending order.
func (d *Data) MonsterIDs() []int {
	return d.monsterIDs
}

// CombatAreas returns the combat areas in file order.
func (d *Data) CombatAreas() []*Area {
	return d.combatAreas
}

// SlayerAreas returns the slayer areas in file order.
func (d *Data) SlayerAreas() []*Area {
	return d.slayerAreas
}

// Dungeons returns all dungeons ordered by id.
func (d *Data) Dungeons() []*Dungeon {
	return d.dungeons
}

// Dungeon returns the dungeon with the given id.
func (d *Data) Dungeon(id int) (*Dungeon, bool) {
	dg, ok := d.dungeonByID[id]
	return dg, ok
}

// SlayerTiers returns all slayer tiers ordered by id.
func (d *Data) SlayerTiers() []*SlayerTier {
	return d.slayerTiers
}

// WanderingMonsters returns monsters that belong to no area but can still be fought.
func (d *Data) WanderingMonsters() []int {
	return d.wandering
}

// SignetHalf returns the signet ring half item, if configured.
func (d *Data) SignetHalf() (*Item, bool) {
	return d.Item(d.signetHalf)
}

// SignetRingEquipped reports whether equipment includes the ring that enables
// signet half drops. Always false when no ring is configured.
func (d *Data) SignetRingEquipped(equipment []int) bool {
	return d.signetRing >= 0 && slices.Contains(equipment, d.signetRing)
}

// MonsterArea returns the area a monster lives in.
func (d *Data) MonsterArea(monsterID int) (*Area, bool) {
	a, ok := d.monsterArea[monsterID]
	return a, ok
}

// MonsterName returns the monster's name, or "Unknown" for unknown ids.
func (d *Data) MonsterName(id int) string {
	if m, ok := d.monsters[id]; ok {
		return m.Name
	}
	return "Unknown"
}

func sortedKeys[V any](m map[int]V) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}
