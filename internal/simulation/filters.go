package simulation

// Filters exclude entities from simulation. Excluded ids are skipped at
// enqueue time and composites over them report "entity filtered".
type Filters struct {
	Monsters    map[int]bool
	Dungeons    map[int]bool
	SlayerTiers map[int]bool
}

// NewFilters builds filters from lists of excluded ids.
func NewFilters(monsters, dungeons, tiers []int) Filters {
	return Filters{
		Monsters:    toSet(monsters),
		Dungeons:    toSet(dungeons),
		SlayerTiers: toSet(tiers),
	}
}

func (f Filters) Monster(id int) bool    { return !f.Monsters[id] }
func (f Filters) Dungeon(id int) bool    { return !f.Dungeons[id] }
func (f Filters) SlayerTier(id int) bool { return !f.SlayerTiers[id] }

func toSet(ids []int) map[int]bool {
	set := make(map[int]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}
