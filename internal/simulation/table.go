package simulation

import (
	"slices"

	"github.com/lawnchairsociety/combatsim/internal/combat"
	"github.com/lawnchairsociety/combatsim/internal/gamedata"
)

// Entity kinds used to address results
const (
	KindMonster    = "monster"
	KindDungeon    = "dungeon"
	KindSlayerTier = "slayer"
)

// Table holds the live result of every monster, dungeon and slayer tier,
// plus the slayer tier membership computed at the last enqueue.
type Table struct {
	Monsters    map[int]*combat.Result
	Dungeons    map[int]*combat.Result
	SlayerTiers map[int]*combat.Result
	TierMembers map[int][]int
}

// NewTable allocates an unsimulated result for every known entity.
func NewTable(data *gamedata.Data) *Table {
	t := &Table{
		Monsters:    make(map[int]*combat.Result),
		Dungeons:    make(map[int]*combat.Result),
		SlayerTiers: make(map[int]*combat.Result),
		TierMembers: make(map[int][]int),
	}
	for _, id := range data.MonsterIDs() {
		t.Monsters[id] = combat.NewResult()
	}
	for _, dg := range data.Dungeons() {
		t.Dungeons[dg.ID] = combat.NewResult()
	}
	for _, tier := range data.SlayerTiers() {
		t.SlayerTiers[tier.ID] = combat.NewResult()
	}
	return t
}

// Lookup returns the result for an entity kind and id.
func (t *Table) Lookup(kind string, id int) (*combat.Result, bool) {
	var r *combat.Result
	var ok bool
	switch kind {
	case KindMonster:
		r, ok = t.Monsters[id]
	case KindDungeon:
		r, ok = t.Dungeons[id]
	case KindSlayerTier:
		r, ok = t.SlayerTiers[id]
	}
	return r, ok
}

// MemberResults returns the results of the given monsters, in order.
// Duplicate ids yield the same result more than once.
func (t *Table) MemberResults(ids []int) []*combat.Result {
	members := make([]*combat.Result, 0, len(ids))
	for _, id := range ids {
		if r, ok := t.Monsters[id]; ok {
			members = append(members, r)
		}
	}
	return members
}

// Clone returns a deep copy of the table.
func (t *Table) Clone() *Table {
	c := &Table{
		Monsters:    cloneResults(t.Monsters),
		Dungeons:    cloneResults(t.Dungeons),
		SlayerTiers: cloneResults(t.SlayerTiers),
		TierMembers: make(map[int][]int, len(t.TierMembers)),
	}
	for id, members := range t.TierMembers {
		c.TierMembers[id] = slices.Clone(members)
	}
	return c
}

func cloneResults(src map[int]*combat.Result) map[int]*combat.Result {
	dst := make(map[int]*combat.Result, len(src))
	for id, r := range src {
		dst[id] = r.Clone()
	}
	return dst
}
