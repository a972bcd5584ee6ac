package simulation

import (
	"fmt"

	"github.com/lawnchairsociety/combatsim/internal/gamedata"
)

// Notices for single-target selections that are filtered out
const (
	noticeMonsterFiltered = "The selected monster is filtered!"
	noticeDungeonFiltered = "The selected dungeon is filtered!"
	noticeTierFiltered    = "The selected task list is filtered!"
)

func (s *Scheduler) enqueue(scope Scope) ([]Notice, error) {
	if s.inProgress {
		return nil, ErrRunInProgress
	}

	var notices []Notice
	switch scope.Kind {
	case ScopeAll, "":
		scope = All
		notices = s.enqueueAll()

	case ScopeMonster:
		if _, ok := s.data.Monster(scope.ID); !ok {
			return nil, fmt.Errorf("%w: monster %d does not exist", ErrUnknownScope, scope.ID)
		}
		if !s.filters.Monster(scope.ID) {
			notices = append(notices, Notice{Message: noticeMonsterFiltered})
			break
		}
		s.queueMonster(scope.ID)

	case ScopeDungeon:
		dg, ok := s.data.Dungeon(scope.ID)
		if !ok {
			return nil, fmt.Errorf("%w: dungeon %d does not exist", ErrUnknownScope, scope.ID)
		}
		if !s.filters.Dungeon(dg.ID) {
			notices = append(notices, Notice{Message: noticeDungeonFiltered})
			break
		}
		for _, id := range dg.Monsters {
			s.queueMonster(id)
		}

	case ScopeSlayerTier:
		tier := s.slayerTier(scope.ID)
		if tier == nil {
			return nil, fmt.Errorf("%w: slayer tier %d does not exist", ErrUnknownScope, scope.ID)
		}
		if !s.queueSlayerTask(tier) {
			notices = append(notices, Notice{Message: noticeTierFiltered})
		}

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownScope, scope.Kind)
	}

	s.pendingScope = scope
	s.hooks().observer.QueueLength(len(s.queue))
	for _, n := range notices {
		s.log.Warn("Simulation notice", "scope", scope.String(), "message", n.Message)
	}
	return notices, nil
}

// enqueueAll queues combat areas, wandering monsters, accessible slayer
// areas, unfiltered dungeons and slayer tiers, in that order
func (s *Scheduler) enqueueAll() []Notice {
	var notices []Notice

	for _, area := range s.data.CombatAreas() {
		for _, id := range area.Monsters {
			if s.filters.Monster(id) {
				s.queueMonster(id)
			}
		}
	}

	for _, id := range s.data.WanderingMonsters() {
		if s.filters.Monster(id) {
			s.queueMonster(id)
		}
	}

	for _, area := range s.data.SlayerAreas() {
		if s.player.CheckRequirements(area.EntryRequirements) {
			for _, id := range area.Monsters {
				if s.filters.Monster(id) {
					s.queueMonster(id)
				}
			}
			continue
		}

		blocked := false
		for _, id := range area.Monsters {
			if s.filters.Monster(id) && !s.inQueue[id] {
				blocked = true
			}
			if !s.inQueue[id] {
				r := s.table.Monsters[id]
				r.SimSuccess = false
				r.Reason = ReasonCannotAccessArea
			}
		}
		if blocked {
			notices = append(notices, Notice{Message: fmt.Sprintf("Can't access %s", area.Name)})
		}
	}

	for _, dg := range s.data.Dungeons() {
		if !s.filters.Dungeon(dg.ID) {
			continue
		}
		for _, id := range dg.Monsters {
			s.queueMonster(id)
		}
	}

	for _, tier := range s.data.SlayerTiers() {
		s.queueSlayerTask(tier)
	}

	return notices
}

// queueSlayerTask recomputes the tier's membership and queues its monsters.
// Returns false when the tier is filtered.
func (s *Scheduler) queueSlayerTask(tier *gamedata.SlayerTier) bool {
	members := s.slayerTaskMonsters(tier)
	s.table.TierMembers[tier.ID] = members
	if !s.filters.SlayerTier(tier.ID) {
		return false
	}
	for _, id := range members {
		s.queueMonster(id)
	}
	return true
}

// slayerTaskMonsters returns the monsters a tier can assign to the current player
func (s *Scheduler) slayerTaskMonsters(tier *gamedata.SlayerTier) []int {
	lo, hi := tier.Bounds()
	var members []int
	for _, id := range s.data.MonsterIDs() {
		m, _ := s.data.Monster(id)
		if !m.CanSlayer {
			continue
		}
		level := gamedata.CombatLevel(m)
		if level < lo || level > hi {
			continue
		}
		if area, ok := s.data.MonsterArea(id); ok && !s.player.CheckRequirements(area.EntryRequirements) {
			continue
		}
		members = append(members, id)
	}
	return members
}

func (s *Scheduler) slayerTier(id int) *gamedata.SlayerTier {
	for _, tier := range s.data.SlayerTiers() {
		if tier.ID == id {
			return tier
		}
	}
	return nil
}

func (s *Scheduler) queueMonster(id int) {
	if s.inQueue[id] {
		return
	}
	s.inQueue[id] = true
	s.queue = append(s.queue, id)
}
