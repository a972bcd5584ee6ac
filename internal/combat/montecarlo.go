// Package combat resolves combat trials against a single monster and reports
// per-second outcomes.
package combat

import (
	"context"
	"fmt"
	"math"
	"math/rand"

	"github.com/lawnchairsociety/combatsim/internal/gamedata"
)

// Trial model constants
const (
	combatXPPerDamage    = 0.4
	hitpointsXPPerDamage = 0.133
	prayerXPPerPoint     = 2.0
	summoningXPPerCharge = 1.0
	respawnMs            = 3000.0
	defaultMaxActions    = 1000
)

// MonteCarlo runs independent fights against a monster and averages them.
// An instance is not safe for concurrent use; give each worker its own.
type MonteCarlo struct {
	data *gamedata.Data
	rng  *rand.Rand
}

// NewMonteCarlo creates an executor with its own random source.
func NewMonteCarlo(data *gamedata.Data, seed int64) *MonteCarlo {
	return &MonteCarlo{
		data: data,
		rng:  rand.New(rand.NewSource(seed)),
	}
}

// trialStats accumulates raw counts over every trial of a batch
type trialStats struct {
	kills        int
	deaths       int
	aborted      int
	timeMs       float64
	damageDealt  int
	hits         int
	attacksMade  int
	attacksTaken int
	ate          int
	highestHit   int
	lowestHP     int
}

// Simulate runs req.Options.Trials fights and returns the averaged outcomes.
// Cancellation is checked between trials; a cancelled batch returns the partial
// result with SimSuccess=false.
func (mc *MonteCarlo) Simulate(ctx context.Context, req Request) (Result, error) {
	monster, ok := mc.data.Monster(req.MonsterID)
	if !ok {
		return Result{}, fmt.Errorf("unknown monster %d", req.MonsterID)
	}
	if monster.Hitpoints <= 0 {
		return Result{}, fmt.Errorf("monster %q has no hitpoints", monster.Name)
	}
	player := &req.Player
	if player.AttackInterval <= 0 {
		return Result{}, fmt.Errorf("invalid player attack interval %d", player.AttackInterval)
	}
	opts := req.Options
	if opts.Trials <= 0 {
		return Result{}, fmt.Errorf("trials must be positive, got %d", opts.Trials)
	}
	if opts.MaxActions <= 0 {
		opts.MaxActions = defaultMaxActions
	}

	maxHP := player.MaxHitpoints()
	playerHP := maxHP
	stats := trialStats{lowestHP: maxHP}
	cancelled := false

	for i := 0; i < opts.Trials; i++ {
		if ctx.Err() != nil {
			cancelled = true
			break
		}
		if !mc.fight(monster, player, opts.MaxActions, &playerHP, &stats) {
			stats.aborted++
			if !opts.ForceFullSim {
				break
			}
		}
	}

	result := mc.summarize(player, &stats)
	if cancelled {
		result.SimSuccess = false
		result.Reason = ReasonCancelled
	}
	return result, nil
}

// fight runs one fight until the monster dies. Player hitpoints carry over
// between fights. Returns false when the action limit was hit first.
func (mc *MonteCarlo) fight(m *gamedata.Monster, p *Player, maxActions int, playerHP *int, s *trialStats) bool {
	maxHP := p.MaxHitpoints()
	monsterHP := m.Hitpoints
	interval := float64(p.AttackInterval)
	speed := math.Inf(1)
	if m.AttackSpeed > 0 {
		speed = float64(m.AttackSpeed)
	}
	playerHit := hitChance(p.Accuracy, m.Evasion)
	monsterHit := hitChance(m.Accuracy, p.Evasion)
	reduction := 1 - min(max(p.DamageReduction, 0), 100)/100

	t := 0.0
	nextPlayer := interval
	nextMonster := speed

	for actions := 0; ; actions++ {
		if actions >= maxActions {
			s.timeMs += t
			return false
		}

		if nextPlayer <= nextMonster {
			t = nextPlayer
			nextPlayer += interval
			s.attacksMade++
			if mc.rng.Float64() >= playerHit {
				continue
			}
			dmg := min(1+mc.rng.Intn(max(p.MaxHit, 1)), monsterHP)
			monsterHP -= dmg
			s.damageDealt += dmg
			s.hits++
			if monsterHP <= 0 {
				s.kills++
				s.timeMs += t + respawnMs
				return true
			}
			continue
		}

		t = nextMonster
		nextMonster += speed
		s.attacksTaken++
		if mc.rng.Float64() >= monsterHit {
			continue
		}
		dmg := int(math.Floor(float64(mc.rng.Intn(m.MaxHit+1)) * reduction))
		*playerHP -= dmg
		s.highestHit = max(s.highestHit, dmg)
		s.lowestHP = min(s.lowestHP, max(*playerHP, 0))

		if *playerHP <= 0 {
			// Death: respawn at full health against a fresh monster
			s.deaths++
			*playerHP = maxHP
			monsterHP = m.Hitpoints
			t += respawnMs
			nextPlayer = t + interval
			nextMonster = t + speed
			continue
		}
		if p.FoodHealing > 0 && float64(*playerHP) < p.AutoEatThreshold*float64(maxHP) {
			*playerHP = min(maxHP, *playerHP+p.FoodHealing)
			s.ate++
		}
	}
}

// summarize converts raw trial counts into per-second rates
func (mc *MonteCarlo) summarize(p *Player, s *trialStats) Result {
	result := Result{
		TooManyActions:     s.aborted,
		HighestDamageTaken: float64(s.highestHit),
		LowestHitpoints:    float64(s.lowestHP),
	}
	if s.kills == 0 || s.timeMs <= 0 {
		result.Reason = ReasonNoKills
		return result
	}

	seconds := s.timeMs / 1000
	perSecond := func(n float64) float64 { return n / seconds }
	damage := float64(s.damageDealt)

	result.SimSuccess = true
	result.KillTimeS = seconds / float64(s.kills)
	result.KillsPerSecond = perSecond(float64(s.kills))
	result.DeathRate = float64(s.deaths) / float64(s.kills+s.deaths)

	result.DmgPerSecond = perSecond(damage)
	result.XPPerSecond = perSecond(damage * combatXPPerDamage)
	result.HPXPPerSecond = perSecond(damage * hitpointsXPPerDamage)
	if s.hits > 0 {
		result.AvgHitDmg = damage / float64(s.hits)
		result.XPPerHit = result.AvgHitDmg * combatXPPerDamage
	}
	result.AttacksMadePerSecond = perSecond(float64(s.attacksMade))
	result.AttacksTakenPerSecond = perSecond(float64(s.attacksTaken))
	result.AtePerSecond = perSecond(float64(s.ate))
	result.HPPerSecond = perSecond(float64(s.ate * p.FoodHealing))
	result.GPFromDamagePerSecond = result.DmgPerSecond * p.GPPerDamage / 100

	if p.AttackType == AttackRanged {
		result.AmmoUsedPerSecond = result.AttacksMadePerSecond * (1 - p.AmmoPreservation/100)
	}
	if p.AttackType == AttackMagic {
		result.SpellCastsPerSecond = result.AttacksMadePerSecond
		mc.addRunes(&result, p.SpellRunes, result.SpellCastsPerSecond, p.RunePreservation)
	}
	if len(p.CurseRunes) > 0 {
		result.CurseCastsPerSecond = result.KillsPerSecond
		mc.addRunes(&result, p.CurseRunes, result.CurseCastsPerSecond, p.RunePreservation)
	}

	if p.Potion != nil {
		var chargesPerSecond float64
		switch p.Potion.Kind {
		case PotionRegen:
			chargesPerSecond = 0.1
		case PotionDamageReduction:
			chargesPerSecond = result.AttacksTakenPerSecond
		case PotionLuckyHerb:
			chargesPerSecond = result.KillsPerSecond
		default:
			chargesPerSecond = result.AttacksMadePerSecond
		}
		charges := max(p.Potion.Charges, 1)
		result.PotionsUsedPerSecond = chargesPerSecond * (1 - p.Potion.Preservation/100) / float64(charges)
	}

	if p.SummoningTablets {
		result.TabletsUsedPerSecond = result.AttacksMadePerSecond
		result.SummoningXPPerSecond = result.TabletsUsedPerSecond * summoningXPPerCharge
	}

	result.PPConsumedPerSecond = perSecond(float64(s.attacksMade)*p.PrayerPointsPerAttack +
		float64(s.attacksTaken)*p.PrayerPointsPerEnemyAttack)
	result.PrayerXPPerSecond = result.PPConsumedPerSecond * prayerXPPerPoint

	result.PetRolls = map[string][]PetRoll{
		"other": {{Speed: float64(p.AttackInterval), RollsPerSecond: result.AttacksMadePerSecond}},
	}
	if p.IsSlayerTask {
		result.PetRolls["Slayer"] = []PetRoll{{Speed: result.KillTimeS * 1000, RollsPerSecond: result.KillsPerSecond}}
	}

	return result
}

// addRunes adds rune usage for a spell cast castsPerSecond times
func (mc *MonteCarlo) addRunes(result *Result, costs []RuneCost, castsPerSecond, preservation float64) {
	for _, cost := range costs {
		used := cost.Qty * castsPerSecond * (1 - preservation/100)
		if item, ok := mc.data.Item(cost.ItemID); ok && item.IsCombinationRune() {
			result.CombinationRunesUsedPerSecond += used
		} else {
			result.RunesUsedPerSecond += used
		}
	}
}

// hitChance returns the chance an attack with the given accuracy lands
func hitChance(accuracy, evasion int) float64 {
	if evasion <= 0 {
		return 1
	}
	acc, eva := float64(accuracy), float64(evasion)
	if acc < eva {
		return 0.5 * acc / eva
	}
	return 1 - 0.5*eva/acc
}
