package combat

import (
	"math"

	"tmgbattle.ai/internal/sim/model"
)

// Armory maps attribute ids to weapon multipliers and flat shield reductions.
type Armory struct {
	Weapons map[model.AttributeID]uint16 `json:"weapons"`
	Shields map[model.AttributeID]uint16 `json:"shields"`
}

// Default attribute ids and values.
const (
	SwordID       model.AttributeID = 1
	WoodenSwordID model.AttributeID = 2
	ShotgunID     model.AttributeID = 3
	RPGID         model.AttributeID = 4
	ShieldID      model.AttributeID = 5

	SwordPower       uint16 = 2
	WoodenSwordPower uint16 = 1
	ShotgunPower     uint16 = 6
	RPGPower         uint16 = 10
	ShieldProtection uint16 = 3_500
)

func DefaultArmory() Armory {
	return Armory{
		Weapons: map[model.AttributeID]uint16{
			SwordID:       SwordPower,
			WoodenSwordID: WoodenSwordPower,
			ShotgunID:     ShotgunPower,
			RPGID:         RPGPower,
		},
		Shields: map[model.AttributeID]uint16{
			ShieldID: ShieldProtection,
		},
	}
}

func (a Armory) Clone() Armory {
	out := Armory{
		Weapons: make(map[model.AttributeID]uint16, len(a.Weapons)),
		Shields: make(map[model.AttributeID]uint16, len(a.Shields)),
	}
	for k, v := range a.Weapons {
		out.Weapons[k] = v
	}
	for k, v := range a.Shields {
		out.Shields[k] = v
	}
	return out
}

func (a Armory) IsShield(id model.AttributeID) bool {
	_, ok := a.Shields[id]
	return ok
}

type Outcome uint8

const (
	Hit Outcome = iota
	// Dodged: the sides differ, the attacker's owner is told the opponent dodged.
	Dodged
	// Suppressed: the defender holds a registered shield this step.
	Suppressed
)

func (o Outcome) String() string {
	switch o {
	case Hit:
		return "HIT"
	case Dodged:
		return "DODGED"
	case Suppressed:
		return "SUPPRESSED"
	default:
		return "UNKNOWN"
	}
}

// Strike is the result of one attack step.
type Strike struct {
	Outcome Outcome
	// Attack is the computed value before facing/suppression are considered.
	Attack uint16
	// Damage actually applied to the defender (0 unless Outcome == Hit).
	Damage uint16
}

// Attack computes attacker power times its active weapon multiplier, minus the
// defender's active shield reduction, saturating at both ends.
func (a Armory) Attack(attacker, defender model.Player) uint16 {
	total := uint32(attacker.Power)
	if mul, ok := a.Weapons[attacker.ActiveAttribute()]; ok {
		total *= uint32(mul)
	}
	if total > math.MaxUint16 {
		total = math.MaxUint16
	}
	attack := uint16(total)
	if prot, ok := a.Shields[defender.ActiveAttribute()]; ok {
		attack = saturatingSub(attack, prot)
	}
	return attack
}

// Resolve decides one attack step. It does not mutate either player.
func (a Armory) Resolve(attacker, defender model.Player) Strike {
	s := Strike{Attack: a.Attack(attacker, defender)}
	switch {
	case attacker.Facing != defender.Facing:
		s.Outcome = Dodged
	case a.IsShield(defender.ActiveAttribute()):
		s.Outcome = Suppressed
	default:
		s.Outcome = Hit
		s.Damage = s.Attack
	}
	return s
}

// Apply subtracts the strike's damage from the defender, never below zero.
func (s Strike) Apply(defender *model.Player) {
	defender.Energy = saturatingSub(defender.Energy, s.Damage)
}

func saturatingSub(a, b uint16) uint16 {
	if b >= a {
		return 0
	}
	return a - b
}
