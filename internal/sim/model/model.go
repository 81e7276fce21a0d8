package model

import "fmt"

type ActorID string

type PieceID string

// AttributeID identifies an equippable trait. Zero means "no attribute".
type AttributeID uint32

type State uint8

const (
	StateRegistration State = iota
	StateMoves
	StateWaiting
	StateGameIsOver
)

var stateNames = [...]string{
	StateRegistration: "REGISTRATION",
	StateMoves:        "MOVES",
	StateWaiting:      "WAITING",
	StateGameIsOver:   "GAME_IS_OVER",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", uint8(s))
}

func (s State) MarshalText() ([]byte, error) {
	if int(s) >= len(stateNames) {
		return nil, fmt.Errorf("unknown state %d", uint8(s))
	}
	return []byte(stateNames[s]), nil
}

func (s *State) UnmarshalText(b []byte) error {
	for i, name := range stateNames {
		if name == string(b) {
			*s = State(i)
			return nil
		}
	}
	return fmt.Errorf("unknown state %q", string(b))
}

type Direction uint8

const (
	Right Direction = iota
	Left
)

func (d Direction) String() string {
	switch d {
	case Right:
		return "RIGHT"
	case Left:
		return "LEFT"
	default:
		return fmt.Sprintf("Direction(%d)", uint8(d))
	}
}

func (d Direction) Valid() bool { return d == Right || d == Left }

func (d Direction) MarshalText() ([]byte, error) {
	if !d.Valid() {
		return nil, fmt.Errorf("unknown direction %d", uint8(d))
	}
	return []byte(d.String()), nil
}

func (d *Direction) UnmarshalText(b []byte) error {
	switch string(b) {
	case "RIGHT":
		*d = Right
	case "LEFT":
		*d = Left
	default:
		return fmt.Errorf("unknown direction %q", string(b))
	}
	return nil
}

// Attributes holds one optional attribute per round slot (1..3).
type Attributes [3]*AttributeID

// SlotsOf builds Attributes from up to three ids; a zero id leaves the slot unset.
func SlotsOf(ids ...AttributeID) Attributes {
	var a Attributes
	for i, id := range ids {
		if i >= len(a) {
			break
		}
		if id == 0 {
			continue
		}
		v := id
		a[i] = &v
	}
	return a
}

// At returns the attribute equipped at slot (1-based), or 0.
func (a Attributes) At(slot uint8) AttributeID {
	if slot < 1 || int(slot) > len(a) {
		return 0
	}
	if p := a[slot-1]; p != nil {
		return *p
	}
	return 0
}

func (a Attributes) Clone() Attributes {
	var out Attributes
	for i, p := range a {
		if p != nil {
			v := *p
			out[i] = &v
		}
	}
	return out
}

const (
	FirstSlot uint8 = 1
	LastSlot  uint8 = 3
)

type Player struct {
	Owner      ActorID    `json:"owner"`
	PieceID    PieceID    `json:"piece_id"`
	Energy     uint16     `json:"energy"`
	Power      uint16     `json:"power"`
	Attributes Attributes `json:"attributes"`
	ActiveSlot uint8      `json:"active_slot"`
	Facing     Direction  `json:"facing"`
}

func (p Player) ActiveAttribute() AttributeID { return p.Attributes.At(p.ActiveSlot) }

// AdvanceSlot moves to the next round slot, wrapping 3 -> 1.
func (p *Player) AdvanceSlot() {
	if p.ActiveSlot >= LastSlot || p.ActiveSlot < FirstSlot {
		p.ActiveSlot = FirstSlot
		return
	}
	p.ActiveSlot++
}

func (p Player) Clone() Player {
	out := p
	out.Attributes = p.Attributes.Clone()
	return out
}
