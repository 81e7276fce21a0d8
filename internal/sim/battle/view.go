package battle

import (
	"fmt"

	"tmgbattle.ai/internal/sim/combat"
	"tmgbattle.ai/internal/sim/model"
	"tmgbattle.ai/internal/sim/reservation"
)

// View is a deep copy of the whole aggregate. It is both the read-only state
// exposed to observers and the unit persisted by snapshots.
type View struct {
	Players       []model.Player        `json:"players"`
	State         model.State           `json:"state"`
	CurrentTurn   uint8                 `json:"current_turn"`
	Winner        model.PieceID         `json:"winner,omitempty"`
	Steps         uint8                 `json:"steps"`
	Armory        combat.Armory         `json:"armory"`
	Reservations  []reservation.Voucher `json:"reservations"`
	NextVoucherID uint64                `json:"next_voucher_id"`
	Pending       *PendingRegistration  `json:"pending,omitempty"`
	NextRequestID uint64                `json:"next_request_id"`
}

func (b *Battle) View() View {
	v := View{
		Players:       make([]model.Player, 0, len(b.players)),
		State:         b.state,
		CurrentTurn:   b.currentTurn,
		Winner:        b.winner,
		Steps:         b.steps,
		Armory:        b.armory.Clone(),
		Reservations:  b.pool.Vouchers(),
		NextVoucherID: b.pool.NextID(),
		NextRequestID: b.nextRequestID,
	}
	for _, p := range b.players {
		v.Players = append(v.Players, p.Clone())
	}
	if p, ok := b.Pending(); ok {
		v.Pending = &p
	}
	return v
}

// Restore rebuilds a battle from a View, checking the aggregate invariants.
func Restore(cfg Config, v View) (*Battle, error) {
	b, err := New(cfg)
	if err != nil {
		return nil, err
	}
	if len(v.Players) > 2 {
		return nil, fmt.Errorf("restore: %d players", len(v.Players))
	}
	switch v.State {
	case model.StateMoves, model.StateWaiting:
		if len(v.Players) != 2 {
			return nil, fmt.Errorf("restore: %s with %d players", v.State, len(v.Players))
		}
	case model.StateRegistration:
		if len(v.Players) == 2 {
			return nil, fmt.Errorf("restore: registration with 2 players")
		}
	case model.StateGameIsOver:
		if len(v.Players) != 0 {
			return nil, fmt.Errorf("restore: finished game still holds players")
		}
	default:
		return nil, fmt.Errorf("restore: unknown state %d", v.State)
	}
	if v.CurrentTurn > 1 {
		return nil, fmt.Errorf("restore: current turn %d", v.CurrentTurn)
	}
	if v.Steps > cfg.RoundStepLimit {
		return nil, fmt.Errorf("restore: steps %d over limit %d", v.Steps, cfg.RoundStepLimit)
	}
	if v.Pending != nil && v.State != model.StateRegistration {
		return nil, fmt.Errorf("restore: pending registration in %s", v.State)
	}

	for _, p := range v.Players {
		b.players = append(b.players, p.Clone())
	}
	b.state = v.State
	b.currentTurn = v.CurrentTurn
	b.winner = v.Winner
	b.steps = v.Steps
	if v.Armory.Weapons != nil {
		b.armory = v.Armory.Clone()
	}
	b.pool.Restore(v.Reservations, v.NextVoucherID)
	if v.Pending != nil {
		p := *v.Pending
		p.Attributes = p.Attributes.Clone()
		b.pending = &p
	}
	b.nextRequestID = v.NextRequestID
	return b, nil
}
