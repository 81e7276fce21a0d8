package battle

import (
	"fmt"

	"tmgbattle.ai/internal/protocol"
	"tmgbattle.ai/internal/sim/model"
)

// register is the pre-suspend phase: it records the request and asks the host
// to resolve the piece owner. No player exists until Resume.
func (b *Battle) register(env Env, act protocol.Action) (Outcome, error) {
	if b.state != model.StateRegistration || len(b.players) >= 2 {
		return Outcome{}, b.reject(ErrInvalidState, act.Kind, "")
	}
	if act.PieceID == "" {
		return Outcome{}, b.reject(ErrBadRequest, act.Kind, "piece_id required")
	}
	b.nextRequestID++
	b.pending = &PendingRegistration{
		RequestID:  b.nextRequestID,
		Caller:     env.Caller,
		PieceID:    act.PieceID,
		Attributes: act.AttributesOrEmpty(),
	}
	return Outcome{Query: &OwnerQuery{RequestID: b.nextRequestID, PieceID: act.PieceID}}, nil
}

// Resume is the post-resume phase of REGISTER. A reply that is not an owner
// answer drops the registration and fails it with ErrDecode.
func (b *Battle) Resume(env Env, reply OwnerReply) (Outcome, error) {
	if !b.ready() {
		return Outcome{}, ErrNotInitialized
	}
	p := b.pending
	if p == nil || p.RequestID != reply.RequestID {
		return Outcome{}, fmt.Errorf("%w: request %d", ErrUnexpectedReply, reply.RequestID)
	}
	failed := Outcome{ReplyTo: p.Caller}
	if reply.Kind != ReplyOwner || reply.Owner == "" {
		b.pending = nil
		return failed, b.reject(ErrDecode, protocol.ActRegister, fmt.Sprintf("reply kind %q", reply.Kind))
	}
	if b.state != model.StateRegistration || len(b.players) >= 2 {
		b.pending = nil
		return failed, b.reject(ErrInvalidState, protocol.ActRegister, "")
	}

	cfg := b.cfg
	power := cfg.MaxPower - env.Rand.Bounded(cfg.MinPower, cfg.MaxPower)
	energy := cfg.MaxEnergy - env.Rand.Bounded(cfg.MinEnergy, cfg.MaxEnergy)
	facing := model.Right
	if env.Rand.Coinflip() == 0 {
		facing = model.Left
	}

	b.players = append(b.players, model.Player{
		Owner:      reply.Owner,
		PieceID:    p.PieceID,
		Energy:     energy,
		Power:      power,
		Attributes: p.Attributes.Clone(),
		ActiveSlot: model.FirstSlot,
		Facing:     facing,
	})
	if len(b.players) == 2 {
		b.currentTurn = env.Rand.Coinflip()
		b.state = model.StateMoves
	}
	b.pending = nil

	var out Outcome
	out.reply(p.Caller, protocol.Event{Kind: protocol.EvRegistered, PieceID: p.PieceID})
	return out, nil
}
