// Package battle is the turn-based battle aggregate: registration, moves,
// rounds and resets. It performs no I/O; the host drives it through Dispatch
// and Resume and delivers whatever Outcome they return.
package battle

import (
	"fmt"

	"tmgbattle.ai/internal/protocol"
	"tmgbattle.ai/internal/sim/combat"
	"tmgbattle.ai/internal/sim/model"
	"tmgbattle.ai/internal/sim/reservation"
)

type Battle struct {
	cfg Config

	players     []model.Player
	state       model.State
	currentTurn uint8
	winner      model.PieceID
	steps       uint8

	armory combat.Armory
	pool   *reservation.Pool

	pending       *PendingRegistration
	nextRequestID uint64
}

// New returns an empty battle in Registration. A *Battle obtained any other way
// is rejected with ErrNotInitialized.
func New(cfg Config) (*Battle, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("battle config: %w", err)
	}
	return &Battle{
		cfg:    cfg,
		state:  model.StateRegistration,
		armory: cfg.Armory.Clone(),
		pool:   reservation.NewPool(),
	}, nil
}

func (b *Battle) ready() bool { return b != nil && b.pool != nil && b.armory.Weapons != nil }

func (b *Battle) State() model.State { return b.state }

func (b *Battle) Config() Config { return b.cfg }

// Winner is the piece that won the last finished game, kept across resets.
func (b *Battle) Winner() model.PieceID { return b.winner }

// Pending returns the registration waiting on an owner reply, if any.
func (b *Battle) Pending() (PendingRegistration, bool) {
	if b == nil || b.pending == nil {
		return PendingRegistration{}, false
	}
	p := *b.pending
	p.Attributes = p.Attributes.Clone()
	return p, true
}

func (b *Battle) Suspended() bool { return b != nil && b.pending != nil }

// Dispatch runs one inbound action to completion, or up to its suspension
// point for REGISTER. On error nothing was committed.
func (b *Battle) Dispatch(env Env, act protocol.Action) (Outcome, error) {
	if !b.ready() {
		return Outcome{}, ErrNotInitialized
	}
	if b.pending != nil {
		return Outcome{}, ErrSuspended
	}
	switch act.Kind {
	case protocol.ActRegister:
		return b.register(env, act)
	case protocol.ActMove:
		return b.move(env, act)
	case protocol.ActUpdateInfo:
		return b.updateInfo(env)
	case protocol.ActSendNewAttributes:
		return b.sendNewAttributes(env, act)
	case protocol.ActStartNewGame:
		return b.startNewGame(env)
	case protocol.ActReserveGas:
		return b.reserveGas(env, act)
	default:
		return Outcome{}, b.reject(ErrBadRequest, act.Kind, "unknown action")
	}
}

func (b *Battle) updateInfo(env Env) (Outcome, error) {
	if b.state != model.StateWaiting {
		return Outcome{}, b.reject(ErrInvalidState, protocol.ActUpdateInfo, "")
	}
	if env.Caller != env.Self {
		return Outcome{}, b.reject(ErrUnauthorized, protocol.ActUpdateInfo, "only the arena may wake a round")
	}
	if len(b.players) != 2 {
		return Outcome{}, fmt.Errorf("battle: waiting with %d players", len(b.players))
	}
	b.state = model.StateMoves
	b.currentTurn = env.Rand.Coinflip()

	var out Outcome
	out.notify(b.players[0].Owner, protocol.EvInfoUpdated)
	out.notify(b.players[1].Owner, protocol.EvInfoUpdated)
	return out, nil
}

func (b *Battle) sendNewAttributes(env Env, act protocol.Action) (Outcome, error) {
	if b.state != model.StateWaiting {
		return Outcome{}, b.reject(ErrInvalidState, act.Kind, "")
	}
	idx := -1
	for i, p := range b.players {
		if p.Owner == env.Caller {
			idx = i
			break
		}
	}
	if idx < 0 {
		return Outcome{}, b.reject(ErrUnauthorized, act.Kind, "caller owns no player")
	}
	if act.Attributes == nil {
		return Outcome{}, b.reject(ErrBadRequest, act.Kind, "attributes required")
	}
	b.players[idx].Attributes = act.AttributesOrEmpty()

	var out Outcome
	out.reply(env.Caller, protocol.Event{Kind: protocol.EvAttributesUpdated})
	return out, nil
}

func (b *Battle) startNewGame(env Env) (Outcome, error) {
	if b.state != model.StateGameIsOver {
		return Outcome{}, b.reject(ErrInvalidState, protocol.ActStartNewGame, "")
	}
	b.state = model.StateRegistration
	b.players = nil
	b.steps = 0
	b.currentTurn = 0

	var out Outcome
	out.reply(env.Caller, protocol.Event{Kind: protocol.EvContractReinstated})
	return out, nil
}

func (b *Battle) reserveGas(env Env, act protocol.Action) (Outcome, error) {
	if _, err := b.pool.Reserve(act.Amount, act.Duration, env.Cycle); err != nil {
		return Outcome{}, b.reject(ErrBadRequest, act.Kind, err.Error())
	}
	var out Outcome
	out.reply(env.Caller, protocol.Event{Kind: protocol.EvGasReserved})
	return out, nil
}
