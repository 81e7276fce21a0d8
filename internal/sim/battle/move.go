package battle

import (
	"errors"
	"fmt"

	"tmgbattle.ai/internal/protocol"
	"tmgbattle.ai/internal/sim/combat"
	"tmgbattle.ai/internal/sim/model"
	"tmgbattle.ai/internal/sim/reservation"
)

func (b *Battle) move(env Env, act protocol.Action) (Outcome, error) {
	if b.state != model.StateMoves {
		return Outcome{}, b.reject(ErrInvalidState, act.Kind, "")
	}
	if len(b.players) != 2 || b.currentTurn > 1 {
		return Outcome{}, fmt.Errorf("battle: moves with %d players, turn %d", len(b.players), b.currentTurn)
	}
	turn := b.currentTurn
	other := 1 - turn
	if b.players[turn].Owner != env.Caller {
		return Outcome{}, b.reject(ErrUnauthorized, act.Kind, "not your turn")
	}
	if act.Direction == nil || !act.Direction.Valid() {
		return Outcome{}, b.reject(ErrBadRequest, act.Kind, "direction required")
	}

	mover := b.players[turn].Clone()
	defender := b.players[other].Clone()

	// The move consumes a slot before the strike; the defender keeps its slot.
	mover.Facing = *act.Direction
	mover.AdvanceSlot()
	strike := b.armory.Resolve(mover, defender)
	strike.Apply(&defender)

	var out Outcome
	if strike.Outcome == combat.Dodged {
		out.notify(mover.Owner, protocol.EvOpponentDodgedTheAttack)
	}

	if defender.Energy == 0 {
		b.players = nil
		b.state = model.StateGameIsOver
		b.winner = mover.PieceID
		b.steps = 0
		b.currentTurn = 0
		out.notify(defender.Owner, protocol.EvGameIsOver)
		out.reply(env.Caller, protocol.Event{Kind: protocol.EvGameIsOver})
		return out, nil
	}

	steps := b.steps + 1
	if steps <= b.cfg.RoundStepLimit {
		b.players[turn] = mover
		b.players[other] = defender
		b.steps = steps
		b.currentTurn = other
		out.reply(env.Caller, protocol.Event{Kind: protocol.EvMoveMade})
		return out, nil
	}

	// Round over: fund and stage the wake-up before committing anything.
	if env.Scheduler == nil {
		return Outcome{}, errors.New("battle: no scheduler for round wake-up")
	}
	pool := b.pool.Clone()
	funding := pool.Fund(env.Cycle, b.cfg.UpdateDelay, b.cfg.AdHocFunding)
	err := env.Scheduler.Schedule(reservation.Delayed{
		Action:  string(protocol.ActUpdateInfo),
		Delay:   b.cfg.UpdateDelay,
		Funding: funding,
	})
	if err != nil {
		return Outcome{}, fmt.Errorf("battle: schedule wake-up: %w", err)
	}

	mover.ActiveSlot = model.FirstSlot
	defender.ActiveSlot = model.FirstSlot
	b.players[turn] = mover
	b.players[other] = defender
	b.pool = pool
	b.steps = 0
	b.state = model.StateWaiting
	out.notify(defender.Owner, protocol.EvGoToWaitingState)
	out.reply(env.Caller, protocol.Event{Kind: protocol.EvGoToWaitingState})
	return out, nil
}
