package arena

import (
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"tmgbattle.ai/internal/persistence/snapshot"
	"tmgbattle.ai/internal/protocol"
	"tmgbattle.ai/internal/sim/battle"
	"tmgbattle.ai/internal/sim/combat"
	"tmgbattle.ai/internal/sim/model"
	"tmgbattle.ai/internal/sim/reservation"
)

// ExportSnapshot must be called from the loop goroutine.
func (a *Arena) ExportSnapshot(nowCycle uint64) snapshot.SnapshotV1 {
	v := a.battle.View()
	snap := snapshot.SnapshotV1{
		Header:      snapshot.Header{Version: snapshot.Version, ArenaID: a.cfg.ID, Cycle: nowCycle},
		Seed:        a.cfg.Seed,
		CycleRateHz: a.cfg.CycleRateHz,
		SelfID:      string(a.cfg.Self),
		Battle: snapshot.BattleV1{
			State:         v.State.String(),
			CurrentTurn:   v.CurrentTurn,
			Winner:        string(v.Winner),
			Steps:         v.Steps,
			Weapons:       tableToV1(v.Armory.Weapons),
			Shields:       tableToV1(v.Armory.Shields),
			NextVoucherID: v.NextVoucherID,
			NextRequestID: v.NextRequestID,
		},
		Counters: snapshot.CountersV1{NextTimerSeq: a.nextTimerSeq, GamesPlayed: a.gamesPlayed},
	}
	for _, p := range v.Players {
		snap.Battle.Players = append(snap.Battle.Players, snapshot.PlayerV1{
			Owner:      string(p.Owner),
			PieceID:    string(p.PieceID),
			Energy:     p.Energy,
			Power:      p.Power,
			Attributes: slotsToV1(p.Attributes),
			ActiveSlot: p.ActiveSlot,
			Facing:     p.Facing.String(),
		})
	}
	for _, r := range v.Reservations {
		snap.Battle.Vouchers = append(snap.Battle.Vouchers, snapshot.VoucherV1{
			ID: r.ID, Amount: r.Amount, ReservedAt: r.ReservedAt, Duration: r.Duration,
		})
	}
	if p := v.Pending; p != nil {
		snap.Battle.Pending = &snapshot.PendingV1{
			RequestID:  p.RequestID,
			Caller:     string(p.Caller),
			PieceID:    string(p.PieceID),
			Attributes: slotsToV1(p.Attributes),
		}
	}
	for _, t := range a.timers {
		snap.Timers = append(snap.Timers, snapshot.TimerV1{
			Due:       t.due,
			Seq:       t.seq,
			Action:    t.delayed.Action,
			Delay:     t.delayed.Delay,
			Source:    t.delayed.Funding.Source.String(),
			VoucherID: t.delayed.Funding.VoucherID,
			Amount:    t.delayed.Funding.Amount,
		})
	}
	if a.suspended != nil {
		inv := invokeToV1(*a.suspended)
		snap.Suspended = &inv
	}
	for _, d := range a.deferred {
		snap.Deferred = append(snap.Deferred, invokeToV1(d))
	}
	return snap
}

// NewFromSnapshot restores an arena. Identity, seed, cycle rate and armory
// come from the snapshot; the rule constants come from cfg.Battle.
func NewFromSnapshot(cfg Config, snap snapshot.SnapshotV1, opts ...Option) (*Arena, error) {
	if snap.Header.Version != snapshot.Version {
		return nil, fmt.Errorf("unsupported snapshot version %d", snap.Header.Version)
	}
	cfg.ID = snap.Header.ArenaID
	cfg.Seed = snap.Seed
	if snap.CycleRateHz > 0 {
		cfg.CycleRateHz = snap.CycleRateHz
	}
	cfg.Self = model.ActorID(snap.SelfID)
	cfg.applyDefaults()

	view, err := viewFromV1(snap.Battle)
	if err != nil {
		return nil, err
	}
	b, err := battle.Restore(cfg.Battle, view)
	if err != nil {
		return nil, err
	}
	a := newArena(cfg, b, opts)

	for _, t := range snap.Timers {
		var src reservation.Source
		if err := src.UnmarshalText([]byte(t.Source)); err != nil {
			return nil, fmt.Errorf("timer %d: %w", t.Seq, err)
		}
		a.timers = append(a.timers, timer{
			due: t.Due,
			seq: t.Seq,
			delayed: reservation.Delayed{
				Action:  t.Action,
				Delay:   t.Delay,
				Funding: reservation.Funding{Source: src, VoucherID: t.VoucherID, Amount: t.Amount},
			},
		})
	}
	sortTimers(a.timers)
	if snap.Suspended != nil {
		env, err := invokeFromV1(*snap.Suspended)
		if err != nil {
			return nil, err
		}
		a.suspended = &env
	}
	if a.suspended == nil && b.Suspended() {
		p, _ := b.Pending()
		a.suspended = &Envelope{Caller: p.Caller, Act: protocol.Register(p.PieceID, p.Attributes)}
	}
	for _, d := range snap.Deferred {
		env, err := invokeFromV1(d)
		if err != nil {
			return nil, err
		}
		a.deferred = append(a.deferred, env)
	}
	a.nextTimerSeq = snap.Counters.NextTimerSeq
	a.gamesPlayed = snap.Counters.GamesPlayed
	a.cycle.Store(snap.Header.Cycle + 1)
	a.publish(0)
	// The owner query died with the previous process; ask again.
	if p, ok := b.Pending(); ok && a.pieces != nil {
		a.log.Info("re-sending owner query for restored registration",
			zap.Uint64("request_id", p.RequestID),
			zap.String("piece_id", string(p.PieceID)))
		a.pieces.RequestOwner(battle.OwnerQuery{RequestID: p.RequestID, PieceID: p.PieceID})
	}
	return a, nil
}

func viewFromV1(s snapshot.BattleV1) (battle.View, error) {
	var v battle.View
	if err := v.State.UnmarshalText([]byte(s.State)); err != nil {
		return v, err
	}
	v.CurrentTurn = s.CurrentTurn
	v.Winner = model.PieceID(s.Winner)
	v.Steps = s.Steps
	if s.Weapons != nil || s.Shields != nil {
		v.Armory = combat.Armory{Weapons: tableFromV1(s.Weapons), Shields: tableFromV1(s.Shields)}
	}
	for _, p := range s.Players {
		var facing model.Direction
		if err := facing.UnmarshalText([]byte(p.Facing)); err != nil {
			return v, fmt.Errorf("player %s: %w", p.PieceID, err)
		}
		v.Players = append(v.Players, model.Player{
			Owner:      model.ActorID(p.Owner),
			PieceID:    model.PieceID(p.PieceID),
			Energy:     p.Energy,
			Power:      p.Power,
			Attributes: slotsFromV1(p.Attributes),
			ActiveSlot: p.ActiveSlot,
			Facing:     facing,
		})
	}
	for _, r := range s.Vouchers {
		v.Reservations = append(v.Reservations, reservation.Voucher{
			ID: r.ID, Amount: r.Amount, ReservedAt: r.ReservedAt, Duration: r.Duration,
		})
	}
	v.NextVoucherID = s.NextVoucherID
	v.NextRequestID = s.NextRequestID
	if p := s.Pending; p != nil {
		v.Pending = &battle.PendingRegistration{
			RequestID:  p.RequestID,
			Caller:     model.ActorID(p.Caller),
			PieceID:    model.PieceID(p.PieceID),
			Attributes: slotsFromV1(p.Attributes),
		}
	}
	return v, nil
}

func slotsToV1(attrs model.Attributes) snapshot.SlotsV1 {
	var out snapshot.SlotsV1
	for i, p := range attrs {
		if p != nil {
			out.IDs[i] = uint32(*p)
			out.Set[i] = true
		}
	}
	return out
}

func slotsFromV1(s snapshot.SlotsV1) model.Attributes {
	var out model.Attributes
	for i := range out {
		if s.Set[i] {
			id := model.AttributeID(s.IDs[i])
			out[i] = &id
		}
	}
	return out
}

func tableToV1(m map[model.AttributeID]uint16) map[uint32]uint16 {
	out := make(map[uint32]uint16, len(m))
	for k, v := range m {
		out[uint32(k)] = v
	}
	return out
}

func tableFromV1(m map[uint32]uint16) map[model.AttributeID]uint16 {
	out := make(map[model.AttributeID]uint16, len(m))
	for k, v := range m {
		out[model.AttributeID(k)] = v
	}
	return out
}

func invokeToV1(env Envelope) snapshot.InvokeV1 {
	b, _ := json.Marshal(env.Act)
	return snapshot.InvokeV1{Caller: string(env.Caller), Ref: env.Ref, Act: b}
}

func invokeFromV1(s snapshot.InvokeV1) (Envelope, error) {
	env := Envelope{Caller: model.ActorID(s.Caller), Ref: s.Ref}
	if err := json.Unmarshal(s.Act, &env.Act); err != nil {
		return env, fmt.Errorf("snapshot invocation: %w", err)
	}
	return env, nil
}
