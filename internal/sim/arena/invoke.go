package arena

import (
	"encoding/json"
	"errors"

	"go.uber.org/zap"

	"tmgbattle.ai/internal/protocol"
	"tmgbattle.ai/internal/sim/battle"
	"tmgbattle.ai/internal/sim/rng"
)

// handle runs env now, or defers it while a registration is suspended.
func (a *Arena) handle(now uint64, seq *uint64, env Envelope) {
	if a.battle.Suspended() {
		a.deferred = append(a.deferred, env)
		return
	}
	a.invoke(now, seq, env)
}

func (a *Arena) env(now uint64, seq *uint64, inv Envelope, sched *stagedScheduler) battle.Env {
	*seq++
	a.entropy.Begin(now, *seq)
	e := battle.Env{
		Caller: inv.Caller,
		Self:   a.cfg.Self,
		Cycle:  now,
		Rand:   rng.New(a.entropy),
	}
	if sched != nil {
		e.Scheduler = sched
	}
	return e
}

func (a *Arena) invoke(now uint64, seq *uint64, env Envelope) {
	sched := &stagedScheduler{}
	out, err := a.battle.Dispatch(a.env(now, seq, env, sched), env.Act)
	a.stepInvocations++
	if err != nil {
		a.fail(now, env, err)
		return
	}
	a.commitTimers(now, sched.staged)

	if out.Query != nil {
		held := env
		a.suspended = &held
		a.audit(now, env, "SUSPENDED", nil)
		if a.pieces != nil {
			a.pieces.RequestOwner(*out.Query)
		}
		return
	}
	a.deliver(now, env, out)
}

// resume completes the suspended registration, then drains deferred actions.
func (a *Arena) resume(now uint64, seq *uint64, r battle.OwnerReply) {
	if a.suspended == nil || !a.battle.Suspended() {
		a.log.Warn("owner reply with nothing suspended", zap.Uint64("request_id", r.RequestID))
		return
	}
	env := *a.suspended
	out, err := a.battle.Resume(a.env(now, seq, env, nil), r)
	if errors.Is(err, battle.ErrUnexpectedReply) {
		a.log.Warn("stale owner reply", zap.Uint64("request_id", r.RequestID), zap.Error(err))
		return
	}
	a.suspended = nil
	a.stepInvocations++
	if err != nil {
		a.fail(now, env, err)
	} else {
		a.deliver(now, env, out)
	}
	a.drainDeferred(now, seq)
}

func (a *Arena) drainDeferred(now uint64, seq *uint64) {
	for len(a.deferred) > 0 && !a.battle.Suspended() {
		env := a.deferred[0]
		a.deferred = a.deferred[1:]
		a.invoke(now, seq, env)
	}
	if len(a.deferred) == 0 {
		a.deferred = nil
	}
}

func (a *Arena) deliver(now uint64, env Envelope, out battle.Outcome) {
	for _, n := range out.Notifications {
		if cl := a.clients[n.To]; cl != nil {
			a.send(cl, protocol.NewEventMsg("", now, n.Event))
		}
	}
	result := "NO_REPLY"
	if out.Reply != nil {
		result = string(out.Reply.Kind)
		a.reply(now, env, Result{Cycle: now, Event: out.Reply})
		if out.Reply.Kind == protocol.EvGameIsOver {
			a.gamesPlayed++
		}
	}
	a.audit(now, env, result, nil)
}

func (a *Arena) fail(now uint64, env Envelope, err error) {
	if battle.IsRejection(err) {
		a.stepRejections++
		a.log.Debug("action rejected",
			zap.String("caller", string(env.Caller)),
			zap.String("action", string(env.Act.Kind)),
			zap.Error(err))
	} else {
		a.log.Error("invocation failed",
			zap.String("caller", string(env.Caller)),
			zap.String("action", string(env.Act.Kind)),
			zap.Error(err))
	}
	a.reply(now, env, Result{Cycle: now, Err: err})
	a.audit(now, env, battle.Code(err), err)
}

func (a *Arena) reply(now uint64, env Envelope, res Result) {
	if env.Resp != nil {
		select {
		case env.Resp <- res:
		default:
		}
		return
	}
	cl := a.clients[env.Caller]
	if cl == nil {
		return
	}
	if res.Err != nil {
		a.send(cl, protocol.NewErrorMsg(env.Ref, battle.Code(res.Err), res.Err.Error()))
		return
	}
	a.send(cl, protocol.NewEventMsg(env.Ref, now, *res.Event))
}

func (a *Arena) send(cl *clientState, msg any) {
	b, err := json.Marshal(msg)
	if err != nil {
		a.log.Error("marshal outbound", zap.Error(err))
		return
	}
	select {
	case cl.Out <- b:
	default:
		a.log.Warn("client queue full, dropping message", zap.String("session_id", cl.SessionID))
	}
}

func (a *Arena) audit(now uint64, env Envelope, result string, err error) {
	if a.auditLogger == nil {
		return
	}
	e := AuditEntry{
		Cycle:  now,
		Caller: env.Caller,
		Action: string(env.Act.Kind),
		Result: result,
	}
	if err != nil {
		e.Error = err.Error()
	}
	if result == string(protocol.EvGameIsOver) {
		e.Winner = a.battle.Winner()
	}
	if werr := a.auditLogger.WriteAudit(e); werr != nil {
		a.log.Warn("audit write failed", zap.Error(werr))
	}
}
