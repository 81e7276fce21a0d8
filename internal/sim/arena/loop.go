package arena

import (
	"context"
	"time"

	"go.uber.org/zap"

	"tmgbattle.ai/internal/sim/battle"
)

func (a *Arena) Run(ctx context.Context) error {
	interval := time.Second / time.Duration(a.cfg.CycleRateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var pendingActions []Envelope
	var pendingReplies []battle.OwnerReply
	var pendingAdmin []adminSnapshotReq

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-a.stop:
			return nil
		case req := <-a.attach:
			a.handleAttach(req)
		case req := <-a.leave:
			a.handleLeave(req)
		case req := <-a.admin:
			pendingAdmin = append(pendingAdmin, req)
		case r := <-a.replies:
			pendingReplies = append(pendingReplies, r)
		case env := <-a.inbox:
			pendingActions = append(pendingActions, env)
		case <-ticker.C:
			a.step(pendingActions, pendingReplies)
			a.handleAdminSnapshotRequests(pendingAdmin)
			pendingActions = pendingActions[:0]
			pendingReplies = pendingReplies[:0]
			pendingAdmin = pendingAdmin[:0]
		}
	}
}

func (a *Arena) Stop() { close(a.stop) }

// StepOnce advances the arena by one cycle with the same ordering as Run.
// It is meant for replays and tests; it must not race a running loop.
func (a *Arena) StepOnce(actions []Envelope, replies []battle.OwnerReply) (cycle uint64, digest string) {
	cycle = a.cycle.Load()
	digest = a.step(actions, replies)
	return cycle, digest
}

// step processes one cycle: due wake-ups, then owner replies, then inbound
// actions in receive order.
func (a *Arena) step(actions []Envelope, replies []battle.OwnerReply) string {
	start := time.Now()
	now := a.cycle.Load()
	seq := uint64(0)
	a.stepInvocations, a.stepRejections = 0, 0

	for _, t := range a.popDueTimers(now) {
		a.handle(now, &seq, Envelope{Caller: a.cfg.Self, Act: t.action()})
	}

	recordedReplies := make([]battle.OwnerReply, 0, len(replies))
	for _, r := range replies {
		recordedReplies = append(recordedReplies, r)
		a.resume(now, &seq, r)
	}

	recorded := make([]RecordedAction, 0, len(actions))
	for _, env := range actions {
		recorded = append(recorded, RecordedAction{Caller: env.Caller, Ref: env.Ref, Act: env.Act})
		if env.Caller == a.cfg.Self {
			// Only due timers act as the arena itself.
			a.fail(now, env, &battle.RuleError{
				Kind:   battle.ErrUnauthorized,
				Action: env.Act.Kind,
				State:  a.battle.State(),
				Detail: "caller id is reserved",
			})
			continue
		}
		a.handle(now, &seq, env)
	}

	digest := a.stateDigest(now)
	if a.cycleLogger != nil && (len(recorded) > 0 || len(recordedReplies) > 0 || a.stepInvocations > 0) {
		if err := a.cycleLogger.WriteCycle(CycleLogEntry{Cycle: now, Replies: recordedReplies, Actions: recorded, Digest: digest}); err != nil {
			a.log.Warn("cycle log write failed", zap.Uint64("cycle", now), zap.Error(err))
		}
	}

	if a.snapshotSink != nil && now != 0 && a.cfg.SnapshotEveryCycles > 0 && now%uint64(a.cfg.SnapshotEveryCycles) == 0 {
		select {
		case a.snapshotSink <- a.ExportSnapshot(now):
		default:
			a.log.Warn("snapshot sink backed up, dropping", zap.Uint64("cycle", now))
		}
	}

	a.cycle.Add(1)
	a.invocations += a.stepInvocations
	a.rejections += a.stepRejections
	a.publish(float64(time.Since(start).Microseconds()) / 1000.0)
	return digest
}
