package arena

import (
	"errors"
	"sort"

	"tmgbattle.ai/internal/protocol"
	"tmgbattle.ai/internal/sim/reservation"
)

type timer struct {
	due     uint64
	seq     uint64
	delayed reservation.Delayed
}

func (t timer) action() protocol.Action {
	return protocol.Action{Kind: protocol.ActionKind(t.delayed.Action)}
}

// stagedScheduler collects delayed deliveries during one invocation; they
// become timers only if the invocation succeeds.
type stagedScheduler struct {
	staged []reservation.Delayed
}

func (s *stagedScheduler) Schedule(d reservation.Delayed) error {
	if d.Action == "" {
		return errors.New("arena: delayed delivery without action")
	}
	if d.Funding.Amount == 0 {
		return errors.New("arena: unfunded delayed delivery")
	}
	s.staged = append(s.staged, d)
	return nil
}

func (a *Arena) commitTimers(now uint64, staged []reservation.Delayed) {
	if len(staged) == 0 {
		return
	}
	for _, d := range staged {
		a.nextTimerSeq++
		a.timers = append(a.timers, timer{due: now + uint64(d.Delay), seq: a.nextTimerSeq, delayed: d})
	}
	sortTimers(a.timers)
}

func sortTimers(ts []timer) {
	sort.Slice(ts, func(i, j int) bool {
		if ts[i].due != ts[j].due {
			return ts[i].due < ts[j].due
		}
		return ts[i].seq < ts[j].seq
	})
}

func (a *Arena) popDueTimers(now uint64) []timer {
	n := 0
	for n < len(a.timers) && a.timers[n].due <= now {
		n++
	}
	if n == 0 {
		return nil
	}
	due := make([]timer, n)
	copy(due, a.timers[:n])
	a.timers = append(a.timers[:0], a.timers[n:]...)
	return due
}
