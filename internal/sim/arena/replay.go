package arena

import (
	"errors"
	"fmt"
)

var ErrDigestMismatch = errors.New("digest mismatch")

// ReplayEntry fast-forwards through cycles without journaled input, applies
// e, and checks the resulting digest against the journal.
func (a *Arena) ReplayEntry(e CycleLogEntry) error {
	if cur := a.cycle.Load(); e.Cycle < cur {
		return fmt.Errorf("journal cycle %d is behind arena cycle %d", e.Cycle, cur)
	}
	for a.cycle.Load() < e.Cycle {
		a.step(nil, nil)
	}
	envs := make([]Envelope, 0, len(e.Actions))
	for _, ra := range e.Actions {
		envs = append(envs, Envelope{Caller: ra.Caller, Ref: ra.Ref, Act: ra.Act})
	}
	_, digest := a.StepOnce(envs, e.Replies)
	if digest != e.Digest {
		return fmt.Errorf("%w at cycle %d: got %s want %s", ErrDigestMismatch, e.Cycle, digest, e.Digest)
	}
	return nil
}
