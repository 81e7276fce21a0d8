package arena

import (
	"context"
	"errors"
)

type adminSnapshotReq struct {
	Resp chan adminSnapshotResp
}

type adminSnapshotResp struct {
	Cycle uint64
	Err   string
}

// RequestSnapshot asks the loop goroutine to enqueue a snapshot of the last
// completed cycle. It is safe to call from other goroutines (e.g. HTTP handlers).
func (a *Arena) RequestSnapshot(ctx context.Context) (cycle uint64, err error) {
	if a == nil || a.admin == nil {
		return 0, errors.New("admin snapshot not available")
	}
	resp := make(chan adminSnapshotResp, 1)
	select {
	case a.admin <- adminSnapshotReq{Resp: resp}:
	case <-ctx.Done():
		return 0, ctx.Err()
	}
	select {
	case r := <-resp:
		if r.Err != "" {
			return r.Cycle, errors.New(r.Err)
		}
		return r.Cycle, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func (a *Arena) handleAdminSnapshotRequests(reqs []adminSnapshotReq) {
	if len(reqs) == 0 {
		return
	}
	cur := a.cycle.Load()
	snapCycle := uint64(0)
	if cur > 0 {
		snapCycle = cur - 1
	}

	errStr := ""
	if a.snapshotSink == nil {
		errStr = "snapshot sink not configured"
	} else {
		select {
		case a.snapshotSink <- a.ExportSnapshot(snapCycle):
		default:
			errStr = "snapshot sink backpressure"
		}
	}

	resp := adminSnapshotResp{Cycle: snapCycle, Err: errStr}
	for _, r := range reqs {
		if r.Resp == nil {
			continue
		}
		select {
		case r.Resp <- resp:
		default:
			// Requester gave up; never block the loop.
		}
	}
}
