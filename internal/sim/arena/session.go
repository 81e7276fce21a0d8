package arena

import (
	"context"
	"errors"

	"tmgbattle.ai/internal/protocol"
	"tmgbattle.ai/internal/sim/battle"
	"tmgbattle.ai/internal/sim/model"
)

var (
	ErrInboxFull      = errors.New("arena inbox full")
	ErrReservedCaller = errors.New("arena: caller id is reserved for delayed deliveries")
)

type AttachRequest struct {
	ActorID   model.ActorID
	SessionID string
	Out       chan []byte
	Resp      chan protocol.WelcomeMsg
}

type leaveReq struct {
	ActorID   model.ActorID
	SessionID string
}

// Attach registers a client queue for actorID's replies and notifications.
// A later attach for the same actor replaces the earlier one.
func (a *Arena) Attach(ctx context.Context, actorID model.ActorID, sessionID string, out chan []byte) (protocol.WelcomeMsg, error) {
	resp := make(chan protocol.WelcomeMsg, 1)
	select {
	case a.attach <- AttachRequest{ActorID: actorID, SessionID: sessionID, Out: out, Resp: resp}:
	case <-ctx.Done():
		return protocol.WelcomeMsg{}, ctx.Err()
	}
	select {
	case w := <-resp:
		return w, nil
	case <-ctx.Done():
		return protocol.WelcomeMsg{}, ctx.Err()
	}
}

func (a *Arena) Leave(actorID model.ActorID, sessionID string) {
	select {
	case a.leave <- leaveReq{ActorID: actorID, SessionID: sessionID}:
	case <-a.stop:
	}
}

func (a *Arena) handleAttach(req AttachRequest) {
	a.clients[req.ActorID] = &clientState{Out: req.Out, SessionID: req.SessionID}
	if req.Resp == nil {
		return
	}
	req.Resp <- protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		SessionID:       req.SessionID,
		ArenaID:         a.cfg.ID,
		ActorID:         req.ActorID,
		Cycle:           a.cycle.Load(),
		Params:          a.Params(),
	}
}

func (a *Arena) handleLeave(req leaveReq) {
	if cl := a.clients[req.ActorID]; cl != nil && cl.SessionID == req.SessionID {
		delete(a.clients, req.ActorID)
	}
}

// Enqueue hands env to the loop without waiting for its result.
func (a *Arena) Enqueue(env Envelope) error {
	if env.Caller == a.cfg.Self {
		return ErrReservedCaller
	}
	select {
	case a.inbox <- env:
		return nil
	default:
		return ErrInboxFull
	}
}

// Submit enqueues an action and waits for its result. A registration only
// completes once its owner reply has been delivered.
func (a *Arena) Submit(ctx context.Context, caller model.ActorID, act protocol.Action) (Result, error) {
	if caller == a.cfg.Self {
		return Result{}, ErrReservedCaller
	}
	resp := make(chan Result, 1)
	select {
	case a.inbox <- Envelope{Caller: caller, Act: act, Resp: resp}:
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
	select {
	case r := <-resp:
		return r, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// DeliverOwnerReply feeds a piece directory answer into the next cycle.
func (a *Arena) DeliverOwnerReply(ctx context.Context, r battle.OwnerReply) error {
	select {
	case a.replies <- r:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-a.stop:
		return errors.New("arena stopped")
	}
}
