package battle

import (
	"tmgbattle.ai/internal/protocol"
	"tmgbattle.ai/internal/sim/model"
	"tmgbattle.ai/internal/sim/reservation"
	"tmgbattle.ai/internal/sim/rng"
)

// Env is what the host supplies to a single invocation.
type Env struct {
	Caller model.ActorID
	// Self is the arena's own identity; only it may deliver UPDATE_INFO.
	Self      model.ActorID
	Cycle     uint64
	Rand      rng.Provider
	Scheduler reservation.Scheduler
}

type Notification struct {
	To    model.ActorID
	Event protocol.Event
}

// Outcome is everything an invocation emits. Reply is nil for self-delivered
// actions and for a registration that suspended on Query.
type Outcome struct {
	Reply         *protocol.Event
	ReplyTo       model.ActorID
	Notifications []Notification
	Query         *OwnerQuery
}

func (o *Outcome) reply(to model.ActorID, ev protocol.Event) {
	o.ReplyTo = to
	o.Reply = &ev
}

func (o *Outcome) notify(to model.ActorID, kind protocol.EventKind) {
	o.Notifications = append(o.Notifications, Notification{To: to, Event: protocol.Event{Kind: kind}})
}

// OwnerQuery asks the piece directory who owns PieceID.
type OwnerQuery struct {
	RequestID uint64        `json:"request_id"`
	PieceID   model.PieceID `json:"piece_id"`
}

const (
	ReplyOwner   = "OWNER"
	ReplyUnknown = "UNKNOWN"
)

// OwnerReply answers an OwnerQuery. Any Kind other than ReplyOwner is a decode
// failure for the registration waiting on it.
type OwnerReply struct {
	RequestID uint64        `json:"request_id"`
	Kind      string        `json:"kind"`
	Owner     model.ActorID `json:"owner,omitempty"`
}

// PendingRegistration is the context recorded before a registration suspends.
type PendingRegistration struct {
	RequestID  uint64           `json:"request_id"`
	Caller     model.ActorID    `json:"caller"`
	PieceID    model.PieceID    `json:"piece_id"`
	Attributes model.Attributes `json:"attributes"`
}
