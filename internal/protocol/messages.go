package protocol

import "tmgbattle.ai/internal/sim/model"

// HELLO (client -> server)
type HelloMsg struct {
	Type            string            `json:"type"`
	ProtocolVersion string            `json:"protocol_version"`
	ActorID         model.ActorID     `json:"actor_id"`
	Capabilities    HelloCapabilities `json:"capabilities,omitempty"`
}

type HelloCapabilities struct {
	MaxQueue int `json:"max_queue,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string        `json:"type"`
	ProtocolVersion string        `json:"protocol_version"`
	SessionID       string        `json:"session_id"`
	ArenaID         string        `json:"arena_id"`
	ActorID         model.ActorID `json:"actor_id"`
	Cycle           uint64        `json:"cycle"`
	Params          ArenaParams   `json:"params"`
}

type ArenaParams struct {
	CycleRateHz       int    `json:"cycle_rate_hz"`
	RoundStepLimit    uint8  `json:"round_step_limit"`
	UpdateDelayCycles uint32 `json:"update_delay_cycles"`
}

// ACT (client -> server). Ref is echoed on the reply.
type ActMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Ref             string `json:"ref,omitempty"`
	Action
}

// EVENT (server -> client). Replies carry the ACT ref; notifications do not.
type EventMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Ref             string `json:"ref,omitempty"`
	Cycle           uint64 `json:"cycle"`
	Event
}

// ERROR (server -> client)
type ErrorMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Ref             string `json:"ref,omitempty"`
	Code            string `json:"code"`
	Message         string `json:"message"`
}

func NewEventMsg(ref string, cycle uint64, ev Event) EventMsg {
	return EventMsg{Type: TypeEvent, ProtocolVersion: Version, Ref: ref, Cycle: cycle, Event: ev}
}

func NewErrorMsg(ref, code, message string) ErrorMsg {
	return ErrorMsg{Type: TypeError, ProtocolVersion: Version, Ref: ref, Code: code, Message: message}
}
