package protocol

import "tmgbattle.ai/internal/sim/model"

type ActionKind string

const (
	ActRegister          ActionKind = "REGISTER"
	ActMove              ActionKind = "MOVE"
	ActUpdateInfo        ActionKind = "UPDATE_INFO"
	ActSendNewAttributes ActionKind = "SEND_NEW_ATTRIBUTES"
	ActStartNewGame      ActionKind = "START_NEW_GAME"
	ActReserveGas        ActionKind = "RESERVE_GAS"
)

// Action is the inbound action union. Only the fields of Kind are meaningful.
type Action struct {
	Kind       ActionKind        `json:"action"`
	PieceID    model.PieceID     `json:"piece_id,omitempty"`
	Attributes *model.Attributes `json:"attributes,omitempty"`
	Direction  *model.Direction  `json:"direction,omitempty"`
	Amount     uint64            `json:"amount,omitempty"`
	Duration   uint32            `json:"duration,omitempty"`
}

func Register(piece model.PieceID, attrs model.Attributes) Action {
	return Action{Kind: ActRegister, PieceID: piece, Attributes: &attrs}
}

func Move(d model.Direction) Action {
	return Action{Kind: ActMove, Direction: &d}
}

func UpdateInfo() Action { return Action{Kind: ActUpdateInfo} }

func SendNewAttributes(attrs model.Attributes) Action {
	return Action{Kind: ActSendNewAttributes, Attributes: &attrs}
}

func StartNewGame() Action { return Action{Kind: ActStartNewGame} }

func ReserveGas(amount uint64, duration uint32) Action {
	return Action{Kind: ActReserveGas, Amount: amount, Duration: duration}
}

// AttributesOrEmpty returns the carried attributes, or none when absent.
func (a Action) AttributesOrEmpty() model.Attributes {
	if a.Attributes == nil {
		return model.Attributes{}
	}
	return a.Attributes.Clone()
}

type EventKind string

const (
	EvInfoUpdated             EventKind = "INFO_UPDATED"
	EvMoveMade                EventKind = "MOVE_MADE"
	EvGoToWaitingState        EventKind = "GO_TO_WAITING_STATE"
	EvGameIsOver              EventKind = "GAME_IS_OVER"
	EvRegistered              EventKind = "REGISTERED"
	EvAttributesUpdated       EventKind = "ATTRIBUTES_UPDATED"
	EvContractReinstated      EventKind = "CONTRACT_REINSTATED"
	EvGasReserved             EventKind = "GAS_RESERVED"
	EvOpponentDodgedTheAttack EventKind = "OPPONENT_DODGED_THE_ATTACK"
)

type Event struct {
	Kind    EventKind     `json:"event"`
	PieceID model.PieceID `json:"piece_id,omitempty"`
}
