package battle

import (
	"errors"
	"fmt"

	"tmgbattle.ai/internal/protocol"
	"tmgbattle.ai/internal/sim/model"
)

// Expected rejections. A handler returning one of these has committed nothing.
var (
	ErrInvalidState = errors.New("invalid state")
	ErrUnauthorized = errors.New("unauthorized")
	ErrBadRequest   = errors.New("bad request")
	ErrDecode       = errors.New("unexpected owner reply")
)

// Programmer errors: the host drove the aggregate incorrectly.
var (
	ErrNotInitialized  = errors.New("battle: not initialized")
	ErrSuspended       = errors.New("battle: registration in flight")
	ErrUnexpectedReply = errors.New("battle: reply does not match pending request")
)

// RuleError is a rejection of one invocation by the battle rules.
type RuleError struct {
	Kind   error
	Action protocol.ActionKind
	State  model.State
	Detail string
}

func (e *RuleError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("battle: %s: %s in %s", e.Kind, e.Action, e.State)
	}
	return fmt.Sprintf("battle: %s: %s in %s: %s", e.Kind, e.Action, e.State, e.Detail)
}

func (e *RuleError) Unwrap() error { return e.Kind }

func (b *Battle) reject(kind error, act protocol.ActionKind, detail string) error {
	return &RuleError{Kind: kind, Action: act, State: b.state, Detail: detail}
}

// Code maps an invocation error to its wire error code.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrInvalidState):
		return protocol.ErrInvalidState
	case errors.Is(err, ErrUnauthorized):
		return protocol.ErrUnauthorized
	case errors.Is(err, ErrBadRequest):
		return protocol.ErrBadRequest
	case errors.Is(err, ErrDecode):
		return protocol.ErrDecode
	default:
		return protocol.ErrInternal
	}
}

// IsRejection reports whether err is an expected rule rejection rather than a bug.
func IsRejection(err error) bool {
	var re *RuleError
	return errors.As(err, &re)
}
