package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"

	// Arena routing.
	ErrArenaBusy = "E_ARENA_BUSY"

	// Rule/action layer.
	ErrInvalidState = "E_INVALID_STATE"
	ErrUnauthorized = "E_UNAUTHORIZED"
	ErrBadRequest   = "E_BAD_REQUEST"
	ErrDecode       = "E_DECODE"
	ErrInternal     = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest: {},
	ErrArenaBusy:       {},
	ErrInvalidState:    {},
	ErrUnauthorized:    {},
	ErrBadRequest:      {},
	ErrDecode:          {},
	ErrInternal:        {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
