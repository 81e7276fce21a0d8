package arena

import "tmgbattle.ai/internal/sim/battle"

//go:generate go tool mockgen -destination=mocks/piece_directory_mock.go -package=mocks tmgbattle.ai/internal/sim/arena PieceDirectory

// PieceDirectory resolves piece owners. RequestOwner must not block the
// caller; the answer comes back through Arena.DeliverOwnerReply.
type PieceDirectory interface {
	RequestOwner(q battle.OwnerQuery)
}
