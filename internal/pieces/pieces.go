// Package pieces is an in-process piece-ownership directory. It answers the
// arena's owner queries asynchronously, from its own goroutine.
package pieces

import (
	"context"
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"tmgbattle.ai/internal/sim/battle"
	"tmgbattle.ai/internal/sim/model"
)

// Sink receives owner replies, normally the arena.
type Sink interface {
	DeliverOwnerReply(ctx context.Context, r battle.OwnerReply) error
}

type Piece struct {
	ID    model.PieceID `yaml:"id"`
	Owner model.ActorID `yaml:"owner"`
}

type File struct {
	Pieces []Piece `yaml:"pieces"`
}

// Load reads a pieces YAML file. Duplicate ids and empty owners are rejected.
func Load(path string) (map[model.PieceID]model.ActorID, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f File
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("pieces: %w", err)
	}
	out := make(map[model.PieceID]model.ActorID, len(f.Pieces))
	for _, p := range f.Pieces {
		if p.ID == "" || p.Owner == "" {
			return nil, fmt.Errorf("pieces: entry %q needs id and owner", p.ID)
		}
		if _, dup := out[p.ID]; dup {
			return nil, fmt.Errorf("pieces: duplicate piece %q", p.ID)
		}
		out[p.ID] = p.Owner
	}
	return out, nil
}

type Directory struct {
	log *zap.Logger

	mu     sync.RWMutex
	owners map[model.PieceID]model.ActorID

	queries chan battle.OwnerQuery
}

func New(owners map[model.PieceID]model.ActorID, logger *zap.Logger) *Directory {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Directory{
		log:     logger.Named("pieces"),
		owners:  map[model.PieceID]model.ActorID{},
		queries: make(chan battle.OwnerQuery, 64),
	}
	for k, v := range owners {
		d.owners[k] = v
	}
	return d
}

// Assign records or replaces the owner of piece.
func (d *Directory) Assign(piece model.PieceID, owner model.ActorID) {
	d.mu.Lock()
	d.owners[piece] = owner
	d.mu.Unlock()
}

func (d *Directory) Lookup(piece model.PieceID) (model.ActorID, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	o, ok := d.owners[piece]
	return o, ok
}

// RequestOwner never blocks the caller. A query that finds the buffer full is
// dropped and the registration stays suspended.
func (d *Directory) RequestOwner(q battle.OwnerQuery) {
	select {
	case d.queries <- q:
	default:
		d.log.Warn("owner query dropped, directory backed up",
			zap.Uint64("request_id", q.RequestID),
			zap.String("piece_id", string(q.PieceID)))
	}
}

// Run answers queries until ctx is done. Unknown pieces get an UNKNOWN reply,
// which the battle treats as a decode failure.
func (d *Directory) Run(ctx context.Context, sink Sink) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case q := <-d.queries:
			r := d.answer(q)
			if err := sink.DeliverOwnerReply(ctx, r); err != nil {
				d.log.Warn("owner reply not delivered", zap.Uint64("request_id", q.RequestID), zap.Error(err))
				if ctx.Err() != nil {
					return ctx.Err()
				}
			}
		}
	}
}

func (d *Directory) answer(q battle.OwnerQuery) battle.OwnerReply {
	owner, ok := d.Lookup(q.PieceID)
	if !ok {
		d.log.Info("unknown piece", zap.String("piece_id", string(q.PieceID)))
		return battle.OwnerReply{RequestID: q.RequestID, Kind: battle.ReplyUnknown}
	}
	return battle.OwnerReply{RequestID: q.RequestID, Kind: battle.ReplyOwner, Owner: owner}
}
