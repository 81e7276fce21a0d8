package pieces

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"tmgbattle.ai/internal/sim/battle"
	"tmgbattle.ai/internal/sim/model"
)

type chanSink chan battle.OwnerReply

func (c chanSink) DeliverOwnerReply(ctx context.Context, r battle.OwnerReply) error {
	select {
	case c <- r:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pieces.yaml")
	_ = os.WriteFile(path, []byte("pieces:\n  - id: p1\n    owner: alice\n  - id: p2\n    owner: bob\n"), 0o644)
	owners, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if owners["p1"] != "alice" || owners["p2"] != "bob" {
		t.Fatalf("owners = %v", owners)
	}

	_ = os.WriteFile(path, []byte("pieces:\n  - id: p1\n    owner: alice\n  - id: p1\n    owner: bob\n"), 0o644)
	if _, err := Load(path); err == nil {
		t.Fatalf("duplicate piece should fail")
	}
	_ = os.WriteFile(path, []byte("pieces:\n  - id: p1\n"), 0o644)
	if _, err := Load(path); err == nil {
		t.Fatalf("missing owner should fail")
	}
}

func TestDirectoryAnswersAsynchronously(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	d := New(map[model.PieceID]model.ActorID{"p1": "alice"}, nil)
	sink := make(chanSink, 4)
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx, sink) }()

	d.RequestOwner(battle.OwnerQuery{RequestID: 1, PieceID: "p1"})
	d.RequestOwner(battle.OwnerQuery{RequestID: 2, PieceID: "ghost"})

	got := map[uint64]battle.OwnerReply{}
	for i := 0; i < 2; i++ {
		select {
		case r := <-sink:
			got[r.RequestID] = r
		case <-ctx.Done():
			t.Fatal("timed out waiting for replies")
		}
	}
	if r := got[1]; r.Kind != battle.ReplyOwner || r.Owner != "alice" {
		t.Fatalf("reply 1 = %+v", r)
	}
	if r := got[2]; r.Kind != battle.ReplyUnknown || r.Owner != "" {
		t.Fatalf("reply 2 = %+v", r)
	}

	d.Assign("ghost", "bob")
	if o, ok := d.Lookup("ghost"); !ok || o != "bob" {
		t.Fatalf("assign did not stick")
	}

	cancel()
	if err := <-done; err == nil {
		t.Fatalf("run should return the context error")
	}
}

func TestRequestOwnerDropsWhenBackedUp(t *testing.T) {
	d := New(nil, nil)
	n := cap(d.queries)
	for i := 0; i <= n; i++ {
		d.RequestOwner(battle.OwnerQuery{RequestID: uint64(i + 1), PieceID: "p"})
	}
	if len(d.queries) != n {
		t.Fatalf("buffered %d queries, want %d", len(d.queries), n)
	}
	for i := 0; i < n; i++ {
		if q := <-d.queries; q.RequestID != uint64(i+1) {
			t.Fatalf("query %d = %+v", i, q)
		}
	}
	select {
	case q := <-d.queries:
		t.Fatalf("overflow query was delivered later: %+v", q)
	case <-time.After(50 * time.Millisecond):
	}
}
