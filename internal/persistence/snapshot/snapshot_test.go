package snapshot

import (
	"path/filepath"
	"testing"
)

func sample() SnapshotV1 {
	return SnapshotV1{
		Header:      Header{Version: Version, ArenaID: "A1", Cycle: 42},
		Seed:        7,
		CycleRateHz: 5,
		SelfID:      "arena:A1",
		Battle: BattleV1{
			Players: []PlayerV1{{
				Owner:      "alice",
				PieceID:    "p1",
				Energy:     9000,
				Power:      1200,
				Attributes: SlotsV1{IDs: [3]uint32{0, 4, 0}, Set: [3]bool{false, true, false}},
				ActiveSlot: 2,
				Facing:     "LEFT",
			}},
			State:         "REGISTRATION",
			Weapons:       map[uint32]uint16{1: 2},
			Shields:       map[uint32]uint16{5: 30},
			Vouchers:      []VoucherV1{{ID: 3, Amount: 10, ReservedAt: 40, Duration: 20}},
			NextVoucherID: 3,
			Pending:       &PendingV1{RequestID: 9, Caller: "bob", PieceID: "p2"},
			NextRequestID: 9,
		},
		Timers:    []TimerV1{{Due: 50, Seq: 1, Action: "UPDATE_INFO", Delay: 10, Source: "ad_hoc", Amount: 100}},
		Suspended: &InvokeV1{Caller: "bob", Ref: "r1", Act: []byte(`{"action":"REGISTER","piece_id":"p2"}`)},
		Deferred:  []InvokeV1{{Caller: "alice", Act: []byte(`{"action":"START_NEW_GAME"}`)}},
		Counters:  CountersV1{NextTimerSeq: 1, GamesPlayed: 2},
	}
}

func TestWriteReadSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "42.snap.zst")
	in := sample()
	if err := WriteSnapshot(path, in); err != nil {
		t.Fatalf("write: %v", err)
	}
	out, err := ReadSnapshot(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if out.Header != in.Header || out.Seed != in.Seed || out.SelfID != in.SelfID {
		t.Fatalf("identity mismatch: %+v", out.Header)
	}
	p := out.Battle.Players[0]
	if p.Attributes != in.Battle.Players[0].Attributes || p.Facing != "LEFT" {
		t.Fatalf("player = %+v", p)
	}
	if out.Battle.Pending == nil || out.Battle.Pending.RequestID != 9 {
		t.Fatalf("pending lost: %+v", out.Battle.Pending)
	}
	if out.Suspended == nil || string(out.Suspended.Act) != string(in.Suspended.Act) {
		t.Fatalf("suspended lost: %+v", out.Suspended)
	}
	if len(out.Deferred) != 1 || len(out.Timers) != 1 || out.Timers[0] != in.Timers[0] {
		t.Fatalf("held work lost: %+v %+v", out.Deferred, out.Timers)
	}
	if out.Battle.Shields[5] != 30 || out.Counters != in.Counters {
		t.Fatalf("tables or counters lost")
	}

	h, err := ReadHeader(path)
	if err != nil || h != in.Header {
		t.Fatalf("header = %+v, %v", h, err)
	}
}

func TestReadSnapshotRejectsOtherVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "v2.snap.zst")
	s := sample()
	s.Header.Version = 2
	if err := WriteSnapshot(path, s); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadSnapshot(path); err == nil {
		t.Fatalf("expected version error")
	}
}
