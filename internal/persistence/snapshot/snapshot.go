package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

const Version = 1

type Header struct {
	Version int    `json:"version"`
	ArenaID string `json:"arena_id"`
	Cycle   uint64 `json:"cycle"`
}

// SnapshotV1 is the whole arena at the end of Header.Cycle. Restoring it and
// replaying the journal from Cycle+1 reproduces the original digests.
type SnapshotV1 struct {
	Header Header `json:"header"`

	Seed        int64  `json:"seed"`
	CycleRateHz int    `json:"cycle_rate_hz"`
	SelfID      string `json:"self_id"`

	Battle    BattleV1   `json:"battle"`
	Timers    []TimerV1  `json:"timers"`
	Suspended *InvokeV1  `json:"suspended,omitempty"`
	Deferred  []InvokeV1 `json:"deferred"`
	Counters  CountersV1 `json:"counters"`
}

type BattleV1 struct {
	Players       []PlayerV1        `json:"players"`
	State         string            `json:"state"`
	CurrentTurn   uint8             `json:"current_turn"`
	Winner        string            `json:"winner,omitempty"`
	Steps         uint8             `json:"steps"`
	Weapons       map[uint32]uint16 `json:"weapons"`
	Shields       map[uint32]uint16 `json:"shields"`
	Vouchers      []VoucherV1       `json:"vouchers"`
	NextVoucherID uint64            `json:"next_voucher_id"`
	Pending       *PendingV1        `json:"pending,omitempty"`
	NextRequestID uint64            `json:"next_request_id"`
}

// SlotsV1 stores optional attribute slots; gob cannot carry nil pointers.
type SlotsV1 struct {
	IDs [3]uint32 `json:"ids"`
	Set [3]bool   `json:"set"`
}

type PlayerV1 struct {
	Owner      string  `json:"owner"`
	PieceID    string  `json:"piece_id"`
	Energy     uint16  `json:"energy"`
	Power      uint16  `json:"power"`
	Attributes SlotsV1 `json:"attributes"`
	ActiveSlot uint8   `json:"active_slot"`
	Facing     string  `json:"facing"`
}

type VoucherV1 struct {
	ID         uint64 `json:"id"`
	Amount     uint64 `json:"amount"`
	ReservedAt uint64 `json:"reserved_at"`
	Duration   uint32 `json:"duration"`
}

type PendingV1 struct {
	RequestID  uint64  `json:"request_id"`
	Caller     string  `json:"caller"`
	PieceID    string  `json:"piece_id"`
	Attributes SlotsV1 `json:"attributes"`
}

type TimerV1 struct {
	Due       uint64 `json:"due"`
	Seq       uint64 `json:"seq"`
	Action    string `json:"action"`
	Delay     uint32 `json:"delay"`
	Source    string `json:"source"`
	VoucherID uint64 `json:"voucher_id,omitempty"`
	Amount    uint64 `json:"amount"`
}

// InvokeV1 is an invocation held by the arena: the suspended registration or
// an action deferred behind it. Act is the protocol action as JSON.
type InvokeV1 struct {
	Caller string `json:"caller"`
	Ref    string `json:"ref,omitempty"`
	Act    []byte `json:"act"`
}

type CountersV1 struct {
	NextTimerSeq uint64 `json:"next_timer_seq"`
	GamesPlayed  uint64 `json:"games_played"`
}

func WriteSnapshot(path string, snap SnapshotV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}

	bw := bufio.NewWriterSize(enc, 64*1024)
	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		_ = enc.Close()
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		_ = enc.Close()
		return err
	}
	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		_ = enc.Close()
		return fmt.Errorf("gob encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		_ = enc.Close()
		return err
	}
	return enc.Close()
}

func ReadSnapshot(path string) (SnapshotV1, error) {
	var snap SnapshotV1
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 64*1024)

	// The header line is for humans and tooling; gob carries it too.
	if _, err := br.ReadBytes('\n'); err != nil {
		return snap, fmt.Errorf("read header: %w", err)
	}
	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	if snap.Header.Version != Version {
		return snap, errors.New("unsupported snapshot version")
	}
	return snap, nil
}

// ReadHeader returns only the JSON header line.
func ReadHeader(path string) (Header, error) {
	var h Header
	f, err := os.Open(path)
	if err != nil {
		return h, err
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		return h, err
	}
	defer dec.Close()
	line, err := bufio.NewReader(dec).ReadBytes('\n')
	if err != nil {
		return h, err
	}
	err = json.Unmarshal(line, &h)
	return h, err
}
