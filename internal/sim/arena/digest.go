package arena

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"hash"
	"sort"

	"tmgbattle.ai/internal/sim/model"
)

func (a *Arena) stateDigest(nowCycle uint64) string {
	h := sha256.New()
	var tmp [8]byte

	digestWriteU64(h, &tmp, nowCycle)
	digestWriteU64(h, &tmp, uint64(a.cfg.Seed))

	v := a.battle.View()
	digestWriteString(h, v.State.String())
	h.Write([]byte{v.CurrentTurn, v.Steps})
	digestWriteString(h, string(v.Winner))
	digestWriteU64(h, &tmp, uint64(len(v.Players)))
	for _, p := range v.Players {
		digestWriteString(h, string(p.Owner))
		digestWriteString(h, string(p.PieceID))
		digestWriteU64(h, &tmp, uint64(p.Energy))
		digestWriteU64(h, &tmp, uint64(p.Power))
		digestWriteSlots(h, &tmp, p.Attributes)
		h.Write([]byte{p.ActiveSlot, byte(p.Facing)})
	}
	digestWriteTable(h, &tmp, v.Armory.Weapons)
	digestWriteTable(h, &tmp, v.Armory.Shields)

	digestWriteU64(h, &tmp, uint64(len(v.Reservations)))
	for _, r := range v.Reservations {
		digestWriteU64(h, &tmp, r.ID)
		digestWriteU64(h, &tmp, r.Amount)
		digestWriteU64(h, &tmp, r.ReservedAt)
		digestWriteU64(h, &tmp, uint64(r.Duration))
	}
	digestWriteU64(h, &tmp, v.NextVoucherID)
	digestWriteU64(h, &tmp, v.NextRequestID)
	if p := v.Pending; p != nil {
		h.Write([]byte{1})
		digestWriteU64(h, &tmp, p.RequestID)
		digestWriteString(h, string(p.Caller))
		digestWriteString(h, string(p.PieceID))
		digestWriteSlots(h, &tmp, p.Attributes)
	} else {
		h.Write([]byte{0})
	}

	digestWriteU64(h, &tmp, uint64(len(a.timers)))
	for _, t := range a.timers {
		digestWriteU64(h, &tmp, t.due)
		digestWriteU64(h, &tmp, t.seq)
		digestWriteString(h, t.delayed.Action)
		digestWriteU64(h, &tmp, uint64(t.delayed.Funding.Source))
		digestWriteU64(h, &tmp, t.delayed.Funding.VoucherID)
		digestWriteU64(h, &tmp, t.delayed.Funding.Amount)
	}
	digestWriteU64(h, &tmp, uint64(len(a.deferred)))
	for _, d := range a.deferred {
		digestWriteString(h, string(d.Caller))
		digestWriteString(h, string(d.Act.Kind))
	}
	digestWriteU64(h, &tmp, a.gamesPlayed)

	return hex.EncodeToString(h.Sum(nil))
}

func digestWriteU64(h hash.Hash, tmp *[8]byte, v uint64) {
	binary.LittleEndian.PutUint64(tmp[:], v)
	h.Write(tmp[:])
}

func digestWriteString(h hash.Hash, s string) {
	h.Write([]byte(s))
	h.Write([]byte{0})
}

func digestWriteSlots(h hash.Hash, tmp *[8]byte, attrs model.Attributes) {
	for _, p := range attrs {
		if p == nil {
			h.Write([]byte{0})
			continue
		}
		h.Write([]byte{1})
		digestWriteU64(h, tmp, uint64(*p))
	}
}

func digestWriteTable(h hash.Hash, tmp *[8]byte, m map[model.AttributeID]uint16) {
	keys := make([]model.AttributeID, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	digestWriteU64(h, tmp, uint64(len(keys)))
	for _, k := range keys {
		digestWriteU64(h, tmp, uint64(k))
		digestWriteU64(h, tmp, uint64(m[k]))
	}
}
