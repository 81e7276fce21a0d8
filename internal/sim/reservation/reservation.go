// Package reservation holds prepaid vouchers that fund future self-addressed
// messages, with an ad-hoc grant as the fallback funding policy.
package reservation

import (
	"errors"
	"fmt"
)

var ErrInvalidVoucher = errors.New("reservation: amount and duration must be positive")

// Voucher funds one delayed delivery with Amount resource units. It can only
// fund a delivery that fires before ExpiresAt.
type Voucher struct {
	ID         uint64 `json:"id"`
	Amount     uint64 `json:"amount"`
	ReservedAt uint64 `json:"reserved_at"`
	Duration   uint32 `json:"duration"`
}

func (v Voucher) ExpiresAt() uint64 { return v.ReservedAt + uint64(v.Duration) }

// Covers reports whether a delivery firing at cycle due is still inside the window.
func (v Voucher) Covers(due uint64) bool { return due <= v.ExpiresAt() }

type Source uint8

const (
	FromVoucher Source = iota + 1
	AdHoc
)

func (s Source) String() string {
	switch s {
	case FromVoucher:
		return "voucher"
	case AdHoc:
		return "ad_hoc"
	default:
		return "none"
	}
}

func (s Source) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Source) UnmarshalText(b []byte) error {
	switch string(b) {
	case "voucher":
		*s = FromVoucher
	case "ad_hoc":
		*s = AdHoc
	default:
		return fmt.Errorf("unknown funding source %q", string(b))
	}
	return nil
}

// Funding says how a scheduled delivery is paid for.
type Funding struct {
	Source    Source `json:"source"`
	VoucherID uint64 `json:"voucher_id,omitempty"`
	Amount    uint64 `json:"amount"`
}

// Pool is a LIFO stack of vouchers. It is not safe for concurrent use; the
// arena loop owns it.
type Pool struct {
	vouchers []Voucher
	nextID   uint64
}

func NewPool() *Pool { return &Pool{} }

func (p *Pool) Len() int { return len(p.vouchers) }

// Reserve pushes a new voucher reserved at cycle now.
func (p *Pool) Reserve(amount uint64, duration uint32, now uint64) (Voucher, error) {
	if amount == 0 || duration == 0 {
		return Voucher{}, ErrInvalidVoucher
	}
	p.nextID++
	v := Voucher{ID: p.nextID, Amount: amount, ReservedAt: now, Duration: duration}
	p.vouchers = append(p.vouchers, v)
	return v, nil
}

// Take pops the most recent voucher able to fund a delivery due at now+delay.
// Vouchers whose window has already closed are discarded on the way.
func (p *Pool) Take(now uint64, delay uint32) (Voucher, bool) {
	due := now + uint64(delay)
	for len(p.vouchers) > 0 {
		last := len(p.vouchers) - 1
		v := p.vouchers[last]
		p.vouchers = p.vouchers[:last]
		if v.Covers(due) {
			return v, true
		}
	}
	return Voucher{}, false
}

// Fund applies the funding policy: newest usable voucher first, else an ad-hoc
// grant of adhoc units.
func (p *Pool) Fund(now uint64, delay uint32, adhoc uint64) Funding {
	if v, ok := p.Take(now, delay); ok {
		return Funding{Source: FromVoucher, VoucherID: v.ID, Amount: v.Amount}
	}
	return Funding{Source: AdHoc, Amount: adhoc}
}

// Vouchers returns a copy of the pool, oldest first.
func (p *Pool) Vouchers() []Voucher {
	out := make([]Voucher, len(p.vouchers))
	copy(out, p.vouchers)
	return out
}

func (p *Pool) NextID() uint64 { return p.nextID }

// Restore replaces the pool contents, e.g. when importing a snapshot.
func (p *Pool) Restore(vouchers []Voucher, nextID uint64) {
	p.vouchers = append(p.vouchers[:0], vouchers...)
	p.nextID = nextID
}

func (p *Pool) Clone() *Pool {
	out := &Pool{nextID: p.nextID}
	out.vouchers = p.Vouchers()
	return out
}

// Delayed is a message the engine asks the host to redeliver to itself.
type Delayed struct {
	Action  string  `json:"action"`
	Delay   uint32  `json:"delay"`
	Funding Funding `json:"funding"`
}

// Scheduler accepts delayed self-deliveries. Implementations stage them and
// make them visible only once the current invocation commits.
type Scheduler interface {
	Schedule(d Delayed) error
}
