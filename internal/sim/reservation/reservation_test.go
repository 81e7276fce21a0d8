package reservation

import (
	"errors"
	"testing"
)

func TestReserveRejectsEmptyVoucher(t *testing.T) {
	p := NewPool()
	if _, err := p.Reserve(0, 10, 1); !errors.Is(err, ErrInvalidVoucher) {
		t.Fatalf("zero amount: got %v", err)
	}
	if _, err := p.Reserve(10, 0, 1); !errors.Is(err, ErrInvalidVoucher) {
		t.Fatalf("zero duration: got %v", err)
	}
	if p.Len() != 0 {
		t.Fatalf("rejected reservations must not be pooled")
	}
}

func TestFundIsLIFO(t *testing.T) {
	p := NewPool()
	a, _ := p.Reserve(100, 1000, 0)
	b, _ := p.Reserve(200, 1000, 0)

	f := p.Fund(5, 10, 7)
	if f.Source != FromVoucher || f.VoucherID != b.ID || f.Amount != 200 {
		t.Fatalf("first funding = %+v, want voucher %d", f, b.ID)
	}
	f = p.Fund(5, 10, 7)
	if f.Source != FromVoucher || f.VoucherID != a.ID {
		t.Fatalf("second funding = %+v, want voucher %d", f, a.ID)
	}
	f = p.Fund(5, 10, 7)
	if f.Source != AdHoc || f.Amount != 7 {
		t.Fatalf("empty pool funding = %+v, want ad hoc 7", f)
	}
}

func TestTakeSkipsLapsedVouchers(t *testing.T) {
	p := NewPool()
	keep, _ := p.Reserve(100, 500, 0)
	_, _ = p.Reserve(100, 20, 0) // lapses at 20

	v, ok := p.Take(15, 10)
	if !ok || v.ID != keep.ID {
		t.Fatalf("take = %+v %v, want voucher %d", v, ok, keep.ID)
	}
	if p.Len() != 0 {
		t.Fatalf("lapsed voucher should have been discarded, len=%d", p.Len())
	}
}

func TestRestoreAndClone(t *testing.T) {
	p := NewPool()
	_, _ = p.Reserve(1, 1, 0)
	_, _ = p.Reserve(2, 2, 0)

	c := p.Clone()
	_, _ = c.Take(0, 0)
	if p.Len() != 2 || c.Len() != 1 {
		t.Fatalf("clone must not share storage: p=%d c=%d", p.Len(), c.Len())
	}

	q := NewPool()
	q.Restore(p.Vouchers(), p.NextID())
	v, _ := q.Reserve(3, 3, 0)
	if v.ID != 3 {
		t.Fatalf("restored pool should continue ids, got %d", v.ID)
	}
}

type fakeScheduler struct {
	now  uint64
	sent []Delayed
}

func (s *fakeScheduler) Schedule(d Delayed) error {
	s.sent = append(s.sent, d)
	return nil
}

func TestFundFeedsScheduler(t *testing.T) {
	clock := &fakeScheduler{now: 40}
	p := NewPool()
	_, _ = p.Reserve(9, 100, 0)

	for i := 0; i < 2; i++ {
		d := Delayed{Action: "UPDATE_INFO", Delay: 10, Funding: p.Fund(clock.now, 10, 1)}
		if err := clock.Schedule(d); err != nil {
			t.Fatalf("schedule: %v", err)
		}
	}
	if len(clock.sent) != 2 {
		t.Fatalf("scheduled %d deliveries", len(clock.sent))
	}
	if clock.sent[0].Funding.Source != FromVoucher || clock.sent[1].Funding.Source != AdHoc {
		t.Fatalf("unexpected funding order: %+v", clock.sent)
	}
}
