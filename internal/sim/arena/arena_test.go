package arena

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"go.uber.org/mock/gomock"

	"tmgbattle.ai/internal/protocol"
	"tmgbattle.ai/internal/sim/arena/mocks"
	"tmgbattle.ai/internal/sim/battle"
	"tmgbattle.ai/internal/sim/model"
)

const (
	alice model.ActorID = "alice"
	bob   model.ActorID = "bob"
)

func testConfig(seed int64) Config {
	return Config{ID: "TEST", Seed: seed, CycleRateHz: 200, Battle: battle.DefaultConfig()}
}

type queryLog struct{ queries []battle.OwnerQuery }

func (q *queryLog) RequestOwner(oq battle.OwnerQuery) { q.queries = append(q.queries, oq) }

func (q *queryLog) last(t *testing.T) battle.OwnerQuery {
	t.Helper()
	if len(q.queries) == 0 {
		t.Fatalf("no owner query issued")
	}
	return q.queries[len(q.queries)-1]
}

type memJournal struct{ entries []CycleLogEntry }

func (m *memJournal) WriteCycle(e CycleLogEntry) error {
	m.entries = append(m.entries, e)
	return nil
}

func act(caller model.ActorID, a protocol.Action) (Envelope, chan Result) {
	ch := make(chan Result, 1)
	return Envelope{Caller: caller, Act: a, Resp: ch}, ch
}

func recv(t *testing.T, ch chan Result) Result {
	t.Helper()
	select {
	case r := <-ch:
		return r
	default:
		t.Fatalf("no result delivered")
		return Result{}
	}
}

func pending(ch chan Result) bool { return len(ch) == 0 }

func owner(q battle.OwnerQuery, who model.ActorID) battle.OwnerReply {
	return battle.OwnerReply{RequestID: q.RequestID, Kind: battle.ReplyOwner, Owner: who}
}

// registerBoth drives two registrations through suspension and resume.
func registerBoth(t *testing.T, a *Arena, dir *queryLog) {
	t.Helper()
	for _, who := range []model.ActorID{alice, bob} {
		env, ch := act(who, protocol.Register(model.PieceID("piece-"+who), model.Attributes{}))
		a.StepOnce([]Envelope{env}, nil)
		if !pending(ch) {
			t.Fatalf("register by %s replied before the owner answered: %+v", who, recv(t, ch))
		}
		a.StepOnce(nil, []battle.OwnerReply{owner(dir.last(t), who)})
		r := recv(t, ch)
		if r.Err != nil || r.Event == nil || r.Event.Kind != protocol.EvRegistered {
			t.Fatalf("register by %s: %+v", who, r)
		}
	}
	if v := a.View(); v.State != model.StateMoves || len(v.Players) != 2 {
		t.Fatalf("after registration: %+v", v)
	}
}

// dodgeMove picks the direction that makes the current mover miss.
func dodgeMove(a *Arena) (model.ActorID, model.Direction) {
	v := a.View()
	mover := v.Players[v.CurrentTurn]
	def := v.Players[1-v.CurrentTurn]
	d := model.Left
	if def.Facing == model.Left {
		d = model.Right
	}
	return mover.Owner, d
}

func playRound(t *testing.T, a *Arena) {
	t.Helper()
	for i := 0; i <= int(battle.DefaultRoundStepLimit); i++ {
		who, d := dodgeMove(a)
		env, ch := act(who, protocol.Move(d))
		a.StepOnce([]Envelope{env}, nil)
		if r := recv(t, ch); r.Err != nil {
			t.Fatalf("move %d: %v", i, r.Err)
		}
	}
	if a.View().State != model.StateWaiting {
		t.Fatalf("round did not end: %s", a.View().State)
	}
}

func TestRegistrationSuspendsUntilOwnerReply(t *testing.T) {
	ctrl := gomock.NewController(t)
	dir := mocks.NewMockPieceDirectory(ctrl)
	var got battle.OwnerQuery
	dir.EXPECT().RequestOwner(gomock.Any()).Do(func(q battle.OwnerQuery) { got = q }).Times(1)

	a, err := New(testConfig(1), WithPieceDirectory(dir))
	if err != nil {
		t.Fatal(err)
	}
	env, ch := act(alice, protocol.Register("pA", model.SlotsOf(1)))
	a.StepOnce([]Envelope{env}, nil)
	if got.PieceID != "pA" || got.RequestID == 0 {
		t.Fatalf("query = %+v", got)
	}
	if !pending(ch) || !a.Metrics().Suspended {
		t.Fatalf("registration should be suspended")
	}

	a.StepOnce(nil, []battle.OwnerReply{{RequestID: got.RequestID, Kind: battle.ReplyOwner, Owner: alice}})
	r := recv(t, ch)
	if r.Err != nil || r.Event.PieceID != "pA" {
		t.Fatalf("result = %+v", r)
	}
	p := a.View().Players[0]
	if p.Owner != alice || p.ActiveSlot != 1 {
		t.Fatalf("player = %+v", p)
	}
}

func TestSuspensionDefersEverythingInOrder(t *testing.T) {
	dir := &queryLog{}
	a, _ := New(testConfig(2), WithPieceDirectory(dir))

	regA, chA := act(alice, protocol.Register("pA", model.Attributes{}))
	regB, chB := act(bob, protocol.Register("pB", model.Attributes{}))
	gas, chGas := act(bob, protocol.ReserveGas(5, 100))
	a.StepOnce([]Envelope{regA, regB, gas}, nil)

	if len(dir.queries) != 1 {
		t.Fatalf("only the first registration may be in flight, queries=%d", len(dir.queries))
	}
	if !pending(chB) || !pending(chGas) || a.Metrics().Deferred != 2 {
		t.Fatalf("actions behind a suspension must wait, deferred=%d", a.Metrics().Deferred)
	}

	// Several idle cycles: still suspended, no timeout.
	for i := 0; i < 5; i++ {
		a.StepOnce(nil, nil)
	}
	if !pending(chA) {
		t.Fatalf("suspended registration completed without a reply")
	}

	a.StepOnce(nil, []battle.OwnerReply{owner(dir.queries[0], alice)})
	if r := recv(t, chA); r.Err != nil {
		t.Fatalf("A: %v", r.Err)
	}
	// B's registration resumed from the deferral queue and suspended again.
	if len(dir.queries) != 2 || !pending(chB) || !pending(chGas) {
		t.Fatalf("B should be suspended with the reservation still deferred")
	}

	a.StepOnce(nil, []battle.OwnerReply{owner(dir.queries[1], bob)})
	if r := recv(t, chB); r.Err != nil {
		t.Fatalf("B: %v", r.Err)
	}
	if r := recv(t, chGas); r.Err != nil || r.Event.Kind != protocol.EvGasReserved {
		t.Fatalf("gas: %+v", r)
	}
	if m := a.Metrics(); m.Deferred != 0 || m.Suspended || m.Reservations != 1 {
		t.Fatalf("metrics = %+v", m)
	}
}

func TestDecodeFailureFailsRegistration(t *testing.T) {
	dir := &queryLog{}
	a, _ := New(testConfig(3), WithPieceDirectory(dir))
	env, ch := act(alice, protocol.Register("pA", model.Attributes{}))
	a.StepOnce([]Envelope{env}, nil)
	a.StepOnce(nil, []battle.OwnerReply{{RequestID: dir.last(t).RequestID, Kind: battle.ReplyUnknown}})
	r := recv(t, ch)
	if !errors.Is(r.Err, battle.ErrDecode) {
		t.Fatalf("err = %v, want decode failure", r.Err)
	}
	if v := a.View(); len(v.Players) != 0 || v.Pending != nil {
		t.Fatalf("view = %+v", v)
	}
}

func TestWakeUpFiresAfterUpdateDelay(t *testing.T) {
	dir := &queryLog{}
	a, _ := New(testConfig(4), WithPieceDirectory(dir))
	outA := make(chan []byte, 64)
	outB := make(chan []byte, 64)
	a.handleAttach(AttachRequest{ActorID: alice, SessionID: "s-a", Out: outA})
	a.handleAttach(AttachRequest{ActorID: bob, SessionID: "s-b", Out: outB})

	registerBoth(t, a, dir)
	playRound(t, a)
	if a.Metrics().Timers != 1 {
		t.Fatalf("timers = %d, want 1", a.Metrics().Timers)
	}
	drain(outA)
	drain(outB)

	for i := uint32(1); i < battle.DefaultUpdateDelay; i++ {
		a.StepOnce(nil, nil)
		if a.View().State != model.StateWaiting {
			t.Fatalf("woke up after %d cycles", i)
		}
	}
	a.StepOnce(nil, nil)
	if a.View().State != model.StateMoves {
		t.Fatalf("wake-up did not fire after %d cycles", battle.DefaultUpdateDelay)
	}
	for _, out := range []chan []byte{outA, outB} {
		msgs := drain(out)
		if len(msgs) != 1 {
			t.Fatalf("got %d messages, want one INFO_UPDATED", len(msgs))
		}
		var ev protocol.EventMsg
		if err := json.Unmarshal(msgs[0], &ev); err != nil {
			t.Fatal(err)
		}
		if ev.Kind != protocol.EvInfoUpdated || ev.Ref != "" {
			t.Fatalf("event = %+v", ev)
		}
	}
}

func TestArenaIdentityIsReservedForTimers(t *testing.T) {
	dir := &queryLog{}
	a, _ := New(testConfig(5), WithPieceDirectory(dir))
	registerBoth(t, a, dir)
	playRound(t, a)

	forged := Envelope{Caller: a.Self(), Act: protocol.UpdateInfo()}
	if err := a.Enqueue(forged); !errors.Is(err, ErrReservedCaller) {
		t.Fatalf("enqueue as arena: err = %v", err)
	}
	if _, err := a.Submit(context.Background(), a.Self(), protocol.UpdateInfo()); !errors.Is(err, ErrReservedCaller) {
		t.Fatalf("submit as arena: err = %v", err)
	}

	env, ch := act(a.Self(), protocol.UpdateInfo())
	a.StepOnce([]Envelope{env}, nil)
	if r := recv(t, ch); !errors.Is(r.Err, battle.ErrUnauthorized) {
		t.Fatalf("inbound arena identity: result = %+v", r)
	}
	if a.View().State != model.StateWaiting {
		t.Fatalf("round woke early: %s", a.View().State)
	}
	if a.Metrics().Timers != 1 {
		t.Fatalf("timers = %d, want the pending wake-up", a.Metrics().Timers)
	}
}

func TestExternalUpdateInfoRejected(t *testing.T) {
	dir := &queryLog{}
	a, _ := New(testConfig(5), WithPieceDirectory(dir))
	registerBoth(t, a, dir)
	playRound(t, a)
	env, ch := act(alice, protocol.UpdateInfo())
	a.StepOnce([]Envelope{env}, nil)
	if r := recv(t, ch); !errors.Is(r.Err, battle.ErrUnauthorized) {
		t.Fatalf("err = %v", r.Err)
	}
}

func TestClientErrorCarriesRef(t *testing.T) {
	a, _ := New(testConfig(6))
	out := make(chan []byte, 4)
	a.handleAttach(AttachRequest{ActorID: alice, SessionID: "s", Out: out})
	a.StepOnce([]Envelope{{Caller: alice, Ref: "r-7", Act: protocol.StartNewGame()}}, nil)
	msgs := drain(out)
	if len(msgs) != 1 {
		t.Fatalf("messages = %d", len(msgs))
	}
	var em protocol.ErrorMsg
	_ = json.Unmarshal(msgs[0], &em)
	if em.Type != protocol.TypeError || em.Ref != "r-7" || em.Code != protocol.ErrInvalidState {
		t.Fatalf("error msg = %+v", em)
	}
}

func TestLeaveIgnoresStaleSession(t *testing.T) {
	a, _ := New(testConfig(7))
	a.handleAttach(AttachRequest{ActorID: alice, SessionID: "old", Out: make(chan []byte, 1)})
	a.handleAttach(AttachRequest{ActorID: alice, SessionID: "new", Out: make(chan []byte, 1)})
	a.handleLeave(leaveReq{ActorID: alice, SessionID: "old"})
	if a.clients[alice] == nil || a.clients[alice].SessionID != "new" {
		t.Fatalf("stale leave removed the live session")
	}
	a.handleLeave(leaveReq{ActorID: alice, SessionID: "new"})
	if a.clients[alice] != nil {
		t.Fatalf("leave did not detach")
	}
}

func drain(ch chan []byte) [][]byte {
	var out [][]byte
	for {
		select {
		case b := <-ch:
			out = append(out, b)
		default:
			return out
		}
	}
}

func TestRunServesSubmit(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var a *Arena
	dir := directoryFunc(func(q battle.OwnerQuery) {
		go func() {
			_ = a.DeliverOwnerReply(ctx, battle.OwnerReply{RequestID: q.RequestID, Kind: battle.ReplyOwner, Owner: alice})
		}()
	})
	a, _ = New(testConfig(8), WithPieceDirectory(dir))
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	r, err := a.Submit(ctx, alice, protocol.Register("pA", model.Attributes{}))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if r.Err != nil || r.Event.Kind != protocol.EvRegistered {
		t.Fatalf("result = %+v", r)
	}
	if _, err := a.RequestSnapshot(ctx); err == nil {
		t.Fatalf("snapshot without a sink should fail")
	}
	a.Stop()
	if err := <-done; err != nil {
		t.Fatalf("run: %v", err)
	}
}

type directoryFunc func(q battle.OwnerQuery)

func (f directoryFunc) RequestOwner(q battle.OwnerQuery) { f(q) }
