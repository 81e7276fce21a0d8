package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"tmgbattle.ai/internal/protocol"
	"tmgbattle.ai/internal/sim/arena"
	"tmgbattle.ai/internal/sim/battle"
)

type ownerEcho struct {
	ctx   context.Context
	arena *arena.Arena
}

func (d *ownerEcho) RequestOwner(q battle.OwnerQuery) {
	go func() {
		_ = d.arena.DeliverOwnerReply(d.ctx, battle.OwnerReply{RequestID: q.RequestID, Kind: battle.ReplyOwner, Owner: "alice"})
	}()
}

func startArena(t *testing.T) (*arena.Arena, *httptest.Server) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	dir := &ownerEcho{ctx: ctx}
	a, err := arena.New(arena.Config{ID: "WS", CycleRateHz: 100, Battle: battle.DefaultConfig()}, arena.WithPieceDirectory(dir))
	if err != nil {
		t.Fatal(err)
	}
	dir.arena = a
	go func() { _ = a.Run(ctx) }()
	srv := httptest.NewServer(NewServer(a, nil).Handler())
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return a, srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readMsg(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, b, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatalf("decode %s: %v", b, err)
	}
	return m
}

func hello(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	err := conn.WriteJSON(protocol.HelloMsg{Type: protocol.TypeHello, ProtocolVersion: protocol.Version, ActorID: "alice"})
	if err != nil {
		t.Fatal(err)
	}
	return readMsg(t, conn)
}

func TestSessionRegistersOverWebSocket(t *testing.T) {
	_, srv := startArena(t)
	conn := dial(t, srv)

	w := hello(t, conn)
	if w["type"] != protocol.TypeWelcome || w["arena_id"] != "WS" || w["session_id"] == "" {
		t.Fatalf("welcome = %v", w)
	}

	err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ACT","protocol_version":"1.0","ref":"r1","action":"REGISTER","piece_id":"p1","attributes":[null,1]}`))
	if err != nil {
		t.Fatal(err)
	}
	ev := readMsg(t, conn)
	if ev["type"] != protocol.TypeEvent || ev["ref"] != "r1" || ev["event"] != string(protocol.EvRegistered) || ev["piece_id"] != "p1" {
		t.Fatalf("event = %v", ev)
	}
}

func TestInvalidActGetsProtocolError(t *testing.T) {
	_, srv := startArena(t)
	conn := dial(t, srv)
	hello(t, conn)

	_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ACT","protocol_version":"1.0","ref":"r2","action":"MOVE"}`))
	em := readMsg(t, conn)
	if em["type"] != protocol.TypeError || em["ref"] != "r2" || em["code"] != protocol.ErrProtoBadRequest {
		t.Fatalf("error = %v", em)
	}
}

func TestRuleRejectionCarriesCode(t *testing.T) {
	_, srv := startArena(t)
	conn := dial(t, srv)
	hello(t, conn)

	_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ACT","protocol_version":"1.0","ref":"r3","action":"MOVE","direction":"LEFT"}`))
	em := readMsg(t, conn)
	if em["type"] != protocol.TypeError || em["ref"] != "r3" || em["code"] != protocol.ErrInvalidState {
		t.Fatalf("error = %v", em)
	}
}

func TestHandshakeRequiresHello(t *testing.T) {
	_, srv := startArena(t)
	conn := dial(t, srv)
	_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ACT","protocol_version":"1.0","action":"UPDATE_INFO"}`))
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatalf("expected the server to close the connection")
	}
}

func TestHandshakeRefusesArenaIdentity(t *testing.T) {
	a, srv := startArena(t)
	conn := dial(t, srv)
	err := conn.WriteJSON(protocol.HelloMsg{Type: protocol.TypeHello, ProtocolVersion: protocol.Version, ActorID: a.Self()})
	if err != nil {
		t.Fatal(err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err == nil {
		t.Fatalf("arena identity was welcomed: %s", msg)
	}
	var ce *websocket.CloseError
	if errors.As(err, &ce) && ce.Text != "actor_id is reserved" {
		t.Fatalf("close reason = %q", ce.Text)
	}
}
