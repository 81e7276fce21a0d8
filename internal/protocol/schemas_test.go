package protocol_test

import (
	"encoding/json"
	"testing"

	"tmgbattle.ai/internal/protocol"
	"tmgbattle.ai/internal/sim/model"
)

func TestSchemas_ValidateSamples(t *testing.T) {
	samples := []struct {
		typ string
		raw string
	}{
		{protocol.TypeHello, `{"type":"HELLO","protocol_version":"1.0","actor_id":"alice","capabilities":{"max_queue":8}}`},
		{protocol.TypeWelcome, `{
		  "type":"WELCOME","protocol_version":"1.0","session_id":"s1","arena_id":"ARENA","actor_id":"alice","cycle":3,
		  "params":{"cycle_rate_hz":5,"round_step_limit":4,"update_delay_cycles":10}
		}`},
		{protocol.TypeAct, `{"type":"ACT","protocol_version":"1.0","ref":"r1","action":"REGISTER","piece_id":"p1","attributes":[1,null,5]}`},
		{protocol.TypeAct, `{"type":"ACT","protocol_version":"1.0","action":"MOVE","direction":"LEFT"}`},
		{protocol.TypeAct, `{"type":"ACT","protocol_version":"1.0","action":"RESERVE_GAS","amount":100,"duration":50}`},
		{protocol.TypeAct, `{"type":"ACT","protocol_version":"1.0","action":"START_NEW_GAME"}`},
		{protocol.TypeEvent, `{"type":"EVENT","protocol_version":"1.0","ref":"r1","cycle":9,"event":"REGISTERED","piece_id":"p1"}`},
		{protocol.TypeError, `{"type":"ERROR","protocol_version":"1.0","ref":"r2","code":"E_INVALID_STATE","message":"battle: invalid state"}`},
	}
	for _, s := range samples {
		if err := protocol.Validate(s.typ, []byte(s.raw)); err != nil {
			t.Fatalf("%s sample rejected: %v\n%s", s.typ, err, s.raw)
		}
	}
}

func TestSchemas_RejectMissingActionFields(t *testing.T) {
	bad := []string{
		`{"type":"ACT","protocol_version":"1.0","action":"MOVE"}`,
		`{"type":"ACT","protocol_version":"1.0","action":"MOVE","direction":"UP"}`,
		`{"type":"ACT","protocol_version":"1.0","action":"REGISTER"}`,
		`{"type":"ACT","protocol_version":"1.0","action":"SEND_NEW_ATTRIBUTES"}`,
		`{"type":"ACT","protocol_version":"1.0","action":"RESERVE_GAS","amount":1}`,
		`{"type":"ACT","protocol_version":"1.0","action":"FLY"}`,
		`{"type":"ACT","protocol_version":"1.0","action":"REGISTER","piece_id":"p","attributes":[1,2,3,4]}`,
	}
	for _, raw := range bad {
		if err := protocol.ValidateAct([]byte(raw)); err == nil {
			t.Fatalf("expected rejection: %s", raw)
		}
	}
}

func TestSchemas_GoValuesRoundTrip(t *testing.T) {
	msgs := []struct {
		typ string
		v   any
	}{
		{protocol.TypeAct, protocol.ActMsg{Type: protocol.TypeAct, ProtocolVersion: protocol.Version, Ref: "a",
			Action: protocol.Register("p1", model.SlotsOf(0, 3))}},
		{protocol.TypeAct, protocol.ActMsg{Type: protocol.TypeAct, ProtocolVersion: protocol.Version,
			Action: protocol.Move(model.Left)}},
		{protocol.TypeAct, protocol.ActMsg{Type: protocol.TypeAct, ProtocolVersion: protocol.Version,
			Action: protocol.ReserveGas(10, 20)}},
		{protocol.TypeEvent, protocol.NewEventMsg("a", 4, protocol.Event{Kind: protocol.EvRegistered, PieceID: "p1"})},
		{protocol.TypeError, protocol.NewErrorMsg("a", protocol.ErrUnauthorized, "nope")},
	}
	for _, m := range msgs {
		raw, err := json.Marshal(m.v)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		if err := protocol.Validate(m.typ, raw); err != nil {
			t.Fatalf("%s: %v\n%s", m.typ, err, raw)
		}
	}
}
