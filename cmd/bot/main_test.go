package main

import (
	"math/rand"
	"testing"

	"tmgbattle.ai/internal/protocol"
)

func TestBotFollowsRounds(t *testing.T) {
	b := &bot{piece: "p1", rnd: rand.New(rand.NewSource(1))}
	if acts := b.tick(); len(acts) != 0 {
		t.Fatalf("unseated bot moved: %v", acts)
	}

	b.onEvent(protocol.Event{Kind: protocol.EvRegistered, PieceID: "p1"})
	acts := b.tick()
	if len(acts) != 1 || acts[0].Kind != protocol.ActMove || acts[0].Direction == nil {
		t.Fatalf("tick = %+v", acts)
	}

	b.onEvent(protocol.Event{Kind: protocol.EvGoToWaitingState})
	if len(b.tick()) != 0 {
		t.Fatalf("bot moved while waiting")
	}
	b.onEvent(protocol.Event{Kind: protocol.EvInfoUpdated})
	if len(b.tick()) != 1 {
		t.Fatalf("bot idle after wake-up")
	}

	acts = b.onEvent(protocol.Event{Kind: protocol.EvGameIsOver})
	if len(acts) != 2 || acts[0].Kind != protocol.ActStartNewGame || acts[1].Kind != protocol.ActRegister {
		t.Fatalf("game over response = %+v", acts)
	}
	if len(b.tick()) != 0 {
		t.Fatalf("bot moved after game over")
	}
}
