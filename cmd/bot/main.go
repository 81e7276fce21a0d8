package main

import (
	"encoding/json"
	"flag"
	"math/rand"
	"os"
	"os/signal"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"tmgbattle.ai/internal/logging"
	"tmgbattle.ai/internal/protocol"
	"tmgbattle.ai/internal/sim/model"
)

func main() {
	var (
		url      = flag.String("url", "ws://localhost:8080/v1/ws", "ws url")
		actor    = flag.String("actor", "alice", "actor id")
		piece    = flag.String("piece", "piece-1", "piece to register")
		interval = flag.Duration("interval", 500*time.Millisecond, "move interval")
	)
	flag.Parse()

	logger, err := logging.New("info", "console")
	if err != nil {
		panic(err)
	}
	logger = logger.Named("bot")

	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatal("dial", zap.Error(err))
	}
	defer conn.Close()

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		ActorID:         model.ActorID(*actor),
		Capabilities:    protocol.HelloCapabilities{MaxQueue: 16},
	}
	if err := conn.WriteJSON(hello); err != nil {
		logger.Fatal("send HELLO", zap.Error(err))
	}

	incoming := make(chan []byte, 16)
	go func() {
		defer close(incoming)
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			incoming <- msg
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	b := &bot{piece: model.PieceID(*piece), rnd: rand.New(rand.NewSource(time.Now().UnixNano()))}
	send := func(acts []protocol.Action) {
		for _, a := range acts {
			b.seq++
			msg := protocol.ActMsg{Type: protocol.TypeAct, ProtocolVersion: protocol.Version, Ref: strconv.Itoa(b.seq), Action: a}
			if err := conn.WriteJSON(msg); err != nil {
				logger.Warn("send ACT", zap.Error(err))
			}
		}
	}

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			send(b.tick())
		case msg, ok := <-incoming:
			if !ok {
				logger.Info("connection closed")
				return
			}
			send(b.handle(logger, msg))
		}
	}
}

// bot keeps just enough state to play: whether it is seated and whether the
// round is open. Moves out of turn are rejected by the arena and ignored here.
type bot struct {
	piece  model.PieceID
	rnd    *rand.Rand
	seq    int
	seated bool
	moving bool
}

func (b *bot) handle(logger *zap.Logger, msg []byte) []protocol.Action {
	base, err := protocol.DecodeBase(msg)
	if err != nil {
		return nil
	}
	switch base.Type {
	case protocol.TypeWelcome:
		var w protocol.WelcomeMsg
		if err := json.Unmarshal(msg, &w); err != nil {
			return nil
		}
		logger.Info("WELCOME", zap.String("arena", w.ArenaID), zap.Uint64("cycle", w.Cycle), zap.Int("cycle_rate_hz", w.Params.CycleRateHz))
		return []protocol.Action{protocol.Register(b.piece, model.SlotsOf(1, 5, 4))}

	case protocol.TypeError:
		var em protocol.ErrorMsg
		if err := json.Unmarshal(msg, &em); err == nil && em.Code != protocol.ErrUnauthorized {
			logger.Info("ERROR", zap.String("ref", em.Ref), zap.String("code", em.Code), zap.String("message", em.Message))
		}

	case protocol.TypeEvent:
		var ev protocol.EventMsg
		if err := json.Unmarshal(msg, &ev); err != nil {
			return nil
		}
		logger.Info("EVENT", zap.String("event", string(ev.Kind)), zap.String("ref", ev.Ref), zap.Uint64("cycle", ev.Cycle))
		return b.onEvent(ev.Event)
	}
	return nil
}

func (b *bot) onEvent(ev protocol.Event) []protocol.Action {
	switch ev.Kind {
	case protocol.EvRegistered:
		b.seated = true
		b.moving = true
	case protocol.EvInfoUpdated:
		b.moving = true
	case protocol.EvGoToWaitingState:
		b.moving = false
	case protocol.EvMoveMade, protocol.EvOpponentDodgedTheAttack:
		// Round is over after our move if the arena says so separately.
	case protocol.EvGameIsOver:
		b.seated = false
		b.moving = false
		return []protocol.Action{protocol.StartNewGame(), protocol.Register(b.piece, model.SlotsOf(1, 5, 4))}
	}
	return nil
}

func (b *bot) tick() []protocol.Action {
	if !b.seated || !b.moving {
		return nil
	}
	return []protocol.Action{protocol.Move(model.Direction(b.rnd.Intn(2)))}
}
