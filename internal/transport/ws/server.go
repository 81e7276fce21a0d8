// Package ws serves the arena's client protocol over WebSocket.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"tmgbattle.ai/internal/protocol"
	"tmgbattle.ai/internal/sim/arena"
	"tmgbattle.ai/internal/sim/model"
)

type Server struct {
	arena *arena.Arena
	log   *zap.Logger

	upgrader websocket.Upgrader
}

func NewServer(a *arena.Arena, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		arena: a,
		log:   logger.Named("ws"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		actorID, sessionID, out := s.handshake(ctx, conn)
		if actorID == "" {
			return
		}
		log := s.log.With(zap.String("actor_id", string(actorID)), zap.String("session_id", sessionID))
		log.Info("session attached")
		defer func() {
			s.arena.Leave(actorID, sessionID)
			log.Info("session detached")
		}()

		// Writer goroutine; the only writer after the handshake.
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case b := <-out:
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			s.handleMessage(log, actorID, msg, out)
		}
	}
}

func (s *Server) handleMessage(log *zap.Logger, actorID model.ActorID, msg []byte, out chan []byte) {
	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeAct {
		return
	}
	var act protocol.ActMsg
	if err := json.Unmarshal(msg, &act); err != nil {
		queue(out, protocol.NewErrorMsg("", protocol.ErrProtoBadRequest, "malformed ACT"))
		return
	}
	if act.ProtocolVersion != protocol.Version {
		queue(out, protocol.NewErrorMsg(act.Ref, protocol.ErrProtoBadRequest, "bad protocol_version"))
		return
	}
	if err := protocol.ValidateAct(msg); err != nil {
		log.Debug("invalid ACT", zap.Error(err))
		queue(out, protocol.NewErrorMsg(act.Ref, protocol.ErrProtoBadRequest, err.Error()))
		return
	}
	err = s.arena.Enqueue(arena.Envelope{Caller: actorID, Ref: act.Ref, Act: act.Action})
	switch {
	case err == nil:
	case errors.Is(err, arena.ErrReservedCaller):
		queue(out, protocol.NewErrorMsg(act.Ref, protocol.ErrUnauthorized, err.Error()))
	default:
		log.Warn("arena busy", zap.Error(err))
		queue(out, protocol.NewErrorMsg(act.Ref, protocol.ErrArenaBusy, err.Error()))
	}
}

func (s *Server) handshake(ctx context.Context, conn *websocket.Conn) (model.ActorID, string, chan []byte) {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return "", "", nil
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		closeWith(conn, "expected HELLO")
		return "", "", nil
	}
	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil || protocol.Validate(protocol.TypeHello, msg) != nil {
		closeWith(conn, "bad HELLO")
		return "", "", nil
	}
	if hello.ProtocolVersion != protocol.Version {
		closeWith(conn, "bad protocol_version")
		return "", "", nil
	}
	if hello.ActorID == s.arena.Self() {
		closeWith(conn, "actor_id is reserved")
		return "", "", nil
	}

	maxQ := hello.Capabilities.MaxQueue
	if maxQ <= 0 {
		maxQ = 16
	}
	if maxQ > 256 {
		maxQ = 256
	}
	out := make(chan []byte, maxQ)
	sessionID := uuid.NewString()

	welcome, err := s.arena.Attach(ctx, hello.ActorID, sessionID, out)
	if err != nil {
		return "", "", nil
	}
	if err := writeJSON(conn, welcome); err != nil {
		s.arena.Leave(hello.ActorID, sessionID)
		return "", "", nil
	}
	return hello.ActorID, sessionID, out
}

func queue(out chan []byte, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	select {
	case out <- b:
	default:
	}
}

func closeWith(conn *websocket.Conn, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason), time.Now().Add(time.Second))
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}
