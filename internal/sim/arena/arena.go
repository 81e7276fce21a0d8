// Package arena hosts one battle aggregate on a single goroutine: it owns the
// cycle clock, the inbox, suspended registrations, delayed self-deliveries,
// the journal and snapshots.
package arena

import (
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"

	"tmgbattle.ai/internal/persistence/snapshot"
	"tmgbattle.ai/internal/protocol"
	"tmgbattle.ai/internal/sim/battle"
	"tmgbattle.ai/internal/sim/model"
	"tmgbattle.ai/internal/sim/rng"
)

type Config struct {
	ID   string
	Self model.ActorID

	CycleRateHz         int
	Seed                int64
	SnapshotEveryCycles int
	InboxSize           int

	Battle battle.Config
}

func (c *Config) applyDefaults() {
	if c.ID == "" {
		c.ID = "ARENA"
	}
	if c.Self == "" {
		c.Self = model.ActorID("arena:" + c.ID)
	}
	if c.CycleRateHz <= 0 {
		c.CycleRateHz = 5
	}
	if c.InboxSize <= 0 {
		c.InboxSize = 1024
	}
}

// Envelope is one inbound action. Resp, when set, receives the invocation
// result; otherwise the result goes to the caller's attached client.
type Envelope struct {
	Caller model.ActorID
	Ref    string
	Act    protocol.Action
	Resp   chan Result
}

type Result struct {
	Cycle uint64
	Event *protocol.Event
	Err   error
}

type RecordedAction struct {
	Caller model.ActorID   `json:"caller"`
	Ref    string          `json:"ref,omitempty"`
	Act    protocol.Action `json:"act"`
}

// CycleLogEntry journals the inputs of one cycle. Delayed deliveries and
// deferrals are derived from them, so replaying entries in order is exact.
type CycleLogEntry struct {
	Cycle   uint64              `json:"cycle"`
	Replies []battle.OwnerReply `json:"replies,omitempty"`
	Actions []RecordedAction    `json:"actions,omitempty"`
	Digest  string              `json:"digest"`
}

type CycleLogger interface {
	WriteCycle(entry CycleLogEntry) error
}

// AuditEntry records the result of one invocation.
type AuditEntry struct {
	Cycle  uint64        `json:"cycle"`
	Caller model.ActorID `json:"caller"`
	Action string        `json:"action"`
	Result string        `json:"result"`
	Error  string        `json:"error,omitempty"`
	Winner model.PieceID `json:"winner,omitempty"`
}

type AuditLogger interface {
	WriteAudit(entry AuditEntry) error
}

type clientState struct {
	Out       chan []byte
	SessionID string
}

// Arena is single-threaded: every field below the channels is touched only by
// the loop goroutine (or by StepOnce when no loop is running).
type Arena struct {
	cfg Config
	log *zap.Logger

	cycle atomic.Uint64

	battle  *battle.Battle
	entropy *rng.HashSource
	pieces  PieceDirectory

	clients map[model.ActorID]*clientState

	timers       []timer
	nextTimerSeq uint64
	suspended    *Envelope
	deferred     []Envelope
	gamesPlayed  uint64

	inbox   chan Envelope
	replies chan battle.OwnerReply
	attach  chan AttachRequest
	leave   chan leaveReq
	admin   chan adminSnapshotReq
	stop    chan struct{}

	cycleLogger  CycleLogger
	auditLogger  AuditLogger
	snapshotSink chan<- snapshot.SnapshotV1

	metrics   atomic.Value
	stateView atomic.Value

	stepInvocations uint64
	stepRejections  uint64
	invocations     uint64
	rejections      uint64
}

type Option func(*Arena)

func WithLogger(l *zap.Logger) Option {
	return func(a *Arena) {
		if l != nil {
			a.log = l
		}
	}
}

func WithPieceDirectory(d PieceDirectory) Option { return func(a *Arena) { a.pieces = d } }

func WithCycleLogger(l CycleLogger) Option { return func(a *Arena) { a.cycleLogger = l } }

func WithAuditLogger(l AuditLogger) Option { return func(a *Arena) { a.auditLogger = l } }

func WithSnapshotSink(ch chan<- snapshot.SnapshotV1) Option {
	return func(a *Arena) { a.snapshotSink = ch }
}

// New builds an arena around a fresh battle.
func New(cfg Config, opts ...Option) (*Arena, error) {
	cfg.applyDefaults()
	b, err := battle.New(cfg.Battle)
	if err != nil {
		return nil, err
	}
	return newArena(cfg, b, opts), nil
}

func newArena(cfg Config, b *battle.Battle, opts []Option) *Arena {
	a := &Arena{
		cfg:     cfg,
		log:     zap.NewNop(),
		battle:  b,
		entropy: rng.NewHashSource(cfg.Seed),
		clients: map[model.ActorID]*clientState{},
		inbox:   make(chan Envelope, cfg.InboxSize),
		replies: make(chan battle.OwnerReply, 64),
		attach:  make(chan AttachRequest, 16),
		leave:   make(chan leaveReq, 16),
		admin:   make(chan adminSnapshotReq, 4),
		stop:    make(chan struct{}),
	}
	for _, o := range opts {
		o(a)
	}
	a.log = a.log.With(zap.String("arena", cfg.ID))
	a.publish(0)
	return a
}

func (a *Arena) ID() string {
	if a == nil {
		return ""
	}
	return a.cfg.ID
}

func (a *Arena) Self() model.ActorID { return a.cfg.Self }

func (a *Arena) CycleRateHz() int {
	if a == nil {
		return 0
	}
	return a.cfg.CycleRateHz
}

func (a *Arena) CurrentCycle() uint64 { return a.cycle.Load() }

// View returns the battle state as of the last completed cycle. Safe from any goroutine.
func (a *Arena) View() battle.View {
	if v, ok := a.stateView.Load().(battle.View); ok {
		return v
	}
	return battle.View{}
}

func (a *Arena) Params() protocol.ArenaParams {
	bc := a.battle.Config()
	return protocol.ArenaParams{
		CycleRateHz:       a.cfg.CycleRateHz,
		RoundStepLimit:    bc.RoundStepLimit,
		UpdateDelayCycles: bc.UpdateDelay,
	}
}

func (a *Arena) String() string { return fmt.Sprintf("arena(%s)", a.cfg.ID) }
