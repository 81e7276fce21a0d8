// Package indexdb mirrors the journal, audit trail and snapshots into a
// queryable sqlite read model. JSONL logs remain the source of truth.
package indexdb

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"tmgbattle.ai/internal/persistence/snapshot"
	"tmgbattle.ai/internal/protocol"
	"tmgbattle.ai/internal/sim/arena"
	"tmgbattle.ai/internal/sim/tuning"
)

type SQLiteIndex struct {
	db  *sql.DB
	log *zap.Logger

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropCycle    atomic.Uint64
	dropAudit    atomic.Uint64
	dropSnapshot atomic.Uint64
}

type reqKind int

const (
	reqCycle reqKind = iota + 1
	reqAudit
	reqSnapshot
)

type req struct {
	kind reqKind

	cycle    arena.CycleLogEntry
	audit    arena.AuditEntry
	snapshot snapshotRow
}

type snapshotRow struct {
	Cycle        uint64
	Path         string
	Seed         int64
	State        string
	Players      int
	Timers       int
	Deferred     int
	Reservations int
	GamesPlayed  uint64
}

// Stats reports queue pressure; writes are dropped rather than stalling the arena.
type Stats struct {
	QueueDepth        int    `json:"queue_depth"`
	QueueCapacity     int    `json:"queue_capacity"`
	DropCycleTotal    uint64 `json:"drop_cycle_total"`
	DropAuditTotal    uint64 `json:"drop_audit_total"`
	DropSnapshotTotal uint64 `json:"drop_snapshot_total"`
}

type Option func(*SQLiteIndex)

func WithLogger(l *zap.Logger) Option {
	return func(s *SQLiteIndex) {
		if l != nil {
			s.log = l
		}
	}
}

func WithQueueSize(n int) Option {
	return func(s *SQLiteIndex) {
		if n > 0 {
			s.ch = make(chan req, n)
		}
	}
}

func OpenSQLite(path string, opts ...Option) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db:  db,
		log: zap.NewNop(),
		ch:  make(chan req, 65536),
	}
	for _, o := range opts {
		o(s)
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS tuning (
			name TEXT PRIMARY KEY,
			digest TEXT NOT NULL,
			json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS cycles (
			cycle INTEGER PRIMARY KEY,
			digest TEXT NOT NULL,
			replies INTEGER NOT NULL,
			actions INTEGER NOT NULL,
			raw_json TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS actions (
			cycle INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			caller TEXT NOT NULL,
			action TEXT NOT NULL,
			act_json TEXT NOT NULL,
			PRIMARY KEY (cycle, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_actions_caller_cycle ON actions(caller, cycle);`,
		`CREATE TABLE IF NOT EXISTS audits (
			cycle INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			caller TEXT NOT NULL,
			action TEXT NOT NULL,
			result TEXT NOT NULL,
			error TEXT,
			raw_json TEXT NOT NULL,
			PRIMARY KEY (cycle, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_audits_caller_cycle ON audits(caller, cycle);`,
		`CREATE TABLE IF NOT EXISTS games (
			end_cycle INTEGER PRIMARY KEY,
			winner TEXT NOT NULL,
			final_mover TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			cycle INTEGER PRIMARY KEY,
			path TEXT NOT NULL,
			seed INTEGER NOT NULL,
			state TEXT NOT NULL,
			players INTEGER NOT NULL,
			timers INTEGER NOT NULL,
			deferred INTEGER NOT NULL,
			reservations INTEGER NOT NULL,
			games_played INTEGER NOT NULL
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:        len(s.ch),
		QueueCapacity:     cap(s.ch),
		DropCycleTotal:    s.dropCycle.Load(),
		DropAuditTotal:    s.dropAudit.Load(),
		DropSnapshotTotal: s.dropSnapshot.Load(),
	}
}

func (s *SQLiteIndex) WriteCycle(entry arena.CycleLogEntry) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	select {
	case s.ch <- req{kind: reqCycle, cycle: entry}:
	default:
		s.dropCycle.Add(1)
	}
	return nil
}

func (s *SQLiteIndex) WriteAudit(entry arena.AuditEntry) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	select {
	case s.ch <- req{kind: reqAudit, audit: entry}:
	default:
		s.dropAudit.Add(1)
	}
	return nil
}

func (s *SQLiteIndex) RecordSnapshot(path string, snap snapshot.SnapshotV1) {
	if s == nil || s.closed.Load() {
		return
	}
	r := snapshotRow{
		Cycle:        snap.Header.Cycle,
		Path:         path,
		Seed:         snap.Seed,
		State:        snap.Battle.State,
		Players:      len(snap.Battle.Players),
		Timers:       len(snap.Timers),
		Deferred:     len(snap.Deferred),
		Reservations: len(snap.Battle.Vouchers),
		GamesPlayed:  snap.Counters.GamesPlayed,
	}
	select {
	case s.ch <- req{kind: reqSnapshot, snapshot: r}:
	default:
		s.dropSnapshot.Add(1)
	}
}

// UpsertTuning stores the tuning actually applied, keyed by its digest.
func (s *SQLiteIndex) UpsertTuning(tune tuning.Tuning) error {
	if s == nil {
		return nil
	}
	b, err := json.Marshal(tune)
	if err != nil {
		return err
	}
	sum := sha256.Sum256(b)
	now := time.Now().UTC().Format(time.RFC3339Nano)

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`); err != nil {
		return err
	}
	if _, err := tx.Exec(`INSERT OR REPLACE INTO tuning(name,digest,json,updated_at) VALUES(?,?,?,?)`,
		"tuning", hex.EncodeToString(sum[:]), string(b), now); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertCycle, _ := s.db.Prepare(`INSERT OR REPLACE INTO cycles(cycle,digest,replies,actions,raw_json) VALUES(?,?,?,?,?)`)
	insertAction, _ := s.db.Prepare(`INSERT OR REPLACE INTO actions(cycle,seq,caller,action,act_json) VALUES(?,?,?,?,?)`)
	insertAudit, _ := s.db.Prepare(`INSERT OR REPLACE INTO audits(cycle,seq,caller,action,result,error,raw_json) VALUES(?,?,?,?,?,?,?)`)
	insertGame, _ := s.db.Prepare(`INSERT OR REPLACE INTO games(end_cycle,winner,final_mover) VALUES(?,?,?)`)
	insertSnapshot, _ := s.db.Prepare(`INSERT OR REPLACE INTO snapshots(cycle,path,seed,state,players,timers,deferred,reservations,games_played) VALUES(?,?,?,?,?,?,?,?,?)`)
	defer func() {
		for _, st := range []*sql.Stmt{insertCycle, insertAction, insertAudit, insertGame, insertSnapshot} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 2000
		commitMaxWait = 2 * time.Second

		lastAuditCycle uint64
		auditSeq       int
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			s.log.Warn("index begin failed", zap.Error(err))
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		if err := tx.Commit(); err != nil {
			s.log.Warn("index commit failed", zap.Error(err))
		}
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func(err error) {
		s.log.Warn("index write failed", zap.Error(err))
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	exec := func(st *sql.Stmt, args ...any) bool {
		if st == nil || tx == nil {
			return false
		}
		if _, err := tx.Stmt(st).Exec(args...); err != nil {
			rollback(err)
			return false
		}
		opCount++
		return true
	}

	for r := range s.ch {
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqCycle:
			c := r.cycle
			raw, _ := json.Marshal(c)
			if !exec(insertCycle, int64(c.Cycle), c.Digest, len(c.Replies), len(c.Actions), string(raw)) {
				continue
			}
			for i, a := range c.Actions {
				actJSON, _ := json.Marshal(a.Act)
				if !exec(insertAction, int64(c.Cycle), i, string(a.Caller), string(a.Act.Kind), string(actJSON)) {
					break
				}
			}

		case reqAudit:
			a := r.audit
			if a.Cycle != lastAuditCycle {
				lastAuditCycle = a.Cycle
				auditSeq = 0
			}
			seq := auditSeq
			auditSeq++
			raw, _ := json.Marshal(a)
			if !exec(insertAudit, int64(a.Cycle), seq, string(a.Caller), a.Action, a.Result, a.Error, string(raw)) {
				continue
			}
			if a.Result == string(protocol.EvGameIsOver) && a.Winner != "" {
				exec(insertGame, int64(a.Cycle), string(a.Winner), string(a.Caller))
			}

		case reqSnapshot:
			sn := r.snapshot
			exec(insertSnapshot, int64(sn.Cycle), sn.Path, sn.Seed, sn.State, sn.Players, sn.Timers, sn.Deferred, sn.Reservations, int64(sn.GamesPlayed))
		}
		if tx != nil && (opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait) {
			commit()
		}
	}

	commit()
}

// Game is one finished game as recorded in the index.
type Game struct {
	EndCycle   uint64 `json:"end_cycle"`
	Winner     string `json:"winner"`
	FinalMover string `json:"final_mover"`
}

// Games lists finished games, most recent first.
func (s *SQLiteIndex) Games(ctx context.Context, limit int) ([]Game, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `SELECT end_cycle, winner, final_mover FROM games ORDER BY end_cycle DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Game
	for rows.Next() {
		var g Game
		var end int64
		if err := rows.Scan(&end, &g.Winner, &g.FinalMover); err != nil {
			return nil, err
		}
		g.EndCycle = uint64(end)
		out = append(out, g)
	}
	return out, rows.Err()
}
