package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"tmgbattle.ai/internal/config"
	"tmgbattle.ai/internal/logging"
	"tmgbattle.ai/internal/persistence/indexdb"
	persistlog "tmgbattle.ai/internal/persistence/log"
	"tmgbattle.ai/internal/persistence/snapshot"
	"tmgbattle.ai/internal/pieces"
	"tmgbattle.ai/internal/sim/arena"
	"tmgbattle.ai/internal/sim/tuning"
	"tmgbattle.ai/internal/transport/ws"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		arenaID    = flag.String("arena", "arena_1", "arena id")
		seed       = flag.Int64("seed", 1337, "entropy seed (used only when starting a fresh arena)")
		configDir  = flag.String("configs", "./configs", "config directory")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		piecesPath = flag.String("pieces", "", "path to pieces.yaml (default: <configs>/pieces.yaml)")
		disableDB  = flag.Bool("disable_db", false, "disable the sqlite read model")

		snapPath   = flag.String("snapshot", "", "path to snapshot to load (optional)")
		loadLatest = flag.Bool("load_latest_snapshot", true, "load latest snapshot from data dir if present (when -snapshot is empty)")
	)
	flag.Parse()

	envCfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	logger, err := logging.New(envCfg.LogLevel, envCfg.LogFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	defer func() { _ = logger.Sync() }()
	if envCfg.Seed != 0 {
		*seed = envCfg.Seed
	}

	if err := run(serverOptions{
		Addr:            *addr,
		ArenaID:         *arenaID,
		Seed:            *seed,
		ConfigDir:       *configDir,
		DataDir:         *dataDir,
		TuningPath:      *tuningPath,
		PiecesPath:      *piecesPath,
		DisableDB:       *disableDB,
		SnapshotPath:    *snapPath,
		LoadLatest:      *loadLatest,
		EnableAdminHTTP: envCfg.EnableAdminHTTP,
	}, logger); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

type serverOptions struct {
	Addr            string
	ArenaID         string
	Seed            int64
	ConfigDir       string
	DataDir         string
	TuningPath      string
	PiecesPath      string
	DisableDB       bool
	SnapshotPath    string
	LoadLatest      bool
	EnableAdminHTTP bool
}

func run(opts serverOptions, logger *zap.Logger) error {
	arenaDir := filepath.Join(opts.DataDir, "arenas", opts.ArenaID)
	if err := os.MkdirAll(arenaDir, 0o755); err != nil {
		return err
	}

	tp := strings.TrimSpace(opts.TuningPath)
	if tp == "" {
		tp = filepath.Join(opts.ConfigDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if errors.Is(err, os.ErrNotExist) {
		logger.Warn("tuning not found; using defaults", zap.String("path", tp))
		tune, err = tuning.Defaults(), nil
	}
	if err != nil {
		return fmt.Errorf("load tuning: %w", err)
	}
	bcfg := tune.BattleConfig()

	pp := strings.TrimSpace(opts.PiecesPath)
	if pp == "" {
		pp = filepath.Join(opts.ConfigDir, "pieces.yaml")
	}
	owners, err := pieces.Load(pp)
	if errors.Is(err, os.ErrNotExist) {
		logger.Warn("pieces not found; every registration will fail to decode", zap.String("path", pp))
		err = nil
	}
	if err != nil {
		return fmt.Errorf("load pieces: %w", err)
	}
	dir := pieces.New(owners, logger)

	var idx *indexdb.SQLiteIndex
	if !opts.DisableDB {
		idx, err = indexdb.OpenSQLite(filepath.Join(arenaDir, "index", "arena.sqlite"), indexdb.WithLogger(logger.Named("index")))
		if err != nil {
			return fmt.Errorf("open index: %w", err)
		}
		defer idx.Close()
		if err := idx.UpsertTuning(tune); err != nil {
			logger.Warn("index tuning upsert failed", zap.Error(err))
		}
	}

	cycleLog := persistlog.NewCycleLogger(arenaDir)
	auditLog := persistlog.NewAuditLogger(arenaDir)
	defer cycleLog.Close()
	defer auditLog.Close()

	snapCh := make(chan snapshot.SnapshotV1, 2)
	arenaOpts := []arena.Option{
		arena.WithLogger(logger),
		arena.WithPieceDirectory(dir),
		arena.WithSnapshotSink(snapCh),
	}
	if idx != nil {
		arenaOpts = append(arenaOpts,
			arena.WithCycleLogger(multiCycleLogger{cycleLog, idx}),
			arena.WithAuditLogger(multiAuditLogger{auditLog, idx}))
	} else {
		arenaOpts = append(arenaOpts,
			arena.WithCycleLogger(cycleLog),
			arena.WithAuditLogger(auditLog))
	}

	cfg := arena.Config{
		ID:                  opts.ArenaID,
		CycleRateHz:         tune.CycleRateHz,
		Seed:                opts.Seed,
		SnapshotEveryCycles: tune.SnapshotEveryCycles,
		InboxSize:           tune.InboxSize,
		Battle:              bcfg,
	}

	snapshotToLoad := strings.TrimSpace(opts.SnapshotPath)
	if snapshotToLoad == "" && opts.LoadLatest {
		snapshotToLoad = latestSnapshot(arenaDir)
	}
	var a *arena.Arena
	if snapshotToLoad != "" {
		snap, err := snapshot.ReadSnapshot(snapshotToLoad)
		if err != nil {
			return fmt.Errorf("read snapshot: %w", err)
		}
		if snap.Header.ArenaID != "" && snap.Header.ArenaID != opts.ArenaID {
			return fmt.Errorf("snapshot arena id mismatch: flag=%s snap=%s", opts.ArenaID, snap.Header.ArenaID)
		}
		a, err = arena.NewFromSnapshot(cfg, snap, arenaOpts...)
		if err != nil {
			return fmt.Errorf("restore arena: %w", err)
		}
		logger.Info("resumed from snapshot", zap.String("snapshot", filepath.Base(snapshotToLoad)), zap.Uint64("cycle", a.CurrentCycle()))
	} else {
		a, err = arena.New(cfg, arenaOpts...)
		if err != nil {
			return fmt.Errorf("arena: %w", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return ignoreCanceled(a.Run(ctx)) })
	g.Go(func() error { return ignoreCanceled(dir.Run(ctx, a)) })
	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case snap := <-snapCh:
				path := filepath.Join(arenaDir, "snapshots", fmt.Sprintf("%d.snap.zst", snap.Header.Cycle))
				if err := snapshot.WriteSnapshot(path, snap); err != nil {
					logger.Error("snapshot write failed", zap.Error(err))
					continue
				}
				logger.Info("snapshot written", zap.String("path", path))
				idx.RecordSnapshot(path, snap)
			}
		}
	})

	mux := newMux(a, idx, ws.NewServer(a, logger), opts.EnableAdminHTTP, logger)
	srv := &http.Server{
		Addr:              opts.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	g.Go(func() error {
		<-ctx.Done()
		ctx2, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(ctx2)
	})
	g.Go(func() error {
		logger.Info("listening", zap.String("addr", opts.Addr), zap.String("arena", a.ID()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	return g.Wait()
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func latestSnapshot(arenaDir string) string {
	dir := filepath.Join(arenaDir, "snapshots")
	ents, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	var best string
	var bestCycle uint64
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".snap.zst") {
			continue
		}
		cycle, err := strconv.ParseUint(strings.TrimSuffix(name, ".snap.zst"), 10, 64)
		if err != nil {
			continue
		}
		if best == "" || cycle > bestCycle {
			bestCycle = cycle
			best = filepath.Join(dir, name)
		}
	}
	return best
}

type multiCycleLogger []arena.CycleLogger

func (m multiCycleLogger) WriteCycle(entry arena.CycleLogEntry) error {
	var errs []error
	for _, l := range m {
		if err := l.WriteCycle(entry); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type multiAuditLogger []arena.AuditLogger

func (m multiAuditLogger) WriteAudit(entry arena.AuditEntry) error {
	var errs []error
	for _, l := range m {
		if err := l.WriteAudit(entry); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
