package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	persistlog "tmgbattle.ai/internal/persistence/log"
	"tmgbattle.ai/internal/persistence/snapshot"
	"tmgbattle.ai/internal/sim/arena"
	"tmgbattle.ai/internal/sim/tuning"
)

func main() {
	var (
		arenaDir   = flag.String("arena_dir", "", "arena data dir containing events/events-*.jsonl.zst")
		snapPath   = flag.String("snapshot", "", "path to .snap.zst to start from (optional; default genesis)")
		arenaID    = flag.String("arena", "arena_1", "arena id (genesis replays only)")
		seed       = flag.Int64("seed", 1337, "entropy seed (genesis replays only)")
		tuningPath = flag.String("tuning", "./configs/tuning.yaml", "path to tuning.yaml")
		toCycle    = flag.Uint64("to_cycle", 0, "stop after cycle (inclusive, optional)")
	)
	flag.Parse()

	if *arenaDir == "" {
		fmt.Fprintln(os.Stderr, "missing -arena_dir")
		os.Exit(2)
	}
	tune, err := tuning.Load(*tuningPath)
	if errors.Is(err, os.ErrNotExist) {
		tune, err = tuning.Defaults(), nil
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "load tuning:", err)
		os.Exit(1)
	}

	cfg := arena.Config{
		ID:          *arenaID,
		Seed:        *seed,
		CycleRateHz: tune.CycleRateHz,
		Battle:      tune.BattleConfig(),
	}
	if err := replay(os.Stdout, cfg, *arenaDir, *snapPath, *toCycle); err != nil {
		fmt.Fprintln(os.Stderr, "replay:", err)
		os.Exit(1)
	}
}

// replay rebuilds the arena (from genesis or a snapshot) and re-applies every
// journaled cycle, failing on the first digest mismatch.
func replay(out io.Writer, cfg arena.Config, arenaDir, snapPath string, toCycle uint64) error {
	var (
		a    *arena.Arena
		from uint64
		err  error
	)
	if snapPath != "" {
		snap, err := snapshot.ReadSnapshot(snapPath)
		if err != nil {
			return fmt.Errorf("read snapshot: %w", err)
		}
		fmt.Fprintf(out, "snapshot v%d arena=%s cycle=%d seed=%d players=%d timers=%d deferred=%d\n",
			snap.Header.Version, snap.Header.ArenaID, snap.Header.Cycle, snap.Seed,
			len(snap.Battle.Players), len(snap.Timers), len(snap.Deferred))
		a, err = arena.NewFromSnapshot(cfg, snap)
		if err != nil {
			return fmt.Errorf("restore: %w", err)
		}
		from = snap.Header.Cycle + 1
	} else {
		a, err = arena.New(cfg)
		if err != nil {
			return err
		}
	}

	entries, err := persistlog.ReadCycleLog(arenaDir, from)
	if err != nil {
		return fmt.Errorf("read journal: %w", err)
	}
	if len(entries) == 0 {
		return fmt.Errorf("no journal entries at or after cycle %d in %s", from, arenaDir)
	}

	var checked uint64
	for _, e := range entries {
		if toCycle != 0 && e.Cycle > toCycle {
			break
		}
		if err := a.ReplayEntry(e); err != nil {
			return err
		}
		checked++
	}
	v := a.View()
	fmt.Fprintf(out, "replay ok: checked=%d cycles (from cycle=%d) state=%s winner=%s\n", checked, from, v.State, v.Winner)
	return nil
}
