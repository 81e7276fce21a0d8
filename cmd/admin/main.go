package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"tmgbattle.ai/internal/persistence/snapshot"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "snapshots":
			snapshotsCmd(os.Args[2:])
			return
		case "db":
			dbCmd(os.Args[2:])
			return
		case "state":
			stateCmd(os.Args[2:])
			return
		case "snapshot":
			snapshotCmd(os.Args[2:])
			return
		}
	}
	listCmd(os.Args[1:])
}

func listCmd(args []string) {
	fs := flag.NewFlagSet("admin", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	_ = fs.Parse(args)

	entries, err := os.ReadDir(filepath.Join(*dataDir, "arenas"))
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}
	for _, e := range entries {
		if e.IsDir() {
			fmt.Println(e.Name())
		}
	}
}

// snapshotsCmd prints the header of every snapshot of one arena, oldest first.
func snapshotsCmd(args []string) {
	fs := flag.NewFlagSet("snapshots", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	arenaID := fs.String("arena", "arena_1", "arena id")
	_ = fs.Parse(args)

	lines, err := listSnapshots(filepath.Join(*dataDir, "arenas", *arenaID))
	if err != nil {
		fmt.Fprintln(os.Stderr, "snapshots:", err)
		os.Exit(1)
	}
	for _, l := range lines {
		fmt.Println(l)
	}
}

func listSnapshots(arenaDir string) ([]string, error) {
	paths, err := filepath.Glob(filepath.Join(arenaDir, "snapshots", "*.snap.zst"))
	if err != nil {
		return nil, err
	}
	type row struct {
		h    snapshot.Header
		name string
	}
	var rows []row
	for _, p := range paths {
		h, err := snapshot.ReadHeader(p)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(p), err)
		}
		rows = append(rows, row{h: h, name: filepath.Base(p)})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].h.Cycle < rows[j].h.Cycle })
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, strings.Join([]string{
			r.name,
			fmt.Sprintf("v%d", r.h.Version),
			"arena=" + r.h.ArenaID,
			fmt.Sprintf("cycle=%d", r.h.Cycle),
		}, " "))
	}
	return out, nil
}
