package main

import (
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	arenaID := fs.String("arena", "arena_1", "arena id")
	dbPath := fs.String("db", "", "sqlite db path (optional)")
	limit := fs.Int("limit", 20, "result limit")
	caller := fs.String("caller", "", "caller filter (audits)")
	_ = fs.Parse(args)

	q := "games"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}
	path := strings.TrimSpace(*dbPath)
	if path == "" {
		path = filepath.Join(*dataDir, "arenas", *arenaID, "index", "arena.sqlite")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := runQuery(os.Stdout, db, q, *limit, *caller); err != nil {
		fmt.Fprintln(os.Stderr, "query:", err)
		os.Exit(1)
	}
}

// runQuery prints one JSON object per row.
func runQuery(w io.Writer, db *sql.DB, q string, limit int, caller string) error {
	if limit <= 0 {
		limit = 20
	}
	var (
		rows *sql.Rows
		err  error
	)
	switch q {
	case "games":
		rows, err = db.Query(`SELECT end_cycle, winner, final_mover FROM games ORDER BY end_cycle DESC LIMIT ?`, limit)
	case "snapshots":
		rows, err = db.Query(`SELECT cycle, path, seed, state, players, timers, deferred, reservations, games_played FROM snapshots ORDER BY cycle DESC LIMIT ?`, limit)
	case "audits":
		if caller != "" {
			rows, err = db.Query(`SELECT cycle, seq, caller, action, result, COALESCE(error,'') FROM audits WHERE caller = ? ORDER BY cycle DESC, seq DESC LIMIT ?`, caller, limit)
		} else {
			rows, err = db.Query(`SELECT cycle, seq, caller, action, result, COALESCE(error,'') FROM audits ORDER BY cycle DESC, seq DESC LIMIT ?`, limit)
		}
	case "cycles":
		rows, err = db.Query(`SELECT cycle, digest, replies, actions FROM cycles ORDER BY cycle DESC LIMIT ?`, limit)
	default:
		return fmt.Errorf("unknown query %q (games|snapshots|audits|cycles)", q)
	}
	if err != nil {
		return err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return err
		}
		obj := make(map[string]any, len(cols))
		for i, c := range cols {
			obj[c] = vals[i]
		}
		if err := enc.Encode(obj); err != nil {
			return err
		}
	}
	return rows.Err()
}
