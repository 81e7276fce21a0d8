package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"tmgbattle.ai/internal/sim/battle"
)

type adminClient struct {
	base string
	http *http.Client
}

func newAdminClient(baseURL string, timeout time.Duration) adminClient {
	return adminClient{
		base: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		http: &http.Client{Timeout: timeout},
	}
}

func (c adminClient) do(method, path string, v any) error {
	req, err := http.NewRequest(method, c.base+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("%s %s: %s: %s", method, path, resp.Status, strings.TrimSpace(string(b)))
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("%s %s: decode: %w", method, path, err)
	}
	return nil
}

// state prints the battle summary followed by one line per seated player.
func (c adminClient) state(w io.Writer) error {
	var st struct {
		ArenaID string      `json:"arena_id"`
		Cycle   uint64      `json:"cycle"`
		Battle  battle.View `json:"battle"`
	}
	if err := c.do(http.MethodGet, "/v1/state", &st); err != nil {
		return err
	}
	v := st.Battle
	fmt.Fprintf(w, "arena=%s cycle=%d state=%s steps=%d turn=%d winner=%s vouchers=%d\n",
		st.ArenaID, st.Cycle, v.State, v.Steps, v.CurrentTurn, v.Winner, len(v.Reservations))
	for _, p := range v.Players {
		fmt.Fprintf(w, "  %s owner=%s energy=%d power=%d slot=%d facing=%s\n",
			p.PieceID, p.Owner, p.Energy, p.Power, p.ActiveSlot, p.Facing)
	}
	return nil
}

func (c adminClient) snapshot(w io.Writer) error {
	var res struct {
		OK    bool   `json:"ok"`
		Cycle uint64 `json:"cycle"`
		Error string `json:"error"`
	}
	if err := c.do(http.MethodPost, "/admin/v1/snapshot", &res); err != nil {
		return err
	}
	if !res.OK {
		return fmt.Errorf("snapshot at cycle %d: %s", res.Cycle, res.Error)
	}
	fmt.Fprintf(w, "snapshot cycle=%d\n", res.Cycle)
	return nil
}

func stateCmd(args []string) {
	fs := flag.NewFlagSet("state", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	_ = fs.Parse(args)

	if err := newAdminClient(*baseURL, 5*time.Second).state(os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "state:", err)
		os.Exit(1)
	}
}

func snapshotCmd(args []string) {
	fs := flag.NewFlagSet("snapshot", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	_ = fs.Parse(args)

	if err := newAdminClient(*baseURL, 10*time.Second).snapshot(os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "snapshot:", err)
		os.Exit(1)
	}
}
