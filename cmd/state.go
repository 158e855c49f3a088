package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/pable/versus-overlay/internal/api"
	"github.com/pable/versus-overlay/internal/overlay"
	"github.com/pable/versus-overlay/internal/report"
	"github.com/pable/versus-overlay/internal/storage"
)

var stateServer string

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Inspect or edit the overlay state",
	Long: `Inspect or edit the overlay state. By default the saved snapshot is edited
directly; with --server the change goes through a running 'versus serve' so
display clients update immediately.`,
}

var stateShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the current overlay state",
	Args:  cobra.NoArgs,
	RunE:  runStateShow,
}

var stateSetCmd = &cobra.Command{
	Use:   "set <key>=<value> [<key>=<value>...]",
	Short: "Update overlay fields",
	Long:  "Update overlay fields. Settable keys: " + strings.Join(overlay.PatchKeys(), ", "),
	Args:  cobra.MinimumNArgs(1),
	RunE:  runStateSet,
}

var stateResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Clear players, scores, round and casters",
	Args:  cobra.NoArgs,
	RunE:  runStateReset,
}

func init() {
	stateCmd.PersistentFlags().StringVar(&stateServer, "server", "", "base URL of a running server, e.g. http://localhost:9090")
	stateCmd.AddCommand(stateShowCmd)
	stateCmd.AddCommand(stateSetCmd)
	stateCmd.AddCommand(stateResetCmd)
}

// parseAssignments turns key=value arguments into a patch.
func parseAssignments(args []string) (overlay.Patch, error) {
	var p overlay.Patch
	for _, a := range args {
		key, value, ok := strings.Cut(a, "=")
		if !ok {
			return p, fmt.Errorf("expected key=value, got %q", a)
		}
		if err := p.Set(strings.TrimSpace(key), value); err != nil {
			return p, err
		}
	}
	return p, nil
}

// openLocalStore loads the snapshot and the cached index so derived fields
// are filled in. Changes are written back only when persist is set.
func openLocalStore(persist bool) (*overlay.Store, error) {
	opts := overlay.Options{Stats: statsOptions(), Logger: logger}
	st, _, err := overlay.LoadSnapshot(cfg.StatePath)
	if err != nil {
		logger.Warn("ignoring unreadable snapshot", "path", cfg.StatePath, "err", err)
	}
	if persist {
		opts.SnapshotPath = cfg.StatePath
	}
	store := overlay.NewStore(st, nil, opts)

	db, err := storage.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	defer db.Close()
	idx, seeds, err := loadCachedIndex(db)
	if err != nil {
		return nil, err
	}
	store.ReplaceIndex(idx, seeds)
	return store, nil
}

func runStateShow(cmd *cobra.Command, args []string) error {
	var st overlay.State
	if stateServer != "" {
		if err := callServer(http.MethodGet, "/api/state", nil, &st); err != nil {
			return err
		}
	} else {
		store, err := openLocalStore(false)
		if err != nil {
			return err
		}
		st = store.State()
	}
	report.PrintState(os.Stdout, st)
	return nil
}

func runStateSet(cmd *cobra.Command, args []string) error {
	p, err := parseAssignments(args)
	if err != nil {
		return err
	}
	var st overlay.State
	if stateServer != "" {
		body, err := json.Marshal(p)
		if err != nil {
			return err
		}
		if err := callServer(http.MethodPost, "/api/state", body, &st); err != nil {
			return err
		}
	} else {
		store, err := openLocalStore(true)
		if err != nil {
			return err
		}
		st = store.ApplyPatch(p, "")
	}
	report.PrintState(os.Stdout, st)
	return nil
}

func runStateReset(cmd *cobra.Command, args []string) error {
	var st overlay.State
	if stateServer != "" {
		if err := callServer(http.MethodPost, "/api/state/reset", nil, &st); err != nil {
			return err
		}
	} else {
		store, err := openLocalStore(true)
		if err != nil {
			return err
		}
		st = store.Reset()
	}
	report.PrintState(os.Stdout, st)
	return nil
}

var apiClient = &http.Client{Timeout: 8 * time.Second}

func callServer(method, path string, body []byte, out any) error {
	url := strings.TrimRight(stateServer, "/") + path
	req, err := http.NewRequest(method, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(api.ClientHeader, "cli")

	resp, err := apiClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%s %s: %s: %s", method, url, resp.Status, bytes.TrimSpace(msg))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
