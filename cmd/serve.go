package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/pable/versus-overlay/internal/api"
	"github.com/pable/versus-overlay/internal/hub"
	"github.com/pable/versus-overlay/internal/ingest"
	"github.com/pable/versus-overlay/internal/overlay"
	"github.com/pable/versus-overlay/internal/sheets"
	"github.com/pable/versus-overlay/internal/storage"
)

var (
	serveAddr        string
	servePoll        time.Duration
	sheetSpreadsheet string
	sheetRange       string
	sheetSeedsRange  string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the overlay server",
	Long: `Poll the match sheet, keep the overlay state and serve it to display
clients over websocket (/ws) and the dashboard REST API (/api).

Without a spreadsheet the server still runs on the cached rows and the
last saved state.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from VERSUS_ADDR or :9090)")
	serveCmd.Flags().DurationVar(&servePoll, "poll", 0, "sheet poll interval (default from VERSUS_POLL_INTERVAL or 20s)")
	addSheetFlags(serveCmd)
}

// addSheetFlags registers the spreadsheet overrides shared by serve and ingest.
func addSheetFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&sheetSpreadsheet, "spreadsheet", "", "spreadsheet id or URL")
	cmd.Flags().StringVar(&sheetRange, "range", "", "A1 range holding match rows")
	cmd.Flags().StringVar(&sheetSeedsRange, "seeds-range", "", "A1 range holding player,seed pairs")
}

func applySheetFlags() {
	if sheetSpreadsheet != "" {
		cfg.SpreadsheetID = sheetSpreadsheet
	}
	if sheetRange != "" {
		cfg.Range = sheetRange
	}
	if sheetSeedsRange != "" {
		cfg.SeedsRange = sheetSeedsRange
	}
}

// newSheetClient authorizes against Google and returns a sheet reader for
// the configured spreadsheet.
func newSheetClient(ctx context.Context) (*sheets.Client, error) {
	if !cfg.HasSheet() {
		return nil, errors.New("no spreadsheet configured: set VERSUS_SPREADSHEET_ID or pass --spreadsheet")
	}
	auth := &sheets.Authorizer{
		CredentialsPath: cfg.CredentialsPath,
		TokenPath:       cfg.TokenPath,
		ServiceAccount:  cfg.ServiceAccount,
		Out:             os.Stderr,
	}
	httpClient, err := auth.Client(ctx)
	if err != nil {
		return nil, fmt.Errorf("authorize sheets: %w", err)
	}
	return sheets.NewClient(ctx, httpClient, cfg.SpreadsheetID, cfg.Range, cfg.SeedsRange)
}

func runServe(cmd *cobra.Command, _ []string) error {
	applySheetFlags()
	if serveAddr != "" {
		cfg.Addr = serveAddr
	}
	if servePoll > 0 {
		cfg.PollInterval = servePoll
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := storage.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer db.Close()

	h := hub.New(hub.Options{RatePerSecond: 20, Burst: 40, Logger: logger})
	store := overlay.Open(h, overlay.Options{
		SnapshotPath: cfg.StatePath,
		Stats:        statsOptions(),
		Logger:       logger.WithPrefix("overlay"),
	})

	var trigger api.Ingester
	var fetcher sheets.Fetcher
	if cfg.HasSheet() {
		client, err := newSheetClient(ctx)
		if err != nil {
			return err
		}
		fetcher = client
	} else {
		logger.Warn("no spreadsheet configured, serving cached data only")
	}

	ing := ingest.New(fetcher, store, db, logger)
	if n, err := ing.Restore(); err != nil {
		logger.Error("restore cached rows", "err", err)
	} else if n == 0 {
		logger.Info("no cached rows")
	}
	if fetcher != nil {
		trigger = ing
		go ing.Run(ctx, cfg.PollInterval)
	}

	srv := api.NewServer(store, h, trigger, db, logger)
	return srv.Run(ctx, cfg.Addr)
}
