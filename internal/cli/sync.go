package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/asanatap/internal/asana"
	"github.com/roach88/asanatap/internal/config"
	"github.com/roach88/asanatap/internal/engine"
	"github.com/roach88/asanatap/internal/output"
	"github.com/roach88/asanatap/internal/store"
)

// SyncOptions holds flags for the sync command.
type SyncOptions struct {
	*RootOptions
	ConfigPath string
	Streams    []string
	Database   string

	// RunIDs overrides the run id generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	RunIDs engine.RunIDGenerator

	// Now overrides the clock used for time_extracted (for testing).
	Now func() time.Time
}

// NewSyncCommand creates the sync command.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SyncOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Replicate streams incrementally",
		Long: `Replicate the configured streams, writing Singer RECORD and STATE
messages to stdout. Logs go to stderr.

Each stream resumes from its committed watermark and only emits records
modified strictly after it. The watermark is committed once the whole
stream has been traversed; a failed stream keeps its previous watermark.

Example:
  asanatap sync --config asanatap.yaml
  asanatap sync --config asanatap.yaml --stream tasks --db /var/lib/asanatap.db`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to YAML config (required)")
	cmd.Flags().StringSliceVar(&opts.Streams, "stream", nil, "only sync these streams (repeatable)")
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite state database (overrides config)")

	return cmd
}

func runSync(cmd *cobra.Command, opts *SyncOptions) error {
	if opts.ConfigPath == "" {
		return NewExitError(ExitCommandError, "--config is required")
	}
	logger := newLogger(cmd.ErrOrStderr(), opts.Verbose)

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}
	streams, err := cfg.SelectedStreams(opts.Streams...)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid stream selection", err)
	}

	dbPath := opts.Database
	if dbPath == "" {
		dbPath = cfg.DatabasePath()
	}
	logger.Debug("opening database", "path", dbPath)
	st, err := store.Open(dbPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			logger.Error("error closing database", "error", closeErr)
		}
	}()

	cred, err := cfg.Credential(nil)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to build credential", err)
	}
	clientCfg := cfg.ClientConfig()
	clientCfg.UserAgent = "asanatap/" + Version
	client := asana.New(clientCfg, cred)

	wdOpts := append(cfg.WatchdogOptions(), engine.WithWatchdogLogger(logger))
	wd := engine.NewWatchdog(cred, nil, wdOpts...)

	driverOpts := []engine.DriverOption{engine.WithLogger(logger)}
	if opts.RunIDs != nil {
		driverOpts = append(driverOpts, engine.WithRunIDs(opts.RunIDs))
	}
	driver := engine.NewDriver(client, st, wd, cfg.Start(), driverOpts...)

	// Setup signal handling for graceful shutdown
	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, abandoning pass", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	marks, err := st.Watermarks(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read watermarks", err)
	}
	writerOpts := []output.WriterOption{output.WithBookmarks(bookmarks(marks))}
	if opts.Now != nil {
		writerOpts = append(writerOpts, output.WithNow(opts.Now))
	}
	out := output.NewWriter(cmd.OutOrStdout(), writerOpts...)

	logger.Info("sync starting", "streams", len(streams), "db", dbPath)
	results, err := driver.Sync(ctx, streams, out)
	for _, res := range results {
		logResult(logger, res)
	}
	if err != nil {
		return WrapExitError(ExitFailure, "sync failed", err)
	}
	logger.Info("sync finished", "calls", wd.TotalCalls(), "refreshes", wd.Refreshes())
	return nil
}

func logResult(logger *slog.Logger, res engine.PassResult) {
	attrs := []any{
		"stream", res.Stream,
		"run", res.RunID,
		"state", res.State,
		"emitted", res.Stats.Emitted,
		"skipped", res.Stats.Skipped,
		"failed_nodes", res.Stats.FailedNodes,
	}
	if res.Err != nil {
		logger.Error("stream failed", append(attrs, "error", res.Err)...)
		return
	}
	logger.Info("stream committed", append(attrs, "watermark", res.Session)...)
}

// bookmarks converts committed watermarks to Singer bookmarks keyed by
// each stream's replication key. Streams no longer in the catalog are
// dropped.
func bookmarks(marks []store.Watermark) output.Bookmarks {
	out := output.Bookmarks{}
	for _, m := range marks {
		s, ok := engine.Lookup(m.Stream)
		if !ok {
			continue
		}
		out[s.Name] = map[string]string{
			s.ReplicationKey: m.Value.UTC().Format(time.RFC3339Nano),
		}
	}
	return out
}
