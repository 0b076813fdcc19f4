package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kurihiro0119/order-import-sync/internal/aggregator"
	"github.com/kurihiro0119/order-import-sync/internal/artifact"
	"github.com/kurihiro0119/order-import-sync/internal/backend"
	"github.com/kurihiro0119/order-import-sync/internal/config"
	"github.com/kurihiro0119/order-import-sync/internal/credential"
	"github.com/kurihiro0119/order-import-sync/internal/domain"
	"github.com/kurihiro0119/order-import-sync/internal/reconcile"
	"github.com/kurihiro0119/order-import-sync/internal/report"
	"github.com/kurihiro0119/order-import-sync/internal/storage"
	"github.com/kurihiro0119/order-import-sync/internal/storage/postgres"
	"github.com/kurihiro0119/order-import-sync/internal/storage/sqlite"
	"github.com/kurihiro0119/order-import-sync/pkg/client"
)

var (
	cfgFile    string
	outputJSON bool
	startDate  string
	endDate    string

	force   bool
	target  string
	limit   int
	remote  bool
	refresh bool

	// exitCode is set by run to the verdict's exit status
	exitCode int
)

var rootCmd = &cobra.Command{
	Use:   "order-sync",
	Short: "Order import reconciliation tool",
	Long: `A CLI tool that submits the newest order report to the order-management
backend, waits for the import to settle, and batch-confirms every eligible order.

Each run is recorded in a local ledger so repeated invocations skip reports
that were already imported.`,
	SilenceUsage: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one import reconciliation",
	Long: `Submit the newest report, wait for convergence, enumerate all orders and
confirm the eligible ones. Exits 0 on full success or when there is nothing
new to import, 2 on partial success and 1 when the run was aborted.`,
	Args: cobra.NoArgs,
	RunE: runReconcile,
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent runs",
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

var showCmd = &cobra.Command{
	Use:   "show [run-id]",
	Short: "Show a stored run",
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show aggregated run statistics",
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in to the backend and cache the session",
	Args:  cobra.NoArgs,
	RunE:  runLogin,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .env)")
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "output in JSON format")
	rootCmd.PersistentFlags().StringVar(&startDate, "start", "", "start date (YYYY-MM-DD)")
	rootCmd.PersistentFlags().StringVar(&endDate, "end", "", "end date (YYYY-MM-DD)")

	runCmd.Flags().BoolVar(&force, "force", false, "submit even if the newest report was already imported")

	historyCmd.Flags().StringVar(&target, "target", "", "only runs of this target")
	historyCmd.Flags().IntVar(&limit, "limit", 20, "maximum number of runs")
	historyCmd.Flags().BoolVar(&remote, "remote", false, "read from the history API instead of the local ledger")

	showCmd.Flags().BoolVar(&remote, "remote", false, "read from the history API instead of the local ledger")

	statsCmd.Flags().StringVar(&target, "target", "", "only this target")
	statsCmd.Flags().BoolVar(&remote, "remote", false, "read from the history API instead of the local ledger")

	loginCmd.Flags().BoolVar(&refresh, "refresh", false, "discard the cached session first")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(loginCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(domain.ExitAborted)
	}
	os.Exit(exitCode)
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

func getStorage(cfg *config.Config) (storage.Storage, error) {
	switch cfg.StorageType {
	case "postgres":
		return postgres.NewPostgresStorage(cfg.PostgresURL)
	default:
		return sqlite.NewSQLiteStorage(cfg.SQLitePath)
	}
}

func getTimeRange() (domain.TimeRange, error) {
	var timeRange domain.TimeRange

	if startDate != "" {
		t, err := time.ParseInLocation("2006-01-02", startDate, time.Local)
		if err != nil {
			return timeRange, fmt.Errorf("invalid --start %q: %w", startDate, err)
		}
		timeRange.Start = t
	}

	if endDate != "" {
		t, err := time.ParseInLocation("2006-01-02", endDate, time.Local)
		if err != nil {
			return timeRange, fmt.Errorf("invalid --end %q: %w", endDate, err)
		}
		timeRange.End = t.Add(24*time.Hour - time.Nanosecond)
	}

	return timeRange, nil
}

func newLogger(cfg *config.Config) (*slog.Logger, func() error) {
	logger, closeLog := config.SetupLogger(cfg.LogFile, config.ParseLevel(cfg.LogLevel))
	slog.SetDefault(logger)
	return logger, closeLog
}

func runReconcile(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger, closeLog := newLogger(cfg)
	defer func() { _ = closeLog() }()

	store, err := getStorage(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer store.Close()

	source, err := artifact.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize artifact source: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	clientOpts := backend.Options{
		BaseURL:     cfg.BackendURL,
		ImportPath:  cfg.ImportPath,
		ListPath:    cfg.ListPath,
		ConfirmPath: cfg.ConfirmPath,
		Timeout:     cfg.Timeout,
		RateLimit:   cfg.RateLimit,
		RateBurst:   cfg.RateBurst,
		Logger:      logger,
	}

	pipeline := reconcile.NewPipeline(reconcile.Options{
		TargetParams:   cfg.TargetParams,
		Eligible:       cfg.EligibleStatuses,
		Known:          cfg.KnownStatuses,
		FilterStatuses: cfg.ListFilterStatuses,
		Lookback:       cfg.ListLookback,
		Poll: reconcile.PollerConfig{
			MaxAttempts: cfg.PollMaxAttempts,
			Interval:    cfg.PollInterval,
			PageSize:    cfg.PollPageSize,
		},
		Pages: reconcile.PaginatorConfig{
			PageSize:  cfg.PageSize,
			SafetyCap: cfg.PageSafetyCap,
		},
		ConfirmChunkSize:          cfg.ConfirmChunkSize,
		AbortOnConvergenceTimeout: cfg.AbortOnNoConverge,
		Inspect:                   backend.InspectEnvelope,
	}, reconcile.RealClock(), logger)

	var output report.Reporter = report.NewTableReporter(cmd.OutOrStdout())
	if outputJSON {
		output = report.NewJSONReporter(cmd.OutOrStdout())
	}

	runner := &reconcile.Runner{
		Target:      cfg.TargetName,
		Credentials: credential.New(cfg, logger),
		Artifacts:   source,
		Ledger:      store,
		Connect: func(cred domain.Credential) reconcile.Backend {
			return backend.NewClient(clientOpts, cred)
		},
		Pipeline: pipeline,
		Reporter: report.Multi{report.NewStoreReporter(store), output},
		Logger:   logger,
		Force:    force,
	}

	outcome := runner.Run(ctx)
	exitCode = outcome.ExitCode()
	return nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	timeRange, err := getTimeRange()
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := context.Background()
	var summaries []*domain.RunSummary

	if remote {
		summaries, err = client.NewClient(cfg.APIEndpoint).GetRuns(ctx, target, timeRange.Start, timeRange.End, limit)
		if err != nil {
			return fmt.Errorf("failed to get runs: %w", err)
		}
	} else {
		store, err := openLedger(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		runs, err := store.ListRuns(ctx, target, timeRange, limit)
		if err != nil {
			return fmt.Errorf("failed to get runs: %w", err)
		}
		for _, run := range runs {
			summaries = append(summaries, run.Summary())
		}
	}

	if outputJSON {
		return printJSON(cmd, summaries)
	}

	if len(summaries) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded")
		return nil
	}
	report.Summaries(cmd.OutOrStdout(), summaries)
	return nil
}

func runShow(cmd *cobra.Command, args []string) error {
	id := args[0]

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := context.Background()
	var outcome *domain.RunOutcome

	if remote {
		outcome, err = client.NewClient(cfg.APIEndpoint).GetRun(ctx, id)
	} else {
		store, openErr := openLedger(cfg)
		if openErr != nil {
			return openErr
		}
		defer store.Close()
		outcome, err = store.GetRun(ctx, id)
	}
	if err != nil {
		return fmt.Errorf("failed to get run: %w", err)
	}

	if outputJSON {
		return report.NewJSONReporter(cmd.OutOrStdout()).Report(ctx, outcome)
	}
	return report.NewTableReporter(cmd.OutOrStdout()).Report(ctx, outcome)
}

func runStats(cmd *cobra.Command, args []string) error {
	timeRange, err := getTimeRange()
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := context.Background()
	var stats []*domain.TargetStats

	if remote {
		api := client.NewClient(cfg.APIEndpoint)
		if target != "" {
			one, err := api.GetStats(ctx, target, timeRange.Start, timeRange.End)
			if err != nil {
				return fmt.Errorf("failed to get stats: %w", err)
			}
			stats = append(stats, one)
		} else if stats, err = api.GetAllStats(ctx, timeRange.Start, timeRange.End); err != nil {
			return fmt.Errorf("failed to get stats: %w", err)
		}
	} else {
		store, err := openLedger(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		agg := aggregator.NewAggregator(store)
		if target != "" {
			one, err := agg.TargetStats(ctx, target, timeRange)
			if err != nil {
				return fmt.Errorf("failed to get stats: %w", err)
			}
			stats = append(stats, one)
		} else if stats, err = agg.AllTargets(ctx, timeRange); err != nil {
			return fmt.Errorf("failed to get stats: %w", err)
		}
	}

	if outputJSON {
		return printJSON(cmd, stats)
	}
	report.Stats(cmd.OutOrStdout(), stats)
	return nil
}

func runLogin(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.BackendURL == "" {
		return fmt.Errorf("invalid config: BACKEND_URL is required")
	}

	logger, closeLog := newLogger(cfg)
	defer func() { _ = closeLog() }()

	provider := credential.New(cfg, logger)
	ctx := context.Background()

	var cred domain.Credential
	if refresh {
		cred, err = provider.Refresh(ctx)
	} else {
		cred, err = provider.Credential(ctx)
	}
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	if cred.ExpiresAt.IsZero() {
		fmt.Fprintln(cmd.OutOrStdout(), "Logged in")
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), "Logged in, session valid until %s\n", cred.ExpiresAt.Local().Format(time.RFC3339))
	}
	return nil
}

func openLedger(cfg *config.Config) (storage.Storage, error) {
	if err := cfg.ValidateStorage(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	store, err := getStorage(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	return store, nil
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
