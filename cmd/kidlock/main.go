// Package main is the CLI entry point for kidlock.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/eliteGoblin/focusd/kidlock/internal/config"
	"github.com/eliteGoblin/focusd/kidlock/internal/daemon"
	"github.com/eliteGoblin/focusd/kidlock/internal/domain"
	"github.com/eliteGoblin/focusd/kidlock/internal/infra"
	"github.com/eliteGoblin/focusd/kidlock/internal/policy"
	"github.com/eliteGoblin/focusd/kidlock/internal/usecase"
)

var (
	// Version info (set via ldflags)
	Version   = "0.1.0"
	Commit    = "dev"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "kidlock",
	Short: "Parental control - usage tracking and app locking",
	Long: `kidlock records which apps a child uses and for how long, and locks
apps that the configured rules, age gate, time window or daily limit deny.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the enforcement daemon",
	Long: `Runs in the foreground until interrupted. Collects usage events on a
schedule and evaluates every foreground change written to the foreground feed.`,
	RunE: runDaemon,
}

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Collect usage events once",
	RunE:  runCollect,
}

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Show foreground minutes per app",
	RunE:  runReport,
}

var checkCmd = &cobra.Command{
	Use:   "check <package>",
	Short: "Show what would happen if a package came to the foreground",
	Args:  cobra.ExactArgs(1),
	RunE:  runCheck,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage lock rules, profile, time window and daily limit",
}

var configApplyCmd = &cobra.Command{
	Use:   "apply <file.json>",
	Short: "Store settings from a JSON document",
	Args:  cobra.ExactArgs(1),
	RunE:  runConfigApply,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective settings",
	RunE:  runConfigShow,
}

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Archive and delete usage events older than the retention period",
	RunE:  runPrune,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Prints version, commit, and build time. Use --json for machine-readable output.`,
	Run:   runVersion,
}

var (
	configPath   string
	jsonOutput   bool
	reportSince  time.Duration
	reportToday  bool
	showSessions bool
	checkAt      string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to kidlock.yaml")

	reportCmd.Flags().DurationVar(&reportSince, "since", 24*time.Hour, "Report window ending now")
	reportCmd.Flags().BoolVar(&reportToday, "today", false, "Report since local midnight")
	reportCmd.Flags().BoolVar(&showSessions, "sessions", false, "List individual sessions")
	checkCmd.Flags().StringVar(&checkAt, "at", "", "Local time of day as HH:MM (default now)")
	versionCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output version info as JSON")

	configCmd.AddCommand(configApplyCmd)
	configCmd.AddCommand(configShowCmd)

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(collectCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(pruneCmd)
	rootCmd.AddCommand(versionCmd)
}

// app holds what every command needs.
type app struct {
	conf   *config.Config
	logger *zap.Logger
	store  *infra.Store
}

func openApp() (*app, error) {
	conf, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(conf.DataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	logger := createLogger(conf)

	store, err := infra.OpenStore(conf.DataDir)
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}
	return &app{conf: conf, logger: logger, store: store}, nil
}

func (a *app) Close() {
	_ = a.store.Close()
	_ = a.logger.Sync()
}

func (a *app) newEnforcer() *usecase.Enforcer {
	pm := infra.NewProcessManager()
	resolver := infra.NewProcessCategoryResolver(
		pm,
		a.conf.CategoryOverrides(),
		a.conf.Categories.SystemDirs,
		a.conf.Categories.CacheSizeMB,
		a.logger,
	)
	blocker := infra.NewProcessBlocker(pm, a.conf.Enforcer.LockCommand, a.logger)
	notifier := infra.NewCommandNotifier(a.conf.Enforcer.NotifyCommand, a.logger)
	return usecase.NewEnforcerWithBudget(
		a.conf.HostPackage,
		a.store,
		resolver,
		blocker,
		notifier,
		usecase.NewReporter(a.store),
		a.logger,
	)
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func runDaemon(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := signalContext()
	defer cancel()

	metrics := infra.NewMetrics(a.conf.Metrics.Enabled)
	enforcer := a.newEnforcer().WithMetrics(metrics)
	collector := usecase.NewCollector(
		infra.NewFeedEventSource(a.conf.Feed.UsagePath, a.logger),
		a.store,
		a.conf.Collector.Lookback,
		a.logger,
	).WithMetrics(metrics)

	d := daemon.New(
		daemon.Config{
			CollectInterval: a.conf.Collector.Interval,
			MetricsAddr:     a.conf.Metrics.Addr,
		},
		collector,
		infra.NewFeedForegroundNotifier(a.conf.Feed.ForegroundPath, a.logger),
		daemon.NewDispatcher(enforcer, a.conf.Enforcer.QueueSize, metrics, a.logger),
		metricsHandler(metrics),
		a.logger,
	)

	fmt.Printf("kidlock running (data: %s, log: %s)\n", a.conf.DataDir, a.conf.Logger.File)
	return d.Run(ctx)
}

// metricsHandler exposes the registry when metrics are enabled.
func metricsHandler(m domain.Metrics) http.Handler {
	if pm, ok := m.(*infra.PromMetrics); ok {
		return pm.Handler()
	}
	return nil
}

func runCollect(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	collector := usecase.NewCollector(
		infra.NewFeedEventSource(a.conf.Feed.UsagePath, a.logger),
		a.store,
		a.conf.Collector.Lookback,
		a.logger,
	)
	result, err := collector.Collect(cmd.Context())
	if err != nil {
		return err
	}

	if result.Denied {
		fmt.Println("Usage access denied: nothing collected")
		return nil
	}
	fmt.Printf("Sampled %d events, stored %d new (%dms)\n",
		result.Sampled, result.Inserted, result.DurationMs)
	return nil
}

func runReport(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	since := time.Now().Add(-reportSince)
	if reportToday {
		since = policy.StartOfDay(time.Now())
	}

	report, err := usecase.NewReporter(a.store).Report(cmd.Context(), since)
	if err != nil {
		return err
	}

	fmt.Printf("Usage since %s\n", report.Since.Format("2006-01-02 15:04"))
	fmt.Println("================================")

	pkgs := make([]string, 0, len(report.Totals))
	for pkg := range report.Totals {
		pkgs = append(pkgs, pkg)
	}
	sort.Slice(pkgs, func(i, j int) bool {
		if report.Totals[pkgs[i]] != report.Totals[pkgs[j]] {
			return report.Totals[pkgs[i]] > report.Totals[pkgs[j]]
		}
		return pkgs[i] < pkgs[j]
	})
	for _, pkg := range pkgs {
		fmt.Printf("  %-40s %5d min\n", pkg, report.Totals[pkg])
	}
	fmt.Println("--------------------------------")
	fmt.Printf("  %-40s %5d min\n", "Total", report.TotalMinutes)

	if showSessions {
		fmt.Println("\nSessions:")
		for _, s := range report.Sessions {
			fmt.Printf("  %s  %s - %s  (%d min)\n",
				s.PackageName,
				time.UnixMilli(s.StartMillis).Format("01-02 15:04"),
				time.UnixMilli(s.EndMillis).Format("15:04"),
				s.DurationMinutes())
		}
	}
	return nil
}

func runCheck(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	at := time.Now()
	if checkAt != "" {
		at, err = parseTimeOfDay(checkAt, at)
		if err != nil {
			return err
		}
	}

	result := a.newEnforcer().Preview(cmd.Context(), args[0], at)

	fmt.Printf("Package:  %s\n", result.PackageName)
	fmt.Printf("At:       %s (minute %d)\n", at.Format("15:04"), policy.MinuteOfDay(at))
	if result.SelfExcluded {
		fmt.Println("Decision: never locked (kidlock itself)")
		return nil
	}
	fmt.Printf("Category: %s\n", result.Category)
	fmt.Printf("Window:   %v\n", result.WindowOK)
	if result.Decision.Allowed {
		fmt.Printf("Decision: ALLOWED (%s)\n", result.Decision.Reason)
	} else {
		fmt.Printf("Decision: LOCKED (%s)\n", result.Decision.Reason)
	}
	return nil
}

func parseTimeOfDay(s string, day time.Time) (time.Time, error) {
	t, err := time.ParseInLocation("15:04", s, day.Location())
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --at %q, want HH:MM: %w", s, err)
	}
	y, m, d := day.Date()
	return time.Date(y, m, d, t.Hour(), t.Minute(), 0, 0, day.Location()), nil
}

func runConfigApply(cmd *cobra.Command, args []string) error {
	settings, err := config.LoadSettings(args[0])
	if err != nil {
		return err
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if err := settings.Apply(cmd.Context(), a.store); err != nil {
		return err
	}
	a.logger.Info("settings applied", zap.String("file", args[0]))
	fmt.Println("Settings applied")
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	current, err := config.Current(cmd.Context(), a.store)
	if err != nil {
		return err
	}
	out, err := json.MarshalIndent(current, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func runPrune(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	archiver, err := infra.NewArchiver(a.conf.Retention.ArchiveDir)
	if err != nil {
		return err
	}
	defer archiver.Close()

	before := time.Now().Add(-a.conf.Retention.MaxAge)
	result, err := archiver.Archive(cmd.Context(), a.store, before)
	if err != nil {
		return err
	}

	if result.Archived == 0 {
		fmt.Printf("Nothing older than %s\n", before.Format("2006-01-02"))
		return nil
	}
	a.logger.Info("usage events pruned",
		zap.Int("archived", result.Archived),
		zap.Int("deleted", result.Deleted),
		zap.String("archive", result.Path))
	fmt.Printf("Archived %d events to %s\n", result.Archived, result.Path)
	return nil
}

func createLogger(conf *config.Config) *zap.Logger {
	zc := zap.NewProductionConfig()
	if level, err := zap.ParseAtomicLevel(conf.Logger.Level); err == nil {
		zc.Level = level
	}
	errorLog := filepath.Join(filepath.Dir(conf.Logger.File), "kidlock.error.log")
	zc.OutputPaths = []string{conf.Logger.File}
	zc.ErrorOutputPaths = []string{errorLog}
	zc.EncoderConfig.TimeKey = "time"
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := zc.Build()
	if err != nil {
		// Fallback to stdout if file logging fails
		logger, _ = zap.NewProduction()
	}
	return logger
}

func runVersion(cmd *cobra.Command, args []string) {
	if jsonOutput {
		out, _ := json.Marshal(map[string]string{
			"version":    Version,
			"commit":     Commit,
			"build_time": BuildTime,
		})
		fmt.Println(string(out))
	} else {
		fmt.Printf("kidlock %s (commit: %s, built: %s)\n",
			Version, Commit, BuildTime)
	}
}
