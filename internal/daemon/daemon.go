// Package daemon runs the long-lived kidlock service: periodic usage
// collection plus foreground enforcement.
package daemon

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/eliteGoblin/focusd/kidlock/internal/domain"
)

// Collector performs one usage collection.
type Collector interface {
	Collect(ctx context.Context) (*domain.CollectionResult, error)
}

// Config holds daemon configuration.
type Config struct {
	CollectInterval time.Duration // How often to pull usage events (default 15 min)
	MetricsAddr     string        // Empty disables the /metrics endpoint
}

// DefaultConfig returns default daemon configuration.
func DefaultConfig() Config {
	return Config{
		CollectInterval: 15 * time.Minute,
	}
}

// Daemon wires the collector ticker, the foreground notifier and the
// enforcement worker together. Each runs in its own goroutine; the first
// to fail stops the others.
type Daemon struct {
	config         Config
	collector      Collector
	notifier       domain.ForegroundNotifier
	dispatcher     *Dispatcher
	metricsHandler http.Handler
	logger         *zap.Logger
}

// New creates a daemon. metricsHandler may be nil.
func New(
	config Config,
	collector Collector,
	notifier domain.ForegroundNotifier,
	dispatcher *Dispatcher,
	metricsHandler http.Handler,
	logger *zap.Logger,
) *Daemon {
	if config.CollectInterval <= 0 {
		config.CollectInterval = DefaultConfig().CollectInterval
	}
	return &Daemon{
		config:         config,
		collector:      collector,
		notifier:       notifier,
		dispatcher:     dispatcher,
		metricsHandler: metricsHandler,
		logger:         logger,
	}
}

// Run blocks until ctx is cancelled or a component fails.
func (d *Daemon) Run(ctx context.Context) error {
	d.notifier.Register(d.dispatcher.Handler())

	d.logger.Info("kidlock daemon started",
		zap.Duration("collect_interval", d.config.CollectInterval))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return d.collectLoop(ctx) })
	g.Go(func() error { return d.dispatcher.Run(ctx) })
	g.Go(func() error { return d.notifier.Run(ctx) })
	if d.metricsHandler != nil && d.config.MetricsAddr != "" {
		g.Go(func() error { return d.serveMetrics(ctx) })
	}

	err := g.Wait()
	d.logger.Info("kidlock daemon stopping")
	return err
}

func (d *Daemon) collectLoop(ctx context.Context) error {
	// Collect immediately on startup
	d.runCollection(ctx)

	ticker := time.NewTicker(d.config.CollectInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			d.runCollection(ctx)
		}
	}
}

func (d *Daemon) runCollection(ctx context.Context) {
	result, err := d.collector.Collect(ctx)
	if err != nil {
		d.logger.Error("collection failed", zap.Error(err))
		return
	}
	if result.Denied {
		d.logger.Warn("usage access denied, nothing collected")
	}
}

func (d *Daemon) serveMetrics(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", d.metricsHandler)
	srv := &http.Server{
		Addr:              d.config.MetricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	d.logger.Info("serving metrics", zap.String("addr", d.config.MetricsAddr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
