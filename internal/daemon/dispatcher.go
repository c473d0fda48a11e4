package daemon

import (
	"context"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/kidlock/internal/domain"
)

// DefaultQueueSize is the foreground queue length when none is configured.
const DefaultQueueSize = 64

// ForegroundEvaluator evaluates one foreground change.
type ForegroundEvaluator interface {
	HandleForeground(ctx context.Context, change domain.ForegroundChange) (*domain.EnforcementResult, error)
}

// Dispatcher moves evaluation off the notifier callback. The callback only
// enqueues; a single worker evaluates changes in arrival order. When the
// queue is full the change is dropped: the next foreground change is
// evaluated afresh, so nothing is lost for good.
type Dispatcher struct {
	evaluator ForegroundEvaluator
	queue     chan domain.ForegroundChange
	metrics   domain.Metrics
	logger    *zap.Logger
}

// NewDispatcher creates a dispatcher with a buffered queue of size.
func NewDispatcher(evaluator ForegroundEvaluator, size int, metrics domain.Metrics, logger *zap.Logger) *Dispatcher {
	if size <= 0 {
		size = DefaultQueueSize
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Dispatcher{
		evaluator: evaluator,
		queue:     make(chan domain.ForegroundChange, size),
		metrics:   metrics,
		logger:    logger,
	}
}

// Handler returns the callback to register with a domain.ForegroundNotifier.
func (d *Dispatcher) Handler() domain.ForegroundHandler {
	return func(change domain.ForegroundChange) {
		d.Enqueue(change)
	}
}

// Enqueue adds a change without blocking. Returns false if it was dropped.
func (d *Dispatcher) Enqueue(change domain.ForegroundChange) bool {
	select {
	case d.queue <- change:
		return true
	default:
		d.logger.Warn("foreground queue full, dropping change",
			zap.String("package", change.PackageName))
		d.metrics.IncDropped()
		return false
	}
}

// Run evaluates queued changes until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case change := <-d.queue:
			if _, err := d.evaluator.HandleForeground(ctx, change); err != nil {
				d.logger.Error("enforcement failed",
					zap.String("package", change.PackageName),
					zap.Error(err))
			}
		}
	}
}

type noopMetrics struct{}

func (noopMetrics) ObserveDecision(domain.EnforcementResult)   {}
func (noopMetrics) ObserveCollection(domain.CollectionResult) {}
func (noopMetrics) IncDropped()                               {}
