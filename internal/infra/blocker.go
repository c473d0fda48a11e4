package infra

import (
	"context"
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/kidlock/internal/domain"
)

// ProcessBlocker implements domain.Blocker on a desktop host: it kills the
// denied app's processes and, when configured, launches the lock screen
// command. Both steps are safe to repeat; killing nothing is a no-op.
type ProcessBlocker struct {
	processManager domain.ProcessManager
	lockCommand    []string
	run            commandRunner
	selfPID        int
	logger         *zap.Logger
}

// NewProcessBlocker creates a blocker. lockCommand may be empty; "{package}"
// in it is replaced with the denied package name.
func NewProcessBlocker(pm domain.ProcessManager, lockCommand []string, logger *zap.Logger) *ProcessBlocker {
	return &ProcessBlocker{
		processManager: pm,
		lockCommand:    lockCommand,
		run:            runCommand,
		selfPID:        os.Getpid(),
		logger:         logger,
	}
}

// PresentLock kills matching processes, then shows the lock screen.
func (b *ProcessBlocker) PresentLock(ctx context.Context, pkg string) error {
	pids, err := b.processManager.FindByName(pkg)
	if err != nil {
		return fmt.Errorf("failed to find processes for %s: %w", pkg, err)
	}

	var errs []error
	for _, pid := range pids {
		if pid == b.selfPID {
			continue
		}
		if err := b.processManager.Kill(pid); err != nil {
			b.logger.Warn("failed to kill process",
				zap.Int("pid", pid),
				zap.String("package", pkg),
				zap.Error(err))
			errs = append(errs, err)
			continue
		}
		b.logger.Info("killed process",
			zap.Int("pid", pid),
			zap.String("package", pkg))
	}

	if len(b.lockCommand) > 0 {
		name, args := expandCommand(b.lockCommand, map[string]string{"package": pkg})
		if err := b.run(ctx, name, args...); err != nil {
			errs = append(errs, fmt.Errorf("lock command failed: %w", err))
		}
	}

	return errors.Join(errs...)
}

// Ensure ProcessBlocker implements domain.Blocker.
var _ domain.Blocker = (*ProcessBlocker)(nil)
