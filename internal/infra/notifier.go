package infra

import (
	"context"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/kidlock/internal/domain"
)

// CommandNotifier implements domain.Notifier by running a desktop
// notification command (e.g. notify-send or osascript). "{message}" in the
// command is replaced with the alert text. With no command configured the
// alert is only logged.
type CommandNotifier struct {
	command []string
	run     commandRunner
	logger  *zap.Logger
}

// NewCommandNotifier creates a notifier.
func NewCommandNotifier(command []string, logger *zap.Logger) *CommandNotifier {
	return &CommandNotifier{
		command: command,
		run:     runCommand,
		logger:  logger,
	}
}

// Notify delivers the alert.
func (n *CommandNotifier) Notify(ctx context.Context, message string) error {
	n.logger.Info("schedule alert", zap.String("message", message))
	if len(n.command) == 0 {
		return nil
	}
	name, args := expandCommand(n.command, map[string]string{"message": message})
	return n.run(ctx, name, args...)
}

// Ensure CommandNotifier implements domain.Notifier.
var _ domain.Notifier = (*CommandNotifier)(nil)
