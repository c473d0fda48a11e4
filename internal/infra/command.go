package infra

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// commandRunner executes an external command. Swapped out in tests.
type commandRunner func(ctx context.Context, name string, args ...string) error

func runCommand(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdin = nil // Prevent any interactive prompts
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s: %w (%s)", name, err, strings.TrimSpace(string(out)))
	}
	return nil
}

// expandCommand substitutes {key} placeholders in every argument.
// The first element is the program, the rest are its arguments.
func expandCommand(template []string, values map[string]string) (string, []string) {
	if len(template) == 0 {
		return "", nil
	}
	pairs := make([]string, 0, len(values)*2)
	for k, v := range values {
		pairs = append(pairs, "{"+k+"}", v)
	}
	r := strings.NewReplacer(pairs...)

	args := make([]string, 0, len(template)-1)
	for _, a := range template[1:] {
		args = append(args, r.Replace(a))
	}
	return r.Replace(template[0]), args
}
