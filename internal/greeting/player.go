package greeting

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"kiosk/internal/services"
)

// Player plays an audio file to completion.
type Player interface {
	Play(ctx context.Context, path string) error
}

type commandRunner func(ctx context.Context, name string, args ...string) error

func defaultCommandRunner(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	var stderr strings.Builder
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s %s: %w: %s", name, strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

// CommandPlayer plays files with an external program such as "mpg123 -q".
// The file path is appended as the final argument.
type CommandPlayer struct {
	Command []string
	run     commandRunner
}

// NewCommandPlayer returns a player for the given command line.
func NewCommandPlayer(command []string) *CommandPlayer {
	return &CommandPlayer{Command: command, run: defaultCommandRunner}
}

func (p *CommandPlayer) Play(ctx context.Context, path string) error {
	if len(p.Command) == 0 {
		return services.Wrap(services.ErrConfiguration, "greeting", "play", "player command not configured", nil)
	}
	run := p.run
	if run == nil {
		run = defaultCommandRunner
	}
	args := append(append([]string{}, p.Command[1:]...), path)
	err := run(ctx, p.Command[0], args...)
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", services.ErrTimeout, err)
	}
	return err
}
