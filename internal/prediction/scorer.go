package prediction

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// Scorer produces an occupancy class (0, 1 or 2) for an hour and weekday.
type Scorer interface {
	Score(ctx context.Context, hour, day int) (int, error)
}

// ProcessScorer runs an external command once per call, appending hour and
// day as the last two positional arguments. The command must print a single
// integer on stdout.
type ProcessScorer struct {
	Command string
	Args    []string
	Dir     string
}

// NewProcessScorer creates a scorer for command and its fixed leading args.
func NewProcessScorer(command string, args []string, dir string) *ProcessScorer {
	return &ProcessScorer{Command: command, Args: args, Dir: dir}
}

// Score starts the process and waits for its output. Cancelling ctx kills it.
func (p *ProcessScorer) Score(ctx context.Context, hour, day int) (int, error) {
	args := make([]string, 0, len(p.Args)+2)
	args = append(args, p.Args...)
	args = append(args, strconv.Itoa(hour), strconv.Itoa(day))

	cmd := exec.CommandContext(ctx, p.Command, args...) // #nosec G204 -- command comes from config, not from requests
	cmd.Dir = p.Dir
	// Children of a killed process may still hold stdout open.
	cmd.WaitDelay = time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return 0, fmt.Errorf("scorer did not finish: %w", ctxErr)
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return 0, fmt.Errorf("scorer exited with code %d: %s", exitErr.ExitCode(), strings.TrimSpace(stderr.String()))
		}
		return 0, fmt.Errorf("failed to run scorer: %w", err)
	}

	out := strings.TrimSpace(stdout.String())
	class, err := strconv.Atoi(out)
	if err != nil {
		return 0, fmt.Errorf("unparsable scorer output %q", out)
	}
	return class, nil
}
