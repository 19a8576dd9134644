package ecosystem

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"strings"

	"github.com/charmbracelet/log"
)

// Command is an external tool invocation.
type Command struct {
	Name string
	Args []string
	Dir  string
	// Env entries are appended to the current environment.
	Env []string
	// Stdin, when set, is written to the process's standard input.
	Stdin string
}

func (c Command) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// Output is what a finished command printed.
type Output struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Combined returns stderr followed by stdout.
func (o Output) Combined() string {
	return strings.TrimSpace(o.Stderr + "\n" + o.Stdout)
}

// Runner runs external commands. A non-zero exit is reported as an error
// alongside the captured output.
type Runner interface {
	Run(ctx context.Context, cmd Command) (Output, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct {
	logger *log.Logger
}

// NewExecRunner creates a Runner backed by os/exec.
func NewExecRunner(logger *log.Logger) *ExecRunner {
	return &ExecRunner{logger: logger}
}

// Run implements Runner.
func (r *ExecRunner) Run(ctx context.Context, c Command) (Output, error) {
	cmd := exec.CommandContext(ctx, c.Name, c.Args...) // #nosec G204 -- fixed tool names, arguments from workspace metadata
	cmd.Dir = c.Dir
	if c.Stdin != "" {
		cmd.Stdin = strings.NewReader(c.Stdin)
	}
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if r.logger != nil {
		r.logger.Debug("running command", "cmd", c.String(), "dir", c.Dir)
	}
	err := cmd.Run()

	out := Output{Stdout: stdout.String(), Stderr: stderr.String()}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		out.ExitCode = exitErr.ExitCode()
	}
	return out, err
}
