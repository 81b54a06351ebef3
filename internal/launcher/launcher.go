// Package launcher starts jobs proposed by the aggregator as detached child
// processes. The worker keeps no handle to control a job once it is started:
// exit status is only collected so the process does not linger as a zombie.
package launcher

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kballard/go-shellquote"
)

// ErrEmptyCommand is returned when a command line has no words.
var ErrEmptyCommand = errors.New("empty command")

// Task describes a started job.
type Task struct {
	ID        string    `json:"id"`
	PID       int       `json:"pid"`
	Args      []string  `json:"args"`
	StartedAt time.Time `json:"started_at"`
}

// Spawner starts a detached process and returns as soon as it is running.
type Spawner interface {
	Spawn(args []string, env []string) (*Task, error)
}

// SplitCommand splits cmd into words using POSIX shell quoting rules.
func SplitCommand(cmd string) ([]string, error) {
	words, err := shellquote.Split(cmd)
	if err != nil {
		return nil, fmt.Errorf("failed to parse command %q: %w", cmd, err)
	}
	if len(words) == 0 {
		return nil, ErrEmptyCommand
	}
	return words, nil
}

// MergeEnv overlays overrides on base. An override replaces every existing
// entry with the same name; new names are appended in sorted order.
func MergeEnv(base []string, overrides map[string]string) []string {
	merged := make([]string, 0, len(base)+len(overrides))
	for _, kv := range base {
		name, _, _ := strings.Cut(kv, "=")
		if _, replaced := overrides[name]; replaced {
			continue
		}
		merged = append(merged, kv)
	}

	names := make([]string, 0, len(overrides))
	for name := range overrides {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		merged = append(merged, name+"="+overrides[name])
	}
	return merged
}

// ExecSpawner starts jobs with os/exec. Jobs inherit the worker's standard
// output and error unless WithOutput redirects them.
type ExecSpawner struct {
	logger *slog.Logger
	dir    string
	stdout io.Writer
	stderr io.Writer
}

// NewExecSpawner creates a spawner running jobs in dir (the worker's working
// directory when empty).
func NewExecSpawner(dir string, logger *slog.Logger) *ExecSpawner {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExecSpawner{
		logger: logger,
		dir:    dir,
		stdout: os.Stdout,
		stderr: os.Stderr,
	}
}

// WithOutput sends the output of later jobs to stdout and stderr.
func (s *ExecSpawner) WithOutput(stdout, stderr io.Writer) *ExecSpawner {
	s.stdout = stdout
	s.stderr = stderr
	return s
}

// Spawn starts args[0] with the remaining args and env and returns without
// waiting for it.
func (s *ExecSpawner) Spawn(args []string, env []string) (*Task, error) {
	if len(args) == 0 {
		return nil, ErrEmptyCommand
	}

	//nolint:gosec // G204: the operator approved this exact command line
	cmd := exec.Command(args[0], args[1:]...)
	cmd.Env = env
	cmd.Dir = s.dir
	cmd.Stdout = s.stdout
	cmd.Stderr = s.stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", args[0], err)
	}

	task := &Task{
		ID:        uuid.NewString(),
		PID:       cmd.Process.Pid,
		Args:      append([]string(nil), args...),
		StartedAt: time.Now(),
	}
	s.logger.Info("Job started", "task_id", task.ID, "pid", task.PID, "command", args[0])

	go func() {
		err := cmd.Wait()
		s.logger.Info("Job exited",
			"task_id", task.ID,
			"pid", task.PID,
			"exit_code", cmd.ProcessState.ExitCode(),
			"duration", time.Since(task.StartedAt),
			"error", err)
	}()

	return task, nil
}
