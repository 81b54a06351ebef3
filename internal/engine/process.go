package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/AltairaLabs/fxgb-worker/internal/coordination"
	"github.com/AltairaLabs/fxgb-worker/internal/dataset"
)

const maxOutputTail = 4096

// ProcessEngine runs the trainer as a child process that joins the rabit
// tracker through the DMLC_* variables in its environment. The trainer is
// invoked as
//
//	<trainer...> --rounds N --data <path> [--param key=value ...]
//
// The trainer reads the data itself from Dataset.Path. The parsed rows passed
// to Train are not sent to it: they only validate the file before a session
// starts and supply the row and feature counts that are logged.
type ProcessEngine struct {
	trainer []string
	logger  *slog.Logger

	mu  sync.Mutex
	env []string
}

// NewProcessEngine creates an engine running the given trainer command.
func NewProcessEngine(trainer []string, logger *slog.Logger) *ProcessEngine {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProcessEngine{
		trainer: append([]string(nil), trainer...),
		logger:  logger,
	}
}

// Init checks that env holds a complete coordination environment and keeps it
// for Train.
func (e *ProcessEngine) Init(_ context.Context, env []string) error {
	if _, err := coordination.Parse(env); err != nil {
		return fmt.Errorf("failed to init engine: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.env = append([]string(nil), env...)
	return nil
}

// Train runs the trainer to completion.
func (e *ProcessEngine) Train(ctx context.Context, cfg TrainConfig, data *dataset.Dataset) (*Model, error) {
	e.mu.Lock()
	env := e.env
	e.mu.Unlock()

	if env == nil {
		return nil, ErrNotInitialized
	}
	if len(e.trainer) == 0 {
		return nil, errors.New("no trainer command configured")
	}
	if data == nil {
		return nil, errors.New("no dataset")
	}

	rounds := cfg.Rounds
	if rounds <= 0 {
		rounds = DefaultRounds
	}

	args := append([]string(nil), e.trainer[1:]...)
	args = append(args, "--rounds", strconv.Itoa(rounds), "--data", data.Path)
	keys := make([]string, 0, len(cfg.Params))
	for k := range cfg.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		args = append(args, "--param", k+"="+cfg.Params[k])
	}

	//nolint:gosec // G204: trainer comes from worker configuration
	cmd := exec.CommandContext(ctx, e.trainer[0], args...)
	cmd.Env = withCoordination(os.Environ(), env)

	e.logger.Info("Starting trainer",
		"trainer", e.trainer[0],
		"rounds", rounds,
		"rows", data.Rows(),
		"features", data.NumFeatures())

	start := time.Now()
	output, err := cmd.CombinedOutput()
	model := &Model{
		Rounds:   rounds,
		Duration: time.Since(start),
		Output:   tail(string(output), maxOutputTail),
	}
	if err != nil {
		return nil, fmt.Errorf("trainer failed: %w (output: %s)", err, model.Output)
	}
	return model, nil
}

// Finalize forgets the coordination environment.
func (e *ProcessEngine) Finalize(_ context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.env = nil
	return nil
}

// withCoordination appends coord to base, dropping base entries that would
// shadow a coordination key.
func withCoordination(base, coord []string) []string {
	keys := make(map[string]bool, len(coord))
	for _, kv := range coord {
		name, _, _ := strings.Cut(kv, "=")
		keys[name] = true
	}

	out := make([]string, 0, len(base)+len(coord))
	for _, kv := range base {
		name, _, _ := strings.Cut(kv, "=")
		if !keys[name] {
			out = append(out, kv)
		}
	}
	return append(out, coord...)
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
