package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/AltairaLabs/fxgb-worker/internal/consent"
	"github.com/AltairaLabs/fxgb-worker/internal/coordination"
	"github.com/AltairaLabs/fxgb-worker/internal/dataset"
	"github.com/AltairaLabs/fxgb-worker/internal/engine/mock"
	"github.com/AltairaLabs/fxgb-worker/internal/launcher"
)

const testDataPath = "/data/x.csv"

var exampleSession = coordination.SessionRequest{
	TrackerURI:  "10.0.0.1",
	TrackerPort: 9091,
	Role:        "worker",
	NodeHost:    "h1",
	NumWorker:   2,
	NumServer:   0,
}

var exampleEnv = []string{
	"DMLC_TRACKER_URI=10.0.0.1",
	"DMLC_TRACKER_PORT=9091",
	"DMLC_ROLE=worker",
	"DMLC_NODE_HOST=h1",
	"DMLC_NUM_WORKER=2",
	"DMLC_NUM_SERVER=0",
}

// recordingSpawner captures spawn requests instead of starting processes.
type recordingSpawner struct {
	mu   sync.Mutex
	args [][]string
	envs [][]string
	err  error
}

func (s *recordingSpawner) Spawn(args []string, env []string) (*launcher.Task, error) {
	s.mu.Lock()
	s.args = append(s.args, args)
	s.envs = append(s.envs, env)
	err := s.err
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return &launcher.Task{ID: "task-1", PID: 42, Args: args, StartedAt: time.Now()}, nil
}

func (s *recordingSpawner) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.args)
}

// scriptedGate answers with queued decisions and records prompts.
type scriptedGate struct {
	mu        sync.Mutex
	decisions []bool
	prompts   []string
	err       error
}

func (g *scriptedGate) RequestConsent(ctx context.Context, prompt string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prompts = append(g.prompts, prompt)
	if g.err != nil {
		return false, g.err
	}
	if len(g.decisions) == 0 {
		return false, errors.New("no scripted decision left")
	}
	d := g.decisions[0]
	g.decisions = g.decisions[1:]
	return d, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fakeDataset(path string) (*dataset.Dataset, error) {
	return &dataset.Dataset{
		Path:     path,
		Labels:   []float64{1, 0},
		Features: [][]float64{{0.5, 1}, {1.5, 2}},
	}, nil
}

// newTestController builds a controller with in-memory collaborators.
func newTestController(gate consent.Gate, opts ...func(*Config)) (*Controller, *mock.Engine, *recordingSpawner) {
	eng := mock.NewEngine()
	spawner := &recordingSpawner{}
	cfg := &Config{
		ListenPort:  "50051",
		DataPath:    testDataPath,
		Gate:        gate,
		Engine:      eng,
		Spawner:     spawner,
		Logger:      discardLogger(),
		Environ:     func() []string { return []string{"PATH=/bin", "HOME=/home/worker"} },
		LoadDataset: fakeDataset,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return NewController(cfg), eng, spawner
}
