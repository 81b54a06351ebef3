package mock

import (
	"context"
	"sync"
	"time"

	"github.com/AltairaLabs/fxgb-worker/internal/dataset"
	"github.com/AltairaLabs/fxgb-worker/internal/engine"
)

// Engine is a scripted engine for testing. It records every call and returns
// the configured errors.
type Engine struct {
	mu sync.Mutex

	InitErr     error
	TrainErr    error
	FinalizeErr error
	// TrainPanic makes Train panic with this value when non-nil.
	TrainPanic any
	// TrainDelay makes Train block for the given duration.
	TrainDelay time.Duration

	InitCalls     int
	TrainCalls    int
	FinalizeCalls int
	LastEnv       []string
	LastConfig    engine.TrainConfig
	LastData      *dataset.Dataset
}

// NewEngine creates a mock engine that succeeds on every call.
func NewEngine() *Engine {
	return &Engine{}
}

// Init records the environment.
func (e *Engine) Init(ctx context.Context, env []string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.InitCalls++
	e.LastEnv = append([]string(nil), env...)
	return e.InitErr
}

// Train records the configuration and data.
func (e *Engine) Train(ctx context.Context, cfg engine.TrainConfig, data *dataset.Dataset) (*engine.Model, error) {
	e.mu.Lock()
	e.TrainCalls++
	e.LastConfig = cfg
	e.LastData = data
	delay, trainErr, p := e.TrainDelay, e.TrainErr, e.TrainPanic
	e.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if p != nil {
		panic(p)
	}
	if trainErr != nil {
		return nil, trainErr
	}
	return &engine.Model{Rounds: cfg.Rounds, Duration: delay}, nil
}

// Finalize records the call.
func (e *Engine) Finalize(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.FinalizeCalls++
	return e.FinalizeErr
}

// Calls returns the number of Init, Train and Finalize calls.
func (e *Engine) Calls() (initCalls, trainCalls, finalizeCalls int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.InitCalls, e.TrainCalls, e.FinalizeCalls
}
