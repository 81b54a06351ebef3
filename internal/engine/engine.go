// Package engine defines the boundary to the distributed compute engine that
// runs the allreduce based training, and a process backed implementation.
package engine

import (
	"context"
	"errors"
	"time"

	"github.com/AltairaLabs/fxgb-worker/internal/dataset"
)

// DefaultRounds is the number of boosting rounds of a training run.
const DefaultRounds = 10

// ErrNotInitialized is returned by Train before Init succeeded.
var ErrNotInitialized = errors.New("engine not initialized")

// Engine is the distributed compute engine. Init receives the coordination
// environment, Train runs one training job and Finalize leaves the
// allreduce group. Finalize must be called once Init succeeded.
type Engine interface {
	Init(ctx context.Context, env []string) error
	Train(ctx context.Context, cfg TrainConfig, data *dataset.Dataset) (*Model, error)
	Finalize(ctx context.Context) error
}

// TrainConfig holds the hyperparameters of a training run.
type TrainConfig struct {
	Params map[string]string
	Rounds int
}

// Model summarizes a finished training run.
type Model struct {
	Rounds   int
	Duration time.Duration
	Output   string
}
