package worker

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
	"google.golang.org/grpc/peer"

	"github.com/AltairaLabs/fxgb-worker/internal/consent"
	"github.com/AltairaLabs/fxgb-worker/internal/coordination"
	"github.com/AltairaLabs/fxgb-worker/internal/dataset"
	"github.com/AltairaLabs/fxgb-worker/internal/engine"
	"github.com/AltairaLabs/fxgb-worker/internal/launcher"
	"github.com/AltairaLabs/fxgb-worker/internal/metrics"
)

// Operation names used in logs and metrics.
const (
	opProposeJob    = "propose_job"
	opInitSession   = "init_session"
	opStartTraining = "start_training"
)

// ReinitPolicy decides what a rejected InitSession does to an already joined
// session.
type ReinitPolicy string

const (
	// ReinitKeep leaves the previous environment and state untouched.
	ReinitKeep ReinitPolicy = "keep"
	// ReinitClear drops the previous environment and returns to UNINITIALIZED.
	ReinitClear ReinitPolicy = "clear"
)

// ParseReinitPolicy validates a policy name. The empty string selects ReinitKeep.
func ParseReinitPolicy(s string) (ReinitPolicy, error) {
	switch ReinitPolicy(s) {
	case "", ReinitKeep:
		return ReinitKeep, nil
	case ReinitClear:
		return ReinitClear, nil
	default:
		return "", fmt.Errorf("unknown rejected re-init policy %q", s)
	}
}

// Job is a command line proposed by the aggregator.
type Job struct {
	Cmd      string
	Env      map[string]string
	Password string
}

// Config wires a Controller to its collaborators.
type Config struct {
	ListenPort       string
	DataPath         string
	Gate             consent.Gate
	Engine           engine.Engine
	Spawner          launcher.Spawner
	Rounds           int
	OnRejectedReinit ReinitPolicy
	Metrics          *metrics.Collector
	Logger           *slog.Logger

	// Environ returns the base environment of spawned jobs. Defaults to os.Environ.
	Environ func() []string
	// LoadDataset reads the training data. Defaults to dataset.Load.
	LoadDataset func(path string) (*dataset.Dataset, error)
}

// Snapshot is a point in time copy of the worker state.
type Snapshot struct {
	State        State          `json:"state"`
	ListenPort   string         `json:"listen_port"`
	DataPath     string         `json:"data_path"`
	Env          []string       `json:"env,omitempty"`
	LastJob      *launcher.Task `json:"last_job,omitempty"`
	LastError    string         `json:"last_error,omitempty"`
	JobsStarted  int            `json:"jobs_started"`
	TrainingRuns int            `json:"training_runs"`
}

// Controller owns the worker state and implements the three control plane
// operations. Operations run one at a time: a call waits for the previous one
// (including its consent prompt) to finish. Snapshot never waits.
type Controller struct {
	listenPort  string
	dataPath    string
	gate        consent.Gate
	engine      engine.Engine
	spawner     launcher.Spawner
	rounds      int
	policy      ReinitPolicy
	metrics     *metrics.Collector
	logger      *slog.Logger
	environ     func() []string
	loadDataset func(string) (*dataset.Dataset, error)

	sem *semaphore.Weighted

	mu           sync.RWMutex
	state        State
	env          []string
	lastJob      *launcher.Task
	lastError    string
	jobsStarted  int
	trainingRuns int
}

// NewController creates a controller in state UNINITIALIZED.
func NewController(cfg *Config) *Controller {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Environ == nil {
		cfg.Environ = os.Environ
	}
	if cfg.LoadDataset == nil {
		cfg.LoadDataset = dataset.Load
	}
	if cfg.Rounds <= 0 {
		cfg.Rounds = engine.DefaultRounds
	}
	if cfg.OnRejectedReinit == "" {
		cfg.OnRejectedReinit = ReinitKeep
	}

	c := &Controller{
		listenPort:  cfg.ListenPort,
		dataPath:    cfg.DataPath,
		gate:        cfg.Gate,
		engine:      cfg.Engine,
		spawner:     cfg.Spawner,
		rounds:      cfg.Rounds,
		policy:      cfg.OnRejectedReinit,
		metrics:     cfg.Metrics,
		logger:      cfg.Logger,
		environ:     cfg.Environ,
		loadDataset: cfg.LoadDataset,
		sem:         semaphore.NewWeighted(1),
		state:       StateUninitialized,
	}
	c.metrics.SetState(c.state.String(), stateLabels())
	return c
}

// Snapshot returns the current state without waiting for a running operation.
func (c *Controller) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return Snapshot{
		State:        c.state,
		ListenPort:   c.listenPort,
		DataPath:     c.dataPath,
		Env:          append([]string(nil), c.env...),
		LastJob:      c.lastJob,
		LastError:    c.lastError,
		JobsStarted:  c.jobsStarted,
		TrainingRuns: c.trainingRuns,
	}
}

// State returns the current session state.
func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// ProposeJob asks the operator to run job and, once approved, starts it as a
// detached process with the worker's data path as last argument. It returns
// as soon as the process is running. The session state is not touched.
func (c *Controller) ProposeJob(ctx context.Context, job Job) (bool, error) {
	release, err := c.acquire(ctx)
	if err != nil {
		return false, err
	}
	defer release()

	c.logger.Info("Request from aggregator to run job", "peer", peerAddr(ctx), "cmd", job.Cmd)

	prompt := fmt.Sprintf("Request from aggregator to run this job: %s\nSession password is: %s\nRun this job?",
		job.Cmd, job.Password)
	accepted, err := c.ask(ctx, opProposeJob, prompt)
	if !accepted {
		c.metrics.RecordJob("rejected")
		return false, err
	}

	args, err := launcher.SplitCommand(job.Cmd)
	if err != nil {
		c.metrics.RecordJob("failed")
		return false, err
	}
	args = append(args, c.dataPath)

	task, err := c.spawner.Spawn(args, launcher.MergeEnv(c.environ(), job.Env))
	if err != nil {
		c.metrics.RecordJob("failed")
		return false, fmt.Errorf("failed to spawn job: %w", err)
	}

	c.mu.Lock()
	c.lastJob = task
	c.jobsStarted++
	c.mu.Unlock()

	c.metrics.RecordJob("spawned")
	return true, nil
}

// InitSession asks the operator to join the session described by req and, once
// approved, stores its coordination environment.
func (c *Controller) InitSession(ctx context.Context, req coordination.SessionRequest) (bool, error) {
	release, err := c.acquire(ctx)
	if err != nil {
		return false, err
	}
	defer release()

	peerID := peerAddr(ctx)
	c.logger.Info("Request from aggregator to start federated training session", "peer", peerID)

	if err := coordination.Validate(req); err != nil {
		return false, fmt.Errorf("invalid session request: %w", err)
	}

	prompt := fmt.Sprintf("Request from aggregator [%s] to start federated training session:\n"+
		"  tracker %s:%d, role %s, node host %s, %d worker(s), %d server(s)\nJoin session?",
		peerID, req.TrackerURI, req.TrackerPort, req.Role, req.NodeHost, req.NumWorker, req.NumServer)
	accepted, err := c.ask(ctx, opInitSession, prompt)
	if !accepted {
		if c.policy == ReinitClear {
			c.clearSession()
		}
		return false, err
	}

	env := coordination.Build(req)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.transitionLocked(StateSessionJoined); err != nil {
		return false, err
	}
	c.env = env
	c.lastError = ""
	return true, nil
}

// StartTraining runs a training job with the joined session's environment. On
// success the worker becomes IDLE; any failure, including a panic inside the
// engine, leaves it FAILED. Either way a new session must be joined before the
// next run.
func (c *Controller) StartTraining(ctx context.Context) (bool, error) {
	release, err := c.acquire(ctx)
	if err != nil {
		return false, err
	}
	defer release()

	c.logger.Info("Request from aggregator to start training", "operation", opStartTraining, "peer", peerAddr(ctx))

	c.mu.Lock()
	env := c.env
	if env == nil {
		c.mu.Unlock()
		return false, ErrNoSession
	}
	if err := c.transitionLocked(StateTrainingRunning); err != nil {
		c.mu.Unlock()
		return false, err
	}
	c.trainingRuns++
	c.mu.Unlock()

	start := time.Now()
	err = c.train(ctx, env)
	c.metrics.RecordTraining(err == nil, time.Since(start))

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.lastError = err.Error()
		_ = c.transitionLocked(StateFailed)
		return false, err
	}
	_ = c.transitionLocked(StateIdle)
	return true, nil
}

func (c *Controller) train(ctx context.Context, env []string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("engine panic: %v", r)
		}
	}()

	if err := c.engine.Init(ctx, env); err != nil {
		return fmt.Errorf("failed to init engine: %w", err)
	}
	defer func() {
		if ferr := c.engine.Finalize(ctx); ferr != nil {
			c.logger.Warn("Failed to finalize engine", "error", ferr)
			if err == nil {
				err = fmt.Errorf("failed to finalize engine: %w", ferr)
			}
		}
	}()

	c.logger.Info("Loading dataset", "path", c.dataPath)
	data, err := c.loadDataset(c.dataPath)
	if err != nil {
		return err
	}
	c.logger.Info("Dataset loaded", "rows", data.Rows(), "features", data.NumFeatures())

	c.logger.Info("Starting training", "rounds", c.rounds)
	model, err := c.engine.Train(ctx, engine.TrainConfig{Params: map[string]string{}, Rounds: c.rounds}, data)
	if err != nil {
		return fmt.Errorf("training failed: %w", err)
	}
	c.logger.Info("Training finished", "rounds", model.Rounds, "duration", model.Duration)
	return nil
}

// acquire waits for the single operation slot.
func (c *Controller) acquire(ctx context.Context) (func(), error) {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	return func() { c.sem.Release(1) }, nil
}

// ask runs the consent gate. Gate errors count as a rejection.
func (c *Controller) ask(ctx context.Context, op, prompt string) (bool, error) {
	accepted, err := c.gate.RequestConsent(ctx, prompt)
	if err != nil {
		c.logger.Warn("Consent request failed, treating as rejection", "operation", op, "error", err)
		accepted = false
	}
	c.metrics.RecordConsent(op, accepted)
	c.logger.Info("Operator decision", "operation", op, "accepted", accepted)
	return accepted, err
}

func (c *Controller) clearSession() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateUninitialized {
		return
	}
	if err := c.transitionLocked(StateUninitialized); err != nil {
		c.logger.Warn("Cannot clear session", "error", err)
		return
	}
	c.env = nil
	c.logger.Info("Rejected re-init cleared the previous session")
}

// transitionLocked moves to next. c.mu must be held.
func (c *Controller) transitionLocked(next State) error {
	if !canTransition(c.state, next) {
		return transitionError(c.state, next)
	}
	c.logger.Debug("State transition", "from", c.state, "to", next)
	c.state = next
	c.metrics.SetState(next.String(), stateLabels())
	return nil
}

func stateLabels() []string {
	labels := make([]string, len(AllStates))
	for i, s := range AllStates {
		labels[i] = s.String()
	}
	return labels
}

func peerAddr(ctx context.Context) string {
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		return p.Addr.String()
	}
	return "unknown"
}
