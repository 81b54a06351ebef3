package worker

import (
	"context"
	"errors"
	"log/slog"

	"google.golang.org/grpc/status"

	protov1 "github.com/AltairaLabs/fxgb-worker/api/proto/v1"
	"github.com/AltairaLabs/fxgb-worker/internal/coordination"
)

var errMissingEnv = errors.New("init request carries no env")

// WorkerServer implements the FXGBWorker gRPC service on top of a Controller.
// Every outcome, including rejections and failures, is reported as
// WorkerResponse.Success; the cause is only logged locally.
type WorkerServer struct {
	protov1.UnimplementedFXGBWorkerServer

	controller *Controller
	logger     *slog.Logger
}

// NewWorkerServer creates the gRPC adapter for controller.
func NewWorkerServer(controller *Controller, logger *slog.Logger) *WorkerServer {
	if logger == nil {
		logger = slog.Default()
	}
	return &WorkerServer{
		controller: controller,
		logger:     logger,
	}
}

// StartJob implements FXGBWorker.StartJob
func (ws *WorkerServer) StartJob(ctx context.Context, req *protov1.JobRequest) (*protov1.WorkerResponse, error) {
	ok, err := ws.controller.ProposeJob(ctx, Job{
		Cmd:      req.Cmd,
		Env:      req.Env,
		Password: req.Password,
	})
	return ws.respond(opProposeJob, ok, err)
}

// Init implements FXGBWorker.Init
func (ws *WorkerServer) Init(ctx context.Context, req *protov1.InitRequest) (*protov1.WorkerResponse, error) {
	if req.Env == nil {
		return ws.respond(opInitSession, false, errMissingEnv)
	}
	ok, err := ws.controller.InitSession(ctx, coordination.SessionRequest{
		TrackerURI:  req.Env.TrackerURI,
		TrackerPort: req.Env.TrackerPort,
		Role:        req.Env.Role,
		NodeHost:    req.Env.NodeHost,
		NumWorker:   req.Env.NumWorker,
		NumServer:   req.Env.NumServer,
	})
	return ws.respond(opInitSession, ok, err)
}

// Train implements FXGBWorker.Train
func (ws *WorkerServer) Train(ctx context.Context, _ *protov1.Empty) (*protov1.WorkerResponse, error) {
	ok, err := ws.controller.StartTraining(ctx)
	return ws.respond(opStartTraining, ok, err)
}

// respond collapses an operation result into the response. A caller that went
// away while queued or prompting gets its context error as a gRPC status,
// since nobody is left to read a response.
func (ws *WorkerServer) respond(op string, ok bool, err error) (*protov1.WorkerResponse, error) {
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, status.FromContextError(err).Err()
		}
		ws.logger.Warn("Operation failed", "operation", op, "error", err)
	}
	return &protov1.WorkerResponse{Success: ok}, nil
}
