// Package console serves an MCP operator console. It is a consent.Gate whose
// prompts are queued until an operator decides them through the consent_decide
// tool, and it exposes the worker status as a tool.
package console

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/AltairaLabs/fxgb-worker/internal/consent"
)

// Tool names.
const (
	ToolConsentList   = "consent_list"
	ToolConsentDecide = "consent_decide"
	ToolWorkerStatus  = "worker_status"
)

const (
	serverName    = "fxgb-worker-console"
	serverVersion = "1.0.0"
	basePath      = "/mcp"
)

// ErrUnknownRequest is returned when a decision names no pending request.
var ErrUnknownRequest = errors.New("no pending consent request with this id")

// StatusFunc returns a JSON-serialisable view of the worker.
type StatusFunc func() any

// Request is a consent request waiting for an operator.
type Request struct {
	ID        string    `json:"id"`
	Prompt    string    `json:"prompt"`
	CreatedAt time.Time `json:"created_at"`
}

type pending struct {
	Request
	decision chan bool
}

// Options configures a Console.
type Options struct {
	// Timeout rejects a request nobody decided in time. Zero waits forever.
	Timeout time.Duration
	Status  StatusFunc
	Logger  *slog.Logger
}

// Console queues consent requests for remote operators.
type Console struct {
	timeout time.Duration
	status  StatusFunc
	logger  *slog.Logger
	server  *server.MCPServer

	mu      sync.Mutex
	pending map[string]*pending
}

// New creates a console and registers its tools.
func New(opts Options) *Console {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Status == nil {
		opts.Status = func() any { return struct{}{} }
	}

	c := &Console{
		timeout: opts.Timeout,
		status:  opts.Status,
		logger:  opts.Logger,
		pending: make(map[string]*pending),
		server: server.NewMCPServer(
			serverName,
			serverVersion,
			server.WithToolCapabilities(true),
			server.WithRecovery(),
		),
	}
	c.registerTools()
	return c
}

// RequestConsent queues prompt and blocks until an operator decides it, the
// timeout expires (a rejection) or ctx is done.
func (c *Console) RequestConsent(ctx context.Context, prompt string) (bool, error) {
	p := &pending{
		Request: Request{
			ID:        uuid.New().String(),
			Prompt:    prompt,
			CreatedAt: time.Now(),
		},
		decision: make(chan bool, 1),
	}

	c.mu.Lock()
	c.pending[p.ID] = p
	c.mu.Unlock()
	defer c.remove(p.ID)

	c.logger.Info("Consent request queued", "id", p.ID)

	var expired <-chan time.Time
	if c.timeout > 0 {
		timer := time.NewTimer(c.timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case accepted := <-p.decision:
		return accepted, nil
	case <-expired:
		c.logger.Warn("Consent request timed out, rejecting", "id", p.ID, "timeout", c.timeout)
		return false, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// Pending lists open requests, oldest first.
func (c *Console) Pending() []Request {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Request, 0, len(c.pending))
	for _, p := range c.pending {
		out = append(out, p.Request)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Decide answers the request with the given id.
func (c *Console) Decide(id string, accepted bool) error {
	c.mu.Lock()
	p, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	c.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownRequest, id)
	}
	p.decision <- accepted
	c.logger.Info("Consent request decided", "id", id, "accepted", accepted)
	return nil
}

func (c *Console) remove(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

func (c *Console) registerTools() {
	c.server.AddTool(mcp.NewTool(ToolConsentList,
		mcp.WithDescription("List consent requests waiting for an operator decision"),
	), c.handleList)

	c.server.AddTool(mcp.NewTool(ToolConsentDecide,
		mcp.WithDescription("Accept or reject a pending consent request"),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("Request id from consent_list"),
		),
		mcp.WithString("decision",
			mcp.Required(),
			mcp.Description("'Y' to confirm or 'N' to reject"),
		),
	), c.handleDecide)

	c.server.AddTool(mcp.NewTool(ToolWorkerStatus,
		mcp.WithDescription("Show the worker session state"),
	), c.handleStatus)
}

func (c *Console) handleList(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(c.Pending())
}

func (c *Console) handleDecide(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	token, err := request.RequireString("decision")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	accepted, ok := consent.ParseDecision(token)
	if !ok {
		return mcp.NewToolResultError("Please enter 'Y' to confirm or 'N' to reject."), nil
	}
	if err := c.Decide(id, accepted); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if accepted {
		return mcp.NewToolResultText("accepted " + id), nil
	}
	return mcp.NewToolResultText("rejected " + id), nil
}

func (c *Console) handleStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(c.status())
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(b)), nil
}
