package consent

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const retryMessage = "Please enter 'Y' to confirm or 'N' to reject."

// PromptGate asks an operator at a terminal. Only one request is expected at
// a time; concurrent callers are serialized. A request only accepts lines read
// after it started: an answer typed late for an earlier request never decides
// the next one.
type PromptGate struct {
	in      io.Reader
	out     io.Writer
	timeout time.Duration
	logger  *slog.Logger

	mu        sync.Mutex
	startOnce sync.Once
	request   atomic.Uint64
	lines     chan inputLine
	readErr   chan error
}

// inputLine is a line tagged with the request that was open when it was read.
type inputLine struct {
	text    string
	request uint64
}

// NewPromptGate creates a gate reading answers from in and writing prompts to
// out. A zero timeout waits forever.
func NewPromptGate(in io.Reader, out io.Writer, timeout time.Duration, logger *slog.Logger) *PromptGate {
	if logger == nil {
		logger = slog.Default()
	}
	return &PromptGate{
		in:      in,
		out:     out,
		timeout: timeout,
		logger:  logger,
		lines:   make(chan inputLine),
		readErr: make(chan error, 1),
	}
}

// RequestConsent writes prompt and waits for Y or N.
func (g *PromptGate) RequestConsent(ctx context.Context, prompt string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	current := g.request.Add(1)
	g.startOnce.Do(func() { go g.readLoop() })

	var expired <-chan time.Time
	if g.timeout > 0 {
		timer := time.NewTimer(g.timeout)
		defer timer.Stop()
		expired = timer.C
	}

	ask := true
	for {
		if ask {
			fmt.Fprintf(g.out, "%s [Y/N]: ", prompt)
		}
		ask = true

		select {
		case line := <-g.lines:
			if line.request != current {
				g.logger.Warn("Discarding input typed before the current prompt", "input", strings.TrimSpace(line.text))
				ask = false
				continue
			}
			accepted, ok := ParseDecision(strings.TrimRight(line.text, "\r\n"))
			if ok {
				return accepted, nil
			}
			fmt.Fprintln(g.out, retryMessage)
		case err := <-g.readErr:
			// keep the error visible to later requests
			g.readErr <- err
			return false, err
		case <-expired:
			fmt.Fprintln(g.out)
			g.logger.Warn("Consent request timed out, treating as rejection", "timeout", g.timeout)
			return false, nil
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}
}

// readLoop owns the reader for the lifetime of the gate so that a timed out
// request does not leave a blocked read behind.
func (g *PromptGate) readLoop() {
	reader := bufio.NewReader(g.in)
	for {
		line, err := reader.ReadString('\n')
		if line != "" {
			g.lines <- inputLine{text: line, request: g.request.Load()}
		}
		if err != nil {
			if err == io.EOF {
				err = ErrInputClosed
			}
			g.readErr <- err
			return
		}
	}
}
