package consent

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"
)

// syncBuffer guards a bytes.Buffer written by the gate and read by the test.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestPromptGateAcceptsOnlyExactTokens(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		want      bool
		reprompts int
	}{
		{"accept", "Y\n", true, 0},
		{"reject", "N\n", false, 0},
		{"crlf accept", "Y\r\n", true, 0},
		{"lowercase then accept", "y\nY\n", true, 1},
		{"words then reject", "yes\nno\n\nN\n", false, 3},
		{"padded then accept", " Y\nY\n", true, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := &syncBuffer{}
			gate := NewPromptGate(strings.NewReader(tt.input), out, 0, nil)

			got, err := gate.RequestConsent(context.Background(), "Join session?")
			if err != nil {
				t.Fatalf("RequestConsent failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}

			if n := strings.Count(out.String(), retryMessage); n != tt.reprompts {
				t.Errorf("Expected %d re-prompts, got %d (output %q)", tt.reprompts, n, out.String())
			}
			if n := strings.Count(out.String(), "Join session? [Y/N]: "); n != tt.reprompts+1 {
				t.Errorf("Expected %d prompts, got %d", tt.reprompts+1, n)
			}
		})
	}
}

func TestPromptGateInputClosed(t *testing.T) {
	gate := NewPromptGate(strings.NewReader("maybe\n"), io.Discard, 0, nil)

	got, err := gate.RequestConsent(context.Background(), "Run this job?")
	if !errors.Is(err, ErrInputClosed) {
		t.Fatalf("Expected ErrInputClosed, got %v", err)
	}
	if got {
		t.Error("Expected rejection on closed input")
	}

	// the error sticks for later requests
	if _, err := gate.RequestConsent(context.Background(), "again"); !errors.Is(err, ErrInputClosed) {
		t.Errorf("Expected ErrInputClosed on second request, got %v", err)
	}
}

func TestPromptGateTimeoutRejects(t *testing.T) {
	r, w := io.Pipe()
	defer w.Close()

	gate := NewPromptGate(r, io.Discard, 20*time.Millisecond, nil)

	start := time.Now()
	got, err := gate.RequestConsent(context.Background(), "Run this job?")
	if err != nil {
		t.Fatalf("Expected timeout to be a plain rejection, got %v", err)
	}
	if got {
		t.Error("Expected rejection on timeout")
	}
	if time.Since(start) < 20*time.Millisecond {
		t.Error("Returned before the timeout expired")
	}
}

// waitFor polls out until it contains s.
func waitFor(t *testing.T, out *syncBuffer, s string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if strings.Contains(out.String(), s) {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("Output never contained %q: %q", s, out.String())
}

func TestPromptGateLateAnswerDoesNotDecideNextRequest(t *testing.T) {
	r, w := io.Pipe()
	defer w.Close()

	out := &syncBuffer{}
	gate := NewPromptGate(r, out, 100*time.Millisecond, nil)

	if got, _ := gate.RequestConsent(context.Background(), "Run job A?"); got {
		t.Fatal("Expected job A to time out")
	}

	// The operator answers job A after it expired.
	if _, err := io.WriteString(w, "Y\n"); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	time.Sleep(10 * time.Millisecond)

	got, err := gate.RequestConsent(context.Background(), "Run job B?")
	if err != nil {
		t.Fatalf("RequestConsent failed: %v", err)
	}
	if got {
		t.Fatal("Job B was approved by the answer typed for job A")
	}

	// An answer typed while the prompt is open still counts.
	done := make(chan bool, 1)
	go func() {
		accepted, _ := gate.RequestConsent(context.Background(), "Run job C?")
		done <- accepted
	}()
	waitFor(t, out, "Run job C? [Y/N]: ")
	if _, err := io.WriteString(w, "Y\n"); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if !<-done {
		t.Error("Expected job C to be accepted")
	}
}

func TestPromptGateContextCancel(t *testing.T) {
	r, w := io.Pipe()
	defer w.Close()

	gate := NewPromptGate(r, io.Discard, 0, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	got, err := gate.RequestConsent(ctx, "Run this job?")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
	if got {
		t.Error("Expected rejection on cancelled context")
	}
}

func TestStaticGate(t *testing.T) {
	if ok, err := Static(true).RequestConsent(context.Background(), "x"); !ok || err != nil {
		t.Errorf("Expected accept, got %v %v", ok, err)
	}
	if ok, err := Static(false).RequestConsent(context.Background(), "x"); ok || err != nil {
		t.Errorf("Expected reject, got %v %v", ok, err)
	}
}

func TestParseDecision(t *testing.T) {
	for token, want := range map[string][2]bool{
		"Y":   {true, true},
		"N":   {false, true},
		"y":   {false, false},
		"":    {false, false},
		"YES": {false, false},
	} {
		accepted, ok := ParseDecision(token)
		if accepted != want[0] || ok != want[1] {
			t.Errorf("ParseDecision(%q) = %v, %v; want %v, %v", token, accepted, ok, want[0], want[1])
		}
	}
}
