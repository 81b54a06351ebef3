// Package coordination builds the rabit coordination environment handed to the
// distributed compute engine. The key set and order are a wire contract with
// the engine's environment parser and must not change.
package coordination

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Environment variable names, in the order the engine expects them.
const (
	KeyTrackerURI  = "DMLC_TRACKER_URI"
	KeyTrackerPort = "DMLC_TRACKER_PORT"
	KeyRole        = "DMLC_ROLE"
	KeyNodeHost    = "DMLC_NODE_HOST"
	KeyNumWorker   = "DMLC_NUM_WORKER"
	KeyNumServer   = "DMLC_NUM_SERVER"
)

const maxPort = 65535

// Keys lists the coordination keys in wire order.
var Keys = []string{
	KeyTrackerURI,
	KeyTrackerPort,
	KeyRole,
	KeyNodeHost,
	KeyNumWorker,
	KeyNumServer,
}

var (
	// ErrMalformedEntry is returned by Parse for entries without '='.
	ErrMalformedEntry = errors.New("malformed coordination entry")
	// ErrIncomplete is returned by Parse when a coordination key is missing.
	ErrIncomplete = errors.New("incomplete coordination environment")
)

// SessionRequest carries the tracker coordinates sent by the aggregator.
type SessionRequest struct {
	TrackerURI  string
	TrackerPort int32
	Role        string
	NodeHost    string
	NumWorker   int32
	NumServer   int32
}

// Build renders req as KEY=VALUE entries in wire order.
func Build(req SessionRequest) []string {
	return []string{
		KeyTrackerURI + "=" + req.TrackerURI,
		KeyTrackerPort + "=" + strconv.FormatInt(int64(req.TrackerPort), 10),
		KeyRole + "=" + req.Role,
		KeyNodeHost + "=" + req.NodeHost,
		KeyNumWorker + "=" + strconv.FormatInt(int64(req.NumWorker), 10),
		KeyNumServer + "=" + strconv.FormatInt(int64(req.NumServer), 10),
	}
}

// Bytes returns the entries of Build as raw byte strings.
func Bytes(req SessionRequest) [][]byte {
	entries := Build(req)
	out := make([][]byte, len(entries))
	for i, e := range entries {
		out[i] = []byte(e)
	}
	return out
}

// Validate reports whether req can be turned into a usable environment.
// Every string must be non-empty and free of control characters, the port
// must be a TCP port and counts must be non-negative with at least one worker.
func Validate(req SessionRequest) error {
	for _, f := range []struct {
		key, value string
	}{
		{KeyTrackerURI, req.TrackerURI},
		{KeyRole, req.Role},
		{KeyNodeHost, req.NodeHost},
	} {
		if f.value == "" {
			return fmt.Errorf("%s must not be empty", f.key)
		}
		if strings.ContainsAny(f.value, "\x00\r\n") {
			return fmt.Errorf("%s contains control characters", f.key)
		}
	}
	if req.TrackerPort <= 0 || req.TrackerPort > maxPort {
		return fmt.Errorf("%s out of range: %d", KeyTrackerPort, req.TrackerPort)
	}
	if req.NumWorker < 1 {
		return fmt.Errorf("%s must be at least 1: %d", KeyNumWorker, req.NumWorker)
	}
	if req.NumServer < 0 {
		return fmt.Errorf("%s must not be negative: %d", KeyNumServer, req.NumServer)
	}
	return nil
}

// Parse splits entries on their first '=' and checks that every coordination
// key is present with a non-empty value.
func Parse(entries []string) (map[string]string, error) {
	vars := make(map[string]string, len(entries))
	for _, e := range entries {
		name, value, ok := strings.Cut(e, "=")
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrMalformedEntry, e)
		}
		vars[name] = value
	}
	for _, k := range Keys {
		if vars[k] == "" {
			return nil, fmt.Errorf("%w: missing %s", ErrIncomplete, k)
		}
	}
	return vars, nil
}
