package config

import "time"

// Default worker configuration
const (
	// DefaultCertFile is the server certificate presented to the aggregator
	DefaultCertFile = "certs/server.crt"

	// DefaultKeyFile is the private key of DefaultCertFile
	DefaultKeyFile = "certs/server.key"

	// DefaultShutdownTimeout bounds the graceful stop of the gRPC server
	DefaultShutdownTimeout = 10 * time.Second

	// DefaultConsentTimeout is how long an operator has to answer a prompt
	DefaultConsentTimeout = 5 * time.Minute

	// DefaultConsoleAddr is where the MCP operator console listens
	DefaultConsoleAddr = "127.0.0.1:8090"

	// DefaultRounds is the number of boosting rounds per training run
	DefaultRounds = 10

	// DefaultLogLevel is the minimum level written to the log stream
	DefaultLogLevel = "info"

	// DefaultLogFormat selects the slog handler
	DefaultLogFormat = "json"

	// EnvPrefix prefixes every environment override
	EnvPrefix = "FXGB"
)

// DefaultTrainer is the argv of the external allreduce trainer.
var DefaultTrainer = []string{"python3", "-m", "fxgb.train"}

// Consent modes
const (
	ConsentPrompt  = "prompt"
	ConsentConsole = "console"
	ConsentAccept  = "accept"
	ConsentReject  = "reject"
)
