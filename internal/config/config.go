// Package config loads the worker configuration: defaults, then an optional
// YAML file, then FXGB_* environment variables, then the positional
// arguments of the command line.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"reflect"
	"strconv"
	"time"

	"github.com/kballard/go-shellquote"
	"gopkg.in/yaml.v3"

	"github.com/AltairaLabs/fxgb-worker/internal/worker"
)

// Config is the complete worker configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server" env:"SERVER"`
	Worker   WorkerConfig   `yaml:"worker" env:"WORKER"`
	Consent  ConsentConfig  `yaml:"consent" env:"CONSENT"`
	Console  ConsoleConfig  `yaml:"console" env:"CONSOLE"`
	Session  SessionConfig  `yaml:"session" env:"SESSION"`
	Training TrainingConfig `yaml:"training" env:"TRAINING"`
	Metrics  MetricsConfig  `yaml:"metrics" env:"METRICS"`
	Log      LogConfig      `yaml:"log" env:"LOG"`
}

// ServerConfig holds the gRPC listener settings
type ServerConfig struct {
	Port            string        `yaml:"port" env:"PORT"`
	TLS             TLSConfig     `yaml:"tls" env:"TLS"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
}

// TLSConfig points at the server key pair
type TLSConfig struct {
	CertFile string `yaml:"cert_file" env:"CERT_FILE"`
	KeyFile  string `yaml:"key_file" env:"KEY_FILE"`
}

// WorkerConfig holds the local training data and the working directory of
// proposed jobs (the worker's own when empty)
type WorkerConfig struct {
	DataPath string `yaml:"data_path" env:"DATA_PATH"`
	JobDir   string `yaml:"job_dir" env:"JOB_DIR"`
}

// ConsentConfig selects how the operator is asked
type ConsentConfig struct {
	Mode    string        `yaml:"mode" env:"MODE"`
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// ConsoleConfig holds the MCP operator console settings
type ConsoleConfig struct {
	Addr string `yaml:"addr" env:"ADDR"`
}

// SessionConfig holds session state machine settings
type SessionConfig struct {
	OnRejectedReinit worker.ReinitPolicy `yaml:"on_rejected_reinit" env:"ON_REJECTED_REINIT"`
}

// TrainingConfig holds the training run settings
type TrainingConfig struct {
	Rounds  int      `yaml:"rounds" env:"ROUNDS"`
	Trainer []string `yaml:"trainer" env:"TRAINER"`
}

// MetricsConfig holds the Prometheus endpoint settings. An empty address
// disables the endpoint.
type MetricsConfig struct {
	Addr string `yaml:"addr" env:"ADDR"`
}

// LogConfig holds logging settings
type LogConfig struct {
	Level  string `yaml:"level" env:"LEVEL"`
	Format string `yaml:"format" env:"FORMAT"`
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			TLS: TLSConfig{
				CertFile: DefaultCertFile,
				KeyFile:  DefaultKeyFile,
			},
			ShutdownTimeout: DefaultShutdownTimeout,
		},
		Consent: ConsentConfig{
			Mode:    ConsentPrompt,
			Timeout: DefaultConsentTimeout,
		},
		Console: ConsoleConfig{Addr: DefaultConsoleAddr},
		Session: SessionConfig{OnRejectedReinit: worker.ReinitKeep},
		Training: TrainingConfig{
			Rounds:  DefaultRounds,
			Trainer: append([]string(nil), DefaultTrainer...),
		},
		Log: LogConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}

// Load reads path (skipped when empty) over the defaults and applies
// environment overrides. The result is not validated: positional arguments
// are applied first, see ApplyArgs and Validate.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := applyEnv(reflect.ValueOf(cfg).Elem(), EnvPrefix, os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyArgs sets the listen port and data path from the command line.
func (c *Config) ApplyArgs(port, dataPath string) {
	c.Server.Port = port
	c.Worker.DataPath = dataPath
}

// Validate checks the configuration for values the worker cannot run with.
func (c *Config) Validate() error {
	var errs []error

	port, err := strconv.Atoi(c.Server.Port)
	if err != nil || port < 1 || port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be a TCP port, got %q", c.Server.Port))
	}
	if c.Worker.DataPath == "" {
		errs = append(errs, errors.New("worker.data_path is required"))
	}
	if c.Server.TLS.CertFile == "" || c.Server.TLS.KeyFile == "" {
		errs = append(errs, errors.New("server.tls.cert_file and server.tls.key_file are required"))
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("server.shutdown_timeout must be positive"))
	}

	switch c.Consent.Mode {
	case ConsentPrompt, ConsentAccept, ConsentReject:
	case ConsentConsole:
		if c.Console.Addr == "" {
			errs = append(errs, errors.New("console.addr is required in console mode"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown consent.mode %q", c.Consent.Mode))
	}
	if c.Consent.Timeout < 0 {
		errs = append(errs, errors.New("consent.timeout must not be negative"))
	}

	if _, err := worker.ParseReinitPolicy(string(c.Session.OnRejectedReinit)); err != nil {
		errs = append(errs, fmt.Errorf("session.on_rejected_reinit: %w", err))
	}

	if c.Training.Rounds <= 0 {
		errs = append(errs, errors.New("training.rounds must be positive"))
	}
	if len(c.Training.Trainer) == 0 {
		errs = append(errs, errors.New("training.trainer is required"))
	}

	if _, err := c.SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("unknown log.format %q", c.Log.Format))
	}

	return errors.Join(errs...)
}

// SlogLevel parses Log.Level.
func (c *Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return slog.LevelInfo, fmt.Errorf("unknown log.level %q", c.Log.Level)
	}
	return level, nil
}

// applyEnv walks the struct tagged with env names and sets every field whose
// PREFIX_SECTION_NAME variable is present.
func applyEnv(v reflect.Value, prefix string, lookup func(string) (string, bool)) error {
	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		tag := t.Field(i).Tag.Get("env")
		if tag == "" || tag == "-" {
			continue
		}
		key := prefix + "_" + tag

		if field.Kind() == reflect.Struct {
			if err := applyEnv(field, key, lookup); err != nil {
				return err
			}
			continue
		}

		value, ok := lookup(key)
		if !ok || value == "" {
			continue
		}
		if err := setField(field, value); err != nil {
			return fmt.Errorf("failed to set %s: %w", key, err)
		}
	}
	return nil
}

func setField(field reflect.Value, value string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Int, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
			return nil
		}
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(n)
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice type %s", field.Type())
		}
		words, err := shellquote.Split(value)
		if err != nil {
			return err
		}
		field.Set(reflect.ValueOf(words))
	default:
		return fmt.Errorf("unsupported field type %s", field.Type())
	}
	return nil
}
