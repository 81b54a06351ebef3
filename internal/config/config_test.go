package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AltairaLabs/fxgb-worker/internal/worker"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "worker.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, DefaultCertFile, cfg.Server.TLS.CertFile)
	assert.Equal(t, DefaultKeyFile, cfg.Server.TLS.KeyFile)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, ConsentPrompt, cfg.Consent.Mode)
	assert.Equal(t, 5*time.Minute, cfg.Consent.Timeout)
	assert.Equal(t, worker.ReinitKeep, cfg.Session.OnRejectedReinit)
	assert.Equal(t, 10, cfg.Training.Rounds)
	assert.Equal(t, []string{"python3", "-m", "fxgb.train"}, cfg.Training.Trainer)
	assert.Empty(t, cfg.Metrics.Addr)
}

func TestDefaultTrainerIsCopied(t *testing.T) {
	cfg := Default()
	cfg.Training.Trainer[0] = "python"

	assert.Equal(t, "python3", DefaultTrainer[0])
}

func TestLoadWithoutFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
server:
  tls:
    cert_file: /etc/fxgb/tls.crt
    key_file: /etc/fxgb/tls.key
  shutdown_timeout: 30s
consent:
  mode: console
  timeout: 2m
console:
  addr: 0.0.0.0:9000
session:
  on_rejected_reinit: clear
training:
  rounds: 25
  trainer: ["/opt/fxgb/bin/train"]
metrics:
  addr: :9100
log:
  level: debug
  format: text
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/etc/fxgb/tls.crt", cfg.Server.TLS.CertFile)
	assert.Equal(t, "/etc/fxgb/tls.key", cfg.Server.TLS.KeyFile)
	assert.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, ConsentConsole, cfg.Consent.Mode)
	assert.Equal(t, 2*time.Minute, cfg.Consent.Timeout)
	assert.Equal(t, "0.0.0.0:9000", cfg.Console.Addr)
	assert.Equal(t, worker.ReinitClear, cfg.Session.OnRejectedReinit)
	assert.Equal(t, 25, cfg.Training.Rounds)
	assert.Equal(t, []string{"/opt/fxgb/bin/train"}, cfg.Training.Trainer)
	assert.Equal(t, ":9100", cfg.Metrics.Addr)
	assert.Equal(t, "text", cfg.Log.Format)
}

func TestLoadPartialFileKeepsDefaults(t *testing.T) {
	path := writeConfig(t, "training:\n  rounds: 3\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Training.Rounds)
	assert.Equal(t, DefaultTrainer, cfg.Training.Trainer)
	assert.Equal(t, ConsentPrompt, cfg.Consent.Mode)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadMalformedFile(t *testing.T) {
	path := writeConfig(t, "training: [rounds")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeConfig(t, "consent:\n  mode: accept\n")
	t.Setenv("FXGB_CONSENT_MODE", "reject")
	t.Setenv("FXGB_CONSENT_TIMEOUT", "45s")
	t.Setenv("FXGB_SERVER_TLS_CERT_FILE", "/run/secrets/crt")
	t.Setenv("FXGB_TRAINING_ROUNDS", "12")
	t.Setenv("FXGB_TRAINING_TRAINER", `python3 "/opt/my trainer.py"`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ConsentReject, cfg.Consent.Mode)
	assert.Equal(t, 45*time.Second, cfg.Consent.Timeout)
	assert.Equal(t, "/run/secrets/crt", cfg.Server.TLS.CertFile)
	assert.Equal(t, 12, cfg.Training.Rounds)
	assert.Equal(t, []string{"python3", "/opt/my trainer.py"}, cfg.Training.Trainer)
}

func TestLoadEnvInvalidValue(t *testing.T) {
	t.Setenv("FXGB_TRAINING_ROUNDS", "many")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "FXGB_TRAINING_ROUNDS")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"port not numeric", func(c *Config) { c.Server.Port = "grpc" }, "server.port"},
		{"port out of range", func(c *Config) { c.Server.Port = "70000" }, "server.port"},
		{"missing data path", func(c *Config) { c.Worker.DataPath = "" }, "worker.data_path"},
		{"missing key file", func(c *Config) { c.Server.TLS.KeyFile = "" }, "server.tls"},
		{"unknown consent mode", func(c *Config) { c.Consent.Mode = "maybe" }, "consent.mode"},
		{"console without addr", func(c *Config) {
			c.Consent.Mode = ConsentConsole
			c.Console.Addr = ""
		}, "console.addr"},
		{"negative consent timeout", func(c *Config) { c.Consent.Timeout = -time.Second }, "consent.timeout"},
		{"unknown reinit policy", func(c *Config) { c.Session.OnRejectedReinit = "drop" }, "on_rejected_reinit"},
		{"clear reinit policy", func(c *Config) { c.Session.OnRejectedReinit = worker.ReinitClear }, ""},
		{"empty reinit policy", func(c *Config) { c.Session.OnRejectedReinit = "" }, ""},
		{"zero rounds", func(c *Config) { c.Training.Rounds = 0 }, "training.rounds"},
		{"no trainer", func(c *Config) { c.Training.Trainer = nil }, "training.trainer"},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.ApplyArgs("50051", "/data/x.csv")
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSlogLevel(t *testing.T) {
	cfg := Default()
	cfg.Log.Level = "warn"

	level, err := cfg.SlogLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelWarn, level)
}
