package config

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func inTempDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(wd) })
	return dir
}

func TestLoad_Defaults(t *testing.T) {
	inTempDir(t)

	cfg, err := Load(discard(), "config")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, "warehouse", cfg.Auth.Issuer)
	assert.Equal(t, 30*time.Minute, cfg.Auth.TokenTTL)
	assert.Equal(t, 60*time.Second, cfg.Transport.PongWait)
	assert.Equal(t, int64(4096), cfg.Transport.MaxMessageSize)
	assert.Equal(t, 256, cfg.Transport.SendBuffer)
	assert.Empty(t, cfg.Transport.AllowedOrigins)
	assert.Equal(t, "@every 5m", cfg.Liveness.Schedule)
	assert.Equal(t, 30*time.Minute, cfg.Liveness.Timeout)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_FileAndEnvPrecedence(t *testing.T) {
	dir := inTempDir(t)
	yaml := "server:\n  address: \":9000\"\nliveness:\n  timeout: 10m\nlog:\n  level: debug\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o600))
	t.Setenv("WAREHOUSE_SERVER_ADDRESS", ":9100")

	cfg, err := Load(discard(), "config")
	require.NoError(t, err)

	assert.Equal(t, ":9100", cfg.Server.Address)
	assert.Equal(t, 10*time.Minute, cfg.Liveness.Timeout)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_RejectsInvalid(t *testing.T) {
	dir := inTempDir(t)
	yaml := "liveness:\n  schedule: \"not a schedule\"\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o600))

	_, err := Load(discard(), "config")
	assert.ErrorContains(t, err, "liveness.schedule")
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Server:    ServerConfig{Address: ":8080", ShutdownTimeout: time.Second},
			Auth:      AuthConfig{JWTSecret: "x", TokenTTL: time.Minute},
			Transport: TransportConfig{WriteWait: time.Second, PongWait: time.Second, MaxMessageSize: 1, SendBuffer: 1},
			Liveness:  LivenessConfig{Schedule: "*/5 * * * *", Timeout: time.Minute},
			Log:       LogConfig{Level: "warn"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "empty secret", mutate: func(c *Config) { c.Auth.JWTSecret = "" }, wantErr: "auth.jwtSecret"},
		{name: "zero pong wait", mutate: func(c *Config) { c.Transport.PongWait = 0 }, wantErr: "transport.pongWait"},
		{name: "zero send buffer", mutate: func(c *Config) { c.Transport.SendBuffer = 0 }, wantErr: "transport.sendBuffer"},
		{name: "negative timeout", mutate: func(c *Config) { c.Liveness.Timeout = -time.Second }, wantErr: "liveness.timeout"},
		{name: "bad level", mutate: func(c *Config) { c.Log.Level = "loud" }, wantErr: "log.level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}
