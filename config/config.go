package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Auth      AuthConfig
	Transport TransportConfig
	Liveness  LivenessConfig
	Log       LogConfig
}

type ServerConfig struct {
	Address         string
	ShutdownTimeout time.Duration `mapstructure:"shutdownTimeout"`
}

type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwtSecret"`
	Issuer    string        `mapstructure:"issuer"`
	TokenTTL  time.Duration `mapstructure:"tokenTTL"`
}

type TransportConfig struct {
	WriteWait      time.Duration `mapstructure:"writeWait"`
	PongWait       time.Duration `mapstructure:"pongWait"`
	MaxMessageSize int64         `mapstructure:"maxMessageSize"`
	SendBuffer     int           `mapstructure:"sendBuffer"`
	AllowedOrigins []string      `mapstructure:"allowedOrigins"`
}

type LivenessConfig struct {
	Schedule string
	Timeout  time.Duration
}

type LogConfig struct {
	Level string
}

// Load reads .env, an optional YAML file named fileName and WAREHOUSE_* environment variables, in
// increasing order of precedence.
func Load(logger *slog.Logger, fileName string) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logger.Debug("no .env file found, using environment variables")
	}

	v := viper.New()

	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.shutdownTimeout", "10s")
	v.SetDefault("auth.jwtSecret", "change-me")
	v.SetDefault("auth.issuer", "warehouse")
	v.SetDefault("auth.tokenTTL", "30m")
	v.SetDefault("transport.writeWait", "10s")
	v.SetDefault("transport.pongWait", "60s")
	v.SetDefault("transport.maxMessageSize", 4096)
	v.SetDefault("transport.sendBuffer", 256)
	v.SetDefault("transport.allowedOrigins", []string{})
	v.SetDefault("liveness.schedule", "@every 5m")
	v.SetDefault("liveness.timeout", "30m")
	v.SetDefault("log.level", "info")

	v.SetConfigName(fileName)
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("WAREHOUSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		logger.Warn("config file not found, relying on defaults and environment")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.Server.Address == "" {
		errs = append(errs, errors.New("server.address is required"))
	}
	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("auth.jwtSecret is required"))
	}
	positive := map[string]time.Duration{
		"server.shutdownTimeout": c.Server.ShutdownTimeout,
		"auth.tokenTTL":          c.Auth.TokenTTL,
		"transport.writeWait":    c.Transport.WriteWait,
		"transport.pongWait":     c.Transport.PongWait,
		"liveness.timeout":       c.Liveness.Timeout,
	}
	for key, d := range positive {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", key, d))
		}
	}
	if c.Transport.MaxMessageSize <= 0 {
		errs = append(errs, errors.New("transport.maxMessageSize must be positive"))
	}
	if c.Transport.SendBuffer <= 0 {
		errs = append(errs, errors.New("transport.sendBuffer must be positive"))
	}
	if _, err := cron.ParseStandard(c.Liveness.Schedule); err != nil {
		errs = append(errs, fmt.Errorf("liveness.schedule: %w", err))
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// ParseLevel maps log.level onto slog levels.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("log.level: unknown level %q", s)
}
