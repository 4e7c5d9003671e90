package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the RedMeters server.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	ML        MLConfig
	Scheduler SchedulerConfig
}

type ServerConfig struct {
	Port int
	Env  string
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL string
}

type MLConfig struct {
	Mode         string
	ModelsPath   string
	ScoreTimeout time.Duration
	HTTP         MLHTTPConfig
	Subprocess   MLSubprocessConfig
}

type MLHTTPConfig struct {
	BaseURL string
}

type MLSubprocessConfig struct {
	Interpreter string
	ScriptPath  string
}

type SchedulerConfig struct {
	Enabled          bool
	SimulateReadings bool
	SimulateEvery    time.Duration
	DetectEvery      time.Duration
}

var validMLModes = map[string]bool{
	"http":       true,
	"subprocess": true,
}

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: envInt("REDMETERS_PORT", 8080),
			Env:  envString("REDMETERS_ENV", "development"),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		ML: MLConfig{
			Mode:         envString("ML_MODE", "subprocess"),
			ModelsPath:   envString("ML_MODELS_PATH", "./ml/models"),
			ScoreTimeout: envDurationSecs("ML_SCORE_TIMEOUT_SECS", 60*time.Second),
			HTTP: MLHTTPConfig{
				BaseURL: os.Getenv("ML_BASE_URL"),
			},
			Subprocess: MLSubprocessConfig{
				Interpreter: envString("ML_INTERPRETER", "python3"),
				ScriptPath:  envString("ML_SCRIPT_PATH", "ml/src/score_batch.py"),
			},
		},
		Scheduler: SchedulerConfig{
			Enabled:          envBool("SCHEDULER_ENABLED", true),
			SimulateReadings: envBool("SIMULATOR_ENABLED", false),
			SimulateEvery:    envDuration("SIMULATOR_INTERVAL", 15*time.Minute),
			DetectEvery:      envDuration("DETECTION_INTERVAL", 5*time.Minute),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if !validMLModes[c.ML.Mode] {
		return fmt.Errorf("ML_MODE must be one of http, subprocess; got %q", c.ML.Mode)
	}
	if c.ML.Mode == "http" {
		if c.ML.HTTP.BaseURL == "" {
			return fmt.Errorf("ML_BASE_URL is required when ML_MODE is http")
		}
		if !strings.HasPrefix(c.ML.HTTP.BaseURL, "http://") && !strings.HasPrefix(c.ML.HTTP.BaseURL, "https://") {
			return fmt.Errorf("ML_BASE_URL must start with http:// or https://, got %q", c.ML.HTTP.BaseURL)
		}
	}
	if c.ML.Mode == "subprocess" && c.ML.Subprocess.ScriptPath == "" {
		return fmt.Errorf("ML_SCRIPT_PATH is required when ML_MODE is subprocess")
	}

	if c.Scheduler.DetectEvery < time.Minute {
		return fmt.Errorf("DETECTION_INTERVAL must be at least 1m, got %s", c.Scheduler.DetectEvery)
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

func envDurationSecs(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	secs, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return time.Duration(secs) * time.Second
}
