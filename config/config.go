package config

import (
	"errors"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type HTTP struct {
	Addr string `yaml:"addr"`
}

type Logging struct {
	Env       string `yaml:"env"`       // dev|prod
	Service   string `yaml:"service"`   // sim-service
	Version   string `yaml:"version"`   // v0.1.0
	Backend   string `yaml:"backend"`   // std|zap
	AddSource bool   `yaml:"addSource"` // false|true
	Debug     bool   `yaml:"debug"`     // false|true
}

type Postgres struct {
	DSN string `yaml:"dsn"`
}

type NATS struct {
	// URL is empty for single-instance deployments; broadcasts then stay
	// in-process.
	URL string `yaml:"url"`
}

type Admin struct {
	// Secret gates the facilitator HTTP endpoints (X-Admin-Secret header)
	// and the admin role flag on the socket. Empty disables the check.
	Secret string `yaml:"secret"`
}

type Scheduler struct {
	MinInterval string  `yaml:"minInterval"` // e.g. "15s"
	MaxInterval string  `yaml:"maxInterval"` // e.g. "30s"
	Probability float64 `yaml:"probability"` // chance to emit per tick
}

type Config struct {
	HTTP      HTTP      `yaml:"http"`
	Logging   Logging   `yaml:"logging"`
	Postgres  Postgres  `yaml:"postgres"`
	NATS      NATS      `yaml:"nats"`
	Admin     Admin     `yaml:"admin"`
	Scheduler Scheduler `yaml:"scheduler"`
}

func LoadConfig() (*Config, error) {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "./config/config.yaml"
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.HTTP.Addr == "" {
		return errors.New("http.addr is required")
	}
	if c.Postgres.DSN == "" {
		return errors.New("postgres.dsn is required")
	}
	if c.Logging.Service == "" {
		c.Logging.Service = "sim-service"
	}
	if c.Logging.Env == "" {
		c.Logging.Env = "dev"
	}
	if c.Logging.Version == "" {
		c.Logging.Version = "v0.1.0"
	}
	if c.Logging.Backend == "" {
		c.Logging.Backend = "std"
	}
	if c.Scheduler.Probability <= 0 || c.Scheduler.Probability > 1 {
		c.Scheduler.Probability = 0.3
	}
	return nil
}

// Intervals returns the tick range; malformed or missing values fall back to
// the 15-30s pacing of the original exercise.
func (s Scheduler) Intervals() (min, max time.Duration) {
	min = parseDurationOr(15*time.Second, s.MinInterval)
	max = parseDurationOr(30*time.Second, s.MaxInterval)
	if max < min {
		max = min
	}
	return min, max
}

func parseDurationOr(def time.Duration, s string) time.Duration {
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	return def
}
