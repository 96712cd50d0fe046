package config

import (
	"fmt"
	"os"
	"time"

	"github.com/flapjack-io/flapjack/pkg/dispatch"
	"github.com/flapjack-io/flapjack/pkg/log"
	"github.com/flapjack-io/flapjack/pkg/processor"
	"gopkg.in/yaml.v3"
)

// Config is the top-level shape of Flapjack's YAML configuration file.
type Config struct {
	Store     StoreConfig              `yaml:"store"`
	Processor ProcessorConfig          `yaml:"processor"`
	Notifier  NotifierConfig           `yaml:"notifier"`
	Gateways  map[string]GatewayConfig `yaml:"gateways"`
	Log       LogConfig                `yaml:"log"`
}

// StoreConfig selects and configures the entity store backend.
type StoreConfig struct {
	Backend   string `yaml:"backend"`    // "bolt" (default) or "redis"
	Path      string `yaml:"path"`       // bolt: database file path
	RedisAddr string `yaml:"redis_addr"` // redis: host:port
}

// ProcessorConfig holds the processor.* options.
type ProcessorConfig struct {
	InitialFailureDelay                  int `yaml:"initial_failure_delay"`
	RepeatFailureDelay                   int `yaml:"repeat_failure_delay"`
	NewCheckScheduledMaintenanceDuration int `yaml:"new_check_scheduled_maintenance_duration"`
	StateRetention                       int `yaml:"state_retention"`
	DisableAutoCreate                    bool `yaml:"disable_auto_create"`
}

// NotifierConfig holds the notifier.* options.
type NotifierConfig struct {
	MaxAttempts      int `yaml:"max_attempts"`
	MaxBackoff       int `yaml:"max_backoff"`
	ShutdownGrace    int `yaml:"shutdown_grace"`
	WorkersPerMedium int `yaml:"workers_per_medium"`
}

// GatewayConfig holds the gateways.<medium>.* options.
type GatewayConfig struct {
	Queue   string `yaml:"queue"`
	Timeout int    `yaml:"timeout"`
}

// LogConfig controls the process-wide zerolog.Logger.
type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// Load reads and parses path, applying defaults to any option left
// unset. A missing or malformed file is a config error (exit code 1
// in cmd/flapjack's process wrapper).
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Store.Backend == "" {
		c.Store.Backend = "bolt"
	}
	if c.Store.Path == "" {
		c.Store.Path = "flapjack.db"
	}
	if c.Processor.RepeatFailureDelay <= 0 {
		c.Processor.RepeatFailureDelay = 300
	}
	if c.Processor.StateRetention <= 0 {
		c.Processor.StateRetention = 100
	}
	if c.Notifier.MaxAttempts <= 0 {
		c.Notifier.MaxAttempts = 3
	}
	if c.Notifier.MaxBackoff <= 0 {
		c.Notifier.MaxBackoff = 60
	}
	if c.Notifier.ShutdownGrace <= 0 {
		c.Notifier.ShutdownGrace = 10
	}
	if c.Notifier.WorkersPerMedium <= 0 {
		c.Notifier.WorkersPerMedium = 4
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	for medium, gw := range c.Gateways {
		if gw.Timeout <= 0 {
			gw.Timeout = 30
			c.Gateways[medium] = gw
		}
	}
}

// ToProcessorConfig converts the YAML seconds-based fields into the
// time.Duration-based processor.Config the Check Processor consumes.
func (c *Config) ToProcessorConfig() processor.Config {
	return processor.Config{
		InitialFailureDelay:                  time.Duration(c.Processor.InitialFailureDelay) * time.Second,
		RepeatFailureDelay:                   time.Duration(c.Processor.RepeatFailureDelay) * time.Second,
		NewCheckScheduledMaintenanceDuration: time.Duration(c.Processor.NewCheckScheduledMaintenanceDuration) * time.Second,
		DisableAutoCreate:                    c.Processor.DisableAutoCreate,
	}
}

// ToDispatchConfig converts the YAML seconds-based fields into the
// time.Duration-based dispatch.Config the Alert Dispatcher consumes.
//
// Gateway timeouts are configured per medium (gateways.<medium>.timeout)
// but dispatch.Dispatcher applies a single handler timeout across all
// workers; ToDispatchConfig uses the longest configured gateway timeout
// so no medium's handler is cut off early, falling back to 30s when no
// gateway is configured.
func (c *Config) ToDispatchConfig() dispatch.Config {
	handlerTimeout := 30 * time.Second
	for _, gw := range c.Gateways {
		if t := time.Duration(gw.Timeout) * time.Second; t > handlerTimeout {
			handlerTimeout = t
		}
	}
	return dispatch.Config{
		WorkersPerMedium: c.Notifier.WorkersPerMedium,
		MaxAttempts:      c.Notifier.MaxAttempts,
		MaxBackoff:       time.Duration(c.Notifier.MaxBackoff) * time.Second,
		ShutdownGrace:    time.Duration(c.Notifier.ShutdownGrace) * time.Second,
		HandlerTimeout:   handlerTimeout,
	}
}

// ToLogConfig converts the YAML log options into log.Config.
func (c *Config) ToLogConfig() log.Config {
	return log.Config{
		Level:      log.Level(c.Log.Level),
		JSONOutput: c.Log.JSON,
	}
}
