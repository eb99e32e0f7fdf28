package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the server configuration, loadable from a YAML file with env
// overrides for the common knobs.
type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	Relay struct {
		PingIntervalSec  int `yaml:"ping_interval_sec"`
		PongWaitSec      int `yaml:"pong_wait_sec"`
		WriteWaitSec     int `yaml:"write_wait_sec"`
		MaxMessageBytes  int `yaml:"max_message_bytes"`
		SendBufferFrames int `yaml:"send_buffer_frames"`
	} `yaml:"relay"`

	Reaper struct {
		IntervalMin  int `yaml:"interval_min"`
		ThresholdHrs int `yaml:"threshold_hrs"`
	} `yaml:"reaper"`
}

func defaultConfig() *Config {
	var cfg Config
	cfg.Server.Port = "8080"
	cfg.Relay.PingIntervalSec = 30
	cfg.Relay.PongWaitSec = 60
	cfg.Relay.WriteWaitSec = 10
	cfg.Relay.MaxMessageBytes = 4096
	cfg.Relay.SendBufferFrames = 256
	cfg.Reaper.IntervalMin = 60
	cfg.Reaper.ThresholdHrs = 24
	return &cfg
}

// loadConfig reads the YAML file at path over the defaults. A missing file
// is not an error; env overrides apply last.
func loadConfig(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.Server.Port = getEnv("PORT", cfg.Server.Port)
	cfg.Reaper.ThresholdHrs = getEnvAsInt("PARTY_IDLE_HOURS", cfg.Reaper.ThresholdHrs)
	return cfg, nil
}

func (c *Config) pingInterval() time.Duration {
	return time.Duration(c.Relay.PingIntervalSec) * time.Second
}

func (c *Config) pongWait() time.Duration {
	return time.Duration(c.Relay.PongWaitSec) * time.Second
}

func (c *Config) writeWait() time.Duration {
	return time.Duration(c.Relay.WriteWaitSec) * time.Second
}

func (c *Config) reapInterval() time.Duration {
	return time.Duration(c.Reaper.IntervalMin) * time.Minute
}

func (c *Config) idleThreshold() time.Duration {
	return time.Duration(c.Reaper.ThresholdHrs) * time.Hour
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
