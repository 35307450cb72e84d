package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server ServerConfig `yaml:"server"`
	Pebble PebbleConfig `yaml:"pebble"`
	Labels LabelsConfig `yaml:"labels"`
	Ingest IngestConfig `yaml:"ingest"`
	Engine EngineConfig `yaml:"engine"`
}

// ServerConfig represents the HTTP server configuration
type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
}

// PebbleConfig represents the Pebble database configuration
type PebbleConfig struct {
	Path string `yaml:"path"`
}

// LabelsConfig points at the curated entity label file
type LabelsConfig struct {
	Path string `yaml:"path"`
}

// IngestConfig controls data loading at startup
type IngestConfig struct {
	// FeedPath is an optional JSONL transaction feed bulk-loaded on boot
	FeedPath string `yaml:"feed_path"`
	// Demo seeds the built-in demo scenario when no feed is configured
	Demo bool `yaml:"demo"`
	// Strict rejects unbalanced transactions at ingest instead of
	// recording them for exclusion at read time
	Strict bool `yaml:"strict"`
}

// EngineConfig carries the analysis tunables
type EngineConfig struct {
	MaxHops         int           `yaml:"max_hops"`
	MaxNodes        int           `yaml:"max_nodes"`
	TraceDeadline   time.Duration `yaml:"trace_deadline"`
	RiskDecay       float64       `yaml:"risk_decay"`
	MergeThreshold  float64       `yaml:"merge_threshold"`
	PeelMinLength   int           `yaml:"peel_min_length"`
	PeelValueFloor  int64         `yaml:"peel_value_floor"`
	MixerTimeWindow time.Duration `yaml:"mixer_time_window"`
	MixerFeeTol     float64       `yaml:"mixer_fee_tolerance"`
}

// Load loads configuration from a YAML file and environment variables
func Load(path string) (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: 8080,
			Host: "0.0.0.0",
		},
		Pebble: PebbleConfig{
			Path: "./data/pebble",
		},
		Labels: LabelsConfig{
			Path: "./configs/labels.yaml",
		},
		Engine: EngineConfig{
			MaxHops:         50,
			MaxNodes:        10000,
			TraceDeadline:   30 * time.Second,
			RiskDecay:       0.85,
			MergeThreshold:  0.6,
			PeelMinLength:   3,
			PeelValueFloor:  1000,
			MixerTimeWindow: 72 * time.Hour,
			MixerFeeTol:     0.03,
		},
	}

	// Load from YAML file if it exists
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		} else {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	// Override with environment variables
	cfg.loadEnv()

	return cfg, nil
}

func (c *Config) loadEnv() {
	// Server config
	if port := os.Getenv("SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.Port = p
		}
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		c.Server.Host = host
	}

	// Pebble config
	if path := os.Getenv("PEBBLE_PATH"); path != "" {
		c.Pebble.Path = path
	}

	// Labels config
	if path := os.Getenv("LABELS_PATH"); path != "" {
		c.Labels.Path = path
	}

	// Ingest config
	if feed := os.Getenv("INGEST_FEED_PATH"); feed != "" {
		c.Ingest.FeedPath = feed
	}
	if demo := os.Getenv("INGEST_DEMO"); demo != "" {
		c.Ingest.Demo = demo == "true" || demo == "1"
	}
	if strict := os.Getenv("INGEST_STRICT"); strict != "" {
		c.Ingest.Strict = strict == "true" || strict == "1"
	}

	// Engine config
	if hops := os.Getenv("ENGINE_MAX_HOPS"); hops != "" {
		if h, err := strconv.Atoi(hops); err == nil {
			c.Engine.MaxHops = h
		}
	}
	if nodes := os.Getenv("ENGINE_MAX_NODES"); nodes != "" {
		if n, err := strconv.Atoi(nodes); err == nil {
			c.Engine.MaxNodes = n
		}
	}
	if deadline := os.Getenv("ENGINE_TRACE_DEADLINE"); deadline != "" {
		if d, err := time.ParseDuration(deadline); err == nil {
			c.Engine.TraceDeadline = d
		}
	}
	if decay := os.Getenv("ENGINE_RISK_DECAY"); decay != "" {
		if d, err := strconv.ParseFloat(decay, 64); err == nil {
			c.Engine.RiskDecay = d
		}
	}
}
