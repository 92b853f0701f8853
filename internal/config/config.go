// Package config parses and validates the orchestrator's configuration
// surface (§6): queue, lock, security, build, deploy, canary and events
// options. Loading follows the teacher's map-marshal-then-validate idiom
// (internal/runner/config.go's ParseDockerConfig) rather than introducing a
// new struct-tag validation library.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
)

type QueueConfig struct {
	VisibilityTimeout time.Duration `json:"visibility_timeout"`
	MaxRetries        int           `json:"max_retries"`
	PriorityBands     int           `json:"priority_bands"`
}

type LockConfig struct {
	TTL            time.Duration `json:"ttl"`
	RenewFraction  float64       `json:"renew_fraction"`
}

type SecurityConfig struct {
	Policy    string        `json:"policy"`
	MaxHigh   int           `json:"max_high"`
	Timeout   time.Duration `json:"timeout"`
	SkipDirs  []string      `json:"skip_dirs"`
}

type BuildConfig struct {
	Timeout           time.Duration `json:"timeout"`
	BaseImageRetries  int           `json:"base_image_retries"`
	LogLineRateLimit  int           `json:"log_line_rate_limit"`
}

type DeployConfig struct {
	StopTimeout           time.Duration `json:"stop_timeout"`
	HealthInterval        time.Duration `json:"health_interval"`
	HealthSamples         int           `json:"health_samples"`
	MinSuccess            int           `json:"min_success"`
	MaxConsecutiveFailures int          `json:"max_consecutive_failures"`
}

type CanaryStage struct {
	Weight   int           `json:"weight"`
	Duration time.Duration `json:"duration"`
}

type CanaryConfig struct {
	Stages              []CanaryStage `json:"stages"`
	ErrorRateThreshold  float64       `json:"error_rate_threshold"`
}

type EventsConfig struct {
	SubscriberBuffer int    `json:"subscriber_buffer"`
	OverflowPolicy   string `json:"overflow_policy"`
}

// Config is the full recognized configuration surface of §6.
type Config struct {
	Queue    QueueConfig    `json:"queue"`
	Lock     LockConfig     `json:"lock"`
	Security SecurityConfig `json:"security"`
	Build    BuildConfig    `json:"build"`
	Deploy   DeployConfig   `json:"deploy"`
	Canary   CanaryConfig   `json:"canary"`
	Events   EventsConfig   `json:"events"`

	Database     string `json:"database"`
	EtcdEndpoints []string `json:"etcd_endpoints"`
	RedisAddr    string `json:"redis_addr"`
}

// Default returns the configuration surface populated with every default
// value named in §6.
func Default() Config {
	return Config{
		Queue: QueueConfig{
			VisibilityTimeout: 10 * time.Minute,
			MaxRetries:        3,
			PriorityBands:     4,
		},
		Lock: LockConfig{
			TTL:           10 * time.Minute,
			RenewFraction: 1.0 / 3.0,
		},
		Security: SecurityConfig{
			Policy:   "strict",
			MaxHigh:  5,
			Timeout:  120 * time.Second,
			SkipDirs: []string{".git", "node_modules", "vendor", ".venv", "__pycache__"},
		},
		Build: BuildConfig{
			Timeout:          15 * time.Minute,
			BaseImageRetries: 2,
			LogLineRateLimit: 200,
		},
		Deploy: DeployConfig{
			StopTimeout:            30 * time.Second,
			HealthInterval:         10 * time.Second,
			HealthSamples:          12,
			MinSuccess:             10,
			MaxConsecutiveFailures: 3,
		},
		Canary: CanaryConfig{
			Stages: []CanaryStage{
				{Weight: 10, Duration: 5 * time.Minute},
				{Weight: 50, Duration: 5 * time.Minute},
				{Weight: 100, Duration: 0},
			},
			ErrorRateThreshold: 0.05,
		},
		Events: EventsConfig{
			SubscriberBuffer: 1024,
			OverflowPolicy:   "drop_oldest",
		},
		Database: "sqlite://./data/deployctl.db",
	}
}

// LoadFromEnv loads a .env file if present (mirrors the teacher's CLI
// EnvVars-driven flags) and overlays environment variables onto defaults.
func LoadFromEnv() (Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if v := os.Getenv("DEPLOYCTL_DATABASE"); v != "" {
		cfg.Database = v
	}
	if v := os.Getenv("DEPLOYCTL_REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("DEPLOYCTL_ETCD_ENDPOINTS"); v != "" {
		cfg.EtcdEndpoints = splitNonEmpty(v, ",")
	}
	if v := os.Getenv("DEPLOYCTL_SECURITY_POLICY"); v != "" {
		cfg.Security.Policy = v
	}
	return cfg, validate(cfg)
}

func splitNonEmpty(s, sep string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(s)-len(sep); i++ {
		if s[i:i+len(sep)] == sep {
			if part := s[start:i]; part != "" {
				out = append(out, part)
			}
			start = i + len(sep)
		}
	}
	if part := s[start:]; part != "" {
		out = append(out, part)
	}
	return out
}

func validate(cfg Config) error {
	switch cfg.Security.Policy {
	case "strict", "balanced", "permissive":
	default:
		return fmt.Errorf("config: unknown security.policy %q", cfg.Security.Policy)
	}
	if cfg.Queue.PriorityBands < 1 {
		return fmt.Errorf("config: queue.priority_bands must be >= 1")
	}
	for _, stage := range cfg.Canary.Stages {
		if !validCanaryWeight(stage.Weight) {
			return fmt.Errorf("config: canary stage weight %d not in allowed set", stage.Weight)
		}
		if stage.Duration < 60*time.Second && stage.Duration != 0 {
			return fmt.Errorf("config: canary stage duration %s below minimum", stage.Duration)
		}
		if stage.Duration > 30*time.Minute {
			return fmt.Errorf("config: canary stage duration %s above maximum", stage.Duration)
		}
	}
	return nil
}

func validCanaryWeight(w int) bool {
	switch w {
	case 5, 10, 25, 50, 75, 100:
		return true
	}
	return false
}
