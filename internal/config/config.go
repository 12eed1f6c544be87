package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// TransportConfig configures the Telegram long-poll transport.
type TransportConfig struct {
	Token       string `json:"token"`
	Proxy       string `json:"proxy,omitempty"`
	PollTimeout int    `json:"poll_timeout,omitempty"` // seconds
}

// GenerationConfig configures the OpenAI generation backend.
type GenerationConfig struct {
	APIKey         string  `json:"api_key"`
	BaseURL        string  `json:"base_url,omitempty"`
	Model          string  `json:"model,omitempty"`
	Temperature    float32 `json:"temperature,omitempty"`
	PersonaVersion string  `json:"persona_version"`
	// CostPerEvent is the estimated generation cost one diverted event
	// avoids, used for the quarantine cost_saved counter.
	CostPerEvent float64 `json:"cost_per_event,omitempty"`
}

// StageConfig overrides the retry policy for one pipeline stage.
type StageConfig struct {
	TimeoutSeconds int `json:"timeout_seconds,omitempty"`
	MaxRetries     int `json:"max_retries,omitempty"`
	BackoffMillis  int `json:"backoff_millis,omitempty"`
}

// SchedulerConfig holds the cron specs for the background jobs.
type SchedulerConfig struct {
	RecoveryInterval string `json:"recovery_interval,omitempty"`
	QuarantineSweep  string `json:"quarantine_sweep,omitempty"`
	CommitmentSweep  string `json:"commitment_sweep,omitempty"`
	DeliveryInterval string `json:"delivery_interval,omitempty"`
}

// CoherenceConfig holds the classification thresholds.
type CoherenceConfig struct {
	OverlapBufferMinutes int `json:"overlap_buffer_minutes,omitempty"`
	RepetitionThreshold  int `json:"repetition_threshold,omitempty"`
	ExpiryGraceMinutes   int `json:"expiry_grace_minutes,omitempty"`
}

// Config is the flat courier configuration stored at
// ~/.courier/config.json.
type Config struct {
	Version    string                 `json:"version"`
	Transport  TransportConfig        `json:"transport"`
	Generation GenerationConfig       `json:"generation"`
	Stages     map[string]StageConfig `json:"stages,omitempty"`
	Scheduler  SchedulerConfig        `json:"scheduler,omitempty"`
	Coherence  CoherenceConfig        `json:"coherence,omitempty"`
	// RecoveryConcurrency bounds how many users one recovery run
	// replays in parallel.
	RecoveryConcurrency int `json:"recovery_concurrency,omitempty"`
}

// Default returns a config with the documented defaults filled in.
// Secrets (token, API key) are left empty for the operator.
func Default() *Config {
	return &Config{
		Version: "1",
		Transport: TransportConfig{
			PollTimeout: 30,
		},
		Generation: GenerationConfig{
			Model:          "gpt-4o-mini",
			PersonaVersion: "v1",
			CostPerEvent:   0.02,
		},
		Scheduler: SchedulerConfig{
			RecoveryInterval: "@every 15m",
			QuarantineSweep:  "@daily",
			CommitmentSweep:  "@hourly",
			DeliveryInterval: "@every 1m",
		},
		Coherence: CoherenceConfig{
			RepetitionThreshold: 3,
			ExpiryGraceMinutes:  60,
		},
		RecoveryConcurrency: 4,
	}
}

// Path returns the config file location (~/.courier/config.json).
func Path() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".courier", "config.json"), nil
}

// Load reads the config file. Environment variables COURIER_TELEGRAM_TOKEN
// and COURIER_OPENAI_KEY override the stored secrets so they can stay
// out of the file entirely.
func Load() (*Config, error) {
	path, err := Path()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	applyEnv(&cfg)
	return &cfg, nil
}

// LoadOrDefault returns the stored config, or the defaults if no file
// exists yet. Environment overrides apply either way.
func LoadOrDefault() (*Config, error) {
	cfg, err := Load()
	if err == nil {
		return cfg, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	cfg = Default()
	applyEnv(cfg)
	return cfg, nil
}

// Save writes the config file, creating ~/.courier if needed.
func Save(cfg *Config) error {
	path, err := Path()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	// Token and API key may be present, keep the file owner-only.
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("COURIER_TELEGRAM_TOKEN"); v != "" {
		cfg.Transport.Token = v
	}
	if v := os.Getenv("COURIER_OPENAI_KEY"); v != "" {
		cfg.Generation.APIKey = v
	}
}
