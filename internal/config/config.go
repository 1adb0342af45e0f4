// Package config loads mdforge's run configuration from a YAML file into a
// typed struct whose zero-valued fields fall back to built-in defaults.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// File is the on-disk shape of the config file. Every field is optional;
// zero values fall back to the Default() below.
type File struct {
	DatabasePath string `yaml:"database_path,omitempty"`
	LogsRoot     string `yaml:"logs_root,omitempty"`
	ScratchRoot  string `yaml:"scratch_root,omitempty"`

	AssistantBinary string   `yaml:"assistant_binary,omitempty"`
	AssistantModel  string   `yaml:"assistant_model,omitempty"`
	AllowedTools    []string `yaml:"allowed_tools,omitempty"`

	DefaultTimeoutSeconds int `yaml:"default_timeout_seconds,omitempty"`
	ImplTimeoutSeconds    int `yaml:"implementation_timeout_seconds,omitempty"`

	ReconcilerIntervalMS int `yaml:"reconciler_interval_ms,omitempty"`
	ZombieGraceMS        int `yaml:"zombie_grace_ms,omitempty"`

	LogLevel string `yaml:"log_level,omitempty"`

	StagePrompts map[string]string `yaml:"stage_prompts,omitempty"`
}

// Config is the resolved, defaulted configuration the rest of the program
// consumes.
type Config struct {
	DatabasePath string
	LogsRoot     string
	ScratchRoot  string

	AssistantBinary string
	AssistantModel  string
	AllowedTools    []string

	DefaultTimeout time.Duration
	ImplTimeout    time.Duration

	ReconcilerInterval time.Duration
	ZombieGrace        time.Duration

	LogLevel string

	StagePrompts map[string]string
}

// Default returns mdforge's built-in defaults.
func Default() Config {
	return Config{
		DatabasePath:    "mdforge.db",
		LogsRoot:        "~/.mdforge/logs",
		ScratchRoot:     "",
		AssistantBinary: "claude",
		AssistantModel:  "",
		AllowedTools: []string{
			"Read", "Write", "Edit", "MultiEdit", "Bash", "Glob", "Grep",
		},
		DefaultTimeout:     5 * time.Minute,
		ImplTimeout:        30 * time.Minute,
		ReconcilerInterval: 3 * time.Second,
		ZombieGrace:        5 * time.Second,
		LogLevel:           "dev",
	}
}

// Load reads path (if non-empty) and merges it onto Default().
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	var f File
	if err := yaml.Unmarshal(b, &f); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	applyOverrides(&cfg, f)
	return cfg, nil
}

func applyOverrides(cfg *Config, f File) {
	if f.DatabasePath != "" {
		cfg.DatabasePath = f.DatabasePath
	}
	if f.LogsRoot != "" {
		cfg.LogsRoot = f.LogsRoot
	}
	if f.ScratchRoot != "" {
		cfg.ScratchRoot = f.ScratchRoot
	}
	if f.AssistantBinary != "" {
		cfg.AssistantBinary = f.AssistantBinary
	}
	if f.AssistantModel != "" {
		cfg.AssistantModel = f.AssistantModel
	}
	if len(f.AllowedTools) > 0 {
		cfg.AllowedTools = f.AllowedTools
	}
	if f.DefaultTimeoutSeconds > 0 {
		cfg.DefaultTimeout = time.Duration(f.DefaultTimeoutSeconds) * time.Second
	}
	if f.ImplTimeoutSeconds > 0 {
		cfg.ImplTimeout = time.Duration(f.ImplTimeoutSeconds) * time.Second
	}
	if f.ReconcilerIntervalMS > 0 {
		cfg.ReconcilerInterval = time.Duration(f.ReconcilerIntervalMS) * time.Millisecond
	}
	if f.ZombieGraceMS > 0 {
		cfg.ZombieGrace = time.Duration(f.ZombieGraceMS) * time.Millisecond
	}
	if f.LogLevel != "" {
		cfg.LogLevel = f.LogLevel
	}
	if len(f.StagePrompts) > 0 {
		if cfg.StagePrompts == nil {
			cfg.StagePrompts = map[string]string{}
		}
		for k, v := range f.StagePrompts {
			cfg.StagePrompts[k] = v
		}
	}
}
