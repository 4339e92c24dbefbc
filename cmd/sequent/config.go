package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"

	"github.com/sequent-io/sequent/internal/scheduler"
)

// Config holds all sequent runtime configuration.
// Priority: env vars > settings.json > defaults.
type Config struct {
	ProjectPath  string            `json:"project_path"`
	DBPath       string            `json:"db_path"`
	LogLevel     string            `json:"log_level"`
	StepDelayMs  int               `json:"step_delay_ms"`
	WhileLoopMax int               `json:"while_loop_max"`
	Points       map[string]any    `json:"points"`
	Schedules    []scheduler.Entry `json:"schedules"`
}

func defaultConfig() Config {
	return Config{
		ProjectPath: "project.json",
		DBPath:      filepath.Join(sequentDir(), "sequent.db"),
		LogLevel:    "info",
	}
}

func sequentDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".sequent"
	}
	return filepath.Join(home, ".sequent")
}

func settingsPath() string {
	return filepath.Join(sequentDir(), "settings.json")
}

func loadConfig() Config {
	cfg := defaultConfig()

	// Layer 2: settings.json (ignore if missing).
	if data, err := os.ReadFile(settingsPath()); err == nil {
		_ = json.Unmarshal(data, &cfg)
	}

	// Layer 3: env vars override.
	if v := os.Getenv("SEQUENT_PROJECT_PATH"); v != "" {
		cfg.ProjectPath = v
	}
	if v := os.Getenv("SEQUENT_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("SEQUENT_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("SEQUENT_STEP_DELAY_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.StepDelayMs = n
		}
	}
	if v := os.Getenv("SEQUENT_WHILE_LOOP_MAX"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.WhileLoopMax = n
		}
	}

	return cfg
}
