// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package config loads the application's YAML configuration file and
// applies an ENVIED_* environment overlay, with precedence ENV > File >
// Defaults.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// AppConfig is the root configuration, one nested sub-config per
// component.
type AppConfig struct {
	DataDir  string `yaml:"dataDir"`
	LogLevel string `yaml:"logLevel"`

	API       APIConfig       `yaml:"api"`
	Queue     QueueConfig     `yaml:"queue"`
	Cache     CacheConfig     `yaml:"cache"`
	Vault     VaultConfig     `yaml:"vault"`
	Session   SessionConfig   `yaml:"session"`
	Worker    WorkerConfig    `yaml:"worker"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// APIConfig configures the HTTP listener and its middleware stack.
type APIConfig struct {
	ListenAddr     string   `yaml:"listenAddr"`
	AllowedOrigins []string `yaml:"allowedOrigins"`
	DebugMode      bool     `yaml:"debugMode"`
}

// QueueConfig configures the job scheduler.
type QueueConfig struct {
	MaxConcurrentDownloads int           `yaml:"maxConcurrentDownloads"`
	JobRetention           time.Duration `yaml:"jobRetention"`
}

// CacheConfig configures both the on-disk license cache store and the
// in-process metadata cache backend.
type CacheConfig struct {
	Root string `yaml:"root"`

	// MetadataBackend selects the title/track metadata cache: "memory"
	// (default) or "redis".
	MetadataBackend string `yaml:"metadataBackend"`
	RedisAddr       string `yaml:"redisAddr"`
	RedisPassword   string `yaml:"redisPassword"`
	RedisDB         int    `yaml:"redisDB"`
}

// VaultConfig configures the local Badger-backed key vault.
type VaultConfig struct {
	Dir string        `yaml:"dir"`
	TTL time.Duration `yaml:"ttl"`
}

// SessionConfig configures service session signing.
type SessionConfig struct {
	Issuer string        `yaml:"issuer"`
	TTL    time.Duration `yaml:"ttl"`
}

// WorkerConfig configures worker subprocess invocation.
type WorkerConfig struct {
	Binary  string `yaml:"binary"`
	TempDir string `yaml:"tempDir"`
}

// TelemetryConfig configures tracing export.
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled"`
	ExporterType string  `yaml:"exporterType"`
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"samplingRate"`
}

func defaults() AppConfig {
	return AppConfig{
		DataDir:  "./data",
		LogLevel: "info",
		API: APIConfig{
			ListenAddr: ":8080",
		},
		Queue: QueueConfig{
			MaxConcurrentDownloads: 2,
			JobRetention:           24 * time.Hour,
		},
		Cache: CacheConfig{
			Root:            "./data/cache",
			MetadataBackend: "memory",
		},
		Vault: VaultConfig{
			Dir: "./data/vault",
			TTL: 0,
		},
		Session: SessionConfig{
			Issuer: "envied",
			TTL:    time.Hour,
		},
		Worker: WorkerConfig{
			Binary:  "./worker",
			TempDir: os.TempDir(),
		},
	}
}

// Load reads configPath (if non-empty and present) and overlays ENVIED_*
// environment variables, applied after the file so the environment always
// wins.
func Load(configPath string) (AppConfig, error) {
	cfg := defaults()

	if configPath != "" {
		raw, err := os.ReadFile(configPath)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, fmt.Errorf("config: read %s: %w", configPath, err)
			}
		} else if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", configPath, err)
		}
	}

	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *AppConfig) {
	cfg.DataDir = envString("ENVIED_DATA_DIR", cfg.DataDir)
	cfg.LogLevel = envString("ENVIED_LOG_LEVEL", cfg.LogLevel)

	cfg.API.ListenAddr = envString("ENVIED_API_LISTEN", cfg.API.ListenAddr)
	cfg.API.DebugMode = envBool("ENVIED_API_DEBUG", cfg.API.DebugMode)

	cfg.Queue.MaxConcurrentDownloads = envInt("ENVIED_MAX_CONCURRENT_DOWNLOADS", cfg.Queue.MaxConcurrentDownloads)
	cfg.Queue.JobRetention = envDuration("ENVIED_JOB_RETENTION", cfg.Queue.JobRetention)

	cfg.Cache.Root = envString("ENVIED_CACHE_ROOT", cfg.Cache.Root)
	cfg.Cache.MetadataBackend = envString("ENVIED_CACHE_METADATA_BACKEND", cfg.Cache.MetadataBackend)
	cfg.Cache.RedisAddr = envString("ENVIED_CACHE_REDIS_ADDR", cfg.Cache.RedisAddr)
	cfg.Cache.RedisPassword = envString("ENVIED_CACHE_REDIS_PASSWORD", cfg.Cache.RedisPassword)
	cfg.Cache.RedisDB = envInt("ENVIED_CACHE_REDIS_DB", cfg.Cache.RedisDB)

	cfg.Vault.Dir = envString("ENVIED_VAULT_DIR", cfg.Vault.Dir)
	cfg.Vault.TTL = envDuration("ENVIED_VAULT_TTL", cfg.Vault.TTL)

	cfg.Session.Issuer = envString("ENVIED_SESSION_ISSUER", cfg.Session.Issuer)
	cfg.Session.TTL = envDuration("ENVIED_SESSION_TTL", cfg.Session.TTL)

	cfg.Worker.Binary = envString("ENVIED_WORKER_BINARY", cfg.Worker.Binary)
	cfg.Worker.TempDir = envString("ENVIED_WORKER_TEMP_DIR", cfg.Worker.TempDir)

	cfg.Telemetry.Enabled = envBool("ENVIED_TELEMETRY_ENABLED", cfg.Telemetry.Enabled)
	cfg.Telemetry.ExporterType = envString("ENVIED_TELEMETRY_EXPORTER", cfg.Telemetry.ExporterType)
	cfg.Telemetry.Endpoint = envString("ENVIED_TELEMETRY_ENDPOINT", cfg.Telemetry.Endpoint)
}

func envString(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func envInt(key string, fallback int) int {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
