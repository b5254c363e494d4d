package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// RemoteConfig describes how to reach the single-GPU cracking host.
type RemoteConfig struct {
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	User           string `yaml:"user"`
	PrivateKeyPath string `yaml:"privateKeyPath"`
	WorkDir        string `yaml:"workDir"`
}

// CoordServiceConfig describes the external coordination service.
type CoordServiceConfig struct {
	BaseURL string `yaml:"baseUrl"`
	APIKey  string `yaml:"apiKey"`
	SQLDSN  string `yaml:"sqlDsn"`
}

// OracleConfig describes the breach-count oracle endpoint and rate limits.
type OracleConfig struct {
	BaseURL      string `yaml:"baseUrl"`
	MaxPerBatch  int    `yaml:"maxPerBatch"`
	BatchOf      int    `yaml:"batchOf"`
	GapMillis    int    `yaml:"gapMillis"`
	CacheDBPath  string `yaml:"cacheDbPath"`
	MaxInFlight  int    `yaml:"maxInFlight"`
}

// DataConfig describes where tiered material and state files live.
type DataConfig struct {
	Dir       string `yaml:"dir"`
	BatchSize int    `yaml:"batchSize"`
}

// The file tiers below all hang off Dir in the fixed layout spec'd in
// "Files on disk" — callers never construct these paths by hand.

func (d DataConfig) GravelDir() string     { return filepath.Join(d.Dir, "gravel") }
func (d DataConfig) SandDir() string       { return filepath.Join(d.Dir, "sand") }
func (d DataConfig) DiamondsDir() string   { return filepath.Join(d.Dir, "diamonds") }
func (d DataConfig) GlassDir() string      { return filepath.Join(d.Dir, "glass") }
func (d DataConfig) CohortDir() string     { return filepath.Join(d.Dir, "cohorts") }
func (d DataConfig) FeedbackDir() string   { return filepath.Join(d.Dir, "feedback") }
func (d DataConfig) PearlsPath() string    { return filepath.Join(d.Dir, "pearls", "hash_plaintext_pairs.jsonl") }
func (d DataConfig) BetaPath() string      { return filepath.Join(d.FeedbackDir(), "BETA.txt") }
func (d DataConfig) RulePath() string      { return filepath.Join(d.FeedbackDir(), "unobtainium.rule") }
func (d DataConfig) SandStatePath() string { return filepath.Join(d.Dir, "sand-state.json") }
func (d DataConfig) GravelStatePath() string {
	return filepath.Join(d.Dir, "gravel-state.json")
}

// LoggingConfig holds the logging settings read from sluice.yaml and the
// SLUICE_LOG_* variables. The CLI configures its logger from the
// --log-level and --log-json flags; it does not read these fields.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// Config is the top-level sluice configuration.
type Config struct {
	Remote       RemoteConfig       `yaml:"remote"`
	CoordService CoordServiceConfig `yaml:"coordService"`
	Oracle       OracleConfig       `yaml:"oracle"`
	Data         DataConfig         `yaml:"data"`
	Logging      LoggingConfig      `yaml:"logging"`
}

// New returns a Config populated with sluice's defaults.
func New() *Config {
	return &Config{
		Remote: RemoteConfig{
			Port:    22,
			WorkDir: "/opt/sluice",
		},
		CoordService: CoordServiceConfig{
			BaseURL: "http://127.0.0.1:8090",
		},
		Oracle: OracleConfig{
			BaseURL:     "https://api.pwnedpasswords.com",
			MaxPerBatch: 200,
			BatchOf:     20,
			GapMillis:   200,
			CacheDBPath: "data/oracle-cache.db",
			MaxInFlight: 20,
		},
		Data: DataConfig{
			Dir:       "data",
			BatchSize: 1_000_000,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// PollInterval is a 30s poll interval constant. No package reads it: the
// remote job controller and the stage 2 task poller each default to their
// own 30s interval.
const PollInterval = 30 * time.Second

// CoordPollInterval is a 60s coordination-service poll interval constant. No
// package reads it; the coordination service is polled only by the stage 2
// task poller, every 30s.
const CoordPollInterval = 60 * time.Second

// Load reads path (if it exists) over New()'s defaults, then applies a
// fixed set of environment overrides. A missing file is not an error —
// defaults-plus-env is a valid configuration for local dry runs.
func Load(path string) (*Config, error) {
	cfg := New()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

// applyEnvOverrides layers SLUICE_* environment variables over the loaded
// config, the same steady-state override surface the pack's config loaders
// expose for DATABASE_*/LOG_* variables.
func applyEnvOverrides(cfg *Config) {
	if v, ok := os.LookupEnv("SLUICE_REMOTE_HOST"); ok {
		cfg.Remote.Host = v
	}
	if v, ok := os.LookupEnv("SLUICE_REMOTE_PORT"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Remote.Port = n
		}
	}
	if v, ok := os.LookupEnv("SLUICE_REMOTE_USER"); ok {
		cfg.Remote.User = v
	}
	if v, ok := os.LookupEnv("SLUICE_REMOTE_KEY"); ok {
		cfg.Remote.PrivateKeyPath = v
	}
	if v, ok := os.LookupEnv("SLUICE_COORD_BASE_URL"); ok {
		cfg.CoordService.BaseURL = v
	}
	if v, ok := os.LookupEnv("SLUICE_COORD_API_KEY"); ok {
		cfg.CoordService.APIKey = v
	}
	if v, ok := os.LookupEnv("SLUICE_COORD_SQL_DSN"); ok {
		cfg.CoordService.SQLDSN = v
	}
	if v, ok := os.LookupEnv("SLUICE_ORACLE_BASE_URL"); ok {
		cfg.Oracle.BaseURL = v
	}
	if v, ok := os.LookupEnv("SLUICE_DATA_DIR"); ok {
		cfg.Data.Dir = v
	}
	if v, ok := os.LookupEnv("SLUICE_LOG_LEVEL"); ok {
		cfg.Logging.Level = v
	}
	if v, ok := os.LookupEnv("SLUICE_LOG_JSON"); ok {
		cfg.Logging.JSON = v == "1" || v == "true"
	}
}
