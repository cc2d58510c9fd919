package commands

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// FileConfig is the optional YAML config file. Values fill in flags that
// were not set on the command line or via environment.
type FileConfig struct {
	Listen        string        `yaml:"listen"`
	CORSOrigins   []string      `yaml:"cors_origins"`
	SessionSecret string        `yaml:"session_secret"`
	SessionTTL    time.Duration `yaml:"session_ttl"`

	Postgres struct {
		ConnString  string `yaml:"conn_string"`
		AutoMigrate bool   `yaml:"auto_migrate"`
		MaxConns    int32  `yaml:"max_conns"`
		MinConns    int32  `yaml:"min_conns"`
	} `yaml:"postgres"`
}

// loadConfigFile reads and parses the YAML config file at path.
func loadConfigFile(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg FileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return &cfg, nil
}

// apply copies file values into unset command flags.
func (s *ServeCmd) apply(cfg *FileConfig) {
	if s.Listen == "" {
		s.Listen = cfg.Listen
	}
	if len(s.CORSOrigins) == 0 {
		s.CORSOrigins = cfg.CORSOrigins
	}
	if s.SessionSecret == "" {
		s.SessionSecret = cfg.SessionSecret
	}
	if s.SessionTTL == 0 {
		s.SessionTTL = cfg.SessionTTL
	}
	if s.PostgresStore.ConnString == "" {
		s.PostgresStore.ConnString = cfg.Postgres.ConnString
	}
	if !s.PostgresStore.AutoMigrate {
		s.PostgresStore.AutoMigrate = cfg.Postgres.AutoMigrate
	}
	if s.PostgresStore.MaxConns == 0 {
		s.PostgresStore.MaxConns = cfg.Postgres.MaxConns
	}
	if s.PostgresStore.MinConns == 0 {
		s.PostgresStore.MinConns = cfg.Postgres.MinConns
	}
}
