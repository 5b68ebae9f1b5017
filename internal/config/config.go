package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"timetable/internal/model"
)

const (
	DefaultBaseURL   = "https://mm.dcsm.info"
	DefaultProgram   = "bmm"
	DefaultSemester  = 4
	DefaultCacheDir  = "./var/timetable-cache"
	DefaultMaxEvents = 4
	DefaultListen    = "127.0.0.1:8080"

	EnvUsername = "TIMETABLE_USERNAME"
	EnvPassword = "TIMETABLE_PASSWORD"
)

// BasicAuthConfig holds HTTP Basic Auth credentials for the JSON API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// BaseURL is the root of the timetable REST API.
	BaseURL string `yaml:"base_url" json:"base_url"`
	// WebURL is the root of the timetable web app used for deep links.
	// Empty means BaseURL.
	WebURL string `yaml:"web_url" json:"web_url"`

	Program  string `yaml:"program" json:"program"`
	Semester int    `yaml:"semester" json:"semester"`

	CacheDir string `yaml:"cache_dir" json:"cache_dir"`

	// MaxEvents bounds the number of events shown at once.
	MaxEvents int `yaml:"max_events" json:"max_events"`

	// Listen is the HTTP listen address of the serve command.
	Listen string `yaml:"listen" json:"listen"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all endpoints
	// except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`

	// Credentials for the timetable API. Never written to disk.
	Credentials model.Credentials `yaml:"-" json:"-"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:   DefaultBaseURL,
		Program:   DefaultProgram,
		Semester:  DefaultSemester,
		CacheDir:  DefaultCacheDir,
		MaxEvents: DefaultMaxEvents,
		Listen:    DefaultListen,
	}
}

// Normalize fills in missing/zero values with defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.Program == "" {
		c.Program = DefaultProgram
	}
	if c.Semester <= 0 {
		c.Semester = DefaultSemester
	}
	if c.CacheDir == "" {
		c.CacheDir = DefaultCacheDir
	}
	if c.MaxEvents <= 0 {
		c.MaxEvents = DefaultMaxEvents
	}
	if c.Listen == "" {
		c.Listen = DefaultListen
	}
}

// LinkURL returns the base of web deep links.
func (c *Config) LinkURL() string {
	if c.WebURL != "" {
		return c.WebURL
	}
	return c.BaseURL
}

// LoadCredentials reads the API credentials from the environment. envFiles
// are loaded first with godotenv; variables already set win over them and
// missing files are ignored.
func (c *Config) LoadCredentials(envFiles ...string) error {
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load env file %s: %w", f, err)
		}
	}
	c.Credentials = model.Credentials{
		Username: os.Getenv(EnvUsername),
		Password: os.Getenv(EnvPassword),
	}
	if c.Credentials.Username == "" || c.Credentials.Password == "" {
		return fmt.Errorf("%s and %s must be set", EnvUsername, EnvPassword)
	}
	return nil
}

// Load loads configuration from the given YAML path.
//
// If the file does not exist, a default config is written there (0600)
// and returned. Otherwise the file is decoded and normalized.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes cfg to path atomically (temp file + rename) with 0600
// permissions, creating the parent directory (0700) if needed.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".timetable-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// Save delegates to the package-level Save.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
