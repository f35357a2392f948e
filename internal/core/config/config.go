package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/neilberkman/studychat/internal/core/models"
)

// DefaultExportTemplate renders a session as markdown
const DefaultExportTemplate = `# {{title}}

_Started {{created}} · {{message_count}} messages_

{{#messages}}
### {{role}}{{#mode_label}} ({{mode_label}}){{/mode_label}}

{{#is_error}}> **Error:** {{{text}}}{{/is_error}}{{^is_error}}{{{text}}}{{/is_error}}
{{#image}}

![attachment]({{{image}}})
{{/image}}
{{#has_sources}}

**Sources:**
{{#sources}}
- [{{name}}]({{{url}}})
{{/sources}}
{{/has_sources}}
{{#disclaimer}}

_{{disclaimer}}_
{{/disclaimer}}

{{/messages}}
`

// Storage backends
const (
	StorageSQLite = "sqlite"
	StorageRedis  = "redis"
	StorageMemory = "memory"
)

const envPrefix = "STUDYCHAT_"

type Config struct {
	BackendURL     string
	Timeout        time.Duration
	StorageBackend string
	DBPath         string
	RedisAddr      string
	StorageKey     string
	DefaultMode    models.Mode
	LogPath        string
	DownloadDir    string
	ExportTemplate string
}

type tomlConfig struct {
	BackendURL     string `toml:"backend_url"`
	Timeout        string `toml:"timeout"`
	StorageBackend string `toml:"storage_backend"`
	DBPath         string `toml:"db_path"`
	RedisAddr      string `toml:"redis_addr"`
	StorageKey     string `toml:"storage_key"`
	DefaultMode    string `toml:"default_mode"`
	LogPath        string `toml:"log_path"`
	DownloadDir    string `toml:"download_dir"`
}

// Dir returns ~/.config/studychat, or a relative fallback without a home
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".studychat"
	}
	return filepath.Join(home, ".config", "studychat")
}

// Defaults returns the configuration used when nothing is overridden
func Defaults() *Config {
	dir := Dir()
	downloads := "."
	if home, err := os.UserHomeDir(); err == nil {
		downloads = filepath.Join(home, "Downloads")
	}
	return &Config{
		BackendURL:     "http://localhost:8000",
		Timeout:        60 * time.Second,
		StorageBackend: StorageSQLite,
		DBPath:         filepath.Join(dir, "studychat.db"),
		RedisAddr:      "localhost:6379",
		StorageKey:     "studychat_sessions",
		DefaultMode:    models.ModeRAG,
		LogPath:        filepath.Join(dir, "studychat.log"),
		DownloadDir:    downloads,
		ExportTemplate: DefaultExportTemplate,
	}
}

// Load reads config from ~/.config/studychat/ (or the directory holding
// path, when given), then .env and STUDYCHAT_* variables. Missing files
// are not errors; malformed ones are.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	configDir := Dir()
	tomlPath := filepath.Join(configDir, "config.toml")
	if path != "" {
		tomlPath = path
		configDir = filepath.Dir(path)
	}

	if _, err := os.Stat(tomlPath); err == nil {
		var tc tomlConfig
		if _, err := toml.DecodeFile(tomlPath, &tc); err != nil {
			return nil, fmt.Errorf("parse %s: %w", tomlPath, err)
		}
		if err := cfg.apply(tc); err != nil {
			return nil, fmt.Errorf("%s: %w", tomlPath, err)
		}
	} else if path != "" {
		return nil, fmt.Errorf("config file: %w", err)
	}

	// If a custom export template exists, use it
	if data, err := os.ReadFile(filepath.Join(configDir, "export_template.md")); err == nil {
		cfg.ExportTemplate = string(data)
	}

	// .env never overrides variables already set in the environment
	_ = godotenv.Load()
	_ = godotenv.Load(filepath.Join(configDir, ".env"))

	if err := cfg.apply(fromEnv()); err != nil {
		return nil, fmt.Errorf("environment: %w", err)
	}

	return cfg, cfg.Validate()
}

func fromEnv() tomlConfig {
	get := func(name string) string {
		return strings.TrimSpace(os.Getenv(envPrefix + name))
	}
	return tomlConfig{
		BackendURL:     get("BACKEND_URL"),
		Timeout:        get("TIMEOUT"),
		StorageBackend: get("STORAGE"),
		DBPath:         get("DB_PATH"),
		RedisAddr:      get("REDIS_ADDR"),
		StorageKey:     get("STORAGE_KEY"),
		DefaultMode:    get("MODE"),
		LogPath:        get("LOG_PATH"),
		DownloadDir:    get("DOWNLOAD_DIR"),
	}
}

// apply overlays the non-empty fields of tc
func (c *Config) apply(tc tomlConfig) error {
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&c.BackendURL, tc.BackendURL)
	set(&c.StorageBackend, tc.StorageBackend)
	set(&c.DBPath, ExpandHome(tc.DBPath))
	set(&c.RedisAddr, tc.RedisAddr)
	set(&c.StorageKey, tc.StorageKey)
	set(&c.LogPath, ExpandHome(tc.LogPath))
	set(&c.DownloadDir, ExpandHome(tc.DownloadDir))

	if tc.Timeout != "" {
		d, err := time.ParseDuration(tc.Timeout)
		if err != nil {
			return fmt.Errorf("timeout: %w", err)
		}
		c.Timeout = d
	}
	if tc.DefaultMode != "" {
		m, ok := models.ParseMode(tc.DefaultMode)
		if !ok {
			return fmt.Errorf("default_mode must be rag or general, got %q", tc.DefaultMode)
		}
		c.DefaultMode = m
	}
	return nil
}

// Validate checks field combinations
func (c *Config) Validate() error {
	switch c.StorageBackend {
	case StorageSQLite, StorageRedis, StorageMemory:
	default:
		return fmt.Errorf("unknown storage backend %q", c.StorageBackend)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if !strings.HasPrefix(c.BackendURL, "http://") && !strings.HasPrefix(c.BackendURL, "https://") {
		return fmt.Errorf("backend url must start with http:// or https://, got %q", c.BackendURL)
	}
	return nil
}

// ExpandHome resolves a leading ~ to the user's home directory
func ExpandHome(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	return p
}
