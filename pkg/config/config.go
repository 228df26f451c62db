package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	gotoml "github.com/pelletier/go-toml"
)

// Config holds all configuration options for rehabscore.
type Config struct {
	// Where assessment instances, responses, norms, and results live
	Database DatabaseConfig `koanf:"database" toml:"database" json:"database"`

	// Extra scale definitions loaded on top of the built-in ones
	Scales ScalesConfig `koanf:"scales" toml:"scales" json:"scales"`

	// Norms files overriding built-in and stored norms
	Norms NormsConfig `koanf:"norms" toml:"norms" json:"norms"`

	Engine EngineConfig `koanf:"engine" toml:"engine" json:"engine"`

	// Result cache used by compute
	Cache CacheConfig `koanf:"cache" toml:"cache" json:"cache"`

	Output OutputConfig `koanf:"output" toml:"output" json:"output"`

	Log LogConfig `koanf:"log" toml:"log" json:"log"`
}

// DatabaseConfig selects the store.
type DatabaseConfig struct {
	Driver string `koanf:"driver" toml:"driver" json:"driver"` // sqlite, postgres
	DSN    string `koanf:"dsn" toml:"dsn" json:"dsn"`
}

// ScalesConfig lists additional scale definitions.
type ScalesConfig struct {
	Dirs  []string `koanf:"dirs" toml:"dirs" json:"dirs"`
	Files []string `koanf:"files" toml:"files" json:"files"`
}

// NormsConfig lists norms files.
type NormsConfig struct {
	Files []string `koanf:"files" toml:"files" json:"files"`
}

// EngineConfig controls batch scoring.
type EngineConfig struct {
	Workers int `koanf:"workers" toml:"workers" json:"workers"` // 0 means NumCPU
}

// CacheConfig controls caching behavior.
type CacheConfig struct {
	Enabled bool   `koanf:"enabled" toml:"enabled" json:"enabled"`
	Dir     string `koanf:"dir" toml:"dir" json:"dir"`
	TTL     int    `koanf:"ttl" toml:"ttl" json:"ttl"` // TTL in hours
}

// OutputConfig controls output formatting.
type OutputConfig struct {
	Format string `koanf:"format" toml:"format" json:"format"` // text, json, markdown, toon
	Color  bool   `koanf:"color" toml:"color" json:"color"`
}

// LogConfig controls the structured logger.
type LogConfig struct {
	Level  string `koanf:"level" toml:"level" json:"level"`   // debug, info, warn, error
	Format string `koanf:"format" toml:"format" json:"format"` // text, json
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver: "sqlite",
			DSN:    "file:.rehabscore/rehabscore.db?_pragma=busy_timeout(5000)",
		},
		Scales: ScalesConfig{
			Dirs:  []string{},
			Files: []string{},
		},
		Norms: NormsConfig{
			Files: []string{},
		},
		Engine: EngineConfig{
			Workers: 0,
		},
		Cache: CacheConfig{
			Enabled: true,
			Dir:     ".rehabscore/cache",
			TTL:     24,
		},
		Output: OutputConfig{
			Format: "text",
			Color:  true,
		},
		Log: LogConfig{
			Level:  "warn",
			Format: "text",
		},
	}
}

// Load loads configuration from a file over the defaults.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	cfg := DefaultConfig()

	var parser koanf.Parser
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".toml":
		parser = toml.Parser()
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		parser = toml.Parser()
	}

	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, fmt.Errorf("loading config %s: %w", path, err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("decoding config %s: %w", path, err)
	}

	return cfg, nil
}

// Standard config file names, searched in order in each search dir.
var configNames = []string{
	"rehabscore.toml",
	"rehabscore.yaml",
	"rehabscore.yml",
	"rehabscore.json",
}

var searchDirs = []string{".", ".rehabscore"}

// Find returns the first config file present in the standard locations.
func Find() (string, bool) {
	for _, dir := range searchDirs {
		for _, name := range configNames {
			path := filepath.Join(dir, name)
			if _, err := os.Stat(path); err == nil {
				return path, true
			}
		}
	}
	return "", false
}

// LoadOrDefault tries to load config from standard locations or returns defaults.
func LoadOrDefault() *Config {
	if path, ok := Find(); ok {
		if cfg, err := Load(path); err == nil {
			return cfg
		}
	}
	return DefaultConfig()
}

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	var problems []string
	switch strings.ToLower(c.Database.Driver) {
	case "", "sqlite", "sqlite3", "postgres", "postgresql", "pg", "pgx":
	default:
		problems = append(problems, fmt.Sprintf("database.driver %q is not sqlite or postgres", c.Database.Driver))
	}
	if c.Engine.Workers < 0 {
		problems = append(problems, "engine.workers must not be negative")
	}
	if c.Cache.Enabled && c.Cache.Dir == "" {
		problems = append(problems, "cache.dir is required when the cache is enabled")
	}
	if c.Cache.TTL < 0 {
		problems = append(problems, "cache.ttl must not be negative")
	}
	switch strings.ToLower(c.Output.Format) {
	case "", "text", "json", "markdown", "md", "toon":
	default:
		problems = append(problems, fmt.Sprintf("output.format %q is not text, json, markdown, or toon", c.Output.Format))
	}
	switch strings.ToLower(c.Log.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		problems = append(problems, fmt.Sprintf("log.level %q is unknown", c.Log.Level))
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		problems = append(problems, fmt.Sprintf("log.format %q is not text or json", c.Log.Format))
	}
	for _, dir := range c.Scales.Dirs {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			problems = append(problems, fmt.Sprintf("scales.dirs: %s is not a directory", dir))
		}
	}
	for _, f := range append(append([]string{}, c.Scales.Files...), c.Norms.Files...) {
		if _, err := os.Stat(f); err != nil {
			problems = append(problems, fmt.Sprintf("%s: %v", f, err))
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config:\n  - %s", strings.Join(problems, "\n  - "))
	}
	return nil
}

// TOML encodes the config in the format written by init.
func (c *Config) TOML() ([]byte, error) {
	return gotoml.Marshal(*c)
}
