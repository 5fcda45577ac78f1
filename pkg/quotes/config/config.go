package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cognicore/quotes/pkg/quotes/internalerr"
)

// FileName is the optional configuration file looked up at the project root.
const FileName = "quotes.yaml"

// DefaultLowWater is the record total below which a build prints an advisory.
const DefaultLowWater = 10000

// Source kinds
const (
	KindJSONL    = "jsonl"
	KindTabular  = "tabular"
	KindLocalDir = "localdir"
	KindHTML     = "html"
)

// Config is the build configuration
type Config struct {
	Output       Output         `yaml:"output"`
	CacheDir     string         `yaml:"cache_dir"`
	Mirror       string         `yaml:"mirror"` // serve datasets from a local directory instead of the hub
	LowWater     int            `yaml:"low_water"`
	Concurrency  int            `yaml:"concurrency"`
	LogLevel     string         `yaml:"log_level"`
	LogFormat    string         `yaml:"log_format"` // text or json
	Hub          Hub            `yaml:"hub"`
	Sources      []SourceConfig `yaml:"sources"`
	ExtraSources []SourceConfig `yaml:"extra_sources"`
}

// Output holds the artifact paths
type Output struct {
	JSON        string `yaml:"json"`
	JSONLinesGz string `yaml:"jsonl_gz"`
}

// Hub configures the remote dataset hub
type Hub struct {
	BaseURL string        `yaml:"base_url"`
	Token   string        `yaml:"token"`
	Retries uint64        `yaml:"retries"`
	Timeout time.Duration `yaml:"timeout"`
}

// SourceConfig describes one dataset adapter
type SourceConfig struct {
	Name       string   `yaml:"name"`
	Kind       string   `yaml:"kind"`
	Repo       string   `yaml:"repo"`
	File       string   `yaml:"file"`
	Pattern    string   `yaml:"pattern"`
	Dir        string   `yaml:"dir"`
	TextKeys   []string `yaml:"text_keys"`
	AuthorKeys []string `yaml:"author_keys"`
	TagKeys    []string `yaml:"tag_keys"`
}

// DefaultSources are the built-in datasets, highest priority first.
func DefaultSources() []SourceConfig {
	return []SourceConfig{
		{Name: "Abirate/english_quotes", Kind: KindJSONL, Repo: "Abirate/english_quotes", File: "quotes.jsonl"},
		{Name: "jstet/quotes-500k", Kind: KindTabular, Repo: "jstet/quotes-500k", Pattern: "**/*.csv"},
	}
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Output: Output{
			JSON:        filepath.Join("data", "merged.json"),
			JSONLinesGz: filepath.Join("src", "lib", "quotes.jsonl.gz"),
		},
		CacheDir:    filepath.Join(".cache", "quotes"),
		LowWater:    DefaultLowWater,
		Concurrency: 1,
		LogLevel:    "info",
		LogFormat:   "text",
		Hub: Hub{
			Retries: 3,
			Timeout: 10 * time.Minute,
		},
		Sources: DefaultSources(),
	}
}

// Load reads a YAML config file over the defaults
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", internalerr.ErrInvalidConfig, path, err)
	}
	return cfg, nil
}

// LoadOrDefault loads <root>/quotes.yaml when it exists and falls back to the
// defaults otherwise. The returned bool reports whether a file was read.
// Relative paths are resolved against root.
func LoadOrDefault(root string) (*Config, bool, error) {
	path := filepath.Join(root, FileName)
	cfg, err := Load(path)
	found := true
	if errors.Is(err, os.ErrNotExist) {
		cfg, err, found = Default(), nil, false
	}
	if err != nil {
		return nil, false, err
	}
	cfg.Resolve(root)
	if err := cfg.Validate(); err != nil {
		return nil, found, err
	}
	return cfg, found, nil
}

// Resolve makes every relative path absolute against root.
func (c *Config) Resolve(root string) {
	abs := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(root, p)
	}
	c.Output.JSON = abs(c.Output.JSON)
	c.Output.JSONLinesGz = abs(c.Output.JSONLinesGz)
	c.CacheDir = abs(c.CacheDir)
	c.Mirror = abs(c.Mirror)
	for i := range c.Sources {
		c.Sources[i].Dir = abs(c.Sources[i].Dir)
	}
	for i := range c.ExtraSources {
		c.ExtraSources[i].Dir = abs(c.ExtraSources[i].Dir)
	}
}

// AllSources returns Sources followed by ExtraSources, in priority order.
func (c *Config) AllSources() []SourceConfig {
	all := make([]SourceConfig, 0, len(c.Sources)+len(c.ExtraSources))
	all = append(all, c.Sources...)
	return append(all, c.ExtraSources...)
}

// Validate checks the config for missing or contradictory values
func (c *Config) Validate() error {
	var problems []string
	if strings.TrimSpace(c.Output.JSON) == "" {
		problems = append(problems, "output.json is required")
	}
	if strings.TrimSpace(c.Output.JSONLinesGz) == "" {
		problems = append(problems, "output.jsonl_gz is required")
	}
	if c.LowWater < 0 {
		problems = append(problems, "low_water must not be negative")
	}
	if c.Concurrency < 1 {
		problems = append(problems, "concurrency must be at least 1")
	}
	switch c.LogFormat {
	case "", "text", "json":
	default:
		problems = append(problems, fmt.Sprintf("log_format %q must be text or json", c.LogFormat))
	}

	names := map[string]bool{}
	for i, s := range c.AllSources() {
		label := s.Name
		if label == "" {
			label = fmt.Sprintf("source #%d", i+1)
		}
		if s.Name != "" {
			if names[s.Name] {
				problems = append(problems, fmt.Sprintf("%s: duplicate name", label))
			}
			names[s.Name] = true
		}

		switch s.Kind {
		case KindJSONL, KindHTML:
			if s.Repo == "" || s.File == "" {
				problems = append(problems, fmt.Sprintf("%s: %s source needs repo and file", label, s.Kind))
			}
		case KindTabular:
			if s.Repo == "" {
				problems = append(problems, fmt.Sprintf("%s: tabular source needs repo", label))
			}
		case KindLocalDir:
			if s.Dir == "" {
				problems = append(problems, fmt.Sprintf("%s: localdir source needs dir", label))
			}
		default:
			problems = append(problems, fmt.Sprintf("%s: unknown kind %q", label, s.Kind))
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", internalerr.ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}
