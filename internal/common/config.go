package common

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
)

// Config represents the project configuration loaded from a TOML file
// (see §6 of the specification: "Project configuration"). Loading,
// merging, and environment overrides are the out-of-scope config loader's
// job; this struct is the shape that component is contracted to produce.
type Config struct {
	Project      ProjectConfig     `toml:"project" validate:"required"`
	Template     string            `toml:"template"`
	DocFiles     []string          `toml:"doc_files" validate:"required,min=1"`
	OutputDir    string            `toml:"output_dir"`
	Outputs      []OutputConfig    `toml:"outputs"`
	Docx         DocxConfig        `toml:"docx"`
	HTML5        HTML5Config       `toml:"html5"`
	Bibliography string            `toml:"bibliography"`
	Csl          string            `toml:"csl"`
	Validation   map[string]string `toml:"validation"`
	Render       RenderConfig      `toml:"render"`
	Logging      LoggingConfig     `toml:"logging"`
	ModelOverlay string            `toml:"model_overlay"`
}

// ProjectConfig carries the two required project-identity fields.
type ProjectConfig struct {
	Code string `toml:"code" validate:"required"`
	Name string `toml:"name" validate:"required"`
}

// OutputConfig is one `{format, path}` entry of `outputs[]`. Path supports
// `{spec_id}` templating, expanded per-specification during EMIT.
type OutputConfig struct {
	Format string `toml:"format" validate:"required,oneof=docx html5 markdown json"`
	Path   string `toml:"path" validate:"required"`
}

// DocxConfig is word-processor-format-specific configuration.
type DocxConfig struct {
	ReferenceDoc string `toml:"reference_doc"`
	StylePreset  string `toml:"style_preset"`
}

// HTML5Config is HTML-format-specific configuration.
type HTML5Config struct {
	Standalone bool   `toml:"standalone"`
	CSSPath    string `toml:"css_path"`
}

// RenderConfig configures the External Render Orchestrator (§4.9, §5).
type RenderConfig struct {
	Concurrency       int     `toml:"concurrency"`         // 0 => default to 2*NumCPU, floor 2
	DiagramTimeoutSec int     `toml:"diagram_timeout_sec"` // default 30
	ChartTimeoutSec   int     `toml:"chart_timeout_sec"`   // default 60
	MathTimeoutSec    int     `toml:"math_timeout_sec"`    // default 10
	RateLimitPerSec   float64 `toml:"rate_limit_per_sec"`  // sub-process spawns/sec, 0 => unbounded
}

// LoggingConfig mirrors the teacher's logging knobs.
type LoggingConfig struct {
	Level      string   `toml:"level"`
	Format     string   `toml:"format"`
	Output     []string `toml:"output"`
	TimeFormat string   `toml:"time_format"`
}

var validate = validator.New()

// LoadConfig reads and merges one or more TOML config files in order,
// later files overriding earlier ones at the top level, then validates
// the required fields. This mirrors the teacher's "defaults -> file1 ->
// file2 -> env" startup sequence, minus the env-override step (owned by
// the out-of-scope config loader in a full deployment).
func LoadConfig(paths ...string) (*Config, error) {
	cfg := defaultConfig()

	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if err := cfg.normalize(); err != nil {
		return nil, fmt.Errorf("failed to normalize configuration: %w", err)
	}

	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Template:  "default",
		OutputDir: "build",
		Render: RenderConfig{
			Concurrency:       0,
			DiagramTimeoutSec: 30,
			ChartTimeoutSec:   60,
			MathTimeoutSec:    10,
			RateLimitPerSec:   4,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     []string{"stdout"},
			TimeFormat: "15:04:05.000",
		},
		Validation: map[string]string{},
	}
}

// normalize fills derived defaults and checks cross-field invariants that
// validator struct tags can't express (e.g. severity map values).
func (c *Config) normalize() error {
	if c.Template == "" {
		c.Template = "default"
	}
	if c.OutputDir == "" {
		c.OutputDir = "build"
	}

	for key, sev := range c.Validation {
		switch strings.ToLower(sev) {
		case "ignore", "warn", "error":
			c.Validation[key] = strings.ToLower(sev)
		default:
			return fmt.Errorf("invalid severity %q for validation key %q (want ignore|warn|error)", sev, key)
		}
	}

	return nil
}
