package store

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"pead-drift/internal/provider/yahoo"
	"pead-drift/internal/research/pead"
)

const (
	DataSourceLive = "LIVE"
	DataSourceMock = "MOCK"

	PhaseAuto = "auto"
)

type Config struct {
	DataSource   string `yaml:"data_source" default:"LIVE" validate:"oneof=LIVE MOCK"`
	TickersFile  string `yaml:"tickers_file" default:"tickers.csv" validate:"required"`
	OutputDir    string `yaml:"output_dir" default:"reports" validate:"required"`
	Phase        string `yaml:"phase" default:"auto" validate:"oneof=auto pre post"`
	PreWindowUTC string `yaml:"pre_window_utc" default:"19:55" validate:"datetime=15:04"`
	Concurrency  int    `yaml:"concurrency" default:"4" validate:"min=1,max=64"`
	BarLookback  int    `yaml:"bar_lookback_days" default:"5" validate:"min=1,max=14"`

	Yahoo struct {
		OptionsURL        string        `yaml:"options_url" validate:"omitempty,url"`
		ChartURL          string        `yaml:"chart_url" validate:"omitempty,url"`
		Timeout           time.Duration `yaml:"timeout" default:"20s" validate:"gt=0"`
		RequestsPerSecond float64       `yaml:"requests_per_second" default:"2" validate:"gte=0"`
		MaxRetries        int           `yaml:"max_retries" default:"3" validate:"min=0,max=10"`
	} `yaml:"yahoo"`

	Snapshot struct {
		Backend string `yaml:"backend" default:"file" validate:"oneof=file redis"`
		Dir     string `yaml:"dir" default:"data/snapshots"`
		Redis   struct {
			Addr     string        `yaml:"addr" default:"localhost:6379" validate:"hostname_port"`
			Password string        `yaml:"password"`
			DB       int           `yaml:"db" validate:"min=0"`
			Prefix   string        `yaml:"prefix" default:"pead:iv30"`
			TTL      time.Duration `yaml:"ttl" default:"336h" validate:"gte=0"`
		} `yaml:"redis"`
	} `yaml:"snapshot"`

	AttemptLog struct {
		Dir           string `yaml:"dir" default:"logs"`
		RetentionDays int    `yaml:"retention_days" default:"14" validate:"min=0"`
	} `yaml:"attempt_log"`

	Metrics struct {
		TextfilePath string `yaml:"textfile_path"`
	} `yaml:"metrics"`

	Calendar struct {
		Enabled bool          `yaml:"enabled"`
		URL     string        `yaml:"url" validate:"required_if=Enabled true"`
		Timeout time.Duration `yaml:"timeout" default:"15s" validate:"gt=0"`
		Symbols []string      `yaml:"symbols"`
	} `yaml:"calendar"`
}

var validate = newValidator()

// newValidator names fields by their yaml key in error messages
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		msgs := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			msgs = append(msgs, fieldMessage(fe))
		}
		return errors.New(strings.Join(msgs, "; "))
	}
	return nil
}

func fieldMessage(fe validator.FieldError) string {
	field := strings.TrimPrefix(fe.Namespace(), "Config.")
	switch fe.Tag() {
	case "required", "required_if":
		return fmt.Sprintf("%s is required", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s, got '%v'", field, strings.ReplaceAll(fe.Param(), " ", ", "), fe.Value())
	case "min", "gte":
		return fmt.Sprintf("%s must be at least %s, got %v", field, fe.Param(), fe.Value())
	case "max", "lte":
		return fmt.Sprintf("%s must be at most %s, got %v", field, fe.Param(), fe.Value())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, fe.Param())
	case "datetime":
		return fmt.Sprintf("%s must be HH:MM, got '%v'", field, fe.Value())
	default:
		return fmt.Sprintf("%s failed validation: %s", field, fe.Tag())
	}
}

// Default returns a config with every default applied
func Default() *Config {
	var c Config
	if err := defaults.Set(&c); err != nil {
		// tags are static; a failure here is a programming error
		panic(err)
	}
	return &c
}

// LoadConfig reads the YAML file at path over the defaults, applies
// environment overrides and validates. An empty path uses defaults only.
func LoadConfig(path string) (*Config, error) {
	c := Default()

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(b, c); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	c.applyEnv()
	c.DataSource = strings.ToUpper(c.DataSource)
	c.Phase = strings.ToLower(c.Phase)

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return c, nil
}

// applyEnv lets the scheduler override the file per invocation
func (c *Config) applyEnv() {
	if v := os.Getenv("PEAD_PHASE"); v != "" {
		c.Phase = v
	}
	if v := os.Getenv("PEAD_DATA_SOURCE"); v != "" {
		c.DataSource = v
	}
	if v := os.Getenv("PEAD_TICKERS_FILE"); v != "" {
		c.TickersFile = v
	}
	if v := os.Getenv("PEAD_OUTPUT_DIR"); v != "" {
		c.OutputDir = v
	}
}

// ResolvePhase returns the forced phase, or detects it from now in auto mode
func (c *Config) ResolvePhase(now time.Time) pead.Phase {
	switch c.Phase {
	case string(pead.PhasePre):
		return pead.PhasePre
	case string(pead.PhasePost):
		return pead.PhasePost
	default:
		return pead.DetectPhase(now, c.PreWindowUTC)
	}
}

// PEADConfig builds the analyzer settings for a run in phase
func (c *Config) PEADConfig(phase pead.Phase) pead.PEADConfig {
	pc := pead.GetDefaultConfig()
	pc.DataSource = c.DataSource
	pc.Phase = phase
	pc.Concurrency = c.Concurrency
	pc.BarLookback = c.BarLookback
	if c.DataSource == DataSourceMock {
		pc.SourceName = "mock"
		pc.ModeLabel = "Mock"
	}
	return pc
}

// YahooOptions returns the provider options for the configured endpoints
func (c *Config) YahooOptions() []yahoo.Option {
	return []yahoo.Option{
		yahoo.WithOptionsURL(c.Yahoo.OptionsURL),
		yahoo.WithChartURL(c.Yahoo.ChartURL),
	}
}
