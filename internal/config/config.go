package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"

	"finset/internal/universe"
)

// Config represents the complete pipeline configuration
type Config struct {
	Paths    PathsConfig    `yaml:"paths"`
	Run      RunConfig      `yaml:"run"`
	Replay   ReplayConfig   `yaml:"replay"`
	Online   OnlineConfig   `yaml:"online"`
	Labels   LabelsConfig   `yaml:"labels"`
	Export   ExportConfig   `yaml:"export"`
	Universe UniverseConfig `yaml:"universe"`
	Fetch    FetchConfig    `yaml:"fetch"`
	Proxy    ProxyConfig    `yaml:"proxy"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Server   ServerConfig   `yaml:"server"`

	// Loaded from the sibling files in the config directory
	Interfaces []Interface       `yaml:"-" validate:"dive"`
	RateLimits []DomainRateLimit `yaml:"-" validate:"dive"`
	Split      Split             `yaml:"-"`
}

// PathsConfig contains file system layout configuration
type PathsConfig struct {
	DataDir string `yaml:"data_dir" default:"data"`
	LogsDir string `yaml:"logs_dir" default:"logs"`
}

// RunConfig holds the default date range and artifact suffix
type RunConfig struct {
	StartDate string `yaml:"start_date" default:"2024-01-01"`
	EndDate   string `yaml:"end_date" default:"2024-01-31"`
	Suffix    string `yaml:"suffix" default:"smoke" validate:"required"`
}

// ReplayConfig drives the offline replay run
type ReplayConfig struct {
	Tickers        []string `yaml:"tickers" default:"[\"600519.SH\",\"601318.SH\"]" validate:"min=1"`
	SmokeDatesFile string   `yaml:"smoke_dates_file" default:"smoke_dates.txt"`
	FallbackDates  []string `yaml:"fallback_dates" default:"[\"2024-12-30\",\"2025-08-15\"]" validate:"len=2"`
}

// OnlineConfig is the single probe task used by --mode online
type OnlineConfig struct {
	ProbeInterface string            `yaml:"probe_interface" default:"stock_gpzy_pledge_ratio_em"`
	ProbeParams    map[string]string `yaml:"probe_params" default:"{\"date\":\"20240906\"}"`
}

// LabelsConfig configures the label generator
type LabelsConfig struct {
	Horizons       []int   `yaml:"horizons" default:"[1,5,20]" validate:"min=1,dive,gt=0"`
	ClipBps        float64 `yaml:"clip_bps" default:"2000" validate:"gt=0"`
	PriceColumn    string  `yaml:"price_column" default:"adj_close_hfq" validate:"required"`
	PriceInterface string  `yaml:"price_interface" default:"stock_zh_a_hist" validate:"required"`
}

// ExportConfig configures the CPT/SFT/TXT exporter
type ExportConfig struct {
	TargetHorizon  int      `yaml:"target_horizon" default:"1" validate:"gt=0"`
	FeatureColumns []string `yaml:"feature_columns"`
}

// UniverseConfig locates the membership file and the exchange suffix policy
type UniverseConfig struct {
	File           string                 `yaml:"file" default:"CSI300.csv"`
	ExchangePolicy universe.ExchangePolicy `yaml:"exchange_policy"`
}

// FetchConfig holds transport-wide settings
type FetchConfig struct {
	RequestTimeout time.Duration `yaml:"request_timeout" default:"30s"`
	BaseDelay      time.Duration `yaml:"base_delay" default:"1s"`
	MaxDelay       time.Duration `yaml:"max_delay" default:"30s"`
	Jitter         time.Duration `yaml:"jitter" default:"1s"`
	CheckpointFile string        `yaml:"checkpoint_file" default:"checkpoints.db"`
}

// ProxyConfig carries rotating-session proxy credentials
type ProxyConfig struct {
	Enabled      bool   `yaml:"enabled"`
	Host         string `yaml:"host" default:"brd.superproxy.io"`
	Port         int    `yaml:"port" default:"33335" validate:"gt=0,lte=65535"`
	UsernameBase string `yaml:"username_base"`
	Password     string `yaml:"password"`
	EnvFile      string `yaml:"env_file" default:".env"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level    string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
	Format   string `yaml:"format" default:"json" validate:"oneof=json text"`
	Output   string `yaml:"output" default:"console" validate:"oneof=console file both"`
	FilePath string `yaml:"file_path" default:"finset.log"`
}

// MetricsConfig controls prometheus and tracing output
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled" default:"true"`
	Namespace string `yaml:"namespace" default:"finset"`
	Textfile  string `yaml:"textfile" default:"metrics.prom"`
	Tracing   bool   `yaml:"tracing"`
}

// ServerConfig contains report server configuration
type ServerConfig struct {
	Port            int           `yaml:"port" default:"8080" validate:"gt=0,lte=65535"`
	ReadTimeout     time.Duration `yaml:"read_timeout" default:"15s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" default:"15s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" default:"60s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
}

// envOverrides are applied after the YAML files. Unset variables leave the
// file values in place.
type envOverrides struct {
	DataDir   string `envconfig:"DATA_DIR"`
	LogLevel  string `envconfig:"LOG_LEVEL"`
	LogOutput string `envconfig:"LOG_OUTPUT"`
	StartDate string `envconfig:"START_DATE"`
	EndDate   string `envconfig:"END_DATE"`
	Suffix    string `envconfig:"SUFFIX"`
	Port      int    `envconfig:"SERVER_PORT"`
	Tracing   *bool  `envconfig:"TRACING"`
}

// File names inside the config directory
const (
	PipelineFile   = "pipeline.yaml"
	InterfacesFile = "interfaces.yaml"
	RateLimitsFile = "rate_limits.yaml"
	SplitFile      = "split.yaml"
)

var validate = validator.New()

// Default returns the configuration with every default applied and no files read
func Default() *Config {
	var cfg Config
	if err := defaults.Set(&cfg); err != nil {
		panic(fmt.Sprintf("invalid config defaults: %v", err))
	}
	cfg.Universe.ExchangePolicy = universe.DefaultExchangePolicy()
	return &cfg
}

// Load reads the configuration directory, applies FINSET_* environment
// overrides and validates the result. A missing pipeline.yaml is allowed;
// interfaces.yaml is required.
func Load(dir string) (*Config, error) {
	cfg := Default()

	pipelinePath := filepath.Join(dir, PipelineFile)
	if _, err := os.Stat(pipelinePath); err == nil {
		if err := readYAML(pipelinePath, cfg); err != nil {
			return nil, err
		}
	}
	if p := cfg.Universe.ExchangePolicy; len(p.Rules) == 0 && p.Default == "" {
		cfg.Universe.ExchangePolicy = universe.DefaultExchangePolicy()
	}

	var ifaces interfacesDoc
	if err := readYAML(filepath.Join(dir, InterfacesFile), &ifaces); err != nil {
		return nil, err
	}
	cfg.Interfaces = ifaces.Interfaces

	var limits rateLimitsDoc
	if err := readOptionalYAML(filepath.Join(dir, RateLimitsFile), &limits); err != nil {
		return nil, err
	}
	cfg.RateLimits = limits.Domains

	var split splitDoc
	if err := readOptionalYAML(filepath.Join(dir, SplitFile), &split); err != nil {
		return nil, err
	}
	cfg.Split = split.Boundaries

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	var env envOverrides
	if err := envconfig.Process(EnvPrefix, &env); err != nil {
		return fmt.Errorf("failed to load config from env: %w", err)
	}
	if env.DataDir != "" {
		c.Paths.DataDir = env.DataDir
	}
	if env.LogLevel != "" {
		c.Logging.Level = strings.ToLower(env.LogLevel)
	}
	if env.LogOutput != "" {
		c.Logging.Output = env.LogOutput
	}
	if env.StartDate != "" {
		c.Run.StartDate = env.StartDate
	}
	if env.EndDate != "" {
		c.Run.EndDate = env.EndDate
	}
	if env.Suffix != "" {
		c.Run.Suffix = env.Suffix
	}
	if env.Port != 0 {
		c.Server.Port = env.Port
	}
	if env.Tracing != nil {
		c.Metrics.Tracing = *env.Tracing
	}
	return nil
}

// Validate checks struct constraints and cross-field rules
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}

	seen := make(map[string]bool, len(c.Interfaces))
	for _, iface := range c.Interfaces {
		if seen[iface.ID] {
			return fmt.Errorf("duplicate interface id %q", iface.ID)
		}
		seen[iface.ID] = true
		if _, _, err := ParseAvailRule(iface.AvailRule); err != nil {
			return fmt.Errorf("interface %s: %w", iface.ID, err)
		}
	}

	if c.Run.StartDate != "" && c.Run.EndDate != "" && c.Run.StartDate > c.Run.EndDate {
		return fmt.Errorf("run start date %s is after end date %s", c.Run.StartDate, c.Run.EndDate)
	}
	return nil
}

// Interface returns the configured interface by id
func (c *Config) Interface(id string) (Interface, bool) {
	for _, iface := range c.Interfaces {
		if iface.ID == id {
			return iface, true
		}
	}
	return Interface{}, false
}

// RateLimit returns the limits for a source domain, falling back to "default"
func (c *Config) RateLimit(domain string) (DomainRateLimit, bool) {
	var fallback *DomainRateLimit
	for i := range c.RateLimits {
		switch c.RateLimits[i].Domain {
		case domain:
			return c.RateLimits[i], true
		case DefaultDomain:
			fallback = &c.RateLimits[i]
		}
	}
	if fallback != nil {
		return *fallback, true
	}
	return DomainRateLimit{}, false
}

func readYAML(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func readOptionalYAML(path string, out interface{}) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	return readYAML(path, out)
}
