package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	CurrentVersion = 1
	DefaultPath    = "~/.agnvar/agnvar.yaml"
)

// Catalog backend types.
const (
	CatalogPostgres = "postgresql"
	CatalogMongo    = "mongodb"
	CatalogMemory   = "memory"
)

// Config is the top-level configuration.
type Config struct {
	Version   int             `yaml:"version"`
	Source    SourceConfig    `yaml:"source"`
	Catalog   CatalogConfig   `yaml:"catalog"`
	Template  TemplateConfig  `yaml:"template,omitempty"`
	Cosmology CosmologyConfig `yaml:"cosmology,omitempty"`
	Magnitude MagnitudeConfig `yaml:"magnitude,omitempty"`
	Output    OutputConfig    `yaml:"output"`
	Pipeline  PipelineConfig  `yaml:"pipeline,omitempty"`
	Plot      PlotConfig      `yaml:"plot,omitempty"`
	Metrics   MetricsConfig   `yaml:"metrics,omitempty"`
	Logging   LogConfig       `yaml:"logging,omitempty"`
}

// SourceConfig locates the AGN parameter database.
type SourceConfig struct {
	Path      string `yaml:"path"`
	Table     string `yaml:"table,omitempty"`      // default agn_params
	ChunkSize int    `yaml:"chunk_size,omitempty"` // default 200000
}

// CatalogConfig defines the galaxy catalog connection.
type CatalogConfig struct {
	Type             string            `yaml:"type"` // postgresql, mongodb or memory
	Name             string            `yaml:"name,omitempty"`
	Host             string            `yaml:"host,omitempty"`
	Port             int               `yaml:"port,omitempty"`
	Database         string            `yaml:"database,omitempty"`
	Schema           string            `yaml:"schema,omitempty"`
	Table            string            `yaml:"table,omitempty"` // table or collection
	Username         string            `yaml:"username,omitempty"`
	Password         string            `yaml:"password,omitempty"`
	SSL              bool              `yaml:"ssl,omitempty"`
	ConnectionString string            `yaml:"connection_string,omitempty"`
	Path             string            `yaml:"path,omitempty"` // memory catalog CSV
	Columns          map[string]string `yaml:"columns,omitempty"`
	MaxConnections   int               `yaml:"max_connections,omitempty"` // default 10, max 50
}

// PostgresURL builds a connection string from discrete fields unless one was
// given explicitly.
func (c *CatalogConfig) PostgresURL() string {
	if c.ConnectionString != "" {
		return c.ConnectionString
	}
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.Username, c.Password),
		Host:   fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:   "/" + c.Database,
	}
	q := url.Values{}
	if c.SSL {
		q.Set("sslmode", "require")
	} else {
		q.Set("sslmode", "disable")
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// TemplateConfig locates the spectral template and bandpass used for
// K-corrections.
type TemplateConfig struct {
	SEDPath      string  `yaml:"sed_path,omitempty"`
	BandpassPath string  `yaml:"bandpass_path,omitempty"` // empty uses the built-in i band
	GridStep     float64 `yaml:"grid_step,omitempty"`     // default 0.01
}

// CosmologyConfig holds the flat Lambda-CDM parameters.
type CosmologyConfig struct {
	H0  float64 `yaml:"h0,omitempty"`  // default 71.0
	Om0 float64 `yaml:"om0,omitempty"` // default 0.265
}

// MagnitudeConfig parameterizes the absolute magnitude model
// M_i = Zero - 2.5 log10(EddLuminosity * Edd * Mass).
type MagnitudeConfig struct {
	EddLuminosity float64 `yaml:"edd_luminosity,omitempty"` // default 1.26e38 erg/s per solar mass
	Zero          float64 `yaml:"zero_point,omitempty"`     // default 90.0
}

// OutputConfig defines where joined chunks are written.
type OutputConfig struct {
	Directory string `yaml:"directory"`
	S3Bucket  string `yaml:"s3_bucket,omitempty"`
	S3Prefix  string `yaml:"s3_prefix,omitempty"`
	Region    string `yaml:"region,omitempty"`
	Profile   string `yaml:"profile,omitempty"`
}

// PipelineConfig controls chunk scheduling and failure policy.
type PipelineConfig struct {
	Parallelism     int    `yaml:"parallelism,omitempty"` // default 1
	ContinueOnError bool   `yaml:"continue_on_error,omitempty"`
	FailOnNaN       bool   `yaml:"fail_on_nan,omitempty"`
	Resume          bool   `yaml:"resume,omitempty"` // skip chunks the state file records as completed
	Chunks          []int  `yaml:"chunks,omitempty"` // empty processes every chunk
	StatePath       string `yaml:"state_path,omitempty"`
}

// PlotConfig defines plot output settings.
type PlotConfig struct {
	Directory string `yaml:"directory,omitempty"`
}

// MetricsConfig defines where run metrics are exported.
type MetricsConfig struct {
	TextfilePath string `yaml:"textfile_path,omitempty"`
	Listen       string `yaml:"listen,omitempty"` // default 127.0.0.1:8230
}

// LogConfig defines logging settings.
type LogConfig struct {
	Level         string `yaml:"level,omitempty"`          // debug, info, warn, error
	Directory     string `yaml:"directory,omitempty"`      // default ~/.agnvar/logs/
	RetentionDays int    `yaml:"retention_days,omitempty"` // default 30
}

// Default returns a configuration with every default applied and a memory
// catalog.
func Default() *Config {
	cfg := &Config{
		Version: CurrentVersion,
		Source:  SourceConfig{Path: "agn_db_mbh7_mi30_sfr.db"},
		Catalog: CatalogConfig{Type: CatalogMemory, Name: "cosmoDC2_v1.1.4", Path: "catalog.csv"},
		Output:  OutputConfig{Directory: "joined"},
	}
	cfg.applyDefaults()
	return cfg
}

// Load reads and parses the config file from the given path.
func Load(path string) (*Config, error) {
	if path == "" {
		path = ExpandHome(DefaultPath)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if cfg.Version != CurrentVersion {
		return nil, fmt.Errorf("unsupported config version %d (expected %d)", cfg.Version, CurrentVersion)
	}

	if err := cfg.resolveSecrets(); err != nil {
		return nil, fmt.Errorf("resolving secrets: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the config to the given path.
func (c *Config) Save(path string) error {
	if path == "" {
		path = ExpandHome(DefaultPath)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	return os.WriteFile(path, data, 0o600)
}

// Validate checks values that defaults cannot repair.
func (c *Config) Validate() error {
	switch c.Catalog.Type {
	case CatalogPostgres, CatalogMongo, CatalogMemory:
	default:
		return fmt.Errorf("catalog.type %q: expected postgresql, mongodb or memory", c.Catalog.Type)
	}
	if c.Source.Path == "" {
		return fmt.Errorf("source.path is required")
	}
	if c.Source.ChunkSize <= 0 {
		return fmt.Errorf("source.chunk_size must be positive, got %d", c.Source.ChunkSize)
	}
	if c.Template.GridStep <= 0 {
		return fmt.Errorf("template.grid_step must be positive, got %g", c.Template.GridStep)
	}
	if c.Cosmology.H0 <= 0 {
		return fmt.Errorf("cosmology.h0 must be positive, got %g", c.Cosmology.H0)
	}
	if c.Cosmology.Om0 <= 0 || c.Cosmology.Om0 > 1 {
		return fmt.Errorf("cosmology.om0 must be in (0, 1], got %g", c.Cosmology.Om0)
	}
	if c.Output.Directory == "" {
		return fmt.Errorf("output.directory is required")
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Source.Table == "" {
		c.Source.Table = "agn_params"
	}
	if c.Source.ChunkSize == 0 {
		c.Source.ChunkSize = 200000
	}
	c.Source.Path = ExpandHome(c.Source.Path)
	if c.Catalog.Table == "" {
		c.Catalog.Table = "galaxies"
	}
	if c.Catalog.Schema == "" && c.Catalog.Type == CatalogPostgres {
		c.Catalog.Schema = "public"
	}
	if c.Catalog.MaxConnections == 0 {
		c.Catalog.MaxConnections = 10
	}
	if c.Catalog.MaxConnections > 50 {
		c.Catalog.MaxConnections = 50
	}
	c.Catalog.Path = ExpandHome(c.Catalog.Path)
	if c.Template.GridStep == 0 {
		c.Template.GridStep = 0.01
	}
	c.Template.SEDPath = ExpandHome(c.Template.SEDPath)
	c.Template.BandpassPath = ExpandHome(c.Template.BandpassPath)
	if c.Cosmology.H0 == 0 {
		c.Cosmology.H0 = 71.0
	}
	if c.Cosmology.Om0 == 0 {
		c.Cosmology.Om0 = 0.265
	}
	if c.Magnitude.EddLuminosity == 0 {
		c.Magnitude.EddLuminosity = 1.26e38
	}
	if c.Magnitude.Zero == 0 {
		c.Magnitude.Zero = 90.0
	}
	c.Output.Directory = ExpandHome(c.Output.Directory)
	if c.Pipeline.Parallelism <= 0 {
		c.Pipeline.Parallelism = 1
	}
	if c.Pipeline.StatePath == "" && c.Output.Directory != "" {
		c.Pipeline.StatePath = filepath.Join(c.Output.Directory, "state.yaml")
	}
	if c.Plot.Directory == "" {
		c.Plot.Directory = "plots"
	}
	c.Plot.Directory = ExpandHome(c.Plot.Directory)
	if c.Metrics.Listen == "" {
		c.Metrics.Listen = "127.0.0.1:8230"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Directory == "" {
		c.Logging.Directory = ExpandHome("~/.agnvar/logs/")
	}
	if c.Logging.RetentionDays == 0 {
		c.Logging.RetentionDays = 30
	}
}

var secretPattern = regexp.MustCompile(`\$\{(ENV|VAULT|AWS_SM):([^}]+)\}`)

func (c *Config) resolveSecrets() error {
	var err error
	c.Catalog.Password, err = ResolveValue(c.Catalog.Password)
	if err != nil {
		return fmt.Errorf("catalog password: %w", err)
	}
	c.Catalog.ConnectionString, err = ResolveValue(c.Catalog.ConnectionString)
	if err != nil {
		return fmt.Errorf("catalog connection string: %w", err)
	}
	return nil
}

// ResolveValue resolves secret references in a string value.
func ResolveValue(val string) (string, error) {
	matches := secretPattern.FindStringSubmatch(val)
	if matches == nil {
		return val, nil
	}

	provider := matches[1]
	ref := matches[2]

	switch provider {
	case "ENV":
		v := os.Getenv(ref)
		if v == "" {
			return "", fmt.Errorf("environment variable %s not set", ref)
		}
		return v, nil
	case "VAULT":
		return resolveVault(ref)
	case "AWS_SM":
		return resolveAWSSecretsManager(ref)
	default:
		return "", fmt.Errorf("unknown secrets provider: %s", provider)
	}
}

// ExpandHome expands ~ to the user's home directory.
func ExpandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
