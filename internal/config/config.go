package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the disagg calculation and service configuration.
type Config struct {
	HTTP        HTTPConfig        `yaml:"http"`
	Database    DatabaseConfig    `yaml:"database"`
	Inputs      InputsConfig      `yaml:"inputs"`
	Calculation CalculationConfig `yaml:"calculation"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// HTTPConfig holds the ops endpoint settings (metrics and health).
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// DatabaseConfig holds datastore connection settings.
type DatabaseConfig struct {
	Driver           string   `yaml:"driver"` // badger, redis (default: badger)
	Path             string   `yaml:"path"`   // badger directory
	Addrs            []string `yaml:"addrs"`  // redis addresses
	Password         string   `yaml:"password"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// InputsConfig holds the locations of the calculation inputs.
type InputsConfig struct {
	RuptureTable string `yaml:"rupture_table"` // parquet file path
}

// CalculationConfig holds the disaggregation parameters.
type CalculationConfig struct {
	MagBinWidth     float64 `yaml:"mag_bin_width"`
	DistBinWidth    float64 `yaml:"distance_bin_width"`
	CoordBinWidth   float64 `yaml:"coordinate_bin_width"`
	NumEpsilonBins  int     `yaml:"num_epsilon_bins"`
	TruncationLevel float64 `yaml:"truncation_level"`
	MaximumDistance float64 `yaml:"maximum_distance"` // km

	InvestigationTime float64 `yaml:"investigation_time"` // years

	// IMTLevels maps each intensity measure type to its hazard curve levels,
	// required when poes are configured.
	IMTLevels map[string][]float64 `yaml:"imtls"`
	PoEs      []float64            `yaml:"poes_disagg"`
	// IMLDisagg gives fixed target intensities per IMT, the alternative to
	// poes_disagg.
	IMLDisagg map[string]float64 `yaml:"iml_disagg"`

	RlzIndex      []int `yaml:"rlz_index"`
	NumRlzsDisagg int   `yaml:"num_rlzs_disagg"`

	MaxSitesDisagg  int   `yaml:"max_sites_disagg"`
	ConcurrentTasks int   `yaml:"concurrent_tasks"`
	MaxDataTransfer int64 `yaml:"max_data_transfer"` // bytes

	DisaggOutputs []string `yaml:"disagg_outputs"` // empty = all PMFs
	DisaggBySrc   bool     `yaml:"disagg_by_src"`  // experimental side output

	// GSIMs maps ground-motion model names to per-IMT attenuation
	// coefficients (c0, c1, c2, c3, sigma). Model names must match the ones
	// in the grp/gsims datastore mapping.
	GSIMs map[string]map[string]GSIMParams `yaml:"gsims"`
}

// GSIMParams are the coefficients of one ground-motion model for one IMT.
type GSIMParams struct {
	C0    float64 `yaml:"c0"`
	C1    float64 `yaml:"c1"`
	C2    float64 `yaml:"c2"`
	C3    float64 `yaml:"c3"`
	Sigma float64 `yaml:"sigma"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 10
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "badger"
	}
	if c.Database.Driver == "badger" && c.Database.Path == "" {
		c.Database.Path = "disagg-store"
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Calculation.MagBinWidth <= 0 {
		c.Calculation.MagBinWidth = 0.5
	}
	if c.Calculation.DistBinWidth <= 0 {
		c.Calculation.DistBinWidth = 10
	}
	if c.Calculation.CoordBinWidth <= 0 {
		c.Calculation.CoordBinWidth = 0.3
	}
	if c.Calculation.NumEpsilonBins <= 0 {
		c.Calculation.NumEpsilonBins = 1
	}
	if c.Calculation.InvestigationTime <= 0 {
		c.Calculation.InvestigationTime = 50
	}
	if c.Calculation.NumRlzsDisagg <= 0 && len(c.Calculation.RlzIndex) == 0 {
		c.Calculation.NumRlzsDisagg = 1
	}
	if c.Calculation.MaxSitesDisagg <= 0 {
		c.Calculation.MaxSitesDisagg = 10
	}
	if c.Calculation.ConcurrentTasks <= 0 {
		c.Calculation.ConcurrentTasks = runtime.GOMAXPROCS(0)
	}
	if c.Calculation.MaxDataTransfer <= 0 {
		c.Calculation.MaxDataTransfer = 2 << 30 // 2 GB
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	switch c.Database.Driver {
	case "badger":
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required for the badger driver")
		}
	case "redis":
		if len(c.Database.Addrs) == 0 {
			return fmt.Errorf("database.addrs is required for the redis driver")
		}
	default:
		return fmt.Errorf("database.driver must be \"badger\" or \"redis\", got %q",
			c.Database.Driver)
	}
	if c.Inputs.RuptureTable == "" {
		return fmt.Errorf("inputs.rupture_table is required")
	}
	cc := c.Calculation
	if len(cc.PoEs) == 0 && len(cc.IMLDisagg) == 0 {
		return fmt.Errorf("one of calculation.poes_disagg or calculation.iml_disagg is required")
	}
	if len(cc.PoEs) > 0 && len(cc.IMTLevels) == 0 {
		return fmt.Errorf("calculation.imtls is required when poes_disagg is set")
	}
	for _, poe := range cc.PoEs {
		if poe <= 0 || poe >= 1 {
			return fmt.Errorf("calculation.poes_disagg values must be in (0, 1), got %v", poe)
		}
	}
	if cc.TruncationLevel <= 0 {
		return fmt.Errorf("calculation.truncation_level must be positive, got %v",
			cc.TruncationLevel)
	}
	if cc.MaximumDistance <= 0 {
		return fmt.Errorf("calculation.maximum_distance must be positive, got %v",
			cc.MaximumDistance)
	}
	for _, name := range cc.DisaggOutputs {
		if !knownOutputs[name] {
			return fmt.Errorf("calculation.disagg_outputs: unknown PMF %q", name)
		}
	}
	return nil
}

var knownOutputs = map[string]bool{
	"Mag": true, "Dist": true, "Mag_Dist": true, "Mag_Dist_Eps": true,
	"Lon_Lat": true, "Mag_Lon_Lat": true, "TRT": true, "Lon_Lat_TRT": true,
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
