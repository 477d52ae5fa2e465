// Package config provides configuration loading and validation for the
// treewatch restart controller.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Sentinel validation errors.
var (
	ErrInvalidPolicy           = errors.New("restart policy must be one of n, a, e, p")
	ErrInvalidEstimationMethod = errors.New("estimation method must be one of t, p")
	ErrInvalidProgressMeasure  = errors.New("progress measure must be one of f, g, r, u")
	ErrInvalidForecast         = errors.New("forecast method must be one of b, l, w")
	ErrInvalidWindowSize       = errors.New("window size must be in [2, 500]")
	ErrInvalidRestartLimit     = errors.New("restart limit must be -1 or nonnegative")
	ErrInvalidMinNodes         = errors.New("minimum node count must be -1 or nonnegative")
	ErrInvalidEstimationFactor = errors.New("estimation factor must be at least 1")
	ErrInvalidHitCounterLimit  = errors.New("hit counter limit must be at least 1")
)

// Default configuration values.
const (
	DefaultPolicy            = "n"
	DefaultEstimationMethod  = "t"
	DefaultProgressMeasure   = "u"
	DefaultForecast          = "l"
	DefaultWindowSize        = 100
	DefaultRestartLimit      = 1
	DefaultMinNodes          = 1000
	DefaultEstimationFactor  = 2.0
	DefaultHitCounterLimit   = 50
	DefaultRegForestFilename = "-"

	maxWindowSize = 500
)

// Config holds all recognized restart controller options.
type Config struct {
	Policy            string           `mapstructure:"restartpolicy"`
	EstimationMethod  string           `mapstructure:"estimationmethod"`
	ProgressMeasure   string           `mapstructure:"progressmeasure"`
	Forecast          string           `mapstructure:"forecast"`
	RegForestFilename string           `mapstructure:"regforestfilename"`
	Estimation        EstimationConfig `mapstructure:"estimation"`
	WindowSize        int              `mapstructure:"windowsize"`
	RestartLimit      int              `mapstructure:"restartlimit"`
	MinNodes          int64            `mapstructure:"minnodes"`
	HitCounterLimit   int              `mapstructure:"hitcounterlim"`
	UseAcceleration   bool             `mapstructure:"useacceleration"`
	CountOnlyLeaves   bool             `mapstructure:"countonlyleaves"`
	PrintReports      bool             `mapstructure:"printreports"`
}

// EstimationConfig holds the estimation-based restart options.
type EstimationConfig struct {
	Factor float64 `mapstructure:"factor"`
}

// Default returns a Config populated with the default option values.
func Default() Config {
	return Config{
		Policy:            DefaultPolicy,
		EstimationMethod:  DefaultEstimationMethod,
		ProgressMeasure:   DefaultProgressMeasure,
		Forecast:          DefaultForecast,
		RegForestFilename: DefaultRegForestFilename,
		Estimation:        EstimationConfig{Factor: DefaultEstimationFactor},
		WindowSize:        DefaultWindowSize,
		RestartLimit:      DefaultRestartLimit,
		MinNodes:          DefaultMinNodes,
		HitCounterLimit:   DefaultHitCounterLimit,
	}
}

// envPrefix is the environment variable prefix for treewatch settings.
const envPrefix = "TREEWATCH"

// Load reads configuration from file, env vars, and defaults. If configPath
// is non-empty it is used as the explicit config file path; otherwise a
// missing config file is not an error and defaults apply.
func Load(configPath string) (*Config, error) {
	viperCfg := viper.New()

	applyDefaults(viperCfg)

	viperCfg.SetConfigType("yaml")
	viperCfg.SetEnvPrefix(envPrefix)
	viperCfg.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viperCfg.AutomaticEnv()

	if configPath != "" {
		viperCfg.SetConfigFile(configPath)

		if err := viperCfg.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		viperCfg.SetConfigName(".treewatch")
		viperCfg.AddConfigPath(".")

		readErr := viperCfg.ReadInConfig()
		if readErr != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(readErr, &notFound) {
				return nil, fmt.Errorf("read config: %w", readErr)
			}
		}
	}

	var cfg Config

	if err := viperCfg.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

func applyDefaults(viperCfg *viper.Viper) {
	viperCfg.SetDefault("restartpolicy", DefaultPolicy)
	viperCfg.SetDefault("estimationmethod", DefaultEstimationMethod)
	viperCfg.SetDefault("progressmeasure", DefaultProgressMeasure)
	viperCfg.SetDefault("forecast", DefaultForecast)
	viperCfg.SetDefault("windowsize", DefaultWindowSize)
	viperCfg.SetDefault("useacceleration", false)
	viperCfg.SetDefault("restartlimit", DefaultRestartLimit)
	viperCfg.SetDefault("minnodes", DefaultMinNodes)
	viperCfg.SetDefault("countonlyleaves", false)
	viperCfg.SetDefault("estimation.factor", DefaultEstimationFactor)
	viperCfg.SetDefault("hitcounterlim", DefaultHitCounterLimit)
	viperCfg.SetDefault("printreports", false)
	viperCfg.SetDefault("regforestfilename", DefaultRegForestFilename)
}

// isOneOf reports whether value is a single character contained in allowed.
func isOneOf(value, allowed string) bool {
	return len(value) == 1 && strings.Contains(allowed, value)
}

// Validate rejects option values outside their allowed sets. The first
// violation is reported; no partial initialization happens on error.
func (c *Config) Validate() error {
	if !isOneOf(c.Policy, "naep") {
		return fmt.Errorf("%w: got %q", ErrInvalidPolicy, c.Policy)
	}

	if !isOneOf(c.EstimationMethod, "tp") {
		return fmt.Errorf("%w: got %q", ErrInvalidEstimationMethod, c.EstimationMethod)
	}

	if !isOneOf(c.ProgressMeasure, "fgru") {
		return fmt.Errorf("%w: got %q", ErrInvalidProgressMeasure, c.ProgressMeasure)
	}

	if !isOneOf(c.Forecast, "blw") {
		return fmt.Errorf("%w: got %q", ErrInvalidForecast, c.Forecast)
	}

	if c.WindowSize < 2 || c.WindowSize > maxWindowSize {
		return fmt.Errorf("%w: got %d", ErrInvalidWindowSize, c.WindowSize)
	}

	if c.RestartLimit < -1 {
		return fmt.Errorf("%w: got %d", ErrInvalidRestartLimit, c.RestartLimit)
	}

	if c.MinNodes < -1 {
		return fmt.Errorf("%w: got %d", ErrInvalidMinNodes, c.MinNodes)
	}

	if c.Estimation.Factor < 1.0 {
		return fmt.Errorf("%w: got %g", ErrInvalidEstimationFactor, c.Estimation.Factor)
	}

	if c.HitCounterLimit < 1 {
		return fmt.Errorf("%w: got %d", ErrInvalidHitCounterLimit, c.HitCounterLimit)
	}

	return nil
}
