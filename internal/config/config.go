// Package config loads pipeline settings from config file, environment
// and flags via viper, with defaults matching the conventional tuning.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the resolved pipeline configuration.
type Config struct {
	TemplateRoot string `mapstructure:"template_root"`
	OutputRoot   string `mapstructure:"output_root"`
	ExampleRoot  string `mapstructure:"example_root"`

	MaskGrid      int     `mapstructure:"mask_grid"`
	MaskThreshold float64 `mapstructure:"mask_threshold"`
	SearchFactor  int     `mapstructure:"search_factor"`

	RasterizerCommand string        `mapstructure:"rasterizer_command"`
	ChromeTimeout     time.Duration `mapstructure:"chrome_timeout"`

	Workers    int           `mapstructure:"workers"`
	Endpoint   string        `mapstructure:"endpoint"`
	TitleDelay time.Duration `mapstructure:"title_delay"`

	// Seed fixes the random source for reproducible runs; 0 means
	// time-seeded.
	Seed int64 `mapstructure:"seed"`

	ImageMinPx  int    `mapstructure:"image_min_px"`
	ChartWidth  int    `mapstructure:"chart_width"`
	ChartHeight int    `mapstructure:"chart_height"`
	Selection   string `mapstructure:"selection"` // "fair" or "embedding"
}

// Load reads configuration with the usual precedence: explicit file (if
// given), then ./chartgen.yaml, then CHARTGEN_* environment variables,
// then defaults.
func Load(file string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("chartgen")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if file != "" {
		v.SetConfigFile(file)
	}
	v.SetEnvPrefix("CHARTGEN")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// A missing default config file is fine; any explicit file must load.
		_, notFound := err.(viper.ConfigFileNotFoundError)
		if file != "" {
			return nil, fmt.Errorf("reading config %s: %w", file, err)
		}
		if !notFound {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("template_root", "templates")
	v.SetDefault("output_root", "out")
	v.SetDefault("example_root", "examples")
	v.SetDefault("mask_grid", 5)
	v.SetDefault("mask_threshold", 15.0)
	v.SetDefault("search_factor", 2)
	v.SetDefault("rasterizer_command", "")
	v.SetDefault("chrome_timeout", 30*time.Second)
	v.SetDefault("workers", 4)
	v.SetDefault("endpoint", "")
	v.SetDefault("title_delay", 200*time.Millisecond)
	v.SetDefault("seed", int64(0))
	v.SetDefault("image_min_px", 64)
	v.SetDefault("chart_width", 800)
	v.SetDefault("chart_height", 600)
	v.SetDefault("selection", "fair")
}
