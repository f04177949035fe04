package config

import (
	"time"

	"github.com/spf13/viper"
)

// Config stores all configuration for the application.
type Config struct {
	ServerPort   string `mapstructure:"SERVER_PORT"`
	LogLevel     string `mapstructure:"LOG_LEVEL"`
	PostgresURL  string `mapstructure:"POSTGRES_URL"`
	RedisAddr    string `mapstructure:"REDIS_ADDR"`
	FetchTimeout int    `mapstructure:"FETCH_TIMEOUT"` // seconds
	RenderJS     bool   `mapstructure:"RENDER_JS"`

	// Pacing and fallback tunables for multi-page aggregation. The POST
	// fallback order and the VAM plausibility range mirror observed host
	// behavior and are kept configurable pending real-world validation.
	PageFetchDelayMS int  `mapstructure:"PAGE_FETCH_DELAY_MS"`
	FallbackToPost   bool `mapstructure:"FALLBACK_TO_POST"`
	VAMMin           int  `mapstructure:"VAM_MIN"`
	VAMMax           int  `mapstructure:"VAM_MAX"`

	PageCacheTTLMinutes int `mapstructure:"PAGE_CACHE_TTL_MINUTES"`
}

// PageFetchDelay returns the pause between sequential page fetches.
func (c *Config) PageFetchDelay() time.Duration {
	return time.Duration(c.PageFetchDelayMS) * time.Millisecond
}

// PageCacheTTL returns how long fetched pages stay cached.
func (c *Config) PageCacheTTL() time.Duration {
	return time.Duration(c.PageCacheTTLMinutes) * time.Minute
}

// Load reads configuration from file or environment variables.
func Load() (*Config, error) {
	viper.SetConfigFile(".env")
	viper.SetConfigType("env")
	viper.AutomaticEnv()

	// Attempt to read the .env file, but don't fail if it's not present.
	// This allows configuration purely through environment variables.
	_ = viper.ReadInConfig()

	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("FETCH_TIMEOUT", 30) // in seconds
	viper.SetDefault("RENDER_JS", false)
	viper.SetDefault("PAGE_FETCH_DELAY_MS", 500)
	viper.SetDefault("FALLBACK_TO_POST", true)
	viper.SetDefault("VAM_MIN", 100)
	viper.SetDefault("VAM_MAX", 5000)
	viper.SetDefault("PAGE_CACHE_TTL_MINUTES", 10)

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
