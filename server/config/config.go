package config

import (
	"errors"
	"os"
	"regexp"

	"github.com/pelletier/go-toml"
)

const DefaultListenAddress = "0.0.0.0:8545"

var (
	ErrInvalidListenAddress = errors.New("invalid listen address")
	ErrInvalidRows          = errors.New("invalid upstream row count")
	ErrInvalidCacheTTL      = errors.New("invalid cache TTL")
	ErrInvalidMinInterval   = errors.New("invalid minimum fetch interval")
	ErrInvalidFinishRate    = errors.New("invalid finish rate threshold")
	ErrInvalidMinOrders     = errors.New("invalid order count threshold")
	ErrInvalidSampleCap     = errors.New("invalid sample cap")
	ErrInvalidTimeout       = errors.New("invalid upstream timeout")
)

var listenAddressRegex = regexp.MustCompile(`^\d{1,3}(\.\d{1,3}){3}:\d+$`)

// Config defines the base-level server configuration
type Config struct {
	// The associated CORS config, if any
	CORSConfig *CORS `toml:"cors_config"`

	// The upstream relay configuration
	Upstream *Upstream `toml:"upstream"`

	// The price-acquisition pipeline tuning
	Pipeline *Pipeline `toml:"pipeline"`

	// The address at which the server will be served.
	// Format should be: <IP>:<PORT>
	ListenAddress string `toml:"listen_address"`
}

// CORS defines the server CORS configuration
type CORS struct {
	AllowedOrigins []string `toml:"allowed_origins"`
	AllowedMethods []string `toml:"allowed_methods"`
	AllowedHeaders []string `toml:"allowed_headers"`
}

// Upstream defines the quote-source relay configuration
type Upstream struct {
	// The Binance P2P search endpoint. Empty means the default
	URL string `toml:"url"`

	// The upstream request timeout, in seconds
	TimeoutSeconds int `toml:"timeout_seconds"`
}

// Pipeline defines the price-acquisition pipeline tuning
type Pipeline struct {
	// The upstream row count, clamped to [1, 20]
	Rows int `toml:"rows"`

	// The price cache TTL, in seconds
	CacheTTLSeconds int `toml:"cache_ttl_seconds"`

	// The minimum interval between refresh cycles, in seconds
	MinFetchIntervalSeconds int `toml:"min_fetch_interval_seconds"`

	// The advertiser quality thresholds
	MinMonthOrders int     `toml:"min_month_orders"`
	MinFinishRate  float64 `toml:"min_finish_rate"`

	// The maximum number of prices fed to the median
	SampleCap int `toml:"sample_cap"`
}

// DefaultConfig returns the default server configuration
func DefaultConfig() *Config {
	return &Config{
		ListenAddress: DefaultListenAddress,
		CORSConfig:    DefaultCORSConfig(),
		Upstream: &Upstream{
			URL:            "", // upstream default
			TimeoutSeconds: 30,
		},
		Pipeline: &Pipeline{
			Rows:                    15,
			CacheTTLSeconds:         60,
			MinFetchIntervalSeconds: 60,
			MinMonthOrders:          50,
			MinFinishRate:           95,
			SampleCap:               5,
		},
	}
}

// DefaultCORSConfig returns the default CORS configuration
func DefaultCORSConfig() *CORS {
	return &CORS{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
	}
}

// ValidateConfig validates the server configuration
func ValidateConfig(config *Config) error {
	// Validate the listen address
	if !listenAddressRegex.MatchString(config.ListenAddress) {
		return ErrInvalidListenAddress
	}

	if upstream := config.Upstream; upstream != nil {
		if upstream.TimeoutSeconds <= 0 {
			return ErrInvalidTimeout
		}
	}

	if pipeline := config.Pipeline; pipeline != nil {
		if pipeline.Rows < 1 || pipeline.Rows > 20 {
			return ErrInvalidRows
		}

		if pipeline.CacheTTLSeconds <= 0 {
			return ErrInvalidCacheTTL
		}

		if pipeline.MinFetchIntervalSeconds <= 0 {
			return ErrInvalidMinInterval
		}

		if pipeline.MinMonthOrders < 0 {
			return ErrInvalidMinOrders
		}

		if pipeline.MinFinishRate < 0 || pipeline.MinFinishRate > 100 {
			return ErrInvalidFinishRate
		}

		if pipeline.SampleCap < 1 {
			return ErrInvalidSampleCap
		}
	}

	return nil
}

// Read reads the configuration from the given path
func Read(path string) (*Config, error) {
	// Read the config file
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Parse it
	var cfg Config

	if err := toml.Unmarshal(content, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
