// Package config loads and validates crawler configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	API     APIConfig     `mapstructure:"api"`
	Crawl   CrawlConfig   `mapstructure:"crawl"`
	Retry   RetryConfig   `mapstructure:"retry"`
	DB      DBConfig      `mapstructure:"db"`
	Proxy   ProxyConfig   `mapstructure:"proxy"`
	Data    DataConfig    `mapstructure:"data"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// APIConfig points the HTTP client at the APEC web services.
type APIConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	SearchPath     string `mapstructure:"search_path"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	UserAgent      string `mapstructure:"user_agent"`
}

// CrawlConfig governs pagination and politeness behavior.
type CrawlConfig struct {
	Preset         string `mapstructure:"preset"`
	PageSize       int    `mapstructure:"page_size"`
	MaxPages       int    `mapstructure:"max_pages"`
	RequestDelayMs int    `mapstructure:"request_delay_ms"`
}

// RetryConfig configures the exponential backoff policy.
type RetryConfig struct {
	MaxAttempts int `mapstructure:"max_attempts"`
	BaseDelayMs int `mapstructure:"base_delay_ms"`
	MaxDelayMs  int `mapstructure:"max_delay_ms"`
}

// DBConfig selects and configures the relational store.
type DBConfig struct {
	Driver string `mapstructure:"driver"` // "sqlite" or "postgres"
	Path   string `mapstructure:"path"`   // sqlite file path
	DSN    string `mapstructure:"dsn"`    // postgres dsn
}

// ProxyConfig holds an optional outbound proxy. Credentials are injected
// into the URL once at startup; absence of every field is not an error.
type ProxyConfig struct {
	URL      string `mapstructure:"url"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Host     string `mapstructure:"host"`
}

// DataConfig sets where snapshot artifacts are written.
type DataConfig struct {
	Dir string `mapstructure:"dir"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("APEC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.base_url", "https://www.apec.fr/cms/webservices")
	v.SetDefault("api.search_path", "/rechercheOffre")
	v.SetDefault("api.timeout_seconds", 100)
	v.SetDefault("api.user_agent", "Mozilla/5.0 (X11; Ubuntu; Linux x86_64; rv:146.0) Gecko/20100101 Firefox/146.0")
	v.SetDefault("crawl.preset", "ile_de_france_it")
	v.SetDefault("crawl.page_size", 100)
	v.SetDefault("crawl.max_pages", 0)
	v.SetDefault("crawl.request_delay_ms", 800)
	v.SetDefault("retry.max_attempts", 5)
	v.SetDefault("retry.base_delay_ms", 1000)
	v.SetDefault("retry.max_delay_ms", 60000)
	v.SetDefault("db.driver", "sqlite")
	v.SetDefault("db.path", "data/apec_observer.sqlite")
	v.SetDefault("proxy.host", "p.webshare.io:80")
	v.SetDefault("data.dir", "data/raw")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("api.base_url must be set")
	}
	if c.API.TimeoutSeconds <= 0 {
		return fmt.Errorf("api.timeout_seconds must be > 0")
	}
	if c.Crawl.PageSize <= 0 {
		return fmt.Errorf("crawl.page_size must be > 0")
	}
	if c.Crawl.MaxPages < 0 {
		return fmt.Errorf("crawl.max_pages must be >= 0")
	}
	if c.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("retry.max_attempts must be > 0")
	}
	if c.Retry.BaseDelayMs <= 0 || c.Retry.MaxDelayMs < c.Retry.BaseDelayMs {
		return fmt.Errorf("retry.base_delay_ms must be > 0 and <= retry.max_delay_ms")
	}
	switch c.DB.Driver {
	case "sqlite":
		if c.DB.Path == "" {
			return fmt.Errorf("db.path must be set when db.driver is sqlite")
		}
	case "postgres":
		if c.DB.DSN == "" {
			return fmt.Errorf("db.dsn must be set when db.driver is postgres")
		}
	default:
		return fmt.Errorf("unknown db.driver %q", c.DB.Driver)
	}
	return nil
}

// Timeout converts the API timeout config into a duration.
func (c Config) Timeout() time.Duration {
	return time.Duration(c.API.TimeoutSeconds) * time.Second
}

// RequestDelay converts the politeness delay config into a duration.
func (c Config) RequestDelay() time.Duration {
	return time.Duration(c.Crawl.RequestDelayMs) * time.Millisecond
}

// ProxyURL resolves the effective proxy URL, injecting credentials when
// they are configured separately from the URL. Returns "" when no proxy
// is configured at all.
func (c ProxyConfig) ProxyURL() string {
	hasCreds := c.Username != "" && c.Password != ""

	if c.URL == "" {
		if !hasCreds {
			return ""
		}
		return fmt.Sprintf("http://%s:%s@%s", c.Username, c.Password, c.Host)
	}

	if !hasCreds || strings.Contains(c.URL, "@") {
		return c.URL
	}

	if scheme, rest, ok := strings.Cut(c.URL, "://"); ok {
		return fmt.Sprintf("%s://%s:%s@%s", scheme, c.Username, c.Password, rest)
	}
	return fmt.Sprintf("http://%s:%s@%s", c.Username, c.Password, c.URL)
}
