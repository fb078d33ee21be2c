// Package config loads questlog server settings from the environment,
// with a few command-line overrides for local runs.
package config

import (
	"errors"
	"flag"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Supported storage drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

// Config holds runtime settings for the questlog server.
//
// DBURL accepts a postgres:// URL or key=value DSN for the postgres driver
// (a leading "jdbc:" is stripped so existing deployments keep working) and a
// file path or file: URI for sqlite3. DBUser and DBPassword are applied only
// when the DSN does not name a user of its own.
type Config struct {
	Host string `env:"HOST" envDefault:"0.0.0.0"`
	Port int    `env:"PORT" envDefault:"7000"`
	Dev  bool   `env:"DEV" envDefault:"false"`

	DBDriver         string        `env:"DB_DRIVER" envDefault:"postgres"`
	DBURL            string        `env:"DB_URL" envDefault:"postgres://localhost:5432/postgres"`
	DBUser           string        `env:"DB_USER" envDefault:"postgres"`
	DBPassword       string        `env:"DB_PASSWORD"`
	DBMaxPoolSize    int           `env:"DB_MAX_POOL_SIZE" envDefault:"10"`
	DBQueryTimeout   time.Duration `env:"DB_QUERY_TIMEOUT" envDefault:"5s"`
	DBConnectRetries uint64        `env:"DB_CONNECT_RETRIES" envDefault:"5"`
	DBAutoMigrate    bool          `env:"DB_AUTO_MIGRATE" envDefault:"true"`

	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`

	// Requests per minute per client IP; 0 disables the limiter.
	RegisterRateLimit int `env:"RATE_LIMIT_REGISTER" envDefault:"5"`
	LoginRateLimit    int `env:"RATE_LIMIT_LOGIN" envDefault:"10"`
}

// Load parses the environment, then overlays flags from args (os.Args[1:]
// in production) and validates the result.
func Load(args []string) (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.parseFlags(args); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) parseFlags(args []string) error {
	fs := flag.NewFlagSet("questlog-server", flag.ContinueOnError)
	fs.StringVar(&c.Host, "host", c.Host, "API server host")
	fs.IntVar(&c.Port, "port", c.Port, "API server port")
	fs.BoolVar(&c.Dev, "dev", c.Dev, "Development mode (relaxed rate limits, text logs)")
	fs.StringVar(&c.DBDriver, "db-driver", c.DBDriver, "Storage driver: postgres or sqlite3")
	fs.StringVar(&c.DBURL, "db-url", c.DBURL, "Database URL or SQLite file path")

	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("parse flags: %w", err)
	}
	return nil
}

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	var errs []error

	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	switch c.DBDriver {
	case DriverPostgres, DriverSQLite:
	default:
		errs = append(errs, fmt.Errorf("unsupported db driver %q", c.DBDriver))
	}
	if strings.TrimSpace(c.DBURL) == "" {
		errs = append(errs, errors.New("db url required"))
	}
	if c.DBMaxPoolSize < 1 {
		errs = append(errs, fmt.Errorf("db max pool size must be positive, got %d", c.DBMaxPoolSize))
	}
	if c.DBQueryTimeout <= 0 {
		errs = append(errs, fmt.Errorf("db query timeout must be positive, got %s", c.DBQueryTimeout))
	}
	switch c.LogFormat {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("unsupported log format %q", c.LogFormat))
	}
	if c.RegisterRateLimit < 0 || c.LoginRateLimit < 0 {
		errs = append(errs, errors.New("rate limits must not be negative"))
	}

	return errors.Join(errs...)
}

// Addr returns the HTTP listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// PostgresDSN returns DBURL with any JDBC prefix removed.
func (c *Config) PostgresDSN() string {
	return strings.TrimPrefix(strings.TrimSpace(c.DBURL), "jdbc:")
}

// DSNHasUser reports whether the postgres DSN names a user itself, either
// as URL userinfo, a user query parameter, or a user= keyword.
func (c *Config) DSNHasUser() bool {
	dsn := c.PostgresDSN()
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		u, err := url.Parse(dsn)
		if err != nil {
			return false
		}
		if u.User != nil && u.User.Username() != "" {
			return true
		}
		return u.Query().Get("user") != ""
	}

	for _, field := range strings.Fields(keywordSep.ReplaceAllString(dsn, "=")) {
		key, val, ok := strings.Cut(field, "=")
		if ok && key == "user" && val != "" && val != "''" {
			return true
		}
	}
	return false
}

// keywordSep matches "=" with optional surrounding blanks in key=value DSNs.
var keywordSep = regexp.MustCompile(`\s*=\s*`)
