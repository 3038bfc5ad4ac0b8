// Package config loads service settings from an optional file, a .env file
// and AUCTION_* environment variables, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"proxy-auction/internal/auction"
	"proxy-auction/internal/models"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

const envPrefix = "AUCTION"

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type Config struct {
	LogLevel string         `mapstructure:"log_level"`
	Server   ServerConfig   `mapstructure:"server"`
	Store    StoreConfig    `mapstructure:"store"`
	Auction  AuctionConfig  `mapstructure:"auction"`
	Notify   NotifyConfig   `mapstructure:"notify"`
	Redis    RedisConfig    `mapstructure:"redis"`
	S3       S3Config       `mapstructure:"s3"`
	Listings []ListingEntry `mapstructure:"listings"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type StoreConfig struct {
	Driver     string         `mapstructure:"driver"`
	SQLitePath string         `mapstructure:"sqlite_path"`
	Postgres   PostgresConfig `mapstructure:"postgres"`
}

type PostgresConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int    `mapstructure:"max_conns"`
	MinConns int    `mapstructure:"min_conns"`
}

type AuctionConfig struct {
	QuietPeriod        time.Duration    `mapstructure:"quiet_period"`
	RetireAfter        time.Duration    `mapstructure:"retire_after"`
	RequirePaymentHold bool             `mapstructure:"require_payment_hold"`
	Increments         []IncrementEntry `mapstructure:"increments"`
}

// IncrementEntry is one row of the increment table. Amounts are decimal strings.
type IncrementEntry struct {
	Threshold string `mapstructure:"threshold"`
	Increment string `mapstructure:"increment"`
}

type NotifyConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
	BatchSize    int           `mapstructure:"batch_size"`
	Events       []string      `mapstructure:"events"`
}

type RedisConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	Addr          string `mapstructure:"addr"`
	Password      string `mapstructure:"password"`
	DB            int    `mapstructure:"db"`
	PoolSize      int    `mapstructure:"pool_size"`
	ChannelPrefix string `mapstructure:"channel_prefix"`
	Stream        string `mapstructure:"stream"`
}

type S3Config struct {
	Enabled        bool   `mapstructure:"enabled"`
	Endpoint       string `mapstructure:"endpoint"`
	Region         string `mapstructure:"region"`
	Bucket         string `mapstructure:"bucket"`
	AccessKey      string `mapstructure:"access_key"`
	SecretKey      string `mapstructure:"secret_key"`
	ForcePathStyle bool   `mapstructure:"force_path_style"`
	Prefix         string `mapstructure:"prefix"`
}

// ListingEntry seeds the static catalog. Amounts are decimal strings and
// times are RFC 3339.
type ListingEntry struct {
	AuctionID   string `mapstructure:"auction_id"`
	SellerID    string `mapstructure:"seller_id"`
	StartingBid string `mapstructure:"starting_bid"`
	Reserve     string `mapstructure:"reserve"`
	StartAt     string `mapstructure:"start_at"`
	EndAt       string `mapstructure:"end_at"`
}

// setDefaults registers every key, which also lets AutomaticEnv override it.
func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("server.port", 8080)

	v.SetDefault("store.driver", DriverMemory)
	v.SetDefault("store.sqlite_path", "auction.db")
	v.SetDefault("store.postgres.dsn", "")
	v.SetDefault("store.postgres.max_conns", 10)
	v.SetDefault("store.postgres.min_conns", 1)

	v.SetDefault("auction.quiet_period", auction.DefaultQuietPeriod)
	v.SetDefault("auction.retire_after", 10*time.Minute)
	v.SetDefault("auction.require_payment_hold", true)

	v.SetDefault("notify.poll_interval", 2*time.Second)
	v.SetDefault("notify.batch_size", 100)
	v.SetDefault("notify.events", []string{})

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.channel_prefix", "auction")
	v.SetDefault("redis.stream", "auction:events")

	v.SetDefault("s3.enabled", false)
	v.SetDefault("s3.endpoint", "")
	v.SetDefault("s3.region", "")
	v.SetDefault("s3.bucket", "")
	v.SetDefault("s3.access_key", "")
	v.SetDefault("s3.secret_key", "")
	v.SetDefault("s3.force_path_style", false)
	v.SetDefault("s3.prefix", "ledgers")
}

// Load reads the config file at path, if any, on top of the defaults and
// applies AUCTION_* overrides, e.g. AUCTION_STORE_DRIVER for store.driver.
// The result is not validated; call Validate.
func Load(path string) (*Config, error) {
	// a missing .env is fine
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	return &cfg, nil
}

// Validate reports every problem found, joined into one error.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}

	switch c.Store.Driver {
	case DriverMemory:
	case DriverSQLite:
		if c.Store.SQLitePath == "" {
			errs = append(errs, errors.New("store.sqlite_path is required for the sqlite driver"))
		}
	case DriverPostgres:
		if c.Store.Postgres.DSN == "" {
			errs = append(errs, errors.New("store.postgres.dsn is required for the postgres driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store.driver %q", c.Store.Driver))
	}

	if c.Auction.QuietPeriod <= 0 {
		errs = append(errs, errors.New("auction.quiet_period must be positive"))
	}
	if c.Auction.RetireAfter <= 0 {
		errs = append(errs, errors.New("auction.retire_after must be positive"))
	}
	if _, err := c.IncrementTable(); err != nil {
		errs = append(errs, err)
	}

	if c.Notify.PollInterval <= 0 {
		errs = append(errs, errors.New("notify.poll_interval must be positive"))
	}
	if c.Notify.BatchSize <= 0 {
		errs = append(errs, errors.New("notify.batch_size must be positive"))
	}

	if c.Redis.Enabled && c.Redis.Addr == "" {
		errs = append(errs, errors.New("redis.addr is required when redis is enabled"))
	}
	if c.S3.Enabled && (c.S3.Bucket == "" || c.S3.Region == "") {
		errs = append(errs, errors.New("s3.bucket and s3.region are required when s3 is enabled"))
	}

	if _, err := c.CatalogListings(); err != nil {
		errs = append(errs, err)
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: invalid: %w", err)
	}
	return nil
}

// IncrementTable builds the configured table, or the default one when none
// is configured.
func (c *Config) IncrementTable() (auction.IncrementTable, error) {
	if len(c.Auction.Increments) == 0 {
		return auction.DefaultIncrementTable(), nil
	}
	steps := make([]auction.IncrementStep, 0, len(c.Auction.Increments))
	for i, e := range c.Auction.Increments {
		threshold, err := decimal.NewFromString(e.Threshold)
		if err != nil {
			return auction.IncrementTable{}, fmt.Errorf("auction.increments[%d].threshold: %w", i, err)
		}
		increment, err := decimal.NewFromString(e.Increment)
		if err != nil {
			return auction.IncrementTable{}, fmt.Errorf("auction.increments[%d].increment: %w", i, err)
		}
		steps = append(steps, auction.IncrementStep{Threshold: threshold, Increment: increment})
	}
	return auction.NewIncrementTable(steps)
}

// CatalogListings converts the seeded listings.
func (c *Config) CatalogListings() ([]models.Listing, error) {
	out := make([]models.Listing, 0, len(c.Listings))
	for i, l := range c.Listings {
		listing, err := l.toListing()
		if err != nil {
			return nil, fmt.Errorf("listings[%d]: %w", i, err)
		}
		out = append(out, listing)
	}
	return out, nil
}

func (l ListingEntry) toListing() (models.Listing, error) {
	if l.AuctionID == "" || l.SellerID == "" {
		return models.Listing{}, errors.New("auction_id and seller_id are required")
	}
	starting, err := decimal.NewFromString(l.StartingBid)
	if err != nil {
		return models.Listing{}, fmt.Errorf("starting_bid: %w", err)
	}
	if !starting.IsPositive() {
		return models.Listing{}, errors.New("starting_bid must be positive")
	}
	startAt, err := time.Parse(time.RFC3339, l.StartAt)
	if err != nil {
		return models.Listing{}, fmt.Errorf("start_at: %w", err)
	}
	endAt, err := time.Parse(time.RFC3339, l.EndAt)
	if err != nil {
		return models.Listing{}, fmt.Errorf("end_at: %w", err)
	}
	if !endAt.After(startAt) {
		return models.Listing{}, errors.New("end_at must be after start_at")
	}

	listing := models.Listing{
		AuctionID:   l.AuctionID,
		SellerID:    l.SellerID,
		StartingBid: starting,
		StartAt:     startAt.UTC(),
		EndAt:       endAt.UTC(),
	}
	if l.Reserve != "" {
		reserve, err := decimal.NewFromString(l.Reserve)
		if err != nil {
			return models.Listing{}, fmt.Errorf("reserve: %w", err)
		}
		listing.Reserve = &reserve
	}
	return listing, nil
}
