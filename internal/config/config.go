package config

import "time"

// Config holds server configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	MaxMessageBytes   int64         `mapstructure:"max_message_bytes" yaml:"max_message_bytes"`

	Log       LogConfig       `mapstructure:"log" yaml:"log"`
	JWT       JWTConfig       `mapstructure:"jwt" yaml:"jwt"`
	Auth      AuthConfig      `mapstructure:"auth" yaml:"auth"`
	CORS      CORSConfig      `mapstructure:"cors" yaml:"cors"`
	Heartbeat HeartbeatConfig `mapstructure:"heartbeat" yaml:"heartbeat"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit" yaml:"rate_limit"`
	Store     StoreConfig     `mapstructure:"store" yaml:"store"`
	Uploads   UploadsConfig   `mapstructure:"uploads" yaml:"uploads"`
	Redis     RedisConfig     `mapstructure:"redis" yaml:"redis"`
	NATS      NATSConfig      `mapstructure:"nats" yaml:"nats"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"` // console or json
}

type JWTConfig struct {
	Secret   string        `mapstructure:"secret" yaml:"secret"`
	Issuer   string        `mapstructure:"issuer" yaml:"issuer"`
	Audience string        `mapstructure:"audience" yaml:"audience"`
	TTL      time.Duration `mapstructure:"ttl" yaml:"ttl"`
}

type AuthConfig struct {
	// Require closes /ws connections whose credential does not verify.
	Require bool `mapstructure:"require" yaml:"require"`
}

type CORSConfig struct {
	// Origin is the single browser origin allowed to call the API with
	// credentials. Empty disables CORS headers.
	Origin string `mapstructure:"origin" yaml:"origin"`
}

type HeartbeatConfig struct {
	Interval time.Duration `mapstructure:"interval" yaml:"interval"`
	Timeout  time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

type RateLimitConfig struct {
	PerSecond float64 `mapstructure:"per_second" yaml:"per_second"`
	Burst     int     `mapstructure:"burst" yaml:"burst"`
}

type StoreConfig struct {
	Driver        string `mapstructure:"driver" yaml:"driver"` // sqlite or mongo
	SQLitePath    string `mapstructure:"sqlite_path" yaml:"sqlite_path"`
	MongoURI      string `mapstructure:"mongo_uri" yaml:"mongo_uri"`
	MongoDatabase string `mapstructure:"mongo_database" yaml:"mongo_database"`
}

type UploadsConfig struct {
	Dir string `mapstructure:"dir" yaml:"dir"`
}

// RedisConfig enables the presence mirror when Addr is set.
type RedisConfig struct {
	Addr     string `mapstructure:"addr" yaml:"addr"`
	Password string `mapstructure:"password" yaml:"password"`
	DB       int    `mapstructure:"db" yaml:"db"`
	Key      string `mapstructure:"key" yaml:"key"`
}

// NATSConfig enables message event publication when URL is set.
type NATSConfig struct {
	URL     string `mapstructure:"url" yaml:"url"`
	Subject string `mapstructure:"subject" yaml:"subject"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:              ":8080",
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   5 * time.Second,
		MaxMessageBytes:   10 << 20,
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		JWT: JWTConfig{
			Secret:   PlaceholderSecret,
			Issuer:   "chatnest",
			Audience: "chatnest",
			TTL:      24 * time.Hour,
		},
		Heartbeat: HeartbeatConfig{
			Interval: 5 * time.Second,
			Timeout:  time.Second,
		},
		RateLimit: RateLimitConfig{
			PerSecond: 20,
			Burst:     40,
		},
		Store: StoreConfig{
			Driver:        "sqlite",
			SQLitePath:    "chatnest.db",
			MongoDatabase: "chatnest",
		},
		Uploads: UploadsConfig{
			Dir: "uploads",
		},
		Redis: RedisConfig{
			Key: "chatnest:online",
		},
		NATS: NATSConfig{
			Subject: "chatnest.messages",
		},
	}
}

// UpdateFrom overwrites non-zero values from other config into receiver.
// Only the flags exposed on the command line are considered.
func (c *Config) UpdateFrom(other Config) {
	if other.Addr != "" {
		c.Addr = other.Addr
	}
	if other.ReadHeaderTimeout != 0 {
		c.ReadHeaderTimeout = other.ReadHeaderTimeout
	}
	if other.ShutdownTimeout != 0 {
		c.ShutdownTimeout = other.ShutdownTimeout
	}
	if other.Log.Level != "" {
		c.Log.Level = other.Log.Level
	}
	if other.Store.Driver != "" {
		c.Store.Driver = other.Store.Driver
	}
	if other.Uploads.Dir != "" {
		c.Uploads.Dir = other.Uploads.Dir
	}
}
