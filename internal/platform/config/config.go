// Package config loads process configuration. Values come from defaults, an
// optional YAML file and WARDEN_* environment variables, in increasing order
// of precedence. A .env file in the working directory is loaded first when
// present.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"warden/internal/checkpoint"
	throttleconfig "warden/internal/throttle/config"
	tokenconfig "warden/internal/tokens/config"
)

const envPrefix = "WARDEN"

// Storage backends.
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// Event sinks.
const (
	SinkNone     = "none"
	SinkMemory   = "memory"
	SinkKafka    = "kafka"
	SinkAMQP     = "amqp"
	SinkPostgres = "postgres"
)

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string        `mapstructure:"addr" validate:"required"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
	// TrustedProxies lists the CIDRs or addresses whose forwarding headers
	// name the client. Empty means the peer address is always used.
	TrustedProxies []string `mapstructure:"trusted_proxies" validate:"dive,cidr|ip"`
}

type Log struct {
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`
}

// RedisConfig configures the shared Redis client.
type RedisConfig struct {
	URL          string        `mapstructure:"url"`
	PoolSize     int           `mapstructure:"pool_size" validate:"gte=0"`
	MinIdleConns int           `mapstructure:"min_idle_conns" validate:"gte=0"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type Postgres struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" validate:"gte=0"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" validate:"gte=0"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	Migrate         bool          `mapstructure:"migrate"`
}

type Storage struct {
	Backend string `mapstructure:"backend" validate:"oneof=memory redis postgres"`
	// Fallback keeps throttling available on an in-memory store while the
	// shared backend is failing.
	Fallback bool `mapstructure:"fallback"`
}

type Kafka struct {
	Brokers           []string `mapstructure:"brokers"`
	Topic             string   `mapstructure:"topic"`
	ClientID          string   `mapstructure:"client_id"`
	Partitions        int32    `mapstructure:"partitions" validate:"gte=0"`
	ReplicationFactor int16    `mapstructure:"replication_factor" validate:"gte=0"`
}

type AMQP struct {
	URL      string `mapstructure:"url"`
	Exchange string `mapstructure:"exchange"`
}

// Events configures where gate events are delivered. Every sink except none
// and memory is fronted by the async buffer.
type Events struct {
	Sink          string        `mapstructure:"sink" validate:"oneof=none memory kafka amqp postgres"`
	BufferSize    int           `mapstructure:"buffer_size" validate:"gte=0"`
	BatchSize     int           `mapstructure:"batch_size" validate:"gte=0"`
	FlushInterval time.Duration `mapstructure:"flush_interval"`
	Kafka         Kafka         `mapstructure:"kafka"`
	AMQP          AMQP          `mapstructure:"amqp"`
}

// ThrottleScope is the file/env form of one scope. Thresholds use the
// "attempts:delay" list form.
type ThrottleScope struct {
	Interval   time.Duration `mapstructure:"interval" validate:"gt=0"`
	Thresholds string        `mapstructure:"thresholds"`
	Limit      int           `mapstructure:"limit" validate:"gte=0"`
}

type Throttle struct {
	Global           ThrottleScope `mapstructure:"global"`
	IP               ThrottleScope `mapstructure:"ip"`
	User             ThrottleScope `mapstructure:"user"`
	ResetIPOnSuccess bool          `mapstructure:"reset_ip_on_success"`
}

type Tokens struct {
	ActivationTTL    time.Duration `mapstructure:"activation_ttl" validate:"gt=0"`
	ReminderTTL      time.Duration `mapstructure:"reminder_ttl" validate:"gt=0"`
	PersistenceTTL   time.Duration `mapstructure:"persistence_ttl" validate:"gte=0"`
	ExpiredRetention time.Duration `mapstructure:"expired_retention" validate:"gte=0"`
	RotateRemembered bool          `mapstructure:"rotate_remembered"`
}

type Sessions struct {
	TTL time.Duration `mapstructure:"ttl" validate:"gte=0"`
}

type Maintenance struct {
	Interval time.Duration `mapstructure:"interval" validate:"gt=0"`
	// ThrottleRetention is how long idle throttle records are kept.
	ThrottleRetention time.Duration `mapstructure:"throttle_retention" validate:"gt=0"`
}

// Config is the full process configuration.
type Config struct {
	Server      Server      `mapstructure:"server"`
	Log         Log         `mapstructure:"log"`
	Storage     Storage     `mapstructure:"storage"`
	Redis       RedisConfig `mapstructure:"redis"`
	Postgres    Postgres    `mapstructure:"postgres"`
	Events      Events      `mapstructure:"events"`
	Throttle    Throttle    `mapstructure:"throttle"`
	Tokens      Tokens      `mapstructure:"tokens"`
	Sessions    Sessions    `mapstructure:"sessions"`
	Maintenance Maintenance `mapstructure:"maintenance"`
	Checkpoints []string    `mapstructure:"checkpoints" validate:"required,min=1,dive,oneof=throttle activation"`
}

var validate = validator.New()

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.allowed_origins", []string{})
	v.SetDefault("server.trusted_proxies", []string{})

	v.SetDefault("log.level", "info")

	v.SetDefault("storage.backend", BackendMemory)
	v.SetDefault("storage.fallback", true)

	v.SetDefault("redis.url", "")
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.min_idle_conns", 2)
	v.SetDefault("redis.dial_timeout", 5*time.Second)
	v.SetDefault("redis.read_timeout", 3*time.Second)
	v.SetDefault("redis.write_timeout", 3*time.Second)

	v.SetDefault("postgres.dsn", "")
	v.SetDefault("postgres.max_open_conns", 25)
	v.SetDefault("postgres.max_idle_conns", 5)
	v.SetDefault("postgres.conn_max_lifetime", 30*time.Minute)
	v.SetDefault("postgres.migrate", true)

	v.SetDefault("events.sink", SinkNone)
	v.SetDefault("events.buffer_size", 4096)
	v.SetDefault("events.batch_size", 100)
	v.SetDefault("events.flush_interval", 250*time.Millisecond)
	v.SetDefault("events.kafka.brokers", []string{})
	v.SetDefault("events.kafka.topic", "warden.events")
	v.SetDefault("events.kafka.client_id", "warden")
	v.SetDefault("events.kafka.partitions", 3)
	v.SetDefault("events.kafka.replication_factor", 1)
	v.SetDefault("events.amqp.url", "")
	v.SetDefault("events.amqp.exchange", "warden.events")

	def := throttleconfig.DefaultConfig()
	for name, sc := range map[string]throttleconfig.ScopeConfig{"global": def.Global, "ip": def.IP, "user": def.User} {
		v.SetDefault("throttle."+name+".interval", sc.Interval)
		v.SetDefault("throttle."+name+".thresholds", sc.Thresholds.String())
		v.SetDefault("throttle."+name+".limit", sc.Limit)
	}
	v.SetDefault("throttle.reset_ip_on_success", false)

	tok := tokenconfig.DefaultConfig()
	v.SetDefault("tokens.activation_ttl", tok.ActivationTTL)
	v.SetDefault("tokens.reminder_ttl", tok.ReminderTTL)
	v.SetDefault("tokens.persistence_ttl", 30*24*time.Hour)
	v.SetDefault("tokens.expired_retention", tok.ExpiredRetention)
	v.SetDefault("tokens.rotate_remembered", true)

	v.SetDefault("sessions.ttl", 12*time.Hour)

	v.SetDefault("maintenance.interval", 10*time.Minute)
	v.SetDefault("maintenance.throttle_retention", 24*time.Hour)

	v.SetDefault("checkpoints", []string{checkpoint.NameThrottle, checkpoint.NameActivation})
}

// Load reads configuration. path may be empty, in which case only defaults
// and the environment are consulted.
func Load(path string) (*Config, error) {
	// Missing .env is normal outside local development.
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate runs struct tag validation followed by cross-field checks.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	switch c.Storage.Backend {
	case BackendRedis:
		if c.Redis.URL == "" {
			return errors.New("invalid config: redis.url is required for the redis backend")
		}
	case BackendPostgres:
		if c.Postgres.DSN == "" {
			return errors.New("invalid config: postgres.dsn is required for the postgres backend")
		}
	}
	switch c.Events.Sink {
	case SinkKafka:
		if len(c.Events.Kafka.Brokers) == 0 {
			return errors.New("invalid config: events.kafka.brokers is required for the kafka sink")
		}
	case SinkAMQP:
		if c.Events.AMQP.URL == "" {
			return errors.New("invalid config: events.amqp.url is required for the amqp sink")
		}
	case SinkPostgres:
		if c.Postgres.DSN == "" {
			return errors.New("invalid config: postgres.dsn is required for the postgres sink")
		}
	}
	if _, err := c.ThrottleConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return c.TokenConfig().Validate()
}

// ThrottleConfig converts the scope settings into engine configuration.
func (c *Config) ThrottleConfig() (throttleconfig.Config, error) {
	var out throttleconfig.Config
	for _, s := range []struct {
		name string
		in   ThrottleScope
		out  *throttleconfig.ScopeConfig
	}{
		{"global", c.Throttle.Global, &out.Global},
		{"ip", c.Throttle.IP, &out.IP},
		{"user", c.Throttle.User, &out.User},
	} {
		table, err := throttleconfig.ParseThresholds(s.in.Thresholds)
		if err != nil {
			return throttleconfig.Config{}, fmt.Errorf("throttle %s scope: %w", s.name, err)
		}
		*s.out = throttleconfig.ScopeConfig{Interval: s.in.Interval, Thresholds: table, Limit: s.in.Limit}
	}
	if err := out.Validate(); err != nil {
		return throttleconfig.Config{}, err
	}
	return out, nil
}

func (c *Config) TokenConfig() tokenconfig.Config {
	return tokenconfig.Config{
		ActivationTTL:    c.Tokens.ActivationTTL,
		ReminderTTL:      c.Tokens.ReminderTTL,
		PersistenceTTL:   c.Tokens.PersistenceTTL,
		ExpiredRetention: c.Tokens.ExpiredRetention,
	}
}
