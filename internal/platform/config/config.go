package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

type Config struct {
	App         AppConfig         `mapstructure:"app"`
	DB          DBConfig          `mapstructure:"db"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Kafka       KafkaConfig       `mapstructure:"kafka"`
	Reservation ReservationConfig `mapstructure:"reservation"`
	Sweeper     SweeperConfig     `mapstructure:"sweeper"`
	Reconciler  ReconcilerConfig  `mapstructure:"reconciler"`
	Outbox      OutboxConfig      `mapstructure:"outbox"`
	Retry       RetryConfig       `mapstructure:"retry"`
	Log         LogConfig         `mapstructure:"log"`
	Otel        OtelConfig        `mapstructure:"otel"`
}

type AppConfig struct {
	Port            int           `mapstructure:"port"`
	Store           string        `mapstructure:"store"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type DBConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	LockTimeout     time.Duration `mapstructure:"lock_timeout"`
	ConnectAttempts int           `mapstructure:"connect_attempts"`
}

func (c DBConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode)
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type KafkaConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	Brokers         string `mapstructure:"brokers"`
	EventsTopic     string `mapstructure:"events_topic"`
	SettlementTopic string `mapstructure:"settlement_topic"`
	GroupID         string `mapstructure:"group_id"`
}

func (c KafkaConfig) BrokerList() []string {
	var brokers []string
	for _, b := range strings.Split(c.Brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

type ReservationConfig struct {
	HoldDuration time.Duration `mapstructure:"hold_duration"`
}

type SweeperConfig struct {
	Interval  time.Duration `mapstructure:"interval"`
	BatchSize int           `mapstructure:"batch_size"`
	Lease     time.Duration `mapstructure:"lease"`
}

type ReconcilerConfig struct {
	Interval    time.Duration `mapstructure:"interval"`
	OrphanGrace time.Duration `mapstructure:"orphan_grace"`
	BatchSize   int           `mapstructure:"batch_size"`
	Lease       time.Duration `mapstructure:"lease"`
}

type OutboxConfig struct {
	Interval     time.Duration `mapstructure:"interval"`
	BatchSize    int           `mapstructure:"batch_size"`
	ClaimTimeout time.Duration `mapstructure:"claim_timeout"`
}

type RetryConfig struct {
	MaxAttempts     int           `mapstructure:"max_attempts"`
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

type OtelConfig struct {
	Endpoint    string `mapstructure:"endpoint"`
	ServiceName string `mapstructure:"service_name"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.port", 8080)
	v.SetDefault("app.store", StorePostgres)
	v.SetDefault("app.shutdown_timeout", 10*time.Second)

	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", 5432)
	v.SetDefault("db.user", "postgres")
	v.SetDefault("db.password", "")
	v.SetDefault("db.name", "reservations")
	v.SetDefault("db.sslmode", "disable")
	v.SetDefault("db.max_open_conns", 25)
	v.SetDefault("db.max_idle_conns", 25)
	v.SetDefault("db.conn_max_lifetime", 5*time.Minute)
	v.SetDefault("db.lock_timeout", 2*time.Second)
	v.SetDefault("db.connect_attempts", 10)

	v.SetDefault("redis.enabled", true)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("kafka.enabled", true)
	v.SetDefault("kafka.brokers", "localhost:9092")
	v.SetDefault("kafka.events_topic", "reservation-events")
	v.SetDefault("kafka.settlement_topic", "settlement-outcomes")
	v.SetDefault("kafka.group_id", "reservation-engine")

	v.SetDefault("reservation.hold_duration", 15*time.Minute)

	v.SetDefault("sweeper.interval", time.Minute)
	v.SetDefault("sweeper.batch_size", 100)
	v.SetDefault("sweeper.lease", 55*time.Second)

	v.SetDefault("reconciler.interval", 5*time.Minute)
	v.SetDefault("reconciler.orphan_grace", 5*time.Minute)
	v.SetDefault("reconciler.batch_size", 100)
	v.SetDefault("reconciler.lease", 4*time.Minute)

	v.SetDefault("outbox.interval", 2*time.Second)
	v.SetDefault("outbox.batch_size", 100)
	v.SetDefault("outbox.claim_timeout", 30*time.Second)

	v.SetDefault("retry.max_attempts", 4)
	v.SetDefault("retry.initial_interval", 50*time.Millisecond)
	v.SetDefault("retry.max_interval", time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	v.SetDefault("otel.endpoint", "")
	v.SetDefault("otel.service_name", "reservation-engine")
}

// Load reads config.yaml (optional), a .env file (optional) and the process
// environment, in increasing order of precedence. DB_HOST overrides db.host.
func Load(paths ...string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.App.Port <= 0 || c.App.Port > 65535 {
		return fmt.Errorf("invalid app port: %d", c.App.Port)
	}
	if c.App.Store != StorePostgres && c.App.Store != StoreMemory {
		return fmt.Errorf("unknown store %q", c.App.Store)
	}
	if c.Reservation.HoldDuration <= 0 {
		return fmt.Errorf("reservation hold duration must be positive")
	}
	if c.Sweeper.Interval <= 0 || c.Sweeper.BatchSize <= 0 {
		return fmt.Errorf("sweeper interval and batch size must be positive")
	}
	if c.Reconciler.Interval <= 0 || c.Reconciler.BatchSize <= 0 {
		return fmt.Errorf("reconciler interval and batch size must be positive")
	}
	if c.Outbox.Interval <= 0 || c.Outbox.BatchSize <= 0 || c.Outbox.ClaimTimeout <= 0 {
		return fmt.Errorf("outbox interval, batch size and claim timeout must be positive")
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry max attempts must be at least 1")
	}
	if c.Kafka.Enabled && len(c.Kafka.BrokerList()) == 0 {
		return fmt.Errorf("kafka is enabled but no brokers are configured")
	}
	return nil
}
