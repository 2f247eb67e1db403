package config

import (
	"time"

	"github.com/caarlos0/env/v11"
)

type DB struct {
	URL             string        `env:"DATABASE_URL,required"`
	MigrationsPath  string        `env:"DB_MIGRATIONS_PATH" envDefault:"file://db/migrations"`
	MaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS" envDefault:"16"`
	MaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS" envDefault:"8"`
	ConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" envDefault:"1h"`
	ConnMaxIdleTime time.Duration `env:"DB_CONN_MAX_IDLE_TIME" envDefault:"15m"`
}

type Kafka struct {
	BootstrapServers string        `env:"KAFKA_BOOTSTRAP_SERVERS,required"`
	EventsTopic      string        `env:"KAFKA_EVENTS_TOPIC" envDefault:"domain-events"`
	GroupID          string        `env:"KAFKA_GROUP_ID" envDefault:"stats-service"`
	DeadLetterTopic  string        `env:"KAFKA_DEAD_LETTER_TOPIC" envDefault:"domain-events-dlq"`
	MaxRetries       int           `env:"KAFKA_MAX_RETRIES" envDefault:"5"`
	RetryBackoff     time.Duration `env:"KAFKA_RETRY_BACKOFF" envDefault:"500ms"`
}

type HTTP struct {
	Port string `env:"PORT" envDefault:"8080"`
}

type Config struct {
	DB    DB
	Kafka Kafka
	HTTP  HTTP
}

func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
