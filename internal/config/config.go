package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config holds the full application configuration.
// Values come from a YAML file with environment variables taking priority.
type Config struct {
	RabbitMQ struct {
		Host        string `yaml:"host" env:"RABBITMQ_HOST"`
		Port        int    `yaml:"port" env:"RABBITMQ_PORT"`
		Username    string `yaml:"username" env:"RABBITMQ_USERNAME"`
		Password    string `yaml:"password" env:"RABBITMQ_PASSWORD"`
		VirtualHost string `yaml:"virtual_host" env:"RABBITMQ_VHOST"`

		// Unacked message window on the consume channel
		PrefetchCount int `yaml:"prefetch_count" env:"RABBITMQ_PREFETCH"`

		// Video queues expire stale frames instead of backlogging
		VideoTTLMillis int `yaml:"video_ttl_ms" env:"RABBITMQ_VIDEO_TTL_MS"`

		Exchanges struct {
			Telemetry string `yaml:"telemetry" env:"EXCHANGE_TELEMETRY"`
			Commands  string `yaml:"commands" env:"EXCHANGE_COMMANDS"`
			Video     string `yaml:"video" env:"EXCHANGE_VIDEO"`
			Alerts    string `yaml:"alerts" env:"EXCHANGE_ALERTS"`
			GUI       string `yaml:"gui" env:"EXCHANGE_GUI"`
		} `yaml:"exchanges"`
	} `yaml:"rabbitmq"`

	Postgres struct {
		DSN string `yaml:"dsn" env:"DATABASE_DSN"`
	} `yaml:"postgres"`

	Minio struct {
		Endpoint  string `yaml:"endpoint" env:"MINIO_ENDPOINT"`
		AccessKey string `yaml:"access_key" env:"MINIO_ACCESS_KEY"`
		SecretKey string `yaml:"secret_key" env:"MINIO_SECRET_KEY"`
		Bucket    string `yaml:"bucket" env:"MINIO_BUCKET"`
	} `yaml:"minio"`

	Detection struct {
		Endpoint            string        `yaml:"endpoint" env:"DETECTION_ENDPOINT"`
		ConfidenceThreshold float64       `yaml:"confidence_threshold" env:"DETECTION_CONFIDENCE"`
		Timeout             time.Duration `yaml:"timeout" env:"DETECTION_TIMEOUT"`
	} `yaml:"detection"`

	API struct {
		Port int `yaml:"port" env:"API_PORT"`
	} `yaml:"api"`
}

// AMQPURL builds the broker connection URL from the RabbitMQ section.
func (c *Config) AMQPURL() string {
	vhost := c.RabbitMQ.VirtualHost
	if vhost == "/" {
		vhost = ""
	}
	return fmt.Sprintf("amqp://%s:%s@%s:%d/%s",
		c.RabbitMQ.Username, c.RabbitMQ.Password,
		c.RabbitMQ.Host, c.RabbitMQ.Port, vhost)
}

// LoadConfig reads a YAML config file and applies env overrides.
func LoadConfig(filename string) (*Config, error) {
	cfg := &Config{}

	if filename == "" {
		filename = "local.yaml"
	}
	path := "internal/config/" + filename

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	// Env vars win over file values
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.RabbitMQ.PrefetchCount == 0 {
		c.RabbitMQ.PrefetchCount = 10
	}
	if c.RabbitMQ.VideoTTLMillis == 0 {
		c.RabbitMQ.VideoTTLMillis = 5000
	}
	if c.Detection.Timeout == 0 {
		c.Detection.Timeout = 15 * time.Second
	}
	if c.Detection.ConfidenceThreshold == 0 {
		c.Detection.ConfidenceThreshold = 0.5
	}
	if c.API.Port == 0 {
		c.API.Port = 8002
	}
}
