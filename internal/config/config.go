// Package config loads settings from a small two-level YAML file with
// environment-variable overrides on top. Precedence: env var > file > default.
package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	Database DatabaseConfig
	RabbitMQ RabbitMQConfig
	Service  ServiceConfig
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
}

type RabbitMQConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	VHost    string
}

type ServiceConfig struct {
	// TaxRate is the flat sales tax applied to order subtotals.
	TaxRate float64
	// EventBuffer is the per-subscriber event channel depth.
	EventBuffer int
	// RelayExchange is the AMQP topic exchange broadcast events are mirrored
	// to. Empty disables the relay.
	RelayExchange string
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{Host: "localhost", Port: 5432, User: "postgres", Password: "postgres", Database: "floor"},
		RabbitMQ: RabbitMQConfig{Host: "localhost", Port: 5672, User: "guest", Password: "guest", VHost: "/"},
		Service:  ServiceConfig{TaxRate: 0.0825, EventBuffer: 64, RelayExchange: "floor_events"},
	}
}

// Load reads path (empty means defaults only) and applies POS_* env
// overrides.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := readFile(cfg, path); err != nil {
			return nil, err
		}
	}
	applyEnv(cfg)
	return cfg, nil
}

func readFile(cfg *Config, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	var section string
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasSuffix(line, ":") {
			section = strings.TrimSuffix(line, ":")
			continue
		}
		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.Trim(strings.TrimSpace(parts[1]), `"'`)

		switch section {
		case "database":
			switch key {
			case "host":
				cfg.Database.Host = value
			case "port":
				cfg.Database.Port, _ = strconv.Atoi(value)
			case "user":
				cfg.Database.User = value
			case "password":
				cfg.Database.Password = value
			case "database":
				cfg.Database.Database = value
			}
		case "rabbitmq":
			switch key {
			case "host":
				cfg.RabbitMQ.Host = value
			case "port":
				cfg.RabbitMQ.Port, _ = strconv.Atoi(value)
			case "user":
				cfg.RabbitMQ.User = value
			case "password":
				cfg.RabbitMQ.Password = value
			case "vhost":
				cfg.RabbitMQ.VHost = value
			}
		case "service":
			switch key {
			case "tax_rate":
				cfg.Service.TaxRate, _ = strconv.ParseFloat(value, 64)
			case "event_buffer":
				cfg.Service.EventBuffer, _ = strconv.Atoi(value)
			case "relay_exchange":
				cfg.Service.RelayExchange = value
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	setString(&cfg.Database.Host, "POS_DB_HOST")
	setInt(&cfg.Database.Port, "POS_DB_PORT")
	setString(&cfg.Database.User, "POS_DB_USER")
	setString(&cfg.Database.Password, "POS_DB_PASSWORD")
	setString(&cfg.Database.Database, "POS_DB_NAME")
	setString(&cfg.RabbitMQ.Host, "POS_MQ_HOST")
	setInt(&cfg.RabbitMQ.Port, "POS_MQ_PORT")
	setString(&cfg.RabbitMQ.User, "POS_MQ_USER")
	setString(&cfg.RabbitMQ.Password, "POS_MQ_PASSWORD")
	setString(&cfg.RabbitMQ.VHost, "POS_MQ_VHOST")
	setFloat(&cfg.Service.TaxRate, "POS_TAX_RATE")
	setInt(&cfg.Service.EventBuffer, "POS_EVENT_BUFFER")
	setString(&cfg.Service.RelayExchange, "POS_RELAY_EXCHANGE")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}
