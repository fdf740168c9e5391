package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config is assembled from environment variables. Persistence and messaging
// endpoints are optional: without DATABASE_URL the service runs on in-memory
// storage, without AMQP_URL updates stay in-process only.
type Config struct {
	ServiceName string
	Env         string
	HTTPAddr    string
	DatabaseURL string
	AMQPURL     string
	TableCount  int
}

const defaultTableCount = 12

func Load() (*Config, error) {
	cfg := &Config{
		ServiceName: getenvDefault("SERVICE_NAME", "comanda"),
		Env:         getenvDefault("ENV", "dev"),
		HTTPAddr:    getenvDefault("HTTP_ADDR", ":8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		AMQPURL:     os.Getenv("AMQP_URL"),
		TableCount:  defaultTableCount,
	}

	if raw := os.Getenv("TABLE_COUNT"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("config: TABLE_COUNT must be a positive integer, got %q", raw)
		}
		cfg.TableCount = n
	}

	return cfg, nil
}

// TableNumbers enumerates the physical table numbers, starting at 1.
func (c *Config) TableNumbers() []int {
	numbers := make([]int, c.TableCount)
	for i := range numbers {
		numbers[i] = i + 1
	}
	return numbers
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
