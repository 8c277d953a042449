package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	env "github.com/Netflix/go-env"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Store drivers accepted by STORE_DRIVER.
const (
	DriverPocketBase = "pocketbase"
	DriverBadger     = "badger"
	DriverMemory     = "memory"
)

// Config holds the runtime settings of the live editing service.
type Config struct {
	StoreDriver    string `env:"STORE_DRIVER,default=pocketbase" validate:"oneof=pocketbase badger memory"`
	BadgerPath     string `env:"BADGER_PATH,default=pb_data/badger" validate:"required_if=StoreDriver badger"`
	AllowedOrigins string `env:"ALLOWED_ORIGINS,default=*"`
	AnonymousName  string `env:"ANONYMOUS_NAME,default=Anonymous" validate:"required,max=50"`

	PersistWorkers        int           `env:"PERSIST_WORKERS,default=4" validate:"min=1,max=64"`
	PersistQueueSize      int           `env:"PERSIST_QUEUE_SIZE,default=1024" validate:"min=1"`
	PersistMaxRetries     int           `env:"PERSIST_MAX_RETRIES,default=5" validate:"min=1"`
	PersistBaseRetryDelay time.Duration `env:"PERSIST_BASE_RETRY_DELAY,default=200ms" validate:"gt=0"`
	PersistMaxRetryDelay  time.Duration `env:"PERSIST_MAX_RETRY_DELAY,default=10s" validate:"gtefield=PersistBaseRetryDelay"`
	PersistWriteTimeout   time.Duration `env:"PERSIST_WRITE_TIMEOUT,default=5s" validate:"gt=0"`
}

// Load reads an optional .env file, then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	var cfg Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the struct constraints.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Origins splits ALLOWED_ORIGINS into websocket origin patterns.
func (c *Config) Origins() []string {
	var patterns []string
	for _, p := range strings.Split(c.AllowedOrigins, ",") {
		if p = strings.TrimSpace(p); p != "" {
			patterns = append(patterns, p)
		}
	}
	if len(patterns) == 0 {
		return []string{"*"}
	}
	return patterns
}
