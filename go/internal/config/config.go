package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/mcdev12/showdown/go/internal/reasoning"
	"github.com/mcdev12/showdown/go/internal/session"
)

// Config holds every server setting. Values come from the built in defaults,
// then the optional YAML file, then POKER_* environment variables.
type Config struct {
	Host     string
	Port     int
	LogLevel zerolog.Level
	Pretty   bool

	Ollama     OllamaConfig
	Generation GenerationConfig

	SendQueueSize int

	NATSURL      string
	ArchiveLimit int

	Table     TableConfig
	Opponents []session.Opponent
}

type OllamaConfig struct {
	URL           string
	Timeout       time.Duration
	MaxConcurrent int64
	Think         bool
}

type GenerationConfig struct {
	Timeout    time.Duration
	BatchSize  int
	BatchDelay time.Duration
}

// TableConfig is the default table of a new session
type TableConfig struct {
	HumanName     string        `yaml:"human_name"`
	StartingStack int           `yaml:"starting_stack"`
	SmallBlind    int           `yaml:"small_blind"`
	BigBlind      int           `yaml:"big_blind"`
	HandLimit     int           `yaml:"hand_limit"`
	TurnTimeout   time.Duration `yaml:"turn_timeout"`
	NextHandDelay time.Duration `yaml:"next_hand_delay"`
}

// fileConfig is the layout of POKER_CONFIG_FILE
type fileConfig struct {
	Table     *TableConfig       `yaml:"table"`
	Opponents []session.Opponent `yaml:"opponents"`
}

// Default returns the configuration used when nothing is set
func Default() Config {
	pipeline := reasoning.DefaultConfig()
	return Config{
		Host:     "0.0.0.0",
		Port:     8000,
		LogLevel: zerolog.InfoLevel,
		Pretty:   true,
		Ollama: OllamaConfig{
			URL:           "http://localhost:11434",
			Timeout:       10 * time.Second,
			MaxConcurrent: 1,
		},
		Generation: GenerationConfig{
			Timeout:    pipeline.Timeout,
			BatchSize:  pipeline.BatchSize,
			BatchDelay: pipeline.MaxDelay,
		},
		SendQueueSize: 256,
		ArchiveLimit:  1000,
		Table: TableConfig{
			HumanName:     "You",
			StartingStack: 10000,
			SmallBlind:    50,
			BigBlind:      100,
			HandLimit:     10,
			TurnTimeout:   30 * time.Second,
		},
		Opponents: []session.Opponent{
			{Name: "Llama", Model: "llama3.2", Temperature: 0.6},
		},
	}
}

// Load reads .env (if present), the optional YAML file and the environment
func Load() (Config, error) {
	// a missing .env is normal outside development
	_ = godotenv.Load()

	cfg := Default()
	if path := os.Getenv("POKER_CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.loadEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var file fileConfig
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}

	if t := file.Table; t != nil {
		if t.HumanName != "" {
			c.Table.HumanName = t.HumanName
		}
		if t.StartingStack != 0 {
			c.Table.StartingStack = t.StartingStack
		}
		if t.SmallBlind != 0 {
			c.Table.SmallBlind = t.SmallBlind
		}
		if t.BigBlind != 0 {
			c.Table.BigBlind = t.BigBlind
		}
		if t.HandLimit != 0 {
			c.Table.HandLimit = t.HandLimit
		}
		if t.TurnTimeout != 0 {
			c.Table.TurnTimeout = t.TurnTimeout
		}
		if t.NextHandDelay != 0 {
			c.Table.NextHandDelay = t.NextHandDelay
		}
	}
	if len(file.Opponents) > 0 {
		c.Opponents = file.Opponents
	}
	return nil
}

func (c *Config) loadEnv() error {
	var errs []error
	envInt := func(key string, fallback int) int {
		v, err := getEnvAsInt(key, fallback)
		errs = append(errs, err)
		return v
	}
	envDuration := func(key string, fallback time.Duration) time.Duration {
		v, err := getEnvAsDuration(key, fallback)
		errs = append(errs, err)
		return v
	}
	envBool := func(key string, fallback bool) bool {
		v, err := getEnvAsBool(key, fallback)
		errs = append(errs, err)
		return v
	}

	c.Host = getEnv("POKER_HOST", c.Host)
	c.Port = envInt("POKER_PORT", c.Port)
	if lvl := os.Getenv("POKER_LOG_LEVEL"); lvl != "" {
		level, err := zerolog.ParseLevel(strings.ToLower(lvl))
		if err != nil {
			errs = append(errs, fmt.Errorf("POKER_LOG_LEVEL: %w", err))
		} else {
			c.LogLevel = level
		}
	}
	c.Pretty = envBool("POKER_LOG_PRETTY", c.Pretty)

	c.Ollama.URL = getEnv("POKER_OLLAMA_ENDPOINT", c.Ollama.URL)
	c.Ollama.Timeout = envDuration("POKER_OLLAMA_TIMEOUT", c.Ollama.Timeout)
	c.Ollama.MaxConcurrent = int64(envInt("POKER_MAX_CONCURRENT_GENERATIONS", int(c.Ollama.MaxConcurrent)))
	c.Ollama.Think = envBool("POKER_OLLAMA_THINK", c.Ollama.Think)

	c.Generation.Timeout = envDuration("POKER_GENERATION_TIMEOUT", c.Generation.Timeout)
	c.Generation.BatchSize = envInt("POKER_BATCH_SIZE", c.Generation.BatchSize)
	c.Generation.BatchDelay = envDuration("POKER_BATCH_DELAY", c.Generation.BatchDelay)

	c.SendQueueSize = envInt("POKER_SEND_QUEUE_SIZE", c.SendQueueSize)
	c.NATSURL = getEnv("POKER_NATS_URL", c.NATSURL)
	c.ArchiveLimit = envInt("POKER_ARCHIVE_LIMIT", c.ArchiveLimit)

	c.Table.StartingStack = envInt("POKER_DEFAULT_STARTING_STACK", c.Table.StartingStack)
	c.Table.SmallBlind = envInt("POKER_DEFAULT_SMALL_BLIND", c.Table.SmallBlind)
	c.Table.BigBlind = envInt("POKER_DEFAULT_BIG_BLIND", c.Table.BigBlind)
	c.Table.HandLimit = envInt("POKER_DEFAULT_NUM_HANDS", c.Table.HandLimit)
	c.Table.TurnTimeout = envDuration("POKER_TURN_TIMEOUT", c.Table.TurnTimeout)
	c.Table.NextHandDelay = envDuration("POKER_NEXT_HAND_DELAY", c.Table.NextHandDelay)

	return errors.Join(errs...)
}

// Validate checks the settings the server cannot start without
func (c Config) Validate() error {
	var problems []string
	if c.Port <= 0 || c.Port > 65535 {
		problems = append(problems, fmt.Sprintf("port %d out of range", c.Port))
	}
	if c.Generation.BatchSize < 1 {
		problems = append(problems, "batch size must be at least 1")
	}
	if c.SendQueueSize < 1 {
		problems = append(problems, "send queue size must be at least 1")
	}
	if c.Ollama.MaxConcurrent < 1 {
		problems = append(problems, "max concurrent generations must be at least 1")
	}
	if c.Table.NextHandDelay < 0 {
		problems = append(problems, "next hand delay cannot be negative")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// PipelineConfig is the reasoning pipeline tuning
func (c Config) PipelineConfig() reasoning.Config {
	cfg := reasoning.DefaultConfig()
	cfg.BatchSize = c.Generation.BatchSize
	cfg.MaxDelay = c.Generation.BatchDelay
	cfg.Timeout = c.Generation.Timeout
	return cfg
}

// Addr is the listen address of the HTTP server
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// SessionDefaults is the table a create request starts from. The opponents
// double as presets.
func (c Config) SessionDefaults() session.Config {
	return session.Config{
		HumanName:     c.Table.HumanName,
		Opponents:     append([]session.Opponent(nil), c.Opponents...),
		StartingStack: c.Table.StartingStack,
		SmallBlind:    c.Table.SmallBlind,
		BigBlind:      c.Table.BigBlind,
		HandLimit:     c.Table.HandLimit,
		TurnTimeout:   c.Table.TurnTimeout,
		NextHandDelay: c.Table.NextHandDelay,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue, fmt.Errorf("%s: %w", key, err)
	}
	return intValue, nil
}

func getEnvAsBool(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}

// getEnvAsDuration accepts Go durations ("90s") and plain seconds ("90", "0.5")
func getEnvAsDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	if secs, err := strconv.ParseFloat(value, 64); err == nil {
		return time.Duration(secs * float64(time.Second)), nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
