// Package config loads server settings from .env, an optional YAML file and the environment,
// in that order of increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/DoyleJ11/color-war-backend/internal/actor"
	"github.com/DoyleJ11/color-war-backend/internal/canvas"
	"github.com/DoyleJ11/color-war-backend/internal/state"
)

const (
	BackendRedis  = "redis"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// Canvas holds the settings that may also come from the YAML file.
type Canvas struct {
	GridSize int           `yaml:"grid_size"`
	Cooldown time.Duration `yaml:"cooldown"`
	Palette  []string      `yaml:"palette"`
}

type Config struct {
	Addr     string
	Env      string
	LogLevel string

	Canvas Canvas

	Backend       string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	KeyPrefix     string
	SQLitePath    string

	DatabaseURL string
	JournalDir  string

	SnapshotTimeout time.Duration
	MsgRate         float64
	MsgBurst        int
	ActorPolicy     actor.Policy
	AllowedOrigins  []string
}

func Defaults() Config {
	return Config{
		Addr:     ":3001",
		Env:      "development",
		LogLevel: "info",
		Canvas: Canvas{
			GridSize: 128,
			Cooldown: 10 * time.Second,
			Palette:  append([]string(nil), canvas.DefaultPalette...),
		},
		Backend:         BackendRedis,
		RedisAddr:       "127.0.0.1:6379",
		KeyPrefix:       state.DefaultKeyPrefix,
		SQLitePath:      "data/canvas.db",
		SnapshotTimeout: 5 * time.Second,
		MsgRate:         10,
		MsgBurst:        20,
		ActorPolicy:     actor.PolicyShared,
	}
}

// Load reads .env (if present), then CONFIG_FILE (if set), then the environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("config: .env: %w", err)
	}
	return FromEnv(os.LookupEnv)
}

// FromEnv builds a Config from a lookup function; Load passes os.LookupEnv.
func FromEnv(lookup func(string) (string, bool)) (Config, error) {
	cfg := Defaults()
	get := func(k string) string {
		v, _ := lookup(k)
		return strings.TrimSpace(v)
	}

	if path := get("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return Config{}, err
		}
	}

	var errs []error
	str := func(k string, dst *string) {
		if v := get(k); v != "" {
			*dst = v
		}
	}
	num := func(k string, dst *int) {
		if v := get(k); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", k, err))
				return
			}
			*dst = n
		}
	}
	dur := func(k string, dst *time.Duration) {
		if v := get(k); v != "" {
			d, err := parseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", k, err))
				return
			}
			*dst = d
		}
	}

	str("ADDR", &cfg.Addr)
	str("APP_ENV", &cfg.Env)
	str("LOG_LEVEL", &cfg.LogLevel)
	num("GRID_SIZE", &cfg.Canvas.GridSize)
	dur("COOLDOWN", &cfg.Canvas.Cooldown)
	if v := get("PALETTE"); v != "" {
		cfg.Canvas.Palette = splitList(v)
	}
	str("STORE_BACKEND", &cfg.Backend)
	str("REDIS_ADDR", &cfg.RedisAddr)
	str("REDIS_PASSWORD", &cfg.RedisPassword)
	num("REDIS_DB", &cfg.RedisDB)
	str("KEY_PREFIX", &cfg.KeyPrefix)
	str("SQLITE_PATH", &cfg.SQLitePath)
	str("DATABASE_URL", &cfg.DatabaseURL)
	str("JOURNAL_DIR", &cfg.JournalDir)
	dur("SNAPSHOT_TIMEOUT", &cfg.SnapshotTimeout)
	if v := get("MSG_RATE"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("MSG_RATE: %w", err))
		} else {
			cfg.MsgRate = f
		}
	}
	num("MSG_BURST", &cfg.MsgBurst)
	if v, ok := lookup("UNKNOWN_ACTOR_POLICY"); ok {
		p, valid := actor.ParsePolicy(strings.TrimSpace(v))
		if !valid {
			errs = append(errs, fmt.Errorf("UNKNOWN_ACTOR_POLICY: unknown policy %q", v))
		}
		cfg.ActorPolicy = p
	}
	if v := get("ALLOWED_ORIGINS"); v != "" {
		cfg.AllowedOrigins = splitList(v)
	}

	if err := errors.Join(errs...); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	var file struct {
		Canvas Canvas `yaml:"canvas"`
	}
	file.Canvas = c.Canvas
	if err := yaml.Unmarshal(b, &file); err != nil {
		return fmt.Errorf("config: %s: %w", path, err)
	}
	c.Canvas = file.Canvas
	return nil
}

func (c Config) Validate() error {
	var errs []error
	if c.Canvas.GridSize <= 0 {
		errs = append(errs, fmt.Errorf("grid size must be positive, got %d", c.Canvas.GridSize))
	}
	if c.Canvas.Cooldown < time.Second {
		errs = append(errs, fmt.Errorf("cooldown must be at least 1s, got %s", c.Canvas.Cooldown))
	}
	if _, err := canvas.NewPalette(c.Canvas.Palette); err != nil {
		errs = append(errs, err)
	}
	switch c.Backend {
	case BackendRedis, BackendSQLite, BackendMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown store backend %q", c.Backend))
	}
	if c.SnapshotTimeout <= 0 {
		errs = append(errs, fmt.Errorf("snapshot timeout must be positive"))
	}
	if c.MsgRate <= 0 || c.MsgBurst <= 0 {
		errs = append(errs, fmt.Errorf("message rate and burst must be positive"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

func (c Config) Production() bool { return c.Env == "production" }

// parseDuration accepts Go durations ("10s") and bare seconds ("10").
func parseDuration(v string) (time.Duration, error) {
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	return time.ParseDuration(v)
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
