package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Duration lets YAML carry values like "5s" or "1m30s".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// Northbound holds the connection settings for the upstream telemetry
// service. Credentials may be empty; the session then stays down until
// set_northbound_credentials provides them.
type Northbound struct {
	Address      string   `yaml:"address" validate:"omitempty,url"`
	Username     string   `yaml:"username"`
	Password     string   `yaml:"password"`
	LoginTimeout Duration `yaml:"login_timeout"`
}

type Config struct {
	ListenAddr     string     `yaml:"listen_addr" validate:"required"`
	DatabaseURL    string     `yaml:"database_url"`
	RedisURL       string     `yaml:"redis_url"`
	GPXDir         string     `yaml:"gpx_dir" validate:"required"`
	MaxDistanceM   float64    `yaml:"max_distance_m" validate:"gt=0"`
	IngestRPS      float64    `yaml:"ingest_rps" validate:"gt=0"`
	IngestBurst    int        `yaml:"ingest_burst" validate:"gt=0"`
	AuthMode       string     `yaml:"auth_mode" validate:"oneof=dev hmac"`
	AuthHMACSecret string     `yaml:"auth_hmac_secret" validate:"required_if=AuthMode hmac"`
	Northbound     Northbound `yaml:"northbound"`
}

func defaults() Config {
	return Config{
		ListenAddr:   ":8080",
		GPXDir:       "gpx_files",
		MaxDistanceM: 100,
		IngestRPS:    50,
		IngestBurst:  100,
		AuthMode:     "dev",
		Northbound:   Northbound{LoginTimeout: Duration(10 * time.Second)},
	}
}

// Load reads the optional YAML file at path, then applies environment
// overrides on top, then validates. An empty path skips the file entirely.
func Load(path string) (Config, error) {
	cfg := defaults()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}
	cfg.applyEnv()
	if err := validator.New().Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.ListenAddr = envOr("COLORUM_ADDR", c.ListenAddr)
	c.DatabaseURL = envOr("DATABASE_URL", c.DatabaseURL)
	c.RedisURL = envOr("REDIS_URL", c.RedisURL)
	c.GPXDir = envOr("COLORUM_GPX_DIR", c.GPXDir)
	c.MaxDistanceM = envFloatOr("COLORUM_MAX_DISTANCE", c.MaxDistanceM)
	c.IngestRPS = envFloatOr("COLORUM_INGEST_RPS", c.IngestRPS)
	c.IngestBurst = envIntOr("COLORUM_INGEST_BURST", c.IngestBurst)
	c.AuthMode = envOr("AUTH_MODE", c.AuthMode)
	c.AuthHMACSecret = envOr("AUTH_HMAC_SECRET", c.AuthHMACSecret)
	c.Northbound.Address = envOr("NORTHBOUND_ADDR", c.Northbound.Address)
	c.Northbound.Username = envOr("NORTHBOUND_USERNAME", c.Northbound.Username)
	c.Northbound.Password = envOr("NORTHBOUND_PASSWORD", c.Northbound.Password)
	if v := os.Getenv("NORTHBOUND_LOGIN_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Northbound.LoginTimeout = Duration(d)
		}
	}
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func envFloatOr(k string, def float64) float64 {
	if v := os.Getenv(k); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func envIntOr(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
