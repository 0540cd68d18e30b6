package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	BackendMongo  = "mongo"
	BackendTables = "tables"
)

// Config holds runtime settings. Values come from an optional YAML file
// named by CONFIG_FILE and are overridden by environment variables.
type Config struct {
	ListenAddr string `yaml:"listen_addr"`
	Debug      bool   `yaml:"debug"`

	Backend       string `yaml:"store_backend"`
	MongoURI      string `yaml:"mongo_uri"`
	MongoDatabase string `yaml:"mongo_database"`

	StorageConnectionString string `yaml:"storage_connection_string"`
	TasksTable              string `yaml:"tasks_table"`
	UsersTable              string `yaml:"users_table"`

	RedisConnectionString string        `yaml:"redis_connection_string"`
	TasksCacheTTL         time.Duration `yaml:"tasks_cache_ttl"`

	JWTSecret   string        `yaml:"jwt_secret"`
	JWTExpiry   time.Duration `yaml:"jwt_expires_in"`
	JWKSURL     string        `yaml:"jwks_url"`
	JWTAudience string        `yaml:"jwt_audience"`
	JWTIssuer   string        `yaml:"jwt_issuer"`

	CORSOrigins     []string      `yaml:"cors_origins"`
	BodyLimit       string        `yaml:"body_limit"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	BcryptCost      int           `yaml:"bcrypt_cost"`
}

func defaults() Config {
	return Config{
		ListenAddr:      ":5000",
		Backend:         BackendMongo,
		MongoURI:        "mongodb://localhost:27017",
		MongoDatabase:   "primetrade",
		TasksTable:      "tasks",
		UsersTable:      "users",
		TasksCacheTTL:   5 * time.Minute,
		JWTExpiry:       30 * 24 * time.Hour,
		CORSOrigins:     []string{"*"},
		BodyLimit:       "1M",
		ShutdownTimeout: 30 * time.Second,
		BcryptCost:      12,
	}
}

// Load builds the configuration from CONFIG_FILE (if set) and the environment.
func Load() (Config, error) {
	return load(os.Getenv("CONFIG_FILE"), os.LookupEnv)
}

func load(path string, lookup func(string) (string, bool)) (Config, error) {
	cfg := defaults()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file: %w", err)
		}
	}
	if err := applyEnv(&cfg, lookup); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	dur := func(key string, dst *time.Duration) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			return fmt.Errorf("invalid %s: %q", key, v)
		}
		*dst = d
		return nil
	}

	if v, ok := lookup("PORT"); ok && v != "" {
		cfg.ListenAddr = ":" + v
	}
	if v, ok := lookup("DEBUG"); ok && v != "" {
		dbg, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid DEBUG: %q", v)
		}
		cfg.Debug = dbg
	}
	str("STORE_BACKEND", &cfg.Backend)
	str("MONGO_URI", &cfg.MongoURI)
	str("MONGO_DATABASE", &cfg.MongoDatabase)
	str("STORAGE_CONNECTION_STRING", &cfg.StorageConnectionString)
	str("TASKS_TABLE", &cfg.TasksTable)
	str("USERS_TABLE", &cfg.UsersTable)
	str("REDIS_CONNECTION_STRING", &cfg.RedisConnectionString)
	str("JWT_SECRET", &cfg.JWTSecret)
	str("JWKS_URL", &cfg.JWKSURL)
	str("JWT_AUDIENCE", &cfg.JWTAudience)
	str("JWT_ISSUER", &cfg.JWTIssuer)
	str("BODY_LIMIT", &cfg.BodyLimit)
	if v, ok := lookup("CORS_ORIGINS"); ok && v != "" {
		cfg.CORSOrigins = splitList(v)
	}
	if v, ok := lookup("BCRYPT_COST"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid BCRYPT_COST: %q", v)
		}
		cfg.BcryptCost = n
	}

	for key, dst := range map[string]*time.Duration{
		"TASKS_CACHE_TTL":  &cfg.TasksCacheTTL,
		"JWT_EXPIRES_IN":   &cfg.JWTExpiry,
		"SHUTDOWN_TIMEOUT": &cfg.ShutdownTimeout,
	} {
		if err := dur(key, dst); err != nil {
			return err
		}
	}
	return nil
}

// Validate reports missing or contradictory settings.
func (c Config) Validate() error {
	switch c.Backend {
	case BackendMongo:
		if c.MongoURI == "" || c.MongoDatabase == "" {
			return errors.New("missing mongo config")
		}
	case BackendTables:
		if c.StorageConnectionString == "" || c.TasksTable == "" || c.UsersTable == "" {
			return errors.New("missing storage config")
		}
	default:
		return fmt.Errorf("unsupported STORE_BACKEND %q", c.Backend)
	}
	// Signup and login always mint local tokens, even when JWKS_URL adds
	// externally issued ones.
	if c.JWTSecret == "" {
		return errors.New("missing JWT_SECRET")
	}
	if c.JWTExpiry <= 0 {
		return errors.New("JWT_EXPIRES_IN must be greater than zero")
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
