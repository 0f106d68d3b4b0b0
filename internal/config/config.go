// Package config provides configuration management for the certproof service.
// Values come from a YAML file, then CERTPROOF_* environment variables, then
// command line flags, with later sources taking precedence.
package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	JWT       JWTConfig       `yaml:"jwt"`
	Crypto    CryptoConfig    `yaml:"crypto"`
	Logging   LoggingConfig   `yaml:"logging"`
	Security  SecurityConfig  `yaml:"security"`
	Cache     CacheConfig     `yaml:"cache"`
	Tracing   TracingConfig   `yaml:"tracing"`
	Directory DirectoryConfig `yaml:"directory"`
	Issuance  IssuanceConfig  `yaml:"issuance"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port         int           `yaml:"port"`
	Host         string        `yaml:"host"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	TLSEnabled   bool          `yaml:"tls_enabled"`
	TLSCert      string        `yaml:"tls_cert"`
	TLSKey       string        `yaml:"tls_key"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Type     string         `yaml:"type"`
	SQLite   SQLiteConfig   `yaml:"sqlite"`
	Postgres PostgresConfig `yaml:"postgres"`
}

// SQLiteConfig holds SQLite-specific configuration
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// PostgresConfig holds PostgreSQL-specific configuration
type PostgresConfig struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	Database     string `yaml:"database"`
	User         string `yaml:"user"`
	Password     string `yaml:"password"`
	SSLMode      string `yaml:"ssl_mode"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

// JWTConfig holds university session token configuration. An empty secret is
// generated once and persisted in the database
type JWTConfig struct {
	Secret     string        `yaml:"secret"`
	Expiration time.Duration `yaml:"expiration"`
	Issuer     string        `yaml:"issuer"`
}

// CryptoConfig holds proof and key material settings
type CryptoConfig struct {
	// MasterKey is a hex encoded 32 byte key sealing private signing keys.
	// When empty, one is generated on first start and kept in system_config.
	MasterKey          string `yaml:"master_key"`
	DigestAlgorithm    string `yaml:"digest_algorithm"`
	SignatureAlgorithm string `yaml:"signature_algorithm"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// SecurityConfig holds security-related configuration
type SecurityConfig struct {
	CORSEnabled       bool          `yaml:"cors_enabled"`
	CORSOrigins       []string      `yaml:"cors_origins"`
	RateLimitEnabled  bool          `yaml:"rate_limit_enabled"`
	RateLimitRequests int           `yaml:"rate_limit_requests"`
	RateLimitWindow   time.Duration `yaml:"rate_limit_window"`
}

// CacheConfig holds public key cache and shared rate limit store settings
type CacheConfig struct {
	KeyTTL        time.Duration `yaml:"key_ttl"`
	MemcachedAddr string        `yaml:"memcached_addr"`
	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db"`
}

// TracingConfig holds OpenTelemetry export settings
type TracingConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Endpoint    string `yaml:"endpoint"`
	ServiceName string `yaml:"service_name"`
	Insecure    bool   `yaml:"insecure"`
}

// DirectoryConfig points at the university and student directory seed
type DirectoryConfig struct {
	SeedFile string `yaml:"seed_file"`
}

// IssuanceConfig holds issuance policy
type IssuanceConfig struct {
	// FutureTolerance bounds how far past today a dateOfIssue may lie.
	FutureTolerance time.Duration `yaml:"future_tolerance"`
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         8000,
			Host:         "0.0.0.0",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Type: "sqlite",
			SQLite: SQLiteConfig{
				Path: "./data/certproof.db",
			},
			Postgres: PostgresConfig{
				Port:         5432,
				SSLMode:      "disable",
				MaxOpenConns: 25,
				MaxIdleConns: 5,
			},
		},
		JWT: JWTConfig{
			Expiration: 24 * time.Hour,
			Issuer:     "certproof",
		},
		Crypto: CryptoConfig{
			DigestAlgorithm:    "SHA-256",
			SignatureAlgorithm: "Ed25519",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Security: SecurityConfig{
			CORSEnabled:       true,
			CORSOrigins:       []string{"*"},
			RateLimitEnabled:  true,
			RateLimitRequests: 120,
			RateLimitWindow:   time.Minute,
		},
		Cache: CacheConfig{
			KeyTTL: 10 * time.Minute,
		},
		Tracing: TracingConfig{
			Endpoint:    "localhost:4318",
			ServiceName: "certproof",
		},
		Issuance: IssuanceConfig{
			FutureTolerance: 24 * time.Hour,
		},
	}
}

// Load reads the configuration file, applies environment and flag overrides
// and validates the result. A missing file is not an error; defaults apply
func Load(path string, flags *Flags) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg.applyEnvOverrides()

	if flags != nil {
		if err := cfg.applyFlags(flags); err != nil {
			return nil, fmt.Errorf("invalid flag value: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the configuration
func (c *Config) applyEnvOverrides() {
	// Server overrides
	if port := os.Getenv("CERTPROOF_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.Port = p
		}
	}
	if host := os.Getenv("CERTPROOF_SERVER_HOST"); host != "" {
		c.Server.Host = host
	}

	// Database overrides
	if dbType := os.Getenv("CERTPROOF_DB_TYPE"); dbType != "" {
		c.Database.Type = dbType
	}
	if dbPath := os.Getenv("CERTPROOF_DB_SQLITE_PATH"); dbPath != "" {
		c.Database.SQLite.Path = dbPath
	}
	if pgHost := os.Getenv("CERTPROOF_DB_POSTGRES_HOST"); pgHost != "" {
		c.Database.Postgres.Host = pgHost
	}
	if pgPort := os.Getenv("CERTPROOF_DB_POSTGRES_PORT"); pgPort != "" {
		if p, err := strconv.Atoi(pgPort); err == nil {
			c.Database.Postgres.Port = p
		}
	}
	if pgDB := os.Getenv("CERTPROOF_DB_POSTGRES_DATABASE"); pgDB != "" {
		c.Database.Postgres.Database = pgDB
	}
	if pgUser := os.Getenv("CERTPROOF_DB_POSTGRES_USER"); pgUser != "" {
		c.Database.Postgres.User = pgUser
	}
	if pgPass := os.Getenv("CERTPROOF_DB_POSTGRES_PASSWORD"); pgPass != "" {
		c.Database.Postgres.Password = pgPass
	}

	// Secrets
	if jwtSecret := os.Getenv("CERTPROOF_JWT_SECRET"); jwtSecret != "" {
		c.JWT.Secret = jwtSecret
	}
	if masterKey := os.Getenv("CERTPROOF_CRYPTO_MASTER_KEY"); masterKey != "" {
		c.Crypto.MasterKey = masterKey
	}

	// Cache and shared stores
	if addr := os.Getenv("CERTPROOF_CACHE_MEMCACHED_ADDR"); addr != "" {
		c.Cache.MemcachedAddr = addr
	}
	if addr := os.Getenv("CERTPROOF_CACHE_REDIS_ADDR"); addr != "" {
		c.Cache.RedisAddr = addr
	}
	if pass := os.Getenv("CERTPROOF_CACHE_REDIS_PASSWORD"); pass != "" {
		c.Cache.RedisPassword = pass
	}

	// Tracing
	if endpoint := os.Getenv("CERTPROOF_TRACING_ENDPOINT"); endpoint != "" {
		c.Tracing.Endpoint = endpoint
		c.Tracing.Enabled = true
	}

	if seed := os.Getenv("CERTPROOF_DIRECTORY_SEED_FILE"); seed != "" {
		c.Directory.SeedFile = seed
	}

	// Logging overrides
	if logLevel := os.Getenv("CERTPROOF_LOG_LEVEL"); logLevel != "" {
		c.Logging.Level = logLevel
	}
}

// applyFlags copies every flag the user actually set onto the configuration
func (c *Config) applyFlags(f *Flags) error {
	if v, ok := f.GetServerPort(); ok {
		c.Server.Port = v
	}
	if v, ok := f.GetServerHost(); ok {
		c.Server.Host = v
	}
	if v, ok := f.GetServerTLSEnabled(); ok {
		c.Server.TLSEnabled = v
	}
	if v, ok := f.GetServerTLSCert(); ok {
		c.Server.TLSCert = v
	}
	if v, ok := f.GetServerTLSKey(); ok {
		c.Server.TLSKey = v
	}
	if v, ok := f.GetDBType(); ok {
		c.Database.Type = v
	}
	if v, ok := f.GetDBSQLitePath(); ok {
		c.Database.SQLite.Path = v
	}
	if v, ok := f.GetDBPostgresHost(); ok {
		c.Database.Postgres.Host = v
	}
	if v, ok := f.GetDBPostgresPort(); ok {
		c.Database.Postgres.Port = v
	}
	if v, ok := f.GetDBPostgresDatabase(); ok {
		c.Database.Postgres.Database = v
	}
	if v, ok := f.GetDBPostgresUser(); ok {
		c.Database.Postgres.User = v
	}
	if v, ok := f.GetDBPostgresPassword(); ok {
		c.Database.Postgres.Password = v
	}
	if v, ok := f.GetDBPostgresSSLMode(); ok {
		c.Database.Postgres.SSLMode = v
	}
	if v, ok := f.GetJWTSecret(); ok {
		c.JWT.Secret = v
	}
	if v, ok := f.GetJWTIssuer(); ok {
		c.JWT.Issuer = v
	}
	if v, ok := f.GetCryptoDigestAlgorithm(); ok {
		c.Crypto.DigestAlgorithm = v
	}
	if v, ok := f.GetCryptoSignatureAlgorithm(); ok {
		c.Crypto.SignatureAlgorithm = v
	}
	if v, ok := f.GetLogLevel(); ok {
		c.Logging.Level = v
	}
	if v, ok := f.GetLogFormat(); ok {
		c.Logging.Format = v
	}
	if v, ok := f.GetSecurityCORSEnabled(); ok {
		c.Security.CORSEnabled = v
	}
	if v, ok := f.GetSecurityCORSOrigins(); ok {
		c.Security.CORSOrigins = v
	}
	if v, ok := f.GetSecurityRateLimitEnabled(); ok {
		c.Security.RateLimitEnabled = v
	}
	if v, ok := f.GetSecurityRateLimitRequests(); ok {
		c.Security.RateLimitRequests = v
	}
	if v, ok := f.GetCacheMemcachedAddr(); ok {
		c.Cache.MemcachedAddr = v
	}
	if v, ok := f.GetCacheRedisAddr(); ok {
		c.Cache.RedisAddr = v
	}
	if v, ok := f.GetTracingEnabled(); ok {
		c.Tracing.Enabled = v
	}
	if v, ok := f.GetTracingEndpoint(); ok {
		c.Tracing.Endpoint = v
	}
	if v, ok := f.GetDirectorySeedFile(); ok {
		c.Directory.SeedFile = v
	}

	durations := []struct {
		name   string
		get    func() (string, bool)
		target *time.Duration
	}{
		{"server.read-timeout", f.GetServerReadTimeout, &c.Server.ReadTimeout},
		{"server.write-timeout", f.GetServerWriteTimeout, &c.Server.WriteTimeout},
		{"jwt.expiration", f.GetJWTExpiration, &c.JWT.Expiration},
		{"security.rate-limit-window", f.GetSecurityRateLimitWindow, &c.Security.RateLimitWindow},
		{"cache.key-ttl", f.GetCacheKeyTTL, &c.Cache.KeyTTL},
		{"issuance.future-tolerance", f.GetIssuanceFutureTolerance, &c.Issuance.FutureTolerance},
	}
	for _, d := range durations {
		v, ok := d.get()
		if !ok {
			continue
		}
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", d.name, err)
		}
		*d.target = parsed
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Validate server config
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.TLSEnabled {
		if c.Server.TLSCert == "" || c.Server.TLSKey == "" {
			return fmt.Errorf("TLS enabled but cert or key not specified")
		}
	}

	// Validate database config
	if c.Database.Type != "sqlite" && c.Database.Type != "postgres" {
		return fmt.Errorf("invalid database type: %s (must be 'sqlite' or 'postgres')", c.Database.Type)
	}
	if c.Database.Type == "sqlite" && c.Database.SQLite.Path == "" {
		return fmt.Errorf("SQLite path not specified")
	}
	if c.Database.Type == "postgres" {
		if c.Database.Postgres.Host == "" || c.Database.Postgres.Database == "" {
			return fmt.Errorf("PostgreSQL host and database must be specified")
		}
	}

	// Validate crypto config
	if c.Crypto.DigestAlgorithm != "SHA-256" && c.Crypto.DigestAlgorithm != "SHA3-256" {
		return fmt.Errorf("invalid digest algorithm: %s (must be SHA-256 or SHA3-256)", c.Crypto.DigestAlgorithm)
	}
	if c.Crypto.SignatureAlgorithm != "Ed25519" && c.Crypto.SignatureAlgorithm != "ECDSA-P256" {
		return fmt.Errorf("invalid signature algorithm: %s (must be Ed25519 or ECDSA-P256)", c.Crypto.SignatureAlgorithm)
	}
	if c.Crypto.MasterKey != "" {
		key, err := hex.DecodeString(strings.TrimSpace(c.Crypto.MasterKey))
		if err != nil || len(key) != 32 {
			return fmt.Errorf("master key must be 64 hex characters")
		}
	}

	// Validate logging config
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	if c.Security.RateLimitEnabled {
		if c.Security.RateLimitRequests < 1 || c.Security.RateLimitWindow <= 0 {
			return fmt.Errorf("rate limit requires a positive request count and window")
		}
	}

	if c.Tracing.Enabled && c.Tracing.Endpoint == "" {
		return fmt.Errorf("tracing enabled but endpoint not specified")
	}

	if c.Issuance.FutureTolerance < 0 {
		return fmt.Errorf("issuance future tolerance must not be negative")
	}

	return nil
}

// GetDSN returns the database connection string based on the configured type
func (c *Config) GetDSN() string {
	switch c.Database.Type {
	case "sqlite":
		return c.Database.SQLite.Path
	case "postgres":
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			c.Database.Postgres.Host,
			c.Database.Postgres.Port,
			c.Database.Postgres.User,
			c.Database.Postgres.Password,
			c.Database.Postgres.Database,
			c.Database.Postgres.SSLMode,
		)
	default:
		return ""
	}
}
