package config

import (
	"fmt"
	"os"

	flag "github.com/spf13/pflag"
)

// Flags holds all command line flag values
type Flags struct {
	set *flag.FlagSet

	// General
	configFile *string
	version    *bool

	// Server
	serverPort         *int
	serverHost         *string
	serverReadTimeout  *string
	serverWriteTimeout *string
	serverTLSEnabled   *bool
	serverTLSCert      *string
	serverTLSKey       *string

	// Database
	dbType             *string
	dbSQLitePath       *string
	dbPostgresHost     *string
	dbPostgresPort     *int
	dbPostgresDatabase *string
	dbPostgresUser     *string
	dbPostgresPassword *string
	dbPostgresSSLMode  *string

	// JWT
	jwtSecret     *string
	jwtExpiration *string
	jwtIssuer     *string

	// Crypto
	cryptoDigestAlgorithm    *string
	cryptoSignatureAlgorithm *string

	// Logging
	logLevel  *string
	logFormat *string

	// Security
	securityCORSEnabled       *bool
	securityCORSOrigins       *[]string
	securityRateLimitEnabled  *bool
	securityRateLimitRequests *int
	securityRateLimitWindow   *string

	// Cache
	cacheKeyTTL        *string
	cacheMemcachedAddr *string
	cacheRedisAddr     *string

	// Tracing
	tracingEnabled  *bool
	tracingEndpoint *string

	directorySeedFile       *string
	issuanceFutureTolerance *string
}

// ParseFlags defines and parses all command line flags from os.Args
func ParseFlags() (*Flags, string, bool) {
	f := newFlags(os.Args[0], flag.ExitOnError)
	_ = f.set.Parse(os.Args[1:])
	return f, *f.configFile, *f.version
}

func newFlags(name string, handling flag.ErrorHandling) *Flags {
	fs := flag.NewFlagSet(name, handling)
	f := &Flags{set: fs}

	// General flags
	f.configFile = fs.StringP("config", "c", "config.yaml", "Path to configuration file")
	f.version = fs.BoolP("version", "v", false, "Print version and exit")

	// Server flags
	f.serverPort = fs.Int("server.port", 0, "HTTP server port")
	f.serverHost = fs.String("server.host", "", "HTTP server bind address")
	f.serverReadTimeout = fs.String("server.read-timeout", "", "Server read timeout (e.g., 30s)")
	f.serverWriteTimeout = fs.String("server.write-timeout", "", "Server write timeout (e.g., 30s)")
	f.serverTLSEnabled = fs.Bool("server.tls-enabled", false, "Enable HTTPS")
	f.serverTLSCert = fs.String("server.tls-cert", "", "Path to TLS certificate")
	f.serverTLSKey = fs.String("server.tls-key", "", "Path to TLS key")

	// Database flags
	f.dbType = fs.String("db.type", "", "Database type (sqlite or postgres)")
	f.dbSQLitePath = fs.String("db.sqlite.path", "", "SQLite database file path")
	f.dbPostgresHost = fs.String("db.postgres.host", "", "PostgreSQL host")
	f.dbPostgresPort = fs.Int("db.postgres.port", 0, "PostgreSQL port")
	f.dbPostgresDatabase = fs.String("db.postgres.database", "", "PostgreSQL database name")
	f.dbPostgresUser = fs.String("db.postgres.user", "", "PostgreSQL user")
	f.dbPostgresPassword = fs.String("db.postgres.password", "", "PostgreSQL password")
	f.dbPostgresSSLMode = fs.String("db.postgres.ssl-mode", "", "PostgreSQL SSL mode")

	// JWT flags
	f.jwtSecret = fs.String("jwt.secret", "", "JWT secret key")
	f.jwtExpiration = fs.String("jwt.expiration", "", "JWT expiration duration (e.g., 24h)")
	f.jwtIssuer = fs.String("jwt.issuer", "", "JWT issuer")

	// Crypto flags
	f.cryptoDigestAlgorithm = fs.String("crypto.digest-algorithm", "", "Digest algorithm for new proofs (SHA-256 or SHA3-256)")
	f.cryptoSignatureAlgorithm = fs.String("crypto.signature-algorithm", "", "Algorithm for new signing keys (Ed25519 or ECDSA-P256)")

	// Logging flags
	f.logLevel = fs.StringP("log.level", "l", "", "Log level (debug, info, warn, error)")
	f.logFormat = fs.String("log.format", "", "Log format (json or console)")

	// Security flags
	f.securityCORSEnabled = fs.Bool("security.cors-enabled", false, "Enable CORS")
	f.securityCORSOrigins = fs.StringSlice("security.cors-origins", nil, "CORS allowed origins (can be specified multiple times)")
	f.securityRateLimitEnabled = fs.Bool("security.rate-limit-enabled", false, "Enable rate limiting on public verification")
	f.securityRateLimitRequests = fs.Int("security.rate-limit-requests", 0, "Rate limit requests per window")
	f.securityRateLimitWindow = fs.String("security.rate-limit-window", "", "Rate limit window duration (e.g., 1m)")

	// Cache flags
	f.cacheKeyTTL = fs.String("cache.key-ttl", "", "Public key cache TTL (e.g., 10m)")
	f.cacheMemcachedAddr = fs.String("cache.memcached-addr", "", "Memcached address for the shared public key cache")
	f.cacheRedisAddr = fs.String("cache.redis-addr", "", "Redis address for shared rate limit counters")

	// Tracing flags
	f.tracingEnabled = fs.Bool("tracing.enabled", false, "Export traces over OTLP/HTTP")
	f.tracingEndpoint = fs.String("tracing.endpoint", "", "OTLP/HTTP collector endpoint (host:port)")

	f.directorySeedFile = fs.String("directory.seed-file", "", "YAML file with universities and students to load at start")
	f.issuanceFutureTolerance = fs.String("issuance.future-tolerance", "", "How far in the future dateOfIssue may be (e.g., 24h)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [OPTIONS]\n\n", name)
		fmt.Fprintf(os.Stderr, "certproof - academic certificate issuance and proof verification\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nConfiguration priority (highest to lowest):\n")
		fmt.Fprintf(os.Stderr, "  1. Command line flags\n")
		fmt.Fprintf(os.Stderr, "  2. Environment variables (CERTPROOF_*)\n")
		fmt.Fprintf(os.Stderr, "  3. Configuration file (default: config.yaml)\n\n")
		fmt.Fprintf(os.Stderr, "Examples:\n")
		fmt.Fprintf(os.Stderr, "  # Start with a directory seed\n")
		fmt.Fprintf(os.Stderr, "  %s --config /etc/certproof/config.yaml --directory.seed-file seed.yaml\n\n", name)
		fmt.Fprintf(os.Stderr, "  # Use PostgreSQL and a shared key cache\n")
		fmt.Fprintf(os.Stderr, "  %s --db.type postgres --db.postgres.host db.example.com --cache.memcached-addr cache:11211\n\n", name)
	}

	return f
}

func (f *Flags) changed(name string) bool {
	fl := f.set.Lookup(name)
	return fl != nil && fl.Changed
}

// GetServerPort returns the server port flag value and whether it was set
func (f *Flags) GetServerPort() (int, bool) {
	return *f.serverPort, f.changed("server.port")
}

// GetServerHost returns the server host flag value and whether it was set
func (f *Flags) GetServerHost() (string, bool) {
	return *f.serverHost, f.changed("server.host")
}

// GetServerReadTimeout returns the server read timeout flag value and whether it was set
func (f *Flags) GetServerReadTimeout() (string, bool) {
	return *f.serverReadTimeout, f.changed("server.read-timeout")
}

// GetServerWriteTimeout returns the server write timeout flag value and whether it was set
func (f *Flags) GetServerWriteTimeout() (string, bool) {
	return *f.serverWriteTimeout, f.changed("server.write-timeout")
}

// GetServerTLSEnabled returns the server TLS enabled flag value and whether it was set
func (f *Flags) GetServerTLSEnabled() (bool, bool) {
	return *f.serverTLSEnabled, f.changed("server.tls-enabled")
}

// GetServerTLSCert returns the server TLS cert flag value and whether it was set
func (f *Flags) GetServerTLSCert() (string, bool) {
	return *f.serverTLSCert, f.changed("server.tls-cert")
}

// GetServerTLSKey returns the server TLS key flag value and whether it was set
func (f *Flags) GetServerTLSKey() (string, bool) {
	return *f.serverTLSKey, f.changed("server.tls-key")
}

// GetDBType returns the database type flag value and whether it was set
func (f *Flags) GetDBType() (string, bool) {
	return *f.dbType, f.changed("db.type")
}

// GetDBSQLitePath returns the SQLite path flag value and whether it was set
func (f *Flags) GetDBSQLitePath() (string, bool) {
	return *f.dbSQLitePath, f.changed("db.sqlite.path")
}

// GetDBPostgresHost returns the PostgreSQL host flag value and whether it was set
func (f *Flags) GetDBPostgresHost() (string, bool) {
	return *f.dbPostgresHost, f.changed("db.postgres.host")
}

// GetDBPostgresPort returns the PostgreSQL port flag value and whether it was set
func (f *Flags) GetDBPostgresPort() (int, bool) {
	return *f.dbPostgresPort, f.changed("db.postgres.port")
}

// GetDBPostgresDatabase returns the PostgreSQL database flag value and whether it was set
func (f *Flags) GetDBPostgresDatabase() (string, bool) {
	return *f.dbPostgresDatabase, f.changed("db.postgres.database")
}

// GetDBPostgresUser returns the PostgreSQL user flag value and whether it was set
func (f *Flags) GetDBPostgresUser() (string, bool) {
	return *f.dbPostgresUser, f.changed("db.postgres.user")
}

// GetDBPostgresPassword returns the PostgreSQL password flag value and whether it was set
func (f *Flags) GetDBPostgresPassword() (string, bool) {
	return *f.dbPostgresPassword, f.changed("db.postgres.password")
}

// GetDBPostgresSSLMode returns the PostgreSQL SSL mode flag value and whether it was set
func (f *Flags) GetDBPostgresSSLMode() (string, bool) {
	return *f.dbPostgresSSLMode, f.changed("db.postgres.ssl-mode")
}

// GetJWTSecret returns the JWT secret flag value and whether it was set
func (f *Flags) GetJWTSecret() (string, bool) {
	return *f.jwtSecret, f.changed("jwt.secret")
}

// GetJWTExpiration returns the JWT expiration flag value and whether it was set
func (f *Flags) GetJWTExpiration() (string, bool) {
	return *f.jwtExpiration, f.changed("jwt.expiration")
}

// GetJWTIssuer returns the JWT issuer flag value and whether it was set
func (f *Flags) GetJWTIssuer() (string, bool) {
	return *f.jwtIssuer, f.changed("jwt.issuer")
}

// GetCryptoDigestAlgorithm returns the digest algorithm flag value and whether it was set
func (f *Flags) GetCryptoDigestAlgorithm() (string, bool) {
	return *f.cryptoDigestAlgorithm, f.changed("crypto.digest-algorithm")
}

// GetCryptoSignatureAlgorithm returns the signature algorithm flag value and whether it was set
func (f *Flags) GetCryptoSignatureAlgorithm() (string, bool) {
	return *f.cryptoSignatureAlgorithm, f.changed("crypto.signature-algorithm")
}

// GetLogLevel returns the log level flag value and whether it was set
func (f *Flags) GetLogLevel() (string, bool) {
	return *f.logLevel, f.changed("log.level")
}

// GetLogFormat returns the log format flag value and whether it was set
func (f *Flags) GetLogFormat() (string, bool) {
	return *f.logFormat, f.changed("log.format")
}

// GetSecurityCORSEnabled returns the CORS enabled flag value and whether it was set
func (f *Flags) GetSecurityCORSEnabled() (bool, bool) {
	return *f.securityCORSEnabled, f.changed("security.cors-enabled")
}

// GetSecurityCORSOrigins returns the CORS origins flag value and whether it was set
func (f *Flags) GetSecurityCORSOrigins() ([]string, bool) {
	return *f.securityCORSOrigins, f.changed("security.cors-origins")
}

// GetSecurityRateLimitEnabled returns the rate limit enabled flag value and whether it was set
func (f *Flags) GetSecurityRateLimitEnabled() (bool, bool) {
	return *f.securityRateLimitEnabled, f.changed("security.rate-limit-enabled")
}

// GetSecurityRateLimitRequests returns the rate limit requests flag value and whether it was set
func (f *Flags) GetSecurityRateLimitRequests() (int, bool) {
	return *f.securityRateLimitRequests, f.changed("security.rate-limit-requests")
}

// GetSecurityRateLimitWindow returns the rate limit window flag value and whether it was set
func (f *Flags) GetSecurityRateLimitWindow() (string, bool) {
	return *f.securityRateLimitWindow, f.changed("security.rate-limit-window")
}

// GetCacheKeyTTL returns the key cache TTL flag value and whether it was set
func (f *Flags) GetCacheKeyTTL() (string, bool) {
	return *f.cacheKeyTTL, f.changed("cache.key-ttl")
}

// GetCacheMemcachedAddr returns the memcached address flag value and whether it was set
func (f *Flags) GetCacheMemcachedAddr() (string, bool) {
	return *f.cacheMemcachedAddr, f.changed("cache.memcached-addr")
}

// GetCacheRedisAddr returns the redis address flag value and whether it was set
func (f *Flags) GetCacheRedisAddr() (string, bool) {
	return *f.cacheRedisAddr, f.changed("cache.redis-addr")
}

// GetTracingEnabled returns the tracing enabled flag value and whether it was set
func (f *Flags) GetTracingEnabled() (bool, bool) {
	return *f.tracingEnabled, f.changed("tracing.enabled")
}

// GetTracingEndpoint returns the tracing endpoint flag value and whether it was set
func (f *Flags) GetTracingEndpoint() (string, bool) {
	return *f.tracingEndpoint, f.changed("tracing.endpoint")
}

// GetDirectorySeedFile returns the directory seed file flag value and whether it was set
func (f *Flags) GetDirectorySeedFile() (string, bool) {
	return *f.directorySeedFile, f.changed("directory.seed-file")
}

// GetIssuanceFutureTolerance returns the future tolerance flag value and whether it was set
func (f *Flags) GetIssuanceFutureTolerance() (string, bool) {
	return *f.issuanceFutureTolerance, f.changed("issuance.future-tolerance")
}
