// Package config reads the server configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DriverMongo  = "mongo"
	DriverMemory = "memory"
)

type Config struct {
	StorageDriver string
	MongoURI      string
	MongoDatabase string

	JWTSecret    string
	JWTKeys      map[string]string
	JWTActiveKid string
	TokenTTL     time.Duration

	GRPCPort   string
	HTTPPort   string
	TLSCert    string
	TLSKey     string
	RequireTLS bool

	RateLimitRPM     int
	SendTimeout      time.Duration
	StoreTimeout     time.Duration
	MaxContentLength int
	OutboxSize       int
	ServiceKeyHash   string

	LogLevel  string
	LogFormat string
}

// Load reads envFile into the process environment (".env" when empty, in
// which case a missing file is fine) and then parses the environment.
// Variables already set in the environment win over the file.
func Load(envFile string) (*Config, error) {
	if envFile == "" {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("reading .env: %w", err)
		}
	} else if err := godotenv.Load(envFile); err != nil {
		return nil, fmt.Errorf("reading %s: %w", envFile, err)
	}
	return Parse(os.LookupEnv)
}

// Parse builds a Config from lookup, applying defaults and validating.
func Parse(lookup func(string) (string, bool)) (*Config, error) {
	get := func(key, def string) string {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
		return def
	}

	c := &Config{
		StorageDriver:  strings.ToLower(get("STORAGE_DRIVER", DriverMongo)),
		MongoURI:       get("MONGODB_URI", ""),
		MongoDatabase:  get("MONGODB_DATABASE", "chat_db"),
		JWTSecret:      get("JWT_SECRET", ""),
		JWTActiveKid:   get("JWT_ACTIVE_KID", ""),
		GRPCPort:       get("PORT", "50051"),
		HTTPPort:       get("HTTP_PORT", "8080"),
		TLSCert:        get("TLS_CERT", ""),
		TLSKey:         get("TLS_KEY", ""),
		ServiceKeyHash: get("SERVICE_KEY_HASH", ""),
		LogLevel:       get("LOG_LEVEL", "info"),
		LogFormat:      get("LOG_FORMAT", "text"),
	}

	var err error
	if c.RequireTLS, err = parseBool("REQUIRE_TLS", get("REQUIRE_TLS", "false")); err != nil {
		return nil, err
	}
	durations := []struct {
		key, def string
		dst      *time.Duration
	}{
		{"TOKEN_TTL", "24h", &c.TokenTTL},
		{"SEND_TIMEOUT", "10s", &c.SendTimeout},
		{"STORE_TIMEOUT", "30s", &c.StoreTimeout},
	}
	for _, d := range durations {
		if *d.dst, err = parseDuration(d.key, get(d.key, d.def)); err != nil {
			return nil, err
		}
	}
	ints := []struct {
		key, def string
		dst      *int
	}{
		{"RATE_LIMIT_RPM", "30", &c.RateLimitRPM},
		{"MAX_CONTENT_LENGTH", "4096", &c.MaxContentLength},
		{"OUTBOX_SIZE", "64", &c.OutboxSize},
	}
	for _, i := range ints {
		if *i.dst, err = parsePositive(i.key, get(i.key, i.def)); err != nil {
			return nil, err
		}
	}
	if raw := get("JWT_KEYS", ""); raw != "" {
		if c.JWTKeys, err = parseKeys(raw); err != nil {
			return nil, err
		}
	}

	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) validate() error {
	switch c.StorageDriver {
	case DriverMongo:
		if c.MongoURI == "" {
			return errors.New("MONGODB_URI must be set when STORAGE_DRIVER is mongo")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("STORAGE_DRIVER must be %q or %q, got %q", DriverMongo, DriverMemory, c.StorageDriver)
	}
	if c.JWTSecret == "" && len(c.JWTKeys) == 0 {
		return errors.New("either JWT_SECRET or JWT_KEYS must be set")
	}
	if c.JWTActiveKid != "" && len(c.JWTKeys) > 0 {
		if _, ok := c.JWTKeys[c.JWTActiveKid]; !ok {
			return fmt.Errorf("JWT_ACTIVE_KID %q is not in JWT_KEYS", c.JWTActiveKid)
		}
	}
	if (c.TLSCert == "") != (c.TLSKey == "") {
		return errors.New("TLS_CERT and TLS_KEY must be set together")
	}
	if c.RequireTLS && c.TLSCert == "" {
		return errors.New("REQUIRE_TLS is true but TLS_CERT/TLS_KEY are not configured")
	}
	return nil
}

// TLSEnabled reports whether a certificate pair is configured.
func (c *Config) TLSEnabled() bool { return c.TLSCert != "" && c.TLSKey != "" }

// parseKeys reads "kid:secret,kid2:secret2".
func parseKeys(raw string) (map[string]string, error) {
	keys := map[string]string{}
	for _, p := range strings.Split(raw, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		kid, secret, ok := strings.Cut(p, ":")
		if !ok || kid == "" || secret == "" {
			return nil, fmt.Errorf("invalid JWT_KEYS entry %q", p)
		}
		keys[kid] = secret
	}
	return keys, nil
}

func parseDuration(key, v string) (time.Duration, error) {
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("%s must be a positive duration, got %q", key, v)
	}
	return d, nil
}

func parsePositive(key, v string) (int, error) {
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer, got %q", key, v)
	}
	return n, nil
}

func parseBool(key, v string) (bool, error) {
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s must be true or false, got %q", key, v)
	}
	return b, nil
}
