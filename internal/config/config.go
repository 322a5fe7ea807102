package config // package config loads application configuration from environment variables

import (
	"log"     // log is used to report configuration errors and halt execution
	"os"      // os provides access to environment variables
	"strings" // strings splits list-valued variables
	"time"    // time resolves the configured zone
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.  The types reflect how the values are used in the
// application: strings for addresses and secrets, a *time.Location for the
// zone in which "today" is computed.
type Config struct {
	Env             string         // application environment (e.g. "dev", "prod")
	ListenAddr      string         // address the HTTP server binds to
	DatabaseURL     string         // data store connection string (mysql:// or postgres://)
	SigningKey      string         // symmetric key for QR token signatures
	AdminSecret     string         // shared secret for admin endpoints (plain)
	AdminSecretHash string         // bcrypt hash of the admin secret; takes precedence over AdminSecret
	AllowedOrigins  []string       // CORS allowlist for the registration path
	QRTTL           time.Duration  // QR token lifetime
	CodeAlphabet    string         // alphabet for session code generation
	CodeLen         int            // session code length
	RunnerIDMaxLen  int            // maximum accepted runner identifier length
	PublicBaseURL   string         // base URL embedded in QR registration links
	Location        *time.Location // time zone used to interpret "today"
}

// defaultCodeAlphabet omits characters that read ambiguously on a projected
// screen (0/O, 1/I/L).
const defaultCodeAlphabet = "23456789ABCDEFGHJKMNPQRSTUVWXYZ"

// Load reads configuration values from environment variables and returns a
// Config.  Required variables are enforced by must() and missing values cause
// the program to exit with a fatal log message.  The admin credential may be
// supplied either as ADMIN_SECRET (compared in constant time) or as
// ADMIN_SECRET_HASH (a bcrypt hash).
func Load() Config {
	cfg := Config{
		Env:             envStr("APP_ENV", "dev"),
		ListenAddr:      envStr("LISTEN_ADDR", ":8080"),
		DatabaseURL:     must("DATABASE_URL"),
		SigningKey:      must("SIGNING_KEY"),
		AdminSecret:     os.Getenv("ADMIN_SECRET"),
		AdminSecretHash: os.Getenv("ADMIN_SECRET_HASH"),
		AllowedOrigins:  splitList(os.Getenv("ALLOWED_ORIGINS")),
		QRTTL:           time.Duration(envInt("QR_TTL_HOURS", 24)) * time.Hour,
		CodeAlphabet:    envStr("SESSION_CODE_ALPHABET", defaultCodeAlphabet),
		CodeLen:         envInt("SESSION_CODE_LEN", 5),
		RunnerIDMaxLen:  envInt("RUNNER_ID_MAX_LEN", 64),
		PublicBaseURL:   envStr("PUBLIC_BASE_URL", "http://localhost:8080"),
	}
	if cfg.AdminSecret == "" && cfg.AdminSecretHash == "" {
		log.Fatalf("missing required env var: ADMIN_SECRET (or ADMIN_SECRET_HASH)")
	}
	if cfg.CodeLen < 4 || cfg.CodeLen > 16 {
		log.Fatalf("SESSION_CODE_LEN out of range: %d", cfg.CodeLen)
	}
	if len(cfg.CodeAlphabet) < 8 {
		log.Fatalf("SESSION_CODE_ALPHABET too small: %q", cfg.CodeAlphabet)
	}

	tz := envStr("TIME_ZONE", "UTC")
	loc, err := time.LoadLocation(tz)
	if err != nil {
		log.Fatalf("invalid TIME_ZONE %q: %v", tz, err)
	}
	cfg.Location = loc
	return cfg
}

// must retrieves the value of a required environment variable.  If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}

// splitList parses a comma-separated environment value into a slice, dropping
// empty entries and surrounding whitespace.
func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
