package main

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pazami01/sptb/gateway"
	"github.com/pazami01/sptb/tokenstore"
)

const (
	defaultAPIURL    = "http://localhost:8000/"
	defaultTokenFile = ".sptb-tokens.json"
	defaultLogLevel  = "warn"
)

// rootFlags holds the raw persistent flag values. Empty means "not set".
type rootFlags struct {
	apiURL    string
	tokenFile string
	profile   string
	timeout   string
	logLevel  string
	logFile   string
	rateLimit string
	json      bool
	plain     bool
}

// config is the resolved configuration of one invocation.
type config struct {
	APIURL    string
	TokenFile string
	Profile   string
	Timeout   time.Duration
	LogLevel  string
	LogFile   string
	RateLimit float64
	JSON      bool
	Plain     bool

	// Tokens seeded from the environment. When either is set the tokens live in
	// memory only and TokenFile is not touched.
	SeedAccess  string
	SeedRefresh string
}

// ephemeral reports whether tokens come from the environment instead of a file.
func (c *config) ephemeral() bool {
	return c.SeedAccess != "" || c.SeedRefresh != ""
}

// loadConfig resolves every setting with priority flag > env > default.
func loadConfig(f rootFlags) (*config, error) {
	cfg := &config{
		APIURL:      getConfig(f.apiURL, "SPTB_API_URL", defaultAPIURL),
		TokenFile:   getConfig(f.tokenFile, "SPTB_TOKEN_FILE", defaultTokenFile),
		Profile:     getConfig(f.profile, "SPTB_PROFILE", tokenstore.DefaultProfile),
		LogLevel:    getConfig(f.logLevel, "SPTB_LOG_LEVEL", defaultLogLevel),
		LogFile:     getConfig(f.logFile, "SPTB_LOG_FILE", ""),
		JSON:        f.json,
		Plain:       f.plain,
		SeedAccess:  os.Getenv("SPTB_ACCESS_TOKEN"),
		SeedRefresh: os.Getenv("SPTB_REFRESH_TOKEN"),
	}

	if err := validateServerURL(cfg.APIURL); err != nil {
		return nil, fmt.Errorf("invalid SPTB_API_URL: %w", err)
	}

	timeout := getConfig(f.timeout, "SPTB_TIMEOUT", gateway.DefaultTimeout.String())
	d, err := time.ParseDuration(timeout)
	if err != nil {
		return nil, fmt.Errorf("invalid SPTB_TIMEOUT %q: %w", timeout, err)
	}
	if d <= 0 {
		return nil, fmt.Errorf("SPTB_TIMEOUT must be positive, got: %s", d)
	}
	cfg.Timeout = d

	if rl := getConfig(f.rateLimit, "SPTB_RATE_LIMIT", ""); rl != "" {
		v, err := strconv.ParseFloat(rl, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid SPTB_RATE_LIMIT %q: %w", rl, err)
		}
		if v < 0 {
			return nil, fmt.Errorf("SPTB_RATE_LIMIT must not be negative, got: %v", v)
		}
		cfg.RateLimit = v
	}

	if strings.TrimSpace(cfg.Profile) == "" {
		return nil, errors.New("profile name cannot be empty")
	}

	return cfg, nil
}

// getConfig returns value with priority: flag > env > default
func getConfig(flagValue, envKey, defaultValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return getEnv(envKey, defaultValue)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// validateServerURL validates that the server URL is properly formatted
func validateServerURL(rawURL string) error {
	if rawURL == "" {
		return errors.New("server URL cannot be empty")
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL format: %w", err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL scheme must be http or https, got: %s", u.Scheme)
	}

	if u.Host == "" {
		return errors.New("URL must include a host")
	}

	return nil
}

// warnPlaintext prints a warning when tokens would travel over plain HTTP to a
// host other than localhost.
func warnPlaintext(w io.Writer, rawURL string) {
	u, err := url.Parse(rawURL)
	if err != nil || !strings.EqualFold(u.Scheme, "http") {
		return
	}
	switch u.Hostname() {
	case "localhost", "127.0.0.1", "::1":
		return
	}
	fmt.Fprintln(w, "⚠️  WARNING: Using HTTP instead of HTTPS. Tokens will be transmitted in plaintext!")
	fmt.Fprintln(w, "⚠️  This is only safe for local development. Use HTTPS in production.")
	fmt.Fprintln(w)
}
