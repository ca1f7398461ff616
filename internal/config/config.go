// Package config reads runtime settings from the environment and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Defaults.
const (
	DefaultBaseURL     = "https://animepahe.ru"
	DefaultMaxAttempts = 5
	DefaultListen      = ":8080"
	DefaultEngine      = "none"
	DefaultCookieName  = "kwik_session"
	DefaultEnvFile     = ".env"
)

// Config holds every setting the CLI and API share.
type Config struct {
	BaseURL           string
	UserAgent         string
	HTTPTimeout       time.Duration
	HTTPRetries       int
	Proxy             string
	RequestsPerSecond float64

	MaxAttempts int
	Engine      string
	CookieName  string
	Quality     int

	Listen string

	DownloadDir  string
	DownloadRate int64 // bytes per second, 0 = unlimited
	ChunkSize    int64
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		BaseURL:     DefaultBaseURL,
		HTTPTimeout: 30 * time.Second,
		HTTPRetries: 3,
		MaxAttempts: DefaultMaxAttempts,
		Engine:      DefaultEngine,
		CookieName:  DefaultCookieName,
		Listen:      DefaultListen,
		DownloadDir: ".",
		ChunkSize:   10 << 20,
	}
}

// Load applies envFile (missing files are ignored) and then PAHEDL_*
// variables on top of Default. Variables already set in the process win
// over the file.
func Load(envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	c := Default()
	c.BaseURL = strings.TrimRight(getenv("PAHEDL_BASE_URL", c.BaseURL), "/")
	c.UserAgent = getenv("PAHEDL_USER_AGENT", c.UserAgent)
	c.HTTPTimeout = getenvDuration("PAHEDL_HTTP_TIMEOUT", c.HTTPTimeout)
	c.HTTPRetries = getenvInt("PAHEDL_HTTP_RETRIES", c.HTTPRetries)
	c.Proxy = getenv("PAHEDL_PROXY", c.Proxy)
	c.RequestsPerSecond = getenvFloat("PAHEDL_RPS", c.RequestsPerSecond)

	c.MaxAttempts = getenvInt("PAHEDL_MAX_ATTEMPTS", c.MaxAttempts)
	c.Engine = strings.ToLower(getenv("PAHEDL_ENGINE", c.Engine))
	c.CookieName = getenv("PAHEDL_COOKIE_NAME", c.CookieName)
	c.Quality = getenvInt("PAHEDL_QUALITY", c.Quality)

	c.Listen = getenv("PAHEDL_LISTEN", c.Listen)

	c.DownloadDir = getenv("PAHEDL_DOWNLOAD_DIR", c.DownloadDir)
	c.DownloadRate = getenvInt64("PAHEDL_DOWNLOAD_RATE", c.DownloadRate)
	c.ChunkSize = getenvInt64("PAHEDL_CHUNK_SIZE", c.ChunkSize)

	return c, c.Validate()
}

// Validate checks ranges and shapes.
func (c Config) Validate() error {
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid base url %q", c.BaseURL)
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("max attempts must be at least 1, got %d", c.MaxAttempts)
	}
	if c.Quality < -1 {
		return fmt.Errorf("quality must be -1, 0 or a height, got %d", c.Quality)
	}
	switch c.Engine {
	case "none", "native", "otto", "goja":
	default:
		return fmt.Errorf("unknown decoder engine %q", c.Engine)
	}
	if c.RequestsPerSecond < 0 || c.DownloadRate < 0 {
		return errors.New("rates must not be negative")
	}
	if c.ChunkSize <= 0 {
		return fmt.Errorf("chunk size must be positive, got %d", c.ChunkSize)
	}
	return nil
}

func getenv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := getenv(key, ""); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getenvInt64(key string, def int64) int64 {
	if v := getenv(key, ""); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return def
}

func getenvFloat(key string, def float64) float64 {
	if v := getenv(key, ""); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

// getenvDuration accepts Go durations ("45s") or plain seconds ("45").
func getenvDuration(key string, def time.Duration) time.Duration {
	v := getenv(key, "")
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	return def
}
