package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds runtime settings for the audit runner and its HTTP service.
type Config struct {
	// CDP connection settings
	CDPAddress    string
	CDPPort       int
	LaunchBrowser bool
	Headless      bool
	ChromiumPath  string

	// Scoring profile; empty means the built-in default.
	ProfilePath string

	// Storage settings
	DataDir     string
	SnapshotDir string
	MetricsFile string

	// Logging and service
	LogLevel string
	LogFile  string
	BindAddr string
	// BindFallback is how many following ports serve may try when BindAddr
	// is taken.
	BindFallback  int
	WebhookURL    string
	WebhookFormat string
	Tracing       string
	// ReportCacheSize bounds the reports kept in memory by the service.
	ReportCacheSize int

	GreenCheckURL string

	// Navigation behavior
	MaxNavigationMS     int
	MaxScrollIntervalMS int
	MaxScrollMS         int
	CollectorTimeoutMS  int
	Device              string
	Location            string
}

// Load reads configuration from environment variables and optional .env file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	}

	cfg := &Config{
		CDPAddress:          getEnvOrDefault("ECOAUDIT_CDP_ADDRESS", "127.0.0.1"),
		CDPPort:             getEnvIntOrDefault("ECOAUDIT_CDP_PORT", 9222),
		LaunchBrowser:       getEnvBoolOrDefault("ECOAUDIT_LAUNCH_BROWSER", false),
		Headless:            getEnvBoolOrDefault("ECOAUDIT_HEADLESS", true),
		ChromiumPath:        getEnvOrDefault("ECOAUDIT_CHROMIUM_PATH", ""),
		ProfilePath:         getEnvOrDefault("ECOAUDIT_PROFILE", ""),
		DataDir:             getEnvOrDefault("ECOAUDIT_DATA_DIR", "./audit_data"),
		SnapshotDir:         getEnvOrDefault("ECOAUDIT_SNAPSHOT_DIR", "./snapshots"),
		MetricsFile:         getEnvOrDefault("ECOAUDIT_METRICS_FILE", ""),
		LogLevel:            strings.ToLower(getEnvOrDefault("ECOAUDIT_LOG_LEVEL", "info")),
		LogFile:             getEnvOrDefault("ECOAUDIT_LOG_FILE", "logs/ecoaudit.log"),
		BindAddr:            getEnvOrDefault("ECOAUDIT_BIND_ADDR", "127.0.0.1:8190"),
		BindFallback:        getEnvIntOrDefault("ECOAUDIT_BIND_FALLBACK", 0),
		WebhookURL:          getEnvOrDefault("ECOAUDIT_WEBHOOK_URL", ""),
		WebhookFormat:       strings.ToLower(getEnvOrDefault("ECOAUDIT_WEBHOOK_FORMAT", "json")),
		Tracing:             strings.ToLower(getEnvOrDefault("ECOAUDIT_TRACING", "none")),
		ReportCacheSize:     getEnvIntOrDefault("ECOAUDIT_REPORT_CACHE_SIZE", 50),
		GreenCheckURL:       getEnvOrDefault("ECOAUDIT_GREENCHECK_URL", "https://api.thegreenwebfoundation.org/api/v3/greencheck/"),
		MaxNavigationMS:     getEnvIntOrDefault("ECOAUDIT_MAX_NAVIGATION_MS", 60000),
		MaxScrollIntervalMS: getEnvIntOrDefault("ECOAUDIT_MAX_SCROLL_INTERVAL_MS", 30),
		MaxScrollMS:         getEnvIntOrDefault("ECOAUDIT_MAX_SCROLL_MS", 10000),
		CollectorTimeoutMS:  getEnvIntOrDefault("ECOAUDIT_COLLECTOR_TIMEOUT_MS", 90000),
		Device:              strings.ToLower(getEnvOrDefault("ECOAUDIT_DEVICE", DefaultDevice)),
		Location:            strings.ToLower(getEnvOrDefault("ECOAUDIT_LOCATION", DefaultLocation)),
	}
	if cfg.MaxNavigationMS < 1000 {
		cfg.MaxNavigationMS = 1000
	}
	if cfg.MaxScrollIntervalMS < 1 {
		cfg.MaxScrollIntervalMS = 1
	}
	if cfg.CollectorTimeoutMS < cfg.MaxNavigationMS {
		cfg.CollectorTimeoutMS = cfg.MaxNavigationMS
	}
	if cfg.ReportCacheSize < 1 {
		cfg.ReportCacheSize = 1
	}
	if cfg.WebhookFormat != "json" && cfg.WebhookFormat != "text" {
		return nil, fmt.Errorf("unknown webhook format %q", cfg.WebhookFormat)
	}
	if _, ok := Devices[cfg.Device]; !ok {
		return nil, fmt.Errorf("unknown device preset %q", cfg.Device)
	}
	if _, ok := Locations[cfg.Location]; !ok {
		return nil, fmt.Errorf("unknown location preset %q", cfg.Location)
	}
	return cfg, nil
}

// CDPURL returns the full CDP HTTP endpoint used by chromedp remote allocator.
func (c *Config) CDPURL() string {
	return fmt.Sprintf("http://%s:%d", c.CDPAddress, c.CDPPort)
}

// Connection resolves the per-session navigation settings.
func (c *Config) Connection() Connection {
	return Connection{
		Device:            Devices[c.Device],
		Location:          Locations[c.Location],
		MaxNavigation:     time.Duration(c.MaxNavigationMS) * time.Millisecond,
		MaxScrollInterval: time.Duration(c.MaxScrollIntervalMS) * time.Millisecond,
		MaxScroll:         time.Duration(c.MaxScrollMS) * time.Millisecond,
	}
}

// CollectorTimeout is the default deadline for each collector.
func (c *Config) CollectorTimeout() time.Duration {
	return time.Duration(c.CollectorTimeoutMS) * time.Millisecond
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvIntOrDefault(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvBoolOrDefault(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}
