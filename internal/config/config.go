package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds catalog, lane, server and DVR-host settings.
// Load from env and/or a .env file (see LoadEnvFile).
type Config struct {
	// Paths
	DatabasePath string // sqlite catalog store, e.g. /var/lib/fieldlane/catalog.db
	OutputDir    string // guide artifacts (M3U/XMLTV/diagnostics) are written here
	BinDir       string // ingester binaries invoked by the refresh pipeline
	LogDir       string // pipeline logs

	// HTTP server
	ListenHost string
	ListenPort int
	BaseURL    string // external URL the DVR uses to reach us; derived from host/port when empty

	// DVR host (the consumer of our artifacts)
	DVRHost          string
	DVRPort          int
	DVRClientAPIPort int    // per-client sideload API port (Apple TV / Android TV / Fire TV)
	DVRImportDir     string // shared mount where lane sidecar (.strmlnk) files live

	// Lanes
	LaneCount       int // generic pool size
	LaneStartNumber int // first logical channel number, e.g. 9000
	DaysAhead       int // scheduling / emission window forward
	DaysBack        int // emission window backward

	// Scheduling shape
	PaddingMinutes          int // post-event padding appended to each lane slot
	PlaceholderBlockMinutes int // idle "Nothing Scheduled" block size
	PlaceholderExtraDays    int // placeholder horizon beyond the last real event

	// Ingest
	Feeds map[string]string // provider prefix → live feed URL

	// Refresh
	AutoRefreshEnabled bool
	AutoRefreshTime    string // "HH:MM" in Timezone
	Timezone           string // IANA name; "" = system local

	// Detector
	DetectorDebounce time.Duration // min gap between detector spawns per lane

	// Diagnostics
	DebugKeep int    // how many ingest debug artifacts to keep per prefix
	LogLevel  string // zerolog level name
	LogFormat string // "console" | "json"
}

// Load reads config from environment. Call LoadEnvFile(".env") before Load()
// to use a .env file. Defaults are serviceable for a single-host deployment
// next to the DVR.
func Load() *Config {
	c := &Config{
		DatabasePath:            getEnv("FIELDLANE_DB", "./fieldlane.db"),
		OutputDir:               getEnv("FIELDLANE_OUT", "./out"),
		BinDir:                  getEnv("FIELDLANE_BIN", "./bin"),
		LogDir:                  getEnv("FIELDLANE_LOGS", "./logs"),
		ListenHost:              getEnv("FIELDLANE_HOST", "0.0.0.0"),
		ListenPort:              getEnvInt("FIELDLANE_PORT", 8089),
		BaseURL:                 os.Getenv("FIELDLANE_BASE_URL"),
		DVRHost:                 getEnv("FIELDLANE_DVR_HOST", "127.0.0.1"),
		DVRPort:                 getEnvInt("FIELDLANE_DVR_PORT", 8090),
		DVRClientAPIPort:        getEnvInt("FIELDLANE_DVR_CLIENT_API_PORT", 57000),
		DVRImportDir:            getEnv("FIELDLANE_DVR_IMPORT_DIR", "/mnt/dvr-imports/fieldlane"),
		Feeds:                   parseFeeds(os.Getenv("FIELDLANE_FEEDS")),
		LaneCount:               getEnvInt("FIELDLANE_LANES", 10),
		LaneStartNumber:         getEnvInt("FIELDLANE_LANE_START", 9000),
		DaysAhead:               getEnvInt("FIELDLANE_DAYS_AHEAD", 7),
		DaysBack:                getEnvInt("FIELDLANE_DAYS_BACK", 1),
		PaddingMinutes:          getEnvInt("FIELDLANE_PADDING_MINUTES", 45),
		PlaceholderBlockMinutes: getEnvInt("FIELDLANE_PLACEHOLDER_BLOCK_MINUTES", 60),
		PlaceholderExtraDays:    getEnvInt("FIELDLANE_PLACEHOLDER_EXTRA_DAYS", 5),
		AutoRefreshEnabled:      getEnvBool("FIELDLANE_AUTO_REFRESH", false),
		AutoRefreshTime:         getEnv("FIELDLANE_AUTO_REFRESH_TIME", "04:30"),
		Timezone:                os.Getenv("TZ"),
		DetectorDebounce:        getEnvDuration("FIELDLANE_DETECTOR_DEBOUNCE", 3*time.Second),
		DebugKeep:               getEnvInt("FIELDLANE_DEBUG_KEEP", 5),
		LogLevel:                getEnv("FIELDLANE_LOG_LEVEL", "info"),
		LogFormat:               getEnv("FIELDLANE_LOG_FORMAT", "console"),
	}
	if c.LaneCount <= 0 {
		c.LaneCount = 10
	}
	if c.LaneStartNumber <= 0 {
		c.LaneStartNumber = 9000
	}
	if c.DaysAhead <= 0 {
		c.DaysAhead = 7
	}
	if c.PaddingMinutes < 0 {
		c.PaddingMinutes = 45
	}
	if c.PlaceholderBlockMinutes <= 0 {
		c.PlaceholderBlockMinutes = 60
	}
	if c.DetectorDebounce <= 0 {
		c.DetectorDebounce = 3 * time.Second
	}
	return c
}

// Validate catches the config mistakes that otherwise surface minutes later as
// pipeline failures: bad auto-refresh time, unknown timezone, out-of-range ports.
func (c *Config) Validate() error {
	if c.AutoRefreshEnabled {
		if _, err := ParseClock(c.AutoRefreshTime); err != nil {
			return fmt.Errorf("auto refresh time %q: %w", c.AutoRefreshTime, err)
		}
	}
	if c.Timezone != "" {
		if _, err := time.LoadLocation(c.Timezone); err != nil {
			return fmt.Errorf("timezone %q: %w", c.Timezone, err)
		}
	}
	if c.ListenPort <= 0 || c.ListenPort > 65535 {
		return fmt.Errorf("listen port %d out of range", c.ListenPort)
	}
	if c.DVRPort <= 0 || c.DVRPort > 65535 {
		return fmt.Errorf("dvr port %d out of range", c.DVRPort)
	}
	return nil
}

// Location returns the configured timezone, falling back to time.Local.
func (c *Config) Location() *time.Location {
	if c.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// ServerBaseURL returns BaseURL if set, otherwise builds one from host/port.
// The DVR must be able to reach this URL, so 0.0.0.0 is swapped for localhost
// as a last resort; set FIELDLANE_BASE_URL on multi-host deployments.
func (c *Config) ServerBaseURL() string {
	if c.BaseURL != "" {
		return strings.TrimSuffix(c.BaseURL, "/")
	}
	host := c.ListenHost
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return fmt.Sprintf("http://%s:%d", host, c.ListenPort)
}

// DVRBaseURL returns the DVR host's API root.
func (c *Config) DVRBaseURL() string {
	return fmt.Sprintf("http://%s:%d", c.DVRHost, c.DVRPort)
}

// Clock is a wall-clock time of day.
type Clock struct {
	Hour, Minute int
}

// ParseClock parses "HH:MM" (24h).
func ParseClock(s string) (Clock, error) {
	parts := strings.SplitN(strings.TrimSpace(s), ":", 2)
	if len(parts) != 2 {
		return Clock{}, fmt.Errorf("want HH:MM")
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return Clock{}, fmt.Errorf("bad hour %q", parts[0])
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return Clock{}, fmt.Errorf("bad minute %q", parts[1])
	}
	return Clock{Hour: h, Minute: m}, nil
}

// parseFeeds parses "prefix=url,prefix=url". Entries without both halves are
// dropped.
func parseFeeds(s string) map[string]string {
	out := map[string]string{}
	for _, pair := range strings.Split(s, ",") {
		prefix, url, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok || prefix == "" || url == "" {
			continue
		}
		out[prefix] = url
	}
	return out
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		return v == "1" || strings.EqualFold(v, "true") || strings.EqualFold(v, "yes")
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultVal
}
