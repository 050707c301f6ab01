package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"roomfree/internal/ics"
)

// BasicAuthConfig holds HTTP Basic Auth credentials for the HTTP API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Timezone is the IANA zone the room-info API reports wall-clock times in.
	Timezone string `yaml:"timezone"`

	// APIBase is the room-info endpoint; LinkBase prefixes the deep links
	// embedded in dashboard lines.
	APIBase  string `yaml:"api_base"`
	LinkBase string `yaml:"link_base"`

	// CacheDir holds the cache database, cached ICS feeds and the log file.
	CacheDir string `yaml:"cache_dir"`
	// CacheMaxBytes caps the cached payload. Zero means unbounded.
	CacheMaxBytes int64 `yaml:"cache_max_bytes"`
	// CacheKeepBuckets is how many date ranges survive eviction.
	CacheKeepBuckets int `yaml:"cache_keep_buckets"`
	// CacheTTL is how long a cached timeline is used without a request.
	CacheTTL Duration `yaml:"cache_ttl"`

	Concurrency    int      `yaml:"concurrency"`
	MinGap         Duration `yaml:"min_gap"`
	RequestTimeout Duration `yaml:"request_timeout"`

	// CommonRoomType is the room type that is not annotated.
	CommonRoomType string `yaml:"common_room_type"`

	// Area and Building are regular expressions selecting rooms.
	Area     string `yaml:"area"`
	Building string `yaml:"building"`

	ShowFixedSeating bool `yaml:"show_fixed_seating"`
	ShowUnavailable  bool `yaml:"show_unavailable"`
	ShowLater        bool `yaml:"show_later"`
	ShowSeats        bool `yaml:"show_seats"`

	// Refresh is a cron spec (e.g. "*/5 * * * *") for watch mode. Empty
	// disables periodic refresh unless --watch is given.
	Refresh string `yaml:"refresh"`

	// Listen is the HTTP listen address for --serve.
	Listen string `yaml:"listen"`
	// BasicAuth, if non-nil, protects every endpoint except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty"`

	// ICS lists rooms scheduled from iCalendar feeds.
	ICS []ics.Feed `yaml:"ics"`

	// LogFile receives log output while the dashboard owns the terminal.
	// Empty means <cache_dir>/roomfree.log.
	LogFile  string `yaml:"log_file"`
	LogLevel string `yaml:"log_level"`
}

// Duration is a time.Duration written as "30m" in YAML.
type Duration time.Duration

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*d = Duration(v)
	return nil
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

const (
	defaultTimezone       = "Europe/Zurich"
	defaultAPIBase        = "https://ethz.ch/bin/ethz/roominfo"
	defaultLinkBase       = "https://ethz.ch/staffnet/de"
	defaultKeepBuckets    = 3
	defaultCacheTTL       = 30 * time.Minute
	defaultConcurrency    = 8
	defaultMinGap         = 15 * time.Minute
	defaultRequestTimeout = 15 * time.Second
	defaultCommonRoomType = "Seminare / Kurse"
	defaultListen         = "127.0.0.1:8080"
	defaultLogLevel       = "info"
)

// DefaultPath is ~/.config/roomfree/config.yaml, or a relative path when no
// home directory is known.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "roomfree.yaml"
	}
	return filepath.Join(dir, "roomfree", "config.yaml")
}

func defaultCacheDir() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return "./var/cache"
	}
	return filepath.Join(dir, "roomfree")
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Timezone:         defaultTimezone,
		APIBase:          defaultAPIBase,
		LinkBase:         defaultLinkBase,
		CacheDir:         defaultCacheDir(),
		CacheKeepBuckets: defaultKeepBuckets,
		CacheTTL:         Duration(defaultCacheTTL),
		Concurrency:      defaultConcurrency,
		MinGap:           Duration(defaultMinGap),
		RequestTimeout:   Duration(defaultRequestTimeout),
		CommonRoomType:   defaultCommonRoomType,
		Area:             "Z",
		ShowSeats:        true,
		Listen:           defaultListen,
		ICS:              []ics.Feed{},
		LogLevel:         defaultLogLevel,
	}
}

// Normalize fills in missing or zero values so that partially filled
// configs behave like the defaults.
func (c *Config) Normalize() {
	if c.Timezone == "" {
		c.Timezone = defaultTimezone
	}
	if c.APIBase == "" {
		c.APIBase = defaultAPIBase
	}
	if c.LinkBase == "" {
		c.LinkBase = defaultLinkBase
	}
	if c.CacheDir == "" {
		c.CacheDir = defaultCacheDir()
	}
	if c.CacheMaxBytes < 0 {
		c.CacheMaxBytes = 0
	}
	if c.CacheKeepBuckets <= 0 {
		c.CacheKeepBuckets = defaultKeepBuckets
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = Duration(defaultCacheTTL)
	}
	if c.Concurrency <= 0 {
		c.Concurrency = defaultConcurrency
	}
	if c.MinGap <= 0 {
		c.MinGap = Duration(defaultMinGap)
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = Duration(defaultRequestTimeout)
	}
	if c.CommonRoomType == "" {
		c.CommonRoomType = defaultCommonRoomType
	}
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	if c.ICS == nil {
		c.ICS = []ics.Feed{}
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		c.LogLevel = defaultLogLevel
	}
}

// Location resolves Timezone.
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}

// LogPath is where the dashboard writes its log.
func (c *Config) LogPath() string {
	if c.LogFile != "" {
		return c.LogFile
	}
	return filepath.Join(c.CacheDir, "roomfree.log")
}

// Load reads the YAML config at path. On first run, when the file does not
// exist, a default config is written there with 0600 permissions and
// returned.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.Normalize()
	return cfg, nil
}

// Save writes cfg to path atomically (temp file and rename) with 0600
// permissions, creating the parent directory if needed.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}
	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".roomfree-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
