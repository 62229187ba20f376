package cfg

import (
	"cmp"
	"fmt"
	"time"

	"github.com/jessevdk/go-flags"
)

// Version is set at build time via -ldflags
var Version = "dev"

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

type rawCfg struct {
	// Application configuration
	Port    string `long:"port" env:"PORT" default:"8080" description:"HTTP server port"`
	BaseUrl string `long:"base-url" env:"BASE_URL" description:"Public base URL for the service (e.g., https://cal.example.com)"`

	// Remote site configuration
	SiteBaseUrl string `long:"site-base-url" env:"SITE_BASE_URL" default:"https://www.spielerplus.de" description:"Base URL of the SpielerPlus site"`
	UserAgent   string `long:"user-agent" env:"USER_AGENT" default:"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36" description:"User agent string for HTTP requests"`

	// Scraping behavior
	RequestTimeout int    `long:"request-timeout" env:"REQUEST_TIMEOUT" default:"30" description:"Per-request timeout in seconds for event page fetches"`
	PacingDelay    int    `long:"pacing-delay" env:"PACING_DELAY" default:"1" description:"Delay in seconds between consecutive event page fetches"`
	CacheTTL       int    `long:"cache-ttl" env:"CACHE_TTL" default:"600" description:"Seconds a cached attendance result stays fresh"`
	DBPath         string `long:"db-path" env:"DB_PATH" default:"./teamcal.db" description:"Path to the SQLite attendance cache database"`

	// Application metadata
	Timezone string `long:"timezone" env:"TZ" default:"Europe/Berlin" description:"Timezone for emitted calendars (e.g., Europe/Berlin)"`
	Debug    bool   `long:"debug" env:"DEBUG" description:"Enable debug logging"`
}

var globalCfg *Cfg

func Load() (*Cfg, error) {
	var raw rawCfg

	parser := flags.NewParser(&raw, flags.Default)

	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				return nil, nil
			}
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	cfg := &Cfg{
		Port:           raw.Port,
		BaseUrl:        raw.BaseUrl,
		SiteBaseUrl:    raw.SiteBaseUrl,
		UserAgent:      raw.UserAgent,
		RequestTimeout: raw.RequestTimeout,
		PacingDelay:    raw.PacingDelay,
		CacheTTL:       raw.CacheTTL,
		DBPath:         raw.DBPath,
		Timezone:       raw.Timezone,
		Debug:          raw.Debug,
		Version:        GetVersion(),
	}

	if err := applyTimezone(cfg.Timezone); err != nil {
		fmt.Printf("Warning: Invalid timezone '%s', using system default: %v\n", cfg.Timezone, err)
	}

	globalCfg = cfg

	return cfg, nil
}

func Get() *Cfg {
	if globalCfg == nil {
		panic("configuration not loaded - call cfg.Load() first")
	}
	return globalCfg
}

func applyTimezone(timezone string) error {
	if timezone != "" {
		if loc, err := time.LoadLocation(timezone); err != nil {
			return err
		} else {
			time.Local = loc
		}
	}
	return nil
}
