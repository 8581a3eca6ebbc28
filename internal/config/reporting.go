package config

import (
	"fmt"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// ReportingConfig tunes how ARR reports are built. It is read from
// reporting.yml and reloaded when the file changes.
type ReportingConfig struct {
	DefaultTimeframe string `mapstructure:"defaultTimeframe"`
	IgnoreZeros      bool   `mapstructure:"ignoreZeros"`
	AllowPartial     bool   `mapstructure:"allowPartial"`
	RenewalExclusion string `mapstructure:"renewalExclusion"`
	RevenueSampleDay string `mapstructure:"revenueSampleDay"`
	Currency         string `mapstructure:"currency"`
}

func DefaultReportingConfig() ReportingConfig {
	return ReportingConfig{
		DefaultTimeframe: "M",
		IgnoreZeros:      true,
		AllowPartial:     false,
		RenewalExclusion: "global",
		RevenueSampleDay: "end",
		Currency:         "USD",
	}
}

type ReportingConfigHolder struct {
	current atomic.Value // holds ReportingConfig
}

func NewReportingConfigHolder(cfg Config) (*ReportingConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("reporting")
	v.SetConfigType("yml")
	if cfg.ReportingConfigPath != "" {
		v.AddConfigPath(cfg.ReportingConfigPath)
	}
	v.AddConfigPath("/etc/saasops")
	v.AddConfigPath(".")

	v.SetEnvPrefix("SAASOPS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultReportingConfig()
	v.SetDefault("reporting.defaultTimeframe", defaults.DefaultTimeframe)
	v.SetDefault("reporting.ignoreZeros", defaults.IgnoreZeros)
	v.SetDefault("reporting.allowPartial", defaults.AllowPartial)
	v.SetDefault("reporting.renewalExclusion", defaults.RenewalExclusion)
	v.SetDefault("reporting.revenueSampleDay", defaults.RevenueSampleDay)
	v.SetDefault("reporting.currency", defaults.Currency)

	fileFound := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileFound = false
	}

	var current ReportingConfig
	if err := v.UnmarshalKey("reporting", &current); err != nil {
		return nil, err
	}
	current = normalizeReportingConfig(current)
	if err := validateReportingConfig(current); err != nil {
		return nil, err
	}

	holder := &ReportingConfigHolder{}
	holder.current.Store(current)

	if !fileFound {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated ReportingConfig
		if err := v.UnmarshalKey("reporting", &updated); err != nil {
			log.Printf("[reporting-config] reload failed: %v", err)
			return
		}
		updated = normalizeReportingConfig(updated)
		if err := validateReportingConfig(updated); err != nil {
			log.Printf("[reporting-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[reporting-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

// NewStaticReportingConfig returns a holder that never reloads.
func NewStaticReportingConfig(cfg ReportingConfig) *ReportingConfigHolder {
	holder := &ReportingConfigHolder{}
	holder.current.Store(normalizeReportingConfig(cfg))
	return holder
}

func (h *ReportingConfigHolder) Get() ReportingConfig {
	return h.current.Load().(ReportingConfig)
}

func normalizeReportingConfig(cfg ReportingConfig) ReportingConfig {
	cfg.DefaultTimeframe = strings.ToUpper(strings.TrimSpace(cfg.DefaultTimeframe))
	cfg.RenewalExclusion = strings.ToLower(strings.TrimSpace(cfg.RenewalExclusion))
	cfg.RevenueSampleDay = strings.ToLower(strings.TrimSpace(cfg.RevenueSampleDay))
	cfg.Currency = strings.ToUpper(strings.TrimSpace(cfg.Currency))
	return cfg
}

func validateReportingConfig(cfg ReportingConfig) error {
	switch cfg.DefaultTimeframe {
	case "M", "Q":
	default:
		return fmt.Errorf("reporting.defaultTimeframe must be M or Q, got %q", cfg.DefaultTimeframe)
	}
	switch cfg.RenewalExclusion {
	case "global", "active":
	default:
		return fmt.Errorf("reporting.renewalExclusion must be global or active, got %q", cfg.RenewalExclusion)
	}
	switch cfg.RevenueSampleDay {
	case "mid", "end":
	default:
		return fmt.Errorf("reporting.revenueSampleDay must be mid or end, got %q", cfg.RevenueSampleDay)
	}
	if len(cfg.Currency) != 3 {
		return fmt.Errorf("reporting.currency must be an ISO 4217 code, got %q", cfg.Currency)
	}
	return nil
}
