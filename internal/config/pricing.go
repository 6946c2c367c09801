package config

import (
	"errors"
	"log"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// PricingConfig carries the tunables of the premium engine.
type PricingConfig struct {
	// TaxRate is a fraction (0.05 for 5%). Zero disables tax.
	TaxRate                 float64       `mapstructure:"taxRate"`
	DefaultBillingFrequency string        `mapstructure:"defaultBillingFrequency"`
	QuoteTTL                time.Duration `mapstructure:"quoteTTL"`
	ReferenceCacheTTL       time.Duration `mapstructure:"referenceCacheTTL"`
	ExpirySweepInterval     time.Duration `mapstructure:"expirySweepInterval"`
}

func DefaultPricingConfig() PricingConfig {
	return PricingConfig{
		TaxRate:                 0,
		DefaultBillingFrequency: "annual",
		QuoteTTL:                30 * 24 * time.Hour,
		ReferenceCacheTTL:       time.Minute,
		ExpirySweepInterval:     time.Hour,
	}
}

type PricingConfigHolder struct {
	current atomic.Value // holds PricingConfig
}

// NewStaticPricingConfig returns a holder that never reloads.
func NewStaticPricingConfig(cfg PricingConfig) *PricingConfigHolder {
	holder := &PricingConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func NewPricingConfigHolder(appCfg Config) (*PricingConfigHolder, error) {
	v := viper.New()

	if appCfg.PricingConfigPath != "" {
		v.SetConfigFile(filepath.Clean(appCfg.PricingConfigPath))
	} else {
		v.SetConfigName("pricing")
		v.SetConfigType("yml")
		v.AddConfigPath("/etc/medrate")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("MEDRATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultPricingConfig()
	v.SetDefault("pricing.taxRate", defaults.TaxRate)
	v.SetDefault("pricing.defaultBillingFrequency", defaults.DefaultBillingFrequency)
	v.SetDefault("pricing.quoteTTL", defaults.QuoteTTL)
	v.SetDefault("pricing.referenceCacheTTL", defaults.ReferenceCacheTTL)
	v.SetDefault("pricing.expirySweepInterval", defaults.ExpirySweepInterval)

	fileLoaded := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		fileLoaded = false
	}

	var cfg PricingConfig
	if err := v.UnmarshalKey("pricing", &cfg); err != nil {
		return nil, err
	}
	if err := validatePricingConfig(cfg); err != nil {
		return nil, err
	}

	holder := NewStaticPricingConfig(cfg)
	if !fileLoaded {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated PricingConfig
		if err := v.UnmarshalKey("pricing", &updated); err != nil {
			log.Printf("[pricing-config] reload failed: %v", err)
			return
		}
		if err := validatePricingConfig(updated); err != nil {
			log.Printf("[pricing-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[pricing-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

func (h *PricingConfigHolder) Get() PricingConfig {
	return h.current.Load().(PricingConfig)
}

func validatePricingConfig(cfg PricingConfig) error {
	if cfg.TaxRate < 0 || cfg.TaxRate >= 1 {
		return errors.New("pricing.taxRate must be within [0, 1)")
	}
	if strings.TrimSpace(cfg.DefaultBillingFrequency) == "" {
		return errors.New("pricing.defaultBillingFrequency cannot be empty")
	}
	if cfg.QuoteTTL <= 0 {
		return errors.New("pricing.quoteTTL must be positive")
	}
	return nil
}
