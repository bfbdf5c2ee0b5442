package config

import (
	"errors"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// CashDayConfig tunes how a closing difference is classified for review.
type CashDayConfig struct {
	// Differences with an absolute value up to WarningThreshold are balanced.
	WarningThreshold float64 `mapstructure:"warningThreshold"`
	// Differences above CriticalThreshold are critical, anything between is a warning.
	CriticalThreshold float64 `mapstructure:"criticalThreshold"`
}

func DefaultCashDayConfig() CashDayConfig {
	return CashDayConfig{
		WarningThreshold:  0,
		CriticalThreshold: 50,
	}
}

type CashDayConfigHolder struct {
	current atomic.Value // holds CashDayConfig
}

// NewStaticCashDayConfigHolder returns a holder that never reloads.
func NewStaticCashDayConfigHolder(cfg CashDayConfig) *CashDayConfigHolder {
	holder := &CashDayConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func NewCashDayConfigHolder(log *zap.Logger) (*CashDayConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("cashday")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/salonbook/config")
	v.AddConfigPath("/etc/salonbook")
	v.AddConfigPath(".")

	return loadCashDayConfig(v, log)
}

// NewCashDayConfigHolderFromFile loads and watches an explicit config file.
func NewCashDayConfigHolderFromFile(path string, log *zap.Logger) (*CashDayConfigHolder, error) {
	v := viper.New()
	v.SetConfigFile(path)
	return loadCashDayConfig(v, log)
}

func loadCashDayConfig(v *viper.Viper, log *zap.Logger) (*CashDayConfigHolder, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("cashday.config")

	v.SetEnvPrefix("SALONBOOK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultCashDayConfig()
	v.SetDefault("cashday.warningThreshold", defaults.WarningThreshold)
	v.SetDefault("cashday.criticalThreshold", defaults.CriticalThreshold)

	watch := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		watch = false
	}

	var cfg CashDayConfig
	if err := v.UnmarshalKey("cashday", &cfg); err != nil {
		return nil, err
	}
	if err := validateCashDayConfig(cfg); err != nil {
		return nil, err
	}

	holder := NewStaticCashDayConfigHolder(cfg)
	if !watch {
		return holder, nil
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		var updated CashDayConfig
		if err := v.UnmarshalKey("cashday", &updated); err != nil {
			log.Warn("reload failed", zap.Error(err))
			return
		}
		if err := validateCashDayConfig(updated); err != nil {
			log.Warn("invalid config ignored", zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("reloaded", zap.String("file", e.Name))
	})
	v.WatchConfig()

	return holder, nil
}

// Get returns the active config, falling back to defaults on a nil holder.
func (h *CashDayConfigHolder) Get() CashDayConfig {
	if h == nil {
		return DefaultCashDayConfig()
	}
	cfg, ok := h.current.Load().(CashDayConfig)
	if !ok {
		return DefaultCashDayConfig()
	}
	return cfg
}

func validateCashDayConfig(cfg CashDayConfig) error {
	if cfg.WarningThreshold < 0 || cfg.CriticalThreshold < 0 {
		return errors.New("cashday thresholds cannot be negative")
	}
	if cfg.CriticalThreshold < cfg.WarningThreshold {
		return errors.New("cashday.criticalThreshold must be >= cashday.warningThreshold")
	}
	return nil
}
