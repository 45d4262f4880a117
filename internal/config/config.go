package config

import (
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

func Load(path string) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("config path cannot be empty")
	}
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config file failed (%s): %w", path, err)
	}
	var cfg Config
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "toml"
		dc.WeaklyTypedInput = true
	}); err != nil {
		return nil, fmt.Errorf("parsing config failed: %w", err)
	}
	cfg.applyDefaults()
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.App.Env) == "" {
		c.App.Env = "dev"
	}
	if strings.TrimSpace(c.App.LogLevel) == "" {
		c.App.LogLevel = "info"
	}
	if strings.TrimSpace(c.App.HTTPAddr) == "" {
		c.App.HTTPAddr = ":8800"
	}
	if strings.TrimSpace(c.Storage.DBPath) == "" {
		c.Storage.DBPath = "data/journal.db"
	}
	if strings.TrimSpace(c.Storage.ArchiveDir) == "" {
		c.Storage.ArchiveDir = "data/archive"
	}
	if strings.TrimSpace(c.Import.WatchDir) == "" {
		c.Import.WatchDir = "trading_records"
	}
	if strings.TrimSpace(c.Import.BrokersPath) == "" {
		c.Import.BrokersPath = "configs/brokers.yaml"
	}
	if strings.TrimSpace(c.Import.ScanCron) == "" {
		c.Import.ScanCron = "@hourly"
	}
	if c.Summary.DailyHour == 0 {
		c.Summary.DailyHour = 18
	}
	if c.Summary.TrendDays <= 0 {
		c.Summary.TrendDays = 30
	}
}

func validate(c *Config) error {
	if c.Summary.DailyHour < 0 || c.Summary.DailyHour > 23 {
		return fmt.Errorf("summary.daily_hour must be within 0~23, got %d", c.Summary.DailyHour)
	}
	if !strings.HasPrefix(c.App.HTTPAddr, ":") && !strings.Contains(c.App.HTTPAddr, ":") {
		return fmt.Errorf("app.http_addr must contain a port, got %q", c.App.HTTPAddr)
	}
	return nil
}
