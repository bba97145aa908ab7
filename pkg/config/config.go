package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/winspan/blocksync/pkg/utils"
)

// Device is one gateway the tool manages.
type Device struct {
	Name        string `yaml:"name"`
	Address     string `yaml:"address"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	LoginMethod string `yaml:"login_method"`
}

// Config is the application configuration.
type Config struct {
	App struct {
		Name  string `yaml:"name"`
		Debug bool   `yaml:"debug"`
	} `yaml:"app"`

	Devices []Device `yaml:"devices"`

	Blocklist struct {
		SourcesFile  string  `yaml:"sources_file"`
		CacheFile    string  `yaml:"cache_file"`
		AllowFile    string  `yaml:"allow_file"`
		MaxAgeHours  float64 `yaml:"max_age_hours"`
		RedirectIP   string  `yaml:"redirect_ip"`
		RuleComment  string  `yaml:"rule_comment"`
		FetchTimeout int     `yaml:"fetch_timeout"` // seconds
	} `yaml:"blocklist"`

	Daemon struct {
		Enabled  bool `yaml:"enabled"`
		Interval int  `yaml:"interval"` // seconds between runs
	} `yaml:"daemon"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
		Output string `yaml:"output"`
	} `yaml:"logging"`

	Monitoring struct {
		Enabled    bool   `yaml:"enabled"`
		Listen     string `yaml:"listen"`
		AdminToken string `yaml:"admin_token"`
	} `yaml:"monitoring"`

	History struct {
		Enabled    bool   `yaml:"enabled"`
		SQLiteFile string `yaml:"sqlite_file"`
	} `yaml:"history"`
}

// LoadConfig reads, defaults and validates the YAML config at configPath.
func LoadConfig(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("read config file: %v", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("parse config file: %v", err)
	}

	setDefaults(&config)

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("validate config: %v", err)
	}

	return &config, nil
}

func setDefaults(config *Config) {
	if config.App.Name == "" {
		config.App.Name = "blocksync"
	}

	if config.Blocklist.MaxAgeHours == 0 {
		config.Blocklist.MaxAgeHours = 2.0
	}
	if config.Blocklist.RuleComment == "" {
		config.Blocklist.RuleComment = "ADBlock"
	}
	if config.Blocklist.FetchTimeout == 0 {
		config.Blocklist.FetchTimeout = 15
	}

	if config.Daemon.Interval == 0 {
		config.Daemon.Interval = 6 * 3600
	}

	if config.Logging.Level == "" {
		config.Logging.Level = "info"
	}
	if config.Logging.Format == "" {
		config.Logging.Format = "text"
	}
	if config.Logging.Output == "" {
		config.Logging.Output = "stdout"
	}

	if config.Monitoring.Listen == "" {
		config.Monitoring.Listen = ":8088"
	}

	for i := range config.Devices {
		if config.Devices[i].LoginMethod == "" {
			config.Devices[i].LoginMethod = "plain"
		}
		if config.Devices[i].Name == "" {
			config.Devices[i].Name = config.Devices[i].Address
		}
	}
}

func validateConfig(config *Config) error {
	if len(config.Devices) == 0 {
		return fmt.Errorf("at least one device must be configured")
	}
	for _, dev := range config.Devices {
		if dev.Address == "" {
			return fmt.Errorf("device %q: address is required", dev.Name)
		}
		if dev.Username == "" {
			return fmt.Errorf("device %q: username is required", dev.Name)
		}
		if dev.LoginMethod != "plain" && dev.LoginMethod != "token" {
			return fmt.Errorf("device %q: unsupported login method %q", dev.Name, dev.LoginMethod)
		}
	}

	if config.Blocklist.SourcesFile == "" {
		return fmt.Errorf("blocklist sources file is required")
	}
	if config.Blocklist.CacheFile == "" {
		return fmt.Errorf("blocklist cache file is required")
	}
	if config.Blocklist.RedirectIP == "" {
		return fmt.Errorf("redirect IP is required")
	}
	if !utils.IsValidIP(config.Blocklist.RedirectIP) {
		return fmt.Errorf("invalid redirect IP: %s", config.Blocklist.RedirectIP)
	}
	if config.Blocklist.MaxAgeHours < 0 {
		return fmt.Errorf("max_age_hours must not be negative")
	}

	return nil
}

// GetFetchTimeout returns the per-source HTTP timeout.
func (c *Config) GetFetchTimeout() time.Duration {
	if c.Blocklist.FetchTimeout <= 0 {
		return 15 * time.Second
	}
	return time.Duration(c.Blocklist.FetchTimeout) * time.Second
}

// GetDaemonInterval returns the pause between daemon-mode runs.
func (c *Config) GetDaemonInterval() time.Duration {
	if c.Daemon.Interval <= 0 {
		return 6 * time.Hour
	}
	return time.Duration(c.Daemon.Interval) * time.Second
}

// IsDebug reports whether debug mode is enabled.
func (c *Config) IsDebug() bool {
	return c.App.Debug
}
