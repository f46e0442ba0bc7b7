package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type ServerConfig struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	AdminToken string `yaml:"admin_token"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type ReportsConfig struct {
	Directory string `yaml:"directory"`
	FontPath  string `yaml:"font_path"`
}

type PageSpeedConfig struct {
	BaseURL        string `yaml:"base_url"`
	APIKey         string `yaml:"api_key"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

type HeaderScanConfig struct {
	BaseURL             string `yaml:"base_url"`
	PollIntervalSeconds int    `yaml:"poll_interval_seconds"`
	MaxPolls            int    `yaml:"max_polls"`
	TimeoutSeconds      int    `yaml:"timeout_seconds"`
}

type HTTPSCheckConfig struct {
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

type AuditConfig struct {
	Workers          int `yaml:"workers"`
	DedupWindowHours int `yaml:"dedup_window_hours"`
}

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Reports    ReportsConfig    `yaml:"reports"`
	PageSpeed  PageSpeedConfig  `yaml:"pagespeed"`
	HeaderScan HeaderScanConfig `yaml:"headerscan"`
	HTTPSCheck HTTPSCheckConfig `yaml:"httpscheck"`
	Audit      AuditConfig      `yaml:"audit"`
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 8080,
		},
		Database: DatabaseConfig{
			Path: "siteaudit.db",
		},
		Reports: ReportsConfig{
			Directory: "./reports",
			FontPath:  "./assets/fonts/DejaVuSans.ttf",
		},
		PageSpeed: PageSpeedConfig{
			BaseURL:        "https://www.googleapis.com/pagespeedonline/v5/runPagespeed",
			TimeoutSeconds: 45,
		},
		HeaderScan: HeaderScanConfig{
			BaseURL:             "https://http-observatory.security.mozilla.org/api/v1",
			PollIntervalSeconds: 2,
			MaxPolls:            10,
			TimeoutSeconds:      30,
		},
		HTTPSCheck: HTTPSCheckConfig{
			TimeoutSeconds: 10,
		},
		Audit: AuditConfig{
			Workers:          4,
			DedupWindowHours: 24,
		},
	}
}

func Load(path string) (*Config, error) {
	cfg := defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnv()
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.applyEnv()
	return cfg, nil
}

// applyEnv lets secrets come from the environment (or a .env file loaded in
// main) instead of the config file.
func (c *Config) applyEnv() {
	if v := os.Getenv("SITEAUDIT_PAGESPEED_API_KEY"); v != "" {
		c.PageSpeed.APIKey = v
	}
	if v := os.Getenv("SITEAUDIT_ADMIN_TOKEN"); v != "" {
		c.Server.AdminToken = v
	}
}
