package util

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/adhocore/gronx"
	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const Name = "stegofed"
const ConfigFileName = "config.yaml"

//go:embed config_default.yaml
var embeddedConfig []byte

type AppConfig struct {
	Conf struct {
		Host                      string
		HttpPort                  int           `yaml:"httpPort"`
		SslDomain                 string        `yaml:"sslDomain"`
		WithAp                    bool          `yaml:"withAp"`
		DatabasePath              string        `yaml:"databasePath"`
		LogLevel                  string        `yaml:"logLevel"`
		ApplicationUser           string        `yaml:"applicationUser"`
		AllowIncomingInteractions bool          `yaml:"allowIncomingInteractions"`
		EnableReposts             bool          `yaml:"enableReposts"`
		BlockedDomains            []string      `yaml:"blockedDomains"`
		BlockedKeywords           []string      `yaml:"blockedKeywords"`
		FetchTimeout              time.Duration `yaml:"fetchTimeout"`
		JanitorCron               string        `yaml:"janitorCron"`
		ActivityRetentionDays     int           `yaml:"activityRetentionDays"`
	}
}

// ActivityRetention is how long processed activities stay in the log.
func (c *AppConfig) ActivityRetention() time.Duration {
	return time.Duration(c.Conf.ActivityRetentionDays) * 24 * time.Hour
}

func ReadConf() (*AppConfig, error) {

	c := &AppConfig{}

	// .env is optional
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("in .env file: %w", err)
	}

	// Try to resolve config file path (local first, then user dir)
	configPath := ResolveFilePath(ConfigFileName)

	buf, err := os.ReadFile(configPath)
	if err != nil {
		// If file doesn't exist, use embedded config and create user config file
		log.Info("Config file not found, using embedded defaults", "path", configPath)
		buf = embeddedConfig

		if configDir, dirErr := GetConfigDir(); dirErr == nil {
			userConfigPath := filepath.Join(configDir, ConfigFileName)
			if writeErr := os.WriteFile(userConfigPath, embeddedConfig, 0644); writeErr != nil {
				log.Warn("Could not write default config", "path", userConfigPath, "err", writeErr)
			} else {
				log.Info("Created default config file", "path", userConfigPath)
			}
		}
	}

	if err := yaml.Unmarshal(buf, c); err != nil {
		return nil, fmt.Errorf("in config file: %w", err)
	}
	if err := c.applyEnv(); err != nil {
		return nil, err
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *AppConfig) applyEnv() error {
	str := func(name string, dst *string) {
		if v := os.Getenv(name); v != "" {
			*dst = v
		}
	}
	list := func(name string, dst *[]string) {
		if v := os.Getenv(name); v != "" {
			*dst = splitList(v)
		}
	}
	boolean := func(name string, dst *bool) error {
		v := os.Getenv(name)
		if v == "" {
			return nil
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
		*dst = b
		return nil
	}
	integer := func(name string, dst *int) error {
		v := os.Getenv(name)
		if v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
		*dst = n
		return nil
	}

	str("STEGOFED_HOST", &c.Conf.Host)
	str("STEGOFED_SSLDOMAIN", &c.Conf.SslDomain)
	str("STEGOFED_DATABASE_PATH", &c.Conf.DatabasePath)
	str("STEGOFED_LOG_LEVEL", &c.Conf.LogLevel)
	str("STEGOFED_APPLICATION_USER", &c.Conf.ApplicationUser)
	str("STEGOFED_JANITOR_CRON", &c.Conf.JanitorCron)
	list("STEGOFED_BLOCKED_DOMAINS", &c.Conf.BlockedDomains)
	list("STEGOFED_BLOCKED_KEYWORDS", &c.Conf.BlockedKeywords)

	if v := os.Getenv("STEGOFED_FETCH_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid STEGOFED_FETCH_TIMEOUT: %w", err)
		}
		c.Conf.FetchTimeout = d
	}

	return errors.Join(
		integer("STEGOFED_HTTPPORT", &c.Conf.HttpPort),
		integer("STEGOFED_ACTIVITY_RETENTION_DAYS", &c.Conf.ActivityRetentionDays),
		boolean("STEGOFED_WITH_AP", &c.Conf.WithAp),
		boolean("STEGOFED_ALLOW_INTERACTIONS", &c.Conf.AllowIncomingInteractions),
		boolean("STEGOFED_ENABLE_REPOSTS", &c.Conf.EnableReposts),
	)
}

func (c *AppConfig) validate() error {
	if c.Conf.SslDomain == "" {
		return errors.New("sslDomain must be set")
	}
	if c.Conf.ApplicationUser == "" {
		return errors.New("applicationUser must be set")
	}
	if c.Conf.JanitorCron != "" && !gronx.IsValid(c.Conf.JanitorCron) {
		return fmt.Errorf("invalid janitorCron %q", c.Conf.JanitorCron)
	}
	if c.Conf.ActivityRetentionDays < 0 {
		return fmt.Errorf("activityRetentionDays must not be negative, got %d", c.Conf.ActivityRetentionDays)
	}
	if _, err := log.ParseLevel(c.Conf.LogLevel); c.Conf.LogLevel != "" && err != nil {
		return fmt.Errorf("invalid logLevel: %w", err)
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
