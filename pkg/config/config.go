// pkg/config/config.go - configuration settings for the shop client.

package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// ConfigFileName is the default name of the configuration file inside AppDir.
const ConfigFileName = "config.yaml"

// Configuration holds the durable shop settings, including the remembered selection.
type Configuration struct {
	ShopURL           string   `yaml:"ShopURL" toml:"ShopURL"`
	ShopUser          string   `yaml:"ShopUser" toml:"ShopUser"`
	ShopPass          string   `yaml:"ShopPass" toml:"ShopPass"`
	RememberSelection bool     `yaml:"RememberSelection" toml:"RememberSelection"`
	Selection         []string `yaml:"Selection,omitempty" toml:"Selection,omitempty"`

	OverClock     bool `yaml:"OverClock" toml:"OverClock"`         // raise clocks while installing
	IgnoreReqVers bool `yaml:"IgnoreReqVers" toml:"IgnoreReqVers"` // passed through to the install engine
	SoundEnabled  bool `yaml:"SoundEnabled" toml:"SoundEnabled"`

	AppDir        string `yaml:"AppDir" toml:"AppDir"`
	CachePath     string `yaml:"CachePath" toml:"CachePath"`
	IconCachePath string `yaml:"IconCachePath" toml:"IconCachePath"`
	RegistryPath  string `yaml:"RegistryPath" toml:"RegistryPath"`
	InstallPath   string `yaml:"InstallPath" toml:"InstallPath"`

	LogLevel string `yaml:"LogLevel" toml:"LogLevel"`
	Debug    bool   `yaml:"Debug" toml:"Debug"`

	// Path is the file the configuration was loaded from and is saved back to.
	Path string `yaml:"-" toml:"-"`
}

// envOverrides are applied on top of the file contents when set.
type envOverrides struct {
	ShopURL  string `envconfig:"SHOP_URL"`
	ShopUser string `envconfig:"SHOP_USER"`
	ShopPass string `envconfig:"SHOP_PASS"`
	AppDir   string `envconfig:"SHOP_APP_DIR"`
	LogLevel string `envconfig:"SHOP_LOG_LEVEL"`
}

// DefaultAppDir returns the per-user directory holding config, caches and logs.
func DefaultAppDir() string {
	dir, err := os.UserConfigDir()
	if err != nil || dir == "" {
		dir = "."
	}
	return filepath.Join(dir, "cimianshop")
}

// DefaultConfigPath returns the location LoadConfig uses when given an empty path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultAppDir(), ConfigFileName)
}

// GetDefaultConfig provides default configuration values.
func GetDefaultConfig() *Configuration {
	cfg := &Configuration{
		RememberSelection: true,
		OverClock:         false,
		IgnoreReqVers:     true,
		SoundEnabled:      true,
		AppDir:            DefaultAppDir(),
		LogLevel:          "INFO",
	}
	cfg.setDefaultPaths()
	return cfg
}

// LoadConfig loads the configuration from a YAML or TOML file.
// A missing file yields the defaults so a first run can prompt for the shop URL.
func LoadConfig(path string) (*Configuration, error) {
	if path == "" {
		path = DefaultConfigPath()
	}

	// Paths default relative to the config file unless set explicitly.
	cfg := GetDefaultConfig()
	cfg.AppDir, cfg.CachePath, cfg.IconCachePath, cfg.RegistryPath, cfg.InstallPath = "", "", "", "", ""

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		log.Printf("Configuration file does not exist, using defaults: %s", path)
	case err != nil:
		return nil, fmt.Errorf("failed to read configuration file: %w", err)
	default:
		if err := unmarshal(path, data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse configuration file %s: %w", path, err)
		}
	}
	cfg.Path = path

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if cfg.AppDir == "" {
		cfg.AppDir = filepath.Dir(path)
	}
	cfg.setDefaultPaths()

	for _, dir := range []string{cfg.AppDir, cfg.CachePath, cfg.IconCachePath} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating directory %s: %w", dir, err)
		}
	}

	return cfg, nil
}

// SaveConfig writes the configuration back to cfg.Path (or the default path).
func SaveConfig(cfg *Configuration) error {
	path := cfg.Path
	if path == "" {
		path = DefaultConfigPath()
	}

	data, err := marshal(path, cfg)
	if err != nil {
		log.Printf("Failed to serialize configuration: %v", err)
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		log.Printf("Failed to create configuration directory: %v", err)
		return err
	}

	// Credentials live in this file.
	if err := os.WriteFile(path, data, 0600); err != nil {
		log.Printf("Failed to write configuration file: %v", err)
		return err
	}

	return nil
}

func (c *Configuration) setDefaultPaths() {
	if c.AppDir == "" {
		return
	}
	if c.CachePath == "" {
		c.CachePath = filepath.Join(c.AppDir, "cache")
	}
	if c.IconCachePath == "" {
		c.IconCachePath = filepath.Join(c.AppDir, "shop_icons")
	}
	if c.RegistryPath == "" {
		c.RegistryPath = filepath.Join(c.AppDir, "registry.db")
	}
	if c.InstallPath == "" {
		c.InstallPath = filepath.Join(c.AppDir, "installed")
	}
}

func (c *Configuration) applyEnv() error {
	var env envOverrides
	if err := envconfig.Process("", &env); err != nil {
		return fmt.Errorf("failed to read environment overrides: %w", err)
	}
	if env.ShopURL != "" {
		c.ShopURL = env.ShopURL
	}
	if env.ShopUser != "" {
		c.ShopUser = env.ShopUser
	}
	if env.ShopPass != "" {
		c.ShopPass = env.ShopPass
	}
	if env.AppDir != "" {
		c.AppDir = env.AppDir
	}
	if env.LogLevel != "" {
		c.LogLevel = env.LogLevel
	}
	return nil
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}

func unmarshal(path string, data []byte, cfg *Configuration) error {
	if isTOML(path) {
		return toml.Unmarshal(data, cfg)
	}
	return yaml.Unmarshal(data, cfg)
}

func marshal(path string, cfg *Configuration) ([]byte, error) {
	if isTOML(path) {
		return toml.Marshal(cfg)
	}
	return yaml.Marshal(cfg)
}
