package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. PRESENCE_SERVER_PORT.
const EnvPrefix = "PRESENCE"

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Bridge   BridgeConfig   `yaml:"bridge"`
	Database DatabaseConfig `yaml:"database"`
	Discord  DiscordConfig  `yaml:"discord"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type ServerConfig struct {
	Host         string        `yaml:"host" split_words:"true"`
	Port         int           `yaml:"port" split_words:"true"`
	ReadTimeout  time.Duration `yaml:"read_timeout" split_words:"true"`
	WriteTimeout time.Duration `yaml:"write_timeout" split_words:"true"`
}

type BridgeConfig struct {
	HostName          string        `yaml:"host_name" split_words:"true"`
	KeepaliveInterval time.Duration `yaml:"keepalive_interval" split_words:"true"`
	ReconnectDelay    time.Duration `yaml:"reconnect_delay" split_words:"true"`
	ManifestDirs      []string      `yaml:"manifest_dirs" split_words:"true"`
	ExtensionOrigin   string        `yaml:"extension_origin" split_words:"true"`
	PagePattern       string        `yaml:"page_pattern" split_words:"true"`
	QueueSize         int           `yaml:"queue_size" split_words:"true"`
}

type DatabaseConfig struct {
	Path string `yaml:"path" split_words:"true"`
}

type DiscordConfig struct {
	ClientID       string        `yaml:"client_id" split_words:"true"`
	PipePath       string        `yaml:"pipe_path" split_words:"true"` // empty = discover
	UpdateInterval time.Duration `yaml:"update_interval" split_words:"true"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" split_words:"true"`
	Pretty bool   `yaml:"pretty" split_words:"true"`
}

func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "127.0.0.1",
			Port:         8765,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 0,
		},
		Bridge: BridgeConfig{
			HostName:          "com.animepresence.discord",
			KeepaliveInterval: 25 * time.Second,
			ReconnectDelay:    5 * time.Second,
			ManifestDirs:      defaultManifestDirs(),
			PagePattern:       "*://*.crunchyroll.com/*",
			QueueSize:         32,
		},
		Database: DatabaseConfig{
			Path: "data/presence.db",
		},
		Discord: DiscordConfig{
			UpdateInterval: 2 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Pretty: true,
		},
	}
}

// Load builds defaults, overlays the YAML file at path (if any) and then the
// PRESENCE_* environment.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse %s: %w", path, err)
			}
		case !os.IsNotExist(err):
			return nil, err
		}
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("environment: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func validate(cfg *Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", cfg.Server.Port)
	}
	if cfg.Bridge.HostName == "" {
		return errors.New("bridge.host_name is required")
	}
	if cfg.Bridge.KeepaliveInterval <= 0 {
		return errors.New("bridge.keepalive_interval must be positive")
	}
	if cfg.Bridge.ReconnectDelay <= 0 {
		return errors.New("bridge.reconnect_delay must be positive")
	}
	if cfg.Bridge.PagePattern == "" {
		return errors.New("bridge.page_pattern is required")
	}
	if cfg.Database.Path == "" {
		return errors.New("database.path is required")
	}
	if cfg.Discord.UpdateInterval < 0 {
		return errors.New("discord.update_interval must not be negative")
	}
	return nil
}

func defaultManifestDirs() []string {
	dirs := []string{}
	if home, err := os.UserConfigDir(); err == nil {
		dirs = append(dirs,
			filepath.Join(home, "google-chrome", "NativeMessagingHosts"),
			filepath.Join(home, "chromium", "NativeMessagingHosts"),
			filepath.Join(home, "BraveSoftware", "Brave-Browser", "NativeMessagingHosts"),
		)
	}
	return append(dirs, "/etc/opt/chrome/native-messaging-hosts", "/etc/chromium/native-messaging-hosts")
}
