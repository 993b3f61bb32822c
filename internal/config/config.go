package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/alexflint/go-arg"
	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

const (
	EngineYtdlp  = "ytdlp"
	EngineNative = "native"

	maxParallelLimit = 16
)

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

type DownloadConfig struct {
	Folder         string `mapstructure:"folder"`
	DefaultFolder  string `mapstructure:"default_folder"`
	Format         string `mapstructure:"format"`
	OutputTemplate string `mapstructure:"output_template"`
	Engine         string `mapstructure:"engine"`
	YtdlpPath      string `mapstructure:"ytdlp_path"`
	MaxParallel    int    `mapstructure:"max_parallel"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

type LogConfig struct {
	Level     string `mapstructure:"level"`
	File      string `mapstructure:"file"`
	MaxSizeMB int    `mapstructure:"max_size_mb"`
}

type TelegramConfig struct {
	Token        string  `mapstructure:"token"`
	NotifyChatID int64   `mapstructure:"notify_chat_id"`
	AllowedUsers []int64 `mapstructure:"allowed_users"`
	Folder       string  `mapstructure:"folder"`
}

type RateLimitConfig struct {
	RPS   float64 `mapstructure:"rps"`
	Burst int     `mapstructure:"burst"`
}

type CacheConfig struct {
	TreeTTL time.Duration `mapstructure:"tree_ttl"`
}

// Config is the full application configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Download  DownloadConfig  `mapstructure:"download"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Log       LogConfig       `mapstructure:"log"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Cache     CacheConfig     `mapstructure:"cache"`
}

// Args holds command line flags parsed by go-arg.
type Args struct {
	Config       string `arg:"-c,--config" help:"path to a config file (yaml, json or toml)"`
	Addr         string `arg:"--addr" help:"listen address, overrides server.addr"`
	LogLevel     string `arg:"--log-level" help:"debug, info, warn or error; overrides log.level"`
	InstallYtdlp bool   `arg:"--install-ytdlp" help:"download the yt-dlp executable when it is not on PATH"`
}

func (Args) Description() string {
	return "tubegrab - submit video URLs from the browser and let yt-dlp do the rest"
}

// ParseArgs parses command line flags, exiting on --help or bad input.
func ParseArgs() *Args {
	var args Args
	arg.MustParse(&args)
	return &args
}

// Loader reads configuration from defaults, an optional file and the
// environment.
type Loader struct {
	v *viper.Viper
}

// NewLoader prepares viper and reads path when it is not empty.
func NewLoader(path string) (*Loader, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// names used by earlier deployments
	if err := v.BindEnv("database.path", "DATABASE_PATH", "DB_PATH"); err != nil {
		return nil, fmt.Errorf("failed to bind env: %w", err)
	}
	if err := v.BindEnv("telegram.token", "TELEGRAM_TOKEN", "TELEGRAM_BOT_TOKEN"); err != nil {
		return nil, fmt.Errorf("failed to bind env: %w", err)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	return &Loader{v: v}, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":5000")

	v.SetDefault("download.folder", "downloads")
	v.SetDefault("download.default_folder", "default")
	v.SetDefault("download.format", "bestvideo+bestaudio/best")
	v.SetDefault("download.output_template", "%(title)s.%(ext)s")
	v.SetDefault("download.engine", EngineYtdlp)
	v.SetDefault("download.ytdlp_path", "")
	v.SetDefault("download.max_parallel", 3)

	v.SetDefault("database.path", "data/downloads.db")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 10)

	v.SetDefault("telegram.token", "")
	v.SetDefault("telegram.notify_chat_id", 0)
	v.SetDefault("telegram.allowed_users", []int64{})
	v.SetDefault("telegram.folder", "telegram")

	v.SetDefault("ratelimit.rps", 2.0)
	v.SetDefault("ratelimit.burst", 5)

	v.SetDefault("cache.tree_ttl", 30*time.Second)
}

// ApplyArgs lets command line flags win over file and environment values.
func (l *Loader) ApplyArgs(args *Args) {
	if args == nil {
		return
	}
	if args.Addr != "" {
		l.v.Set("server.addr", args.Addr)
	}
	if args.LogLevel != "" {
		l.v.Set("log.level", args.LogLevel)
	}
}

// Config decodes and validates the current settings.
func (l *Loader) Config() (*Config, error) {
	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Watch reloads the config file on change and hands the new config to fn.
// It does nothing when no file was loaded.
func (l *Loader) Watch(fn func(*Config)) {
	if l.v.ConfigFileUsed() == "" {
		return
	}

	l.v.OnConfigChange(func(e fsnotify.Event) {
		cfg, err := l.Config()
		if err != nil {
			log.WithError(err).WithField("file", e.Name).Warn("Ignoring invalid config change")
			return
		}
		log.WithField("file", e.Name).Info("Config reloaded")
		fn(cfg)
	})
	l.v.WatchConfig()
}

func (c *Config) normalize() error {
	c.Download.Engine = strings.ToLower(strings.TrimSpace(c.Download.Engine))
	switch c.Download.Engine {
	case EngineYtdlp, EngineNative:
	case "yt-dlp":
		c.Download.Engine = EngineYtdlp
	default:
		return fmt.Errorf("unknown download engine %q (want %s or %s)", c.Download.Engine, EngineYtdlp, EngineNative)
	}

	if c.Download.MaxParallel < 0 {
		c.Download.MaxParallel = 0
	}
	if c.Download.MaxParallel > maxParallelLimit {
		c.Download.MaxParallel = maxParallelLimit
	}

	if strings.TrimSpace(c.Download.Folder) == "" {
		c.Download.Folder = "downloads"
	}
	if strings.TrimSpace(c.Download.DefaultFolder) == "" {
		c.Download.DefaultFolder = "default"
	}
	if strings.TrimSpace(c.Telegram.Folder) == "" {
		c.Telegram.Folder = "telegram"
	}
	if c.Log.MaxSizeMB <= 0 {
		c.Log.MaxSizeMB = 10
	}
	if c.RateLimit.Burst < 1 {
		c.RateLimit.Burst = 1
	}
	return nil
}

// TelegramEnabled reports whether a bot token is configured
func (c *Config) TelegramEnabled() bool {
	return c.Telegram.Token != ""
}
