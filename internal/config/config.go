package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	Mode       string        `mapstructure:"mode"`
	Port       int           `mapstructure:"port"`
	StaticPath string        `mapstructure:"static_path"`
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	PongWait   time.Duration `mapstructure:"pong_wait"`
	WriteWait  time.Duration `mapstructure:"write_wait"`
	SendBuffer int           `mapstructure:"send_buffer"`
	Secret     string        `mapstructure:"secret"`

	// FallbackRoom is used when a node joins without a room token.
	FallbackRoom string `mapstructure:"fallback_room"`
	VaultDir     string `mapstructure:"vault_dir"`
	DBPath       string `mapstructure:"db_path"`
	Backpressure string `mapstructure:"backpressure"`

	LogLevel      string        `mapstructure:"log_level"`
	LogFormat     string        `mapstructure:"log_format"`
	LogRate       int           `mapstructure:"log_rate"`
	LogRateWindow time.Duration `mapstructure:"log_rate_window"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	// Frames are data URIs; 320x240 JPEGs at q=0.3 stay well under this.
	v.SetDefault("read_limit", 2<<20)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("pong_wait", "60s")
	v.SetDefault("write_wait", "5s")
	v.SetDefault("send_buffer", 64)
	v.SetDefault("secret", "guardian-dev-secret")
	v.SetDefault("fallback_room", "8660AC2E")
	v.SetDefault("vault_dir", "./database/vault")
	v.SetDefault("db_path", "./database/guardian.db")
	v.SetDefault("backpressure", "drop")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "console")
	v.SetDefault("log_rate", 20)
	v.SetDefault("log_rate_window", "1s")
}

// Flags registers the command line overrides understood by Load.
func Flags(fs *pflag.FlagSet) {
	fs.String("config", "", "path to a config file (default config/config.$CONFIG_ENV.yaml)")
	fs.Int("port", 0, "listen port")
	fs.String("log-level", "", "log level (debug, info, warn, error)")
	fs.String("mode", "", "gin mode (debug, release)")
}

// Load reads defaults, the per-environment yaml file, GUARDIAN_* environment
// variables and finally any flags set on fs (fs may be nil).
func Load(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)

	v.SetEnvPrefix("guardian")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	if fs != nil {
		if f := fs.Lookup("config"); f != nil && f.Changed {
			fileName = f.Value.String()
		}
		bindFlag(v, fs, "port", "port")
		bindFlag(v, fs, "log_level", "log-level")
		bindFlag(v, fs, "mode", "mode")
	}

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	log.Info().
		Str("module", "config").
		Str("mode", cfg.Mode).
		Int("port", cfg.Port).
		Str("fallback_room", cfg.FallbackRoom).
		Str("backpressure", cfg.Backpressure).
		Msg("config ready")
	return &cfg, nil
}

// bindFlag only binds flags the user actually set, so a zero flag default
// never shadows the yaml value.
func bindFlag(v *viper.Viper, fs *pflag.FlagSet, key, name string) {
	f := fs.Lookup(name)
	if f == nil || !f.Changed {
		return
	}
	_ = v.BindPFlag(key, f)
}

func (c *Config) validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if strings.TrimSpace(c.FallbackRoom) == "" {
		return fmt.Errorf("fallback_room must not be empty")
	}
	if c.SendBuffer <= 0 {
		return fmt.Errorf("send_buffer must be positive, got %d", c.SendBuffer)
	}
	switch c.Backpressure {
	case "drop", "kick":
	default:
		return fmt.Errorf("unknown backpressure policy %q", c.Backpressure)
	}
	return nil
}
