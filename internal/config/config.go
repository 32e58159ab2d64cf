package config

import (
	"os"
	"strings"
	"time"

	"codeberg.org/mutker/hwcontrol/internal/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DefaultLogLevel    = "info"
	DefaultInterval    = time.Second
	DefaultHistorySpan = 100
	DefaultStateFile   = "appstate.json"
	DefaultHistoryDB   = "/var/lib/hwcontrol/history.db"

	defaultEnvPrefix  = "HWCONTROL"
	defaultConfigName = "hwcontrol"
	defaultConfigDir  = "/etc"
)

type Config struct {
	LogLevel    string         `mapstructure:"log_level"`
	Interval    time.Duration  `mapstructure:"interval"`
	HistorySpan int            `mapstructure:"history_span"`
	StateFile   string         `mapstructure:"state_file"`
	Monitor     bool           `mapstructure:"monitor"`
	Listen      string         `mapstructure:"listen"`
	Hardware    HardwareConfig `mapstructure:"hardware"`
	History     HistoryConfig  `mapstructure:"history"`
}

// HardwareConfig holds the category flags handed to the computer.
type HardwareConfig struct {
	CPU         bool `mapstructure:"cpu"`
	GPU         bool `mapstructure:"gpu"`
	Memory      bool `mapstructure:"memory"`
	Motherboard bool `mapstructure:"motherboard"`
	Controller  bool `mapstructure:"controller"`
}

type HistoryConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	DBPath       string        `mapstructure:"db_path"`
	BatchSize    int           `mapstructure:"batch_size"`
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
}

// flag name -> config key
var flagKeys = map[string]string{
	"log-level":    "log_level",
	"interval":     "interval",
	"history-span": "history_span",
	"state-file":   "state_file",
	"monitor":      "monitor",
	"listen":       "listen",
	"cpu":          "hardware.cpu",
	"gpu":          "hardware.gpu",
	"memory":       "hardware.memory",
	"motherboard":  "hardware.motherboard",
	"controller":   "hardware.controller",
	"history":      "history.enabled",
	"history-db":   "history.db_path",
}

// RegisterFlags attaches the command-line flags understood by Load.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "Path to a TOML configuration file")
	fs.String("log-level", DefaultLogLevel, "Log level (debug, info, warn, error)")
	fs.Duration("interval", DefaultInterval, "Global tick period for sensor refresh and control evaluation")
	fs.Int("history-span", DefaultHistorySpan, "Number of samples kept per sensor")
	fs.String("state-file", DefaultStateFile, "Path of the persisted control settings")
	fs.Bool("monitor", false, "Only monitor: evaluate control policies without writing to hardware")
	fs.String("listen", "", "Address for the metrics and status API, empty disables it")
	fs.Bool("cpu", true, "Enable CPU hardware")
	fs.Bool("gpu", true, "Enable GPU hardware")
	fs.Bool("memory", true, "Enable memory hardware")
	fs.Bool("motherboard", true, "Enable motherboard hardware")
	fs.Bool("controller", true, "Enable fan controllers")
	fs.Bool("history", false, "Record sensor history to SQLite")
	fs.String("history-db", DefaultHistoryDB, "Path of the sensor history database")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", DefaultLogLevel)
	v.SetDefault("interval", DefaultInterval)
	v.SetDefault("history_span", DefaultHistorySpan)
	v.SetDefault("state_file", DefaultStateFile)
	v.SetDefault("monitor", false)
	v.SetDefault("listen", "")
	v.SetDefault("hardware.cpu", true)
	v.SetDefault("hardware.gpu", true)
	v.SetDefault("hardware.memory", true)
	v.SetDefault("hardware.motherboard", true)
	v.SetDefault("hardware.controller", true)
	v.SetDefault("history.enabled", false)
	v.SetDefault("history.db_path", DefaultHistoryDB)
	v.SetDefault("history.batch_size", 100)
	v.SetDefault("history.batch_timeout", 10*time.Second)
}

// Load reads defaults, the TOML file, HWCONTROL_* environment variables and
// finally the flags in fs, later sources winning. fs may be nil.
func Load(fs *pflag.FlagSet, opts ...Option) (*Config, error) {
	errFactory := errors.New()

	o := options{envPrefix: defaultEnvPrefix}
	for _, opt := range opts {
		if err := opt(&o); err != nil {
			return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
		}
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(o.envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	path := o.configPath
	if path == "" && fs != nil {
		if f := fs.Lookup("config"); f != nil {
			path = f.Value.String()
		}
	}
	if path == "" {
		path = os.Getenv(o.envPrefix + "_CONFIG")
	}

	v.SetConfigType("toml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(defaultConfigName)
		v.AddConfigPath(defaultConfigDir)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, errFactory.Wrap(errors.ErrReadConfig, err)
		}
	}

	if fs != nil {
		for name, key := range flagKeys {
			f := fs.Lookup(name)
			if f == nil {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return nil, errFactory.Wrap(errors.ErrBindFlags, err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	errFactory := errors.New()

	if !LogLevel(strings.ToLower(c.LogLevel)).IsValid() {
		return errFactory.WithData(errors.ErrInvalidLogLevel, c.LogLevel)
	}
	if c.Interval <= 0 {
		return errFactory.WithData(errors.ErrInvalidInterval, c.Interval.String())
	}
	if c.HistorySpan <= 0 {
		return errFactory.WithData(errors.ErrInvalidConfig, "history_span must be positive")
	}
	if c.StateFile == "" {
		return errFactory.WithData(errors.ErrInvalidConfig, "state_file must not be empty")
	}
	if c.History.Enabled && c.History.DBPath == "" {
		return errFactory.WithData(errors.ErrInvalidConfig, "history.db_path must not be empty")
	}

	return nil
}
