package driver

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"hive/interp-go/pkg/interp"
)

// EnvPrefix prefixes every environment override, e.g. HIVE_LOG_LEVEL.
const EnvPrefix = "HIVE"

// Config is the host configuration of the hive tool.
type Config struct {
	Log      LogConfig     `mapstructure:"log"`
	Limits   LimitsConfig  `mapstructure:"limits"`
	Service  ServiceConfig `mapstructure:"service"`
	Manifest string        `mapstructure:"manifest"`
	Watch    bool          `mapstructure:"watch"`
	Workdir  string        `mapstructure:"workdir"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	FilePath   string `mapstructure:"file_path"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
	Caller     bool   `mapstructure:"caller"`
}

// LimitsConfig seeds the limits of every interpreter in the tree.
type LimitsConfig struct {
	Timeout        time.Duration `mapstructure:"timeout"`
	FinallyTimeout time.Duration `mapstructure:"finally_timeout"`
	ReadyLimit     int           `mapstructure:"ready_limit"`
	RecursionLimit int           `mapstructure:"recursion_limit"`
	SleepTime      time.Duration `mapstructure:"sleep_time"`
	ResultLimit    int           `mapstructure:"result_limit"`
}

func (l LimitsConfig) Limits() interp.Limits {
	return interp.Limits{
		Timeout:        l.Timeout,
		FinallyTimeout: l.FinallyTimeout,
		ReadyLimit:     l.ReadyLimit,
		RecursionLimit: l.RecursionLimit,
		SleepTime:      l.SleepTime,
		ResultLimit:    l.ResultLimit,
	}
}

type ServiceConfig struct {
	Dedicated   bool `mapstructure:"dedicated"`
	Wait        bool `mapstructure:"wait"`
	Limit       int  `mapstructure:"limit"`
	StopOnError bool `mapstructure:"stop_on_error"`
}

// Options converts the service section into loop options.
func (s ServiceConfig) Options() interp.ServiceOptions {
	opts := interp.DefaultServiceOptions()
	if s.Wait {
		opts.EventFlags |= interp.EventWait
	}
	opts.Limit = s.Limit
	opts.StopOnError = s.StopOnError
	return opts
}

// Loader reads Config from an optional YAML file, HIVE_* environment
// variables and whatever flags were bound into its viper instance.
type Loader struct {
	path  string
	viper *viper.Viper
}

func NewLoader(path string) *Loader {
	return &Loader{path: path, viper: viper.New()}
}

// SetPath points the loader at an explicit config file.
func (l *Loader) SetPath(path string) { l.path = path }

// Viper exposes the underlying instance so command-line flags can be bound.
func (l *Loader) Viper() *viper.Viper { return l.viper }

func (l *Loader) Load() (*Config, error) {
	v := l.viper
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := l.readConfigFile(); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

func (l *Loader) readConfigFile() error {
	v := l.viper
	if l.path != "" {
		v.SetConfigFile(l.path)
		return v.ReadInConfig()
	}
	v.SetConfigName("hive")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return err
	}
	return nil
}

// ConfigFile is the file the configuration was read from, if any.
func (l *Loader) ConfigFile() string {
	return l.viper.ConfigFileUsed()
}

func setDefaults(v *viper.Viper) {
	defaults := interp.DefaultLimits()
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.output", "stderr")
	v.SetDefault("log.max_size", 100)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age", 28)
	v.SetDefault("log.compress", false)
	v.SetDefault("log.caller", false)

	v.SetDefault("limits.timeout", defaults.Timeout)
	v.SetDefault("limits.finally_timeout", defaults.FinallyTimeout)
	v.SetDefault("limits.ready_limit", defaults.ReadyLimit)
	v.SetDefault("limits.recursion_limit", defaults.RecursionLimit)
	v.SetDefault("limits.sleep_time", defaults.SleepTime)
	v.SetDefault("limits.result_limit", defaults.ResultLimit)

	v.SetDefault("service.dedicated", false)
	v.SetDefault("service.wait", true)
	v.SetDefault("service.limit", 0)
	v.SetDefault("service.stop_on_error", true)

	v.SetDefault("manifest", "")
	v.SetDefault("watch", false)
	v.SetDefault("workdir", ".")
}

func (c *Config) Validate() error {
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "text":
	default:
		return fmt.Errorf("log.format: unsupported format %q", c.Log.Format)
	}
	switch strings.ToLower(c.Log.Output) {
	case "stdout", "stderr":
	case "file":
		if c.Log.FilePath == "" {
			return fmt.Errorf("log.file_path is required when log.output is file")
		}
	default:
		return fmt.Errorf("log.output: unsupported output %q", c.Log.Output)
	}
	l := c.Limits
	if l.Timeout < 0 || l.FinallyTimeout < 0 || l.SleepTime < 0 || l.ReadyLimit < 0 || l.RecursionLimit < 0 || l.ResultLimit < 0 {
		return fmt.Errorf("limits must not be negative")
	}
	if c.Service.Limit < 0 {
		return fmt.Errorf("service.limit must not be negative")
	}
	if c.Watch && c.Manifest == "" {
		return fmt.Errorf("watch requires a manifest")
	}
	return nil
}
