package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/romanzh1/english-tutor/internal/models"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	LLM      LLMConfig      `mapstructure:"llm"`
	User     UserConfig     `mapstructure:"user"`
	Session  SessionConfig  `mapstructure:"session"`
	Report   ReportConfig   `mapstructure:"report"`
	Export   ExportConfig   `mapstructure:"export"`
	Log      LogConfig      `mapstructure:"log"`
}

type DatabaseConfig struct {
	Driver       string        `mapstructure:"driver"`
	Path         string        `mapstructure:"path"`
	URL          string        `mapstructure:"url"`
	OpTimeout    time.Duration `mapstructure:"op_timeout"`
	BusyTimeout  time.Duration `mapstructure:"busy_timeout"`
	MaxOpenConns int           `mapstructure:"max_open_conns"`
}

type LLMConfig struct {
	APIKey      string        `mapstructure:"api_key"`
	BaseURL     string        `mapstructure:"base_url"`
	Model       string        `mapstructure:"model"`
	Temperature float64       `mapstructure:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

type UserConfig struct {
	Name  string `mapstructure:"name"`
	Level string `mapstructure:"level"`
}

type SessionConfig struct {
	Topic string `mapstructure:"topic"`
}

type ReportConfig struct {
	ErrorDays   int `mapstructure:"error_days"`
	ErrorLimit  int `mapstructure:"error_limit"`
	PatternDays int `mapstructure:"pattern_days"`
}

type ExportConfig struct {
	Dir string `mapstructure:"dir"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

// flagKeys maps command line flags onto configuration keys.
var flagKeys = map[string]string{
	"driver":       "database.driver",
	"db":           "database.path",
	"username":     "user.name",
	"level":        "user.level",
	"topic":        "session.topic",
	"error-days":   "report.error_days",
	"error-limit":  "report.error_limit",
	"pattern-days": "report.pattern_days",
	"export-dir":   "export.dir",
	"log-level":    "log.level",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "english_learning.db")
	v.SetDefault("database.url", "")
	v.SetDefault("database.op_timeout", 5*time.Second)
	v.SetDefault("database.busy_timeout", 5*time.Second)
	v.SetDefault("database.max_open_conns", 1)

	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.base_url", "https://api.deepseek.com")
	v.SetDefault("llm.model", "deepseek-chat")
	v.SetDefault("llm.temperature", 0.7)
	v.SetDefault("llm.max_tokens", 0)
	v.SetDefault("llm.timeout", 2*time.Minute)

	v.SetDefault("user.name", "")
	v.SetDefault("user.level", string(models.DefaultLevel))
	v.SetDefault("session.topic", "")

	v.SetDefault("report.error_days", 7)
	v.SetDefault("report.error_limit", 20)
	v.SetDefault("report.pattern_days", 30)
	v.SetDefault("export.dir", ".")
	v.SetDefault("log.level", "info")
}

// Flags declares the command line surface. Mode switches are read from the set
// directly; the rest override configuration keys.
func Flags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("english-tutor", pflag.ContinueOnError)

	fs.String("config", "", "path to a config file (yaml, json or toml)")
	fs.String("driver", "sqlite", "database driver: sqlite or postgres")
	fs.String("db", "english_learning.db", "sqlite database file")
	fs.StringP("username", "u", "", "username (default user_<unix time>)")
	fs.StringP("level", "l", string(models.DefaultLevel), "English level: A1, A2, B1, B2, C1 or C2")
	fs.StringP("topic", "t", "", "conversation topic")
	fs.Int("error-days", 7, "days of error history to show")
	fs.Int("error-limit", 20, "maximum number of errors to show")
	fs.Int("pattern-days", 30, "days to analyse for error patterns")
	fs.String("export-dir", ".", "directory for exported files")
	fs.String("log-level", "info", "log level: debug, info, warn, error")

	fs.Bool("stats", false, "show statistics and exit")
	fs.Bool("errors", false, "show error history and exit")
	fs.Bool("patterns", false, "show error patterns and exit")
	fs.Bool("export", false, "export data and exit")
	fs.Bool("check-db", false, "run migrations, report table row counts and exit")
	fs.Bool("reset-db", false, "drop and recreate all tables and exit")

	return fs
}

// LoadConfig merges defaults, the optional config file, TUTOR_* environment
// variables and changed flags, in increasing order of precedence.
func LoadConfig(path string, fs *pflag.FlagSet) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		zap.S().Debugw("load .env file", zap.Error(err))
	}

	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("TUTOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config (path: %s): %w", path, err)
		}
	}

	if fs != nil {
		for name, key := range flagKeys {
			if flag := fs.Lookup(name); flag != nil {
				if err := v.BindPFlag(key, flag); err != nil {
					return nil, fmt.Errorf("bind flag (name: %s): %w", name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = firstEnv("DEEPSEEK_API_KEY", "OPENAI_API_KEY")
	}
	if cfg.Database.URL == "" {
		cfg.Database.URL = os.Getenv("DATABASE_URL")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func firstEnv(names ...string) string {
	for _, name := range names {
		if v := os.Getenv(name); v != "" {
			return v
		}
	}
	return ""
}

func (c *Config) Validate() error {
	level, ok := models.ParseLevel(c.User.Level)
	if !ok {
		return fmt.Errorf("config: user.level %q must be one of %v", c.User.Level, models.Levels())
	}
	c.User.Level = string(level)

	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Path == "" {
			return fmt.Errorf("config: database.path is required for sqlite")
		}
	case "postgres":
		if c.Database.URL == "" {
			return fmt.Errorf("config: database.url (or DATABASE_URL) is required for postgres")
		}
	default:
		return fmt.Errorf("config: database.driver %q must be sqlite or postgres", c.Database.Driver)
	}

	if c.Database.OpTimeout <= 0 {
		return fmt.Errorf("config: database.op_timeout must be positive")
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return fmt.Errorf("config: llm.temperature %.2f must be within [0, 2]", c.LLM.Temperature)
	}
	if c.Report.ErrorLimit < 0 || c.Report.ErrorDays < 0 || c.Report.PatternDays < 0 {
		return fmt.Errorf("config: report values must not be negative")
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("config: log.level: %w", err)
	}

	return nil
}
