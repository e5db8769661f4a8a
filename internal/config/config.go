package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

type Config struct {
	Console       ConsoleConfig `toml:"console"`
	Report        ReportConfig  `toml:"report"`
	Watch         WatchConfig   `toml:"watch"`
	Notifications NotifyConfig  `toml:"notifications"`
	Server        ServerConfig  `toml:"server"`
}

type ConsoleConfig struct {
	BaseURL  string `toml:"base_url" validate:"required,url"`
	Email    string `toml:"email" validate:"omitempty,email"`
	Password string `toml:"password"`
	Token    string `toml:"token"`
}

type ReportConfig struct {
	PastDays        int     `toml:"past_days" validate:"gte=0"`
	FutureDays      int     `toml:"future_days" validate:"gte=0"`
	FullDayHours    float64 `toml:"full_day_hours" validate:"gt=0,gtefield=PartialDayHours"`
	PartialDayHours float64 `toml:"partial_day_hours" validate:"gt=0"`
	OverlapPolicy   string  `toml:"overlap_policy" validate:"oneof=start_date created_at input"`
	Format          string  `toml:"format" validate:"oneof=table json yaml"`
}

type WatchConfig struct {
	IntervalMinutes int   `toml:"interval_minutes" validate:"gte=1"`
	Employees       []int `toml:"employees"`
}

type NotifyConfig struct {
	Enabled bool `toml:"enabled"`
}

type ServerConfig struct {
	Addr string `toml:"addr" validate:"required,hostname_port"`
}

func DefaultConfig() Config {
	return Config{
		Console: ConsoleConfig{
			BaseURL: "http://localhost:8000",
		},
		Report: ReportConfig{
			PastDays:        30,
			FutureDays:      60,
			FullDayHours:    8,
			PartialDayHours: 4,
			OverlapPolicy:   "start_date",
			Format:          "table",
		},
		Watch: WatchConfig{
			IntervalMinutes: 60,
		},
		Notifications: NotifyConfig{
			Enabled: true,
		},
		Server: ServerConfig{
			Addr: "127.0.0.1:8088",
		},
	}
}

// Window returns the default reporting range around now.
func (r ReportConfig) Window(now time.Time) (time.Time, time.Time) {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	return today.AddDate(0, 0, -r.PastDays), today.AddDate(0, 0, r.FutureDays)
}

func (w WatchConfig) Interval() time.Duration {
	return time.Duration(w.IntervalMinutes) * time.Minute
}

func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("finding home directory: %w", err)
	}
	return filepath.Join(home, ".config", "deskcheck"), nil
}

func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// Load reads the config file at the default path. A missing file yields defaults.
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadFile(path)
}

// LoadFile reads defaults, then the TOML file at path, then a .env file in the working
// directory, then environment overrides, and validates the result.
func LoadFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if len(data) > 0 {
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	// Existing environment variables take precedence over .env entries.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}
	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DESKCHECK_CONSOLE_URL"); v != "" {
		cfg.Console.BaseURL = v
	}
	if v := os.Getenv("DESKCHECK_EMAIL"); v != "" {
		cfg.Console.Email = v
	}
	if v := os.Getenv("DESKCHECK_PASSWORD"); v != "" {
		cfg.Console.Password = v
	}
	if v := os.Getenv("DESKCHECK_TOKEN"); v != "" {
		cfg.Console.Token = v
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints and reports every failing field.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validating config: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s (%s=%s)", fe.Namespace(), fe.Tag(), fe.Param()))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, ", "))
}

func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0755)
}

// WriteDefault writes the default config file at path unless it already exists.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	out, err := toml.Marshal(DefaultConfig())
	if err != nil {
		return fmt.Errorf("marshaling default config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	return os.WriteFile(path, out, 0600)
}

// SaveWatchEmployees persists the watched employee IDs to the config file
// using a read-modify-write approach to preserve other settings.
func SaveWatchEmployees(path string, ids []int) error {
	cfg := make(map[string]any)

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("reading config: %w", err)
	}
	if len(data) > 0 {
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return fmt.Errorf("parsing config: %w", err)
		}
	}

	w, ok := cfg["watch"].(map[string]any)
	if !ok {
		w = make(map[string]any)
	}
	w["employees"] = ids
	cfg["watch"] = w

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	out, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	return os.WriteFile(path, out, 0600)
}
