package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/Takenobou/sfoweb-appointments/internal/model"
)

const (
	// EnvPrefix scopes every environment override. Nested keys use a double
	// underscore, e.g. SFOWEB_LOG__LEVEL.
	EnvPrefix = "SFOWEB_"
	// FileEnv names an optional JSON config file.
	FileEnv = EnvPrefix + "CONFIG_FILE"

	defaultListenAddr   = ":8080"
	defaultUserAgent    = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
	defaultTimezone     = "Europe/Copenhagen"
	calendarName        = "SFO Aftaler"
	calendarDescription = "Selvbestemmer appointments from the SFO parent portal (scraped)"
)

// ErrNoAccounts is returned when a command needs at least one account and
// none is configured.
var ErrNoAccounts = errors.New("no accounts configured")

// Account is one set of portal credentials under a stable name.
type Account struct {
	Name     string `koanf:"name" validate:"required,excludesall=/"`
	Username string `koanf:"username" validate:"required"`
	Password string `koanf:"password" validate:"required"`
}

// Credentials returns the account's login pair.
func (a Account) Credentials() model.Credentials {
	return model.Credentials{Username: a.Username, Password: a.Password}
}

// LogConfig controls the process logger.
type LogConfig struct {
	Level      string `koanf:"level" validate:"oneof=debug info warn error"`
	File       string `koanf:"file"`
	MaxSizeMB  int    `koanf:"max_size_mb" validate:"gte=0"`
	MaxBackups int    `koanf:"max_backups" validate:"gte=0"`
	MaxAgeDays int    `koanf:"max_age_days" validate:"gte=0"`
}

// Config centralises 12-factor friendly runtime configuration.
type Config struct {
	ListenAddr      string   `koanf:"listen_addr" validate:"required"`
	LoginURL        string   `koanf:"login_url" validate:"required,http_url"`
	AppointmentsURL string   `koanf:"appointments_url" validate:"required,http_url"`
	AlternateURLs   []string `koanf:"alternate_urls"`
	LoginCandidates []string `koanf:"login_candidates" validate:"dive,http_url"`
	OAuthPaths      []string `koanf:"oauth_paths"`

	UserAgent          string        `koanf:"user_agent" validate:"required"`
	RequestTimeout     time.Duration `koanf:"request_timeout" validate:"gt=0"`
	FetchTimeout       time.Duration `koanf:"fetch_timeout" validate:"gt=0"`
	ValidateTimeout    time.Duration `koanf:"validate_timeout" validate:"gt=0"`
	InsecureSkipVerify bool          `koanf:"insecure_skip_verify"`
	RequestsPerSecond  float64       `koanf:"requests_per_second" validate:"gte=0"`
	RequestBurst       int           `koanf:"request_burst" validate:"gte=0"`

	CategoryMarker          string   `koanf:"category_marker" validate:"required"`
	CategoryCaseInsensitive bool     `koanf:"category_case_insensitive"`
	FilterJSONByCategory    bool     `koanf:"filter_json_by_category"`
	EmptyPhrases            []string `koanf:"empty_phrases"`
	SortChronologically     bool     `koanf:"sort_chronologically"`
	ValidateProbe           bool     `koanf:"validate_probe"`
	MinCredentialLength     int      `koanf:"min_credential_length" validate:"gte=1"`

	PollSchedule        string `koanf:"poll_schedule" validate:"required"`
	Timezone            string `koanf:"timezone" validate:"required,timezone"`
	CalendarName        string `koanf:"calendar_name"`
	CalendarDescription string `koanf:"calendar_description"`

	Log LogConfig `koanf:"log"`

	Accounts []Account `koanf:"accounts" validate:"unique=Name,dive"`
	// Username and Password define a single account named "default".
	Username string `koanf:"username"`
	Password string `koanf:"password"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func defaults() map[string]any {
	return map[string]any{
		"listen_addr":           defaultListenAddr,
		"login_url":             "https://sfo-web.aula.dk",
		"appointments_url":      "https://sfo-web.aula.dk/aftaler",
		"login_candidates":      []string{"https://soestjernen.sfoweb.dk", "https://soestjernen.sfoweb.dk/login", "https://soestjernen.sfoweb.dk/foraeldr"},
		"alternate_urls":        []string{"https://soestjernen.sfoweb.dk/aftaler", "https://soestjernen.sfoweb.dk/appointments", "https://soestjernen.sfoweb.dk/calendar", "https://soestjernen.sfoweb.dk/dashboard"},
		"user_agent":            defaultUserAgent,
		"request_timeout":       30 * time.Second,
		"fetch_timeout":         120 * time.Second,
		"validate_timeout":      30 * time.Second,
		"requests_per_second":   0.0,
		"request_burst":         1,
		"category_marker":       "Selvbestemmer",
		"empty_phrases":         []string{"Der er ingen aktive"},
		"min_credential_length": 3,
		"poll_schedule":         "@every 6h",
		"timezone":              defaultTimezone,
		"calendar_name":         calendarName,
		"calendar_description":  calendarDescription,
		"log.level":             "info",
		"log.max_size_mb":       50,
		"log.max_backups":       5,
		"log.max_age_days":      28,
	}
}

// Load layers defaults, the optional JSON file, SFOWEB_* environment
// variables and finally overrides (typically CLI flags). An empty path falls
// back to SFOWEB_CONFIG_FILE.
func Load(path string, overrides map[string]any) (Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return Config{}, fmt.Errorf("load defaults: %w", err)
	}

	if path == "" {
		path = os.Getenv(FileEnv)
	}
	if path != "" {
		if err := k.Load(file.Provider(path), json.Parser()); err != nil {
			return Config{}, fmt.Errorf("load config file %q: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return Config{}, fmt.Errorf("load environment: %w", err)
	}

	if len(overrides) > 0 {
		if err := k.Load(confmap.Provider(overrides, "."), nil); err != nil {
			return Config{}, fmt.Errorf("load overrides: %w", err)
		}
	}

	var cfg Config
	err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{
		DecoderConfig: &mapstructure.DecoderConfig{
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				mapstructure.StringToSliceHookFunc(","),
			),
			WeaklyTypedInput: true,
		},
	})
	if err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	cfg.normalise()
	if err := validate.Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// envKey maps SFOWEB_LOG__LEVEL to log.level. The config file pointer is not
// itself a setting.
func envKey(s string) string {
	if s == FileEnv {
		return ""
	}
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

func (c *Config) normalise() {
	c.LoginURL = strings.TrimSpace(c.LoginURL)
	c.AppointmentsURL = strings.TrimSpace(c.AppointmentsURL)
	c.AlternateURLs = trimAll(c.AlternateURLs)
	c.LoginCandidates = trimAll(c.LoginCandidates)
	c.OAuthPaths = trimAll(c.OAuthPaths)
	c.EmptyPhrases = trimAll(c.EmptyPhrases)
	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))

	if c.Username != "" || c.Password != "" {
		c.Accounts = append([]Account{{Name: "default", Username: c.Username, Password: c.Password}}, c.Accounts...)
		c.Username, c.Password = "", ""
	}
	for i := range c.Accounts {
		c.Accounts[i].Name = strings.TrimSpace(c.Accounts[i].Name)
		c.Accounts[i].Username = strings.TrimSpace(c.Accounts[i].Username)
	}
}

// RequireAccounts reports ErrNoAccounts when nothing is configured to poll.
func (c Config) RequireAccounts() error {
	if len(c.Accounts) == 0 {
		return ErrNoAccounts
	}
	return nil
}

// Account looks up a configured account by name.
func (c Config) Account(name string) (Account, bool) {
	for _, a := range c.Accounts {
		if a.Name == name {
			return a, true
		}
	}
	return Account{}, false
}

func trimAll(in []string) []string {
	out := in[:0:0]
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
