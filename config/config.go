// Package config loads posterarr settings from a YAML file and the
// environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. POSTERARR_PLEX_URL
const EnvPrefix = "POSTERARR"

// MinScheduleInterval is the shortest allowed interval between scheduled runs
const MinScheduleInterval = time.Minute

// legacyEnv maps keys to the unprefixed variable names earlier releases read
var legacyEnv = map[string]string{
	"plex.url":                    "PLEX_URL",
	"plex.token":                  "PLEX_TOKEN",
	"providers.tmdb.api_key":      "TMDB_API_KEY",
	"providers.fanart.api_key":    "FANART_API_KEY",
	"providers.omdb.api_key":      "OMDB_API_KEY",
	"providers.tvdb.api_key":      "TVDB_API_KEY",
	"providers.tvdb.pin":          "TVDB_PIN",
	"providers.tvdb.user_key":     "TVDB_USER_KEY",
	"providers.tvdb.username":     "TVDB_USERNAME",
	"webhook.url":                 "WEBHOOK_URL",
	"artwork.libraries":           "LIBRARIES",
	"artwork.include_backgrounds": "INCLUDE_BACKGROUNDS",
	"artwork.overwrite":           "OVERWRITE",
	"processing.dry_run":          "DRY_RUN",
}

// Load loads the configuration. An explicit configPath must exist; otherwise
// the standard locations are searched and a missing file is fine, so the
// environment alone can configure posterarr.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)
	bindEnv(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")

		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".posterarr"))
		}
		v.AddConfigPath("/etc/posterarr/")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values. Every key has a default so
// AutomaticEnv can override it.
func setDefaults(v *viper.Viper) {
	v.SetDefault("plex.url", "http://localhost:32400")
	v.SetDefault("plex.token", "")
	v.SetDefault("plex.timeout", 30*time.Second)
	v.SetDefault("plex.breaker.consecutive_failures", 5)
	v.SetDefault("plex.breaker.timeout", time.Minute)

	v.SetDefault("providers.priority", []string{"tmdb", "fanart", "omdb"})
	for _, p := range []string{"tmdb", "fanart", "omdb", "tvdb"} {
		v.SetDefault("providers."+p+".api_key", "")
		v.SetDefault("providers."+p+".rate_limit", 0)
		v.SetDefault("providers."+p+".daily_limit", 0)
		v.SetDefault("providers."+p+".language", "")
	}
	v.SetDefault("providers.tmdb.daily_limit", 1000)
	v.SetDefault("providers.tmdb.language", "en")
	v.SetDefault("providers.omdb.daily_limit", 1000)
	v.SetDefault("providers.tvdb.pin", "")
	v.SetDefault("providers.tvdb.user_key", "")
	v.SetDefault("providers.tvdb.username", "")

	v.SetDefault("artwork.libraries", []string{})
	v.SetDefault("artwork.include_backgrounds", true)
	v.SetDefault("artwork.overwrite", false)
	v.SetDefault("artwork.min_poster_width", 600)
	v.SetDefault("artwork.min_background_width", 1920)

	v.SetDefault("processing.dry_run", true)
	v.SetDefault("processing.approval", false)
	v.SetDefault("processing.backup", true)
	v.SetDefault("processing.checkpoint_every", 50)

	v.SetDefault("filter.expression", "")

	v.SetDefault("fetch.timeout", 15*time.Second)
	v.SetDefault("fetch.max_attempts", 4)
	v.SetDefault("fetch.max_backoff", 30*time.Second)
	v.SetDefault("fetch.rate_limit_cooldown", 30*time.Minute)
	v.SetDefault("fetch.auth_cooldown", 12*time.Hour)
	v.SetDefault("fetch.user_agent", "posterarr")

	v.SetDefault("cache.negative_ttl", 0)

	v.SetDefault("arr.radarr.url", "")
	v.SetDefault("arr.radarr.api_key", "")
	v.SetDefault("arr.sonarr.url", "")
	v.SetDefault("arr.sonarr.api_key", "")

	v.SetDefault("webhook.url", "")

	v.SetDefault("storage.data_dir", "./data")
	v.SetDefault("storage.history_retention_days", 90)
	v.SetDefault("storage.backup_retention_days", 0)
	v.SetDefault("storage.quota_retention_days", 7)

	v.SetDefault("server.addr", ":8585")
	v.SetDefault("server.cors_origins", []string{})
	v.SetDefault("server.rate_limit", 60)

	v.SetDefault("schedule.interval", 0)
	v.SetDefault("schedule.run_on_start", false)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.color", true)
}

func bindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// BindEnv with explicit names drops the prefix, so list both
	for key, legacy := range legacyEnv {
		prefixed := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		_ = v.BindEnv(key, prefixed, legacy)
	}
}

var structValidator = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()

	// Report fields by their config key
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("mapstructure"), ",")
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})

	return v
}

// validate checks if the configuration is valid
func validate(cfg *Config) error {
	if err := structValidator.Struct(cfg); err != nil {
		return formatValidationError(err)
	}

	seen := make(map[string]bool, len(cfg.Providers.Priority))
	for _, name := range cfg.Providers.Priority {
		if seen[name] {
			return fmt.Errorf("providers.priority lists %q twice", name)
		}
		seen[name] = true
	}

	if cfg.Schedule.Interval > 0 && cfg.Schedule.Interval < MinScheduleInterval {
		return fmt.Errorf("schedule.interval must be at least %s", MinScheduleInterval)
	}

	return nil
}

func formatValidationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	msgs := make([]string, 0, len(verrs))
	for _, e := range verrs {
		// Namespace starts with the root struct name
		_, key, _ := strings.Cut(e.Namespace(), ".")
		msgs = append(msgs, fmt.Sprintf("%s %s", key, friendlyMessage(e)))
	}
	return errors.New(strings.Join(msgs, "; "))
}

func friendlyMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "required_with":
		return "is required when " + strings.ToLower(e.Param()) + " is set"
	case "url":
		return "must be a valid URL"
	case "oneof":
		return "must be one of: " + e.Param()
	case "min":
		return "must have at least " + e.Param() + " entries"
	case "gt":
		return "must be greater than " + e.Param()
	case "gte":
		return "must be at least " + e.Param()
	case "lte":
		return "must be at most " + e.Param()
	default:
		return "failed " + e.Tag() + " validation"
	}
}
