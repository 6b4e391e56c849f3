package config

import "time"

// Config represents the complete configuration structure
type Config struct {
	Plex       PlexConfig       `mapstructure:"plex"`
	Providers  ProvidersConfig  `mapstructure:"providers"`
	Artwork    ArtworkConfig    `mapstructure:"artwork"`
	Processing ProcessingConfig `mapstructure:"processing"`
	Filter     FilterConfig     `mapstructure:"filter"`
	Fetch      FetchConfig      `mapstructure:"fetch"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Arr        ArrConfig        `mapstructure:"arr"`
	Webhook    WebhookConfig    `mapstructure:"webhook"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Server     ServerConfig     `mapstructure:"server"`
	Schedule   ScheduleConfig   `mapstructure:"schedule"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// PlexConfig holds Plex connection details
type PlexConfig struct {
	URL     string        `mapstructure:"url" validate:"required,url"`
	Token   string        `mapstructure:"token" validate:"required"`
	Timeout time.Duration `mapstructure:"timeout" validate:"gte=0"`
	Breaker BreakerConfig `mapstructure:"breaker"`
}

// BreakerConfig tunes the Plex circuit breaker
type BreakerConfig struct {
	ConsecutiveFailures uint32        `mapstructure:"consecutive_failures" validate:"gte=1"`
	Timeout             time.Duration `mapstructure:"timeout" validate:"gte=0"`
}

// ProvidersConfig holds the artwork provider credentials and limits
type ProvidersConfig struct {
	Priority []string       `mapstructure:"priority" validate:"min=1,dive,oneof=tmdb fanart omdb tvdb"`
	TMDb     ProviderConfig `mapstructure:"tmdb"`
	Fanart   ProviderConfig `mapstructure:"fanart"`
	OMDb     ProviderConfig `mapstructure:"omdb"`
	TVDb     TVDbConfig     `mapstructure:"tvdb"`
}

// ProviderConfig is the common provider configuration
type ProviderConfig struct {
	APIKey string `mapstructure:"api_key"`
	// RateLimit in requests per second; zero keeps the built-in rate
	RateLimit float64 `mapstructure:"rate_limit" validate:"gte=0"`
	// DailyLimit caps requests per UTC day; zero means unlimited
	DailyLimit int    `mapstructure:"daily_limit" validate:"gte=0"`
	Language   string `mapstructure:"language"`
}

// TVDbConfig adds the subscriber PIN and legacy v3 account to the common settings
type TVDbConfig struct {
	ProviderConfig `mapstructure:",squash"`
	PIN            string `mapstructure:"pin"`
	UserKey        string `mapstructure:"user_key"`
	Username       string `mapstructure:"username"`
}

// ArtworkConfig controls what artwork is wanted
type ArtworkConfig struct {
	Libraries          []string `mapstructure:"libraries"`
	IncludeBackgrounds bool     `mapstructure:"include_backgrounds"`
	Overwrite          bool     `mapstructure:"overwrite"`
	MinPosterWidth     int      `mapstructure:"min_poster_width" validate:"gte=0"`
	MinBackgroundWidth int      `mapstructure:"min_background_width" validate:"gte=0"`
}

// ProcessingConfig controls what a run does with the artwork it finds
type ProcessingConfig struct {
	DryRun          bool `mapstructure:"dry_run"`
	Approval        bool `mapstructure:"approval"`
	Backup          bool `mapstructure:"backup"`
	CheckpointEvery int  `mapstructure:"checkpoint_every" validate:"gte=1"`
}

// FilterConfig holds the item selection expression and named presets
type FilterConfig struct {
	Expression string            `mapstructure:"expression"`
	Presets    map[string]string `mapstructure:"presets"`
}

// FetchConfig tunes the provider HTTP client
type FetchConfig struct {
	Timeout           time.Duration `mapstructure:"timeout" validate:"gt=0"`
	MaxAttempts       int           `mapstructure:"max_attempts" validate:"gte=1,lte=10"`
	MaxBackoff        time.Duration `mapstructure:"max_backoff" validate:"gt=0"`
	RateLimitCooldown time.Duration `mapstructure:"rate_limit_cooldown" validate:"gt=0"`
	AuthCooldown      time.Duration `mapstructure:"auth_cooldown" validate:"gt=0"`
	UserAgent         string        `mapstructure:"user_agent"`
}

// CacheConfig controls provider response caching
type CacheConfig struct {
	// NegativeTTL makes empty results eligible for a re-check; zero keeps
	// them forever
	NegativeTTL time.Duration `mapstructure:"negative_ttl" validate:"gte=0"`
}

// ArrConfig holds the optional Radarr and Sonarr instances
type ArrConfig struct {
	Radarr ArrInstance `mapstructure:"radarr"`
	Sonarr ArrInstance `mapstructure:"sonarr"`
}

// ArrInstance is one starr application
type ArrInstance struct {
	URL    string `mapstructure:"url" validate:"omitempty,url"`
	APIKey string `mapstructure:"api_key" validate:"required_with=URL"`
}

// Enabled reports whether the instance is configured
func (a ArrInstance) Enabled() bool {
	return a.URL != "" && a.APIKey != ""
}

// WebhookConfig holds the notification endpoint
type WebhookConfig struct {
	URL string `mapstructure:"url" validate:"omitempty,url"`
}

// StorageConfig holds on-disk locations and retention
type StorageConfig struct {
	DataDir              string `mapstructure:"data_dir" validate:"required"`
	HistoryRetentionDays int    `mapstructure:"history_retention_days" validate:"gte=0"`
	BackupRetentionDays  int    `mapstructure:"backup_retention_days" validate:"gte=0"`
	QuotaRetentionDays   int    `mapstructure:"quota_retention_days" validate:"gte=1"`
}

// ServerConfig holds the serve mode HTTP settings
type ServerConfig struct {
	Addr        string   `mapstructure:"addr"`
	CORSOrigins []string `mapstructure:"cors_origins"`
	RateLimit   int      `mapstructure:"rate_limit" validate:"gte=0"`
}

// ScheduleConfig controls scheduled runs in serve mode
type ScheduleConfig struct {
	Interval   time.Duration `mapstructure:"interval" validate:"gte=0"`
	RunOnStart bool          `mapstructure:"run_on_start"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=console json"`
	Color  bool   `mapstructure:"color"`
}
