// Package config loads flashdeck settings from defaults, an optional YAML
// file, FLASHDECK_ environment variables and command-line flags.
package config

import "time"

// Config is the root application configuration.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	Content  ContentConfig  `koanf:"content"`
	Import   ImportConfig   `koanf:"import"`
	Auth     AuthConfig     `koanf:"auth"`
	CORS     CORSConfig     `koanf:"cors"`
	Log      LogConfig      `koanf:"log"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr            string        `koanf:"addr"             validate:"required"`
	ReadTimeout     time.Duration `koanf:"read_timeout"     validate:"gte=0"`
	WriteTimeout    time.Duration `koanf:"write_timeout"    validate:"gte=0"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`
}

// DatabaseConfig holds the SQLite file location.
type DatabaseConfig struct {
	Path string `koanf:"path" validate:"required"`
}

// ContentConfig locates deck files and media.
type ContentConfig struct {
	QuestionsDir  string `koanf:"questions_dir"   validate:"required"`
	MediaDir      string `koanf:"media_dir"       validate:"required"`
	MediaPrefix   string `koanf:"media_prefix"    validate:"required,startswith=/,endswith=/"`
	ImportOnStart bool   `koanf:"import_on_start"`
	GitURL        string `koanf:"git_url"`
	GitRef        string `koanf:"git_ref"`
}

// ImportConfig limits remote image downloads during import.
type ImportConfig struct {
	FetchTimeout  time.Duration `koanf:"fetch_timeout"   validate:"gt=0"`
	FetchAttempts uint          `koanf:"fetch_attempts"  validate:"gte=1,lte=10"`
	MaxImageBytes int64         `koanf:"max_image_bytes" validate:"gt=0"`
}

// AuthConfig holds session and bootstrap administrator settings.
type AuthConfig struct {
	SessionTTL         time.Duration `koanf:"session_ttl"           validate:"gt=0"`
	CookieName         string        `koanf:"cookie_name"           validate:"required"`
	CookieSecure       bool          `koanf:"cookie_secure"`
	BcryptCost         int           `koanf:"bcrypt_cost"           validate:"gte=4,lte=31"`
	RateLimitPerMinute int           `koanf:"rate_limit_per_minute" validate:"gte=0"`
	AdminEmail         string        `koanf:"admin_email"           validate:"required,email"`
	AdminName          string        `koanf:"admin_name"`
	AdminPassword      string        `koanf:"admin_password"        validate:"omitempty,min=8"`
}

// CORSConfig holds CORS settings.
type CORSConfig struct {
	AllowedOrigins   string `koanf:"allowed_origins"`
	AllowCredentials bool   `koanf:"allow_credentials"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `koanf:"level"  validate:"oneof=debug info warn error DEBUG INFO WARN ERROR"`
	Format string `koanf:"format" validate:"oneof=text json"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:            ":3000",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{Path: "data/app.db"},
		Content: ContentConfig{
			QuestionsDir:  "questions",
			MediaDir:      "data/media",
			MediaPrefix:   "/media/",
			ImportOnStart: true,
		},
		Import: ImportConfig{
			FetchTimeout:  15 * time.Second,
			FetchAttempts: 2,
			MaxImageBytes: 10 << 20,
		},
		Auth: AuthConfig{
			SessionTTL:         720 * time.Hour,
			CookieName:         "flashdeck_session",
			BcryptCost:         12,
			RateLimitPerMinute: 20,
			AdminEmail:         "admin@flashdeck.local",
			AdminName:          "Administrator",
		},
		CORS: CORSConfig{
			AllowedOrigins:   "*",
			AllowCredentials: true,
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}
