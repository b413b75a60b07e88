package internal

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"

	"github.com/starford/chatsync/internal/session"
	"github.com/starford/chatsync/internal/syncer"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App     ApplicationConfig `yaml:"app"`
	Data    DataConfig        `yaml:"data"`
	Cloud   CloudConfig       `yaml:"cloud"`
	Sync    SyncConfig        `yaml:"sync"`
	Session SessionConfig     `yaml:"session"`
	Backup  BackupConfig      `yaml:"backup"`
	Auth    AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Data.Validate(); err != nil {
		return err
	}
	if err := c.Cloud.Validate(); err != nil {
		return fmt.Errorf("cloud: %w", err)
	}
	if err := c.Sync.Validate(); err != nil {
		return fmt.Errorf("sync: %w", err)
	}
	if err := c.Session.Validate(); err != nil {
		return fmt.Errorf("session: %w", err)
	}
	return c.Auth.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	// LogFile, when set, receives the JSON log through a rotating writer
	// instead of stdout.
	LogFile string     `yaml:"log_file"`
	HTTP    HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// DataConfig locates local state. Relative file paths are resolved against Dir.
type DataConfig struct {
	Dir          string `yaml:"dir"`
	SettingsFile string `yaml:"settings_file"`
	SQLitePath   string `yaml:"sqlite_path"`
	ExportDir    string `yaml:"export_dir"`
}

// Validate validates the data configuration.
func (c *DataConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Dir, validation.Required),
		validation.Field(&c.SettingsFile, validation.Required),
		validation.Field(&c.SQLitePath, validation.Required),
	)
}

// Resolve returns p joined to Dir unless p is absolute.
func (c *DataConfig) Resolve(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Dir, p)
}

// CloudConfig holds the sync backend endpoint.
type CloudConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// Validate validates the cloud configuration.
func (c *CloudConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.BaseURL, validation.Required, is.URL),
		validation.Field(&c.Timeout, validation.Min(time.Duration(0))),
	)
}

// SyncConfig tunes the auto-sync loop.
type SyncConfig struct {
	AutoSync bool                 `yaml:"auto_sync"`
	Debounce time.Duration        `yaml:"debounce"`
	Advance  syncer.AdvancePolicy `yaml:"advance"`
}

// Validate validates the sync configuration.
func (c *SyncConfig) Validate() error {
	if c.Advance == "" {
		c.Advance = syncer.AdvanceAlways
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.Debounce, validation.Min(time.Duration(0))),
		validation.Field(&c.Advance, validation.In(syncer.AdvanceAlways, syncer.AdvanceOnSuccess)),
	)
}

// SessionConfig selects the keyring holding the cloud token.
type SessionConfig struct {
	Backend  string `yaml:"backend"`
	FileDir  string `yaml:"file_dir"`
	Password string `yaml:"password"`
}

// Validate validates the session configuration.
func (c *SessionConfig) Validate() error {
	if c.Backend == "" {
		c.Backend = session.BackendOS
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Backend, validation.In(session.BackendOS, session.BackendFile, session.BackendMemory)),
	); err != nil {
		return err
	}
	if c.Backend == session.BackendFile && c.FileDir == "" {
		return errors.New("file_dir is required for the file backend")
	}
	return nil
}

// Options converts the config into keyring options.
func (c *SessionConfig) Options() session.Options {
	return session.Options{Backend: c.Backend, FileDir: c.FileDir, Password: c.Password}
}

// BackupConfig tunes WebDAV access. The WebDAV target itself lives in the
// settings document.
type BackupConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

// AuthConfig holds local API authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Data: DataConfig{
			Dir:          "./data",
			SettingsFile: "settings.json",
			SQLitePath:   "chatsync.db",
			ExportDir:    "exports",
		},
		Cloud: CloudConfig{
			BaseURL: "https://api.chatsync.app",
			Timeout: 30 * time.Second,
		},
		Sync: SyncConfig{
			AutoSync: true,
			Debounce: 2 * time.Second,
			Advance:  syncer.AdvanceAlways,
		},
		Session: SessionConfig{
			Backend: session.BackendOS,
		},
		Backup: BackupConfig{
			Timeout: 30 * time.Second,
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
