package internal

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/starford/chatsync/internal/session"
	"github.com/starford/chatsync/internal/syncer"
	pkgconfig "github.com/starford/chatsync/pkg/config"
)

func TestAuthConfig_DisabledMode(t *testing.T) {
	cfg := AuthConfig{Mode: "disabled", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled mode should pass: %v", err)
	}
	if cfg.AuthEnabled() {
		t.Error("disabled mode should not be enabled")
	}
}

func TestAuthConfig_EmptyModeDefaultsDisabled(t *testing.T) {
	cfg := AuthConfig{Mode: "", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty mode should default to disabled: %v", err)
	}
	if cfg.Mode != AuthModeDisabled {
		t.Errorf("mode = %q, want %q", cfg.Mode, AuthModeDisabled)
	}
}

func TestAuthConfig_TokenModeValid(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: "mysecret"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("token mode with token should pass: %v", err)
	}
	if !cfg.AuthEnabled() {
		t.Error("token mode should be enabled")
	}
}

func TestAuthConfig_TokenModeEmptyToken(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: ""}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("token mode with empty token should fail")
	}
	if !strings.Contains(err.Error(), "token is empty") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestAuthConfig_InvalidMode(t *testing.T) {
	cfg := AuthConfig{Mode: "magic", Token: "x"}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("invalid mode should fail validation")
	}
}

func TestFullConfig_AuthValidationCalled(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Auth.Mode = "token"
	cfg.Auth.Token = ""
	err := cfg.Validate()
	if err == nil {
		t.Fatal("full config validate should catch auth error")
	}
}

func TestDefaultConfig_Valid(t *testing.T) {
	cfg := NewDefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestCloudConfig_RequiresURL(t *testing.T) {
	cases := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{"valid", "https://api.example.com", false},
		{"empty", "", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := CloudConfig{BaseURL: tc.url}
			err := cfg.Validate()
			if (err != nil) != tc.wantErr {
				t.Errorf("Validate(%q) err = %v, wantErr %v", tc.url, err, tc.wantErr)
			}
		})
	}
}

func TestSyncConfig_AdvancePolicy(t *testing.T) {
	cfg := SyncConfig{}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty policy should default: %v", err)
	}
	if cfg.Advance != syncer.AdvanceAlways {
		t.Errorf("advance = %q, want %q", cfg.Advance, syncer.AdvanceAlways)
	}

	cfg = SyncConfig{Advance: syncer.AdvanceOnSuccess}
	if err := cfg.Validate(); err != nil {
		t.Errorf("on_success should pass: %v", err)
	}

	cfg = SyncConfig{Advance: "sometimes"}
	if err := cfg.Validate(); err == nil {
		t.Error("unknown policy should fail")
	}
}

func TestSyncConfig_NegativeDebounce(t *testing.T) {
	cfg := SyncConfig{Debounce: -time.Second}
	if err := cfg.Validate(); err == nil {
		t.Error("negative debounce should fail")
	}
}

func TestSessionConfig(t *testing.T) {
	cfg := SessionConfig{}
	if err := cfg.Validate(); err != nil || cfg.Backend != session.BackendOS {
		t.Errorf("empty backend: err = %v, backend = %q", err, cfg.Backend)
	}

	cfg = SessionConfig{Backend: session.BackendFile}
	if err := cfg.Validate(); err == nil {
		t.Error("file backend without dir should fail")
	}

	cfg = SessionConfig{Backend: "vault"}
	if err := cfg.Validate(); err == nil {
		t.Error("unknown backend should fail")
	}
}

func TestDataConfig_Resolve(t *testing.T) {
	cfg := DataConfig{Dir: "/var/lib/chatsync"}
	if got := cfg.Resolve("chatsync.db"); got != filepath.Join("/var/lib/chatsync", "chatsync.db") {
		t.Errorf("relative = %q", got)
	}
	if got := cfg.Resolve("/tmp/other.db"); got != "/tmp/other.db" {
		t.Errorf("absolute = %q", got)
	}
}

func TestLoadYAML_ExpandsEnv(t *testing.T) {
	t.Setenv("CHATSYNC_TEST_TOKEN", "from-env")
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
app:
  log_level: debug
  http:
    port: 9090
data:
  dir: /tmp/chatsync
  settings_file: settings.json
  sqlite_path: chatsync.db
cloud:
  base_url: https://sync.example.com
  timeout: 5s
sync:
  auto_sync: false
  debounce: 500ms
  advance: on_success
session:
  backend: memory
auth:
  mode: token
  token: ${CHATSYNC_TEST_TOKEN}
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := NewDefaultConfig()
	if err := pkgconfig.Load(path, cfg); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.App.HTTP.Port != 9090 || cfg.App.LogLevel != slog.LevelDebug {
		t.Errorf("app = %+v", cfg.App)
	}
	if cfg.Cloud.Timeout != 5*time.Second || cfg.Sync.Debounce != 500*time.Millisecond {
		t.Errorf("durations: cloud %v, debounce %v", cfg.Cloud.Timeout, cfg.Sync.Debounce)
	}
	if cfg.Sync.AutoSync || cfg.Sync.Advance != syncer.AdvanceOnSuccess {
		t.Errorf("sync = %+v", cfg.Sync)
	}
	if cfg.Auth.Token != "from-env" {
		t.Errorf("token = %q, want from-env", cfg.Auth.Token)
	}
	if cfg.Backup.Timeout != 30*time.Second {
		t.Errorf("unset section lost its default: %v", cfg.Backup.Timeout)
	}
}
