package commands

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeSettings(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fwgen.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write settings: %v", err)
	}
	return path
}

func TestLoadSettings_Defaults(t *testing.T) {
	s, err := LoadSettings("")
	if err != nil {
		t.Fatalf("LoadSettings failed: %v", err)
	}
	if s.Database != DefaultDatabasePath {
		t.Errorf("expected default database, got %s", s.Database)
	}

	cfg := s.Telemetry("1.2.3")
	if cfg.ServiceVersion != "1.2.3" || cfg.Logging.Format != "console" || cfg.Tracing.Enabled {
		t.Errorf("unexpected telemetry config: %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default telemetry config is invalid: %v", err)
	}
}

func TestLoadSettings(t *testing.T) {
	path := writeSettings(t, `profile: ci
logging:
  level: debug
tracing:
  enabled: false
metrics:
  textfile: metrics/fwgen.prom
database: state/history.db
policies:
  - policies
  - /etc/fwgen/policies
`)
	base := filepath.Dir(path)

	s, err := LoadSettings(path)
	if err != nil {
		t.Fatalf("LoadSettings failed: %v", err)
	}
	if s.Database != filepath.Join(base, "state", "history.db") {
		t.Errorf("expected database relative to settings file, got %s", s.Database)
	}
	if strings.Join(s.Policies, ",") != filepath.Join(base, "policies")+",/etc/fwgen/policies" {
		t.Errorf("unexpected policies %v", s.Policies)
	}

	cfg := s.Telemetry("dev")
	if cfg.Environment != "ci" || cfg.Logging.Format != "json" || cfg.Logging.Level != "debug" {
		t.Errorf("expected ci profile with debug level, got %+v", cfg.Logging)
	}
	if cfg.Tracing.Enabled {
		t.Error("expected tracing disabled by settings")
	}
	if cfg.Metrics.TextfilePath != filepath.Join(base, "metrics", "fwgen.prom") {
		t.Errorf("unexpected textfile %s", cfg.Metrics.TextfilePath)
	}
}

func TestLoadSettings_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantMsg string
	}{
		{name: "syntax", content: "logging: [\n", wantMsg: "failed to parse"},
		{name: "profile", content: "profile: staging\n", wantMsg: "Profile"},
		{name: "level", content: "logging:\n  level: loud\n", wantMsg: "Level"},
		{name: "exporter", content: "tracing:\n  exporter: zipkin\n", wantMsg: "Exporter"},
		{name: "listen", content: "metrics:\n  listen: nowhere\n", wantMsg: "Listen"},
		{name: "empty policy", content: "policies:\n  - \"\"\n", wantMsg: "Policies"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadSettings(writeSettings(t, tt.content))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("expected error containing %q, got %v", tt.wantMsg, err)
			}
		})
	}

	if _, err := LoadSettings(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing settings file")
	}
}

func TestRootCommand_Settings(t *testing.T) {
	db := filepath.Join(t.TempDir(), "history.db")
	settings := writeSettings(t, "database: "+db+"\n")

	if _, err := execute(t, "--config", settings, "history"); err != nil {
		t.Fatalf("history failed: %v", err)
	}
	if _, err := os.Stat(db); err != nil {
		t.Errorf("expected database from settings to be created: %v", err)
	}

	if _, err := execute(t, "--config", writeSettings(t, "profile: staging\n"), "components"); err == nil {
		t.Error("expected invalid settings to fail the command")
	}
}

func TestUploadFlags_SSHConfig(t *testing.T) {
	tests := []struct {
		name  string
		flags uploadFlags
		check func(t *testing.T, f uploadFlags)
	}{
		{
			name:  "key",
			flags: uploadFlags{host: "builder", user: "ci", port: 2222, keyPath: "/keys/id"},
			check: func(t *testing.T, f uploadFlags) {
				cfg := f.sshConfig()
				if cfg.AuthMethod != "key" || cfg.PrivateKeyPath != "/keys/id" || cfg.Port != 2222 {
					t.Errorf("unexpected config %+v", cfg)
				}
				if !cfg.StrictHostKeyChecking || cfg.IsProxyEnabled() {
					t.Errorf("expected strict checking without proxy, got %+v", cfg)
				}
			},
		},
		{
			name:  "password wins over key",
			flags: uploadFlags{host: "builder", user: "ci", port: 22, password: "pw", keyPath: "/keys/id", insecure: true},
			check: func(t *testing.T, f uploadFlags) {
				cfg := f.sshConfig()
				if cfg.AuthMethod != "password" || cfg.Password != "pw" || cfg.StrictHostKeyChecking {
					t.Errorf("unexpected config %+v", cfg)
				}
			},
		},
		{
			name:  "agent via proxy",
			flags: uploadFlags{host: "builder", user: "ci", port: 22, useAgent: true, proxyHost: "bastion"},
			check: func(t *testing.T, f uploadFlags) {
				cfg := f.sshConfig()
				if cfg.AuthMethod != "agent" || cfg.ProxyAuthMethod != "agent" {
					t.Errorf("expected agent auth for target and proxy, got %+v", cfg)
				}
				if cfg.ProxyUser != "ci" || cfg.ProxyAddress() != "bastion:22" {
					t.Errorf("unexpected proxy %s@%s", cfg.ProxyUser, cfg.ProxyAddress())
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, tt.flags)
		})
	}
}

func TestShellQuote(t *testing.T) {
	tests := map[string]string{
		"/srv/fw":     "'/srv/fw'",
		"/srv/my fw":  "'/srv/my fw'",
		"/srv/it's":   `'/srv/it'\''s'`,
		"$(rm -rf /)": "'$(rm -rf /)'",
	}
	for in, want := range tests {
		if got := shellQuote(in); got != want {
			t.Errorf("shellQuote(%q) = %s, want %s", in, got, want)
		}
	}
}
