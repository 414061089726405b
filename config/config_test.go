package config

import (
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"
)

type upstreamSection struct {
	Address string `mapstructure:"address"`
}

type clientSection struct {
	IdleTimeout time.Duration    `mapstructure:"idle_timeout"`
	MaxIdle     int              `mapstructure:"max_idle"`
	Compress    bool             `mapstructure:"compress"`
	Proxy       *upstreamSection `mapstructure:"proxy"`
	Ignored     func()           `mapstructure:"-"`
}

type testConfig struct {
	Client clientSection `mapstructure:"client"`
	Name   string        `mapstructure:"name"`
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

func TestLoad_YAML(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "client.yml", `
name: edge
client:
  idle_timeout: 2s
  max_idle: 4
  compress: true
  proxy:
    address: proxy.internal:3128
`)

	var cfg testConfig
	if err := Load("loadyaml", &cfg, WithConfigFile(path)); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Name != "edge" {
		t.Errorf("expected name edge, got %q", cfg.Name)
	}
	if cfg.Client.IdleTimeout != 2*time.Second {
		t.Errorf("expected 2s idle timeout, got %v", cfg.Client.IdleTimeout)
	}
	if cfg.Client.MaxIdle != 4 || !cfg.Client.Compress {
		t.Errorf("unexpected client section: %+v", cfg.Client)
	}
	if cfg.Client.Proxy == nil || cfg.Client.Proxy.Address != "proxy.internal:3128" {
		t.Errorf("expected proxy address, got %+v", cfg.Client.Proxy)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "client.yml", "client:\n  max_idle: 4\n")
	t.Setenv("ENVTEST_CLIENT_MAX_IDLE", "9")
	t.Setenv("ENVTEST_CLIENT_IDLE_TIMEOUT", "150ms")

	var cfg testConfig
	if err := Load("envtest", &cfg, WithConfigFile(path)); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Client.MaxIdle != 9 {
		t.Errorf("expected env override 9, got %d", cfg.Client.MaxIdle)
	}
	if cfg.Client.IdleTimeout != 150*time.Millisecond {
		t.Errorf("expected 150ms, got %v", cfg.Client.IdleTimeout)
	}
}

func TestLoad_EnvFile(t *testing.T) {
	dir := t.TempDir()
	envPath := writeFile(t, dir, ".env", "DOTENV_NAME=from-dotenv\n")
	t.Cleanup(func() { os.Unsetenv("DOTENV_NAME") })

	var cfg testConfig
	if err := Load("dotenv", &cfg, WithEnvFile(envPath)); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Name != "from-dotenv" {
		t.Errorf("expected name from .env, got %q", cfg.Name)
	}
}

func TestLoad_MissingFileIsNotFatal(t *testing.T) {
	var cfg testConfig
	if err := Load("missing", &cfg, WithConfigFile("/nonexistent/path.yml")); err != nil {
		t.Fatalf("expected success with missing file, got %v", err)
	}
}

func TestLoad_MalformedFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "bad.yml", "client: [unterminated\n")
	var cfg testConfig
	if err := Load("bad", &cfg, WithConfigFile(path)); err == nil {
		t.Fatal("expected error for malformed yaml")
	}
}

func TestKeys(t *testing.T) {
	keys := Keys(&testConfig{})
	want := []string{"client.idle_timeout", "client.max_idle", "client.compress", "client.proxy.address", "name"}
	if !slices.Equal(keys, want) {
		t.Errorf("Keys() = %v, want %v", keys, want)
	}
}

type mockFS struct {
	files map[string]bool
}

func (m *mockFS) Exists(path string) bool  { return m.files[path] }
func (m *mockFS) LoadEnv(path string) error { return nil }

func TestResolve(t *testing.T) {
	tests := []struct {
		name     string
		files    map[string]bool
		lc       LoaderConfig
		wantConf string
		wantEnv  string
	}{
		{"named file", map[string]bool{"./svc.yml": true, "./config.yml": true}, LoaderConfig{}, "./svc.yml", ""},
		{"config dir", map[string]bool{"./config/svc.yaml": true}, LoaderConfig{}, "./config/svc.yaml", ""},
		{"fallback", map[string]bool{"./config.yml": true, ".env": true}, LoaderConfig{}, "./config.yml", ".env"},
		{"named env first", map[string]bool{".env.svc": true, ".env": true}, LoaderConfig{}, "", ".env.svc"},
		{"explicit wins", map[string]bool{"./svc.yml": true}, LoaderConfig{ConfigFile: "/etc/svc.yml"}, "/etc/svc.yml", ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tc.lc.FileSystem = &mockFS{files: tc.files}
			got := Resolve("svc", tc.lc)
			if got.ConfigFile != tc.wantConf || got.EnvFile != tc.wantEnv {
				t.Errorf("Resolve() = %+v, want config=%q env=%q", got, tc.wantConf, tc.wantEnv)
			}
		})
	}
}
