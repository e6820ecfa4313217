package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "carton.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "")) // empty file, all defaults
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Server.Host != "localhost" {
		t.Errorf("Host = %q, want localhost", cfg.Server.Host)
	}
	if cfg.Server.Port != 4578 {
		t.Errorf("Port = %d, want 4578", cfg.Server.Port)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "text" {
		t.Errorf("logging defaults = %+v", cfg.Logging)
	}
	if cfg.Shutdown.TimeoutSeconds != 10 {
		t.Errorf("TimeoutSeconds = %d, want 10", cfg.Shutdown.TimeoutSeconds)
	}
	if cfg.Website.RoutingRule != nil {
		t.Error("RoutingRule should default to nil")
	}
}

func TestLoadFullConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
server:
  host: 0.0.0.0
  port: 9999
  owner: tester
storage:
  directory: /tmp/carton
logging:
  level: debug
  format: json
  silent: true
website:
  index_document: index.html
  error_document: 404.html
  routing_rule:
    host_name: example.com
    protocol: https
    replace_key_prefix_with: new/
    http_redirect_code: 302
shutdown:
  timeout_seconds: 5
`))
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Server.Host != "0.0.0.0" || cfg.Server.Port != 9999 || cfg.Server.Owner != "tester" {
		t.Errorf("server config = %+v", cfg.Server)
	}
	if cfg.Storage.Directory != "/tmp/carton" {
		t.Errorf("Directory = %q", cfg.Storage.Directory)
	}
	if !cfg.Logging.Silent || cfg.Logging.Level != "debug" {
		t.Errorf("logging config = %+v", cfg.Logging)
	}
	rr := cfg.Website.RoutingRule
	if rr == nil || rr.HostName != "example.com" || rr.Protocol != "https" ||
		rr.ReplaceKeyPrefixWith != "new/" || rr.HTTPRedirectCode != 302 {
		t.Errorf("routing rule = %+v", rr)
	}
}

func TestLoadRoutingRuleDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
website:
  routing_rule:
    host_name: example.com
`))
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	rr := cfg.Website.RoutingRule
	if rr == nil {
		t.Fatal("routing rule not parsed")
	}
	if rr.Protocol != "http" {
		t.Errorf("Protocol = %q, want default http", rr.Protocol)
	}
	if rr.HTTPRedirectCode != 301 {
		t.Errorf("HTTPRedirectCode = %d, want default 301", rr.HTTPRedirectCode)
	}
}

func TestLoadMissingFileNoFallback(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("Load() on missing file with no fallback should error")
	}
}

func TestLoadExampleFallback(t *testing.T) {
	dir := t.TempDir()
	example := filepath.Join(dir, "carton.example.yaml")
	if err := os.WriteFile(example, []byte("server:\n  port: 1234\n"), 0o644); err != nil {
		t.Fatalf("writing example config: %v", err)
	}

	cfg, err := Load(filepath.Join(dir, "carton.yaml"))
	if err != nil {
		t.Fatalf("Load() should fall back to the example file: %v", err)
	}
	if cfg.Server.Port != 1234 {
		t.Errorf("Port = %d, want 1234 from fallback file", cfg.Server.Port)
	}
}
