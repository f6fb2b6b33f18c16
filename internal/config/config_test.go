package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadExampleFile(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "configs", "feeder.example.yaml"))
	if err != nil {
		t.Fatalf("loading example config: %v", err)
	}
	if cfg.Network.Host != "127.0.0.1" {
		t.Errorf("network.host = %q", cfg.Network.Host)
	}
	if cfg.Network.Port != 30005 {
		t.Errorf("network.port = %d", cfg.Network.Port)
	}
	if cfg.Network.DSCP != "AF41" {
		t.Errorf("network.dscp = %q", cfg.Network.DSCP)
	}
	if cfg.Buffer.GCInterval != 2*time.Minute {
		t.Errorf("buffer.gc_interval = %v", cfg.Buffer.GCInterval)
	}
	if cfg.Ident.Username != "example-sensor" {
		t.Errorf("ident.username = %q", cfg.Ident.Username)
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "minimal.yaml")
	if err := os.WriteFile(path, []byte("network:\n  host: 10.0.0.1\n"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("loading minimal config: %v", err)
	}
	if cfg.Buffer.StaticBacklog != 200 {
		t.Errorf("default static_backlog = %d, want 200", cfg.Buffer.StaticBacklog)
	}
	if cfg.Buffer.DynamicIncrements != 1080 {
		t.Errorf("default dynamic_increments = %d, want 1080", cfg.Buffer.DynamicIncrements)
	}
	if cfg.Network.Port != 30005 {
		t.Errorf("default port = %d, want 30005", cfg.Network.Port)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Errorf("default logging = %+v", cfg.Logging)
	}
}

func TestLoadRejectsMissingHost(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(path, []byte("buffer:\n  static_backlog: 10\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected an error when network.host is missing")
	}
}

func TestLoadRejectsBadStaticBacklog(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	body := "network:\n  host: 10.0.0.1\nbuffer:\n  static_backlog: 1\n"
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected an error when buffer.static_backlog < 2")
	}
}

func TestLoadRejectsUnknownDSCP(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	body := "network:\n  host: 10.0.0.1\n  dscp: NOTREAL\n"
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected an error for an unknown DSCP name")
	}
}

func TestLoadRejectsLongUsername(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	body := "network:\n  host: 10.0.0.1\nident:\n  username: " +
		"this-username-is-far-too-long-to-fit-in-forty-bytes-total\n"
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected an error for a username over 40 bytes")
	}
}
