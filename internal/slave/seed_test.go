package slave

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadSeed_ValidAndRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "services.yaml")
	data := `services:
  - id: web
    name: Website
    type: http
    url: https://example.com
    interval: 30
    timeout: 5000
  - id: gw
    name: Gateway
    type: icmp
    host: 192.168.1.1
    interval: 10
    timeout: 2000
  - id: broken
    name: Broken
    type: http
    interval: 30
    timeout: 5000
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	valid, rejected, err := LoadSeed(path)
	if err != nil {
		t.Fatalf("LoadSeed: %v", err)
	}
	if len(valid) != 2 {
		t.Fatalf("want 2 valid configs, got %d", len(valid))
	}
	if valid[0].ID != "web" || valid[1].ID != "gw" {
		t.Fatalf("valid ids wrong: %+v", valid)
	}
	if len(rejected) != 1 {
		t.Fatalf("want 1 rejected entry, got %v", rejected)
	}
}

func TestLoadSeed_MissingFile(t *testing.T) {
	if _, _, err := LoadSeed(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadSeed_BadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("services: [unclosed"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, _, err := LoadSeed(path); err == nil {
		t.Fatal("expected parse error")
	}
}
