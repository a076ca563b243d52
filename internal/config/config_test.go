package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	c := Default()
	if err := c.Validate(); err != nil {
		t.Fatalf("default config should be valid: %v", err)
	}
	if c.Gallery.Limit != 32 || c.Gallery.PerAlbum != 20 {
		t.Errorf("Expected gallery limits 32/20, got %d/%d", c.Gallery.Limit, c.Gallery.PerAlbum)
	}
	if c.Display.MaxWidthRatio != 0.7 || c.Display.MaxHeightRatio != 0.5 {
		t.Errorf("Expected budgets 0.7/0.5, got %v/%v", c.Display.MaxWidthRatio, c.Display.MaxHeightRatio)
	}
}

func TestServerURLs(t *testing.T) {
	s := ServerConfig{BaseURL: "http://host:8000/", MediaPath: "media/", UploadPath: "/upload/", SearchPath: "crop_and_process/"}

	if got := s.UploadURL(); got != "http://host:8000/upload/" {
		t.Errorf("Expected upload url http://host:8000/upload/, got %s", got)
	}
	if got := s.SearchURL(); got != "http://host:8000/crop_and_process/" {
		t.Errorf("Expected search url http://host:8000/crop_and_process/, got %s", got)
	}
	if got := s.MediaRoot(); got != "http://host:8000/media/" {
		t.Errorf("Expected media root http://host:8000/media/, got %s", got)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad base url", func(c *Config) { c.Server.BaseURL = "not a url" }},
		{"empty media path", func(c *Config) { c.Server.MediaPath = "" }},
		{"zero timeout", func(c *Config) { c.Server.Timeout = 0 }},
		{"negative limit", func(c *Config) { c.Gallery.Limit = -1 }},
		{"zero viewport", func(c *Config) { c.Display.ViewportWidth = 0 }},
		{"width ratio above one", func(c *Config) { c.Display.MaxWidthRatio = 1.5 }},
		{"zero height ratio", func(c *Config) { c.Display.MaxHeightRatio = 0 }},
		{"negative rate", func(c *Config) { c.Search.RatePerSecond = -1 }},
		{"unknown facing", func(c *Config) { c.Capture.Facing = "side" }},
		{"unknown flash", func(c *Config) { c.Capture.Flash = "auto" }},
		{"zoom out of range", func(c *Config) { c.Capture.Zoom = 2 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mutate(c)
			if err := c.Validate(); err == nil {
				t.Error("Expected validation error")
			}
		})
	}
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")

	c := Default()
	c.Server.BaseURL = "http://10.0.0.5:8000"
	c.Server.Timeout = 15 * time.Second
	c.Gallery.Limit = 12
	c.Capture.Zoom = 0.25

	if err := c.SaveToFile(path); err != nil {
		t.Fatalf("SaveToFile failed: %v", err)
	}

	loaded, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}
	if loaded.Server.BaseURL != "http://10.0.0.5:8000" {
		t.Errorf("Expected base url to round trip, got %s", loaded.Server.BaseURL)
	}
	if loaded.Server.Timeout != 15*time.Second {
		t.Errorf("Expected 15s timeout, got %v", loaded.Server.Timeout)
	}
	if loaded.Gallery.Limit != 12 {
		t.Errorf("Expected limit 12, got %d", loaded.Gallery.Limit)
	}
	if loaded.Capture.Zoom != 0.25 {
		t.Errorf("Expected zoom 0.25, got %v", loaded.Capture.Zoom)
	}
}

func TestLoadYAMLWithDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := "server:\n  base_url: http://backend:9000\n  timeout: 5s\ngallery:\n  per_album: 3\n"
	if err := os.WriteFile(path, []byte(yaml), 0644); err != nil {
		t.Fatal(err)
	}

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if c.Server.BaseURL != "http://backend:9000" || c.Server.Timeout != 5*time.Second {
		t.Errorf("file values not applied: %+v", c.Server)
	}
	if c.Gallery.PerAlbum != 3 {
		t.Errorf("Expected per album 3, got %d", c.Gallery.PerAlbum)
	}
	if c.Gallery.Limit != 32 || c.Server.UploadPath != "/upload/" {
		t.Errorf("defaults not applied for missing keys: %+v", c)
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("VSEARCH_SERVER_BASE_URL", "http://env-host:8000")
	t.Setenv("VSEARCH_GALLERY_LIMIT", "5")

	c, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if c.Server.BaseURL != "http://env-host:8000" {
		t.Errorf("Expected env base url, got %s", c.Server.BaseURL)
	}
	if c.Gallery.Limit != 5 {
		t.Errorf("Expected env limit 5, got %d", c.Gallery.Limit)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("Expected error for missing file")
	}
}
