package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. VSEARCH_SERVER_BASE_URL
const EnvPrefix = "VSEARCH"

// Config holds the application configuration
type Config struct {
	Server  ServerConfig  `json:"server" mapstructure:"server"`
	Gallery GalleryConfig `json:"gallery" mapstructure:"gallery"`
	Display DisplayConfig `json:"display" mapstructure:"display"`
	Search  SearchConfig  `json:"search" mapstructure:"search"`
	Capture CaptureConfig `json:"capture" mapstructure:"capture"`
}

// ServerConfig locates the search service
type ServerConfig struct {
	BaseURL    string        `json:"base_url" mapstructure:"base_url"`
	MediaPath  string        `json:"media_path" mapstructure:"media_path"`
	UploadPath string        `json:"upload_path" mapstructure:"upload_path"`
	SearchPath string        `json:"search_path" mapstructure:"search_path"`
	Timeout    time.Duration `json:"timeout" mapstructure:"timeout"`
}

// GalleryConfig holds the photo library settings
type GalleryConfig struct {
	Root        string `json:"root" mapstructure:"root"`
	CameraAlbum string `json:"camera_album" mapstructure:"camera_album"`
	Limit       int    `json:"limit" mapstructure:"limit"`
	PerAlbum    int    `json:"per_album" mapstructure:"per_album"`
}

// DisplayConfig describes the screen the image is rendered on
type DisplayConfig struct {
	ViewportWidth  float64 `json:"viewport_width" mapstructure:"viewport_width"`
	ViewportHeight float64 `json:"viewport_height" mapstructure:"viewport_height"`
	MaxWidthRatio  float64 `json:"max_width_ratio" mapstructure:"max_width_ratio"`
	MaxHeightRatio float64 `json:"max_height_ratio" mapstructure:"max_height_ratio"`
}

// SearchConfig paces outgoing searches
type SearchConfig struct {
	RatePerSecond float64 `json:"rate_per_second" mapstructure:"rate_per_second"`
	Burst         int     `json:"burst" mapstructure:"burst"`
}

// CaptureConfig configures the file-backed capture device
type CaptureConfig struct {
	Source   string  `json:"source" mapstructure:"source"`
	SpoolDir string  `json:"spool_dir" mapstructure:"spool_dir"`
	Facing   string  `json:"facing" mapstructure:"facing"`
	Flash    string  `json:"flash" mapstructure:"flash"`
	Zoom     float64 `json:"zoom" mapstructure:"zoom"`
}

// Default returns a configuration with default values
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			BaseURL:    "http://localhost:8000",
			MediaPath:  "/media/",
			UploadPath: "/upload/",
			SearchPath: "/crop_and_process/",
			Timeout:    60 * time.Second,
		},
		Gallery: GalleryConfig{
			Root:        "./photos",
			CameraAlbum: "Camera",
			Limit:       32,
			PerAlbum:    20,
		},
		Display: DisplayConfig{
			ViewportWidth:  390,
			ViewportHeight: 844,
			MaxWidthRatio:  0.7,
			MaxHeightRatio: 0.5,
		},
		Search: SearchConfig{
			RatePerSecond: 2,
			Burst:         1,
		},
		Capture: CaptureConfig{
			SpoolDir: filepath.Join(os.TempDir(), "visual-search"),
			Facing:   "back",
			Flash:    "off",
		},
	}
}

// UploadURL is the full upload endpoint
func (s ServerConfig) UploadURL() string {
	return joinURL(s.BaseURL, s.UploadPath)
}

// SearchURL is the full search endpoint
func (s ServerConfig) SearchURL() string {
	return joinURL(s.BaseURL, s.SearchPath)
}

// MediaRoot is the URL prefix stripped from uploaded image URLs
func (s ServerConfig) MediaRoot() string {
	return joinURL(s.BaseURL, s.MediaPath)
}

func joinURL(base, path string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}

// Load builds the configuration from defaults, an optional file and
// VSEARCH_* environment variables, in increasing precedence.
func Load(filename string) (*Config, error) {
	v := newViper()
	if filename != "" {
		v.SetConfigFile(filename)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return config, nil
}

// LoadFromFile loads configuration from a JSON or YAML file
func LoadFromFile(filename string) (*Config, error) {
	if _, err := os.Stat(filename); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Load(filename)
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v, Default())
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// setDefaults registers every key so environment overrides apply to keys
// that are absent from the file
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("server.base_url", d.Server.BaseURL)
	v.SetDefault("server.media_path", d.Server.MediaPath)
	v.SetDefault("server.upload_path", d.Server.UploadPath)
	v.SetDefault("server.search_path", d.Server.SearchPath)
	v.SetDefault("server.timeout", d.Server.Timeout)

	v.SetDefault("gallery.root", d.Gallery.Root)
	v.SetDefault("gallery.camera_album", d.Gallery.CameraAlbum)
	v.SetDefault("gallery.limit", d.Gallery.Limit)
	v.SetDefault("gallery.per_album", d.Gallery.PerAlbum)

	v.SetDefault("display.viewport_width", d.Display.ViewportWidth)
	v.SetDefault("display.viewport_height", d.Display.ViewportHeight)
	v.SetDefault("display.max_width_ratio", d.Display.MaxWidthRatio)
	v.SetDefault("display.max_height_ratio", d.Display.MaxHeightRatio)

	v.SetDefault("search.rate_per_second", d.Search.RatePerSecond)
	v.SetDefault("search.burst", d.Search.Burst)

	v.SetDefault("capture.source", d.Capture.Source)
	v.SetDefault("capture.spool_dir", d.Capture.SpoolDir)
	v.SetDefault("capture.facing", d.Capture.Facing)
	v.SetDefault("capture.flash", d.Capture.Flash)
	v.SetDefault("capture.zoom", d.Capture.Zoom)
}

// SaveToFile saves configuration to a JSON file
func (c *Config) SaveToFile(filename string) error {
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if _, err := url.ParseRequestURI(c.Server.BaseURL); err != nil {
		return fmt.Errorf("server.base_url is invalid: %v", err)
	}

	if c.Server.MediaPath == "" {
		return fmt.Errorf("server.media_path cannot be empty")
	}

	if c.Server.Timeout <= 0 {
		return fmt.Errorf("server.timeout must be positive")
	}

	if c.Gallery.Limit < 0 || c.Gallery.PerAlbum < 0 {
		return fmt.Errorf("gallery limits cannot be negative")
	}

	if c.Display.ViewportWidth <= 0 || c.Display.ViewportHeight <= 0 {
		return fmt.Errorf("display viewport must be positive")
	}

	if c.Display.MaxWidthRatio <= 0 || c.Display.MaxWidthRatio > 1 {
		return fmt.Errorf("display.max_width_ratio must be between 0 and 1")
	}

	if c.Display.MaxHeightRatio <= 0 || c.Display.MaxHeightRatio > 1 {
		return fmt.Errorf("display.max_height_ratio must be between 0 and 1")
	}

	if c.Search.RatePerSecond < 0 {
		return fmt.Errorf("search.rate_per_second cannot be negative")
	}

	if c.Capture.Facing != "back" && c.Capture.Facing != "front" {
		return fmt.Errorf("capture.facing must be back or front")
	}

	if c.Capture.Flash != "off" && c.Capture.Flash != "on" {
		return fmt.Errorf("capture.flash must be off or on")
	}

	if c.Capture.Zoom < 0 || c.Capture.Zoom > 1 {
		return fmt.Errorf("capture.zoom must be between 0 and 1")
	}

	return nil
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.json"
	}
	return filepath.Join(home, ".config", "visual-search", "config.json")
}
