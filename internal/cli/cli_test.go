package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/prometheus/client_golang/prometheus"

	visualsearch "github.com/menta2k/visual-search"
	"github.com/menta2k/visual-search/internal/config"
	"github.com/menta2k/visual-search/pkg/types"
)

func newBackend(t *testing.T) *httptest.Server {
	t.Helper()
	var server *httptest.Server
	mux := http.NewServeMux()
	mux.HandleFunc("/upload/", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"image_url": server.URL + "/media/uploads/x.png"})
	})
	mux.HandleFunc("/crop_and_process/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"respond":[{"id":"a1","title":"Mug","price":"4.99","source":"shop","link":"http://shop/a1"}]}`))
	})
	server = httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func writePhoto(t *testing.T, dir string) string {
	t.Helper()
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	img := image.NewNRGBA(image.Rect(0, 0, 100, 50))
	for x := 0; x < 100; x++ {
		img.Set(x, 25, color.NRGBA{255, 255, 255, 255})
	}
	path := filepath.Join(dir, "photo.png")
	if err := imaging.Save(img, path); err != nil {
		t.Fatal(err)
	}
	return path
}

// isolate keeps the user's config file and .env out of the test
func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Chdir(t.TempDir())
}

func TestParsePair(t *testing.T) {
	x, y, err := parsePair("12.5, 40")
	if err != nil || x != 12.5 || y != 40 {
		t.Errorf("Expected 12.5,40, got %v,%v (%v)", x, y, err)
	}
	for _, bad := range []string{"", "1", "a,2", "1,b"} {
		if _, _, err := parsePair(bad); err == nil {
			t.Errorf("Expected error for %q", bad)
		}
	}
}

func TestTapPoint(t *testing.T) {
	box := types.DisplayBox{Width: 200, Height: 100}

	tests := []struct {
		name string
		opts searchOptions
		want types.TapPoint
	}{
		{"center by default", searchOptions{}, types.TapPoint{X: 100, Y: 50}},
		{"tap in pixels", searchOptions{tap: "10,20"}, types.TapPoint{X: 10, Y: 20}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.opts.tapPoint(box)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("Expected %+v, got %+v", tt.want, got)
			}
		})
	}
}

func TestSearchCommand(t *testing.T) {
	isolate(t)
	server := newBackend(t)
	photos := t.TempDir()
	writePhoto(t, filepath.Join(photos, "Camera"))

	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"search", "--server", server.URL, "--photos", photos, "--pick", "0", "--point", "0.5,0.5", "--json"})

	if err := root.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("search failed: %v", err)
	}

	var results types.ResultSet
	if err := json.Unmarshal(out.Bytes(), &results); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out.String())
	}
	if len(results) != 1 || results[0].Title != "Mug" {
		t.Errorf("unexpected results %+v", results)
	}
}

func TestSearchCommandSendsPointUnchanged(t *testing.T) {
	isolate(t)
	var (
		server *httptest.Server
		sent   struct {
			X float64 `json:"x"`
			Y float64 `json:"y"`
		}
	)
	mux := http.NewServeMux()
	mux.HandleFunc("/upload/", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"image_url": server.URL + "/media/uploads/x.png"})
	})
	mux.HandleFunc("/crop_and_process/", func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&sent); err != nil {
			t.Errorf("bad search body: %v", err)
		}
		w.Write([]byte(`{"respond":[]}`))
	})
	server = httptest.NewServer(mux)
	defer server.Close()

	photos := t.TempDir()
	writePhoto(t, filepath.Join(photos, "Camera"))

	root := NewRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetArgs([]string{"search", "--server", server.URL, "--photos", photos, "--pick", "0", "--point", "0.3,0.7", "--json"})
	if err := root.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if sent.X != 0.3 || sent.Y != 0.7 {
		t.Errorf("Expected 0.3,0.7, got %v,%v", sent.X, sent.Y)
	}
}

func TestSearchCommandRequiresSource(t *testing.T) {
	isolate(t)
	root := NewRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"search"})
	if err := root.Execute(); err == nil {
		t.Error("Expected error without a source")
	}
}

func TestGalleryCommand(t *testing.T) {
	isolate(t)
	photos := t.TempDir()
	path := writePhoto(t, filepath.Join(photos, "Screenshots"))

	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"gallery", "--photos", photos})
	if err := root.Execute(); err != nil {
		t.Fatalf("gallery failed: %v", err)
	}
	if !strings.Contains(out.String(), path) || !strings.Contains(out.String(), "Screenshots") {
		t.Errorf("gallery output missing photo:\n%s", out.String())
	}
}

func TestConfigInitAndShow(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "vs.json")

	root := NewRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetArgs([]string{"config", "init", path})
	if err := root.Execute(); err != nil {
		t.Fatalf("config init failed: %v", err)
	}

	root = NewRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"config", "init", path})
	if err := root.Execute(); err == nil {
		t.Error("Expected refusal to overwrite without --force")
	}

	root = NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"config", "show", "--config", path, "--server", "http://other:8000"})
	if err := root.Execute(); err != nil {
		t.Fatalf("config show failed: %v", err)
	}
	var cfg config.Config
	if err := json.Unmarshal(out.Bytes(), &cfg); err != nil {
		t.Fatalf("config show output is not JSON: %v", err)
	}
	if cfg.Server.BaseURL != "http://other:8000" {
		t.Errorf("Expected flag override, got %s", cfg.Server.BaseURL)
	}
	if cfg.Gallery.Limit != 32 {
		t.Errorf("Expected default limit, got %d", cfg.Gallery.Limit)
	}
}

func TestReplSession(t *testing.T) {
	server := newBackend(t)
	cfg := config.Default()
	cfg.Server.BaseURL = server.URL
	cfg.Search.RatePerSecond = 0
	cfg.Gallery.Root = t.TempDir()
	cfg.Capture.SpoolDir = t.TempDir()
	writePhoto(t, filepath.Join(cfg.Gallery.Root, "Camera"))

	vs, err := visualsearch.New(cfg, nil, prometheus.NewRegistry())
	if err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	r := newRepl(vs, &out)
	script := strings.Join([]string{
		"tap 1 1",
		"gallery",
		"pick 0",
		"state",
		"tap 10 10",
		"dismiss",
		"capture",
		"flash",
		"bogus",
		"quit",
		"state",
	}, "\n")

	if err := r.run(context.Background(), strings.NewReader(script)); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	text := out.String()
	for _, want := range []string{
		"invalid transition",
		"uploaded uploads/x.png",
		"state awaiting_point",
		"Mug",
		"[showing_results]",
		"[idle]",
		"camera not ready",
		"flash on",
		"unknown command",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("session output missing %q:\n%s", want, text)
		}
	}
	if strings.Count(text, "state awaiting_point") != 1 {
		t.Error("commands after quit were executed")
	}
}

func TestMetricsHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	vs, err := visualsearch.New(config.Default(), nil, reg)
	if err != nil {
		t.Fatal(err)
	}
	vs.NewSession(visualsearch.SessionHooks{}).Abandon()

	rec := httptest.NewRecorder()
	metricsHandler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
}
