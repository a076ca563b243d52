package utils

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestIsImageFile(t *testing.T) {
	for _, name := range []string{"a.jpg", "b.JPEG", "c.png", "d.webp"} {
		if !IsImageFile(name) {
			t.Errorf("%s should be an image", name)
		}
	}
	for _, name := range []string{"notes.txt", "video.mp4", "noext", ".hidden"} {
		if IsImageFile(name) {
			t.Errorf("%s should not be an image", name)
		}
	}
}

func TestShotFilename(t *testing.T) {
	ts := time.Date(2024, 3, 5, 14, 7, 9, 42, time.UTC)
	if got := ShotFilename("IMG_", ts, ""); got != "IMG_20240305_140709_000000042.jpg" {
		t.Errorf("unexpected name %q", got)
	}
}

func TestUniquePath(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "photo.jpg")

	if got := UniquePath(p); got != p {
		t.Errorf("Expected %s, got %s", p, got)
	}
	if err := os.WriteFile(p, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	if got := UniquePath(p); got != filepath.Join(dir, "photo_1.jpg") {
		t.Errorf("Expected photo_1.jpg, got %s", got)
	}
}

func TestEnsureDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")
	if err := EnsureDir(dir); err != nil {
		t.Fatalf("EnsureDir failed: %v", err)
	}
	if !DirExists(dir) {
		t.Error("directory was not created")
	}
	if FileExists(dir) {
		t.Error("FileExists should be false for a directory")
	}
}

func TestFormatFileSize(t *testing.T) {
	cases := map[int64]string{
		512:             "512 B",
		2048:            "2.0 KB",
		5 * 1024 * 1024: "5.0 MB",
	}
	for in, want := range cases {
		if got := FormatFileSize(in); got != want {
			t.Errorf("FormatFileSize(%d) = %q, want %q", in, got, want)
		}
	}
}
