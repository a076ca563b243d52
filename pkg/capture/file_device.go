package capture

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/disintegration/imaging"

	"github.com/menta2k/visual-search/internal/utils"
	"github.com/menta2k/visual-search/pkg/processing"
	"github.com/menta2k/visual-search/pkg/types"
)

// FileDevice is a capture device that "photographs" a still source, a file
// path or http(s) URL, writing each shot as a JPEG into a spool directory.
type FileDevice struct {
	processor *processing.Processor
	spoolDir  string
	quality   int

	mu     sync.Mutex
	source string
	now    func() time.Time
}

// NewFileDevice creates a device shooting source into spoolDir
func NewFileDevice(source, spoolDir string) *FileDevice {
	return &FileDevice{
		processor: processing.NewProcessor(),
		spoolDir:  spoolDir,
		quality:   90,
		source:    source,
		now:       time.Now,
	}
}

// SetSource points the device at a new still source; an empty source makes the device not ready
func (d *FileDevice) SetSource(source string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.source = source
}

// Ready implements Device
func (d *FileDevice) Ready() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.source != "" && d.spoolDir != ""
}

// TakePicture implements Device. Zoom crops around the center; a front
// facing shot is mirrored like a selfie preview.
func (d *FileDevice) TakePicture(ctx context.Context, settings types.CameraSettings) (string, error) {
	d.mu.Lock()
	source := d.source
	d.mu.Unlock()
	if source == "" {
		return "", errors.New("no source configured")
	}

	img, err := d.processor.LoadImageSmart(ctx, source)
	if err != nil {
		return "", fmt.Errorf("failed to load source: %w", err)
	}

	if settings.Zoom > 0 {
		// zoom 1 keeps a quarter of each side
		scale := 1 - 0.75*min(settings.Zoom, 1)
		b := img.Bounds()
		w := max(1, int(float64(b.Dx())*scale))
		h := max(1, int(float64(b.Dy())*scale))
		img = imaging.CropCenter(img, w, h)
	}
	if settings.Facing == types.FacingFront {
		img = imaging.FlipH(img)
	}

	if err := utils.EnsureDir(d.spoolDir); err != nil {
		return "", fmt.Errorf("failed to create spool dir: %w", err)
	}
	path := utils.UniquePath(filepath.Join(d.spoolDir, utils.ShotFilename("IMG_", d.now(), "jpg")))
	if err := imaging.Save(img, path, imaging.JPEGQuality(d.quality)); err != nil {
		return "", fmt.Errorf("failed to write shot: %w", err)
	}

	return path, nil
}
