// Package visualsearch finds products similar to the object at a chosen point
// of a photo.
//
// A photo is taken with the capture device or picked from the local photo
// library, uploaded once to the search service, displayed fitted to the
// screen, and then searched around each point the user taps.
//
// Basic usage:
//
//	vs, err := visualsearch.New(config.Default(), logger, nil)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	session := vs.NewSession(visualsearch.SessionHooks{})
//	photos, _ := session.RecentPhotos(ctx)
//	if _, err := session.SelectFromGallery(ctx, photos[0]); err != nil {
//		log.Fatal(err)
//	}
//	w, h, _ := vs.ImageSize(ctx, photos[0].URI)
//	box, _ := session.ImageLoaded(w, h)
//	results, err := session.Tap(ctx, types.TapPoint{X: box.Width / 2, Y: box.Height / 2})
//
// The package consists of these components:
//
//  1. Gallery (pkg/gallery, pkg/photostore): recent photos across albums
//  2. Capture (pkg/capture): acquisition from a capture device
//  3. Upload and search clients (pkg/upload, pkg/search)
//  4. Coordinates (pkg/coords): display box fitting and tap normalization
//  5. Pipeline (pkg/pipeline): the interaction state machine
package visualsearch

import (
	"context"
	"fmt"
	"image"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/menta2k/visual-search/internal/config"
	"github.com/menta2k/visual-search/internal/monitoring"
	"github.com/menta2k/visual-search/internal/utils"
	"github.com/menta2k/visual-search/pkg/capture"
	"github.com/menta2k/visual-search/pkg/coords"
	"github.com/menta2k/visual-search/pkg/gallery"
	"github.com/menta2k/visual-search/pkg/photostore"
	"github.com/menta2k/visual-search/pkg/pipeline"
	"github.com/menta2k/visual-search/pkg/processing"
	"github.com/menta2k/visual-search/pkg/search"
	"github.com/menta2k/visual-search/pkg/types"
	"github.com/menta2k/visual-search/pkg/upload"
)

// Version of the visual search library
const Version = "1.0.0"

// VisualSearch wires the pipeline components from one configuration
type VisualSearch struct {
	config    *config.Config
	logger    *zap.Logger
	metrics   *monitoring.Metrics
	gallery   *gallery.Aggregator
	device    *capture.FileDevice
	capture   *capture.Service
	uploader  *upload.Client
	searcher  *search.Client
	processor *processing.Processor
}

// SessionHooks receive controller notifications
type SessionHooks struct {
	OnStateChange func(pipeline.Snapshot)
	OnError       func(error)
}

// New builds all components from cfg. Metrics are registered on reg; a nil
// reg disables them.
func New(cfg *config.Config, logger *zap.Logger, reg prometheus.Registerer) (*VisualSearch, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	uploader, err := upload.NewClient(upload.Config{
		Endpoint:  cfg.Server.UploadURL(),
		MediaRoot: cfg.Server.MediaRoot(),
		Timeout:   cfg.Server.Timeout,
	}, logger.Named("upload"))
	if err != nil {
		return nil, err
	}

	searcher, err := search.NewClient(search.Config{
		Endpoint:      cfg.Server.SearchURL(),
		Timeout:       cfg.Server.Timeout,
		RatePerSecond: cfg.Search.RatePerSecond,
		Burst:         cfg.Search.Burst,
	}, logger.Named("search"))
	if err != nil {
		return nil, err
	}

	store := photostore.NewDir(cfg.Gallery.Root, cfg.Gallery.CameraAlbum)
	device := capture.NewFileDevice(cfg.Capture.Source, cfg.Capture.SpoolDir)
	captureService := capture.NewService(device, store, logger.Named("capture"))
	captureService.SetSettings(types.CameraSettings{
		Facing: types.Facing(cfg.Capture.Facing),
		Flash:  types.Flash(cfg.Capture.Flash),
		Zoom:   cfg.Capture.Zoom,
	})

	var metrics *monitoring.Metrics
	if reg != nil {
		metrics = monitoring.NewMetrics(reg)
	}

	return &VisualSearch{
		config:  cfg,
		logger:  logger,
		metrics: metrics,
		gallery: gallery.NewWithConfig(store, gallery.Config{
			Limit:    cfg.Gallery.Limit,
			PerAlbum: cfg.Gallery.PerAlbum,
		}, logger.Named("gallery")),
		device:    device,
		capture:   captureService,
		uploader:  uploader,
		searcher:  searcher,
		processor: processing.NewProcessor(),
	}, nil
}

// NewSession creates a pipeline controller in the Idle state
func (vs *VisualSearch) NewSession(hooks SessionHooks) *pipeline.Controller {
	return pipeline.New(vs.capture, vs.uploader, vs.searcher, pipeline.Options{
		Viewport: coords.Size{
			Width:  vs.config.Display.ViewportWidth,
			Height: vs.config.Display.ViewportHeight,
		},
		Budget: coords.Budget{
			MaxWidth:  vs.config.Display.MaxWidthRatio,
			MaxHeight: vs.config.Display.MaxHeightRatio,
		},
		Gallery:       vs.gallery,
		Logger:        vs.logger.Named("pipeline"),
		Metrics:       vs.metrics,
		OnStateChange: hooks.OnStateChange,
		OnError:       hooks.OnError,
	})
}

// Camera exposes flash, facing and zoom controls
func (vs *VisualSearch) Camera() *capture.Service {
	return vs.capture
}

// SetCaptureSource points the capture device at a new still source
func (vs *VisualSearch) SetCaptureSource(source string) {
	vs.device.SetSource(source)
}

// RecentPhotos returns the configured number of newest photos
func (vs *VisualSearch) RecentPhotos(ctx context.Context) (types.PhotoCollection, error) {
	return vs.gallery.Refresh(ctx)
}

// ImageSize reports the natural pixel size of a local or remote image
func (vs *VisualSearch) ImageSize(ctx context.Context, source string) (int, int, error) {
	return vs.processor.ImageSize(ctx, source)
}

// Fit computes the display box for an image of the given natural size
func (vs *VisualSearch) Fit(width, height int) types.DisplayBox {
	return coords.Fit(
		coords.Size{Width: float64(width), Height: float64(height)},
		coords.Size{Width: vs.config.Display.ViewportWidth, Height: vs.config.Display.ViewportHeight},
		coords.Budget{MaxWidth: vs.config.Display.MaxWidthRatio, MaxHeight: vs.config.Display.MaxHeightRatio},
	)
}

// Overlay renders source with the tapped point marked
func (vs *VisualSearch) Overlay(ctx context.Context, source string, point types.NormalizedPoint) (image.Image, error) {
	img, err := vs.processor.LoadImageSmart(ctx, source)
	if err != nil {
		return nil, err
	}
	return vs.processor.CreateTapOverlay(img, point, 0.1), nil
}

// SaveOverlay writes an overlay of the tapped point to path
func (vs *VisualSearch) SaveOverlay(ctx context.Context, source string, point types.NormalizedPoint, path string) error {
	img, err := vs.Overlay(ctx, source, point)
	if err != nil {
		return err
	}
	return vs.processor.SaveImage(img, path, utils.GetFileExtension(path), 90, false)
}

// Config returns the configuration the components were built from
func (vs *VisualSearch) Config() *config.Config {
	return vs.config
}
