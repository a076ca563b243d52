// Package capture acquires new photos from a capture device and files them
// into the photo store.
package capture

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/menta2k/visual-search/pkg/photostore"
	"github.com/menta2k/visual-search/pkg/types"
)

// Device is a camera-like source of local images
type Device interface {
	// Ready reports whether the device can take a picture now
	Ready() bool
	// TakePicture acquires an image and returns its local URI
	TakePicture(ctx context.Context, settings types.CameraSettings) (string, error)
}

// Service triggers image acquisition. It never uploads.
type Service struct {
	device Device
	store  photostore.Store
	logger *zap.Logger

	mu       sync.Mutex
	settings types.CameraSettings
}

// DefaultSettings is the back camera with flash off and no zoom
func DefaultSettings() types.CameraSettings {
	return types.CameraSettings{Facing: types.FacingBack, Flash: types.FlashOff}
}

// NewService creates a capture service. store may be nil to skip saving shots.
func NewService(device Device, store photostore.Store, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		device:   device,
		store:    store,
		logger:   logger,
		settings: DefaultSettings(),
	}
}

// Capture takes a picture and saves it into the photo store. It returns
// types.ErrCaptureUnavailable, with no side effects, when the device is not ready.
func (s *Service) Capture(ctx context.Context) (types.CapturedImage, error) {
	if s.device == nil || !s.device.Ready() {
		return types.CapturedImage{}, types.ErrCaptureUnavailable
	}

	settings := s.Settings()
	uri, err := s.device.TakePicture(ctx, settings)
	if err != nil {
		return types.CapturedImage{}, fmt.Errorf("failed to take picture: %w", err)
	}

	if s.store != nil {
		asset, err := s.store.Save(ctx, uri)
		if err != nil {
			return types.CapturedImage{}, fmt.Errorf("failed to save picture: %w", err)
		}
		s.logger.Debug("picture saved to library", zap.String("uri", asset.URI), zap.String("album", asset.AlbumID))
	}

	s.logger.Info("picture taken",
		zap.String("uri", uri),
		zap.String("facing", string(settings.Facing)),
		zap.String("flash", string(settings.Flash)),
		zap.Float64("zoom", settings.Zoom))

	return types.CapturedImage{LocalURI: uri}, nil
}

// Settings returns the current camera settings
func (s *Service) Settings() types.CameraSettings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

// SetSettings replaces the camera settings
func (s *Service) SetSettings(settings types.CameraSettings) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = settings
}

// ToggleFlash switches the flash between off and on
func (s *Service) ToggleFlash() types.Flash {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.settings.Flash == types.FlashOn {
		s.settings.Flash = types.FlashOff
	} else {
		s.settings.Flash = types.FlashOn
	}
	return s.settings.Flash
}

// SwitchFacing switches between the back and front camera
func (s *Service) SwitchFacing() types.Facing {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.settings.Facing == types.FacingFront {
		s.settings.Facing = types.FacingBack
	} else {
		s.settings.Facing = types.FacingFront
	}
	return s.settings.Facing
}

// SetZoom sets the zoom level, clamped to [0,1]
func (s *Service) SetZoom(zoom float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings.Zoom = min(max(zoom, 0), 1)
}
