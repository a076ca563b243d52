package capture

import (
	"context"
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"go.uber.org/zap/zaptest"

	"github.com/menta2k/visual-search/pkg/photostore"
	"github.com/menta2k/visual-search/pkg/types"
)

type fakeDevice struct {
	ready    bool
	uri      string
	err      error
	calls    int
	settings types.CameraSettings
}

func (f *fakeDevice) Ready() bool { return f.ready }

func (f *fakeDevice) TakePicture(ctx context.Context, settings types.CameraSettings) (string, error) {
	f.calls++
	f.settings = settings
	return f.uri, f.err
}

type recordingStore struct {
	photostore.Store
	saved []string
	err   error
}

func (r *recordingStore) Save(ctx context.Context, localURI string) (types.Asset, error) {
	if r.err != nil {
		return types.Asset{}, r.err
	}
	r.saved = append(r.saved, localURI)
	return types.Asset{URI: localURI, AlbumID: "Camera"}, nil
}

func TestCaptureNotReady(t *testing.T) {
	device := &fakeDevice{ready: false}
	store := &recordingStore{}
	svc := NewService(device, store, zaptest.NewLogger(t))

	_, err := svc.Capture(context.Background())
	if !errors.Is(err, types.ErrCaptureUnavailable) {
		t.Fatalf("Expected ErrCaptureUnavailable, got %v", err)
	}
	if device.calls != 0 || len(store.saved) != 0 {
		t.Error("capture with no ready device had side effects")
	}

	if _, err := NewService(nil, store, nil).Capture(context.Background()); !errors.Is(err, types.ErrCaptureUnavailable) {
		t.Errorf("Expected ErrCaptureUnavailable without a device, got %v", err)
	}
}

func TestCaptureSavesToLibrary(t *testing.T) {
	device := &fakeDevice{ready: true, uri: "/tmp/shot.jpg"}
	store := &recordingStore{}
	svc := NewService(device, store, nil)

	img, err := svc.Capture(context.Background())
	if err != nil {
		t.Fatalf("Capture failed: %v", err)
	}
	if img.LocalURI != "/tmp/shot.jpg" {
		t.Errorf("unexpected uri %s", img.LocalURI)
	}
	if len(store.saved) != 1 || store.saved[0] != "/tmp/shot.jpg" {
		t.Errorf("shot was not saved: %v", store.saved)
	}
}

func TestCaptureErrors(t *testing.T) {
	device := &fakeDevice{ready: true, err: errors.New("shutter jammed")}
	if _, err := NewService(device, nil, nil).Capture(context.Background()); err == nil || errors.Is(err, types.ErrCaptureUnavailable) {
		t.Errorf("Expected a device error, got %v", err)
	}

	device = &fakeDevice{ready: true, uri: "/tmp/shot.jpg"}
	store := &recordingStore{err: types.ErrPermissionDenied}
	if _, err := NewService(device, store, nil).Capture(context.Background()); !errors.Is(err, types.ErrPermissionDenied) {
		t.Errorf("Expected save error, got %v", err)
	}
}

func TestSettingsPassThrough(t *testing.T) {
	device := &fakeDevice{ready: true, uri: "x.jpg"}
	svc := NewService(device, nil, nil)

	if got := svc.ToggleFlash(); got != types.FlashOn {
		t.Errorf("Expected flash on, got %s", got)
	}
	if got := svc.SwitchFacing(); got != types.FacingFront {
		t.Errorf("Expected front camera, got %s", got)
	}
	svc.SetZoom(3)

	if _, err := svc.Capture(context.Background()); err != nil {
		t.Fatal(err)
	}
	want := types.CameraSettings{Facing: types.FacingFront, Flash: types.FlashOn, Zoom: 1}
	if device.settings != want {
		t.Errorf("Expected settings %+v, got %+v", want, device.settings)
	}

	svc.ToggleFlash()
	svc.SwitchFacing()
	if s := svc.Settings(); s.Flash != types.FlashOff || s.Facing != types.FacingBack {
		t.Errorf("toggles did not switch back: %+v", s)
	}
}

func writeSource(t *testing.T, w, h int) string {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.NRGBA{uint8(x), uint8(y), 0, 255})
		}
	}
	path := filepath.Join(t.TempDir(), "source.png")
	if err := imaging.Save(img, path); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestFileDevice(t *testing.T) {
	spool := t.TempDir()
	device := NewFileDevice(writeSource(t, 80, 40), spool)

	if !device.Ready() {
		t.Fatal("device with a source should be ready")
	}

	path, err := device.TakePicture(context.Background(), DefaultSettings())
	if err != nil {
		t.Fatalf("TakePicture failed: %v", err)
	}
	if filepath.Dir(path) != spool {
		t.Errorf("shot written outside the spool dir: %s", path)
	}
	shot, err := imaging.Open(path)
	if err != nil {
		t.Fatalf("shot is not a readable image: %v", err)
	}
	if shot.Bounds().Dx() != 80 || shot.Bounds().Dy() != 40 {
		t.Errorf("Expected 80x40 shot, got %v", shot.Bounds())
	}

	zoomed, err := device.TakePicture(context.Background(), types.CameraSettings{Facing: types.FacingFront, Zoom: 1})
	if err != nil {
		t.Fatalf("zoomed TakePicture failed: %v", err)
	}
	if zoomed == path {
		t.Error("second shot reused the first file name")
	}
	zimg, err := imaging.Open(zoomed)
	if err != nil {
		t.Fatal(err)
	}
	if zimg.Bounds().Dx() != 20 || zimg.Bounds().Dy() != 10 {
		t.Errorf("Expected 20x10 zoomed shot, got %v", zimg.Bounds())
	}

	device.SetSource("")
	if device.Ready() {
		t.Error("device without a source should not be ready")
	}
}

func TestFileDeviceWithStore(t *testing.T) {
	root := t.TempDir()
	store := photostore.NewDir(root, "Camera")
	svc := NewService(NewFileDevice(writeSource(t, 16, 16), t.TempDir()), store, nil)

	if _, err := svc.Capture(context.Background()); err != nil {
		t.Fatalf("Capture failed: %v", err)
	}
	entries, err := os.ReadDir(filepath.Join(root, "Camera"))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("Expected the shot in the camera album, found %d files", len(entries))
	}
}
