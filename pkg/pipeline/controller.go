// Package pipeline drives the capture, upload, point selection and search
// flow as an explicit state machine owned by one session.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/menta2k/visual-search/internal/monitoring"
	"github.com/menta2k/visual-search/pkg/client"
	"github.com/menta2k/visual-search/pkg/coords"
	"github.com/menta2k/visual-search/pkg/gallery"
	"github.com/menta2k/visual-search/pkg/types"
)

// Options configure a Controller
type Options struct {
	// Viewport is the screen size the display box is fitted into
	Viewport coords.Size
	Budget   coords.Budget

	// Gallery backs RecentPhotos; optional
	Gallery *gallery.Aggregator

	Logger  *zap.Logger
	Metrics *monitoring.Metrics

	// OnStateChange is called after every transition
	OnStateChange func(Snapshot)
	// OnError is called once per user visible error
	OnError func(error)
}

// Controller owns the interaction state of one pipeline session. Operations
// block the calling goroutine for their I/O without holding the controller
// lock; results are applied only if the controller is still in the state
// and epoch the operation started from.
type Controller struct {
	capturer client.Capturer
	uploader client.Uploader
	searcher client.Searcher
	opts     Options
	id       string
	logger   *zap.Logger

	mu        sync.Mutex
	state     State
	epoch     uint64
	upload    *types.UploadedImage
	natural   coords.Size
	box       types.DisplayBox
	point     *types.NormalizedPoint
	results   types.ResultSet
	photos    types.PhotoCollection
	err       error
	errReturn State
}

// New creates a controller in the Idle state
func New(capturer client.Capturer, uploader client.Uploader, searcher client.Searcher, opts Options) *Controller {
	if opts.Budget == (coords.Budget{}) {
		opts.Budget = coords.DefaultBudget
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	id := uuid.NewString()
	return &Controller{
		capturer: capturer,
		uploader: uploader,
		searcher: searcher,
		opts:     opts,
		id:       id,
		logger:   opts.Logger.With(zap.String("session", id)),
		state:    Idle,
	}
}

// SessionID identifies this controller in logs
func (c *Controller) SessionID() string {
	return c.id
}

// State returns the current state
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Snapshot returns a copy of the controller's observable state
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// RecentPhotos refreshes the gallery collection kept in the snapshot.
// Permission refusal is reported through OnError and returned.
func (c *Controller) RecentPhotos(ctx context.Context) (types.PhotoCollection, error) {
	if c.opts.Gallery == nil {
		return nil, errors.New("no gallery configured")
	}
	photos, err := c.opts.Gallery.Refresh(ctx)
	if err != nil {
		c.logger.Warn("gallery refresh failed", zap.Error(err))
		if errors.Is(err, types.ErrPermissionDenied) {
			c.opts.Metrics.IncErrors(ErrorKind(err))
			c.reportError(err)
		}
		return nil, err
	}
	c.opts.Metrics.SetGalleryAssets(len(photos))

	c.mu.Lock()
	c.photos = photos
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.notify(snap)
	return photos, nil
}

// Capture takes a new photo and uploads it. When no photo is produced the
// pipeline returns to Idle without surfacing an error; the cause is still
// returned to the caller. After a successful upload the gallery is refreshed
// so the new shot is listed.
func (c *Controller) Capture(ctx context.Context) (types.UploadedImage, error) {
	epoch, err := c.begin(Capturing)
	if err != nil {
		return types.UploadedImage{}, err
	}

	if c.capturer == nil {
		c.finish(epoch, Capturing, Idle)
		return types.UploadedImage{}, types.ErrCaptureUnavailable
	}

	img, err := c.capturer.Capture(ctx)
	if err != nil {
		if !c.finish(epoch, Capturing, Idle) {
			return types.UploadedImage{}, ErrDiscarded
		}
		if errors.Is(err, types.ErrCaptureUnavailable) {
			c.logger.Debug("capture unavailable")
		} else {
			c.logger.Warn("capture failed", zap.Error(err))
		}
		return types.UploadedImage{}, err
	}

	uploaded, err := c.uploadImage(ctx, epoch, img)
	if err != nil {
		return uploaded, err
	}
	if c.opts.Gallery != nil {
		if _, err := c.RecentPhotos(ctx); err != nil {
			c.logger.Debug("gallery refresh after capture failed", zap.Error(err))
		}
	}
	return uploaded, nil
}

// SelectFromGallery uploads an existing photo
func (c *Controller) SelectFromGallery(ctx context.Context, asset types.Asset) (types.UploadedImage, error) {
	if asset.URI == "" {
		return types.UploadedImage{}, fmt.Errorf("%w: empty asset", ErrInvalidTransition)
	}
	epoch, err := c.begin(Capturing)
	if err != nil {
		return types.UploadedImage{}, err
	}
	return c.uploadImage(ctx, epoch, types.CapturedImage{LocalURI: asset.URI})
}

func (c *Controller) uploadImage(ctx context.Context, epoch uint64, img types.CapturedImage) (types.UploadedImage, error) {
	if !c.finish(epoch, Capturing, Uploading) {
		return types.UploadedImage{}, ErrDiscarded
	}

	start := time.Now()
	uploaded, err := c.uploader.Upload(ctx, img)
	c.opts.Metrics.ObserveRequest("upload", time.Since(start))

	if err != nil {
		c.opts.Metrics.IncUploads("failure")
		if !c.fail(epoch, Uploading, Idle, err) {
			return types.UploadedImage{}, ErrDiscarded
		}
		return types.UploadedImage{}, err
	}
	if uploaded.ServerPath == "" {
		err = fmt.Errorf("%w: %w: empty server path", types.ErrUploadFailed, types.ErrInvalidServerPath)
		c.opts.Metrics.IncUploads("failure")
		if !c.fail(epoch, Uploading, Idle, err) {
			return types.UploadedImage{}, ErrDiscarded
		}
		return types.UploadedImage{}, err
	}
	c.opts.Metrics.IncUploads("success")

	c.mu.Lock()
	if c.epoch != epoch || c.state != Uploading {
		c.mu.Unlock()
		c.logger.Debug("stale upload discarded", zap.String("server_path", uploaded.ServerPath))
		return types.UploadedImage{}, ErrDiscarded
	}
	c.upload = &uploaded
	c.natural = coords.Size{}
	c.box = types.DisplayBox{}
	c.point = nil
	c.transitionLocked(AwaitingPoint)
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.notify(snap)
	return uploaded, nil
}

// ImageLoaded records the natural size of the uploaded image once the
// display layer knows it, and recomputes the display box.
func (c *Controller) ImageLoaded(width, height int) (types.DisplayBox, error) {
	c.mu.Lock()
	if c.upload == nil {
		c.mu.Unlock()
		return types.DisplayBox{}, fmt.Errorf("%w: no uploaded image", ErrInvalidTransition)
	}
	c.natural = coords.Size{Width: float64(width), Height: float64(height)}
	c.box = coords.Fit(c.natural, c.opts.Viewport, c.opts.Budget)
	box := c.box
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.logger.Debug("display box computed", zap.Int("natural_width", width), zap.Int("natural_height", height),
		zap.Float64("width", box.Width), zap.Float64("height", box.Height))
	c.notify(snap)
	return box, nil
}

// SetViewport changes the viewport and refits the display box
func (c *Controller) SetViewport(viewport coords.Size) types.DisplayBox {
	c.mu.Lock()
	c.opts.Viewport = viewport
	if c.upload != nil {
		c.box = coords.Fit(c.natural, viewport, c.opts.Budget)
	}
	box := c.box
	c.mu.Unlock()
	return box
}

// Tap searches around a tap on the display box. Taps before the display box
// is known are ignored and return coords.ErrUnknownSize. A failed search
// moves to Error; acknowledging it returns to AwaitingPoint with the upload kept.
func (c *Controller) Tap(ctx context.Context, tap types.TapPoint) (types.ResultSet, error) {
	return c.search(ctx, func(box types.DisplayBox) (types.NormalizedPoint, error) {
		return coords.Normalize(tap, box)
	})
}

// SearchAt searches around a point that is already normalized, clamped to
// [0,1]. It follows the same rules as Tap.
func (c *Controller) SearchAt(ctx context.Context, point types.NormalizedPoint) (types.ResultSet, error) {
	return c.search(ctx, func(box types.DisplayBox) (types.NormalizedPoint, error) {
		if !box.Known() {
			return types.NormalizedPoint{}, coords.ErrUnknownSize
		}
		return coords.Clamp(point), nil
	})
}

func (c *Controller) search(ctx context.Context, locate func(types.DisplayBox) (types.NormalizedPoint, error)) (types.ResultSet, error) {
	c.mu.Lock()
	if c.state.busy() {
		c.mu.Unlock()
		return nil, ErrBusy
	}
	if c.state != AwaitingPoint {
		state := c.state
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: search in state %s", ErrInvalidTransition, state)
	}
	point, err := locate(c.box)
	if err != nil {
		c.mu.Unlock()
		c.logger.Debug("tap ignored", zap.Error(err))
		return nil, err
	}
	c.epoch++
	epoch := c.epoch
	serverPath := c.upload.ServerPath
	c.point = &point
	c.transitionLocked(Searching)
	snap := c.snapshotLocked()
	c.mu.Unlock()
	c.notify(snap)

	c.logger.Info("searching",
		zap.Float64("x", point.X), zap.Float64("y", point.Y),
		zap.String("server_path", serverPath))

	start := time.Now()
	results, err := c.searcher.Search(ctx, serverPath, point)
	c.opts.Metrics.ObserveRequest("search", time.Since(start))

	if err != nil {
		c.opts.Metrics.IncSearches("failure")
		if !c.fail(epoch, Searching, AwaitingPoint, err) {
			return nil, ErrDiscarded
		}
		return nil, err
	}
	c.opts.Metrics.IncSearches("success")

	c.mu.Lock()
	if c.epoch != epoch || c.state != Searching {
		c.mu.Unlock()
		c.logger.Debug("stale search discarded")
		return nil, ErrDiscarded
	}
	c.results = slices.Clone(results)
	c.transitionLocked(ShowingResults)
	snap = c.snapshotLocked()
	c.mu.Unlock()

	c.notify(snap)
	return results, nil
}

// Acknowledge dismisses the current error. Upload errors return to Idle;
// search errors return to AwaitingPoint.
func (c *Controller) Acknowledge() error {
	c.mu.Lock()
	if c.state != Error {
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("%w: acknowledge in state %s", ErrInvalidTransition, state)
	}
	c.err = nil
	if c.errReturn == Idle {
		c.resetLocked()
	}
	c.transitionLocked(c.errReturn)
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.notify(snap)
	return nil
}

// Dismiss closes the results and returns to Idle
func (c *Controller) Dismiss() error {
	c.mu.Lock()
	if c.state != ShowingResults {
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("%w: dismiss in state %s", ErrInvalidTransition, state)
	}
	c.resetLocked()
	c.transitionLocked(Idle)
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.notify(snap)
	return nil
}

// Abandon returns to Idle from any state. Operations still in flight will
// have their results discarded.
func (c *Controller) Abandon() {
	c.mu.Lock()
	c.epoch++
	c.err = nil
	c.resetLocked()
	changed := c.state != Idle
	if changed {
		c.transitionLocked(Idle)
	}
	snap := c.snapshotLocked()
	c.mu.Unlock()

	if changed {
		c.notify(snap)
	}
}

// begin moves Idle to the given state and starts a new epoch
func (c *Controller) begin(to State) (uint64, error) {
	c.mu.Lock()
	if c.state.busy() {
		c.mu.Unlock()
		return 0, ErrBusy
	}
	if c.state != Idle {
		state := c.state
		c.mu.Unlock()
		return 0, fmt.Errorf("%w: %s in state %s", ErrInvalidTransition, to, state)
	}
	c.epoch++
	epoch := c.epoch
	c.transitionLocked(to)
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.notify(snap)
	return epoch, nil
}

// finish moves from -> to if the controller is still in from at epoch
func (c *Controller) finish(epoch uint64, from, to State) bool {
	c.mu.Lock()
	if c.epoch != epoch || c.state != from {
		c.mu.Unlock()
		return false
	}
	if to == Idle {
		c.resetLocked()
	}
	c.transitionLocked(to)
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.notify(snap)
	return true
}

// fail moves from -> Error, remembering where Acknowledge returns to
func (c *Controller) fail(epoch uint64, from, ackTo State, err error) bool {
	c.mu.Lock()
	if c.epoch != epoch || c.state != from {
		c.mu.Unlock()
		c.logger.Debug("stale failure discarded", zap.Error(err))
		return false
	}
	c.err = err
	c.errReturn = ackTo
	if ackTo == Idle {
		c.upload = nil
		c.box = types.DisplayBox{}
		c.natural = coords.Size{}
	}
	c.transitionLocked(Error)
	snap := c.snapshotLocked()
	c.mu.Unlock()

	kind := ErrorKind(err)
	c.opts.Metrics.IncErrors(kind)
	c.logger.Warn("pipeline error", zap.String("kind", kind), zap.String("from", from.String()), zap.Error(err))
	c.notify(snap)
	c.reportError(err)
	return true
}

func (c *Controller) transitionLocked(to State) {
	from := c.state
	c.state = to
	c.opts.Metrics.IncTransition(from.String(), to.String())
	c.logger.Debug("state transition", zap.String("from", from.String()), zap.String("to", to.String()))
}

func (c *Controller) resetLocked() {
	c.upload = nil
	c.natural = coords.Size{}
	c.box = types.DisplayBox{}
	c.point = nil
	c.results = nil
}

func (c *Controller) snapshotLocked() Snapshot {
	snap := Snapshot{
		SessionID: c.id,
		State:     c.state,
		Box:       c.box,
		Results:   slices.Clone(c.results),
		Photos:    slices.Clone(c.photos),
		Err:       c.err,
	}
	if c.upload != nil {
		u := *c.upload
		snap.Upload = &u
	}
	if c.point != nil {
		p := *c.point
		snap.Point = &p
	}
	return snap
}

func (c *Controller) notify(snap Snapshot) {
	if c.opts.OnStateChange != nil {
		c.opts.OnStateChange(snap)
	}
}

func (c *Controller) reportError(err error) {
	if c.opts.OnError != nil {
		c.opts.OnError(err)
	}
}
