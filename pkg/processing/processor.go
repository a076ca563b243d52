package processing

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"
	"math"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"

	"github.com/menta2k/visual-search/internal/utils"
	"github.com/menta2k/visual-search/pkg/types"
)

// MaxImageBytes bounds uploads, downloads and size lookups
const MaxImageBytes = 32 << 20

// ErrImageTooLarge is returned for images over MaxImageBytes
var ErrImageTooLarge = errors.New("image too large")

// Processor handles image loading, probing and encoding
type Processor struct {
	client *http.Client
}

// NewProcessor creates a new image processor
func NewProcessor() *Processor {
	return NewProcessorWithClient(&http.Client{
		Timeout: 30 * time.Second,
	})
}

// NewProcessorWithClient creates a processor that downloads through client
func NewProcessorWithClient(client *http.Client) *Processor {
	if client == nil {
		client = http.DefaultClient
	}
	return &Processor{client: client}
}

// LoadImageFromURL downloads and loads an image from a URL
func (p *Processor) LoadImageFromURL(ctx context.Context, imageURL string) (image.Image, error) {
	data, err := p.fetch(ctx, imageURL)
	if err != nil {
		return nil, err
	}
	return p.decodeImageFromBytes(data)
}

// LoadImage loads an image from a file path with WebP support
func (p *Processor) LoadImage(path string) (image.Image, error) {
	// Try imaging.Open (registered decoders)
	if img, err := imaging.Open(path); err == nil {
		return img, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	img, err := p.decodeImageFromBytes(data)
	if err != nil {
		return nil, fmt.Errorf("image: unknown format for %s", path)
	}
	return img, nil
}

// LoadImageSmart loads an image from either a file path or URL
func (p *Processor) LoadImageSmart(ctx context.Context, source string) (image.Image, error) {
	if isRemote(source) {
		return p.LoadImageFromURL(ctx, source)
	}
	return p.LoadImage(strings.TrimPrefix(source, "file://"))
}

// ImageSize returns the natural pixel size of the image at source without
// decoding the whole image
func (p *Processor) ImageSize(ctx context.Context, source string) (int, int, error) {
	var data []byte
	var err error
	if isRemote(source) {
		data, err = p.fetch(ctx, source)
	} else {
		data, err = readLimited(strings.TrimPrefix(source, "file://"))
	}
	if err != nil {
		return 0, 0, err
	}

	if cfg, _, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
		return cfg.Width, cfg.Height, nil
	}
	if cfg, err := webp.DecodeConfig(bytes.NewReader(data)); err == nil {
		return cfg.Width, cfg.Height, nil
	}
	return 0, 0, fmt.Errorf("image: unknown or unsupported format")
}

// ReadForUpload reads a local image and reports its content type
func (p *Processor) ReadForUpload(source string) ([]byte, string, error) {
	data, err := readLimited(strings.TrimPrefix(source, "file://"))
	if err != nil {
		return nil, "", err
	}
	return data, DetectContentType(data), nil
}

// DetectContentType sniffs the image encoding, defaulting to JPEG
func DetectContentType(data []byte) string {
	ct := http.DetectContentType(data)
	if strings.HasPrefix(ct, "image/") {
		return ct
	}
	return "image/jpeg"
}

func (p *Processor) fetch(ctx context.Context, imageURL string) ([]byte, error) {
	// Validate URL
	parsedURL, err := url.Parse(imageURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %v", err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return nil, fmt.Errorf("unsupported URL scheme: %s (only http and https are supported)", parsedURL.Scheme)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %v", err)
	}
	req.Header.Set("User-Agent", "visual-search/1.0")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download image: HTTP %d", resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType != "" && !strings.HasPrefix(contentType, "image/") && !strings.HasPrefix(contentType, "application/octet-stream") {
		return nil, fmt.Errorf("URL does not point to an image (Content-Type: %s)", contentType)
	}

	data, err := readAllLimited(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read image data: %w", err)
	}
	return data, nil
}

// decodeImageFromBytes decodes an image from byte data with WebP support
func (p *Processor) decodeImageFromBytes(data []byte) (image.Image, error) {
	if img, _, err := image.Decode(bytes.NewReader(data)); err == nil {
		return img, nil
	}

	if img, err := webp.Decode(bytes.NewReader(data)); err == nil {
		return img, nil
	}

	return nil, fmt.Errorf("image: unknown or unsupported format")
}

// SaveImage saves an image to a file with the specified format and quality
func (p *Processor) SaveImage(img image.Image, path, format string, quality int, lossless bool) error {
	switch strings.ToLower(format) {
	case "webp":
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		opts := &webp.Options{Lossless: lossless, Quality: float32(quality)}
		return webp.Encode(f, img, opts)
	case "png":
		return imaging.Save(img, path)
	default: // jpg/jpeg
		return imaging.Save(img, path, imaging.JPEGQuality(quality))
	}
}

// CreateTapOverlay marks a normalized point on img with a crosshair and a
// square whose side is size (as a fraction of the shorter image side)
func (p *Processor) CreateTapOverlay(img image.Image, point types.NormalizedPoint, size float64) image.Image {
	nrgba := imaging.Clone(img)
	w := nrgba.Bounds().Dx()
	h := nrgba.Bounds().Dy()

	red := color.NRGBA{255, 0, 0, 255}
	gold := color.NRGBA{255, 204, 0, 255}
	stroke := int(math.Max(2, 0.004*float64(min(w, h))))
	cross := int(math.Max(4, 0.01*float64(min(w, h))))

	cx := clamp(point.X, 0, 1)
	cy := clamp(point.Y, 0, 1)

	if size > 0 {
		side := size * float64(min(w, h))
		bw, bh := side/float64(w), side/float64(h)
		drawBox(nrgba, cx-bw/2, cy-bh/2, bw, bh, w, h, gold, stroke)
	}

	px := int(cx*float64(w) + 0.5)
	py := int(cy*float64(h) + 0.5)
	for s := 0; s < stroke; s++ {
		drawHLine(nrgba, py+s-stroke/2, px-cross, px+cross, red)
		drawVLine(nrgba, px+s-stroke/2, py-cross, py+cross, red)
	}

	return nrgba
}

func isRemote(source string) bool {
	return strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://")
}

func readLimited(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return readAllLimited(f)
}

// readAllLimited reads r to the end and fails instead of truncating when r
// holds more than MaxImageBytes
func readAllLimited(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxImageBytes+1))
	if err != nil {
		return nil, err
	}
	if len(data) > MaxImageBytes {
		return nil, fmt.Errorf("%w: more than %s", ErrImageTooLarge, utils.FormatFileSize(MaxImageBytes))
	}
	return data, nil
}

// Helper functions
func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func boxToPixels(x, y, bw, bh float64, w, h int) (int, int, int, int) {
	x0 := int(clamp(x, 0, 1)*float64(w) + 0.5)
	y0 := int(clamp(y, 0, 1)*float64(h) + 0.5)
	x1 := int(clamp(x+bw, 0, 1)*float64(w) + 0.5)
	y1 := int(clamp(y+bh, 0, 1)*float64(h) + 0.5)
	if x1 <= x0 {
		x1 = x0 + 1
	}
	if y1 <= y0 {
		y1 = y0 + 1
	}
	return x0, y0, x1, y1
}

func drawBox(img *image.NRGBA, x, y, bw, bh float64, w, h int, color color.NRGBA, stroke int) {
	x0, y0, x1, y1 := boxToPixels(x, y, bw, bh, w, h)
	for s := 0; s < stroke; s++ {
		drawHLine(img, y0+s, x0, x1, color)
		drawHLine(img, y1-1-s, x0, x1, color)
		drawVLine(img, x0+s, y0, y1, color)
		drawVLine(img, x1-1-s, y0, y1, color)
	}
}

func drawHLine(img *image.NRGBA, y, x0, x1 int, c color.NRGBA) {
	if y < 0 || y >= img.Bounds().Dy() {
		return
	}
	if x0 > x1 {
		x0, x1 = x1, x0
	}
	if x1 <= 0 || x0 >= img.Bounds().Dx() {
		return
	}
	if x0 < 0 {
		x0 = 0
	}
	if x1 > img.Bounds().Dx() {
		x1 = img.Bounds().Dx()
	}
	i := y*img.Stride + x0*4
	for x := x0; x < x1; x++ {
		img.Pix[i+0] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = c.A
		i += 4
	}
}

func drawVLine(img *image.NRGBA, x, y0, y1 int, c color.NRGBA) {
	if x < 0 || x >= img.Bounds().Dx() {
		return
	}
	if y0 > y1 {
		y0, y1 = y1, y0
	}
	if y1 <= 0 || y0 >= img.Bounds().Dy() {
		return
	}
	if y0 < 0 {
		y0 = 0
	}
	if y1 > img.Bounds().Dy() {
		y1 = img.Bounds().Dy()
	}
	i := y0*img.Stride + x*4
	for y := y0; y < y1; y++ {
		img.Pix[i+0] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = c.A
		i += img.Stride
	}
}
