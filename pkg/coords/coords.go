// Package coords maps taps on a rendered image to resolution independent
// points and computes the box an image is rendered into.
package coords

import (
	"errors"
	"math"

	"github.com/menta2k/visual-search/pkg/types"
)

// ErrUnknownSize is returned when a tap arrives before the display box is known
var ErrUnknownSize = errors.New("display box size not known")

// Size is a width/height pair in pixels
type Size struct {
	Width  float64
	Height float64
}

// Budget limits the display box to fractions of the viewport
type Budget struct {
	MaxWidth  float64
	MaxHeight float64
}

// DefaultBudget keeps the image within 70% of the viewport width and 50% of its height
var DefaultBudget = Budget{MaxWidth: 0.7, MaxHeight: 0.5}

// Normalize converts a tap on box into a point in [0,1]x[0,1]
func Normalize(tap types.TapPoint, box types.DisplayBox) (types.NormalizedPoint, error) {
	if !box.Known() {
		return types.NormalizedPoint{}, ErrUnknownSize
	}
	return types.NormalizedPoint{
		X: clamp(tap.X/box.Width, 0, 1),
		Y: clamp(tap.Y/box.Height, 0, 1),
	}, nil
}

// Clamp limits p to [0,1]x[0,1]
func Clamp(p types.NormalizedPoint) types.NormalizedPoint {
	return types.NormalizedPoint{X: clamp(p.X, 0, 1), Y: clamp(p.Y, 0, 1)}
}

// Denormalize maps a normalized point back onto an image of the given natural size
func Denormalize(p types.NormalizedPoint, natural Size) (float64, float64) {
	return clamp(p.X, 0, 1) * natural.Width, clamp(p.Y, 0, 1) * natural.Height
}

// Fit scales natural into the viewport budget while keeping its aspect ratio.
// The width limit is applied first and the height limit second; re-deriving
// the width from the height limit can only shrink the box.
func Fit(natural, viewport Size, budget Budget) types.DisplayBox {
	if natural.Width <= 0 || natural.Height <= 0 {
		return types.DisplayBox{}
	}

	aspectRatio := natural.Width / natural.Height
	width, height := natural.Width, natural.Height

	maxWidth := viewport.Width * budget.MaxWidth
	if width > maxWidth {
		width = maxWidth
		height = width / aspectRatio
	}

	maxHeight := viewport.Height * budget.MaxHeight
	if height > maxHeight {
		height = maxHeight
		width = height * aspectRatio
	}

	return types.DisplayBox{Width: width, Height: height}
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
