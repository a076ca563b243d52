package client

import (
	"context"

	"github.com/menta2k/visual-search/pkg/types"
)

// Uploader sends a local image to the search service
type Uploader interface {
	Upload(ctx context.Context, image types.CapturedImage) (types.UploadedImage, error)
}

// Searcher asks the search service for products around a point of an uploaded image
type Searcher interface {
	Search(ctx context.Context, serverPath string, point types.NormalizedPoint) (types.ResultSet, error)
}

// Capturer acquires a new local image
type Capturer interface {
	Capture(ctx context.Context) (types.CapturedImage, error)
}
