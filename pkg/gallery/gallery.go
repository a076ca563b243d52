// Package gallery builds the "recent photos" list shown next to the camera.
package gallery

import (
	"context"
	"fmt"
	"slices"

	"go.uber.org/zap"

	"github.com/menta2k/visual-search/pkg/photostore"
	"github.com/menta2k/visual-search/pkg/types"
)

// Config holds gallery limits
type Config struct {
	Limit    int
	PerAlbum int
}

// DefaultConfig returns the default gallery limits
func DefaultConfig() Config {
	return Config{Limit: 32, PerAlbum: 20}
}

// Aggregator collects photos across all albums of a store
type Aggregator struct {
	store  photostore.Store
	config Config
	logger *zap.Logger
}

// New creates an Aggregator with default limits
func New(store photostore.Store, logger *zap.Logger) *Aggregator {
	return NewWithConfig(store, DefaultConfig(), logger)
}

// NewWithConfig creates an Aggregator with custom limits
func NewWithConfig(store photostore.Store, config Config, logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{store: store, config: config, logger: logger}
}

// FetchRecent returns at most limit photos from all albums, newest first.
// When fewer photos exist the full set is returned. Access refusal is
// reported as types.ErrPermissionDenied.
func (a *Aggregator) FetchRecent(ctx context.Context, limit int) (types.PhotoCollection, error) {
	albums, err := a.store.Albums(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list albums: %w", err)
	}

	var all []types.Asset
	for _, album := range albums {
		assets, err := a.store.Assets(ctx, album.ID, a.config.PerAlbum)
		if err != nil {
			return nil, fmt.Errorf("failed to list album %s: %w", album.ID, err)
		}
		all = append(all, assets...)
	}

	// Stable so equal timestamps keep album order and repeated calls agree
	slices.SortStableFunc(all, func(x, y types.Asset) int {
		return y.ModificationTime.Compare(x.ModificationTime)
	})

	n := min(max(limit, 0), len(all))
	collection := make(types.PhotoCollection, n)
	copy(collection, all[:n])

	a.logger.Debug("gallery refreshed",
		zap.Int("albums", len(albums)),
		zap.Int("fetched", len(all)),
		zap.Int("kept", n))

	return collection, nil
}

// Refresh rebuilds the collection with the configured limit
func (a *Aggregator) Refresh(ctx context.Context) (types.PhotoCollection, error) {
	return a.FetchRecent(ctx, a.config.Limit)
}
