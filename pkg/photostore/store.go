// Package photostore exposes the device photo library: albums of
// time-stamped photo assets, plus an append-only write for new shots.
package photostore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/menta2k/visual-search/internal/utils"
	"github.com/menta2k/visual-search/pkg/types"
)

// Album is a named group of assets
type Album struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// Store is the read/write interface of the device photo library
type Store interface {
	// Albums lists every album. Returns types.ErrPermissionDenied when access is refused.
	Albums(ctx context.Context) ([]Album, error)

	// Assets returns up to first photos of an album, newest first. first <= 0 means no cap.
	Assets(ctx context.Context, albumID string, first int) ([]types.Asset, error)

	// Save persists the image at localURI into the library
	Save(ctx context.Context, localURI string) (types.Asset, error)
}

// Dir is a Store backed by a directory tree: each subdirectory of Root is an
// album and every image file inside it is a photo asset.
type Dir struct {
	Root        string
	CameraAlbum string
}

// NewDir creates a directory backed store
func NewDir(root, cameraAlbum string) *Dir {
	if cameraAlbum == "" {
		cameraAlbum = "Camera"
	}
	return &Dir{Root: root, CameraAlbum: cameraAlbum}
}

// Albums implements Store
func (d *Dir) Albums(ctx context.Context) ([]Album, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(d.Root)
	if err != nil {
		return nil, mapErr(err)
	}

	var albums []Album
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		albums = append(albums, Album{ID: e.Name(), Title: e.Name()})
	}
	return albums, nil
}

// Assets implements Store
func (d *Dir) Assets(ctx context.Context, albumID string, first int) ([]types.Asset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	dir, err := d.albumDir(albumID)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, mapErr(err)
	}

	assets := make([]types.Asset, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !utils.IsImageFile(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			// removed between listing and stat
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, mapErr(err)
		}
		assets = append(assets, types.Asset{
			URI:              filepath.Join(dir, e.Name()),
			ModificationTime: info.ModTime(),
			AlbumID:          albumID,
		})
	}

	slices.SortStableFunc(assets, func(a, b types.Asset) int {
		if c := b.ModificationTime.Compare(a.ModificationTime); c != 0 {
			return c
		}
		return strings.Compare(a.URI, b.URI)
	})

	if first > 0 && len(assets) > first {
		assets = assets[:first]
	}
	return assets, nil
}

// Save implements Store by copying the file into the camera album
func (d *Dir) Save(ctx context.Context, localURI string) (types.Asset, error) {
	if err := ctx.Err(); err != nil {
		return types.Asset{}, err
	}

	dir, err := d.albumDir(d.CameraAlbum)
	if err != nil {
		return types.Asset{}, err
	}
	if err := utils.EnsureDir(dir); err != nil {
		return types.Asset{}, mapErr(err)
	}

	src, err := os.Open(localPath(localURI))
	if err != nil {
		return types.Asset{}, fmt.Errorf("failed to open captured image: %w", err)
	}
	defer src.Close()

	target := utils.UniquePath(filepath.Join(dir, filepath.Base(localPath(localURI))))
	dst, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return types.Asset{}, mapErr(err)
	}

	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(target)
		return types.Asset{}, fmt.Errorf("failed to save image: %w", err)
	}
	if err := dst.Close(); err != nil {
		return types.Asset{}, fmt.Errorf("failed to save image: %w", err)
	}

	info, err := os.Stat(target)
	if err != nil {
		return types.Asset{}, mapErr(err)
	}

	return types.Asset{
		URI:              target,
		ModificationTime: info.ModTime(),
		AlbumID:          d.CameraAlbum,
	}, nil
}

func (d *Dir) albumDir(albumID string) (string, error) {
	if albumID == "" || albumID != filepath.Base(albumID) || albumID == "." || albumID == ".." {
		return "", fmt.Errorf("invalid album id %q", albumID)
	}
	return filepath.Join(d.Root, albumID), nil
}

func localPath(uri string) string {
	return strings.TrimPrefix(uri, "file://")
}

func mapErr(err error) error {
	if errors.Is(err, fs.ErrPermission) {
		return fmt.Errorf("%w: %v", types.ErrPermissionDenied, err)
	}
	return err
}
