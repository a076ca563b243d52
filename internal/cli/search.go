package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	visualsearch "github.com/menta2k/visual-search"
	"github.com/menta2k/visual-search/pkg/pipeline"
	"github.com/menta2k/visual-search/pkg/types"
)

type searchOptions struct {
	in      string
	pick    int
	capture bool
	tap     string
	point   string
	asJSON  bool
	overlay string
}

func newSearchCmd(opts *globalOptions) *cobra.Command {
	so := &searchOptions{pick: -1}

	cmd := &cobra.Command{
		Use:   "search",
		Short: "Upload one photo and search around a point",
		Long: `Uploads a photo, fits it to the configured viewport and searches around
one point. The point is given in display box pixels with --tap or as
normalized coordinates with --point; the center is used otherwise.`,
		Example: `  # Search the center of a local file
  visual-search search --in shoe.jpg

  # Third newest library photo, upper left quarter
  visual-search search --pick 2 --point 0.25,0.25

  # Shoot the capture source and keep an overlay of the tapped point
  visual-search search --capture --in scene.jpg --tap 120,80 --debug tap.png`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !so.capture && so.in == "" && so.pick < 0 {
				return errors.New("one of --in, --pick or --capture is required")
			}
			if so.tap != "" && so.point != "" {
				return errors.New("--tap and --point are mutually exclusive")
			}

			vs, logger, err := opts.build(nil)
			if err != nil {
				return err
			}
			defer logger.Sync()

			results, err := runSearch(cmd.Context(), vs, logger, so)
			if err != nil {
				return err
			}
			if so.asJSON {
				return writeJSON(cmd.OutOrStdout(), results)
			}
			printResults(cmd.OutOrStdout(), results)
			return nil
		},
	}

	cmd.Flags().StringVar(&so.in, "in", "", "image file or URL; with --capture, the capture source")
	cmd.Flags().IntVar(&so.pick, "pick", -1, "index into the recent photos")
	cmd.Flags().BoolVar(&so.capture, "capture", false, "take a new photo with the capture device")
	cmd.Flags().StringVar(&so.tap, "tap", "", "tap position X,Y in display box pixels")
	cmd.Flags().StringVar(&so.point, "point", "", "normalized point x,y in [0,1]")
	cmd.Flags().BoolVar(&so.asJSON, "json", false, "print JSON")
	cmd.Flags().StringVar(&so.overlay, "debug", "", "write an overlay of the tapped point to this file")

	return cmd
}

func runSearch(ctx context.Context, vs *visualsearch.VisualSearch, logger *zap.Logger, so *searchOptions) (types.ResultSet, error) {
	session := vs.NewSession(visualsearch.SessionHooks{
		OnStateChange: func(s pipeline.Snapshot) {
			logger.Debug("state", zap.String("state", s.State.String()))
		},
	})

	var (
		uploaded types.UploadedImage
		local    string
		err      error
	)
	switch {
	case so.capture:
		if so.in != "" {
			vs.SetCaptureSource(so.in)
		}
		uploaded, err = session.Capture(ctx)
		if errors.Is(err, types.ErrCaptureUnavailable) {
			return nil, fmt.Errorf("%w: set capture.source or pass --in", err)
		}
	case so.pick >= 0:
		photos, perr := session.RecentPhotos(ctx)
		if perr != nil {
			return nil, perr
		}
		if so.pick >= len(photos) {
			return nil, fmt.Errorf("--pick %d out of range, %d photos available", so.pick, len(photos))
		}
		local = photos[so.pick].URI
		uploaded, err = session.SelectFromGallery(ctx, photos[so.pick])
	default:
		local = so.in
		uploaded, err = session.SelectFromGallery(ctx, types.Asset{URI: so.in})
	}
	if err != nil {
		return nil, err
	}
	logger.Info("uploaded", zap.String("remote_url", uploaded.RemoteURL), zap.String("server_path", uploaded.ServerPath))

	source := uploaded.RemoteURL
	w, h, err := vs.ImageSize(ctx, source)
	if err != nil && local != "" {
		logger.Debug("remote size lookup failed, using local file", zap.Error(err))
		source = local
		w, h, err = vs.ImageSize(ctx, source)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read image size: %w", err)
	}

	box, err := session.ImageLoaded(w, h)
	if err != nil {
		return nil, err
	}

	results, err := so.search(ctx, session, box)
	if err != nil {
		return nil, err
	}

	if so.overlay != "" {
		if snap := session.Snapshot(); snap.Point != nil {
			if err := vs.SaveOverlay(ctx, source, *snap.Point, so.overlay); err != nil {
				logger.Warn("overlay failed", zap.Error(err))
			} else {
				logger.Info("wrote overlay", zap.String("path", so.overlay))
			}
		}
	}

	return results, nil
}

// search sends --point as given; otherwise it taps box at --tap or its center
func (so *searchOptions) search(ctx context.Context, session *pipeline.Controller, box types.DisplayBox) (types.ResultSet, error) {
	if so.point != "" {
		x, y, err := parsePair(so.point)
		if err != nil {
			return nil, err
		}
		return session.SearchAt(ctx, types.NormalizedPoint{X: x, Y: y})
	}
	tap, err := so.tapPoint(box)
	if err != nil {
		return nil, err
	}
	return session.Tap(ctx, tap)
}

// tapPoint converts the --tap flag into a tap on box, defaulting to its center
func (so *searchOptions) tapPoint(box types.DisplayBox) (types.TapPoint, error) {
	if so.tap == "" {
		return types.TapPoint{X: box.Width / 2, Y: box.Height / 2}, nil
	}
	x, y, err := parsePair(so.tap)
	if err != nil {
		return types.TapPoint{}, err
	}
	return types.TapPoint{X: x, Y: y}, nil
}
