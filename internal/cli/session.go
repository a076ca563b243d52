package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	visualsearch "github.com/menta2k/visual-search"
	"github.com/menta2k/visual-search/pkg/pipeline"
	"github.com/menta2k/visual-search/pkg/types"
)

const sessionHelp = `commands:
  gallery          list recent photos
  pick N           upload photo N from the last listing
  capture          take and upload a new photo
  flash            toggle the flash
  flip             switch between back and front camera
  zoom Z           set zoom in [0,1]
  tap X Y          search at a tap in display box pixels
  ack              acknowledge the current error
  dismiss          close the results
  abandon          return to idle from anywhere
  state            print the current state
  quit`

func newSessionCmd(opts *globalOptions) *cobra.Command {
	var metricsAddr string

	cmd := &cobra.Command{
		Use:   "session",
		Short: "Drive the capture, upload and search flow interactively",
		Example: `  # Interactive session with metrics on :9090/metrics
  visual-search session --metrics-addr :9090`,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := prometheus.NewRegistry()
			vs, logger, err := opts.build(reg)
			if err != nil {
				return err
			}
			defer logger.Sync()

			if metricsAddr != "" {
				server := &http.Server{Addr: metricsAddr, Handler: metricsHandler(reg)}
				go func() {
					logger.Info("metrics available", zap.String("addr", metricsAddr))
					if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						logger.Error("metrics server failed", zap.Error(err))
					}
				}()
				defer func() {
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					_ = server.Shutdown(shutdownCtx)
				}()
			}

			repl := newRepl(vs, cmd.OutOrStdout())
			return repl.run(cmd.Context(), cmd.InOrStdin())
		},
	}

	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")

	return cmd
}

func metricsHandler(reg *prometheus.Registry) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return mux
}

type repl struct {
	vs      *visualsearch.VisualSearch
	session *pipeline.Controller
	out     io.Writer
	photos  types.PhotoCollection
	// local source of the current upload, used when the remote copy cannot be read
	local string
}

func newRepl(vs *visualsearch.VisualSearch, out io.Writer) *repl {
	r := &repl{vs: vs, out: out}
	r.session = vs.NewSession(visualsearch.SessionHooks{
		OnStateChange: func(s pipeline.Snapshot) {
			fmt.Fprintf(out, "[%s]\n", s.State)
		},
		OnError: func(err error) {
			fmt.Fprintf(out, "error (%s): %v\n", pipeline.ErrorKind(err), err)
		},
	})
	return r
}

func (r *repl) run(ctx context.Context, in io.Reader) error {
	fmt.Fprintln(r.out, sessionHelp)
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(r.out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(r.out)
			return scanner.Err()
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		if fields[0] == "quit" || fields[0] == "exit" {
			return nil
		}
		if err := r.exec(ctx, fields[0], fields[1:]); err != nil {
			fmt.Fprintf(r.out, "%v\n", err)
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

func (r *repl) exec(ctx context.Context, name string, args []string) error {
	switch name {
	case "help":
		fmt.Fprintln(r.out, sessionHelp)
	case "gallery":
		photos, err := r.session.RecentPhotos(ctx)
		if err != nil {
			return err
		}
		r.photos = photos
		printPhotos(r.out, photos)
	case "pick":
		if len(args) != 1 {
			return errors.New("usage: pick N")
		}
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 0 || n >= len(r.photos) {
			return fmt.Errorf("no photo %q, run gallery first", args[0])
		}
		r.local = r.photos[n].URI
		uploaded, err := r.session.SelectFromGallery(ctx, r.photos[n])
		if err != nil {
			return err
		}
		return r.loaded(ctx, uploaded)
	case "capture":
		r.local = ""
		uploaded, err := r.session.Capture(ctx)
		if errors.Is(err, types.ErrCaptureUnavailable) {
			return errors.New("camera not ready")
		}
		if err != nil {
			return err
		}
		return r.loaded(ctx, uploaded)
	case "flash":
		fmt.Fprintf(r.out, "flash %s\n", r.vs.Camera().ToggleFlash())
	case "flip":
		fmt.Fprintf(r.out, "camera %s\n", r.vs.Camera().SwitchFacing())
	case "zoom":
		if len(args) != 1 {
			return errors.New("usage: zoom Z")
		}
		z, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			return err
		}
		r.vs.Camera().SetZoom(z)
		fmt.Fprintf(r.out, "zoom %.2f\n", r.vs.Camera().Settings().Zoom)
	case "tap":
		if len(args) != 2 {
			return errors.New("usage: tap X Y")
		}
		x, y, err := parsePair(args[0] + "," + args[1])
		if err != nil {
			return err
		}
		results, err := r.session.Tap(ctx, types.TapPoint{X: x, Y: y})
		if err != nil {
			return err
		}
		printResults(r.out, results)
	case "ack":
		return r.session.Acknowledge()
	case "dismiss":
		return r.session.Dismiss()
	case "abandon":
		r.session.Abandon()
	case "state":
		snap := r.session.Snapshot()
		fmt.Fprintf(r.out, "state %s\n", snap.State)
		if snap.Upload != nil {
			fmt.Fprintf(r.out, "image %s (%s)\n", snap.Upload.RemoteURL, snap.Upload.ServerPath)
		}
		if snap.Box.Known() {
			fmt.Fprintf(r.out, "box %.0fx%.0f\n", snap.Box.Width, snap.Box.Height)
		}
	default:
		return fmt.Errorf("unknown command %q, try help", name)
	}
	return nil
}

// loaded plays the display layer: it learns the natural size of the
// uploaded image and reports the display box taps refer to
func (r *repl) loaded(ctx context.Context, uploaded types.UploadedImage) error {
	w, h, err := r.vs.ImageSize(ctx, uploaded.RemoteURL)
	if err != nil && r.local != "" {
		w, h, err = r.vs.ImageSize(ctx, r.local)
	}
	if err != nil {
		return fmt.Errorf("image size unknown, taps are ignored: %w", err)
	}
	box, err := r.session.ImageLoaded(w, h)
	if err != nil {
		return err
	}
	fmt.Fprintf(r.out, "uploaded %s, tap within %.0fx%.0f\n", uploaded.ServerPath, box.Width, box.Height)
	return nil
}
