// Package cli implements the visual-search command line.
package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	visualsearch "github.com/menta2k/visual-search"
	"github.com/menta2k/visual-search/internal/config"
	"github.com/menta2k/visual-search/internal/logging"
	"github.com/menta2k/visual-search/internal/utils"
)

type globalOptions struct {
	configPath string
	serverURL  string
	photosDir  string
	logLevel   string
	debug      bool
}

func NewRootCmd() *cobra.Command {
	opts := &globalOptions{}

	cmd := &cobra.Command{
		Use:   "visual-search",
		Short: "Find products matching a point on a photo",
		Long: `visual-search uploads a photo to a visual search service and looks up
products similar to the object at a chosen point of the image.

Photos come from a local photo library (one directory per album) or from a
still-image capture source.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Load .env file if present (ignore errors)
			_ = godotenv.Load()
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "config file (JSON or YAML)")
	flags.StringVar(&opts.serverURL, "server", "", "search service base URL, overrides the config")
	flags.StringVar(&opts.photosDir, "photos", "", "photo library root, overrides the config")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level: debug|info|warn|error")
	flags.BoolVar(&opts.debug, "verbose", false, "development logging")

	cmd.AddCommand(
		newGalleryCmd(opts),
		newSearchCmd(opts),
		newSessionCmd(opts),
		newConfigCmd(opts),
	)

	return cmd
}

// loadConfig resolves the effective configuration: an explicit --config,
// else the default path when it exists, plus environment and flag overrides
func (o *globalOptions) loadConfig() (*config.Config, error) {
	path := o.configPath
	if path == "" && utils.FileExists(config.GetConfigPath()) {
		path = config.GetConfigPath()
	}

	var (
		cfg *config.Config
		err error
	)
	if path != "" {
		cfg, err = config.LoadFromFile(path)
	} else {
		cfg, err = config.Load("")
	}
	if err != nil {
		return nil, err
	}

	if o.serverURL != "" {
		cfg.Server.BaseURL = o.serverURL
	}
	if o.photosDir != "" {
		cfg.Gallery.Root = o.photosDir
	}
	return cfg, nil
}

func (o *globalOptions) logger() (*zap.Logger, error) {
	return logging.New(o.logLevel, o.debug)
}

// build loads the configuration and wires the library. reg may be nil.
func (o *globalOptions) build(reg prometheus.Registerer) (*visualsearch.VisualSearch, *zap.Logger, error) {
	logger, err := o.logger()
	if err != nil {
		return nil, nil, err
	}
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, nil, err
	}
	vs, err := visualsearch.New(cfg, logger, reg)
	if err != nil {
		return nil, nil, err
	}
	return vs, logger, nil
}

// parsePair parses "x,y"
func parsePair(s string) (float64, float64, error) {
	xs, ys, ok := strings.Cut(s, ",")
	if !ok {
		return 0, 0, fmt.Errorf("expected x,y, got %q", s)
	}
	x, err := strconv.ParseFloat(strings.TrimSpace(xs), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid x in %q: %w", s, err)
	}
	y, err := strconv.ParseFloat(strings.TrimSpace(ys), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid y in %q: %w", s, err)
	}
	return x, y, nil
}
