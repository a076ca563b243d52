package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/menta2k/visual-search/pkg/types"
)

func newGalleryCmd(opts *globalOptions) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "gallery",
		Short: "List the most recent photos across all albums",
		Example: `  # Newest photos from ./photos
  visual-search gallery --photos ./photos`,
		RunE: func(cmd *cobra.Command, args []string) error {
			vs, logger, err := opts.build(nil)
			if err != nil {
				return err
			}
			defer logger.Sync()

			photos, err := vs.RecentPhotos(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), photos)
			}
			printPhotos(cmd.OutOrStdout(), photos)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")

	return cmd
}

func printPhotos(w io.Writer, photos types.PhotoCollection) {
	if len(photos) == 0 {
		fmt.Fprintln(w, "no photos")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tMODIFIED\tALBUM\tURI")
	for i, p := range photos {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", i, p.ModificationTime.Format(time.DateTime), p.AlbumID, p.URI)
	}
	tw.Flush()
}

func printResults(w io.Writer, results types.ResultSet) {
	if len(results) == 0 {
		fmt.Fprintln(w, "no matches")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tPRICE\tSOURCE\tLINK")
	for _, r := range results {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.ID, r.Title, r.Price, r.SourceMarketplace, r.Link)
	}
	tw.Flush()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
