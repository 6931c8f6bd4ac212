package cmd

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/smazurov/camrecd/internal/cameras"
	"github.com/smazurov/camrecd/internal/pipeline"
	"github.com/smazurov/camrecd/internal/pipeline/gstreamer"
)

// CreateCheckElementsCmd creates the check-elements command.
func CreateCheckElementsCmd() *cobra.Command {
	var camerasFile string
	var quiet bool

	cmd := &cobra.Command{
		Use:   "check-elements",
		Short: "Verify GStreamer elements for every configured camera",
		Long: `Instantiates every GStreamer element the cameras in cameras.toml need, including ` +
			`the first working encoder, and reports which ones are missing.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cams, err := cameras.Load(camerasFile)
			if err != nil {
				return err
			}
			if len(cams) == 0 {
				return fmt.Errorf("no cameras defined in %s", camerasFile)
			}

			out := cmd.OutOrStdout()
			var errs []error
			for i, cam := range cams {
				cfg := pipeline.FromSettings(cam)
				statuses, checkErr := gstreamer.CheckElements(cfg)
				if checkErr != nil {
					errs = append(errs, fmt.Errorf("camera %d (%s): %w", i, cam.Name, checkErr))
				}
				if !quiet {
					printStatuses(out, i, cam.Name, statuses)
				}
			}
			if len(errs) > 0 {
				return errors.Join(errs...)
			}
			fmt.Fprintln(out, "All required elements are available")
			return nil
		},
	}

	cmd.Flags().StringVar(&camerasFile, "cameras", "cameras.toml", "Path to camera definitions")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Only print the summary")

	return cmd
}

func printStatuses(w io.Writer, index int, name string, statuses []gstreamer.ElementStatus) {
	fmt.Fprintf(w, "Camera %d (%s)\n", index, name)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, st := range statuses {
		state := "ok"
		if !st.Available {
			state = "missing"
		}
		fmt.Fprintf(tw, "  %s\t%s\n", st.Factory, state)
	}
	_ = tw.Flush()
	fmt.Fprintln(w)
}
