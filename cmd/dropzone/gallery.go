package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/Renedz21/client/internal/app"
	"github.com/Renedz21/client/internal/upload"

	"github.com/spf13/cobra"
)

func galleryCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "gallery",
		Short: "List images stored by the API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			images, err := app.NewGallery(opts.cfg).Images(cmd.Context())
			if err != nil {
				return fmt.Errorf("fetch gallery: %s", upload.UserMessage(err))
			}

			if len(images.Data) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no images")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tSIZE\tDIMENSIONS\tURL")
			for _, img := range images.Data {
				dims := "-"
				if img.Dimensions != nil {
					dims = fmt.Sprintf("%dx%d", img.Dimensions.Width, img.Dimensions.Height)
				}
				name := img.OriginalName
				if name == "" {
					name = "-"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", img.PublicID, name, upload.FormatBytes(img.Size), dims, img.URL)
			}
			return w.Flush()
		},
	}
}
