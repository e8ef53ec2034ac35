package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"assetdistributor/internal/app"
	"assetdistributor/internal/asset"
	"assetdistributor/internal/distribution"
)

var (
	publishVendors     []string
	publishTitle       string
	publishDescription string
	publishTags        []string
	publishCategory    string
	publishVisibility  string
)

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Upload, update or remove an asset on every selected vendor",
	Long: `Apply one operation to a media file on every selected vendor.

Without --vendor the owner's connected vendors are used. Vendors that still
need authorization keep the operation pending until "assetdistributor auth"
completes it.`,
}

func init() {
	for _, op := range []distribution.Op{distribution.OpUpload, distribution.OpUpdate, distribution.OpRemove} {
		publishCmd.AddCommand(newPublishOpCmd(op))
	}
	rootCmd.AddCommand(publishCmd)
}

func newPublishOpCmd(op distribution.Op) *cobra.Command {
	c := &cobra.Command{
		Use:   string(op) + " <file>",
		Short: fmt.Sprintf("%s the asset", publishVerb(op)),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPublish(cmd, op, args[0])
		},
	}

	c.Flags().StringSliceVar(&publishVendors, "vendor", nil, "Vendors to target (youtube, vimeo, dailymotion)")
	if op != distribution.OpRemove {
		c.Flags().StringVarP(&publishTitle, "title", "t", "", "Title (defaults to the file name)")
		c.Flags().StringVarP(&publishDescription, "description", "d", "", "Description")
		c.Flags().StringSliceVar(&publishTags, "tag", nil, "Tag, repeatable")
		c.Flags().StringVarP(&publishCategory, "category", "c", "", "Category label, e.g. sports")
		c.Flags().StringVar(&publishVisibility, "visibility", "public", "public, private or hidden")
	}
	return c
}

func publishVerb(op distribution.Op) string {
	switch op {
	case distribution.OpUpload:
		return "Upload"
	case distribution.OpUpdate:
		return "Update the metadata of"
	default:
		return "Remove"
	}
}

func runPublish(cmd *cobra.Command, op distribution.Op, path string) error {
	ctx := cmd.Context()

	vendors := make([]distribution.Vendor, 0, len(publishVendors))
	for _, name := range publishVendors {
		v, err := distribution.ParseVendor(name)
		if err != nil {
			return err
		}
		vendors = append(vendors, v)
	}

	visibility, err := asset.ParseVisibility(publishVisibility)
	if err != nil {
		return err
	}

	pipeline, cfg, closeService, err := loadPipeline(ctx)
	if err != nil {
		return err
	}
	defer closeService()

	req := app.Request{
		Owner:   cfg.Owner,
		Path:    path,
		Vendors: vendors,
		Op:      op,
		Metadata: asset.Metadata{
			Title:       publishTitle,
			Description: publishDescription,
			Tags:        publishTags,
			Category:    publishCategory,
			Visibility:  visibility,
		},
	}

	var result *distribution.Result
	var runErr error
	err = runWithSpinner(fmt.Sprintf("Distributing %s", path), func() error {
		result, runErr = pipeline.Distribute(ctx, req)
		if result == nil {
			return runErr
		}
		return nil
	})
	if err != nil {
		return err
	}

	printResult(result)
	return runErr
}
