package cmd

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"assetdistributor/internal/distribution"
)

var resourcesCmd = &cobra.Command{
	Use:   "resources <file>",
	Short: "Show where a file is published",
	Args:  cobra.ExactArgs(1),
	RunE:  runResources,
}

func init() {
	rootCmd.AddCommand(resourcesCmd)
}

func runResources(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	pipeline, _, closeService, err := loadPipeline(ctx)
	if err != nil {
		return err
	}
	defer closeService()

	ids, err := pipeline.Resources(ctx, args[0])
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		fmt.Println(infoStyle.Render("Not published anywhere"))
		return nil
	}

	vendors := make([]distribution.Vendor, 0, len(ids))
	for v := range ids {
		vendors = append(vendors, v)
	}
	slices.Sort(vendors)

	for _, v := range vendors {
		fmt.Println(vendorStyle.Render(v.DisplayName()) + ids[v])
	}
	return nil
}
