package cmd

import (
	"fmt"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"assetdistributor/internal/distribution"
)

var forgetYes bool

var accountsCmd = &cobra.Command{
	Use:   "accounts",
	Short: "Manage the owner's vendor accounts",
}

var accountsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List connected vendor accounts",
	Args:  cobra.NoArgs,
	RunE:  runAccountsList,
}

var accountsForgetCmd = &cobra.Command{
	Use:   "forget <vendor>",
	Short: "Forget the stored credential for a vendor",
	Long: `Forget the owner's stored credential for a vendor. Published videos
and the record of where they live are kept.`,
	Args: cobra.ExactArgs(1),
	RunE: runAccountsForget,
}

func init() {
	accountsForgetCmd.Flags().BoolVarP(&forgetYes, "yes", "y", false, "Do not ask for confirmation")
	accountsCmd.AddCommand(accountsListCmd)
	accountsCmd.AddCommand(accountsForgetCmd)
	rootCmd.AddCommand(accountsCmd)
}

func runAccountsList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	pipeline, cfg, closeService, err := loadPipeline(ctx)
	if err != nil {
		return err
	}
	defer closeService()

	accounts, err := pipeline.Accounts(ctx, cfg.Owner)
	if err != nil {
		return err
	}

	connected := 0
	for _, a := range accounts {
		if !a.Connected {
			continue
		}
		connected++
		fmt.Println(successStyle.Render("✓ " + a.Vendor.DisplayName()))
	}
	if connected == 0 {
		fmt.Println(infoStyle.Render("No connected accounts for " + cfg.Owner))
	}
	return nil
}

func runAccountsForget(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	v, err := distribution.ParseVendor(args[0])
	if err != nil {
		return err
	}

	if !forgetYes {
		var confirm bool
		if err := huh.NewConfirm().
			Title(fmt.Sprintf("Forget the %s account?", v.DisplayName())).
			Description("You will need to authorize again before the next upload").
			Value(&confirm).
			Run(); err != nil {
			return err
		}
		if !confirm {
			return nil
		}
	}

	pipeline, cfg, closeService, err := loadPipeline(ctx)
	if err != nil {
		return err
	}
	defer closeService()

	if err := pipeline.Disconnect(ctx, cfg.Owner, v); err != nil {
		return err
	}
	fmt.Println(successStyle.Render("✓ Forgot " + v.DisplayName() + " account for " + cfg.Owner))
	return nil
}
