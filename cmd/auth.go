package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/pkg/browser"
	"github.com/spf13/cobra"

	"assetdistributor/internal/callback"
	"assetdistributor/internal/distribution"
)

const authTimeout = 5 * time.Minute

var authCmd = &cobra.Command{
	Use:   "auth <vendor>",
	Short: "Connect a vendor account",
	Long: `Open the vendor's consent page, wait for the redirect on the local
callback server and replay any operation that was waiting for this vendor.`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{string(distribution.YouTube), string(distribution.Vimeo), string(distribution.Dailymotion)},
	RunE:      runAuth,
}

var authStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show which vendors are configured and connected",
	Args:  cobra.NoArgs,
	RunE:  runAuthStatus,
}

func init() {
	authCmd.AddCommand(authStatusCmd)
	rootCmd.AddCommand(authCmd)
}

func runAuthStatus(cmd *cobra.Command, args []string) error {
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

	fmt.Println(infoStyle.Render(fmt.Sprintf("\nVendor status for %s:\n", cfg.Owner)))
	for _, a := range accounts {
		name := a.Vendor.DisplayName()
		switch {
		case !a.Configured:
			fmt.Println(errorStyle.Render("✗ " + name + ": client credentials missing or vendor disabled"))
		case a.Connected:
			fmt.Println(successStyle.Render("✓ " + name + ": connected"))
		default:
			fmt.Println(warnStyle.Render("○ " + name + ": configured, not connected"))
			fmt.Println(infoStyle.Render("  Run: assetdistributor auth " + string(a.Vendor)))
		}

		pending, err := pipeline.Pending(ctx, cfg.Owner, a.Vendor)
		if err != nil {
			return err
		}
		if len(pending) > 0 {
			fmt.Println(infoStyle.Render(fmt.Sprintf("  %d operation(s) waiting for authorization", len(pending))))
		}
	}
	fmt.Println()
	return nil
}

func runAuth(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	v, err := distribution.ParseVendor(args[0])
	if err != nil {
		return err
	}

	pipeline, cfg, closeService, err := loadPipeline(ctx)
	if err != nil {
		return err
	}
	defer closeService()

	consentURL, err := pipeline.Authorize(ctx, cfg.Owner, v)
	if err != nil {
		return err
	}
	if consentURL == "" {
		fmt.Println(successStyle.Render("✓ " + v.DisplayName() + " is already connected"))
		return nil
	}

	done := make(chan callback.Completion, 1)
	listener, err := net.Listen("tcp", cfg.Callback.Addr)
	if err != nil {
		return fmt.Errorf("failed to start callback server: %w", err)
	}

	server := &http.Server{
		ReadHeaderTimeout: 10 * time.Second,
		Handler: callback.NewRouter(pipeline, callback.Options{
			Owner: cfg.Owner,
			Notify: func(c callback.Completion) {
				if c.Vendor != v {
					return
				}
				select {
				case done <- c:
				default:
				}
			},
		}),
	}

	errChan := make(chan error, 1)
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = server.Shutdown(ctx)
	}()

	fmt.Println(infoStyle.Render("\nOpening browser for " + v.DisplayName() + " authorization..."))
	fmt.Println(infoStyle.Render("If browser doesn't open, visit:\n" + consentURL))
	_ = browser.OpenURL(consentURL)

	fmt.Println(infoStyle.Render("\nWaiting for authorization..."))

	select {
	case c := <-done:
		if c.Err != nil {
			return fmt.Errorf("%s authorization failed: %w", v.DisplayName(), c.Err)
		}
		fmt.Println(successStyle.Render("✓ " + v.DisplayName() + " connected"))
		if c.Result != nil && len(c.Result.Outcomes) > 0 {
			fmt.Println(infoStyle.Render("Replayed pending operations:"))
			printResult(c.Result)
		}
		return nil

	case err := <-errChan:
		return err

	case <-ctx.Done():
		return ctx.Err()

	case <-time.After(authTimeout):
		return fmt.Errorf("authorization timed out")
	}
}
