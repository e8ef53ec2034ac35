package cmd

import (
	"fmt"

	"github.com/charmbracelet/huh/spinner"
	"github.com/charmbracelet/lipgloss"

	"assetdistributor/internal/distribution"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212")).MarginBottom(1)
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	infoStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	vendorStyle  = lipgloss.NewStyle().Bold(true).Width(12)
)

func runWithSpinner(title string, fn func() error) error {
	var err error
	_ = spinner.New().
		Title(title).
		Action(func() { err = fn() }).
		Run()
	if err != nil {
		return err
	}
	fmt.Println(successStyle.Render("✓ " + title))
	return nil
}

func printResult(r *distribution.Result) {
	if r == nil {
		return
	}
	if len(r.Outcomes) == 0 {
		fmt.Println(infoStyle.Render("Nothing to do"))
		return
	}

	fmt.Println()
	for _, o := range r.Outcomes {
		name := vendorStyle.Render(o.Vendor.DisplayName())
		switch o.Status {
		case distribution.StatusSucceeded:
			fmt.Println(name + successStyle.Render("✓ "+string(r.Op)+" succeeded"))
		case distribution.StatusSkipped:
			fmt.Println(name + infoStyle.Render("○ skipped: "+o.Message()))
		case distribution.StatusPending:
			fmt.Println(name + warnStyle.Render("… waiting for authorization"))
			fmt.Println(infoStyle.Render("  Run: assetdistributor auth " + string(o.Vendor)))
		case distribution.StatusFailed:
			fmt.Println(name + errorStyle.Render("✗ "+o.Message()))
		}
	}
	fmt.Println()
	fmt.Println(infoStyle.Render(r.Summary()))
}
