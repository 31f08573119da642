package cli

import (
	"fmt"
	"io"

	"github.com/fatih/color"
)

func printHeader(w io.Writer, title string) {
	fmt.Fprintln(w, color.CyanString(logo))
	if title != "" {
		fmt.Fprintln(w, title)
		fmt.Fprintln(w, "─────────────────────")
	}
}

func ok(s string) string   { return color.GreenString("✓ " + s) }
func bad(s string) string  { return color.RedString("✗ " + s) }
func warn(s string) string { return color.YellowString(s) }
