package main

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/alvarorichard/anistream/internal/config"
)

var (
	keyStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#A78BFA")).Bold(true)
	envStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#0EA5E9"))
	faintStyle = lipgloss.NewStyle().Faint(true)
)

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "List configuration keys, their environment variables and defaults",
		PersistentPreRun: func(*cobra.Command, []string) {},
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			for _, key := range config.Keys() {
				field := config.Default[key]
				fmt.Fprintf(out, "%s  %s\n  %s\n  default: %v\n\n",
					keyStyle.Render(field.Key),
					envStyle.Render(field.Env()),
					faintStyle.Render(field.Description),
					field.Value,
				)
			}
		},
	}
}
