package theme

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cropdx/leafscan/internal/preferences"
	runtimectx "github.com/cropdx/leafscan/internal/runtime"
)

// Command creates a new cobra.Command that shows or changes the output theme.
func Command(rt runtimectx.Provider) *cobra.Command {
	cmd := &cobra.Command{
		Use:       "theme [dark|light|toggle]",
		Short:     "Show or change the colour theme",
		Long:      "Without an argument, print the current theme. The choice is saved in the preferences file.",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{string(preferences.ThemeDark), string(preferences.ThemeLight), "toggle"},
		RunE: func(cmd *cobra.Command, args []string) error {
			svc := rt().Theme

			var (
				current preferences.Theme
				err     error
			)
			switch {
			case len(args) == 0:
				current, err = svc.Current()
			case strings.EqualFold(args[0], "toggle"):
				current, err = svc.Toggle()
			default:
				current, err = preferences.ParseTheme(args[0])
				if err == nil {
					err = svc.Set(current)
				}
			}
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), current)
			return nil
		},
	}

	return cmd
}
