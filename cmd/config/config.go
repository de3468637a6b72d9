package config

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cropdx/leafscan/internal/conf"
	"github.com/cropdx/leafscan/internal/errors"
	runtimectx "github.com/cropdx/leafscan/internal/runtime"
)

// Command creates a new cobra.Command for inspecting and writing configuration.
func Command(rt runtimectx.Provider) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or write the effective configuration",
	}

	cmd.AddCommand(showCommand(rt), initCommand(rt))
	return cmd
}

func showCommand(rt runtimectx.Provider) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as YAML",
		Long:  "Print the configuration after defaults, config file, environment and flags are applied.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := conf.MarshalYAML(rt().Settings)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}

func initCommand(rt runtimectx.Provider) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write the effective configuration to a config file",
		Long: "Write the configuration after defaults, environment and flags are applied. " +
			"Without a path the file goes to the user config directory.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := conf.DefaultConfigPath()
			if len(args) == 1 {
				path = args[0]
			}

			if _, err := os.Stat(path); err == nil && !force {
				return errors.Newf("config file %s already exists", path).
					Component("cli").
					Category(errors.CategoryValidation).
					UserMessage(fmt.Sprintf("%s already exists; use --force to overwrite it.", path)).
					Build()
			}

			if err := conf.SaveYAMLConfig(path, rt().Settings); err != nil {
				return errors.New(err).
					Component("cli").
					Category(errors.CategoryFileIO).
					FileContext(path, 0).
					UserMessage(fmt.Sprintf("Cannot write %s.", path)).
					Build()
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Wrote configuration to %s\n", path)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing config file")
	return cmd
}
