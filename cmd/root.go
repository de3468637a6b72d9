package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/cropdx/leafscan/cmd/analyze"
	"github.com/cropdx/leafscan/cmd/clearhistory"
	configcmd "github.com/cropdx/leafscan/cmd/config"
	"github.com/cropdx/leafscan/cmd/dashboard"
	"github.com/cropdx/leafscan/cmd/history"
	"github.com/cropdx/leafscan/cmd/theme"
	"github.com/cropdx/leafscan/cmd/version"
	"github.com/cropdx/leafscan/cmd/watch"
	"github.com/cropdx/leafscan/internal/buildinfo"
	"github.com/cropdx/leafscan/internal/conf"
	runtimectx "github.com/cropdx/leafscan/internal/runtime"
)

// Execute builds the command tree, runs it and releases the runtime.
func Execute(ctx context.Context, build *buildinfo.Context, args []string, opts ...runtimectx.Option) error {
	root, closeRuntime := newRootCommand(viper.GetViper(), build, opts...)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if leaked := closeRuntime(); leaked != 0 && err == nil {
		err = fmt.Errorf("%d image preview(s) were not released", leaked)
	}
	return err
}

// RootCommand creates and returns the root command using the global viper
// instance. The caller owns no runtime; use Execute to run commands.
func RootCommand(build *buildinfo.Context) *cobra.Command {
	root, _ := newRootCommand(viper.GetViper(), build)
	return root
}

func newRootCommand(v *viper.Viper, build *buildinfo.Context, opts ...runtimectx.Option) (*cobra.Command, func() int64) {
	var (
		configFile string
		rt         *runtimectx.Context
	)
	provider := func() *runtimectx.Context { return rt }

	rootCmd := &cobra.Command{
		Use:           "leafscan",
		Short:         "Diagnose crop leaf photos with a remote diagnosis service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Set up the global flags for the root command.
	flagErr := setupFlags(rootCmd, v, &configFile)

	versionCmd := version.Command(build)
	subcommands := []*cobra.Command{
		analyze.Command(provider),
		history.Command(provider),
		dashboard.Command(provider),
		clearhistory.Command(provider),
		configcmd.Command(provider),
		theme.Command(provider),
		watch.Command(provider),
		versionCmd,
	}
	rootCmd.AddCommand(subcommands...)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		// Skip setup for the version command
		if cmd.Name() == versionCmd.Name() {
			return nil
		}
		if flagErr != nil {
			return flagErr
		}

		settings, err := conf.LoadWith(v, configFile)
		if err != nil {
			return err
		}
		settings.Version = build.Version()
		settings.BuildDate = build.BuildDate()

		rt, err = runtimectx.New(settings, build, opts...)
		return err
	}

	closeRuntime := func() int64 {
		if rt == nil {
			return 0
		}
		return rt.Close()
	}

	return rootCmd, closeRuntime
}

// setupFlags defines flags that are global to the command line interface
func setupFlags(rootCmd *cobra.Command, v *viper.Viper, configFile *string) error {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(configFile, "config", "c", "", "Path to config file (default: search ./, user config dir, /etc/leafscan)")
	flags.BoolP("debug", "d", false, "Enable debug output")
	flags.String("api-url", "", "Base URL of the diagnosis service")
	flags.Duration("timeout", 0, "Timeout for each request to the service")
	flags.String("log-level", "", "Log level: trace, debug, info, warn, error")
	flags.Bool("no-color", false, "Disable coloured output")

	bindings := map[string]string{
		"debug":     "debug",
		"api-url":   "api.baseurl",
		"timeout":   "api.timeout",
		"log-level": "logging.level",
		"no-color":  "ui.nocolor",
	}
	for flag, key := range bindings {
		if err := v.BindPFlag(key, flags.Lookup(flag)); err != nil {
			return fmt.Errorf("error binding flag %s: %w", flag, err)
		}
	}
	return nil
}
