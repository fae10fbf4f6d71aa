package main

import (
	"github.com/spf13/cobra"

	"github.com/alvarorichard/anistream/internal/config"
	"github.com/alvarorichard/anistream/internal/util"
	"github.com/alvarorichard/anistream/internal/version"
)

type rootOptions struct {
	cfgFile string
	debug   bool
	cfg     *config.Config
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "anistream",
		Short:         "Anime catalog scraper and stream resolver",
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.cfgFile)
			if err != nil {
				util.InitLogger(util.LogOptions{})
				util.Error("configuration error", "error", err)
				return err
			}
			util.IsDebug = opts.debug
			util.InitLogger(util.LogOptions{Level: cfg.Log.Level, File: cfg.Log.File})
			opts.cfg = cfg
			return nil
		},
	}
	cmd.SetVersionTemplate(version.String() + "\n")

	cmd.PersistentFlags().StringVarP(&opts.cfgFile, "config", "c", "", "config file (default ./anistream.toml)")
	cmd.PersistentFlags().BoolVar(&opts.debug, "debug", false, "enable debug logging")

	cmd.AddCommand(
		newServeCmd(opts),
		newResolveCmd(opts),
		newFetchCmd(opts),
		newConfigCmd(),
		newVersionCmd(),
	)
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		// Skip config loading.
		PersistentPreRun: func(*cobra.Command, []string) {},
		Run: func(cmd *cobra.Command, args []string) {
			version.ShowVersion(cmd.OutOrStdout())
		},
	}
}
