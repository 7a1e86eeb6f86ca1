package main

import (
	"io"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/vovakirdan/incognito-relay/internal/config"
	applog "github.com/vovakirdan/incognito-relay/internal/log"
)

type rootOptions struct {
	configPath string
	overrides  config.Config
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "incognito",
		Short:         "Real-time text and file sharing through a central relay",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "path to a yaml config file")
	flags.StringVar(&opts.overrides.Addr, "addr", "", "relay TCP address (default localhost:5555)")
	flags.StringVar(&opts.overrides.LogLevel, "log-level", "", "log level: debug, info, warn, error, off")
	flags.IntVar(&opts.overrides.MaxMessageSize, "max-message-size", 0, "largest accepted frame in bytes")

	cmd.AddCommand(newServeCmd(opts), newChatCmd(opts))
	return cmd
}

// load resolves configuration and builds the logger on out.
func (o *rootOptions) load(out io.Writer) (config.Config, *zerolog.Logger, error) {
	// Config loading logs before the configured level is known.
	bootstrap := applog.NewWriter("warn", out)

	cfg, path, err := config.Load(bootstrap, o.configPath)
	if err != nil {
		return cfg, bootstrap, err
	}
	cfg.UpdateFrom(o.overrides)
	if err := cfg.Validate(); err != nil {
		return cfg, bootstrap, err
	}

	logger := applog.NewWriter(cfg.LogLevel, out)
	logger.Debug().Str("config_path", path).Str("addr", cfg.Addr).Msg("configuration loaded")
	return cfg, logger, nil
}
