package main

import (
	"github.com/spf13/cobra"

	"github.com/vovakirdan/incognito-relay/internal/app"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	var httpAddr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the relay server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			root.overrides.HTTPAddr = httpAddr
			cfg, logger, err := root.load(cmd.OutOrStdout())
			if err != nil {
				return err
			}

			application, err := app.New(cfg, logger)
			if err != nil {
				return err
			}

			logger.Info().Str("addr", cfg.Addr).Msg("starting relay")
			if err := application.Run(cmd.Context()); err != nil {
				logger.Error().Err(err).Msg("relay exited with error")
				return err
			}
			logger.Info().Msg("relay stopped")
			return nil
		},
	}

	cmd.Flags().StringVar(&httpAddr, "http-addr", "", "enable the HTTP/WebSocket gateway on this address")
	return cmd
}
