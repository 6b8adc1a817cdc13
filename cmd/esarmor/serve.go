package main

import (
	"context"

	"github.com/netways/esarmor/internal/config"
	"github.com/netways/esarmor/internal/logging"
	"github.com/netways/esarmor/internal/server"

	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the proxy server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath(cmd))
			if err != nil {
				return err
			}

			logger, err := logging.New(cfg.Logging)
			if err != nil {
				return err
			}
			logger.Info("server_start", "msg", "starting esarmor")

			srv := server.New(cfg, logger)
			return srv.Run(context.Background())
		},
	}
}
