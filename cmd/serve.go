package cmd

import (
	"context"

	"github.com/spf13/cobra"

	srv "github.com/slidesmith/slidesmith/internal/server"
)

func serveCMD() *cobra.Command {
	var serveAddr string
	var cfgPath string
	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := buildRuntime(context.Background(), cfgPath)
			if err != nil {
				return err
			}
			defer rt.close()
			return srv.Run(rt.cfg, rt.store, rt.events, rt.ctrl, serveAddr)
		},
	}
	serve.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config)")
	serve.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")
	return serve
}
