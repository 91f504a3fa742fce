package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sells-group/enrich-cli/internal/api"
	"github.com/sells-group/enrich-cli/internal/config"
)

var (
	servePort    int
	serveOffline bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the session HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if servePort != 0 {
			cfg.Server.Port = servePort
		}
		env, err := initEnv(ctx, config.ModeServe, serveOffline)
		if err != nil {
			return err
		}
		defer env.Close()

		srv := api.NewServer(ctx, env.Runner, api.Config{
			CORSOrigins: cfg.Server.CORSOrigins,
			Context:     cfg.Context,
		})
		return srv.ListenAndServe(ctx, fmt.Sprintf(":%d", cfg.Server.Port))
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	serveCmd.Flags().BoolVar(&serveOffline, "offline", false, "use the stub extractor")
	rootCmd.AddCommand(serveCmd)
}
