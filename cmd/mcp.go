package main

import (
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/enrich-cli/internal/config"
	enrichmcp "github.com/sells-group/enrich-cli/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Expose enrichment as MCP tools",
}

// -- mcp serve --

var (
	mcpServeHTTP    bool
	mcpServeAddr    string
	mcpServeOffline bool
)

var mcpServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve enrich-row, plan-enrichment and describe-enrichment-server",
	Long:  "Serves the enrichment tools over stdio, or over streamable HTTP with --http.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		orch, err := initOrchestrator(ctx, config.ModeMCP, mcpServeOffline)
		if err != nil {
			return err
		}
		srv, err := enrichmcp.NewServer(enrichmcp.Config{
			Name:         cfg.MCP.Name,
			Version:      cfg.MCP.Version,
			Orchestrator: orch,
			Context:      cfg.Context,
		})
		if err != nil {
			return err
		}

		if mcpServeHTTP {
			return srv.RunHTTP(ctx, mcpAddr(mcpServeAddr))
		}
		zap.L().Info("serving mcp over stdio")
		return srv.Run(ctx)
	},
}

// -- mcp relay --

var (
	relayHTTP          bool
	relayAddr          string
	relayUpstream      string
	relayAllowUnlisted bool
	relayTTL           time.Duration
)

var mcpRelayCmd = &cobra.Command{
	Use:   "relay",
	Short: "Relay tool calls to an upstream MCP server",
	Long:  "Serves list-remote-tools and proxy-remote-tool, forwarding calls to mcp.upstream_url.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if relayUpstream != "" {
			cfg.MCP.UpstreamURL = relayUpstream
		}
		if err := cfg.Validate(config.ModeRelay); err != nil {
			return err
		}

		client, err := enrichmcp.Dial(ctx, cfg.MCP.UpstreamURL, &http.Client{Timeout: 5 * time.Minute})
		if err != nil {
			return err
		}
		defer client.Close() //nolint:errcheck

		relay, err := enrichmcp.NewRelay(client, enrichmcp.RelayConfig{
			Name:          cfg.MCP.Name + "-relay",
			Version:       cfg.MCP.Version,
			AllowUnlisted: relayAllowUnlisted,
			RegistryTTL:   relayTTL,
		})
		if err != nil {
			return err
		}
		if _, err := relay.Refresh(ctx); err != nil {
			zap.L().Warn("initial upstream tool listing failed", zap.Error(err))
		}

		if relayHTTP {
			return relay.RunHTTP(ctx, mcpAddr(relayAddr))
		}
		zap.L().Info("serving mcp relay over stdio", zap.String("upstream", cfg.MCP.UpstreamURL))
		return relay.Run(ctx)
	},
}

func mcpAddr(flag string) string {
	if flag != "" {
		return flag
	}
	return cfg.MCP.Addr
}

func init() {
	mcpServeCmd.Flags().BoolVar(&mcpServeHTTP, "http", false, "serve streamable HTTP instead of stdio")
	mcpServeCmd.Flags().StringVar(&mcpServeAddr, "addr", "", "listen address (default from config)")
	mcpServeCmd.Flags().BoolVar(&mcpServeOffline, "offline", false, "use the stub extractor")

	mcpRelayCmd.Flags().BoolVar(&relayHTTP, "http", false, "serve streamable HTTP instead of stdio")
	mcpRelayCmd.Flags().StringVar(&relayAddr, "addr", "", "listen address (default from config)")
	mcpRelayCmd.Flags().StringVar(&relayUpstream, "upstream", "", "upstream MCP endpoint (default from config)")
	mcpRelayCmd.Flags().BoolVar(&relayAllowUnlisted, "allow-unlisted", false, "forward calls to tools the upstream does not list")
	mcpRelayCmd.Flags().DurationVar(&relayTTL, "registry-ttl", 5*time.Minute, "how long the upstream tool list is cached")

	mcpCmd.AddCommand(mcpServeCmd, mcpRelayCmd)
	rootCmd.AddCommand(mcpCmd)
}
