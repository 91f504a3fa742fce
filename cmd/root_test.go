package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	for _, name := range []string{"enrich", "plan", "sessions", "migrate", "serve", "mcp"} {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "enrich-cli", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestEnrichCommand_Flags(t *testing.T) {
	for _, name := range []string{"rows", "fields", "sheet", "limit", "offline", "dry-run"} {
		assert.NotNil(t, enrichCmd.Flags().Lookup(name), "enrich should have --%s flag", name)
	}
	assert.Equal(t, "0", enrichCmd.Flags().Lookup("limit").DefValue)
}

func TestPlanCommand_Flags(t *testing.T) {
	for _, name := range []string{"rows", "fields", "field", "row"} {
		assert.NotNil(t, planCmd.Flags().Lookup(name), "plan should have --%s flag", name)
	}
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag, "serve command should have --port flag")
	assert.Equal(t, "0", flag.DefValue)
}

func TestSessionsCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range sessionsCmd.Commands() {
		names[c.Name()] = true
	}
	for _, name := range []string{"show", "results", "metrics"} {
		assert.True(t, names[name], "sessions should have subcommand %q", name)
	}
}

func TestMCPCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range mcpCmd.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["serve"])
	assert.True(t, names["relay"])

	assert.NotNil(t, mcpServeCmd.Flags().Lookup("http"))
	assert.NotNil(t, mcpRelayCmd.Flags().Lookup("upstream"))
	assert.Equal(t, "5m0s", mcpRelayCmd.Flags().Lookup("registry-ttl").DefValue)
}
