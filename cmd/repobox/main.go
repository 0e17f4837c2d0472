// Repobox — ephemeral Docker sandboxes for git repositories.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "repobox",
	Short: "Repobox — ephemeral Docker sandboxes for git repositories.",
	Long: `Repobox provisions isolated Docker containers with a git repository cloned
inside, runs commands in them, and tears them down when they expire. It serves
an HTTP API for humans and CI, and an MCP server for AI agents.`,
	RunE:          runServe, // Default to serve mode.
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(serveCmd, mcpCmd, versionCmd)
	_ = godotenv.Load()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}
