// Package main implements the ragctl CLI for manual operations against the
// ragd HTTP server.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	// serverURL is the base URL for the ragd HTTP server
	serverURL string
	// clientID selects the client collection commands operate on
	clientID string
	// version information
	version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "ragctl",
	Short: "CLI for ragd HTTP server operations",
	Long: `ragctl is a command-line interface for interacting with the ragd HTTP server.
It provides commands for ingesting documents, querying them, and managing
per-client collections.`,
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8000", "ragd server URL")
	rootCmd.PersistentFlags().StringVar(&clientID, "client", "default", "client id to operate on")
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(documentsCmd)
	rootCmd.AddCommand(clearCmd)
	rootCmd.AddCommand(clientsCmd)
	rootCmd.AddCommand(healthCmd)
}
