// Package main is the entrypoint for the esarmor CLI.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/netways/esarmor/internal/apierror"
	"github.com/spf13/cobra"
)

// Set at build time via -ldflags.
var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:   "esarmor",
		Short: "Authorizing reverse proxy for Elasticsearch",
		Long:  "esarmor authenticates clients, resolves their roles, and rewrites or denies Elasticsearch requests per a glob-pattern role algebra before forwarding them upstream.",
	}

	rootCmd.PersistentFlags().String("config", "", "path to server configuration file (or set ESARMOR_CONFIG)")

	rootCmd.AddCommand(
		newServeCmd(),
		newMigrateCmd(),
		newRoleCmd(),
		newConfigCmd(),
		newVersionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		var cfgErr *apierror.ConfigError
		if errors.As(err, &cfgErr) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("esarmor version %s\n", version)
		},
	}
}

func configPath(cmd *cobra.Command) string {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		path = os.Getenv("ESARMOR_CONFIG")
	}
	return path
}
