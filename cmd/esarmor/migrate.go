package main

import (
	"fmt"

	"github.com/netways/esarmor/internal/config"
	"github.com/netways/esarmor/internal/database"
	"github.com/netways/esarmor/internal/rolebackend"

	"github.com/spf13/cobra"
)

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply role cache schema migrations and bootstrap the configuration index",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath(cmd))
			if err != nil {
				return err
			}

			if cfg.RoleBackend.CacheDSN != "" {
				store, err := database.Open(cfg.RoleBackend.CacheDSN)
				if err != nil {
					return fmt.Errorf("opening role cache: %w", err)
				}
				defer store.Close()

				if err := database.NewMigrator(store).Migrate(cmd.Context()); err != nil {
					return fmt.Errorf("running role cache migrations: %w", err)
				}
				fmt.Println("Role cache migrations complete.")
			}

			backend, err := rolebackend.New(cfg.RoleBackend.Elasticsearch, cfg.RoleBackend.Index)
			if err != nil {
				return fmt.Errorf("connecting to role backend: %w", err)
			}
			if err := backend.Bootstrap(cmd.Context()); err != nil {
				return fmt.Errorf("bootstrapping configuration index: %w", err)
			}
			fmt.Println("Configuration index ready.")

			return nil
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Check role cache migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath(cmd))
			if err != nil {
				return err
			}
			if cfg.RoleBackend.CacheDSN == "" {
				fmt.Println("role_backend.cache_dsn not set, no role cache migrations apply.")
				return nil
			}

			store, err := database.Open(cfg.RoleBackend.CacheDSN)
			if err != nil {
				return fmt.Errorf("opening role cache: %w", err)
			}
			defer store.Close()

			statuses, err := database.NewMigrator(store).Status(cmd.Context())
			if err != nil {
				return fmt.Errorf("checking migration status: %w", err)
			}

			for _, s := range statuses {
				status := "pending"
				if s.Applied {
					status = "applied"
				}
				fmt.Printf("%-40s %s\n", s.Name, status)
			}
			if len(statuses) == 0 {
				fmt.Println("No migrations found.")
			}
			return nil
		},
	})

	return cmd
}
