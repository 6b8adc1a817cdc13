package main

import (
	"fmt"
	"io"
	"os"

	"github.com/netways/esarmor/internal/config"
	"github.com/netways/esarmor/internal/rolebackend"

	"github.com/spf13/cobra"
)

func openRoleBackend(cmd *cobra.Command) (*rolebackend.ElasticsearchBackend, error) {
	cfg, err := config.Load(configPath(cmd))
	if err != nil {
		return nil, err
	}
	return rolebackend.New(cfg.RoleBackend.Elasticsearch, cfg.RoleBackend.Index)
}

func newRoleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "role",
		Short: "Manage roles in the configuration index",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List every role id",
		RunE: func(cmd *cobra.Command, args []string) error {
			backend, err := openRoleBackend(cmd)
			if err != nil {
				return err
			}
			ids, err := backend.ListRoleIDs(cmd.Context())
			if err != nil {
				return err
			}
			if len(ids) == 0 {
				fmt.Println("No roles found.")
				return nil
			}
			for _, id := range ids {
				fmt.Println(id)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "get <role-id>",
		Short: "Print a role's raw document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			backend, err := openRoleBackend(cmd)
			if err != nil {
				return err
			}
			doc, err := backend.GetRoleJSON(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if doc == nil {
				return fmt.Errorf("role %q not found", args[0])
			}
			fmt.Println(string(doc))
			return nil
		},
	})

	setCmd := &cobra.Command{
		Use:   "set <role-id> <file.json|->",
		Short: "Upsert a role's document from a JSON file (or stdin with -)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			backend, err := openRoleBackend(cmd)
			if err != nil {
				return err
			}

			var body []byte
			if args[1] == "-" {
				body, err = io.ReadAll(os.Stdin)
			} else {
				body, err = os.ReadFile(args[1])
			}
			if err != nil {
				return fmt.Errorf("reading role document: %w", err)
			}

			if err := backend.PutRoleJSON(cmd.Context(), args[0], body); err != nil {
				return err
			}
			fmt.Printf("Role %q saved.\n", args[0])
			return nil
		},
	}
	cmd.AddCommand(setCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <role-id>",
		Short: "Delete a role",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			backend, err := openRoleBackend(cmd)
			if err != nil {
				return err
			}
			if err := backend.DeleteRole(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Printf("Role %q deleted.\n", args[0])
			return nil
		},
	})

	return cmd
}
