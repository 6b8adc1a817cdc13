package main

import (
	"fmt"

	"github.com/netways/esarmor/internal/config"
	"github.com/netways/esarmor/internal/crypto"

	"github.com/spf13/cobra"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration helpers",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "generate-key",
		Short: "Generate a new encryption_key value",
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := crypto.GenerateKey()
			if err != nil {
				return err
			}
			fmt.Println(key)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "encrypt-secret <value>",
		Short: "Encrypt a value (e.g. ldap.bind_pw) for storage in the config file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath(cmd))
			if err != nil {
				return err
			}
			if cfg.EncryptionKey == "" {
				return fmt.Errorf("encryption_key is not configured; run 'esarmor config generate-key' first")
			}
			enc, err := crypto.NewEncryptor(cfg.EncryptionKey)
			if err != nil {
				return err
			}
			ciphertext, err := enc.Encrypt(args[0])
			if err != nil {
				return err
			}
			fmt.Printf("enc:%s\n", ciphertext)
			return nil
		},
	})

	return cmd
}
