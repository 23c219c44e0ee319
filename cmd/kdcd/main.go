// Command kdcd runs the cipherlink key distribution server.
//
//	kdcd serve --config kdcd.yaml
//
// Secrets may come from CIPHERLINK_VAULT_PASSPHRASE and
// CIPHERLINK_TOKEN_SECRET instead of the file.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"cipherlink/internal/app"
	"cipherlink/internal/config"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		cfgPath string
		listen  string
	)
	root := &cobra.Command{
		Use:          "kdcd",
		Short:        "Key distribution server for cipherlink",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", "", "path to the YAML config")
	root.PersistentFlags().StringVar(&listen, "listen", "", "listen address, overrides the config")

	load := func() (config.Config, error) {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return config.Config{}, err
		}
		if listen != "" {
			cfg.Listen = listen
		}
		return cfg, nil
	}

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Serve the REST and websocket API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			d, err := app.NewDaemon(cfg)
			if err != nil {
				return err
			}
			defer d.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return d.Run(ctx)
		},
	}

	check := &cobra.Command{
		Use:   "check-config",
		Short: "Load and validate the config, then print it without secrets",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			cfg.Vault.Passphrase = "<redacted>"
			cfg.Auth.TokenSecret = "<redacted>"
			fmt.Fprintf(cmd.OutOrStdout(), "%+v\n", cfg)
			return nil
		},
	}

	root.AddCommand(serve, check)
	return root
}
