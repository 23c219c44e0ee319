package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"cipherlink/internal/domain"
)

func registerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "register <user-id>",
		Short: "Publish your public keys to the KDC server",
		Long: "Publish your public keys under <user-id>, signed with your identity key.\n" +
			"Running it again for the same id and keys fetches a fresh token.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			user := domain.UserID(args[0])
			ctx, cancel := requestContext(cmd)
			defer cancel()

			if err := appCtx.Register(ctx, user, passphrase); err != nil {
				return err
			}
			fmt.Fprintf(out(cmd), "Registered as %s with %s\n", user, serverURL)
			return nil
		},
	}
}
