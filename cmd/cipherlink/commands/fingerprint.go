package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func fingerprintCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fingerprint",
		Short: "Print identity fingerprint and public keys",
		Long: "Print the fingerprint covering both public keys, then the keys themselves.\n" +
			"Compare the fingerprint with your peer over a trusted channel.",
		RunE: func(cmd *cobra.Command, args []string) error {
			sum, err := appCtx.IDs.Describe(passphrase)
			if err != nil {
				return err
			}
			w := out(cmd)
			fmt.Fprintf(w, "Fingerprint:  %s\n", sum.Fingerprint)
			fmt.Fprintf(w, "Identity key: %s\n", sum.IdentityKey)
			fmt.Fprintf(w, "Signing key:  %s\n", sum.SigningKey)
			return nil
		},
	}
}
