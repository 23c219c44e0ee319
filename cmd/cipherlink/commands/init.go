package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the local identity (run once per home directory)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if passphrase == "" {
				return errors.New("an identity passphrase is required (-p)")
			}
			_, fp, err := appCtx.IDs.GenerateIdentity(passphrase)
			if err != nil {
				return err
			}
			w := out(cmd)
			fmt.Fprintf(w, "Identity written to %s\n", home)
			fmt.Fprintf(w, "Fingerprint: %s\n", fp)
			fmt.Fprintln(w, "Next: cipherlink register <user-id>")
			return nil
		},
	}
}
