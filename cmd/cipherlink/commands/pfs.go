package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"cipherlink/internal/crypto"
	"cipherlink/internal/domain"
	"cipherlink/internal/util/memzero"
)

// pfsCmd runs both halves of an ephemeral handshake and derives the same
// secret locally. The secret itself is never printed.
func pfsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pfs [peer]",
		Short: "Run an ephemeral X25519 handshake with the server",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := registered(); err != nil {
				return err
			}
			var peer domain.UserID
			if len(args) == 1 {
				peer = domain.UserID(args[0])
			}
			ctx, cancel := requestContext(cmd)
			defer cancel()

			start, err := appCtx.Relay.StartPFS(ctx, peer)
			if err != nil {
				return err
			}
			priv, pub, err := crypto.GenerateX25519()
			if err != nil {
				return err
			}
			defer memzero.Zero(priv[:])

			done, err := appCtx.Relay.CompletePFS(ctx, start.PFSSessionID, pub)
			if err != nil {
				return err
			}
			shared, err := crypto.DH(priv, start.ServerEphemeralKey)
			if err != nil {
				return err
			}
			secret, err := crypto.DeriveHandshakeSecret(shared, start.ServerEphemeralKey, pub)
			memzero.Zero(shared[:])
			if err != nil {
				return err
			}
			local := crypto.KeyFingerprint(secret)
			memzero.Zero(secret)

			fmt.Fprintf(out(cmd), "Handshake %s established\n", done.PFSSessionID)
			fmt.Fprintf(out(cmd), "Server fingerprint: %s\n", done.DerivedFingerprint)
			fmt.Fprintf(out(cmd), "Local fingerprint:  %s\n", local)
			if local != done.DerivedFingerprint {
				return fmt.Errorf("derived secrets differ")
			}
			return nil
		},
	}
}
