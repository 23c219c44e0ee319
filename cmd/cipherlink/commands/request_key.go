package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"cipherlink/internal/domain"
)

// requestKeyCmd asks the KDC for the session key shared with a peer and
// checks that our sealed copy opens to the advertised fingerprint.
func requestKeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "request-key <peer>",
		Short: "Request a session key with a linked contact",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := session()
			if err != nil {
				return err
			}
			peer := domain.UserID(args[0])
			ctx, cancel := requestContext(cmd)
			defer cancel()

			issued, err := s.Relay.RequestSessionKey(ctx, peer)
			if err != nil {
				return err
			}
			e, err := s.Keys.Get(ctx, peer)
			if err != nil {
				return fmt.Errorf("open issued key: %w", err)
			}
			verb := "Reused"
			if issued.Fresh {
				verb = "Issued"
			}
			fmt.Fprintf(out(cmd), "%s session %s with %s\n", verb, issued.SessionID, peer)
			fmt.Fprintf(out(cmd), "Fingerprint: %s (opened locally: %t)\n", issued.Fingerprint, e.Fingerprint == issued.Fingerprint)
			fmt.Fprintf(out(cmd), "State: %s, expires %s\n", issued.State, issued.ExpiresAt.Local().Format(timeLayout))
			return nil
		},
	}
}
