package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"cipherlink/internal/domain"
)

func chainCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chain",
		Short: "Print the audit chain",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := registered(); err != nil {
				return err
			}
			ctx, cancel := requestContext(cmd)
			defer cancel()
			blocks, err := appCtx.Relay.Chain(ctx)
			if err != nil {
				return err
			}
			for _, b := range blocks {
				fmt.Fprintf(out(cmd), "#%-5d %s <- %s msg=%s nonce=%d\n",
					b.Height, short12(b.Hash), orDash(short12(b.PreviousHash)), short12(b.MessageHash), b.Nonce)
			}
			return nil
		},
	}
}

func validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the audit chain",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := registered(); err != nil {
				return err
			}
			ctx, cancel := requestContext(cmd)
			defer cancel()
			r, err := appCtx.Relay.ValidateChain(ctx)
			if err != nil {
				return err
			}
			if r.Valid {
				fmt.Fprintf(out(cmd), "chain valid (%d blocks)\n", r.Length)
				return nil
			}
			for _, is := range r.Issues {
				fmt.Fprintf(out(cmd), "block #%d: %s\n", is.Height, is.Reason)
			}
			return fmt.Errorf("%w: first bad block #%d", domain.ErrChainTampered, r.FirstInvalid)
		},
	}
}
