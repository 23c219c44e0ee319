package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"cipherlink/internal/domain"
)

// lifecycleCmd builds rotate, revoke or destroy; they differ only in the
// relay call.
func lifecycleCmd(op, short string) *cobra.Command {
	return &cobra.Command{
		Use:   op + " <session-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := registered(); err != nil {
				return err
			}
			var call func(context.Context, domain.SessionID) (domain.SessionInfo, error)
			switch op {
			case "rotate":
				call = appCtx.Relay.RotateSessionKey
			case "revoke":
				call = appCtx.Relay.RevokeSessionKey
			case "destroy":
				call = appCtx.Relay.DestroySessionKey
			default:
				return fmt.Errorf("unknown lifecycle operation %q", op)
			}
			ctx, cancel := requestContext(cmd)
			defer cancel()
			info, err := call(ctx, domain.SessionID(args[0]))
			if err != nil {
				return err
			}
			printSession(out(cmd), info)
			return nil
		},
	}
}
