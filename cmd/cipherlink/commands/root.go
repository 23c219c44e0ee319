package commands

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"cipherlink/internal/app"
)

var (
	home       string
	passphrase string
	serverURL  string
	timeout    time.Duration
	verbose    bool
	demoSign   bool

	appCtx *app.Wire
)

func Execute() error {
	root := &cobra.Command{
		Use:          "cipherlink",
		Short:        "Client for the cipherlink key distribution service",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if home == "" {
				dir, err := os.UserHomeDir()
				if err != nil {
					return err
				}
				home = filepath.Join(dir, ".cipherlink")
			}
			if err := os.MkdirAll(home, 0o700); err != nil {
				return err
			}

			log := logrus.New()
			log.SetLevel(logrus.WarnLevel)
			if verbose {
				log.SetLevel(logrus.DebugLevel)
			}
			w, err := app.NewWire(app.Config{
				Home:      home,
				ServerURL: serverURL,
				HTTP:      &http.Client{Timeout: timeout},
			}, log)
			if err != nil {
				return err
			}
			appCtx = w
			return nil
		},
	}

	root.PersistentFlags().StringVar(&home, "home", "", "config dir (default ~/.cipherlink)")
	root.PersistentFlags().StringVarP(&passphrase, "passphrase", "p", "", "passphrase protecting your identity")
	root.PersistentFlags().StringVar(&serverURL, "server", "http://127.0.0.1:8080", "KDC base URL")
	root.PersistentFlags().DurationVar(&timeout, "timeout", 15*time.Second, "per-request timeout")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(
		initCmd(),
		fingerprintCmd(),
		registerCmd(),
		linkCmd(),
		requestKeyCmd(),
		sessionInfoCmd(),
		lifecycleCmd("rotate", "Rotate a session key in place"),
		lifecycleCmd("revoke", "Revoke a session key"),
		lifecycleCmd("destroy", "Destroy a session key and its stored material"),
		eventsCmd(),
		pfsCmd(),
		sendCmd(),
		historyCmd(),
		listenCmd(),
		chainCmd(),
		validateCmd(),
	)
	return root.Execute()
}

// session unlocks the identity for commands that need keys.
func session() (*app.Session, error) {
	if passphrase == "" {
		return nil, fmt.Errorf("passphrase required (-p)")
	}
	return appCtx.Open(passphrase, demoSign)
}

// registered fails early for commands that only talk to the server.
func registered() error {
	if !appCtx.Registered() {
		return app.ErrNotRegistered
	}
	return nil
}

func requestContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), timeout)
}

func out(cmd *cobra.Command) io.Writer { return cmd.OutOrStdout() }
