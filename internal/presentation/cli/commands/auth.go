package commands

import (
	"errors"
	"fmt"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/jbctechsolutions/docsync/internal/application/ports"
)

// NewAuthCmd creates the auth command group.
func NewAuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage the Google Drive session",
	}

	cmd.AddCommand(newAuthLoginCmd())
	cmd.AddCommand(newAuthLogoutCmd())
	cmd.AddCommand(newAuthWhoamiCmd())

	return cmd
}

func newAuthLoginCmd() *cobra.Command {
	var token string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Store a Drive access token",
		Long: `Store an OAuth access token with the drive.readonly scope. The token is
encrypted at rest. Without --token it is read from a masked prompt.

DOCSYNC_DRIVE_TOKEN, when set, takes precedence over the stored token.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := requireApp()
			if err != nil {
				return err
			}
			if token == "" {
				if token, err = promptSecret("Access token: "); err != nil {
					return err
				}
			}
			token = strings.TrimSpace(token)
			if token == "" {
				return errors.New("empty token")
			}

			c := app.Container
			if err := c.Tokens().Save(token); err != nil {
				return fmt.Errorf("failed to store token: %w", err)
			}
			c.Connect(cmd.Context())

			user, err := c.Drive().UserInfo(cmd.Context())
			if err != nil {
				return disconnectOnAuth(app, err)
			}
			return app.Formatter.Emit(user, func() error {
				return app.Formatter.Success("Connected as %s", describeUser(user))
			})
		},
	}

	cmd.Flags().StringVar(&token, "token", "", "access token (default: prompt)")

	return cmd
}

func newAuthLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Revoke and forget the stored token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := requireApp()
			if err != nil {
				return err
			}
			if err := app.Container.Disconnect(cmd.Context()); err != nil {
				app.Formatter.Warning("Token revocation failed: %v", err)
			}
			return app.Formatter.Emit(map[string]string{"connection": "disconnected"}, func() error {
				return app.Formatter.Success("Disconnected")
			})
		},
	}
}

func newAuthWhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the connected Google account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := requireApp()
			if err != nil {
				return err
			}
			user, err := app.Container.Drive().UserInfo(cmd.Context())
			if err != nil {
				return disconnectOnAuth(app, err)
			}
			return app.Formatter.Emit(user, func() error {
				return app.Formatter.Println("%s", describeUser(user))
			})
		},
	}
}

func describeUser(u ports.UserInfo) string {
	switch {
	case u.Name != "" && u.Email != "":
		return fmt.Sprintf("%s <%s>", u.Name, u.Email)
	case u.Email != "":
		return u.Email
	default:
		return u.Name
	}
}

// promptSecret reads one line without echoing it.
func promptSecret(prompt string) (string, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:     prompt,
		EnableMask: true,
		MaskRune:   '*',
	})
	if err != nil {
		return "", fmt.Errorf("could not create readline: %w", err)
	}
	defer rl.Close()

	line, err := rl.Readline()
	if err != nil {
		return "", fmt.Errorf("no token entered: %w", err)
	}
	return line, nil
}
