package cli

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/nhle/workdesk/internal/api"
	"github.com/nhle/workdesk/internal/app"
)

const requestTimeout = 30 * time.Second

// ErrNotLoggedIn is returned by commands that need a session.
var ErrNotLoggedIn = errors.New("not logged in, run `workdesk login` first")

type loginOptions struct {
	email    string
	password string
}

// NewLoginCommand creates the login command. Missing credentials are
// prompted for.
func NewLoginCommand(rootOpts *RootOptions) *cobra.Command {
	lo := &loginOptions{}

	cmd := &cobra.Command{
		Use:           "login",
		Short:         "Sign in and store the session",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLogin(cmd, rootOpts, lo)
		},
	}

	cmd.Flags().StringVarP(&lo.email, "email", "e", "", "account email")
	cmd.Flags().StringVar(&lo.password, "password", "", "account password (prompted when empty)")

	return cmd
}

func runLogin(cmd *cobra.Command, opts *RootOptions, lo *loginOptions) error {
	if lo.email == "" || lo.password == "" {
		if err := promptCredentials(lo); err != nil {
			return err
		}
	}

	rt, err := openRuntime(cmd.Context(), opts, app.WithoutRealtime())
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	creds := api.Credentials{Email: strings.TrimSpace(lo.email), Password: lo.password}
	if err := rt.Login(ctx, creds); err != nil {
		rt.Logger.Error("login failed", "error", err)
		return errors.New(api.UserMessage(err, "login failed: "+err.Error()))
	}

	identity := rt.Session.Identity()
	fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s (%s)\n", identity.Username, identity.Role)
	return nil
}

func promptCredentials(lo *loginOptions) error {
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Email").
				Value(&lo.email).
				Validate(func(s string) error {
					_, err := mail.ParseAddress(strings.TrimSpace(s))
					return err
				}),
			huh.NewInput().
				Title("Password").
				EchoMode(huh.EchoModePassword).
				Value(&lo.password).
				Validate(func(s string) error {
					if s == "" {
						return errors.New("password is required")
					}
					return nil
				}),
		),
	)
	if err := form.Run(); err != nil {
		return fmt.Errorf("reading credentials: %w", err)
	}
	return nil
}

// NewLogoutCommand creates the logout command. Every running client of
// the same user is signed out as well.
func NewLogoutCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "logout",
		Short:         "Sign out everywhere on this machine",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openRuntime(cmd.Context(), rootOpts, app.WithoutRealtime())
			if err != nil {
				return err
			}
			defer rt.Close()

			rt.Session.Logout(context.Background())
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
			return nil
		},
	}
}

// NewWhoamiCommand creates the whoami command.
func NewWhoamiCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "whoami",
		Short:         "Show the signed-in user",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openRuntime(cmd.Context(), rootOpts, app.WithoutRealtime())
			if err != nil {
				return err
			}
			defer rt.Close()

			out := cmd.OutOrStdout()
			sess := rt.Session.Session()
			if sess == nil {
				fmt.Fprintln(out, "Not logged in")
				return nil
			}

			fmt.Fprintf(out, "%s (%s)\n", sess.Identity.Username, sess.Identity.Role)
			if sess.Identity.Email != "" {
				fmt.Fprintf(out, "Email    %s\n", sess.Identity.Email)
			}
			if !sess.ExpiresAt.IsZero() {
				fmt.Fprintf(out, "Expires  %s\n", sess.ExpiresAt.Local().Format(time.RFC1123))
			}
			return nil
		},
	}
}
