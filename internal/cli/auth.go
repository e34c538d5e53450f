package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/brewmap/brewmap/internal/domain"
	"github.com/brewmap/brewmap/services/auth"
)

const passwordEnv = "BREWMAP_PASSWORD"

// password takes the flag value, then BREWMAP_PASSWORD, then the first
// line of stdin.
func (e *env) password(cmd *cobra.Command, flag string) (string, error) {
	if flag != "" {
		return flag, nil
	}
	if v := os.Getenv(passwordEnv); v != "" {
		return v, nil
	}
	e.out.Info("password (or set %s):", passwordEnv)
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (e *env) printSession(s *domain.Session) error {
	if e.out.JSON() {
		return e.out.Value(map[string]any{
			"user":     s.User,
			"profile":  s.Profile,
			"is_admin": s.IsAdmin,
		})
	}
	name := s.User.Email
	if s.Profile != nil {
		name = fmt.Sprintf("%s (@%s)", s.User.Email, s.Profile.Username)
	}
	e.out.Success("signed in as %s", name)
	if s.IsAdmin {
		e.out.Info("admin tools enabled")
	}
	return nil
}

func (e *env) signupCommand() *cobra.Command {
	var in auth.SignUpInput
	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Create an account and sign in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			pw, err := e.password(cmd, in.Password)
			if err != nil {
				return err
			}
			in.Password = pw
			s, err := e.app.Auth.SignUp(cmd.Context(), in)
			if err != nil {
				return err
			}
			if s.AccessToken == "" {
				e.out.Success("account created; confirm %s, then run `brewmapctl login`", in.Email)
				return nil
			}
			if err := e.sessions.SignIn(s); err != nil {
				return err
			}
			return e.printSession(s)
		},
	}
	cmd.Flags().StringVar(&in.Email, "email", "", "account email")
	cmd.Flags().StringVar(&in.Username, "username", "", "public username")
	cmd.Flags().StringVar(&in.Password, "password", "", "account password")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("username")
	return cmd
}

func (e *env) loginCommand() *cobra.Command {
	var email, pw string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			pw, err := e.password(cmd, pw)
			if err != nil {
				return err
			}
			s, err := e.app.Auth.SignIn(cmd.Context(), email, pw)
			if err != nil {
				return err
			}
			if err := e.sessions.SignIn(s); err != nil {
				return err
			}
			return e.printSession(s)
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&pw, "password", "", "account password")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func (e *env) logoutCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and forget the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if s := e.sessions.Current(); s != nil {
				if err := e.app.Auth.SignOut(cmd.Context(), s.AccessToken); err != nil {
					e.out.Warning("server sign-out failed: %v", err)
				}
			}
			if err := e.sessions.SignOut(); err != nil {
				return err
			}
			e.out.Success("signed out")
			return nil
		},
	}
}

func (e *env) whoamiCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, s, err := e.signedIn(cmd.Context())
			if err != nil {
				return err
			}
			me, err := e.app.Auth.CurrentUser(ctx, s.AccessToken)
			if err != nil {
				return err
			}
			if e.out.JSON() {
				return e.out.Value(me)
			}
			username := "-"
			if me.Profile != nil {
				username = "@" + me.Profile.Username
			}
			return e.out.Table(
				[]string{"ID", "EMAIL", "USERNAME", "ADMIN"},
				[][]string{{me.User.ID, me.User.Email, username, yesNo(me.IsAdmin)}},
			)
		},
	}
}
