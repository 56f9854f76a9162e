package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/yoockh/launchkit/internal/client/pages"
)

const passwordEnv = "LAUNCHKIT_PASSWORD"

func passwordFlag(cmd *cobra.Command) string {
	pw, _ := cmd.Flags().GetString("password")
	if pw == "" {
		pw = os.Getenv(passwordEnv)
	}
	return pw
}

func newLoginCmd(a *app) *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in with email and password",
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := a.session(cmd.Context())
			if err != nil {
				return err
			}
			if err := pages.NewAuth(st).Login(cmd.Context(), pages.LoginForm{Email: email, Password: passwordFlag(cmd)}); err != nil {
				return err
			}
			state := st.State()
			return a.emit(state.User, func(w io.Writer) {
				fmt.Fprintf(w, "Signed in as %s (admin: %s)\n", state.User.Email, yesNo(state.IsAdmin))
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().String("password", "", "account password (or "+passwordEnv+")")
	return cmd
}

func newLoginGoogleCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "login-google",
		Short: "Print the Google consent URL; finish with oauth-complete",
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := a.session(cmd.Context())
			if err != nil {
				return err
			}
			u, err := st.LoginWithGoogle(cmd.Context())
			if err != nil {
				return err
			}
			return a.emit(map[string]string{"url": u}, func(w io.Writer) {
				fmt.Fprintf(w, "Open this URL in a browser, then run oauth-complete with the address you land on:\n%s\n", u)
			})
		},
	}
}

func newOAuthCompleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "oauth-complete <callback-url>",
		Short: "Finish an OAuth sign-in from the redirect address",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.session(cmd.Context())
			if err != nil {
				return err
			}
			if err := st.CompleteOAuth(cmd.Context(), args[0]); err != nil {
				return err
			}
			a.printf("Signed in as %s\n", st.State().User.Email)
			return nil
		},
	}
}

func newSignupCmd(a *app) *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Create an account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := a.session(cmd.Context())
			if err != nil {
				return err
			}
			pw := passwordFlag(cmd)
			u, err := pages.NewAuth(st).Signup(cmd.Context(), pages.SignupForm{Email: email, Password: pw, ConfirmPassword: pw})
			if err != nil {
				return err
			}
			return a.emit(u, func(w io.Writer) {
				fmt.Fprintf(w, "Account created for %s. Check your email to confirm it.\n", u.Email)
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().String("password", "", "account password, at least 8 characters (or "+passwordEnv+")")
	return cmd
}

func newLogoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and forget the stored session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := a.session(cmd.Context())
			if err != nil {
				return err
			}
			if err := pages.NewAuth(st).Logout(cmd.Context()); err != nil {
				return err
			}
			a.printf("Signed out\n")
			return nil
		},
	}
}

func newForgotPasswordCmd(a *app) *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   "forgot-password",
		Short: "Send a password reset email",
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := a.session(cmd.Context())
			if err != nil {
				return err
			}
			if err := pages.NewAuth(st).ForgotPassword(cmd.Context(), pages.ForgotPasswordForm{Email: email}); err != nil {
				return err
			}
			a.printf("If an account exists for %s, a reset link is on its way.\n", email)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	return cmd
}

var errNotSignedIn = errors.New("not signed in, run launchctl login first")

func newWhoamiCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := a.session(cmd.Context())
			if err != nil {
				return err
			}
			state := st.State()
			if !state.Authenticated() {
				return errNotSignedIn
			}
			out := struct {
				ID      string `json:"id"`
				Email   string `json:"email"`
				IsAdmin bool   `json:"is_admin"`
			}{state.User.ID, state.User.Email, state.IsAdmin}
			return a.emit(out, func(w io.Writer) {
				fmt.Fprintf(w, "%s\t%s\tadmin: %s\n", out.ID, out.Email, yesNo(out.IsAdmin))
			})
		},
	}
}
