// Package cli is the launchctl command tree: a terminal front end over the
// client-side session store, route guards, pages and API client.
package cli

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/yoockh/launchkit/config"
	"github.com/yoockh/launchkit/internal/client/apiclient"
	"github.com/yoockh/launchkit/internal/client/authstore"
	"github.com/yoockh/launchkit/internal/identity"
	"github.com/yoockh/launchkit/internal/identity/gotrue"
	"github.com/yoockh/launchkit/internal/logger"
)

// app holds what the commands share. The session store is built on first
// use, so "health" never touches the identity provider.
type app struct {
	settings    config.Settings
	sessionFile string
	asJSON      bool
	out         io.Writer
	log         *logrus.Logger

	// connect builds the identity provider; tests replace it.
	connect func(a *app) (identity.Provider, identity.ProfileStore, func(), error)

	store   *authstore.Store
	api     *apiclient.Client
	queries *apiclient.QueryCache
	closers []func()
}

func newApp(out io.Writer) *app {
	s := config.Load()
	return &app{
		settings:    s,
		sessionFile: defaultSessionFile(),
		out:         out,
		log:         logger.New(s.LogLevel),
		connect:     connectGoTrue,
		queries:     apiclient.NewQueryCache(apiclient.DefaultStaleTime),
	}
}

func defaultSessionFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = "."
	}
	return filepath.Join(dir, "launchkit", "session.json")
}

func connectGoTrue(a *app) (identity.Provider, identity.ProfileStore, func(), error) {
	if a.settings.SupabaseURL == "" || a.settings.SupabaseAnonKey == "" {
		return nil, nil, nil, errors.New("SUPABASE_URL and SUPABASE_ANON_KEY must be set")
	}
	c := gotrue.NewClient(
		gotrue.NewAPI(a.settings.SupabaseURL, a.settings.SupabaseAnonKey),
		gotrue.NewFileStorage(a.sessionFile),
		a.log,
	)
	return c, c, c.Close, nil
}

// session returns the initialized store.
func (a *app) session(ctx context.Context) (*authstore.Store, error) {
	if a.store != nil {
		return a.store, nil
	}
	provider, profiles, closeFn, err := a.connect(a)
	if err != nil {
		return nil, err
	}
	if closeFn != nil {
		a.closers = append(a.closers, closeFn)
	}

	st := authstore.New(provider, profiles, authstore.Options{
		AdminEmail: a.settings.AdminEmail,
		AppURL:     a.settings.AppURL,
		Logger:     a.log,
	})
	a.closers = append(a.closers, st.Close)
	if err := st.Initialize(ctx); err != nil {
		return nil, err
	}
	a.store = st
	a.api = apiclient.New(a.settings.APIURL, provider, apiclient.WithLogger(a.log))
	return st, nil
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "launchctl",
		Short:         "Terminal client for a launchkit deployment",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			if cmd.Flags().Changed("log-level") {
				lvl, _ := cmd.Flags().GetString("log-level")
				a.log.SetLevel(logger.ParseLevel(lvl))
			}
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.settings.APIURL, "api-url", a.settings.APIURL, "backend base URL")
	pf.StringVar(&a.sessionFile, "session-file", a.sessionFile, "where the session is persisted")
	pf.BoolVar(&a.asJSON, "json", false, "print JSON instead of text")
	pf.String("log-level", "", "log level (debug, info, warn, error)")

	root.AddCommand(
		newLoginCmd(a),
		newLoginGoogleCmd(a),
		newOAuthCompleteCmd(a),
		newSignupCmd(a),
		newLogoutCmd(a),
		newForgotPasswordCmd(a),
		newWhoamiCmd(a),
		newProfileCmd(a),
		newDashboardCmd(a),
		newAdminCmd(a),
		newBillingCmd(a),
		newRouteCmd(a),
		newHealthCmd(a),
	)
	return root
}

// ExecuteContext runs the command tree with args from the process.
func ExecuteContext(ctx context.Context) error {
	a := newApp(os.Stdout)
	defer a.close()
	return newRootCmd(a).ExecuteContext(ctx)
}
