package cli

import (
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/yoockh/launchkit/internal/client/apiclient"
	"github.com/yoockh/launchkit/internal/client/guard"
)

func newRouteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "route [path...]",
		Short: "Show what the web client does for each route in the current session",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.session(cmd.Context())
			if err != nil {
				return err
			}
			if err := st.WaitAdminSettled(cmd.Context(), adminSettleTimeout); err != nil {
				return err
			}
			if len(args) == 0 {
				for _, r := range guard.Routes {
					args = append(args, r.Path)
				}
				sort.Strings(args)
			}

			type row struct {
				Path   string `json:"path"`
				Action string `json:"action"`
				To     string `json:"to,omitempty"`
			}
			state := st.State()
			rows := make([]row, 0, len(args))
			for _, p := range args {
				d := guard.Resolve(p, state)
				rows = append(rows, row{Path: p, Action: d.Action.String(), To: d.To})
			}
			return a.emit(rows, func(w io.Writer) {
				for _, r := range rows {
					if r.To != "" {
						fmt.Fprintf(w, "%s\t%s\t%s\n", r.Path, r.Action, r.To)
						continue
					}
					fmt.Fprintf(w, "%s\t%s\n", r.Path, r.Action)
				}
			})
		},
	}
}

// health needs no session, so it talks to the backend without a provider.
func newHealthCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check the backend",
		RunE: func(cmd *cobra.Command, _ []string) error {
			h, err := apiclient.New(a.settings.APIURL, nil, apiclient.WithLogger(a.log)).Health(cmd.Context())
			if err != nil {
				return err
			}
			return a.emit(h, func(w io.Writer) {
				fmt.Fprintf(w, "%s\t%s\n", h.Service, h.Status)
			})
		},
	}
}
