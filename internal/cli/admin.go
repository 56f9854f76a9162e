package cli

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/yoockh/launchkit/internal/client/pages"
)

func newAdminCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Administrator tools",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if root := cmd.Root(); root.PersistentPreRun != nil {
				root.PersistentPreRun(cmd, args)
			}
			_, err := a.enter(cmd.Context(), "/admin")
			return err
		},
	}
	cmd.AddCommand(
		newAdminUsersCmd(a),
		newAdminStatsCmd(a),
		newAdminToggleCmd(a),
		newAdminDeleteCmd(a),
		newAdminExportCmd(a),
		newAdminActivityCmd(a),
	)
	return cmd
}

func (a *app) adminPage() *pages.Admin { return pages.NewAdmin(a.api, a.queries) }

func newAdminUsersCmd(a *app) *cobra.Command {
	var (
		page         int
		search, role string
	)
	cmd := &cobra.Command{
		Use:   "users",
		Short: "List users",
		RunE: func(cmd *cobra.Command, _ []string) error {
			l, err := a.adminPage().Load(cmd.Context(), page, search, role)
			if err != nil {
				return err
			}
			return a.emit(l, func(w io.Writer) {
				fmt.Fprintln(w, "ID\tEMAIL\tNAME\tADMIN\tLANGUAGE")
				for _, u := range l.Users {
					name := ""
					if u.Name != nil {
						name = *u.Name
					}
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", u.ID, u.Email, name, yesNo(u.IsAdmin), u.Language)
				}
				fmt.Fprintf(w, "page %d of %d (%d users)\n", l.Page, pages.TotalPages(l), l.Total)
			})
		},
	}
	cmd.Flags().IntVar(&page, "page", 1, "page number")
	cmd.Flags().StringVar(&search, "search", "", "filter by email or name")
	cmd.Flags().StringVar(&role, "role", "", "admin or user")
	return cmd
}

func newAdminStatsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show platform statistics",
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := a.adminPage().Stats(cmd.Context())
			if err != nil {
				return err
			}
			return a.emit(st, func(w io.Writer) {
				fmt.Fprintf(w, "Total users\t%d\n", st.TotalUsers)
				fmt.Fprintf(w, "New this week\t%d\n", st.NewUsersThisWeek)
				fmt.Fprintf(w, "New this month\t%d\n", st.NewUsersThisMonth)
				fmt.Fprintf(w, "Active today\t%d\n", st.ActiveUsersToday)
			})
		},
	}
}

func newAdminToggleCmd(a *app) *cobra.Command {
	var admin bool
	cmd := &cobra.Command{
		Use:   "toggle <user-id>",
		Short: "Grant or revoke admin rights",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.adminPage().ToggleAdmin(cmd.Context(), args[0], admin); err != nil {
				return err
			}
			a.printf("%s admin: %s\n", args[0], yesNo(admin))
			return nil
		},
	}
	cmd.Flags().BoolVar(&admin, "admin", true, "new admin flag")
	return cmd
}

func newAdminDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <user-id>",
		Short: "Delete a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.adminPage().DeleteUser(cmd.Context(), args[0]); err != nil {
				return err
			}
			a.printf("Deleted %s\n", args[0])
			return nil
		},
	}
}

func newAdminExportCmd(a *app) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export all users as CSV",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var buf bytes.Buffer
			if err := a.adminPage().Export(cmd.Context(), &buf); err != nil {
				return err
			}
			if output == "" || output == "-" {
				_, err := a.out.Write(buf.Bytes())
				return err
			}
			if err := os.WriteFile(output, buf.Bytes(), 0o600); err != nil {
				return err
			}
			a.printf("Wrote %s\n", output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "file to write, stdout by default")
	return cmd
}

func newAdminActivityCmd(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "activity",
		Short: "Show recent account activity",
		RunE: func(cmd *cobra.Command, _ []string) error {
			acts, err := a.adminPage().Activity(cmd.Context(), limit)
			if err != nil {
				return err
			}
			return a.emit(acts, func(w io.Writer) {
				fmt.Fprintln(w, "WHEN\tKIND\tUSER\tTARGET\tEMAIL")
				for _, e := range acts {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
						e.CreatedAt.Format("2006-01-02 15:04:05"), e.Kind, e.UserID, e.TargetID, e.Email)
				}
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "entries to show (max 200)")
	return cmd
}
