package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/yoockh/launchkit/internal/client/pages"
)

func newDashboardCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "dashboard",
		Short: "Show user statistics",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := a.enter(cmd.Context(), "/dashboard"); err != nil {
				return err
			}
			st, err := pages.NewDashboard(a.api, a.queries).Load(cmd.Context())
			if err != nil {
				return err
			}
			return a.emit(st, func(w io.Writer) {
				fmt.Fprintf(w, "Total users\t%d\n", st.TotalUsers)
				fmt.Fprintf(w, "New this week\t%d\n", st.NewUsersThisWeek)
				fmt.Fprintf(w, "Active today\t%d\n", st.ActiveUsersToday)
			})
		},
	}
}

func newProfileCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Show or edit your profile",
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := a.enter(cmd.Context(), "/profile")
			if err != nil {
				return err
			}
			u, err := pages.NewProfile(a.api, st, a.queries).Load(cmd.Context())
			if err != nil {
				return err
			}
			return a.emit(u, func(w io.Writer) {
				name := "-"
				if u.Name != nil && *u.Name != "" {
					name = *u.Name
				}
				fmt.Fprintf(w, "ID\t%s\n", u.ID)
				fmt.Fprintf(w, "Email\t%s\n", u.Email)
				fmt.Fprintf(w, "Name\t%s\n", name)
				fmt.Fprintf(w, "Language\t%s\n", u.Language)
				fmt.Fprintf(w, "Admin\t%s\n", yesNo(u.IsAdmin))
				fmt.Fprintf(w, "Member since\t%s\n", u.CreatedAt.Format("2006-01-02"))
			})
		},
	}
	cmd.AddCommand(newProfileSetCmd(a), newProfileDeleteCmd(a))
	return cmd
}

func newProfileSetCmd(a *app) *cobra.Command {
	var form pages.ProfileForm
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Update name and language",
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := a.enter(cmd.Context(), "/profile")
			if err != nil {
				return err
			}
			p := pages.NewProfile(a.api, st, a.queries)
			if !cmd.Flags().Changed("language") || !cmd.Flags().Changed("name") {
				cur, err := p.Load(cmd.Context())
				if err != nil {
					return err
				}
				if !cmd.Flags().Changed("language") {
					form.Language = cur.Language
				}
				if !cmd.Flags().Changed("name") && cur.Name != nil {
					form.Name = *cur.Name
				}
			}
			u, err := p.Save(cmd.Context(), form)
			if err != nil {
				return err
			}
			return a.emit(u, func(w io.Writer) {
				fmt.Fprintf(w, "Profile updated\n")
			})
		},
	}
	cmd.Flags().StringVar(&form.Name, "name", "", "display name")
	cmd.Flags().StringVar(&form.Language, "language", "", "interface language (en, es, fr, de, pt)")
	return cmd
}

func newProfileDeleteCmd(a *app) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete your account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				return errors.New("this permanently deletes the account, pass --yes to confirm")
			}
			st, err := a.enter(cmd.Context(), "/profile")
			if err != nil {
				return err
			}
			if err := pages.NewProfile(a.api, st, a.queries).DeleteAccount(cmd.Context()); err != nil {
				return err
			}
			a.printf("Account deleted\n")
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm deletion")
	return cmd
}
