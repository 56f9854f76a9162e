package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/yoockh/launchkit/internal/client/pages"
	"github.com/yoockh/launchkit/internal/models"
)

func newBillingCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "billing",
		Short: "Show the subscription",
		RunE: func(cmd *cobra.Command, _ []string) error {
			b, err := a.billingPage(cmd)
			if err != nil {
				return err
			}
			sub, err := b.Subscription(cmd.Context())
			if err != nil {
				return err
			}
			return a.emit(sub, func(w io.Writer) {
				fmt.Fprintf(w, "Status\t%s\n", sub.Status)
				if sub.CurrentPeriodEnd > 0 {
					fmt.Fprintf(w, "Renews\t%s\n", time.Unix(sub.CurrentPeriodEnd, 0).UTC().Format("2006-01-02"))
				}
				if sub.CancelAtPeriodEnd {
					fmt.Fprintln(w, "Cancels at period end\tyes")
				}
				if sub.Message != "" {
					fmt.Fprintf(w, "Note\t%s\n", sub.Message)
				}
			})
		},
	}
	cmd.AddCommand(newCheckoutCmd(a), newPortalCmd(a))
	return cmd
}

func (a *app) billingPage(cmd *cobra.Command) (*pages.Billing, error) {
	if _, err := a.enter(cmd.Context(), "/billing"); err != nil {
		return nil, err
	}
	return pages.NewBilling(a.api, a.queries, a.settings.StripeEnabled), nil
}

func newCheckoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:       "checkout <monthly|yearly>",
		Short:     "Print a checkout link for a plan",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"monthly", "yearly"},
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := a.billingPage(cmd)
			if err != nil {
				return err
			}
			plan := args[0]
			switch plan {
			case "monthly":
				plan = models.PlanMonthly
			case "yearly":
				plan = models.PlanYearly
			}
			u, err := b.Checkout(cmd.Context(), plan)
			if err != nil {
				return err
			}
			return a.emit(models.RedirectURL{URL: u}, func(w io.Writer) { fmt.Fprintln(w, u) })
		},
	}
}

func newPortalCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "portal",
		Short: "Print a link to the billing portal",
		RunE: func(cmd *cobra.Command, _ []string) error {
			b, err := a.billingPage(cmd)
			if err != nil {
				return err
			}
			u, err := b.Portal(cmd.Context())
			if err != nil {
				return err
			}
			return a.emit(models.RedirectURL{URL: u}, func(w io.Writer) { fmt.Fprintln(w, u) })
		},
	}
}
