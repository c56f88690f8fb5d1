package cli

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/nhle/ambrose/internal/model"
	"github.com/nhle/ambrose/internal/service"
)

var (
	accountUser  string
	accountInput service.AccountInput
	accountApply bool
)

var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "Manage provider accounts",
}

var accountAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Connect a provider account",
	Long: `Connect a provider account. Without --provider an interactive form
asks for the connection details. The token is validated against the
provider and stored encrypted.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		in := accountInput
		if in.Provider == "" {
			if err := accountForm(&in).Run(); err != nil {
				if errors.Is(err, huh.ErrUserAborted) {
					return nil
				}
				return err
			}
		}

		ctx := cmd.Context()
		rt, err := openRuntime(ctx)
		if err != nil {
			return err
		}
		defer rt.Close()

		user, err := rt.user(ctx, accountUser)
		if err != nil {
			return err
		}
		account, err := rt.accounts.CreateAccount(ctx, user.ID, in)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "connected %s account %s (%s)\n",
			account.Provider.Label(), account.DisplayName(), account.ID)
		return nil
	},
}

func accountForm(in *service.AccountInput) *huh.Form {
	options := make([]huh.Option[string], 0, len(model.ProviderTypes()))
	for _, p := range model.ProviderTypes() {
		options = append(options, huh.NewOption(p.Label(), string(p)))
	}

	hiddenUnless := func(p model.ProviderType) func() bool {
		return func() bool { return in.Provider != p }
	}

	return huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Provider").
				Options(options...).
				Value((*string)(&in.Provider)),
			huh.NewInput().
				Title("Nickname").
				Value(&in.Nickname),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Organization").
				Value(&in.Organization),
			huh.NewInput().
				Title("Username").
				Value(&in.Username),
		).WithHideFunc(hiddenUnless(model.ProviderDevOps)),
		huh.NewGroup(
			huh.NewInput().
				Title("Application ID").
				Value(&in.ApplicationID),
		).WithHideFunc(hiddenUnless(model.ProviderAppInsights)),
		huh.NewGroup(
			huh.NewInput().
				Title("Base URL").
				Placeholder("https://example.com").
				Value(&in.BaseURL),
		).WithHideFunc(hiddenUnless(model.ProviderWeb)),
		huh.NewGroup(
			huh.NewInput().
				Title("Access token").
				EchoMode(huh.EchoModePassword).
				Value(&in.Token),
		).WithHideFunc(func() bool { return in.Provider == model.ProviderWeb }),
	)
}

var accountListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the accounts of a user",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		rt, err := openRuntime(ctx)
		if err != nil {
			return err
		}
		defer rt.Close()

		user, err := rt.user(ctx, accountUser)
		if err != nil {
			return err
		}
		accounts, err := rt.accounts.ListAccounts(ctx, user.ID)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tPROVIDER\tNAME")
		for _, a := range accounts {
			fmt.Fprintf(w, "%s\t%s\t%s\n", a.ID, a.Provider.Label(), a.DisplayName())
		}
		return w.Flush()
	},
}

var accountDiscoverCmd = &cobra.Command{
	Use:   "discover <account-id>",
	Short: "List the pipelines or repositories an account can monitor",
	Long: `List the pipelines or repositories an account can monitor. With
--apply the account is reconciled to monitor exactly what was found.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		rt, err := openRuntime(ctx)
		if err != nil {
			return err
		}
		defer rt.Close()

		user, err := rt.user(ctx, accountUser)
		if err != nil {
			return err
		}
		found, err := rt.accounts.DiscoverTasks(ctx, user.ID, args[0])
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		for _, t := range found {
			fmt.Fprintf(out, "%-12s %s\n", t.Kind, t.Name())
		}
		if !accountApply {
			return nil
		}

		report, err := rt.accounts.ReconcileTasks(ctx, user.ID, args[0], found)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "added %d, removed %d, updated %d\n", report.Added, report.Removed, report.Updated)
		for _, c := range report.Conflicts {
			fmt.Fprintf(out, "  conflict: %s\n", c)
		}
		return nil
	},
}

func init() {
	accountCmd.PersistentFlags().StringVar(&accountUser, "user", "", "owning user")

	f := accountAddCmd.Flags()
	f.StringVar((*string)(&accountInput.Provider), "provider", "", "devops, github, appinsights or web")
	f.StringVar(&accountInput.Nickname, "nickname", "", "display name")
	f.StringVar(&accountInput.Organization, "organization", "", "Azure DevOps organization")
	f.StringVar(&accountInput.Username, "username", "", "Azure DevOps username")
	f.StringVar(&accountInput.ApplicationID, "application-id", "", "Application Insights app id")
	f.StringVar(&accountInput.BaseURL, "base-url", "", "healthcheck base URL")
	f.StringVar(&accountInput.Token, "token", "", "access token")

	accountDiscoverCmd.Flags().BoolVar(&accountApply, "apply", false, "reconcile tasks to the discovered set")

	accountCmd.AddCommand(accountAddCmd, accountListCmd, accountDiscoverCmd)
}
