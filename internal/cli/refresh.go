package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	refreshUser    string
	refreshAccount string
)

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Refresh every account once, or one account of a user",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		rt, err := openRuntime(ctx)
		if err != nil {
			return err
		}
		defer rt.Close()

		out := cmd.OutOrStdout()
		if refreshAccount == "" {
			report := rt.scheduler.RunCycle(ctx)
			fmt.Fprintf(out, "refreshed %d accounts, %d failed\n", len(report.Attempted), len(report.Failed))
			for id, err := range report.Failed {
				fmt.Fprintf(out, "  %s: %v\n", id, err)
			}
			return nil
		}

		user, err := rt.user(ctx, refreshUser)
		if err != nil {
			return err
		}
		res, err := rt.accounts.RefreshAccount(ctx, user.ID, refreshAccount)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "checked %d, changed %d, skipped %d\n", res.Checked, res.Changed, res.Skipped)
		for _, f := range res.Failures {
			fmt.Fprintf(out, "  %s (%d tasks): %s\n", f.Group, f.Tasks, f.Error)
		}
		return nil
	},
}

func init() {
	refreshCmd.Flags().StringVar(&refreshUser, "user", "", "owner of --account")
	refreshCmd.Flags().StringVar(&refreshAccount, "account", "", "refresh only this account")
}
