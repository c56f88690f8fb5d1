package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/nhle/ambrose/internal/service"
)

var (
	tasksUser   string
	tasksOutput string
)

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "Show the monitored tasks of a user",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		rt, err := openRuntime(ctx)
		if err != nil {
			return err
		}
		defer rt.Close()

		user, err := rt.user(ctx, tasksUser)
		if err != nil {
			return err
		}
		tasks, err := rt.users.Tasks(ctx, user.ID)
		if err != nil {
			return err
		}
		return writeTasks(cmd.OutOrStdout(), tasksOutput, tasks)
	},
}

func writeTasks(w io.Writer, format string, tasks []service.TaskView) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(tasks)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(tasks); err != nil {
			return err
		}
		return enc.Close()
	case "", "table":
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tKIND\tNAME\tVALUE\tCHANGED")
		for _, t := range tasks {
			changed := ""
			if t.HasChanged {
				changed = "*"
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", t.ID, t.Kind, t.Name, t.Value, changed)
		}
		return tw.Flush()
	}
	return fmt.Errorf("unknown output format %q", format)
}

func init() {
	tasksCmd.Flags().StringVar(&tasksUser, "user", "", "owning user")
	tasksCmd.Flags().StringVarP(&tasksOutput, "output", "o", "table", "table, json or yaml")
}
