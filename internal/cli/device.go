package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	deviceUser  string
	deviceName  string
	deviceSlots int
)

var deviceCmd = &cobra.Command{
	Use:   "device",
	Short: "Manage status-light devices",
}

var deviceAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Register a device",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		rt, err := openRuntime(ctx)
		if err != nil {
			return err
		}
		defer rt.Close()

		user, err := rt.user(ctx, deviceUser)
		if err != nil {
			return err
		}
		d, err := rt.users.CreateDevice(ctx, user.ID, deviceName, deviceSlots)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "device %s: id %s, uuid %s\n", d.Name, d.ID, d.UUID)
		return nil
	},
}

var deviceAssignCmd = &cobra.Command{
	Use:   "assign <device-id> <slot> [task-id]",
	Short: "Bind a slot to a task, or clear it when no task is given",
	Args:  cobra.RangeArgs(2, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		var slot int
		if _, err := fmt.Sscan(args[1], &slot); err != nil {
			return fmt.Errorf("slot %q: %w", args[1], err)
		}
		var taskID *string
		if len(args) == 3 {
			taskID = &args[2]
		}

		ctx := cmd.Context()
		rt, err := openRuntime(ctx)
		if err != nil {
			return err
		}
		defer rt.Close()

		user, err := rt.user(ctx, deviceUser)
		if err != nil {
			return err
		}
		return rt.users.AssignLight(ctx, user.ID, args[0], slot, taskID)
	},
}

func init() {
	deviceCmd.PersistentFlags().StringVar(&deviceUser, "user", "", "owning user")
	deviceAddCmd.Flags().StringVar(&deviceName, "name", "lights", "device name")
	deviceAddCmd.Flags().IntVar(&deviceSlots, "slots", 4, "number of light slots")
	deviceCmd.AddCommand(deviceAddCmd, deviceAssignCmd)
}
