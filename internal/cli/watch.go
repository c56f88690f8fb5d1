package cli

import (
	"errors"
	"net/http"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/nhle/ambrose/internal/ui/lights"
)

var (
	watchServer   string
	watchDevice   string
	watchInterval time.Duration
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Simulate a status-light device in the terminal",
	Long: `Simulate a status-light device in the terminal. The simulator polls
the server as the device with the given UUID, so each poll settles the
lights the way a real device visit does.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if watchDevice == "" {
			return errors.New("--device is required")
		}
		fetch := lights.HTTPFetcher(&http.Client{Timeout: 10 * time.Second}, watchServer, watchDevice)
		m := lights.New("ambrose · "+watchDevice, fetch, watchInterval)
		_, err := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(cmd.Context())).Run()
		if errors.Is(err, tea.ErrProgramKilled) {
			return nil
		}
		return err
	},
}

func init() {
	watchCmd.Flags().StringVar(&watchServer, "server", "http://localhost:8080", "ambrose server URL")
	watchCmd.Flags().StringVar(&watchDevice, "device", "", "device UUID")
	watchCmd.Flags().DurationVar(&watchInterval, "interval", 5*time.Second, "poll interval")
}
