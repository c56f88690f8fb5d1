package lights

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/nhle/ambrose/internal/service"
)

// FetchFunc returns the current lights of the simulated device.
type FetchFunc func(ctx context.Context) ([]service.Light, error)

// HTTPFetcher polls GET {server}/device/{uuid}/lights, exactly as a
// device does. Every poll settles the lights it returns.
func HTTPFetcher(client *http.Client, server, deviceUUID string) FetchFunc {
	url := strings.TrimRight(server, "/") + "/device/" + deviceUUID + "/lights"
	return func(ctx context.Context) ([]service.Light, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		resp, err := client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("polling lights: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("polling lights: %s", resp.Status)
		}
		var lights []service.Light
		if err := json.NewDecoder(resp.Body).Decode(&lights); err != nil {
			return nil, fmt.Errorf("decoding lights: %w", err)
		}
		return lights, nil
	}
}
