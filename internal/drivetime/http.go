package drivetime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// HTTPEstimator queries an external routing service for a drive-time
// estimate.
type HTTPEstimator struct {
	BaseURL string
	Client  *http.Client
}

type routeResponse struct {
	DurationMinutes float64 `json:"duration_minutes"`
}

func (e HTTPEstimator) Estimate(ctx context.Context, fromLat, fromLon, toLat, toLon float64) (float64, error) {
	if e.Client == nil {
		e.Client = &http.Client{Timeout: 10 * time.Second}
	}

	endpoint := fmt.Sprintf("%s/route?from_lat=%f&from_lon=%f&to_lat=%f&to_lon=%f",
		e.BaseURL, fromLat, fromLon, toLat, toLon)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, err
	}

	resp, err := e.Client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("route service returned status %d", resp.StatusCode)
	}

	var body routeResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, err
	}
	return body.DurationMinutes, nil
}
