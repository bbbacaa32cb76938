package location

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/i474232898/weather-ai/internal/weather"
)

// DefaultIPAPIURL is the ip-api.com JSON endpoint for the caller's address.
const DefaultIPAPIURL = "http://ip-api.com/json/"

var errIncompleteLookup = errors.New("ip lookup response incomplete")

// IPAPIClient implements IPLocator against ip-api.com.
type IPAPIClient struct {
	baseURL string
	client  *http.Client
}

func NewIPAPIClient(client *http.Client, baseURL string) *IPAPIClient {
	if baseURL == "" {
		baseURL = DefaultIPAPIURL
	}
	return &IPAPIClient{baseURL: baseURL, client: client}
}

type ipAPIResponse struct {
	Status   string   `json:"status"`
	Message  string   `json:"message"`
	City     string   `json:"city"`
	Lat      *float64 `json:"lat"`
	Lon      *float64 `json:"lon"`
	Timezone string   `json:"timezone"`
}

func (c *IPAPIClient) Locate(ctx context.Context) (weather.Location, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL, nil)
	if err != nil {
		return weather.Location{}, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return weather.Location{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return weather.Location{}, fmt.Errorf("ip lookup returned status %d", resp.StatusCode)
	}

	var payload ipAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return weather.Location{}, fmt.Errorf("decode ip lookup: %w", err)
	}

	if payload.Status != "" && payload.Status != "success" {
		return weather.Location{}, fmt.Errorf("%w: %s %s", errIncompleteLookup, payload.Status, payload.Message)
	}
	if payload.City == "" || payload.Lat == nil || payload.Lon == nil {
		return weather.Location{}, errIncompleteLookup
	}

	return weather.Location{
		Name:      payload.City,
		Latitude:  *payload.Lat,
		Longitude: *payload.Lon,
		Timezone:  payload.Timezone,
	}, nil
}
