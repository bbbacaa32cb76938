package location

import (
	"context"
	"errors"
	"sync"

	"github.com/kelvins/geocoder"

	"github.com/i474232898/weather-ai/internal/weather"
)

// geocoder keeps its key in a package variable.
var geocoderMu sync.Mutex

// GoogleGeocoder resolves city names through the Google Geocoding API.
type GoogleGeocoder struct {
	apiKey string
}

func NewGoogleGeocoder(apiKey string) *GoogleGeocoder {
	return &GoogleGeocoder{apiKey: apiKey}
}

func (g *GoogleGeocoder) Geocode(ctx context.Context, city string) (weather.Location, error) {
	if g.apiKey == "" {
		return weather.Location{}, errors.New("geocoder api key not configured")
	}
	if err := ctx.Err(); err != nil {
		return weather.Location{}, err
	}

	geocoderMu.Lock()
	geocoder.ApiKey = g.apiKey
	loc, err := geocoder.Geocoding(geocoder.Address{City: city})
	geocoderMu.Unlock()
	if err != nil {
		return weather.Location{}, err
	}

	return weather.Location{
		Name:      city,
		Latitude:  loc.Latitude,
		Longitude: loc.Longitude,
	}, nil
}
