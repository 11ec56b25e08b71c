// README: Reverse geocoding of incident locations through the Google Maps API.
package maps

import (
	"context"
	"errors"
	"fmt"

	"googlemaps.github.io/maps"

	"herodispatch/internal/types"
)

var ErrNoAddress = errors.New("no address for location")

// Geocoder turns coordinates into a human-readable address.
type Geocoder struct {
	client   *maps.Client
	language string
}

// NewGeocoder creates a Geocoder with the given API key. Extra client
// options (base URL, rate limit) are passed through.
func NewGeocoder(apiKey string, opts ...maps.ClientOption) (*Geocoder, error) {
	client, err := maps.NewClient(append([]maps.ClientOption{maps.WithAPIKey(apiKey)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return &Geocoder{client: client, language: "en"}, nil
}

// ReverseGeocode returns the formatted address of the best match.
func (g *Geocoder) ReverseGeocode(ctx context.Context, p types.Point) (string, error) {
	results, err := g.client.ReverseGeocode(ctx, &maps.GeocodingRequest{
		LatLng:   &maps.LatLng{Lat: p.Lat, Lng: p.Lng},
		Language: g.language,
	})
	if err != nil {
		return "", fmt.Errorf("maps api error: %w", err)
	}
	if len(results) == 0 || results[0].FormattedAddress == "" {
		return "", ErrNoAddress
	}
	return results[0].FormattedAddress, nil
}
