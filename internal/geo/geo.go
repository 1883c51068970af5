// Package geo holds the map-side helpers: distances, the default campus
// region and GeoJSON markers for shuttles.
package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"

	"campus_shuttle/internal/models"
)

// Region is a map viewport: a centre and the span shown around it.
type Region struct {
	Latitude       float64 `json:"latitude"`
	Longitude      float64 `json:"longitude"`
	LatitudeDelta  float64 `json:"latitude_delta"`
	LongitudeDelta float64 `json:"longitude_delta"`
}

// CampusRegion is shown when the device position is unavailable.
var CampusRegion = Region{
	Latitude:       19.076,
	Longitude:      72.8777,
	LatitudeDelta:  0.02,
	LongitudeDelta: 0.02,
}

// LocationProvider yields the device position; it fails when permission is denied.
type LocationProvider interface {
	CurrentPosition(ctx context.Context) (lat, lon float64, err error)
}

// ResolveRegion centres the campus span on the device, or returns
// CampusRegion if there is no provider or it fails.
func ResolveRegion(ctx context.Context, p LocationProvider) Region {
	if p == nil {
		return CampusRegion
	}
	lat, lon, err := p.CurrentPosition(ctx)
	if err != nil || ValidateCoordinates(lat, lon) != nil {
		return CampusRegion
	}
	r := CampusRegion
	r.Latitude, r.Longitude = lat, lon
	return r
}

// ValidateCoordinates rejects positions outside WGS84 bounds.
func ValidateCoordinates(lat, lon float64) error {
	if math.IsNaN(lat) || math.IsNaN(lon) || lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return fmt.Errorf("invalid coordinates (%f, %f)", lat, lon)
	}
	return nil
}

// Distance returns the great-circle distance in meters.
func Distance(lat1, lon1, lat2, lon2 float64) float64 {
	const R = 6371000 // Earth's radius in meters.
	dLat := toRadians(lat2 - lat1)
	dLon := toRadians(lon2 - lon1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRadians(lat1))*math.Cos(toRadians(lat2))*
			math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return R * c
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}

// MarkerPosition is where a shuttle is drawn. Rows without a position
// (0,0) are drawn at the region centre.
func MarkerPosition(s models.Shuttle, fallback Region) (lat, lon float64) {
	lat, lon = s.Latitude, s.Longitude
	if lat == 0 {
		lat = fallback.Latitude
	}
	if lon == 0 {
		lon = fallback.Longitude
	}
	return lat, lon
}

// Markers renders shuttles as a GeoJSON FeatureCollection of points, in
// the order given.
func Markers(shuttles []models.Shuttle, fallback Region) ([]byte, error) {
	fc := geojson.FeatureCollection{Features: make([]*geojson.Feature, 0, len(shuttles))}
	for _, s := range shuttles {
		lat, lon := MarkerPosition(s, fallback)
		point, err := geom.NewPoint(geom.XY).SetCoords(geom.Coord{lon, lat})
		if err != nil {
			return nil, fmt.Errorf("shuttle %s: %w", s.ID, err)
		}
		fc.Features = append(fc.Features, &geojson.Feature{
			ID:       s.ID,
			Geometry: point,
			Properties: map[string]interface{}{
				"vehicle_number": s.DisplayCode(),
				"route_type":     string(s.RouteType),
				"route_label":    s.RouteType.Label(),
				"current_seats":  s.CurrentSeats,
				"total_seats":    s.Capacity(),
				"full":           s.IsFull(),
			},
		})
	}
	return json.Marshal(&fc)
}
