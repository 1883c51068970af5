package geo

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"

	"campus_shuttle/internal/models"
)

func TestDistance(t *testing.T) {
	if d := Distance(19.076, 72.8777, 19.076, 72.8777); d != 0 {
		t.Errorf("same point distance = %f", d)
	}
	// One degree of latitude is roughly 111.2 km.
	d := Distance(0, 0, 1, 0)
	if math.Abs(d-111195) > 100 {
		t.Errorf("1 degree latitude = %f m", d)
	}
}

type fixedLocation struct {
	lat, lon float64
	err      error
}

func (f fixedLocation) CurrentPosition(context.Context) (float64, float64, error) {
	return f.lat, f.lon, f.err
}

func TestResolveRegion(t *testing.T) {
	ctx := context.Background()
	if r := ResolveRegion(ctx, nil); r != CampusRegion {
		t.Errorf("nil provider should give campus region, got %+v", r)
	}
	if r := ResolveRegion(ctx, fixedLocation{err: errors.New("Location permission denied")}); r != CampusRegion {
		t.Errorf("denied permission should give campus region, got %+v", r)
	}
	r := ResolveRegion(ctx, fixedLocation{lat: 12.5, lon: 77.1})
	if r.Latitude != 12.5 || r.Longitude != 77.1 || r.LatitudeDelta != CampusRegion.LatitudeDelta {
		t.Errorf("unexpected region %+v", r)
	}
}

func TestValidateCoordinates(t *testing.T) {
	if err := ValidateCoordinates(91, 0); err == nil {
		t.Error("latitude 91 accepted")
	}
	if err := ValidateCoordinates(0, -181); err == nil {
		t.Error("longitude -181 accepted")
	}
	if err := ValidateCoordinates(math.NaN(), 0); err == nil {
		t.Error("NaN accepted")
	}
	if err := ValidateCoordinates(19.07, 72.87); err != nil {
		t.Errorf("valid point rejected: %v", err)
	}
}

func TestMarkers(t *testing.T) {
	shuttles := []models.Shuttle{
		{ID: "b", VehicleNumber: "1002", RouteType: models.RouteMensHostel, CurrentSeats: 22, TotalSeats: 22, Latitude: 19.077, Longitude: 72.8785},
		{ID: "a", VehicleNumber: "7", CurrentSeats: 3},
	}
	raw, err := Markers(shuttles, CampusRegion)
	if err != nil {
		t.Fatalf("Markers: %v", err)
	}

	var fc geojson.FeatureCollection
	if err := json.Unmarshal(raw, &fc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(fc.Features) != 2 || fc.Features[0].ID != "b" {
		t.Fatalf("unexpected features %+v", fc.Features)
	}
	if fc.Features[0].Properties["full"] != true {
		t.Errorf("22/22 should be full: %v", fc.Features[0].Properties)
	}
	if fc.Features[1].Properties["vehicle_number"] != "0007" {
		t.Errorf("vehicle number not padded: %v", fc.Features[1].Properties)
	}
	p, ok := fc.Features[1].Geometry.(*geom.Point)
	if !ok {
		t.Fatalf("expected point geometry, got %T", fc.Features[1].Geometry)
	}
	if p.X() != CampusRegion.Longitude || p.Y() != CampusRegion.Latitude {
		t.Errorf("missing position should fall back to campus centre, got %v", p.Coords())
	}
}
