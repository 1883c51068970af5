package remote

import (
	"context"
	"net/http"

	"campus_shuttle/internal/models"
)

// RegisterShuttle registers the signed-in driver's shuttle. The server
// normalizes the vehicle number and rejects a second registration.
func (c *Client) RegisterShuttle(ctx context.Context, vehicleNumber string, route models.RouteType, totalSeats int) (*models.Shuttle, error) {
	body := map[string]any{
		"vehicle_number": vehicleNumber,
		"route_type":     string(route),
		"total_seats":    totalSeats,
	}
	var shuttle models.Shuttle
	if err := c.do(ctx, http.MethodPost, "/shuttles", nil, nil, body, &shuttle); err != nil {
		return nil, err
	}
	return &shuttle, nil
}
