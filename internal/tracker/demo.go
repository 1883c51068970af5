package tracker

import "campus_shuttle/internal/models"

// DemoShuttles is placeholder data for a backend without seeded shuttles.
// Only used when FeedOptions.DemoShuttles is set; remove once real data exists.
func DemoShuttles() []models.Shuttle {
	return []models.Shuttle{
		{
			ID:            "1",
			VehicleNumber: "1001",
			RouteType:     models.RouteRegular,
			CurrentSeats:  12,
			TotalSeats:    22,
			Latitude:      19.076,
			Longitude:     72.8777,
			IsActive:      true,
		},
		{
			ID:            "2",
			VehicleNumber: "1002",
			RouteType:     models.RouteMensHostel,
			CurrentSeats:  22,
			TotalSeats:    22,
			Latitude:      19.077,
			Longitude:     72.8785,
			IsActive:      true,
		},
	}
}
