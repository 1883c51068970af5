package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"campus_shuttle/internal/backend"
	"campus_shuttle/internal/geo"
	"campus_shuttle/internal/middleware"
	"campus_shuttle/internal/models"
	"campus_shuttle/internal/tracker"
)

type ShuttleController struct {
	rows   Rows
	region geo.Region
	log    *logrus.Entry
}

func NewShuttleController(rows Rows, region geo.Region, log *logrus.Entry) *ShuttleController {
	if log == nil {
		log = logrus.WithField("component", "shuttles")
	}
	return &ShuttleController{rows: rows, region: region, log: log}
}

// RegisterShuttle lets a driver register the shuttle they operate. It
// starts off duty and empty.
func (s *ShuttleController) RegisterShuttle(c *gin.Context) {
	var input struct {
		VehicleNumber string `json:"vehicle_number" binding:"required"`
		RouteType     string `json:"route_type"`
		TotalSeats    int    `json:"total_seats"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid shuttle input: " + err.Error()})
		return
	}
	code, err := tracker.NormalizeVehicleCode(input.VehicleNumber)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	route, ok := models.ParseRouteType(input.RouteType)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "route_type must be regular or mens_hostel"})
		return
	}
	if input.TotalSeats < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "total_seats cannot be negative"})
		return
	}
	if input.TotalSeats == 0 {
		input.TotalSeats = models.DefaultTotalSeats
	}

	ctx := c.Request.Context()
	driverID := middleware.UserID(c)

	var profiles []models.Profile
	q := backend.Query{Table: "profiles", Filters: []backend.Filter{backend.Eq("id", driverID)}, Limit: 1}
	if err := s.rows.Query(ctx, q, &profiles); err != nil {
		respondError(c, s.log, err)
		return
	}
	if len(profiles) == 0 || profiles[0].UserType != models.RoleDriver {
		c.JSON(http.StatusForbidden, gin.H{"error": "only drivers can register shuttles"})
		return
	}

	var existing []models.Shuttle
	for _, f := range []backend.Filter{backend.Eq("driver_id", driverID), backend.Eq("vehicle_number", code)} {
		q := backend.Query{Table: "shuttles", Filters: []backend.Filter{f}, Limit: 1}
		if err := s.rows.Query(ctx, q, &existing); err != nil {
			respondError(c, s.log, err)
			return
		}
		if len(existing) > 0 {
			c.JSON(http.StatusConflict, gin.H{"error": "shuttle already registered"})
			return
		}
	}

	row := map[string]any{
		"vehicle_number": code,
		"route_type":     string(route),
		"total_seats":    input.TotalSeats,
		"current_seats":  0,
		"is_active":      false,
		"driver_id":      driverID,
	}
	var shuttle models.Shuttle
	if err := s.rows.Insert(ctx, "shuttles", row, &shuttle); err != nil {
		respondError(c, s.log, err)
		return
	}

	s.log.WithFields(logrus.Fields{
		"driver_id":      driverID,
		"vehicle_number": code,
	}).Info("Shuttle registered")
	c.JSON(http.StatusCreated, shuttle)
}

// Markers returns the active shuttles as a GeoJSON FeatureCollection.
func (s *ShuttleController) Markers(c *gin.Context) {
	shuttles, err := tracker.ActiveShuttles(c.Request.Context(), s.rows)
	if err != nil {
		respondError(c, s.log, err)
		return
	}
	body, err := geo.Markers(shuttles, s.region)
	if err != nil {
		respondError(c, s.log, err)
		return
	}
	c.Data(http.StatusOK, "application/geo+json", body)
}
