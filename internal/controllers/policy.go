package controllers

import (
	"context"
	"fmt"
	"net/http"
	"slices"

	"campus_shuttle/internal/backend"
	"campus_shuttle/internal/models"
	"campus_shuttle/internal/realtime"
	"campus_shuttle/internal/tracker"
)

// Row policies. Shuttles are public to read and changed only by their
// driver; rides and profiles belong to one user each.

// ownerColumn is the column holding the owning user id.
var ownerColumn = map[string]string{
	"shuttles": "driver_id",
	"rides":    "student_id",
	"profiles": "id",
}

// patchable lists the columns a PATCH may change per table.
var patchable = map[string][]string{
	"shuttles": {"is_active", "current_seats", "latitude", "longitude"},
	"rides":    {"status"},
	"profiles": {"full_name", "phone", "license_number"},
}

func denied(status int, format string, args ...any) error {
	return &realtime.AccessError{Status: status, Message: fmt.Sprintf(format, args...)}
}

func requireUser(userID string) error {
	if userID == "" {
		return denied(http.StatusUnauthorized, "sign in required")
	}
	return nil
}

// scopeRead restricts a read to rows the user may see.
func scopeRead(userID string, q *backend.Query) error {
	if q.Table == "shuttles" {
		return nil
	}
	if err := requireUser(userID); err != nil {
		return err
	}
	q.Filters = append(q.Filters, backend.Eq(ownerColumn[q.Table], userID))
	return nil
}

// checkInsert validates and completes a new row. Upserts follow the same
// rules since they may create the row.
func checkInsert(userID, table string, row map[string]any) error {
	if err := requireUser(userID); err != nil {
		return err
	}
	owner := ownerColumn[table]
	switch table {
	case "shuttles":
		return denied(http.StatusForbidden, "shuttles are registered through /shuttles")
	case "rides":
		code, _ := row["vehicle_code"].(string)
		if !tracker.IsVehicleCode(code) {
			return denied(http.StatusBadRequest, "vehicle_code must be 4 digits")
		}
		row["status"] = string(models.RideActive)
	case "profiles":
		role, _ := row["user_type"].(string)
		if _, ok := models.ParseRole(role); !ok {
			return denied(http.StatusBadRequest, "user_type must be student or driver")
		}
	}
	if v, ok := row[owner]; ok && v != userID {
		return denied(http.StatusForbidden, "%s must be the signed-in user", owner)
	}
	row[owner] = userID
	return nil
}

// checkUpsertOwner refuses an upsert that would merge into a row owned by
// someone else. Run it after checkInsert so the owner column is set.
func checkUpsertOwner(ctx context.Context, rows backend.Querier, userID, table string, row map[string]any) error {
	id, _ := row["id"].(string)
	if id == "" {
		return nil
	}
	owner := ownerColumn[table]
	var existing []map[string]any
	q := backend.Query{Table: table, Filters: []backend.Filter{backend.Eq("id", id)}, Limit: 1}
	if err := rows.Query(ctx, q, &existing); err != nil {
		return err
	}
	if len(existing) > 0 && fmt.Sprint(existing[0][owner]) != userID {
		return denied(http.StatusForbidden, "row %s belongs to another user", id)
	}
	return nil
}

// scopeUpdate restricts an update to the user's rows and allowed columns.
func scopeUpdate(userID, table string, filters *[]backend.Filter, patch map[string]any) error {
	if err := requireUser(userID); err != nil {
		return err
	}
	if len(patch) == 0 {
		return denied(http.StatusBadRequest, "empty patch")
	}
	for col := range patch {
		if !slices.Contains(patchable[table], col) {
			return denied(http.StatusForbidden, "column %q cannot be changed", col)
		}
	}
	if raw, ok := patch["status"]; ok {
		status, _ := raw.(string)
		if status != string(models.RideActive) && status != string(models.RideCompleted) {
			return denied(http.StatusBadRequest, "invalid ride status %v", raw)
		}
	}
	if seats, ok := patch["current_seats"].(int64); ok && seats < 0 {
		return denied(http.StatusBadRequest, "current_seats cannot be negative")
	}
	*filters = append(*filters, backend.Eq(ownerColumn[table], userID))
	return nil
}

// authorizeSubscription is the realtime counterpart of scopeRead: rides and
// profiles may only be followed with a filter on the user's own id.
func authorizeSubscription(userID, table string, filter *backend.Filter) error {
	owner, ok := ownerColumn[table]
	if !ok {
		return denied(http.StatusNotFound, "unknown table %q", table)
	}
	if filter != nil {
		if _, ok := schemas[table].columns[filter.Column]; !ok {
			return denied(http.StatusBadRequest, "unknown column %q", filter.Column)
		}
	}
	if table == "shuttles" {
		return nil
	}
	if err := requireUser(userID); err != nil {
		return err
	}
	if filter == nil || filter.Column != owner || filter.ValueString() != userID {
		return denied(http.StatusForbidden, "%s changes require a %s filter on your own id", table, owner)
	}
	return nil
}
