package controllers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"campus_shuttle/internal/backend"
	"campus_shuttle/internal/models"
	"campus_shuttle/internal/realtime"
)

// AccountStore persists auth accounts. Lookups return backend.ErrNotFound
// and duplicate emails backend.ErrConflict.
type AccountStore interface {
	CreateAccount(ctx context.Context, u *models.User) error
	AccountByEmail(ctx context.Context, email string) (*models.User, error)
	AccountByID(ctx context.Context, id string) (*models.User, error)
}

// Rows is the table access behind /rest.
type Rows interface {
	backend.Querier
	backend.Writer
}

// respondError maps storage and policy errors to a JSON error response.
func respondError(c *gin.Context, log *logrus.Entry, err error) {
	var access *realtime.AccessError
	switch {
	case errors.As(err, &access):
		c.JSON(access.Status, gin.H{"error": access.Message})
	case errors.Is(err, backend.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, backend.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, context.DeadlineExceeded):
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": "request timed out"})
	default:
		log.WithError(err).WithField("path", c.FullPath()).Error("Request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
