package controllers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"campus_shuttle/internal/middleware"
)

// RestController serves row access under /rest/:table.
type RestController struct {
	rows Rows
	log  *logrus.Entry
}

func NewRestController(rows Rows, log *logrus.Entry) *RestController {
	if log == nil {
		log = logrus.WithField("component", "rest")
	}
	return &RestController{rows: rows, log: log}
}

func (r *RestController) table(c *gin.Context) (string, tableSchema, bool) {
	name := c.Param("table")
	schema, ok := schemas[name]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown table " + name})
		return "", tableSchema{}, false
	}
	return name, schema, true
}

// ListRows answers GET with the matching rows as a JSON array.
func (r *RestController) ListRows(c *gin.Context) {
	table, schema, ok := r.table(c)
	if !ok {
		return
	}
	q, err := parseQuery(table, schema, c.Request.URL.Query())
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := scopeRead(middleware.UserID(c), &q); err != nil {
		respondError(c, r.log, err)
		return
	}

	rows := []map[string]any{}
	if err := r.rows.Query(c.Request.Context(), q, &rows); err != nil {
		respondError(c, r.log, err)
		return
	}
	c.JSON(http.StatusOK, rows)
}

// CreateRow inserts one row, or upserts it when the request carries
// "Prefer: resolution=merge-duplicates". It answers with the stored row.
func (r *RestController) CreateRow(c *gin.Context) {
	table, schema, ok := r.table(c)
	if !ok {
		return
	}
	var body map[string]any
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid row: " + err.Error()})
		return
	}
	row, err := coerceRecord(schema, body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	userID := middleware.UserID(c)
	if err := checkInsert(userID, table, row); err != nil {
		respondError(c, r.log, err)
		return
	}

	upsert := strings.Contains(c.GetHeader("Prefer"), "resolution=merge-duplicates")
	if upsert {
		if err := checkUpsertOwner(c.Request.Context(), r.rows, userID, table, row); err != nil {
			respondError(c, r.log, err)
			return
		}
	}
	var created map[string]any
	if upsert {
		err = r.rows.Upsert(c.Request.Context(), table, row, &created)
	} else {
		err = r.rows.Insert(c.Request.Context(), table, row, &created)
	}
	if err != nil {
		respondError(c, r.log, err)
		return
	}

	r.log.WithFields(logrus.Fields{
		"table":   table,
		"user_id": userID,
		"upsert":  upsert,
	}).Debug("Row written")
	c.JSON(http.StatusCreated, created)
}

// UpdateRows patches the filtered rows and answers with them.
func (r *RestController) UpdateRows(c *gin.Context) {
	table, schema, ok := r.table(c)
	if !ok {
		return
	}
	q, err := parseQuery(table, schema, c.Request.URL.Query())
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(q.Filters) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "updates need at least one filter"})
		return
	}
	var body map[string]any
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid update: " + err.Error()})
		return
	}
	patch, err := coerceRecord(schema, body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := scopeUpdate(middleware.UserID(c), table, &q.Filters, patch); err != nil {
		respondError(c, r.log, err)
		return
	}

	updated := []map[string]any{}
	if err := r.rows.Update(c.Request.Context(), table, q.Filters, patch, &updated); err != nil {
		respondError(c, r.log, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}
