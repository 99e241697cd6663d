package schema

import (
	"encoding/json"
	"net/http"
	"strconv"

	"second-brain/internal/domain"
	"second-brain/internal/errors"
	"second-brain/internal/middleware"
	"second-brain/internal/utils"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

type FormRecord struct {
	Properties map[string]any `json:"properties"`
}

type FormBulkUpdate struct {
	RecordIDs  []string       `json:"recordIds" binding:"required,min=1"`
	Properties map[string]any `json:"properties" binding:"required"`
}

type FormBulkDelete struct {
	RecordIDs []string `json:"recordIds" binding:"required,min=1"`
	Permanent bool     `json:"permanent"`
}

type FormReorder struct {
	PropertyIDs []string `json:"propertyIds" binding:"required"`
}

type FormPropertyType struct {
	Type   domain.PropertyType    `json:"type" binding:"required"`
	Config *domain.PropertyConfig `json:"config"`
}

// RegisterRoutes mounts the database routes. elevated guards schema changes
// that can rewrite stored values.
func (h *Handler) RegisterRoutes(group *gin.RouterGroup, elevated gin.HandlerFunc) {
	group.GET("", h.ListDatabases)
	group.POST("", h.CreateDatabase)
	group.GET("/:id", h.ShowDatabase)
	group.PUT("/:id", h.UpdateDatabase)
	group.DELETE("/:id", h.DeleteDatabase)

	group.GET("/:id/properties", h.ListProperties)
	group.POST("/:id/properties", h.CreateProperty)
	group.POST("/:id/properties/reorder", h.ReorderProperties)
	group.PUT("/:id/properties/:pid", h.UpdateProperty)
	group.PUT("/:id/properties/:pid/type", elevated, h.ChangePropertyType)
	group.DELETE("/:id/properties/:pid", h.DeleteProperty)

	group.GET("/:id/views", h.ListViews)
	group.POST("/:id/views", h.CreateView)
	group.PUT("/:id/views/:vid", h.UpdateView)
	group.DELETE("/:id/views/:vid", h.DeleteView)

	group.GET("/:id/records", h.ListRecords)
	group.POST("/:id/records", h.CreateRecord)
	group.POST("/:id/records/bulk-update", h.BulkUpdate)
	group.POST("/:id/records/bulk-delete", h.BulkDelete)
	group.GET("/:id/records/:rid", h.ShowRecord)
	group.PUT("/:id/records/:rid", h.UpdateRecord)
	group.DELETE("/:id/records/:rid", h.DeleteRecord)
}

func bind(c *gin.Context, out any) bool {
	if err := c.ShouldBindJSON(out); err != nil {
		c.Error(errors.NewValidationError(err))
		return false
	}
	return true
}

func (h *Handler) ListDatabases(c *gin.Context) {
	dbs, err := h.service.ListDatabases(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		c.Error(err)
		return
	}
	utils.Respond(c, http.StatusOK, dbs, "")
}

func (h *Handler) CreateDatabase(c *gin.Context) {
	var form DatabaseInput
	if !bind(c, &form) {
		return
	}
	db, err := h.service.CreateDatabase(c.Request.Context(), middleware.UserID(c), form)
	if err != nil {
		c.Error(err)
		return
	}
	utils.Respond(c, http.StatusCreated, db, "Database created")
}

func (h *Handler) ShowDatabase(c *gin.Context) {
	db, err := h.service.GetDatabase(c.Request.Context(), middleware.UserID(c), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	utils.Respond(c, http.StatusOK, db, "")
}

func (h *Handler) UpdateDatabase(c *gin.Context) {
	var form DatabaseInput
	if !bind(c, &form) {
		return
	}
	db, err := h.service.UpdateDatabase(c.Request.Context(), middleware.UserID(c), c.Param("id"), form)
	if err != nil {
		c.Error(err)
		return
	}
	utils.Respond(c, http.StatusOK, db, "Database updated")
}

func (h *Handler) DeleteDatabase(c *gin.Context) {
	if err := h.service.DeleteDatabase(c.Request.Context(), middleware.UserID(c), c.Param("id")); err != nil {
		c.Error(err)
		return
	}
	utils.Message(c, http.StatusOK, "Database deleted")
}

func (h *Handler) ListProperties(c *gin.Context) {
	props, err := h.service.ListProperties(c.Request.Context(), middleware.UserID(c), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	utils.Respond(c, http.StatusOK, props, "")
}

func (h *Handler) CreateProperty(c *gin.Context) {
	var form PropertyInput
	if !bind(c, &form) {
		return
	}
	p, err := h.service.CreateProperty(c.Request.Context(), middleware.UserID(c), c.Param("id"), form)
	if err != nil {
		c.Error(err)
		return
	}
	utils.Respond(c, http.StatusCreated, p, "Property created")
}

func (h *Handler) UpdateProperty(c *gin.Context) {
	var form PropertyInput
	if !bind(c, &form) {
		return
	}
	p, err := h.service.UpdateProperty(c.Request.Context(), middleware.UserID(c), c.Param("id"), c.Param("pid"), form)
	if err != nil {
		c.Error(err)
		return
	}
	utils.Respond(c, http.StatusOK, p, "Property updated")
}

func (h *Handler) ChangePropertyType(c *gin.Context) {
	var form FormPropertyType
	if !bind(c, &form) {
		return
	}
	p, err := h.service.ChangePropertyType(c.Request.Context(), middleware.UserID(c), c.Param("id"), c.Param("pid"), form.Type, form.Config)
	if err != nil {
		c.Error(err)
		return
	}
	utils.Respond(c, http.StatusOK, p, "Property type changed")
}

func (h *Handler) DeleteProperty(c *gin.Context) {
	if err := h.service.DeleteProperty(c.Request.Context(), middleware.UserID(c), c.Param("id"), c.Param("pid")); err != nil {
		c.Error(err)
		return
	}
	utils.Message(c, http.StatusOK, "Property deleted")
}

func (h *Handler) ReorderProperties(c *gin.Context) {
	var form FormReorder
	if !bind(c, &form) {
		return
	}
	if err := h.service.ReorderProperties(c.Request.Context(), middleware.UserID(c), c.Param("id"), form.PropertyIDs); err != nil {
		c.Error(err)
		return
	}
	utils.Message(c, http.StatusOK, "Properties reordered")
}

func (h *Handler) ListViews(c *gin.Context) {
	views, err := h.service.ListViews(c.Request.Context(), middleware.UserID(c), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	utils.Respond(c, http.StatusOK, views, "")
}

func (h *Handler) CreateView(c *gin.Context) {
	var form ViewInput
	if !bind(c, &form) {
		return
	}
	v, err := h.service.CreateView(c.Request.Context(), middleware.UserID(c), c.Param("id"), form)
	if err != nil {
		c.Error(err)
		return
	}
	utils.Respond(c, http.StatusCreated, v, "View created")
}

func (h *Handler) UpdateView(c *gin.Context) {
	var form ViewInput
	if !bind(c, &form) {
		return
	}
	v, err := h.service.UpdateView(c.Request.Context(), middleware.UserID(c), c.Param("id"), c.Param("vid"), form)
	if err != nil {
		c.Error(err)
		return
	}
	utils.Respond(c, http.StatusOK, v, "View updated")
}

func (h *Handler) DeleteView(c *gin.Context) {
	if err := h.service.DeleteView(c.Request.Context(), middleware.UserID(c), c.Param("id"), c.Param("vid")); err != nil {
		c.Error(err)
		return
	}
	utils.Message(c, http.StatusOK, "View deleted")
}

// recordQuery reads viewId, search, page, perPage and the JSON encoded
// filters and sorts.
func recordQuery(c *gin.Context) (RecordQuery, error) {
	page, perPage := utils.GetPaginationParams(c)
	q := RecordQuery{
		ViewID:  c.Query("viewId"),
		Search:  c.Query("search"),
		Page:    page,
		PerPage: perPage,
	}
	if raw := c.Query("filters"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &q.Filters); err != nil {
			return q, errors.BadRequest("Invalid filters", err).WithField("filters", "filters must be a JSON array")
		}
	}
	if raw := c.Query("sorts"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &q.Sorts); err != nil {
			return q, errors.BadRequest("Invalid sorts", err).WithField("sorts", "sorts must be a JSON array")
		}
	}
	return q, nil
}

func (h *Handler) ListRecords(c *gin.Context) {
	q, err := recordQuery(c)
	if err != nil {
		c.Error(err)
		return
	}
	page, err := h.service.ListRecords(c.Request.Context(), middleware.UserID(c), c.Param("id"), q)
	if err != nil {
		c.Error(err)
		return
	}
	utils.Respond(c, http.StatusOK, page, "")
}

func (h *Handler) ShowRecord(c *gin.Context) {
	rec, err := h.service.GetRecord(c.Request.Context(), middleware.UserID(c), c.Param("id"), c.Param("rid"))
	if err != nil {
		c.Error(err)
		return
	}
	utils.Respond(c, http.StatusOK, rec, "")
}

func (h *Handler) CreateRecord(c *gin.Context) {
	var form FormRecord
	if !bind(c, &form) {
		return
	}
	rec, err := h.service.CreateRecord(c.Request.Context(), middleware.UserID(c), c.Param("id"), form.Properties)
	if err != nil {
		c.Error(err)
		return
	}
	utils.Respond(c, http.StatusCreated, rec, "Record created")
}

func (h *Handler) UpdateRecord(c *gin.Context) {
	var form FormRecord
	if !bind(c, &form) {
		return
	}
	rec, err := h.service.UpdateRecord(c.Request.Context(), middleware.UserID(c), c.Param("id"), c.Param("rid"), form.Properties)
	if err != nil {
		c.Error(err)
		return
	}
	utils.Respond(c, http.StatusOK, rec, "Record updated")
}

func (h *Handler) DeleteRecord(c *gin.Context) {
	permanent, _ := strconv.ParseBool(c.Query("permanent"))
	if err := h.service.DeleteRecord(c.Request.Context(), middleware.UserID(c), c.Param("id"), c.Param("rid"), permanent); err != nil {
		c.Error(err)
		return
	}
	utils.Message(c, http.StatusOK, "Record deleted")
}

func (h *Handler) BulkUpdate(c *gin.Context) {
	var form FormBulkUpdate
	if !bind(c, &form) {
		return
	}
	n, err := h.service.BulkUpdateRecords(c.Request.Context(), middleware.UserID(c), c.Param("id"), form.RecordIDs, form.Properties)
	if err != nil {
		c.Error(err)
		return
	}
	utils.Respond(c, http.StatusOK, gin.H{"updated": n}, "Records updated")
}

func (h *Handler) BulkDelete(c *gin.Context) {
	var form FormBulkDelete
	if !bind(c, &form) {
		return
	}
	n, err := h.service.BulkDeleteRecords(c.Request.Context(), middleware.UserID(c), c.Param("id"), form.RecordIDs, form.Permanent)
	if err != nil {
		c.Error(err)
		return
	}
	utils.Respond(c, http.StatusOK, gin.H{"deleted": n}, "Records deleted")
}
