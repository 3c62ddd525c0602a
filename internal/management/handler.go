package management

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"sieve/internal/constants"
	"sieve/internal/logger"
	"sieve/pkg/errors"
)

const (
	HeaderUserID       = "X-User-ID"
	HeaderChangeReason = "X-Change-Reason"
)

type Handler struct {
	Service Service
	Logger  logger.Logger
}

func NewHandler(service Service, log logger.Logger) *Handler {
	return &Handler{
		Service: service,
		Logger:  log,
	}
}

func (h *Handler) HandleError(c *gin.Context, err error) {
	status := errors.ToHTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.Logger.ErrorwCtx(c.Request.Context(), "Request error", "error", err, "path", c.Request.URL.Path)
	} else {
		h.Logger.DebugwCtx(c.Request.Context(), "Request rejected", "error", err, "path", c.Request.URL.Path)
	}

	c.JSON(status, errors.ToErrorResponse(err))
}

func (h *Handler) bindError(c *gin.Context, err error) {
	h.HandleError(c, errors.ErrValidation.WithCause(err).WithDetail("message", err.Error()))
}

func (h *Handler) RegisterRoutes(router gin.IRouter) {
	v1 := router.Group("/api/v1")
	v1.Use(requestInfo())
	{
		sets := v1.Group("/filter-sets")
		{
			sets.GET("", h.ListFilterSets)
			sets.POST("", h.CreateFilterSet)
			sets.GET("/:id", h.GetFilterSet)
			sets.PUT("/:id", h.UpdateFilterSet)
			sets.DELETE("/:id", h.DeleteFilterSet)
			sets.GET("/:id/versions", h.GetFilterSetVersions)
			sets.GET("/:id/audit", h.GetFilterSetAuditLogs)
			sets.POST("/:id/evaluate", h.EvaluateFilterSet)
		}

		v1.POST("/filters/validate", h.ValidateFilters)

		audit := v1.Group("/audit")
		{
			audit.GET("/logs", h.GetAuditLogs)
		}
	}
}

// requestInfo records the caller identity for versioning and audit.
func requestInfo() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := WithRequestInfo(c.Request.Context(), RequestInfo{
			ChangedBy:    c.GetHeader(HeaderUserID),
			ChangeReason: c.GetHeader(HeaderChangeReason),
			IPAddress:    c.ClientIP(),
		})
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// ListFilterSets godoc
// @Summary      List filter sets
// @Description  Get all filter sets ordered by priority
// @Tags         filter-sets
// @Produce      json
// @Success      200  {array}   models.FilterSet
// @Failure      500  {object}  map[string]interface{}
// @Router       /filter-sets [get]
func (h *Handler) ListFilterSets(c *gin.Context) {
	sets, err := h.Service.ListFilterSets(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, sets)
}

// CreateFilterSet godoc
// @Summary      Create a filter set
// @Description  Create a filter set from a filter list and an optional CEL condition
// @Tags         filter-sets
// @Accept       json
// @Produce      json
// @Param        set  body      CreateFilterSetRequest  true  "Filter set"
// @Success      201  {object}  models.FilterSet
// @Failure      400  {object}  map[string]interface{}
// @Failure      409  {object}  map[string]interface{}
// @Failure      500  {object}  map[string]interface{}
// @Router       /filter-sets [post]
func (h *Handler) CreateFilterSet(c *gin.Context) {
	var req CreateFilterSetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.bindError(c, err)
		return
	}

	set, err := h.Service.CreateFilterSet(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, set)
}

// GetFilterSet godoc
// @Summary      Get a filter set
// @Description  Get a filter set by ID
// @Tags         filter-sets
// @Produce      json
// @Param        id   path      string  true  "Filter set ID"
// @Success      200  {object}  models.FilterSet
// @Failure      404  {object}  map[string]interface{}
// @Failure      500  {object}  map[string]interface{}
// @Router       /filter-sets/{id} [get]
func (h *Handler) GetFilterSet(c *gin.Context) {
	set, err := h.Service.GetFilterSet(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, set)
}

// UpdateFilterSet godoc
// @Summary      Update a filter set
// @Description  Partially update a filter set. Omitted fields keep their value.
// @Tags         filter-sets
// @Accept       json
// @Produce      json
// @Param        id   path      string                  true  "Filter set ID"
// @Param        set  body      UpdateFilterSetRequest  true  "Fields to change"
// @Success      200  {object}  models.FilterSet
// @Failure      400  {object}  map[string]interface{}
// @Failure      404  {object}  map[string]interface{}
// @Failure      409  {object}  map[string]interface{}
// @Failure      500  {object}  map[string]interface{}
// @Router       /filter-sets/{id} [put]
func (h *Handler) UpdateFilterSet(c *gin.Context) {
	var req UpdateFilterSetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.bindError(c, err)
		return
	}

	set, err := h.Service.UpdateFilterSet(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, set)
}

// DeleteFilterSet godoc
// @Summary      Delete a filter set
// @Description  Delete a filter set and announce the change on the config update topic
// @Tags         filter-sets
// @Param        id   path      string  true  "Filter set ID"
// @Success      204  "No Content"
// @Failure      404  {object}  map[string]interface{}
// @Failure      500  {object}  map[string]interface{}
// @Router       /filter-sets/{id} [delete]
func (h *Handler) DeleteFilterSet(c *gin.Context) {
	if err := h.Service.DeleteFilterSet(c.Request.Context(), c.Param("id")); err != nil {
		h.HandleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GetFilterSetVersions godoc
// @Summary      Get filter set version history
// @Description  Get every stored version of a filter set, newest first
// @Tags         filter-sets
// @Produce      json
// @Param        id   path      string  true  "Filter set ID"
// @Success      200  {array}   FilterSetVersion
// @Failure      404  {object}  map[string]interface{}
// @Failure      500  {object}  map[string]interface{}
// @Router       /filter-sets/{id}/versions [get]
func (h *Handler) GetFilterSetVersions(c *gin.Context) {
	versions, err := h.Service.GetFilterSetVersions(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, versions)
}

// GetFilterSetAuditLogs godoc
// @Summary      Get audit logs for a filter set
// @Description  Get the audit trail of one filter set, newest first
// @Tags         filter-sets
// @Produce      json
// @Param        id     path      string  true   "Filter set ID"
// @Param        limit  query     int     false  "Maximum number of logs to return (1-1000)" default(100)
// @Success      200    {array}   AuditLog
// @Failure      500    {object}  map[string]interface{}
// @Router       /filter-sets/{id}/audit [get]
func (h *Handler) GetFilterSetAuditLogs(c *gin.Context) {
	id := c.Param("id")
	logs, err := h.Service.GetAuditLogs(c.Request.Context(), &id, "", parseLimit(c.Query("limit")))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, logs)
}

// EvaluateFilterSet godoc
// @Summary      Dry-run a filter set
// @Description  Evaluate a stored filter set against the given properties and metrics
// @Tags         filter-sets
// @Accept       json
// @Produce      json
// @Param        id       path      string           true  "Filter set ID"
// @Param        subject  body      EvaluateRequest  true  "Subject to evaluate"
// @Success      200      {object}  EvaluateResponse
// @Failure      400      {object}  map[string]interface{}
// @Failure      404      {object}  map[string]interface{}
// @Router       /filter-sets/{id}/evaluate [post]
func (h *Handler) EvaluateFilterSet(c *gin.Context) {
	var req EvaluateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.bindError(c, err)
		return
	}

	resp, err := h.Service.EvaluateFilterSet(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// ValidateFilters godoc
// @Summary      Validate a filter list
// @Description  Validate filters and an optional condition and return the compiled CEL expression
// @Tags         filters
// @Accept       json
// @Produce      json
// @Param        filters  body      ValidateFiltersRequest  true  "Filters to validate"
// @Success      200      {object}  ValidateFiltersResponse
// @Failure      400      {object}  map[string]interface{}
// @Router       /filters/validate [post]
func (h *Handler) ValidateFilters(c *gin.Context) {
	var req ValidateFiltersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.bindError(c, err)
		return
	}

	resp, err := h.Service.ValidateFilters(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// GetAuditLogs godoc
// @Summary      Get audit logs
// @Description  Get audit logs, optionally narrowed to one filter set or action
// @Tags         audit
// @Produce      json
// @Param        filter_set_id  query     string  false  "Filter by filter set ID"
// @Param        action         query     string  false  "Filter by action (create, update, toggle, delete)"
// @Param        limit          query     int     false  "Maximum number of logs to return (1-1000)" default(100)
// @Success      200            {array}   AuditLog
// @Failure      500            {object}  map[string]interface{}
// @Router       /audit/logs [get]
func (h *Handler) GetAuditLogs(c *gin.Context) {
	var filterSetID *string
	if id := c.Query("filter_set_id"); id != "" {
		filterSetID = &id
	}

	logs, err := h.Service.GetAuditLogs(c.Request.Context(), filterSetID, c.Query("action"), parseLimit(c.Query("limit")))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, logs)
}

func parseLimit(limitStr string) int {
	if limitStr == "" {
		return constants.DefaultLimit
	}
	parsed, err := strconv.Atoi(limitStr)
	if err != nil || parsed <= 0 || parsed > constants.MaxLimit {
		return constants.DefaultLimit
	}
	return parsed
}
