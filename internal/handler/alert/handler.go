package alert

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/labnode/lims-api/internal/handler"
	"github.com/labnode/lims-api/internal/model"
	"github.com/labnode/lims-api/internal/service/alert"
)

type Handler struct {
	service *alert.Service
}

func NewHandler(service *alert.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	alerts := r.Group("/alerts")
	{
		alerts.GET("", h.ListAlerts)
		alerts.GET("/:id", h.GetAlert)
		alerts.PATCH("/:id", h.TransitionAlert)
	}
}

func (h *Handler) ListAlerts(c *gin.Context) {
	status := c.DefaultQuery("status", string(model.AlertStatusPending))

	var page model.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	alerts, err := h.service.ListByStatus(c.Request.Context(), model.AlertStatus(status), page)
	if err != nil {
		c.JSON(handler.HTTPStatus(err), handler.NewErrorResponse(err.Error()))
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(alerts))
}

func (h *Handler) GetAlert(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid alert id"))
		return
	}

	a, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		c.JSON(handler.HTTPStatus(err), handler.NewErrorResponse(err.Error()))
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(a))
}

func (h *Handler) TransitionAlert(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid alert id"))
		return
	}

	var req model.AlertTransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	a, err := h.service.Transition(c.Request.Context(), handler.Actor(c), id, &req)
	if err != nil {
		c.JSON(handler.HTTPStatus(err), handler.NewErrorResponse(err.Error()))
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(a))
}
