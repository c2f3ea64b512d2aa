package result

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/labnode/lims-api/internal/handler"
	"github.com/labnode/lims-api/internal/model"
	"github.com/labnode/lims-api/internal/service/result"
	"github.com/labnode/lims-api/pkg/fhir"
)

type Handler struct {
	service *result.Service
}

func NewHandler(service *result.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	results := r.Group("/results")
	{
		results.POST("", h.SubmitResult)
		results.GET("/:id", h.GetResult)
		results.PUT("/:id", h.UpdateResult)
		results.POST("/:id/verify", h.VerifyResult)
		results.GET("/:id/observation", h.GetObservation)
	}

	r.GET("/order-items/:id/results", h.ListResults)
	r.GET("/orders/:id/report", h.GetReport)
}

func (h *Handler) SubmitResult(c *gin.Context) {
	var sub model.ResultSubmission
	if err := c.ShouldBindJSON(&sub); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	res, err := h.service.Submit(c.Request.Context(), handler.Actor(c), &sub)
	if err != nil {
		c.JSON(handler.HTTPStatus(err), handler.NewErrorResponse(err.Error()))
		return
	}

	c.JSON(http.StatusCreated, handler.NewSuccessResponse(res))
}

func (h *Handler) GetResult(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid result id"))
		return
	}

	res, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		c.JSON(handler.HTTPStatus(err), handler.NewErrorResponse(err.Error()))
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(res))
}

func (h *Handler) UpdateResult(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid result id"))
		return
	}

	var sub model.ResultSubmission
	if err := c.ShouldBindJSON(&sub); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	res, err := h.service.Update(c.Request.Context(), handler.Actor(c), id, &sub)
	if err != nil {
		c.JSON(handler.HTTPStatus(err), handler.NewErrorResponse(err.Error()))
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(res))
}

func (h *Handler) VerifyResult(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid result id"))
		return
	}

	var req model.VerificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	res, err := h.service.Verify(c.Request.Context(), handler.Actor(c), id, &req)
	if err != nil {
		c.JSON(handler.HTTPStatus(err), handler.NewErrorResponse(err.Error()))
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(res))
}

func (h *Handler) GetObservation(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid result id"))
		return
	}

	rm, err := h.service.GetReadModel(c.Request.Context(), id)
	if err != nil {
		c.JSON(handler.HTTPStatus(err), handler.NewErrorResponse(err.Error()))
		return
	}

	c.JSON(http.StatusOK, fhir.FromResult(rm))
}

func (h *Handler) ListResults(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid order item id"))
		return
	}

	var page model.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	results, err := h.service.ListByOrderItem(c.Request.Context(), id, page)
	if err != nil {
		c.JSON(handler.HTTPStatus(err), handler.NewErrorResponse(err.Error()))
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(results))
}

func (h *Handler) GetReport(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid order id"))
		return
	}

	report, err := h.service.GetReport(c.Request.Context(), id)
	if err != nil {
		c.JSON(handler.HTTPStatus(err), handler.NewErrorResponse(err.Error()))
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(report))
}
