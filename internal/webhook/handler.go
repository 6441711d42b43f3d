package webhook

import (
	"errors"
	"net/http"

	"classbook/internal/api"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

// @Summary      Register a webhook endpoint
// @Description  An empty event_types list subscribes to every event.
// @Tags         webhooks
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body webhook.CreateEndpointRequest true "Endpoint"
// @Success      201 {object} webhook.Endpoint
// @Failure      400 {object} api.ErrorResponse
// @Router       /admin/webhooks [post]
func (h *Handler) Create(c *gin.Context) {
	var req CreateEndpointRequest
	if !api.BindAndValidate(c, &req) {
		return
	}

	e, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		respondError(c, err, "Failed to create webhook endpoint")
		return
	}
	c.JSON(http.StatusCreated, e)
}

// @Summary      List webhook endpoints
// @Tags         webhooks
// @Produce      json
// @Security     BearerAuth
// @Success      200 {array} webhook.Endpoint
// @Router       /admin/webhooks [get]
func (h *Handler) List(c *gin.Context) {
	list, err := h.service.List(c.Request.Context())
	if err != nil {
		respondError(c, err, "Failed to fetch webhook endpoints")
		return
	}
	c.JSON(http.StatusOK, list)
}

// @Summary      Get a webhook endpoint
// @Tags         webhooks
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "Endpoint ID"
// @Success      200 {object} webhook.Endpoint
// @Failure      404 {object} api.ErrorResponse
// @Router       /admin/webhooks/{id} [get]
func (h *Handler) Get(c *gin.Context) {
	id, ok := endpointID(c)
	if !ok {
		return
	}

	e, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, "Failed to fetch webhook endpoint")
		return
	}
	c.JSON(http.StatusOK, e)
}

// @Summary      Update a webhook endpoint
// @Tags         webhooks
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "Endpoint ID"
// @Param        request body webhook.UpdateEndpointRequest true "Changes"
// @Success      200 {object} webhook.Endpoint
// @Failure      404 {object} api.ErrorResponse
// @Router       /admin/webhooks/{id} [patch]
func (h *Handler) Update(c *gin.Context) {
	id, ok := endpointID(c)
	if !ok {
		return
	}

	var req UpdateEndpointRequest
	if !api.BindAndValidate(c, &req) {
		return
	}

	e, err := h.service.Update(c.Request.Context(), id, req)
	if err != nil {
		respondError(c, err, "Failed to update webhook endpoint")
		return
	}
	c.JSON(http.StatusOK, e)
}

// @Summary      Delete a webhook endpoint
// @Tags         webhooks
// @Security     BearerAuth
// @Param        id path int true "Endpoint ID"
// @Success      204
// @Failure      404 {object} api.ErrorResponse
// @Router       /admin/webhooks/{id} [delete]
func (h *Handler) Delete(c *gin.Context) {
	id, ok := endpointID(c)
	if !ok {
		return
	}

	if err := h.service.Delete(c.Request.Context(), id); err != nil {
		respondError(c, err, "Failed to delete webhook endpoint")
		return
	}
	c.Status(http.StatusNoContent)
}

func endpointID(c *gin.Context) (int, bool) {
	id, ok := api.IDParam(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "Invalid endpoint ID"})
	}
	return id, ok
}

func respondError(c *gin.Context, err error, fallback string) {
	if errors.Is(err, ErrEndpointNotFound) {
		c.JSON(http.StatusNotFound, api.ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: fallback})
}
