package member

import (
	"errors"
	"net/http"

	"classbook/internal/api"
	"classbook/internal/auth"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

// @Summary      Create a member
// @Tags         members
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body member.CreateMemberRequest true "Member payload"
// @Success      201 {object} member.Member
// @Failure      400 {object} api.ErrorResponse
// @Failure      409 {object} api.ErrorResponse
// @Router       /members [post]
func (h *Handler) Create(c *gin.Context) {
	var req CreateMemberRequest
	if !api.BindAndValidate(c, &req) {
		return
	}

	m, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		h.respondError(c, err, "Failed to create member")
		return
	}

	c.JSON(http.StatusCreated, m)
}

// @Summary      List members
// @Tags         members
// @Produce      json
// @Security     BearerAuth
// @Param        page query int false "Page number"
// @Param        size query int false "Page size"
// @Success      200 {object} api.Page[member.Member]
// @Router       /members [get]
func (h *Handler) List(c *gin.Context) {
	page, err := h.service.List(c.Request.Context(), api.ParsePagination(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "Failed to fetch members"})
		return
	}

	c.JSON(http.StatusOK, page)
}

// @Summary      Get a member
// @Tags         members
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "Member ID"
// @Success      200 {object} member.Member
// @Failure      403 {object} api.ErrorResponse
// @Failure      404 {object} api.ErrorResponse
// @Router       /members/{id} [get]
func (h *Handler) Get(c *gin.Context) {
	id, ok := api.IDParam(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "Invalid member ID"})
		return
	}

	if !auth.IsStaff(c) {
		if self, ok := auth.GetMemberID(c); !ok || self != id {
			c.JSON(http.StatusForbidden, api.ErrorResponse{Error: "Insufficient permissions"})
			return
		}
	}

	m, err := h.service.GetByID(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err, "Failed to fetch member")
		return
	}

	c.JSON(http.StatusOK, m)
}

// @Summary      Current member profile
// @Tags         members
// @Produce      json
// @Security     BearerAuth
// @Success      200 {object} member.Member
// @Failure      404 {object} api.ErrorResponse
// @Router       /me [get]
func (h *Handler) GetMe(c *gin.Context) {
	ctx := c.Request.Context()

	var (
		m   *Member
		err error
	)
	if memberID, ok := auth.GetMemberID(c); ok {
		m, err = h.service.GetByID(ctx, memberID)
	} else {
		userID, _ := auth.GetUserID(c)
		m, err = h.service.GetByUserID(ctx, userID)
	}
	if err != nil {
		h.respondError(c, err, "Failed to fetch member")
		return
	}

	c.JSON(http.StatusOK, m)
}

// @Summary      Update member status
// @Tags         members
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "Member ID"
// @Param        request body member.UpdateStatusRequest true "New status"
// @Success      200 {object} member.Member
// @Failure      404 {object} api.ErrorResponse
// @Failure      409 {object} api.ErrorResponse
// @Router       /members/{id}/status [patch]
func (h *Handler) UpdateStatus(c *gin.Context) {
	id, ok := api.IDParam(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "Invalid member ID"})
		return
	}

	var req UpdateStatusRequest
	if !api.BindAndValidate(c, &req) {
		return
	}

	m, err := h.service.UpdateStatus(c.Request.Context(), id, req.Status)
	if err != nil {
		h.respondError(c, err, "Failed to update member")
		return
	}

	c.JSON(http.StatusOK, m)
}

func (h *Handler) respondError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, ErrMemberNotFound):
		c.JSON(http.StatusNotFound, api.ErrorResponse{Error: err.Error()})
	case errors.Is(err, ErrEmailExists), errors.Is(err, ErrInvalidStatusTransition):
		c.JSON(http.StatusConflict, api.ErrorResponse{Error: err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: fallback})
	}
}
