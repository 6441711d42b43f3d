package membership

import (
	"errors"
	"net/http"

	"classbook/internal/api"
	"classbook/internal/auth"
	"classbook/internal/wallet"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

// @Summary      Create membership
// @Description  Staff-only: start a membership for a member, optionally charging their wallet.
// @Tags         memberships
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "Member ID"
// @Param        request body membership.CreateMembershipRequest true "Membership payload"
// @Success      201 {object} membership.Membership
// @Failure      400 {object} api.ErrorResponse
// @Failure      402 {object} api.ErrorResponse
// @Router       /members/{id}/memberships [post]
func (h *Handler) Create(c *gin.Context) {
	memberID, ok := api.IDParam(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "Invalid member ID"})
		return
	}

	var req CreateMembershipRequest
	if !api.BindAndValidate(c, &req) {
		return
	}

	m, err := h.service.Create(c.Request.Context(), memberID, req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, m)
}

// @Summary      List memberships
// @Tags         memberships
// @Produce      json
// @Security     BearerAuth
// @Success      200 {array} membership.Membership
// @Router       /members/{id}/memberships [get]
// @Router       /me/memberships [get]
func (h *Handler) List(c *gin.Context) {
	memberID, ok := auth.MemberScope(c, "id")
	if !ok {
		c.JSON(http.StatusForbidden, api.ErrorResponse{Error: "member scope required"})
		return
	}

	list, err := h.service.ListByMember(c.Request.Context(), memberID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, list)
}

// @Summary      Active membership
// @Tags         memberships
// @Produce      json
// @Security     BearerAuth
// @Success      200 {object} membership.Membership
// @Failure      404 {object} api.ErrorResponse
// @Router       /members/{id}/memberships/active [get]
// @Router       /me/memberships/active [get]
func (h *Handler) GetActive(c *gin.Context) {
	memberID, ok := auth.MemberScope(c, "id")
	if !ok {
		c.JSON(http.StatusForbidden, api.ErrorResponse{Error: "member scope required"})
		return
	}

	m, err := h.service.GetActive(c.Request.Context(), memberID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, m)
}

// @Summary      Cancel membership
// @Tags         memberships
// @Produce      json
// @Security     BearerAuth
// @Param        membershipID path int true "Membership ID"
// @Success      200 {object} api.MessageResponse
// @Failure      404 {object} api.ErrorResponse
// @Failure      409 {object} api.ErrorResponse
// @Router       /memberships/{membershipID}/cancel [post]
func (h *Handler) Cancel(c *gin.Context) {
	id, ok := api.IDParam(c, "membershipID")
	if !ok {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "Invalid membership ID"})
		return
	}

	if err := h.service.Cancel(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, api.MessageResponse{Message: "membership cancelled"})
}

func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrMembershipNotFound), errors.Is(err, ErrNoActiveMembership):
		c.JSON(http.StatusNotFound, api.ErrorResponse{Error: err.Error()})
	case errors.Is(err, ErrInvalidValidFrom):
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: err.Error()})
	case errors.Is(err, wallet.ErrInsufficientBalance):
		c.JSON(http.StatusPaymentRequired, api.ErrorResponse{Error: err.Error()})
	case errors.Is(err, ErrAlreadyCancelled):
		c.JSON(http.StatusConflict, api.ErrorResponse{Error: err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "membership request failed"})
	}
}
