package classpack

import (
	"errors"
	"net/http"
	"strconv"

	"classbook/internal/api"
	"classbook/internal/auth"
	"classbook/internal/gymclass"
	"classbook/internal/wallet"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

// @Summary      Create a class pack
// @Tags         class-packs
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body classpack.CreatePackRequest true "Pack definition"
// @Success      201 {object} classpack.ClassPack
// @Failure      400 {object} api.ErrorResponse
// @Router       /class-packs [post]
func (h *Handler) CreatePack(c *gin.Context) {
	var req CreatePackRequest
	if !api.BindAndValidate(c, &req) {
		return
	}

	p, err := h.service.CreatePack(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

// @Summary      List class packs
// @Description  Members see active packs only; staff may pass all=true.
// @Tags         class-packs
// @Produce      json
// @Param        all query bool false "Include inactive packs"
// @Success      200 {array} classpack.ClassPack
// @Router       /class-packs [get]
func (h *Handler) ListPacks(c *gin.Context) {
	activeOnly := true
	if all, _ := strconv.ParseBool(c.Query("all")); all && auth.IsStaff(c) {
		activeOnly = false
	}

	list, err := h.service.ListPacks(c.Request.Context(), activeOnly)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// @Summary      Get a class pack
// @Tags         class-packs
// @Produce      json
// @Param        id path int true "Pack ID"
// @Success      200 {object} classpack.ClassPack
// @Failure      404 {object} api.ErrorResponse
// @Router       /class-packs/{id} [get]
func (h *Handler) GetPack(c *gin.Context) {
	id, ok := packID(c)
	if !ok {
		return
	}

	p, err := h.service.GetPack(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// @Summary      Activate a class pack
// @Tags         class-packs
// @Security     BearerAuth
// @Param        id path int true "Pack ID"
// @Success      200 {object} classpack.ClassPack
// @Router       /class-packs/{id}/activate [post]
func (h *Handler) Activate(c *gin.Context) {
	id, ok := packID(c)
	if !ok {
		return
	}

	p, err := h.service.Activate(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// @Summary      Deactivate a class pack
// @Tags         class-packs
// @Security     BearerAuth
// @Param        id path int true "Pack ID"
// @Success      200 {object} classpack.ClassPack
// @Router       /class-packs/{id}/deactivate [post]
func (h *Handler) Deactivate(c *gin.Context) {
	id, ok := packID(c)
	if !ok {
		return
	}

	p, err := h.service.Deactivate(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// @Summary      Delete a class pack
// @Tags         class-packs
// @Security     BearerAuth
// @Param        id path int true "Pack ID"
// @Success      204
// @Failure      409 {object} api.ErrorResponse
// @Router       /class-packs/{id} [delete]
func (h *Handler) DeletePack(c *gin.Context) {
	id, ok := packID(c)
	if !ok {
		return
	}

	if err := h.service.DeletePack(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// @Summary      Grant a class pack to a member
// @Tags         class-packs
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "Member ID"
// @Param        request body classpack.GrantRequest true "Pack"
// @Success      201 {object} classpack.Balance
// @Router       /members/{id}/class-packs [post]
func (h *Handler) Grant(c *gin.Context) {
	memberID, ok := api.IDParam(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "Invalid member ID"})
		return
	}

	var req GrantRequest
	if !api.BindAndValidate(c, &req) {
		return
	}

	b, err := h.service.Grant(c.Request.Context(), memberID, req.ClassPackID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, b)
}

// @Summary      Buy a class pack with wallet funds
// @Tags         class-packs
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "Member ID"
// @Param        request body classpack.GrantRequest true "Pack"
// @Success      201 {object} classpack.Balance
// @Failure      402 {object} api.ErrorResponse
// @Router       /members/{id}/class-packs/purchase [post]
// @Router       /me/class-packs/purchase [post]
func (h *Handler) Purchase(c *gin.Context) {
	memberID, ok := auth.MemberScope(c, "id")
	if !ok {
		c.JSON(http.StatusForbidden, api.ErrorResponse{Error: "member scope required"})
		return
	}

	var req GrantRequest
	if !api.BindAndValidate(c, &req) {
		return
	}

	b, err := h.service.Purchase(c.Request.Context(), memberID, req.ClassPackID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, b)
}

// @Summary      List a member's class pack balances
// @Tags         class-packs
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "Member ID"
// @Param        class_id query int false "Only balances usable for this class"
// @Success      200 {array} classpack.Balance
// @Router       /members/{id}/class-packs [get]
// @Router       /me/class-packs [get]
func (h *Handler) ListBalances(c *gin.Context) {
	memberID, ok := auth.MemberScope(c, "id")
	if !ok {
		c.JSON(http.StatusForbidden, api.ErrorResponse{Error: "member scope required"})
		return
	}

	var (
		list []Balance
		err  error
	)
	if raw := c.Query("class_id"); raw != "" {
		classID, convErr := strconv.Atoi(raw)
		if convErr != nil {
			c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "Invalid class_id"})
			return
		}
		list, err = h.service.ValidBalancesForClassID(c.Request.Context(), memberID, classID)
	} else {
		list, err = h.service.ListMemberBalances(c.Request.Context(), memberID)
	}
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// @Summary      Cancel a class pack balance
// @Tags         class-packs
// @Security     BearerAuth
// @Param        balanceID path int true "Balance ID"
// @Success      200 {object} classpack.Balance
// @Router       /class-pack-balances/{balanceID}/cancel [post]
func (h *Handler) CancelBalance(c *gin.Context) {
	id, ok := api.IDParam(c, "balanceID")
	if !ok {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "Invalid balance ID"})
		return
	}

	b, err := h.service.CancelBalance(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

func packID(c *gin.Context) (int, bool) {
	id, ok := api.IDParam(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "Invalid class pack ID"})
	}
	return id, ok
}

func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrPackNotFound), errors.Is(err, ErrBalanceNotFound), errors.Is(err, gymclass.ErrClassNotFound):
		c.JSON(http.StatusNotFound, api.ErrorResponse{Error: err.Error()})
	case errors.Is(err, ErrInvalidAllocations):
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: err.Error()})
	case errors.Is(err, wallet.ErrInsufficientBalance), errors.Is(err, ErrNoCreditsRemaining), errors.Is(err, ErrNoCategoryCredits):
		c.JSON(http.StatusPaymentRequired, api.ErrorResponse{Error: err.Error()})
	case errors.Is(err, ErrPackInactive), errors.Is(err, ErrPackNotInactive), errors.Is(err, ErrPackHasActiveBalances),
		errors.Is(err, ErrBalanceCancelled):
		c.JSON(http.StatusConflict, api.ErrorResponse{Error: err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "class pack request failed"})
	}
}
