package wallet

import (
	"errors"
	"net/http"
	"strconv"

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

// @Summary      Wallet balance
// @Tags         wallet
// @Produce      json
// @Security     BearerAuth
// @Success      200 {object} wallet.Wallet
// @Failure      403 {object} api.ErrorResponse
// @Router       /wallet [get]
// @Router       /members/{id}/wallet [get]
func (h *Handler) GetBalance(c *gin.Context) {
	memberID, ok := auth.MemberScope(c, "id")
	if !ok {
		c.JSON(http.StatusForbidden, api.ErrorResponse{Error: "member scope required"})
		return
	}

	w, err := h.service.Balance(c.Request.Context(), memberID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "failed to load wallet"})
		return
	}

	c.JSON(http.StatusOK, w)
}

// @Summary      Top up wallet
// @Tags         wallet
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body wallet.TopUpRequest true "Amount"
// @Success      200 {object} wallet.TopUpResponse
// @Failure      400 {object} api.ErrorResponse
// @Router       /wallet/topup [post]
// @Router       /members/{id}/wallet/topup [post]
func (h *Handler) TopUp(c *gin.Context) {
	memberID, ok := auth.MemberScope(c, "id")
	if !ok {
		c.JSON(http.StatusForbidden, api.ErrorResponse{Error: "member scope required"})
		return
	}

	var req TopUpRequest
	if !api.BindAndValidate(c, &req) {
		return
	}

	w, err := h.service.TopUp(c.Request.Context(), memberID, req.AmountCents)
	if err != nil {
		if errors.Is(err, ErrInvalidAmount) {
			c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "failed to top up wallet"})
		return
	}

	c.JSON(http.StatusOK, TopUpResponse{Message: "wallet recharged", Wallet: w})
}

// @Summary      Wallet transactions
// @Tags         wallet
// @Produce      json
// @Security     BearerAuth
// @Param        limit query int false "Limit"
// @Param        offset query int false "Offset"
// @Success      200 {array} wallet.Transaction
// @Router       /wallet/transactions [get]
// @Router       /members/{id}/wallet/transactions [get]
func (h *Handler) ListTransactions(c *gin.Context) {
	memberID, ok := auth.MemberScope(c, "id")
	if !ok {
		c.JSON(http.StatusForbidden, api.ErrorResponse{Error: "member scope required"})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit > api.MaxPageSize {
		limit = api.MaxPageSize
	}
	if offset < 0 {
		offset = 0
	}

	txs, err := h.service.Transactions(c.Request.Context(), memberID, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "failed to load transactions"})
		return
	}

	c.JSON(http.StatusOK, txs)
}
