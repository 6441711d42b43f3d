package booking

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"classbook/internal/api"
	"classbook/internal/auth"
	"classbook/internal/classpack"
	"classbook/internal/gymclass"
	"classbook/internal/member"
	"classbook/internal/membership"
	"classbook/internal/wallet"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

// @Summary      Book a session
// @Description  Members book for themselves; staff may book on behalf of member_id.
// @Tags         bookings
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body booking.CreateBookingRequest true "Booking"
// @Success      201 {object} booking.Booking
// @Failure      400 {object} api.ErrorResponse
// @Failure      402 {object} api.ErrorResponse
// @Failure      404 {object} api.ErrorResponse
// @Failure      409 {object} api.ErrorResponse
// @Router       /bookings [post]
func (h *Handler) Create(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}

	var req CreateBookingRequest
	if !api.BindAndValidate(c, &req) {
		return
	}

	b, err := h.service.Create(c.Request.Context(), actor, req)
	if err != nil {
		respondError(c, err, "Failed to create booking")
		return
	}
	c.JSON(http.StatusCreated, b)
}

// @Summary      Get a booking
// @Tags         bookings
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "Booking ID"
// @Success      200 {object} booking.BookingDetails
// @Failure      403 {object} api.ErrorResponse
// @Failure      404 {object} api.ErrorResponse
// @Router       /bookings/{id} [get]
func (h *Handler) Get(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	id, ok := bookingID(c)
	if !ok {
		return
	}

	d, err := h.service.Get(c.Request.Context(), actor, id)
	if err != nil {
		respondError(c, err, "Failed to fetch booking")
		return
	}
	c.JSON(http.StatusOK, d)
}

// @Summary      Cancel a booking
// @Description  Late cancellations of confirmed bookings are not refunded.
// @Tags         bookings
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "Booking ID"
// @Param        request body booking.CancelRequest false "Reason"
// @Success      200 {object} booking.CancelResult
// @Failure      403 {object} api.ErrorResponse
// @Failure      404 {object} api.ErrorResponse
// @Failure      409 {object} api.ErrorResponse
// @Router       /bookings/{id}/cancel [post]
func (h *Handler) Cancel(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	id, ok := bookingID(c)
	if !ok {
		return
	}

	var req CancelRequest
	if c.Request.ContentLength > 0 && !api.BindAndValidate(c, &req) {
		return
	}

	res, err := h.service.Cancel(c.Request.Context(), actor, id, req.Reason)
	if err != nil {
		respondError(c, err, "Failed to cancel booking")
		return
	}
	c.JSON(http.StatusOK, res)
}

// @Summary      Check in a booking
// @Tags         bookings
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "Booking ID"
// @Success      200 {object} booking.Booking
// @Failure      409 {object} api.ErrorResponse
// @Router       /bookings/{id}/check-in [post]
func (h *Handler) CheckIn(c *gin.Context) {
	id, ok := bookingID(c)
	if !ok {
		return
	}

	b, err := h.service.CheckIn(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, "Failed to check in")
		return
	}
	c.JSON(http.StatusOK, b)
}

// @Summary      Mark a booking as no-show
// @Tags         bookings
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "Booking ID"
// @Success      200 {object} booking.Booking
// @Failure      409 {object} api.ErrorResponse
// @Router       /bookings/{id}/no-show [post]
func (h *Handler) MarkNoShow(c *gin.Context) {
	id, ok := bookingID(c)
	if !ok {
		return
	}

	b, err := h.service.MarkNoShow(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, "Failed to mark no-show")
		return
	}
	c.JSON(http.StatusOK, b)
}

// @Summary      Delete a booking
// @Description  Only cancelled and no-show bookings can be deleted.
// @Tags         bookings
// @Security     BearerAuth
// @Param        id path int true "Booking ID"
// @Success      204
// @Failure      409 {object} api.ErrorResponse
// @Router       /bookings/{id} [delete]
func (h *Handler) Delete(c *gin.Context) {
	id, ok := bookingID(c)
	if !ok {
		return
	}

	if err := h.service.Delete(c.Request.Context(), id); err != nil {
		respondError(c, err, "Failed to delete booking")
		return
	}
	c.Status(http.StatusNoContent)
}

// @Summary      Book several members into a session
// @Tags         bookings
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body booking.BulkCreateRequest true "Members"
// @Success      200 {object} booking.BulkResponse
// @Router       /admin/bookings/bulk [post]
func (h *Handler) BulkCreate(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}

	var req BulkCreateRequest
	if !api.BindAndValidate(c, &req) {
		return
	}
	c.JSON(http.StatusOK, h.service.BulkCreate(c.Request.Context(), actor, req))
}

// @Summary      Cancel several bookings
// @Tags         bookings
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body booking.BulkIDsRequest true "Bookings"
// @Success      200 {object} booking.BulkResponse
// @Router       /admin/bookings/bulk-cancel [post]
func (h *Handler) BulkCancel(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}

	var req BulkIDsRequest
	if !api.BindAndValidate(c, &req) {
		return
	}
	c.JSON(http.StatusOK, h.service.BulkCancel(c.Request.Context(), actor, req))
}

// @Summary      Check in several bookings
// @Tags         bookings
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body booking.BulkIDsRequest true "Bookings"
// @Success      200 {object} booking.BulkResponse
// @Router       /admin/bookings/bulk-check-in [post]
func (h *Handler) BulkCheckIn(c *gin.Context) {
	var req BulkIDsRequest
	if !api.BindAndValidate(c, &req) {
		return
	}
	c.JSON(http.StatusOK, h.service.BulkCheckIn(c.Request.Context(), req))
}

// @Summary      List bookings of a session
// @Tags         sessions
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "Session ID"
// @Success      200 {array} booking.BookingDetails
// @Failure      404 {object} api.ErrorResponse
// @Router       /sessions/{id}/bookings [get]
func (h *Handler) ListBySession(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}

	list, err := h.service.ListBySession(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, "Failed to fetch bookings")
		return
	}
	c.JSON(http.StatusOK, list)
}

// @Summary      Waitlist of a session
// @Tags         sessions
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "Session ID"
// @Success      200 {array} booking.BookingDetails
// @Failure      404 {object} api.ErrorResponse
// @Router       /sessions/{id}/waitlist [get]
func (h *Handler) Waitlist(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}

	list, err := h.service.Waitlist(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, "Failed to fetch waitlist")
		return
	}
	c.JSON(http.StatusOK, list)
}

// @Summary      Payment options for a session
// @Description  Staff may ask on behalf of member_id.
// @Tags         sessions
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "Session ID"
// @Param        member_id query int false "Member ID (staff only)"
// @Success      200 {object} booking.PaymentOptions
// @Failure      404 {object} api.ErrorResponse
// @Router       /sessions/{id}/payment-options [get]
func (h *Handler) PaymentOptions(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	id, ok := sessionID(c)
	if !ok {
		return
	}

	memberID := actor.MemberID
	if v := c.Query("member_id"); v != "" && actor.Staff {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "Invalid member_id"})
			return
		}
		memberID = parsed
	}
	if memberID == 0 {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: ErrMemberRequired.Error()})
		return
	}

	opts, err := h.service.PaymentOptions(c.Request.Context(), memberID, id)
	if err != nil {
		respondError(c, err, "Failed to resolve payment options")
		return
	}
	c.JSON(http.StatusOK, opts)
}

// @Summary      List a member's bookings
// @Tags         bookings
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "Member ID"
// @Param        scope query string false "upcoming or past"
// @Param        page query int false "Page (1-based)"
// @Param        size query int false "Page size"
// @Success      200 {object} api.Page[booking.BookingDetails]
// @Failure      403 {object} api.ErrorResponse
// @Router       /members/{id}/bookings [get]
func (h *Handler) ListByMember(c *gin.Context) {
	memberID, ok := auth.MemberScope(c, "id")
	if !ok {
		c.JSON(http.StatusForbidden, api.ErrorResponse{Error: "Forbidden"})
		return
	}

	scope := MemberScope(c.Query("scope"))
	if scope != ScopeAll && scope != ScopeUpcoming && scope != ScopePast {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "scope must be 'upcoming' or 'past'"})
		return
	}

	page, err := h.service.ListByMember(c.Request.Context(), memberID, scope, api.ParsePagination(c))
	if err != nil {
		respondError(c, err, "Failed to fetch bookings")
		return
	}
	c.JSON(http.StatusOK, page)
}

// @Summary      Cancel a session
// @Description  Cancels and refunds every confirmed and waitlisted booking.
// @Tags         sessions
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "Session ID"
// @Param        request body booking.CancelSessionRequest true "Reason"
// @Success      200 {object} booking.SessionResult
// @Failure      409 {object} api.ErrorResponse
// @Router       /sessions/{id}/cancel [post]
func (h *Handler) CancelSession(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}

	var req CancelSessionRequest
	if !api.BindAndValidate(c, &req) {
		return
	}

	res, err := h.service.CancelSession(c.Request.Context(), id, req.Reason)
	if err != nil {
		respondError(c, err, "Failed to cancel session")
		return
	}
	c.JSON(http.StatusOK, res)
}

// @Summary      Complete a session
// @Tags         sessions
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "Session ID"
// @Success      200 {object} booking.SessionResult
// @Failure      409 {object} api.ErrorResponse
// @Router       /sessions/{id}/complete [post]
func (h *Handler) CompleteSession(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}

	res, err := h.service.CompleteSession(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, "Failed to complete session")
		return
	}
	c.JSON(http.StatusOK, res)
}

// @Summary      Process no-shows of a completed session
// @Tags         sessions
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "Session ID"
// @Success      200 {object} booking.SessionResult
// @Failure      409 {object} api.ErrorResponse
// @Router       /sessions/{id}/no-shows [post]
func (h *Handler) ProcessNoShows(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}

	res, err := h.service.ProcessNoShows(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, "Failed to process no-shows")
		return
	}
	c.JSON(http.StatusOK, res)
}

// @Summary      Booking analytics
// @Description  Returns aggregated booking counts. Admin only.
// @Tags         bookings
// @Security     BearerAuth
// @Produce      json
// @Param        group_by  query     string  false  "Group by dimension (day or class)"
// @Param        from      query     string  true   "Start datetime (RFC3339)"
// @Param        to        query     string  true   "End datetime (RFC3339)"
// @Success      200       {object}  map[string]interface{}
// @Failure      400       {object}  api.ErrorResponse
// @Router       /admin/analytics/bookings [get]
func (h *Handler) Stats(c *gin.Context) {
	groupBy := StatsGroup(c.DefaultQuery("group_by", string(GroupByDay)))
	fromStr := c.Query("from")
	toStr := c.Query("to")

	if fromStr == "" || toStr == "" {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "from and to query params are required"})
		return
	}

	from, err := time.Parse(time.RFC3339, fromStr)
	if err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "invalid from format, use RFC3339"})
		return
	}

	to, err := time.Parse(time.RFC3339, toStr)
	if err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "invalid to format, use RFC3339"})
		return
	}

	stats, err := h.service.Stats(c.Request.Context(), from, to, groupBy)
	if err != nil {
		respondError(c, err, "failed to fetch stats")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"group_by": groupBy,
		"from":     from,
		"to":       to,
		"data":     stats,
	})
}

func actorFrom(c *gin.Context) (Actor, bool) {
	userID, exists := auth.GetUserID(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, api.ErrorResponse{Error: "User not authenticated"})
		return Actor{}, false
	}
	memberID, _ := auth.GetMemberID(c)
	return Actor{UserID: userID, MemberID: memberID, Staff: auth.IsStaff(c)}, true
}

func bookingID(c *gin.Context) (int, bool) {
	id, ok := api.IDParam(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "Invalid booking ID"})
	}
	return id, ok
}

func sessionID(c *gin.Context) (int, bool) {
	id, ok := api.IDParam(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "Invalid session ID"})
	}
	return id, ok
}

func respondError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, ErrBookingNotFound), errors.Is(err, gymclass.ErrSessionNotFound),
		errors.Is(err, gymclass.ErrClassNotFound), errors.Is(err, member.ErrMemberNotFound),
		errors.Is(err, classpack.ErrBalanceNotFound):
		c.JSON(http.StatusNotFound, api.ErrorResponse{Error: err.Error()})
	case errors.Is(err, ErrNotBookingOwner), errors.Is(err, ErrComplimentaryStaffOnly):
		c.JSON(http.StatusForbidden, api.ErrorResponse{Error: err.Error()})
	case errors.Is(err, ErrSessionInPast), errors.Is(err, ErrOutsideBookingWindow),
		errors.Is(err, ErrInvalidPaymentSource), errors.Is(err, ErrPaymentSourceNotAccepted),
		errors.Is(err, ErrClassPackBalanceRequired), errors.Is(err, ErrDropInPriceMissing),
		errors.Is(err, ErrMemberRequired), errors.Is(err, ErrInvalidDateRange),
		errors.Is(err, ErrInvalidStatsGroup), errors.Is(err, classpack.ErrPackNotValidForClass):
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: err.Error()})
	case errors.Is(err, wallet.ErrInsufficientBalance), errors.Is(err, ErrMembershipRequired),
		errors.Is(err, membership.ErrNoActiveMembership), errors.Is(err, membership.ErrNoClassesRemaining),
		errors.Is(err, classpack.ErrNoCreditsRemaining), errors.Is(err, classpack.ErrNoCategoryCredits),
		errors.Is(err, classpack.ErrBalanceNotUsable):
		c.JSON(http.StatusPaymentRequired, api.ErrorResponse{Error: err.Error()})
	case errors.Is(err, ErrSessionNotBookable), errors.Is(err, ErrSessionFull),
		errors.Is(err, ErrAlreadyBooked), errors.Is(err, ErrOverlappingBooking),
		errors.Is(err, ErrInvalidBookingState), errors.Is(err, ErrMemberInactive),
		errors.Is(err, gymclass.ErrInvalidSessionState):
		c.JSON(http.StatusConflict, api.ErrorResponse{Error: err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: fallback})
	}
}
