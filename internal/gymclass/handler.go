package gymclass

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"classbook/internal/api"
	"classbook/internal/storage"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

// @Summary      Create a class category
// @Tags         classes
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body gymclass.CreateCategoryRequest true "Category"
// @Success      201 {object} gymclass.Category
// @Failure      409 {object} api.ErrorResponse
// @Router       /categories [post]
func (h *Handler) CreateCategory(c *gin.Context) {
	var req CreateCategoryRequest
	if !api.BindAndValidate(c, &req) {
		return
	}

	cat, err := h.service.CreateCategory(c.Request.Context(), req)
	if err != nil {
		respondError(c, err, "Failed to create category")
		return
	}

	c.JSON(http.StatusCreated, cat)
}

// @Summary      List class categories
// @Tags         classes
// @Produce      json
// @Success      200 {array} gymclass.Category
// @Router       /categories [get]
func (h *Handler) ListCategories(c *gin.Context) {
	list, err := h.service.ListCategories(c.Request.Context())
	if err != nil {
		respondError(c, err, "Failed to fetch categories")
		return
	}
	c.JSON(http.StatusOK, list)
}

// @Summary      Create a class
// @Tags         classes
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body gymclass.CreateClassRequest true "Class definition"
// @Success      201 {object} gymclass.GymClass
// @Failure      400 {object} api.ErrorResponse
// @Router       /classes [post]
func (h *Handler) CreateClass(c *gin.Context) {
	var req CreateClassRequest
	if !api.BindAndValidate(c, &req) {
		return
	}

	g, err := h.service.CreateClass(c.Request.Context(), req)
	if err != nil {
		respondError(c, err, "Failed to create class")
		return
	}

	c.JSON(http.StatusCreated, g)
}

// @Summary      List classes
// @Tags         classes
// @Produce      json
// @Param        status query string false "ACTIVE, INACTIVE or ARCHIVED"
// @Success      200 {array} gymclass.GymClass
// @Router       /classes [get]
func (h *Handler) ListClasses(c *gin.Context) {
	list, err := h.service.ListClasses(c.Request.Context(), ClassStatus(c.Query("status")))
	if err != nil {
		respondError(c, err, "Failed to fetch classes")
		return
	}
	c.JSON(http.StatusOK, list)
}

// @Summary      Get a class
// @Tags         classes
// @Produce      json
// @Param        id path int true "Class ID"
// @Success      200 {object} gymclass.GymClass
// @Failure      404 {object} api.ErrorResponse
// @Router       /classes/{id} [get]
func (h *Handler) GetClass(c *gin.Context) {
	id, ok := classID(c)
	if !ok {
		return
	}

	g, err := h.service.GetClass(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, "Failed to fetch class")
		return
	}
	c.JSON(http.StatusOK, g)
}

// @Summary      Change class capacity
// @Description  Applies to sessions created afterwards.
// @Tags         classes
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "Class ID"
// @Param        request body gymclass.UpdateCapacityRequest true "Capacity"
// @Success      200 {object} gymclass.GymClass
// @Router       /classes/{id}/capacity [patch]
func (h *Handler) UpdateCapacity(c *gin.Context) {
	id, ok := classID(c)
	if !ok {
		return
	}

	var req UpdateCapacityRequest
	if !api.BindAndValidate(c, &req) {
		return
	}

	g, err := h.service.UpdateCapacity(c.Request.Context(), id, req.MaxCapacity)
	if err != nil {
		respondError(c, err, "Failed to update class")
		return
	}
	c.JSON(http.StatusOK, g)
}

// @Summary      Activate a class
// @Tags         classes
// @Security     BearerAuth
// @Param        id path int true "Class ID"
// @Success      200 {object} gymclass.GymClass
// @Router       /classes/{id}/activate [post]
func (h *Handler) Activate(c *gin.Context) {
	h.changeStatus(c, h.service.Activate)
}

// @Summary      Deactivate a class
// @Tags         classes
// @Security     BearerAuth
// @Param        id path int true "Class ID"
// @Success      200 {object} gymclass.GymClass
// @Router       /classes/{id}/deactivate [post]
func (h *Handler) Deactivate(c *gin.Context) {
	h.changeStatus(c, h.service.Deactivate)
}

// @Summary      Archive a class
// @Tags         classes
// @Security     BearerAuth
// @Param        id path int true "Class ID"
// @Success      200 {object} gymclass.GymClass
// @Router       /classes/{id}/archive [post]
func (h *Handler) Archive(c *gin.Context) {
	h.changeStatus(c, h.service.Archive)
}

func (h *Handler) changeStatus(c *gin.Context, fn func(ctx context.Context, id int) (*GymClass, error)) {
	id, ok := classID(c)
	if !ok {
		return
	}

	g, err := fn(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, "Failed to update class")
		return
	}
	c.JSON(http.StatusOK, g)
}

// @Summary      Request a class image upload URL
// @Tags         classes
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "Class ID"
// @Param        request body gymclass.ImageUploadRequest true "Content type"
// @Success      200 {object} gymclass.ImageUploadResponse
// @Failure      503 {object} api.ErrorResponse
// @Router       /classes/{id}/image [post]
func (h *Handler) RequestImageUpload(c *gin.Context) {
	id, ok := classID(c)
	if !ok {
		return
	}

	var req ImageUploadRequest
	if !api.BindAndValidate(c, &req) {
		return
	}

	resp, err := h.service.RequestImageUpload(c.Request.Context(), id, req.ContentType)
	if err != nil {
		respondError(c, err, "Failed to prepare upload")
		return
	}
	c.JSON(http.StatusOK, resp)
}

// @Summary      Add a weekly schedule
// @Tags         schedules
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "Class ID"
// @Param        request body gymclass.CreateScheduleRequest true "Schedule"
// @Success      201 {object} gymclass.Schedule
// @Router       /classes/{id}/schedules [post]
func (h *Handler) CreateSchedule(c *gin.Context) {
	id, ok := classID(c)
	if !ok {
		return
	}

	var req CreateScheduleRequest
	if !api.BindAndValidate(c, &req) {
		return
	}

	s, err := h.service.CreateSchedule(c.Request.Context(), id, req)
	if err != nil {
		respondError(c, err, "Failed to create schedule")
		return
	}
	c.JSON(http.StatusCreated, s)
}

// @Summary      List schedules of a class
// @Tags         schedules
// @Produce      json
// @Param        id path int true "Class ID"
// @Success      200 {array} gymclass.Schedule
// @Router       /classes/{id}/schedules [get]
func (h *Handler) ListSchedules(c *gin.Context) {
	id, ok := classID(c)
	if !ok {
		return
	}

	list, err := h.service.ListSchedules(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, "Failed to fetch schedules")
		return
	}
	c.JSON(http.StatusOK, list)
}

// @Summary      Deactivate a schedule
// @Tags         schedules
// @Security     BearerAuth
// @Param        scheduleID path int true "Schedule ID"
// @Success      200 {object} api.MessageResponse
// @Router       /schedules/{scheduleID}/deactivate [post]
func (h *Handler) DeactivateSchedule(c *gin.Context) {
	id, ok := api.IDParam(c, "scheduleID")
	if !ok {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "Invalid schedule ID"})
		return
	}

	if err := h.service.DeactivateSchedule(c.Request.Context(), id); err != nil {
		respondError(c, err, "Failed to deactivate schedule")
		return
	}
	c.JSON(http.StatusOK, api.MessageResponse{Message: "schedule deactivated"})
}

// @Summary      Create a one-off session
// @Tags         sessions
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body gymclass.CreateSessionRequest true "Session"
// @Success      201 {object} gymclass.Session
// @Failure      409 {object} api.ErrorResponse
// @Router       /sessions [post]
func (h *Handler) CreateSession(c *gin.Context) {
	var req CreateSessionRequest
	if !api.BindAndValidate(c, &req) {
		return
	}

	s, err := h.service.CreateSession(c.Request.Context(), req)
	if err != nil {
		respondError(c, err, "Failed to create session")
		return
	}
	c.JSON(http.StatusCreated, s)
}

// @Summary      List sessions
// @Tags         sessions
// @Produce      json
// @Param        from query string false "RFC3339 lower bound"
// @Param        to query string false "RFC3339 upper bound"
// @Param        class_id query int false "Class ID"
// @Param        status query string false "Session status"
// @Success      200 {array} gymclass.Session
// @Router       /sessions [get]
func (h *Handler) ListSessions(c *gin.Context) {
	var f SessionFilter

	if v := c.Query("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "Invalid from"})
			return
		}
		f.From = t
	}
	if v := c.Query("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "Invalid to"})
			return
		}
		f.To = t
	}
	if v := c.Query("class_id"); v != "" {
		id, err := strconv.Atoi(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "Invalid class_id"})
			return
		}
		f.GymClassID = &id
	}
	f.Status = SessionStatus(c.Query("status"))

	list, err := h.service.ListSessions(c.Request.Context(), f)
	if err != nil {
		respondError(c, err, "Failed to fetch sessions")
		return
	}
	c.JSON(http.StatusOK, list)
}

// @Summary      Get a session
// @Tags         sessions
// @Produce      json
// @Param        id path int true "Session ID"
// @Success      200 {object} gymclass.Session
// @Failure      404 {object} api.ErrorResponse
// @Router       /sessions/{id} [get]
func (h *Handler) GetSession(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}

	s, err := h.service.GetSession(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, "Failed to fetch session")
		return
	}
	c.JSON(http.StatusOK, s)
}

// @Summary      Start a session
// @Tags         sessions
// @Security     BearerAuth
// @Param        id path int true "Session ID"
// @Success      200 {object} gymclass.Session
// @Failure      409 {object} api.ErrorResponse
// @Router       /sessions/{id}/start [post]
func (h *Handler) StartSession(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}

	s, err := h.service.StartSession(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, "Failed to start session")
		return
	}
	c.JSON(http.StatusOK, s)
}

// @Summary      Delete a session
// @Description  Only sessions without bookings can be deleted.
// @Tags         sessions
// @Security     BearerAuth
// @Param        id path int true "Session ID"
// @Success      204
// @Failure      409 {object} api.ErrorResponse
// @Router       /sessions/{id} [delete]
func (h *Handler) DeleteSession(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}

	if err := h.service.DeleteSession(c.Request.Context(), id); err != nil {
		respondError(c, err, "Failed to delete session")
		return
	}
	c.Status(http.StatusNoContent)
}

// @Summary      Generate sessions from schedules
// @Tags         sessions
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body gymclass.GenerateSessionsRequest true "Date range (YYYY-MM-DD)"
// @Success      200 {object} gymclass.GenerateSessionsResponse
// @Router       /admin/sessions/generate [post]
func (h *Handler) GenerateSessions(c *gin.Context) {
	var req GenerateSessionsRequest
	if !api.BindAndValidate(c, &req) {
		return
	}

	from, err := time.Parse(dateLayout, req.From)
	if err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "Invalid from date"})
		return
	}
	to, err := time.Parse(dateLayout, req.To)
	if err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "Invalid to date"})
		return
	}

	created, err := h.service.GenerateSessions(c.Request.Context(), from, to, req.GymClassID)
	if err != nil {
		respondError(c, err, "Failed to generate sessions")
		return
	}
	c.JSON(http.StatusOK, GenerateSessionsResponse{Created: len(created), Sessions: created})
}

func classID(c *gin.Context) (int, bool) {
	id, ok := api.IDParam(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "Invalid class ID"})
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
	case errors.Is(err, ErrClassNotFound), errors.Is(err, ErrScheduleNotFound), errors.Is(err, ErrSessionNotFound):
		c.JSON(http.StatusNotFound, api.ErrorResponse{Error: err.Error()})
	case errors.Is(err, ErrDropInPriceRequired), errors.Is(err, ErrInvalidSchedule),
		errors.Is(err, ErrInvalidSession), errors.Is(err, ErrInvalidDateRange),
		errors.Is(err, storage.ErrUnsupportedContentType):
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: err.Error()})
	case errors.Is(err, ErrCategoryExists), errors.Is(err, ErrSessionExists), errors.Is(err, ErrClassArchived),
		errors.Is(err, ErrInvalidClassState), errors.Is(err, ErrClassInactive), errors.Is(err, ErrInvalidSessionState),
		errors.Is(err, ErrSessionHasBookings), errors.Is(err, ErrTrainerConflict):
		c.JSON(http.StatusConflict, api.ErrorResponse{Error: err.Error()})
	case errors.Is(err, ErrStorageDisabled):
		c.JSON(http.StatusServiceUnavailable, api.ErrorResponse{Error: err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: fallback})
	}
}
