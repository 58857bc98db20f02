package http

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"prep-service/internal/client"
	"prep-service/internal/http/middleware"
	"prep-service/internal/model"
	"prep-service/internal/service"
)

const (
	multipartOverhead = 1 << 20
	multipartMemory   = 32 << 20
)

type Handler struct {
	preparationService *service.PreparationService
	timeClockService   *service.TimeClockService
	maxPhotoBytes      int64
	log                zerolog.Logger
}

func NewHandler(
	preparationService *service.PreparationService,
	timeClockService *service.TimeClockService,
	maxPhotoBytes int64,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		preparationService: preparationService,
		timeClockService:   timeClockService,
		maxPhotoBytes:      maxPhotoBytes,
		log:                log,
	}
}

func (h *Handler) Register(r *gin.Engine, authMiddleware gin.HandlerFunc, extra ...gin.HandlerFunc) {
	protected := r.Group("/")
	protected.Use(authMiddleware)
	protected.Use(extra...)
	protected.Use(middleware.Agency())

	protected.GET("/step-definitions", h.listStepDefinitions)

	preparer := protected.Group("/preparer")
	preparer.Use(middleware.RequireRole(model.RolePreparer))
	{
		preparer.GET("/preparations/active", h.getActivePreparation)
		preparer.POST("/preparations", h.startPreparation)
		preparer.GET("/preparations/:id", h.getPreparation)
		preparer.POST("/preparations/:id/steps/:step/capture", h.openCapture)
		preparer.DELETE("/preparations/:id/capture", h.cancelCapture)
		preparer.POST("/preparations/:id/steps", h.completeStep)
		preparer.POST("/preparations/:id/complete", h.completePreparation)
		preparer.POST("/preparations/:id/cancel", h.cancelPreparation)
		// Pointage
		preparer.GET("/timesheet/today", h.getToday)
		preparer.POST("/timesheet/clock", h.clock)
	}

	admin := protected.Group("/admin")
	admin.Use(middleware.RequireRole(model.RoleAdmin))
	{
		admin.GET("/preparations/:id", h.getPreparation)
		admin.PUT("/preparations/:id/steps", h.editSteps)
		admin.GET("/preparations/:id/step-edits", h.listStepEdits)
		admin.GET("/step-definitions", h.listStepDefinitions)
	}
}

func (h *Handler) listStepDefinitions(c *gin.Context) {
	c.JSON(http.StatusOK, successResponse(h.preparationService.StepDefinitions()))
}

func (h *Handler) getActivePreparation(c *gin.Context) {
	session, ok := middleware.MustSession(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, errorResponse("missing principal", false))
		return
	}

	view, err := h.preparationService.Active(c.Request.Context(), session)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse(view))
}

func (h *Handler) startPreparation(c *gin.Context) {
	session, ok := middleware.MustSession(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, errorResponse("missing principal", false))
		return
	}

	var req struct {
		VehicleID string `json:"vehicleId" binding:"required"`
		Notes     string `json:"notes"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error(), false))
		return
	}

	view, err := h.preparationService.Start(c.Request.Context(), session, req.VehicleID, req.Notes)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, successResponse(view))
}

func (h *Handler) getPreparation(c *gin.Context) {
	session, ok := middleware.MustSession(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, errorResponse("missing principal", false))
		return
	}

	view, err := h.preparationService.Get(c.Request.Context(), session, c.Param("id"))
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse(view))
}

func (h *Handler) openCapture(c *gin.Context) {
	session, ok := middleware.MustSession(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, errorResponse("missing principal", false))
		return
	}

	step := model.StepKind(strings.TrimSpace(c.Param("step")))
	capture, err := h.preparationService.OpenCapture(c.Request.Context(), session, c.Param("id"), step)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, successResponse(capture))
}

func (h *Handler) cancelCapture(c *gin.Context) {
	session, ok := middleware.MustSession(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, errorResponse("missing principal", false))
		return
	}

	if err := h.preparationService.CancelCapture(session); err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse(nil))
}

func (h *Handler) completeStep(c *gin.Context) {
	session, ok := middleware.MustSession(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, errorResponse("missing principal", false))
		return
	}

	if h.maxPhotoBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxPhotoBytes+multipartOverhead)
	}

	if err := c.Request.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, errorResponse(
				fmt.Sprintf("The photo is too large, the limit is %s.", humanize.IBytes(uint64(h.maxPhotoBytes))), false))
			return
		}
		c.JSON(http.StatusBadRequest, errorResponse("invalid multipart form", false))
		return
	}

	upload := service.StepUpload{
		Step:  model.StepKind(strings.TrimSpace(c.PostForm("step"))),
		Notes: c.PostForm("notes"),
	}

	fileHeader, err := c.FormFile("photo")
	if err != nil && !errors.Is(err, http.ErrMissingFile) {
		c.JSON(http.StatusBadRequest, errorResponse("invalid multipart form", false))
		return
	}
	if fileHeader != nil {
		file, err := fileHeader.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, errorResponse("could not read the photo", false))
			return
		}
		upload.Photo = file
		upload.PhotoName = fileHeader.Filename
	}

	view, err := h.preparationService.CompleteStep(c.Request.Context(), session, c.Param("id"), upload)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse(view))
}

func (h *Handler) completePreparation(c *gin.Context) {
	session, ok := middleware.MustSession(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, errorResponse("missing principal", false))
		return
	}

	var req struct {
		FinalNotes string `json:"finalNotes"`
	}
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, errorResponse(err.Error(), false))
			return
		}
	}

	view, err := h.preparationService.Complete(c.Request.Context(), session, c.Param("id"), req.FinalNotes)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse(view))
}

func (h *Handler) cancelPreparation(c *gin.Context) {
	session, ok := middleware.MustSession(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, errorResponse("missing principal", false))
		return
	}

	var req struct {
		Reason string `json:"reason"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error(), false))
		return
	}

	view, err := h.preparationService.Cancel(c.Request.Context(), session, c.Param("id"), req.Reason)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse(view))
}

func (h *Handler) editSteps(c *gin.Context) {
	session, ok := middleware.MustSession(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, errorResponse("missing principal", false))
		return
	}

	var req model.AdminEditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error(), false))
		return
	}

	view, err := h.preparationService.EditSteps(c.Request.Context(), session, c.Param("id"), req)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse(view))
}

func (h *Handler) listStepEdits(c *gin.Context) {
	session, ok := middleware.MustSession(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, errorResponse("missing principal", false))
		return
	}

	edits, err := h.preparationService.StepEdits(c.Request.Context(), session, c.Param("id"))
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse(edits))
}

func (h *Handler) getToday(c *gin.Context) {
	session, ok := middleware.MustSession(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, errorResponse("missing principal", false))
		return
	}

	view, err := h.timeClockService.Today(c.Request.Context(), session)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse(view))
}

func (h *Handler) clock(c *gin.Context) {
	session, ok := middleware.MustSession(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, errorResponse("missing principal", false))
		return
	}

	var req struct {
		EventType     model.ClockEventType `json:"eventType" binding:"required"`
		CurrentStatus model.ClockStatus    `json:"currentStatus"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error(), false))
		return
	}

	view, err := h.timeClockService.Clock(c.Request.Context(), session, service.ClockRequest{
		EventType:     req.EventType,
		CurrentStatus: req.CurrentStatus,
	})
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse(view))
}

func (h *Handler) handleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrAgencyRequired):
		c.JSON(http.StatusBadRequest, errorResponse(err.Error(), false))
	case errors.Is(err, service.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, errorResponse(err.Error(), false))
	case errors.Is(err, service.ErrPermissionDenied):
		c.JSON(http.StatusForbidden, errorResponse(userMessage(err), false))
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, errorResponse(userMessage(err), false))
	case errors.Is(err, service.ErrConflict):
		c.JSON(http.StatusConflict, errorResponse(err.Error(), false))
	case errors.Is(err, service.ErrBackendUnavailable):
		h.log.Warn().Err(err).Str("path", c.FullPath()).Msg("backend unavailable")
		c.JSON(http.StatusServiceUnavailable, errorResponse("The service is temporarily unavailable. Please try again.", true))
	default:
		if be, ok := client.AsError(err); ok {
			status := be.Status
			if status < http.StatusBadRequest || status >= http.StatusInternalServerError {
				status = http.StatusUnprocessableEntity
			}
			c.JSON(status, errorResponse(be.Message, be.Retryable()))
			return
		}
		h.log.Error().Err(err).Str("path", c.FullPath()).Msg("handler error")
		c.JSON(http.StatusInternalServerError, errorResponse("internal error", false))
	}
}

func userMessage(err error) string {
	if be, ok := client.AsError(err); ok && be.Message != "" {
		return be.Message
	}
	return err.Error()
}

func successResponse(data interface{}) gin.H {
	return gin.H{
		"success": true,
		"data":    data,
	}
}

func errorResponse(message string, retryable bool) gin.H {
	return gin.H{
		"success":   false,
		"message":   message,
		"retryable": retryable,
	}
}
