package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/smroczek2/camp-os-sub002/internal/dto"
	"github.com/smroczek2/camp-os-sub002/internal/service"
	"github.com/smroczek2/camp-os-sub002/pkg/response"
	"github.com/smroczek2/camp-os-sub002/pkg/telemetry"
)

// RegistrationHandler handles registration HTTP requests
type RegistrationHandler struct {
	registrations service.RegistrationService
}

// NewRegistrationHandler creates a new registration handler
func NewRegistrationHandler(registrations service.RegistrationService) *RegistrationHandler {
	return &RegistrationHandler{registrations: registrations}
}

// Create handles POST /registrations
func (h *RegistrationHandler) Create(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.registration.create")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	var req dto.CreateRegistrationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid request")
		response.BadRequest(c, err.Error())
		return
	}

	actor := actorFromContext(c)
	span.SetAttributes(
		attribute.String("user_id", actor.ID),
		attribute.String("session_id", req.SessionID),
	)

	result, err := h.registrations.CreateRegistration(ctx, actor, &req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		handleError(c, err)
		return
	}

	span.SetAttributes(attribute.String("registration_id", result.ID))
	span.SetStatus(codes.Ok, "")
	response.Created(c, result)
}

// ConfirmPayment handles POST /registrations/:id/confirm
func (h *RegistrationHandler) ConfirmPayment(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.registration.confirm_payment")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	registrationID := c.Param("id")
	if registrationID == "" {
		span.SetStatus(codes.Error, "registration id required")
		response.BadRequest(c, "registration id required")
		return
	}

	var req dto.ConfirmPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid request")
		response.BadRequest(c, err.Error())
		return
	}

	span.SetAttributes(
		attribute.String("registration_id", registrationID),
		attribute.Float64("amount", req.Amount),
	)

	result, err := h.registrations.ConfirmPayment(ctx, actorFromContext(c), registrationID, &req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		handleError(c, err)
		return
	}

	span.SetStatus(codes.Ok, "")
	response.Success(c, result)
}

// Cancel handles POST /registrations/:id/cancel
func (h *RegistrationHandler) Cancel(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.registration.cancel")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	registrationID := c.Param("id")
	if registrationID == "" {
		span.SetStatus(codes.Error, "registration id required")
		response.BadRequest(c, "registration id required")
		return
	}

	span.SetAttributes(attribute.String("registration_id", registrationID))

	result, err := h.registrations.CancelRegistration(ctx, actorFromContext(c), registrationID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		handleError(c, err)
		return
	}

	span.SetStatus(codes.Ok, "")
	response.Success(c, result)
}

// Refund handles POST /registrations/:id/refund
func (h *RegistrationHandler) Refund(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.registration.refund")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	registrationID := c.Param("id")
	if registrationID == "" {
		span.SetStatus(codes.Error, "registration id required")
		response.BadRequest(c, "registration id required")
		return
	}

	span.SetAttributes(attribute.String("registration_id", registrationID))

	result, err := h.registrations.RefundRegistration(ctx, actorFromContext(c), registrationID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		handleError(c, err)
		return
	}

	span.SetStatus(codes.Ok, "")
	response.Success(c, result)
}

// Get handles GET /registrations/:id
func (h *RegistrationHandler) Get(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.registration.get")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	registrationID := c.Param("id")
	if registrationID == "" {
		span.SetStatus(codes.Error, "registration id required")
		response.BadRequest(c, "registration id required")
		return
	}

	result, err := h.registrations.GetRegistration(ctx, registrationID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		handleError(c, err)
		return
	}

	span.SetStatus(codes.Ok, "")
	response.Success(c, result)
}

// GetEvents handles GET /registrations/:id/events
func (h *RegistrationHandler) GetEvents(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.registration.get_events")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	registrationID := c.Param("id")
	if registrationID == "" {
		span.SetStatus(codes.Error, "registration id required")
		response.BadRequest(c, "registration id required")
		return
	}

	events, err := h.registrations.GetRegistrationEvents(ctx, registrationID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		handleError(c, err)
		return
	}

	span.SetAttributes(attribute.Int("event_count", len(events)))
	span.SetStatus(codes.Ok, "")
	response.Success(c, events)
}

// ListMine handles GET /registrations
func (h *RegistrationHandler) ListMine(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.registration.list_mine")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	actor := actorFromContext(c)
	result, err := h.registrations.ListUserRegistrations(ctx, actor.ID, page, pageSize)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		handleError(c, err)
		return
	}

	span.SetStatus(codes.Ok, "")
	response.Success(c, result)
}
