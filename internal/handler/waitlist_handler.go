package handler

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/smroczek2/camp-os-sub002/internal/dto"
	"github.com/smroczek2/camp-os-sub002/internal/service"
	"github.com/smroczek2/camp-os-sub002/pkg/response"
	"github.com/smroczek2/camp-os-sub002/pkg/telemetry"
)

// WaitlistHandler handles waitlist HTTP requests
type WaitlistHandler struct {
	waitlist service.WaitlistService
}

// NewWaitlistHandler creates a new waitlist handler
func NewWaitlistHandler(waitlist service.WaitlistService) *WaitlistHandler {
	return &WaitlistHandler{waitlist: waitlist}
}

// Join handles POST /waitlist
func (h *WaitlistHandler) Join(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.waitlist.join")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	var req dto.JoinWaitlistRequest
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

	result, err := h.waitlist.JoinWaitlist(ctx, actor, &req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		handleError(c, err)
		return
	}

	span.SetAttributes(
		attribute.String("entry_id", result.ID),
		attribute.Int("position", result.Position),
	)
	span.SetStatus(codes.Ok, "")
	response.Created(c, result)
}

// Accept handles POST /waitlist/:id/accept
func (h *WaitlistHandler) Accept(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.waitlist.accept")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	entryID := c.Param("id")
	if entryID == "" {
		span.SetStatus(codes.Error, "waitlist entry id required")
		response.BadRequest(c, "waitlist entry id required")
		return
	}

	span.SetAttributes(attribute.String("entry_id", entryID))

	result, err := h.waitlist.AcceptOffer(ctx, actorFromContext(c), entryID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		handleError(c, err)
		return
	}

	span.SetAttributes(attribute.String("registration_id", result.Registration.ID))
	span.SetStatus(codes.Ok, "")
	response.Success(c, result)
}

// Leave handles POST /waitlist/:id/leave
func (h *WaitlistHandler) Leave(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.waitlist.leave")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	entryID := c.Param("id")
	if entryID == "" {
		span.SetStatus(codes.Error, "waitlist entry id required")
		response.BadRequest(c, "waitlist entry id required")
		return
	}

	span.SetAttributes(attribute.String("entry_id", entryID))

	result, err := h.waitlist.LeaveWaitlist(ctx, actorFromContext(c), entryID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		handleError(c, err)
		return
	}

	span.SetStatus(codes.Ok, "")
	response.Success(c, result)
}

// Get handles GET /waitlist/:id
func (h *WaitlistHandler) Get(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.waitlist.get")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	entryID := c.Param("id")
	if entryID == "" {
		span.SetStatus(codes.Error, "waitlist entry id required")
		response.BadRequest(c, "waitlist entry id required")
		return
	}

	result, err := h.waitlist.GetEntry(ctx, entryID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		handleError(c, err)
		return
	}

	span.SetStatus(codes.Ok, "")
	response.Success(c, result)
}

// GetPosition handles GET /sessions/:id/waitlist/position
func (h *WaitlistHandler) GetPosition(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.waitlist.get_position")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	sessionID := c.Param("id")
	childID := c.Query("child_id")
	if sessionID == "" || childID == "" {
		span.SetStatus(codes.Error, "session id and child_id required")
		response.BadRequest(c, "session id and child_id required")
		return
	}

	span.SetAttributes(
		attribute.String("session_id", sessionID),
		attribute.String("child_id", childID),
	)

	result, err := h.waitlist.GetPosition(ctx, sessionID, childID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		handleError(c, err)
		return
	}

	span.SetStatus(codes.Ok, "")
	response.Success(c, result)
}
