package handler

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/smroczek2/camp-os-sub002/internal/service"
	"github.com/smroczek2/camp-os-sub002/pkg/response"
	"github.com/smroczek2/camp-os-sub002/pkg/telemetry"
)

// SessionHandler handles session HTTP requests
type SessionHandler struct {
	summaries service.SummaryService
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(summaries service.SummaryService) *SessionHandler {
	return &SessionHandler{summaries: summaries}
}

// GetCapacitySummary handles GET /sessions/:id/capacity
func (h *SessionHandler) GetCapacitySummary(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.session.capacity_summary")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	sessionID := c.Param("id")
	if sessionID == "" {
		span.SetStatus(codes.Error, "session id required")
		response.BadRequest(c, "session id required")
		return
	}

	span.SetAttributes(attribute.String("session_id", sessionID))

	result, err := h.summaries.GetSessionCapacitySummary(ctx, sessionID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		handleError(c, err)
		return
	}

	span.SetStatus(codes.Ok, "")
	response.Success(c, result)
}
