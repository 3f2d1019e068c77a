package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/smroczek2/camp-os-sub002/internal/domain"
	"github.com/smroczek2/camp-os-sub002/internal/service"
	"github.com/smroczek2/camp-os-sub002/pkg/response"
)

// actorFromContext builds the audit actor from claims set by the actor
// middleware
func actorFromContext(c *gin.Context) service.Actor {
	return service.Actor{
		ID:       c.GetString("user_id"),
		TenantID: c.GetString("tenant_id"),
	}
}

// handleError maps domain errors to HTTP responses. Capacity and offer
// errors carry actionable messages so the caller knows the next step.
func handleError(c *gin.Context, err error) {
	switch {
	case domain.IsNotFoundError(err):
		response.Error(c, http.StatusNotFound, "NOT_FOUND", err.Error())
	case domain.IsValidationError(err):
		response.Error(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
	case errors.Is(err, domain.ErrSessionFull):
		response.ErrorWithDetails(c, http.StatusConflict, "SESSION_FULL",
			"session full - join the waitlist", err.Error())
	case errors.Is(err, domain.ErrSeatsAvailable):
		response.ErrorWithDetails(c, http.StatusConflict, "SEATS_AVAILABLE",
			"session still has free seats - register directly", err.Error())
	case errors.Is(err, domain.ErrSessionNotOpen):
		response.Error(c, http.StatusConflict, "SESSION_NOT_OPEN", err.Error())
	case errors.Is(err, domain.ErrOfferExpired):
		response.ErrorWithDetails(c, http.StatusGone, "OFFER_EXPIRED",
			"this offer has expired", err.Error())
	case errors.Is(err, domain.ErrAlreadyWaitlisted):
		response.Error(c, http.StatusConflict, "ALREADY_WAITLISTED", err.Error())
	case errors.Is(err, domain.ErrInvalidStateTransition):
		response.Error(c, http.StatusConflict, "INVALID_STATE_TRANSITION", err.Error())
	case errors.Is(err, domain.ErrVersionConflict):
		response.ErrorWithDetails(c, http.StatusConflict, "CONFLICT",
			"please retry", err.Error())
	default:
		response.InternalError(c, err)
	}
}
