package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smroczek2/camp-os-sub002/internal/domain"
	"github.com/smroczek2/camp-os-sub002/internal/dto"
	"github.com/smroczek2/camp-os-sub002/internal/service"
	"github.com/smroczek2/camp-os-sub002/pkg/response"
)

const (
	testSessionID = "7b7ad5c9-1d2e-4d5f-9c8b-3f2a1e0d9c8b"
	testChildID   = "8c8be6da-2e3f-4e6a-ad9c-4a3b2f1e0d9c"
)

type stubRegistrationService struct {
	CreateFn     func(ctx context.Context, actor service.Actor, req *dto.CreateRegistrationRequest) (*dto.RegistrationResponse, error)
	ConfirmFn    func(ctx context.Context, actor service.Actor, id string, req *dto.ConfirmPaymentRequest) (*dto.RegistrationResponse, error)
	CancelFn     func(ctx context.Context, actor service.Actor, id string) (*dto.RegistrationResponse, error)
	RefundFn     func(ctx context.Context, actor service.Actor, id string) (*dto.RegistrationResponse, error)
	GetFn        func(ctx context.Context, id string) (*dto.RegistrationResponse, error)
	GetEventsFn  func(ctx context.Context, id string) ([]*dto.EventResponse, error)
	ListByUserFn func(ctx context.Context, userID string, page, pageSize int) (*dto.PaginatedResponse, error)
}

func (s *stubRegistrationService) CreateRegistration(ctx context.Context, actor service.Actor, req *dto.CreateRegistrationRequest) (*dto.RegistrationResponse, error) {
	return s.CreateFn(ctx, actor, req)
}

func (s *stubRegistrationService) ConfirmPayment(ctx context.Context, actor service.Actor, id string, req *dto.ConfirmPaymentRequest) (*dto.RegistrationResponse, error) {
	return s.ConfirmFn(ctx, actor, id, req)
}

func (s *stubRegistrationService) CancelRegistration(ctx context.Context, actor service.Actor, id string) (*dto.RegistrationResponse, error) {
	return s.CancelFn(ctx, actor, id)
}

func (s *stubRegistrationService) RefundRegistration(ctx context.Context, actor service.Actor, id string) (*dto.RegistrationResponse, error) {
	return s.RefundFn(ctx, actor, id)
}

func (s *stubRegistrationService) GetRegistration(ctx context.Context, id string) (*dto.RegistrationResponse, error) {
	return s.GetFn(ctx, id)
}

func (s *stubRegistrationService) GetRegistrationEvents(ctx context.Context, id string) ([]*dto.EventResponse, error) {
	return s.GetEventsFn(ctx, id)
}

func (s *stubRegistrationService) ListUserRegistrations(ctx context.Context, userID string, page, pageSize int) (*dto.PaginatedResponse, error) {
	return s.ListByUserFn(ctx, userID, page, pageSize)
}

func setupRegistrationRouter(svc service.RegistrationService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewRegistrationHandler(svc)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("user_id", "user-1")
		c.Set("tenant_id", "tenant-1")
	})
	r.POST("/registrations", h.Create)
	r.POST("/registrations/:id/confirm", h.ConfirmPayment)
	r.POST("/registrations/:id/cancel", h.Cancel)
	r.POST("/registrations/:id/refund", h.Refund)
	r.GET("/registrations", h.ListMine)
	r.GET("/registrations/:id", h.Get)
	r.GET("/registrations/:id/events", h.GetEvents)
	return r
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body any) (*httptest.ResponseRecorder, *response.Response) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var resp response.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return w, &resp
}

func TestRegistrationHandler_Create(t *testing.T) {
	t.Run("created", func(t *testing.T) {
		svc := &stubRegistrationService{
			CreateFn: func(ctx context.Context, actor service.Actor, req *dto.CreateRegistrationRequest) (*dto.RegistrationResponse, error) {
				assert.Equal(t, "user-1", actor.ID)
				assert.Equal(t, testSessionID, req.SessionID)
				return &dto.RegistrationResponse{ID: "reg-1", Status: "pending"}, nil
			},
		}
		r := setupRegistrationRouter(svc)

		w, resp := doJSON(t, r, http.MethodPost, "/registrations",
			gin.H{"session_id": testSessionID, "child_id": testChildID})

		assert.Equal(t, http.StatusCreated, w.Code)
		assert.True(t, resp.Success)
	})

	t.Run("malformed session id", func(t *testing.T) {
		svc := &stubRegistrationService{}
		r := setupRegistrationRouter(svc)

		w, resp := doJSON(t, r, http.MethodPost, "/registrations",
			gin.H{"session_id": "not-a-uuid", "child_id": testChildID})

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.False(t, resp.Success)
	})

	t.Run("session not open maps to conflict", func(t *testing.T) {
		svc := &stubRegistrationService{
			CreateFn: func(ctx context.Context, actor service.Actor, req *dto.CreateRegistrationRequest) (*dto.RegistrationResponse, error) {
				return nil, domain.ErrSessionNotOpen
			},
		}
		r := setupRegistrationRouter(svc)

		w, resp := doJSON(t, r, http.MethodPost, "/registrations",
			gin.H{"session_id": testSessionID, "child_id": testChildID})

		assert.Equal(t, http.StatusConflict, w.Code)
		require.NotNil(t, resp.Error)
		assert.Equal(t, "SESSION_NOT_OPEN", resp.Error.Code)
	})
}

func TestRegistrationHandler_ConfirmPayment(t *testing.T) {
	t.Run("confirmed", func(t *testing.T) {
		svc := &stubRegistrationService{
			ConfirmFn: func(ctx context.Context, actor service.Actor, id string, req *dto.ConfirmPaymentRequest) (*dto.RegistrationResponse, error) {
				assert.Equal(t, "reg-1", id)
				assert.Equal(t, 120.0, req.Amount)
				return &dto.RegistrationResponse{ID: id, Status: "confirmed"}, nil
			},
		}
		r := setupRegistrationRouter(svc)

		w, resp := doJSON(t, r, http.MethodPost, "/registrations/reg-1/confirm",
			gin.H{"amount": 120.0})

		assert.Equal(t, http.StatusOK, w.Code)
		assert.True(t, resp.Success)
	})

	t.Run("session full maps to conflict with guidance", func(t *testing.T) {
		svc := &stubRegistrationService{
			ConfirmFn: func(ctx context.Context, actor service.Actor, id string, req *dto.ConfirmPaymentRequest) (*dto.RegistrationResponse, error) {
				return nil, domain.ErrSessionFull
			},
		}
		r := setupRegistrationRouter(svc)

		w, resp := doJSON(t, r, http.MethodPost, "/registrations/reg-1/confirm",
			gin.H{"amount": 120.0})

		assert.Equal(t, http.StatusConflict, w.Code)
		require.NotNil(t, resp.Error)
		assert.Equal(t, "SESSION_FULL", resp.Error.Code)
		assert.Contains(t, resp.Error.Message, "waitlist")
	})

	t.Run("version conflict after retries maps to conflict", func(t *testing.T) {
		svc := &stubRegistrationService{
			ConfirmFn: func(ctx context.Context, actor service.Actor, id string, req *dto.ConfirmPaymentRequest) (*dto.RegistrationResponse, error) {
				return nil, domain.ErrVersionConflict
			},
		}
		r := setupRegistrationRouter(svc)

		w, resp := doJSON(t, r, http.MethodPost, "/registrations/reg-1/confirm",
			gin.H{"amount": 120.0})

		assert.Equal(t, http.StatusConflict, w.Code)
		require.NotNil(t, resp.Error)
		assert.Equal(t, "CONFLICT", resp.Error.Code)
	})

	t.Run("missing amount", func(t *testing.T) {
		svc := &stubRegistrationService{}
		r := setupRegistrationRouter(svc)

		w, _ := doJSON(t, r, http.MethodPost, "/registrations/reg-1/confirm", gin.H{})

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestRegistrationHandler_Cancel(t *testing.T) {
	t.Run("invalid transition maps to conflict", func(t *testing.T) {
		svc := &stubRegistrationService{
			CancelFn: func(ctx context.Context, actor service.Actor, id string) (*dto.RegistrationResponse, error) {
				return nil, domain.ErrInvalidStateTransition
			},
		}
		r := setupRegistrationRouter(svc)

		w, resp := doJSON(t, r, http.MethodPost, "/registrations/reg-1/cancel", nil)

		assert.Equal(t, http.StatusConflict, w.Code)
		require.NotNil(t, resp.Error)
		assert.Equal(t, "INVALID_STATE_TRANSITION", resp.Error.Code)
	})

	t.Run("unknown error maps to internal", func(t *testing.T) {
		svc := &stubRegistrationService{
			CancelFn: func(ctx context.Context, actor service.Actor, id string) (*dto.RegistrationResponse, error) {
				return nil, errors.New("connection reset")
			},
		}
		r := setupRegistrationRouter(svc)

		w, _ := doJSON(t, r, http.MethodPost, "/registrations/reg-1/cancel", nil)

		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})
}

func TestRegistrationHandler_Get(t *testing.T) {
	t.Run("not found", func(t *testing.T) {
		svc := &stubRegistrationService{
			GetFn: func(ctx context.Context, id string) (*dto.RegistrationResponse, error) {
				return nil, domain.ErrRegistrationNotFound
			},
		}
		r := setupRegistrationRouter(svc)

		w, resp := doJSON(t, r, http.MethodGet, "/registrations/missing", nil)

		assert.Equal(t, http.StatusNotFound, w.Code)
		require.NotNil(t, resp.Error)
		assert.Equal(t, "NOT_FOUND", resp.Error.Code)
	})
}

func TestRegistrationHandler_GetEvents(t *testing.T) {
	svc := &stubRegistrationService{
		GetEventsFn: func(ctx context.Context, id string) ([]*dto.EventResponse, error) {
			return []*dto.EventResponse{
				{Type: domain.EventRegistrationCreated, Version: 1},
				{Type: domain.EventRegistrationConfirmed, Version: 2},
			}, nil
		},
	}
	r := setupRegistrationRouter(svc)

	w, resp := doJSON(t, r, http.MethodGet, "/registrations/reg-1/events", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, resp.Success)
}

func TestRegistrationHandler_ListMine(t *testing.T) {
	svc := &stubRegistrationService{
		ListByUserFn: func(ctx context.Context, userID string, page, pageSize int) (*dto.PaginatedResponse, error) {
			assert.Equal(t, "user-1", userID)
			assert.Equal(t, 2, page)
			assert.Equal(t, 5, pageSize)
			return &dto.PaginatedResponse{Page: page, PageSize: pageSize}, nil
		},
	}
	r := setupRegistrationRouter(svc)

	w, resp := doJSON(t, r, http.MethodGet, "/registrations?page=2&page_size=5", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, resp.Success)
}
