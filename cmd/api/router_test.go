package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	authdomain "crmboard/internal/auth/domain"
	authUsecase "crmboard/internal/auth/usecase"
	"crmboard/internal/board/domain"
	"crmboard/internal/board/dto"
	boardUsecase "crmboard/internal/board/usecase"
	"crmboard/internal/realtime"
	"crmboard/pkg/config"
	"crmboard/pkg/metrics"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubAuth struct {
	authUsecase.AuthUsecase
}

func (stubAuth) ValidateToken(token string) (*authdomain.User, error) {
	if token == "ok" {
		return &authdomain.User{ID: "u1", TenantID: "acme", Role: authdomain.RoleMember}, nil
	}
	return nil, authUsecase.ErrInvalidToken
}

func (stubAuth) ListMembers(tenantID string) ([]authdomain.User, error) {
	return []authdomain.User{{ID: "u1", TenantID: tenantID}}, nil
}

type stubBoard struct {
	boardUsecase.BoardUsecase
}

func (stubBoard) GetBoard(ctx context.Context, tenantID string, bt domain.BoardType) (*dto.BoardResponse, error) {
	return &dto.BoardResponse{Stages: []*domain.Stage{}, Cards: []*domain.Card{}}, nil
}

func newTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	cfg := &config.Config{CORSOrigin: "*"}
	return NewHandler(stubAuth{}, stubBoard{}, realtime.NewHub(), metrics.New(), cfg, zerolog.Nop()).Router()
}

func request(r http.Handler, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Origin", "http://app.example")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHealthAndCORS(t *testing.T) {
	r := newTestRouter()

	w := request(r, http.MethodGet, "/api/health", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
	assert.Equal(t, "http://app.example", w.Header().Get("Access-Control-Allow-Origin"))

	w = request(r, http.MethodOptions, "/api/tenants/acme/boards/funnel", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestProtectedRoutes(t *testing.T) {
	r := newTestRouter()

	assert.Equal(t, http.StatusUnauthorized, request(r, http.MethodGet, "/api/tenants/acme/boards/funnel", "").Code)
	assert.Equal(t, http.StatusOK, request(r, http.MethodGet, "/api/tenants/acme/boards/funnel", "ok").Code)
	assert.Equal(t, http.StatusForbidden, request(r, http.MethodGet, "/api/tenants/globex/members", "ok").Code)
	assert.Equal(t, http.StatusOK, request(r, http.MethodGet, "/api/tenants/acme/members", "ok").Code)
	assert.Equal(t, http.StatusForbidden, request(r, http.MethodPost, "/api/tenants/acme/members", "ok").Code)
	assert.Equal(t, http.StatusUnauthorized, request(r, http.MethodGet, "/api/realtime?table=cards&filter=tenant_id%3Deq.acme", "").Code)
}

func TestMetricsEndpoint(t *testing.T) {
	r := newTestRouter()
	request(r, http.MethodGet, "/api/health", "")

	w := request(r, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "crmboard_http_requests_total")
}
