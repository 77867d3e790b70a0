package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/lorekeep/lorekeep/internal/document/service"
	"github.com/lorekeep/lorekeep/internal/tokens"
	"github.com/lorekeep/lorekeep/pkg/middleware"
)

// auth stub that injects fixed claims
func stubAuth(tenantID string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.CtxClaims, &tokens.Claims{UserID: "user-1", TenantID: tenantID})
		c.Next()
	}
}

func TestDocumentHandler_CRUD(t *testing.T) {
	g := gin.New()
	svc := service.NewMemoryService()
	RegisterDocumentRoutes(g, svc, stubAuth("tenant-1"))

	// create
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/documents", strings.NewReader(`{"title":"Q3 notes","content":"hi","source":"notion","tags":["planning"]}`))
	req.Header.Set("Content-Type", "application/json")
	g.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code)
	var cr struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &cr))
	require.NotEmpty(t, cr.ID)

	// get
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/documents/"+cr.ID, nil)
	g.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "Q3 notes")

	// list
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/documents", nil)
	g.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "planning")

	// patch
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPatch, "/api/documents/"+cr.ID, strings.NewReader(`{"title":"Q3 notes (final)"}`))
	req.Header.Set("Content-Type", "application/json")
	g.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	// delete
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodDelete, "/api/documents/"+cr.ID, nil)
	g.ServeHTTP(w, req)
	require.Equal(t, http.StatusNoContent, w.Code)
}

func TestDocumentHandler_TenantIsolation(t *testing.T) {
	svc := service.NewMemoryService()

	g1 := gin.New()
	RegisterDocumentRoutes(g1, svc, stubAuth("tenant-1"))
	g2 := gin.New()
	RegisterDocumentRoutes(g2, svc, stubAuth("tenant-2"))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/documents", strings.NewReader(`{"title":"private"}`))
	req.Header.Set("Content-Type", "application/json")
	g1.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code)
	var cr struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &cr))

	// another tenant cannot see it
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/documents/"+cr.ID, nil)
	g2.ServeHTTP(w, req)
	require.Equal(t, http.StatusNotFound, w.Code)
}
