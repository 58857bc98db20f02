package http

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prep-service/internal/auth"
	"prep-service/internal/catalog"
	"prep-service/internal/client"
	"prep-service/internal/http/middleware"
	"prep-service/internal/service"
	"prep-service/internal/timeclock"
)

const testSecret = "handler-secret"

var pngPhoto = append([]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), make([]byte, 64)...)

type backendStub struct {
	mu       sync.Mutex
	requests []string
	routes   map[string]func(w http.ResponseWriter, r *http.Request)
}

func (b *backendStub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	key := r.Method + " " + r.URL.Path
	b.mu.Lock()
	b.requests = append(b.requests, key)
	route, ok := b.routes[key]
	b.mu.Unlock()
	if !ok {
		reply(w, http.StatusNotFound, false, nil, "Ressource introuvable")
		return
	}
	route(w, r)
}

func (b *backendStub) seen(method string) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []string
	for _, req := range b.requests {
		if strings.HasPrefix(req, method+" ") {
			out = append(out, req)
		}
	}
	return out
}

func reply(w http.ResponseWriter, status int, success bool, data any, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"success": success, "data": data, "message": message})
}

func preparationJSON(steps ...map[string]any) map[string]any {
	if steps == nil {
		steps = []map[string]any{}
	}
	return map[string]any{
		"id":          "p1",
		"user":        "u1",
		"agency":      "ag-1",
		"status":      "in_progress",
		"vehicle":     "veh-1",
		"vehicleData": map[string]any{"licensePlate": "AB-123-CD", "brand": "Renault", "model": "Clio"},
		"startTime":   time.Now().Add(-20 * time.Minute).Format(time.RFC3339),
		"steps":       steps,
	}
}

func newTestServer(t *testing.T, routes map[string]func(w http.ResponseWriter, r *http.Request)) (*gin.Engine, *backendStub) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	stub := &backendStub{routes: routes}
	srv := httptest.NewServer(stub)
	t.Cleanup(srv.Close)

	log := zerolog.Nop()
	backend := client.New(srv.URL, 5*time.Second)
	vehicles := service.NewVehicleService(backend, nil, log)
	preparations := service.NewPreparationService(backend, vehicles, nil, catalog.Default(), 1<<20, log)
	clock := service.NewTimeClockService(backend, timeclock.DefaultThresholds(), time.UTC, log)

	handler := NewHandler(preparations, clock, 1<<20, log)
	router := NewRouter(handler, middleware.Auth(auth.NewParser(testSecret)), "test")
	return router, stub
}

func bearer(t *testing.T, userID, role string) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, auth.Claims{
		UserID:   userID,
		Role:     role,
		Agencies: []string{"ag-1"},
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return "Bearer " + signed
}

type envelope struct {
	Success   bool            `json:"success"`
	Data      json.RawMessage `json:"data"`
	Message   string          `json:"message"`
	Retryable bool            `json:"retryable"`
}

func serve(t *testing.T, router *gin.Engine, req *http.Request) (int, envelope) {
	t.Helper()
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w.Code, env
}

func jsonRequest(method, path, authorization, agency string, body any) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", authorization)
	if agency != "" {
		req.Header.Set("X-Agency-ID", agency)
	}
	return req
}

func stepRequest(t *testing.T, authorization, step string, photo []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	require.NoError(t, w.WriteField("step", step))
	if photo != nil {
		part, err := w.CreateFormFile("photo", "evidence.png")
		require.NoError(t, err)
		_, err = part.Write(photo)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/preparer/preparations/p1/steps", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", authorization)
	return req
}

func TestClockWithoutAgencyMakesNoBackendCall(t *testing.T) {
	router, stub := newTestServer(t, nil)

	code, env := serve(t, router, jsonRequest(http.MethodPost, "/preparer/timesheet/clock", bearer(t, "u1", "preparateur"), "", map[string]string{
		"eventType": "clock_in",
	}))
	assert.Equal(t, http.StatusBadRequest, code)
	assert.False(t, env.Success)
	assert.Equal(t, service.ErrAgencyRequired.Error(), env.Message)
	assert.Empty(t, stub.seen(http.MethodPost))
	assert.Empty(t, stub.seen(http.MethodGet))
}

func TestClockRejectionIsShownVerbatim(t *testing.T) {
	router, _ := newTestServer(t, map[string]func(w http.ResponseWriter, r *http.Request){
		"POST /timesheets/clock": func(w http.ResponseWriter, r *http.Request) {
			reply(w, http.StatusBadRequest, false, nil, "Vous avez déjà pointé votre arrivée")
		},
	})

	code, env := serve(t, router, jsonRequest(http.MethodPost, "/preparer/timesheet/clock", bearer(t, "u1", "preparateur"), "ag-1", map[string]string{
		"eventType": "clock_in",
	}))
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Vous avez déjà pointé votre arrivée", env.Message)
	assert.False(t, env.Retryable)
}

func TestTransientBackendFailureIsRetryable(t *testing.T) {
	router, _ := newTestServer(t, map[string]func(w http.ResponseWriter, r *http.Request){
		"GET /timesheets/today": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		},
	})

	code, env := serve(t, router, jsonRequest(http.MethodGet, "/preparer/timesheet/today", bearer(t, "u1", "preparateur"), "ag-1", nil))
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.True(t, env.Retryable)
}

func TestStepWithoutPhotoIsRefusedBeforeUpload(t *testing.T) {
	router, stub := newTestServer(t, nil)

	code, env := serve(t, router, stepRequest(t, bearer(t, "u1", "preparateur"), "fuel", nil))
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, env.Message, "photo")
	assert.Empty(t, stub.seen(http.MethodPost))
	assert.Empty(t, stub.seen(http.MethodGet))
}

func TestStepUploadReturnsBackendView(t *testing.T) {
	router, stub := newTestServer(t, map[string]func(w http.ResponseWriter, r *http.Request){
		"GET /preparations/p1": func(w http.ResponseWriter, r *http.Request) {
			reply(w, http.StatusOK, true, preparationJSON(), "")
		},
		"POST /preparations/p1/step": func(w http.ResponseWriter, r *http.Request) {
			assert.NoError(t, r.ParseMultipartForm(1<<20))
			assert.Equal(t, "fuel", r.FormValue("step"))
			reply(w, http.StatusOK, true, preparationJSON(map[string]any{
				"step": "fuel", "completed": true, "photos": []map[string]any{{"url": "/uploads/fuel.png"}},
			}), "")
		},
	})

	code, env := serve(t, router, stepRequest(t, bearer(t, "u1", "preparateur"), "fuel", pngPhoto))
	require.Equal(t, http.StatusOK, code, env.Message)
	assert.Len(t, stub.seen(http.MethodPost), 1)

	var view service.PreparationView
	require.NoError(t, json.Unmarshal(env.Data, &view))
	assert.Equal(t, 1, view.Stats.CompletedSteps)
	assert.InDelta(t, 25.0, view.Stats.Progress, 0.001)
	assert.Equal(t, "AB-123-CD", view.Vehicle.LicensePlate)
	assert.Len(t, view.Steps, 4)
}

func TestAdminBlockedRemovalSendsNoUpdate(t *testing.T) {
	router, stub := newTestServer(t, map[string]func(w http.ResponseWriter, r *http.Request){
		"GET /preparations/p1": func(w http.ResponseWriter, r *http.Request) {
			reply(w, http.StatusOK, true, preparationJSON(
				map[string]any{"step": "exterior", "completed": true, "photos": []map[string]any{{"url": "/uploads/ext.png"}}},
			), "")
		},
	})

	code, env := serve(t, router, jsonRequest(http.MethodPut, "/admin/preparations/p1/steps", bearer(t, "admin-1", "admin"), "", map[string]any{
		"steps":      []map[string]any{},
		"adminNotes": "wrong vehicle",
	}))
	assert.Equal(t, http.StatusConflict, code)
	assert.False(t, env.Success)
	assert.Empty(t, stub.seen(http.MethodPut))
}

func TestRoleGroups(t *testing.T) {
	router, _ := newTestServer(t, nil)

	code, _ := serve(t, router, jsonRequest(http.MethodGet, "/preparer/preparations/active", bearer(t, "admin-1", "admin"), "", nil))
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = serve(t, router, jsonRequest(http.MethodGet, "/admin/step-definitions", bearer(t, "u1", "preparateur"), "", nil))
	assert.Equal(t, http.StatusForbidden, code)

	code, env := serve(t, router, jsonRequest(http.MethodGet, "/step-definitions", bearer(t, "u1", "preparateur"), "", nil))
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, env.Success)
}

func TestActivePreparationMayBeEmpty(t *testing.T) {
	router, _ := newTestServer(t, map[string]func(w http.ResponseWriter, r *http.Request){
		"GET /preparations/user/active": func(w http.ResponseWriter, r *http.Request) {
			reply(w, http.StatusOK, true, nil, "")
		},
	})

	code, env := serve(t, router, jsonRequest(http.MethodGet, "/preparer/preparations/active", bearer(t, "u1", "preparateur"), "", nil))
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, env.Success)
	assert.Equal(t, "null", string(env.Data))
}

func TestStepEditsRouteIsAdminOnly(t *testing.T) {
	router, _ := newTestServer(t, nil)

	code, env := serve(t, router, jsonRequest(http.MethodGet, "/admin/preparations/p1/step-edits", bearer(t, "admin-1", "admin"), "", nil))
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, env.Success)
	assert.JSONEq(t, "[]", string(env.Data))

	code, _ = serve(t, router, jsonRequest(http.MethodGet, "/admin/preparations/p1/step-edits", bearer(t, "u1", "preparateur"), "", nil))
	assert.Equal(t, http.StatusForbidden, code)
}

func TestRouterHealthAndPreflight(t *testing.T) {
	router, _ := newTestServer(t, nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","steps":4}`, w.Body.String())

	req := httptest.NewRequest(http.MethodOptions, "/preparer/timesheet/today", nil)
	req.Header.Set("Origin", "https://prep.example.test")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	req.Header.Set("Access-Control-Request-Headers", "Authorization, X-Agency-ID")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), "X-Agency-Id")
}
