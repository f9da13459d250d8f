package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fenilmodi00/ipo-allotment/models"
	"github.com/fenilmodi00/ipo-allotment/services"
	"github.com/fenilmodi00/ipo-allotment/shared"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAdminSecret = "test-admin-secret"

type stubAdapter struct {
	registrar models.RegistrarType
}

func (a stubAdapter) Name() models.RegistrarType {
	return a.registrar
}

func (a stubAdapter) CheckAllotment(ctx context.Context, params models.AllotmentCheckParams) models.AllotmentResult {
	shares := 30
	return models.AllotmentResult{
		Status:            models.StatusAllotted,
		ApplicationNumber: params.ApplicationNumber,
		SharesAllotted:    &shares,
	}
}

type unreachableFetcher struct{}

func (unreachableFetcher) Get(ctx context.Context, url string, headers map[string]string) (*shared.FetchResponse, error) {
	return nil, errors.New("network unreachable")
}

func (unreachableFetcher) Post(ctx context.Context, url, contentType string, body []byte, headers map[string]string) (*shared.FetchResponse, error) {
	return nil, errors.New("network unreachable")
}

func setupTestApp(t *testing.T, adminToken string) (*fiber.App, *services.IPOMasterService) {
	t.Helper()

	master := services.NewIPOMasterService(services.DefaultSeedEntries())
	registrars := services.NewRegistrarService()
	factory := services.NewRegistrarFactory(services.AdapterOptions{Fetcher: unreachableFetcher{}})
	for _, registrar := range factory.SupportedRegistrars() {
		factory.Register(registrar, func() services.RegistrarAdapter { return stubAdapter{registrar: registrar} })
	}

	allotments := services.NewAllotmentService(master, factory, services.NewAllotmentCache(24*time.Hour, 0), services.NewHistoryStore(50), nil)
	automation := services.NewAutomationService(master, registrars, unreachableFetcher{}, nil, time.Second)
	automation.SetSimulatedDiscoveries(map[models.RegistrarType][]string{})

	router := &Router{
		Allotments: NewAllotmentHandler(allotments),
		IPOs:       NewIPOHandler(master, registrars, factory),
		Admin:      NewAdminHandler(master, automation, allotments, registrars),
		Health:     NewHealthHandler(nil),
		AdminToken: adminToken,
	}

	app := fiber.New()
	router.Register(app)
	return app, master
}

func adminToken(t *testing.T, secret, role string) string {
	t.Helper()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  "ops@allotment",
		"role": role,
		"exp":  time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func doRequest(t *testing.T, app *fiber.App, method, path string, body interface{}, token string) (int, map[string]interface{}) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp.StatusCode, decoded
}

func TestHealth(t *testing.T) {
	app, _ := setupTestApp(t, testAdminSecret)

	status, body := doRequest(t, app, http.MethodGet, "/health", nil, "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "disabled", body["database"])
}

func TestCheckAllotmentNormalizesPAN(t *testing.T) {
	app, _ := setupTestApp(t, testAdminSecret)

	status, body := doRequest(t, app, http.MethodPost, "/api/v1/allotment/check", map[string]string{
		"ipo_id":             "azad-eng",
		"pan":                "  abcde1234f ",
		"application_number": "1234567890",
	}, "")
	require.Equal(t, http.StatusOK, status)

	data := body["data"].(map[string]interface{})
	assert.Equal(t, "ALLOTTED", data["status"])
	assert.Equal(t, "Azad Engineering Limited", data["ipo_name"])
	assert.Equal(t, float64(30), data["shares_allotted"])
	assert.Equal(t, "Congratulations! You have been allotted 30 shares.", body["message"])

	status, body = doRequest(t, app, http.MethodPost, "/api/v1/allotment/history", map[string]string{"pan": "ABCDE1234F"}, "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(1), body["count"])
	entry := body["data"].([]interface{})[0].(map[string]interface{})
	assert.NotContains(t, entry["pan_hash"], "ABCDE1234F")
}

func TestCheckAllotmentOutcomes(t *testing.T) {
	app, _ := setupTestApp(t, testAdminSecret)

	tests := []struct {
		name    string
		request map[string]string
		status  string
	}{
		{"invalid PAN", map[string]string{"ipo_id": "azad-eng", "pan": "ABCDE0000F"}, "INVALID_DETAILS"},
		{"unknown IPO", map[string]string{"ipo_id": "missing", "pan": "ABCDE1234F"}, "ERROR"},
		{"not yet published", map[string]string{"ipo_id": "nova-tech", "pan": "ABCDE1234F"}, "RESULT_NOT_PUBLISHED"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := doRequest(t, app, http.MethodPost, "/api/v1/allotment/check", tt.request, "")
			require.Equal(t, http.StatusOK, status)
			assert.Equal(t, tt.status, body["data"].(map[string]interface{})["status"])
			assert.NotEmpty(t, body["message"])
		})
	}
}

func TestCheckAllotmentRejectsMalformedRequests(t *testing.T) {
	app, _ := setupTestApp(t, testAdminSecret)

	status, _ := doRequest(t, app, http.MethodPost, "/api/v1/allotment/check", map[string]string{"pan": "ABCDE1234F"}, "")
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = doRequest(t, app, http.MethodPost, "/api/v1/allotment/history", map[string]string{"pan": "not-a-pan"}, "")
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestIPORoutes(t *testing.T) {
	app, _ := setupTestApp(t, testAdminSecret)

	tests := []struct {
		path   string
		status int
		count  float64
	}{
		{"/api/v1/ipos", http.StatusOK, 8},
		{"/api/v1/ipos?status=pending", http.StatusOK, 1},
		{"/api/v1/ipos?registrar=kfintech", http.StatusOK, 4},
		{"/api/v1/ipos?registrar=maashitla", http.StatusOK, 0},
		{"/api/v1/ipos/published", http.StatusOK, 7},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			status, body := doRequest(t, app, http.MethodGet, tt.path, nil, "")
			require.Equal(t, tt.status, status)
			assert.Equal(t, tt.count, body["count"])
		})
	}

	status, _ := doRequest(t, app, http.MethodGet, "/api/v1/ipos?status=bogus", nil, "")
	assert.Equal(t, http.StatusBadRequest, status)

	status, body := doRequest(t, app, http.MethodGet, "/api/v1/ipos/rbz-jewellers", nil, "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "bigshare", body["data"].(map[string]interface{})["registrar"])

	status, _ = doRequest(t, app, http.MethodGet, "/api/v1/ipos/missing", nil, "")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestRegistrarRoutes(t *testing.T) {
	app, _ := setupTestApp(t, testAdminSecret)

	status, body := doRequest(t, app, http.MethodGet, "/api/v1/registrars", nil, "")
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["data"], 3)

	status, body = doRequest(t, app, http.MethodGet, "/api/v1/registrars/identify?name=Bigshare%20Services%20Pvt%20Ltd", nil, "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "bigshare", body["data"].(map[string]interface{})["type"])
	assert.Equal(t, true, body["supported"])

	status, body = doRequest(t, app, http.MethodGet, "/api/v1/registrars/identify?name=Maashitla", nil, "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, false, body["supported"])

	status, _ = doRequest(t, app, http.MethodGet, "/api/v1/registrars/identify", nil, "")
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestAdminAuth(t *testing.T) {
	app, _ := setupTestApp(t, testAdminSecret)

	status, _ := doRequest(t, app, http.MethodGet, "/api/v1/admin/metrics", nil, "")
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = doRequest(t, app, http.MethodGet, "/api/v1/admin/metrics", nil, adminToken(t, "other-secret", "admin"))
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = doRequest(t, app, http.MethodGet, "/api/v1/admin/metrics", nil, adminToken(t, testAdminSecret, "viewer"))
	assert.Equal(t, http.StatusForbidden, status)

	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"role": "admin",
		"exp":  time.Now().Add(-time.Minute).Unix(),
	})
	signed, err := expired.SignedString([]byte(testAdminSecret))
	require.NoError(t, err)
	status, _ = doRequest(t, app, http.MethodGet, "/api/v1/admin/metrics", nil, signed)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, body := doRequest(t, app, http.MethodGet, "/api/v1/admin/metrics", nil, adminToken(t, testAdminSecret, "admin"))
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, body["data"], "allotments")

	unconfigured, _ := setupTestApp(t, "")
	status, _ = doRequest(t, unconfigured, http.MethodGet, "/api/v1/admin/metrics", nil, adminToken(t, testAdminSecret, "admin"))
	assert.Equal(t, http.StatusServiceUnavailable, status)
}

func TestAdminDirectoryManagement(t *testing.T) {
	app, master := setupTestApp(t, testAdminSecret)
	token := adminToken(t, testAdminSecret, "admin")

	status, _ := doRequest(t, app, http.MethodPut, "/api/v1/admin/ipos/nova-tech/status", map[string]string{"status": "published"}, token)
	require.Equal(t, http.StatusOK, status)
	entry, _ := master.GetIPO("nova-tech")
	assert.Equal(t, models.PublicationPublished, entry.AllotmentStatus)

	status, _ = doRequest(t, app, http.MethodPut, "/api/v1/admin/ipos/missing/status", map[string]string{"status": "PUBLISHED"}, token)
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = doRequest(t, app, http.MethodPut, "/api/v1/admin/ipos/nova-tech/status", map[string]string{"status": "LISTED"}, token)
	assert.Equal(t, http.StatusBadRequest, status)

	request := map[string]string{"name": "Jyoti CNC Automation Limited", "registrar": "KFin Technologies Limited"}
	status, body := doRequest(t, app, http.MethodPost, "/api/v1/admin/ipos", request, token)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "kfintech", body["registrar"].(map[string]interface{})["type"])

	created, ok := master.GetIPO("dyn-jyoti-cnc-automation")
	require.True(t, ok)
	assert.Equal(t, "https://kosmic.kfintech.com/ipostatus/", created.RegistrarURL)

	coded := map[string]string{"name": "DOMS Industries Limited", "registrar": "bigshare", "company_code": "DOMS01"}
	status, body = doRequest(t, app, http.MethodPost, "/api/v1/admin/ipos", coded, token)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "DOMS01", body["data"].(map[string]interface{})["company_code"])

	status, _ = doRequest(t, app, http.MethodPost, "/api/v1/admin/ipos", request, token)
	assert.Equal(t, http.StatusConflict, status)
}

func TestAdminSyncAndHistory(t *testing.T) {
	app, _ := setupTestApp(t, testAdminSecret)
	token := adminToken(t, testAdminSecret, "admin")

	status, body := doRequest(t, app, http.MethodPost, "/api/v1/admin/sync", nil, token)
	require.Equal(t, http.StatusOK, status)
	report := body["data"].(map[string]interface{})
	assert.Equal(t, false, report["skipped"])
	assert.Len(t, report["registrars"], 3)

	doRequest(t, app, http.MethodPost, "/api/v1/allotment/check", map[string]string{"ipo_id": "azad-eng", "pan": "ABCDE1234F"}, "")

	status, _ = doRequest(t, app, http.MethodDelete, "/api/v1/admin/history", nil, token)
	require.Equal(t, http.StatusOK, status)

	_, body = doRequest(t, app, http.MethodPost, "/api/v1/allotment/history", map[string]string{"pan": "ABCDE1234F"}, "")
	assert.Equal(t, float64(0), body["count"])
}
