package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pixelmint/pixelmint/internal/config"
	"github.com/pixelmint/pixelmint/internal/plan"
	"github.com/pixelmint/pixelmint/internal/provider"
	"github.com/pixelmint/pixelmint/internal/tenant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// fakeProvider serves every request from the requested model.
type fakeProvider struct {
	err error // non-nil = every call fails with this
}

func (f *fakeProvider) Generate(_ context.Context, req provider.GenerateRequest) (*provider.Artifact, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &provider.Artifact{
		URL:              "https://cdn.example.com/out.png",
		Model:            req.Model,
		Resolution:       req.Resolution,
		EstimatedCostUSD: provider.CostUSD(req.Model),
	}, nil
}

// testConfig returns a minimal config for testing
func testConfig() *config.Config {
	return &config.Config{
		Port:            "0",
		Env:             "development",
		LogLevel:        "error",
		LogFormat:       "text",
		ProviderBaseURL: "https://provider.invalid",
		ProviderAPIKey:  "test-key",
		PrimaryModel:    "gemini-2.5-flash-image",
		FallbackModel:   "gemini-2.0-flash-image",
		ProviderTimeout: 5 * time.Second,
		DefaultTier:     "essential",
		AlertCooldown:   24 * time.Hour,
		EmailFrom:       "billing@pixelmint.app",
	}
}

// newTestServer creates a server with a fake provider and in-memory stores
func newTestServer(t *testing.T, p provider.Client) *Server {
	t.Helper()
	s, err := New(testConfig(), WithProviderClient(p))
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}
	return s
}

func doJSON(s *Server, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	return w
}

func TestHealthEndpoints(t *testing.T) {
	s := newTestServer(t, &fakeProvider{})

	w := doJSON(s, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(s, http.MethodGet, "/health/live", "")
	assert.Equal(t, http.StatusOK, w.Code)

	// Not ready until Run() marks it
	w = doJSON(s, http.MethodGet, "/health/ready", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestListPlans(t *testing.T) {
	s := newTestServer(t, &fakeProvider{})

	w := doJSON(s, http.MethodGet, "/v1/plans", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Plans []map[string]any `json:"plans"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Plans, 3)
	assert.Equal(t, "essential", resp.Plans[0]["tier"])
	assert.Equal(t, "300.00", resp.Plans[0]["baseCredits"])
}

func TestCreateGeneration_Validation(t *testing.T) {
	s := newTestServer(t, &fakeProvider{})

	w := doJSON(s, http.MethodPost, "/v1/generations", `{"resolution":"1024x1024"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateGeneration_FullFlow(t *testing.T) {
	s := newTestServer(t, &fakeProvider{})

	// Create a tenant
	w := doJSON(s, http.MethodPost, "/v1/tenants",
		`{"name":"Acme","email":"owner@acme.example","tier":"studio"}`)
	require.Equal(t, http.StatusCreated, w.Code)

	var created struct {
		Tenant struct {
			ID string `json:"id"`
		} `json:"tenant"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	tenantID := created.Tenant.ID
	require.NotEmpty(t, tenantID)

	// Generate
	w = doJSON(s, http.MethodPost, "/v1/generations",
		`{"tenantId":"`+tenantID+`","resolution":"1024x1024"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var gen struct {
		Artifact struct {
			URL   string `json:"url"`
			Model string `json:"model"`
		} `json:"artifact"`
		CreditsCharged   string  `json:"creditsCharged"`
		EstimatedCost    float64 `json:"estimatedCost"`
		IsOverage        bool    `json:"isOverage"`
		FellBack         bool    `json:"fellBack"`
		CreditsRemaining string  `json:"creditsRemaining"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &gen))
	assert.Equal(t, "https://cdn.example.com/out.png", gen.Artifact.URL)
	assert.Equal(t, "gemini-2.5-flash-image", gen.Artifact.Model)
	assert.Equal(t, "1.00", gen.CreditsCharged)
	assert.InDelta(t, 0.039, gen.EstimatedCost, 1e-9)
	assert.False(t, gen.IsOverage)
	assert.False(t, gen.FellBack)
	assert.Equal(t, "799.00", gen.CreditsRemaining)

	// Stats reflect the charge
	w = doJSON(s, http.MethodGet, "/v1/tenants/"+tenantID+"/stats", "")
	require.Equal(t, http.StatusOK, w.Code)

	var stats struct {
		Tier         string  `json:"tier"`
		TotalCredits float64 `json:"totalCredits"`
		UsedCredits  float64 `json:"usedCredits"`
		IsOverage    bool    `json:"isOverage"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, "studio", stats.Tier)
	assert.Equal(t, 800.0, stats.TotalCredits)
	assert.Equal(t, 1.0, stats.UsedCredits)
	assert.False(t, stats.IsOverage)

	// Usage log has one record
	w = doJSON(s, http.MethodGet, "/v1/tenants/"+tenantID+"/usage", "")
	require.Equal(t, http.StatusOK, w.Code)

	var usageResp struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &usageResp))
	assert.Equal(t, 1, usageResp.Count)
}

func TestCreateGeneration_RejectionMapsTo422(t *testing.T) {
	s := newTestServer(t, &fakeProvider{err: &provider.Error{
		Kind: provider.KindRejected, Model: "gemini-2.5-flash-image", Message: "content policy",
	}})

	w := doJSON(s, http.MethodPost, "/v1/generations", `{"tenantId":"ten_1"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "generation_rejected")
}

func TestCreateGeneration_OutageMapsTo503(t *testing.T) {
	s := newTestServer(t, &fakeProvider{err: &provider.Error{
		Kind: provider.KindUnavailable, Model: "any", Message: "down",
	}})

	w := doJSON(s, http.MethodPost, "/v1/generations", `{"tenantId":"ten_1"}`)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "30", w.Header().Get("Retry-After"))
}

func TestCreateTenant_UnknownTier(t *testing.T) {
	s := newTestServer(t, &fakeProvider{})

	w := doJSON(s, http.MethodPost, "/v1/tenants",
		`{"name":"Acme","email":"a@b.c","tier":"platinum"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "unknown_tier")
}

func TestGetTenant_NotFound(t *testing.T) {
	s := newTestServer(t, &fakeProvider{})

	w := doJSON(s, http.MethodGet, "/v1/tenants/ten_missing", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPurchaseCredits(t *testing.T) {
	s := newTestServer(t, &fakeProvider{})

	w := doJSON(s, http.MethodPost, "/v1/tenants/ten_1/credits", `{"credits":"100"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Purchased string `json:"purchased"`
		Available string `json:"available"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "100.00", resp.Purchased)
	assert.Equal(t, "400.00", resp.Available) // 300 base + 100 purchased

	// Invalid amounts rejected
	w = doJSON(s, http.MethodPost, "/v1/tenants/ten_1/credits", `{"credits":"-5"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(s, http.MethodPost, "/v1/tenants/ten_1/credits", `{"credits":"abc"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPurchaseCredits_SeedsDirectoryTier(t *testing.T) {
	s := newTestServer(t, &fakeProvider{})

	// Studio tenant known to the directory but with no balance row yet
	// (created outside the API, so nothing has seeded the ledger).
	require.NoError(t, s.tenants.Store().Create(context.Background(), &tenant.Tenant{
		ID:     "ten_studio",
		Name:   "Acme",
		Email:  "owner@acme.example",
		Tier:   plan.TierStudio,
		Status: tenant.StatusActive,
	}))

	w := doJSON(s, http.MethodPost, "/v1/tenants/ten_studio/credits", `{"credits":"100"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Available string `json:"available"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "900.00", resp.Available) // 800 studio base + 100, not 300 default
}

func TestChangeTier(t *testing.T) {
	s := newTestServer(t, &fakeProvider{})

	w := doJSON(s, http.MethodPost, "/v1/tenants/ten_1/tier", `{"tier":"agency"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Tier      string `json:"tier"`
		Available string `json:"available"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "agency", resp.Tier)
	assert.Equal(t, "2000.00", resp.Available)

	w = doJSON(s, http.MethodPost, "/v1/tenants/ten_1/tier", `{"tier":"platinum"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRequestIDHeader(t *testing.T) {
	s := newTestServer(t, &fakeProvider{})

	w := doJSON(s, http.MethodGet, "/health", "")
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "req_fixed")
	w = httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	assert.Equal(t, "req_fixed", w.Header().Get("X-Request-ID"))
}
