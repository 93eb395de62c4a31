package allocation

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parkwind-erp/parkwind-erp/internal/observability"
	"github.com/parkwind-erp/parkwind-erp/internal/shared"
)

func newTestRouter(service *Service) http.Handler {
	handler := NewHandler(testLogger(), service, nil, nil, observability.NewMetrics())

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if raw := req.Header.Get("X-Tenant-ID"); raw != "" {
				if tenantID, err := strconv.ParseInt(raw, 10, 64); err == nil {
					req = req.WithContext(shared.ContextWithTenant(req.Context(), tenantID))
				}
			}
			next.ServeHTTP(w, req)
		})
	})
	r.Route("/api", func(r chi.Router) {
		handler.MountRoutes(r)
	})
	return r
}

func doRequest(t *testing.T, router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	req.Header.Set("X-Tenant-ID", "1")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestCreateAllocationEndpoint(t *testing.T) {
	service, _, _ := newTestService(calculableSettlement(), twoOperatorResolution())
	router := newTestRouter(service)

	rr := doRequest(t, router, http.MethodPost, "/api/settlements/7/allocation",
		`{"period_label":"FY 2024","notes":"per contract"}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var resp AllocationResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "FY 2024", resp.PeriodLabel)
	assert.Equal(t, StatusDraft, resp.Status)
	assert.Equal(t, "12000.00", resp.TotalUsageFee)
	require.Len(t, resp.Items, 2)
	assert.Equal(t, "70.0000", resp.Items[0].SharePercent)
	assert.Equal(t, "7400.00", resp.Items[0].NetPayable)
	assert.Equal(t, "3600.00", resp.Items[1].NetPayable)
}

func TestCreateAllocationConflict(t *testing.T) {
	service, _, _ := newTestService(calculableSettlement(), twoOperatorResolution())
	router := newTestRouter(service)

	first := doRequest(t, router, http.MethodPost, "/api/settlements/7/allocation", "")
	require.Equal(t, http.StatusCreated, first.Code)

	second := doRequest(t, router, http.MethodPost, "/api/settlements/7/allocation", "")
	assert.Equal(t, http.StatusConflict, second.Code)
	assert.Contains(t, second.Body.String(), "void it before recomputing")
}

func TestCreateAllocationInvalidState(t *testing.T) {
	stl := calculableSettlement()
	stl.Status = "OPEN"
	service, _, _ := newTestService(stl, twoOperatorResolution())
	router := newTestRouter(service)

	rr := doRequest(t, router, http.MethodPost, "/api/settlements/7/allocation", "")
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	assert.Contains(t, rr.Body.String(), "OPEN")
}

func TestCreateAllocationMissingTenant(t *testing.T) {
	service, _, _ := newTestService(calculableSettlement(), twoOperatorResolution())
	router := newTestRouter(service)

	req := httptest.NewRequest(http.MethodPost, "/api/settlements/7/allocation", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestCreateAllocationUnknownSettlement(t *testing.T) {
	service, _, _ := newTestService(nil, twoOperatorResolution())
	router := newTestRouter(service)

	rr := doRequest(t, router, http.MethodPost, "/api/settlements/99/allocation", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestGetAllocationEndpoint(t *testing.T) {
	service, repo, _ := newTestService(calculableSettlement(), twoOperatorResolution())
	router := newTestRouter(service)

	created := doRequest(t, router, http.MethodPost, "/api/settlements/7/allocation", "")
	require.Equal(t, http.StatusCreated, created.Code)
	require.Len(t, repo.created, 1)

	rr := doRequest(t, router, http.MethodGet, "/api/allocations/"+strconv.FormatInt(repo.created[0].ID, 10), "")
	require.Equal(t, http.StatusOK, rr.Code)

	var resp AllocationResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Len(t, resp.Items, 2)

	missing := doRequest(t, router, http.MethodGet, "/api/allocations/999", "")
	assert.Equal(t, http.StatusNotFound, missing.Code)
}

func TestVoidAllocationEndpoint(t *testing.T) {
	service, repo, _ := newTestService(calculableSettlement(), twoOperatorResolution())
	router := newTestRouter(service)

	created := doRequest(t, router, http.MethodPost, "/api/settlements/7/allocation", "")
	require.Equal(t, http.StatusCreated, created.Code)
	id := strconv.FormatInt(repo.created[0].ID, 10)

	rr := doRequest(t, router, http.MethodPost, "/api/allocations/"+id+"/void", "")
	assert.Equal(t, http.StatusNoContent, rr.Code)

	after := doRequest(t, router, http.MethodGet, "/api/settlements/7/allocation", "")
	assert.Equal(t, http.StatusNotFound, after.Code)
}

func TestPreviewSharesEndpoint(t *testing.T) {
	service, _, _ := newTestService(calculableSettlement(), twoOperatorResolution())
	router := newTestRouter(service)

	rr := doRequest(t, router, http.MethodGet, "/api/parks/10/shares?year=2024&mode=PROPORTIONAL", "")
	require.Equal(t, http.StatusOK, rr.Code)

	var shares []ShareResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &shares))
	require.Len(t, shares, 2)
	assert.Equal(t, "70.0000", shares[0].TotalSharePercent)

	missingYear := doRequest(t, router, http.MethodGet, "/api/parks/10/shares", "")
	assert.Equal(t, http.StatusBadRequest, missingYear.Code)

	badMode := doRequest(t, router, http.MethodGet, "/api/parks/10/shares?year=2024&mode=FLAT", "")
	assert.Equal(t, http.StatusBadRequest, badMode.Code)
}
