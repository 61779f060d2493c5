package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	jwttoken "pharmatrace/internal/jwt_token"
	"pharmatrace/internal/ledger"
	"pharmatrace/internal/registry/minter"
	"pharmatrace/internal/registry/models"
	"pharmatrace/internal/registry/service"
	batchstore "pharmatrace/internal/registry/store/batch"
	orgstore "pharmatrace/internal/registry/store/org"
	unitstore "pharmatrace/internal/registry/store/unit"
	"pharmatrace/internal/registry/verifier"
	id "pharmatrace/pkg/domain"
)

const adminToken = "bootstrap-admin-token"

type fixture struct {
	router       chi.Router
	jwt          *jwttoken.JWTService
	orgs         *orgstore.InMemory
	svc          *service.RegistryService
	manufacturer *models.Organization
	distributor  *models.Organization
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	logger := slog.New(slog.DiscardHandler)
	l := ledger.NewInMemory()
	m, err := minter.New(l, []byte("s3cr3t"), "https://verify.example")
	require.NoError(t, err)

	batches := batchstore.NewInMemory()
	units := unitstore.NewInMemory()
	orgs := orgstore.NewInMemory()

	svc := service.NewRegistryService(batches, units, orgs, m, l, logger)
	vf := verifier.New(batches, units, []byte("s3cr3t"), logger)

	jwtService := jwttoken.NewJWTService("test-signing-key", "pharmatrace", "pharmatrace-api")
	hash, err := bcrypt.GenerateFromPassword([]byte(adminToken), bcrypt.MinCost)
	require.NoError(t, err)

	h := New(svc, vf, logger, jwtService, string(hash))
	router := chi.NewRouter()
	h.Register(router)

	f := &fixture{router: router, jwt: jwtService, orgs: orgs, svc: svc}

	ctx := t.Context()
	f.manufacturer, err = models.NewOrganization(id.NewOrgID(), "Acme Pharma", models.OrgTypeManufacturer, time.Now())
	require.NoError(t, err)
	require.NoError(t, orgs.Create(ctx, f.manufacturer))
	f.distributor, err = models.NewOrganization(id.NewOrgID(), "MedSupply", models.OrgTypeDistributor, time.Now())
	require.NoError(t, err)
	require.NoError(t, orgs.Create(ctx, f.distributor))
	return f
}

func (f *fixture) token(t *testing.T, org *models.Organization) string {
	t.Helper()
	token, err := f.jwt.GenerateAccessToken(org.ID, string(org.Type), time.Hour)
	require.NoError(t, err)
	return token
}

func (f *fixture) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) createBatch(t *testing.T, size int) createBatchResponse {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/batches", f.token(t, f.manufacturer), map[string]any{
		"batch_id":           "BATCH-1001",
		"drug_name":          "Amoxicillin 500mg",
		"batch_size":         size,
		"manufacturing_date": time.Now().AddDate(0, -1, 0),
		"expiry_date":        time.Now().AddDate(2, 0, 0),
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp createBatchResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func TestCreateBatchRequiresAuth(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/batches", "", map[string]any{"drug_name": "x"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCreateBatchRequiresManufacturerRole(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/batches", f.token(t, f.distributor), map[string]any{"drug_name": "x"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestCreateBatchMintsAndReports(t *testing.T) {
	f := newFixture(t)

	resp := f.createBatch(t, 3)
	assert.Equal(t, 3, resp.Mint.UnitsCreated)
	assert.Equal(t, 3, resp.Mint.BatchSize)
	require.NotNil(t, resp.Batch)
	assert.Contains(t, resp.Batch.QRCodeURL, "/verify/batch/BATCH-1001?sig=")
}

func TestVerifyBatchEndToEnd(t *testing.T) {
	f := newFixture(t)
	created := f.createBatch(t, 1)

	rec := f.do(t, http.MethodGet, "/verify/batch/BATCH-1001?sig="+created.Batch.QRSignature, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp batchVerificationResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.True(t, resp.Valid)
	require.NotNil(t, resp.Batch)
	assert.Equal(t, id.BatchID("BATCH-1001"), resp.Batch.ID)
}

func TestVerifyBatchMissingSignatureIsBadRequest(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/verify/batch/BATCH-1001", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestVerifyUnknownBatchAnsweredNotRejected(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/verify/batch/BATCH-COUNTERFEIT?sig=deadbeef", "", nil)
	require.Equal(t, http.StatusOK, rec.Code, "unknown ids never produce a server error")

	var resp batchVerificationResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.False(t, resp.Valid)
	assert.Nil(t, resp.Batch)
}

func TestVerifyUnitEndToEnd(t *testing.T) {
	f := newFixture(t)
	f.createBatch(t, 2)

	rec := f.do(t, http.MethodGet, "/batches/BATCH-1001/units", f.token(t, f.manufacturer), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list unitListResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&list))
	require.Equal(t, 2, list.Count)

	unit := list.Units[1]
	rec = f.do(t, http.MethodGet, fmt.Sprintf("/verify/unit/%s?sig=%s", unit.SerialNumber, unit.QRSignature), "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp unitVerificationResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.True(t, resp.Valid)

	// One flipped hex digit turns the same scan into a counterfeit answer.
	sig := []byte(unit.QRSignature)
	if sig[0] == 'a' {
		sig[0] = 'b'
	} else {
		sig[0] = 'a'
	}
	rec = f.do(t, http.MethodGet, fmt.Sprintf("/verify/unit/%s?sig=%s", unit.SerialNumber, sig), "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.False(t, resp.Valid)
	assert.Nil(t, resp.Unit)
}

func TestGetBatchNotFound(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/batches/BATCH-GHOST", f.token(t, f.manufacturer), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdateBatchStatus(t *testing.T) {
	f := newFixture(t)
	f.createBatch(t, 1)

	rec := f.do(t, http.MethodPatch, "/batches/BATCH-1001/status", f.token(t, f.manufacturer),
		map[string]string{"status": "READY_FOR_DISPATCH"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var batch models.Batch
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&batch))
	assert.Equal(t, models.BatchStatusReadyForDispatch, batch.Status)

	// Illegal edge surfaces as a conflict.
	rec = f.do(t, http.MethodPatch, "/batches/BATCH-1001/status", f.token(t, f.manufacturer),
		map[string]string{"status": "MANUFACTURING"})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestCreateOrganizationGuardedByAdminToken(t *testing.T) {
	f := newFixture(t)
	body := map[string]string{"name": "City Pharmacy", "type": "PHARMACY"}

	req := httptest.NewRequest(http.MethodPost, "/organizations", jsonBody(t, body))
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "missing admin token")

	req = httptest.NewRequest(http.MethodPost, "/organizations", jsonBody(t, body))
	req.Header.Set("X-Admin-Token", "wrong-token")
	rec = httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/organizations", jsonBody(t, body))
	req.Header.Set("X-Admin-Token", adminToken)
	rec = httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var org models.Organization
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&org))
	assert.Equal(t, models.OrgTypePharmacy, org.Type)
}

func jsonBody(t *testing.T, v any) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(v))
	return &buf
}
