package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopcore/internal/auth"
	"shopcore/internal/authz"
	"shopcore/internal/config"
	"shopcore/internal/counter"
	"shopcore/internal/domain"
	"shopcore/internal/gateway"
	"shopcore/internal/notify"
	"shopcore/internal/payment"
	"shopcore/internal/store"
)

type noopPersister struct{}

func (noopPersister) SaveCollectionData(string, store.DocStore) error { return nil }
func (noopPersister) DeleteCollectionFile(string) error               { return nil }

type captureSender struct{ lastCode string }

func (s *captureSender) SendCode(_, code string) error {
	s.lastCode = code
	return nil
}

type fakeEncoder struct{}

func (fakeEncoder) Encode(req payment.QRRequest) (string, error) {
	return "QR|" + req.BillNumber, nil
}

type testEnv struct {
	server *httptest.Server
	sender *captureSender
	issuer *auth.TokenIssuer
}

func newEnv(t *testing.T) *testEnv {
	t.Helper()
	cfg := config.NewDefaultConfig()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	manager := store.NewManager(noopPersister{}, 4)
	hub := notify.NewHub(logger)
	go hub.Run()

	gw := gateway.New(manager, authz.NewResolver(), hub, logger)
	counters := counter.NewService(manager, logger)
	sender := &captureSender{}
	issuer := auth.NewTokenIssuer(cfg.JwtSecret, time.Hour)
	otp := auth.NewOTPService(manager, sender, cfg.OtpTtl, logger)
	authSvc := auth.NewService(manager, issuer, otp, logger)
	payments := payment.NewService(gw, counters, fakeEncoder{}, cfg.MerchantName, logger)

	srv := NewServer(cfg, gw, authSvc, payments, counters, hub, logger)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &testEnv{server: ts, sender: sender, issuer: issuer}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, e.server.URL+path, reader)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp, decoded
}

func (e *testEnv) adminToken(t *testing.T) string {
	t.Helper()
	token, err := e.issuer.Issue(domain.Principal{ID: "root", Role: domain.RoleSuperAdmin})
	require.NoError(t, err)
	return token
}

func (e *testEnv) registerCustomer(t *testing.T, phone string) string {
	t.Helper()
	resp, _ := e.do(t, http.MethodPost, "/api/auth/otp/request", "", map[string]any{"phone": phone})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := e.do(t, http.MethodPost, "/api/auth/register", "", map[string]any{
		"name": "Alice", "phone": phone, "password": "s3cret", "code": e.sender.lastCode,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	data := body["data"].(map[string]any)
	return data["token"].(string)
}

func TestAuthFlow(t *testing.T) {
	env := newEnv(t)
	token := env.registerCustomer(t, "012345678")
	require.NotEmpty(t, token)

	resp, body := env.do(t, http.MethodPost, "/api/auth/login", "", map[string]any{
		"phone": "012 345 678", "password": "s3cret",
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["success"])

	resp, _ = env.do(t, http.MethodPost, "/api/auth/login", "", map[string]any{
		"phone": "012345678", "password": "wrong",
	})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestLogoutRevokes(t *testing.T) {
	env := newEnv(t)
	token := env.registerCustomer(t, "012345678")

	resp, _ := env.do(t, http.MethodPost, "/api/auth/logout", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = env.do(t, http.MethodGet, "/api/data/Product", token, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestDataCRUDRoundTrip(t *testing.T) {
	env := newEnv(t)
	admin := env.adminToken(t)

	resp, body := env.do(t, http.MethodPost, "/api/data/Product", admin, map[string]any{
		"fields": map[string]any{"name": "Widget", "price": 9.99},
		"junk":   "ignored",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := body["data"].(map[string]any)
	id := created["_id"].(string)
	assert.NotContains(t, created, "junk")

	resp, body = env.do(t, http.MethodPut, "/api/data/Product/"+id, admin, map[string]any{
		"fields": map[string]any{"price": 7.5},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 7.5, body["data"].(map[string]any)["price"])

	resp, body = env.do(t, http.MethodGet, "/api/data/Product", admin, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["data"].([]any), 1)

	resp, _ = env.do(t, http.MethodDelete, "/api/data/Product/"+id, admin, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = env.do(t, http.MethodDelete, "/api/data/Product/"+id, admin, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestUnknownCollection(t *testing.T) {
	env := newEnv(t)
	resp, _ := env.do(t, http.MethodGet, "/api/data/Bogus", env.adminToken(t), nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestPermissionDeniedMapsTo403(t *testing.T) {
	env := newEnv(t)
	token := env.registerCustomer(t, "012345678")

	resp, _ := env.do(t, http.MethodPost, "/api/data/Category", token, map[string]any{
		"fields": map[string]any{"name": "Rogue"},
	})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestDuplicateFavoriteMapsTo409(t *testing.T) {
	env := newEnv(t)
	token := env.registerCustomer(t, "012345678")

	resp, _ := env.do(t, http.MethodPost, "/api/data/Favorite", token, map[string]any{
		"fields": map[string]any{"productId": "p1"},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, _ = env.do(t, http.MethodPost, "/api/data/Favorite", token, map[string]any{
		"fields": map[string]any{"productId": "p1"},
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestPaginationEnvelope(t *testing.T) {
	env := newEnv(t)
	admin := env.adminToken(t)
	for i := 1; i <= 12; i++ {
		resp, _ := env.do(t, http.MethodPost, "/api/data/Product", admin, map[string]any{
			"fields": map[string]any{"name": fmt.Sprintf("P%02d", i)},
		})
		require.Equal(t, http.StatusCreated, resp.StatusCode)
	}

	resp, body := env.do(t, http.MethodGet, "/api/data/Product/pagination?page=2&limit=10", admin, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data := body["data"].(map[string]any)
	assert.Len(t, data["data"].([]any), 2)
	pagination := data["pagination"].(map[string]any)
	assert.Equal(t, float64(12), pagination["totalDocuments"])
	assert.Equal(t, float64(2), pagination["totalPages"])
	assert.Equal(t, float64(2), pagination["currentPage"])
	assert.Equal(t, float64(10), pagination["limit"])
}

func TestPublicProductsNeedNoToken(t *testing.T) {
	env := newEnv(t)
	admin := env.adminToken(t)
	resp, _ := env.do(t, http.MethodPost, "/api/data/Product", admin, map[string]any{
		"fields": map[string]any{"name": "Widget", "status": true},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, body := env.do(t, http.MethodGet, "/api/public/products", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["data"].([]any), 1)

	resp, _ = env.do(t, http.MethodGet, "/api/data/Product", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestPublicProductsFilterSearchAndLimit(t *testing.T) {
	env := newEnv(t)
	admin := env.adminToken(t)
	for _, fields := range []map[string]any{
		{"name": "Phone Case", "status": true},
		{"name": "Phone Charger", "status": true},
		{"name": "Old Phone", "status": false},
	} {
		resp, _ := env.do(t, http.MethodPost, "/api/data/Product", admin, map[string]any{"fields": fields})
		require.Equal(t, http.StatusCreated, resp.StatusCode)
	}

	resp, body := env.do(t, http.MethodGet, "/api/public/products", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["data"].([]any), 2, "inactive products stay hidden")

	resp, body = env.do(t, http.MethodGet, "/api/public/products?search=phone&limit=1", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	docs := body["data"].([]any)
	require.Len(t, docs, 1)
	name := docs[0].(map[string]any)["name"].(string)
	assert.Contains(t, []string{"Phone Case", "Phone Charger"}, name)

	resp, body = env.do(t, http.MethodGet, "/api/public/products?search=charger", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	docs = body["data"].([]any)
	require.Len(t, docs, 1)
	assert.Equal(t, "Phone Charger", docs[0].(map[string]any)["name"])
}

func TestPublicPromotionsActiveWindow(t *testing.T) {
	env := newEnv(t)
	admin := env.adminToken(t)
	now := time.Now().UTC()
	insert := func(name string, active bool, start, end time.Time) {
		resp, _ := env.do(t, http.MethodPost, "/api/data/Promotion", admin, map[string]any{
			"fields": map[string]any{
				"name":      name,
				"isActive":  active,
				"startDate": start.Format(time.RFC3339),
				"endDate":   end.Format(time.RFC3339),
			},
		})
		require.Equal(t, http.StatusCreated, resp.StatusCode)
	}
	insert("running", true, now.Add(-time.Hour), now.Add(time.Hour))
	insert("expired", true, now.Add(-48*time.Hour), now.Add(-24*time.Hour))
	insert("disabled", false, now.Add(-time.Hour), now.Add(time.Hour))

	resp, body := env.do(t, http.MethodGet, "/api/public/promotions?isActive=true", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	docs := body["data"].([]any)
	require.Len(t, docs, 1)
	assert.Equal(t, "running", docs[0].(map[string]any)["name"])

	resp, body = env.do(t, http.MethodGet, "/api/public/promotions", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["data"].([]any), 3)
}

func TestCounterEndpoints(t *testing.T) {
	env := newEnv(t)
	admin := env.adminToken(t)

	resp, body := env.do(t, http.MethodGet, "/api/counters/b1/Order", admin, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "000001", body["data"].(map[string]any)["nextId"])

	resp, _ = env.do(t, http.MethodPost, "/api/counters/b1/Order/increment", admin, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	_, body = env.do(t, http.MethodGet, "/api/counters/b1/Order", admin, nil)
	assert.Equal(t, "000002", body["data"].(map[string]any)["nextId"])
}

func TestDashboardEndpoint(t *testing.T) {
	env := newEnv(t)
	admin := env.adminToken(t)

	resp, _ := env.do(t, http.MethodPost, "/api/data/Order", admin, map[string]any{
		"fields": map[string]any{"totalAmount": 20.0, "paymentStatus": "paid"},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, body := env.do(t, http.MethodGet, "/api/dashboard", admin, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data := body["data"].(map[string]any)
	assert.Equal(t, float64(1), data["totalOrders"])
	assert.Equal(t, float64(20), data["totalSales"])
	assert.Len(t, data["monthlyData"].([]any), 12)

	resp, _ = env.do(t, http.MethodGet, "/api/dashboard", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestPaymentFlowOverHTTP(t *testing.T) {
	env := newEnv(t)
	token := env.registerCustomer(t, "012345678")

	resp, body := env.do(t, http.MethodPost, "/api/payments", token, map[string]any{
		"orderId": "o1", "amount": 12.5, "currency": "USD",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	tx := body["data"].(map[string]any)
	id := tx["_id"].(string)
	bill := tx["billNumber"].(string)
	assert.Equal(t, "QR|"+bill, tx["qrString"])

	resp, _ = env.do(t, http.MethodPost, "/api/payments/webhook", "", map[string]any{
		"billNumber": bill, "providerRefId": "REF-1",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = env.do(t, http.MethodGet, "/api/payments/"+id+"/status", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, payment.StatusPaid, body["data"].(map[string]any)["paymentStatus"])

	resp, _ = env.do(t, http.MethodPost, "/api/payments/"+id+"/confirm", env.adminToken(t), nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestPasswordResetOverHTTP(t *testing.T) {
	env := newEnv(t)
	env.registerCustomer(t, "012345678")

	resp, _ := env.do(t, http.MethodPost, "/api/auth/password/request", "", map[string]any{"phone": "012345678"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := env.do(t, http.MethodPost, "/api/auth/password/confirm", "", map[string]any{
		"phone": "012345678", "code": env.sender.lastCode,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resetToken := body["data"].(map[string]any)["resetToken"].(string)
	require.NotEmpty(t, resetToken)

	resp, _ = env.do(t, http.MethodPost, "/api/auth/password/reset", "", map[string]any{
		"resetToken": resetToken, "newPassword": "fresh-pass",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = env.do(t, http.MethodPost, "/api/auth/login", "", map[string]any{
		"phone": "012345678", "password": "s3cret",
	})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp, _ = env.do(t, http.MethodPost, "/api/auth/login", "", map[string]any{
		"phone": "012345678", "password": "fresh-pass",
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestGuestPaymentByPhone(t *testing.T) {
	env := newEnv(t)

	resp, body := env.do(t, http.MethodPost, "/api/payments", "", map[string]any{
		"orderId": "o1", "phone": "012345678", "amount": 4.5, "currency": "USD",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	tx := body["data"].(map[string]any)
	assert.Equal(t, "pending", tx["paymentStatus"])
	assert.NotEmpty(t, tx["userId"])

	resp, _ = env.do(t, http.MethodPost, "/api/payments", "", map[string]any{
		"orderId": "o1", "amount": 4.5, "currency": "USD",
	})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestGuestTokenCanGenerateQR(t *testing.T) {
	env := newEnv(t)

	resp, body := env.do(t, http.MethodPost, "/api/auth/guest", "", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	token := body["data"].(map[string]any)["token"].(string)

	resp, body = env.do(t, http.MethodPost, "/api/payments", token, map[string]any{
		"orderId": "o1", "amount": 4.5, "currency": "USD",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "pending", body["data"].(map[string]any)["paymentStatus"])
}

func TestGenerateQRRejectsBadCurrency(t *testing.T) {
	env := newEnv(t)
	token := env.registerCustomer(t, "012345678")

	resp, _ := env.do(t, http.MethodPost, "/api/payments", token, map[string]any{
		"orderId": "o1", "amount": 4.5, "currency": "EUR",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}
