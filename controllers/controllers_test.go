package controllers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"storefront-service/apperrors"
	"storefront-service/controllers"
	"storefront-service/models"
	"storefront-service/services"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v80"
)

// ---- concrete mocks implementing the service interfaces ----

type mockCheckoutSvc struct {
	got    *models.CheckoutRequest
	result *models.CheckoutSessionResult
	err    *apperrors.Error
}

func (m *mockCheckoutSvc) CreateCheckoutSession(_ context.Context, req *models.CheckoutRequest) (*models.CheckoutSessionResult, *apperrors.Error) {
	m.got = req
	return m.result, m.err
}

type mockWebhookSvc struct {
	verifyErr *apperrors.Error
	payload   []byte
	signature string
	handled   []*stripe.Event
}

func (m *mockWebhookSvc) VerifyEvent(payload []byte, signature string) (*stripe.Event, *apperrors.Error) {
	m.payload, m.signature = payload, signature
	if m.verifyErr != nil {
		return nil, m.verifyErr
	}
	return &stripe.Event{ID: "evt_1", Type: stripe.EventTypeCheckoutSessionCompleted}, nil
}

func (m *mockWebhookSvc) HandleEvent(_ context.Context, event *stripe.Event) {
	m.handled = append(m.handled, event)
}

type mockPaymentInfoSvc struct {
	key    string
	keyErr *apperrors.Error
}

func (m *mockPaymentInfoSvc) PublishableKey() (string, *apperrors.Error) { return m.key, m.keyErr }

func (m *mockPaymentInfoSvc) SessionDetails(_ context.Context, id string) (*models.SessionDetails, *apperrors.Error) {
	if id == "" {
		return nil, apperrors.Validation("Session ID is required")
	}
	email := "fan@example.com"
	return &models.SessionDetails{AmountTotal: 25.99, Currency: "usd", PaymentStatus: "paid", CustomerEmail: &email}, nil
}

type mockFulfillmentSvc struct {
	err          *apperrors.Error
	categoryID   string
	orderRequest *models.FulfillmentOrderRequest
}

func (m *mockFulfillmentSvc) ListProducts(_ context.Context, categoryID string) (json.RawMessage, *apperrors.Error) {
	m.categoryID = categoryID
	return json.RawMessage(`[{"id":1}]`), m.err
}

func (m *mockFulfillmentSvc) GetProduct(_ context.Context, id string) (json.RawMessage, *apperrors.Error) {
	return json.RawMessage(`{"id":` + id + `}`), m.err
}

func (m *mockFulfillmentSvc) CreateMockup(context.Context, *models.MockupRequest) (string, *apperrors.Error) {
	return "task_1", m.err
}

func (m *mockFulfillmentSvc) GetMockupTask(_ context.Context, key string) (json.RawMessage, *apperrors.Error) {
	if key == "" {
		return nil, apperrors.Validation("Missing task_key parameter")
	}
	return json.RawMessage(`{"status":"pending"}`), m.err
}

func (m *mockFulfillmentSvc) SubmitOrder(_ context.Context, req *models.FulfillmentOrderRequest) (string, json.RawMessage, *apperrors.Error) {
	m.orderRequest = req
	if m.err != nil {
		return "", nil, m.err
	}
	return "rates", json.RawMessage(`[{"id":"STANDARD"}]`), nil
}

func (m *mockFulfillmentSvc) GetOrder(context.Context, string) (json.RawMessage, *apperrors.Error) {
	return json.RawMessage(`{"id":5}`), m.err
}

func (m *mockFulfillmentSvc) CreateDesignerNonce(_ context.Context, req *models.DesignerNonceRequest) (*models.DesignerNonce, *apperrors.Error) {
	if m.err != nil {
		return nil, m.err
	}
	return &models.DesignerNonce{Nonce: "nonce-" + req.ExternalProductID, ExpiresAt: 1700000000}, nil
}

func (m *mockFulfillmentSvc) GetDesign(context.Context, string) (json.RawMessage, *apperrors.Error) {
	return json.RawMessage(`{"template_id":9}`), m.err
}

type mockMusicSvc struct {
	limit int
	err   *apperrors.Error
}

func (m *mockMusicSvc) Discography(_ context.Context, limit int) (json.RawMessage, *apperrors.Error) {
	m.limit = limit
	if m.err != nil {
		return nil, m.err
	}
	return json.RawMessage(`{"items":[]}`), nil
}

func (m *mockMusicSvc) LatestRelease(context.Context) (json.RawMessage, *apperrors.Error) {
	return json.RawMessage(`null`), m.err
}

func (m *mockMusicSvc) RandomTrack(context.Context) (*models.RandomTrack, *apperrors.Error) {
	if m.err != nil {
		return nil, m.err
	}
	return &models.RandomTrack{ID: "t1", Name: "Song", Artists: "byJ"}, nil
}

type mockHealthSvc struct {
	checkErr *apperrors.Error
}

func (m *mockHealthSvc) Authorized(h string) bool { return h == "Bearer s3cret" }

func (m *mockHealthSvc) Check(context.Context) *apperrors.Error { return m.checkErr }

// ---- helpers ----

func newRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(apperrors.ErrorMiddleware())
	return r
}

func perform(r http.Handler, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader([]byte(body)))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

// ---- tests ----

func TestCreateCheckoutSession(t *testing.T) {
	svc := &mockCheckoutSvc{result: &models.CheckoutSessionResult{ID: "cs_1", URL: "https://checkout.stripe.com/c/pay/cs_1"}}
	r := newRouter()
	r.POST("/api/create-checkout-session", controllers.NewCheckoutController(svc).CreateCheckoutSession)

	w := perform(r, http.MethodPost, "/api/create-checkout-session", `{"items":[{"name":"Tee","price":"10"}],"email":"a@b.c"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"id":"cs_1","url":"https://checkout.stripe.com/c/pay/cs_1"}`, w.Body.String())
	require.NotNil(t, svc.got)
	assert.Len(t, svc.got.Items, 1)
	assert.Equal(t, "a@b.c", svc.got.Customer())
}

func TestCreateCheckoutSession_Errors(t *testing.T) {
	svc := &mockCheckoutSvc{err: apperrors.Validation("Items are required")}
	r := newRouter()
	r.POST("/api/create-checkout-session", controllers.NewCheckoutController(svc).CreateCheckoutSession)

	w := perform(r, http.MethodPost, "/api/create-checkout-session", `{"items":[]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"Items are required"}`, w.Body.String())

	w = perform(r, http.MethodPost, "/api/create-checkout-session", `not-json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid request body", decode(t, w)["error"])
}

func TestStripeWebhook_Acknowledges(t *testing.T) {
	svc := &mockWebhookSvc{}
	r := newRouter()
	r.POST("/api/stripe-webhook", controllers.NewWebhookController(svc).StripeWebhook)

	body := `{"id":"evt_1",  "type":"checkout.session.completed"}`
	w := perform(r, http.MethodPost, "/api/stripe-webhook", body, "Stripe-Signature", "t=1,v1=abc")

	assert.Equal(t, http.StatusOK, w.Code)
	resp := decode(t, w)
	assert.Equal(t, true, resp["received"])
	assert.Equal(t, "checkout.session.completed", resp["eventType"])
	assert.NotEmpty(t, resp["timestamp"])
	assert.Equal(t, body, string(svc.payload))
	assert.Equal(t, "t=1,v1=abc", svc.signature)
	assert.Len(t, svc.handled, 1)
}

func TestStripeWebhook_VerificationFailure(t *testing.T) {
	svc := &mockWebhookSvc{verifyErr: apperrors.Auth(http.StatusBadRequest, "Missing Stripe signature", nil)}
	r := newRouter()
	r.POST("/api/stripe-webhook", controllers.NewWebhookController(svc).StripeWebhook)

	w := perform(r, http.MethodPost, "/api/stripe-webhook", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Missing Stripe signature", decode(t, w)["error"])
	assert.Empty(t, svc.handled)
}

func TestStripeWebhook_BodyTooLarge(t *testing.T) {
	svc := &mockWebhookSvc{}
	r := newRouter()
	r.POST("/api/stripe-webhook", controllers.NewWebhookController(svc).StripeWebhook)

	big := `{"pad":"` + strings.Repeat("x", int(controllers.MaxWebhookBody)) + `"}`
	w := perform(r, http.MethodPost, "/api/stripe-webhook", big, "Stripe-Signature", "t=1,v1=abc")
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Nil(t, svc.payload)
}

func TestPublishableKey(t *testing.T) {
	r := newRouter()
	r.GET("/ok", controllers.NewPaymentController(&mockPaymentInfoSvc{key: "pk_test_1"}).PublishableKey)
	r.GET("/bad", controllers.NewPaymentController(&mockPaymentInfoSvc{
		keyErr: apperrors.Config("Configuration error: Key mode mismatch", "Set STRIPE_PUBLISHABLE_KEY_TEST"),
	}).PublishableKey)

	w := perform(r, http.MethodGet, "/ok", "")
	assert.JSONEq(t, `{"publishableKey":"pk_test_1"}`, w.Body.String())

	w = perform(r, http.MethodGet, "/bad", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"Configuration error: Key mode mismatch","message":"Set STRIPE_PUBLISHABLE_KEY_TEST"}`, w.Body.String())
}

func TestSessionDetails(t *testing.T) {
	r := newRouter()
	r.GET("/api/get-session-details", controllers.NewPaymentController(&mockPaymentInfoSvc{}).SessionDetails)

	w := perform(r, http.MethodGet, "/api/get-session-details?session_id=cs_1", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"amount_total":25.99,"currency":"usd","payment_status":"paid","customer_email":"fan@example.com"}`, w.Body.String())

	w = perform(r, http.MethodGet, "/api/get-session-details", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func fulfillmentRouter(svc services.FulfillmentService) *gin.Engine {
	r := newRouter()
	fc := controllers.NewFulfillmentController(svc)
	r.GET("/api/printful-products", fc.Products)
	r.POST("/api/printful-mockup", fc.CreateMockup)
	r.GET("/api/printful-mockup", fc.GetMockup)
	r.POST("/api/printful-order", fc.SubmitOrder)
	r.GET("/api/printful-order", fc.GetOrder)
	r.POST("/api/printful-designer-nonce", fc.CreateDesignerNonce)
	r.GET("/api/printful-designer-nonce", fc.GetDesign)
	return r
}

func TestFulfillmentEnvelopes(t *testing.T) {
	svc := &mockFulfillmentSvc{}
	r := fulfillmentRouter(svc)

	w := perform(r, http.MethodGet, "/api/printful-products?category_id=24", "")
	assert.JSONEq(t, `{"success":true,"products":[{"id":1}]}`, w.Body.String())
	assert.Equal(t, "24", svc.categoryID)

	w = perform(r, http.MethodGet, "/api/printful-products?product_id=71", "")
	assert.JSONEq(t, `{"success":true,"product":{"id":71}}`, w.Body.String())

	w = perform(r, http.MethodPost, "/api/printful-mockup", `{"variant_ids":[1],"files":[{}]}`)
	assert.JSONEq(t, `{"success":true,"task_key":"task_1"}`, w.Body.String())

	w = perform(r, http.MethodGet, "/api/printful-mockup?task_key=task_1", "")
	assert.JSONEq(t, `{"success":true,"task":{"status":"pending"}}`, w.Body.String())

	w = perform(r, http.MethodGet, "/api/printful-mockup", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = perform(r, http.MethodPost, "/api/printful-order", `{"action":"estimate_shipping","shipping_data":{"x":1}}`)
	assert.JSONEq(t, `{"success":true,"rates":[{"id":"STANDARD"}]}`, w.Body.String())
	assert.Equal(t, "estimate_shipping", svc.orderRequest.Action)

	w = perform(r, http.MethodGet, "/api/printful-order?order_id=5", "")
	assert.JSONEq(t, `{"success":true,"order":{"id":5}}`, w.Body.String())

	w = perform(r, http.MethodPost, "/api/printful-designer-nonce", `{"external_product_id":"tee"}`)
	assert.JSONEq(t, `{"success":true,"nonce":"nonce-tee","expires_at":1700000000}`, w.Body.String())

	w = perform(r, http.MethodGet, "/api/printful-designer-nonce?nonce=abc", "")
	assert.JSONEq(t, `{"success":true,"design":{"template_id":9}}`, w.Body.String())
}

func TestFulfillmentErrors(t *testing.T) {
	appErr := apperrors.Auth(http.StatusForbidden, "Embedded Design Maker access required", nil).
		WithDetail("request access").
		WithField("requiresAccess", true)
	r := fulfillmentRouter(&mockFulfillmentSvc{err: appErr})

	w := perform(r, http.MethodPost, "/api/printful-designer-nonce", `{"external_product_id":"tee"}`)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.JSONEq(t, `{"error":"Embedded Design Maker access required","message":"request access","requiresAccess":true}`, w.Body.String())

	w = perform(r, http.MethodPost, "/api/printful-order", `{"action":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDiscography(t *testing.T) {
	svc := &mockMusicSvc{}
	r := newRouter()
	mc := controllers.NewMusicController(svc)
	r.GET("/api/spotify-discography", mc.Discography)
	r.GET("/api/spotify-latest", mc.LatestRelease)
	r.GET("/api/spotify-random-track", mc.RandomTrack)

	w := perform(r, http.MethodGet, "/api/spotify-discography?limit=12", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "public, s-maxage=3600, stale-while-revalidate=7200", w.Header().Get("Cache-Control"))
	assert.JSONEq(t, `{"items":[]}`, w.Body.String())
	assert.Equal(t, 12, svc.limit)

	perform(r, http.MethodGet, "/api/spotify-discography?limit=abc", "")
	assert.Equal(t, services.DefaultDiscographyLimit, svc.limit)

	w = perform(r, http.MethodGet, "/api/spotify-latest", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "null", w.Body.String())

	w = perform(r, http.MethodGet, "/api/spotify-random-track", "")
	assert.Equal(t, "t1", decode(t, w)["id"])
}

func TestDiscography_Error(t *testing.T) {
	svc := &mockMusicSvc{err: apperrors.Upstream("Failed to fetch discography", nil)}
	r := newRouter()
	r.GET("/api/spotify-discography", controllers.NewMusicController(svc).Discography)

	w := perform(r, http.MethodGet, "/api/spotify-discography", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Empty(t, w.Header().Get("Cache-Control"))
	assert.JSONEq(t, `{"error":"Failed to fetch discography"}`, w.Body.String())
}

func TestHealth(t *testing.T) {
	r := newRouter()
	r.GET("/api/health", controllers.NewHealthController(&mockHealthSvc{}).Health)
	r.GET("/broken", controllers.NewHealthController(&mockHealthSvc{
		checkErr: apperrors.Storage("connection refused", nil),
	}).Health)
	r.GET("/healthz", controllers.Liveness)

	w := perform(r, http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.JSONEq(t, `{"error":"Unauthorized"}`, w.Body.String())

	w = perform(r, http.MethodGet, "/api/health", "", "Authorization", "Bearer s3cret")
	assert.Equal(t, http.StatusOK, w.Code)
	resp := decode(t, w)
	assert.Equal(t, "ok", resp["status"])
	assert.NotEmpty(t, resp["timestamp"])

	w = perform(r, http.MethodGet, "/broken", "", "Authorization", "Bearer s3cret")
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	w = perform(r, http.MethodGet, "/healthz", "")
	assert.JSONEq(t, `{"status":"healthy","service":"storefront-service"}`, w.Body.String())
}
