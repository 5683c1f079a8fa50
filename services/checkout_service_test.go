package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"testing"

	"storefront-service/config"
	"storefront-service/models"
	"storefront-service/repository"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v80"
	"go.uber.org/zap"
)

const testBaseURL = "https://shop.example.com"

func newTestCheckoutService(payments *MockPaymentProvider, repo *MockOrderRepository, sns *recordingSNS) CheckoutService {
	return NewCheckoutService(payments, repo, sns, "arn:aws:sns:us-east-1:123:orders", CheckoutOptions{
		BaseURL:  testBaseURL,
		Limits:   testLimits,
		Merchant: config.MerchantInfo{Artist: "byJ", Website: "byJ. Sound Recycler"},
	}, zap.NewNop())
}

func checkoutRequest(t *testing.T, body string) *models.CheckoutRequest {
	t.Helper()
	var req models.CheckoutRequest
	require.NoError(t, json.Unmarshal([]byte(body), &req))
	return &req
}

func TestCreateCheckoutSession_FreeOrderSaved(t *testing.T) {
	payments := new(MockPaymentProvider)
	repo := new(MockOrderRepository)
	sns := &recordingSNS{}
	orderID := uuid.New()

	var saved *models.Order
	repo.On("SaveOrder", mock.Anything, mock.AnythingOfType("*models.Order")).
		Run(func(args mock.Arguments) { saved = args.Get(1).(*models.Order) }).
		Return(&repository.SaveResult{Order: &models.Order{ID: orderID}}, nil).Once()

	svc := newTestCheckoutService(payments, repo, sns)
	res, appErr := svc.CreateCheckoutSession(context.Background(), checkoutRequest(t,
		`{"items":[{"name":"Free Sample Pack","price":0}],"email":"fan@example.com"}`))
	require.Nil(t, appErr)

	assert.Regexp(t, `^free_[0-9a-f]{32}$`, res.ID)
	assert.Equal(t, testBaseURL+"/success.html?session_id="+res.ID+"&free=true", res.URL)
	assert.True(t, res.Free)
	assert.True(t, res.Saved)
	assert.Equal(t, orderID.String(), res.OrderID)

	require.NotNil(t, saved)
	assert.Equal(t, res.ID, saved.SessionID)
	assert.Equal(t, models.PaymentStatusPaid, saved.PaymentStatus)
	assert.Equal(t, 0.0, saved.AmountTotal)
	assert.Equal(t, "fan@example.com", *saved.CustomerEmail)
	assert.JSONEq(t, `[{"id":"free-sample-pack","name":"Free Sample Pack","price":0,"quantity":1}]`, string(saved.Items))

	payments.AssertNotCalled(t, "CreateCheckoutSession", mock.Anything, mock.Anything)
	repo.AssertExpectations(t)
	require.Len(t, sns.messages, 1)
	assert.Equal(t, EventOrderRecorded, sns.messages[0]["event_type"])
	assert.Equal(t, true, sns.messages[0]["free"])
}

func TestCreateCheckoutSession_FreeOrderWithoutDatabase(t *testing.T) {
	payments := new(MockPaymentProvider)
	repo := new(MockOrderRepository)
	repo.On("SaveOrder", mock.Anything, mock.Anything).
		Return(nil, fmt.Errorf("%w: database not configured", repository.ErrStorageUnavailable))

	res, appErr := newTestCheckoutService(payments, repo, &recordingSNS{}).
		CreateCheckoutSession(context.Background(), checkoutRequest(t, `{"items":[{"name":"Zine","price":"0"}]}`))
	require.Nil(t, appErr)

	assert.Regexp(t, `^free_\d+_[0-9a-z]{9}$`, res.ID)
	assert.True(t, strings.HasSuffix(res.URL, "?session_id="+res.ID+"&free=true"))
	assert.False(t, res.Saved)
	assert.Equal(t, "Order processed but not saved to database", res.Warning)
	assert.Equal(t, "Database not configured", res.Error)
	assert.Empty(t, res.ErrorCode)
}

func TestCreateCheckoutSession_FreeOrderWriteFailure(t *testing.T) {
	repo := new(MockOrderRepository)
	pgErr := &pgconn.PgError{Code: "42501", Message: "permission denied for table orders", Hint: "check RLS policies"}
	repo.On("SaveOrder", mock.Anything, mock.Anything).
		Return(nil, fmt.Errorf("%w: insert order: %w", repository.ErrStorageWrite, pgErr))

	sns := &recordingSNS{}
	res, appErr := newTestCheckoutService(new(MockPaymentProvider), repo, sns).
		CreateCheckoutSession(context.Background(), checkoutRequest(t, `{"items":[{"name":"Zine","price":0}]}`))
	require.Nil(t, appErr)

	assert.Equal(t, "Order processed but database save failed - check logs", res.Warning)
	assert.Contains(t, res.Error, "permission denied")
	assert.Equal(t, "42501", res.ErrorCode)
	assert.Equal(t, "check RLS policies", res.ErrorDetails)
	assert.Empty(t, sns.messages)
}

func TestCreateCheckoutSession_PaidBuildsSession(t *testing.T) {
	payments := new(MockPaymentProvider)
	repo := new(MockOrderRepository)

	var params *stripe.CheckoutSessionParams
	payments.On("CreateCheckoutSession", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { params = args.Get(1).(*stripe.CheckoutSessionParams) }).
		Return(&stripe.CheckoutSession{ID: "cs_test_1", URL: "https://checkout.stripe.com/c/pay/cs_test_1"}, nil)

	res, appErr := newTestCheckoutService(payments, repo, &recordingSNS{}).
		CreateCheckoutSession(context.Background(), checkoutRequest(t, `{
			"items":[{"id":"tee","name":"Tee","price":"12.50","quantity":2,"images":["https://img/tee.png"]},{"name":"Sample Pack Vol 1","price":19.99}],
			"customerEmail":"fan@example.com",
			"successUrl":"https://evil.example.com/success.html",
			"cancelUrl":"https://shop.example.com/checkout.html"}`))
	require.Nil(t, appErr)
	assert.Equal(t, "cs_test_1", res.ID)
	assert.Equal(t, "https://checkout.stripe.com/c/pay/cs_test_1", res.URL)

	require.NotNil(t, params)
	require.Len(t, params.LineItems, 2)
	assert.Equal(t, int64(1250), *params.LineItems[0].PriceData.UnitAmount)
	assert.Equal(t, int64(2), *params.LineItems[0].Quantity)
	assert.Equal(t, int64(1999), *params.LineItems[1].PriceData.UnitAmount)
	assert.Equal(t, "usd", *params.LineItems[0].PriceData.Currency)
	assert.Equal(t, stripe.StringSlice([]string{"https://img/tee.png"}), params.LineItems[0].PriceData.ProductData.Images)
	assert.Equal(t, "tee", params.LineItems[0].PriceData.ProductData.Metadata["item_id"])
	assert.Equal(t, "sample-pack-vol-1", params.LineItems[1].PriceData.ProductData.Metadata["item_id"])

	assert.Equal(t, testBaseURL+"/success.html?session_id={CHECKOUT_SESSION_ID}", *params.SuccessURL)
	assert.Equal(t, testBaseURL+"/checkout.html", *params.CancelURL)
	assert.Equal(t, "payment", *params.Mode)
	assert.Equal(t, "fan@example.com", *params.CustomerEmail)
	assert.Equal(t, "fan@example.com", *params.PaymentIntentData.ReceiptEmail)

	var items []models.OrderItem
	require.NoError(t, json.Unmarshal([]byte(params.Metadata["items"]), &items))
	assert.Equal(t, []models.OrderItem{
		{ID: "tee", Name: "Tee", Price: 12.5, Quantity: 2},
		{ID: "sample-pack-vol-1", Name: "Sample Pack Vol 1", Price: 19.99, Quantity: 1},
	}, items)
	assert.Equal(t, "Tee, Sample Pack Vol 1", params.Metadata["product_names"])
	assert.Equal(t, "byJ", params.Metadata["artist"])

	repo.AssertNotCalled(t, "SaveOrder", mock.Anything, mock.Anything)
}

func TestCreateCheckoutSession_OversizedMetadataOmitted(t *testing.T) {
	payments := new(MockPaymentProvider)
	var params *stripe.CheckoutSessionParams
	payments.On("CreateCheckoutSession", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { params = args.Get(1).(*stripe.CheckoutSessionParams) }).
		Return(&stripe.CheckoutSession{ID: "cs_test_big"}, nil)

	items := make([]string, 15)
	for i := range items {
		items[i] = fmt.Sprintf(`{"name":"Limited Edition Vinyl Pressing Number %02d","price":30}`, i)
	}
	_, appErr := newTestCheckoutService(payments, new(MockOrderRepository), &recordingSNS{}).
		CreateCheckoutSession(context.Background(), checkoutRequest(t, `{"items":[`+strings.Join(items, ",")+`]}`))
	require.Nil(t, appErr)

	_, ok := params.Metadata["items"]
	assert.False(t, ok)
	require.Len(t, params.LineItems, 15)
	assert.Equal(t, "limited-edition-vinyl-pressing-number-03", params.LineItems[3].PriceData.ProductData.Metadata["item_id"])
	assert.LessOrEqual(t, len([]rune(params.Metadata["product_names"])), 500)
}

func TestCreateCheckoutSession_ValidationErrors(t *testing.T) {
	svc := newTestCheckoutService(new(MockPaymentProvider), new(MockOrderRepository), &recordingSNS{})

	_, appErr := svc.CreateCheckoutSession(context.Background(), checkoutRequest(t, `{"items":[]}`))
	require.NotNil(t, appErr)
	assert.Equal(t, http.StatusBadRequest, appErr.Code)
	assert.Equal(t, "Items are required", appErr.Message)

	many := strings.TrimSuffix(strings.Repeat(`{"name":"x","price":1},`, 21), ",")
	_, appErr = svc.CreateCheckoutSession(context.Background(), checkoutRequest(t, `{"items":[`+many+`]}`))
	require.NotNil(t, appErr)
	assert.Equal(t, http.StatusBadRequest, appErr.Code)
	assert.Equal(t, "Maximum 20 items allowed", appErr.Message)

	_, appErr = svc.CreateCheckoutSession(context.Background(), checkoutRequest(t, `{"items":[{"name":"x","price":-5}]}`))
	require.NotNil(t, appErr)
	assert.Equal(t, http.StatusInternalServerError, appErr.Code)
	assert.Equal(t, "Failed to create checkout session", appErr.Message)
}

func TestCreateCheckoutSession_ProviderErrors(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{"invalid request", &stripe.Error{Type: stripe.ErrorTypeInvalidRequest, Msg: "bad amount"}, "Invalid payment request"},
		{"api error", &stripe.Error{Type: stripe.ErrorTypeAPI, Msg: "boom"}, "Failed to create checkout session"},
		{"transport", errors.New("dial tcp: timeout"), "Failed to create checkout session"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			payments := new(MockPaymentProvider)
			payments.On("CreateCheckoutSession", mock.Anything, mock.Anything).Return(nil, tc.err)

			_, appErr := newTestCheckoutService(payments, new(MockOrderRepository), &recordingSNS{}).
				CreateCheckoutSession(context.Background(), checkoutRequest(t, `{"items":[{"name":"Tee","price":10}]}`))
			require.NotNil(t, appErr)
			assert.Equal(t, http.StatusInternalServerError, appErr.Code)
			assert.Equal(t, tc.want, appErr.Message)
		})
	}
}

func TestResolveRedirects(t *testing.T) {
	cases := []struct {
		success, cancel         string
		wantSuccess, wantCancel string
	}{
		{"", "", "/success.html", "/checkout.html"},
		{testBaseURL + "/success.html", testBaseURL + "/checkout.html", "/success.html", "/checkout.html"},
		{testBaseURL + "/checkout.html", testBaseURL + "/success.html", "/checkout.html", "/success.html"},
		{"https://evil.example.com/success.html", "javascript:alert(1)", "/success.html", "/checkout.html"},
		{testBaseURL + "/success.html.evil.com", testBaseURL + "/checkout.html?x=1", "/success.html", "/checkout.html"},
	}
	for _, tc := range cases {
		success, cancel := ResolveRedirects(testBaseURL, tc.success, tc.cancel)
		assert.Equal(t, testBaseURL+tc.wantSuccess, success, tc.success)
		assert.Equal(t, testBaseURL+tc.wantCancel, cancel, tc.cancel)
	}
}

func TestFallbackFreeSessionID(t *testing.T) {
	id := fallbackFreeSessionID(testNow)
	assert.True(t, regexp.MustCompile(`^free_1760529600000_[0-9a-z]{9}$`).MatchString(id), id)
}
