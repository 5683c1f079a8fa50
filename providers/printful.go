package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"storefront-service/models"
)

const printfulBaseURL = "https://api.printful.com"

// ErrFulfillmentNotConfigured is returned when no Printful token is set.
var ErrFulfillmentNotConfigured = errors.New("printful token not configured")

// FulfillmentSetupHint tells an operator how to enable Printful.
const FulfillmentSetupHint = "Printful OAuth token not configured. Please set PRINTFUL_OAUTH_TOKEN environment variable. Get your OAuth token from https://developers.printful.com/"

// PrintfulError is a non-2xx answer from the Printful API.
type PrintfulError struct {
	StatusCode int
	Message    string
}

func (e *PrintfulError) Error() string {
	return fmt.Sprintf("Printful API error: %s (%d)", e.Message, e.StatusCode)
}

// FulfillmentProvider is the print-on-demand catalog and order API.
type FulfillmentProvider interface {
	ListProducts(ctx context.Context, categoryID string) (json.RawMessage, error)
	GetProduct(ctx context.Context, productID string) (json.RawMessage, error)
	CreateMockupTask(ctx context.Context, task models.MockupTask) (string, error)
	GetMockupTask(ctx context.Context, taskKey string) (json.RawMessage, error)
	CreateOrder(ctx context.Context, order json.RawMessage) (json.RawMessage, error)
	GetOrder(ctx context.Context, orderID string) (json.RawMessage, error)
	EstimateShipping(ctx context.Context, shipping json.RawMessage) (json.RawMessage, error)
	CreateDesignerNonce(ctx context.Context, req models.DesignerNonceRequest) (*models.DesignerNonce, error)
	GetDesignByNonce(ctx context.Context, nonce string) (json.RawMessage, error)
}

// PrintfulProvider implements FulfillmentProvider against the Printful v1 and v2 APIs.
type PrintfulProvider struct {
	token      string
	storeID    string
	baseURL    string
	httpClient *http.Client
}

// NewPrintfulProvider creates a PrintfulProvider. An empty baseURL uses the public API.
func NewPrintfulProvider(token, storeID, baseURL string) *PrintfulProvider {
	if baseURL == "" {
		baseURL = printfulBaseURL
	}
	return &PrintfulProvider{
		token:   token,
		storeID: storeID,
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// v1 wraps payloads in "result", v2 in "data".
type v1Envelope struct {
	Result json.RawMessage `json:"result"`
}

type v2Envelope struct {
	Data json.RawMessage `json:"data"`
}

// ListProducts returns the catalog as a JSON array.
func (p *PrintfulProvider) ListProducts(ctx context.Context, categoryID string) (json.RawMessage, error) {
	q := url.Values{"limit": {"100"}}
	if categoryID != "" {
		q.Set("category_id", categoryID)
	}
	var resp v1Envelope
	if err := p.doRequest(ctx, http.MethodGet, "/catalog/products?"+q.Encode(), nil, &resp); err != nil {
		return nil, fmt.Errorf("printful ListProducts: %w", err)
	}

	result := bytes.TrimSpace(resp.Result)
	switch {
	case len(result) == 0 || bytes.Equal(result, []byte("null")):
		return json.RawMessage("[]"), nil
	case result[0] == '[':
		return result, nil
	case result[0] == '{':
		var wrapped struct {
			Products json.RawMessage `json:"products"`
		}
		if err := json.Unmarshal(result, &wrapped); err != nil {
			return nil, fmt.Errorf("printful ListProducts: decode result: %w", err)
		}
		products := bytes.TrimSpace(wrapped.Products)
		if len(products) == 0 || bytes.Equal(products, []byte("null")) {
			return json.RawMessage("[]"), nil
		}
		return products, nil
	}
	return result, nil
}

// GetProduct returns one catalog product with its variants.
func (p *PrintfulProvider) GetProduct(ctx context.Context, productID string) (json.RawMessage, error) {
	var resp v1Envelope
	if err := p.doRequest(ctx, http.MethodGet, "/catalog/products/"+url.PathEscape(productID), nil, &resp); err != nil {
		return nil, fmt.Errorf("printful GetProduct: %w", err)
	}
	var wrapped struct {
		Product json.RawMessage `json:"product"`
	}
	if json.Unmarshal(resp.Result, &wrapped) == nil && len(wrapped.Product) > 0 && string(wrapped.Product) != "null" {
		return wrapped.Product, nil
	}
	return orNull(resp.Result), nil
}

// CreateMockupTask starts a mockup generation task and returns its key.
func (p *PrintfulProvider) CreateMockupTask(ctx context.Context, task models.MockupTask) (string, error) {
	var resp v2Envelope
	if err := p.doRequest(ctx, http.MethodPost, "/v2/mockup-generator/tasks", task, &resp); err != nil {
		return "", fmt.Errorf("printful CreateMockupTask: %w", err)
	}

	type keyed struct {
		TaskKey string `json:"task_key"`
	}
	data := bytes.TrimSpace(resp.Data)
	if len(data) > 0 && data[0] == '[' {
		var tasks []keyed
		if err := json.Unmarshal(data, &tasks); err != nil {
			return "", fmt.Errorf("printful CreateMockupTask: decode data: %w", err)
		}
		if len(tasks) == 0 {
			return "", fmt.Errorf("printful CreateMockupTask: no task returned")
		}
		return tasks[0].TaskKey, nil
	}
	var one keyed
	if err := json.Unmarshal(orNull(data), &one); err != nil {
		return "", fmt.Errorf("printful CreateMockupTask: decode data: %w", err)
	}
	return one.TaskKey, nil
}

func (p *PrintfulProvider) GetMockupTask(ctx context.Context, taskKey string) (json.RawMessage, error) {
	var resp v2Envelope
	if err := p.doRequest(ctx, http.MethodGet, "/v2/mockup-generator/tasks/"+url.PathEscape(taskKey), nil, &resp); err != nil {
		return nil, fmt.Errorf("printful GetMockupTask: %w", err)
	}
	return orNull(resp.Data), nil
}

func (p *PrintfulProvider) CreateOrder(ctx context.Context, order json.RawMessage) (json.RawMessage, error) {
	var resp v2Envelope
	if err := p.doRequest(ctx, http.MethodPost, "/v2/orders", order, &resp); err != nil {
		return nil, fmt.Errorf("printful CreateOrder: %w", err)
	}
	return orNull(resp.Data), nil
}

// GetOrder looks an order up by its external id.
func (p *PrintfulProvider) GetOrder(ctx context.Context, orderID string) (json.RawMessage, error) {
	var resp v1Envelope
	if err := p.doRequest(ctx, http.MethodGet, "/orders/@"+url.PathEscape(orderID), nil, &resp); err != nil {
		return nil, fmt.Errorf("printful GetOrder: %w", err)
	}
	return orNull(resp.Result), nil
}

func (p *PrintfulProvider) EstimateShipping(ctx context.Context, shipping json.RawMessage) (json.RawMessage, error) {
	var resp v2Envelope
	if err := p.doRequest(ctx, http.MethodPost, "/v2/shipping-rates", shipping, &resp); err != nil {
		return nil, fmt.Errorf("printful EstimateShipping: %w", err)
	}
	return orNull(resp.Data), nil
}

// CreateDesignerNonce issues a nonce for the embedded design maker.
func (p *PrintfulProvider) CreateDesignerNonce(ctx context.Context, req models.DesignerNonceRequest) (*models.DesignerNonce, error) {
	var resp struct {
		Result *models.DesignerNonce `json:"result"`
	}
	if err := p.doRequest(ctx, http.MethodPost, "/embedded-designer/nonces", req, &resp); err != nil {
		return nil, fmt.Errorf("printful CreateDesignerNonce: %w", err)
	}
	if resp.Result == nil {
		return &models.DesignerNonce{}, nil
	}
	return resp.Result, nil
}

func (p *PrintfulProvider) GetDesignByNonce(ctx context.Context, nonce string) (json.RawMessage, error) {
	var resp v1Envelope
	path := "/embedded-designer/designs?" + url.Values{"nonce": {nonce}}.Encode()
	if err := p.doRequest(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, fmt.Errorf("printful GetDesignByNonce: %w", err)
	}
	return orNull(resp.Result), nil
}

// ---- HTTP helper ----

func (p *PrintfulProvider) doRequest(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	if p.token == "" {
		return ErrFulfillmentNotConfigured
	}

	var reqBody io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.token)
	req.Header.Set("Content-Type", "application/json")
	if p.storeID != "" {
		req.Header.Set("X-PF-Store-Id", p.storeID)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http do: %w", err)
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &PrintfulError{StatusCode: resp.StatusCode, Message: upstreamMessage(respBytes, resp.Status)}
	}

	if out != nil {
		if err := json.Unmarshal(respBytes, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// upstreamMessage pulls a human message out of a Printful error body.
func upstreamMessage(body []byte, status string) string {
	var parsed struct {
		Message string          `json:"message"`
		Result  json.RawMessage `json:"result"`
		Error   struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil {
		if parsed.Message != "" {
			return parsed.Message
		}
		if parsed.Error.Message != "" {
			return parsed.Error.Message
		}
		var s string
		if json.Unmarshal(parsed.Result, &s) == nil && s != "" {
			return s
		}
	}
	if text := strings.TrimSpace(string(body)); text != "" && !json.Valid(body) {
		return text
	}
	return status
}

func orNull(raw json.RawMessage) json.RawMessage {
	if len(bytes.TrimSpace(raw)) == 0 {
		return json.RawMessage("null")
	}
	return raw
}
