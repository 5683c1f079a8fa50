package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"storefront-service/apperrors"
	"storefront-service/logger"
	"storefront-service/models"
	"storefront-service/providers"

	"go.uber.org/zap"
)

const (
	defaultMockupFormat = "jpg"
	defaultMockupWidth  = 1000

	OrderActionCreate           = "create"
	OrderActionEstimateShipping = "estimate_shipping"
)

// FulfillmentService proxies the print-on-demand API for the storefront.
type FulfillmentService interface {
	ListProducts(ctx context.Context, categoryID string) (json.RawMessage, *apperrors.Error)
	GetProduct(ctx context.Context, productID string) (json.RawMessage, *apperrors.Error)
	CreateMockup(ctx context.Context, req *models.MockupRequest) (string, *apperrors.Error)
	GetMockupTask(ctx context.Context, taskKey string) (json.RawMessage, *apperrors.Error)
	// SubmitOrder runs an order action and returns the response key with its payload.
	SubmitOrder(ctx context.Context, req *models.FulfillmentOrderRequest) (string, json.RawMessage, *apperrors.Error)
	GetOrder(ctx context.Context, orderID string) (json.RawMessage, *apperrors.Error)
	CreateDesignerNonce(ctx context.Context, req *models.DesignerNonceRequest) (*models.DesignerNonce, *apperrors.Error)
	GetDesign(ctx context.Context, nonce string) (json.RawMessage, *apperrors.Error)
}

type fulfillmentServiceImpl struct {
	provider providers.FulfillmentProvider
	logger   *zap.Logger
}

func NewFulfillmentService(provider providers.FulfillmentProvider, logger *zap.Logger) FulfillmentService {
	return &fulfillmentServiceImpl{provider: provider, logger: logger}
}

func (s *fulfillmentServiceImpl) ListProducts(ctx context.Context, categoryID string) (json.RawMessage, *apperrors.Error) {
	products, err := s.provider.ListProducts(ctx, categoryID)
	if err != nil {
		return nil, s.catalogError(ctx, err)
	}
	if trimmed := bytes.TrimSpace(products); len(trimmed) == 0 || trimmed[0] != '[' {
		logger.For(ctx, s.logger).Error("Products is not an array", zap.ByteString("products", products))
		return nil, apperrors.New(apperrors.KindUpstream, http.StatusInternalServerError, "Invalid products response format", nil).
			WithDetail("Products data is not in expected format").
			WithField("success", false)
	}
	return products, nil
}

func (s *fulfillmentServiceImpl) GetProduct(ctx context.Context, productID string) (json.RawMessage, *apperrors.Error) {
	product, err := s.provider.GetProduct(ctx, productID)
	if err != nil {
		return nil, s.catalogError(ctx, err)
	}
	return product, nil
}

func (s *fulfillmentServiceImpl) catalogError(ctx context.Context, err error) *apperrors.Error {
	logger.For(ctx, s.logger).Error("Error fetching Printful products", zap.Error(err))
	auth := isFulfillmentAuthError(err)
	msg, kind := "Failed to fetch products", apperrors.KindUpstream
	if auth {
		msg, kind = "Authentication failed", apperrors.KindAuth
	}
	detail := err.Error()
	if errors.Is(err, providers.ErrFulfillmentNotConfigured) {
		detail = providers.FulfillmentSetupHint
	}
	return apperrors.New(kind, http.StatusInternalServerError, msg, err).
		WithDetail(detail).
		WithField("success", false).
		WithField("requiresAuth", auth)
}

func isFulfillmentAuthError(err error) bool {
	if errors.Is(err, providers.ErrFulfillmentNotConfigured) {
		return true
	}
	var pfErr *providers.PrintfulError
	return errors.As(err, &pfErr) && pfErr.StatusCode == http.StatusUnauthorized
}

// CreateMockup starts a mockup task. Single variant ids or files are
// accepted and wrapped into lists.
func (s *fulfillmentServiceImpl) CreateMockup(ctx context.Context, req *models.MockupRequest) (string, *apperrors.Error) {
	variants, files := asList(req.VariantIDs), asList(req.Files)
	if variants == nil || files == nil {
		return "", apperrors.Validation("Missing required fields: variant_ids, files")
	}
	task := models.MockupTask{
		VariantIDs: variants,
		Format:     req.Format,
		Width:      req.Width,
		Files:      files,
	}
	if task.Format == "" {
		task.Format = defaultMockupFormat
	}
	if task.Width == 0 {
		task.Width = defaultMockupWidth
	}

	key, err := s.provider.CreateMockupTask(ctx, task)
	if err != nil {
		return "", s.upstream(ctx, "Failed to process mockup request", err)
	}
	return key, nil
}

func (s *fulfillmentServiceImpl) GetMockupTask(ctx context.Context, taskKey string) (json.RawMessage, *apperrors.Error) {
	if taskKey == "" {
		return nil, apperrors.Validation("Missing task_key parameter")
	}
	task, err := s.provider.GetMockupTask(ctx, taskKey)
	if err != nil {
		return nil, s.upstream(ctx, "Failed to process mockup request", err)
	}
	return task, nil
}

func (s *fulfillmentServiceImpl) SubmitOrder(ctx context.Context, req *models.FulfillmentOrderRequest) (string, json.RawMessage, *apperrors.Error) {
	switch req.Action {
	case OrderActionCreate:
		if isAbsent(req.OrderData) {
			return "", nil, apperrors.Validation("Missing order_data")
		}
		order, err := s.provider.CreateOrder(ctx, req.OrderData)
		if err != nil {
			return "", nil, s.upstream(ctx, "Failed to process order", err)
		}
		return "order", order, nil
	case OrderActionEstimateShipping:
		if isAbsent(req.ShippingData) {
			return "", nil, apperrors.Validation("Missing shipping_data")
		}
		rates, err := s.provider.EstimateShipping(ctx, req.ShippingData)
		if err != nil {
			return "", nil, s.upstream(ctx, "Failed to process order", err)
		}
		return "rates", rates, nil
	}
	return "", nil, apperrors.Validation(`Invalid action. Use "create" or "estimate_shipping"`)
}

func (s *fulfillmentServiceImpl) GetOrder(ctx context.Context, orderID string) (json.RawMessage, *apperrors.Error) {
	if orderID == "" {
		return nil, apperrors.Validation("Missing order_id parameter")
	}
	order, err := s.provider.GetOrder(ctx, orderID)
	if err != nil {
		return nil, s.upstream(ctx, "Failed to process order", err)
	}
	return order, nil
}

func (s *fulfillmentServiceImpl) CreateDesignerNonce(ctx context.Context, req *models.DesignerNonceRequest) (*models.DesignerNonce, *apperrors.Error) {
	if err := validate.Struct(req); err != nil {
		return nil, apperrors.Validation("Missing required field: external_product_id")
	}
	nonce, err := s.provider.CreateDesignerNonce(ctx, *req)
	if err != nil {
		return nil, s.designerError(ctx, err)
	}
	return nonce, nil
}

func (s *fulfillmentServiceImpl) GetDesign(ctx context.Context, nonce string) (json.RawMessage, *apperrors.Error) {
	if nonce == "" {
		return nil, apperrors.Validation("Missing nonce parameter")
	}
	design, err := s.provider.GetDesignByNonce(ctx, nonce)
	if err != nil {
		return nil, s.designerError(ctx, err)
	}
	return design, nil
}

// designerError maps an upstream 404 to 403: the embedded designer answers
// 404 to accounts without access to it.
func (s *fulfillmentServiceImpl) designerError(ctx context.Context, err error) *apperrors.Error {
	var pfErr *providers.PrintfulError
	if errors.As(err, &pfErr) && pfErr.StatusCode == http.StatusNotFound {
		logger.For(ctx, s.logger).Warn("Embedded Design Maker not available for this account", zap.Error(err))
		return apperrors.Auth(http.StatusForbidden, "Embedded Design Maker access required", err).
			WithDetail("The Printful Embedded Design Maker requires special enterprise access. Please request access at https://developers.printful.com/docs/edm/ or contact Printful support.").
			WithField("requiresAccess", true)
	}
	return s.upstream(ctx, "Failed to process designer request", err)
}

func (s *fulfillmentServiceImpl) upstream(ctx context.Context, msg string, err error) *apperrors.Error {
	logger.For(ctx, s.logger).Error(msg, zap.Error(err))
	return apperrors.Upstream(msg, err).WithDetail(err.Error())
}

// isAbsent treats missing, null and falsy JSON scalars as not provided.
func isAbsent(raw json.RawMessage) bool {
	switch string(bytes.TrimSpace(raw)) {
	case "", "null", "false", "0", `""`:
		return true
	}
	return false
}

// asList returns raw as a list of elements, wrapping a scalar. Absent values
// yield nil.
func asList(raw json.RawMessage) []json.RawMessage {
	if isAbsent(raw) {
		return nil
	}
	trimmed := bytes.TrimSpace(raw)
	if trimmed[0] == '[' {
		var list []json.RawMessage
		if err := json.Unmarshal(trimmed, &list); err == nil {
			return list
		}
	}
	return []json.RawMessage{trimmed}
}
