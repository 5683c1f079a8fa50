package controllers

import (
	"net/http"

	"storefront-service/apperrors"
	"storefront-service/models"
	"storefront-service/services"

	"github.com/gin-gonic/gin"
)

// FulfillmentController proxies the print-on-demand catalog, mockups,
// orders and embedded designer.
type FulfillmentController struct {
	fulfillment services.FulfillmentService
}

func NewFulfillmentController(svc services.FulfillmentService) *FulfillmentController {
	return &FulfillmentController{fulfillment: svc}
}

// Products handles GET /api/printful-products
func (fc *FulfillmentController) Products(ctx *gin.Context) {
	if productID := ctx.Query("product_id"); productID != "" {
		product, appErr := fc.fulfillment.GetProduct(ctx.Request.Context(), productID)
		if appErr != nil {
			_ = ctx.Error(appErr)
			return
		}
		ctx.JSON(http.StatusOK, gin.H{"success": true, "product": product})
		return
	}

	products, appErr := fc.fulfillment.ListProducts(ctx.Request.Context(), ctx.Query("category_id"))
	if appErr != nil {
		_ = ctx.Error(appErr)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"success": true, "products": products})
}

// CreateMockup handles POST /api/printful-mockup
func (fc *FulfillmentController) CreateMockup(ctx *gin.Context) {
	var req models.MockupRequest
	if !bindJSON(ctx, &req) {
		return
	}
	taskKey, appErr := fc.fulfillment.CreateMockup(ctx.Request.Context(), &req)
	if appErr != nil {
		_ = ctx.Error(appErr)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"success": true, "task_key": taskKey})
}

// GetMockup handles GET /api/printful-mockup?task_key=
func (fc *FulfillmentController) GetMockup(ctx *gin.Context) {
	task, appErr := fc.fulfillment.GetMockupTask(ctx.Request.Context(), ctx.Query("task_key"))
	if appErr != nil {
		_ = ctx.Error(appErr)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"success": true, "task": task})
}

// SubmitOrder handles POST /api/printful-order
func (fc *FulfillmentController) SubmitOrder(ctx *gin.Context) {
	var req models.FulfillmentOrderRequest
	if !bindJSON(ctx, &req) {
		return
	}
	key, payload, appErr := fc.fulfillment.SubmitOrder(ctx.Request.Context(), &req)
	if appErr != nil {
		_ = ctx.Error(appErr)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"success": true, key: payload})
}

// GetOrder handles GET /api/printful-order?order_id=
func (fc *FulfillmentController) GetOrder(ctx *gin.Context) {
	order, appErr := fc.fulfillment.GetOrder(ctx.Request.Context(), ctx.Query("order_id"))
	if appErr != nil {
		_ = ctx.Error(appErr)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"success": true, "order": order})
}

// CreateDesignerNonce handles POST /api/printful-designer-nonce
func (fc *FulfillmentController) CreateDesignerNonce(ctx *gin.Context) {
	var req models.DesignerNonceRequest
	if !bindJSON(ctx, &req) {
		return
	}
	nonce, appErr := fc.fulfillment.CreateDesignerNonce(ctx.Request.Context(), &req)
	if appErr != nil {
		_ = ctx.Error(appErr)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"success": true, "nonce": nonce.Nonce, "expires_at": nonce.ExpiresAt})
}

// GetDesign handles GET /api/printful-designer-nonce?nonce=
func (fc *FulfillmentController) GetDesign(ctx *gin.Context) {
	design, appErr := fc.fulfillment.GetDesign(ctx.Request.Context(), ctx.Query("nonce"))
	if appErr != nil {
		_ = ctx.Error(appErr)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"success": true, "design": design})
}

// bindJSON decodes the body, treating an empty body as an empty object.
func bindJSON(ctx *gin.Context, dst any) bool {
	if ctx.Request.ContentLength == 0 {
		return true
	}
	if err := ctx.ShouldBindJSON(dst); err != nil {
		_ = ctx.Error(apperrors.Validation("Invalid request body").WithDetail(err.Error()))
		return false
	}
	return true
}
