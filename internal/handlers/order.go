// internal/handlers/order.go
package handlers

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/greenbasket/commerce-backend/internal/models"
	"github.com/greenbasket/commerce-backend/internal/services"
	"github.com/greenbasket/commerce-backend/internal/utils"
)

type OrderHandler struct {
	orderService   *services.OrderService
	cartService    *services.CartService
	defaultCountry string
	log            *logrus.Entry
}

func NewOrderHandler(orderService *services.OrderService, cartService *services.CartService, defaultCountry string) *OrderHandler {
	return &OrderHandler{
		orderService:   orderService,
		cartService:    cartService,
		defaultCountry: defaultCountry,
		log:            logrus.WithField("component", "orders_api"),
	}
}

type checkoutRequest struct {
	CartID        uint                 `json:"cart_id" validate:"required"`
	PaymentMethod models.PaymentMethod `json:"payment_method" validate:"required,oneof=card bank-transfer cash-on-delivery"`
	CountryCode   string               `json:"country_code" validate:"omitempty,country_code"`

	FullName string `json:"full_name" validate:"required,max=150"`
	Email    string `json:"email" validate:"omitempty,email"`
	Phone    string `json:"phone" validate:"max=40"`
	Address1 string `json:"address1" validate:"required,max=200"`
	Address2 string `json:"address2" validate:"max=200"`
	City     string `json:"city" validate:"max=80"`
	State    string `json:"state" validate:"max=80"`
	Postcode string `json:"postcode" validate:"max=20"`
	Country  string `json:"country" validate:"max=60"`
	Notes    string `json:"notes"`
}

type confirmRequest struct {
	Provider      string `json:"provider"`
	TransactionID string `json:"transaction_id"`
	Amount        string `json:"amount"`
	Currency      string `json:"currency"`
}

// POST /orders
func (h *OrderHandler) Checkout(c *gin.Context) {
	userID, exists := utils.GetUserIDFromContext(c)
	if !exists {
		utils.UnauthorizedResponse(c, "")
		return
	}

	var req checkoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "", err.Error())
		return
	}
	if err := utils.ValidateStruct(&req); err != nil {
		utils.ValidationErrorResponse(c, utils.FormatValidationErrors(err))
		return
	}

	countryCode := req.CountryCode
	if countryCode == "" {
		countryCode = countryFromRequest(c, h.defaultCountry)
	}

	details := &models.OrderCheckoutDetails{
		FullName: req.FullName,
		Email:    req.Email,
		Phone:    req.Phone,
		Address1: req.Address1,
		Address2: req.Address2,
		City:     req.City,
		State:    req.State,
		Postcode: req.Postcode,
		Country:  req.Country,
		Notes:    req.Notes,
	}

	order, err := h.orderService.CreateFromCart(c.Request.Context(), userID, req.CartID,
		countryCode, req.PaymentMethod, details)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrCartNotFound):
			utils.NotFoundResponse(c, "Cart")
		case errors.Is(err, services.ErrCartCheckedOut):
			utils.ConflictResponse(c, "Cart is already checked out", nil)
		default:
			utils.BadRequestResponse(c, err.Error(), nil)
		}
		return
	}

	utils.CreatedResponse(c, order)
}

// POST /orders/:id/confirm
func (h *OrderHandler) Confirm(c *gin.Context) {
	userID, exists := utils.GetUserIDFromContext(c)
	if !exists {
		utils.UnauthorizedResponse(c, "")
		return
	}

	orderID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		utils.BadRequestResponse(c, "Invalid order ID", nil)
		return
	}

	order, err := h.orderService.Get(c.Request.Context(), uint(orderID))
	if err != nil {
		if errors.Is(err, services.ErrOrderNotFound) {
			utils.NotFoundResponse(c, "Order")
			return
		}
		utils.InternalErrorResponse(c, "")
		return
	}
	if order.UserID != userID {
		utils.NotFoundResponse(c, "Order")
		return
	}

	var req confirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "", err.Error())
		return
	}

	confirmation, err := h.buildConfirmation(c, order, &req)
	if err != nil {
		utils.InternalErrorResponse(c, "")
		return
	}
	result, err := h.orderService.Confirm(c.Request.Context(), order.ID, confirmation)
	if err != nil {
		h.writeConfirmError(c, result, err)
		return
	}

	utils.SuccessResponse(c, result)
}

func (h *OrderHandler) buildConfirmation(c *gin.Context, order *models.Order, req *confirmRequest) (*services.PaymentConfirmation, error) {
	method := models.PaymentMethod(order.PaymentMethod)
	if method == models.PaymentMethodCashOnDelivery {
		// The payable amount comes from the cart; snapshot items do not
		// exist until the confirm transition runs.
		totals, err := h.cartService.Totals(c.Request.Context(), order.CartID, order.CountryCode)
		if err != nil {
			if errors.Is(err, services.ErrCartCheckedOut) {
				// Re-confirming an already confirmed order; the amount is
				// ignored on the no-op path.
				return services.NewCODConfirmation(decimal.Zero, order.Currency), nil
			}
			return nil, err
		}
		amount, _ := decimal.NewFromString(totals.GrandTotal)
		return services.NewCODConfirmation(amount, order.Currency), nil
	}

	amount := decimal.Zero
	if req.Amount != "" {
		parsed, err := decimal.NewFromString(req.Amount)
		if err != nil {
			// Zero-defaulted, never rejected; verification decides whether
			// the confirmation stands.
			h.log.WithError(err).WithFields(logrus.Fields{
				"order_id": order.ID,
				"amount":   req.Amount,
			}).Warn("malformed confirmation amount, defaulting to zero")
		} else {
			amount = parsed
		}
	}
	currency := req.Currency
	if currency == "" {
		currency = order.Currency
	}
	return &services.PaymentConfirmation{
		Method:        method,
		Provider:      req.Provider,
		TransactionID: req.TransactionID,
		Amount:        amount,
		Currency:      currency,
	}, nil
}

func (h *OrderHandler) writeConfirmError(c *gin.Context, result *services.ConfirmResult, err error) {
	var stockErr *services.InsufficientStockError
	switch {
	case errors.As(err, &stockErr):
		utils.ConflictResponse(c, "Insufficient stock", gin.H{
			"pool":      stockErr.Pool.String(),
			"requested": stockErr.Requested,
			"available": stockErr.Available,
			"result":    result,
		})
	case errors.Is(err, services.ErrPaymentNotVerified):
		utils.ErrorResponse(c, 402, "PAYMENT_NOT_VERIFIED", "Payment could not be verified", nil)
	case errors.Is(err, services.ErrOrderNotFound):
		utils.NotFoundResponse(c, "Order")
	default:
		// Internal failure detail stays in the logs; the caller gets an
		// opaque message.
		utils.InternalErrorResponse(c, "order confirmation failed")
	}
}

// POST /orders/:id/cancel
func (h *OrderHandler) Cancel(c *gin.Context) {
	userID, exists := utils.GetUserIDFromContext(c)
	if !exists {
		utils.UnauthorizedResponse(c, "")
		return
	}

	orderID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		utils.BadRequestResponse(c, "Invalid order ID", nil)
		return
	}

	order, err := h.orderService.Get(c.Request.Context(), uint(orderID))
	if err != nil {
		if errors.Is(err, services.ErrOrderNotFound) {
			utils.NotFoundResponse(c, "Order")
			return
		}
		utils.InternalErrorResponse(c, "")
		return
	}
	if order.UserID != userID {
		utils.NotFoundResponse(c, "Order")
		return
	}

	result, err := h.orderService.Cancel(c.Request.Context(), order.ID)
	if err != nil {
		utils.InternalErrorResponse(c, "")
		return
	}

	utils.SuccessResponse(c, result)
}

// GET /orders/:id
func (h *OrderHandler) GetOrder(c *gin.Context) {
	userID, exists := utils.GetUserIDFromContext(c)
	if !exists {
		utils.UnauthorizedResponse(c, "")
		return
	}

	orderID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		utils.BadRequestResponse(c, "Invalid order ID", nil)
		return
	}

	order, err := h.orderService.Get(c.Request.Context(), uint(orderID))
	if err != nil {
		if errors.Is(err, services.ErrOrderNotFound) {
			utils.NotFoundResponse(c, "Order")
			return
		}
		utils.InternalErrorResponse(c, "")
		return
	}
	if order.UserID != userID {
		utils.NotFoundResponse(c, "Order")
		return
	}

	utils.SuccessResponse(c, order)
}

// PUT /staff/orders/:id/shipment — fulfillment staff only.
func (h *OrderHandler) UpdateShipmentStatus(c *gin.Context) {
	orderID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		utils.BadRequestResponse(c, "Invalid order ID", nil)
		return
	}

	var req struct {
		Status models.ShipmentStatus `json:"status" validate:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "", err.Error())
		return
	}

	if err := h.orderService.UpdateShipmentStatus(c.Request.Context(), uint(orderID), req.Status); err != nil {
		if errors.Is(err, services.ErrOrderNotFound) {
			utils.NotFoundResponse(c, "Order")
			return
		}
		utils.BadRequestResponse(c, err.Error(), nil)
		return
	}

	utils.SuccessResponse(c, gin.H{"order_id": orderID, "shipment_status": req.Status})
}
