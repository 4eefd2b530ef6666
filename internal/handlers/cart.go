// internal/handlers/cart.go
package handlers

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/greenbasket/commerce-backend/internal/services"
	"github.com/greenbasket/commerce-backend/internal/utils"
)

type CartHandler struct {
	cartService    *services.CartService
	defaultCountry string
}

func NewCartHandler(cartService *services.CartService, defaultCountry string) *CartHandler {
	return &CartHandler{
		cartService:    cartService,
		defaultCountry: defaultCountry,
	}
}

// GET /cart
func (h *CartHandler) GetCart(c *gin.Context) {
	userID, exists := utils.GetUserIDFromContext(c)
	if !exists {
		utils.UnauthorizedResponse(c, "")
		return
	}

	cart, err := h.cartService.GetOrCreateActiveCart(c.Request.Context(), userID)
	if err != nil {
		utils.InternalErrorResponse(c, "")
		return
	}

	items, err := h.cartService.LoadItems(c.Request.Context(), cart.ID)
	if err != nil {
		utils.InternalErrorResponse(c, "")
		return
	}
	cart.Items = items

	utils.SuccessResponse(c, cart)
}

// POST /cart/items
func (h *CartHandler) AddItem(c *gin.Context) {
	userID, exists := utils.GetUserIDFromContext(c)
	if !exists {
		utils.UnauthorizedResponse(c, "")
		return
	}

	var line services.SubmittedLine
	if err := c.ShouldBindJSON(&line); err != nil {
		utils.BadRequestResponse(c, "", err.Error())
		return
	}
	if err := utils.ValidateStruct(&line); err != nil {
		utils.ValidationErrorResponse(c, utils.FormatValidationErrors(err))
		return
	}

	cart, err := h.cartService.GetOrCreateActiveCart(c.Request.Context(), userID)
	if err != nil {
		utils.InternalErrorResponse(c, "")
		return
	}

	item, err := h.cartService.AddOrMergeLine(c.Request.Context(), cart.ID, line)
	if err != nil {
		h.writeCartError(c, err)
		return
	}

	utils.CreatedResponse(c, item)
}

// PUT /cart/items
func (h *CartHandler) SetItemQuantity(c *gin.Context) {
	userID, exists := utils.GetUserIDFromContext(c)
	if !exists {
		utils.UnauthorizedResponse(c, "")
		return
	}

	var line services.SubmittedLine
	if err := c.ShouldBindJSON(&line); err != nil {
		utils.BadRequestResponse(c, "", err.Error())
		return
	}
	// Quantity zero removes the line, so do not run struct validation here.
	if line.ProductID == 0 || line.Quantity < 0 {
		utils.BadRequestResponse(c, "Invalid cart line", nil)
		return
	}

	cart, err := h.cartService.GetOrCreateActiveCart(c.Request.Context(), userID)
	if err != nil {
		utils.InternalErrorResponse(c, "")
		return
	}

	if err := h.cartService.SetQuantity(c.Request.Context(), cart.ID, line); err != nil {
		h.writeCartError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{"cart_id": cart.ID})
}

// DELETE /cart/items/:product_id
func (h *CartHandler) RemoveItem(c *gin.Context) {
	userID, exists := utils.GetUserIDFromContext(c)
	if !exists {
		utils.UnauthorizedResponse(c, "")
		return
	}

	productID, err := strconv.ParseUint(c.Param("product_id"), 10, 32)
	if err != nil {
		utils.BadRequestResponse(c, "Invalid product ID", nil)
		return
	}

	var variantID *uint
	if v := c.Query("variant_id"); v != "" {
		id64, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			utils.BadRequestResponse(c, "Invalid variant ID", nil)
			return
		}
		id := uint(id64)
		variantID = &id
	}

	cart, err := h.cartService.GetOrCreateActiveCart(c.Request.Context(), userID)
	if err != nil {
		utils.InternalErrorResponse(c, "")
		return
	}

	if err := h.cartService.RemoveLine(c.Request.Context(), cart.ID, uint(productID), variantID); err != nil {
		h.writeCartError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{"cart_id": cart.ID})
}

// GET /cart/totals
func (h *CartHandler) GetTotals(c *gin.Context) {
	userID, exists := utils.GetUserIDFromContext(c)
	if !exists {
		utils.UnauthorizedResponse(c, "")
		return
	}

	cart, err := h.cartService.GetOrCreateActiveCart(c.Request.Context(), userID)
	if err != nil {
		utils.InternalErrorResponse(c, "")
		return
	}

	totals, err := h.cartService.Totals(c.Request.Context(), cart.ID, countryFromRequest(c, h.defaultCountry))
	if err != nil {
		h.writeCartError(c, err)
		return
	}

	utils.SuccessResponse(c, totals)
}

func (h *CartHandler) writeCartError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrCartNotFound):
		utils.NotFoundResponse(c, "Cart")
	case errors.Is(err, services.ErrProductNotFound):
		utils.NotFoundResponse(c, "Product")
	case errors.Is(err, services.ErrVariantNotFound):
		utils.NotFoundResponse(c, "Variant")
	case errors.Is(err, services.ErrCartCheckedOut):
		utils.ConflictResponse(c, "Cart is already checked out", nil)
	default:
		utils.BadRequestResponse(c, err.Error(), nil)
	}
}
