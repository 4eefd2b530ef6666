// internal/handlers/catalog.go
package handlers

import (
	"errors"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/greenbasket/commerce-backend/internal/services"
	"github.com/greenbasket/commerce-backend/internal/utils"
)

type CatalogHandler struct {
	catalogService *services.CatalogService
	pricingService *services.PricingService
	reviewService  *services.ReviewService
	defaultCountry string
}

func NewCatalogHandler(catalogService *services.CatalogService, pricingService *services.PricingService,
	reviewService *services.ReviewService, defaultCountry string) *CatalogHandler {
	return &CatalogHandler{
		catalogService: catalogService,
		pricingService: pricingService,
		reviewService:  reviewService,
		defaultCountry: defaultCountry,
	}
}

// countryFromRequest resolves the pricing country: explicit query parameter
// first, then header, then the configured default.
func countryFromRequest(c *gin.Context, defaultCountry string) string {
	if cc := strings.ToUpper(c.Query("country")); len(cc) == 2 {
		return cc
	}
	if cc := strings.ToUpper(c.GetHeader("X-Country-Code")); len(cc) == 2 {
		return cc
	}
	return defaultCountry
}

// GET /products
func (h *CatalogHandler) GetProducts(c *gin.Context) {
	params := utils.GetPaginationParams(c)

	searchParams := services.ProductSearchParams{
		PaginationParams: params,
		Category:         c.Query("category"),
	}
	if v := c.Query("vendor_id"); v != "" {
		if id64, err := strconv.ParseUint(v, 10, 32); err == nil {
			id := uint(id64)
			searchParams.VendorID = &id
		}
	}
	if v := c.Query("in_stock"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			searchParams.InStock = &b
		}
	}
	if v := c.Query("featured"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			searchParams.Featured = &b
		}
	}
	if v := c.Query("new_arrival"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			searchParams.NewArrival = &b
		}
	}
	if tags := c.Query("tags"); tags != "" {
		searchParams.Tags = strings.Split(tags, ",")
	}

	products, total, err := h.catalogService.SearchProducts(c.Request.Context(), searchParams)
	if err != nil {
		utils.InternalErrorResponse(c, "")
		return
	}

	result := utils.CreatePaginationResult(products, total, params)
	utils.PaginatedResponse(c, result)
}

// GET /products/:id
func (h *CatalogHandler) GetProduct(c *gin.Context) {
	productID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		utils.BadRequestResponse(c, "Invalid product ID", nil)
		return
	}

	product, err := h.catalogService.GetProduct(c.Request.Context(), uint(productID))
	if err != nil {
		if errors.Is(err, services.ErrProductNotFound) {
			utils.NotFoundResponse(c, "Product")
			return
		}
		utils.InternalErrorResponse(c, "")
		return
	}
	utils.SuccessResponse(c, product)
}

// GET /categories
func (h *CatalogHandler) GetCategories(c *gin.Context) {
	categories, err := h.catalogService.ListCategories(c.Request.Context())
	if err != nil {
		utils.InternalErrorResponse(c, "")
		return
	}
	utils.SuccessResponse(c, categories)
}

// GET /products/:id/quote
func (h *CatalogHandler) GetQuote(c *gin.Context) {
	productID, err := strconv.ParseUint(c.Param("id"), 10, 32)
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

	quote, err := h.pricingService.Quote(c.Request.Context(), uint(productID), variantID, countryFromRequest(c, h.defaultCountry))
	if err != nil {
		switch {
		case errors.Is(err, services.ErrProductNotFound):
			utils.NotFoundResponse(c, "Product")
		case errors.Is(err, services.ErrVariantNotFound):
			utils.NotFoundResponse(c, "Variant")
		default:
			utils.InternalErrorResponse(c, "")
		}
		return
	}

	utils.SuccessResponse(c, quote)
}

// GET /products/:id/reviews
func (h *CatalogHandler) GetReviews(c *gin.Context) {
	productID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		utils.BadRequestResponse(c, "Invalid product ID", nil)
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	reviews, err := h.reviewService.ListForProduct(c.Request.Context(), uint(productID), limit)
	if err != nil {
		utils.InternalErrorResponse(c, "")
		return
	}

	utils.SuccessResponse(c, reviews)
}

// POST /products/:id/reviews
func (h *CatalogHandler) CreateReview(c *gin.Context) {
	userID, exists := utils.GetUserIDFromContext(c)
	if !exists {
		utils.UnauthorizedResponse(c, "")
		return
	}

	productID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		utils.BadRequestResponse(c, "Invalid product ID", nil)
		return
	}

	var req struct {
		Rating   int    `json:"rating" validate:"required,min=1,max=5"`
		Title    string `json:"title" validate:"max=200"`
		Body     string `json:"body"`
		UserName string `json:"user_name" validate:"max=150"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "", err.Error())
		return
	}
	if err := utils.ValidateStruct(&req); err != nil {
		utils.ValidationErrorResponse(c, utils.FormatValidationErrors(err))
		return
	}

	review, err := h.reviewService.Save(c.Request.Context(), userID, req.UserName, uint(productID), req.Rating, req.Title, req.Body)
	if err != nil {
		if errors.Is(err, services.ErrProductNotFound) {
			utils.NotFoundResponse(c, "Product")
			return
		}
		utils.BadRequestResponse(c, err.Error(), nil)
		return
	}

	utils.CreatedResponse(c, review)
}
