// internal/handlers/vendor.go
package handlers

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/greenbasket/commerce-backend/internal/models"
	"github.com/greenbasket/commerce-backend/internal/services"
	"github.com/greenbasket/commerce-backend/internal/utils"
)

type VendorHandler struct {
	vendorService       *services.VendorService
	notificationService *services.NotificationService
}

func NewVendorHandler(vendorService *services.VendorService, notificationService *services.NotificationService) *VendorHandler {
	return &VendorHandler{
		vendorService:       vendorService,
		notificationService: notificationService,
	}
}

// GET /vendors/:id/sales
func (h *VendorHandler) GetSales(c *gin.Context) {
	vendorID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		utils.BadRequestResponse(c, "Invalid vendor ID", nil)
		return
	}

	snapshot, err := h.vendorService.Snapshot(c.Request.Context(), uint(vendorID))
	if err != nil {
		if errors.Is(err, services.ErrVendorNotFound) {
			utils.NotFoundResponse(c, "Vendor")
			return
		}
		utils.InternalErrorResponse(c, "")
		return
	}

	utils.SuccessResponse(c, snapshot)
}

// GET /staff/notifications
func (h *VendorHandler) GetNotifications(c *gin.Context) {
	status := models.NotificationStatus(c.Query("status"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	notifications, err := h.notificationService.List(c.Request.Context(), status, limit)
	if err != nil {
		utils.InternalErrorResponse(c, "")
		return
	}

	utils.SuccessResponse(c, notifications)
}

// PUT /staff/notifications/:id/read
func (h *VendorHandler) MarkNotificationRead(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		utils.BadRequestResponse(c, "Invalid notification ID", nil)
		return
	}

	if err := h.notificationService.MarkRead(c.Request.Context(), uint(id)); err != nil {
		utils.NotFoundResponse(c, "Notification")
		return
	}

	utils.SuccessResponse(c, gin.H{"id": id, "status": models.NotificationStatusRead})
}
