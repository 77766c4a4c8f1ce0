package handlers

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/example/amorii/internal/models"
	"github.com/example/amorii/internal/services"
)

const notifyTimeout = 15 * time.Second

// ZainCashHandler receives the payer redirect issued by ZainCash.
type ZainCashHandler struct {
	db       *gorm.DB
	payments PaymentGateway
	notifier PaymentNotifier
}

// NewZainCashHandler constructs ZainCashHandler.
func NewZainCashHandler(db *gorm.DB, payments PaymentGateway, notifier PaymentNotifier) *ZainCashHandler {
	return &ZainCashHandler{db: db, payments: payments, notifier: notifier}
}

// Redirect records the outcome carried by the signed callback token. A
// non-success status is a valid outcome and is stored verbatim on the invoice.
func (h *ZainCashHandler) Redirect(c *fiber.Ctx) error {
	token := c.Query("token")
	if token == "" {
		return fiber.NewError(fiber.StatusBadRequest, "missing token")
	}

	result, err := h.payments.ParseCallback(token)
	if err != nil {
		return fiber.NewError(fiber.StatusUnauthorized, "invalid token")
	}

	invoiceID, err := uuid.Parse(result.OrderID)
	if err != nil {
		return fiber.NewError(fiber.StatusNotFound, "no such invoice")
	}

	db := h.db.WithContext(c.UserContext())

	var invoice models.Invoice
	if err := db.First(&invoice, "id = ?", invoiceID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "no such invoice")
		}
		return err
	}

	// Paid is terminal; replayed or late callbacks leave it untouched.
	if invoice.IsPaid() {
		return okRes(c, fiber.Map{"invoice": invoice})
	}

	updates := map[string]any{"zc_operation_id": result.OperationID}
	if result.Status == services.ZainCashStatusSuccess {
		updates["status"] = models.InvoiceStatusPaid
		updates["zc_msisdn"] = result.Msisdn
		updates["paid_at"] = time.Now()
	} else {
		updates["status"] = result.Status
		updates["zc_message"] = result.Msg
	}

	// Concurrent callbacks race here; the status guard keeps paid terminal.
	res := db.Model(&models.Invoice{}).
		Where("id = ? AND status <> ?", invoice.ID, models.InvoiceStatusPaid).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}

	if err := db.First(&invoice, "id = ?", invoice.ID).Error; err != nil {
		return err
	}

	// Only the request that moved the invoice to paid announces it.
	if res.RowsAffected == 1 && invoice.IsPaid() {
		go h.notifyPaid(invoice)
	}

	return okRes(c, fiber.Map{"invoice": invoice})
}

func (h *ZainCashHandler) notifyPaid(invoice models.Invoice) {
	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()

	var user models.User
	if err := h.db.WithContext(ctx).First(&user, "id = ?", invoice.UserID).Error; err != nil {
		log.Printf("[ZainCash] failed to load user %s for invoice %s: %v", invoice.UserID, invoice.ID, err)
	}

	err := h.notifier.NotifyInvoicePaid(ctx, services.InvoicePaidNotification{
		InvoiceID:   invoice.ID.String(),
		Total:       invoice.Total,
		UserName:    user.Name,
		UserPhone:   user.Phone,
		OperationID: invoice.ZcOperationID,
		PayerMsisdn: invoice.ZcMsisdn,
	})
	if err != nil {
		log.Printf("[ZainCash] paid notification failed for invoice %s: %v", invoice.ID, err)
	}
}
