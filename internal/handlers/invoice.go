package handlers

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/example/amorii/internal/middleware"
	"github.com/example/amorii/internal/models"
	"github.com/example/amorii/internal/utils"
)

// InvoiceHandler creates invoices and opens their payment transactions.
type InvoiceHandler struct {
	db       *gorm.DB
	payments PaymentGateway
}

// NewInvoiceHandler constructs InvoiceHandler.
func NewInvoiceHandler(db *gorm.DB, payments PaymentGateway) *InvoiceHandler {
	return &InvoiceHandler{db: db, payments: payments}
}

type invoiceProductRequest struct {
	ID       string `json:"id" validate:"required,uuid"`
	Quantity int    `json:"quantity" validate:"required,min=1,max=1000"`
}

type makeInvoiceRequest struct {
	Products []invoiceProductRequest `json:"products" validate:"required,min=1,max=100,unique=ID,dive"`
}

// MakeInvoice prices the requested products, stores the invoice with its items
// and opens a ZainCash transaction. An invoice the gateway refuses is removed.
func (h *InvoiceHandler) MakeInvoice(c *fiber.Ctx) error {
	user, ok := middleware.GetCurrentUser(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	var req makeInvoiceRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if errs := utils.ValidateStruct(req); errs != nil {
		return validationRes(c, errs)
	}

	ids := make([]uuid.UUID, 0, len(req.Products))
	for _, p := range req.Products {
		ids = append(ids, uuid.MustParse(p.ID))
	}

	ctx := c.UserContext()
	db := h.db.WithContext(ctx)

	var products []models.Product
	if err := db.Where("id IN ? AND active = ?", ids, true).Find(&products).Error; err != nil {
		return err
	}

	byID := make(map[uuid.UUID]models.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	invoice := models.Invoice{
		UserID: user.ID,
		Status: models.InvoiceStatusPending,
		Total:  decimal.Zero,
	}
	invoice.ID = models.NewID()

	items := make([]models.InvoiceItem, 0, len(req.Products))
	for i, p := range req.Products {
		product, found := byID[ids[i]]
		if !found {
			return fiber.NewError(fiber.StatusBadRequest, fmt.Sprintf("product %s is not available", p.ID))
		}
		subtotal := product.Price.Mul(decimal.NewFromInt(int64(p.Quantity)))
		invoice.Total = invoice.Total.Add(subtotal)
		items = append(items, models.InvoiceItem{
			InvoiceID: invoice.ID,
			ProductID: product.ID,
			Quantity:  p.Quantity,
			UnitPrice: product.Price,
			Subtotal:  subtotal,
		})
	}

	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&invoice).Error; err != nil {
			return err
		}
		return tx.Create(&items).Error
	})
	if err != nil {
		return err
	}

	// No transaction is open while ZainCash answers.
	transactionID, err := h.payments.Init(ctx, invoice.Total.Round(0).IntPart(), invoice.ID.String())
	if err != nil {
		log.Printf("[ZainCash] init failed for invoice %s: %v", invoice.ID, err)
		h.discardInvoice(context.WithoutCancel(ctx), invoice.ID)
		return fiber.NewError(fiber.StatusBadGateway, "payment gateway error: "+err.Error())
	}

	invoice.ZcTransactionID = transactionID
	if err := db.Model(&invoice).Update("zc_transaction_id", transactionID).Error; err != nil {
		return err
	}

	invoice.Items = items

	return createdRes(c, fiber.Map{
		"invoice": invoice,
		"url":     h.payments.PayURL(invoice.ZcTransactionID),
	})
}

// discardInvoice removes an invoice whose payment transaction could not be
// opened. A failure only leaves a pending invoice without a transaction id.
func (h *InvoiceHandler) discardInvoice(ctx context.Context, id uuid.UUID) {
	err := h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("invoice_id = ?", id).Delete(&models.InvoiceItem{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&models.Invoice{}).Error
	})
	if err != nil {
		log.Printf("[Invoice] discard %s failed: %v", id, err)
	}
}

// ListInvoices returns the authenticated user's invoices, newest first.
func (h *InvoiceHandler) ListInvoices(c *fiber.Ctx) error {
	user, ok := middleware.GetCurrentUser(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	pg := utils.ParsePagination(c)
	query := h.db.WithContext(c.UserContext()).Model(&models.Invoice{}).Where("user_id = ?", user.ID)

	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return err
	}

	var invoices []models.Invoice
	if err := query.Preload("Items").
		Order("created_at desc").
		Limit(pg.Limit).Offset(pg.Offset).
		Find(&invoices).Error; err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success":    true,
		"data":       invoices,
		"pagination": pg.Meta(total),
	})
}

// GetInvoice returns one of the authenticated user's invoices with its items.
func (h *InvoiceHandler) GetInvoice(c *fiber.Ctx) error {
	user, ok := middleware.GetCurrentUser(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid id")
	}

	var invoice models.Invoice
	if err := h.db.WithContext(c.UserContext()).
		Preload("Items.Product").
		First(&invoice, "id = ? AND user_id = ?", id, user.ID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "invoice not found")
		}
		return err
	}

	return okRes(c, invoice)
}
