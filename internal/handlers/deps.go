package handlers

import (
	"context"
	"log"
	"time"

	"github.com/example/amorii/internal/services"
)

const smsTimeout = 30 * time.Second

// SMSSender delivers text messages to a phone number.
type SMSSender interface {
	Send(ctx context.Context, phone, message string) error
}

// PaymentGateway opens payment transactions and verifies their redirect callbacks.
type PaymentGateway interface {
	Init(ctx context.Context, amount int64, orderID string) (string, error)
	PayURL(transactionID string) string
	ParseCallback(token string) (*services.CallbackResult, error)
}

// ImageHost stores a local image file and returns where it is served from.
type ImageHost interface {
	Upload(ctx context.Context, path string) (*services.HostedImage, error)
}

// PaymentNotifier announces settled invoices.
type PaymentNotifier interface {
	NotifyInvoicePaid(ctx context.Context, n services.InvoicePaidNotification) error
}

// dispatchSMS sends message in the background; failures are only logged.
func dispatchSMS(sender SMSSender, phone, message string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), smsTimeout)
		defer cancel()

		if err := sender.Send(ctx, phone, message); err != nil {
			log.Printf("[SMS] failed to send message to %s: %v", phone, err)
		}
	}()
}
