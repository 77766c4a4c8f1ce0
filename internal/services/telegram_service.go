package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const telegramAPIURL = "https://api.telegram.org"

// TelegramService handles sending notifications to Telegram.
type TelegramService struct {
	botToken    string
	adminChatID string
	apiURL      string
	client      *http.Client
}

// NewTelegramService creates a new TelegramService.
func NewTelegramService(botToken, adminChatID string) *TelegramService {
	return &TelegramService{
		botToken:    botToken,
		adminChatID: adminChatID,
		apiURL:      telegramAPIURL,
		client:      &http.Client{Timeout: 10 * time.Second},
	}
}

// WithAPIURL overrides the Bot API endpoint.
func (s *TelegramService) WithAPIURL(apiURL string) *TelegramService {
	s.apiURL = strings.TrimRight(apiURL, "/")
	return s
}

type telegramMessage struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

// SendMessage sends a message to specified chat.
func (s *TelegramService) SendMessage(ctx context.Context, chatID, text string) error {
	if s.botToken == "" {
		log.Println("[Telegram] Bot token not configured")
		return nil
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", s.apiURL, s.botToken)

	body, err := json.Marshal(telegramMessage{
		ChatID:    chatID,
		Text:      text,
		ParseMode: "HTML",
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		log.Printf("[Telegram] Failed to send message: %v", err)
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Printf("[Telegram] Unexpected status: %d", resp.StatusCode)
		return fmt.Errorf("telegram returned status %d", resp.StatusCode)
	}

	return nil
}

// InvoicePaidNotification contains the data announced when an invoice is paid.
type InvoicePaidNotification struct {
	InvoiceID   string
	Total       decimal.Decimal
	UserName    string
	UserPhone   string
	OperationID string
	PayerMsisdn string
}

// FormatPrice formats an IQD amount with thousand separators.
func FormatPrice(amount decimal.Decimal) string {
	str := amount.Round(0).String()
	negative := strings.HasPrefix(str, "-")
	str = strings.TrimPrefix(str, "-")

	var result strings.Builder
	if negative {
		result.WriteByte('-')
	}
	length := len(str)
	for i, digit := range str {
		if i > 0 && (length-i)%3 == 0 {
			result.WriteString(",")
		}
		result.WriteRune(digit)
	}

	return result.String() + " IQD"
}

// NotifyInvoicePaid tells the admin chat that a payment was received.
func (s *TelegramService) NotifyInvoicePaid(ctx context.Context, n InvoicePaidNotification) error {
	if s.adminChatID == "" {
		return nil
	}

	message := fmt.Sprintf(`<b>✅ Payment received</b>
<b>Invoice:</b> %s
<b>Customer:</b> %s (%s)
<b>Total:</b> %s
<b>ZainCash operation:</b> %s
<b>Payer:</b> %s`,
		html.EscapeString(n.InvoiceID),
		html.EscapeString(n.UserName),
		html.EscapeString(n.UserPhone),
		FormatPrice(n.Total),
		html.EscapeString(n.OperationID),
		html.EscapeString(n.PayerMsisdn),
	)

	return s.SendMessage(ctx, s.adminChatID, strings.TrimSpace(message))
}
