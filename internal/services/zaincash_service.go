package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/example/amorii/internal/config"
)

const (
	zainCashTestURL       = "https://test.zaincash.iq"
	zainCashProductionURL = "https://api.zaincash.iq"
	zainCashTokenTTL      = 4 * time.Hour
)

// ZainCash callback statuses.
const (
	ZainCashStatusSuccess = "success"
	ZainCashStatusFailed  = "failed"
)

var (
	// ErrGatewayRejected is returned when ZainCash refuses to open a transaction.
	ErrGatewayRejected = errors.New("payment gateway rejected the transaction")
	// ErrInvalidCallback is returned for redirect tokens that fail verification.
	ErrInvalidCallback = errors.New("invalid payment callback token")
)

// ZainCashService opens ZainCash transactions and verifies their redirect callbacks.
type ZainCashService struct {
	cfg     config.ZainCashConfig
	baseURL string
	client  *http.Client
}

// NewZainCashService builds a client for the test or production environment.
func NewZainCashService(cfg config.ZainCashConfig) *ZainCashService {
	baseURL := zainCashTestURL
	if cfg.Production {
		baseURL = zainCashProductionURL
	}
	return &ZainCashService{
		cfg:     cfg,
		baseURL: baseURL,
		client:  &http.Client{Timeout: 20 * time.Second},
	}
}

// WithBaseURL overrides the gateway endpoint.
func (s *ZainCashService) WithBaseURL(baseURL string) *ZainCashService {
	s.baseURL = strings.TrimRight(baseURL, "/")
	return s
}

type zainCashInitClaims struct {
	Amount      int64  `json:"amount"`
	ServiceType string `json:"serviceType"`
	Msisdn      string `json:"msisdn"`
	OrderID     string `json:"orderId"`
	RedirectURL string `json:"redirectUrl"`
	jwt.RegisteredClaims
}

type zainCashInitResponse struct {
	ID  string `json:"id"`
	Err *struct {
		Msg string `json:"msg"`
	} `json:"err"`
}

// Init opens a transaction for amount (IQD) referencing orderID and returns
// the gateway transaction id.
func (s *ZainCashService) Init(ctx context.Context, amount int64, orderID string) (string, error) {
	now := time.Now()
	claims := zainCashInitClaims{
		Amount:      amount,
		ServiceType: s.cfg.ServiceType,
		Msisdn:      s.cfg.Msisdn,
		OrderID:     orderID,
		RedirectURL: s.cfg.RedirectURL,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(zainCashTokenTTL)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.cfg.Secret))
	if err != nil {
		return "", fmt.Errorf("zaincash sign: %w", err)
	}

	form := url.Values{}
	form.Set("token", signed)
	form.Set("merchantId", s.cfg.MerchantID)
	form.Set("lang", s.cfg.Lang)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/transaction/init", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("zaincash request build: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("zaincash init: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("%w: status %d, body: %s", ErrGatewayRejected, resp.StatusCode, string(body))
	}

	var result zainCashInitResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("zaincash init unmarshal: %w", err)
	}
	if result.Err != nil {
		return "", fmt.Errorf("%w: %s", ErrGatewayRejected, result.Err.Msg)
	}
	if result.ID == "" {
		return "", fmt.Errorf("%w: empty transaction id", ErrGatewayRejected)
	}

	return result.ID, nil
}

// PayURL is where the payer is redirected to complete transactionID.
func (s *ZainCashService) PayURL(transactionID string) string {
	return s.baseURL + "/transaction/pay?id=" + url.QueryEscape(transactionID)
}

// CallbackResult is the verified payload ZainCash appends to the redirect URL.
type CallbackResult struct {
	Status      string `json:"status"`
	OrderID     string `json:"orderid"`
	ID          string `json:"id"`
	OperationID string `json:"operationid"`
	Msisdn      string `json:"msisdn"`
	Msg         string `json:"msg"`
	jwt.RegisteredClaims
}

// ParseCallback verifies the redirect token with the merchant secret.
func (s *ZainCashService) ParseCallback(token string) (*CallbackResult, error) {
	claims := &CallbackResult{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(s.cfg.Secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidCallback
	}
	if claims.OrderID == "" || claims.Status == "" {
		return nil, ErrInvalidCallback
	}
	return claims, nil
}
