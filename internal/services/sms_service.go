package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/example/amorii/internal/config"
)

// SMSService sends text messages through a token-authenticated SMS gateway.
// The bearer token is cached and refreshed once when the gateway answers 401.
type SMSService struct {
	cfg    config.SMSConfig
	client *http.Client

	mu          sync.RWMutex
	token       string
	tokenExpiry time.Time
}

// NewSMSService creates an SMSService. A disabled service only logs messages.
func NewSMSService(cfg config.SMSConfig) *SMSService {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &SMSService{
		cfg:    cfg,
		client: &http.Client{Timeout: 15 * time.Second},
	}
}

type smsAuthResponse struct {
	Token     string `json:"token"`
	ExpiresIn int    `json:"expires_in"`
}

// Send delivers message to phone.
func (s *SMSService) Send(ctx context.Context, phone, message string) error {
	if !s.cfg.Enabled {
		log.Printf("[SMS] gateway disabled, message to %s not sent", phone)
		return nil
	}

	payload := map[string]string{
		"phone":   phone,
		"message": message,
	}

	status, body, err := s.do(ctx, http.MethodPost, "sms/send", payload)
	if err != nil {
		return fmt.Errorf("sms send: %w", err)
	}
	if status < 200 || status >= 300 {
		return fmt.Errorf("sms send: status %d, body: %s", status, string(body))
	}
	return nil
}

func (s *SMSService) do(ctx context.Context, method, path string, payload any) (int, []byte, error) {
	token, err := s.getToken(ctx, false)
	if err != nil {
		return 0, nil, err
	}

	status, body, err := s.send(ctx, method, path, payload, token)
	if err != nil {
		return 0, nil, err
	}

	if status == http.StatusUnauthorized {
		token, err = s.getToken(ctx, true)
		if err != nil {
			return 0, nil, err
		}
		return s.send(ctx, method, path, payload, token)
	}

	return status, body, nil
}

func (s *SMSService) send(ctx context.Context, method, path string, payload any, token string) (int, []byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, fmt.Errorf("marshal: %w", err)
	}

	url := s.cfg.BaseURL + "/" + strings.TrimLeft(path, "/")
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(data))
	if err != nil {
		return 0, nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, body, nil
}

func (s *SMSService) getToken(ctx context.Context, force bool) (string, error) {
	if !force {
		s.mu.RLock()
		if s.token != "" && time.Now().Before(s.tokenExpiry) {
			t := s.token
			s.mu.RUnlock()
			return t, nil
		}
		s.mu.RUnlock()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Double-check after acquiring write lock.
	if !force && s.token != "" && time.Now().Before(s.tokenExpiry) {
		return s.token, nil
	}

	payload, _ := json.Marshal(map[string]string{
		"username": s.cfg.Username,
		"password": s.cfg.Password,
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.BaseURL+"/auth/login", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("sms auth request build: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("sms auth request: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("sms auth failed: status %d, body: %s", resp.StatusCode, string(body))
	}

	var authResp smsAuthResponse
	if err := json.Unmarshal(body, &authResp); err != nil {
		return "", fmt.Errorf("sms auth unmarshal: %w", err)
	}
	if authResp.Token == "" {
		return "", errors.New("sms auth: empty token")
	}

	s.token = authResp.Token
	if authResp.ExpiresIn > 0 {
		s.tokenExpiry = time.Now().Add(time.Duration(authResp.ExpiresIn)*time.Second - 30*time.Second)
	} else {
		s.tokenExpiry = time.Now().Add(55 * time.Minute)
	}

	return s.token, nil
}
