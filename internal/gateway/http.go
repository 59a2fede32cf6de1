package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"tiendapos/internal/apperr"
	"tiendapos/internal/applog"
	"tiendapos/internal/domain"
)

const maxResponseBytes = 4 << 20

// HTTPTransport talks to the command endpoint of a tiendapos server.
type HTTPTransport struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger

	mu    sync.RWMutex
	token string
}

func NewHTTPTransport(baseURL string, timeout time.Duration, logger *zap.Logger) *HTTPTransport {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPTransport{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		logger:  applog.OrNop(logger),
	}
}

func (t *HTTPTransport) SetToken(token string) {
	t.mu.Lock()
	t.token = token
	t.mu.Unlock()
}

func (t *HTTPTransport) Login(ctx context.Context, username string, password string) (domain.LoginResponse, error) {
	var resp domain.LoginResponse
	err := t.post(ctx, "/api/v1/auth/login", domain.LoginRequest{Username: username, Password: password}, &resp)
	if err != nil {
		return domain.LoginResponse{}, err
	}
	t.SetToken(resp.AccessToken)
	return resp, nil
}

func (t *HTTPTransport) Invoke(ctx context.Context, command string, payload any, out any) error {
	startedAt := time.Now()
	err := t.post(ctx, "/api/v1/commands/"+url.PathEscape(command), payload, out)
	if err != nil {
		t.logger.Warn("command failed",
			zap.String("command", command),
			zap.Duration("elapsed", time.Since(startedAt)),
			zap.Error(err),
		)
		return err
	}
	t.logger.Debug("command ok", zap.String("command", command), zap.Duration("elapsed", time.Since(startedAt)))
	return nil
}

func (t *HTTPTransport) post(ctx context.Context, path string, payload any, out any) error {
	if payload == nil {
		payload = struct{}{}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return apperr.Validationf("encode payload: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return apperr.Transport(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	t.mu.RLock()
	if t.token != "" {
		req.Header.Set("Authorization", "Bearer "+t.token)
	}
	t.mu.RUnlock()

	resp, err := t.client.Do(req)
	if err != nil {
		return apperr.Transport(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return apperr.Transport(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return ParseFailure(raw, fmt.Sprintf("%d %s", resp.StatusCode, http.StatusText(resp.StatusCode)))
	}
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return apperr.Unknown(fmt.Sprintf("decode result: %v", err))
	}
	return nil
}
