package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/time/rate"

	"lotusflow/studiosync/internal/common"
	"lotusflow/studiosync/internal/models/dtos"
)

// HTTPProvider speaks the PUSH/PULL contract over HTTP/JSON with JWT bearer
// auth. Pushes are rate limited so a large backlog drains without hammering
// the backend.
type HTTPProvider struct {
	BaseURL   string
	DeviceID  string
	jwtSecret []byte
	client    *http.Client
	limiter   *rate.Limiter
}

// NewHTTPProvider creates a provider against the given backend base URL
func NewHTTPProvider(baseURL string, deviceID string, jwtSecret string, timeout time.Duration) *HTTPProvider {
	return &HTTPProvider{
		BaseURL:   baseURL,
		DeviceID:  deviceID,
		jwtSecret: []byte(jwtSecret),
		client:    &http.Client{Timeout: timeout},
		limiter:   rate.NewLimiter(10, 20), // 10 pushes/sec, burst 20
	}
}

// Push implements RemoteProvider
func (p *HTTPProvider) Push(ctx context.Context, entityType string, kind string, req dtos.PushRequest) (*dtos.PushResponse, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, &common.NetworkError{Op: "push " + entityType, Err: err}
	}

	req.DeviceID = p.DeviceID
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode push request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1/sync/%s/push", p.BaseURL, entityType)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build push request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if err := p.authorize(httpReq); err != nil {
		return nil, err
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, &common.NetworkError{Op: "push " + entityType, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		var out dtos.PushResponse
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return nil, &common.NetworkError{Op: "push " + entityType, Err: err}
		}
		return &out, nil

	case resp.StatusCode == http.StatusConflict:
		var signal dtos.ConflictSignal
		if err := json.NewDecoder(resp.Body).Decode(&signal); err != nil {
			return nil, &common.NetworkError{Op: "push " + entityType, Err: err}
		}
		return nil, &RemoteConflictError{Remote: signal.Remote}

	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, &common.NetworkError{
			Op:  "push " + entityType,
			Err: fmt.Errorf("unexpected status %d", resp.StatusCode),
		}

	default:
		var rejection dtos.ErrorResponse
		_ = json.NewDecoder(resp.Body).Decode(&rejection)
		if rejection.Code == "" {
			rejection.Code = fmt.Sprintf("HTTP_%d", resp.StatusCode)
		}
		return nil, &common.ValidationError{Code: rejection.Code, Message: rejection.Message}
	}
}

// Pull implements RemoteProvider
func (p *HTTPProvider) Pull(ctx context.Context, entityType string, since *time.Time) ([]dtos.RemoteRecord, error) {
	endpoint := fmt.Sprintf("%s/v1/sync/%s/pull", p.BaseURL, entityType)
	if since != nil {
		endpoint += "?since=" + url.QueryEscape(since.Format(time.RFC3339Nano))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build pull request: %w", err)
	}
	if err := p.authorize(httpReq); err != nil {
		return nil, err
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, &common.NetworkError{Op: "pull " + entityType, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &common.NetworkError{
			Op:  "pull " + entityType,
			Err: fmt.Errorf("unexpected status %d", resp.StatusCode),
		}
	}

	var out dtos.PullResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, &common.NetworkError{Op: "pull " + entityType, Err: err}
	}
	return out.Records, nil
}

func (p *HTTPProvider) authorize(req *http.Request) error {
	claims := jwt.MapClaims{
		"sub": p.DeviceID,
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(5 * time.Minute).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.jwtSecret)
	if err != nil {
		return fmt.Errorf("failed to sign sync token: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return nil
}
