package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"appgen/internal/domain/entity"
)

// Transport opens the progress stream for one request.
type Transport interface {
	Open(ctx context.Context, req entity.GenerationRequest) (io.ReadCloser, error)
}

// HTTPTransport posts requests to a generation server.
type HTTPTransport struct {
	baseURL string
	client  *http.Client
}

func NewHTTPTransport(baseURL string, client *http.Client) *HTTPTransport {
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPTransport{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

func (t *HTTPTransport) Open(ctx context.Context, req entity.GenerationRequest) (io.ReadCloser, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/generate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	if resp.StatusCode == http.StatusOK {
		return resp.Body, nil
	}
	defer resp.Body.Close()

	var payload struct {
		Error      string `json:"error"`
		RetryAfter int    `json:"retryAfter"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	_ = json.Unmarshal(raw, &payload)
	if payload.Error == "" {
		payload.Error = strings.TrimSpace(string(raw))
	}

	switch resp.StatusCode {
	case http.StatusTooManyRequests:
		secs := payload.RetryAfter
		if h, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && h > secs {
			secs = h
		}
		return nil, &entity.RateLimitedError{RetryAfter: time.Duration(secs) * time.Second}
	case http.StatusBadRequest:
		return nil, &entity.ValidationError{Reason: payload.Error}
	default:
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, payload.Error)
	}
}
