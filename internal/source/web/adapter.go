package web

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/nhle/ambrose/internal/model"
	"github.com/nhle/ambrose/internal/source"
)

// Adapter implements source.HealthSource for plain HTTP endpoints.
type Adapter struct {
	client  *source.Client
	baseURL string
}

// NewAdapter creates a healthcheck adapter rooted at baseURL. Redirects are
// not followed so that 3xx responses are observed directly.
func NewAdapter(baseURL string, opts ...source.ClientOption) *Adapter {
	hc := &http.Client{
		Timeout: 15 * time.Second,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	opts = append([]source.ClientOption{source.WithHTTPClient(hc)}, opts...)
	return &Adapter{
		client:  source.NewClient(model.ProviderWeb, nil, opts...),
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// Type returns the provider type for websites.
func (a *Adapter) Type() model.ProviderType {
	return model.ProviderWeb
}

// ValidateConnection checks that the base URL answers at all.
func (a *Adapter) ValidateConnection(ctx context.Context) (string, error) {
	if _, err := a.client.Fetch(ctx, a.baseURL); err != nil {
		return "", fmt.Errorf("validating %s: %w", a.baseURL, err)
	}
	return a.baseURL, nil
}

// Check GETs the path relative to the base URL. Any 2xx or 3xx response is
// healthy; other responses and unreachable hosts are not.
func (a *Adapter) Check(ctx context.Context, path string) (string, error) {
	resp, err := a.client.Fetch(ctx, a.URL(path))
	if err != nil {
		if ctx.Err() != nil {
			return "", err
		}
		return model.StatusNotHealthy, nil
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 400 {
		return model.StatusHealthy, nil
	}
	return model.StatusNotHealthy, nil
}

// URL joins the base URL and a healthcheck path.
func (a *Adapter) URL(path string) string {
	if path == "" {
		return a.baseURL
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return a.baseURL + path
}
