package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dmitrijs2005/myid/internal/client/models"
	"github.com/dmitrijs2005/myid/internal/netx"
)

// Client is the contract of the remote profile endpoint.
type Client interface {
	Ping(ctx context.Context) error
	Upsert(ctx context.Context, p models.RemoteProfile) error
	Delete(ctx context.Context, id string) error
}

// HTTPClient talks JSON over HTTP to {base}/health and {base}/profile.
type HTTPClient struct {
	base string
	http *http.Client
}

// DefaultRequestTimeout bounds every call of an HTTPClient built by
// NewHTTPClient.
const DefaultRequestTimeout = 10 * time.Second

func NewHTTPClient(baseURL string) (*HTTPClient, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid remote url %q", baseURL)
	}
	return &HTTPClient{
		base: strings.TrimRight(baseURL, "/"),
		http: &http.Client{Timeout: DefaultRequestTimeout},
	}, nil
}

func (c *HTTPClient) Ping(ctx context.Context) error {
	return c.mapError(netx.DoJSON(ctx, c.http, http.MethodGet, c.base+"/health", nil))
}

func (c *HTTPClient) Upsert(ctx context.Context, p models.RemoteProfile) error {
	if p.ID == "" {
		return fmt.Errorf("upsert: empty profile id")
	}
	return c.mapError(netx.DoJSON(ctx, c.http, http.MethodPost, c.base+"/profile", p))
}

func (c *HTTPClient) Delete(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("delete: empty profile id")
	}
	return c.mapError(netx.DoJSON(ctx, c.http, http.MethodDelete, c.base+"/profile/"+url.PathEscape(id), nil))
}

func (c *HTTPClient) mapError(err error) error {
	if err == nil {
		return nil
	}

	var st *netx.ErrStatus
	if errors.As(err, &st) {
		switch {
		case st.Code == http.StatusUnauthorized, st.Code == http.StatusForbidden:
			return ErrUnauthorized
		case st.Code >= 500, st.Code == http.StatusTooManyRequests, st.Code == http.StatusRequestTimeout:
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		default:
			return fmt.Errorf("remote error: %w", err)
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return fmt.Errorf("remote error: %w", err)
}
