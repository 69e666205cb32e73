package sync

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/zcy-charity/jar-service/internal/app/domain/jar"
)

// Fetch error classes. Callers match with errors.Is; the wrapped error keeps
// the underlying detail.
var (
	// ErrTransport means the provider could not be reached.
	ErrTransport = errors.New("provider unreachable")
	// ErrProvider means the provider answered with a non-success status.
	ErrProvider = errors.New("provider error response")
	// ErrMalformedResponse means the provider's body could not be
	// interpreted.
	ErrMalformedResponse = errors.New("malformed provider response")
)

// Fetcher retrieves the current provider state of one jar by its external id.
type Fetcher interface {
	Fetch(ctx context.Context, externalID string) (jar.Observation, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, externalID string) (jar.Observation, error)

func (f FetcherFunc) Fetch(ctx context.Context, externalID string) (jar.Observation, error) {
	return f(ctx, externalID)
}

// HTTPFetcher queries the payment provider's jar endpoint.
type HTTPFetcher struct {
	url    string
	token  string
	client *http.Client
}

var _ Fetcher = (*HTTPFetcher)(nil)

// NewHTTPFetcher builds a fetcher for the given provider endpoint. The token
// is sent as the X-Token header when set.
func NewHTTPFetcher(url, token string, client *http.Client) *HTTPFetcher {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPFetcher{url: url, token: token, client: client}
}

type providerRequest struct {
	ClientID string `json:"clientId"`
}

type providerResponse struct {
	JarAmount *int64  `json:"jarAmount"`
	JarGoal   *int64  `json:"jarGoal"`
	JarStatus *string `json:"jarStatus"`
}

func (f *HTTPFetcher) Fetch(ctx context.Context, externalID string) (jar.Observation, error) {
	body, err := json.Marshal(providerRequest{ClientID: externalID})
	if err != nil {
		return jar.Observation{}, fmt.Errorf("%w: encode request: %v", ErrMalformedResponse, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.url, bytes.NewReader(body))
	if err != nil {
		return jar.Observation{}, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if f.token != "" {
		req.Header.Set("X-Token", f.token)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return jar.Observation{}, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return jar.Observation{}, fmt.Errorf("%w: status %d", ErrProvider, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return jar.Observation{}, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	var wire providerResponse
	if err := json.Unmarshal(data, &wire); err != nil {
		return jar.Observation{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if wire.JarStatus == nil || *wire.JarStatus == "" {
		return jar.Observation{}, fmt.Errorf("%w: missing jarStatus", ErrMalformedResponse)
	}

	obs := jar.Observation{
		Goal:   wire.JarGoal,
		Status: *wire.JarStatus,
	}
	// An absent amount means the jar has not collected anything yet.
	if wire.JarAmount != nil {
		obs.Amount = wire.JarAmount
	} else {
		zero := int64(0)
		obs.Amount = &zero
	}
	return obs, nil
}
