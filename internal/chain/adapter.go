// Package chain fetches incoming transfers from blockchain data providers
// and normalizes them to models.Transfer.
package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rookgm/paywatch/internal/models"
)

// maximum response body accepted from a provider
const maxBodySize = 4 << 20

const userAgent = "paywatch/1.0"

// Adapter fetches recent incoming transfers for receiving address.
// A failed fetch returns an error and no transfers; callers treat it as an empty poll.
type Adapter interface {
	Asset() models.Asset
	FetchTransfers(ctx context.Context, address string) ([]models.Transfer, error)
}

// ProviderError describes failed request to blockchain data provider
type ProviderError struct {
	Provider   string
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: unexpected status %d", e.Provider, e.StatusCode)
	}
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// NewHTTPClient returns client used for provider requests
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

// getJSON performs GET request and decodes JSON body to out
func getJSON(ctx context.Context, client *http.Client, provider, url string, header http.Header, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return &ProviderError{Provider: provider, Err: err}
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")
	for k, v := range header {
		req.Header[k] = v
	}

	resp, err := client.Do(req)
	if err != nil {
		return &ProviderError{Provider: provider, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodySize))
		return &ProviderError{Provider: provider, StatusCode: resp.StatusCode}
	}

	dec := json.NewDecoder(io.LimitReader(resp.Body, maxBodySize))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return &ProviderError{Provider: provider, Err: fmt.Errorf("decode body: %w", err)}
	}

	return nil
}
