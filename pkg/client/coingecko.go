package client

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

	"golang.org/x/time/rate"
)

const (
	// DefaultBaseURL is the public CoinGecko API
	DefaultBaseURL = "https://api.coingecko.com/api/v3"

	// DefaultRatePerSecond keeps within the public API's free tier
	DefaultRatePerSecond = 0.5

	// apiKeyHeader carries the optional demo API key
	apiKeyHeader = "x-cg-demo-api-key"

	httpTimeout     = 15 * time.Second
	maxResponseBody = 1 << 20
)

var (
	// ErrNotFound indicates the API has no metadata for the token
	ErrNotFound = errors.New("token not found")

	// ErrMetadataStatus indicates a non-2xx response from the metadata API
	ErrMetadataStatus = errors.New("metadata API error")

	// ErrNoPlatform indicates the network has no metadata platform configured
	ErrNoPlatform = errors.New("no metadata platform for network")
)

// TokenMetadata is the subset of the contract-info response used for display
type TokenMetadata struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Symbol string `json:"symbol"`
	Image  struct {
		Thumb string `json:"thumb"`
		Small string `json:"small"`
		Large string `json:"large"`
	} `json:"image"`
}

// Logo returns the large image, falling back to smaller variants
func (m *TokenMetadata) Logo() string {
	switch {
	case m.Image.Large != "":
		return m.Image.Large
	case m.Image.Thumb != "":
		return m.Image.Thumb
	default:
		return m.Image.Small
	}
}

// Options configures the CoinGecko client
type Options struct {
	BaseURL       string       // Overrides DefaultBaseURL (useful for testing)
	APIKey        string       // Optional demo API key
	HTTPClient    *http.Client // Overrides the default HTTP client
	RatePerSecond float64      // Request rate; <= 0 uses DefaultRatePerSecond
}

// CoinGeckoClient fetches token metadata scoped to a network platform
type CoinGeckoClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewCoinGeckoClient creates a new metadata client
func NewCoinGeckoClient(opts Options) *CoinGeckoClient {
	c := &CoinGeckoClient{
		baseURL:    DefaultBaseURL,
		apiKey:     opts.APIKey,
		httpClient: &http.Client{Timeout: httpTimeout},
	}

	if opts.BaseURL != "" {
		c.baseURL = strings.TrimRight(opts.BaseURL, "/")
	}
	if opts.HTTPClient != nil {
		c.httpClient = opts.HTTPClient
	}

	ratePerSecond := opts.RatePerSecond
	if ratePerSecond <= 0 {
		ratePerSecond = DefaultRatePerSecond
	}
	c.limiter = rate.NewLimiter(rate.Limit(ratePerSecond), 1)

	return c
}

// ContractURL returns the network-scoped endpoint for a token address
func (c *CoinGeckoClient) ContractURL(platform, address string) string {
	return fmt.Sprintf("%s/coins/%s/contract/%s", c.baseURL, url.PathEscape(platform), url.PathEscape(strings.ToLower(address)))
}

// GetTokenInfo retrieves display metadata for a token on the given platform
func (c *CoinGeckoClient) GetTokenInfo(ctx context.Context, platform, address string) (*TokenMetadata, error) {
	if platform == "" {
		return nil, ErrNoPlatform
	}

	// Rate limit
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.ContractURL(platform, address), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set(apiKeyHeader, c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch token metadata: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("failed to read token metadata: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s on %s", ErrNotFound, address, platform)
	}

	// Check for successful status codes (200-299)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Try to extract the actual error message from the response
		var errorResp map[string]interface{}
		if jsonErr := json.Unmarshal(body, &errorResp); jsonErr == nil {
			if message, ok := errorResp["error"].(string); ok {
				return nil, fmt.Errorf("%w (status %d): %s", ErrMetadataStatus, resp.StatusCode, message)
			}
		}
		return nil, fmt.Errorf("%w (status %d)", ErrMetadataStatus, resp.StatusCode)
	}

	var meta TokenMetadata
	if err := json.Unmarshal(body, &meta); err != nil {
		return nil, fmt.Errorf("failed to decode token metadata: %w", err)
	}
	if meta.Name == "" {
		return nil, fmt.Errorf("%w: empty name for %s", ErrNotFound, address)
	}

	return &meta, nil
}
