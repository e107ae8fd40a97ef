//nolint:tagliatelle // Binance API uses camel case
package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sig-0/p2panel/market"
)

// DefaultUpstreamURL is the Binance P2P advertisement search endpoint
const DefaultUpstreamURL = "https://p2p.binance.com/bapi/c2c/v2/friendly/c2c/adv/search"

const userAgent = "Mozilla/5.0 (compatible; P2P-Panel/1.0)"

// searchRequest is the request body for the Binance P2P API
type searchRequest struct {
	PublisherType *string          `json:"publisherType"`
	Asset         market.Asset     `json:"asset"`
	Fiat          market.Fiat      `json:"fiat"`
	TradeType     market.TradeType `json:"tradeType"`
	PayTypes      []string         `json:"payTypes"`
	Rows          int              `json:"rows"`
	Page          int              `json:"page"`
	MerchantCheck bool             `json:"merchantCheck"`
}

// SearchResponse is the response from the Binance P2P API
type SearchResponse struct {
	Data []Offer `json:"data"`
}

type Offer struct {
	Adv        Adv        `json:"adv"`
	Advertiser Advertiser `json:"advertiser"`
}

type Adv struct {
	Price string `json:"price"`
}

type Advertiser struct {
	MonthOrderCount json.Number `json:"monthOrderCount"`
	MonthFinishRate json.Number `json:"monthFinishRate"`
}

// UpstreamError is a non-OK response from the quote source.
// The status code is preserved so the relay can mirror it
type UpstreamError struct {
	StatusCode int
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("invalid status code received: %d", e.StatusCode)
}

func (e *UpstreamError) Unwrap() error {
	return market.ErrUpstream
}

// Client relays quote searches to the Binance P2P endpoint
type Client struct {
	client *http.Client
	url    string
}

// NewClient creates a new upstream relay client
func NewClient(url string, timeout time.Duration) *Client {
	if url == "" {
		url = DefaultUpstreamURL
	}

	return &Client{
		client: &http.Client{
			Timeout: timeout,
		},
		url: url,
	}
}

// SearchRaw executes the quote search and returns the raw upstream
// payload after validating its shape
func (c *Client) SearchRaw(ctx context.Context, q *market.QuoteRequest) ([]byte, error) {
	reqBody := searchRequest{
		Asset:         q.Asset,
		Fiat:          q.Fiat,
		TradeType:     q.TradeType,
		Rows:          market.ClampRows(q.Rows),
		Page:          1,
		MerchantCheck: false,
		PayTypes:      []string{},
		PublisherType: nil,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("unable to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("unable to create POST request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", market.ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &UpstreamError{StatusCode: resp.StatusCode}
	}

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return nil, fmt.Errorf("unable to read response: %w", err)
	}

	raw := buf.Bytes()

	// Malformed shape must not propagate as a valid payload
	var probe struct {
		Data *json.RawMessage `json:"data"`
	}

	if err := json.Unmarshal(raw, &probe); err != nil || probe.Data == nil {
		return nil, fmt.Errorf("%w: invalid response format", market.ErrUpstream)
	}

	var arr []json.RawMessage
	if err := json.Unmarshal(*probe.Data, &arr); err != nil {
		return nil, fmt.Errorf("%w: invalid response format", market.ErrUpstream)
	}

	return raw, nil
}

// Search executes the quote search and decodes the offer list
func (c *Client) Search(ctx context.Context, q *market.QuoteRequest) (*SearchResponse, error) {
	raw, err := c.SearchRaw(ctx, q)
	if err != nil {
		return nil, err
	}

	var resp SearchResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("%w: unable to decode response", market.ErrUpstream)
	}

	return &resp, nil
}
