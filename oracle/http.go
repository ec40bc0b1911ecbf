package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"kalelend/native/kalelend"
)

const (
	defaultHTTPTimeout = 10 * time.Second
	// A borrow performs two lookups inside one gateway request.
	defaultLookupTimeout = 3 * time.Second
)

// HTTPDoer is satisfied by *http.Client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// HTTPFeed reads the latest price of an asset from a remote feed exposing
//
//	GET {endpoint}/prices/{asset}/latest -> {"asset":"KALE","price":"0.0123","timestamp":1700000000}
//
// The price is a decimal USD string.
type HTTPFeed struct {
	client        HTTPDoer
	endpoint      string
	apiKey        string
	symbols       map[string]string
	lookupTimeout time.Duration
}

// NewHTTPFeed builds a feed client. symbols optionally maps platform asset
// symbols to the feed's own identifiers.
func NewHTTPFeed(client HTTPDoer, endpoint, apiKey string, symbols map[string]string) (*HTTPFeed, error) {
	ep := strings.TrimRight(strings.TrimSpace(endpoint), "/")
	if ep == "" {
		return nil, fmt.Errorf("oracle: http feed endpoint required")
	}
	if _, err := url.Parse(ep); err != nil {
		return nil, fmt.Errorf("oracle: invalid endpoint: %w", err)
	}
	if client == nil {
		client = &http.Client{Timeout: defaultHTTPTimeout}
	}
	mapped := make(map[string]string, len(symbols))
	for k, v := range symbols {
		mapped[normaliseSymbol(k)] = strings.TrimSpace(v)
	}
	return &HTTPFeed{
		client:        client,
		endpoint:      ep,
		apiKey:        strings.TrimSpace(apiKey),
		symbols:       mapped,
		lookupTimeout: defaultLookupTimeout,
	}, nil
}

// SetLookupTimeout bounds each LastPrice call. Non-positive values are ignored.
func (f *HTTPFeed) SetLookupTimeout(d time.Duration) {
	if f == nil || d <= 0 {
		return
	}
	f.lookupTimeout = d
}

func (f *HTTPFeed) feedSymbol(asset string) string {
	symbol := normaliseSymbol(asset)
	if mapped, ok := f.symbols[symbol]; ok && mapped != "" {
		return mapped
	}
	return symbol
}

type feedPayload struct {
	Asset     string      `json:"asset"`
	Price     json.Number `json:"price"`
	Timestamp uint64      `json:"timestamp"`
}

func (f *HTTPFeed) LastPrice(asset string) (kalelend.PriceData, error) {
	if f == nil {
		return kalelend.PriceData{}, fmt.Errorf("oracle: http feed not configured")
	}
	target := fmt.Sprintf("%s/prices/%s/latest", f.endpoint, url.PathEscape(f.feedSymbol(asset)))
	ctx, cancel := context.WithTimeout(context.Background(), f.lookupTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return kalelend.PriceData{}, err
	}
	req.Header.Set("Accept", "application/json")
	if f.apiKey != "" {
		req.Header.Set("X-API-Key", f.apiKey)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return kalelend.PriceData{}, fmt.Errorf("oracle: http feed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode == http.StatusNotFound {
		return kalelend.PriceData{}, fmt.Errorf("%w: %s", ErrNoPrice, normaliseSymbol(asset))
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return kalelend.PriceData{}, fmt.Errorf("oracle: http feed status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	decoder := json.NewDecoder(resp.Body)
	decoder.UseNumber()
	var payload feedPayload
	if err := decoder.Decode(&payload); err != nil {
		return kalelend.PriceData{}, fmt.Errorf("oracle: http feed decode: %w", err)
	}
	price, err := ParsePrice(payload.Price.String())
	if err != nil {
		return kalelend.PriceData{}, err
	}
	return kalelend.PriceData{Price: price, Timestamp: payload.Timestamp}, nil
}
