package oracle

import (
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"time"

	"kalelend/native/kalelend"
)

// Config selects and configures a price source.
type Config struct {
	// Type is "static", "http" or "pricebook".
	Type     string
	Endpoint string
	APIKey   string
	Symbols  map[string]string
	Timeout  time.Duration
	Driver   string
	DSN      string
	// Prices seeds the static table with decimal USD prices.
	Prices map[string]string
	MaxAge time.Duration
}

// Source is a configured price source together with its concrete backend,
// which callers may need for publishing or shutdown.
type Source struct {
	Oracle    kalelend.PriceOracle
	Static    *Static
	PriceBook *PriceBook
	closer    io.Closer
}

// Close releases backend resources.
func (s *Source) Close() error {
	if s == nil || s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

// Build creates the source described by cfg. now stamps seeded static prices.
func Build(cfg Config, now time.Time) (*Source, error) {
	var (
		base kalelend.PriceOracle
		src  = &Source{}
	)
	switch strings.ToLower(strings.TrimSpace(cfg.Type)) {
	case "", "static":
		table := NewStatic()
		for asset, raw := range cfg.Prices {
			price, err := ParsePrice(raw)
			if err != nil {
				return nil, fmt.Errorf("oracle: static price for %s: %w", asset, err)
			}
			table.Set(asset, price, uint64(now.Unix()))
		}
		src.Static = table
		base = table
	case "http":
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultHTTPTimeout
		}
		feed, err := NewHTTPFeed(&http.Client{Timeout: timeout}, cfg.Endpoint, cfg.APIKey, cfg.Symbols)
		if err != nil {
			return nil, err
		}
		if cfg.Timeout > 0 && cfg.Timeout < defaultLookupTimeout {
			feed.SetLookupTimeout(cfg.Timeout)
		}
		base = feed
	case "pricebook":
		book, err := OpenPriceBook(cfg.Driver, cfg.DSN)
		if err != nil {
			return nil, err
		}
		src.PriceBook = book
		src.closer = closerFunc(book.Close)
		base = book
	default:
		return nil, fmt.Errorf("oracle: unknown source type %q", cfg.Type)
	}
	if cfg.MaxAge > 0 {
		base = NewGuarded(base, cfg.MaxAge)
	}
	src.Oracle = base
	return src, nil
}

// Publish records a price in whichever writable backend the source has.
func (s *Source) Publish(asset string, price *big.Int, ts uint64, publisher string) error {
	switch {
	case s == nil:
		return fmt.Errorf("oracle: source not configured")
	case s.PriceBook != nil:
		_, err := s.PriceBook.Publish(asset, price, ts, publisher)
		return err
	case s.Static != nil:
		if price == nil || price.Sign() <= 0 {
			return fmt.Errorf("oracle: price must be positive")
		}
		s.Static.Set(asset, price, ts)
		return nil
	default:
		return fmt.Errorf("oracle: source is read-only")
	}
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }
