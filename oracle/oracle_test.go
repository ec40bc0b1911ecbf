package oracle

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParsePrice(t *testing.T) {
	cases := map[string]int64{
		"1":         1_000_000,
		"0.1":       100_000,
		"0.0000019": 1,
		"12.345678": 12_345_678,
	}
	for raw, want := range cases {
		got, err := ParsePrice(raw)
		require.NoError(t, err, raw)
		require.Equal(t, big.NewInt(want).String(), got.String(), raw)
	}
	_, err := ParsePrice("abc")
	require.Error(t, err)
	_, err = ParsePrice(" ")
	require.Error(t, err)

	require.Equal(t, "0.100000", FormatPrice(big.NewInt(100_000)))
}

func TestStatic(t *testing.T) {
	table := NewStatic()
	_, err := table.LastPrice("kale")
	require.True(t, errors.Is(err, ErrNoPrice))

	price := big.NewInt(1_000_000)
	table.Set("kale", price, 42)
	price.SetInt64(7)

	data, err := table.LastPrice("KALE")
	require.NoError(t, err)
	require.Equal(t, int64(1_000_000), data.Price.Int64())
	require.Equal(t, uint64(42), data.Timestamp)

	data, err = table.LastPrice("\uff2b\uff21\uff2c\uff25")
	require.NoError(t, err)
	require.Equal(t, uint64(42), data.Timestamp)

	table.Remove("Kale")
	_, err = table.LastPrice("KALE")
	require.ErrorIs(t, err, ErrNoPrice)
}

func TestHTTPFeed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-API-Key") != "secret" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		switch r.URL.Path {
		case "/prices/kale-usd/latest":
			_, _ = w.Write([]byte(`{"asset":"KALE","price":"0.125","timestamp":1700000000}`))
		case "/prices/XLM/latest":
			_, _ = w.Write([]byte(`{"asset":"XLM","price":0.1,"timestamp":1700000001}`))
		case "/prices/BROKEN/latest":
			http.Error(w, "boom", http.StatusBadGateway)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	feed, err := NewHTTPFeed(srv.Client(), srv.URL+"/", "secret", map[string]string{"kale": "kale-usd"})
	require.NoError(t, err)

	data, err := feed.LastPrice("KALE")
	require.NoError(t, err)
	require.Equal(t, int64(125_000), data.Price.Int64())
	require.Equal(t, uint64(1_700_000_000), data.Timestamp)

	data, err = feed.LastPrice("xlm")
	require.NoError(t, err)
	require.Equal(t, int64(100_000), data.Price.Int64())

	_, err = feed.LastPrice("DOGE")
	require.ErrorIs(t, err, ErrNoPrice)

	_, err = feed.LastPrice("BROKEN")
	require.Error(t, err)
	require.True(t, strings.Contains(err.Error(), "502"))

	_, err = NewHTTPFeed(nil, " ", "", nil)
	require.Error(t, err)
}

func TestHTTPFeedLookupDeadline(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	feed, err := NewHTTPFeed(&http.Client{Timeout: time.Minute}, srv.URL, "", nil)
	require.NoError(t, err)
	require.Equal(t, defaultLookupTimeout, feed.lookupTimeout)
	feed.SetLookupTimeout(0)
	require.Equal(t, defaultLookupTimeout, feed.lookupTimeout)
	feed.SetLookupTimeout(50 * time.Millisecond)

	start := time.Now()
	_, err = feed.LastPrice("KALE")
	require.Error(t, err)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Less(t, time.Since(start), 5*time.Second)
}

func openTestBook(t *testing.T) *PriceBook {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	book, err := OpenPriceBook("sqlite", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = book.Close() })
	return book
}

func TestPriceBookServesNewestObservation(t *testing.T) {
	book := openTestBook(t)

	_, err := book.LastPrice("KALE")
	require.ErrorIs(t, err, ErrNoPrice)

	_, err = book.Publish("kale", big.NewInt(900_000), 100, "attester-1")
	require.NoError(t, err)
	id, err := book.Publish("KALE", big.NewInt(1_100_000), 200, "attester-2")
	require.NoError(t, err)
	_, err = book.Publish("KALE", big.NewInt(1_000_000), 150, "attester-1")
	require.NoError(t, err)

	data, err := book.LastPrice("Kale")
	require.NoError(t, err)
	require.Equal(t, int64(1_100_000), data.Price.Int64())
	require.Equal(t, uint64(200), data.Timestamp)

	latest, err := book.Latest("KALE")
	require.NoError(t, err)
	require.Equal(t, id, latest.ID)
	require.Equal(t, "attester-2", latest.Publisher)

	history, err := book.History("KALE", 2)
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.Equal(t, uint64(200), history[0].Timestamp)
	require.Equal(t, uint64(150), history[1].Timestamp)

	_, err = book.Publish("KALE", big.NewInt(0), 300, "x")
	require.Error(t, err)
	_, err = book.Publish(" ", big.NewInt(1), 300, "x")
	require.Error(t, err)
}

func TestOpenPriceBookRejectsUnknownDriver(t *testing.T) {
	_, err := OpenPriceBook("mysql", "dsn")
	require.Error(t, err)
	_, err = OpenPriceBook("postgres", "")
	require.Error(t, err)
}

func TestGuardedRejectsStalePrices(t *testing.T) {
	table := NewStatic()
	table.Set("KALE", big.NewInt(1_000_000), 1_000)
	table.Set("XLM", big.NewInt(100_000), 0)

	guard := NewGuarded(table, time.Minute)
	guard.now = func() time.Time { return time.Unix(1_060, 0) }

	_, err := guard.LastPrice("KALE")
	require.NoError(t, err)

	guard.now = func() time.Time { return time.Unix(1_061, 0) }
	_, err = guard.LastPrice("KALE")
	require.Error(t, err)

	_, err = guard.LastPrice("XLM")
	require.Error(t, err, "missing observation time must count as stale")

	disabled := NewGuarded(table, 0)
	_, err = disabled.LastPrice("XLM")
	require.NoError(t, err)
}

func TestBuild(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	src, err := Build(Config{Type: "static", Prices: map[string]string{"KALE": "1", "xlm": "0.1"}}, now)
	require.NoError(t, err)
	data, err := src.Oracle.LastPrice("XLM")
	require.NoError(t, err)
	require.Equal(t, int64(100_000), data.Price.Int64())
	require.Equal(t, uint64(now.Unix()), data.Timestamp)

	require.NoError(t, src.Publish("KALE", big.NewInt(2_000_000), 5, "admin"))
	data, err = src.Oracle.LastPrice("KALE")
	require.NoError(t, err)
	require.Equal(t, int64(2_000_000), data.Price.Int64())
	require.NoError(t, src.Close())

	_, err = Build(Config{Type: "static", Prices: map[string]string{"KALE": "nope"}}, now)
	require.Error(t, err)
	_, err = Build(Config{Type: "carrier-pigeon"}, now)
	require.Error(t, err)

	feed, err := Build(Config{Type: "http", Endpoint: "http://127.0.0.1:1"}, now)
	require.NoError(t, err)
	require.Error(t, feed.Publish("KALE", big.NewInt(1), 1, "admin"))

	guarded, err := Build(Config{Type: "static", MaxAge: time.Hour}, now)
	require.NoError(t, err)
	_, ok := guarded.Oracle.(*Guarded)
	require.True(t, ok)
}
