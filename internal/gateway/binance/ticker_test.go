package binance

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSource_Ticker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/ticker/24hr") {
			http.NotFound(w, r)
			return
		}
		assert.Equal(t, "ETHUSDT", r.URL.Query().Get("symbol"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"symbol":"ETHUSDT","lastPrice":"2050.55","highPrice":"2101.00","lowPrice":"0","volume":"1000","quoteVolume":"2050000.5","closeTime":1767225600000}`))
	}))
	defer srv.Close()

	src, err := New(Config{RESTBaseURL: srv.URL})
	require.NoError(t, err)
	tk, err := src.Ticker(context.Background(), "ethusdt")
	require.NoError(t, err)
	assert.Equal(t, "ETHUSDT", tk.Symbol)
	assert.Equal(t, 2050.55, tk.Price)
	assert.Equal(t, 2050000.5, tk.Volume24h)
	require.NotNil(t, tk.High24h)
	assert.Equal(t, 2101.0, *tk.High24h)
	assert.Nil(t, tk.Low24h, "a zero low is reported as unavailable")
	assert.Equal(t, int64(1767225600000), tk.At.UnixMilli())
}

func TestSource_TickerRequiresSymbol(t *testing.T) {
	src, err := New(Config{})
	require.NoError(t, err)
	_, err = src.Ticker(context.Background(), " ")
	assert.Error(t, err)
}

func TestNew_InvalidProxy(t *testing.T) {
	_, err := New(Config{ProxyEnabled: true, RESTProxyURL: "://bad"})
	assert.Error(t, err)
}
