package binance

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultRESTBaseURL = "https://fapi.binance.com"

// Config 只覆盖 ticker 查询需要的部分：REST 地址、超时和可选的 HTTP 代理。
type Config struct {
	RESTBaseURL string
	HTTPTimeout time.Duration

	ProxyEnabled bool
	RESTProxyURL string
}

func (c Config) normalized() Config {
	c.RESTBaseURL = strings.TrimRight(strings.TrimSpace(c.RESTBaseURL), "/")
	if c.RESTBaseURL == "" {
		c.RESTBaseURL = defaultRESTBaseURL
	}
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = 15 * time.Second
	}
	c.RESTProxyURL = strings.TrimSpace(c.RESTProxyURL)
	return c
}

// httpClient clones the default transport when a proxy is configured.
func (c Config) httpClient() (*http.Client, error) {
	client := &http.Client{Timeout: c.HTTPTimeout}
	if !c.ProxyEnabled || c.RESTProxyURL == "" {
		return client, nil
	}
	proxyURL, err := url.Parse(c.RESTProxyURL)
	if err != nil {
		return nil, fmt.Errorf("invalid REST proxy url: %w", err)
	}
	base, ok := http.DefaultTransport.(*http.Transport)
	if !ok || base == nil {
		return nil, fmt.Errorf("http DefaultTransport is not *http.Transport")
	}
	transport := base.Clone()
	transport.Proxy = http.ProxyURL(proxyURL)
	client.Transport = transport
	return client, nil
}
