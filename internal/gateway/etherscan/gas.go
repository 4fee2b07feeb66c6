package etherscan

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"ethpulse/internal/market"
	"ethpulse/internal/types"

	"github.com/tidwall/gjson"
)

const DefaultBaseURL = "https://api.etherscan.io/api"

// GasOracle reads the low/standard/fast tiers from the Etherscan gas tracker.
type GasOracle struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

var _ market.FeeSource = (*GasOracle)(nil)

func NewGasOracle(baseURL, apiKey string, timeout time.Duration) *GasOracle {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &GasOracle{
		baseURL: strings.TrimSpace(baseURL),
		apiKey:  strings.TrimSpace(apiKey),
		client:  &http.Client{Timeout: timeout},
	}
}

func (g *GasOracle) FeeTiers(ctx context.Context) (types.FeeTiers, error) {
	q := url.Values{}
	q.Set("module", "gastracker")
	q.Set("action", "gasoracle")
	if g.apiKey != "" {
		q.Set("apikey", g.apiKey)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return types.FeeTiers{}, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := g.client.Do(req)
	if err != nil {
		return types.FeeTiers{}, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return types.FeeTiers{}, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return types.FeeTiers{}, fmt.Errorf("gas oracle status %s", resp.Status)
	}
	return parseGasOracle(body)
}

func parseGasOracle(body []byte) (types.FeeTiers, error) {
	if !gjson.ValidBytes(body) {
		return types.FeeTiers{}, fmt.Errorf("gas oracle: invalid json")
	}
	doc := gjson.ParseBytes(body)
	if doc.Get("status").String() != "1" {
		return types.FeeTiers{}, fmt.Errorf("gas oracle: %s", doc.Get("message").String())
	}
	res := doc.Get("result")
	low, err := parseGwei(res.Get("SafeGasPrice"))
	if err != nil {
		return types.FeeTiers{}, err
	}
	std, err := parseGwei(res.Get("ProposeGasPrice"))
	if err != nil {
		return types.FeeTiers{}, err
	}
	fast, err := parseGwei(res.Get("FastGasPrice"))
	if err != nil {
		return types.FeeTiers{}, err
	}
	return types.FeeTiers{Low: low, Standard: std, Fast: fast}, nil
}

// parseGwei accepts plain and "<1" style values.
func parseGwei(v gjson.Result) (float64, error) {
	if !v.Exists() {
		return 0, fmt.Errorf("gas oracle: missing tier")
	}
	raw := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(v.String()), "<"))
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || f < 0 {
		return 0, fmt.Errorf("gas oracle: invalid tier %q", v.String())
	}
	return f, nil
}
