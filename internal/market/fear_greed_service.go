package market

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"ethpulse/internal/cache"
	"ethpulse/internal/logger"
	"ethpulse/internal/types"
)

const (
	DefaultFearGreedEndpoint = "https://api.alternative.me/fng/?limit=1"
	defaultFearGreedRefresh  = 12 * time.Hour
)

// FearGreedService 拉取 alternative.me 的恐惧贪婪指数，结果放在显式持有的缓存里。
// 拉取失败时返回 ErrDegradedData，不会伪造中性值。
type FearGreedService struct {
	endpoint string
	client   *http.Client
	maxAge   time.Duration
	value    *cache.Value[Sentiment]
}

func NewFearGreedService(endpoint string, client *http.Client, refresh time.Duration) *FearGreedService {
	if strings.TrimSpace(endpoint) == "" {
		endpoint = DefaultFearGreedEndpoint
	}
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	if refresh <= 0 {
		refresh = defaultFearGreedRefresh
	}
	s := &FearGreedService{endpoint: endpoint, client: client, maxAge: refresh}
	s.value = cache.New(s.fetch)
	return s
}

func (s *FearGreedService) Sentiment(ctx context.Context) (Sentiment, error) {
	if s == nil {
		return Sentiment{}, types.Degradedf("fear & greed service not initialized")
	}
	v, err := s.value.GetOrRefresh(ctx, s.maxAge)
	if err != nil {
		logger.Warnf("[market] fear & greed refresh failed: %v", err)
		return Sentiment{}, types.Degradedf("fear & greed unavailable: %v", err)
	}
	return v, nil
}

// Peek returns the last good reading without touching the network.
func (s *FearGreedService) Peek() (Sentiment, bool) {
	v, _, ok := s.value.Peek()
	return v, ok
}

type fearGreedResponse struct {
	Data []struct {
		Value               string `json:"value"`
		ValueClassification string `json:"value_classification"`
		Timestamp           string `json:"timestamp"`
	} `json:"data"`
	Metadata struct {
		Error interface{} `json:"error"`
	} `json:"metadata"`
}

func (s *FearGreedService) fetch(ctx context.Context) (Sentiment, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.endpoint, nil)
	if err != nil {
		return Sentiment{}, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := s.client.Do(req)
	if err != nil {
		return Sentiment{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Sentiment{}, fmt.Errorf("unexpected status %s", resp.Status)
	}
	var payload fearGreedResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return Sentiment{}, err
	}
	if payload.Metadata.Error != nil {
		return Sentiment{}, fmt.Errorf("api error: %v", payload.Metadata.Error)
	}
	if len(payload.Data) == 0 {
		return Sentiment{}, fmt.Errorf("api data empty")
	}
	item := payload.Data[0]
	value, err := strconv.Atoi(strings.TrimSpace(item.Value))
	if err != nil || value < 0 || value > 100 {
		return Sentiment{}, fmt.Errorf("api value invalid: %q", item.Value)
	}
	var ts time.Time
	if sec, err := strconv.ParseInt(strings.TrimSpace(item.Timestamp), 10, 64); err == nil {
		ts = time.Unix(sec, 0).UTC()
	}
	return Sentiment{
		Value:          value,
		Classification: strings.TrimSpace(item.ValueClassification),
		Label:          types.SentimentFromValue(value),
		Timestamp:      ts,
	}, nil
}
