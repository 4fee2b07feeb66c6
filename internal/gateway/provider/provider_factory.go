package provider

import (
	"strings"
	"time"

	"ethpulse/internal/logger"

	"golang.org/x/time/rate"
)

type ModelCfg struct {
	ID, APIURL, APIKey, Model string
	Enabled                   bool
	Headers                   map[string]string
	Timeout                   time.Duration
	RequestsPerMinute         int
}

// BuildProvidersFromConfig skips disabled entries; an empty ID falls back to the model name.
func BuildProvidersFromConfig(models []ModelCfg) []ModelProvider {
	out := make([]ModelProvider, 0, len(models))
	for _, m := range models {
		if !m.Enabled {
			continue
		}
		id := strings.TrimSpace(m.ID)
		if id == "" {
			id = strings.TrimSpace(m.Model)
			logger.Warnf("[predictor] predictor id missing, using model name %q", id)
		}
		client := &OpenAIChatClient{
			BaseURL:      m.APIURL,
			APIKey:       m.APIKey,
			Model:        m.Model,
			Timeout:      m.Timeout,
			ExtraHeaders: m.Headers,
		}
		if m.RequestsPerMinute > 0 {
			client.Limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(m.RequestsPerMinute)), 1)
		}
		out = append(out, NewOpenAIModelProvider(id, true, client))
	}
	return out
}
