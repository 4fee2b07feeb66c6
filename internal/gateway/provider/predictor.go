package provider

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"ethpulse/internal/logger"
	"ethpulse/internal/types"

	"github.com/tidwall/gjson"
)

// Predictor produces one BUY/SELL/HOLD call for a market snapshot.
type Predictor interface {
	Name() string
	Predict(ctx context.Context, snap types.MarketSnapshot) (types.Action, error)
}

type traceKey struct{}

// WithTraceID tags ctx so the predictor exchange log can be correlated with a cycle.
func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, traceKey{}, id)
}

func TraceID(ctx context.Context) string {
	id, _ := ctx.Value(traceKey{}).(string)
	return id
}

// ChatPredictor asks a chat model for a decision.
type ChatPredictor struct {
	model  ModelProvider
	symbol string
}

func NewChatPredictor(model ModelProvider, symbol string) *ChatPredictor {
	return &ChatPredictor{model: model, symbol: symbol}
}

func (p *ChatPredictor) Name() string { return p.model.ID() }

func (p *ChatPredictor) Predict(ctx context.Context, snap types.MarketSnapshot) (types.Action, error) {
	payload := ChatPayload{
		System:    systemPrompt,
		User:      RenderPrompt(p.symbol, snap),
		MaxTokens: 64,
	}
	trace := TraceID(ctx)
	logger.LogPredictorRequest(p.Name(), trace, payload.System, payload.User)
	raw, err := p.model.Call(ctx, payload)
	if err != nil {
		return "", fmt.Errorf("%s: %w", p.Name(), err)
	}
	logger.LogPredictorResponse(p.Name(), trace, raw)
	action, err := ParseReply(raw)
	if err != nil {
		return "", fmt.Errorf("%s: %w", p.Name(), err)
	}
	return action, nil
}

const systemPrompt = `You are a market analyst taking part in a live benchmark against other models.
Every call is scored against the subsequent price move.
Reply with exactly one word: BUY, SELL or HOLD. A JSON object {"action":"BUY"} is also accepted.`

// RenderPrompt describes the snapshot; unavailable fields are stated as such.
func RenderPrompt(symbol string, snap types.MarketSnapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Current %s market:\n", symbol)
	fmt.Fprintf(&b, "- Price: $%.2f\n", snap.Price)
	fmt.Fprintf(&b, "- Volume (24h): $%.2f\n", snap.Volume24h)
	if snap.High24h != nil && snap.Low24h != nil {
		fmt.Fprintf(&b, "- Range (24h): high $%.2f / low $%.2f\n", *snap.High24h, *snap.Low24h)
	} else {
		b.WriteString("- Range (24h): unavailable\n")
	}
	if snap.SentimentValue != nil {
		fmt.Fprintf(&b, "- Fear & Greed: %d (%s)\n", *snap.SentimentValue, snap.Sentiment)
	} else {
		b.WriteString("- Fear & Greed: unavailable\n")
	}
	if snap.Fees != nil {
		fmt.Fprintf(&b, "- Gas (gwei): low %.3f / standard %.3f / fast %.3f\n", snap.Fees.Low, snap.Fees.Standard, snap.Fees.Fast)
	}
	b.WriteString(`
Decision framework:
1. BUY: strong bullish signals with favourable risk/reward
2. SELL: clear bearish indicators or significant downside risk
3. HOLD: mixed signals or no directional conviction`)
	return b.String()
}

var actionWord = regexp.MustCompile(`(?i)\b(BUY|SELL|HOLD)\b`)

// ParseReply extracts the action from a JSON object ("action" or "decision") or from the
// first BUY/SELL/HOLD word in free text. Nothing recognisable is a validation error.
func ParseReply(raw string) (types.Action, error) {
	text := strings.TrimSpace(raw)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)
	if gjson.Valid(text) {
		doc := gjson.Parse(text)
		for _, key := range []string{"action", "decision"} {
			if v := doc.Get(key); v.Exists() {
				return types.ParseAction(v.String())
			}
		}
	}
	if m := actionWord.FindString(text); m != "" {
		return types.ParseAction(m)
	}
	return "", types.Validationf("no BUY/SELL/HOLD in reply %q", truncate(raw, 80))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
