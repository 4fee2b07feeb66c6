package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"ethpulse/internal/logger"
	"ethpulse/internal/metrics"
	"ethpulse/internal/types"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
)

// Store is the write side used by ingestion.
type Store interface {
	AppendSnapshot(ctx context.Context, snap types.MarketSnapshot) (int64, error)
	AppendDecision(ctx context.Context, d types.NewDecision) (int64, error)
}

type FeeInput struct {
	Low      float64 `json:"low" validate:"gte=0"`
	Standard float64 `json:"standard" validate:"gte=0"`
	Fast     float64 `json:"fast" validate:"gte=0"`
}

// MarketInput is one observation. Optional fields left nil are stored as unavailable.
type MarketInput struct {
	Timestamp      time.Time `json:"timestamp"`
	Price          float64   `json:"price" validate:"gt=0"`
	Volume24h      float64   `json:"volume_24h" validate:"gte=0"`
	High24h        *float64  `json:"high_24h" validate:"omitempty,gt=0"`
	Low24h         *float64  `json:"low_24h" validate:"omitempty,gt=0"`
	FeeTiers       *FeeInput `json:"fee_tiers" validate:"omitempty"`
	SentimentValue *int      `json:"sentiment_value" validate:"omitempty,gte=0,lte=100"`
	SentimentLabel string    `json:"sentiment_label" validate:"omitempty,oneof=bullish bearish neutral unavailable"`
}

type DecisionInput struct {
	Timestamp time.Time `json:"timestamp"`
	Predictor string    `json:"predictor" validate:"required,max=64"`
	Action    string    `json:"action" validate:"required,oneof=BUY SELL HOLD"`
	Price     float64   `json:"price" validate:"gt=0"`
	Context   string    `json:"context" validate:"omitempty,max=128"`
}

// ListQuery is the paging input for recent snapshots/decisions.
type ListQuery struct {
	Limit int `form:"limit" default:"100" validate:"gte=1,lte=1000"`
}

// DaysQuery is the window input for comparison and rollup history.
type DaysQuery struct {
	Days int `form:"days" default:"7" validate:"gte=1,lte=365"`
}

// Service validates input synchronously; rejected input is never stored.
type Service struct {
	store    Store
	metrics  *metrics.Recorder
	validate *validator.Validate
}

func NewService(st Store, rec *metrics.Recorder) *Service {
	return &Service{store: st, metrics: rec, validate: validator.New()}
}

func (s *Service) RecordSnapshot(ctx context.Context, in MarketInput) (int64, error) {
	if err := s.Validate(ctx, &in); err != nil {
		return 0, err
	}
	if in.High24h != nil && in.Low24h != nil && *in.High24h < *in.Low24h {
		return 0, types.Validationf("high_24h must not be below low_24h")
	}
	snap := types.MarketSnapshot{
		Timestamp:      in.Timestamp,
		Price:          in.Price,
		Volume24h:      in.Volume24h,
		High24h:        in.High24h,
		Low24h:         in.Low24h,
		SentimentValue: in.SentimentValue,
		Sentiment:      types.SentimentLabel(in.SentimentLabel),
	}
	if in.FeeTiers != nil {
		snap.Fees = &types.FeeTiers{Low: in.FeeTiers.Low, Standard: in.FeeTiers.Standard, Fast: in.FeeTiers.Fast}
	}
	if snap.Sentiment == "" {
		snap.Sentiment = types.SentimentUnavailable
		if in.SentimentValue != nil {
			snap.Sentiment = types.SentimentFromValue(*in.SentimentValue)
		}
	}
	id, err := s.store.AppendSnapshot(ctx, snap)
	if err != nil {
		return 0, err
	}
	return id, nil
}

func (s *Service) RecordDecision(ctx context.Context, in DecisionInput) (int64, error) {
	in.Action = strings.ToUpper(strings.TrimSpace(in.Action))
	in.Predictor = strings.TrimSpace(in.Predictor)
	if err := s.Validate(ctx, &in); err != nil {
		return 0, err
	}
	id, err := s.store.AppendDecision(ctx, types.NewDecision{
		Timestamp: in.Timestamp,
		Predictor: in.Predictor,
		Action:    types.Action(in.Action),
		Price:     in.Price,
		Context:   in.Context,
	})
	if err != nil {
		return 0, err
	}
	s.metrics.RecordDecision(in.Predictor, in.Action)
	logger.Debugf("[ingest] decision %d %s %s @ %.2f ctx=%s", id, in.Predictor, in.Action, in.Price, types.NormalizeContext(in.Context))
	return id, nil
}

// RecordWalletDecision requires a concrete context; the global sentinel is rejected.
func (s *Service) RecordWalletDecision(ctx context.Context, wallet string, in DecisionInput) (int64, error) {
	wallet = strings.TrimSpace(wallet)
	if wallet == "" || wallet == types.GlobalContext {
		return 0, types.Validationf("wallet context is required")
	}
	in.Context = wallet
	return s.RecordDecision(ctx, in)
}

// ParseQuery applies `default` tags to a query struct, then validates it.
func (s *Service) ParseQuery(ctx context.Context, q any) error {
	if err := defaults.Set(q); err != nil {
		return types.Validationf("%v", err)
	}
	return s.Validate(ctx, q)
}

// Validate checks `validate` tags. Failures wrap types.ErrValidation.
func (s *Service) Validate(ctx context.Context, v any) error {
	if err := s.validate.StructCtx(ctx, v); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			msgs := make([]string, 0, len(fieldErrs))
			for _, fe := range fieldErrs {
				msgs = append(msgs, fieldMessage(fe))
			}
			return types.Validationf("%s", strings.Join(msgs, "; "))
		}
		return types.Validationf("%v", err)
	}
	return nil
}

func fieldMessage(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, strings.ReplaceAll(fe.Param(), " ", ", "))
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", field, fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be less than or equal to %s", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed validation: %s", field, fe.Tag())
	}
}
