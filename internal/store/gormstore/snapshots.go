package gormstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"ethpulse/internal/logger"
	storemodel "ethpulse/internal/store/model"
	"ethpulse/internal/types"

	"gorm.io/datatypes"
)

func (s *GormStore) AppendSnapshot(ctx context.Context, snap types.MarketSnapshot) (int64, error) {
	if s == nil || s.db == nil {
		return 0, errNotInitialized
	}
	now := s.now()
	if snap.Timestamp.IsZero() {
		snap.Timestamp = now
	}
	m := newSnapshotModel(snap)
	m.CreatedAtMs = now.UnixMilli()
	if err := s.db.WithContext(ctx).Create(&m).Error; err != nil {
		return 0, fmt.Errorf("append snapshot: %w", err)
	}
	return m.ID, nil
}

func (s *GormStore) RecentSnapshots(ctx context.Context, n int) ([]types.MarketSnapshot, error) {
	if s == nil || s.db == nil {
		return nil, errNotInitialized
	}
	if n <= 0 {
		return nil, nil
	}
	var models []storemodel.SnapshotModel
	err := s.db.WithContext(ctx).
		Order("ts_ms DESC, id DESC").
		Limit(n).
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("recent snapshots: %w", err)
	}
	out := make([]types.MarketSnapshot, 0, len(models))
	for _, m := range models {
		out = append(out, snapshotModelToType(m))
	}
	return out, nil
}

func (s *GormStore) LatestSnapshot(ctx context.Context) (types.MarketSnapshot, error) {
	if s == nil || s.db == nil {
		return types.MarketSnapshot{}, errNotInitialized
	}
	var m storemodel.SnapshotModel
	err := s.db.WithContext(ctx).Order("ts_ms DESC, id DESC").First(&m).Error
	if err != nil {
		return types.MarketSnapshot{}, wrapNotFound(err, "no market snapshot recorded yet")
	}
	return snapshotModelToType(m), nil
}

func newSnapshotModel(snap types.MarketSnapshot) storemodel.SnapshotModel {
	m := storemodel.SnapshotModel{
		TimestampMs:    snap.Timestamp.UnixMilli(),
		Price:          snap.Price,
		Volume24h:      snap.Volume24h,
		High24h:        snap.High24h,
		Low24h:         snap.Low24h,
		SentimentValue: snap.SentimentValue,
		SentimentLabel: string(snap.Sentiment),
	}
	if snap.Fees != nil {
		raw, err := json.Marshal(snap.Fees)
		if err != nil {
			// 费率缺失不影响快照本身入库
			logger.Warnf("[store] snapshot at %s: %v", snap.Timestamp.UTC().Format(time.RFC3339),
				types.Degradedf("fee tiers not stored: %v", err))
		} else {
			m.FeeTiers = datatypes.JSON(raw)
		}
	}
	if m.SentimentLabel == "" {
		m.SentimentLabel = string(types.SentimentUnavailable)
	}
	return m
}

func snapshotModelToType(m storemodel.SnapshotModel) types.MarketSnapshot {
	out := types.MarketSnapshot{
		ID:             m.ID,
		Timestamp:      time.UnixMilli(m.TimestampMs).UTC(),
		Price:          m.Price,
		Volume24h:      m.Volume24h,
		High24h:        m.High24h,
		Low24h:         m.Low24h,
		SentimentValue: m.SentimentValue,
		Sentiment:      types.SentimentLabel(m.SentimentLabel),
	}
	if len(m.FeeTiers) > 0 {
		var fees types.FeeTiers
		if err := json.Unmarshal(m.FeeTiers, &fees); err != nil {
			logger.Warnf("[store] snapshot %d: %v", m.ID, types.Degradedf("fee tiers unreadable: %v", err))
		} else {
			out.Fees = &fees
		}
	}
	return out
}
