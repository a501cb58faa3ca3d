package clickhouse

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/0xsequence/token-directory/internal/domain"
	"github.com/0xsequence/token-directory/internal/storage"
)

// VolumeStore implements storage.VolumeStore using ClickHouse.
type VolumeStore struct {
	conn *Conn
}

// NewVolumeStore creates a new VolumeStore.
func NewVolumeStore(conn *Conn) *VolumeStore {
	return &VolumeStore{conn: conn}
}

// Compile-time interface check.
var _ storage.VolumeStore = (*VolumeStore)(nil)

// InsertBulk adds observations in one batch.
func (s *VolumeStore) InsertBulk(ctx context.Context, obs []*domain.VolumeObservation) error {
	if len(obs) == 0 {
		return nil
	}
	for _, o := range obs {
		if o == nil || o.RunID == "" {
			return storage.ErrInvalidInput
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO volume_observations (
			run_id, chain, coin_id, address, symbol, volume_usd, rank, observed_at
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, o := range obs {
		err = batch.Append(
			o.RunID, o.Chain, o.CoinID, o.Address, o.Symbol,
			o.VolumeUSD, uint32(o.Rank), uint64(o.ObservedAt),
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetByRun returns observations of a run ordered by chain, rank, address.
func (s *VolumeStore) GetByRun(ctx context.Context, runID string) ([]*domain.VolumeObservation, error) {
	query := `
		SELECT run_id, chain, coin_id, address, symbol, volume_usd, rank, observed_at
		FROM volume_observations
		WHERE run_id = ?
		ORDER BY chain ASC, rank ASC, address ASC
	`

	rows, err := s.conn.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("query volume observations: %w", err)
	}
	defer rows.Close()

	var result []*domain.VolumeObservation
	for rows.Next() {
		var (
			o          domain.VolumeObservation
			volume     decimal.Decimal
			rank       uint32
			observedAt uint64
		)
		if err := rows.Scan(&o.RunID, &o.Chain, &o.CoinID, &o.Address, &o.Symbol, &volume, &rank, &observedAt); err != nil {
			return nil, fmt.Errorf("scan volume observation: %w", err)
		}
		o.VolumeUSD = volume
		o.Rank = int(rank)
		o.ObservedAt = int64(observedAt)
		result = append(result, &o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate volume observations: %w", err)
	}
	return result, nil
}
