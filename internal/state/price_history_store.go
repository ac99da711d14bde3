package state

import (
	"context"
	"fmt"
	"strings"

	"github.com/Oeconomia2025/oec-standalone-staking-ui/internal/config"
	"github.com/Oeconomia2025/oec-standalone-staking-ui/internal/types"
	"github.com/rs/zerolog/log"
)

// PriceHistory returns the stored series of token for tf, oldest first. An unknown
// token yields an empty, non-nil slice.
func (s *Store) PriceHistory(ctx context.Context, token string, tf types.Timeframe) ([]types.PricePoint, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT timestamp, price FROM price_history_data
		WHERE upper(token_code) = $1 AND timeframe = $2
		ORDER BY timestamp ASC;
	`, strings.ToUpper(strings.TrimSpace(token)), string(tf))
	if err != nil {
		return nil, mapError(err)
	}
	return scanPoints(rows)
}

// PriceHistoryByContract resolves contract to a token code through the configured
// contract map, falling back to rows stored with that contract address.
func (s *Store) PriceHistoryByContract(ctx context.Context, contract string, tf types.Timeframe) ([]types.PricePoint, error) {
	if code, ok := config.CodeForContract(contract); ok {
		return s.PriceHistory(ctx, code, tf)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT timestamp, price FROM price_history_data
		WHERE lower(contract_address) = $1 AND timeframe = $2
		ORDER BY timestamp ASC;
	`, strings.ToLower(strings.TrimSpace(contract)), string(tf))
	if err != nil {
		return nil, mapError(err)
	}
	return scanPoints(rows)
}

// SavePriceHistory replaces the stored series of token for tf.
func (s *Store) SavePriceHistory(ctx context.Context, token string, tf types.Timeframe, points []types.PricePoint) (int, error) {
	code := strings.ToUpper(strings.TrimSpace(token))
	if code == "" {
		return 0, fmt.Errorf("token code is required")
	}
	var contract *string
	if addr := config.ContractForCode(code); addr != "" {
		contract = &addr
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin price history write: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM price_history_data WHERE token_code = $1 AND timeframe = $2;`, code, string(tf)); err != nil {
		return 0, mapError(err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO price_history_data (token_code, contract_address, timeframe, timestamp, price)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (token_code, timeframe, timestamp) DO UPDATE SET price = EXCLUDED.price;
	`)
	if err != nil {
		return 0, mapError(err)
	}
	defer stmt.Close()

	for _, p := range points {
		if _, err := stmt.ExecContext(ctx, code, contract, string(tf), p.Timestamp, p.Price); err != nil {
			return 0, fmt.Errorf("failed to insert price point %d: %w", p.Timestamp, mapError(err))
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit price history: %w", err)
	}

	log.Info().
		Str("token", code).
		Str("timeframe", string(tf)).
		Int("points", len(points)).
		Msg("Price history saved")
	return len(points), nil
}

type pointRows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
	Close() error
}

func scanPoints(rows pointRows) ([]types.PricePoint, error) {
	defer rows.Close()
	points := make([]types.PricePoint, 0)
	for rows.Next() {
		var p types.PricePoint
		if err := rows.Scan(&p.Timestamp, &p.Price); err != nil {
			return nil, fmt.Errorf("failed to scan price point: %w", err)
		}
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during price rows iteration: %w", err)
	}
	return points, nil
}
