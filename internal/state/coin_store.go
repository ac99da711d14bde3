/*

This file manages the LiveCoinWatch cache table. The sync handler upserts the top coins
keyed by code; the token-summary handlers only ever read from here.

*/

package state

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Oeconomia2025/oec-standalone-staking-ui/internal/types"
	"github.com/rs/zerolog/log"
)

// CoinCacheStatus summarises the cache table.
type CoinCacheStatus struct {
	Count       int        `json:"count"`
	LastUpdated *time.Time `json:"lastUpdated,omitempty"`
}

const coinColumns = `code, name, rate, volume, cap, delta_hour, delta_day, delta_week, delta_month,
	delta_quarter, delta_year, total_supply, circulating_supply, max_supply, last_updated`

// UpsertCoins writes coins in one transaction and returns how many rows changed.
func (s *Store) UpsertCoins(ctx context.Context, coins []types.LiveCoin) (int, error) {
	if len(coins) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin coin upsert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO live_coin_watch_coins (`+coinColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (code) DO UPDATE SET
			name = EXCLUDED.name,
			rate = EXCLUDED.rate,
			volume = EXCLUDED.volume,
			cap = EXCLUDED.cap,
			delta_hour = EXCLUDED.delta_hour,
			delta_day = EXCLUDED.delta_day,
			delta_week = EXCLUDED.delta_week,
			delta_month = EXCLUDED.delta_month,
			delta_quarter = EXCLUDED.delta_quarter,
			delta_year = EXCLUDED.delta_year,
			total_supply = EXCLUDED.total_supply,
			circulating_supply = EXCLUDED.circulating_supply,
			max_supply = EXCLUDED.max_supply,
			last_updated = EXCLUDED.last_updated;
	`)
	if err != nil {
		return 0, mapError(err)
	}
	defer stmt.Close()

	written := 0
	for _, c := range coins {
		if _, err := stmt.ExecContext(ctx,
			strings.ToUpper(c.Code), c.Name, c.Rate, c.Volume, c.Cap,
			c.DeltaHour, c.DeltaDay, c.DeltaWeek, c.DeltaMonth, c.DeltaQuarter, c.DeltaYear,
			c.TotalSupply, c.CirculatingSupply, c.MaxSupply, c.LastUpdated,
		); err != nil {
			return 0, fmt.Errorf("failed to upsert coin %s: %w", c.Code, mapError(err))
		}
		written++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit coin upsert: %w", err)
	}

	log.Info().Int("coins", written).Msg("LiveCoinWatch cache updated")
	return written, nil
}

// GetCoin returns the cached coin for code, case-insensitively. ErrNotFound when absent.
func (s *Store) GetCoin(ctx context.Context, code string) (types.LiveCoin, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+coinColumns+` FROM live_coin_watch_coins WHERE code = $1;`,
		strings.ToUpper(strings.TrimSpace(code)))

	coin, err := scanCoin(row)
	if err != nil {
		return types.LiveCoin{}, mapError(err)
	}
	return coin, nil
}

// ListCoins returns up to limit cached coins by descending market cap.
func (s *Store) ListCoins(ctx context.Context, limit int) ([]types.LiveCoin, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+coinColumns+` FROM live_coin_watch_coins ORDER BY cap DESC LIMIT $1;`, limit)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	coins := make([]types.LiveCoin, 0, limit)
	for rows.Next() {
		coin, err := scanCoin(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan coin row: %w", err)
		}
		coins = append(coins, coin)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during coin rows iteration: %w", err)
	}
	return coins, nil
}

// CoinStatus reports the row count and the newest update.
func (s *Store) CoinStatus(ctx context.Context) (CoinCacheStatus, error) {
	var status CoinCacheStatus
	var last *time.Time
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), MAX(last_updated) FROM live_coin_watch_coins;`).Scan(&status.Count, &last)
	if err != nil {
		return CoinCacheStatus{}, mapError(err)
	}
	status.LastUpdated = last
	return status, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanCoin(row rowScanner) (types.LiveCoin, error) {
	var c types.LiveCoin
	err := row.Scan(
		&c.Code, &c.Name, &c.Rate, &c.Volume, &c.Cap,
		&c.DeltaHour, &c.DeltaDay, &c.DeltaWeek, &c.DeltaMonth, &c.DeltaQuarter, &c.DeltaYear,
		&c.TotalSupply, &c.CirculatingSupply, &c.MaxSupply, &c.LastUpdated,
	)
	return c, err
}
