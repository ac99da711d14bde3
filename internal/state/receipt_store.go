package state

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Oeconomia2025/oec-standalone-staking-ui/internal/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog/log"
)

// SaveActionReceipt stores the outcome of one staking action.
func (s *Store) SaveActionReceipt(ctx context.Context, receipt types.ActionReceipt) error {
	query := `
		INSERT INTO action_receipts (action_timestamp, action_type, pool_id, account, amount, tx_hash, success, message)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING receipt_id;
	`
	var receiptID int64
	err := s.db.QueryRowContext(ctx, query,
		receipt.Timestamp, string(receipt.Kind), int64(receipt.PoolID), receipt.Account,
		nullString(receipt.Amount), nullString(receipt.TxHash), receipt.Success, nullString(receipt.Message),
	).Scan(&receiptID)
	if err != nil {
		return fmt.Errorf("failed to save action receipt: %w", mapError(err))
	}

	log.Debug().
		Int64("receipt_id", receiptID).
		Str("action", string(receipt.Kind)).
		Bool("success", receipt.Success).
		Msg("Action receipt saved to database")
	return nil
}

// RecentActionReceipts returns the newest receipts of account, newest first. The zero
// address returns receipts of every account.
func (s *Store) RecentActionReceipts(ctx context.Context, account common.Address, limit int) ([]types.ActionReceipt, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	query := `
		SELECT receipt_id, action_timestamp, action_type, pool_id, account,
			COALESCE(amount::TEXT, ''), COALESCE(tx_hash, ''), success, COALESCE(message, '')
		FROM action_receipts
		WHERE ($1 = '' OR lower(account) = lower($1))
		ORDER BY action_timestamp DESC, receipt_id DESC
		LIMIT $2;
	`
	filter := ""
	if account != (common.Address{}) {
		filter = account.Hex()
	}

	rows, err := s.db.QueryContext(ctx, query, filter, limit)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	receipts := make([]types.ActionReceipt, 0)
	for rows.Next() {
		var r types.ActionReceipt
		var kind string
		var pool int64
		if err := rows.Scan(&r.ReceiptID, &r.Timestamp, &kind, &pool, &r.Account, &r.Amount, &r.TxHash, &r.Success, &r.Message); err != nil {
			return nil, fmt.Errorf("failed to scan action receipt: %w", err)
		}
		r.Kind = types.ActionKind(kind)
		r.PoolID = types.PoolID(pool)
		receipts = append(receipts, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during receipt rows iteration: %w", err)
	}
	return receipts, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
