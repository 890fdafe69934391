package replication

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

const slotStatusQuery = `
	SELECT
		slot_name,
		active,
		restart_lsn::text AS restart_lsn,
		confirmed_flush_lsn::text AS confirmed_flush_lsn,
		GREATEST(COALESCE(pg_wal_lsn_diff(pg_current_wal_lsn(), confirmed_flush_lsn), 0), 0)::bigint AS lag_bytes
	FROM pg_replication_slots
	WHERE slot_name = $1`

type SlotQuerier interface {
	QuerySlot(ctx context.Context, slotName string) (*Status, error)
}

// PostgresSlotQuerier reads slot state from the pg_replication_slots catalog view.
type PostgresSlotQuerier struct {
	db *sqlx.DB
}

func NewPostgresSlotQuerier(db *sqlx.DB) *PostgresSlotQuerier {
	return &PostgresSlotQuerier{db: db}
}

func (q *PostgresSlotQuerier) QuerySlot(ctx context.Context, slotName string) (*Status, error) {
	var status Status
	if err := q.db.GetContext(ctx, &status, slotStatusQuery, slotName); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrSlotNotFound, slotName)
		}
		return nil, fmt.Errorf("failed to query replication slot %s: %w", slotName, err)
	}
	return &status, nil
}
