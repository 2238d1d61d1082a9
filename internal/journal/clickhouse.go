// Package journal persists closed trades to ClickHouse for end-of-day
// analysis. The engine only depends on the TradeJournal interface; a
// run without ClickHouse configured simply gets no journal.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"PulseTrade/internal/domain/models"
	"PulseTrade/internal/domain/repository"
)

// Schema returns the DDL for the trades table, applied through
// Client.InitSchema at startup.
func Schema(table string) []string {
	return []string{fmt.Sprintf(ddl, table)}
}

const ddl = `CREATE TABLE IF NOT EXISTS %s (
		symbol      LowCardinality(String),
		side        LowCardinality(String),
		quantity    Float64,
		entry_price Float64,
		entry_time  DateTime64(3),
		exit_price  Float64,
		exit_time   DateTime64(3),
		exit_reason LowCardinality(String),
		pnl         Float64
	) ENGINE = MergeTree()
	PARTITION BY toYYYYMMDD(exit_time)
	ORDER BY (symbol, exit_time)`

// ClickHouse implements TradeJournal on a ClickHouse table.
type ClickHouse struct {
	db    *sql.DB
	table string
}

// New creates a journal on db writing to table.
func New(db *sql.DB, table string) repository.TradeJournal {
	return &ClickHouse{db: db, table: table}
}

// Init is a no-op; schema creation runs through the ClickHouse client at
// startup so all DDL lives in one place.
func (j *ClickHouse) Init(ctx context.Context) error {
	return nil
}

// Append writes one closed trade.
func (j *ClickHouse) Append(ctx context.Context, rec *models.TradeRecord) error {
	q := fmt.Sprintf(
		"INSERT INTO %s (symbol, side, quantity, entry_price, entry_time, exit_price, exit_time, exit_reason, pnl) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)",
		j.table)
	_, err := j.db.ExecContext(ctx, q,
		rec.Symbol,
		string(rec.Side),
		rec.Quantity,
		rec.EntryPrice,
		rec.EntryTime,
		rec.ExitPrice,
		rec.ExitTime,
		rec.ExitReason,
		rec.PnL,
	)
	if err != nil {
		return fmt.Errorf("journal append %s: %w", rec.Symbol, err)
	}
	return nil
}

// Recent returns the newest trades, most recent first.
func (j *ClickHouse) Recent(ctx context.Context, limit int) ([]*models.TradeRecord, error) {
	q := fmt.Sprintf(
		"SELECT symbol, side, quantity, entry_price, entry_time, exit_price, exit_time, exit_reason, pnl FROM %s ORDER BY exit_time DESC LIMIT ?",
		j.table)
	rows, err := j.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("journal query: %w", err)
	}
	defer rows.Close()

	var out []*models.TradeRecord
	for rows.Next() {
		var rec models.TradeRecord
		var side string
		if err := rows.Scan(&rec.Symbol, &side, &rec.Quantity,
			&rec.EntryPrice, &rec.EntryTime,
			&rec.ExitPrice, &rec.ExitTime,
			&rec.ExitReason, &rec.PnL); err != nil {
			return nil, err
		}
		rec.Side = models.Side(side)
		out = append(out, &rec)
	}
	return out, rows.Err()
}

// DailyPnL sums realized P&L for the given day.
func (j *ClickHouse) DailyPnL(ctx context.Context, day time.Time) (float64, error) {
	q := fmt.Sprintf(
		"SELECT sum(pnl) FROM %s WHERE toDate(exit_time) = toDate(?)", j.table)
	var pnl sql.NullFloat64
	if err := j.db.QueryRowContext(ctx, q, day).Scan(&pnl); err != nil {
		return 0, fmt.Errorf("journal daily pnl: %w", err)
	}
	return pnl.Float64, nil
}

// Health pings the database.
func (j *ClickHouse) Health(ctx context.Context) error {
	return j.db.PingContext(ctx)
}

// Close is a no-op; connection lifetime is owned by the client.
func (j *ClickHouse) Close() error {
	return nil
}
