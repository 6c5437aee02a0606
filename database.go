package main

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/shopspring/decimal"
)

// ConnectDatabase opens the MySQL event log and checks it is reachable
func ConnectDatabase(ctx context.Context, cfg MySQLConfig) (*sql.DB, error) {
	db, err := sql.Open("mysql", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping mysql %s: %w", cfg.Host, err)
	}
	return db, nil
}

// SQLRecorder appends every transaction event to the transaction_events
// table. It is a log only; transaction state never comes back from it.
//
// created_at has whole-second precision on MySQL, so history is ordered by
// seq, which grows in publish order. It starts from the wall clock so rows
// written after a restart still sort after the earlier ones.
type SQLRecorder struct {
	db  *sql.DB
	seq atomic.Int64
}

func NewSQLRecorder(db *sql.DB) *SQLRecorder {
	r := &SQLRecorder{db: db}
	r.seq.Store(time.Now().UnixNano())
	return r
}

// CreateTables uses DDL that both MySQL and SQLite accept
func (r *SQLRecorder) CreateTables(ctx context.Context) error {
	query := `CREATE TABLE IF NOT EXISTS transaction_events (
				event_id VARCHAR(64) PRIMARY KEY,
				seq BIGINT NOT NULL,
				event_type VARCHAR(32) NOT NULL,
				transaction_id VARCHAR(64) NOT NULL,
				gateway VARCHAR(32) NOT NULL,
				status VARCHAR(16) NOT NULL,
				amount DECIMAL(18,2) NOT NULL,
				currency VARCHAR(3) NOT NULL,
				message TEXT,
				error_code VARCHAR(32),
				refund_id VARCHAR(64),
				processing_time_ms BIGINT NOT NULL,
				created_at TIMESTAMP NOT NULL
				)`

	if _, err := r.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("create transaction_events: %w", err)
	}
	return nil
}

func (r *SQLRecorder) Publish(ctx context.Context, ev TransactionEvent) error {
	query := `INSERT INTO transaction_events (event_id, seq, event_type, transaction_id, gateway, status, amount, currency, message, error_code, refund_id, processing_time_ms, created_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		ev.ID, r.seq.Add(1), string(ev.Type), ev.TransactionID, string(ev.Gateway), string(ev.Status),
		ev.Amount.StringFixed(2), ev.Currency, ev.Message, ev.ErrorCode, ev.RefundID,
		ev.ProcessingTimeMs, ev.Timestamp.UTC())
	if err != nil {
		return fmt.Errorf("record event for %s: %w", ev.TransactionID, err)
	}
	return nil
}

// History returns the recorded events of one transaction, oldest first
func (r *SQLRecorder) History(ctx context.Context, transactionID string) ([]TransactionEvent, error) {
	query := `SELECT event_id, event_type, gateway, status, amount, currency, message, error_code, refund_id, processing_time_ms, created_at
			  FROM transaction_events WHERE transaction_id = ? ORDER BY seq`

	rows, err := r.db.QueryContext(ctx, query, transactionID)
	if err != nil {
		return nil, fmt.Errorf("query history of %s: %w", transactionID, err)
	}
	defer rows.Close()

	events := make([]TransactionEvent, 0)
	for rows.Next() {
		var ev TransactionEvent
		var eventType, gateway, status, amount string
		var message, errorCode, refundID sql.NullString
		err := rows.Scan(&ev.ID, &eventType, &gateway, &status, &amount, &ev.Currency,
			&message, &errorCode, &refundID, &ev.ProcessingTimeMs, &ev.Timestamp)
		if err != nil {
			return nil, err
		}

		ev.Amount, err = decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("parse amount %q: %w", amount, err)
		}
		ev.Type = EventType(eventType)
		ev.TransactionID = transactionID
		ev.Gateway = ProviderID(gateway)
		ev.Status = PaymentStatus(status)
		ev.Message = message.String
		ev.ErrorCode = errorCode.String
		ev.RefundID = refundID.String

		events = append(events, ev)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}
