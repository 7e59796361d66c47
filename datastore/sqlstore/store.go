// Package sqlstore implements the wallet, account and transaction repositories over
// database/sql. Aggregates are stored as JSON records next to the columns they are looked
// up by. Postgres is the production backend; ramsql backs tests and ephemeral stores.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/lib/pq"
	_ "github.com/proullon/ramsql/driver"
)

const (
	sCHEMA_WALLETS = `
		CREATE TABLE IF NOT EXISTS wallets (
			id       TEXT PRIMARY KEY,
			payload  TEXT
		);`

	sCHEMA_SELECTED_WALLET = `
		CREATE TABLE IF NOT EXISTS selected_wallet (
			slot       INT PRIMARY KEY,
			wallet_id  TEXT
		);`

	sCHEMA_ACCOUNTS = `
		CREATE TABLE IF NOT EXISTS accounts (
			id         TEXT PRIMARY KEY,
			wallet_id  TEXT,
			token      TEXT,
			balance    TEXT
		);`

	sCHEMA_TRANSACTIONS = `
		CREATE TABLE IF NOT EXISTS transactions (
			id         TEXT PRIMARY KEY,
			wallet_id  TEXT,
			tx_type    TEXT,
			tx_hash    TEXT,
			payload    TEXT
		);`
)

// DB is the part of *sql.DB and *sql.Tx the repositories use.
type DB interface {
	QueryContext(ctx context.Context, q string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, q string, args ...any) (sql.Result, error)
}

// Store owns the database handle shared by the repositories.
type Store struct {
	db *sql.DB
}

// New creates the schema in db and returns a Store over it.
func New(ctx context.Context, db *sql.DB) (*Store, error) {
	for _, schema := range []string{sCHEMA_WALLETS, sCHEMA_SELECTED_WALLET, sCHEMA_ACCOUNTS, sCHEMA_TRANSACTIONS} {
		if _, err := db.ExecContext(ctx, schema); err != nil {
			return nil, fmt.Errorf("failed to create schema: %w", err)
		}
	}

	return &Store{db: db}, nil
}

// OpenPostgres connects to the Postgres database at dsn.
func OpenPostgres(ctx context.Context, dsn string) (*Store, error) {
	return open(ctx, "postgres", dsn)
}

// OpenMemory opens the in-process ramsql database called name. Stores opened with the same
// name share their data.
func OpenMemory(ctx context.Context, name string) (*Store, error) {
	return open(ctx, "ramsql", name)
}

func open(ctx context.Context, driver, dsn string) (*Store, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", driver, err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to reach %s database: %w", driver, err)
	}

	s, err := New(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return s, nil
}

// Close closes the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Wallets() *WalletStore           { return &WalletStore{db: s.db} }
func (s *Store) Accounts() *AccountStore         { return &AccountStore{db: s.db} }
func (s *Store) Transactions() *TransactionStore { return &TransactionStore{db: s.db} }

// replace deletes the row keyed by id from table and inserts a new one in a single
// transaction.
func replace(ctx context.Context, db *sql.DB, table string, id any, insert string, args ...any) (err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			err = errors.Join(err, tx.Rollback())
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE `+keyColumn(table)+` = $1`, id); err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx, insert, args...); err != nil {
		return err
	}

	return tx.Commit()
}

func keyColumn(table string) string {
	if table == "selected_wallet" {
		return "slot"
	}

	return "id"
}

// queryStrings runs q and returns the single text column of every row.
func queryStrings(ctx context.Context, db DB, q string, args ...any) ([]string, error) {
	rows, err := db.QueryContext(ctx, q, args...)
	defer func(rows *sql.Rows) {
		if rows != nil {
			_ = rows.Close()
		}
	}(rows)
	if err != nil {
		return nil, err
	}

	var out []string
	for rows.Next() {
		var v sql.NullString
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v.String)
	}

	return out, rows.Err()
}
