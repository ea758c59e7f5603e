package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/shopspring/decimal"

	"cookbooks/internal/core"
	"cookbooks/internal/source"

	_ "modernc.org/sqlite"
)

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

const transactionColumns = `id, date, description, type, category, raw_amount, cooked_amount`

// ListTransactions implements source.TransactionReader
func (r *SQLiteRepository) ListTransactions(ctx context.Context) ([]core.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+transactionColumns+` FROM transactions ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var out []core.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return out, nil
}

// GetTransaction retrieves a single transaction by id.
func (r *SQLiteRepository) GetTransaction(ctx context.Context, id int64) (core.Transaction, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = ?`, id)
	tx, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, fmt.Errorf("get %d: %w", id, source.ErrNotFound)
	}
	return tx, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTransaction(s scanner) (core.Transaction, error) {
	var (
		tx          core.Transaction
		date, typ   string
		raw, cooked decimal.Decimal
	)
	if err := s.Scan(&tx.ID, &date, &tx.Description, &typ, &tx.Category, &raw, &cooked); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return tx, err
		}
		return tx, fmt.Errorf("scan transaction: %w", err)
	}
	d, err := core.ParseDate(date)
	if err != nil {
		return tx, fmt.Errorf("transaction %d: %w", tx.ID, err)
	}
	tx.Date = d
	tx.Type = core.TransactionType(typ)
	tx.RawAmount = raw
	tx.CookedAmount = cooked
	return tx, nil
}

// CreateTransaction implements source.TransactionWriter
func (r *SQLiteRepository) CreateTransaction(ctx context.Context, tx core.Transaction) (int64, error) {
	if err := tx.Validate(); err != nil {
		return 0, err
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO transactions (date, description, type, category, raw_amount, cooked_amount)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		tx.Date.String(), tx.Description, string(tx.Type), tx.Category,
		tx.RawAmount.String(), tx.CookedAmount.String())
	if err != nil {
		return 0, fmt.Errorf("create transaction: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("read inserted id: %w", err)
	}

	slog.InfoContext(ctx, "Transaction saved to SQLite",
		"id", id,
		"description", tx.Description,
		"type", tx.Type,
		"category", tx.Category,
		"raw_amount", tx.RawAmount.String(),
		"cooked_amount", tx.CookedAmount.String())

	return id, nil
}

// UpdateTransaction implements source.TransactionWriter
func (r *SQLiteRepository) UpdateTransaction(ctx context.Context, tx core.Transaction) error {
	if err := tx.Validate(); err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE transactions
		 SET date = ?, description = ?, type = ?, category = ?, raw_amount = ?, cooked_amount = ?,
		     updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`,
		tx.Date.String(), tx.Description, string(tx.Type), tx.Category,
		tx.RawAmount.String(), tx.CookedAmount.String(), tx.ID)
	if err != nil {
		return fmt.Errorf("update transaction: %w", err)
	}
	return requireAffected(res, "update", tx.ID)
}

// DeleteTransaction implements source.TransactionWriter
func (r *SQLiteRepository) DeleteTransaction(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM transactions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	if err := requireAffected(res, "delete", id); err != nil {
		return err
	}

	slog.InfoContext(ctx, "Transaction deleted from SQLite", "id", id)
	return nil
}

func requireAffected(res sql.Result, op string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s transaction %d: rows affected: %w", op, id, err)
	}
	if n == 0 {
		return fmt.Errorf("%s %d: %w", op, id, source.ErrNotFound)
	}
	return nil
}

// ListCategories implements source.CategoryReader
func (r *SQLiteRepository) ListCategories(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT name FROM categories ORDER BY position, id`)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

// AddCategory appends a category at the end of the list so existing
// positions, and therefore ledger category ids, stay stable.
func (r *SQLiteRepository) AddCategory(ctx context.Context, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return core.ErrEmptyCategory
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO categories (name, position)
		 SELECT ?, COALESCE(MAX(position), -1) + 1 FROM categories`, name)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return fmt.Errorf("%w: %q", source.ErrDuplicateCategory, name)
		}
		return fmt.Errorf("add category %q: %w", name, err)
	}
	return nil
}

// OpeningBalances implements source.BalanceReader
func (r *SQLiteRepository) OpeningBalances(ctx context.Context) (core.Balances, error) {
	b := core.Balances{Raw: decimal.Zero, Cooked: decimal.Zero}
	err := r.db.QueryRowContext(ctx,
		`SELECT raw_amount, cooked_amount FROM opening_balances WHERE id = 1`).Scan(&b.Raw, &b.Cooked)
	if errors.Is(err, sql.ErrNoRows) {
		return b, nil
	}
	if err != nil {
		return b, fmt.Errorf("get opening balances: %w", err)
	}
	return b, nil
}

// SetOpeningBalances stores the account's starting balances.
func (r *SQLiteRepository) SetOpeningBalances(ctx context.Context, b core.Balances) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO opening_balances (id, raw_amount, cooked_amount) VALUES (1, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET raw_amount = excluded.raw_amount, cooked_amount = excluded.cooked_amount`,
		b.Raw.String(), b.Cooked.String())
	if err != nil {
		return fmt.Errorf("set opening balances: %w", err)
	}
	return nil
}

var _ source.Store = (*SQLiteRepository)(nil)
