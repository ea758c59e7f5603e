package memory

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"cookbooks/internal/core"
	"cookbooks/internal/log"
	"cookbooks/internal/source"
)

const (
	categoriesFile   = "seed_categories.txt"
	transactionsFile = "seed_transactions.csv"
	balancesFile     = "seed_balances.txt"
)

// Store keeps transactions in process memory. Everything is lost on restart.
type Store struct {
	mu       sync.Mutex
	cats     []string
	items    []core.Transaction
	nextID   int64
	balances core.Balances
}

func New(cats []string, opening core.Balances) *Store {
	return &Store{cats: dedupe(cats), balances: opening, nextID: 1}
}

// NewFromFiles seeds a store from base. Missing or unreadable files fall back
// to a small default category list, no transactions and zero balances. Rows of
// the transactions file that fail to parse are skipped with a warning.
func NewFromFiles(base string, logger *log.Logger) *Store {
	if logger == nil {
		logger = log.Discard()
	}
	cats := readLines(filepath.Join(base, categoriesFile))
	if len(cats) == 0 {
		cats = []string{"Groceries", "Rent", "Salary", "Utilities"}
	}
	s := New(cats, readBalances(filepath.Join(base, balancesFile)))

	path := filepath.Join(base, transactionsFile)
	txs, err := readTransactions(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		logger.Debug("No seed transactions", "path", path)
	case err != nil:
		logger.Warn("Seed transactions partially loaded",
			"path", path,
			"loaded", len(txs),
			log.FieldError, err)
	}
	for _, tx := range txs {
		tx.ID = s.nextID
		s.nextID++
		s.items = append(s.items, tx)
	}
	return s
}

// ListTransactions returns a copy of all stored transactions.
func (s *Store) ListTransactions(_ context.Context) ([]core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.Transaction(nil), s.items...), nil
}

func (s *Store) GetTransaction(_ context.Context, id int64) (core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, tx := range s.items {
		if tx.ID == id {
			return tx, nil
		}
	}
	return core.Transaction{}, fmt.Errorf("get %d: %w", id, source.ErrNotFound)
}

func (s *Store) CreateTransaction(_ context.Context, tx core.Transaction) (int64, error) {
	if err := tx.Validate(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	tx.ID = s.nextID
	s.nextID++
	s.items = append(s.items, tx)
	return tx.ID, nil
}

func (s *Store) UpdateTransaction(_ context.Context, tx core.Transaction) error {
	if err := tx.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.items {
		if s.items[i].ID == tx.ID {
			s.items[i] = tx
			return nil
		}
	}
	return fmt.Errorf("update %d: %w", tx.ID, source.ErrNotFound)
}

func (s *Store) DeleteTransaction(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.items {
		if s.items[i].ID == id {
			s.items = append(s.items[:i], s.items[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("delete %d: %w", id, source.ErrNotFound)
}

// ListCategories returns the category list in seed order.
func (s *Store) ListCategories(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.cats...), nil
}

// AddCategory appends name to the category list.
func (s *Store) AddCategory(_ context.Context, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return core.ErrEmptyCategory
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.cats {
		if c == name {
			return fmt.Errorf("%w: %q", source.ErrDuplicateCategory, name)
		}
	}
	s.cats = append(s.cats, name)
	return nil
}

func (s *Store) OpeningBalances(_ context.Context) (core.Balances, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balances, nil
}

func (s *Store) SetOpeningBalances(_ context.Context, b core.Balances) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances = b
	return nil
}

var _ source.Store = (*Store)(nil)

func readLines(path string) []string {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()
	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return dedupe(out)
}

// readBalances parses "raw=1000.00" / "cooked=950" lines.
func readBalances(path string) core.Balances {
	b := core.Balances{Raw: decimal.Zero, Cooked: decimal.Zero}
	for _, line := range readLines(path) {
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		amount, err := core.ParseAmount(value)
		if err != nil {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(key)) {
		case "raw":
			b.Raw = amount
		case "cooked":
			b.Cooked = amount
		}
	}
	return b
}

// readTransactions reads date,description,type,category,raw,cooked rows. A
// header row and malformed rows are skipped; the count of skipped rows is
// reported through the returned error.
func readTransactions(path string) ([]core.Transaction, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.Comment = '#'
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	var (
		out     []core.Transaction
		skipped int
		first   = true
	)
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			skipped++
			continue
		}
		if first {
			first = false
			if len(record) > 0 && strings.EqualFold(strings.TrimSpace(record[0]), "date") {
				continue
			}
		}
		tx, err := parseRecord(record)
		if err != nil {
			skipped++
			continue
		}
		out = append(out, tx)
	}
	if skipped > 0 {
		return out, fmt.Errorf("skipped %d malformed rows in %s", skipped, path)
	}
	return out, nil
}

func parseRecord(record []string) (core.Transaction, error) {
	if len(record) != 6 {
		return core.Transaction{}, fmt.Errorf("expected 6 fields, got %d", len(record))
	}
	date, err := core.ParseDate(record[0])
	if err != nil {
		return core.Transaction{}, err
	}
	typ, err := core.ParseTransactionType(record[2])
	if err != nil {
		return core.Transaction{}, err
	}
	raw, err := core.ParseAmount(record[4])
	if err != nil {
		return core.Transaction{}, err
	}
	cooked, err := core.ParseAmount(record[5])
	if err != nil {
		return core.Transaction{}, err
	}
	tx := core.Transaction{
		Date:         date,
		Description:  strings.TrimSpace(record[1]),
		Type:         typ,
		Category:     strings.TrimSpace(record[3]),
		RawAmount:    raw,
		CookedAmount: cooked,
	}
	return tx, tx.Validate()
}

func dedupe(in []string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
