// Package query implements filtering, pagination and lookups over the ledger snapshot.
package query

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/opensource-finance/ledgerlens/internal/domain"
	"github.com/opensource-finance/ledgerlens/internal/ledger"
)

// Engine answers read-only queries against the published snapshot.
// Every result is a fresh slice; callers may modify it freely.
type Engine struct {
	data ledger.Snapshotter
}

// New creates a query engine over data.
func New(data ledger.Snapshotter) *Engine {
	return &Engine{data: data}
}

// Paginate returns rows [(page-1)*limit, page*limit) of the filtered set in file order.
// A page past the end yields no rows and the correct total.
func (e *Engine) Paginate(ctx context.Context, page, limit int, f domain.Filter) (domain.Page, error) {
	if page < 1 || limit < 1 {
		return domain.Page{}, fmt.Errorf("%w: page and limit must be >= 1", domain.ErrInvalidArgument)
	}

	snap, err := e.data.Snapshot(ctx)
	if err != nil {
		return domain.Page{}, err
	}

	start := pageStart(page, limit, snap.Len())
	rows := make([]domain.Transaction, 0, min(limit, snap.Len()))
	total := 0
	for i := range snap.Rows {
		tx := &snap.Rows[i]
		if !f.Matches(tx) {
			continue
		}
		if total >= start && total-start < limit {
			rows = append(rows, *tx)
		}
		total++
	}

	return domain.Page{Page: page, Limit: limit, Total: total, Rows: rows}, nil
}

// GetByID looks up a transaction. An id that does not parse is reported as not found.
func (e *Engine) GetByID(ctx context.Context, rawID string) (domain.Transaction, error) {
	id, err := parseID(rawID)
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("%w: transaction %q", domain.ErrNotFound, rawID)
	}

	snap, err := e.data.Snapshot(ctx)
	if err != nil {
		return domain.Transaction{}, err
	}

	tx, ok := snap.Lookup(id)
	if !ok {
		return domain.Transaction{}, fmt.Errorf("%w: transaction %d", domain.ErrNotFound, id)
	}
	return tx, nil
}

// Search returns every matching row. No match is an empty result, not an error.
func (e *Engine) Search(ctx context.Context, f domain.Filter) ([]domain.Transaction, error) {
	return e.collect(ctx, f.Matches)
}

// DistinctCategories lists categories in first-occurrence order.
func (e *Engine) DistinctCategories(ctx context.Context) ([]string, error) {
	snap, err := e.data.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	out := []string{}
	for i := range snap.Rows {
		c := snap.Rows[i].Category
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out, nil
}

// Recent returns the last n rows in file order, or all rows when n exceeds the count.
func (e *Engine) Recent(ctx context.Context, n int) ([]domain.Transaction, error) {
	if n < 0 {
		return nil, fmt.Errorf("%w: n must be >= 0", domain.ErrInvalidArgument)
	}

	snap, err := e.data.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	start := max(0, snap.Len()-n)
	return slices.Clone(snap.Rows[start:]), nil
}

// ByOriginParty returns rows initiated by party. Unknown parties yield an empty result.
func (e *Engine) ByOriginParty(ctx context.Context, party string) ([]domain.Transaction, error) {
	return e.collect(ctx, func(tx *domain.Transaction) bool { return tx.OriginParty == party })
}

// ByDestinationParty returns rows received by party. Unknown parties yield an empty result.
func (e *Engine) ByDestinationParty(ctx context.Context, party string) ([]domain.Transaction, error) {
	return e.collect(ctx, func(tx *domain.Transaction) bool { return tx.DestinationParty == party })
}

// ListCustomers pages through distinct origin parties in first-occurrence order.
func (e *Engine) ListCustomers(ctx context.Context, page, limit int) (domain.CustomerPage, error) {
	if page < 1 || limit < 1 {
		return domain.CustomerPage{}, fmt.Errorf("%w: page and limit must be >= 1", domain.ErrInvalidArgument)
	}

	snap, err := e.data.Snapshot(ctx)
	if err != nil {
		return domain.CustomerPage{}, err
	}

	start := pageStart(page, limit, snap.Len())
	seen := make(map[string]struct{})
	customers := []string{}
	for i := range snap.Rows {
		p := snap.Rows[i].OriginParty
		if _, ok := seen[p]; ok {
			continue
		}
		if n := len(seen); n >= start && n-start < limit {
			customers = append(customers, p)
		}
		seen[p] = struct{}{}
	}

	return domain.CustomerPage{Page: page, Limit: limit, Total: len(seen), Customers: customers}, nil
}

// pageStart returns the offset of page, saturating at n once the page lies past
// the end so that (page-1)*limit never overflows.
func pageStart(page, limit, n int) int {
	if page-1 > n/limit {
		return n
	}
	return (page - 1) * limit
}

// Delete acknowledges a delete request without touching the ledger.
// The snapshot is read-only; later queries still return the row.
func (e *Engine) Delete(_ context.Context, rawID string) string {
	return fmt.Sprintf("Transaction %s deleted (simulated; the ledger is read-only)", strings.TrimSpace(rawID))
}

func (e *Engine) collect(ctx context.Context, keep func(*domain.Transaction) bool) ([]domain.Transaction, error) {
	snap, err := e.data.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	out := []domain.Transaction{}
	for i := range snap.Rows {
		if keep(&snap.Rows[i]) {
			out = append(out, snap.Rows[i])
		}
	}
	return out, nil
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: id %q", domain.ErrInvalidArgument, raw)
	}
	return id, nil
}
