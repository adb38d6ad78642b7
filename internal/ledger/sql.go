package ledger

import (
	"context"
	"fmt"

	"github.com/opensource-finance/ledgerlens/internal/domain"
)

// StoreSource reads a ledger previously imported into a SQL store.
type StoreSource struct {
	Store domain.LedgerStore
	Name  string
}

// ReadTable implements Source.
func (s StoreSource) ReadTable(ctx context.Context) ([]string, [][]string, error) {
	return s.Store.ReadLedger(ctx)
}

// Describe implements Source.
func (s StoreSource) Describe() string {
	return fmt.Sprintf("sql:%s", s.Name)
}

// StoreLabels reads the imported fraud_labels table.
type StoreLabels struct {
	Store domain.LedgerStore
}

// ReadLabels implements LabelSource.
func (l StoreLabels) ReadLabels(ctx context.Context) (map[int64]bool, error) {
	return l.Store.ReadLabels(ctx)
}
