package ledger

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/ledgerlens/internal/domain"
)

var amountCleaner = strings.NewReplacer("$", "", ",", "")

// ParseAmount converts ledger amount text such as "$1,234.56" or "$-77.00" to a float.
// Malformed text is reported as domain.ErrInternal.
func ParseAmount(raw string) (float64, error) {
	s := strings.TrimSpace(amountCleaner.Replace(raw))
	if s == "" {
		return 0, fmt.Errorf("%w: empty amount", domain.ErrInternal)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("%w: malformed amount %q", domain.ErrInternal, raw)
	}
	f, _ := d.Float64()
	return f, nil
}

// parseOptionalAmount returns nil for an empty cell.
func parseOptionalAmount(raw string) (*float64, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	v, err := ParseAmount(raw)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// parseFlag reads a 0/1 column. "1", "1.0" and "true" count as set.
func parseFlag(raw string) (int, error) {
	s := strings.TrimSpace(raw)
	switch strings.ToLower(s) {
	case "", "0", "false":
		return 0, nil
	case "1", "true":
		return 1, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: malformed flag %q", domain.ErrInternal, raw)
	}
	if f != 0 {
		return 1, nil
	}
	return 0, nil
}

func parseInt(raw string) (int64, error) {
	s := strings.TrimSpace(raw)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != float64(int64(f)) {
		return 0, fmt.Errorf("%w: malformed integer %q", domain.ErrInternal, raw)
	}
	return int64(f), nil
}

// rowMapper turns raw cells into a Transaction for one schema.
type rowMapper struct {
	schema domain.LedgerSchema
	rule   domain.FraudRule
	col    map[string]int
}

func newRowMapper(schema domain.LedgerSchema, rule domain.FraudRule, header []string) (*rowMapper, error) {
	m := &rowMapper{schema: schema, rule: rule, col: make(map[string]int, len(header))}
	for i, h := range header {
		if _, dup := m.col[h]; !dup {
			m.col[h] = i
		}
	}

	var required []string
	switch schema {
	case domain.SchemaBanking:
		required = []string{"step", "type", "amount", "nameOrig", "nameDest", "isFraud"}
	case domain.SchemaCard:
		required = []string{"id", "date", "client_id", "amount", "use_chip", "merchant_id"}
		if rule == domain.FraudFromErrors {
			required = append(required, "errors")
		}
	default:
		return nil, fmt.Errorf("%w: unresolved schema %q", domain.ErrInternal, schema)
	}
	for _, name := range required {
		if _, ok := m.col[name]; !ok {
			return nil, fmt.Errorf("%w: %s ledger is missing column %q", domain.ErrInternal, schema, name)
		}
	}
	return m, nil
}

func (m *rowMapper) cell(row []string, name string) string {
	i, ok := m.col[name]
	if !ok || i >= len(row) {
		return ""
	}
	return row[i]
}

// mapRow converts one row. pos is the zero-based row position, used as the id
// for schemas without an id column.
func (m *rowMapper) mapRow(pos int, row []string) (domain.Transaction, error) {
	amount, err := ParseAmount(m.cell(row, "amount"))
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("row %d: %w", pos, err)
	}

	if m.schema == domain.SchemaBanking {
		return m.mapBanking(pos, row, amount)
	}
	return m.mapCard(pos, row, amount)
}

func (m *rowMapper) mapBanking(pos int, row []string, amount float64) (domain.Transaction, error) {
	tx := domain.Transaction{
		ID:               int64(pos),
		Amount:           amount,
		Category:         strings.TrimSpace(m.cell(row, "type")),
		OriginParty:      strings.TrimSpace(m.cell(row, "nameOrig")),
		DestinationParty: strings.TrimSpace(m.cell(row, "nameDest")),
	}

	var err error
	if tx.Step, err = parseInt(m.cell(row, "step")); err != nil {
		return tx, fmt.Errorf("row %d: %w", pos, err)
	}
	if tx.IsFraud, err = parseFlag(m.cell(row, "isFraud")); err != nil {
		return tx, fmt.Errorf("row %d: %w", pos, err)
	}
	if tx.IsFlaggedFraud, err = parseFlag(m.cell(row, "isFlaggedFraud")); err != nil {
		return tx, fmt.Errorf("row %d: %w", pos, err)
	}

	balances := []struct {
		col string
		dst **float64
	}{
		{"oldbalanceOrg", &tx.BalanceBefore},
		{"newbalanceOrig", &tx.BalanceAfter},
		{"oldbalanceDest", &tx.DestBalanceBefore},
		{"newbalanceDest", &tx.DestBalanceAfter},
	}
	for _, b := range balances {
		v, err := parseOptionalAmount(m.cell(row, b.col))
		if err != nil {
			return tx, fmt.Errorf("row %d %s: %w", pos, b.col, err)
		}
		*b.dst = v
	}

	return tx, nil
}

func (m *rowMapper) mapCard(pos int, row []string, amount float64) (domain.Transaction, error) {
	id, err := parseInt(m.cell(row, "id"))
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("row %d id: %w", pos, err)
	}

	tx := domain.Transaction{
		ID:               id,
		Date:             strings.TrimSpace(m.cell(row, "date")),
		Amount:           amount,
		Category:         strings.TrimSpace(m.cell(row, "use_chip")),
		OriginParty:      strings.TrimSpace(m.cell(row, "client_id")),
		DestinationParty: strings.TrimSpace(m.cell(row, "merchant_id")),
		CardID:           strings.TrimSpace(m.cell(row, "card_id")),
		MerchantCity:     strings.TrimSpace(m.cell(row, "merchant_city")),
		MerchantState:    strings.TrimSpace(m.cell(row, "merchant_state")),
		Zip:              strings.TrimSpace(m.cell(row, "zip")),
		MCC:              strings.TrimSpace(m.cell(row, "mcc")),
		Errors:           strings.TrimSpace(m.cell(row, "errors")),
	}

	if m.rule == domain.FraudFromErrors && tx.Errors != "" {
		tx.IsFraud = 1
	}
	return tx, nil
}
