package domain

import (
	"fmt"
	"strings"
)

// Transaction is one normalized ledger row.
// Field names are canonical; the schema decides which source column feeds each one.
type Transaction struct {
	ID int64 `json:"id"`

	// Time unit: Step for the banking schema, Date for the card schema.
	Step int64  `json:"step,omitempty"`
	Date string `json:"date,omitempty"`

	Amount   float64 `json:"amount"`
	Category string  `json:"type"`

	OriginParty      string `json:"origin_party"`
	DestinationParty string `json:"destination_party"`

	IsFraud int `json:"is_fraud"`

	// Banking schema only. Nil when the ledger does not carry balances.
	BalanceBefore     *float64 `json:"old_balance_org,omitempty"`
	BalanceAfter      *float64 `json:"new_balance_orig,omitempty"`
	DestBalanceBefore *float64 `json:"old_balance_dest,omitempty"`
	DestBalanceAfter  *float64 `json:"new_balance_dest,omitempty"`
	IsFlaggedFraud    int      `json:"is_flagged_fraud,omitempty"`

	// Card schema only.
	CardID        string `json:"card_id,omitempty"`
	MerchantCity  string `json:"merchant_city,omitempty"`
	MerchantState string `json:"merchant_state,omitempty"`
	Zip           string `json:"zip,omitempty"`
	MCC           string `json:"mcc,omitempty"`
	Errors        string `json:"errors,omitempty"`
}

// LedgerSchema selects the column mapping and fraud derivation used at load time.
type LedgerSchema string

const (
	// SchemaAuto detects the schema from the header row.
	SchemaAuto LedgerSchema = "auto"

	// SchemaBanking is the mobile-money movement layout:
	// step,type,amount,nameOrig,oldbalanceOrg,newbalanceOrig,nameDest,oldbalanceDest,newbalanceDest,isFraud,isFlaggedFraud
	SchemaBanking LedgerSchema = "banking"

	// SchemaCard is the card transaction layout:
	// id,date,client_id,card_id,amount,use_chip,merchant_id,merchant_city,merchant_state,zip,mcc,errors
	SchemaCard LedgerSchema = "card"
)

// BankingColumns lists the banking schema header in file order.
var BankingColumns = []string{
	"step", "type", "amount", "nameOrig", "oldbalanceOrg", "newbalanceOrig",
	"nameDest", "oldbalanceDest", "newbalanceDest", "isFraud", "isFlaggedFraud",
}

// CardColumns lists the card schema header in file order.
var CardColumns = []string{
	"id", "date", "client_id", "card_id", "amount", "use_chip",
	"merchant_id", "merchant_city", "merchant_state", "zip", "mcc", "errors",
}

// FraudRule is the single method that produces is_fraud for a snapshot.
type FraudRule string

const (
	// FraudFromColumn reads the isFraud column carried by the ledger.
	FraudFromColumn FraudRule = "column"

	// FraudFromLabels joins the external label table by transaction id.
	FraudFromLabels FraudRule = "labels"

	// FraudFromErrors marks rows with a non-empty errors field.
	FraudFromErrors FraudRule = "errors"
)

// ParseLedgerSchema converts a config string into a schema. Empty means auto.
func ParseLedgerSchema(s string) (LedgerSchema, error) {
	switch LedgerSchema(strings.ToLower(strings.TrimSpace(s))) {
	case "", SchemaAuto:
		return SchemaAuto, nil
	case SchemaBanking:
		return SchemaBanking, nil
	case SchemaCard:
		return SchemaCard, nil
	default:
		return "", fmt.Errorf("%w: unknown ledger schema %q", ErrInvalidArgument, s)
	}
}

// ParseFraudRule converts a config string into a fraud rule. Empty means the schema default.
func ParseFraudRule(s string) (FraudRule, error) {
	switch r := FraudRule(strings.ToLower(strings.TrimSpace(s))); r {
	case "", FraudFromColumn, FraudFromLabels, FraudFromErrors:
		return r, nil
	default:
		return "", fmt.Errorf("%w: unknown fraud rule %q", ErrInvalidArgument, s)
	}
}

// DetectSchema picks the schema whose identifying columns are all present in header.
func DetectSchema(header []string) (LedgerSchema, error) {
	cols := make(map[string]bool, len(header))
	for _, h := range header {
		cols[strings.TrimSpace(h)] = true
	}
	switch {
	case cols["nameOrig"] && cols["nameDest"] && cols["type"]:
		return SchemaBanking, nil
	case cols["client_id"] && cols["merchant_id"] && cols["use_chip"]:
		return SchemaCard, nil
	default:
		return "", fmt.Errorf("%w: header matches no known ledger schema", ErrInternal)
	}
}

// DefaultFraudRule returns the fraud derivation used when none is configured.
func (s LedgerSchema) DefaultFraudRule() FraudRule {
	if s == SchemaCard {
		return FraudFromLabels
	}
	return FraudFromColumn
}

// Supports reports whether the schema carries the data the rule needs.
func (s LedgerSchema) Supports(r FraudRule) bool {
	switch s {
	case SchemaBanking:
		return r == FraudFromColumn
	case SchemaCard:
		return r == FraudFromLabels || r == FraudFromErrors
	default:
		return false
	}
}

// UsesTimeStep reports whether rows are grouped by relative step rather than calendar day.
func (s LedgerSchema) UsesTimeStep() bool {
	return s == SchemaBanking
}
