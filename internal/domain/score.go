package domain

// ScoreInput is the data the fraud scorer looks at. Balances are optional.
type ScoreInput struct {
	Category      string   `json:"type"`
	Amount        float64  `json:"amount"`
	BalanceBefore *float64 `json:"oldbalanceOrg,omitempty"`
	BalanceAfter  *float64 `json:"newbalanceOrig,omitempty"`
}

// ScoreResult is the verdict for one transaction.
type ScoreResult struct {
	IsFraud     bool     `json:"isFraud"`
	Probability float64  `json:"probability"`
	Reasons     []string `json:"reasons"`
}

// ScoreInputOf extracts scorer input from a ledger row.
func ScoreInputOf(tx *Transaction) ScoreInput {
	return ScoreInput{
		Category:      tx.Category,
		Amount:        tx.Amount,
		BalanceBefore: tx.BalanceBefore,
		BalanceAfter:  tx.BalanceAfter,
	}
}
