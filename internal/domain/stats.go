package domain

// Filter narrows a query. Nil fields do not constrain; set fields are AND-combined.
type Filter struct {
	Category  *string  `json:"type,omitempty"`
	IsFraud   *int     `json:"is_fraud,omitempty"`
	MinAmount *float64 `json:"min_amount,omitempty"`
	MaxAmount *float64 `json:"max_amount,omitempty"`
}

// Matches reports whether tx passes every set criterion. Amount bounds are inclusive.
func (f Filter) Matches(tx *Transaction) bool {
	if f.Category != nil && tx.Category != *f.Category {
		return false
	}
	if f.IsFraud != nil && tx.IsFraud != *f.IsFraud {
		return false
	}
	if f.MinAmount != nil && tx.Amount < *f.MinAmount {
		return false
	}
	if f.MaxAmount != nil && tx.Amount > *f.MaxAmount {
		return false
	}
	return true
}

// Page is one slice of a filtered, file-ordered result.
type Page struct {
	Page  int           `json:"page"`
	Limit int           `json:"limit"`
	Total int           `json:"total"`
	Rows  []Transaction `json:"transactions"`
}

// CustomerPage lists distinct origin parties in first-occurrence order.
type CustomerPage struct {
	Page      int      `json:"page"`
	Limit     int      `json:"limit"`
	Total     int      `json:"total"`
	Customers []string `json:"customers"`
}

// Overview summarizes the whole snapshot.
type Overview struct {
	TotalCount         int     `json:"total_transactions"`
	FraudRate          float64 `json:"fraud_rate"`
	AvgAmount          float64 `json:"avg_amount"`
	MostCommonCategory string  `json:"most_common_type"`
}

// AmountDistribution is a histogram over fixed amount breakpoints.
type AmountDistribution struct {
	BinLabels []string `json:"bins"`
	Counts    []int    `json:"counts"`
}

// CategoryStats is one row of the per-category breakdown.
type CategoryStats struct {
	Category    string  `json:"type"`
	Count       int     `json:"count"`
	AvgAmount   float64 `json:"avg_amount"`
	TotalAmount float64 `json:"total_amount"`
}

// FraudByCategory is one row of the per-category fraud breakdown.
type FraudByCategory struct {
	Category         string  `json:"type"`
	TotalCount       int     `json:"total_count"`
	FraudCount       int     `json:"fraud_count"`
	FraudRatePercent float64 `json:"fraud_rate_percent"`
}

// TimeUnitStats groups rows by step or calendar day.
type TimeUnitStats struct {
	Unit        string  `json:"unit"`
	Count       int     `json:"count"`
	AvgAmount   float64 `json:"avg_amount"`
	TotalAmount float64 `json:"total_amount"`
}

// CustomerProfile is a rollup over one origin party.
type CustomerProfile struct {
	ID           string  `json:"id"`
	Count        int     `json:"transactions_count"`
	AvgAmount    float64 `json:"avg_amount"`
	TotalAmount  float64 `json:"total_amount"`
	FraudCount   int     `json:"fraud_count"`
	IsFraudulent bool    `json:"is_fraudulent"`
}

// RankBy selects the ordering of TopCustomers.
type RankBy string

const (
	RankByVolume RankBy = "volume"
	RankByCount  RankBy = "count"
)

// FraudSummary compares the scorer's verdicts against the ledger's fraud flags.
type FraudSummary struct {
	TotalFrauds int     `json:"total_frauds"`
	Flagged     int     `json:"flagged"`
	Precision   float64 `json:"precision"`
	Recall      float64 `json:"recall"`
}
