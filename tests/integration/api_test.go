//go:build integration
// +build integration

// Package integration provides end-to-end tests against a running LedgerLens server.
//
// These tests exercise the HTTP surface the way a dashboard does:
//
//	Ledger file → DatasetCache → Query / Stats engines → JSON
//	Request body → FraudScorer → verdict
//
// Run with: LEDGERLENS_TEST_URL=http://localhost:8000 go test -tags=integration -v ./tests/integration/...
//
// SCORER RULES (weights add up, capped at 1.0; verdict is fraud at >= 0.5):
//
// | Rule               | Weight | Fires when                                   |
// |--------------------|--------|----------------------------------------------|
// | high_amount        | 0.3    | amount > 200000                              |
// | risky_channel      | 0.2    | type is TRANSFER or CASH_OUT                 |
// | account_drained    | 0.3    | origin balance > 0 and ends at 0             |
// | full_balance_moved | 0.2    | amount equals the origin balance             |
// | balance_mismatch   | 0.2    | old - amount != new (beyond 0.01)            |
//
// Scorer scenarios need no particular ledger. Data scenarios only assume the
// server has a ledger loaded.
package integration

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"testing"
	"time"
)

// TestConfig holds test environment configuration
type TestConfig struct {
	BaseURL string
}

func getTestConfig(t *testing.T) TestConfig {
	t.Helper()
	baseURL := os.Getenv("LEDGERLENS_TEST_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8000"
	}

	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(baseURL + "/health")
	if err != nil {
		t.Skipf("LedgerLens not reachable at %s: %v", baseURL, err)
	}
	resp.Body.Close()

	return TestConfig{BaseURL: baseURL}
}

// PredictRequest is the body of POST /api/fraud/predict
type PredictRequest struct {
	Type           string   `json:"type"`
	Amount         *float64 `json:"amount,omitempty"`
	OldBalanceOrg  *float64 `json:"oldbalanceOrg,omitempty"`
	NewBalanceOrig *float64 `json:"newbalanceOrig,omitempty"`
}

// PredictResponse is what POST /api/fraud/predict returns
type PredictResponse struct {
	IsFraud     bool     `json:"isFraud"`
	Probability float64  `json:"probability"`
	Reasons     []string `json:"reasons"`
}

func f(v float64) *float64 { return &v }

func call(t *testing.T, config TestConfig, method, path string, body any) (int, []byte) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("Failed to marshal request: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, config.BaseURL+path, reader)
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read response: %v", err)
	}
	return resp.StatusCode, respBody
}

func predict(t *testing.T, config TestConfig, req PredictRequest) PredictResponse {
	t.Helper()
	status, body := call(t, config, http.MethodPost, "/api/fraud/predict", req)
	if status != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", status, body)
	}
	var result PredictResponse
	if err := json.Unmarshal(body, &result); err != nil {
		t.Fatalf("Failed to unmarshal response: %v (body: %s)", err, body)
	}
	return result
}

// ============================================================================
// SCENARIO 1: Normal payment
// ============================================================================

func TestPredict_NormalPayment(t *testing.T) {
	/*
	   SCENARIO: A 9,839.64 PAYMENT whose balances reconcile.

	   No rule fires, so the probability is 0 and the single reason is the
	   normal-pattern message.
	*/
	config := getTestConfig(t)

	result := predict(t, config, PredictRequest{
		Type:           "PAYMENT",
		Amount:         f(9839.64),
		OldBalanceOrg:  f(170136.0),
		NewBalanceOrig: f(160296.36),
	})

	if result.IsFraud {
		t.Errorf("Expected a normal verdict, got fraud (%.2f)", result.Probability)
	}
	if result.Probability != 0 {
		t.Errorf("Expected probability 0, got %.2f", result.Probability)
	}
	if len(result.Reasons) != 1 || result.Reasons[0] != "Normal transaction pattern" {
		t.Errorf("Unexpected reasons %v", result.Reasons)
	}
}

// ============================================================================
// SCENARIO 2: Account drained by a transfer
// ============================================================================

func TestPredict_DrainedTransfer(t *testing.T) {
	/*
	   SCENARIO: A TRANSFER of the full 181.00 origin balance.

	   risky_channel (0.2) + account_drained (0.3) + full_balance_moved (0.2)
	   = 0.70 → fraud.
	*/
	config := getTestConfig(t)

	result := predict(t, config, PredictRequest{
		Type:           "TRANSFER",
		Amount:         f(181.0),
		OldBalanceOrg:  f(181.0),
		NewBalanceOrig: f(0.0),
	})

	if !result.IsFraud {
		t.Errorf("Expected fraud, got normal (%.2f)", result.Probability)
	}
	if result.Probability != 0.7 {
		t.Errorf("Expected probability 0.70, got %.2f", result.Probability)
	}
	if len(result.Reasons) != 3 {
		t.Errorf("Expected 3 reasons, got %v", result.Reasons)
	}
}

// ============================================================================
// SCENARIO 3: Large amount without balances
// ============================================================================

func TestPredict_LargeCashOutWithoutBalances(t *testing.T) {
	/*
	   SCENARIO: A 250,000 CASH_OUT with no balance fields.

	   Balance rules need both balances, so only high_amount (0.3) and
	   risky_channel (0.2) fire: 0.50 → fraud, exactly at the threshold.
	*/
	config := getTestConfig(t)

	result := predict(t, config, PredictRequest{Type: "cash_out", Amount: f(250000)})

	if !result.IsFraud || result.Probability != 0.5 {
		t.Errorf("Expected fraud at 0.50, got %v (%.2f)", result.IsFraud, result.Probability)
	}
}

// ============================================================================
// SCENARIO 4: Rejected requests
// ============================================================================

func TestPredict_Validation(t *testing.T) {
	config := getTestConfig(t)

	cases := []struct {
		name string
		req  PredictRequest
	}{
		{"MissingType", PredictRequest{Amount: f(10)}},
		{"MissingAmount", PredictRequest{Type: "PAYMENT"}},
		{"NegativeAmount", PredictRequest{Type: "PAYMENT", Amount: f(-1)}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, body := call(t, config, http.MethodPost, "/api/fraud/predict", tc.req)
			if status != http.StatusBadRequest {
				t.Errorf("Expected 400, got %d: %s", status, body)
			}
		})
	}
}

// ============================================================================
// SCENARIO 5: Ledger browsing
// ============================================================================

func TestLedger_PaginationAndLookup(t *testing.T) {
	config := getTestConfig(t)

	status, body := call(t, config, http.MethodGet, "/api/transactions?page=1&limit=5", nil)
	if status == http.StatusServiceUnavailable {
		t.Skip("server has no ledger loaded")
	}
	if status != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", status, body)
	}

	var page struct {
		Page         int              `json:"page"`
		Limit        int              `json:"limit"`
		Total        int              `json:"total"`
		Transactions []map[string]any `json:"transactions"`
	}
	if err := json.Unmarshal(body, &page); err != nil {
		t.Fatalf("Failed to unmarshal page: %v", err)
	}
	if page.Page != 1 || page.Limit != 5 {
		t.Errorf("Unexpected paging %d/%d", page.Page, page.Limit)
	}
	if len(page.Transactions) > 5 {
		t.Errorf("Expected at most 5 rows, got %d", len(page.Transactions))
	}

	if status, _ := call(t, config, http.MethodGet, "/api/transactions?limit=101", nil); status != http.StatusBadRequest {
		t.Errorf("Expected 400 for limit 101, got %d", status)
	}
	if status, _ := call(t, config, http.MethodGet, "/api/transactions/not-a-number", nil); status != http.StatusNotFound {
		t.Errorf("Expected 404 for an unparsable id, got %d", status)
	}

	if len(page.Transactions) > 0 {
		id := page.Transactions[0]["id"]
		path := "/api/transactions/" + jsonNumber(t, id)
		if status, body := call(t, config, http.MethodGet, path, nil); status != http.StatusOK {
			t.Errorf("Expected 200 for %s, got %d: %s", path, status, body)
		}
	}
}

// ============================================================================
// SCENARIO 6: Stats agree with the ledger
// ============================================================================

func TestStats_OverviewMatchesPage(t *testing.T) {
	config := getTestConfig(t)

	status, body := call(t, config, http.MethodGet, "/api/stats/overview", nil)
	if status == http.StatusServiceUnavailable {
		t.Skip("server has no ledger loaded")
	}
	if status != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", status, body)
	}
	var overview struct {
		TotalTransactions int     `json:"total_transactions"`
		FraudRate         float64 `json:"fraud_rate"`
	}
	if err := json.Unmarshal(body, &overview); err != nil {
		t.Fatalf("Failed to unmarshal overview: %v", err)
	}

	_, body = call(t, config, http.MethodGet, "/api/transactions?limit=1", nil)
	var page struct {
		Total int `json:"total"`
	}
	if err := json.Unmarshal(body, &page); err != nil {
		t.Fatalf("Failed to unmarshal page: %v", err)
	}

	if overview.TotalTransactions != page.Total {
		t.Errorf("Overview counts %d rows, unfiltered page counts %d", overview.TotalTransactions, page.Total)
	}
	if overview.FraudRate < 0 || overview.FraudRate > 1 {
		t.Errorf("Fraud rate %v out of range", overview.FraudRate)
	}
}

func jsonNumber(t *testing.T, v any) string {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("Failed to marshal id: %v", err)
	}
	return string(data)
}
