package stats

import (
	"context"
	"errors"
	"testing"

	"github.com/opensource-finance/ledgerlens/internal/domain"
	"github.com/opensource-finance/ledgerlens/internal/ledger"
	"github.com/opensource-finance/ledgerlens/internal/ledger/ledgertest"
)

func TestOverview(t *testing.T) {
	engine := New(ledgertest.BankingCache(t))

	ov, err := engine.Overview(context.Background())
	if err != nil {
		t.Fatalf("Overview failed: %v", err)
	}
	if ov.TotalCount != 5 {
		t.Errorf("expected 5 transactions, got %d", ov.TotalCount)
	}
	if ov.FraudRate != 0.2 {
		t.Errorf("expected fraud rate 0.2, got %v", ov.FraudRate)
	}
	if ov.AvgAmount != 2297.83 {
		t.Errorf("expected avg 2297.83, got %v", ov.AvgAmount)
	}
	if ov.MostCommonCategory != "PAYMENT" {
		t.Errorf("expected PAYMENT, got %s", ov.MostCommonCategory)
	}
}

func TestOverviewEdgeCases(t *testing.T) {
	ctx := context.Background()

	t.Run("Empty", func(t *testing.T) {
		ov, err := New(staticSnapshot(nil)).Overview(ctx)
		if err != nil {
			t.Fatalf("Overview failed: %v", err)
		}
		if ov.TotalCount != 0 || ov.FraudRate != 0 || ov.AvgAmount != 0 || ov.MostCommonCategory != "" {
			t.Errorf("unexpected empty overview: %+v", ov)
		}
	})

	t.Run("ModeTieFirstOccurrence", func(t *testing.T) {
		rows := []domain.Transaction{
			{Category: "DEBIT", Amount: 1},
			{Category: "PAYMENT", Amount: 1},
			{Category: "PAYMENT", Amount: 1},
			{Category: "DEBIT", Amount: 1},
		}
		ov, err := New(staticSnapshot(rows)).Overview(ctx)
		if err != nil {
			t.Fatalf("Overview failed: %v", err)
		}
		if ov.MostCommonCategory != "DEBIT" {
			t.Errorf("expected first-seen DEBIT on tie, got %s", ov.MostCommonCategory)
		}
	})
}

func TestAmountDistribution(t *testing.T) {
	ctx := context.Background()

	t.Run("Banking", func(t *testing.T) {
		dist, err := New(ledgertest.BankingCache(t)).AmountDistribution(ctx)
		if err != nil {
			t.Fatalf("AmountDistribution failed: %v", err)
		}
		wantLabels := []string{"0-100", "100-500", "500-1000", "1000-5000", "5000+"}
		wantCounts := []int{1, 2, 0, 1, 1}
		assertBins(t, dist, wantLabels, wantCounts)
	})

	t.Run("NegativeAmounts", func(t *testing.T) {
		dist, err := New(ledgertest.CardCache(t)).AmountDistribution(ctx)
		if err != nil {
			t.Fatalf("AmountDistribution failed: %v", err)
		}
		wantLabels := []string{"-77-0", "0-100", "100-500", "500-1000", "1000+"}
		wantCounts := []int{1, 1, 1, 0, 1}
		assertBins(t, dist, wantLabels, wantCounts)
	})

	t.Run("MaxOnBreakpoint", func(t *testing.T) {
		rows := []domain.Transaction{{Amount: 0}, {Amount: 100}, {Amount: 5000}}
		dist, err := New(staticSnapshot(rows)).AmountDistribution(ctx)
		if err != nil {
			t.Fatalf("AmountDistribution failed: %v", err)
		}
		wantLabels := []string{"0-100", "100-500", "500-1000", "1000-5000", "5000+"}
		wantCounts := []int{1, 1, 0, 0, 1}
		assertBins(t, dist, wantLabels, wantCounts)
	})

	t.Run("Empty", func(t *testing.T) {
		dist, err := New(staticSnapshot(nil)).AmountDistribution(ctx)
		if err != nil {
			t.Fatalf("AmountDistribution failed: %v", err)
		}
		if len(dist.BinLabels) != 0 || len(dist.Counts) != 0 {
			t.Errorf("expected no bins, got %+v", dist)
		}
	})

	t.Run("CountsSumToTotal", func(t *testing.T) {
		amounts := []float64{-1234.5, -0.2, 0, 0.99, 99.99, 100, 4999, 10000, 123456.78, 999999, 1000000, 2500000}
		rows := make([]domain.Transaction, len(amounts))
		for i, a := range amounts {
			rows[i].Amount = a
		}
		dist, err := New(staticSnapshot(rows)).AmountDistribution(ctx)
		if err != nil {
			t.Fatalf("AmountDistribution failed: %v", err)
		}
		sum := 0
		for _, c := range dist.Counts {
			sum += c
		}
		if sum != len(rows) {
			t.Errorf("expected counts to sum to %d, got %d", len(rows), sum)
		}
		if dist.BinLabels[len(dist.BinLabels)-1] != "1000000+" {
			t.Errorf("unexpected last label %s", dist.BinLabels[len(dist.BinLabels)-1])
		}
	})
}

func assertBins(t *testing.T, dist domain.AmountDistribution, labels []string, counts []int) {
	t.Helper()
	if len(dist.BinLabels) != len(labels) || len(dist.Counts) != len(counts) {
		t.Fatalf("expected %v %v, got %v %v", labels, counts, dist.BinLabels, dist.Counts)
	}
	for i := range labels {
		if dist.BinLabels[i] != labels[i] {
			t.Errorf("label %d: expected %s, got %s", i, labels[i], dist.BinLabels[i])
		}
		if dist.Counts[i] != counts[i] {
			t.Errorf("count %d: expected %d, got %d", i, counts[i], dist.Counts[i])
		}
	}
}

func TestByCategory(t *testing.T) {
	rows, err := New(ledgertest.BankingCache(t)).ByCategory(context.Background())
	if err != nil {
		t.Fatalf("ByCategory failed: %v", err)
	}
	if len(rows) != 4 {
		t.Fatalf("expected 4 categories, got %d", len(rows))
	}

	sum := 0
	for _, r := range rows {
		sum += r.Count
		if r.Count <= 0 || r.AvgAmount <= 0 || r.TotalAmount <= 0 {
			t.Errorf("unexpected row %+v", r)
		}
	}
	if sum != 5 {
		t.Errorf("expected counts to sum to 5, got %d", sum)
	}

	payment := rows[0]
	if payment.Category != "PAYMENT" || payment.Count != 2 || payment.TotalAmount != 11074.2 || payment.AvgAmount != 5537.1 {
		t.Errorf("unexpected PAYMENT row %+v", payment)
	}
}

func TestByFraud(t *testing.T) {
	rows, err := New(ledgertest.BankingCache(t)).ByFraud(context.Background())
	if err != nil {
		t.Fatalf("ByFraud failed: %v", err)
	}
	if len(rows) != 4 {
		t.Fatalf("expected 4 categories, got %d", len(rows))
	}
	for _, r := range rows {
		if r.FraudRatePercent < 0 || r.FraudRatePercent > 100 {
			t.Errorf("fraud rate out of range: %+v", r)
		}
		if r.Category == "TRANSFER" && (r.FraudCount != 1 || r.FraudRatePercent != 100) {
			t.Errorf("expected TRANSFER to be 100%% fraud, got %+v", r)
		}
		if r.Category == "PAYMENT" && r.FraudCount != 0 {
			t.Errorf("expected no PAYMENT fraud, got %+v", r)
		}
	}
}

func TestByTimeUnit(t *testing.T) {
	ctx := context.Background()

	t.Run("Steps", func(t *testing.T) {
		rows, err := New(ledgertest.BankingCache(t)).ByTimeUnit(ctx)
		if err != nil {
			t.Fatalf("ByTimeUnit failed: %v", err)
		}
		if len(rows) != 3 {
			t.Fatalf("expected 3 groups, got %d", len(rows))
		}
		wantUnits := []string{"1", "2", "3"}
		wantCounts := []int{2, 2, 1}
		for i := range rows {
			if rows[i].Unit != wantUnits[i] || rows[i].Count != wantCounts[i] {
				t.Errorf("group %d: expected %s/%d, got %s/%d", i, wantUnits[i], wantCounts[i], rows[i].Unit, rows[i].Count)
			}
		}
		if rows[0].TotalAmount != 10020.64 {
			t.Errorf("expected step 1 total 10020.64, got %v", rows[0].TotalAmount)
		}
	})

	t.Run("NumericStepOrder", func(t *testing.T) {
		rows := []domain.Transaction{{Step: 10, Amount: 1}, {Step: 2, Amount: 1}, {Step: 1, Amount: 1}}
		got, err := New(staticSnapshot(rows)).ByTimeUnit(ctx)
		if err != nil {
			t.Fatalf("ByTimeUnit failed: %v", err)
		}
		if got[0].Unit != "1" || got[1].Unit != "2" || got[2].Unit != "10" {
			t.Errorf("expected numeric order, got %+v", got)
		}
	})

	t.Run("CalendarDays", func(t *testing.T) {
		rows, err := New(ledgertest.CardCache(t)).ByTimeUnit(ctx)
		if err != nil {
			t.Fatalf("ByTimeUnit failed: %v", err)
		}
		if len(rows) != 2 || rows[0].Unit != "2010-01-01" || rows[1].Unit != "2010-01-02" {
			t.Fatalf("unexpected day groups %+v", rows)
		}
		if rows[0].Count != 2 || rows[1].Count != 2 {
			t.Errorf("expected 2 rows per day, got %+v", rows)
		}
	})
}

func TestCustomerRollup(t *testing.T) {
	engine := New(ledgertest.BankingCache(t))
	ctx := context.Background()

	p, err := engine.CustomerRollup(ctx, "C1231006815")
	if err != nil {
		t.Fatalf("CustomerRollup failed: %v", err)
	}
	if p.Count != 2 || p.IsFraudulent || p.FraudCount != 0 {
		t.Errorf("unexpected profile %+v", p)
	}
	if p.TotalAmount != 11074.2 || p.AvgAmount != 5537.1 {
		t.Errorf("unexpected amounts %+v", p)
	}

	p, err = engine.CustomerRollup(ctx, "C1666544295")
	if err != nil {
		t.Fatalf("CustomerRollup failed: %v", err)
	}
	if !p.IsFraudulent || p.FraudCount != 1 {
		t.Errorf("expected fraudulent customer, got %+v", p)
	}

	if _, err := engine.CustomerRollup(ctx, "C0000000000"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestTopCustomers(t *testing.T) {
	engine := New(ledgertest.BankingCache(t))
	ctx := context.Background()

	t.Run("ByVolume", func(t *testing.T) {
		top, err := engine.TopCustomers(ctx, 10, domain.RankByVolume)
		if err != nil {
			t.Fatalf("TopCustomers failed: %v", err)
		}
		if len(top) != 4 {
			t.Fatalf("expected 4 customers, got %d", len(top))
		}
		for i := 1; i < len(top); i++ {
			if top[i].TotalAmount > top[i-1].TotalAmount {
				t.Errorf("not non-increasing at %d: %v > %v", i, top[i].TotalAmount, top[i-1].TotalAmount)
			}
		}
		if top[0].ID != "C1231006815" {
			t.Errorf("expected C1231006815 first, got %s", top[0].ID)
		}
		// C1666544295 and C1305486145 both total 181; first occurrence wins.
		if top[1].ID != "C1666544295" || top[2].ID != "C1305486145" {
			t.Errorf("expected tie broken by first occurrence, got %s, %s", top[1].ID, top[2].ID)
		}
		if !top[1].IsFraudulent || top[1].FraudCount != 1 {
			t.Errorf("expected fraud flags on rows, got %+v", top[1])
		}
	})

	t.Run("ByCount", func(t *testing.T) {
		top, err := engine.TopCustomers(ctx, 2, domain.RankByCount)
		if err != nil {
			t.Fatalf("TopCustomers failed: %v", err)
		}
		if len(top) != 2 {
			t.Fatalf("expected 2 customers, got %d", len(top))
		}
		if top[0].ID != "C1231006815" || top[0].Count != 2 {
			t.Errorf("unexpected leader %+v", top[0])
		}
		if top[1].ID != "C1666544295" {
			t.Errorf("expected first-seen single-transaction customer, got %s", top[1].ID)
		}
	})

	t.Run("Invalid", func(t *testing.T) {
		if _, err := engine.TopCustomers(ctx, 5, "amount"); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
		if _, err := engine.TopCustomers(ctx, -1, domain.RankByCount); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})

	t.Run("Zero", func(t *testing.T) {
		top, err := engine.TopCustomers(ctx, 0, domain.RankByVolume)
		if err != nil || len(top) != 0 {
			t.Errorf("expected empty result, got %v %v", top, err)
		}
	})
}

type flagAll struct{ threshold float64 }

func (f flagAll) Score(in domain.ScoreInput) domain.ScoreResult {
	return domain.ScoreResult{IsFraud: in.Amount <= f.threshold}
}

func TestFraudSummary(t *testing.T) {
	engine := New(ledgertest.BankingCache(t))

	// Flags the three rows at or below 181: one is the real fraud.
	sum, err := engine.FraudSummary(context.Background(), flagAll{threshold: 181})
	if err != nil {
		t.Fatalf("FraudSummary failed: %v", err)
	}
	if sum.TotalFrauds != 1 || sum.Flagged != 3 {
		t.Errorf("unexpected counts %+v", sum)
	}
	if sum.Precision != 0.33 || sum.Recall != 1 {
		t.Errorf("unexpected precision/recall %+v", sum)
	}

	sum, err = engine.FraudSummary(context.Background(), flagAll{threshold: -1})
	if err != nil {
		t.Fatalf("FraudSummary failed: %v", err)
	}
	if sum.Flagged != 0 || sum.Precision != 0 || sum.Recall != 0 {
		t.Errorf("expected zero precision and recall with no flags, got %+v", sum)
	}
}

func TestPropagatesLoadErrors(t *testing.T) {
	engine := New(errSnapshotter{err: domain.ErrInternal})
	if _, err := engine.Overview(context.Background()); !errors.Is(err, domain.ErrInternal) {
		t.Errorf("expected ErrInternal, got %v", err)
	}
}

// staticSnapshot serves a fixed banking snapshot built from rows.
type staticSnapshot []domain.Transaction

func (s staticSnapshot) Snapshot(context.Context) (*ledger.Snapshot, error) {
	return &ledger.Snapshot{Rows: s, Schema: domain.SchemaBanking, Fingerprint: "static"}, nil
}

type errSnapshotter struct{ err error }

func (e errSnapshotter) Snapshot(context.Context) (*ledger.Snapshot, error) {
	return nil, e.err
}
