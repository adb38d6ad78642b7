package repository

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/opensource-finance/ledgerlens/internal/domain"
)

func newTestRepo(t *testing.T) *SQLRepository {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "ledgerlens-test-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	t.Cleanup(func() { os.Remove(tmpPath) })

	repo, err := New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: tmpPath,
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestSQLiteRepository(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	header := []string{"id", "date", "client_id", "card_id", "amount", "use_chip", "merchant_id", "merchant_city", "merchant_state", "zip", "mcc", "errors"}
	rows := [][]string{
		{"7475327", "2010-01-01 00:01:00", "1556", "2972", "$-77.00", "Swipe Transaction", "59935", "Beulah", "ND", "58523.0", "5499", ""},
		{"7475328", "2010-01-01 00:02:00", "561", "4575", "$14.57", "Swipe Transaction", "67570", "Bettendorf", "IA", "52722.0", "5311", ""},
		{"7475329", "2010-01-01 00:02:00", "1129", "102", "$80.00", "Online Transaction", "27092", "ONLINE", "", "", "4829", "Bad PIN"},
	}
	labels := map[int64]bool{7475327: false, 7475329: true}

	t.Run("Ping", func(t *testing.T) {
		if err := repo.Ping(ctx); err != nil {
			t.Errorf("Ping failed: %v", err)
		}
	})

	t.Run("ReadBeforeImport", func(t *testing.T) {
		_, _, err := repo.ReadLedger(ctx)
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}

		ts, err := repo.LastImport(ctx)
		if err != nil {
			t.Fatalf("LastImport failed: %v", err)
		}
		if !ts.IsZero() {
			t.Errorf("expected zero import time, got %v", ts)
		}
	})

	t.Run("ImportAndRead", func(t *testing.T) {
		if err := repo.Import(ctx, header, rows, labels); err != nil {
			t.Fatalf("Import failed: %v", err)
		}

		gotHeader, gotRows, err := repo.ReadLedger(ctx)
		if err != nil {
			t.Fatalf("ReadLedger failed: %v", err)
		}
		if len(gotHeader) != len(header) {
			t.Fatalf("expected %d columns, got %d", len(header), len(gotHeader))
		}
		for i := range header {
			if gotHeader[i] != header[i] {
				t.Errorf("column %d: expected %s, got %s", i, header[i], gotHeader[i])
			}
		}
		if len(gotRows) != len(rows) {
			t.Fatalf("expected %d rows, got %d", len(rows), len(gotRows))
		}
		if gotRows[2][11] != "Bad PIN" {
			t.Errorf("expected errors cell to survive, got %q", gotRows[2][11])
		}
		if gotRows[0][4] != "$-77.00" {
			t.Errorf("expected raw amount text, got %q", gotRows[0][4])
		}

		gotLabels, err := repo.ReadLabels(ctx)
		if err != nil {
			t.Fatalf("ReadLabels failed: %v", err)
		}
		if len(gotLabels) != 2 || !gotLabels[7475329] || gotLabels[7475327] {
			t.Errorf("unexpected labels: %v", gotLabels)
		}

		ts, err := repo.LastImport(ctx)
		if err != nil {
			t.Fatalf("LastImport failed: %v", err)
		}
		if ts.IsZero() {
			t.Error("expected import time to be recorded")
		}
	})

	t.Run("ReimportReplaces", func(t *testing.T) {
		if err := repo.Import(ctx, header, rows[:1], nil); err != nil {
			t.Fatalf("Import failed: %v", err)
		}

		_, gotRows, err := repo.ReadLedger(ctx)
		if err != nil {
			t.Fatalf("ReadLedger failed: %v", err)
		}
		if len(gotRows) != 1 {
			t.Errorf("expected 1 row after reimport, got %d", len(gotRows))
		}

		gotLabels, err := repo.ReadLabels(ctx)
		if err != nil {
			t.Fatalf("ReadLabels failed: %v", err)
		}
		if len(gotLabels) != 0 {
			t.Errorf("expected labels to be cleared, got %d", len(gotLabels))
		}
	})

	t.Run("RaggedRowRejected", func(t *testing.T) {
		err := repo.Import(ctx, header, [][]string{{"1", "2"}}, nil)
		if !errors.Is(err, ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}

		// Failed import must leave the previous ledger intact.
		_, gotRows, err := repo.ReadLedger(ctx)
		if err != nil {
			t.Fatalf("ReadLedger failed: %v", err)
		}
		if len(gotRows) != 1 {
			t.Errorf("expected previous import to survive, got %d rows", len(gotRows))
		}
	})

	t.Run("EmptyHeaderRejected", func(t *testing.T) {
		if err := repo.Import(ctx, nil, nil, nil); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})
}

func TestUnsupportedDriver(t *testing.T) {
	_, err := New(domain.RepositoryConfig{Driver: "oracle"})
	if !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestRebind(t *testing.T) {
	pg := &SQLRepository{driver: "postgres"}
	got := pg.rebind("INSERT INTO t (a, b) VALUES (?, ?)")
	if got != "INSERT INTO t (a, b) VALUES ($1, $2)" {
		t.Errorf("unexpected postgres rebind: %s", got)
	}

	lite := &SQLRepository{driver: "sqlite"}
	if q := lite.rebind("SELECT ?"); q != "SELECT ?" {
		t.Errorf("sqlite query should be unchanged, got %s", q)
	}
}

func TestPostgresDSN(t *testing.T) {
	dsn := postgresDSN(domain.RepositoryConfig{PostgresUser: "u", PostgresPassword: "p"})
	want := "host=localhost port=5432 user=u password=p dbname=ledgerlens sslmode=disable"
	if dsn != want {
		t.Errorf("expected %q, got %q", want, dsn)
	}
}
