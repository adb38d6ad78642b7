package domain

import (
	"errors"
	"testing"
)

func TestDetectSchema(t *testing.T) {
	tests := []struct {
		name   string
		header []string
		want   LedgerSchema
	}{
		{"Banking", []string{"step", "type", "amount", "nameOrig", "nameDest", "isFraud"}, SchemaBanking},
		{"Card", []string{"id", "date", "client_id", "amount", "use_chip", "merchant_id"}, SchemaCard},
		{"PaddedNames", []string{" nameOrig", "nameDest ", "type"}, SchemaBanking},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DetectSchema(tt.header)
			if err != nil {
				t.Fatalf("DetectSchema failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}

	t.Run("Unknown", func(t *testing.T) {
		if _, err := DetectSchema([]string{"a", "b"}); !errors.Is(err, ErrInternal) {
			t.Errorf("expected ErrInternal, got %v", err)
		}
	})
}

func TestFraudRules(t *testing.T) {
	if SchemaBanking.DefaultFraudRule() != FraudFromColumn || SchemaCard.DefaultFraudRule() != FraudFromLabels {
		t.Error("unexpected default fraud rules")
	}
	if !SchemaCard.Supports(FraudFromErrors) || SchemaBanking.Supports(FraudFromLabels) || SchemaAuto.Supports(FraudFromColumn) {
		t.Error("unexpected Supports results")
	}
	if !SchemaBanking.UsesTimeStep() || SchemaCard.UsesTimeStep() {
		t.Error("only banking ledgers group by step")
	}
}

func TestParseLedgerSchema(t *testing.T) {
	for in, want := range map[string]LedgerSchema{"": SchemaAuto, "AUTO": SchemaAuto, " card ": SchemaCard, "banking": SchemaBanking} {
		got, err := ParseLedgerSchema(in)
		if err != nil || got != want {
			t.Errorf("ParseLedgerSchema(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseLedgerSchema("crypto"); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestFilterMatches(t *testing.T) {
	payment, one := "PAYMENT", 1
	lo, hi, big := 100.0, 200.0, 500.0
	tx := Transaction{Category: "PAYMENT", Amount: 200, IsFraud: 1}

	tests := []struct {
		name   string
		filter Filter
		want   bool
	}{
		{"Empty", Filter{}, true},
		{"Category", Filter{Category: &payment}, true},
		{"Fraud", Filter{IsFraud: &one}, true},
		{"InclusiveUpperBound", Filter{MinAmount: &lo, MaxAmount: &hi}, true},
		{"PointRange", Filter{MinAmount: &hi, MaxAmount: &hi}, true},
		{"BelowMin", Filter{MinAmount: &big, Category: &payment}, false},
		{"AboveMax", Filter{MaxAmount: &lo}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.filter.Matches(&tx); got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestFromEnv(t *testing.T) {
	env := func(vars map[string]string) func(string) string {
		return func(k string) string { return vars[k] }
	}

	t.Run("Defaults", func(t *testing.T) {
		cfg, err := FromEnv(env(nil))
		if err != nil {
			t.Fatalf("FromEnv failed: %v", err)
		}
		if cfg.Tier != TierCommunity || cfg.Server.Port != 8000 || cfg.Ledger.Source != "file" || cfg.Cache.Type != "memory" {
			t.Errorf("unexpected defaults %+v", cfg)
		}
	})

	t.Run("ProOverrides", func(t *testing.T) {
		cfg, err := FromEnv(env(map[string]string{
			"LEDGERLENS_TIER":       "pro",
			"LEDGERLENS_DEBUG":      "true",
			"LEDGERLENS_PORT":       "9100",
			"LEDGERLENS_SCHEMA":     "card",
			"LEDGERLENS_REDIS_ADDR": "redis:6379",
			"LEDGERLENS_NATS_URL":   "nats://nats:4222",
		}))
		if err != nil {
			t.Fatalf("FromEnv failed: %v", err)
		}
		if cfg.Tier != TierPro || cfg.Ledger.Source != "sql" || cfg.Repository.Driver != "postgres" {
			t.Errorf("expected pro backends, got %+v", cfg)
		}
		if cfg.Logging.Level != "debug" || cfg.Server.Port != 9100 || cfg.Ledger.Schema != "card" {
			t.Errorf("overrides not applied: %+v", cfg)
		}
		if cfg.Cache.RedisAddr != "redis:6379" || cfg.EventBus.NATSUrl != "nats://nats:4222" {
			t.Errorf("backend addresses not applied: %+v", cfg)
		}
	})

	t.Run("FraudRule", func(t *testing.T) {
		cfg, err := FromEnv(env(map[string]string{"LEDGERLENS_SCHEMA": "card", "LEDGERLENS_FRAUD_RULE": " Errors "}))
		if err != nil {
			t.Fatalf("FromEnv failed: %v", err)
		}
		if cfg.Ledger.FraudRule != string(FraudFromErrors) {
			t.Errorf("expected normalized errors rule, got %q", cfg.Ledger.FraudRule)
		}

		// Auto-detected schemas are checked at load time.
		cfg, err = FromEnv(env(map[string]string{"LEDGERLENS_FRAUD_RULE": "labels"}))
		if err != nil {
			t.Fatalf("FromEnv failed: %v", err)
		}
		if cfg.Ledger.FraudRule != string(FraudFromLabels) {
			t.Errorf("expected labels rule, got %q", cfg.Ledger.FraudRule)
		}
	})

	t.Run("Invalid", func(t *testing.T) {
		for _, vars := range []map[string]string{
			{"LEDGERLENS_TIER": "enterprise"},
			{"LEDGERLENS_PORT": "http"},
			{"LEDGERLENS_PORT": "70000"},
			{"LEDGERLENS_SCHEMA": "crypto"},
			{"LEDGERLENS_FRAUD_RULE": "chargebacks"},
			{"LEDGERLENS_SCHEMA": "banking", "LEDGERLENS_FRAUD_RULE": "labels"},
			{"LEDGERLENS_SCHEMA": "card", "LEDGERLENS_FRAUD_RULE": "column"},
		} {
			if _, err := FromEnv(env(vars)); !errors.Is(err, ErrInvalidArgument) {
				t.Errorf("%v: expected ErrInvalidArgument, got %v", vars, err)
			}
		}
	})
}
