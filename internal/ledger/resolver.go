package ledger

import (
	"context"
	"fmt"

	"cloud.google.com/go/storage"

	"github.com/opensource-finance/ledgerlens/internal/domain"
)

// Sources is the resolved pair of ledger and label sources for a config.
type Sources struct {
	Ledger Source
	Labels LabelSource

	gcs *storage.Client
}

// Close releases clients held by the sources.
func (s *Sources) Close() error {
	if s.gcs != nil {
		return s.gcs.Close()
	}
	return nil
}

// Resolve builds the sources named by cfg. store is required for the "sql" source.
func Resolve(ctx context.Context, cfg domain.LedgerConfig, store domain.LedgerStore) (*Sources, error) {
	switch cfg.Source {
	case "", "file":
		if cfg.Path == "" {
			return nil, fmt.Errorf("%w: ledger path is required", domain.ErrInvalidArgument)
		}
		s := &Sources{Ledger: FileSource{Path: cfg.Path}}
		if cfg.LabelsPath != "" {
			s.Labels = FileLabels{Path: cfg.LabelsPath}
		}
		return s, nil

	case "gcs":
		if cfg.GCSBucket == "" || cfg.GCSObject == "" {
			return nil, fmt.Errorf("%w: gcs bucket and object are required", domain.ErrInvalidArgument)
		}
		client, err := NewGCSClient(ctx, cfg.GCSEndpoint)
		if err != nil {
			return nil, err
		}
		s := &Sources{
			Ledger: NewGCSSource(client, cfg.GCSBucket, cfg.GCSObject),
			gcs:    client,
		}
		if cfg.GCSLabelsObject != "" {
			s.Labels = NewGCSLabels(client, cfg.GCSBucket, cfg.GCSLabelsObject)
		}
		return s, nil

	case "sql":
		if store == nil {
			return nil, fmt.Errorf("%w: sql ledger source needs a repository", domain.ErrInvalidArgument)
		}
		return &Sources{
			Ledger: StoreSource{Store: store, Name: "ledger_rows"},
			Labels: StoreLabels{Store: store},
		}, nil

	default:
		return nil, fmt.Errorf("%w: unknown ledger source %q", domain.ErrInvalidArgument, cfg.Source)
	}
}

// NewFromConfig resolves sources and builds a DatasetCache over them.
func NewFromConfig(ctx context.Context, cfg domain.LedgerConfig, store domain.LedgerStore, observer LoadObserver) (*DatasetCache, *Sources, error) {
	schema, err := domain.ParseLedgerSchema(cfg.Schema)
	if err != nil {
		return nil, nil, err
	}

	srcs, err := Resolve(ctx, cfg, store)
	if err != nil {
		return nil, nil, err
	}

	cache := NewDatasetCache(srcs.Ledger, NewLabelIndex(srcs.Labels), Options{
		Schema:    schema,
		FraudRule: domain.FraudRule(cfg.FraudRule),
		Observer:  observer,
	})
	return cache, srcs, nil
}
