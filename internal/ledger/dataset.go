package ledger

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/opensource-finance/ledgerlens/internal/domain"
)

// Snapshot is an immutable, fully normalized view of the ledger.
// Callers must not modify Rows.
type Snapshot struct {
	Rows       []domain.Transaction
	Schema     domain.LedgerSchema
	FraudRule  domain.FraudRule
	Source     string
	Generation uint64
	LoadedAt   time.Time

	// Fingerprint is a content hash of the normalized rows. Replicas that
	// loaded the same ledger share it, so it can key shared caches.
	Fingerprint string

	byID map[int64]int
}

// Lookup returns the row with the given id. Duplicate ids resolve to the first row.
func (s *Snapshot) Lookup(id int64) (domain.Transaction, bool) {
	i, ok := s.byID[id]
	if !ok {
		return domain.Transaction{}, false
	}
	return s.Rows[i], true
}

// Len returns the number of rows.
func (s *Snapshot) Len() int {
	return len(s.Rows)
}

// Snapshotter is what the query and aggregation engines read from.
type Snapshotter interface {
	Snapshot(ctx context.Context) (*Snapshot, error)
}

// LoadObserver is notified after every load attempt.
type LoadObserver interface {
	ObserveLoad(duration time.Duration, rows int, err error)
}

// Options configures a DatasetCache.
type Options struct {
	Schema    domain.LedgerSchema
	FraudRule domain.FraudRule // empty selects the schema default
	Observer  LoadObserver
}

// DatasetCache loads the ledger at most once and serves the published snapshot.
//
// Loads are serialized by mu. Readers take the fast path through an atomic
// pointer and never block once a snapshot is published.
type DatasetCache struct {
	source Source
	labels *LabelIndex
	opts   Options
	tracer trace.Tracer

	mu         sync.Mutex
	current    atomic.Pointer[Snapshot]
	generation atomic.Uint64
	loads      atomic.Int64
}

// NewDatasetCache creates a cache over source. labels may be nil when the
// schema never consults an external table.
func NewDatasetCache(source Source, labels *LabelIndex, opts Options) *DatasetCache {
	if opts.Schema == "" {
		opts.Schema = domain.SchemaAuto
	}
	if labels == nil {
		labels = NewLabelIndex(nil)
	}
	return &DatasetCache{
		source: source,
		labels: labels,
		opts:   opts,
		tracer: otel.Tracer("ledgerlens/ledger"),
	}
}

// Snapshot returns the published snapshot, loading it on first use.
// Concurrent cold callers wait for a single load.
func (c *DatasetCache) Snapshot(ctx context.Context) (*Snapshot, error) {
	if s := c.current.Load(); s != nil {
		return s, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if s := c.current.Load(); s != nil {
		return s, nil
	}

	s, err := c.load(ctx)
	if err != nil {
		return nil, err
	}
	c.current.Store(s)
	return s, nil
}

// Invalidate drops the snapshot and the label index. The next Snapshot reloads.
func (c *DatasetCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.current.Store(nil)
	c.labels.Invalidate()
}

// Reload builds a fresh snapshot and swaps it in as one step. Readers see
// either the old snapshot or the new one. On failure the cache is left empty
// so the next Snapshot call retries and surfaces the error.
func (c *DatasetCache) Reload(ctx context.Context) (*Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.labels.Invalidate()
	s, err := c.load(ctx)
	if err != nil {
		c.current.Store(nil)
		return nil, err
	}
	c.current.Store(s)
	return s, nil
}

// Loaded reports whether a snapshot is currently published.
func (c *DatasetCache) Loaded() bool {
	return c.current.Load() != nil
}

// Current returns the published snapshot without loading. Nil when cold.
func (c *DatasetCache) Current() *Snapshot {
	return c.current.Load()
}

// Loads returns how many load passes have run.
func (c *DatasetCache) Loads() int64 {
	return c.loads.Load()
}

func (c *DatasetCache) load(ctx context.Context) (snap *Snapshot, err error) {
	ctx, span := c.tracer.Start(ctx, "ledger.load",
		trace.WithAttributes(attribute.String("ledger.source", c.source.Describe())),
	)
	defer span.End()

	start := time.Now()
	c.loads.Add(1)
	defer func() {
		rows := 0
		if snap != nil {
			rows = snap.Len()
		}
		if c.opts.Observer != nil {
			c.opts.Observer.ObserveLoad(time.Since(start), rows, err)
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	header, rows, err := c.source.ReadTable(ctx)
	if err != nil {
		return nil, err
	}

	schema := c.opts.Schema
	if schema == domain.SchemaAuto {
		if schema, err = domain.DetectSchema(header); err != nil {
			return nil, err
		}
	}

	rule := c.opts.FraudRule
	if rule == "" {
		rule = schema.DefaultFraudRule()
	}
	if !schema.Supports(rule) {
		return nil, fmt.Errorf("%w: fraud rule %q is not available for %s ledgers", domain.ErrInvalidArgument, rule, schema)
	}

	var labels map[int64]bool
	if rule == domain.FraudFromLabels {
		if labels, err = c.labels.Load(ctx); err != nil {
			return nil, err
		}
	}

	mapper, err := newRowMapper(schema, rule, header)
	if err != nil {
		return nil, err
	}

	txs := make([]domain.Transaction, 0, len(rows))
	byID := make(map[int64]int, len(rows))
	digest := xxhash.New()
	digest.WriteString(string(rule))
	for _, h := range header {
		digest.WriteString("\x1f" + h)
	}
	for i, row := range rows {
		tx, err := mapper.mapRow(i, row)
		if err != nil {
			return nil, err
		}
		if rule == domain.FraudFromLabels && labels[tx.ID] {
			tx.IsFraud = 1
		}
		digest.WriteString("\x1e")
		for _, cell := range row {
			digest.WriteString(cell + "\x1f")
		}
		digest.WriteString(strconv.Itoa(tx.IsFraud))
		if _, dup := byID[tx.ID]; !dup {
			byID[tx.ID] = len(txs)
		}
		txs = append(txs, tx)
	}

	snap = &Snapshot{
		Rows:       txs,
		Schema:     schema,
		FraudRule:  rule,
		Source:     c.source.Describe(),
		Generation: c.generation.Add(1),
		LoadedAt:   time.Now().UTC(),

		Fingerprint: strconv.FormatUint(digest.Sum64(), 16),
		byID:        byID,
	}

	span.SetAttributes(
		attribute.Int("ledger.rows", snap.Len()),
		attribute.String("ledger.schema", string(schema)),
	)
	return snap, nil
}
