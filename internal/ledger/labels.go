package ledger

import (
	"context"
	"errors"
	"sync"

	"github.com/opensource-finance/ledgerlens/internal/domain"
)

// LabelIndex is the id to fraud lookup built from the external label table.
// The table is read once; later calls return the same map until Invalidate.
type LabelIndex struct {
	src LabelSource

	mu     sync.Mutex
	labels map[int64]bool
}

// NewLabelIndex creates an index over src. A nil src behaves like an absent table.
func NewLabelIndex(src LabelSource) *LabelIndex {
	return &LabelIndex{src: src}
}

// Load returns the label map, reading the source on first use.
// An absent table yields an empty map; ids missing from the map are not fraud.
func (x *LabelIndex) Load(ctx context.Context) (map[int64]bool, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	if x.labels != nil {
		return x.labels, nil
	}

	if x.src == nil {
		x.labels = map[int64]bool{}
		return x.labels, nil
	}

	labels, err := x.src.ReadLabels(ctx)
	if errors.Is(err, domain.ErrNotFound) {
		labels, err = map[int64]bool{}, nil
	}
	if err != nil {
		return nil, err
	}
	if labels == nil {
		labels = map[int64]bool{}
	}

	x.labels = labels
	return x.labels, nil
}

// Invalidate drops the cached map so the next Load rereads the source.
func (x *LabelIndex) Invalidate() {
	x.mu.Lock()
	x.labels = nil
	x.mu.Unlock()
}
