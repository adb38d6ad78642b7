package query

import (
	"context"
	"strconv"

	"github.com/opensource-finance/ledgerlens/internal/ledger"
)

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}

type failingSnapshotter struct {
	err error
}

func (f failingSnapshotter) Snapshot(context.Context) (*ledger.Snapshot, error) {
	return nil, f.err
}
