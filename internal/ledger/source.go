// Package ledger loads, normalizes and caches the transaction ledger.
package ledger

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/opensource-finance/ledgerlens/internal/domain"
)

// Source yields the raw ledger table: a header row and the data rows in file order.
// A missing ledger is reported as domain.ErrNotFound.
type Source interface {
	ReadTable(ctx context.Context) (header []string, rows [][]string, err error)
	Describe() string
}

// LabelSource yields the external fraud label table keyed by transaction id.
// A missing table is reported as domain.ErrNotFound.
type LabelSource interface {
	ReadLabels(ctx context.Context) (map[int64]bool, error)
}

// FileSource reads a CSV ledger from the local filesystem.
type FileSource struct {
	Path string
}

// ReadTable implements Source.
func (s FileSource) ReadTable(ctx context.Context) ([]string, [][]string, error) {
	f, err := os.Open(s.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil, fmt.Errorf("%w: ledger file %s", domain.ErrNotFound, s.Path)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("%w: open ledger: %v", domain.ErrInternal, err)
	}
	defer f.Close()

	return readCSV(f)
}

// Describe implements Source.
func (s FileSource) Describe() string {
	return "file:" + s.Path
}

// FileLabels reads a JSON label table of the form {"target": {"<id>": "Yes"|"No"}}.
type FileLabels struct {
	Path string
}

// ReadLabels implements LabelSource.
func (l FileLabels) ReadLabels(ctx context.Context) (map[int64]bool, error) {
	f, err := os.Open(l.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: label file %s", domain.ErrNotFound, l.Path)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: open labels: %v", domain.ErrInternal, err)
	}
	defer f.Close()

	return decodeLabels(f)
}

// readCSV parses a ledger with a header row. Every row must have as many cells as the header.
func readCSV(r io.Reader) ([]string, [][]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = 0

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil, fmt.Errorf("%w: ledger has no header row", domain.ErrInternal)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("%w: read ledger header: %v", domain.ErrInternal, err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}
	header[0] = strings.TrimPrefix(header[0], "\ufeff")

	var rows [][]string
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("%w: read ledger: %v", domain.ErrInternal, err)
		}
		rows = append(rows, rec)
	}

	return header, rows, nil
}

type labelFile struct {
	Target map[string]string `json:"target"`
}

func decodeLabels(r io.Reader) (map[int64]bool, error) {
	var lf labelFile
	if err := json.NewDecoder(r).Decode(&lf); err != nil {
		return nil, fmt.Errorf("%w: decode labels: %v", domain.ErrInternal, err)
	}

	labels := make(map[int64]bool, len(lf.Target))
	for k, v := range lf.Target {
		id, err := strconv.ParseInt(strings.TrimSpace(k), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: label id %q", domain.ErrInternal, k)
		}
		labels[id] = strings.EqualFold(strings.TrimSpace(v), "yes")
	}
	return labels, nil
}
