// Package stats computes grouped statistics over the ledger snapshot.
package stats

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/ledgerlens/internal/domain"
	"github.com/opensource-finance/ledgerlens/internal/ledger"
)

// Breakpoints are the fixed histogram edges used by AmountDistribution.
var Breakpoints = []float64{0, 100, 500, 1000, 5000, 10000, 50000, 100000, 500000, 1000000}

// Scorer is the fraud scorer used by FraudSummary.
type Scorer interface {
	Score(in domain.ScoreInput) domain.ScoreResult
}

// Engine computes aggregations. Every call is a pure function of the current snapshot.
type Engine struct {
	data ledger.Snapshotter
}

// New creates an aggregation engine over data.
func New(data ledger.Snapshotter) *Engine {
	return &Engine{data: data}
}

// group accumulates one key while preserving first-occurrence order.
type group struct {
	key   string
	count int
	fraud int
	total float64
}

type grouper struct {
	index  map[string]int
	groups []*group
}

func newGrouper() *grouper {
	return &grouper{index: make(map[string]int)}
}

func (g *grouper) add(key string, tx *domain.Transaction) {
	i, ok := g.index[key]
	if !ok {
		i = len(g.groups)
		g.index[key] = i
		g.groups = append(g.groups, &group{key: key})
	}
	grp := g.groups[i]
	grp.count++
	grp.fraud += tx.IsFraud
	grp.total += tx.Amount
}

func (grp *group) avg() float64 {
	if grp.count == 0 {
		return 0
	}
	return grp.total / float64(grp.count)
}

// Overview returns totals for the whole ledger. An empty ledger has fraud rate 0.
func (e *Engine) Overview(ctx context.Context) (domain.Overview, error) {
	snap, err := e.data.Snapshot(ctx)
	if err != nil {
		return domain.Overview{}, err
	}

	out := domain.Overview{TotalCount: snap.Len()}
	if snap.Len() == 0 {
		return out, nil
	}

	g := newGrouper()
	fraud := 0
	total := 0.0
	for i := range snap.Rows {
		tx := &snap.Rows[i]
		g.add(tx.Category, tx)
		fraud += tx.IsFraud
		total += tx.Amount
	}

	// Strictly greater keeps the first category on ties.
	var mode *group
	for _, grp := range g.groups {
		if mode == nil || grp.count > mode.count {
			mode = grp
		}
	}

	out.FraudRate = round(float64(fraud)/float64(snap.Len()), 5)
	out.AvgAmount = round(total/float64(snap.Len()), 2)
	out.MostCommonCategory = mode.key
	return out, nil
}

// AmountDistribution bins amounts on Breakpoints up to the observed maximum,
// closed by an edge at max+1. Amounts below zero fall in a leading bin that starts
// at floor(min), so the counts always sum to the row count.
func (e *Engine) AmountDistribution(ctx context.Context) (domain.AmountDistribution, error) {
	snap, err := e.data.Snapshot(ctx)
	if err != nil {
		return domain.AmountDistribution{}, err
	}

	out := domain.AmountDistribution{BinLabels: []string{}, Counts: []int{}}
	if snap.Len() == 0 {
		return out, nil
	}

	lo, hi := snap.Rows[0].Amount, snap.Rows[0].Amount
	for i := range snap.Rows {
		lo = math.Min(lo, snap.Rows[i].Amount)
		hi = math.Max(hi, snap.Rows[i].Amount)
	}

	edges := binEdges(lo, hi)
	counts := make([]int, len(edges)-1)
	for i := range snap.Rows {
		counts[binIndex(edges, snap.Rows[i].Amount)]++
	}

	labels := make([]string, len(counts))
	for i := range counts {
		if i == len(counts)-1 {
			labels[i] = fmt.Sprintf("%d+", int64(edges[i]))
		} else {
			labels[i] = fmt.Sprintf("%d-%d", int64(edges[i]), int64(edges[i+1]))
		}
	}

	out.BinLabels = labels
	out.Counts = counts
	return out, nil
}

func binEdges(lo, hi float64) []float64 {
	var edges []float64
	if lo < 0 {
		edges = append(edges, math.Floor(lo))
	}
	for _, b := range Breakpoints {
		if b <= hi {
			edges = append(edges, b)
		}
	}
	edges = append(edges, hi+1)
	return edges
}

// binIndex returns the bin holding v. Bins are half-open except the last.
func binIndex(edges []float64, v float64) int {
	i := sort.Search(len(edges), func(i int) bool { return edges[i] > v }) - 1
	return max(0, min(i, len(edges)-2))
}

// ByCategory returns count and amount totals per category in first-occurrence order.
func (e *Engine) ByCategory(ctx context.Context) ([]domain.CategoryStats, error) {
	snap, err := e.data.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	g := newGrouper()
	for i := range snap.Rows {
		g.add(snap.Rows[i].Category, &snap.Rows[i])
	}

	out := make([]domain.CategoryStats, 0, len(g.groups))
	for _, grp := range g.groups {
		out = append(out, domain.CategoryStats{
			Category:    grp.key,
			Count:       grp.count,
			AvgAmount:   round(grp.avg(), 2),
			TotalAmount: round(grp.total, 2),
		})
	}
	return out, nil
}

// ByFraud returns the fraud share of each category as a percentage.
func (e *Engine) ByFraud(ctx context.Context) ([]domain.FraudByCategory, error) {
	snap, err := e.data.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	g := newGrouper()
	for i := range snap.Rows {
		g.add(snap.Rows[i].Category, &snap.Rows[i])
	}

	out := make([]domain.FraudByCategory, 0, len(g.groups))
	for _, grp := range g.groups {
		out = append(out, domain.FraudByCategory{
			Category:         grp.key,
			TotalCount:       grp.count,
			FraudCount:       grp.fraud,
			FraudRatePercent: round(100*float64(grp.fraud)/float64(grp.count), 2),
		})
	}
	return out, nil
}

// ByTimeUnit groups by step (banking) or calendar day (card), ascending.
func (e *Engine) ByTimeUnit(ctx context.Context) ([]domain.TimeUnitStats, error) {
	snap, err := e.data.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	byStep := snap.Schema.UsesTimeStep()
	g := newGrouper()
	steps := make(map[string]int64)
	for i := range snap.Rows {
		tx := &snap.Rows[i]
		var key string
		if byStep {
			key = strconv.FormatInt(tx.Step, 10)
			steps[key] = tx.Step
		} else {
			key = day(tx.Date)
		}
		g.add(key, tx)
	}

	groups := g.groups
	sort.SliceStable(groups, func(i, j int) bool {
		if byStep {
			return steps[groups[i].key] < steps[groups[j].key]
		}
		return groups[i].key < groups[j].key
	})

	out := make([]domain.TimeUnitStats, 0, len(groups))
	for _, grp := range groups {
		out = append(out, domain.TimeUnitStats{
			Unit:        grp.key,
			Count:       grp.count,
			AvgAmount:   round(grp.avg(), 2),
			TotalAmount: round(grp.total, 2),
		})
	}
	return out, nil
}

// day returns the calendar day prefix of an ISO timestamp.
func day(date string) string {
	if len(date) >= 10 {
		return date[:10]
	}
	return date
}

// CustomerRollup aggregates the rows originated by party.
func (e *Engine) CustomerRollup(ctx context.Context, party string) (domain.CustomerProfile, error) {
	snap, err := e.data.Snapshot(ctx)
	if err != nil {
		return domain.CustomerProfile{}, err
	}

	grp := &group{key: party}
	for i := range snap.Rows {
		if snap.Rows[i].OriginParty == party {
			grp.count++
			grp.fraud += snap.Rows[i].IsFraud
			grp.total += snap.Rows[i].Amount
		}
	}
	if grp.count == 0 {
		return domain.CustomerProfile{}, fmt.Errorf("%w: customer %q", domain.ErrNotFound, party)
	}

	return profile(grp), nil
}

// TopCustomers ranks origin parties by total amount or transaction count, descending.
// Ties keep the first-occurrence order of the party.
func (e *Engine) TopCustomers(ctx context.Context, n int, by domain.RankBy) ([]domain.CustomerProfile, error) {
	if n < 0 {
		return nil, fmt.Errorf("%w: n must be >= 0", domain.ErrInvalidArgument)
	}
	if by != domain.RankByVolume && by != domain.RankByCount {
		return nil, fmt.Errorf("%w: rank by %q, want volume or count", domain.ErrInvalidArgument, by)
	}

	snap, err := e.data.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	g := newGrouper()
	for i := range snap.Rows {
		g.add(snap.Rows[i].OriginParty, &snap.Rows[i])
	}

	groups := g.groups
	sort.SliceStable(groups, func(i, j int) bool {
		if by == domain.RankByCount {
			return groups[i].count > groups[j].count
		}
		return groups[i].total > groups[j].total
	})

	out := make([]domain.CustomerProfile, 0, min(n, len(groups)))
	for _, grp := range groups[:min(n, len(groups))] {
		out = append(out, profile(grp))
	}
	return out, nil
}

// FraudSummary compares scorer verdicts with the ledger's fraud flags.
func (e *Engine) FraudSummary(ctx context.Context, scorer Scorer) (domain.FraudSummary, error) {
	snap, err := e.data.Snapshot(ctx)
	if err != nil {
		return domain.FraudSummary{}, err
	}

	var out domain.FraudSummary
	truePositives := 0
	for i := range snap.Rows {
		tx := &snap.Rows[i]
		flagged := scorer.Score(domain.ScoreInputOf(tx)).IsFraud
		if tx.IsFraud == 1 {
			out.TotalFrauds++
		}
		if flagged {
			out.Flagged++
			if tx.IsFraud == 1 {
				truePositives++
			}
		}
	}

	if out.Flagged > 0 {
		out.Precision = round(float64(truePositives)/float64(out.Flagged), 2)
	}
	if out.TotalFrauds > 0 {
		out.Recall = round(float64(truePositives)/float64(out.TotalFrauds), 2)
	}
	return out, nil
}

func profile(grp *group) domain.CustomerProfile {
	return domain.CustomerProfile{
		ID:           grp.key,
		Count:        grp.count,
		AvgAmount:    round(grp.avg(), 2),
		TotalAmount:  round(grp.total, 2),
		FraudCount:   grp.fraud,
		IsFraudulent: grp.fraud > 0,
	}
}

// round rounds half away from zero on the shortest decimal form of v.
func round(v float64, places int32) float64 {
	f, _ := decimal.NewFromFloat(v).Round(places).Float64()
	return f
}
