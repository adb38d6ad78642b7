// Benchmark tool for measuring the LedgerLens fraud scorer against labelled data.
//
// Usage:
//
//	go run ./cmd/benchmark -csv /path/to/paysim.csv
//	go run ./cmd/benchmark -csv /path/to/paysim.csv -url http://localhost:8000
//
// This tool:
//  1. Loads the ledger through the same DatasetCache the server uses
//  2. Scores every row locally, or through POST /api/fraud/predict when -url is set
//  3. Compares the verdict with the row's fraud label
//  4. Prints the confusion matrix, precision, recall, F1-score and throughput
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/opensource-finance/ledgerlens/internal/domain"
	"github.com/opensource-finance/ledgerlens/internal/ledger"
	"github.com/opensource-finance/ledgerlens/internal/rules"
)

// Metrics tracks benchmark results.
type Metrics struct {
	TruePositives  int64 // Fraud scored as fraud
	FalsePositives int64 // Clean scored as fraud
	TrueNegatives  int64 // Clean scored as clean
	FalseNegatives int64 // Fraud scored as clean (missed fraud!)

	TotalProcessed int64
	TotalErrors    int64

	ProcessingTimeNs int64
}

// Record adds one verdict to the confusion matrix.
func (m *Metrics) Record(predicted, actual bool) {
	atomic.AddInt64(&m.TotalProcessed, 1)
	switch {
	case predicted && actual:
		atomic.AddInt64(&m.TruePositives, 1)
	case predicted && !actual:
		atomic.AddInt64(&m.FalsePositives, 1)
	case !predicted && !actual:
		atomic.AddInt64(&m.TrueNegatives, 1)
	default:
		atomic.AddInt64(&m.FalseNegatives, 1)
	}
}

// Precision is TP / (TP + FP), or 0 with no positive verdicts.
func (m *Metrics) Precision() float64 {
	return ratio(m.TruePositives, m.TruePositives+m.FalsePositives)
}

// Recall is TP / (TP + FN), or 0 with no fraud rows.
func (m *Metrics) Recall() float64 {
	return ratio(m.TruePositives, m.TruePositives+m.FalseNegatives)
}

// F1 is the harmonic mean of precision and recall.
func (m *Metrics) F1() float64 {
	p, r := m.Precision(), m.Recall()
	if p+r == 0 {
		return 0
	}
	return 2 * p * r / (p + r)
}

// Accuracy is the share of correct verdicts.
func (m *Metrics) Accuracy() float64 {
	total := m.TruePositives + m.TrueNegatives + m.FalsePositives + m.FalseNegatives
	return ratio(m.TruePositives+m.TrueNegatives, total)
}

func ratio(num, den int64) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

// Scorer produces a verdict for one row.
type Scorer interface {
	Score(ctx context.Context, in domain.ScoreInput) (domain.ScoreResult, error)
}

type localScorer struct{ s *rules.Scorer }

func (l localScorer) Score(_ context.Context, in domain.ScoreInput) (domain.ScoreResult, error) {
	return l.s.Score(in), nil
}

type remoteScorer struct {
	client  *http.Client
	baseURL string
}

func (r remoteScorer) Score(ctx context.Context, in domain.ScoreInput) (domain.ScoreResult, error) {
	body, err := json.Marshal(in)
	if err != nil {
		return domain.ScoreResult{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/api/fraud/predict", bytes.NewReader(body))
	if err != nil {
		return domain.ScoreResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return domain.ScoreResult{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.ScoreResult{}, fmt.Errorf("status %d", resp.StatusCode)
	}
	var result domain.ScoreResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return domain.ScoreResult{}, err
	}
	return result, nil
}

func main() {
	csvPath := flag.String("csv", "", "Path to the ledger CSV file")
	labelsPath := flag.String("labels", "", "Path to the fraud label JSON (card ledgers)")
	schemaName := flag.String("schema", "auto", "Ledger schema: auto, banking or card")
	baseURL := flag.String("url", "", "Score through a running LedgerLens instead of in-process")
	limit := flag.Int("limit", 10000, "Maximum transactions to score (0 = all)")
	workers := flag.Int("workers", 10, "Number of concurrent workers")
	fraudOnly := flag.Bool("fraud-only", false, "Only score fraud transactions")
	sampleRate := flag.Float64("sample", 1.0, "Sample rate for non-fraud (0.0-1.0)")
	verbose := flag.Bool("verbose", false, "Print each transaction result")
	flag.Parse()

	if *csvPath == "" {
		fmt.Println("Usage: benchmark -csv /path/to/ledger.csv [-url http://localhost:8000]")
		fmt.Println("\nFlags:")
		flag.PrintDefaults()
		os.Exit(1)
	}

	schema, err := domain.ParseLedgerSchema(*schemaName)
	if err != nil {
		fmt.Printf("ERROR: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("==================================================================")
	fmt.Println("          LEDGERLENS BENCHMARK - Fraud Scorer Evaluation")
	fmt.Println("==================================================================")
	fmt.Printf("\nCSV File:    %s\n", *csvPath)
	fmt.Printf("Schema:      %s\n", schema)
	fmt.Printf("Workers:     %d\n", *workers)
	fmt.Printf("Limit:       %d\n", *limit)
	fmt.Printf("Fraud Only:  %v\n", *fraudOnly)
	fmt.Printf("Sample Rate: %.2f\n", *sampleRate)
	fmt.Println()

	ctx := context.Background()

	var scorer Scorer
	if *baseURL != "" {
		client := &http.Client{Timeout: 10 * time.Second}
		if err := checkHealth(client, *baseURL); err != nil {
			fmt.Printf("ERROR: LedgerLens not reachable at %s: %v\n", *baseURL, err)
			os.Exit(1)
		}
		fmt.Printf("Scoring remotely via %s\n", *baseURL)
		scorer = remoteScorer{client: client, baseURL: *baseURL}
	} else {
		s, err := rules.NewScorer()
		if err != nil {
			fmt.Printf("ERROR: failed to compile scorer: %v\n", err)
			os.Exit(1)
		}
		scorer = localScorer{s: s}
	}

	var labels *ledger.LabelIndex
	if *labelsPath != "" {
		labels = ledger.NewLabelIndex(ledger.FileLabels{Path: *labelsPath})
	}
	data := ledger.NewDatasetCache(ledger.FileSource{Path: *csvPath}, labels, ledger.Options{Schema: schema})

	fmt.Printf("Loading ledger from %s...\n", *csvPath)
	loadStart := time.Now()
	snap, err := data.Snapshot(ctx)
	if err != nil {
		fmt.Printf("ERROR: failed to load ledger: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Loaded %d rows (%s schema, fraud from %s) in %v\n",
		snap.Len(), snap.Schema, snap.FraudRule, time.Since(loadStart).Round(time.Millisecond))

	rows := selectRows(snap.Rows, *limit, *fraudOnly, *sampleRate)
	fraudCount := 0
	for i := range rows {
		fraudCount += rows[i].IsFraud
	}
	if len(rows) > 0 {
		fmt.Printf("  - Fraud:     %d (%.2f%%)\n", fraudCount, 100*float64(fraudCount)/float64(len(rows)))
		fmt.Printf("  - Non-fraud: %d (%.2f%%)\n", len(rows)-fraudCount, 100*float64(len(rows)-fraudCount)/float64(len(rows)))
	}

	fmt.Printf("\nRunning benchmark with %d workers...\n", *workers)
	startTime := time.Now()
	metrics := runBenchmark(ctx, rows, scorer, *workers, *verbose)
	duration := time.Since(startTime)

	printResults(metrics, duration)
}

func checkHealth(client *http.Client, baseURL string) error {
	resp, err := client.Get(baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

// selectRows applies the fraud-only, sampling and limit flags in file order.
// Sampling keeps a deterministic share of clean rows.
func selectRows(all []domain.Transaction, limit int, fraudOnly bool, sampleRate float64) []domain.Transaction {
	var out []domain.Transaction
	sampleCounter := 0
	for i := range all {
		tx := all[i]
		isFraud := tx.IsFraud == 1

		if fraudOnly && !isFraud {
			continue
		}
		if !isFraud && sampleRate < 1.0 {
			sampleCounter++
			if float64(sampleCounter%100)/100.0 >= sampleRate {
				continue
			}
		}

		out = append(out, tx)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

func runBenchmark(ctx context.Context, rows []domain.Transaction, scorer Scorer, numWorkers int, verbose bool) *Metrics {
	metrics := &Metrics{}
	if numWorkers < 1 {
		numWorkers = 1
	}

	work := make(chan domain.Transaction, 100)
	var wg sync.WaitGroup

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for tx := range work {
				start := time.Now()
				result, err := scorer.Score(ctx, domain.ScoreInputOf(&tx))
				atomic.AddInt64(&metrics.ProcessingTimeNs, time.Since(start).Nanoseconds())

				if err != nil {
					atomic.AddInt64(&metrics.TotalErrors, 1)
					if verbose {
						fmt.Printf("ERROR: %d -> %v\n", tx.ID, err)
					}
					continue
				}

				actual := tx.IsFraud == 1
				metrics.Record(result.IsFraud, actual)

				if verbose {
					status := "ok "
					if result.IsFraud != actual {
						status = "MISS"
					}
					fmt.Printf("%s %-12s | Type: %-18s | Amount: %12.2f | Fraud: %-5v | Score: %.2f\n",
						status, tx.OriginParty, tx.Category, tx.Amount, actual, result.Probability)
				}
			}
		}()
	}

	for _, tx := range rows {
		work <- tx
	}
	close(work)
	wg.Wait()

	return metrics
}

func printResults(m *Metrics, duration time.Duration) {
	fmt.Println("\n==================================================================")
	fmt.Println("                        BENCHMARK RESULTS")
	fmt.Println("==================================================================")

	totalFraud := m.TruePositives + m.FalseNegatives
	totalClean := m.TrueNegatives + m.FalsePositives

	fmt.Printf("\nDATASET STATISTICS\n")
	fmt.Printf("   Total Processed:  %d\n", m.TotalProcessed)
	fmt.Printf("   Total Fraud:      %d\n", totalFraud)
	fmt.Printf("   Total Non-Fraud:  %d\n", totalClean)
	fmt.Printf("   Errors:           %d\n", m.TotalErrors)

	fmt.Printf("\nCONFUSION MATRIX\n")
	fmt.Println("                        Predicted")
	fmt.Println("                    FRAUD       CLEAN")
	fmt.Println("              +----------+----------+")
	fmt.Printf("   Actual  F  | %8d | %8d |  (TP, FN)\n", m.TruePositives, m.FalseNegatives)
	fmt.Println("              +----------+----------+")
	fmt.Printf("          NF  | %8d | %8d |  (FP, TN)\n", m.FalsePositives, m.TrueNegatives)
	fmt.Println("              +----------+----------+")

	fmt.Printf("\nDETECTION METRICS\n")
	fmt.Printf("   Precision:  %.4f  (of flags, how many were actual fraud)\n", m.Precision())
	fmt.Printf("   Recall:     %.4f  (of fraud, how many were flagged)\n", m.Recall())
	fmt.Printf("   F1-Score:   %.4f\n", m.F1())
	fmt.Printf("   Accuracy:   %.4f\n", m.Accuracy())

	if totalFraud > 0 {
		fmt.Printf("\n   Fraud Detected:    %d / %d (%.2f%%)\n", m.TruePositives, totalFraud, 100*ratio(m.TruePositives, totalFraud))
		fmt.Printf("   Fraud Missed:      %d / %d (%.2f%%)\n", m.FalseNegatives, totalFraud, 100*ratio(m.FalseNegatives, totalFraud))
	}
	if totalClean > 0 {
		fmt.Printf("   False Alarms:      %d / %d (%.2f%%)\n", m.FalsePositives, totalClean, 100*ratio(m.FalsePositives, totalClean))
	}

	fmt.Printf("\nPERFORMANCE\n")
	fmt.Printf("   Total Duration:   %v\n", duration.Round(time.Millisecond))
	if scored := m.TotalProcessed + m.TotalErrors; scored > 0 {
		avgUs := float64(m.ProcessingTimeNs) / float64(scored) / 1e3
		fmt.Printf("   Avg Latency:      %.2f us\n", avgUs)
		fmt.Printf("   Throughput:       %.2f tx/sec\n", float64(scored)/duration.Seconds())
	}
	fmt.Println()
}
