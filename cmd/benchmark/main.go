// Benchmark tool for testing Detecta against labeled receivables data.
//
// Usage:
//   go run cmd/benchmark/main.go -csv /path/to/receivables.csv -url http://localhost:8080
//
// This tool:
//   1. Reads receivable records with fraud labels from CSV
//   2. Sends them to Detecta in batches for scoring
//   3. Compares Detecta's verdicts with the actual fraud labels
//   4. Calculates precision, recall, F1-score, and confusion matrix
//
// Expected CSV columns (header required, order free):
//   id, drawer, debtor, amount, issue_date, maturity_date, doc_type,
//   fiscal_linked, status, is_fraud
package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// LabeledReceivable is a receivable row joined with its fraud label.
type LabeledReceivable struct {
	ID           string  `json:"id"`
	Drawer       string  `json:"drawer"`
	Debtor       string  `json:"debtor"`
	Amount       float64 `json:"amount"`
	IssueDate    string  `json:"issueDate"`
	MaturityDate string  `json:"maturityDate"`
	DocType      string  `json:"docType"`
	FiscalLinked bool    `json:"fiscalLinked"`
	Status       string  `json:"status"`

	IsFraud bool `json:"-"`
}

// ScoreRequest is the Detecta API request format.
type ScoreRequest struct {
	Records []LabeledReceivable `json:"records"`
}

// ScoreResponse is the Detecta API response format.
type ScoreResponse struct {
	BatchID  string `json:"batchId"`
	Verdicts []struct {
		ReceivableID string   `json:"receivableId"`
		Suspicious   bool     `json:"suspicious"`
		Reasons      []string `json:"reasons"`
		Score        float64  `json:"score"`
		Method       string   `json:"method"`
	} `json:"verdicts"`
}

// Metrics tracks benchmark results.
type Metrics struct {
	TruePositives  int64 // Fraud flagged suspicious
	FalsePositives int64 // Clean flagged suspicious
	TrueNegatives  int64 // Clean passed
	FalseNegatives int64 // Fraud passed (missed fraud!)

	TotalProcessed int64
	TotalFraud     int64
	TotalClean     int64
	TotalErrors    int64

	ProcessingTimeMs int64
}

func main() {
	csvPath := flag.String("csv", "", "Path to labeled receivables CSV file")
	baseURL := flag.String("url", "http://localhost:8080", "Detecta base URL")
	tenantID := flag.String("tenant", "benchmark-test", "Tenant ID for requests")
	limit := flag.Int("limit", 10000, "Maximum records to process (0 = all)")
	batchSize := flag.Int("batch", 100, "Records per scoring batch")
	workers := flag.Int("workers", 4, "Number of concurrent batch workers")
	verbose := flag.Bool("verbose", false, "Print each record result")
	flag.Parse()

	if *csvPath == "" {
		fmt.Println("Usage: benchmark -csv /path/to/receivables.csv [-url http://localhost:8080]")
		fmt.Println("\nFlags:")
		flag.PrintDefaults()
		os.Exit(1)
	}

	fmt.Println("=================================================================")
	fmt.Println("         DETECTA BENCHMARK - Receivables Fraud Scoring")
	fmt.Println("=================================================================")
	fmt.Printf("\nCSV File:    %s\n", *csvPath)
	fmt.Printf("Detecta URL: %s\n", *baseURL)
	fmt.Printf("Tenant ID:   %s\n", *tenantID)
	fmt.Printf("Workers:     %d\n", *workers)
	fmt.Printf("Batch Size:  %d\n", *batchSize)
	fmt.Printf("Limit:       %d\n", *limit)
	fmt.Println()

	// Check Detecta is running
	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: Detecta not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure Detecta is running:")
		fmt.Println("  go run cmd/detecta/main.go")
		os.Exit(1)
	}
	fmt.Println("Detecta is healthy")

	// Read labeled data
	fmt.Printf("\nReading receivables from %s...\n", *csvPath)
	records, err := readReceivablesCSV(*csvPath, *limit)
	if err != nil {
		fmt.Printf("ERROR: Failed to read CSV: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Loaded %d records\n", len(records))

	fraudCount := 0
	for _, rec := range records {
		if rec.IsFraud {
			fraudCount++
		}
	}
	fmt.Printf("  - Fraud: %d (%.2f%%)\n", fraudCount, 100*float64(fraudCount)/float64(len(records)))
	fmt.Printf("  - Clean: %d (%.2f%%)\n", len(records)-fraudCount, 100*float64(len(records)-fraudCount)/float64(len(records)))

	// Run benchmark
	fmt.Printf("\nRunning benchmark with %d workers...\n", *workers)
	startTime := time.Now()
	metrics := runBenchmark(records, *baseURL, *tenantID, *batchSize, *workers, *verbose)
	duration := time.Since(startTime)

	printResults(metrics, duration)
}

func checkHealth(baseURL string) error {
	resp, err := http.Get(baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

func readReceivablesCSV(path string, limit int) ([]LabeledReceivable, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	colIndex := make(map[string]int)
	for i, col := range header {
		colIndex[strings.ToLower(strings.TrimSpace(col))] = i
	}

	required := []string{"id", "drawer", "debtor", "amount", "issue_date", "maturity_date", "doc_type", "fiscal_linked", "status", "is_fraud"}
	for _, col := range required {
		if _, ok := colIndex[col]; !ok {
			return nil, fmt.Errorf("missing column %q", col)
		}
	}

	var records []LabeledReceivable
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue // Skip malformed rows
		}

		amount, _ := strconv.ParseFloat(row[colIndex["amount"]], 64)

		rec := LabeledReceivable{
			ID:           row[colIndex["id"]],
			Drawer:       row[colIndex["drawer"]],
			Debtor:       row[colIndex["debtor"]],
			Amount:       amount,
			IssueDate:    row[colIndex["issue_date"]],
			MaturityDate: row[colIndex["maturity_date"]],
			DocType:      row[colIndex["doc_type"]],
			FiscalLinked: parseBool(row[colIndex["fiscal_linked"]]),
			Status:       row[colIndex["status"]],
			IsFraud:      parseBool(row[colIndex["is_fraud"]]),
		}

		records = append(records, rec)

		if limit > 0 && len(records) >= limit {
			break
		}
	}

	return records, nil
}

func parseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "y":
		return true
	}
	return false
}

func runBenchmark(records []LabeledReceivable, baseURL, tenantID string, batchSize, numWorkers int, verbose bool) *Metrics {
	metrics := &Metrics{}

	// Split into batches
	var batches [][]LabeledReceivable
	for start := 0; start < len(records); start += batchSize {
		end := start + batchSize
		if end > len(records) {
			end = len(records)
		}
		batches = append(batches, records[start:end])
	}

	work := make(chan []LabeledReceivable, numWorkers)
	var wg sync.WaitGroup

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: 60 * time.Second}

			for batch := range work {
				start := time.Now()
				result, err := scoreBatch(client, baseURL, tenantID, batch)
				elapsed := time.Since(start).Milliseconds()

				atomic.AddInt64(&metrics.ProcessingTimeMs, elapsed)
				atomic.AddInt64(&metrics.TotalProcessed, int64(len(batch)))

				if err != nil {
					atomic.AddInt64(&metrics.TotalErrors, int64(len(batch)))
					if verbose {
						fmt.Printf("ERROR: batch of %d -> %v\n", len(batch), err)
					}
					continue
				}

				// Index labels by receivable ID
				labels := make(map[string]bool, len(batch))
				for _, rec := range batch {
					labels[rec.ID] = rec.IsFraud
				}

				for _, verdict := range result.Verdicts {
					actual := labels[verdict.ReceivableID]
					predicted := verdict.Suspicious

					if actual {
						atomic.AddInt64(&metrics.TotalFraud, 1)
					} else {
						atomic.AddInt64(&metrics.TotalClean, 1)
					}

					switch {
					case predicted && actual:
						atomic.AddInt64(&metrics.TruePositives, 1)
					case predicted && !actual:
						atomic.AddInt64(&metrics.FalsePositives, 1)
					case !predicted && !actual:
						atomic.AddInt64(&metrics.TrueNegatives, 1)
					default:
						atomic.AddInt64(&metrics.FalseNegatives, 1)
					}

					if verbose {
						status := "OK "
						if predicted != actual {
							status = "MISS"
						}
						fmt.Printf("%s %-12s | Fraud: %-5v | Detecta: %-5v (%.2f) | %s | %v\n",
							status,
							verdict.ReceivableID,
							actual,
							predicted,
							verdict.Score,
							verdict.Method,
							verdict.Reasons,
						)
					}
				}
			}
		}()
	}

	for _, batch := range batches {
		work <- batch
	}
	close(work)

	wg.Wait()

	return metrics
}

func scoreBatch(client *http.Client, baseURL, tenantID string, batch []LabeledReceivable) (*ScoreResponse, error) {
	body, err := json.Marshal(ScoreRequest{Records: batch})
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequest(http.MethodPost, baseURL+"/score", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Tenant-ID", tenantID)

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var result ScoreResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	return &result, nil
}

func printResults(m *Metrics, duration time.Duration) {
	fmt.Println("\n=================================================================")
	fmt.Println("                       BENCHMARK RESULTS")
	fmt.Println("=================================================================")

	fmt.Printf("\nDATASET STATISTICS\n")
	fmt.Printf("   Total Processed:  %d\n", m.TotalProcessed)
	fmt.Printf("   Total Fraud:      %d\n", m.TotalFraud)
	fmt.Printf("   Total Clean:      %d\n", m.TotalClean)
	fmt.Printf("   Errors:           %d\n", m.TotalErrors)

	fmt.Printf("\nCONFUSION MATRIX\n")
	fmt.Println("                         Predicted")
	fmt.Println("                   SUSPECT      CLEAN")
	fmt.Printf("   Actual  Fraud  %8d   %8d   (TP, FN)\n", m.TruePositives, m.FalseNegatives)
	fmt.Printf("           Clean  %8d   %8d   (FP, TN)\n", m.FalsePositives, m.TrueNegatives)

	precision := float64(0)
	if m.TruePositives+m.FalsePositives > 0 {
		precision = float64(m.TruePositives) / float64(m.TruePositives+m.FalsePositives)
	}

	recall := float64(0)
	if m.TruePositives+m.FalseNegatives > 0 {
		recall = float64(m.TruePositives) / float64(m.TruePositives+m.FalseNegatives)
	}

	f1 := float64(0)
	if precision+recall > 0 {
		f1 = 2 * (precision * recall) / (precision + recall)
	}

	accuracy := float64(0)
	total := m.TruePositives + m.TrueNegatives + m.FalsePositives + m.FalseNegatives
	if total > 0 {
		accuracy = float64(m.TruePositives+m.TrueNegatives) / float64(total)
	}

	fmt.Printf("\nDETECTION METRICS\n")
	fmt.Printf("   Precision:  %.4f  (of flags, how many were actual fraud)\n", precision)
	fmt.Printf("   Recall:     %.4f  (of fraud, how many did we catch)\n", recall)
	fmt.Printf("   F1-Score:   %.4f  (harmonic mean of precision & recall)\n", f1)
	fmt.Printf("   Accuracy:   %.4f  (overall correct predictions)\n", accuracy)

	fmt.Printf("\nDETECTION ANALYSIS\n")
	if m.TotalFraud > 0 {
		detectionRate := float64(m.TruePositives) / float64(m.TotalFraud) * 100
		missRate := float64(m.FalseNegatives) / float64(m.TotalFraud) * 100
		fmt.Printf("   Fraud Detected:    %d / %d (%.2f%%)\n", m.TruePositives, m.TotalFraud, detectionRate)
		fmt.Printf("   Fraud Missed:      %d / %d (%.2f%%)\n", m.FalseNegatives, m.TotalFraud, missRate)
	}
	if m.TotalClean > 0 {
		falseAlarmRate := float64(m.FalsePositives) / float64(m.TotalClean) * 100
		fmt.Printf("   False Alarms:      %d / %d (%.2f%%)\n", m.FalsePositives, m.TotalClean, falseAlarmRate)
	}

	fmt.Printf("\nPERFORMANCE\n")
	fmt.Printf("   Total Duration:   %v\n", duration.Round(time.Millisecond))
	if m.TotalProcessed > 0 {
		avgMs := float64(m.ProcessingTimeMs) / float64(m.TotalProcessed)
		rps := float64(m.TotalProcessed) / duration.Seconds()
		fmt.Printf("   Avg Latency:      %.2f ms/record\n", avgMs)
		fmt.Printf("   Throughput:       %.2f records/sec\n", rps)
	}

	fmt.Println()
}
