package bench

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/ValentinKolb/dBench/cmd/util"
	"github.com/ValentinKolb/dBench/lib/measure"
	"github.com/ValentinKolb/dBench/lib/store"
)

// statuses in report order
var statuses = []store.Status{store.OK, store.BatchedOK, store.Error, store.BadRequest}

// printResult prints the summary of a run followed by one line per store
// operation
func printResult(w io.Writer, result Result, reg *measure.Registry) {
	fmt.Fprintf(w, "\n%-20s%d ops in %s\t%.0f ops/sec\t%d failed\n",
		result.Workload, result.Ops, result.Elapsed.Round(time.Millisecond), result.OpsPerSec(), result.Failures)

	for _, s := range reg.Stats() {
		fmt.Fprintf(w, "  %-18s%8d calls  mean %-12s p50 %-12s p99 %-12s max %s\n",
			s.Op, s.Count, s.Mean, s.P50, s.P99, s.Max)
		for _, status := range statuses[2:] {
			if n := reg.Count(s.Op, status.String()); n > 0 {
				fmt.Fprintf(w, "  %-18s%8d %s\n", "", n, status)
			}
		}
	}
}

// writeResultsToCSV writes one row per store operation of the run
func writeResultsToCSV(csvPath string, result Result, reg *measure.Registry, config *util.Config) error {
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %v", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	// Write header
	header := []string{
		"Workload", "Operation", "Calls", "MeanNs", "P50Ns", "P99Ns", "MaxNs",
		"OK", "BatchedOK", "Error", "BadRequest",
		"WorkloadOps", "WorkloadFailures", "ElapsedMs", "WorkloadOpsPerSec",
		"Backend", "Threads", "ReadMode", "BatchSize", "StalenessSec", "Versioning",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %v", err)
	}

	for _, s := range reg.Stats() {
		row := []string{
			result.Workload,
			s.Op,
			strconv.FormatInt(s.Count, 10),
			strconv.FormatInt(s.Mean.Nanoseconds(), 10),
			strconv.FormatInt(s.P50.Nanoseconds(), 10),
			strconv.FormatInt(s.P99.Nanoseconds(), 10),
			strconv.FormatInt(s.Max.Nanoseconds(), 10),
		}
		for _, status := range statuses {
			row = append(row, strconv.FormatUint(reg.Count(s.Op, status.String()), 10))
		}
		row = append(row,
			strconv.FormatInt(result.Ops, 10),
			strconv.FormatInt(result.Failures, 10),
			strconv.FormatInt(result.Elapsed.Milliseconds(), 10),
			fmt.Sprintf("%.0f", result.OpsPerSec()),
			config.Backend,
			strconv.Itoa(config.Threads),
			string(config.ReadMode),
			strconv.Itoa(config.BatchSize),
			strconv.Itoa(int(config.Staleness/time.Second)),
			string(config.Versioning),
		)
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row for operation %s: %v", s.Op, err)
		}
	}

	return nil
}
