package ledger

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
)

var csvHeader = []string{
	"run_id", "engine", "threads", "contention", "accounts", "duration_s",
	"transfers", "succeeded", "insufficient", "aborts", "throughput", "conserved",
}

// WriteCSV writes one row per result, preceded by the column names when
// header is set.
func WriteCSV(w io.Writer, results []Result, header bool) error {
	cw := csv.NewWriter(w)
	if header {
		if err := cw.Write(csvHeader); err != nil {
			return err
		}
	}
	for _, r := range results {
		err := cw.Write([]string{
			r.RunID,
			r.Engine,
			strconv.Itoa(r.Threads),
			r.Contention.String(),
			strconv.Itoa(r.Accounts),
			fmt.Sprintf("%f", r.Duration.Seconds()),
			strconv.FormatInt(r.Transfers, 10),
			strconv.FormatInt(r.Succeeded, 10),
			strconv.FormatInt(r.Insufficient, 10),
			strconv.FormatUint(r.Aborts, 10),
			fmt.Sprintf("%.2f", r.Throughput),
			strconv.FormatBool(r.Conserved()),
		})
		if err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
