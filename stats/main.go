package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/yqmmm/ledger"
)

// stats exports a run history database as CSV.
func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	logger := logrus.New()
	logger.SetOutput(stderr)

	fs := flag.NewFlagSet("stats", flag.ContinueOnError)
	fs.SetOutput(stderr)
	historyPath := fs.String("history", "history.db", "run history database")
	out := fs.String("o", "", "output file (default stdout)")
	engine := fs.String("engine", "", "only export runs of this engine name")
	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return 0
		}
		return 2
	}

	n, err := export(*historyPath, *engine, *out, stdout)
	if err != nil {
		logger.Error(err)
		return 1
	}
	logger.Infof("exported %d runs", n)
	return 0
}

func export(historyPath, engine, out string, stdout io.Writer) (int, error) {
	// Opening a missing file would create an empty database.
	if _, err := os.Stat(historyPath); err != nil {
		return 0, fmt.Errorf("history %s: %w", historyPath, err)
	}
	h, err := ledger.OpenHistory(historyPath)
	if err != nil {
		return 0, err
	}
	defer h.Close()

	runs, err := h.Runs()
	if err != nil {
		return 0, err
	}
	if engine != "" {
		filtered := runs[:0]
		for _, r := range runs {
			if r.Engine == engine {
				filtered = append(filtered, r)
			}
		}
		runs = filtered
	}

	w := stdout
	if out != "" {
		f, err := os.Create(out)
		if err != nil {
			return 0, err
		}
		defer f.Close()
		w = f
	}

	if err := ledger.WriteCSV(w, runs, true); err != nil {
		return 0, err
	}
	return len(runs), nil
}
