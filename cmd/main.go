package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yqmmm/ledger"
)

const usage = `Usage: %s [options]
Options:
  -t <threads>   Number of threads (default: 4)
  -d <seconds>   Duration of each test (default: 2)
  -h             Show this help

  -accounts <n>          Accounts per ledger (default: 1000)
  -balance <n>           Initial balance per account (default: 1000)
  -amount <n>            Amount moved by every transfer (default: 10)
  -hot <n>               Hot accounts under high contention (default: 10)
  -hot-prob <p>          Chance a high contention transfer stays hot (default: 0.9)
  -engines <list>        Comma separated: global,2pl,stm,tl2 (default: all)
  -contention <c>        low, high or both (default: both)
  -csv <file>            Append results to a CSV file
  -history <file>        Record results in a run history database
  -detect-deadlock <d>   Report 2PL locks held longer than d, e.g. 5s
  -v                     Verbose logging
`

type options struct {
	cfg            ledger.Config
	engines        string
	contention     string
	csvPath        string
	historyPath    string
	detectDeadlock time.Duration
	verbose        bool
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	logger := logrus.New()
	logger.SetOutput(stderr)
	ledger.SetLogger(logger)

	opts, err := parseFlags(args, stderr, logger)
	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	if err != nil {
		logger.Error(err)
		return 2
	}
	if opts.verbose {
		logger.SetLevel(logrus.DebugLevel)
	}

	kinds, err := ledger.ParseKinds(opts.engines)
	if err != nil {
		logger.Error(err)
		return 2
	}
	contentions, err := parseContentions(opts.contention)
	if err != nil {
		logger.Error(err)
		return 2
	}
	if opts.detectDeadlock > 0 {
		ledger.EnableDeadlockDetection(opts.detectDeadlock, nil)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cfg := opts.cfg.Validate()
	fmt.Fprintf(stdout, "Testing with %d threads for %d seconds each.\n\n", cfg.Threads, int(cfg.Duration.Seconds()))
	results, err := ledger.Suite(ctx, cfg, kinds, contentions, func(r ledger.Result) {
		printResult(stdout, r)
	})

	status := 0
	if err != nil {
		logger.Error(err)
		status = 1
	}
	if serr := save(opts, results); serr != nil {
		logger.Error(serr)
		status = 1
	}
	return status
}

func printResult(w io.Writer, r ledger.Result) {
	fmt.Fprintf(w, "Testing %s | Threads: %d | Contention: %s\n", r.Engine, r.Threads, r.Contention)
	if r.InitialTotal != r.Expected {
		fmt.Fprintf(w, "Something went wrong with the initial balance: %d != %d\n", r.InitialTotal, r.Expected)
	}
	if r.Conserved() {
		fmt.Fprintln(w, "Works! No money missing after all the transfers")
	} else {
		fmt.Fprintf(w, "Total balance changed during the run: %d, expected %d\n", r.FinalTotal, r.Expected)
	}
	if r.Aborts > 0 {
		fmt.Fprintf(w, "Aborted attempts: %d\n", r.Aborts)
	}
	fmt.Fprintf(w, "Throughput: %.2f transactions per second\n\n\n", r.Throughput)
}

func save(opts options, results []ledger.Result) error {
	if len(results) == 0 {
		return nil
	}
	if opts.csvPath != "" {
		if err := appendCSV(opts.csvPath, results); err != nil {
			return err
		}
	}
	if opts.historyPath != "" {
		h, err := ledger.OpenHistory(opts.historyPath)
		if err != nil {
			return err
		}
		defer h.Close()
		if err := h.Record(results...); err != nil {
			return fmt.Errorf("record history: %w", err)
		}
	}
	return nil
}

func appendCSV(path string, results []ledger.Result) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	return ledger.WriteCSV(f, results, info.Size() == 0)
}

func parseContentions(s string) ([]ledger.Contention, error) {
	if strings.EqualFold(strings.TrimSpace(s), "both") || s == "" {
		return []ledger.Contention{ledger.Low, ledger.High}, nil
	}
	c, err := ledger.ParseContention(s)
	if err != nil {
		return nil, err
	}
	return []ledger.Contention{c}, nil
}

func parseFlags(args []string, stderr io.Writer, logger logrus.FieldLogger) (options, error) {
	opts := options{cfg: ledger.DefaultConfig()}
	def := ledger.DefaultConfig()
	seconds := int(def.Duration.Seconds())

	fs := flag.NewFlagSet("ledger", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintf(stderr, usage, "ledger")
	}

	fs.Var(&intFlag{v: &opts.cfg.Threads, def: def.Threads, min: 1, logger: logger}, "t", "threads")
	fs.Var(&intFlag{v: &seconds, def: seconds, min: 1, logger: logger}, "d", "seconds")
	fs.Var(&intFlag{v: &opts.cfg.Accounts, def: def.Accounts, min: 2, logger: logger}, "accounts", "accounts")
	fs.Var(&int64Flag{v: &opts.cfg.InitialBalance, def: def.InitialBalance, min: 0, logger: logger}, "balance", "initial balance")
	fs.Var(&int64Flag{v: &opts.cfg.Amount, def: def.Amount, min: 1, logger: logger}, "amount", "transfer amount")
	fs.Var(&intFlag{v: &opts.cfg.HotAccounts, def: def.HotAccounts, min: 2, logger: logger}, "hot", "hot accounts")
	fs.Var(&probabilityFlag{v: &opts.cfg.HotProbability, def: def.HotProbability, logger: logger}, "hot-prob", "hot probability")
	fs.StringVar(&opts.engines, "engines", "", "engines")
	fs.StringVar(&opts.contention, "contention", "both", "contention")
	fs.StringVar(&opts.csvPath, "csv", "", "csv file")
	fs.StringVar(&opts.historyPath, "history", "", "history database")
	fs.DurationVar(&opts.detectDeadlock, "detect-deadlock", 0, "deadlock timeout")
	fs.BoolVar(&opts.verbose, "v", false, "verbose")

	if err := fs.Parse(knownArgs(fs, args, logger)); err != nil {
		return opts, err
	}
	opts.cfg.Duration = time.Duration(seconds) * time.Second
	return opts, nil
}

// knownArgs keeps only the arguments fs understands. Unknown flags and stray
// words are dropped with a warning, so -h is honoured wherever it appears,
// and a trailing value flag with no value keeps its default.
func knownArgs(fs *flag.FlagSet, args []string, logger logrus.FieldLogger) []string {
	var kept []string
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if !strings.HasPrefix(arg, "-") || arg == "-" || arg == "--" {
			logger.Warnf("ignoring argument %q", arg)
			continue
		}
		name := strings.TrimLeft(arg, "-")
		hasValue := false
		if eq := strings.Index(name, "="); eq >= 0 {
			name, hasValue = name[:eq], true
		}
		if name == "h" || name == "help" {
			return []string{"-h"}
		}
		f := fs.Lookup(name)
		if f == nil {
			logger.Warnf("ignoring unknown flag %q", arg)
			continue
		}
		if b, ok := f.Value.(interface{ IsBoolFlag() bool }); hasValue || (ok && b.IsBoolFlag()) {
			kept = append(kept, arg)
			continue
		}
		if i+1 == len(args) {
			logger.Warnf("flag -%s has no value, using default %s", name, f.DefValue)
			continue
		}
		kept = append(kept, arg, args[i+1])
		i++
	}
	return kept
}

type intFlag struct {
	v      *int
	def    int
	min    int
	logger logrus.FieldLogger
}

func (f *intFlag) String() string {
	if f.v == nil {
		return ""
	}
	return strconv.Itoa(*f.v)
}

func (f *intFlag) Set(s string) error {
	n, err := strconv.Atoi(s)
	if err != nil || n < f.min {
		f.logger.Warnf("invalid value %q, using default %d", s, f.def)
		*f.v = f.def
		return nil
	}
	*f.v = n
	return nil
}

type int64Flag struct {
	v      *int64
	def    int64
	min    int64
	logger logrus.FieldLogger
}

func (f *int64Flag) String() string {
	if f.v == nil {
		return ""
	}
	return strconv.FormatInt(*f.v, 10)
}

func (f *int64Flag) Set(s string) error {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < f.min {
		f.logger.Warnf("invalid value %q, using default %d", s, f.def)
		*f.v = f.def
		return nil
	}
	*f.v = n
	return nil
}

type probabilityFlag struct {
	v      *float64
	def    float64
	logger logrus.FieldLogger
}

func (f *probabilityFlag) String() string {
	if f.v == nil {
		return ""
	}
	return strconv.FormatFloat(*f.v, 'g', -1, 64)
}

func (f *probabilityFlag) Set(s string) error {
	p, err := strconv.ParseFloat(s, 64)
	if err != nil || p < 0 || p > 1 {
		f.logger.Warnf("invalid probability %q, using default %v", s, f.def)
		*f.v = f.def
		return nil
	}
	*f.v = p
	return nil
}
