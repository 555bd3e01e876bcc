package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

type Config struct {
	Accounts       int
	InitialBalance int64
	Amount         int64
	Threads        int
	Duration       time.Duration
	Contention     Contention
	HotAccounts    int     // size of the hot set under High contention
	HotProbability float64 // chance that a High transfer stays inside the hot set
}

func DefaultConfig() Config {
	return Config{
		Accounts:       1000,
		InitialBalance: 1000,
		Amount:         10,
		Threads:        4,
		Duration:       2 * time.Second,
		Contention:     Low,
		HotAccounts:    10,
		HotProbability: 0.9,
	}
}

// Validate returns a copy of c with every unusable field replaced by its
// default.
func (c Config) Validate() Config {
	def := DefaultConfig()
	if c.Accounts < 2 {
		log.Warnf("accounts %d too small, using %d", c.Accounts, def.Accounts)
		c.Accounts = def.Accounts
	}
	if c.InitialBalance < 0 {
		log.Warnf("initial balance %d is negative, using %d", c.InitialBalance, def.InitialBalance)
		c.InitialBalance = def.InitialBalance
	}
	if c.Amount <= 0 {
		log.Warnf("transfer amount %d is not positive, using %d", c.Amount, def.Amount)
		c.Amount = def.Amount
	}
	if c.Threads < 1 {
		log.Warnf("threads %d is not positive, using %d", c.Threads, def.Threads)
		c.Threads = def.Threads
	}
	if c.Duration <= 0 {
		log.Warnf("duration %v is not positive, using %v", c.Duration, def.Duration)
		c.Duration = def.Duration
	}
	if c.HotAccounts < 2 {
		log.Warnf("hot set of %d accounts too small, using %d", c.HotAccounts, def.HotAccounts)
		c.HotAccounts = def.HotAccounts
	}
	if c.HotAccounts > c.Accounts {
		c.HotAccounts = c.Accounts
	}
	if c.HotProbability < 0 || c.HotProbability > 1 {
		log.Warnf("hot probability %v outside [0, 1], using %v", c.HotProbability, def.HotProbability)
		c.HotProbability = def.HotProbability
	}
	return c
}

// Expected is the total every engine must hold at rest.
func (c Config) Expected() int64 {
	return int64(c.Accounts) * c.InitialBalance
}

type Result struct {
	RunID        string        `json:"run_id"`
	StartedAt    time.Time     `json:"started_at"`
	Engine       string        `json:"engine"`
	Threads      int           `json:"threads"`
	Contention   Contention    `json:"contention"`
	Accounts     int           `json:"accounts"`
	Duration     time.Duration `json:"duration"`
	Transfers    int64         `json:"transfers"`
	Succeeded    int64         `json:"succeeded"`
	Insufficient int64         `json:"insufficient"`
	Aborts       uint64        `json:"aborts"`
	InitialTotal int64         `json:"initial_total"`
	FinalTotal   int64         `json:"final_total"`
	Expected     int64         `json:"expected"`
	Throughput   float64       `json:"throughput"`
}

func (r Result) Conserved() bool {
	return r.InitialTotal == r.Expected && r.FinalTotal == r.Expected
}

// Benchmark hammers l with random transfers from cfg.Threads workers for
// cfg.Duration and checks that the total balance survived. A conservation
// failure is returned as an error wrapping ErrNotConserved together with the
// full result.
func Benchmark(ctx context.Context, cfg Config, l Ledger) (Result, error) {
	cfg = cfg.Validate()
	res := Result{
		RunID:      uuid.NewString(),
		StartedAt:  time.Now(),
		Engine:     l.Name(),
		Threads:    cfg.Threads,
		Contention: cfg.Contention,
		Accounts:   cfg.Accounts,
		Expected:   cfg.Expected(),
	}
	entry := log.WithFields(logrus.Fields{
		"engine":     res.Engine,
		"threads":    res.Threads,
		"contention": res.Contention.String(),
	})

	initial, err := l.TotalBalance(ctx)
	if err != nil {
		return res, fmt.Errorf("%s: initial total: %w", res.Engine, err)
	}
	res.InitialTotal = initial
	if initial != res.Expected {
		entry.Errorf("initial balance %d != expected %d", initial, res.Expected)
	}

	var abortsBefore uint64
	counter, counts := l.(AbortCounter)
	if counts {
		abortsBefore = counter.Aborts()
	}

	entry.Debugf("running for %v", cfg.Duration)
	runCtx, cancel := context.WithTimeout(ctx, cfg.Duration)
	defer cancel()

	var transfers, succeeded, insufficient atomic.Int64
	g, workCtx := errgroup.WithContext(runCtx)
	start := time.Now()
	for i := 0; i < cfg.Threads; i++ {
		id := i
		g.Go(func() error {
			picker := NewPicker(int64(id+100), cfg.Accounts, cfg.HotAccounts, cfg.HotProbability, cfg.Contention)

			var n, ok, short int64
			defer func() {
				transfers.Add(n)
				succeeded.Add(ok)
				insufficient.Add(short)
			}()
			for workCtx.Err() == nil {
				from, to := picker.Pick()
				moved, err := l.Transfer(workCtx, from, to, cfg.Amount)
				if err != nil {
					if stopped(workCtx, err) {
						return nil
					}
					return err
				}
				n++
				if moved {
					ok++
				} else {
					short++
				}
			}
			return nil
		})
	}
	werr := g.Wait()
	cancel()
	res.Duration = time.Since(start)

	res.Transfers = transfers.Load()
	res.Succeeded = succeeded.Load()
	res.Insufficient = insufficient.Load()
	if res.Duration > 0 {
		res.Throughput = float64(res.Transfers) / res.Duration.Seconds()
	}
	if werr != nil {
		entry.WithError(werr).Error("transfer failed")
		return res, fmt.Errorf("%s: transfer: %w", res.Engine, werr)
	}

	final, err := l.TotalBalance(ctx)
	if err != nil {
		return res, fmt.Errorf("%s: final total: %w", res.Engine, err)
	}
	res.FinalTotal = final
	if counts {
		res.Aborts = counter.Aborts() - abortsBefore
	}

	if !res.Conserved() {
		err := fmt.Errorf("%s: %w: initial %d, final %d, expected %d",
			res.Engine, ErrNotConserved, res.InitialTotal, res.FinalTotal, res.Expected)
		entry.Error(err)
		return res, err
	}
	entry.WithField("throughput", res.Throughput).Infof("%d transfers in %v", res.Transfers, res.Duration)
	return res, nil
}

// stopped reports whether err is ctx ending rather than a ledger failure.
func stopped(ctx context.Context, err error) bool {
	if ctx.Err() == nil {
		return false
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// Suite benchmarks a fresh ledger for every kind and contention, in that
// order. report, if not nil, sees each result as soon as it is ready.
// Conservation failures are collected and returned together; cancellation of
// ctx stops the suite.
func Suite(ctx context.Context, cfg Config, kinds []Kind, contentions []Contention, report func(Result)) ([]Result, error) {
	cfg = cfg.Validate()
	var results []Result
	var violations []error
	for _, kind := range kinds {
		for _, c := range contentions {
			if err := ctx.Err(); err != nil {
				return results, err
			}
			l, err := New(kind, cfg.Accounts, cfg.InitialBalance)
			if err != nil {
				return results, err
			}

			run := cfg
			run.Contention = c
			res, err := Benchmark(ctx, run, l)
			if err != nil && !errors.Is(err, ErrNotConserved) {
				return results, err
			}
			if err != nil {
				violations = append(violations, err)
			}
			results = append(results, res)
			if report != nil {
				report(res)
			}
		}
	}
	return results, errors.Join(violations...)
}
