package ledger

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/algorand/go-deadlock"
)

// detect picks the mutex NewTwoPhase hands out. go-deadlock's own options
// stay untouched until detection is asked for, so other users of the
// library in the same program keep their settings.
var detect atomic.Bool

// EnableDeadlockDetection makes TwoPhase ledgers built from now on use
// go-deadlock mutexes, which report any lock held or waited on longer than
// timeout and any pair of locks taken in inconsistent order. onDeadlock
// replaces the default handler, which exits the process. The timeout and
// handler are go-deadlock's process-wide options.
func EnableDeadlockDetection(timeout time.Duration, onDeadlock func()) {
	deadlock.Opts.DeadlockTimeout = timeout
	if onDeadlock != nil {
		deadlock.Opts.OnPotentialDeadlock = onDeadlock
	}
	detect.Store(true)
}

// DisableDeadlockDetection makes later TwoPhase ledgers use plain mutexes.
func DisableDeadlockDetection() {
	detect.Store(false)
}

func newAccountMutex() sync.Locker {
	if detect.Load() {
		return &deadlock.Mutex{}
	}
	return &sync.Mutex{}
}

type lockedAccount struct {
	mu      sync.Locker
	balance int64
}

// TwoPhase locks only the two accounts a transfer touches. Locks are always
// taken in ascending index order, by transfers and by TotalBalance alike;
// that single order is what rules out circular waits.
type TwoPhase struct {
	accounts []lockedAccount
}

func NewTwoPhase(accounts int, initial int64) *TwoPhase {
	t := &TwoPhase{accounts: make([]lockedAccount, accounts)}
	for i := range t.accounts {
		t.accounts[i].mu = newAccountMutex()
		t.accounts[i].balance = initial
	}
	return t
}

func (t *TwoPhase) Name() string {
	return "TwoPhaseLockingBank"
}

func (t *TwoPhase) Transfer(_ context.Context, from, to int, amount int64) (bool, error) {
	if err := checkTransfer(len(t.accounts), from, to, amount); err != nil {
		return false, err
	}
	if from == to {
		return true, nil
	}

	lo, hi := from, to
	if lo > hi {
		lo, hi = hi, lo
	}

	// growing phase
	t.accounts[lo].mu.Lock()
	t.accounts[hi].mu.Lock()

	ok := false
	if t.accounts[from].balance >= amount {
		t.accounts[from].balance -= amount
		t.accounts[to].balance += amount
		ok = true
	}

	// shrinking phase
	t.accounts[hi].mu.Unlock()
	t.accounts[lo].mu.Unlock()
	return ok, nil
}

func (t *TwoPhase) TotalBalance(_ context.Context) (int64, error) {
	for i := range t.accounts {
		t.accounts[i].mu.Lock()
	}

	var total int64
	for i := range t.accounts {
		total += t.accounts[i].balance
	}

	for i := len(t.accounts) - 1; i >= 0; i-- {
		t.accounts[i].mu.Unlock()
	}
	return total, nil
}
