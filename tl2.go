package ledger

import (
	"context"
	"sync/atomic"
)

// Bit 0 of an account version is its write lock; the remaining bits are the
// global clock value of the commit that last wrote the account.
const lockBit uint64 = 1

type versionedAccount struct {
	version atomic.Uint64
	balance atomic.Int64
}

func (a *versionedAccount) tryLock() bool {
	v := a.version.Load()
	if v&lockBit != 0 {
		return false
	}
	return a.version.CompareAndSwap(v, v|lockBit)
}

// unlock drops the write lock without publishing a new version.
func (a *versionedAccount) unlock() {
	a.version.Store(a.version.Load() &^ lockBit)
}

// TL2 is an optimistic multi-version engine in the style of Transactional
// Locking II. Reads are unsynchronized and validated at commit; writes are
// buffered and published under short per-account locks taken in ascending
// index order. No caller ever sleeps on a kernel primitive.
type TL2 struct {
	accounts []versionedAccount
	clock    atomic.Uint64
	aborts   atomic.Uint64
}

func NewTL2(accounts int, initial int64) *TL2 {
	l := &TL2{accounts: make([]versionedAccount, accounts)}
	for i := range l.accounts {
		l.accounts[i].balance.Store(initial)
	}
	return l
}

func (l *TL2) Name() string {
	return "TL2Bank"
}

// Aborts returns the number of attempts that were abandoned and retried.
func (l *TL2) Aborts() uint64 {
	return l.aborts.Load()
}

func (l *TL2) Transfer(ctx context.Context, from, to int, amount int64) (bool, error) {
	if err := checkTransfer(len(l.accounts), from, to, amount); err != nil {
		return false, err
	}
	if from == to {
		return true, nil
	}

	for {
		if err := ctx.Err(); err != nil {
			return false, err
		}

		txn := l.begin()
		balanceFrom, out := txn.load(from)
		if out == aborted {
			l.aborts.Add(1)
			continue
		}
		balanceTo, out := txn.load(to)
		if out == aborted {
			l.aborts.Add(1)
			continue
		}

		if balanceFrom < amount {
			return false, nil
		}
		txn.store(from, balanceFrom-amount)
		txn.store(to, balanceTo+amount)
		if txn.commit() == committed {
			return true, nil
		}
		l.aborts.Add(1)
	}
}

// TotalBalance retries read-only transactions until one observes every
// account at a single snapshot.
func (l *TL2) TotalBalance(ctx context.Context) (int64, error) {
attempt:
	for {
		if err := ctx.Err(); err != nil {
			return 0, err
		}

		txn := l.begin()
		var total int64
		for i := range l.accounts {
			balance, out := txn.load(i)
			if out == aborted {
				l.aborts.Add(1)
				continue attempt
			}
			total += balance
		}
		if txn.commit() == committed {
			return total, nil
		}
	}
}

func (l *TL2) begin() *tl2Txn {
	return &tl2Txn{
		ledger:   l,
		snapshot: l.clock.Load(),
	}
}
