package ledger

import (
	"runtime"

	"github.com/tidwall/btree"
)

type outcome int

const (
	committed outcome = iota
	// aborted means the attempt saw a newer commit or lost a lock race and
	// has to start over from begin.
	aborted
)

type readEntry struct {
	index   int
	version uint64
}

// tl2Txn is the context of one TL2 attempt. It belongs to a single goroutine
// and is thrown away after commit or abort.
type tl2Txn struct {
	ledger   *TL2
	snapshot uint64
	reads    []readEntry
	// writes is keyed by account index, so iteration is in lock order.
	writes btree.Map[int, int64]
	locked []int
}

func (t *tl2Txn) load(index int) (int64, outcome) {
	if v, ok := t.writes.Get(index); ok {
		return v, committed
	}

	acc := &t.ledger.accounts[index]
	var version uint64
	var balance int64
	for {
		version = acc.version.Load()
		balance = acc.balance.Load()
		if version&lockBit == 0 && version == acc.version.Load() {
			break
		}
		runtime.Gosched()
	}

	// A commit newer than our snapshot wrote this account; this attempt can
	// never validate.
	if version>>1 > t.snapshot {
		return 0, aborted
	}

	t.reads = append(t.reads, readEntry{index: index, version: version})
	return balance, committed
}

func (t *tl2Txn) store(index int, balance int64) {
	t.writes.Set(index, balance)
}

func (t *tl2Txn) commit() outcome {
	if t.writes.Len() == 0 {
		return committed
	}

	lockedAll := true
	t.writes.Scan(func(index int, _ int64) bool {
		if !t.ledger.accounts[index].tryLock() {
			lockedAll = false
			return false
		}
		t.locked = append(t.locked, index)
		return true
	})
	if !lockedAll {
		t.release()
		return aborted
	}

	for _, r := range t.reads {
		version := t.ledger.accounts[r.index].version.Load()
		if version&lockBit != 0 && !t.ownsLock(r.index) {
			t.release()
			return aborted
		}
		if version>>1 > t.snapshot {
			t.release()
			return aborted
		}
	}

	// Storing the new even version publishes the balance and drops the lock
	// in one write.
	newVersion := t.ledger.clock.Add(1) << 1
	t.writes.Scan(func(index int, balance int64) bool {
		acc := &t.ledger.accounts[index]
		acc.balance.Store(balance)
		acc.version.Store(newVersion)
		return true
	})
	t.locked = t.locked[:0]
	return committed
}

func (t *tl2Txn) ownsLock(index int) bool {
	_, ok := t.writes.Get(index)
	return ok
}

// release unlocks, in acquisition order, every account this attempt locked.
func (t *tl2Txn) release() {
	for _, index := range t.locked {
		t.ledger.accounts[index].unlock()
	}
	t.locked = t.locked[:0]
}
