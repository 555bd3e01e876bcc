package ledger

import (
	"context"
	"sync"
)

// GlobalLock serializes every operation behind one mutex. It is the baseline
// the other engines are measured against.
type GlobalLock struct {
	mu       sync.Mutex
	balances []int64
}

func NewGlobalLock(accounts int, initial int64) *GlobalLock {
	balances := make([]int64, accounts)
	for i := range balances {
		balances[i] = initial
	}
	return &GlobalLock{balances: balances}
}

func (g *GlobalLock) Name() string {
	return "SingleGlobalLockBank"
}

func (g *GlobalLock) Transfer(_ context.Context, from, to int, amount int64) (bool, error) {
	if err := checkTransfer(len(g.balances), from, to, amount); err != nil {
		return false, err
	}
	if from == to {
		return true, nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.balances[from] < amount {
		return false, nil
	}
	g.balances[from] -= amount
	g.balances[to] += amount
	return true, nil
}

// TotalBalance must hold the same lock as Transfer or it could sum a
// half-applied transfer.
func (g *GlobalLock) TotalBalance(_ context.Context) (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	var total int64
	for _, b := range g.balances {
		total += b
	}
	return total, nil
}
