package ledger

import (
	"context"

	"github.com/lukechampine/stm"
)

// STM runs each operation as one software transactional memory region. A
// region that conflicts with a concurrent commit is rolled back and re-run by
// the stm package; callers only ever see the committed result.
type STM struct {
	accounts []*stm.Var
}

func NewSTM(accounts int, initial int64) *STM {
	s := &STM{accounts: make([]*stm.Var, accounts)}
	for i := range s.accounts {
		s.accounts[i] = stm.NewVar(initial)
	}
	return s
}

func (s *STM) Name() string {
	return "SoftwareTransactionalMemoryBank"
}

func (s *STM) Transfer(_ context.Context, from, to int, amount int64) (bool, error) {
	if err := checkTransfer(len(s.accounts), from, to, amount); err != nil {
		return false, err
	}
	if from == to {
		return true, nil
	}

	var completed bool
	stm.Atomically(func(tx *stm.Tx) {
		// The region may run more than once; only the last run counts.
		completed = false
		balanceFrom := tx.Get(s.accounts[from]).(int64)
		if balanceFrom < amount {
			return
		}
		balanceTo := tx.Get(s.accounts[to]).(int64)
		tx.Set(s.accounts[from], balanceFrom-amount)
		tx.Set(s.accounts[to], balanceTo+amount)
		completed = true
	})
	return completed, nil
}

func (s *STM) TotalBalance(_ context.Context) (int64, error) {
	var total int64
	stm.Atomically(func(tx *stm.Tx) {
		total = 0
		for _, v := range s.accounts {
			total += tx.Get(v).(int64)
		}
	})
	return total, nil
}
