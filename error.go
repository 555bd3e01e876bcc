package ledger

import (
	"errors"
	"strconv"
)

// AccountError reports an account index outside the ledger's pool.
type AccountError struct {
	Index    int
	Accounts int
}

func (e AccountError) Error() string {
	return "Account out of range: " + strconv.Itoa(e.Index) + " (pool of " + strconv.Itoa(e.Accounts) + ")"
}

var (
	ErrNegativeAmount = errors.New("negative transfer amount")
	// ErrNotConserved means money was created or destroyed during a run.
	ErrNotConserved = errors.New("total balance not conserved")
)
