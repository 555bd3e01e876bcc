// Package ledger benchmarks concurrency-control disciplines over a fixed pool
// of accounts. Every engine moves money between accounts with Transfer and
// sums the pool with TotalBalance; none of them may create or destroy money or
// leave a balance negative.
package ledger

import (
	"context"
	"fmt"
	"strings"
)

type Ledger interface {
	// Transfer moves amount from one account to another. It reports false
	// without an error when the source account cannot cover the amount.
	// A non-nil error means nothing moved.
	Transfer(ctx context.Context, from, to int, amount int64) (bool, error)
	// TotalBalance sums every account under the engine's consistency
	// guarantee.
	TotalBalance(ctx context.Context) (int64, error)
	Name() string
}

// AbortCounter is implemented by engines that retry optimistic attempts.
type AbortCounter interface {
	Aborts() uint64
}

type Kind int

const (
	KindGlobalLock Kind = iota
	KindTwoPhase
	KindSTM
	KindTL2
)

var kindNames = map[Kind]string{
	KindGlobalLock: "global",
	KindTwoPhase:   "2pl",
	KindSTM:        "stm",
	KindTL2:        "tl2",
}

// Kinds returns every engine in report order.
func Kinds() []Kind {
	return []Kind{KindGlobalLock, KindTwoPhase, KindSTM, KindTL2}
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "Kind(" + fmt.Sprint(int(k)) + ")"
}

func ParseKind(s string) (Kind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for k, name := range kindNames {
		if name == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown engine %q", s)
}

// ParseKinds parses a comma separated engine list. An empty list means all
// engines.
func ParseKinds(s string) ([]Kind, error) {
	if strings.TrimSpace(s) == "" {
		return Kinds(), nil
	}
	var kinds []Kind
	seen := make(map[Kind]bool)
	for _, part := range strings.Split(s, ",") {
		k, err := ParseKind(part)
		if err != nil {
			return nil, err
		}
		if !seen[k] {
			seen[k] = true
			kinds = append(kinds, k)
		}
	}
	return kinds, nil
}

// New builds a ledger of the given kind with accounts accounts, each holding
// initial.
func New(kind Kind, accounts int, initial int64) (Ledger, error) {
	if accounts < 1 {
		return nil, fmt.Errorf("ledger needs at least one account, got %d", accounts)
	}
	if initial < 0 {
		return nil, fmt.Errorf("negative initial balance %d", initial)
	}
	switch kind {
	case KindGlobalLock:
		return NewGlobalLock(accounts, initial), nil
	case KindTwoPhase:
		return NewTwoPhase(accounts, initial), nil
	case KindSTM:
		return NewSTM(accounts, initial), nil
	case KindTL2:
		return NewTL2(accounts, initial), nil
	}
	return nil, fmt.Errorf("unknown engine %v", kind)
}

// checkTransfer validates the arguments shared by every engine.
func checkTransfer(accounts, from, to int, amount int64) error {
	if from < 0 || from >= accounts {
		return AccountError{Index: from, Accounts: accounts}
	}
	if to < 0 || to >= accounts {
		return AccountError{Index: to, Accounts: accounts}
	}
	if amount < 0 {
		return ErrNegativeAmount
	}
	return nil
}
