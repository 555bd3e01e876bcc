package ledger

import (
	"fmt"
	"math/rand"
	"strings"
)

type Contention int

const (
	// Low draws both accounts uniformly from the whole pool.
	Low Contention = iota
	// High draws most transfers from a small hot set of accounts.
	High
)

func (c Contention) String() string {
	switch c {
	case Low:
		return "Low"
	case High:
		return "High"
	}
	return fmt.Sprintf("Contention(%d)", int(c))
}

func ParseContention(s string) (Contention, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low", "uniform":
		return Low, nil
	case "high", "hot":
		return High, nil
	}
	return 0, fmt.Errorf("unknown contention %q", s)
}

// Picker chooses transfer endpoints for one worker. It is not safe for
// concurrent use; every worker owns one.
type Picker struct {
	rng        *rand.Rand
	accounts   int
	hot        int
	hotPercent int
	contention Contention
}

// NewPicker returns a picker seeded with seed. hot is clamped to [2, accounts]
// and hotProbability to [0, 1].
func NewPicker(seed int64, accounts, hot int, hotProbability float64, contention Contention) *Picker {
	if hot > accounts {
		hot = accounts
	}
	if hot < 2 {
		hot = 2
	}
	if hotProbability < 0 {
		hotProbability = 0
	}
	if hotProbability > 1 {
		hotProbability = 1
	}
	return &Picker{
		rng:        rand.New(rand.NewSource(seed)),
		accounts:   accounts,
		hot:        hot,
		hotPercent: int(hotProbability*100 + 0.5),
		contention: contention,
	}
}

// Pick returns two distinct account indexes. The pool must hold at least two
// accounts.
func (p *Picker) Pick() (from, to int) {
	n := p.accounts
	if p.contention == High && p.rng.Intn(100) < p.hotPercent {
		n = p.hot
	}

	from = p.rng.Intn(n)
	to = p.rng.Intn(n)
	for to == from {
		to = p.rng.Intn(n)
	}
	return from, to
}

func (c Contention) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *Contention) UnmarshalText(text []byte) error {
	parsed, err := ParseContention(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
