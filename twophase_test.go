package ledger

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/algorand/go-deadlock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// With detection on, opposing transfers and full-pool sums must never trip
// the detector: every path takes locks lowest index first.
func TestTwoPhaseLockOrderUnderDetection(t *testing.T) {
	var reported atomic.Bool
	EnableDeadlockDetection(10*time.Second, func() { reported.Store(true) })
	t.Cleanup(DisableDeadlockDetection)

	ctx := context.Background()
	l := NewTwoPhase(16, 100)

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 2000; i++ {
				from, to := 3, 11
				if (w+i)%2 == 1 {
					from, to = to, from
				}
				_, err := l.Transfer(ctx, from, to, 7)
				if !assert.NoError(t, err) {
					return
				}
			}
		}(w)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			total, err := l.TotalBalance(ctx)
			if !assert.NoError(t, err) {
				return
			}
			assert.Equal(t, int64(1600), total)
		}
	}()
	wg.Wait()

	assert.False(t, reported.Load(), "lock order violation reported")
	total, err := l.TotalBalance(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1600), total)
}

func TestTwoPhaseReleasesLocks(t *testing.T) {
	ctx := context.Background()
	l := NewTwoPhase(3, 10)

	ok, err := l.Transfer(ctx, 2, 0, 50)
	require.NoError(t, err)
	require.False(t, ok)
	ok, err = l.Transfer(ctx, 2, 0, 10)
	require.NoError(t, err)
	require.True(t, ok)

	// TotalBalance needs every lock, so it only returns if both transfers
	// let go of theirs.
	done := make(chan int64)
	go func() {
		total, _ := l.TotalBalance(ctx)
		done <- total
	}()
	select {
	case total := <-done:
		assert.Equal(t, int64(30), total)
	case <-time.After(5 * time.Second):
		t.Fatal("a transfer left an account locked")
	}
}

func TestTwoPhaseDetectionOnlyAffectsNewLedgers(t *testing.T) {
	plain := NewTwoPhase(2, 10)
	assert.IsType(t, &sync.Mutex{}, plain.accounts[0].mu)

	EnableDeadlockDetection(time.Minute, func() {})
	t.Cleanup(DisableDeadlockDetection)
	watched := NewTwoPhase(2, 10)
	assert.IsType(t, &deadlock.Mutex{}, watched.accounts[0].mu)
	assert.IsType(t, &sync.Mutex{}, plain.accounts[0].mu)
	assert.False(t, deadlock.Opts.Disable, "go-deadlock options are left enabled")

	DisableDeadlockDetection()
	assert.IsType(t, &sync.Mutex{}, NewTwoPhase(2, 10).accounts[1].mu)
}
