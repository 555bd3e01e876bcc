package ledger

import (
	"bytes"
	"encoding/csv"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleResult(engine string, started time.Time) Result {
	return Result{
		RunID:        uuid.NewString(),
		StartedAt:    started,
		Engine:       engine,
		Threads:      4,
		Contention:   High,
		Accounts:     1000,
		Duration:     2 * time.Second,
		Transfers:    5000,
		Succeeded:    4900,
		Insufficient: 100,
		Aborts:       12,
		InitialTotal: 1000000,
		FinalTotal:   1000000,
		Expected:     1000000,
		Throughput:   2500,
	}
}

func TestHistoryRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	later := sampleResult("TL2Bank", base.Add(time.Minute))
	earlier := sampleResult("TwoPhaseLockingBank", base)

	h, err := OpenHistory(path)
	require.NoError(t, err)
	require.NoError(t, h.Record(later, earlier))
	require.NoError(t, h.Close())

	h, err = OpenHistory(path)
	require.NoError(t, err)
	defer h.Close()

	runs, err := h.Runs()
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, earlier.RunID, runs[0].RunID)
	assert.Equal(t, later.RunID, runs[1].RunID)
	assert.Equal(t, High, runs[1].Contention)
	assert.Equal(t, later.Duration, runs[1].Duration)
	assert.True(t, runs[1].StartedAt.Equal(later.StartedAt))
	assert.True(t, runs[1].Conserved())
}

func TestHistoryRecordsManyRuns(t *testing.T) {
	h, err := OpenHistory(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	defer h.Close()

	// Enough runs to split the bucket over several pages.
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	var want []string
	for batch := 0; batch < 5; batch++ {
		var results []Result
		for i := 0; i < 100; i++ {
			r := sampleResult("TL2Bank", base.Add(time.Duration(batch*100+i)*time.Second))
			results = append(results, r)
			want = append(want, r.RunID)
		}
		require.NoError(t, h.Record(results...))
	}

	runs, err := h.Runs()
	require.NoError(t, err)
	require.Len(t, runs, len(want))
	for i, r := range runs {
		assert.Equal(t, want[i], r.RunID)
	}
}

func TestHistoryRejectsMissingRunID(t *testing.T) {
	h, err := OpenHistory(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	defer h.Close()

	r := sampleResult("TL2Bank", time.Now())
	r.RunID = ""
	assert.Error(t, h.Record(r))

	runs, err := h.Runs()
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestWriteCSV(t *testing.T) {
	r := sampleResult("SingleGlobalLockBank", time.Now())
	r.FinalTotal--

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, []Result{r}, true))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, csvHeader, rows[0])
	assert.Equal(t, []string{
		r.RunID, "SingleGlobalLockBank", "4", "High", "1000", "2.000000",
		"5000", "4900", "100", "12", "2500.00", "false",
	}, rows[1])

	buf.Reset()
	require.NoError(t, WriteCSV(&buf, []Result{r}, false))
	rows, err = csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}
