package ledger

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	bolt "go.etcd.io/bbolt"
)

var runsBucket = []byte("runs")

// History stores benchmark results across invocations in a bolt file, keyed
// by run ID. Only results are kept; ledger balances never outlive a run.
type History struct {
	db *bolt.DB
}

func OpenHistory(path string) (*History, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open history %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(runsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create runs bucket: %w", err)
	}
	return &History{db: db}, nil
}

// Record stores results in one write transaction.
func (h *History) Record(results ...Result) error {
	return h.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(runsBucket)
		for _, r := range results {
			if r.RunID == "" {
				return fmt.Errorf("result for %s has no run id", r.Engine)
			}
			v, err := json.Marshal(r)
			if err != nil {
				return err
			}
			if err := b.Put([]byte(r.RunID), v); err != nil {
				return fmt.Errorf("store run %s: %w", r.RunID, err)
			}
		}
		return nil
	})
}

// Runs returns every stored result, oldest first.
func (h *History) Runs() ([]Result, error) {
	var results []Result
	err := h.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(runsBucket).ForEach(func(k, v []byte) error {
			var r Result
			if err := json.Unmarshal(v, &r); err != nil {
				return fmt.Errorf("decode run %s: %w", k, err)
			}
			results = append(results, r)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(results, func(i, j int) bool {
		if !results[i].StartedAt.Equal(results[j].StartedAt) {
			return results[i].StartedAt.Before(results[j].StartedAt)
		}
		return results[i].RunID < results[j].RunID
	})
	return results, nil
}

func (h *History) Close() error {
	return h.db.Close()
}
