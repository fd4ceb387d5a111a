package rusticdb

import (
	"sync"

	boom "github.com/tylertreat/BoomFilters"
)

// TableStats tracks approximate statistics for one table: a count of
// tuples inserted minus tuples deleted, a HyperLogLog estimate of the
// number of distinct tuples ever inserted, and a Count-Min sketch of
// tuple frequencies.  The heap file updates it on every successful
// page-level insert and delete; readers get cheap cardinality and
// frequency estimates without scanning.  Aborting a transaction does
// not undo its updates, so the inserts and deletes of aborted
// transactions stay counted.
//
// The sketches are insert-only, so deletes adjust the count but not the
// estimates.
type TableStats struct {
	mu       sync.Mutex
	ntups    int64
	distinct *boom.HyperLogLog
	freq     *boom.CountMinSketch
}

func newTableStats() *TableStats {
	hll, err := boom.NewDefaultHyperLogLog(0.01)
	if err != nil {
		// only fails for an out-of-range error bound
		panic(err)
	}
	return &TableStats{
		distinct: hll,
		freq:     boom.NewCountMinSketch(0.001, 0.99),
	}
}

func (s *TableStats) recordInsert(t *Tuple) {
	key := t.tupleKey()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ntups++
	s.distinct.Add(key)
	s.freq.Add(key)
}

func (s *TableStats) recordDelete(t *Tuple) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ntups--
}

// TupleCount returns the number of tuples inserted minus the number
// deleted through this heap file in this process, including those of
// transactions that later aborted.
func (s *TableStats) TupleCount() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ntups
}

// DistinctEstimate returns the approximate number of distinct tuples
// inserted.
func (s *TableStats) DistinctEstimate() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.distinct.Count()
}

// FrequencyEstimate returns the approximate number of times a tuple
// with the same field values has been inserted.
func (s *TableStats) FrequencyEstimate(t *Tuple) uint64 {
	key := t.tupleKey()
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.freq.Count(key)
}
