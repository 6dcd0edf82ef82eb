package parallel

import (
	"runtime"
	"sync/atomic"
	"testing"
)

func TestParallelizeNCoversRange(t *testing.T) {
	for _, nJobs := range []int{-1, 0, 1, 3, 64} {
		const items = 37
		var hits [items]int32

		ParallelizeN(items, nJobs, func(start, end int) {
			for i := start; i < end; i++ {
				atomic.AddInt32(&hits[i], 1)
			}
		})

		for i, h := range hits {
			if h != 1 {
				t.Fatalf("nJobs=%d: item %d visited %d times", nJobs, i, h)
			}
		}
	}
}

func TestParallelizeZeroItems(t *testing.T) {
	called := false
	Parallelize(0, func(start, end int) { called = true })
	if called {
		t.Error("fn should not run for zero items")
	}
}

func TestWorkers(t *testing.T) {
	if Workers(-1) != runtime.NumCPU() {
		t.Errorf("Workers(-1) = %d, want %d", Workers(-1), runtime.NumCPU())
	}
	if Workers(4) != 4 {
		t.Errorf("Workers(4) = %d, want 4", Workers(4))
	}
}
