// Package parallel provides job-count bounded fan-out helpers.
//
// nJobs follows the scikit-learn convention: positive values are used as is,
// -1 means all logical cores, -2 all but one, and so on. Zero is treated as 1.
package parallel

import (
	"runtime"
	"sync"

	"github.com/klauspost/cpuid/v2"
)

// LogicalCores returns the number of logical cores reported by cpuid,
// falling back to runtime.NumCPU when detection fails.
func LogicalCores() int {
	if n := cpuid.CPU.LogicalCores; n > 0 {
		return n
	}
	return runtime.NumCPU()
}

// ResolveJobs converts an n_jobs value into a worker count of at least 1.
func ResolveJobs(nJobs int) int {
	switch {
	case nJobs > 0:
		return nJobs
	case nJobs == 0:
		return 1
	default:
		n := LogicalCores() + 1 + nJobs
		if n < 1 {
			return 1
		}
		return n
	}
}

// Parallelize divides items into contiguous ranges, one per worker, and runs
// fn on each range. Worker count is ResolveJobs(nJobs) capped at items.
func Parallelize(items, nJobs int, fn func(start, end int)) {
	if items <= 0 {
		return
	}

	numWorkers := ResolveJobs(nJobs)
	if numWorkers > items {
		numWorkers = items
	}
	if numWorkers == 1 {
		fn(0, items)
		return
	}

	// ceiling division
	chunkSize := (items + numWorkers - 1) / numWorkers

	var wg sync.WaitGroup
	for start := 0; start < items; start += chunkSize {
		end := start + chunkSize
		if end > items {
			end = items
		}
		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			fn(s, e)
		}(start, end)
	}
	wg.Wait()
}

// ParallelizeWithThreshold runs fn sequentially when items does not exceed
// threshold and falls back to Parallelize over all cores otherwise.
func ParallelizeWithThreshold(items int, threshold int, fn func(start, end int)) {
	if items <= threshold {
		fn(0, items)
		return
	}
	Parallelize(items, -1, fn)
}

// ForEach calls fn(i) for i in [0, n) on at most ResolveJobs(nJobs)
// goroutines. Every index is visited even when some fail; the error of the
// lowest failing index is returned so results are deterministic.
func ForEach(n, nJobs int, fn func(i int) error) error {
	if n <= 0 {
		return nil
	}
	errs := make([]error, n)

	workers := ResolveJobs(nJobs)
	if workers > n {
		workers = n
	}

	if workers == 1 {
		for i := 0; i < n; i++ {
			errs[i] = fn(i)
		}
	} else {
		next := make(chan int)
		var wg sync.WaitGroup
		for w := 0; w < workers; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := range next {
					errs[i] = fn(i)
				}
			}()
		}
		for i := 0; i < n; i++ {
			next <- i
		}
		close(next)
		wg.Wait()
	}

	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
