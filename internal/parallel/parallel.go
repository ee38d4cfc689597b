// Package parallel splits element loops of operator kernels across goroutines.
package parallel

import (
	"runtime"
	"sync"
)

// Config controls how a loop is split.
type Config struct {
	Workers  int // Upper bound on goroutines per loop; 1 or less runs inline.
	MinChunk int // Minimum elements handed to one goroutine.
}

// DefaultConfig uses one worker per CPU and chunks large enough to amortize
// goroutine start-up.
func DefaultConfig() Config {
	return Config{
		Workers:  runtime.NumCPU(),
		MinChunk: 16 * 1024,
	}
}

// Serial runs every loop on the calling goroutine.
func Serial() Config {
	return Config{Workers: 1}
}

// chunk returns the range size for n elements, or n when the loop should
// run inline.
func (c Config) chunk(n int) int {
	if c.Workers <= 1 || n < 2*max(c.MinChunk, 1) {
		return n
	}
	return max((n+c.Workers-1)/c.Workers, c.MinChunk)
}

// For calls f on disjoint ranges [start, end) covering [0, n) and returns
// once every call has finished.
func For(cfg Config, n int, f func(start, end int)) {
	if n <= 0 {
		return
	}
	size := cfg.chunk(n)
	if size >= n {
		f(0, n)
		return
	}

	var wg sync.WaitGroup
	for start := 0; start < n; start += size {
		end := min(start+size, n)
		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			f(s, e)
		}(start, end)
	}
	wg.Wait()
}
