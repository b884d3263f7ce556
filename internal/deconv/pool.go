package deconv

import (
	"context"
	"sort"
	"sync"

	"github.com/524D/mzfeature/internal/lcms"
	"github.com/524D/mzfeature/internal/signif"
)

// SpectrumCache keeps the decoded spectra of a run with their significance
// testers. It is safe for concurrent use.
type SpectrumCache struct {
	run     lcms.Run
	binBits int

	mu      sync.Mutex
	entries map[int]*cacheEntry
}

type cacheEntry struct {
	spectrum *lcms.Spectrum
	tester   *signif.Tester
}

// NewSpectrumCache creates an empty cache for run
func NewSpectrumCache(run lcms.Run, binBits int) *SpectrumCache {
	return &SpectrumCache{
		run:     run,
		binBits: binBits,
		entries: make(map[int]*cacheEntry),
	}
}

// Run returns the run of the cache
func (c *SpectrumCache) Run() lcms.Run {
	return c.run
}

// Get returns the spectrum and tester of scanNum. Both are nil when the run
// has no spectrum with that scan number.
func (c *SpectrumCache) Get(scanNum int) (*lcms.Spectrum, *signif.Tester) {
	c.mu.Lock()
	e, ok := c.entries[scanNum]
	c.mu.Unlock()
	if ok {
		return e.spectrum, e.tester
	}
	e = &cacheEntry{spectrum: c.run.Spectrum(scanNum)}
	if e.spectrum != nil {
		e.tester = signif.NewTester(e.spectrum, c.binBits)
	}
	c.mu.Lock()
	if prev, ok := c.entries[scanNum]; ok {
		e = prev
	} else {
		c.entries[scanNum] = e
	}
	c.mu.Unlock()
	return e.spectrum, e.tester
}

// Run deconvolutes all MS1 spectra of the cache's run on a pool of workers.
// The result is ordered by scan number and mass. Cancellation of ctx is
// checked between spectra.
func (d *Deconvoluter) Run(ctx context.Context, cache *SpectrumCache, workers int) ([]Ms1Feature, error) {
	if workers < 1 {
		workers = 1
	}
	jobs := make(chan int, workers*2)
	parts := make([][]Ms1Feature, workers)

	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func(w int) {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case scanNum, ok := <-jobs:
					if !ok {
						return
					}
					s, tester := cache.Get(scanNum)
					if s == nil {
						continue
					}
					parts[w] = append(parts[w], d.Deconvolute(s, tester)...)
				}
			}
		}(w)
	}

feed:
	for _, scanNum := range cache.Run().Ms1ScanNums() {
		select {
		case <-ctx.Done():
			break feed
		case jobs <- scanNum:
		}
	}
	close(jobs)
	wg.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	n := 0
	for _, p := range parts {
		n += len(p)
	}
	all := make([]Ms1Feature, 0, n)
	for _, p := range parts {
		all = append(all, p...)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].ScanNum != all[j].ScanNum {
			return all[i].ScanNum < all[j].ScanNum
		}
		return all[i].Mass < all[j].Mass
	})
	return all, nil
}
