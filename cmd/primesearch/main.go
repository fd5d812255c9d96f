// Command primesearch finds all prime numbers in a range by splitting it
// into bulks and submitting one search action per bulk to an elastic
// worker pool. The pool grows on its own while the backlog builds up.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/jirevwe/elastiq/pool"
)

type searchRange struct {
	min, max int
}

func isPrime(value int) bool {
	if value < 2 {
		return false
	}
	if value == 2 {
		return true
	}
	if value%2 == 0 {
		return false
	}
	for divider := 3; divider*divider <= value; divider += 2 {
		if value%divider == 0 {
			return false
		}
	}
	return true
}

func primesIn(r searchRange) []int {
	var primes []int
	for value := r.min; value <= r.max; value++ {
		if isPrime(value) {
			primes = append(primes, value)
		}
	}
	return primes
}

func writePrimes(primes []int, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	w := bufio.NewWriter(file)
	for _, prime := range primes {
		if _, err = fmt.Fprintf(w, "%d\n", prime); err != nil {
			return err
		}
	}
	return w.Flush()
}

func main() {
	start := flag.Int("start", 2, "start of the range to search for primes")
	end := flag.Int("end", 1000000, "end of the range to search for primes")
	out := flag.String("out", "primes.txt", "output file the primes are written to")
	bulkSize := flag.Int("bulk", 5000, "number of values tested by a single action")
	minWorkers := flag.Int("min-workers", 3, "number of workers the pool starts with")
	maxWorkers := flag.Int("max-workers", 10, "number of workers the pool may grow to")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	p, err := pool.New(pool.Config{
		MinWorkers: *minWorkers,
		MaxWorkers: *maxWorkers,
		Logger:     logger,
	})
	if err != nil {
		logger.Error(err.Error())
		os.Exit(1)
	}

	started := time.Now()

	var (
		mu      sync.Mutex
		primes  []int
		wg      sync.WaitGroup
		batches int
	)

	for lo := *start; lo <= *end; lo += *bulkSize {
		hi := lo + *bulkSize - 1
		if hi > *end {
			hi = *end
		}
		r := searchRange{min: lo, max: hi}
		batches++
		wg.Add(1)

		if err = p.Submit(func() {
			defer wg.Done()
			found := primesIn(r)
			mu.Lock()
			primes = append(primes, found...)
			mu.Unlock()
		}); err != nil {
			logger.Error(err.Error())
			wg.Done()
		}
	}

	wg.Wait()
	if err = p.Stop(); err != nil {
		logger.Error(err.Error())
	}

	sort.Ints(primes)
	if err = writePrimes(primes, *out); err != nil {
		logger.Error(err.Error())
		os.Exit(1)
	}

	fmt.Printf("Overall number of prime numbers found: %d\n", len(primes))
	fmt.Printf("Overall search duration:               %s\n", time.Since(started).Round(time.Millisecond))
	fmt.Printf("Batch count:                           %d\n", batches)
	fmt.Printf("Final worker count:                    %d\n", p.WorkerCount())
}
