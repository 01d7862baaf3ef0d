package parallel

import (
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Threads resolves a thread setting: anything below 1 means one worker per
// available CPU.
func Threads(threads int) int {
	if threads < 1 {
		return runtime.GOMAXPROCS(0)
	}
	return threads
}

type workerPanic struct {
	value interface{}
}

func (p *workerPanic) Error() string {
	return fmt.Sprintf("worker panic: %v", p.value)
}

// Run calls fn for every index in [0, n) on at most threads goroutines and
// returns once all of them are done. A panic raised by fn is re-raised on
// the calling goroutine.
func Run(threads, n int, fn func(i int)) {
	if n <= 0 {
		return
	}

	threads = Threads(threads)
	if threads == 1 || n == 1 {
		for i := 0; i < n; i++ {
			fn(i)
		}
		return
	}

	var eg errgroup.Group
	eg.SetLimit(threads)
	for i := 0; i < n; i++ {
		i := i
		eg.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = &workerPanic{value: r}
				}
			}()

			fn(i)
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		if p, ok := err.(*workerPanic); ok {
			panic(p.value)
		}
		panic(err)
	}
}

// MapSum evaluates fn on every index in parallel and adds the results in
// index order, so the total does not depend on scheduling.
func MapSum(threads, n int, fn func(i int) float64) float64 {
	results := make([]float64, n)
	Run(threads, n, func(i int) {
		results[i] = fn(i)
	})

	var sum float64
	for _, v := range results {
		sum += v
	}
	return sum
}
