// Package pool provides a reusable worker pool for index shaped work.
//
// The oblivious scans in the tally engine touch every option of a ballot
// regardless of its content; the per index work items are independent, so
// they parallelize cleanly.
package pool

import (
	"runtime"
	"sync"
)

// job evaluates f at a single index and stores the result.
type job struct {
	i       int
	f       func(int) interface{}
	results []interface{}
	wg      *sync.WaitGroup
}

// Pool is a fixed set of worker goroutines.
//
// Functions taking a *Pool accept a nil receiver and do the equivalent work
// on the calling goroutine. Sequential callers and tests that need a
// deterministic operation order pass nil.
type Pool struct {
	jobs        chan job
	workerCount int
}

// NewPool creates a pool with count workers, or one per available CPU when
// count <= 0.
func NewPool(count int) *Pool {
	if count <= 0 {
		count = runtime.NumCPU()
	}
	p := &Pool{
		jobs:        make(chan job),
		workerCount: count,
	}
	for i := 0; i < count; i++ {
		go worker(p.jobs)
	}
	return p
}

func worker(jobs <-chan job) {
	for j := range jobs {
		j.results[j.i] = j.f(j.i)
		j.wg.Done()
	}
}

// TearDown releases the workers. The pool must not be used afterwards.
func (p *Pool) TearDown() {
	close(p.jobs)
}

// WorkerCount returns the number of workers backing the pool, or 1 for the
// nil pool.
func (p *Pool) WorkerCount() int {
	if p == nil {
		return 1
	}
	return p.workerCount
}

// Parallelize evaluates f at every index in [0, count), returning
// [f(0), f(1), ..., f(count-1)].
//
// Each worker writes only its own result slot; f must tolerate concurrent
// invocation at distinct indices.
func (p *Pool) Parallelize(count int, f func(int) interface{}) []interface{} {
	results := make([]interface{}, count)
	if p == nil {
		for i := range results {
			results[i] = f(i)
		}
		return results
	}
	var wg sync.WaitGroup
	wg.Add(count)
	for i := 0; i < count; i++ {
		p.jobs <- job{i: i, f: f, results: results, wg: &wg}
	}
	wg.Wait()
	return results
}
