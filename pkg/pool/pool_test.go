package pool

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParallelize(t *testing.T) {
	p := NewPool(4)
	defer p.TearDown()

	results := p.Parallelize(100, func(i int) interface{} { return i * i })
	require.Len(t, results, 100)
	for i, r := range results {
		assert.Equal(t, i*i, r)
	}
}

func TestParallelizeNilPool(t *testing.T) {
	var p *Pool
	order := make([]int, 0, 10)
	results := p.Parallelize(10, func(i int) interface{} {
		order = append(order, i)
		return i
	})
	require.Len(t, results, 10)
	for i := range order {
		assert.Equal(t, i, order[i], "nil pool must run in index order")
	}
	assert.Equal(t, 1, p.WorkerCount())
}

func TestParallelizeMoreWorkThanWorkers(t *testing.T) {
	p := NewPool(2)
	defer p.TearDown()

	var calls int64
	p.Parallelize(64, func(i int) interface{} {
		atomic.AddInt64(&calls, 1)
		return nil
	})
	assert.Equal(t, int64(64), calls)
}

func TestParallelizeZero(t *testing.T) {
	p := NewPool(1)
	defer p.TearDown()
	assert.Empty(t, p.Parallelize(0, func(i int) interface{} { return i }))
}
