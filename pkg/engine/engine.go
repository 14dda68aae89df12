// Package engine supplies the execution capabilities the binning layer is
// parameterized over: a shard-parallel map and a pairwise reduce. The
// in-process implementation here runs shards on goroutines; the reduce
// accepts any associative, commutative merge function, so a linear fold and
// a balanced tree fold give the same result.
package engine

import (
	"strconv"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// ParallelMap runs fn once per shard, each on its own goroutine, and returns
// the results in shard order. Shards share no state, so no synchronization
// beyond the final join is needed.
func ParallelMap[S, R any](shards []S, fn func(S) R) []R {
	results := make([]R, len(shards))
	var wg sync.WaitGroup
	for i, shard := range shards {
		wg.Add(1)
		go func(i int, shard S) {
			defer wg.Done()
			results[i] = fn(shard)
		}(i, shard)
	}
	wg.Wait()
	return results
}

// Reduce folds results left to right with merge. An empty input yields the
// zero value, which for map-typed results is the merge identity.
func Reduce[R any](results []R, merge func(a, b R) (R, error)) (R, error) {
	var acc R
	if len(results) == 0 {
		return acc, nil
	}
	acc = results[0]
	for _, r := range results[1:] {
		var err error
		acc, err = merge(acc, r)
		if err != nil {
			var zero R
			return zero, err
		}
	}
	return acc, nil
}

// TreeReduce folds results as a balanced binary tree. For an associative,
// commutative merge the outcome matches Reduce within the merge's error
// bound.
func TreeReduce[R any](results []R, merge func(a, b R) (R, error)) (R, error) {
	switch len(results) {
	case 0:
		var zero R
		return zero, nil
	case 1:
		return results[0], nil
	}
	mid := len(results) / 2
	left, err := TreeReduce(results[:mid], merge)
	if err != nil {
		var zero R
		return zero, err
	}
	right, err := TreeReduce(results[mid:], merge)
	if err != nil {
		var zero R
		return zero, err
	}
	return merge(left, right)
}

// PartitionByKey splits items into shardCount shards by the xxhash of their
// key. The assignment is deterministic, so repeated runs over the same data
// produce the same shards.
func PartitionByKey[T any](items []T, key func(T) string, shardCount int) [][]T {
	if shardCount < 1 {
		shardCount = 1
	}
	shards := make([][]T, shardCount)
	for _, item := range items {
		i := int(xxhash.Sum64String(key(item)) % uint64(shardCount))
		shards[i] = append(shards[i], item)
	}
	return shards
}

// PartitionN splits items into shardCount contiguous shards of near-equal
// size, for callers without a meaningful key.
func PartitionN[T any](items []T, shardCount int) [][]T {
	if shardCount < 1 {
		shardCount = 1
	}
	shards := make([][]T, 0, shardCount)
	per := (len(items) + shardCount - 1) / shardCount
	if per == 0 {
		per = 1
	}
	for start := 0; start < len(items); start += per {
		end := start + per
		if end > len(items) {
			end = len(items)
		}
		shards = append(shards, items[start:end])
	}
	return shards
}

// KeyFromIndex derives a stable string key from a row ordinal, for datasets
// whose rows carry no natural key.
func KeyFromIndex(i int) string {
	return strconv.Itoa(i)
}
