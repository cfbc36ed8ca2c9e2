package bytespool

import (
	"math/bits"
	"sync"
)

// size classes are powers of two from 1<<minShift up to 1<<maxShift.
const (
	minShift = 6  // 64B
	maxShift = 17 // 128KB
)

var pools [maxShift - minShift + 1]sync.Pool

func init() {
	for i := range pools {
		sz := 1 << (uint(i) + minShift)
		pools[i].New = func() interface{} {
			return make([]byte, sz)
		}
	}
}

func classOf(sz int) int {
	shift := bits.Len(uint(sz - 1))
	if shift < minShift {
		shift = minShift
	}
	return shift - minShift
}

// Alloc alloc sz bytes from the pool.
func Alloc(sz int) []byte {
	if sz <= 0 {
		return nil
	}
	if sz > 1<<maxShift {
		return make([]byte, sz)
	}
	return pools[classOf(sz)].Get().([]byte)[:sz]
}

// Free return bytes to the pool.
func Free(b []byte) {
	sz := cap(b)
	if sz < 1<<minShift || sz > 1<<maxShift {
		return
	}
	if sz != 1<<uint(classOf(sz)+minShift) {
		// not one of ours
		return
	}
	pools[classOf(sz)].Put(b[:sz])
}
