// Package bytespool hands out byte slices from size-tiered pools.
package bytespool

import "sync"

// Pools start at MinPoolSize and double numPools-1 times. Requests above the
// largest tier are allocated directly and never pooled.
const (
	numPools    = 6
	sizeMulti   = 2
	MinPoolSize = 2048
	MaxPoolSize = MinPoolSize << (numPools - 1)
)

var (
	pools     [numPools]sync.Pool
	poolSizes [numPools]int
)

func init() {
	size := MinPoolSize
	for i := range numPools {
		n := size
		pools[i].New = func() any {
			b := make([]byte, n)
			return &b
		}
		poolSizes[i] = size
		size *= sizeMulti
	}
}

func tier(size int) int {
	for i, ps := range poolSizes {
		if size <= ps {
			return i
		}
	}
	return -1
}

// Alloc returns a slice of length size. Its capacity may be larger.
func Alloc(size int) []byte {
	if size < MinPoolSize {
		return make([]byte, size)
	}
	i := tier(size)
	if i < 0 {
		return make([]byte, size)
	}
	b := *pools[i].Get().(*[]byte)
	return b[:size]
}

// Free returns b to the tier matching its capacity. Slices that no tier
// fits are left to the garbage collector.
func Free(b []byte) {
	c := cap(b)
	if c < MinPoolSize || c > MaxPoolSize {
		return
	}
	for i := numPools - 1; i >= 0; i-- {
		if c >= poolSizes[i] {
			b = b[:poolSizes[i]]
			pools[i].Put(&b)
			return
		}
	}
}
