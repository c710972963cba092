package bytespool

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAllocLengths(t *testing.T) {
	for _, size := range []int{0, 1, MinPoolSize - 1, MinPoolSize, 3000, 8192, MaxPoolSize, MaxPoolSize + 1} {
		b := Alloc(size)
		require.Len(t, b, size)
		Free(b)
	}
}

func TestAllocUsesTierCapacity(t *testing.T) {
	b := Alloc(3000)
	require.Equal(t, 4096, cap(b))
	Free(b)

	b = Alloc(MaxPoolSize + 1)
	require.Equal(t, MaxPoolSize+1, cap(b))
}

func TestFreeIgnoresSmallSlices(t *testing.T) {
	require.NotPanics(t, func() {
		Free(make([]byte, 10))
		Free(nil)
	})
}
