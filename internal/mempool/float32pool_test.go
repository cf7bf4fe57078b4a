package mempool

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBucket(t *testing.T) {
	assert.Equal(t, 1024, bucket(1))
	assert.Equal(t, 1024, bucket(1024))
	assert.Equal(t, 2048, bucket(1025))
	assert.Equal(t, 3*640*640, bucket(3*640*640))
}

func TestGetPut(t *testing.T) {
	assert.Nil(t, GetFloat32(0))

	buf := GetFloat32(1500)
	assert.Len(t, buf, 1500)
	assert.Equal(t, 2048, cap(buf))
	buf[0] = 42
	PutFloat32(buf)

	again := GetFloat32(2000)
	assert.Len(t, again, 2000)
	assert.GreaterOrEqual(t, cap(again), 2000)

	// Foreign buffers are ignored.
	PutFloat32(make([]float32, 10))
	PutFloat32(nil)
}

func TestConcurrentUse(t *testing.T) {
	var wg sync.WaitGroup
	for i := range 16 {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for range 100 {
				b := GetFloat32(n*100 + 1)
				b[len(b)-1] = 1
				PutFloat32(b)
			}
		}(i)
	}
	wg.Wait()
}
