// Package mempool pools float32 buffers used for model input tensors.
package mempool

import "sync"

const bucketStep = 1024

// pools maps a bucket size to a *sync.Pool of []float32 with that capacity.
var pools sync.Map

// bucket rounds n up to the next multiple of bucketStep.
func bucket(n int) int {
	if n <= bucketStep {
		return bucketStep
	}
	return (n + bucketStep - 1) / bucketStep * bucketStep
}

func poolFor(size int) *sync.Pool {
	p, _ := pools.LoadOrStore(size, &sync.Pool{New: func() any {
		buf := make([]float32, size)
		return &buf
	}})
	return p.(*sync.Pool)
}

// GetFloat32 returns a buffer of length n. Contents are not zeroed.
func GetFloat32(n int) []float32 {
	if n <= 0 {
		return nil
	}
	size := bucket(n)
	buf := *poolFor(size).Get().(*[]float32)
	if cap(buf) < size {
		buf = make([]float32, size)
	}
	return buf[:n]
}

// PutFloat32 hands buf back to the pool. Buffers whose capacity is not a
// bucket size (i.e. not obtained from GetFloat32) are dropped.
func PutFloat32(buf []float32) {
	c := cap(buf)
	if c == 0 || c%bucketStep != 0 {
		return
	}
	buf = buf[:c]
	poolFor(c).Put(&buf)
}
