// pool.go: Buffer pooling for the one-shot helpers and streaming paths.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package kryptos

import (
	"sync"
)

var (
	// Buffer pools tiered by size to reduce GC pressure
	smallBufferPool = sync.Pool{
		New: func() interface{} {
			buf := make([]byte, 32) // nonces (12 bytes), keys (up to 32 bytes), tags
			return &buf
		},
	}

	mediumBufferPool = sync.Pool{
		New: func() interface{} {
			buf := make([]byte, 512)
			return &buf
		},
	}

	largeBufferPool = sync.Pool{
		New: func() interface{} {
			buf := make([]byte, 4*1024)
			return &buf
		},
	}

	// Pool for dynamic byte slices sized for common ciphertexts - uses pointers to avoid allocations
	dynamicBufferPool = sync.Pool{
		New: func() interface{} {
			buf := make([]byte, 0, 256)
			return &buf // Return pointer to avoid allocations (SA6002)
		},
	}
)

func init() {
	// Pre-warm pools to reduce first-access latency in production
	WarmupPools(4)
}

// getBuffer retrieves a buffer from the appropriate pool based on size
func getBuffer(size int) *[]byte {
	switch {
	case size <= 32:
		buf := smallBufferPool.Get().(*[]byte)
		*buf = (*buf)[:size]
		return buf
	case size <= 512:
		buf := mediumBufferPool.Get().(*[]byte)
		*buf = (*buf)[:size]
		return buf
	case size <= 4*1024:
		buf := largeBufferPool.Get().(*[]byte)
		*buf = (*buf)[:size]
		return buf
	default:
		// Very large sizes are allocated directly
		buf := make([]byte, size)
		return &buf
	}
}

// putBuffer wipes a buffer and returns it to the matching pool. Pooled
// buffers regularly carry keystream and key material, so the wipe is
// unconditional for non-empty buffers.
func putBuffer(buf *[]byte) {
	if buf == nil {
		return
	}

	if len(*buf) > 0 {
		Zeroize(*buf)
	}

	size := cap(*buf)
	switch {
	case size == 32:
		smallBufferPool.Put(buf)
	case size == 512:
		mediumBufferPool.Put(buf)
	case size == 4*1024:
		largeBufferPool.Put(buf)
		// Non-standard sizes are not returned to the pool
	}
}

// getDynamicBuffer retrieves a growable buffer with zero length
func getDynamicBuffer() []byte {
	buf := dynamicBufferPool.Get().(*[]byte)
	return (*buf)[:0]
}

// putDynamicBuffer wipes a dynamic buffer to capacity and returns it to the
// pool when its capacity is in the useful range.
func putDynamicBuffer(buf []byte) {
	bufCap := cap(buf)
	if bufCap == 0 {
		return
	}

	Zeroize(buf[:bufCap])

	if bufCap <= 4*1024 && bufCap >= 128 {
		dynamicBufferPool.Put(&buf) // Pass pointer to avoid allocations (SA6002)
	}
}

// WarmupPools pre-allocates buffers in the pools to reduce cold latency.
func WarmupPools(count int) {
	smallBufs := make([]*[]byte, count)
	mediumBufs := make([]*[]byte, count)
	largeBufs := make([]*[]byte, count)
	dynamicBufs := make([][]byte, count)

	for i := 0; i < count; i++ {
		smallBufs[i] = getBuffer(32)
		mediumBufs[i] = getBuffer(512)
		largeBufs[i] = getBuffer(4 * 1024)
		dynamicBufs[i] = getDynamicBuffer()
	}

	for i := 0; i < count; i++ {
		putBuffer(smallBufs[i])
		putBuffer(mediumBufs[i])
		putBuffer(largeBufs[i])
		putDynamicBuffer(dynamicBufs[i])
	}
}
