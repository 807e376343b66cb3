// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package motion

// SampleBuffer is a fixed-capacity circular store of the most recent
// samples. Once full, each append evicts the oldest entry. It has no
// locking of its own: a single pipeline goroutine owns it.
type SampleBuffer struct {
	data []Sample
	head int
	size int
}

// NewSampleBuffer creates a buffer holding up to capacity samples.
func NewSampleBuffer(capacity int) *SampleBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &SampleBuffer{data: make([]Sample, capacity)}
}

// Append stores s, evicting the oldest sample when the buffer is full.
func (b *SampleBuffer) Append(s Sample) {
	b.data[b.head] = s
	b.head = (b.head + 1) % len(b.data)
	if b.size < len(b.data) {
		b.size++
	}
}

// Len returns the number of samples currently held.
func (b *SampleBuffer) Len() int {
	return b.size
}

// Cap returns the buffer capacity.
func (b *SampleBuffer) Cap() int {
	return len(b.data)
}

// Reset discards all samples without releasing storage.
func (b *SampleBuffer) Reset() {
	b.head = 0
	b.size = 0
}

// Vector flattens the buffer into a sample-major float slice:
// x0,y0,z0,x1,y1,z1,... from oldest to newest. The ordering is a wire
// contract with the learner service and must not change. Length is
// always 3*Len(), including when the buffer is partially filled.
func (b *SampleBuffer) Vector() []float64 {
	out := make([]float64, 0, 3*b.size)
	start := b.head - b.size
	if start < 0 {
		start += len(b.data)
	}
	for i := 0; i < b.size; i++ {
		s := b.data[(start+i)%len(b.data)]
		out = append(out, s.X, s.Y, s.Z)
	}
	return out
}
