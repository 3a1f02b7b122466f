// Package ring provides a fixed-capacity float64 window.
package ring

// Buffer keeps the most recent Cap() values in insertion order.
// It is not safe for concurrent use.
type Buffer struct {
	data  []float64
	start int
	size  int
}

// New creates a buffer holding at most capacity values.
func New(capacity int) *Buffer {
	if capacity < 1 {
		capacity = 1
	}
	return &Buffer{data: make([]float64, capacity)}
}

// Push appends v, evicting the oldest value when full.
func (b *Buffer) Push(v float64) {
	if b.size < len(b.data) {
		b.data[(b.start+b.size)%len(b.data)] = v
		b.size++
		return
	}
	b.data[b.start] = v
	b.start = (b.start + 1) % len(b.data)
}

// Len returns the number of stored values.
func (b *Buffer) Len() int { return b.size }

// Cap returns the capacity.
func (b *Buffer) Cap() int { return len(b.data) }

// At returns the i-th value counting from the oldest.
func (b *Buffer) At(i int) float64 {
	return b.data[(b.start+i)%len(b.data)]
}

// Last returns the newest n values, oldest first.
func (b *Buffer) Last(n int) []float64 {
	n = min(n, b.size)
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		out[i] = b.At(b.size - n + i)
	}
	return out
}

// Values returns all stored values, oldest first.
func (b *Buffer) Values() []float64 {
	return b.Last(b.size)
}

// Mean returns the average of all stored values, or 0 when empty.
func (b *Buffer) Mean() float64 {
	return Mean(b.Values())
}

// Reset empties the buffer.
func (b *Buffer) Reset() {
	b.start, b.size = 0, 0
}

// Mean returns the average of vs, or 0 when empty.
func Mean(vs []float64) float64 {
	if len(vs) == 0 {
		return 0
	}
	var sum float64
	for _, v := range vs {
		sum += v
	}
	return sum / float64(len(vs))
}
