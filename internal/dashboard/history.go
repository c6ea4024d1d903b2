package dashboard

import "sync"

// DefaultHistorySize is the number of samples kept per metric.
const DefaultHistorySize = 60

// History keeps recent CPU and GPU utilization for the sparklines.
type History struct {
	mu  sync.RWMutex
	cpu *ringBuffer
	gpu *ringBuffer
}

// ringBuffer is a fixed-size circular buffer for float64 values.
type ringBuffer struct {
	data  []float64
	head  int
	count int
	size  int
}

// NewHistory creates a history with room for size samples per metric.
func NewHistory(size int) *History {
	if size <= 0 {
		size = DefaultHistorySize
	}
	return &History{cpu: newRingBuffer(size), gpu: newRingBuffer(size)}
}

// Push records a sample. Unknown (nil) values are skipped.
func (h *History) Push(cpu, gpu *float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if cpu != nil {
		h.cpu.push(*cpu)
	}
	if gpu != nil {
		h.gpu.push(*gpu)
	}
}

// CPU returns up to count CPU samples, oldest first.
func (h *History) CPU(count int) []float64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.cpu.getLast(count)
}

// GPU returns up to count GPU samples, oldest first.
func (h *History) GPU(count int) []float64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.gpu.getLast(count)
}

// Clear drops every sample, e.g. after the target went to sleep.
func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cpu = newRingBuffer(h.cpu.size)
	h.gpu = newRingBuffer(h.gpu.size)
}

func newRingBuffer(size int) *ringBuffer {
	return &ringBuffer{data: make([]float64, size), size: size}
}

func (r *ringBuffer) push(value float64) {
	r.data[r.head] = value
	r.head = (r.head + 1) % r.size
	if r.count < r.size {
		r.count++
	}
}

// getLast returns the last count values in chronological order.
func (r *ringBuffer) getLast(count int) []float64 {
	if count <= 0 || r.count == 0 {
		return nil
	}
	if count > r.count {
		count = r.count
	}
	result := make([]float64, count)
	start := (r.head - count + r.size) % r.size
	for i := 0; i < count; i++ {
		result[i] = r.data[(start+i)%r.size]
	}
	return result
}
