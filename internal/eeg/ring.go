package eeg

// RingBuffer keeps the most recent Cap() values. Pushing into a full buffer
// overwrites the oldest value.
type RingBuffer struct {
	data []float64
	head int // next write position
	size int
}

// NewRingBuffer panics on a non-positive capacity, like make would.
func NewRingBuffer(capacity int) *RingBuffer {
	if capacity < 1 {
		panic("eeg: ring buffer capacity must be positive")
	}
	return &RingBuffer{data: make([]float64, capacity)}
}

func (r *RingBuffer) Push(v float64) {
	r.data[r.head] = v
	r.head = (r.head + 1) % len(r.data)
	if r.size < len(r.data) {
		r.size++
	}
}

func (r *RingBuffer) Len() int   { return r.size }
func (r *RingBuffer) Cap() int   { return len(r.data) }
func (r *RingBuffer) Full() bool { return r.size == len(r.data) }

// Snapshot copies the buffered values, oldest first.
func (r *RingBuffer) Snapshot() []float64 {
	out := make([]float64, r.size)
	start := (r.head - r.size + len(r.data)) % len(r.data)
	for i := 0; i < r.size; i++ {
		out[i] = r.data[(start+i)%len(r.data)]
	}
	return out
}

// ChannelBuffers holds one ring buffer per electrode, pushed in lockstep.
// It is not safe for concurrent use; the stream manager owns it.
type ChannelBuffers struct {
	buffers [NumChannels]*RingBuffer
}

// NewChannelBuffers sizes every buffer to windowSeconds × samplingRate samples.
func NewChannelBuffers(windowSeconds float64, samplingRate int) *ChannelBuffers {
	capacity := int(windowSeconds * float64(samplingRate))
	if capacity < 1 {
		capacity = 1
	}
	cb := &ChannelBuffers{}
	for i := range cb.buffers {
		cb.buffers[i] = NewRingBuffer(capacity)
	}
	return cb
}

func (cb *ChannelBuffers) Push(s Sample) {
	for i, v := range s.Values {
		cb.buffers[i].Push(v)
	}
}

func (cb *ChannelBuffers) Full() bool { return cb.buffers[0].Full() }

func (cb *ChannelBuffers) Cap() int { return cb.buffers[0].Cap() }

// Fill is the fraction of capacity currently buffered.
func (cb *ChannelBuffers) Fill() float64 {
	return float64(cb.buffers[0].Len()) / float64(cb.buffers[0].Cap())
}

// Arrays returns a copy of every channel's buffer, oldest first.
func (cb *ChannelBuffers) Arrays() [NumChannels][]float64 {
	var out [NumChannels][]float64
	for i, b := range cb.buffers {
		out[i] = b.Snapshot()
	}
	return out
}
