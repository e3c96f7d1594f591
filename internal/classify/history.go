package classify

import "gonum.org/v1/gonum/stat"

// history is a fixed-capacity ring buffer of recent metric values.
// Order is irrelevant, only the aggregate statistics are consumed.
type history struct {
	values   []float64
	capacity int
	next     int
}

func newHistory(capacity int) *history {
	return &history{capacity: capacity}
}

func (h *history) Push(v float64) {
	if len(h.values) < h.capacity {
		h.values = append(h.values, v)
		return
	}
	h.values[h.next] = v
	h.next = (h.next + 1) % h.capacity
}

func (h *history) Len() int { return len(h.values) }

func (h *history) Mean() float64 {
	if len(h.values) == 0 {
		return 0
	}
	return stat.Mean(h.values, nil)
}

func (h *history) Std() float64 {
	if len(h.values) == 0 {
		return 0
	}
	return stat.PopStdDev(h.values, nil)
}
