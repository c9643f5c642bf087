package engine

import "time"

// timerEntry is one pending deadline owned by a registration.
type timerEntry struct {
	deadline time.Time
	ev       *Event
	index    int
}

// timerHeap is a container/heap min-heap ordered by deadline.
type timerHeap []*timerEntry

func (h timerHeap) Len() int { return len(h) }

func (h timerHeap) Less(i, j int) bool { return h[i].deadline.Before(h[j].deadline) }

func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *timerHeap) Push(x any) {
	te := x.(*timerEntry)
	te.index = len(*h)
	*h = append(*h, te)
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	te := old[n-1]
	old[n-1] = nil
	te.index = -1
	*h = old[:n-1]
	return te
}
