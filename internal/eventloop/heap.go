package eventloop

import (
	"container/heap"
	"time"
)

type frame struct {
	id  uint64
	due time.Time
	fn  func()
}

// frameHeap implements container/heap.Interface for frames, earliest due
// first. Equal due times keep request order.
type frameHeap []frame

func (h frameHeap) Len() int { return len(h) }
func (h frameHeap) Less(i, j int) bool {
	if h[i].due.Equal(h[j].due) {
		return h[i].id < h[j].id
	}
	return h[i].due.Before(h[j].due)
}
func (h frameHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *frameHeap) Push(x any) {
	*h = append(*h, x.(frame))
}

func (h *frameHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

func heapPush(h *frameHeap, f frame) {
	heap.Push(h, f)
}

// heapPop removes and returns the earliest frame. Panics if the heap is empty.
func heapPop(h *frameHeap) frame {
	return heap.Pop(h).(frame)
}

// heapRemoveByID removes the frame with the given id.
// Returns true if the frame was found and removed.
func heapRemoveByID(h *frameHeap, id uint64) bool {
	for i, f := range *h {
		if f.id == id {
			heap.Remove(h, i)
			return true
		}
	}
	return false
}
