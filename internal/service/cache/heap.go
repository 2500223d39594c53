package cache

// accessHeap is a min-heap of in-memory entries keyed by last access time.
// It makes the "evict the oldest slice of entries" pass cheap instead of
// re-sorting the whole cache on every eviction trigger.
type accessHeap []*memEntry

func (h accessHeap) Len() int { return len(h) }

func (h accessHeap) Less(i, j int) bool {
	return h[i].meta.LastAccessed.Before(h[j].meta.LastAccessed)
}

func (h accessHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].heapIdx = i
	h[j].heapIdx = j
}

func (h *accessHeap) Push(x interface{}) {
	e := x.(*memEntry)
	e.heapIdx = len(*h)
	*h = append(*h, e)
}

func (h *accessHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.heapIdx = -1
	*h = old[:n-1]
	return e
}
