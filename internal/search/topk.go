package search

import "container/heap"

// scored pairs a candidate with its similarity and the order in which it
// was scanned. Order breaks exact score ties deterministically: earlier
// rows rank ahead of later ones.
type scored struct {
	Result
	order int
}

// resultHeap is a bounded min-heap: the root is the weakest candidate seen
// so far, so a stronger newcomer evicts it in O(log k). Among equal scores
// the later row is considered weaker.
type resultHeap []scored

func (h resultHeap) Len() int { return len(h) }

func (h resultHeap) Less(i, j int) bool {
	if h[i].Score != h[j].Score {
		return h[i].Score < h[j].Score
	}
	return h[i].order > h[j].order
}

func (h resultHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *resultHeap) Push(x any) { *h = append(*h, x.(scored)) }

func (h *resultHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// topK accumulates the k best-scoring candidates without holding every
// candidate in memory.
type topK struct {
	k    int
	heap resultHeap
	seen int
}

func newTopK(k int) *topK {
	return &topK{k: k, heap: make(resultHeap, 0, k)}
}

func (t *topK) offer(r Result) {
	s := scored{Result: r, order: t.seen}
	t.seen++
	if t.heap.Len() < t.k {
		heap.Push(&t.heap, s)
		return
	}
	// Evict the current minimum only if the newcomer strictly outranks
	// it. An exact tie never evicts: the earlier row keeps its slot.
	if s.Score > t.heap[0].Score {
		t.heap[0] = s
		heap.Fix(&t.heap, 0)
	}
}

// results drains the heap into descending score order; ties keep scan order.
func (t *topK) results() []Result {
	out := make([]Result, t.heap.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(&t.heap).(scored).Result
	}
	return out
}
