package feedindex

import "container/heap"

// heapEntry is one source's current iterator head, tagged with the
// source's position in the original slice for stable bookkeeping.
type heapEntry struct {
	post      Post
	sourceIdx int
	iterator  *ReverseIterator
}

// mergeHeap is a max-heap over heapEntry ordered by (ts, id) descending,
// so the largest post is always at the root.
type mergeHeap []*heapEntry

func (h mergeHeap) Len() int { return len(h) }

func (h mergeHeap) Less(i, j int) bool {
	// Reverse of Post.Less for a max-heap.
	return h[j].post.Less(h[i].post)
}

func (h mergeHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *mergeHeap) Push(x any) {
	*h = append(*h, x.(*heapEntry))
}

func (h *mergeHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// Stream performs a bounded k-way descending merge over sources, starting
// just below the exclusive boundary implied by dayCut, skipping
// (offset - prior) posts and then collecting up to limit ids.
//
// prior must equal the second return value of ResolveDay for the same
// sources and dayCut; it is the number of posts the resolver already
// accounted for past the cut.
func Stream(sources []*SourceIndex, dayCut int, prior int, offset int, limit int) []ID {
	firstKey := Ts((int64(dayCut) + 1) * SecondsPerDay)
	upperExclusive := Post{Ts: firstKey, ID: 0}

	h := make(mergeHeap, 0, len(sources))
	for i, s := range sources {
		it := s.NewReverseIterator(upperExclusive)
		if p, ok := it.Next(); ok {
			h = append(h, &heapEntry{post: p, sourceIdx: i, iterator: it})
		}
	}
	heap.Init(&h)

	skip := offset - prior
	for i := 0; i < skip && h.Len() > 0; i++ {
		entry := heap.Pop(&h).(*heapEntry)
		if p, ok := entry.iterator.Next(); ok {
			entry.post = p
			heap.Push(&h, entry)
		}
	}

	if h.Len() == 0 {
		return nil
	}

	result := make([]ID, 0, limit)
	for i := 0; i < limit && h.Len() > 0; i++ {
		entry := heap.Pop(&h).(*heapEntry)
		result = append(result, entry.post.ID)
		if p, ok := entry.iterator.Next(); ok {
			entry.post = p
			heap.Push(&h, entry)
		}
	}

	return result
}
