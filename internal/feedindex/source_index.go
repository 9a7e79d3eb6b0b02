package feedindex

import (
	"github.com/google/btree"

	"github.com/onnwee/feedindex/internal/fenwick"
)

// btreeDegree controls the branching factor of the ordered-post b-tree.
// 32 is the degree the grounding example (an Ethereum execution client's
// commitment tree) uses for a similarly hot, small-value ordered set.
const btreeDegree = 32

// SourceIndex is the per-source data structure combining a day-bucketed
// prefix-sum tree, an id-to-timestamp map, and a timestamp-ordered set of
// posts. None of its methods are safe for concurrent use; callers that
// need that (the registry does) must synchronize externally.
type SourceIndex struct {
	counts  *fenwick.PrefixSumTree
	byID    map[ID]Ts
	ordered *btree.BTreeG[Post]
}

// NewSourceIndex returns an empty SourceIndex with counts.Length() == 1.
func NewSourceIndex() *SourceIndex {
	return &SourceIndex{
		counts:  fenwick.New(1),
		byID:    make(map[ID]Ts),
		ordered: btree.NewG(btreeDegree, Post.Less),
	}
}

// Len returns the number of distinct posts currently stored.
func (s *SourceIndex) Len() int {
	return len(s.byID)
}

// growTo extends counts, if necessary, so that counts.Length() > day.
func (s *SourceIndex) growTo(day int) {
	if need := day + 1 - s.counts.Length(); need > 0 {
		s.counts.Extend(need)
	}
}

// Add inserts or replaces the post identified by post.ID. If the id is
// already present, its prior entry is removed first so that every id
// contributes to at most one day bucket.
func (s *SourceIndex) Add(post Post) {
	if _, exists := s.byID[post.ID]; exists {
		s.Remove(post)
	}

	day := Day(post.Ts)
	s.growTo(day)
	s.counts.Modify(day, 1)
	s.byID[post.ID] = post.Ts
	s.ordered.ReplaceOrInsert(post)
}

// Remove deletes the post identified by post.ID, if present. The supplied
// post.Ts is ignored for locating the stored entry; only the id is used,
// matching the rule that replaying a stale timestamp must not corrupt the
// index.
func (s *SourceIndex) Remove(post Post) {
	oldTs, ok := s.byID[post.ID]
	if !ok {
		return
	}
	delete(s.byID, post.ID)
	s.counts.Modify(Day(oldTs), -1)
	s.ordered.Delete(Post{Ts: oldTs, ID: post.ID})
}

// CountOnOrAfter returns the number of stored posts with day(ts) >= day.
func (s *SourceIndex) CountOnOrAfter(day int) int {
	if day >= s.counts.Length() {
		return 0
	}
	return len(s.byID) - int(s.counts.PrefixSum(day-1))
}

// ReverseIterator yields the stored posts strictly below a starting bound
// in descending (ts, id) order, one at a time. Each call to Next costs
// O(log M) by re-running a bounded DescendLessOrEqual scan from the last
// returned post rather than materializing the whole tail.
type ReverseIterator struct {
	tree      *btree.BTreeG[Post]
	pivot     Post
	exhausted bool
}

// NewReverseIterator returns an iterator over posts strictly less than
// upperExclusive (under (ts, id) ascending order).
func (s *SourceIndex) NewReverseIterator(upperExclusive Post) *ReverseIterator {
	return &ReverseIterator{tree: s.ordered, pivot: upperExclusive}
}

// Next returns the next post in descending order and true, or the zero
// value and false once the iterator is exhausted.
func (it *ReverseIterator) Next() (Post, bool) {
	if it.exhausted {
		return Post{}, false
	}

	var result Post
	found := false
	it.tree.DescendLessOrEqual(it.pivot, func(p Post) bool {
		if p == it.pivot {
			// The pivot itself is excluded: either it's the prior
			// post returned by this iterator (already consumed),
			// or it's the caller's synthetic exclusive upper bound
			// that happens to coincide with a stored post.
			return true
		}
		result = p
		found = true
		return false
	})

	if !found {
		it.exhausted = true
		return Post{}, false
	}
	it.pivot = result
	return result, true
}
