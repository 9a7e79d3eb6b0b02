package feedindex

// Leeway bounds how far the binary search is allowed to undershoot the
// target offset; the merge reader makes up the difference with a bounded
// skip. It is a throughput knob, not a correctness one.
const Leeway = 128

// ResolveDay finds a day cut such that the number of posts strictly newer
// than that day, summed across sources, is close to but not exceeding
// offset. It returns (dayCut, postsAfterCut).
//
// postsAfterCut never exceeds offset. When offset > Leeway and some day
// cut has between offset-Leeway and offset posts strictly newer than it,
// the result also satisfies offset <= postsAfterCut + Leeway. Cuts move in
// whole days, so no such cut exists when one day holds more than Leeway
// posts around the target, or when offset exceeds the number of posts
// newer than day 0 by more than Leeway; the gap offset - postsAfterCut
// left for the merge reader to skip is then larger than Leeway.
func ResolveDay(sources []*SourceIndex, offset int) (dayCut int, postsAfterCut int) {
	right := 0
	for _, s := range sources {
		if n := s.counts.Length(); n > right {
			right = n
		}
	}

	if right == 0 || offset <= Leeway {
		return right, 0
	}

	countOnOrAfter := func(day int) int {
		total := 0
		for _, s := range sources {
			total += s.CountOnOrAfter(day)
		}
		return total
	}

	l, r := 0, right
	var v int
	for l < r {
		m := (l + r) / 2
		v = countOnOrAfter(m + 1)

		if v <= offset && v+Leeway >= offset {
			return m, v
		}
		if v > offset {
			l = m + 1
		} else {
			r = m
		}
	}

	return l, countOnOrAfter(l + 1)
}
