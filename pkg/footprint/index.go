package footprint

import (
	"sort"

	"github.com/dhconnelly/rtreego"
	"github.com/paulmach/orb"
)

// candidateIndex returns the positions of indexed bounding boxes that
// intersect a query box, in ascending order.
//
// Positions refer to the slice the index was built from. Callers sort that
// slice by ID beforehand, so ascending positions are ascending IDs and
// candidate iteration order is deterministic.
type candidateIndex interface {
	candidates(b orb.Bound) []int
	size() int
}

// buildCandidateIndex picks an R-tree for populations of at least minSize
// and a linear scan below that. Both return identical candidates.
func buildCandidateIndex(bounds []orb.Bound, minSize int) candidateIndex {
	if len(bounds) >= minSize && len(bounds) > 0 {
		return newRtreeIndex(bounds)
	}
	return linearIndex(bounds)
}

// linearIndex scans every bounding box. Cheaper than an R-tree for the
// small populations typical of a single block.
type linearIndex []orb.Bound

func (l linearIndex) candidates(b orb.Bound) []int {
	result := make([]int, 0, 4)
	for i, lb := range l {
		if b.Intersects(lb) {
			result = append(result, i)
		}
	}
	return result
}

func (l linearIndex) size() int { return len(l) }

// rtreeIndex provides O(log n) bounding-box queries.
type rtreeIndex struct {
	rtree  *rtreego.Rtree
	bounds []orb.Bound
}

// indexedBound wraps a bounding box and its position for R-tree storage.
type indexedBound struct {
	pos   int
	bound orb.Bound
}

// Bounds implements rtreego.Spatial.
func (e *indexedBound) Bounds() rtreego.Rect {
	return boundToRect(e.bound)
}

func newRtreeIndex(bounds []orb.Bound) *rtreeIndex {
	// 2D, min=25 children, max=50 children
	rtree := rtreego.NewTree(2, 25, 50)
	for i, b := range bounds {
		rtree.Insert(&indexedBound{pos: i, bound: b})
	}
	return &rtreeIndex{rtree: rtree, bounds: bounds}
}

func (r *rtreeIndex) candidates(b orb.Bound) []int {
	spatials := r.rtree.SearchIntersect(boundToRect(b.Pad(rectEpsilon)))

	result := make([]int, 0, len(spatials))
	for _, spatial := range spatials {
		indexed := spatial.(*indexedBound)
		// The padded query may pick up boxes that only come within epsilon;
		// re-check exactly so results match linearIndex
		if b.Intersects(indexed.bound) {
			result = append(result, indexed.pos)
		}
	}
	sort.Ints(result)
	return result
}

func (r *rtreeIndex) size() int { return len(r.bounds) }

// rectEpsilon is the minimum side length of an R-tree rectangle, in CRS
// units. rtreego rejects zero-length sides.
const rectEpsilon = 1e-6

// boundToRect converts an orb.Bound to an rtreego.Rect anchored at the
// south-west corner.
func boundToRect(b orb.Bound) rtreego.Rect {
	point := rtreego.Point{b.Min[0], b.Min[1]}

	width := b.Max[0] - b.Min[0]
	height := b.Max[1] - b.Min[1]
	if width < rectEpsilon {
		width = rectEpsilon
	}
	if height < rectEpsilon {
		height = rectEpsilon
	}

	rect, _ := rtreego.NewRect(point, []float64{width, height})
	return rect
}
