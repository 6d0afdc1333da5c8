package footprint

import (
	"github.com/paulmach/orb"
)

func rect(minX, minY, maxX, maxY float64) orb.Polygon {
	return orb.Polygon{{
		{minX, minY}, {maxX, minY}, {maxX, maxY}, {minX, maxY}, {minX, minY},
	}}
}

func primaryRec(id string, g orb.Polygon) BuildingRecord {
	return BuildingRecord{ID: id, Source: SourcePrimary, Geometry: g, Attributes: Attributes{}}
}

func secondaryRec(id string, g orb.Polygon, attrs Attributes) BuildingRecord {
	return BuildingRecord{ID: id, Source: SourceSecondary, Geometry: g, Attributes: attrs}
}

func bowtie() orb.Polygon {
	return orb.Polygon{{{0, 0}, {10, 10}, {10, 0}, {0, 10}, {0, 0}}}
}

func shifted(p orb.Polygon, dx, dy float64) orb.Polygon {
	out := make(orb.Polygon, len(p))
	for i, ring := range p {
		out[i] = make(orb.Ring, len(ring))
		for j, pt := range ring {
			out[i][j] = orb.Point{pt[0] + dx, pt[1] + dy}
		}
	}
	return out
}
