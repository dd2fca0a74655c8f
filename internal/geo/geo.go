// Package geo parses restricted-region polygons and answers containment
// queries. Regions arrive as serialized GeoJSON "Polygon" objects and are
// parsed once; the string form never touches the ingest hot path.
package geo

import (
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
)

// ErrMalformedGeometry is returned when an encoded polygon cannot be parsed
// or does not describe a single closed ring with at least 3 distinct vertices.
var ErrMalformedGeometry = errors.New("malformed geometry")

// RegionGeometry is a parsed restricted-region polygon. Coordinates follow
// GeoJSON order: ring vertices are (lon, lat).
type RegionGeometry struct {
	ring orb.Ring
}

// ParseRegion decodes a serialized GeoJSON Polygon. Only the outer ring is
// used; extra rings are ignored. The ring must be closed (first vertex equals
// last) and carry at least 3 distinct vertices. Self-intersecting rings are
// rejected.
func ParseRegion(encoded string) (*RegionGeometry, error) {
	g, err := geojson.UnmarshalGeometry([]byte(encoded))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedGeometry, err)
	}

	poly, ok := g.Geometry().(orb.Polygon)
	if !ok {
		return nil, fmt.Errorf("%w: expected Polygon, got %s", ErrMalformedGeometry, g.Type)
	}
	if len(poly) == 0 {
		return nil, fmt.Errorf("%w: polygon has no rings", ErrMalformedGeometry)
	}

	ring := poly[0]
	if len(ring) < 4 || !ring.Closed() {
		return nil, fmt.Errorf("%w: outer ring is not closed", ErrMalformedGeometry)
	}
	if distinctVertices(ring) < 3 {
		return nil, fmt.Errorf("%w: fewer than 3 distinct vertices", ErrMalformedGeometry)
	}
	if selfIntersects(ring) {
		return nil, fmt.Errorf("%w: ring is self-intersecting", ErrMalformedGeometry)
	}

	return &RegionGeometry{ring: ring}, nil
}

func distinctVertices(ring orb.Ring) int {
	seen := make(map[orb.Point]struct{}, len(ring))
	for _, p := range ring {
		seen[p] = struct{}{}
	}
	return len(seen)
}

// selfIntersects checks every pair of non-adjacent edges for a proper
// crossing. Quadratic, but rings are operator-drawn and small, and this runs
// only at region creation.
func selfIntersects(ring orb.Ring) bool {
	n := len(ring) - 1 // closed ring: last vertex repeats the first
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			// skip adjacent edges (they share an endpoint by construction)
			if j == i+1 || (i == 0 && j == n-1) {
				continue
			}
			if segmentsCross(ring[i], ring[i+1], ring[j], ring[j+1]) {
				return true
			}
		}
	}
	return false
}

func segmentsCross(a, b, c, d orb.Point) bool {
	d1 := cross(c, d, a)
	d2 := cross(c, d, b)
	d3 := cross(a, b, c)
	d4 := cross(a, b, d)
	return ((d1 > 0 && d2 < 0) || (d1 < 0 && d2 > 0)) &&
		((d3 > 0 && d4 < 0) || (d3 < 0 && d4 > 0))
}

func cross(o, a, p orb.Point) float64 {
	return (a[0]-o[0])*(p[1]-o[1]) - (a[1]-o[1])*(p[0]-o[0])
}

// Contains reports whether the point lies inside the region using the
// even-odd ray-casting rule. Points exactly on the boundary count as inside.
func (g *RegionGeometry) Contains(lat, lon float64) bool {
	p := orb.Point{lon, lat}

	n := len(g.ring) - 1
	for i := 0; i < n; i++ {
		if onSegment(g.ring[i], g.ring[i+1], p) {
			return true
		}
	}

	inside := false
	for i := 0; i < n; i++ {
		a, b := g.ring[i], g.ring[i+1]
		if (a[1] > p[1]) != (b[1] > p[1]) {
			x := a[0] + (p[1]-a[1])/(b[1]-a[1])*(b[0]-a[0])
			if p[0] < x {
				inside = !inside
			}
		}
	}
	return inside
}

func onSegment(a, b, p orb.Point) bool {
	const eps = 1e-12
	if math.Abs(cross(a, b, p)) > eps {
		return false
	}
	return p[0] >= math.Min(a[0], b[0])-eps && p[0] <= math.Max(a[0], b[0])+eps &&
		p[1] >= math.Min(a[1], b[1])-eps && p[1] <= math.Max(a[1], b[1])+eps
}

// CentroidAndExtent returns the area centroid and the larger bound dimension
// in degrees. Consumers use it to frame visualisations; output is
// deterministic for a given ring.
func (g *RegionGeometry) CentroidAndExtent() (lat, lon, extentDeg float64) {
	centroid, _ := planar.CentroidArea(orb.Polygon{g.ring})
	bound := g.ring.Bound()
	extent := math.Max(bound.Max[0]-bound.Min[0], bound.Max[1]-bound.Min[1])
	return centroid[1], centroid[0], extent
}
