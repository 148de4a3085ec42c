package geomeng

import (
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
	"github.com/twpayne/go-geom/xy/lineintersector"

	"github.com/atelier-carto/fondplan/internal/layer"
)

// Clip implements Engine. A feature is kept when it intersects the boundary:
// points must fall inside a boundary polygon; lines and polygons are kept
// when their envelope overlaps the boundary and a vertex falls inside the
// boundary, an edge crosses a boundary ring, or the feature envelope spans
// the whole boundary.
func (e *GeomEngine) Clip(l *layer.Layer, boundary *layer.Layer) (*layer.Layer, error) {
	if l == nil {
		return nil, eris.New("geomeng: clip nil layer")
	}
	if boundary == nil {
		return nil, eris.New("geomeng: clip with nil boundary")
	}
	if l.SRID != boundary.SRID {
		return nil, eris.Errorf("geomeng: clip frame mismatch EPSG:%d vs EPSG:%d", l.SRID, boundary.SRID)
	}

	polys := boundaryPolygons(boundary)
	if len(polys) == 0 {
		return nil, eris.Errorf("geomeng: boundary layer %q has no polygons", boundary.Name)
	}

	bBounds := geom.NewBounds(geom.XY)
	for _, p := range polys {
		bBounds.Extend(p)
	}

	out := layer.New(l.Name, l.Kind, l.SRID)
	for _, f := range l.Features {
		if f.Geom == nil {
			continue
		}
		if intersectsBoundary(f.Geom, l.Kind, polys, bBounds) {
			out.Append(f.Geom, f.Attrs)
		}
	}
	return out, nil
}

// boundaryPolygons flattens the boundary layer into plain polygons.
func boundaryPolygons(boundary *layer.Layer) []*geom.Polygon {
	var polys []*geom.Polygon
	for _, f := range boundary.Features {
		switch g := f.Geom.(type) {
		case *geom.Polygon:
			polys = append(polys, g)
		case *geom.MultiPolygon:
			for i := 0; i < g.NumPolygons(); i++ {
				polys = append(polys, g.Polygon(i))
			}
		}
	}
	return polys
}

func intersectsBoundary(g geom.T, kind layer.GeometryKind, polys []*geom.Polygon, bBounds *geom.Bounds) bool {
	if kind == layer.KindPoint {
		return anyVertexInside(g, polys)
	}

	fBounds := geom.NewBounds(geom.XY)
	fBounds.Extend(g)
	if !fBounds.Overlaps(geom.XY, bBounds) {
		return false
	}
	if anyVertexInside(g, polys) {
		return true
	}
	if anyEdgeCrossesBoundary(g, polys) {
		return true
	}
	// Feature with no vertex inside can still span the whole boundary.
	return containsBounds(fBounds, bBounds)
}

// anyEdgeCrossesBoundary reports whether any edge of g intersects a ring
// segment of one of the boundary polygons. Catches features crossing the
// boundary between two outside vertices.
func anyEdgeCrossesBoundary(g geom.T, polys []*geom.Polygon) bool {
	edges := edgeSegments(g)
	if len(edges) == 0 {
		return false
	}
	for _, p := range polys {
		for i := 0; i < p.NumLinearRings(); i++ {
			ring := p.LinearRing(i)
			for _, rs := range partSegments(ring.FlatCoords(), ring.Layout().Stride()) {
				for _, es := range edges {
					res := lineintersector.LineIntersectsLine(lineintersector.RobustLineIntersector{}, es[0], es[1], rs[0], rs[1])
					if res.HasIntersection() {
						return true
					}
				}
			}
		}
	}
	return false
}

// edgeSegments collects the edges of a geometry, part by part so segments
// never bridge separate rings or line strings.
func edgeSegments(g geom.T) [][2]geom.Coord {
	var segs [][2]geom.Coord
	switch t := g.(type) {
	case *geom.LineString:
		segs = partSegments(t.FlatCoords(), t.Layout().Stride())
	case *geom.MultiLineString:
		for i := 0; i < t.NumLineStrings(); i++ {
			ls := t.LineString(i)
			segs = append(segs, partSegments(ls.FlatCoords(), ls.Layout().Stride())...)
		}
	case *geom.Polygon:
		for i := 0; i < t.NumLinearRings(); i++ {
			r := t.LinearRing(i)
			segs = append(segs, partSegments(r.FlatCoords(), r.Layout().Stride())...)
		}
	case *geom.MultiPolygon:
		for i := 0; i < t.NumPolygons(); i++ {
			segs = append(segs, edgeSegments(t.Polygon(i))...)
		}
	}
	return segs
}

func partSegments(flat []float64, stride int) [][2]geom.Coord {
	if stride < 2 || len(flat) < 2*stride {
		return nil
	}
	segs := make([][2]geom.Coord, 0, len(flat)/stride-1)
	for i := stride; i+1 < len(flat); i += stride {
		segs = append(segs, [2]geom.Coord{
			{flat[i-stride], flat[i-stride+1]},
			{flat[i], flat[i+1]},
		})
	}
	return segs
}

// anyVertexInside reports whether any coordinate of g lies within one of the
// boundary polygons.
func anyVertexInside(g geom.T, polys []*geom.Polygon) bool {
	flat := g.FlatCoords()
	stride := g.Layout().Stride()
	for i := 0; i+1 < len(flat); i += stride {
		c := geom.Coord{flat[i], flat[i+1]}
		for _, p := range polys {
			if pointInPolygon(p, c) {
				return true
			}
		}
	}
	return false
}

// pointInPolygon tests the exterior ring and subtracts holes.
func pointInPolygon(p *geom.Polygon, c geom.Coord) bool {
	if p.NumLinearRings() == 0 {
		return false
	}
	if !xy.IsPointInRing(p.Layout(), c, p.LinearRing(0).FlatCoords()) {
		return false
	}
	for i := 1; i < p.NumLinearRings(); i++ {
		if xy.IsPointInRing(p.Layout(), c, p.LinearRing(i).FlatCoords()) {
			return false
		}
	}
	return true
}

func containsBounds(outer, inner *geom.Bounds) bool {
	return outer.Min(0) <= inner.Min(0) && outer.Min(1) <= inner.Min(1) &&
		outer.Max(0) >= inner.Max(0) && outer.Max(1) >= inner.Max(1)
}
