package export

import (
	"sort"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/atelier-carto/fondplan/internal/layer"
)

// writeShapefile writes a layer as an ESRI shapefile. Attribute names are
// truncated to the 10-character DBF limit.
func writeShapefile(path string, l *layer.Layer) error {
	var shapeType shp.ShapeType
	switch l.Kind {
	case layer.KindPoint:
		shapeType = shp.POINT
	case layer.KindLine:
		shapeType = shp.POLYLINE
	case layer.KindPolygon:
		shapeType = shp.POLYGON
	default:
		return eris.Errorf("export: unsupported layer kind %q", l.Kind)
	}

	w, err := shp.Create(path, shapeType)
	if err != nil {
		return eris.Wrapf(err, "export: create shapefile %s", path)
	}
	defer w.Close()

	keys := attributeKeys(l)
	fields := make([]shp.Field, len(keys))
	for i, key := range keys {
		fields[i] = shp.StringField(dbfName(key), 254)
	}
	w.SetFields(fields)

	row := 0
	skipped := 0
	for _, f := range l.Features {
		s := toShape(f.Geom, l.Kind)
		if s == nil {
			skipped++
			continue
		}
		w.Write(s)
		for col, key := range keys {
			if err := w.WriteAttribute(row, col, f.Attrs[key]); err != nil {
				return eris.Wrapf(err, "export: write attribute %s", key)
			}
		}
		row++
	}

	if skipped > 0 {
		zap.L().Debug("export: skipped features without a shapefile representation",
			zap.String("layer", l.Name),
			zap.Int("skipped", skipped),
		)
	}
	return nil
}

// attributeKeys returns the sorted union of attribute names in the layer.
func attributeKeys(l *layer.Layer) []string {
	seen := make(map[string]bool)
	for _, f := range l.Features {
		for k := range f.Attrs {
			seen[k] = true
		}
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func dbfName(key string) string {
	name := strings.ToUpper(key)
	if len(name) > 10 {
		name = name[:10]
	}
	return name
}

func toShape(g geom.T, kind layer.GeometryKind) shp.Shape {
	switch kind {
	case layer.KindPoint:
		if p, ok := g.(*geom.Point); ok {
			return &shp.Point{X: p.X(), Y: p.Y()}
		}
		return nil
	case layer.KindLine:
		parts := lineParts(g)
		if len(parts) == 0 {
			return nil
		}
		return shp.NewPolyLine(parts)
	case layer.KindPolygon:
		parts := polygonParts(g)
		if len(parts) == 0 {
			return nil
		}
		poly := shp.Polygon(*shp.NewPolyLine(parts))
		return &poly
	}
	return nil
}

func lineParts(g geom.T) [][]shp.Point {
	switch t := g.(type) {
	case *geom.LineString:
		return [][]shp.Point{coordsToPoints(t.FlatCoords(), t.Layout().Stride())}
	case *geom.MultiLineString:
		parts := make([][]shp.Point, 0, t.NumLineStrings())
		for i := 0; i < t.NumLineStrings(); i++ {
			ls := t.LineString(i)
			parts = append(parts, coordsToPoints(ls.FlatCoords(), ls.Layout().Stride()))
		}
		return parts
	}
	return nil
}

func polygonParts(g geom.T) [][]shp.Point {
	var parts [][]shp.Point
	appendRings := func(p *geom.Polygon) {
		for i := 0; i < p.NumLinearRings(); i++ {
			ring := p.LinearRing(i)
			parts = append(parts, coordsToPoints(ring.FlatCoords(), ring.Layout().Stride()))
		}
	}
	switch t := g.(type) {
	case *geom.Polygon:
		appendRings(t)
	case *geom.MultiPolygon:
		for i := 0; i < t.NumPolygons(); i++ {
			appendRings(t.Polygon(i))
		}
	}
	return parts
}

func coordsToPoints(flat []float64, stride int) []shp.Point {
	pts := make([]shp.Point, 0, len(flat)/stride)
	for i := 0; i+1 < len(flat); i += stride {
		pts = append(pts, shp.Point{X: flat[i], Y: flat[i+1]})
	}
	return pts
}
