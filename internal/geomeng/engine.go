// Package geomeng provides the geometry transform and clip engine consumed
// by the acquisition pipeline. Callers depend on the Engine contract only;
// the default implementation is backed by go-geom.
package geomeng

import (
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"

	"github.com/atelier-carto/fondplan/internal/layer"
)

// Spatial reference identifiers used throughout the pipeline.
const (
	SRIDWGS84     = 4326 // geographic lon/lat
	SRIDLambert93 = 2154 // projected frame for metropolitan France
)

// Engine reprojects and clips feature layers. Both operations may fail;
// callers decide per-layer fallback policy.
type Engine interface {
	// Reproject returns a copy of the layer with all geometries transformed
	// into the target SRID.
	Reproject(l *layer.Layer, srid int) (*layer.Layer, error)

	// Clip returns a copy of the layer restricted to features intersecting
	// the boundary polygon. Geometries are filtered, not truncated. The
	// layer and boundary must share one SRID.
	Clip(l *layer.Layer, boundary *layer.Layer) (*layer.Layer, error)
}

// GeomEngine is the default go-geom backed Engine.
type GeomEngine struct {
	proj *lambert93
}

// New returns a ready GeomEngine.
func New() *GeomEngine {
	return &GeomEngine{proj: newLambert93()}
}

// Reproject implements Engine. Supported transforms are EPSG:4326 to
// EPSG:2154 and back; reprojecting to the layer's own SRID copies the layer.
func (e *GeomEngine) Reproject(l *layer.Layer, srid int) (*layer.Layer, error) {
	if l == nil {
		return nil, eris.New("geomeng: reproject nil layer")
	}

	var fn func(x, y float64) (float64, float64)
	switch {
	case l.SRID == srid:
		fn = func(x, y float64) (float64, float64) { return x, y }
	case l.SRID == SRIDWGS84 && srid == SRIDLambert93:
		fn = e.proj.forward
	case l.SRID == SRIDLambert93 && srid == SRIDWGS84:
		fn = e.proj.inverse
	default:
		return nil, eris.Errorf("geomeng: unsupported transform EPSG:%d to EPSG:%d", l.SRID, srid)
	}

	out := layer.New(l.Name, l.Kind, srid)
	for _, f := range l.Features {
		g, err := transformGeom(f.Geom, fn)
		if err != nil {
			return nil, eris.Wrapf(err, "geomeng: reproject layer %q", l.Name)
		}
		out.Append(g, f.Attrs)
	}
	return out, nil
}

// transformGeom rebuilds a geometry with the first two coordinate dimensions
// passed through fn.
func transformGeom(g geom.T, fn func(x, y float64) (float64, float64)) (geom.T, error) {
	if g == nil {
		return nil, eris.New("geomeng: nil geometry")
	}

	lay := g.Layout()
	stride := lay.Stride()
	if stride < 2 {
		return nil, eris.Errorf("geomeng: unsupported layout %v", lay)
	}

	flat := append([]float64(nil), g.FlatCoords()...)
	for i := 0; i+1 < len(flat); i += stride {
		flat[i], flat[i+1] = fn(flat[i], flat[i+1])
	}

	switch t := g.(type) {
	case *geom.Point:
		return geom.NewPointFlat(lay, flat), nil
	case *geom.MultiPoint:
		return geom.NewMultiPointFlat(lay, flat), nil
	case *geom.LineString:
		return geom.NewLineStringFlat(lay, flat), nil
	case *geom.MultiLineString:
		return geom.NewMultiLineStringFlat(lay, flat, append([]int(nil), t.Ends()...)), nil
	case *geom.Polygon:
		return geom.NewPolygonFlat(lay, flat, append([]int(nil), t.Ends()...)), nil
	case *geom.MultiPolygon:
		endss := make([][]int, len(t.Endss()))
		for i, ends := range t.Endss() {
			endss[i] = append([]int(nil), ends...)
		}
		return geom.NewMultiPolygonFlat(lay, flat, endss), nil
	default:
		return nil, eris.Errorf("geomeng: unsupported geometry type %T", g)
	}
}
