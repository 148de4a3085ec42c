package layer

import (
	"encoding/json"
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
)

// GeometryKind classifies the geometry a layer carries. All features in a
// layer share one kind.
type GeometryKind string

const (
	KindPoint   GeometryKind = "point"
	KindLine    GeometryKind = "line"
	KindPolygon GeometryKind = "polygon"
)

// Feature is one geometry plus its attributes.
type Feature struct {
	Geom  geom.T
	Attrs map[string]string
}

// Layer is an in-memory vector layer. All features share one geometry kind
// and one spatial reference (SRID).
type Layer struct {
	Name     string
	Kind     GeometryKind
	SRID     int
	Features []Feature
}

// New returns an empty layer.
func New(name string, kind GeometryKind, srid int) *Layer {
	return &Layer{Name: name, Kind: kind, SRID: srid}
}

// Append adds a feature to the layer.
func (l *Layer) Append(g geom.T, attrs map[string]string) {
	l.Features = append(l.Features, Feature{Geom: g, Attrs: attrs})
}

// Count returns the number of features.
func (l *Layer) Count() int {
	if l == nil {
		return 0
	}
	return len(l.Features)
}

// BBox is an axis-aligned bounding box in the layer's reference frame.
type BBox struct {
	MinX, MinY, MaxX, MaxY float64
}

// String renders the box in the WFS BBOX parameter form
// "minX,minY,maxX,maxY,EPSG:<srid>".
func (b BBox) String(srid int) string {
	return fmt.Sprintf("%f,%f,%f,%f,EPSG:%d", b.MinX, b.MinY, b.MaxX, b.MaxY, srid)
}

// BBox returns the union of the bounds of all features.
func (l *Layer) BBox() (BBox, error) {
	if l == nil {
		return BBox{}, eris.New("layer: bbox of nil layer")
	}
	if len(l.Features) == 0 {
		return BBox{}, eris.Errorf("layer: bbox of empty layer %q", l.Name)
	}
	bounds := geom.NewBounds(geom.XY)
	for _, f := range l.Features {
		if f.Geom == nil {
			continue
		}
		bounds.Extend(f.Geom)
	}
	if bounds.IsEmpty() {
		return BBox{}, eris.Errorf("layer: no geometries in layer %q", l.Name)
	}
	return BBox{
		MinX: bounds.Min(0),
		MinY: bounds.Min(1),
		MaxX: bounds.Max(0),
		MaxY: bounds.Max(1),
	}, nil
}

// Boundary wraps a single polygon geometry in a one-feature polygon layer,
// for use as a clip overlay.
func Boundary(name string, g geom.T, srid int) *Layer {
	l := New(name, KindPolygon, srid)
	l.Append(g, nil)
	return l
}

// KindOf maps a concrete geometry to its layer kind.
func KindOf(g geom.T) (GeometryKind, error) {
	switch g.(type) {
	case *geom.Point, *geom.MultiPoint:
		return KindPoint, nil
	case *geom.LineString, *geom.MultiLineString:
		return KindLine, nil
	case *geom.Polygon, *geom.MultiPolygon:
		return KindPolygon, nil
	default:
		return "", eris.Errorf("layer: unsupported geometry type %T", g)
	}
}

// FromGeoJSON decodes a GeoJSON FeatureCollection into a layer. The kind is
// inferred from the first feature with a geometry; features of a different
// kind are skipped. Properties are flattened to strings.
func FromGeoJSON(data []byte, name string, srid int) (*Layer, error) {
	var fc geojson.FeatureCollection
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, eris.Wrapf(err, "layer: decode feature collection %q", name)
	}

	var l *Layer
	for _, f := range fc.Features {
		if f.Geometry == nil {
			continue
		}
		kind, err := KindOf(f.Geometry)
		if err != nil {
			continue
		}
		if l == nil {
			l = New(name, kind, srid)
		}
		if kind != l.Kind {
			continue
		}
		l.Append(f.Geometry, flattenProperties(f.Properties))
	}

	if l == nil {
		l = New(name, KindPolygon, srid)
	}
	return l, nil
}

// ToGeoJSON encodes the layer as a GeoJSON FeatureCollection.
func (l *Layer) ToGeoJSON() ([]byte, error) {
	fc := geojson.FeatureCollection{Features: make([]*geojson.Feature, 0, len(l.Features))}
	for _, f := range l.Features {
		props := make(map[string]interface{}, len(f.Attrs))
		for k, v := range f.Attrs {
			props[k] = v
		}
		fc.Features = append(fc.Features, &geojson.Feature{
			Geometry:   f.Geom,
			Properties: props,
		})
	}
	data, err := json.Marshal(&fc)
	if err != nil {
		return nil, eris.Wrapf(err, "layer: encode feature collection %q", l.Name)
	}
	return data, nil
}

// flattenProperties renders arbitrary GeoJSON properties as strings.
func flattenProperties(props map[string]interface{}) map[string]string {
	if len(props) == 0 {
		return nil
	}
	out := make(map[string]string, len(props))
	for k, v := range props {
		if v == nil {
			continue
		}
		out[k] = fmt.Sprint(v)
	}
	return out
}
