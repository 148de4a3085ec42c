package geomeng

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/atelier-carto/fondplan/internal/layer"
)

// unitBoundary is a 10x10 square from (0,0) to (10,10).
func unitBoundary() *layer.Layer {
	poly := geom.NewPolygonFlat(geom.XY, []float64{0, 0, 10, 0, 10, 10, 0, 10, 0, 0}, []int{10})
	return layer.Boundary("b", poly, SRIDLambert93)
}

func TestClipPoints(t *testing.T) {
	e := New()

	l := layer.New("pts", layer.KindPoint, SRIDLambert93)
	l.Append(geom.NewPointFlat(geom.XY, []float64{5, 5}), map[string]string{"id": "in"})
	l.Append(geom.NewPointFlat(geom.XY, []float64{15, 5}), map[string]string{"id": "out"})

	out, err := e.Clip(l, unitBoundary())
	require.NoError(t, err)
	require.Equal(t, 1, out.Count())
	assert.Equal(t, "in", out.Features[0].Attrs["id"])
}

func TestClipLines(t *testing.T) {
	e := New()

	l := layer.New("lines", layer.KindLine, SRIDLambert93)
	l.Append(geom.NewLineStringFlat(geom.XY, []float64{1, 1, 9, 9}), map[string]string{"id": "inside"})
	l.Append(geom.NewLineStringFlat(geom.XY, []float64{20, 20, 30, 30}), map[string]string{"id": "outside"})

	out, err := e.Clip(l, unitBoundary())
	require.NoError(t, err)
	require.Equal(t, 1, out.Count())
	assert.Equal(t, "inside", out.Features[0].Attrs["id"])
}

func TestClipKeepsCrossingLine(t *testing.T) {
	e := New()

	l := layer.New("lines", layer.KindLine, SRIDLambert93)
	// Both vertices outside, the segment traverses the boundary.
	l.Append(geom.NewLineStringFlat(geom.XY, []float64{-5, 5, 15, 5}), map[string]string{"id": "crossing"})
	// Passes north of the boundary without touching it.
	l.Append(geom.NewLineStringFlat(geom.XY, []float64{-5, 12, 15, 12}), map[string]string{"id": "missing"})

	out, err := e.Clip(l, unitBoundary())
	require.NoError(t, err)
	require.Equal(t, 1, out.Count())
	assert.Equal(t, "crossing", out.Features[0].Attrs["id"])
}

func TestClipKeepsCornerCuttingPolygon(t *testing.T) {
	e := New()

	// Cuts across the (0,0) corner with every vertex outside.
	poly := geom.NewPolygonFlat(geom.XY, []float64{
		-1, 2,
		2, -1,
		-3, -3,
		-1, 2,
	}, []int{8})
	l := layer.New("polys", layer.KindPolygon, SRIDLambert93)
	l.Append(poly, nil)

	out, err := e.Clip(l, unitBoundary())
	require.NoError(t, err)
	assert.Equal(t, 1, out.Count())
}

func TestClipKeepsSpanningFeature(t *testing.T) {
	e := New()

	// Polygon fully enclosing the boundary: no vertex inside, kept anyway.
	big := geom.NewPolygonFlat(geom.XY, []float64{-5, -5, 15, -5, 15, 15, -5, 15, -5, -5}, []int{10})
	l := layer.New("polys", layer.KindPolygon, SRIDLambert93)
	l.Append(big, nil)

	out, err := e.Clip(l, unitBoundary())
	require.NoError(t, err)
	assert.Equal(t, 1, out.Count())
}

func TestClipHole(t *testing.T) {
	e := New()

	// Boundary with a hole from (4,4) to (6,6).
	poly := geom.NewPolygonFlat(geom.XY, []float64{
		0, 0, 10, 0, 10, 10, 0, 10, 0, 0,
		4, 4, 6, 4, 6, 6, 4, 6, 4, 4,
	}, []int{10, 20})
	boundary := layer.Boundary("b", poly, SRIDLambert93)

	l := layer.New("pts", layer.KindPoint, SRIDLambert93)
	l.Append(geom.NewPointFlat(geom.XY, []float64{5, 5}), map[string]string{"id": "hole"})
	l.Append(geom.NewPointFlat(geom.XY, []float64{2, 2}), map[string]string{"id": "ring"})

	out, err := e.Clip(l, boundary)
	require.NoError(t, err)
	require.Equal(t, 1, out.Count())
	assert.Equal(t, "ring", out.Features[0].Attrs["id"])
}

func TestClipMultiPolygonBoundary(t *testing.T) {
	e := New()

	mp := geom.NewMultiPolygonFlat(geom.XY, []float64{
		0, 0, 10, 0, 10, 10, 0, 10, 0, 0,
		20, 20, 30, 20, 30, 30, 20, 30, 20, 20,
	}, [][]int{{10}, {20}})
	boundary := layer.Boundary("b", mp, SRIDLambert93)

	l := layer.New("pts", layer.KindPoint, SRIDLambert93)
	l.Append(geom.NewPointFlat(geom.XY, []float64{25, 25}), nil)
	l.Append(geom.NewPointFlat(geom.XY, []float64{15, 15}), nil)

	out, err := e.Clip(l, boundary)
	require.NoError(t, err)
	assert.Equal(t, 1, out.Count())
}

func TestClipFrameMismatch(t *testing.T) {
	e := New()

	l := layer.New("pts", layer.KindPoint, SRIDWGS84)
	_, err := e.Clip(l, unitBoundary())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "frame mismatch")
}

func TestClipNoBoundaryPolygon(t *testing.T) {
	e := New()

	empty := layer.New("b", layer.KindPolygon, SRIDLambert93)
	l := layer.New("pts", layer.KindPoint, SRIDLambert93)
	_, err := e.Clip(l, empty)
	require.Error(t, err)
}
