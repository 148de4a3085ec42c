package pipeline

import (
	"context"
	"sync"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/atelier-carto/fondplan/internal/commune"
	"github.com/atelier-carto/fondplan/internal/geomeng"
	"github.com/atelier-carto/fondplan/internal/layer"
	"github.com/atelier-carto/fondplan/internal/progress"
)

type recordReporter struct {
	mu               sync.Mutex
	infos            []string
	pct              int
	cancelled        bool
	cancelAfterInfos int
}

func (r *recordReporter) Info(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.infos = append(r.infos, msg)
	if r.cancelAfterInfos > 0 && len(r.infos) >= r.cancelAfterInfos {
		r.cancelled = true
	}
}

func (r *recordReporter) Warn(msg string) {}

func (r *recordReporter) SetProgress(pct int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if pct > r.pct {
		r.pct = pct
	}
}

func (r *recordReporter) Cancelled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cancelled
}

func (r *recordReporter) progress() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pct
}

type stubResolver struct {
	cm  *commune.Commune
	err error
}

func (s *stubResolver) Resolve(ctx context.Context, nameQuery string) (*commune.Commune, error) {
	return s.cm, s.err
}

type stubFetcher struct {
	layers map[string]*layer.Layer
	lo, hi int
}

func (s *stubFetcher) FetchAll(ctx context.Context, boundary *layer.Layer, rep progress.Reporter, lo, hi int) map[string]*layer.Layer {
	s.lo, s.hi = lo, hi
	out := make(map[string]*layer.Layer, len(s.layers))
	for k, v := range s.layers {
		out[k] = v
	}
	return out
}

type stubIngester struct {
	l     *layer.Layer
	insee string
	dep   string
}

func (s *stubIngester) Ingest(ctx context.Context, insee, dep string, boundary *layer.Layer, rep progress.Reporter) *layer.Layer {
	s.insee, s.dep = insee, dep
	return s.l
}

func testCommune() *commune.Commune {
	contour := geom.NewPolygonFlat(geom.XY, []float64{
		2.9, 46.4,
		3.1, 46.4,
		3.1, 46.6,
		2.9, 46.6,
		2.9, 46.4,
	}, []int{10})
	return &commune.Commune{Name: "Testville", Code: "74012", Contour: contour}
}

func polyLayer(name string) *layer.Layer {
	l := layer.New(name, layer.KindPolygon, geomeng.SRIDLambert93)
	l.Append(geom.NewPolygonFlat(geom.XY, []float64{0, 0, 1, 0, 1, 1, 0, 0}, []int{8}), nil)
	return l
}

func pointLayer(n int) *layer.Layer {
	l := layer.New("pts", layer.KindPoint, geomeng.SRIDLambert93)
	for i := 0; i < n; i++ {
		l.Append(geom.NewPointFlat(geom.XY, []float64{float64(i), float64(i)}), nil)
	}
	return l
}

func TestRunComposesInOrder(t *testing.T) {
	fetched := map[string]*layer.Layer{
		"roads":            polyLayer("roads"),
		"commune_boundary": polyLayer("commune"),
		"buildings":        polyLayer("buildings"),
		"water_surface":    polyLayer("water"),
		"parcels":          polyLayer("parcels"),
	}
	fetcher := &stubFetcher{layers: fetched}
	ingester := &stubIngester{l: pointLayer(40)}
	rep := &recordReporter{}

	p := New(&stubResolver{cm: testCommune()}, fetcher, ingester, geomeng.New(), rep)
	comp, err := p.Run(context.Background(), "testville")
	require.NoError(t, err)
	assert.Equal(t, PhaseDone, p.Phase())
	assert.Equal(t, 100, rep.progress())

	assert.Equal(t, "Testville", comp.Commune.Name)
	assert.Equal(t, "74", comp.Department)
	assert.NotEmpty(t, comp.RunID)
	assert.Equal(t, "74012", ingester.insee)
	assert.Equal(t, "74", ingester.dep)
	assert.Equal(t, 10, fetcher.lo)
	assert.Equal(t, 50, fetcher.hi)

	require.Len(t, comp.Layers, 6)
	var keys []string
	for _, cl := range comp.Layers {
		keys = append(keys, cl.StyleKey)
	}
	assert.Equal(t, []string{"commune_boundary", "parcels", "water_surface", "roads", "buildings", "sirene"}, keys)
	assert.Equal(t, 40, comp.Layers[5].Layer.Count())
	assert.Equal(t, "Établissements SIRENE", comp.Layers[5].DisplayName)
}

func TestRunIsRepeatable(t *testing.T) {
	newPipeline := func() *Pipeline {
		return New(
			&stubResolver{cm: testCommune()},
			&stubFetcher{layers: map[string]*layer.Layer{"roads": polyLayer("roads")}},
			&stubIngester{l: pointLayer(3)},
			geomeng.New(),
			&recordReporter{},
		)
	}

	first, err := newPipeline().Run(context.Background(), "testville")
	require.NoError(t, err)
	second, err := newPipeline().Run(context.Background(), "testville")
	require.NoError(t, err)

	require.Len(t, second.Layers, len(first.Layers))
	for i := range first.Layers {
		assert.Equal(t, first.Layers[i].StyleKey, second.Layers[i].StyleKey)
		assert.Equal(t, first.Layers[i].Layer.Count(), second.Layers[i].Layer.Count())
	}
	assert.NotEqual(t, first.RunID, second.RunID)
}

func TestRunCancelledResolution(t *testing.T) {
	p := New(&stubResolver{err: commune.ErrCancelled}, &stubFetcher{}, &stubIngester{}, geomeng.New(), &recordReporter{})

	_, err := p.Run(context.Background(), "testville")
	require.Error(t, err)
	assert.True(t, eris.Is(err, commune.ErrCancelled))
	assert.Equal(t, PhaseCancelled, p.Phase())
}

func TestRunFailedResolution(t *testing.T) {
	p := New(&stubResolver{err: eris.New("boom")}, &stubFetcher{}, &stubIngester{}, geomeng.New(), &recordReporter{})

	_, err := p.Run(context.Background(), "testville")
	require.Error(t, err)
	assert.Equal(t, PhaseFailed, p.Phase())
}

func TestRunCancelledDuringFetch(t *testing.T) {
	// The third status message is the boundary extent, logged right before
	// the fetch phase; cancelling there aborts after FetchAll.
	rep := &recordReporter{cancelAfterInfos: 3}
	p := New(
		&stubResolver{cm: testCommune()},
		&stubFetcher{layers: map[string]*layer.Layer{"roads": polyLayer("roads")}},
		&stubIngester{},
		geomeng.New(),
		rep,
	)

	_, err := p.Run(context.Background(), "testville")
	require.Error(t, err)
	assert.True(t, eris.Is(err, commune.ErrCancelled))
	assert.Equal(t, PhaseCancelled, p.Phase())
}

func TestRunWithoutRegistryLayer(t *testing.T) {
	p := New(
		&stubResolver{cm: testCommune()},
		&stubFetcher{layers: map[string]*layer.Layer{"roads": polyLayer("roads")}},
		&stubIngester{l: nil},
		geomeng.New(),
		&recordReporter{},
	)

	comp, err := p.Run(context.Background(), "testville")
	require.NoError(t, err)
	require.Len(t, comp.Layers, 1)
	assert.Equal(t, "roads", comp.Layers[0].StyleKey)
}

func TestLayerOrder(t *testing.T) {
	order := LayerOrder()
	require.Len(t, order, 9)
	assert.Equal(t, "commune_boundary", order[0])
	assert.Equal(t, "sirene", order[8])
}
