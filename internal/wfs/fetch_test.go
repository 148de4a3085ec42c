package wfs

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/atelier-carto/fondplan/internal/fetcher"
	"github.com/atelier-carto/fondplan/internal/geomeng"
	"github.com/atelier-carto/fondplan/internal/layer"
)

type recordReporter struct {
	mu               sync.Mutex
	infos            []string
	warns            []string
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

func (r *recordReporter) Warn(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.warns = append(r.warns, msg)
}

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

func (r *recordReporter) warnings() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.warns...)
}

func squareBoundary() *layer.Layer {
	poly := geom.NewPolygonFlat(geom.XY, []float64{0, 0, 10, 0, 10, 10, 0, 10, 0, 0}, []int{10})
	return layer.Boundary("b", poly, geomeng.SRIDLambert93)
}

const emptyFC = `{"type":"FeatureCollection","features":[]}`

const polygonFC = `{"type":"FeatureCollection","features":[
	{"type":"Feature","properties":{"nature":"test"},
	 "geometry":{"type":"Polygon","coordinates":[[[2,2],[8,2],[8,8],[2,8],[2,2]]]}}]}`

const lineFC = `{"type":"FeatureCollection","features":[
	{"type":"Feature","properties":{},
	 "geometry":{"type":"LineString","coordinates":[[1,1],[9,9]]}},
	{"type":"Feature","properties":{},
	 "geometry":{"type":"LineString","coordinates":[[50,50],[60,60]]}}]}`

func newTestFetcher(baseURL string) *Fetcher {
	httpFetcher := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{Timeout: 5 * time.Second})
	return NewFetcher(baseURL, httpFetcher, geomeng.New(), 10000)
}

func wfsServer(t *testing.T, bodies map[string]string, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		q := r.URL.Query()
		assert.Equal(t, "WFS", q.Get("SERVICE"))
		assert.Equal(t, "2.0.0", q.Get("VERSION"))
		assert.Equal(t, "GetFeature", q.Get("REQUEST"))
		assert.Equal(t, "application/json", q.Get("OUTPUTFORMAT"))
		assert.Contains(t, q.Get("BBOX"), "EPSG:2154")
		body, ok := bodies[q.Get("TYPENAME")]
		if !ok {
			body = emptyFC
		}
		fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestFetchAllSkipsEmptySources(t *testing.T) {
	var calls atomic.Int32
	srv := wfsServer(t, map[string]string{
		"ADMINEXPRESS-COG-CARTO.LATEST:commune": polygonFC,
		"BDTOPO_V3:troncon_de_route":            lineFC,
	}, &calls)

	f := newTestFetcher(srv.URL)
	rep := &recordReporter{}

	loaded := f.FetchAll(context.Background(), squareBoundary(), rep, 10, 50)

	// Every declared source is attempted even when earlier ones are empty.
	assert.Equal(t, int32(len(Sources())), calls.Load())
	require.Len(t, loaded, 2)
	assert.Contains(t, loaded, "commune_boundary")
	assert.Contains(t, loaded, "roads")
	// One line falls outside the boundary and is clipped away.
	assert.Equal(t, 1, loaded["roads"].Count())
	// Six empty sources produce warnings, not failures.
	assert.Len(t, rep.warnings(), 6)
}

func TestFetchInvalidResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<ServiceExceptionReport/>")
	}))
	defer srv.Close()

	f := newTestFetcher(srv.URL)
	rep := &recordReporter{}
	bbox := layer.BBox{MinX: 0, MinY: 0, MaxX: 10, MaxY: 10}

	l := f.Fetch(context.Background(), Sources()[0], bbox, squareBoundary(), rep)
	assert.Nil(t, l)
	require.NotEmpty(t, rep.warnings())
	assert.Contains(t, rep.warnings()[0], "invalid layer")
}

func TestFetchSourceUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f := newTestFetcher(srv.URL)
	rep := &recordReporter{}
	bbox := layer.BBox{MinX: 0, MinY: 0, MaxX: 10, MaxY: 10}

	l := f.Fetch(context.Background(), Sources()[0], bbox, squareBoundary(), rep)
	assert.Nil(t, l)
	require.NotEmpty(t, rep.warnings())
	assert.Contains(t, rep.warnings()[0], "source unavailable")
}

func TestFetchFallsBackToUnclippedLayer(t *testing.T) {
	var calls atomic.Int32
	srv := wfsServer(t, map[string]string{
		"ADMINEXPRESS-COG-CARTO.LATEST:commune": polygonFC,
	}, &calls)

	// A boundary without any polygon makes the clip fail.
	line := geom.NewLineStringFlat(geom.XY, []float64{0, 0, 10, 10})
	badBoundary := layer.Boundary("b", line, geomeng.SRIDLambert93)

	f := newTestFetcher(srv.URL)
	rep := &recordReporter{}
	bbox := layer.BBox{MinX: 0, MinY: 0, MaxX: 10, MaxY: 10}

	l := f.Fetch(context.Background(), Sources()[0], bbox, badBoundary, rep)
	require.NotNil(t, l)
	assert.Equal(t, 1, l.Count())
	require.NotEmpty(t, rep.warnings())
	assert.Contains(t, rep.warnings()[0], "unclipped")
}

func TestFetchAllStopsOnCancellation(t *testing.T) {
	var calls atomic.Int32
	srv := wfsServer(t, map[string]string{
		"ADMINEXPRESS-COG-CARTO.LATEST:commune": polygonFC,
	}, &calls)

	f := newTestFetcher(srv.URL)
	// Cancel right after the first "Loading …" message.
	rep := &recordReporter{cancelAfterInfos: 1}

	loaded := f.FetchAll(context.Background(), squareBoundary(), rep, 10, 50)
	assert.Equal(t, int32(1), calls.Load())
	assert.Len(t, loaded, 1)
}

func TestSourcesDeclaration(t *testing.T) {
	sources := Sources()
	require.Len(t, sources, 8)
	keys := make(map[string]bool, len(sources))
	for _, s := range sources {
		assert.NotEmpty(t, s.TypeName)
		assert.NotEmpty(t, s.DisplayName)
		assert.False(t, keys[s.StyleKey], "duplicate style key %s", s.StyleKey)
		keys[s.StyleKey] = true
	}
	assert.Equal(t, "ADMINEXPRESS-COG-CARTO.LATEST:commune", sources[0].TypeName)
}
