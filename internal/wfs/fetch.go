package wfs

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"go.uber.org/zap"

	"github.com/atelier-carto/fondplan/internal/fetcher"
	"github.com/atelier-carto/fondplan/internal/geomeng"
	"github.com/atelier-carto/fondplan/internal/layer"
	"github.com/atelier-carto/fondplan/internal/progress"
)

// Fetcher loads WFS feature layers for the declared sources. Per-source
// failures are warnings, never errors: a failed source is simply absent from
// the result.
type Fetcher struct {
	baseURL     string
	http        fetcher.Fetcher
	engine      geomeng.Engine
	maxFeatures int
}

// NewFetcher creates a Fetcher against the given WFS endpoint.
func NewFetcher(baseURL string, httpFetcher fetcher.Fetcher, engine geomeng.Engine, maxFeatures int) *Fetcher {
	if maxFeatures <= 0 {
		maxFeatures = 10000
	}
	return &Fetcher{baseURL: baseURL, http: httpFetcher, engine: engine, maxFeatures: maxFeatures}
}

// FetchAll iterates the declared sources in order, keyed by style key in the
// result. Cancellation is checked before each source; on cancellation the
// layers collected so far are returned. Progress advances in equal shares
// across the [lo, hi] sub-range.
func (f *Fetcher) FetchAll(ctx context.Context, boundary *layer.Layer, rep progress.Reporter, lo, hi int) map[string]*layer.Layer {
	loaded := make(map[string]*layer.Layer)

	bbox, err := boundary.BBox()
	if err != nil {
		rep.Warn(fmt.Sprintf("cannot compute boundary extent: %v", err))
		return loaded
	}

	sources := Sources()
	share := float64(hi-lo) / float64(len(sources))

	for i, src := range sources {
		if rep.Cancelled() || ctx.Err() != nil {
			return loaded
		}
		rep.Info(fmt.Sprintf("Loading %s…", src.DisplayName))
		if l := f.Fetch(ctx, src, bbox, boundary, rep); l != nil {
			loaded[src.StyleKey] = l
		}
		rep.SetProgress(lo + int(float64(i+1)*share))
	}
	return loaded
}

// Fetch loads one source bbox-filtered and clipped to the boundary. Returns
// nil when the source is invalid or empty; returns the unclipped layer when
// only the clip fails.
func (f *Fetcher) Fetch(ctx context.Context, src SourceSpec, bbox layer.BBox, boundary *layer.Layer, rep progress.Reporter) *layer.Layer {
	reqURL := f.buildURL(src.TypeName, bbox)

	data, err := f.http.Get(ctx, reqURL)
	if err != nil {
		rep.Warn(fmt.Sprintf("source unavailable: %s: %v", src.DisplayName, err))
		return nil
	}

	l, err := layer.FromGeoJSON(data, src.DisplayName, geomeng.SRIDLambert93)
	if err != nil {
		rep.Warn(fmt.Sprintf("invalid layer: %s: %v", src.DisplayName, err))
		return nil
	}
	if l.Count() == 0 {
		rep.Warn(fmt.Sprintf("no features returned: %s", src.DisplayName))
		return nil
	}

	zap.L().Debug("wfs: layer loaded",
		zap.String("source", src.TypeName),
		zap.Int("features", l.Count()),
		zap.Int("bytes", len(data)),
	)

	clipped, err := f.engine.Clip(l, boundary)
	if err != nil {
		// Prefer an over-extended layer to no layer at all.
		rep.Warn(fmt.Sprintf("clip failed for %s: %v — using the unclipped layer", src.DisplayName, err))
		return l
	}
	clipped.Name = src.DisplayName
	return clipped
}

func (f *Fetcher) buildURL(typeName string, bbox layer.BBox) string {
	params := url.Values{
		"SERVICE":      {"WFS"},
		"VERSION":      {"2.0.0"},
		"REQUEST":      {"GetFeature"},
		"TYPENAME":     {typeName},
		"SRSNAME":      {fmt.Sprintf("EPSG:%d", geomeng.SRIDLambert93)},
		"OUTPUTFORMAT": {"application/json"},
		"COUNT":        {strconv.Itoa(f.maxFeatures)},
		"BBOX":         {bbox.String(geomeng.SRIDLambert93)},
	}
	return f.baseURL + "?" + params.Encode()
}
