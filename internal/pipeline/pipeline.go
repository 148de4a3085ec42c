// Package pipeline sequences boundary resolution, WFS layer fetching and
// registry ingestion into one composed base-map result.
package pipeline

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/atelier-carto/fondplan/internal/commune"
	"github.com/atelier-carto/fondplan/internal/geomeng"
	"github.com/atelier-carto/fondplan/internal/layer"
	"github.com/atelier-carto/fondplan/internal/progress"
	"github.com/atelier-carto/fondplan/internal/sirene"
	"github.com/atelier-carto/fondplan/internal/wfs"
)

// Phase is the pipeline state. Transitions are strictly forward; the three
// terminal states are Done, Cancelled and Failed.
type Phase string

const (
	PhaseResolving         Phase = "resolving"
	PhaseFetchingLayers    Phase = "fetching_layers"
	PhaseIngestingRegistry Phase = "ingesting_registry"
	PhaseComposing         Phase = "composing"
	PhaseDone              Phase = "done"
	PhaseCancelled         Phase = "cancelled"
	PhaseFailed            Phase = "failed"
)

// BoundaryResolver resolves a name query to a commune. Its failures are the
// only fatal ones in the pipeline.
type BoundaryResolver interface {
	Resolve(ctx context.Context, nameQuery string) (*commune.Commune, error)
}

// LayerFetcher loads the declared WFS sources clipped to a boundary.
type LayerFetcher interface {
	FetchAll(ctx context.Context, boundary *layer.Layer, rep progress.Reporter, lo, hi int) map[string]*layer.Layer
}

// RegistryIngester produces the establishment point layer, or nil.
type RegistryIngester interface {
	Ingest(ctx context.Context, insee, dep string, boundary *layer.Layer, rep progress.Reporter) *layer.Layer
}

// ComposedLayer is one named layer in presentation order.
type ComposedLayer struct {
	StyleKey    string
	DisplayName string
	Layer       *layer.Layer
}

// Composition is the pipeline output handed to the presentation side.
// Layers are ordered bottom-to-top and all clipped to the commune boundary
// in EPSG:2154.
type Composition struct {
	RunID      string
	Commune    commune.Commune
	Department string
	Layers     []ComposedLayer
}

// LayerOrder returns the bottom-to-top presentation order of style keys.
func LayerOrder() []string {
	return []string{
		"commune_boundary",
		"parcels",
		"water_surface",
		"rivers",
		"vegetation",
		"railways",
		"roads",
		"buildings",
		"sirene",
	}
}

// Pipeline runs the acquisition sequence. It is single-use per Run call;
// all remote work is sequential with cooperative cancellation.
type Pipeline struct {
	resolver BoundaryResolver
	fetcher  LayerFetcher
	ingester RegistryIngester
	engine   geomeng.Engine
	rep      progress.Reporter
	phase    Phase
}

// New wires a Pipeline from its collaborators.
func New(resolver BoundaryResolver, fetcher LayerFetcher, ingester RegistryIngester, engine geomeng.Engine, rep progress.Reporter) *Pipeline {
	return &Pipeline{
		resolver: resolver,
		fetcher:  fetcher,
		ingester: ingester,
		engine:   engine,
		rep:      rep,
		phase:    PhaseResolving,
	}
}

// Phase returns the current pipeline phase.
func (p *Pipeline) Phase() Phase {
	return p.phase
}

// Run executes the full pipeline for a commune name query. Per-source and
// registry failures surface as warnings and absent layers; only boundary
// resolution failures and cancellation abort the run.
func (p *Pipeline) Run(ctx context.Context, nameQuery string) (*Composition, error) {
	log := zap.L().With(zap.String("component", "pipeline"))

	p.phase = PhaseResolving
	p.rep.Info(fmt.Sprintf("Searching commune: %s…", nameQuery))

	cm, err := p.resolver.Resolve(ctx, nameQuery)
	if err != nil {
		if eris.Is(err, commune.ErrCancelled) {
			p.phase = PhaseCancelled
			p.rep.Info("No commune selected. Processing aborted.")
			return nil, err
		}
		p.phase = PhaseFailed
		return nil, eris.Wrap(err, "pipeline: resolve commune")
	}

	dep := commune.DeriveDepartment(cm.Code)
	p.rep.Info(fmt.Sprintf("Commune: %s | INSEE: %s | Department: %s", cm.Name, cm.Code, dep))
	p.rep.SetProgress(5)

	// Boundary reprojected once into Lambert-93, reused for every clip.
	contour := layer.Boundary("_boundary", cm.Contour, geomeng.SRIDWGS84)
	boundary, err := p.engine.Reproject(contour, geomeng.SRIDLambert93)
	if err != nil {
		p.phase = PhaseFailed
		return nil, eris.Wrap(err, "pipeline: project boundary")
	}
	if bbox, bboxErr := boundary.BBox(); bboxErr == nil {
		p.rep.Info(fmt.Sprintf("Lambert-93 extent: %.0f,%.0f — %.0f,%.0f", bbox.MinX, bbox.MinY, bbox.MaxX, bbox.MaxY))
	}
	p.rep.SetProgress(10)

	p.phase = PhaseFetchingLayers
	loaded := p.fetcher.FetchAll(ctx, boundary, p.rep, 10, 50)
	if p.cancelled(ctx) {
		p.phase = PhaseCancelled
		p.rep.Info("Processing cancelled.")
		return nil, commune.ErrCancelled
	}
	p.rep.SetProgress(50)

	p.phase = PhaseIngestingRegistry
	p.rep.Info("Loading SIRENE establishments…")
	if registry := p.ingester.Ingest(ctx, cm.Code, dep, boundary, p.rep); registry != nil {
		loaded["sirene"] = registry
	}
	if p.cancelled(ctx) {
		p.phase = PhaseCancelled
		p.rep.Info("Processing cancelled.")
		return nil, commune.ErrCancelled
	}
	p.rep.SetProgress(80)

	p.phase = PhaseComposing
	comp := &Composition{
		RunID:      uuid.New().String(),
		Commune:    *cm,
		Department: dep,
	}
	displayNames := displayNameByStyleKey()
	for _, key := range LayerOrder() {
		l, ok := loaded[key]
		if !ok {
			continue
		}
		comp.Layers = append(comp.Layers, ComposedLayer{
			StyleKey:    key,
			DisplayName: displayNames[key],
			Layer:       l,
		})
	}
	p.rep.Info(fmt.Sprintf("%d layer(s) composed for %q.", len(comp.Layers), cm.Name))
	p.rep.SetProgress(90)

	log.Info("pipeline complete",
		zap.String("run_id", comp.RunID),
		zap.String("insee", cm.Code),
		zap.Int("layers", len(comp.Layers)),
	)

	p.phase = PhaseDone
	p.rep.SetProgress(100)
	p.rep.Info("Processing complete.")
	return comp, nil
}

func (p *Pipeline) cancelled(ctx context.Context) bool {
	return p.rep.Cancelled() || ctx.Err() != nil
}

func displayNameByStyleKey() map[string]string {
	names := make(map[string]string, len(wfs.Sources())+1)
	for _, src := range wfs.Sources() {
		names[src.StyleKey] = src.DisplayName
	}
	names["sirene"] = sirene.LayerName
	return names
}
