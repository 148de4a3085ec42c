// Package sirene ingests SIRENE business-registry establishments for one
// commune into a point layer. Two strategies exist: the paginated search
// API (primary) and the per-department Géo-SIRENE bulk file.
package sirene

import (
	"context"
	"fmt"

	"github.com/atelier-carto/fondplan/internal/geomeng"
	"github.com/atelier-carto/fondplan/internal/layer"
	"github.com/atelier-carto/fondplan/internal/progress"
)

// LayerName is the display name of the produced point layer.
const LayerName = "Établissements SIRENE"

// Ingester dispatches to the configured strategy.
type Ingester struct {
	strategy string
	api      *APIClient
	bulk     *BulkClient
}

// NewIngester wires both strategies; strategy is "api" or "bulk".
func NewIngester(strategy string, api *APIClient, bulk *BulkClient) *Ingester {
	return &Ingester{strategy: strategy, api: api, bulk: bulk}
}

// Ingest runs the configured strategy for the commune.
func (i *Ingester) Ingest(ctx context.Context, insee, dep string, boundary *layer.Layer, rep progress.Reporter) *layer.Layer {
	if i.strategy == "bulk" {
		return i.bulk.Ingest(ctx, dep, insee, boundary, rep)
	}
	return i.api.Ingest(ctx, insee, boundary, rep)
}

// finishLayer reprojects the accumulated geographic point layer into
// Lambert-93 and clips it to the boundary. There is no unclipped fallback
// here: a failure drops the layer with a warning.
func finishLayer(engine geomeng.Engine, pts *layer.Layer, boundary *layer.Layer, rep progress.Reporter) *layer.Layer {
	if pts.Count() == 0 {
		rep.Info("no establishment found for the commune")
		return nil
	}

	projected, err := engine.Reproject(pts, geomeng.SRIDLambert93)
	if err != nil {
		rep.Warn(fmt.Sprintf("cannot reproject establishments: %v", err))
		return nil
	}
	clipped, err := engine.Clip(projected, boundary)
	if err != nil {
		rep.Warn(fmt.Sprintf("cannot clip establishments: %v", err))
		return nil
	}
	clipped.Name = LayerName
	return clipped
}
