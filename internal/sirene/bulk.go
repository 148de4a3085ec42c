package sirene

import (
	"compress/gzip"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/atelier-carto/fondplan/internal/fetcher"
	"github.com/atelier-carto/fondplan/internal/geomeng"
	"github.com/atelier-carto/fondplan/internal/layer"
	"github.com/atelier-carto/fondplan/internal/progress"
)

// BulkClient ingests establishments from the per-department Géo-SIRENE
// CSV archive. The archive covers a whole department; rows are filtered to
// the commune while decompressing. The downloaded file is removed on every
// exit path.
type BulkClient struct {
	baseURL string
	http    fetcher.Fetcher
	engine  geomeng.Engine
	tempDir string
}

// NewBulkClient creates a BulkClient. An empty tempDir falls back to the
// system temp directory.
func NewBulkClient(baseURL string, httpFetcher fetcher.Fetcher, engine geomeng.Engine, tempDir string) *BulkClient {
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	return &BulkClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpFetcher,
		engine:  engine,
		tempDir: tempDir,
	}
}

// Ingest downloads the department archive, filters it to the commune and
// returns the reprojected, clipped establishment layer. Returns nil on any
// failure (warning) or when nothing survives filtering.
func (c *BulkClient) Ingest(ctx context.Context, dep, insee string, boundary *layer.Layer, rep progress.Reporter) *layer.Layer {
	if rep.Cancelled() || ctx.Err() != nil {
		return nil
	}

	archiveURL := fmt.Sprintf("%s/geo_siret_%s.csv.gz", c.baseURL, dep)
	tmpGz := filepath.Join(c.tempDir, fmt.Sprintf("geo_siret_%s.csv.gz", dep))
	defer func() {
		if err := os.Remove(tmpGz); err != nil && !os.IsNotExist(err) {
			zap.L().Debug("sirene: cannot remove temp archive", zap.String("path", tmpGz), zap.Error(err))
		}
	}()

	rep.Info(fmt.Sprintf("Downloading Géo-SIRENE archive for department %s (may be large)…", dep))
	if _, err := c.http.DownloadToFile(ctx, archiveURL, tmpGz); err != nil {
		rep.Warn(fmt.Sprintf("cannot download Géo-SIRENE archive for department %s: %v", dep, err))
		return nil
	}

	pts, err := c.filterArchive(tmpGz, insee)
	if err != nil {
		rep.Warn(fmt.Sprintf("cannot read Géo-SIRENE archive: %v", err))
		return nil
	}
	rep.Info(fmt.Sprintf("%d active establishment(s) with coordinates", pts.Count()))

	return finishLayer(c.engine, pts, boundary, rep)
}

// filterArchive streams the gzipped CSV and keeps active establishments of
// the commune that carry parseable coordinates.
func (c *BulkClient) filterArchive(path, insee string) (*layer.Layer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close() //nolint:errcheck

	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer gz.Close() //nolint:errcheck

	r := csv.NewReader(gz)
	r.LazyQuotes = true
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return nil, err
	}
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range []string{"codecommuneetablissement", "siret", "longitude", "latitude"} {
		if _, ok := col[required]; !ok {
			return nil, fmt.Errorf("missing column %q", required)
		}
	}

	field := func(row []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(row) {
			return ""
		}
		return row[i]
	}

	pts := layer.New(LayerName, layer.KindPoint, geomeng.SRIDWGS84)
	dropped := 0
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if field(row, "codecommuneetablissement") != insee {
			continue
		}
		if etat := field(row, "etatadministratifetablissement"); etat != "" && etat != "A" {
			continue
		}
		lon, lat, ok := parseCoords(field(row, "longitude"), field(row, "latitude"))
		if !ok {
			dropped++
			continue
		}

		name := field(row, "denominationusuelleetablissement")
		if name == "" {
			name = field(row, "enseigne1etablissement")
		}
		pts.Append(
			geom.NewPointFlat(geom.XY, []float64{lon, lat}),
			map[string]string{
				"siret":    field(row, "siret"),
				"nom":      name,
				"activite": field(row, "activiteprincipaleetablissement"),
				"adresse":  field(row, "geo_adresse"),
			},
		)
	}

	if dropped > 0 {
		zap.L().Debug("sirene: dropped rows without parseable coordinates",
			zap.String("insee", insee),
			zap.Int("dropped", dropped),
		)
	}
	return pts, nil
}
