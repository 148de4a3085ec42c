// Package export writes a composition to an output directory: one file per
// layer plus a manifest carrying layer order and symbology.
package export

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/atelier-carto/fondplan/internal/commune"
	"github.com/atelier-carto/fondplan/internal/layer"
	"github.com/atelier-carto/fondplan/internal/pipeline"
	"github.com/atelier-carto/fondplan/internal/style"
)

// ManifestName is the manifest file written next to the layers.
const ManifestName = "composition.json"

// Formats supported for layer files.
const (
	FormatGeoJSON   = "geojson"
	FormatShapefile = "shapefile"
)

// Options configure the export.
type Options struct {
	Format   string // geojson (default) or shapefile
	Workbook bool   // additionally write the establishments XLSX
}

// Manifest describes an exported composition.
type Manifest struct {
	RunID       string          `json:"run_id"`
	Commune     string          `json:"commune"`
	Code        string          `json:"code"`
	Department  string          `json:"department"`
	GeneratedAt time.Time       `json:"generated_at"`
	Layers      []ManifestLayer `json:"layers"`
}

// ManifestLayer is one exported layer, in bottom-to-top order.
type ManifestLayer struct {
	File         string             `json:"file"`
	DisplayName  string             `json:"display_name"`
	StyleKey     string             `json:"style_key"`
	Kind         layer.GeometryKind `json:"kind"`
	SRID         int                `json:"srid"`
	FeatureCount int                `json:"feature_count"`
	Symbol       *style.Symbol      `json:"symbol,omitempty"`
}

// WriteComposition writes every layer of the composition into dir, plus the
// manifest. Returns the manifest path.
func WriteComposition(dir string, comp *pipeline.Composition, opts Options) (string, error) {
	if opts.Format == "" {
		opts.Format = FormatGeoJSON
	}
	if opts.Format != FormatGeoJSON && opts.Format != FormatShapefile {
		return "", eris.Errorf("export: unsupported format %q", opts.Format)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", eris.Wrap(err, "export: create output dir")
	}

	manifest := Manifest{
		RunID:       comp.RunID,
		Commune:     comp.Commune.Name,
		Code:        comp.Commune.Code,
		Department:  comp.Department,
		GeneratedAt: time.Now().UTC(),
	}

	for _, cl := range comp.Layers {
		slug := Slug(cl.DisplayName)

		var file string
		var err error
		switch opts.Format {
		case FormatShapefile:
			file = slug + ".shp"
			err = writeShapefile(filepath.Join(dir, file), cl.Layer)
		default:
			file = slug + ".geojson"
			err = writeGeoJSON(filepath.Join(dir, file), cl.Layer)
		}
		if err != nil {
			return "", eris.Wrapf(err, "export: write layer %q", cl.DisplayName)
		}

		ml := ManifestLayer{
			File:         file,
			DisplayName:  cl.DisplayName,
			StyleKey:     cl.StyleKey,
			Kind:         cl.Layer.Kind,
			SRID:         cl.Layer.SRID,
			FeatureCount: cl.Layer.Count(),
		}
		if sym, ok := style.For(cl.StyleKey); ok {
			ml.Symbol = &sym
		}
		manifest.Layers = append(manifest.Layers, ml)

		zap.L().Debug("export: layer written",
			zap.String("file", file),
			zap.Int("features", cl.Layer.Count()),
		)
	}

	if opts.Workbook {
		for _, cl := range comp.Layers {
			if cl.StyleKey != "sirene" {
				continue
			}
			if err := writeWorkbook(filepath.Join(dir, "etablissements.xlsx"), cl.Layer); err != nil {
				return "", eris.Wrap(err, "export: write workbook")
			}
			break
		}
	}

	manifestPath := filepath.Join(dir, ManifestName)
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return "", eris.Wrap(err, "export: encode manifest")
	}
	if err := os.WriteFile(manifestPath, data, 0o644); err != nil {
		return "", eris.Wrap(err, "export: write manifest")
	}
	return manifestPath, nil
}

func writeGeoJSON(path string, l *layer.Layer) error {
	data, err := l.ToGeoJSON()
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Slug folds a display name into a safe file stem.
func Slug(name string) string {
	folded := commune.Fold(name)
	var b strings.Builder
	lastDash := true
	for _, r := range folded {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	slug := strings.TrimRight(b.String(), "-")
	if slug == "" {
		slug = fmt.Sprintf("layer-%d", time.Now().Unix())
	}
	return slug
}
